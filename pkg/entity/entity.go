// Package entity holds the runtime entity documents the engine mutates:
// free-shape JSON maps addressed by dot paths, plus the property-definition
// records that extend a session's schema after setup.
package entity

import (
	"encoding/json"
	"strings"
)

// Entity types the engine persists.
const (
	TypeCharacter  = "character"
	TypeItem       = "item"
	TypeLocation   = "location"
	TypeNPCProfile = "npc_profile"
)

// Types lists the persistable entity types.
var Types = []string{TypeCharacter, TypeItem, TypeLocation, TypeNPCProfile}

// ValidType reports whether s names a persistable entity type.
func ValidType(s string) bool {
	switch s {
	case TypeCharacter, TypeItem, TypeLocation, TypeNPCProfile:
		return true
	}
	return false
}

// Document is one entity's state: a decoded JSON object addressed by dot
// paths. Absent entities are represented as an empty Document, never nil
// checks at call sites.
type Document map[string]any

// Get walks a dot path and returns the value at it.
func (d Document) Get(path string) (any, bool) {
	if d == nil || path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var node any = map[string]any(d)
	for _, seg := range segments {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Set writes a value at a dot path, creating intermediate maps as needed.
// A non-map intermediate is overwritten by a map; writes never fail.
func (d Document) Set(path string, value any) {
	if d == nil || path == "" {
		return
	}
	segments := strings.Split(path, ".")
	m := map[string]any(d)
	for _, seg := range segments[:len(segments)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	m[segments[len(segments)-1]] = value
}

// Has reports whether a dot path resolves.
func (d Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Number returns the numeric value at a path, coercing the int/float shapes
// JSON decoding and CEL evaluation produce.
func (d Document) Number(path string) (float64, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	return ToNumber(v)
}

// Map returns the object at a path.
func (d Document) Map(path string) (map[string]any, bool) {
	v, ok := d.Get(path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Version returns the document's write counter, zero when unset.
func (d Document) Version() int64 {
	n, ok := d.Number("version")
	if !ok {
		return 0
	}
	return int64(n)
}

// Clone deep-copies the document's maps and slices.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// ToNumber coerces the numeric shapes that appear in decoded documents.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
