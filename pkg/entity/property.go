package entity

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Property value types a definition may declare.
const (
	PropertyNumber  = "number"
	PropertyText    = "text"
	PropertyBoolean = "boolean"
	PropertyList    = "list"
)

// PropertyDefinition extends a session's schema after setup: a named slot in
// the entity's properties sandbox with a type, default, and optional bounds.
// Definitions are append-only and unique per (session, entity type, name).
type PropertyDefinition struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	EntityType   string    `json:"entity_type"`
	PropertyName string    `json:"property_name"`
	Type         string    `json:"type"`
	Default      any       `json:"default,omitempty"`
	MinValue     *float64  `json:"min_value,omitempty"`
	MaxValue     *float64  `json:"max_value,omitempty"`
	Label        string    `json:"label,omitempty"`
	Regen        string    `json:"regen,omitempty"` // recovery hint, e.g. "per_rest"
	CreatedAt    time.Time `json:"created_at"`
}

// NewPropertyDefinition stamps an ID and creation time onto a definition.
func NewPropertyDefinition(sessionID, entityType, name, propType string) (*PropertyDefinition, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("property name is required")
	}
	if !ValidType(entityType) {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	switch propType {
	case PropertyNumber, PropertyText, PropertyBoolean, PropertyList:
	default:
		return nil, fmt.Errorf("unknown property type %q", propType)
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return nil, fmt.Errorf("generating property id: %w", err)
	}

	return &PropertyDefinition{
		ID:           id.String(),
		SessionID:    sessionID,
		EntityType:   entityType,
		PropertyName: name,
		Type:         propType,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DefaultValue returns the declared default, or the type's zero value.
func (p *PropertyDefinition) DefaultValue() any {
	if p.Default != nil {
		return p.Default
	}
	switch p.Type {
	case PropertyNumber:
		return float64(0)
	case PropertyBoolean:
		return false
	case PropertyList:
		return []any{}
	default:
		return ""
	}
}

// ApplyTo seeds the property onto a document's properties sandbox when the
// slot is not already present. Existing values are never overwritten.
func (p *PropertyDefinition) ApplyTo(doc Document) bool {
	path := "properties." + p.PropertyName
	if doc.Has(path) {
		return false
	}
	doc.Set(path, p.DefaultValue())
	return true
}
