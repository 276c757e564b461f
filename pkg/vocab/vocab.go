// Package vocab models the ruleset vocabulary: the declared fields, bounds,
// invariants, and derived-stat formulas that make a generated sheet
// enforceable. A vocabulary is the authority the update pipeline checks
// mutations against.
package vocab

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field types. These describe intent, not storage: pools and tracks store as
// {current, max} molecules, everything else as atoms or lists.
const (
	TypeNumber = "number"
	TypePool   = "pool"
	TypeTrack  = "track"
	TypeDie    = "die"
	TypeLadder = "ladder" // named rungs, e.g. Fate's "Good (+3)"
	TypeTag    = "tag"
	TypeText   = "text"
	TypeList   = "list"
)

// Field roles.
const (
	RoleCore       = "core"       // identity-level stats
	RoleResource   = "resource"   // spendable or damageable
	RoleCapability = "capability" // skills, proficiencies
	RoleStatus     = "status"     // transient conditions
)

// Invariant policies.
const (
	PolicyReject      = "reject"
	PolicyWarn        = "warn"
	PolicyAutoCorrect = "auto_correct"
)

// FieldDef declares one field the ruleset recognizes. Path is a dot path
// into the entity document; a "*" segment matches any single key
// ("skills.*", "resources.*.current").
type FieldDef struct {
	Path        string   `yaml:"path" json:"path"`
	Type        string   `yaml:"type" json:"type"`
	Role        string   `yaml:"role,omitempty" json:"role,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	MinValue    *float64 `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue    *float64 `yaml:"max_value,omitempty" json:"max_value,omitempty"`
}

// Invariant declares a rule the validator enforces after every update.
// Path selects the subject (wildcards allowed); Rule is a boolean expression
// evaluated with the subject bound as "value" (pools and tracks also bind
// "current" and "max", declared bounds bind "min_value" and "max_value").
type Invariant struct {
	Name     string   `yaml:"name" json:"name"`
	Path     string   `yaml:"path" json:"path"`
	Rule     string   `yaml:"rule" json:"rule"`
	Policy   string   `yaml:"policy" json:"policy"`
	MinValue *float64 `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue *float64 `yaml:"max_value,omitempty" json:"max_value,omitempty"`
}

// DerivedStat declares a formula-computed value. Order matters: earlier
// results are visible to later formulas under the path's last segment.
type DerivedStat struct {
	Path    string `yaml:"path" json:"path"`
	Formula string `yaml:"formula" json:"formula"`
}

// Vital declares a pool whose maximum is formula-derived, e.g. hit points
// from level and constitution.
type Vital struct {
	Path       string `yaml:"path" json:"path"`
	MaxFormula string `yaml:"max_formula" json:"max_formula"`
}

// Vocabulary is the complete ruleset authority for one game system.
type Vocabulary struct {
	System     string        `yaml:"system" json:"system"`
	Fields     []FieldDef    `yaml:"fields" json:"fields"`
	Invariants []Invariant   `yaml:"invariants,omitempty" json:"invariants,omitempty"`
	Derived    []DerivedStat `yaml:"derived,omitempty" json:"derived,omitempty"`
	Vitals     []Vital       `yaml:"vitals,omitempty" json:"vitals,omitempty"`

	exact    map[string]*FieldDef
	patterns []*FieldDef
}

// Load reads and validates a vocabulary from a YAML file.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates vocabulary YAML.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	v.buildIndex()
	return &v, nil
}

var validTypes = map[string]bool{
	TypeNumber: true, TypePool: true, TypeTrack: true, TypeDie: true,
	TypeLadder: true, TypeTag: true, TypeText: true, TypeList: true,
}

var validRoles = map[string]bool{
	RoleCore: true, RoleResource: true, RoleCapability: true, RoleStatus: true,
}

var validPolicies = map[string]bool{
	PolicyReject: true, PolicyWarn: true, PolicyAutoCorrect: true,
}

// Validate checks structural integrity: non-empty unique paths, known types,
// roles, and policies.
func (v *Vocabulary) Validate() error {
	if strings.TrimSpace(v.System) == "" {
		return fmt.Errorf("vocabulary system name is required")
	}
	seen := make(map[string]struct{}, len(v.Fields))
	for i, f := range v.Fields {
		path := strings.TrimSpace(f.Path)
		if path == "" {
			return fmt.Errorf("field %d has an empty path", i)
		}
		key := strings.ToLower(path)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate field path: %s", f.Path)
		}
		seen[key] = struct{}{}
		if !validTypes[f.Type] {
			return fmt.Errorf("field %s has unknown type %q", f.Path, f.Type)
		}
		if f.Role != "" && !validRoles[f.Role] {
			return fmt.Errorf("field %s has unknown role %q", f.Path, f.Role)
		}
	}
	for i, inv := range v.Invariants {
		if strings.TrimSpace(inv.Name) == "" {
			return fmt.Errorf("invariant %d has no name", i)
		}
		if strings.TrimSpace(inv.Path) == "" {
			return fmt.Errorf("invariant %s has no path", inv.Name)
		}
		if strings.TrimSpace(inv.Rule) == "" {
			return fmt.Errorf("invariant %s has no rule", inv.Name)
		}
		if !validPolicies[inv.Policy] {
			return fmt.Errorf("invariant %s has unknown policy %q", inv.Name, inv.Policy)
		}
	}
	for i, d := range v.Derived {
		if strings.TrimSpace(d.Path) == "" || strings.TrimSpace(d.Formula) == "" {
			return fmt.Errorf("derived stat %d requires path and formula", i)
		}
	}
	for i, vital := range v.Vitals {
		if strings.TrimSpace(vital.Path) == "" || strings.TrimSpace(vital.MaxFormula) == "" {
			return fmt.Errorf("vital %d requires path and max_formula", i)
		}
	}
	return nil
}

func (v *Vocabulary) buildIndex() {
	v.exact = make(map[string]*FieldDef)
	v.patterns = v.patterns[:0]
	for i := range v.Fields {
		f := &v.Fields[i]
		if strings.Contains(f.Path, "*") {
			v.patterns = append(v.patterns, f)
			continue
		}
		v.exact[strings.ToLower(f.Path)] = f
	}
}

// Field returns the declaration matching a path, trying exact matches first,
// then wildcard patterns.
func (v *Vocabulary) Field(path string) (*FieldDef, bool) {
	if v == nil {
		return nil, false
	}
	if v.exact == nil {
		v.buildIndex()
	}
	lower := strings.ToLower(path)
	if f, ok := v.exact[lower]; ok {
		return f, true
	}
	for _, f := range v.patterns {
		if matchPattern(f.Path, lower) {
			return f, true
		}
	}
	return nil, false
}

// ValidatePath reports whether the path is recognized by the vocabulary.
// Pool and track declarations also cover their current and max components.
func (v *Vocabulary) ValidatePath(path string) bool {
	if v == nil {
		return false
	}
	if _, ok := v.Field(path); ok {
		return true
	}
	if suffix := componentSuffix(path); suffix != "" {
		if f, ok := v.Field(strings.TrimSuffix(path, suffix)); ok {
			return f.Type == TypePool || f.Type == TypeTrack
		}
	}
	return false
}

func componentSuffix(path string) string {
	for _, s := range []string{".current", ".max"} {
		if strings.HasSuffix(path, s) {
			return s
		}
	}
	return ""
}

// matchPattern compares a wildcard pattern against a lowercase path,
// segment by segment. "*" matches exactly one segment.
func matchPattern(pattern, path string) bool {
	p := strings.Split(strings.ToLower(pattern), ".")
	q := strings.Split(path, ".")
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != "*" && p[i] != q[i] {
			return false
		}
	}
	return true
}

// ExpandPath resolves a wildcard path against a document, returning every
// concrete path whose wildcard segments exist. Concrete paths return
// themselves.
func ExpandPath(pattern string, doc map[string]any) []string {
	if !strings.Contains(pattern, "*") {
		return []string{pattern}
	}
	segments := strings.Split(pattern, ".")
	return expand(segments, doc, "")
}

func expand(segments []string, node any, prefix string) []string {
	if len(segments) == 0 {
		return []string{strings.TrimPrefix(prefix, ".")}
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	seg := segments[0]
	var out []string
	if seg == "*" {
		for key, child := range m {
			out = append(out, expand(segments[1:], child, prefix+"."+key)...)
		}
		return out
	}
	child, ok := m[seg]
	if !ok {
		return nil
	}
	return expand(segments[1:], child, prefix+"."+seg)
}
