package vocab

import (
	"strings"
	"testing"
)

const testYAML = `
system: Shadow Isles
fields:
  - path: attributes.grit
    type: number
    role: core
    min_value: 1
    max_value: 5
  - path: resources.blood
    type: pool
    role: resource
    min_value: 0
  - path: skills.*
    type: number
    role: capability
  - path: identity.name
    type: text
    role: core
invariants:
  - name: blood_within_pool
    path: resources.blood
    rule: current >= 0 && current <= max
    policy: auto_correct
    min_value: 0
derived:
  - path: attributes.menace
    formula: grit * 2
vitals:
  - path: resources.blood
    max_formula: grit + 4
`

func TestParse(t *testing.T) {
	v, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.System != "Shadow Isles" {
		t.Errorf("expected system name, got %q", v.System)
	}
	if len(v.Fields) != 4 {
		t.Errorf("expected 4 fields, got %d", len(v.Fields))
	}
	if len(v.Invariants) != 1 || v.Invariants[0].Policy != PolicyAutoCorrect {
		t.Errorf("invariant lost in parse: %+v", v.Invariants)
	}
	if len(v.Derived) != 1 || v.Derived[0].Formula != "grit * 2" {
		t.Errorf("derived stat lost in parse: %+v", v.Derived)
	}
	f, ok := v.Field("attributes.grit")
	if !ok {
		t.Fatal("expected attributes.grit declaration")
	}
	if f.MinValue == nil || *f.MinValue != 1 {
		t.Errorf("expected min 1, got %v", f.MinValue)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing system",
			yaml: "fields:\n  - path: a.b\n    type: number\n",
			want: "system name is required",
		},
		{
			name: "duplicate path",
			yaml: "system: X\nfields:\n  - path: a.b\n    type: number\n  - path: A.B\n    type: text\n",
			want: "duplicate field path",
		},
		{
			name: "unknown type",
			yaml: "system: X\nfields:\n  - path: a.b\n    type: gizmo\n",
			want: "unknown type",
		},
		{
			name: "unknown policy",
			yaml: "system: X\nfields:\n  - path: a.b\n    type: number\ninvariants:\n  - name: r\n    path: a.b\n    rule: value > 0\n    policy: explode\n",
			want: "unknown policy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	v, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"attributes.grit", true},
		{"Attributes.Grit", true},
		{"resources.blood", true},
		{"resources.blood.current", true}, // pool components are covered
		{"resources.blood.max", true},
		{"skills.stealth", true}, // wildcard
		{"skills.arcana", true},
		{"skills.arcana.rank", false}, // wildcard is one segment
		{"attributes.unknown", false},
		{"identity.name.current", false}, // text has no components
	}

	for _, tt := range tests {
		if got := v.ValidatePath(tt.path); got != tt.want {
			t.Errorf("ValidatePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	doc := map[string]any{
		"attributes": map[string]any{
			"strength":  float64(16),
			"dexterity": float64(12),
		},
		"resources": map[string]any{
			"hp": map[string]any{"current": float64(10), "max": float64(20)},
		},
	}

	got := ExpandPath("attributes.*", doc)
	if len(got) != 2 {
		t.Fatalf("expected 2 expansions, got %v", got)
	}
	found := map[string]bool{}
	for _, p := range got {
		found[p] = true
	}
	if !found["attributes.strength"] || !found["attributes.dexterity"] {
		t.Errorf("unexpected expansions: %v", got)
	}

	got = ExpandPath("resources.hp", doc)
	if len(got) != 1 || got[0] != "resources.hp" {
		t.Errorf("concrete paths expand to themselves, got %v", got)
	}

	got = ExpandPath("features.*", doc)
	if len(got) != 0 {
		t.Errorf("expected no expansions for missing category, got %v", got)
	}
}

func TestDefaultD20(t *testing.T) {
	v := DefaultD20()
	if err := v.Validate(); err != nil {
		t.Fatalf("builtin vocabulary must validate: %v", err)
	}
	if !v.ValidatePath("attributes.strength") {
		t.Error("expected strength to be declared")
	}
	if !v.ValidatePath("resources.hp.current") {
		t.Error("expected hp pool components to be covered")
	}
	if !v.ValidatePath("skills.athletics") {
		t.Error("expected skills wildcard")
	}
	if len(v.Invariants) == 0 || len(v.Vitals) == 0 {
		t.Error("expected builtin invariants and vitals")
	}
}
