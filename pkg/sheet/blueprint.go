package sheet

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Blueprint concepts. The LLM designs sheets in these loose terms; Hydrate
// maps them onto typed fields.
const (
	ConceptStat   = "stat"   // numeric attribute
	ConceptText   = "text"   // free text
	ConceptDie    = "die"    // die expression, e.g. "d8"
	ConceptPool   = "pool"   // spendable {current, max}
	ConceptTrack  = "track"  // filled segments
	ConceptList   = "list"   // table of rows
	ConceptToggle = "toggle" // boolean
)

// BlueprintField is the authoring-level description of one sheet field.
type BlueprintField struct {
	Name        string   `json:"name"`
	Concept     string   `json:"concept"`                // stat, text, die, pool, track, list, toggle
	Description string   `json:"description,omitempty"`  // designer note, not stored on the sheet
	Default     any      `json:"default,omitempty"`      // starting value hint
	MinVal      *float64 `json:"min_val,omitempty"`      // numeric lower bound hint
	MaxVal      *float64 `json:"max_val,omitempty"`      // numeric upper bound hint
	ListColumns []string `json:"list_columns,omitempty"` // lists only
}

// Blueprint is the transient sheet design an LLM produces during setup.
// Hydrate compiles it into a Spec; the blueprint itself is never stored.
type Blueprint struct {
	System     string                      `json:"system"`
	Summary    string                      `json:"summary,omitempty"`
	Categories map[string][]BlueprintField `json:"categories"`
}

var titleCaser = cases.Title(language.English)

// labelFor turns a snake_case field key into a display label.
func labelFor(key string) string {
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

// numericListColumns are column names Hydrate treats as numbers.
var numericListColumns = map[string]bool{
	"qty":    true,
	"weight": true,
	"cost":   true,
	"value":  true,
}

// Hydrate compiles a blueprint into a full sheet specification. Unknown
// concepts degrade to plain text atoms; nothing a designer writes is an
// error.
func Hydrate(bp *Blueprint) *Spec {
	spec := NewSpec(bp.System)
	for _, catName := range CategoryNames {
		fields, ok := bp.Categories[catName]
		if !ok {
			continue
		}
		cat := Category{}
		for _, bf := range fields {
			key := normalizeKey(bf.Name)
			if key == "" {
				continue
			}
			cat[key] = hydrateField(key, bf)
		}
		spec.setCategory(catName, cat)
	}
	return spec
}

func hydrateField(key string, bf BlueprintField) *Field {
	display := Display{Label: labelFor(key)}

	switch bf.Concept {
	case ConceptStat:
		display.Widget = "number"
		return &Field{
			Key:       key,
			Container: ContainerAtom,
			Data:      DataNumber,
			Default:   numericDefault(bf.Default, 10),
			Display:   display,
		}
	case ConceptDie:
		display.Widget = "die"
		return &Field{
			Key:       key,
			Container: ContainerAtom,
			Data:      DataString,
			Default:   stringDefault(bf.Default, "d6"),
			Display:   display,
		}
	case ConceptToggle:
		display.Widget = "toggle"
		def := false
		if b, ok := bf.Default.(bool); ok {
			def = b
		}
		return &Field{
			Key:       key,
			Container: ContainerAtom,
			Data:      DataBoolean,
			Default:   def,
			Display:   display,
		}
	case ConceptPool:
		display.Widget = "pool"
		// Pools start full: current and max share the declared maximum.
		max := numericDefault(bf.Default, 10)
		if bf.MaxVal != nil {
			max = *bf.MaxVal
		}
		return &Field{
			Key:       key,
			Container: ContainerMolecule,
			Components: map[string]*Field{
				"current": {Key: "current", Container: ContainerAtom, Data: DataNumber, Default: max},
				"max":     {Key: "max", Container: ContainerAtom, Data: DataNumber, Default: max},
			},
			Display: display,
		}
	case ConceptTrack:
		display.Widget = "track"
		// Tracks share the pool shape: current counts filled segments out of
		// max, starting empty.
		max := float64(3)
		if bf.MaxVal != nil {
			max = *bf.MaxVal
		}
		return &Field{
			Key:       key,
			Container: ContainerMolecule,
			Components: map[string]*Field{
				"current": {Key: "current", Container: ContainerAtom, Data: DataNumber, Default: float64(0)},
				"max":     {Key: "max", Container: ContainerAtom, Data: DataNumber, Default: max},
			},
			Display: display,
		}
	case ConceptList:
		display.Widget = "table"
		columns := bf.ListColumns
		if len(columns) == 0 {
			columns = []string{"name", "description"}
		}
		items := make(map[string]*Field, len(columns))
		for _, col := range columns {
			colKey := normalizeKey(col)
			if colKey == "" {
				continue
			}
			if numericListColumns[colKey] {
				items[colKey] = &Field{Key: colKey, Container: ContainerAtom, Data: DataNumber, Default: float64(1)}
			} else {
				items[colKey] = &Field{Key: colKey, Container: ContainerAtom, Data: DataString, Default: ""}
			}
		}
		return &Field{
			Key:       key,
			Container: ContainerList,
			Items:     items,
			Display:   display,
		}
	default:
		// text, and anything the designer invented
		display.Widget = "text"
		return &Field{
			Key:       key,
			Container: ContainerAtom,
			Data:      DataString,
			Default:   stringDefault(bf.Default, ""),
			Display:   display,
		}
	}
}

// numericDefault coerces a design hint to a number, digging digits out of
// strings like "10" or "starts at 8".
func numericDefault(v any, fallback float64) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		digits := strings.Builder{}
		for _, r := range val {
			if r >= '0' && r <= '9' || (r == '-' && digits.Len() == 0) {
				digits.WriteRune(r)
			}
		}
		if n, err := strconv.ParseFloat(digits.String(), 64); err == nil {
			return n
		}
	}
	return fallback
}

func stringDefault(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// normalizeKey lowercases and snake_cases a designer-provided name.
func normalizeKey(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	var b strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "_")
}
