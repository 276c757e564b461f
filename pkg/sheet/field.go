// Package sheet defines the sheet specification model: the typed field tree
// an LLM-designed ruleset compiles into, and the runtime schema used to
// validate generated entities.
package sheet

import "fmt"

// Container kinds for a field.
const (
	ContainerAtom     = "atom"     // single value
	ContainerMolecule = "molecule" // named components, e.g. {current, max}
	ContainerList     = "list"     // rows sharing an item schema
)

// Data kinds for atom fields.
const (
	DataString  = "string"
	DataNumber  = "number"
	DataBoolean = "boolean"
	DataDerived = "derived" // numeric, recomputed from Formula
)

// Display carries rendering hints. The engine never renders; these pass
// through to whatever client does.
type Display struct {
	Widget string `json:"widget,omitempty"` // e.g. "number", "die", "pool", "table"
	Label  string `json:"label,omitempty"`  // human-readable label
	Icon   string `json:"icon,omitempty"`   // optional icon name
	Hidden bool   `json:"hidden,omitempty"` // omit from player-facing views
}

// Field is one descriptor in a sheet specification. Atoms hold a single
// value, molecules hold named components, lists hold rows of a shared item
// schema.
type Field struct {
	Key        string            `json:"key"`
	Container  string            `json:"container"`            // atom, molecule, list
	Data       string            `json:"data,omitempty"`       // atoms only
	Default    any               `json:"default,omitempty"`    // atoms only
	Formula    string            `json:"formula,omitempty"`    // derived atoms only
	Components map[string]*Field `json:"components,omitempty"` // molecules only
	Items      map[string]*Field `json:"items,omitempty"`      // lists only: column name -> atom
	Display    Display           `json:"display,omitempty"`
}

// Validate checks structural integrity. The compiler always emits valid
// fields; hand-built fields (property definitions, tests) go through here.
func (f *Field) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("field has no key")
	}
	switch f.Container {
	case ContainerAtom:
		switch f.Data {
		case DataString, DataNumber, DataBoolean:
		case DataDerived:
			if f.Formula == "" {
				return fmt.Errorf("field %q: derived atom requires a formula", f.Key)
			}
		default:
			return fmt.Errorf("field %q: unknown data kind %q", f.Key, f.Data)
		}
	case ContainerMolecule:
		if len(f.Components) == 0 {
			return fmt.Errorf("field %q: molecule requires components", f.Key)
		}
		for name, comp := range f.Components {
			if comp == nil {
				return fmt.Errorf("field %q: component %q is nil", f.Key, name)
			}
			if comp.Container != ContainerAtom {
				return fmt.Errorf("field %q: component %q must be an atom", f.Key, name)
			}
			if err := comp.Validate(); err != nil {
				return err
			}
		}
	case ContainerList:
		if len(f.Items) == 0 {
			return fmt.Errorf("field %q: list requires an item schema", f.Key)
		}
		for name, col := range f.Items {
			if col == nil {
				return fmt.Errorf("field %q: item column %q is nil", f.Key, name)
			}
			if col.Container != ContainerAtom {
				return fmt.Errorf("field %q: item column %q must be an atom", f.Key, name)
			}
			if err := col.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("field %q: unknown container %q", f.Key, f.Container)
	}
	return nil
}

// Category is a set of fields keyed by field key. Order is irrelevant.
type Category map[string]*Field

// CategoryNames lists the ten sheet categories in canonical order.
var CategoryNames = []string{
	"meta",
	"identity",
	"attributes",
	"skills",
	"resources",
	"features",
	"inventory",
	"connections",
	"narrative",
	"progression",
}

// Spec is the complete sheet specification for one ruleset: exactly ten
// categories, fixed after setup except through property-definition tooling.
type Spec struct {
	System      string   `json:"system"`      // ruleset name, e.g. "Dungeons & Dragons 5e"
	Meta        Category `json:"meta"`        // bookkeeping: version, generation hints
	Identity    Category `json:"identity"`    // name, ancestry, concept
	Attributes  Category `json:"attributes"`  // core stats
	Skills      Category `json:"skills"`      // trained capabilities
	Resources   Category `json:"resources"`   // spendable pools: hp, mana, luck
	Features    Category `json:"features"`    // talents, edges, class features
	Inventory   Category `json:"inventory"`   // carried items
	Connections Category `json:"connections"` // bonds, contacts, factions
	Narrative   Category `json:"narrative"`   // backstory, goals, secrets
	Progression Category `json:"progression"` // level, xp, advancement tracks
}

// NewSpec returns a Spec with every category initialized and empty.
func NewSpec(system string) *Spec {
	return &Spec{
		System:      system,
		Meta:        Category{},
		Identity:    Category{},
		Attributes:  Category{},
		Skills:      Category{},
		Resources:   Category{},
		Features:    Category{},
		Inventory:   Category{},
		Connections: Category{},
		Narrative:   Category{},
		Progression: Category{},
	}
}

// Category returns the named category, or false for an unknown name.
func (s *Spec) Category(name string) (Category, bool) {
	switch name {
	case "meta":
		return s.Meta, true
	case "identity":
		return s.Identity, true
	case "attributes":
		return s.Attributes, true
	case "skills":
		return s.Skills, true
	case "resources":
		return s.Resources, true
	case "features":
		return s.Features, true
	case "inventory":
		return s.Inventory, true
	case "connections":
		return s.Connections, true
	case "narrative":
		return s.Narrative, true
	case "progression":
		return s.Progression, true
	}
	return nil, false
}

func (s *Spec) setCategory(name string, c Category) {
	switch name {
	case "meta":
		s.Meta = c
	case "identity":
		s.Identity = c
	case "attributes":
		s.Attributes = c
	case "skills":
		s.Skills = c
	case "resources":
		s.Resources = c
	case "features":
		s.Features = c
	case "inventory":
		s.Inventory = c
	case "connections":
		s.Connections = c
	case "narrative":
		s.Narrative = c
	case "progression":
		s.Progression = c
	}
}

// Validate checks every field in every category.
func (s *Spec) Validate() error {
	for _, name := range CategoryNames {
		cat, _ := s.Category(name)
		for key, f := range cat {
			if f == nil {
				return fmt.Errorf("category %q: field %q is nil", name, key)
			}
			if f.Key == "" {
				f.Key = key
			}
			if err := f.Validate(); err != nil {
				return fmt.Errorf("category %q: %w", name, err)
			}
		}
	}
	return nil
}

// Scaffold builds a default-valued document matching the spec: atom defaults,
// pool components at their declared defaults, lists empty. Used when
// character generation fails and the engine degrades to a blank sheet.
func (s *Spec) Scaffold() map[string]any {
	doc := make(map[string]any, len(CategoryNames))
	for _, name := range CategoryNames {
		cat, _ := s.Category(name)
		catDoc := make(map[string]any, len(cat))
		for key, f := range cat {
			catDoc[key] = fieldScaffold(f)
		}
		doc[name] = catDoc
	}
	return doc
}

func fieldScaffold(f *Field) any {
	switch f.Container {
	case ContainerMolecule:
		m := make(map[string]any, len(f.Components))
		for name, comp := range f.Components {
			m[name] = atomScaffold(comp)
		}
		return m
	case ContainerList:
		return []any{}
	default:
		return atomScaffold(f)
	}
}

func atomScaffold(f *Field) any {
	if f.Default != nil {
		return f.Default
	}
	switch f.Data {
	case DataNumber, DataDerived:
		return 0
	case DataBoolean:
		return false
	default:
		return ""
	}
}
