package sheet

import (
	"fmt"
	"sort"
)

// Kind tags a schema node. Go has no sum types; a kind enum with explicit
// switches is the runtime rendering of the type tree.
type Kind int

const (
	KindInt Kind = iota
	KindString
	KindBool
	KindRecord
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	}
	return "unknown"
}

// Schema is a compiled runtime type. Record nodes carry Fields, list nodes
// carry Elem; leaf nodes carry neither.
type Schema struct {
	Kind   Kind
	Fields map[string]*Schema // records
	Elem   *Schema            // lists
}

// Compile turns a sheet specification into its runtime schema: a record over
// the ten categories, every declared field required.
func Compile(spec *Spec) *Schema {
	root := &Schema{Kind: KindRecord, Fields: make(map[string]*Schema, len(CategoryNames))}
	for _, name := range CategoryNames {
		cat, _ := spec.Category(name)
		catSchema := &Schema{Kind: KindRecord, Fields: make(map[string]*Schema, len(cat))}
		for key, f := range cat {
			catSchema.Fields[key] = compileField(f)
		}
		root.Fields[name] = catSchema
	}
	return root
}

func compileField(f *Field) *Schema {
	switch f.Container {
	case ContainerMolecule:
		rec := &Schema{Kind: KindRecord, Fields: make(map[string]*Schema, len(f.Components))}
		for name, comp := range f.Components {
			rec.Fields[name] = compileAtom(comp)
		}
		return rec
	case ContainerList:
		row := &Schema{Kind: KindRecord, Fields: make(map[string]*Schema, len(f.Items))}
		for name, col := range f.Items {
			row.Fields[name] = compileAtom(col)
		}
		return &Schema{Kind: KindList, Elem: row}
	default:
		return compileAtom(f)
	}
}

func compileAtom(f *Field) *Schema {
	switch f.Data {
	case DataNumber, DataDerived:
		return &Schema{Kind: KindInt}
	case DataBoolean:
		return &Schema{Kind: KindBool}
	default:
		return &Schema{Kind: KindString}
	}
}

// Validate structurally checks a decoded JSON value against the schema.
// Every declared record field is required; extra keys are tolerated so a
// generous generator does not fail a sheet. JSON numbers arrive as float64,
// so number nodes accept any numeric value.
func (s *Schema) Validate(value any) error {
	return s.validate("", value)
}

func (s *Schema) validate(path string, value any) error {
	switch s.Kind {
	case KindInt:
		switch value.(type) {
		case float64, int, int64, uint64, float32:
			return nil
		}
		return fmt.Errorf("%s: expected number, got %T", at(path), value)
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string, got %T", at(path), value)
		}
		return nil
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %T", at(path), value)
		}
		return nil
	case KindRecord:
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object, got %T", at(path), value)
		}
		for _, name := range sortedFieldNames(s.Fields) {
			child, present := m[name]
			if !present {
				return fmt.Errorf("%s: missing required field %q", at(path), name)
			}
			if err := s.Fields[name].validate(join(path, name), child); err != nil {
				return err
			}
		}
		return nil
	case KindList:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", at(path), value)
		}
		for i, item := range items {
			if err := s.Elem.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%s: unknown schema kind", at(path))
}

// Skeleton builds the zero-valued shape of the schema: 0, "", false, empty
// lists. Defaults live on the Spec (see Spec.Scaffold); the skeleton is the
// structural floor.
func (s *Schema) Skeleton() any {
	switch s.Kind {
	case KindInt:
		return 0
	case KindString:
		return ""
	case KindBool:
		return false
	case KindRecord:
		m := make(map[string]any, len(s.Fields))
		for name, child := range s.Fields {
			m[name] = child.Skeleton()
		}
		return m
	case KindList:
		return []any{}
	}
	return nil
}

// JSONSchema emits a draft-07 JSON Schema for the compiled type, every record
// field required. This is the output contract handed to the LLM for
// structured generation.
func (s *Schema) JSONSchema() map[string]any {
	switch s.Kind {
	case KindInt:
		return map[string]any{"type": "integer"}
	case KindString:
		return map[string]any{"type": "string"}
	case KindBool:
		return map[string]any{"type": "boolean"}
	case KindRecord:
		properties := make(map[string]any, len(s.Fields))
		required := sortedFieldNames(s.Fields)
		for name, child := range s.Fields {
			properties[name] = child.JSONSchema()
		}
		return map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		}
	case KindList:
		return map[string]any{
			"type":  "array",
			"items": s.Elem.JSONSchema(),
		}
	}
	return map[string]any{}
}

func sortedFieldNames(fields map[string]*Schema) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func at(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
