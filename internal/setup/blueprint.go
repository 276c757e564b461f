package setup

import "github.com/gmforge/sheetengine/pkg/sheet"

// DefaultBlueprint returns the built-in d20 fantasy sheet design. It is the
// degrade target when ruleset design fails and the ruleset for sessions
// created without a concept. Field paths line up with the built-in d20
// vocabulary.
func DefaultBlueprint() *sheet.Blueprint {
	return &sheet.Blueprint{
		System:  "d20 Fantasy",
		Summary: "Generic d20 fantasy adventuring",
		Categories: map[string][]sheet.BlueprintField{
			"identity": {
				{Name: "name", Concept: sheet.ConceptText},
				{Name: "ancestry", Concept: sheet.ConceptText},
				{Name: "class", Concept: sheet.ConceptText},
				{Name: "concept", Concept: sheet.ConceptText},
			},
			"attributes": {
				{Name: "strength", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "dexterity", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "constitution", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "intelligence", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "wisdom", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "charisma", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1), MaxVal: fptr(30)},
				{Name: "armor_class", Concept: sheet.ConceptStat, Default: float64(10), MinVal: fptr(1)},
				{Name: "initiative", Concept: sheet.ConceptStat, Default: float64(0)},
				{Name: "passive_perception", Concept: sheet.ConceptStat, Default: float64(10)},
				{Name: "hit_die", Concept: sheet.ConceptDie, Default: "d8"},
			},
			"skills": {
				{Name: "athletics", Concept: sheet.ConceptStat, Default: float64(0)},
				{Name: "stealth", Concept: sheet.ConceptStat, Default: float64(0)},
				{Name: "perception", Concept: sheet.ConceptStat, Default: float64(0)},
				{Name: "arcana", Concept: sheet.ConceptStat, Default: float64(0)},
				{Name: "persuasion", Concept: sheet.ConceptStat, Default: float64(0)},
			},
			"resources": {
				{Name: "hp", Concept: sheet.ConceptPool, MaxVal: fptr(10)},
				{Name: "hit_dice", Concept: sheet.ConceptPool, MaxVal: fptr(1)},
			},
			"features": {
				{Name: "abilities", Concept: sheet.ConceptList, ListColumns: []string{"name", "description"}},
			},
			"inventory": {
				{Name: "backpack", Concept: sheet.ConceptList, ListColumns: []string{"name", "qty"}},
			},
			"connections": {
				{Name: "bonds", Concept: sheet.ConceptList, ListColumns: []string{"name", "description"}},
			},
			"narrative": {
				{Name: "backstory", Concept: sheet.ConceptText},
				{Name: "goals", Concept: sheet.ConceptText},
			},
			"progression": {
				{Name: "level", Concept: sheet.ConceptStat, Default: float64(1), MinVal: fptr(1), MaxVal: fptr(20)},
				{Name: "xp", Concept: sheet.ConceptStat, Default: float64(0), MinVal: fptr(0)},
			},
		},
	}
}
