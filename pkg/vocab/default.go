package vocab

// f is a literal-pointer helper for the built-in vocabulary.
func f(v float64) *float64 { return &v }

const abilityRule = "value >= min_value && value <= max_value"

// DefaultD20 returns the built-in d20 fantasy vocabulary. It is the degrade
// target when ruleset design fails, and the reference ruleset for tests.
func DefaultD20() *Vocabulary {
	v := &Vocabulary{
		System: "d20 Fantasy",
		Fields: []FieldDef{
			{Path: "identity.name", Type: TypeText, Role: RoleCore},
			{Path: "identity.ancestry", Type: TypeText, Role: RoleCore},
			{Path: "identity.class", Type: TypeText, Role: RoleCore},
			{Path: "attributes.strength", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.dexterity", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.constitution", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.intelligence", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.wisdom", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.charisma", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(30)},
			{Path: "attributes.armor_class", Type: TypeNumber, Role: RoleCore, MinValue: f(1)},
			{Path: "attributes.initiative", Type: TypeNumber, Role: RoleCore},
			{Path: "attributes.hit_die", Type: TypeDie, Role: RoleCore},
			{Path: "skills.*", Type: TypeNumber, Role: RoleCapability},
			{Path: "resources.hp", Type: TypePool, Role: RoleResource, MinValue: f(0)},
			{Path: "resources.hit_dice", Type: TypePool, Role: RoleResource, MinValue: f(0)},
			{Path: "resources.spell_slots", Type: TypePool, Role: RoleResource, MinValue: f(0)},
			{Path: "features.*", Type: TypeText, Role: RoleCapability},
			{Path: "progression.level", Type: TypeNumber, Role: RoleCore, MinValue: f(1), MaxValue: f(20)},
			{Path: "progression.xp", Type: TypeNumber, Role: RoleCore, MinValue: f(0)},
			{Path: "conditions", Type: TypeList, Role: RoleStatus},
		},
		Invariants: []Invariant{
			// Ability scores are enumerated rather than matched with
			// attributes.*: the wildcard would also catch hit_die (a die
			// string) and initiative (legitimately negative).
			{Name: "strength_bounds", Path: "attributes.strength", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{Name: "dexterity_bounds", Path: "attributes.dexterity", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{Name: "constitution_bounds", Path: "attributes.constitution", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{Name: "intelligence_bounds", Path: "attributes.intelligence", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{Name: "wisdom_bounds", Path: "attributes.wisdom", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{Name: "charisma_bounds", Path: "attributes.charisma", Rule: abilityRule, Policy: PolicyAutoCorrect, MinValue: f(1), MaxValue: f(30)},
			{
				Name:     "hp_within_pool",
				Path:     "resources.hp",
				Rule:     "current >= 0 && current <= max",
				Policy:   PolicyAutoCorrect,
				MinValue: f(0),
			},
			{
				Name:     "level_bounds",
				Path:     "progression.level",
				Rule:     "value >= min_value && value <= max_value",
				Policy:   PolicyAutoCorrect,
				MinValue: f(1),
				MaxValue: f(20),
			},
			{
				Name:   "xp_floor",
				Path:   "progression.xp",
				Rule:   "value >= 0",
				Policy: PolicyWarn,
			},
		},
		Derived: []DerivedStat{
			{Path: "attributes.initiative", Formula: "dex_mod"},
			{Path: "attributes.passive_perception", Formula: "10 + wis_mod"},
		},
		Vitals: []Vital{
			{Path: "resources.hp", MaxFormula: "10 + con_mod + (level - 1) * (6 + con_mod)"},
		},
	}
	v.buildIndex()
	return v
}
