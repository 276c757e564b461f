package invariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	eval, err := expr.New()
	require.NoError(t, err)
	return NewValidator(eval, nil)
}

func f(v float64) *float64 { return &v }

func TestValidatePoolAutoCorrect(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{
		"resources": map[string]any{
			"hp": map[string]any{"current": float64(25), "max": float64(20)},
		},
	}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{{
			Name:     "hp_within_pool",
			Path:     "resources.hp",
			Rule:     "current >= 0 && current <= max",
			Policy:   vocab.PolicyAutoCorrect,
			MinValue: f(0),
		}},
	}

	res := v.Validate(doc, voc, true)

	current, _ := doc.Number("resources.hp.current")
	assert.Equal(t, float64(20), current, "overflow clamps to max")
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "Fixed: resources.hp.current: 25 -> 20", res.Fixes[0])
	assert.Empty(t, res.Errors)
}

func TestValidatePoolFloor(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{
		"resources": map[string]any{
			"hp": map[string]any{"current": float64(-4), "max": float64(20)},
		},
	}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{{
			Name:     "hp_within_pool",
			Path:     "resources.hp",
			Rule:     "current >= 0 && current <= max",
			Policy:   vocab.PolicyAutoCorrect,
			MinValue: f(0),
		}},
	}

	res := v.Validate(doc, voc, true)

	current, _ := doc.Number("resources.hp.current")
	assert.Equal(t, float64(0), current)
	assert.Len(t, res.Fixes, 1)
}

func TestValidateWildcardSubjects(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{
		"attributes": map[string]any{
			"strength":  float64(45),
			"dexterity": float64(12),
		},
	}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{{
			Name:     "ability_bounds",
			Path:     "attributes.*",
			Rule:     "value >= min_value && value <= max_value",
			Policy:   vocab.PolicyAutoCorrect,
			MinValue: f(1),
			MaxValue: f(30),
		}},
	}

	res := v.Validate(doc, voc, true)

	str, _ := doc.Number("attributes.strength")
	dex, _ := doc.Number("attributes.dexterity")
	assert.Equal(t, float64(30), str, "out-of-bounds score clamps")
	assert.Equal(t, float64(12), dex, "in-bounds score untouched")
	assert.Len(t, res.Fixes, 1)
}

func TestValidatePolicies(t *testing.T) {
	doc := func() entity.Document {
		return entity.Document{
			"progression": map[string]any{"xp": float64(-100)},
		}
	}
	inv := vocab.Invariant{
		Name: "xp_floor",
		Path: "progression.xp",
		Rule: "value >= 0",
	}

	t.Run("warn narrates and leaves the value", func(t *testing.T) {
		v := newValidator(t)
		inv := inv
		inv.Policy = vocab.PolicyWarn
		d := doc()
		res := v.Validate(d, &vocab.Vocabulary{System: "t", Invariants: []vocab.Invariant{inv}}, true)

		xp, _ := d.Number("progression.xp")
		assert.Equal(t, float64(-100), xp)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], "xp_floor")
	})

	t.Run("reject reports an error without modifying", func(t *testing.T) {
		v := newValidator(t)
		inv := inv
		inv.Policy = vocab.PolicyReject
		d := doc()
		res := v.Validate(d, &vocab.Vocabulary{System: "t", Invariants: []vocab.Invariant{inv}}, true)

		xp, _ := d.Number("progression.xp")
		assert.Equal(t, float64(-100), xp)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "Invariant 'xp_floor' violated at progression.xp")
	})

	t.Run("auto_correct without bounds downgrades to warning", func(t *testing.T) {
		v := newValidator(t)
		inv := inv
		inv.Policy = vocab.PolicyAutoCorrect
		d := doc()
		res := v.Validate(d, &vocab.Vocabulary{System: "t", Invariants: []vocab.Invariant{inv}}, true)

		xp, _ := d.Number("progression.xp")
		assert.Equal(t, float64(-100), xp, "nothing to clamp against")
		assert.Len(t, res.Warnings, 1)
	})

	t.Run("auto_correct disabled downgrades to warning", func(t *testing.T) {
		v := newValidator(t)
		inv := inv
		inv.Policy = vocab.PolicyAutoCorrect
		inv.MinValue = f(0)
		d := doc()
		res := v.Validate(d, &vocab.Vocabulary{System: "t", Invariants: []vocab.Invariant{inv}}, false)

		xp, _ := d.Number("progression.xp")
		assert.Equal(t, float64(-100), xp)
		assert.Len(t, res.Warnings, 1)
		assert.Empty(t, res.Fixes)
	})
}

func TestValidateFailOpen(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{
		"attributes": map[string]any{"strength": float64(50)},
	}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{{
			Name:   "broken_rule",
			Path:   "attributes.strength",
			Rule:   "value <= undeclared_bound",
			Policy: vocab.PolicyReject,
		}},
	}

	res := v.Validate(doc, voc, true)

	assert.Empty(t, res.Errors, "an unevaluable rule is not a violation")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "could not evaluate")

	str, _ := doc.Number("attributes.strength")
	assert.Equal(t, float64(50), str)
}

func TestValidateAbsentSubjects(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{"identity": map[string]any{"name": "Mira"}}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{
			{Name: "hp", Path: "resources.hp", Rule: "current <= max", Policy: vocab.PolicyAutoCorrect},
			{Name: "skills", Path: "skills.*", Rule: "value >= 0", Policy: vocab.PolicyWarn},
		},
	}

	res := v.Validate(doc, voc, true)
	assert.True(t, res.Empty(), "absent subjects have nothing to validate: %+v", res)
}

func TestValidateCrossFieldRule(t *testing.T) {
	v := newValidator(t)
	doc := entity.Document{
		"attributes":  map[string]any{"constitution": float64(14)},
		"progression": map[string]any{"level": float64(2)},
		"resources": map[string]any{
			"hit_dice": map[string]any{"current": float64(5), "max": float64(5)},
		},
	}
	voc := &vocab.Vocabulary{
		System: "test",
		Invariants: []vocab.Invariant{{
			Name:   "hit_dice_per_level",
			Path:   "resources.hit_dice",
			Rule:   "max <= progression.level",
			Policy: vocab.PolicyWarn,
		}},
	}

	res := v.Validate(doc, voc, true)
	require.Len(t, res.Warnings, 1, "document maps are in rule scope")
}
