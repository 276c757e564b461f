// Package derive recomputes formula-driven stats after every update: ability
// modifiers feed derived stats in declaration order, then vital pools get
// their maximums re-evaluated and their currents clamped.
package derive

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

// Engine evaluates a vocabulary's derived stats and vitals against entity
// documents. Formula failures never stop a recalculation.
type Engine struct {
	eval   *expr.Evaluator
	logger *slog.Logger
}

// NewEngine wires an evaluator and a logger.
func NewEngine(eval *expr.Evaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{eval: eval, logger: logger}
}

// abilityAliases maps the canonical d20 ability names to their short forms,
// so formulas can say dex_mod whether the sheet stores "dexterity" or "dex".
// Rulesets outside the d20 family simply never hit these keys.
var abilityAliases = map[string]string{
	"strength":     "str",
	"dexterity":    "dex",
	"constitution": "con",
	"intelligence": "int",
	"wisdom":       "wis",
	"charisma":     "cha",
}

// CanonicalAbility expands a short d20 ability name ("str") to its canonical
// form ("strength"). Canonical and unrecognized names pass through.
func CanonicalAbility(name string) string {
	for canonical, short := range abilityAliases {
		if name == short {
			return canonical
		}
	}
	return name
}

// Mod is the d20 ability modifier: floor((score - 10) / 2).
func Mod(score float64) float64 {
	return math.Floor((score - 10) / 2)
}

// ProficiencyBonus is the d20 progression bonus: 2 + floor((level - 1) / 4).
func ProficiencyBonus(level float64) float64 {
	return 2 + math.Floor((level-1)/4)
}

// Recalculate evaluates the vocabulary's derived stats in declaration order,
// then its vitals, mutating the document. It returns the change log; formula
// failures append warnings and yield zero rather than erroring.
func (e *Engine) Recalculate(doc entity.Document, v *vocab.Vocabulary) []string {
	if v == nil || (len(v.Derived) == 0 && len(v.Vitals) == 0) {
		return nil
	}

	ctx := e.buildContext(doc)
	var changes []string

	for _, d := range v.Derived {
		val, err := e.eval.EvalNumber(d.Formula, ctx)
		if err != nil {
			e.logger.Warn("derived formula failed", "path", d.Path, "formula", d.Formula, "error", err)
			changes = append(changes, fmt.Sprintf("Warning: could not compute %s, using 0", d.Path))
			val = 0
		}
		changes = append(changes, writeNumber(doc, d.Path, val)...)
		// Later formulas see this result under the path's last segment.
		ctx[lastSegment(d.Path)] = expr.Normalize(val)
	}

	for _, vital := range v.Vitals {
		max, err := e.eval.EvalNumber(vital.MaxFormula, ctx)
		if err != nil {
			e.logger.Warn("vital formula failed", "path", vital.Path, "formula", vital.MaxFormula, "error", err)
			changes = append(changes, fmt.Sprintf("Warning: could not compute %s max", vital.Path))
			continue
		}
		changes = append(changes, applyVital(doc, vital.Path, max)...)
	}

	return changes
}

// buildContext flattens the document into formula scope: every top-level
// category, plus flat ability scores with their _mod companions, level, and
// pb (proficiency bonus).
func (e *Engine) buildContext(doc entity.Document) map[string]any {
	ctx := make(map[string]any, len(doc)+16)
	for key, val := range doc {
		ctx[key] = expr.Normalize(val)
	}

	abilities, ok := doc.Map("abilities")
	if !ok {
		abilities, _ = doc.Map("attributes")
	}
	for name, raw := range abilities {
		score, isNum := entity.ToNumber(raw)
		if !isNum {
			continue
		}
		ctx[name] = expr.Normalize(score)
		ctx[name+"_mod"] = expr.Normalize(Mod(score))
		if short, aliased := abilityAliases[name]; aliased {
			ctx[short] = ctx[name]
			ctx[short+"_mod"] = ctx[name+"_mod"]
		}
	}

	level, ok := doc.Number("progression.level")
	if !ok || level < 1 {
		level = 1
	}
	ctx["level"] = expr.Normalize(level)
	ctx["pb"] = expr.Normalize(ProficiencyBonus(level))

	return ctx
}

// writeNumber stores a computed value and logs the transition.
func writeNumber(doc entity.Document, path string, val float64) []string {
	old, existed := doc.Get(path)
	doc.Set(path, val)
	if !existed {
		return []string{fmt.Sprintf("Set %s = %v", path, val)}
	}
	if oldNum, isNum := entity.ToNumber(old); isNum && oldNum == val {
		return nil
	}
	return []string{fmt.Sprintf("%s: %v -> %v", path, old, val)}
}

// applyVital writes a recomputed pool maximum. Bare scalars upgrade to the
// {current, max} shape, and current is clamped to the new max.
func applyVital(doc entity.Document, path string, max float64) []string {
	var changes []string

	raw, exists := doc.Get(path)
	if !exists {
		doc.Set(path, map[string]any{"current": max, "max": max})
		return []string{fmt.Sprintf("Set %s = %v/%v", path, max, max)}
	}

	pool, isMap := raw.(map[string]any)
	if !isMap {
		current := max
		if n, isNum := entity.ToNumber(raw); isNum {
			current = math.Min(n, max)
		}
		doc.Set(path, map[string]any{"current": current, "max": max})
		return []string{fmt.Sprintf("%s: %v -> %v/%v", path, raw, current, max)}
	}

	oldMax, hadMax := entity.ToNumber(pool["max"])
	if !hadMax || oldMax != max {
		pool["max"] = max
		if hadMax {
			changes = append(changes, fmt.Sprintf("%s.max: %v -> %v", path, oldMax, max))
		} else {
			changes = append(changes, fmt.Sprintf("Set %s.max = %v", path, max))
		}
	}

	if current, hasCur := entity.ToNumber(pool["current"]); hasCur && current > max {
		pool["current"] = max
		changes = append(changes, fmt.Sprintf("%s.current: %v -> %v", path, current, max))
	} else if !hasCur {
		pool["current"] = max
	}

	return changes
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return path
}
