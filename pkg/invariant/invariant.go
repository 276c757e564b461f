// Package invariant enforces a vocabulary's declared rules against entity
// documents after every update. Violations are corrected or narrated, never
// thrown: persistence proceeds regardless.
package invariant

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/gmforge/sheetengine/pkg/entity"
	"github.com/gmforge/sheetengine/pkg/expr"
	"github.com/gmforge/sheetengine/pkg/vocab"
)

// Result carries the outcome of one validation pass.
type Result struct {
	Fixes    []string // auto-corrections applied, "Fixed: ..." strings
	Warnings []string // violations observed but left alone
	Errors   []string // reject-policy violations for the caller's error list
}

// Empty reports whether the pass found nothing to say.
func (r Result) Empty() bool {
	return len(r.Fixes) == 0 && len(r.Warnings) == 0 && len(r.Errors) == 0
}

// Validator evaluates invariant rules with the shared expression engine.
type Validator struct {
	eval   *expr.Evaluator
	logger *slog.Logger
}

// NewValidator wires an evaluator and a logger.
func NewValidator(eval *expr.Evaluator, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{eval: eval, logger: logger}
}

// Validate runs every invariant against the document, expanding wildcard
// subjects against what actually exists. With autoCorrect, auto_correct
// policies clamp values in place; otherwise they downgrade to warnings.
// Rule evaluation failures are warnings, never violations.
func (v *Validator) Validate(doc entity.Document, voc *vocab.Vocabulary, autoCorrect bool) Result {
	var res Result
	if voc == nil {
		return res
	}

	for _, inv := range voc.Invariants {
		for _, path := range vocab.ExpandPath(inv.Path, doc) {
			subject, exists := doc.Get(path)
			if !exists {
				continue
			}

			ctx := v.buildContext(doc, inv, subject)
			ok, err := v.eval.EvalBool(inv.Rule, ctx)
			if err != nil {
				v.logger.Warn("invariant rule failed to evaluate",
					"invariant", inv.Name, "path", path, "error", err)
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("Warning: could not evaluate invariant '%s' at %s", inv.Name, path))
				continue
			}
			if ok {
				continue
			}

			switch inv.Policy {
			case vocab.PolicyReject:
				res.Errors = append(res.Errors,
					fmt.Sprintf("Invariant '%s' violated at %s", inv.Name, path))
			case vocab.PolicyAutoCorrect:
				if !autoCorrect {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("Warning: invariant '%s' violated at %s", inv.Name, path))
					continue
				}
				if fixes := correct(doc, path, subject, inv); len(fixes) > 0 {
					res.Fixes = append(res.Fixes, fixes...)
				} else {
					res.Warnings = append(res.Warnings,
						fmt.Sprintf("Warning: invariant '%s' violated at %s", inv.Name, path))
				}
			default: // warn
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("Warning: invariant '%s' violated at %s", inv.Name, path))
			}
		}
	}
	return res
}

// buildContext binds the rule's scope: the subject as "value" (pools also
// bind "current" and "max"), declared bounds, and the document's top-level
// maps for cross-field rules.
func (v *Validator) buildContext(doc entity.Document, inv vocab.Invariant, subject any) map[string]any {
	ctx := make(map[string]any, len(doc)+5)
	for key, val := range doc {
		ctx[key] = expr.Normalize(val)
	}
	ctx["value"] = expr.Normalize(subject)
	if pool, ok := subject.(map[string]any); ok {
		if cur, has := entity.ToNumber(pool["current"]); has {
			ctx["current"] = expr.Normalize(cur)
		}
		if max, has := entity.ToNumber(pool["max"]); has {
			ctx["max"] = expr.Normalize(max)
		}
	}
	if inv.MinValue != nil {
		ctx["min_value"] = expr.Normalize(*inv.MinValue)
	}
	if inv.MaxValue != nil {
		ctx["max_value"] = expr.Normalize(*inv.MaxValue)
	}
	return ctx
}

// correct clamps the subject into its declared bounds. Pools clamp current
// into [min_value, max]; scalars clamp into [min_value, max_value]. Returns
// nil when the invariant declares nothing to clamp against.
func correct(doc entity.Document, path string, subject any, inv vocab.Invariant) []string {
	if pool, ok := subject.(map[string]any); ok {
		current, hasCur := entity.ToNumber(pool["current"])
		max, hasMax := entity.ToNumber(pool["max"])
		if !hasCur || !hasMax {
			return nil
		}
		lo := math.Inf(-1)
		if inv.MinValue != nil {
			lo = *inv.MinValue
		}
		clamped := math.Min(math.Max(current, lo), max)
		if clamped == current {
			return nil
		}
		pool["current"] = clamped
		return []string{fmt.Sprintf("Fixed: %s.current: %v -> %v", path, current, clamped)}
	}

	value, isNum := entity.ToNumber(subject)
	if !isNum || (inv.MinValue == nil && inv.MaxValue == nil) {
		return nil
	}
	clamped := value
	if inv.MinValue != nil {
		clamped = math.Max(clamped, *inv.MinValue)
	}
	if inv.MaxValue != nil {
		clamped = math.Min(clamped, *inv.MaxValue)
	}
	if clamped == value {
		return nil
	}
	doc.Set(path, clamped)
	return []string{fmt.Sprintf("Fixed: %s: %v -> %v", path, value, clamped)}
}
