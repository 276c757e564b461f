// Package expr provides the safe expression evaluator used for derived-stat
// formulas and invariant rules. Expressions are compiled with CEL and limited
// to arithmetic, comparisons, and the registered math helpers; there is no
// host or I/O access.
package expr

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// Evaluator wraps a CEL environment configured for sheet formulas.
// Context variables are declared dynamically per evaluation, so formulas may
// reference whatever the ruleset defines (dex_mod, level, resources.hp.max).
type Evaluator struct {
	env *cel.Env
}

// New builds the base CEL environment with the sheet math helpers.
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		ext.Strings(),

		cel.Function("floor",
			cel.Overload("floor_num",
				[]*cel.Type{cel.DynType},
				cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					f, ok := toFloat(val)
					if !ok {
						return types.NewErr("floor: non-numeric argument %v", val.Value())
					}
					return types.Int(int64(math.Floor(f)))
				}),
			),
		),
		cel.Function("ceil",
			cel.Overload("ceil_num",
				[]*cel.Type{cel.DynType},
				cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					f, ok := toFloat(val)
					if !ok {
						return types.NewErr("ceil: non-numeric argument %v", val.Value())
					}
					return types.Int(int64(math.Ceil(f)))
				}),
			),
		),
		cel.Function("abs",
			cel.Overload("abs_num",
				[]*cel.Type{cel.DynType},
				cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					f, ok := toFloat(val)
					if !ok {
						return types.NewErr("abs: non-numeric argument %v", val.Value())
					}
					return types.Int(int64(math.Abs(f)))
				}),
			),
		),
		cel.Function("min",
			cel.Overload("min_num_num",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					a, okA := toFloat(lhs)
					b, okB := toFloat(rhs)
					if !okA || !okB {
						return types.NewErr("min: non-numeric argument")
					}
					return types.Int(int64(math.Min(a, b)))
				}),
			),
		),
		cel.Function("max",
			cel.Overload("max_num_num",
				[]*cel.Type{cel.DynType, cel.DynType},
				cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					a, okA := toFloat(lhs)
					b, okB := toFloat(rhs)
					if !okA || !okB {
						return types.NewErr("max: non-numeric argument")
					}
					return types.Int(int64(math.Max(a, b)))
				}),
			),
		),
		cel.Function("clamp",
			cel.Overload("clamp_num_num_num",
				[]*cel.Type{cel.DynType, cel.DynType, cel.DynType},
				cel.IntType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					v, okV := toFloat(args[0])
					lo, okL := toFloat(args[1])
					hi, okH := toFloat(args[2])
					if !okV || !okL || !okH {
						return types.NewErr("clamp: non-numeric argument")
					}
					return types.Int(int64(math.Min(math.Max(v, lo), hi)))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// EvalNumber compiles and evaluates a formula against the context and coerces
// the result to float64. Callers treat any returned error as "formula failed"
// and substitute zero; nothing here is fatal.
func (ev *Evaluator) EvalNumber(formula string, ctx map[string]any) (float64, error) {
	out, err := ev.eval(formula, ctx)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("formula %q returned %T, want a number", formula, out)
	}
}

// EvalBool compiles and evaluates an invariant rule against the context.
func (ev *Evaluator) EvalBool(rule string, ctx map[string]any) (bool, error) {
	out, err := ev.eval(rule, ctx)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T, want bool", rule, out)
	}
	return b, nil
}

func (ev *Evaluator) eval(expression string, ctx map[string]any) (any, error) {
	// Extend the base env with declarations for the context's variables.
	// Rulesets invent their own names (str_mod, pb, resources), so nothing
	// is predeclared.
	opts := make([]cel.EnvOption, 0, len(ctx))
	for key := range ctx {
		opts = append(opts, cel.Variable(key, cel.DynType))
	}
	env := ev.env
	if len(opts) > 0 {
		extended, err := ev.env.Extend(opts...)
		if err != nil {
			return nil, fmt.Errorf("CEL env extension error: %w", err)
		}
		env = extended
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}

	out, _, err := prg.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("CEL eval error: %w", err)
	}
	return out.Value(), nil
}

// Normalize converts a decoded JSON value into the shape CEL arithmetic
// expects: integral floats become int64 so they combine with integer
// literals, maps and slices are normalized recursively.
func Normalize(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return int64(val)
		}
		return val
	case float32:
		return Normalize(float64(val))
	case int:
		return int64(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// NormalizeContext applies Normalize to every context entry.
func NormalizeContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = Normalize(v)
	}
	return out
}

func toFloat(val ref.Val) (float64, bool) {
	switch v := val.Value().(type) {
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
