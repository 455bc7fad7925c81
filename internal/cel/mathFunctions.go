package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// mathFunctions declares abs, min, max and clamp over integers.
func mathFunctions() cel.EnvOption {
	return cel.Lib(&mathLib{})
}

type mathLib struct{}

func intArgs(name string, vals ...ref.Val) ([]types.Int, ref.Val) {
	out := make([]types.Int, len(vals))
	for i, v := range vals {
		x, ok := v.(types.Int)
		if !ok {
			return nil, types.NewErr("arguments to %s must be integers, got %T", name, v)
		}
		out[i] = x
	}
	return out, nil
}

func (*mathLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("abs",
			cel.Overload("abs_int", []*cel.Type{cel.IntType}, cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					x, ok := val.(types.Int)
					if !ok {
						return types.NewErr("expected int argument to abs, got %T", val)
					}
					if x < 0 {
						return -x
					}
					return x
				}),
			),
		),
		cel.Function("min",
			cel.Overload("min_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					xs, err := intArgs("min", lhs, rhs)
					if err != nil {
						return err
					}
					return min(xs[0], xs[1])
				}),
			),
		),
		cel.Function("max",
			cel.Overload("max_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					xs, err := intArgs("max", lhs, rhs)
					if err != nil {
						return err
					}
					return max(xs[0], xs[1])
				}),
			),
		),
		cel.Function("clamp",
			cel.Overload("clamp_int_int_int", []*cel.Type{cel.IntType, cel.IntType, cel.IntType}, cel.IntType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					xs, err := intArgs("clamp", args...)
					if err != nil {
						return err
					}
					return min(max(xs[0], xs[1]), xs[2])
				}),
			),
		),
	}
}

func (*mathLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}
