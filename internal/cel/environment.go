package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Variables visible to every array size policy.
const (
	VarSize     = "size"
	VarName     = "name"
	VarPath     = "path"
	VarType     = "type_name"
	VarIsStruct = "is_struct"
)

// NewEnvironment creates the CEL environment array size policies are compiled in.
func NewEnvironment() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.CustomTypeAdapter(NewTypeAdapter()),
		cel.Variable(VarSize, cel.IntType),
		cel.Variable(VarName, cel.StringType),
		cel.Variable(VarPath, cel.StringType),
		cel.Variable(VarType, cel.StringType),
		cel.Variable(VarIsStruct, cel.BoolType),
		cel.StdLib(),
		mathFunctions(),
		errorFunctions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func errorFunctions() cel.EnvOption {
	return cel.Lib(&errorLib{})
}

type errorLib struct{}

func (*errorLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("error",
			cel.Overload("error_string", []*cel.Type{cel.StringType}, cel.IntType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					msg, ok := val.(types.String)
					if !ok {
						return types.NewErr("expected string for error message")
					}
					return types.NewErr("%s", msg)
				}),
			),
		),
	}
}

func (*errorLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

// TypeAdapter extends the default adapter with Go's narrower integer types.
type TypeAdapter struct {
	types.Adapter
}

func NewTypeAdapter() *TypeAdapter {
	return &TypeAdapter{Adapter: types.DefaultTypeAdapter}
}

func (a *TypeAdapter) NativeToValue(value any) ref.Val {
	switch v := value.(type) {
	case int:
		return types.Int(v)
	case int8:
		return types.Int(v)
	case int16:
		return types.Int(v)
	case int32:
		return types.Int(v)
	case uint8:
		return types.Int(v)
	case uint16:
		return types.Int(v)
	case uint32:
		return types.Int(v)
	default:
		return a.Adapter.NativeToValue(value)
	}
}
