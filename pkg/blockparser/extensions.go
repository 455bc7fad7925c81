package blockparser

import (
	"context"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// FieldInfo describes a custom or var field occurrence.
type FieldInfo struct {
	TypeName  string
	Name      string
	Path      string
	ByteOrder bitio.ByteOrder
	BitOrder  bitio.BitOrder
	IsArray   bool
}

// CustomTypeDecl is checked once per declaration while compiling.
type CustomTypeDecl struct {
	FieldInfo
	HasExtra bool
	// ExtraValue is the literal extra value, zero when the extra is an expression.
	ExtraValue  int32
	ExtraIsExpr bool
	WholeStream bool
}

// FieldRead is handed to processors reading a field.
type FieldRead struct {
	FieldInfo
	Extra int32
	// ArrayLength is the element count of arrays, -1 for whole-stream arrays.
	ArrayLength int
}

// FieldWrite is handed to processors writing a field.
type FieldWrite struct {
	FieldRead
	Value field.Field
}

// NumericValues gives read only access to the numeric fields processed so far.
type NumericValues interface {
	// Value returns the value of the field with the given full path, ignoring case.
	Value(path string) (int32, bool)
}

// CustomFieldType reads and writes fields whose type name is not built in.
// Implementations must be safe for concurrent use.
type CustomFieldType interface {
	Types() []string
	IsAllowed(decl CustomTypeDecl) bool
	ReadCustomField(ctx context.Context, r *bitio.Reader, req FieldRead) (field.Field, error)
	WriteCustomField(ctx context.Context, w *bitio.Writer, req FieldWrite) error
}

// VarFieldProcessor reads and writes var fields. The returned field must carry the declared name.
type VarFieldProcessor interface {
	ReadVarField(ctx context.Context, r *bitio.Reader, req FieldRead, values NumericValues) (field.Field, error)
	WriteVarField(ctx context.Context, w *bitio.Writer, req FieldWrite, values NumericValues) error
}

// ExternalValueProvider supplies $name values, and values for fields that were never read.
type ExternalValueProvider interface {
	ExternalValue(ctx context.Context, name string, values NumericValues) (int32, error)
}

// ExternalValueFunc adapts a function to ExternalValueProvider.
type ExternalValueFunc func(ctx context.Context, name string, values NumericValues) (int32, error)

func (f ExternalValueFunc) ExternalValue(ctx context.Context, name string, values NumericValues) (int32, error) {
	return f(ctx, name, values)
}

// ArraySizeRequest describes an array about to be read.
type ArraySizeRequest struct {
	Name     string
	Path     string
	TypeName string
	Struct   bool
	// Count is the computed count, -1 for whole-stream arrays.
	Count int
}

// ArraySizeController may veto an array size by returning an error, or change it.
// Returning -1 reads until the data runs out.
type ArraySizeController interface {
	ControlArraySize(ctx context.Context, req ArraySizeRequest) (int, error)
}

// ArraySizeFunc adapts a function to ArraySizeController.
type ArraySizeFunc func(ctx context.Context, req ArraySizeRequest) (int, error)

func (f ArraySizeFunc) ControlArraySize(ctx context.Context, req ArraySizeRequest) (int, error) {
	return f(ctx, req)
}
