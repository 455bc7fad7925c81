// Package field holds the typed tree produced by parsing a block schema.
//
// Trees are built once by a single parse and are not mutated afterwards,
// so a finished tree may be read from many goroutines.
package field

// Field is any node of a parsed tree.
type Field interface {
	// Name is the declared name, lower cased, or "" for anonymous fields.
	Name() string
	// Path is the dot separated name including every named enclosing structure.
	Path() string
	Kind() Kind
}

// Numeric is implemented by scalar fields that have an integer projection.
type Numeric interface {
	Field
	AsInt64() int64
	AsFloat64() float64
}

// ArrayField is implemented by array nodes.
type ArrayField interface {
	Field
	Len() int
}

type meta struct {
	name string
	path string
}

func (m meta) Name() string { return m.name }
func (m meta) Path() string { return m.path }

// Bool is a single boolean byte.
type Bool struct {
	meta
	value bool
}

func NewBool(name, path string, v bool) *Bool {
	return &Bool{meta: meta{name, path}, value: v}
}

func (f *Bool) Kind() Kind  { return KindBool }
func (f *Bool) Value() bool { return f.value }

func (f *Bool) AsInt64() int64 {
	if f.value {
		return 1
	}
	return 0
}

func (f *Bool) AsFloat64() float64 { return float64(f.AsInt64()) }

// Int holds every integer kind, including bit fields and computed val fields.
type Int struct {
	meta
	kind  Kind
	bits  int
	value int64
}

// NewInt creates an integer field. bits is the width of a bit field and is ignored for other kinds.
func NewInt(name, path string, kind Kind, bits int, v int64) *Int {
	return &Int{meta: meta{name, path}, kind: kind, bits: bits, value: v}
}

func (f *Int) Kind() Kind         { return f.kind }
func (f *Int) Bits() int          { return f.bits }
func (f *Int) Value() int64       { return f.value }
func (f *Int) AsInt64() int64     { return f.value }
func (f *Int) AsFloat64() float64 { return float64(f.value) }

// Float holds float and double fields.
type Float struct {
	meta
	kind  Kind
	value float64
}

func NewFloat(name, path string, kind Kind, v float64) *Float {
	return &Float{meta: meta{name, path}, kind: kind, value: v}
}

func (f *Float) Kind() Kind         { return f.kind }
func (f *Float) Value() float64     { return f.value }
func (f *Float) AsInt64() int64     { return int64(f.value) }
func (f *Float) AsFloat64() float64 { return f.value }

// String is a length prefixed string, possibly null.
type String struct {
	meta
	value string
	null  bool
}

func NewString(name, path string, v string, null bool) *String {
	return &String{meta: meta{name, path}, value: v, null: null}
}

func (f *String) Kind() Kind    { return KindString }
func (f *String) Value() string { return f.value }
func (f *String) IsNull() bool  { return f.null }

// BoolArray is an array of bool fields.
type BoolArray struct {
	meta
	values []bool
}

func NewBoolArray(name, path string, v []bool) *BoolArray {
	return &BoolArray{meta: meta{name, path}, values: v}
}

func (f *BoolArray) Kind() Kind     { return KindBool }
func (f *BoolArray) Len() int       { return len(f.values) }
func (f *BoolArray) Values() []bool { return f.values }

// IntArray is an array of one integer kind.
type IntArray struct {
	meta
	kind   Kind
	bits   int
	values []int64
}

func NewIntArray(name, path string, kind Kind, bits int, v []int64) *IntArray {
	return &IntArray{meta: meta{name, path}, kind: kind, bits: bits, values: v}
}

func (f *IntArray) Kind() Kind      { return f.kind }
func (f *IntArray) Bits() int       { return f.bits }
func (f *IntArray) Len() int        { return len(f.values) }
func (f *IntArray) Values() []int64 { return f.values }

// FloatArray is an array of float or double values.
type FloatArray struct {
	meta
	kind   Kind
	values []float64
}

func NewFloatArray(name, path string, kind Kind, v []float64) *FloatArray {
	return &FloatArray{meta: meta{name, path}, kind: kind, values: v}
}

func (f *FloatArray) Kind() Kind        { return f.kind }
func (f *FloatArray) Len() int          { return len(f.values) }
func (f *FloatArray) Values() []float64 { return f.values }

// StringArray is an array of strings. nulls, when not nil, flags null elements.
type StringArray struct {
	meta
	values []string
	nulls  []bool
}

func NewStringArray(name, path string, v []string, nulls []bool) *StringArray {
	return &StringArray{meta: meta{name, path}, values: v, nulls: nulls}
}

func (f *StringArray) Kind() Kind       { return KindString }
func (f *StringArray) Len() int         { return len(f.values) }
func (f *StringArray) Values() []string { return f.values }

// IsNull reports whether element i is a null string.
func (f *StringArray) IsNull(i int) bool {
	return f.nulls != nil && f.nulls[i]
}

// Custom wraps the value produced by a custom or var type processor.
type Custom struct {
	meta
	typeName string
	value    any
}

func NewCustom(name, path, typeName string, v any) *Custom {
	return &Custom{meta: meta{name, path}, typeName: typeName, value: v}
}

func (f *Custom) Kind() Kind       { return KindCustom }
func (f *Custom) TypeName() string { return f.typeName }
func (f *Custom) Value() any       { return f.value }

// Int64 returns the numeric projection of the wrapped value, if it has one.
func (f *Custom) Int64() (int64, bool) {
	switch v := f.value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint8:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case interface{ AsInt64() int64 }:
		return v.AsInt64(), true
	}
	return 0, false
}

// Elements returns the element count of slice values and -1 for scalars.
// A []byte value is a single blob and counts as a scalar.
func (f *Custom) Elements() int {
	switch v := f.value.(type) {
	case []int64:
		return len(v)
	case []string:
		return len(v)
	case []any:
		return len(v)
	}
	return -1
}
