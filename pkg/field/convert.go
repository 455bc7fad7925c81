package field

import (
	"fmt"
	"strings"
)

// NumericValue projects a scalar field onto an integer, the way expressions see it.
// Booleans are 1 or 0. Arrays, structures and strings have no projection.
func NumericValue(f Field) (int64, bool) {
	switch f := f.(type) {
	case *Custom:
		return f.Int64()
	case Numeric:
		return f.AsInt64(), true
	}
	return 0, false
}

// Value returns the plain Go value of a node: scalars as bool, int64, float64 or string,
// arrays as slices, structures as maps.
func Value(f Field) any {
	switch f := f.(type) {
	case *Bool:
		return f.Value()
	case *Int:
		return f.Value()
	case *Float:
		return f.Value()
	case *String:
		if f.IsNull() {
			return nil
		}
		return f.Value()
	case *BoolArray:
		return f.Values()
	case *IntArray:
		return f.Values()
	case *FloatArray:
		return f.Values()
	case *StringArray:
		out := make([]any, f.Len())
		for i, v := range f.Values() {
			if !f.IsNull(i) {
				out[i] = v
			}
		}
		return out
	case *Custom:
		return f.Value()
	case *Struct:
		return ToMap(f)
	case *StructArray:
		out := make([]map[string]any, f.Len())
		for i, e := range f.Elements() {
			out[i] = ToMap(e)
		}
		return out
	}
	return nil
}

// ToMap converts s to a map keyed by field name. Anonymous children get the
// key "_N" where N is their position in s.
func ToMap(s *Struct) map[string]any {
	out := make(map[string]any, s.NumFields())
	for i, f := range s.Fields() {
		out[Key(f, i)] = Value(f)
	}
	return out
}

// Key returns the map key ToMap uses for the i-th child f.
func Key(f Field, i int) string {
	if f.Name() == "" {
		return fmt.Sprintf("_%d", i)
	}
	return strings.ToLower(f.Name())
}
