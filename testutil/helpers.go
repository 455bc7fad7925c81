// Package testutil holds comparison helpers for tests that check parsed field
// trees against plain Go or JSON decoded values.
package testutil

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/twinfer/bbp-plugin/pkg/field"
)

// ConvertToInt64 converts various numeric types to int64 for comparison.
// Returns the int64 value and a boolean indicating success.
func ConvertToInt64(i any) (int64, bool) {
	switch v := i.(type) {
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	case float32:
		return ConvertToInt64(float64(v))
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func convertToFloat64(i any) (float64, bool) {
	switch v := i.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	if n, ok := ConvertToInt64(i); ok {
		return float64(n), true
	}
	return 0, false
}

func isNumber(v any) bool {
	_, ok := convertToFloat64(v)
	return ok
}

// NumericComparer compares numbers by value regardless of their Go type, so an
// int64 read from a block equals the float64 or json.Number a decoder produced.
var NumericComparer = cmp.FilterValues(func(x, y any) bool {
	return isNumber(x) && isNumber(y)
}, cmp.Comparer(func(x, y any) bool {
	xInt, xOk := ConvertToInt64(x)
	yInt, yOk := ConvertToInt64(y)
	if xOk && yOk {
		return xInt == yInt
	}
	xFloat, _ := convertToFloat64(x)
	yFloat, _ := convertToFloat64(y)
	return math.Abs(xFloat-yFloat) < 1e-9
}))

// Normalize turns typed slices into []any and lowercases map keys, recursively.
func Normalize(data any) any {
	switch v := data.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[strings.ToLower(k)] = Normalize(e)
		}
		return out
	case string:
		return v
	}
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return reflectSlice(rv)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if k, ok := iter.Key().Interface().(string); ok {
				out[strings.ToLower(k)] = Normalize(iter.Value().Interface())
			}
		}
		return out
	}
	return data
}

func reflectSlice(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = Normalize(rv.Index(i).Interface())
	}
	return out
}

// DiffValues returns a cmp diff of want and got after normalizing both.
func DiffValues(want, got any) string {
	return cmp.Diff(Normalize(want), Normalize(got), NumericComparer)
}

// DiffTree compares a parsed tree against plain values.
func DiffTree(want map[string]any, got *field.Struct) string {
	return DiffValues(want, field.ToMap(got))
}

// FilterMapKeys recursively creates a new map from 'source' containing only keys present in 'reference'.
func FilterMapKeys(source map[string]any, reference map[string]any) map[string]any {
	result := make(map[string]any)
	for key, refVal := range reference {
		if srcVal, ok := source[key]; ok {
			if refSubMap, refIsMap := refVal.(map[string]any); refIsMap {
				if srcSubMap, srcIsMap := srcVal.(map[string]any); srcIsMap {
					result[key] = FilterMapKeys(srcSubMap, refSubMap)
				} else {
					result[key] = srcVal // Type mismatch, will be caught by cmp.Diff
				}
			} else {
				result[key] = srcVal
			}
		}
	}
	return result
}

// AssertTree fails t when got differs from want. Keys of got missing from want are ignored.
func AssertTree(t testing.TB, want map[string]any, got *field.Struct) {
	t.Helper()
	gotMap, _ := Normalize(field.ToMap(got)).(map[string]any)
	wantMap, _ := Normalize(want).(map[string]any)
	if diff := cmp.Diff(wantMap, FilterMapKeys(gotMap, wantMap), NumericComparer); diff != "" {
		t.Errorf("field tree mismatch (-want +got):\n%s", diff)
	}
}
