package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/twinfer/bbp-plugin/pkg/field"
)

func TestConvertToInt64(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{in: 3, want: 3, ok: true},
		{in: int8(-2), want: -2, ok: true},
		{in: uint32(7), want: 7, ok: true},
		{in: uint64(1 << 63), ok: false},
		{in: 4.0, want: 4, ok: true},
		{in: 4.5, ok: false},
		{in: json.Number("12"), want: 12, ok: true},
		{in: json.Number("1.5"), ok: false},
		{in: "12", ok: false},
	}
	for _, tt := range tests {
		got, ok := ConvertToInt64(tt.in)
		assert.Equal(t, tt.ok, ok, "%#v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%#v", tt.in)
		}
	}
}

func TestDiffValues(t *testing.T) {
	tests := []struct {
		name  string
		want  any
		got   any
		equal bool
	}{
		{name: "numbers across types", want: map[string]any{"a": 1, "b": 2.5}, got: map[string]any{"a": int64(1), "b": json.Number("2.5")}, equal: true},
		{name: "typed slices", want: []any{1, 2}, got: []int64{1, 2}, equal: true},
		{name: "key case", want: map[string]any{"Len": 2}, got: map[string]any{"len": uint8(2)}, equal: true},
		{name: "nested", want: map[string]any{"s": []any{map[string]any{"x": 1}}}, got: map[string]any{"s": []map[string]any{{"x": int64(1)}}}, equal: true},
		{name: "different value", want: map[string]any{"a": 1}, got: map[string]any{"a": int64(2)}},
		{name: "number and string", want: []any{1}, got: []any{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := DiffValues(tt.want, tt.got)
			if tt.equal {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestDiffTree(t *testing.T) {
	root := field.NewStruct("", "")
	root.Append(field.NewInt("len", "len", field.KindUByte, 8, 2))
	root.Append(field.NewIntArray("data", "data", field.KindUByte, 8, []int64{5, 6}))

	assert.Empty(t, DiffTree(map[string]any{"len": 2, "data": []any{5, 6}}, root))
	assert.NotEmpty(t, DiffTree(map[string]any{"len": 2}, root))

	AssertTree(t, map[string]any{"data": []any{5.0, 6.0}}, root)
}

func TestFilterMapKeys(t *testing.T) {
	src := map[string]any{"a": 1, "b": map[string]any{"c": 2, "d": 3}, "e": 4}
	ref := map[string]any{"a": nil, "b": map[string]any{"c": nil}}
	assert.Equal(t, map[string]any{"a": 1, "b": map[string]any{"c": 2}}, FilterMapKeys(src, ref))
}
