package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Struct {
	inner := NewStruct("b", "b",
		NewInt("a", "b.a", KindByte, 0, 2),
		NewString("title", "b.title", "hi", false),
	)
	return NewStruct("", "",
		NewInt("a", "a", KindByte, 0, 1),
		inner,
		NewIntArray("aa", "aa", KindByte, 0, []int64{3}),
		NewInt("", "", KindBit, 3, 5),
		NewInt("", "", KindBit, 3, 1),
		NewBool("ok", "ok", true),
		NewStructArray("items", "items", []*Struct{
			NewStruct("", "items", NewFloat("x", "items.x", KindFloat, 1.5)),
		}),
	)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ubyte", KindUByte.String())
	assert.Equal(t, "struct", KindStruct.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
	assert.True(t, KindVal.IsInteger())
	assert.False(t, KindDouble.IsInteger())
}

func TestStruct_FindByName(t *testing.T) {
	root := sampleTree()

	f, err := root.FindByName("A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.(*Int).Value())

	_, err = root.FindByName("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStruct_FindByPath(t *testing.T) {
	root := sampleTree()

	f, err := root.FindByPath("b.a")
	require.NoError(t, err)
	assert.Equal(t, "b.a", f.Path())
	assert.Equal(t, int64(2), f.(*Int).Value())

	_, err = root.FindByPath("aa.x")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err := Find[*String](root, "b.title")
	require.NoError(t, err)
	assert.Equal(t, "hi", s.Value())

	_, err = Find[*Bool](root, "b.title")
	assert.Error(t, err)
}

func TestStruct_FindByKindAmbiguity(t *testing.T) {
	root := sampleTree()

	_, err := root.FindByKind(KindBit)
	assert.ErrorIs(t, err, ErrAmbiguous)

	f, err := root.FindByKind(KindBool)
	require.NoError(t, err)
	assert.Equal(t, "ok", f.Name())

	f, err = root.FindByNameAndKind("items", KindStruct)
	require.NoError(t, err)
	assert.Equal(t, 1, f.(*StructArray).Len())

	dup := NewStruct("", "", NewInt("x", "x", KindInt, 0, 1), NewInt("x", "x", KindInt, 0, 2))
	_, err = dup.FindByNameAndKind("x", KindInt)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		name string
		f    Field
		want int64
		ok   bool
	}{
		{"BoolTrue", NewBool("b", "b", true), 1, true},
		{"BoolFalse", NewBool("b", "b", false), 0, true},
		{"Int", NewInt("i", "i", KindUInt, 0, 0xFFFFFFFF), 0xFFFFFFFF, true},
		{"Float", NewFloat("f", "f", KindDouble, 3.9), 3, true},
		{"CustomInt", NewCustom("c", "c", "int24", int64(-5)), -5, true},
		{"CustomString", NewCustom("c", "c", "latin1", "x"), 0, false},
		{"String", NewString("s", "s", "12", false), 0, false},
		{"Array", NewIntArray("a", "a", KindInt, 0, []int64{1}), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NumericValue(tt.f)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToMap(t *testing.T) {
	m := ToMap(sampleTree())
	assert.Equal(t, int64(1), m["a"])
	assert.Equal(t, map[string]any{"a": int64(2), "title": "hi"}, m["b"])
	assert.Equal(t, []int64{3}, m["aa"])
	assert.Equal(t, int64(5), m["_3"])
	assert.Equal(t, int64(1), m["_4"])
	assert.Equal(t, true, m["ok"])
	assert.Equal(t, []map[string]any{{"x": 1.5}}, m["items"])
}

func TestValue_NullStrings(t *testing.T) {
	assert.Nil(t, Value(NewString("s", "s", "", true)))
	arr := NewStringArray("s", "s", []string{"a", "", "c"}, []bool{false, true, false})
	assert.Equal(t, []any{"a", nil, "c"}, Value(arr))
}
