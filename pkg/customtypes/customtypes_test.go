package customtypes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

func compile(t *testing.T, script string, order bitio.BitOrder) *blockparser.Schema {
	t.Helper()
	agg, err := NewAggregator(Builtin()...)
	require.NoError(t, err)
	s, err := blockparser.Compile(script, blockparser.WithCustomTypes(agg), blockparser.WithBitOrder(order))
	require.NoError(t, err)
	return s
}

func TestInt24_Read(t *testing.T) {
	s := compile(t, `int24 a; <int24 b; uint24 c; <uint24 [_] rest;`, bitio.LSBFirst)
	data := []byte{
		0xFF, 0xFF, 0xFE,
		0x01, 0x00, 0x80,
		0xFF, 0xFF, 0xFE,
		0x01, 0x00, 0x00, 0x02, 0x00, 0x00,
	}
	root, err := s.ParseBytes(context.Background(), data)
	require.NoError(t, err)

	m := field.ToMap(root)
	assert.Equal(t, int64(-2), m["a"])
	assert.Equal(t, int64(-0x7FFFFF), m["b"])
	assert.Equal(t, int64(0xFFFFFE), m["c"])
	assert.Equal(t, []int64{1, 2}, m["rest"])
}

func TestInt24_RoundTrip(t *testing.T) {
	for _, order := range []bitio.BitOrder{bitio.LSBFirst, bitio.MSBFirst} {
		t.Run(order.String(), func(t *testing.T) {
			s := compile(t, `ubyte n; <int24 [n] v; uint24 u;`, order)
			tree, err := s.BuildTree(map[string]any{"n": 3, "v": []any{-1, 0, 8388607}, "u": 16777215})
			require.NoError(t, err)

			data, err := s.WriteBytes(context.Background(), tree)
			require.NoError(t, err)
			assert.Len(t, data, 1+9+3)

			root, err := s.ParseBytes(context.Background(), data)
			require.NoError(t, err)
			m := field.ToMap(root)
			assert.Equal(t, []int64{-1, 0, 8388607}, m["v"])
			assert.Equal(t, int64(16777215), m["u"])
		})
	}
}

func TestInt24_RejectsArgument(t *testing.T) {
	_, err := blockparser.Compile(`int24:2 a;`, blockparser.WithCustomTypes(Int24{}))
	assert.ErrorIs(t, err, blockparser.ErrCompilation)
}

func TestInt24_EndOfData(t *testing.T) {
	s := compile(t, `int24 a;`, bitio.LSBFirst)
	_, err := s.ParseBytes(context.Background(), []byte{1, 2})
	assert.ErrorIs(t, err, bitio.ErrEndOfData)
}

func TestInt24_HugeDeclaredLength(t *testing.T) {
	s := compile(t, `int n; int24 [n] x;`, bitio.LSBFirst)
	_, err := s.ParseBytes(context.Background(), []byte{0x7F, 0xFF, 0xFF, 0xFF, 1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, bitio.ErrEndOfData)

	var eod *blockparser.EndOfDataError
	require.ErrorAs(t, err, &eod)
	assert.Equal(t, "x", eod.Field)
}

func TestCharset(t *testing.T) {
	tests := []struct {
		typeName string
		text     string
		raw      []byte
	}{
		{"latin1", "café", []byte{'c', 'a', 'f', 0xE9, 0, 0}},
		{"cp1251", "Да", []byte{0xC4, 0xE0, 0, 0, 0, 0}},
		{"utf16le", "hé", []byte{'h', 0, 0xE9, 0, 0, 0}},
		{"utf16be", "hé", []byte{0, 'h', 0, 0xE9, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			s := compile(t, tt.typeName+":6 text;", bitio.LSBFirst)

			root, err := s.ParseBytes(context.Background(), tt.raw)
			require.NoError(t, err)
			text, err := field.Find[*field.Custom](root, "text")
			require.NoError(t, err)
			assert.Equal(t, tt.text, text.Value())

			out, err := s.WriteBytes(context.Background(), root)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, out)
		})
	}
}

func TestCharset_ArraysAndExpressionSize(t *testing.T) {
	s := compile(t, `ubyte size; latin1:(size) [2] names;`, bitio.LSBFirst)
	root, err := s.ParseBytes(context.Background(), []byte{2, 'a', 'b', 'c', 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "c"}, field.ToMap(root)["names"])

	out, err := s.WriteBytes(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 'a', 'b', 'c', 0}, out)
}

func TestCharset_Errors(t *testing.T) {
	_, err := blockparser.Compile(`latin1 text;`, blockparser.WithCustomTypes(Charset{}))
	assert.ErrorIs(t, err, blockparser.ErrCompilation, "size is required")

	_, err = blockparser.Compile(`latin1:-1 text;`, blockparser.WithCustomTypes(Charset{}))
	assert.ErrorIs(t, err, blockparser.ErrCompilation)

	s := compile(t, `latin1:2 text;`, bitio.LSBFirst)
	tree := field.NewStruct("", "", field.NewCustom("text", "text", "latin1", "toolong"))
	_, err = s.WriteBytes(context.Background(), tree)
	assert.ErrorIs(t, err, blockparser.ErrParsing)

	tree = field.NewStruct("", "", field.NewCustom("text", "text", "latin1", "日本"))
	_, err = s.WriteBytes(context.Background(), tree)
	assert.Error(t, err)
}

func TestAggregator(t *testing.T) {
	_, err := NewAggregator(Int24{}, Int24{})
	assert.Error(t, err)

	agg, err := Select("INT24", "latin1")
	require.NoError(t, err)
	assert.Equal(t, []string{"int24", "latin1"}, agg.Types())

	_, err = blockparser.Compile(`uint24 a;`, blockparser.WithCustomTypes(agg))
	assert.ErrorIs(t, err, blockparser.ErrCompilation)

	_, err = Select("ebcdic")
	assert.Error(t, err)

	assert.Contains(t, Names(), "utf16be")
	assert.Contains(t, Names(), "uint24")
}
