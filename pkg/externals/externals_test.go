package externals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

type fixedValues map[string]int32

func (f fixedValues) Value(path string) (int32, bool) {
	v, ok := f[path]
	return v, ok
}

func TestProvider_ExternalValue(t *testing.T) {
	p, err := New(map[string]string{
		"Count":   "field('len') * 2",
		"padding": "version >= 2 ? 4 : 0",
		"guarded": "has('missing') ? field('missing') : 7",
		"huge":    "1099511627776",
	}, WithVariables(map[string]any{"version": 3}), WithFallback("len(name)"))
	require.NoError(t, err)

	values := fixedValues{"len": 5}
	tests := []struct {
		name string
		want int32
	}{
		{"count", 10},
		{"PADDING", 4},
		{"guarded", 7},
		{"abc", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := p.ExternalValue(context.Background(), tt.name, values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	_, err = p.ExternalValue(context.Background(), "huge", values)
	assert.Error(t, err)
}

func TestProvider_Errors(t *testing.T) {
	_, err := New(map[string]string{"bad": "field("})
	assert.Error(t, err)

	_, err = New(map[string]string{"str": "'text'"})
	assert.Error(t, err, "non integer results are rejected at compile time")

	p, err := New(map[string]string{"a": "field('nope') + 1"})
	require.NoError(t, err)

	_, err = p.ExternalValue(context.Background(), "a", fixedValues{})
	assert.ErrorContains(t, err, "nope")

	_, err = p.ExternalValue(context.Background(), "zzz", fixedValues{})
	assert.True(t, errors.Is(err, ErrUnknownName))
}

func TestProvider_WithBlockParser(t *testing.T) {
	p, err := New(map[string]string{"body": "field('hdr.words') * 4 - 2"})
	require.NoError(t, err)

	s, err := blockparser.Compile(`hdr { ubyte words; } ubyte [$body] data;`)
	require.NoError(t, err)

	root, err := s.ParseBytes(context.Background(), []byte{1, 9, 8}, blockparser.WithExternalValueProvider(p))
	require.NoError(t, err)
	data, err := field.Find[*field.IntArray](root, "data")
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8}, data.Values())
}
