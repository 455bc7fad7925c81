package cel

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestExpressionPool(t *testing.T) {
	pool, err := NewExpressionPool()
	require.NoError(t, err)

	tests := []struct {
		expr string
		want any
	}{
		{"size * 2", int64(8)},
		{"size <= 4096", true},
		{"clamp(size, 0, 3)", int64(3)},
		{"min(size, 10) + max(1, 2) + abs(-1)", int64(7)},
		{"is_struct ? 0 : size", int64(4)},
		{"path.startsWith('hdr') ? 1 : 2", int64(1)},
	}
	params := map[string]any{VarSize: 4, VarName: "data", VarPath: "hdr.data", VarType: "ubyte", VarIsStruct: false}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			prog, err := pool.GetExpression(tt.expr)
			require.NoError(t, err)
			got, err := pool.EvaluateExpression(prog, params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	dyn, err := pool.GetExpression("is_struct ? dyn(1.5) : dyn(size)")
	require.NoError(t, err)
	_, err = pool.EvaluateExpression(dyn, map[string]any{VarSize: 4, VarName: "", VarPath: "", VarType: "", VarIsStruct: true})
	assert.Error(t, err, "double results are rejected")

	_, err = pool.GetExpression("name + 'x'")
	assert.Error(t, err, "string results are rejected")
	_, err = pool.GetExpression("unknown_var > 1")
	assert.Error(t, err)

	_, err = NewExpressionPoolWithEnv(nil)
	assert.Error(t, err)
}

func TestExpressionPool_Concurrent(t *testing.T) {
	pool, err := NewExpressionPool()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prog, err := pool.GetExpression("size + 1")
			if !assert.NoError(t, err) {
				return
			}
			got, err := pool.EvaluateExpression(prog, map[string]any{VarSize: i, VarName: "", VarPath: "", VarType: "", VarIsStruct: false})
			assert.NoError(t, err)
			assert.Equal(t, int64(i+1), got)
		}()
	}
	wg.Wait()
}

func TestSizePolicy(t *testing.T) {
	policy, err := NewSizePolicy(nil, quiet,
		Rule{Pattern: "items", Expr: "size <= 2"},
		Rule{Pattern: "blob*", Expr: "clamp(size, 0, 3)"},
		Rule{Pattern: "*.rest", Expr: "-1"},
		Rule{Pattern: "fail", Expr: "size > 1 ? error('too many') : size"},
	)
	require.NoError(t, err)

	ctx := context.Background()
	tests := []struct {
		path    string
		count   int
		want    int
		wantErr bool
	}{
		{"items", 2, 2, false},
		{"items", 3, 0, true},
		{"blobdata", 10, 3, false},
		{"hdr.rest", 1, -1, false},
		{"other", 5, 5, false},
		{"fail", 2, 0, true},
	}
	for _, tt := range tests {
		got, err := policy.ControlArraySize(ctx, blockparser.ArraySizeRequest{Path: tt.path, Count: tt.count})
		if tt.wantErr {
			assert.ErrorIs(t, err, blockparser.ErrIllegalArgument, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err = NewSizePolicy(nil, quiet, Rule{Pattern: "[", Expr: "size"})
	assert.Error(t, err)
}

func TestSizePolicy_WithBlockParser(t *testing.T) {
	policy, err := NewSizePolicy(nil, quiet, Rule{Pattern: "*", Expr: "min(size, 2)"})
	require.NoError(t, err)

	s, err := blockparser.Compile(`ubyte n; ubyte [n] data; ubyte last;`)
	require.NoError(t, err)
	root, err := s.ParseBytes(context.Background(), []byte{5, 1, 2, 3}, blockparser.WithArraySizeController(policy))
	require.NoError(t, err)

	data, err := field.Find[*field.IntArray](root, "data")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, data.Values())
	last, err := field.Find[*field.Int](root, "last")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last.Value())
}
