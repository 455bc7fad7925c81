package blockparser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustCompile(t *testing.T, script string, opts ...CompileOption) *Schema {
	t.Helper()
	opts = append([]CompileOption{WithCompileLogger(quietLogger())}, opts...)
	s, err := Compile(script, opts...)
	require.NoError(t, err)
	return s
}

// tripleType reads and writes 24-bit big endian unsigned values.
type tripleType struct {
	rejectArrays bool
}

func (tripleType) Types() []string { return []string{"triple"} }

func (tt tripleType) IsAllowed(decl CustomTypeDecl) bool {
	return !(tt.rejectArrays && decl.IsArray)
}

func readTriple(r *bitio.Reader) (int64, error) {
	var v int64
	for range 3 {
		b, err := r.ReadUByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | int64(b)
	}
	return v, nil
}

func (tripleType) ReadCustomField(_ context.Context, r *bitio.Reader, req FieldRead) (field.Field, error) {
	if !req.IsArray {
		v, err := readTriple(r)
		if err != nil {
			return nil, err
		}
		return field.NewCustom(req.Name, req.Path, req.TypeName, v), nil
	}
	values := []int64{}
	for i := 0; req.ArrayLength < 0 || i < req.ArrayLength; i++ {
		if req.ArrayLength < 0 {
			ok, err := r.HasAvailableData()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
		v, err := readTriple(r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return field.NewCustom(req.Name, req.Path, req.TypeName, values), nil
}

func (tripleType) WriteCustomField(_ context.Context, w *bitio.Writer, req FieldWrite) error {
	var values []int64
	switch v := req.Value.(*field.Custom).Value().(type) {
	case int64:
		values = []int64{v}
	case []int64:
		values = v
	default:
		return fmt.Errorf("triple: unsupported value %T", v)
	}
	for _, v := range values {
		for shift := 16; shift >= 0; shift -= 8 {
			if err := w.WriteUByte(uint8(v >> shift)); err != nil {
				return err
			}
		}
	}
	return nil
}

// bytesVar reads Extra raw bytes for every var field.
type bytesVar struct {
	rename string
	seen   map[string]int32
}

func (b *bytesVar) ReadVarField(_ context.Context, r *bitio.Reader, req FieldRead, values NumericValues) (field.Field, error) {
	if b.seen != nil {
		if v, ok := values.Value("len"); ok {
			b.seen[req.Path] = v
		}
	}
	data, err := r.ReadUByteArray(int(req.Extra))
	if err != nil {
		return nil, err
	}
	name := req.Name
	if b.rename != "" {
		name = b.rename
	}
	return field.NewCustom(name, req.Path, "var", data), nil
}

func (b *bytesVar) WriteVarField(_ context.Context, w *bitio.Writer, req FieldWrite, _ NumericValues) error {
	data, ok := req.Value.(*field.Custom).Value().([]byte)
	if !ok {
		return fmt.Errorf("bytesVar: unsupported value %T", req.Value.(*field.Custom).Value())
	}
	for _, b := range data {
		if err := w.WriteUByte(b); err != nil {
			return err
		}
	}
	return nil
}
