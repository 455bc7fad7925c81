package customtypes

import (
	"context"
	"fmt"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/blockparser"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Int24 reads and writes three byte integers: int24 is signed, uint24 unsigned.
// Values are int64 for scalars and []int64 for arrays.
type Int24 struct{}

func (Int24) Types() []string { return []string{"int24", "uint24"} }

// IsAllowed rejects a ':' argument, the width is fixed.
func (Int24) IsAllowed(decl blockparser.CustomTypeDecl) bool { return !decl.HasExtra }

func (Int24) ReadCustomField(_ context.Context, r *bitio.Reader, req blockparser.FieldRead) (field.Field, error) {
	signed := req.TypeName == "int24"
	read := func() (int64, error) {
		var b [3]uint8
		for i := range b {
			v, err := r.ReadUByte()
			if err != nil {
				return 0, err
			}
			b[i] = v
		}
		var u uint32
		if req.ByteOrder == bitio.LittleEndian {
			u = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		} else {
			u = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		}
		if signed {
			return int64(int32(u<<8) >> 8), nil
		}
		return int64(u), nil
	}
	v, vs, err := readElements(r, req, read)
	if err != nil {
		return nil, err
	}
	if req.IsArray {
		return field.NewCustom(req.Name, req.Path, req.TypeName, vs), nil
	}
	return field.NewCustom(req.Name, req.Path, req.TypeName, v), nil
}

func (Int24) WriteCustomField(_ context.Context, w *bitio.Writer, req blockparser.FieldWrite) error {
	values, err := int64s(valueOf(req.Value))
	if err != nil {
		return fmt.Errorf("customtypes: %s: %w", req.Path, err)
	}
	for _, v := range values {
		u := uint32(v) & 0xFFFFFF
		b := [3]uint8{uint8(u >> 16), uint8(u >> 8), uint8(u)}
		if req.ByteOrder == bitio.LittleEndian {
			b[0], b[2] = b[2], b[0]
		}
		for _, x := range b {
			if err := w.WriteUByte(x); err != nil {
				return err
			}
		}
	}
	return nil
}

func int64s(v any) ([]int64, error) {
	switch v := v.(type) {
	case int64:
		return []int64{v}, nil
	case int:
		return []int64{int64(v)}, nil
	case []int64:
		return v, nil
	case []any:
		out := make([]int64, len(v))
		for i, x := range v {
			n, ok := x.(int64)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want an integer", i, x)
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot write %T as a 24-bit integer", v)
}
