package blockparser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Parse reads one block from r.
//
// A plain io.Reader is buffered internally and may be read past the end of the
// block. To read consecutive blocks from one source use ParseStream with a
// single bitio.Reader, or pass r as an io.ReadSeeker, *bufio.Reader or
// io.ByteScanner.
func (s *Schema) Parse(ctx context.Context, r io.Reader, opts ...ParseOption) (*field.Struct, error) {
	return s.ParseStream(ctx, bitio.NewReader(r, s.bitOrder), opts...)
}

// ParseBytes reads one block from data.
func (s *Schema) ParseBytes(ctx context.Context, data []byte, opts ...ParseOption) (*field.Struct, error) {
	return s.Parse(ctx, bytes.NewReader(data), opts...)
}

// ParseStream reads one block from an existing bit reader, so that several
// blocks can be read one after the other from a live stream.
func (s *Schema) ParseStream(ctx context.Context, r *bitio.Reader, opts ...ParseOption) (*field.Struct, error) {
	o := s.runOptions(opts)
	if r.BitOrder() != s.bitOrder {
		return nil, &IllegalArgumentError{Msg: fmt.Sprintf("reader bit order %s does not match schema bit order %s", r.BitOrder(), s.bitOrder)}
	}
	o.logger.DebugContext(ctx, "Starting block parsing", "instructions", len(s.instrs), "bit_order", s.bitOrder)

	p := &parser{
		schema: s,
		opts:   o,
		ctx:    ctx,
		r:      r,
		ev:     newEvalState(ctx, s, o, r.Counter),
	}
	root, err := p.run()
	if err != nil {
		o.logger.ErrorContext(ctx, "Block parsing failed", "error", err)
		return nil, err
	}
	o.logger.DebugContext(ctx, "Finished block parsing", "fields", root.NumFields(), "counter", r.Counter())
	return root, nil
}

// readFrame is an open structure on the parser stack.
type readFrame struct {
	start int
	node  *field.Struct
	// elems and count are used by structure arrays; count is -1 for whole-stream arrays.
	elems []*field.Struct
	count int
}

type parser struct {
	schema *Schema
	opts   *runOptions
	ctx    context.Context
	r      *bitio.Reader
	ev     *evalState
	frames []readFrame
}

func (p *parser) top() *readFrame { return &p.frames[len(p.frames)-1] }

func (p *parser) run() (*field.Struct, error) {
	root := field.NewStruct("", "")
	p.frames = []readFrame{{start: -1, node: root}}
	skipOnEOF := p.schema.flags.Has(FlagSkipRemainingFieldsIfEOF)

	for pc := 0; pc < len(p.schema.instrs); {
		in := &p.schema.instrs[pc]
		if skipOnEOF && consumesData(in.Op) {
			ok, err := p.r.HasAvailableData()
			if err != nil {
				return nil, err
			}
			if !ok {
				p.opts.logger.DebugContext(p.ctx, "Data exhausted, skipping remaining fields", "field", in.Path, "line", in.Line)
				p.unwind()
				return root, nil
			}
		}
		next, err := p.step(pc, in)
		if err != nil {
			return nil, err
		}
		pc = next
	}
	return root, nil
}

func consumesData(op Opcode) bool {
	return op != OpStructEnd && op != OpVal && op != OpResetCounter
}

// unwind closes every open structure, keeping what was read so far.
func (p *parser) unwind() {
	for len(p.frames) > 1 {
		f := *p.top()
		p.frames = p.frames[:len(p.frames)-1]
		in := &p.schema.instrs[f.start]
		parent := p.top().node
		if !in.IsArray() {
			if f.node.NumFields() > 0 {
				parent.Append(f.node)
			}
			continue
		}
		elems := f.elems
		if f.node.NumFields() > 0 {
			elems = append(elems, f.node)
		}
		parent.Append(field.NewStructArray(in.Name, in.Path, elems))
	}
}

func (p *parser) step(pc int, in *Instruction) (int, error) {
	switch in.Op {
	case OpStructStart:
		return p.enterStruct(pc, in)
	case OpStructEnd:
		return p.exitStruct(pc, in)
	case OpAlign:
		n, err := p.ev.amount(in)
		if err != nil {
			return 0, err
		}
		if n < 1 {
			return 0, &IllegalArgumentError{Msg: fmt.Sprintf("align value %d must be positive", n)}
		}
		if err := p.r.Align(int(n)); err != nil {
			return 0, streamError("", err)
		}
	case OpSkip:
		v, err := p.ev.amount(in)
		if err != nil {
			return 0, err
		}
		n, err := p.ev.nonNegative(in, v, "skip")
		if err != nil {
			return 0, err
		}
		if err := p.r.Skip(n); err != nil {
			return 0, streamError("", err)
		}
	case OpResetCounter:
		p.r.ResetCounter()
	case OpVal:
		v, err := p.ev.eval(in, in.Extra, "value")
		if err != nil {
			return 0, err
		}
		p.ev.setValue(in.Symbol, int64(v))
		p.top().node.Append(field.NewInt(in.Name, in.Path, field.KindVal, 0, int64(v)))
	case OpVar:
		if err := p.readVar(in); err != nil {
			return 0, err
		}
	case OpCustom:
		if err := p.readCustom(in); err != nil {
			return 0, err
		}
	default:
		f, err := p.readPrimitive(in)
		if err != nil {
			return 0, err
		}
		p.ev.store(in, f)
		p.top().node.Append(f)
	}
	return pc + 1, nil
}

// arraySize computes the element count and passes it through the size controller.
func (p *parser) arraySize(in *Instruction) (int, error) {
	n, err := p.ev.count(in)
	if err != nil {
		return 0, err
	}
	if p.opts.sizes == nil {
		return n, nil
	}
	adjusted, err := p.opts.sizes.ControlArraySize(p.ctx, ArraySizeRequest{
		Name:     in.Name,
		Path:     in.Path,
		TypeName: in.TypeName,
		Struct:   in.Op == OpStructStart,
		Count:    n,
	})
	if err != nil {
		return 0, err
	}
	if adjusted < -1 {
		return 0, &IllegalArgumentError{Field: in.Path, Msg: fmt.Sprintf("array size controller returned %d", adjusted)}
	}
	return adjusted, nil
}

func (p *parser) enterStruct(pc int, in *Instruction) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if !in.IsArray() {
		p.frames = append(p.frames, readFrame{start: pc, node: field.NewStruct(in.Name, in.Path)})
		return pc + 1, nil
	}
	n, err := p.arraySize(in)
	if err != nil {
		return 0, err
	}
	empty := n == 0
	if n < 0 {
		ok, err := p.r.HasAvailableData()
		if err != nil {
			return 0, err
		}
		empty = !ok
	}
	if empty {
		p.opts.logger.DebugContext(p.ctx, "Skipping empty structure array", "field", in.Path, "line", in.Line)
		p.top().node.Append(field.NewStructArray(in.Name, in.Path, nil))
		return in.Match + 1, nil
	}
	p.opts.logger.DebugContext(p.ctx, "Entering structure array", "field", in.Path, "count", n)
	p.frames = append(p.frames, readFrame{start: pc, node: field.NewStruct("", in.Path), count: n})
	return pc + 1, nil
}

func (p *parser) exitStruct(pc int, in *Instruction) (int, error) {
	f := p.top()
	start := &p.schema.instrs[f.start]
	if !start.IsArray() {
		node := f.node
		p.frames = p.frames[:len(p.frames)-1]
		p.top().node.Append(node)
		return pc + 1, nil
	}

	f.elems = append(f.elems, f.node)
	more := len(f.elems) < f.count
	if f.count < 0 {
		ok, err := p.r.HasAvailableData()
		if err != nil {
			return 0, err
		}
		more = ok
	}
	if more {
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
		f.node = field.NewStruct("", start.Path)
		return f.start + 1, nil
	}
	elems := f.elems
	p.frames = p.frames[:len(p.frames)-1]
	p.top().node.Append(field.NewStructArray(in.Name, in.Path, elems))
	return pc + 1, nil
}

func (p *parser) readCustom(in *Instruction) error {
	req, err := p.fieldRead(in)
	if err != nil {
		return err
	}
	f, err := in.custom.ReadCustomField(p.ctx, p.r, req)
	if err != nil {
		return extensionError(in, err)
	}
	if f == nil {
		return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("type %q returned no field", in.TypeName)}
	}
	p.ev.store(in, f)
	p.top().node.Append(f)
	return nil
}

// extensionError names the field when a processor ran out of data and passes
// every other processor error through as is.
func extensionError(in *Instruction, err error) error {
	var eod *EndOfDataError
	if errors.Is(err, bitio.ErrEndOfData) && !errors.As(err, &eod) {
		return &EndOfDataError{Field: in.Path}
	}
	return err
}

func (p *parser) readVar(in *Instruction) error {
	if p.opts.varProcessor == nil {
		return &ParsingError{Field: in.Path, Msg: "var field needs a var field processor"}
	}
	req, err := p.fieldRead(in)
	if err != nil {
		return err
	}
	f, err := p.opts.varProcessor.ReadVarField(p.ctx, p.r, req, p.ev)
	if err != nil {
		return extensionError(in, err)
	}
	if err := checkVarResult(in, f); err != nil {
		return err
	}
	p.ev.store(in, f)
	p.top().node.Append(f)
	return nil
}

func checkVarResult(in *Instruction, f field.Field) error {
	switch {
	case f == nil:
		return &ParsingError{Field: in.Path, Msg: "var field processor returned no field"}
	case !strings.EqualFold(f.Name(), in.Name):
		return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("var field processor returned field %q", f.Name())}
	case isArrayNode(f) != in.IsArray():
		return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("var field processor returned %T, array shape differs", f)}
	}
	return nil
}

func (p *parser) fieldRead(in *Instruction) (FieldRead, error) {
	req := FieldRead{FieldInfo: p.ev.info(in)}
	if in.IsArray() {
		n, err := p.arraySize(in)
		if err != nil {
			return req, err
		}
		req.ArrayLength = n
	}
	extra, err := p.ev.extra(in)
	if err != nil {
		return req, err
	}
	req.Extra = extra
	return req, nil
}

func widen[T int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64](vs []T) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}

func (p *parser) readPrimitive(in *Instruction) (field.Field, error) {
	n := 0
	if in.IsArray() {
		var err error
		if n, err = p.arraySize(in); err != nil {
			return nil, err
		}
	}
	f, err := p.readValue(in, n)
	if err != nil {
		return nil, streamError(in.Path, err)
	}
	return f, nil
}

func (p *parser) readValue(in *Instruction, n int) (field.Field, error) {
	r, bo := p.r, in.ByteOrder
	name, path, kind := in.Name, in.Path, in.Op.Kind()
	array := in.IsArray()

	intField := func(bits int, v int64, err error) (field.Field, error) {
		if err != nil {
			return nil, err
		}
		return field.NewInt(name, path, kind, bits, v), nil
	}
	intArray := func(bits int, vs []int64, err error) (field.Field, error) {
		if err != nil {
			return nil, err
		}
		return field.NewIntArray(name, path, kind, bits, vs), nil
	}

	switch in.Op {
	case OpBool:
		if array {
			vs, err := r.ReadBoolArray(n)
			if err != nil {
				return nil, err
			}
			return field.NewBoolArray(name, path, vs), nil
		}
		v, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		return field.NewBool(name, path, v), nil
	case OpBit:
		width, err := p.ev.bitWidth(in)
		if err != nil {
			return nil, err
		}
		if array {
			vs, err := r.ReadBitsArray(width, n)
			return intArray(width, widen(vs), err)
		}
		v, err := r.ReadBits(width)
		return intField(width, int64(v), err)
	case OpByte:
		if array {
			vs, err := r.ReadSByteArray(n)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadSByte()
		return intField(0, int64(v), err)
	case OpUByte:
		if array {
			vs, err := r.ReadUByteArray(n)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadUByte()
		return intField(0, int64(v), err)
	case OpShort:
		if array {
			vs, err := r.ReadShortArray(n, bo)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadShort(bo)
		return intField(0, int64(v), err)
	case OpUShort:
		if array {
			vs, err := r.ReadUShortArray(n, bo)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadUShort(bo)
		return intField(0, int64(v), err)
	case OpInt:
		if array {
			vs, err := r.ReadIntArray(n, bo)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadInt(bo)
		return intField(0, int64(v), err)
	case OpUInt:
		if array {
			vs, err := r.ReadUIntArray(n, bo)
			return intArray(0, widen(vs), err)
		}
		v, err := r.ReadUInt(bo)
		return intField(0, int64(v), err)
	case OpLong:
		if array {
			vs, err := r.ReadLongArray(n, bo)
			return intArray(0, vs, err)
		}
		v, err := r.ReadLong(bo)
		return intField(0, v, err)
	case OpFloat:
		if array {
			vs, err := r.ReadFloatArray(n, bo)
			if err != nil {
				return nil, err
			}
			out := make([]float64, len(vs))
			for i, v := range vs {
				out[i] = float64(v)
			}
			return field.NewFloatArray(name, path, kind, out), nil
		}
		v, err := r.ReadFloat(bo)
		if err != nil {
			return nil, err
		}
		return field.NewFloat(name, path, kind, float64(v)), nil
	case OpDouble:
		if array {
			vs, err := r.ReadDoubleArray(n, bo)
			if err != nil {
				return nil, err
			}
			return field.NewFloatArray(name, path, kind, vs), nil
		}
		v, err := r.ReadDouble(bo)
		if err != nil {
			return nil, err
		}
		return field.NewFloat(name, path, kind, v), nil
	case OpString:
		if array {
			return p.readStringArray(in, n)
		}
		v, null, err := r.ReadString(bo)
		if err != nil {
			return nil, err
		}
		return field.NewString(name, path, v, null), nil
	}
	return nil, fmt.Errorf("blockparser: unexpected opcode %s", in.Op)
}

func (p *parser) readStringArray(in *Instruction, n int) (field.Field, error) {
	var (
		values []string
		nulls  []bool
		hasNul bool
	)
	for i := 0; n < 0 || i < n; i++ {
		if n < 0 {
			ok, err := p.r.HasAvailableData()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
		v, null, err := p.r.ReadString(in.ByteOrder)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		nulls = append(nulls, null)
		hasNul = hasNul || null
	}
	if !hasNul {
		nulls = nil
	}
	return field.NewStringArray(in.Name, in.Path, values, nulls), nil
}
