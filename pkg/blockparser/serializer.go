package blockparser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Write serializes root to w. Array sizes and bit widths are recomputed from
// the values written so far and must agree with the tree.
func (s *Schema) Write(ctx context.Context, root *field.Struct, w io.Writer, opts ...ParseOption) error {
	bw := bitio.NewWriter(w, s.bitOrder)
	if err := s.WriteStream(ctx, root, bw, opts...); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteBytes serializes root into a new byte slice.
func (s *Schema) WriteBytes(ctx context.Context, root *field.Struct, opts ...ParseOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Write(ctx, root, &buf, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteStream serializes root to an existing bit writer without flushing pending bits.
func (s *Schema) WriteStream(ctx context.Context, root *field.Struct, w *bitio.Writer, opts ...ParseOption) error {
	o := s.runOptions(opts)
	if w.BitOrder() != s.bitOrder {
		return &IllegalArgumentError{Msg: fmt.Sprintf("writer bit order %s does not match schema bit order %s", w.BitOrder(), s.bitOrder)}
	}
	if root == nil {
		return &IllegalArgumentError{Msg: "nil field tree"}
	}
	o.logger.DebugContext(ctx, "Starting block serialization", "instructions", len(s.instrs))

	sr := &serializer{
		schema: s,
		opts:   o,
		ctx:    ctx,
		w:      w,
		ev:     newEvalState(ctx, s, o, w.Counter),
	}
	if err := sr.run(root); err != nil {
		o.logger.ErrorContext(ctx, "Block serialization failed", "error", err)
		return err
	}
	o.logger.DebugContext(ctx, "Finished block serialization", "counter", w.Counter())
	return nil
}

// writeFrame is an open structure on the serializer stack.
type writeFrame struct {
	start int
	src   *field.Struct
	next  int
	array *field.StructArray
	index int
}

type serializer struct {
	schema *Schema
	opts   *runOptions
	ctx    context.Context
	w      *bitio.Writer
	ev     *evalState
	frames []writeFrame
}

// stopSignal ends serialization quietly when a tree cut short by FlagSkipRemainingFieldsIfEOF runs out.
type stopSignal struct{}

func (stopSignal) Error() string { return "stop" }

func (sr *serializer) top() *writeFrame { return &sr.frames[len(sr.frames)-1] }

func (sr *serializer) run(root *field.Struct) error {
	sr.frames = []writeFrame{{start: -1, src: root}}
	for pc := 0; pc < len(sr.schema.instrs); {
		next, err := sr.step(pc, &sr.schema.instrs[pc])
		if _, stop := err.(stopSignal); stop {
			sr.opts.logger.DebugContext(sr.ctx, "Field tree exhausted, skipping remaining fields", "line", sr.schema.instrs[pc].Line)
			return nil
		}
		if err != nil {
			return err
		}
		pc = next
	}
	return sr.checkConsumed(sr.top())
}

// checkConsumed rejects tree children that no instruction of the structure wrote.
func (sr *serializer) checkConsumed(f *writeFrame) error {
	if f.next >= f.src.NumFields() {
		return nil
	}
	child := f.src.Field(f.next)
	return &ParsingError{Field: child.Path(), Msg: fmt.Sprintf("unexpected field %q in the field tree", child.Name())}
}

// take returns the next child of the current structure, which must carry the instruction's name.
func (sr *serializer) take(in *Instruction) (field.Field, error) {
	f := sr.top()
	if f.next >= f.src.NumFields() {
		if sr.schema.flags.Has(FlagSkipRemainingFieldsIfEOF) {
			return nil, stopSignal{}
		}
		return nil, &ParsingError{Field: in.Path, Msg: "missing from the field tree"}
	}
	child := f.src.Field(f.next)
	if !strings.EqualFold(child.Name(), in.Name) {
		return nil, &ParsingError{Field: in.Path, Msg: fmt.Sprintf("expected field %q, found %q", in.Name, child.Name())}
	}
	f.next++
	return child, nil
}

func wrongType(in *Instruction, f field.Field) error {
	return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("cannot write %T as %s", f, in)}
}

// checkCount re-evaluates the array size of in with $_ bound to the tree's length.
func (sr *serializer) checkCount(in *Instruction, length int) error {
	if in.Array == ArrayWholeStream {
		return nil
	}
	restore := sr.ev.withCurrent(int32(length))
	defer restore()
	n, err := sr.ev.count(in)
	if err != nil {
		return err
	}
	if n != length {
		return &ParsingError{Field: in.Path, Msg: fmt.Sprintf("array size is %d but the tree holds %d elements", n, length)}
	}
	return nil
}

func (sr *serializer) step(pc int, in *Instruction) (int, error) {
	switch in.Op {
	case OpStructStart:
		return sr.enterStruct(pc, in)
	case OpStructEnd:
		f := sr.top()
		if err := sr.checkConsumed(f); err != nil {
			return 0, err
		}
		if f.array != nil {
			f.index++
			if f.index < f.array.Len() {
				f.src, f.next = f.array.Element(f.index), 0
				return f.start + 1, nil
			}
		}
		sr.frames = sr.frames[:len(sr.frames)-1]
	case OpAlign:
		n, err := sr.ev.amount(in)
		if err != nil {
			return 0, err
		}
		if n < 1 {
			return 0, &IllegalArgumentError{Msg: fmt.Sprintf("align value %d must be positive", n)}
		}
		if err := sr.w.Align(int(n)); err != nil {
			return 0, err
		}
	case OpSkip:
		v, err := sr.ev.amount(in)
		if err != nil {
			return 0, err
		}
		n, err := sr.ev.nonNegative(in, v, "skip")
		if err != nil {
			return 0, err
		}
		if err := sr.w.Skip(n); err != nil {
			return 0, err
		}
	case OpResetCounter:
		sr.w.ResetCounter()
	case OpVal:
		v, err := sr.ev.eval(in, in.Extra, "value")
		if err != nil {
			return 0, err
		}
		sr.ev.setValue(in.Symbol, int64(v))
		f := sr.top()
		if f.next < f.src.NumFields() {
			if c := f.src.Field(f.next); c.Kind() == field.KindVal && strings.EqualFold(c.Name(), in.Name) {
				f.next++
			}
		}
	case OpVar, OpCustom:
		if err := sr.writeExtension(in); err != nil {
			return 0, err
		}
	default:
		child, err := sr.take(in)
		if err != nil {
			return 0, err
		}
		if err := sr.writePrimitive(in, child); err != nil {
			return 0, err
		}
		sr.ev.store(in, child)
	}
	return pc + 1, nil
}

func (sr *serializer) enterStruct(pc int, in *Instruction) (int, error) {
	if err := sr.ctx.Err(); err != nil {
		return 0, err
	}
	child, err := sr.take(in)
	if err != nil {
		return 0, err
	}
	if !in.IsArray() {
		st, ok := child.(*field.Struct)
		if !ok {
			return 0, wrongType(in, child)
		}
		sr.frames = append(sr.frames, writeFrame{start: pc, src: st})
		return pc + 1, nil
	}
	arr, ok := child.(*field.StructArray)
	if !ok {
		return 0, wrongType(in, child)
	}
	if err := sr.checkCount(in, arr.Len()); err != nil {
		return 0, err
	}
	if arr.Len() == 0 {
		return in.Match + 1, nil
	}
	sr.frames = append(sr.frames, writeFrame{start: pc, src: arr.Element(0), array: arr})
	return pc + 1, nil
}

func (sr *serializer) writeExtension(in *Instruction) error {
	child, err := sr.take(in)
	if err != nil {
		return err
	}
	if in.Op == OpVar && sr.opts.varProcessor == nil {
		return &ParsingError{Field: in.Path, Msg: "var field needs a var field processor"}
	}
	if isArrayNode(child) != in.IsArray() {
		return wrongType(in, child)
	}
	req := FieldWrite{FieldRead: FieldRead{FieldInfo: sr.ev.info(in)}, Value: child}
	current := int32(0)
	if in.IsArray() {
		req.ArrayLength = nodeLen(child)
		current = int32(req.ArrayLength)
		if err := sr.checkCount(in, req.ArrayLength); err != nil {
			return err
		}
		if in.Array == ArrayWholeStream {
			req.ArrayLength = -1
		}
	} else if v, ok := field.NumericValue(child); ok {
		current = int32(v)
	}
	restore := sr.ev.withCurrent(current)
	req.Extra, err = sr.ev.extra(in)
	restore()
	if err != nil {
		return err
	}

	if in.Op == OpVar {
		err = sr.opts.varProcessor.WriteVarField(sr.ctx, sr.w, req, sr.ev)
	} else {
		err = in.custom.WriteCustomField(sr.ctx, sr.w, req)
	}
	if err != nil {
		return err
	}
	sr.ev.store(in, child)
	return nil
}

func nodeLen(f field.Field) int {
	switch f := f.(type) {
	case field.ArrayField:
		return f.Len()
	case *field.Custom:
		return f.Elements()
	}
	return -1
}

func (sr *serializer) writePrimitive(in *Instruction, child field.Field) error {
	if in.IsArray() {
		arr, ok := child.(field.ArrayField)
		if !ok {
			return wrongType(in, child)
		}
		if err := sr.checkCount(in, arr.Len()); err != nil {
			return err
		}
	}

	w, bo := sr.w, in.ByteOrder
	switch in.Op {
	case OpBool:
		if in.IsArray() {
			arr, ok := child.(*field.BoolArray)
			if !ok {
				return wrongType(in, child)
			}
			for _, v := range arr.Values() {
				if err := w.WriteBool(v); err != nil {
					return err
				}
			}
			return nil
		}
		b, ok := child.(*field.Bool)
		if !ok {
			return wrongType(in, child)
		}
		return w.WriteBool(b.Value())
	case OpFloat, OpDouble:
		var values []float64
		switch f := child.(type) {
		case *field.Float:
			if in.IsArray() {
				return wrongType(in, child)
			}
			values = []float64{f.Value()}
		case *field.FloatArray:
			if !in.IsArray() {
				return wrongType(in, child)
			}
			values = f.Values()
		default:
			return wrongType(in, child)
		}
		for _, v := range values {
			var err error
			if in.Op == OpFloat {
				err = w.WriteFloat(float32(v), bo)
			} else {
				err = w.WriteDouble(v, bo)
			}
			if err != nil {
				return err
			}
		}
		return nil
	case OpString:
		if in.IsArray() {
			arr, ok := child.(*field.StringArray)
			if !ok {
				return wrongType(in, child)
			}
			for i, v := range arr.Values() {
				if err := w.WriteString(v, arr.IsNull(i), bo); err != nil {
					return err
				}
			}
			return nil
		}
		s, ok := child.(*field.String)
		if !ok {
			return wrongType(in, child)
		}
		return w.WriteString(s.Value(), s.IsNull(), bo)
	}

	// integer kinds
	var values []int64
	switch f := child.(type) {
	case *field.Int:
		if in.IsArray() {
			return wrongType(in, child)
		}
		values = []int64{f.Value()}
	case *field.IntArray:
		if !in.IsArray() {
			return wrongType(in, child)
		}
		values = f.Values()
	default:
		return wrongType(in, child)
	}
	width := 0
	if in.Op == OpBit {
		current := int32(len(values))
		if !in.IsArray() {
			current = int32(values[0])
		}
		restore := sr.ev.withCurrent(current)
		var err error
		width, err = sr.ev.bitWidth(in)
		restore()
		if err != nil {
			return err
		}
	}
	for _, v := range values {
		if err := writeInt(w, in.Op, width, bo, v); err != nil {
			return err
		}
	}
	return nil
}

func writeInt(w *bitio.Writer, op Opcode, width int, bo bitio.ByteOrder, v int64) error {
	switch op {
	case OpBit:
		return w.WriteBits(width, uint64(v))
	case OpByte:
		return w.WriteSByte(int8(v))
	case OpUByte:
		return w.WriteUByte(uint8(v))
	case OpShort:
		return w.WriteShort(int16(v), bo)
	case OpUShort:
		return w.WriteUShort(uint16(v), bo)
	case OpInt:
		return w.WriteInt(int32(v), bo)
	case OpUInt:
		return w.WriteUInt(uint32(v), bo)
	case OpLong:
		return w.WriteLong(v, bo)
	}
	return fmt.Errorf("blockparser: unexpected opcode %s", op)
}
