package blockparser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/expression"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// evalState is the per call evaluation context. It is never shared between calls.
type evalState struct {
	ctx     context.Context
	schema  *Schema
	opts    *runOptions
	values  []int32
	set     []bool
	counter func() int64

	current    int32
	hasCurrent bool
}

func newEvalState(ctx context.Context, s *Schema, o *runOptions, counter func() int64) *evalState {
	return &evalState{
		ctx:     ctx,
		schema:  s,
		opts:    o,
		values:  make([]int32, len(s.symbols)),
		set:     make([]bool, len(s.symbols)),
		counter: counter,
	}
}

var _ expression.Context = (*evalState)(nil)
var _ NumericValues = (*evalState)(nil)

func (e *evalState) StreamCounter() int64 { return e.counter() }

func (e *evalState) FieldValue(symbol int) (int32, error) {
	if e.set[symbol] {
		return e.values[symbol], nil
	}
	path := e.schema.symbols[symbol].Path
	if e.opts.externals != nil {
		return e.opts.externals.ExternalValue(e.ctx, path, e)
	}
	return 0, &ParsingError{Field: path, Msg: "referenced before it has a value"}
}

func (e *evalState) ExternalValue(name string) (int32, error) {
	if e.opts.externals == nil {
		return 0, &ParsingError{Msg: fmt.Sprintf("$%s needs an external value provider", name)}
	}
	return e.opts.externals.ExternalValue(e.ctx, name, e)
}

func (e *evalState) CurrentValue() (int32, error) {
	if !e.hasCurrent {
		return 0, &ParsingError{Msg: "$_ is only defined while writing"}
	}
	return e.current, nil
}

// Value implements NumericValues.
func (e *evalState) Value(path string) (int32, bool) {
	i, ok := e.schema.byPath[strings.ToLower(path)]
	if !ok || !e.set[i] {
		return 0, false
	}
	return e.values[i], true
}

func (e *evalState) setValue(symbol int, v int64) {
	if symbol < 0 {
		return
	}
	e.values[symbol] = int32(v)
	e.set[symbol] = true
}

// store records the numeric projection of a finished scalar field.
func (e *evalState) store(in *Instruction, f field.Field) {
	if in.Symbol < 0 || in.IsArray() {
		return
	}
	if v, ok := field.NumericValue(f); ok {
		e.setValue(in.Symbol, v)
	}
}

func (e *evalState) withCurrent(v int32) func() {
	prev, had := e.current, e.hasCurrent
	e.current, e.hasCurrent = v, true
	return func() { e.current, e.hasCurrent = prev, had }
}

// eval returns a literal parameter or evaluates its expression.
func (e *evalState) eval(in *Instruction, p Param, what string) (int32, error) {
	if p.Expr == nil {
		return p.Value, nil
	}
	v, err := p.Expr.Eval(e)
	if errors.Is(err, expression.ErrDivisionByZero) {
		return 0, &ParsingError{Field: in.Path, Msg: "cannot compute " + what, Err: err}
	}
	return v, err
}

// nonNegative applies the negative value policy to a computed count.
func (e *evalState) nonNegative(in *Instruction, v int32, what string) (int, error) {
	if v >= 0 {
		return int(v), nil
	}
	if e.schema.flags.Has(FlagNegativeExpressionResultAsZero) {
		return 0, nil
	}
	return 0, &ParsingError{Field: in.Path, Msg: fmt.Sprintf("negative %s %d", what, v)}
}

// count returns the element count of an array instruction, -1 for whole-stream arrays.
func (e *evalState) count(in *Instruction) (int, error) {
	switch in.Array {
	case ArrayWholeStream:
		return -1, nil
	case ArrayFixed:
		return int(in.Count.Value), nil
	}
	v, err := e.eval(in, in.Count, "array size")
	if err != nil {
		return 0, err
	}
	return e.nonNegative(in, v, "array size")
}

func (e *evalState) bitWidth(in *Instruction) (int, error) {
	w, err := e.eval(in, in.Extra, "bit width")
	if err != nil {
		return 0, err
	}
	if w < 1 || w > 8 {
		return 0, &IllegalArgumentError{Field: in.Path, Msg: fmt.Sprintf("bit width %d out of range 1..8", w)}
	}
	return int(w), nil
}

// amount evaluates the argument of align and skip, 1 when absent.
func (e *evalState) amount(in *Instruction) (int32, error) {
	if !in.Extra.Set {
		return 1, nil
	}
	return e.eval(in, in.Extra, in.Op.String()+" amount")
}

func (e *evalState) extra(in *Instruction) (int32, error) {
	if !in.Extra.Set {
		return 0, nil
	}
	return e.eval(in, in.Extra, "argument")
}

func (e *evalState) info(in *Instruction) FieldInfo {
	return FieldInfo{
		TypeName:  in.TypeName,
		Name:      in.Name,
		Path:      in.Path,
		ByteOrder: in.ByteOrder,
		BitOrder:  e.schema.bitOrder,
		IsArray:   in.IsArray(),
	}
}

func isArrayNode(f field.Field) bool {
	switch f := f.(type) {
	case field.ArrayField:
		return true
	case *field.Custom:
		return f.Elements() >= 0
	}
	return false
}
