package expression

import (
	"fmt"
)

// Pos is a 1-indexed source position inside an expression.
type Pos struct {
	Line   int
	Column int
}

// Node is an expression tree node. Trees are immutable after compilation.
type Node interface {
	Pos() Pos
	String() string
	eval(ctx Context) (int32, error)
}

// IntLit is an integer literal already narrowed to 32 bits.
type IntLit struct {
	Value int32
	P     Pos
}

func (n *IntLit) Pos() Pos                    { return n.P }
func (n *IntLit) String() string              { return fmt.Sprintf("%d", n.Value) }
func (n *IntLit) eval(Context) (int32, error) { return n.Value, nil }

// FieldRef references a previously declared numeric field through its symbol index.
type FieldRef struct {
	Path   string
	Symbol int
	P      Pos
}

func (n *FieldRef) Pos() Pos       { return n.P }
func (n *FieldRef) String() string { return n.Path }
func (n *FieldRef) eval(ctx Context) (int32, error) {
	return ctx.FieldValue(n.Symbol)
}

// Counter is the stream byte counter, spelled $$.
type Counter struct {
	P Pos
}

func (n *Counter) Pos() Pos       { return n.P }
func (n *Counter) String() string { return "$$" }
func (n *Counter) eval(ctx Context) (int32, error) {
	return int32(ctx.StreamCounter()), nil
}

// Current is the value, or element count, of the field being written, spelled $_.
type Current struct {
	P Pos
}

func (n *Current) Pos() Pos       { return n.P }
func (n *Current) String() string { return "$_" }
func (n *Current) eval(ctx Context) (int32, error) {
	return ctx.CurrentValue()
}

// External is a caller supplied value, spelled $name.
type External struct {
	Name string
	P    Pos
}

func (n *External) Pos() Pos       { return n.P }
func (n *External) String() string { return "$" + n.Name }
func (n *External) eval(ctx Context) (int32, error) {
	return ctx.ExternalValue(n.Name)
}

type UnOpKind int

const (
	UnOpNeg UnOpKind = iota
	UnOpPlus
	UnOpBitNot
)

var unOpSymbols = [...]string{UnOpNeg: "-", UnOpPlus: "+", UnOpBitNot: "~"}

func (o UnOpKind) String() string { return unOpSymbols[o] }

type UnOp struct {
	Op  UnOpKind
	Arg Node
	P   Pos
}

func (n *UnOp) Pos() Pos       { return n.P }
func (n *UnOp) String() string { return fmt.Sprintf("(%s%s)", n.Op, n.Arg) }
func (n *UnOp) eval(ctx Context) (int32, error) {
	v, err := n.Arg.eval(ctx)
	if err != nil {
		return 0, err
	}
	return applyUnary(n.Op, v), nil
}

func applyUnary(op UnOpKind, v int32) int32 {
	switch op {
	case UnOpNeg:
		return -v
	case UnOpBitNot:
		return ^v
	default:
		return v
	}
}

type BinOpKind int

const (
	BinOpMul BinOpKind = iota
	BinOpDiv
	BinOpMod
	BinOpAdd
	BinOpSub
	BinOpLShift
	BinOpRShift
	BinOpURShift
	BinOpBitAnd
	BinOpBitXor
	BinOpBitOr
)

var binOpSymbols = [...]string{
	BinOpMul: "*", BinOpDiv: "/", BinOpMod: "%",
	BinOpAdd: "+", BinOpSub: "-",
	BinOpLShift: "<<", BinOpRShift: ">>", BinOpURShift: ">>>",
	BinOpBitAnd: "&", BinOpBitXor: "^", BinOpBitOr: "|",
}

func (o BinOpKind) String() string { return binOpSymbols[o] }

type BinOp struct {
	Op    BinOpKind
	Left  Node
	Right Node
	P     Pos
}

func (n *BinOp) Pos() Pos       { return n.P }
func (n *BinOp) String() string { return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right) }
func (n *BinOp) eval(ctx Context) (int32, error) {
	a, err := n.Left.eval(ctx)
	if err != nil {
		return 0, err
	}
	b, err := n.Right.eval(ctx)
	if err != nil {
		return 0, err
	}
	return applyBinary(n.Op, a, b)
}

// applyBinary computes a op b with two's complement wrap around. Shift counts use their low five bits.
func applyBinary(op BinOpKind, a, b int32) (int32, error) {
	switch op {
	case BinOpMul:
		return a * b, nil
	case BinOpDiv:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	case BinOpMod:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a % b, nil
	case BinOpAdd:
		return a + b, nil
	case BinOpSub:
		return a - b, nil
	case BinOpLShift:
		return a << uint(b&31), nil
	case BinOpRShift:
		return a >> uint(b&31), nil
	case BinOpURShift:
		return int32(uint32(a) >> uint(b&31)), nil
	case BinOpBitAnd:
		return a & b, nil
	case BinOpBitXor:
		return a ^ b, nil
	case BinOpBitOr:
		return a | b, nil
	}
	return 0, fmt.Errorf("unknown binary operator %d", int(op))
}
