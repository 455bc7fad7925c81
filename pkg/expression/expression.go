// Package expression compiles and evaluates the integer expressions used for
// array sizes, bit widths and extra parameters in block schemas.
//
// Expressions evaluate to 32-bit signed integers with two's complement wrap around.
// The grammar supports decimal, 0x, 0o and 0b literals, field references (plain
// names or dot paths), $$ for the stream byte counter, $_ for the value being
// written and $name for caller supplied values, combined with
//
//	* / %    + -    << >> >>>    &    ^    |
//
// in that order of precedence, unary - + ~ and parentheses.
package expression

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDivisionByZero is returned when a / or % has a zero right operand.
var ErrDivisionByZero = errors.New("division by zero")

// Resolver binds field names to symbol indices at compile time.
type Resolver interface {
	Resolve(path string) (int, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(path string) (int, error)

func (f ResolverFunc) Resolve(path string) (int, error) { return f(path) }

// Context supplies runtime values to Eval.
type Context interface {
	StreamCounter() int64
	FieldValue(symbol int) (int32, error)
	ExternalValue(name string) (int32, error)
	CurrentValue() (int32, error)
}

// SyntaxError reports every problem found while compiling Source.
type SyntaxError struct {
	Source   string
	Problems []string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Source, strings.Join(e.Problems, "; "))
}

// Expression is a compiled expression. It holds no evaluation state and may be
// shared between goroutines.
type Expression struct {
	src      string
	root     Node
	current  bool
	external []string
}

// Compile parses src, binding identifiers through scope, and folds constant sub-trees.
func Compile(src string, scope Resolver) (*Expression, error) {
	p := NewParser(NewLexer(src), scope)
	root := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, &SyntaxError{Source: src, Problems: errs}
	}
	root, err := fold(root)
	if err != nil {
		return nil, &SyntaxError{Source: src, Problems: []string{err.Error()}}
	}
	e := &Expression{src: src, root: root}
	walk(root, func(n Node) {
		switch n := n.(type) {
		case *Current:
			e.current = true
		case *External:
			e.external = append(e.external, n.Name)
		}
	})
	return e, nil
}

// MustCompile is like Compile but panics on error. Intended for fixed expressions in tests and tables.
func MustCompile(src string, scope Resolver) *Expression {
	e, err := Compile(src, scope)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against ctx.
func (e *Expression) Eval(ctx Context) (int32, error) {
	return e.root.eval(ctx)
}

// Constant returns the value of an expression without runtime references.
func (e *Expression) Constant() (int32, bool) {
	if lit, ok := e.root.(*IntLit); ok {
		return lit.Value, true
	}
	return 0, false
}

// UsesCurrent reports whether the expression refers to $_.
func (e *Expression) UsesCurrent() bool { return e.current }

// Externals lists the $names the expression refers to, in source order.
func (e *Expression) Externals() []string { return e.external }

// Root returns the folded expression tree.
func (e *Expression) Root() Node { return e.root }

// Source returns the original text.
func (e *Expression) Source() string { return e.src }

func (e *Expression) String() string { return e.root.String() }

// fold replaces operator nodes whose operands are all literals with their value.
func fold(n Node) (Node, error) {
	switch n := n.(type) {
	case *UnOp:
		arg, err := fold(n.Arg)
		if err != nil {
			return nil, err
		}
		if lit, ok := arg.(*IntLit); ok {
			return &IntLit{Value: applyUnary(n.Op, lit.Value), P: n.P}, nil
		}
		return &UnOp{Op: n.Op, Arg: arg, P: n.P}, nil
	case *BinOp:
		left, err := fold(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := fold(n.Right)
		if err != nil {
			return nil, err
		}
		l, lok := left.(*IntLit)
		r, rok := right.(*IntLit)
		if lok && rok {
			v, err := applyBinary(n.Op, l.Value, r.Value)
			if err != nil {
				return nil, fmt.Errorf("at %d:%d: %w", n.P.Line, n.P.Column, err)
			}
			return &IntLit{Value: v, P: n.P}, nil
		}
		return &BinOp{Op: n.Op, Left: left, Right: right, P: n.P}, nil
	}
	return n, nil
}

func walk(n Node, fn func(Node)) {
	fn(n)
	switch n := n.(type) {
	case *UnOp:
		walk(n.Arg, fn)
	case *BinOp:
		walk(n.Left, fn)
		walk(n.Right, fn)
	}
}
