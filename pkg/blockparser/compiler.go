package blockparser

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/expression"
)

var primitiveOpcodes = map[string]Opcode{
	"bool":    OpBool,
	"bit":     OpBit,
	"byte":    OpByte,
	"ubyte":   OpUByte,
	"short":   OpShort,
	"ushort":  OpUShort,
	"int":     OpInt,
	"uint":    OpUInt,
	"long":    OpLong,
	"float":   OpFloat,
	"floatj":  OpFloat,
	"double":  OpDouble,
	"doublej": OpDouble,
	"string":  OpString,
	"stringj": OpString,
	"val":     OpVal,
	"var":     OpVar,
	"align":   OpAlign,
	"skip":    OpSkip,
	"reset$$": OpResetCounter,
}

// IsKeyword reports whether name is a built-in type or action and so cannot name a custom type.
func IsKeyword(name string) bool {
	_, ok := primitiveOpcodes[strings.ToLower(name)]
	return ok
}

type scope struct {
	start int
	path  string
	array ArrayMode
	line  int
}

// compiler holds the state of a single Compile call.
type compiler struct {
	opts     *compileOptions
	registry map[string]CustomFieldType
	instrs   []Instruction
	symbols  []Symbol
	byPath   map[string]int
	scopes   []scope

	// tail is set once a whole-stream array is complete; only closing braces may follow.
	tail bool

	line   int
	clause string
}

// Compile turns a script into a Schema.
func Compile(script string, opts ...CompileOption) (*Schema, error) {
	o := &compileOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	registry, err := buildRegistry(o.customTypes)
	if err != nil {
		return nil, err
	}
	clauses, err := splitClauses(script)
	if err != nil {
		o.logger.Error("Failed to split block script", "error", err)
		return nil, err
	}

	c := &compiler{
		opts:     o,
		registry: registry,
		byPath:   make(map[string]int),
		scopes:   []scope{{start: -1}},
	}
	for _, cl := range clauses {
		c.line, c.clause = cl.line, cl.text
		switch cl.kind {
		case clauseStructStart:
			err = c.structStart(cl.text)
		case clauseStructEnd:
			err = c.structEnd()
		default:
			err = c.field(cl.text)
		}
		if err != nil {
			o.logger.Error("Failed to compile block script", "line", cl.line, "clause", cl.text, "error", err)
			return nil, err
		}
	}
	if len(c.scopes) > 1 {
		open := c.scopes[len(c.scopes)-1]
		return nil, &CompilationError{Line: open.line, Clause: c.instrs[open.start].String(), Msg: "structure is never closed"}
	}

	o.logger.Debug("Compiled block script", "instructions", len(c.instrs), "symbols", len(c.symbols),
		"bit_order", o.bitOrder, "flags", o.flags)
	return &Schema{
		script:      script,
		bitOrder:    o.bitOrder,
		flags:       o.flags,
		instrs:      c.instrs,
		symbols:     c.symbols,
		byPath:      c.byPath,
		customTypes: registry,
		logger:      o.logger,
	}, nil
}

func buildRegistry(types []CustomFieldType) (map[string]CustomFieldType, error) {
	registry := make(map[string]CustomFieldType)
	for _, t := range types {
		for _, name := range t.Types() {
			name = strings.ToLower(name)
			if IsKeyword(name) {
				return nil, &CompilationError{Msg: fmt.Sprintf("custom type %q clashes with a built-in type", name)}
			}
			if _, dup := registry[name]; dup {
				return nil, &CompilationError{Msg: fmt.Sprintf("custom type %q is registered twice", name)}
			}
			registry[name] = t
		}
	}
	return registry, nil
}

func (c *compiler) errorf(format string, args ...any) error {
	return &CompilationError{Line: c.line, Clause: c.clause, Msg: fmt.Sprintf(format, args...)}
}

func (c *compiler) current() scope { return c.scopes[len(c.scopes)-1] }

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// resolver binds expression identifiers innermost scope first. Only symbols
// declared before the clause being compiled exist in byPath.
func (c *compiler) resolver() expression.Resolver {
	return expression.ResolverFunc(func(ref string) (int, error) {
		ref = strings.ToLower(ref)
		for i := len(c.scopes) - 1; i >= 0; i-- {
			sym, ok := c.byPath[joinPath(c.scopes[i].path, ref)]
			if !ok {
				continue
			}
			s := c.symbols[sym]
			if s.IsArray || !s.Opcode.numeric() {
				return 0, fmt.Errorf("field %q is not a numeric scalar", s.Path)
			}
			return sym, nil
		}
		return 0, fmt.Errorf("unknown field %q", ref)
	})
}

// param compiles a literal or an expression. Constant expressions become literals.
func (c *compiler) param(raw, what string) (Param, error) {
	if v, err := strconv.ParseInt(raw, 10, 32); err == nil {
		return Param{Set: true, Value: int32(v)}, nil
	}
	e, err := expression.Compile(raw, c.resolver())
	if err != nil {
		return Param{}, &CompilationError{Line: c.line, Clause: c.clause, Msg: "bad " + what, Err: err}
	}
	if v, ok := e.Constant(); ok {
		return Param{Set: true, Value: v}, nil
	}
	return Param{Set: true, Expr: e}, nil
}

func (c *compiler) arrayCount(raw string) (ArrayMode, Param, error) {
	if raw == "_" {
		for _, s := range c.scopes[1:] {
			if s.array != NotArray && s.array != ArrayWholeStream {
				return NotArray, Param{}, c.errorf("[_] is not allowed inside a structure array with a bounded size")
			}
		}
		return ArrayWholeStream, Param{}, nil
	}
	p, err := c.param(raw, "array size")
	if err != nil {
		return NotArray, Param{}, err
	}
	if p.Expr != nil {
		return ArrayExpr, p, nil
	}
	if p.Value < 0 {
		return NotArray, Param{}, c.errorf("illegal array size %d", p.Value)
	}
	return ArrayFixed, p, nil
}

func (c *compiler) declare(name string, in *Instruction) error {
	if name == "" {
		in.Symbol = -1
		return nil
	}
	if strings.Contains(name, "$") {
		return c.errorf("illegal field name %q", name)
	}
	name = strings.ToLower(name)
	path := joinPath(c.current().path, name)
	if _, dup := c.byPath[path]; dup {
		return c.errorf("duplicate field %q", path)
	}
	in.Name, in.Path = name, path
	in.Symbol = len(c.symbols)
	c.byPath[path] = in.Symbol
	c.symbols = append(c.symbols, Symbol{
		Name:     name,
		Path:     path,
		Offset:   len(c.instrs),
		Opcode:   in.Op,
		TypeName: in.TypeName,
		IsArray:  in.IsArray(),
	})
	return nil
}

func (c *compiler) field(text string) error {
	if c.tail {
		return c.errorf("only closing braces may follow a whole-stream array")
	}
	fc, err := scanFieldClause(text)
	if err != nil {
		return c.errorf("%v", err)
	}

	op, builtin := primitiveOpcodes[fc.typeName]
	if !builtin {
		op = OpCustom
	}
	in := Instruction{Op: op, TypeName: fc.typeName, ByteOrder: bitio.BigEndian, Line: c.line, Symbol: -1}
	if fc.hasByteOrder {
		in.ByteOrder = fc.byteOrder
	}

	switch op {
	case OpAlign, OpSkip, OpResetCounter:
		if fc.hasCount || fc.name != "" || fc.hasByteOrder {
			return c.errorf("%s takes no name, array size or byte order", fc.typeName)
		}
		if op == OpResetCounter && fc.hasExtra {
			return c.errorf("reset$$ takes no argument")
		}
	case OpVal:
		if !fc.hasExtra || fc.name == "" {
			return c.errorf("val needs an expression and a name")
		}
		if fc.hasCount {
			return c.errorf("val cannot be an array")
		}
	case OpBit, OpVar, OpCustom:
	default:
		if fc.hasExtra {
			return c.errorf("%s takes no ':' argument", fc.typeName)
		}
	}

	if fc.hasExtra {
		if in.Extra, err = c.param(fc.extra, "argument"); err != nil {
			return err
		}
	}
	if fc.hasCount {
		if in.Array, in.Count, err = c.arrayCount(fc.count); err != nil {
			return err
		}
	}

	switch op {
	case OpBit:
		if !in.Extra.Set {
			in.Extra = Param{Set: true, Value: 1}
		}
		if in.Extra.Expr == nil && (in.Extra.Value < 1 || in.Extra.Value > 8) {
			return c.errorf("bit width %d out of range 1..8", in.Extra.Value)
		}
	case OpAlign:
		if in.Extra.Expr == nil && in.Extra.Set && in.Extra.Value < 1 {
			return c.errorf("align value %d must be positive", in.Extra.Value)
		}
	case OpCustom:
		proc, ok := c.registry[fc.typeName]
		if !ok {
			return c.errorf("unknown type %q", fc.typeName)
		}
		name := strings.ToLower(fc.name)
		path := ""
		if name != "" {
			path = joinPath(c.current().path, name)
		}
		decl := CustomTypeDecl{
			FieldInfo: FieldInfo{
				TypeName:  fc.typeName,
				Name:      name,
				Path:      path,
				ByteOrder: in.ByteOrder,
				BitOrder:  c.opts.bitOrder,
				IsArray:   in.IsArray(),
			},
			HasExtra:    in.Extra.Set,
			ExtraValue:  in.Extra.Value,
			ExtraIsExpr: in.Extra.Expr != nil,
			WholeStream: in.Array == ArrayWholeStream,
		}
		if !proc.IsAllowed(decl) {
			return c.errorf("type %q rejected field %q", fc.typeName, fc.name)
		}
		in.custom = proc
	}

	if err := c.declare(fc.name, &in); err != nil {
		return err
	}
	if in.Array == ArrayWholeStream {
		c.tail = true
	}
	c.instrs = append(c.instrs, in)
	return nil
}

func (c *compiler) structStart(text string) error {
	if c.tail {
		return c.errorf("only closing braces may follow a whole-stream array")
	}
	st, err := scanStructClause(text)
	if err != nil {
		return c.errorf("%v", err)
	}
	in := Instruction{Op: OpStructStart, Line: c.line, Symbol: -1}
	if st.hasCount {
		if in.Array, in.Count, err = c.arrayCount(st.count); err != nil {
			return err
		}
	}
	if err := c.declare(st.name, &in); err != nil {
		return err
	}
	path := c.current().path
	if in.Name != "" {
		path = in.Path
	}
	c.scopes = append(c.scopes, scope{start: len(c.instrs), path: path, array: in.Array, line: c.line})
	c.instrs = append(c.instrs, in)
	return nil
}

func (c *compiler) structEnd() error {
	if len(c.scopes) == 1 {
		return c.errorf("unbalanced '}'")
	}
	s := c.current()
	c.scopes = c.scopes[:len(c.scopes)-1]
	start := &c.instrs[s.start]
	start.Match = len(c.instrs)
	c.instrs = append(c.instrs, Instruction{
		Op:     OpStructEnd,
		Name:   start.Name,
		Path:   start.Path,
		Symbol: start.Symbol,
		Array:  start.Array,
		Match:  s.start,
		Line:   c.line,
	})
	if s.array == ArrayWholeStream {
		c.tail = true
	}
	return nil
}
