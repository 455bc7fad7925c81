package blockparser

import (
	"fmt"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
	"github.com/twinfer/bbp-plugin/pkg/expression"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

// Opcode is the kind of a compiled instruction.
type Opcode uint8

const (
	OpBool Opcode = iota
	OpBit
	OpByte
	OpUByte
	OpShort
	OpUShort
	OpInt
	OpUInt
	OpLong
	OpFloat
	OpDouble
	OpString
	OpVal
	OpVar
	OpCustom
	OpStructStart
	OpStructEnd
	OpAlign
	OpSkip
	OpResetCounter
)

var opcodeNames = [...]string{
	OpBool:         "bool",
	OpBit:          "bit",
	OpByte:         "byte",
	OpUByte:        "ubyte",
	OpShort:        "short",
	OpUShort:       "ushort",
	OpInt:          "int",
	OpUInt:         "uint",
	OpLong:         "long",
	OpFloat:        "float",
	OpDouble:       "double",
	OpString:       "string",
	OpVal:          "val",
	OpVar:          "var",
	OpCustom:       "custom",
	OpStructStart:  "struct_start",
	OpStructEnd:    "struct_end",
	OpAlign:        "align",
	OpSkip:         "skip",
	OpResetCounter: "reset$$",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("opcode(%d)", int(o))
}

// IsField reports whether the instruction produces a node in the field tree.
func (o Opcode) IsField() bool {
	switch o {
	case OpStructEnd, OpAlign, OpSkip, OpResetCounter:
		return false
	}
	return true
}

// Kind returns the field kind produced by the opcode.
func (o Opcode) Kind() field.Kind {
	switch o {
	case OpBool:
		return field.KindBool
	case OpBit:
		return field.KindBit
	case OpByte:
		return field.KindByte
	case OpUByte:
		return field.KindUByte
	case OpShort:
		return field.KindShort
	case OpUShort:
		return field.KindUShort
	case OpInt:
		return field.KindInt
	case OpUInt:
		return field.KindUInt
	case OpLong:
		return field.KindLong
	case OpFloat:
		return field.KindFloat
	case OpDouble:
		return field.KindDouble
	case OpString:
		return field.KindString
	case OpVal:
		return field.KindVal
	case OpStructStart, OpStructEnd:
		return field.KindStruct
	}
	return field.KindCustom
}

// numeric reports whether a scalar of this opcode can be referenced from expressions.
func (o Opcode) numeric() bool {
	switch o {
	case OpString, OpStructStart, OpStructEnd, OpAlign, OpSkip, OpResetCounter:
		return false
	}
	return true
}

// ArrayMode tells how the element count of an instruction is obtained.
type ArrayMode uint8

const (
	NotArray ArrayMode = iota
	// ArrayFixed has a literal count.
	ArrayFixed
	// ArrayExpr has a computed count.
	ArrayExpr
	// ArrayWholeStream repeats until the data runs out, written [_].
	ArrayWholeStream
)

// Param is a literal or computed integer attached to an instruction.
type Param struct {
	Set   bool
	Value int32
	Expr  *expression.Expression
}

func (p Param) String() string {
	switch {
	case !p.Set:
		return ""
	case p.Expr != nil:
		return "(" + p.Expr.Source() + ")"
	}
	return fmt.Sprint(p.Value)
}

// Instruction is one compiled clause. Structures are delimited by an
// OpStructStart and an OpStructEnd whose Match fields hold each other's index.
type Instruction struct {
	Op        Opcode
	ByteOrder bitio.ByteOrder
	Name      string
	Path      string
	TypeName  string
	// Symbol is the index in Schema.Symbols of a named instruction, -1 otherwise.
	Symbol int
	Array  ArrayMode
	Count  Param
	// Extra is the bit width, the val expression, the align or skip amount or custom type data.
	Extra Param
	Match int
	Line  int

	custom CustomFieldType
}

// IsArray reports whether the instruction repeats.
func (in *Instruction) IsArray() bool { return in.Array != NotArray }

func (in *Instruction) String() string {
	s := in.Op.String()
	if in.Op == OpCustom {
		s = in.TypeName
	}
	if in.ByteOrder == bitio.LittleEndian {
		s = "<" + s
	}
	if in.Extra.Set {
		s += ":" + in.Extra.String()
	}
	switch in.Array {
	case ArrayWholeStream:
		s += " [_]"
	case ArrayFixed, ArrayExpr:
		s += " [" + in.Count.String() + "]"
	}
	if in.Name != "" {
		s += " " + in.Name
	}
	return s
}

// Symbol is a named field known to the compiler.
type Symbol struct {
	Name     string
	Path     string
	Offset   int
	Opcode   Opcode
	TypeName string
	IsArray  bool
}
