package field

import "fmt"

// Kind identifies the declared type of a field tree node.
type Kind int

const (
	KindBool Kind = iota
	KindBit
	KindByte
	KindUByte
	KindShort
	KindUShort
	KindInt
	KindUInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindVal
	KindCustom
	KindStruct
)

var kindNames = [...]string{
	KindBool:   "bool",
	KindBit:    "bit",
	KindByte:   "byte",
	KindUByte:  "ubyte",
	KindShort:  "short",
	KindUShort: "ushort",
	KindInt:    "int",
	KindUInt:   "uint",
	KindLong:   "long",
	KindFloat:  "float",
	KindDouble: "double",
	KindString: "string",
	KindVal:    "val",
	KindCustom: "custom",
	KindStruct: "struct",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsInteger reports whether values of kind k are held by Int and IntArray.
func (k Kind) IsInteger() bool {
	switch k {
	case KindBit, KindByte, KindUByte, KindShort, KindUShort, KindInt, KindUInt, KindLong, KindVal:
		return true
	}
	return false
}
