package bitio

import (
	"fmt"
	"strings"
)

// BitOrder selects which bit of a byte is consumed or produced first.
type BitOrder uint8

const (
	// LSBFirst packs every new field starting at the least significant free bit.
	LSBFirst BitOrder = iota
	// MSBFirst behaves like LSBFirst over bytes whose bit order is reversed.
	MSBFirst
)

func (o BitOrder) String() string {
	switch o {
	case LSBFirst:
		return "lsb"
	case MSBFirst:
		return "msb"
	default:
		return fmt.Sprintf("BitOrder(%d)", uint8(o))
	}
}

// ParseBitOrder accepts "lsb", "lsb0", "lsb-first" and the msb counterparts (case-insensitive).
// An empty string yields LSBFirst.
func ParseBitOrder(s string) (BitOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lsb", "lsb0", "lsb-first", "lsb_first":
		return LSBFirst, nil
	case "msb", "msb0", "msb-first", "msb_first":
		return MSBFirst, nil
	}
	return LSBFirst, fmt.Errorf("unknown bit order %q", s)
}

// ByteOrder selects how multi-byte scalars are assembled.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big-endian"
	case LittleEndian:
		return "little-endian"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}
