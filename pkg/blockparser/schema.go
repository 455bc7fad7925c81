// Package blockparser compiles block layout scripts and runs them against byte streams.
//
// A script is a list of clauses separated by ';':
//
//	byte len;            // signed byte
//	<int [len] values;   // little endian int array sized by a previous field
//	bit:3 flags;         // three bits
//	header [2] { ubyte id; string name; }
//	val:(len*4) size;    // computed, never read or written
//	align:4; skip:(len); reset$$;
//	byte [_] rest;       // everything left
//
// Compile produces an immutable Schema that can parse and write any number of
// streams concurrently.
package blockparser

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
)

// Schema is a compiled script. It is immutable and safe for concurrent use.
type Schema struct {
	script      string
	bitOrder    bitio.BitOrder
	flags       Flags
	instrs      []Instruction
	symbols     []Symbol
	byPath      map[string]int
	customTypes map[string]CustomFieldType
	logger      *slog.Logger
}

// Script returns the source the schema was compiled from.
func (s *Schema) Script() string { return s.script }

func (s *Schema) BitOrder() bitio.BitOrder { return s.bitOrder }

func (s *Schema) Flags() Flags { return s.flags }

// Instructions returns a copy of the compiled instruction list.
func (s *Schema) Instructions() []Instruction { return slices.Clone(s.instrs) }

// Symbols returns a copy of the symbol table in declaration order.
func (s *Schema) Symbols() []Symbol { return slices.Clone(s.symbols) }

// FindSymbol looks up a named field by its full path, ignoring case.
func (s *Schema) FindSymbol(path string) (Symbol, bool) {
	i, ok := s.byPath[strings.ToLower(path)]
	if !ok {
		return Symbol{}, false
	}
	return s.symbols[i], true
}

// CustomTypes lists the custom type names the schema was compiled with.
func (s *Schema) CustomTypes() []string {
	names := make([]string, 0, len(s.customTypes))
	for name := range s.customTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Schema) runOptions(opts []ParseOption) *runOptions {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = s.logger
	}
	return o
}
