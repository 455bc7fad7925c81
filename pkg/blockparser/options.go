package blockparser

import (
	"log/slog"
	"strings"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
)

// Flags change runtime behaviour of a compiled schema.
type Flags uint8

const (
	// FlagSkipRemainingFieldsIfEOF stops parsing quietly when the data runs out
	// before a field starts. Fields not reached are absent from the tree.
	FlagSkipRemainingFieldsIfEOF Flags = 1 << iota
	// FlagNegativeExpressionResultAsZero treats negative computed counts as zero instead of failing.
	FlagNegativeExpressionResultAsZero
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSkipRemainingFieldsIfEOF, "skip-remaining-fields-on-eof"},
	{FlagNegativeExpressionResultAsZero, "negative-size-as-zero"},
}

// Has reports whether every flag of f2 is set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

func (f Flags) String() string {
	var parts []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlag maps a flag name as used in schema documents to its value.
func ParseFlag(name string) (Flags, bool) {
	for _, n := range flagNames {
		if strings.EqualFold(n.name, name) {
			return n.flag, true
		}
	}
	return 0, false
}

type compileOptions struct {
	bitOrder    bitio.BitOrder
	flags       Flags
	customTypes []CustomFieldType
	logger      *slog.Logger
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

// WithBitOrder sets the bit order of every stream the schema reads or writes. LSB first by default.
func WithBitOrder(order bitio.BitOrder) CompileOption {
	return func(o *compileOptions) { o.bitOrder = order }
}

// WithFlags sets the runtime flags.
func WithFlags(flags Flags) CompileOption {
	return func(o *compileOptions) { o.flags |= flags }
}

// WithCustomTypes registers processors for type names outside the built-in set.
func WithCustomTypes(types ...CustomFieldType) CompileOption {
	return func(o *compileOptions) { o.customTypes = append(o.customTypes, types...) }
}

// WithCompileLogger sets the logger for compilation. slog.Default() is used when nil.
func WithCompileLogger(logger *slog.Logger) CompileOption {
	return func(o *compileOptions) { o.logger = logger }
}

type runOptions struct {
	varProcessor VarFieldProcessor
	externals    ExternalValueProvider
	sizes        ArraySizeController
	logger       *slog.Logger
}

// ParseOption configures a single Parse, Write or BuildTree call.
type ParseOption func(*runOptions)

// WithVarFieldProcessor handles var fields.
func WithVarFieldProcessor(p VarFieldProcessor) ParseOption {
	return func(o *runOptions) { o.varProcessor = p }
}

// WithExternalValueProvider resolves $name references and field references that have no value.
func WithExternalValueProvider(p ExternalValueProvider) ParseOption {
	return func(o *runOptions) { o.externals = p }
}

// WithArraySizeController lets the caller veto or adjust every array size before reading.
func WithArraySizeController(c ArraySizeController) ParseOption {
	return func(o *runOptions) { o.sizes = c }
}

// WithLogger sets the logger of the call. The schema's compile logger is used when nil.
func WithLogger(logger *slog.Logger) ParseOption {
	return func(o *runOptions) { o.logger = logger }
}
