// Package externals supplies values for $name references in block scripts
// from expr-lang programs.
//
// Each name maps to an expression evaluated when the block parser asks for it:
//
//	p, err := externals.New(map[string]string{
//		"count":   "field('header.len') * 2",
//		"padding": "version >= 2 ? 4 : 0",
//	}, externals.WithVariables(map[string]any{"version": 3}))
//
// Inside an expression, field(path) returns the current value of a parsed
// numeric field, has(path) reports whether the field has a value, name holds
// the requested name and every caller variable is visible by its key.
package externals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"maps"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/twinfer/bbp-plugin/pkg/blockparser"
)

// ErrUnknownName is returned for names that have no expression.
var ErrUnknownName = errors.New("externals: unknown name")

// Provider implements blockparser.ExternalValueProvider. It is immutable and
// safe for concurrent use.
type Provider struct {
	programs map[string]*vm.Program
	fallback *vm.Program
	vars     map[string]any
	logger   *slog.Logger
}

var _ blockparser.ExternalValueProvider = (*Provider)(nil)

type options struct {
	vars     map[string]any
	fallback string
	logger   *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithVariables makes vars visible to every expression by key.
func WithVariables(vars map[string]any) Option {
	return func(o *options) { o.vars = vars }
}

// WithFallback sets the expression used for names without their own entry.
func WithFallback(src string) Option {
	return func(o *options) { o.fallback = src }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New compiles one expression per name. Names are case-insensitive.
func New(exprs map[string]string, opts ...Option) (*Provider, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	p := &Provider{
		programs: make(map[string]*vm.Program, len(exprs)),
		vars:     maps.Clone(o.vars),
		logger:   o.logger,
	}
	sample := p.env("", nil, new(string))
	for name, src := range exprs {
		prog, err := compile(src, sample)
		if err != nil {
			return nil, fmt.Errorf("externals: compile %q: %w", name, err)
		}
		p.programs[strings.ToLower(name)] = prog
	}
	if o.fallback != "" {
		prog, err := compile(o.fallback, sample)
		if err != nil {
			return nil, fmt.Errorf("externals: compile fallback: %w", err)
		}
		p.fallback = prog
	}
	return p, nil
}

func compile(src string, env map[string]any) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(env), expr.AsInt())
}

// env builds the expression environment. A field lookup without a value
// records the path in missing.
func (p *Provider) env(name string, values blockparser.NumericValues, missing *string) map[string]any {
	env := make(map[string]any, len(p.vars)+3)
	maps.Copy(env, p.vars)
	env["name"] = name
	env["has"] = func(path string) bool {
		if values == nil {
			return false
		}
		_, ok := values.Value(path)
		return ok
	}
	env["field"] = func(path string) int {
		if values == nil {
			return 0
		}
		v, ok := values.Value(path)
		if !ok && *missing == "" {
			*missing = path
		}
		return int(v)
	}
	return env
}

func (p *Provider) ExternalValue(ctx context.Context, name string, values blockparser.NumericValues) (int32, error) {
	prog, ok := p.programs[strings.ToLower(name)]
	if !ok {
		prog = p.fallback
	}
	if prog == nil {
		return 0, fmt.Errorf("%w %q", ErrUnknownName, name)
	}

	var missing string
	out, err := expr.Run(prog, p.env(name, values, &missing))
	if err != nil {
		p.logger.ErrorContext(ctx, "External value expression failed", "name", name, "error", err)
		return 0, fmt.Errorf("externals: evaluate %q: %w", name, err)
	}
	if missing != "" {
		return 0, fmt.Errorf("externals: evaluate %q: field %q has no value", name, missing)
	}
	v, ok := out.(int)
	if !ok {
		return 0, fmt.Errorf("externals: %q produced %T", name, out)
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("externals: %q produced %d, out of 32-bit range", name, v)
	}
	p.logger.DebugContext(ctx, "Resolved external value", "name", name, "value", v)
	return int32(v), nil
}
