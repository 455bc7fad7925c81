package cel

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/twinfer/bbp-plugin/pkg/blockparser"
)

// Rule applies a CEL expression to the arrays whose path matches Pattern.
// Pattern uses path.Match syntax over dotted field paths, "*" matches every array.
//
// An int result replaces the computed size; -1 turns the array into a
// whole-stream one. A bool result accepts the size as is or rejects it.
type Rule struct {
	Pattern string
	Expr    string
}

type compiledRule struct {
	Rule
	program cel.Program
}

// SizePolicy is a blockparser.ArraySizeController driven by CEL rules. The
// first matching rule wins; arrays no rule matches keep their size.
type SizePolicy struct {
	pool   *ExpressionPool
	rules  []compiledRule
	logger *slog.Logger
}

var _ blockparser.ArraySizeController = (*SizePolicy)(nil)

// NewSizePolicy compiles rules in pool. A nil pool gets a fresh one.
func NewSizePolicy(pool *ExpressionPool, logger *slog.Logger, rules ...Rule) (*SizePolicy, error) {
	if pool == nil {
		var err error
		if pool, err = NewExpressionPool(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &SizePolicy{pool: pool, logger: logger}
	for _, r := range rules {
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", r.Pattern, err)
		}
		prog, err := pool.GetExpression(r.Expr)
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, compiledRule{Rule: r, program: prog})
	}
	return p, nil
}

func (p *SizePolicy) match(fieldPath string) *compiledRule {
	fieldPath = strings.ToLower(fieldPath)
	for i := range p.rules {
		if ok, _ := path.Match(strings.ToLower(p.rules[i].Pattern), fieldPath); ok {
			return &p.rules[i]
		}
	}
	return nil
}

func (p *SizePolicy) ControlArraySize(ctx context.Context, req blockparser.ArraySizeRequest) (int, error) {
	rule := p.match(req.Path)
	if rule == nil {
		return req.Count, nil
	}
	out, err := p.pool.EvaluateExpression(rule.program, map[string]any{
		VarSize:     req.Count,
		VarName:     req.Name,
		VarPath:     req.Path,
		VarType:     req.TypeName,
		VarIsStruct: req.Struct,
	})
	if err != nil {
		return 0, &blockparser.IllegalArgumentError{Field: req.Path, Msg: fmt.Sprintf("size policy %q: %v", rule.Expr, err)}
	}

	switch v := out.(type) {
	case bool:
		if !v {
			p.logger.DebugContext(ctx, "Array size rejected by policy", "field", req.Path, "size", req.Count, "rule", rule.Expr)
			return 0, &blockparser.IllegalArgumentError{Field: req.Path, Msg: fmt.Sprintf("array size %d rejected by %q", req.Count, rule.Expr)}
		}
		return req.Count, nil
	case int64:
		if v != int64(req.Count) {
			p.logger.DebugContext(ctx, "Array size adjusted by policy", "field", req.Path, "size", req.Count, "adjusted", v)
		}
		return int(v), nil
	}
	return 0, &blockparser.IllegalArgumentError{Field: req.Path, Msg: fmt.Sprintf("size policy %q produced %T", rule.Expr, out)}
}
