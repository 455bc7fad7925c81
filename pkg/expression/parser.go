package expression

import (
	"fmt"
	"math"
	"strconv"
)

// Precedence levels, lowest first.
type Precedence int

const (
	_ Precedence = iota
	LowestPrecedence
	BitwiseOrPrecedence      // |
	BitwiseXorPrecedence     // ^
	BitwiseAndPrecedence     // &
	ShiftPrecedence          // << >> >>>
	AdditivePrecedence       // + -
	MultiplicativePrecedence // * / %
	UnaryPrecedence          // - + ~
)

var precedences = map[TokenType]Precedence{
	TokenBitOr:   BitwiseOrPrecedence,
	TokenBitXor:  BitwiseXorPrecedence,
	TokenBitAnd:  BitwiseAndPrecedence,
	TokenLShift:  ShiftPrecedence,
	TokenRShift:  ShiftPrecedence,
	TokenURShift: ShiftPrecedence,
	TokenPlus:    AdditivePrecedence,
	TokenMinus:   AdditivePrecedence,
	TokenStar:    MultiplicativePrecedence,
	TokenSlash:   MultiplicativePrecedence,
	TokenMod:     MultiplicativePrecedence,
}

var binaryOps = map[TokenType]BinOpKind{
	TokenStar:    BinOpMul,
	TokenSlash:   BinOpDiv,
	TokenMod:     BinOpMod,
	TokenPlus:    BinOpAdd,
	TokenMinus:   BinOpSub,
	TokenLShift:  BinOpLShift,
	TokenRShift:  BinOpRShift,
	TokenURShift: BinOpURShift,
	TokenBitAnd:  BinOpBitAnd,
	TokenBitXor:  BinOpBitXor,
	TokenBitOr:   BinOpBitOr,
}

// Parser builds an expression tree from lexer tokens. Identifiers are bound to
// symbols through the resolver while parsing.
type Parser struct {
	lexer    *Lexer
	resolver Resolver
	token    Token
	peek     Token
	errors   []string
}

// NewParser creates a Parser. A nil resolver rejects every field reference.
func NewParser(lexer *Lexer, resolver Resolver) *Parser {
	p := &Parser{lexer: lexer, resolver: resolver}
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the accumulated parse errors.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) addError(tok Token, format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf("at %d:%d: %s", tok.Line, tok.Column, fmt.Sprintf(format, args...)))
}

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) peekPrecedence() Precedence {
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return LowestPrecedence
}

// Parse parses the whole input. The result is nil whenever Errors is not empty.
func (p *Parser) Parse() Node {
	if p.token.Type == TokenEOF {
		p.addError(p.token, "empty expression")
		return nil
	}
	node := p.parseExpression(LowestPrecedence)
	if len(p.errors) == 0 && p.peek.Type != TokenEOF {
		p.addError(p.peek, "unexpected %s", p.peek)
	}
	if len(p.errors) > 0 {
		return nil
	}
	return node
}

func (p *Parser) parseExpression(prec Precedence) Node {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}
	for p.peek.Type != TokenEOF && prec < p.peekPrecedence() {
		op, ok := binaryOps[p.peek.Type]
		if !ok {
			return left
		}
		p.nextToken()
		left = p.parseInfix(op, left)
		if left == nil {
			return nil
		}
	}
	return left
}

func (p *Parser) parsePrefix() Node {
	tok := p.token
	pos := Pos{tok.Line, tok.Column}
	switch tok.Type {
	case TokenNumber:
		v, err := parseIntLiteral(tok.Literal)
		if err != nil {
			p.addError(tok, "%v", err)
			return nil
		}
		return &IntLit{Value: v, P: pos}
	case TokenIdent:
		if p.resolver == nil {
			p.addError(tok, "unknown field %q", tok.Literal)
			return nil
		}
		sym, err := p.resolver.Resolve(tok.Literal)
		if err != nil {
			p.addError(tok, "%v", err)
			return nil
		}
		return &FieldRef{Path: tok.Literal, Symbol: sym, P: pos}
	case TokenCounter:
		return &Counter{P: pos}
	case TokenCurrent:
		return &Current{P: pos}
	case TokenExternal:
		return &External{Name: tok.Literal, P: pos}
	case TokenLParen:
		p.nextToken()
		inner := p.parseExpression(LowestPrecedence)
		if inner == nil {
			return nil
		}
		if p.peek.Type != TokenRParen {
			p.addError(p.peek, "expected ) got %s", p.peek)
			return nil
		}
		p.nextToken()
		return inner
	case TokenMinus, TokenPlus, TokenBitNot:
		op := UnOpNeg
		if tok.Type == TokenPlus {
			op = UnOpPlus
		} else if tok.Type == TokenBitNot {
			op = UnOpBitNot
		}
		p.nextToken()
		arg := p.parseExpression(UnaryPrecedence)
		if arg == nil {
			return nil
		}
		return &UnOp{Op: op, Arg: arg, P: pos}
	case TokenEOF:
		p.addError(tok, "unexpected end of expression")
	default:
		p.addError(tok, "unexpected %s", tok)
	}
	return nil
}

func (p *Parser) parseInfix(op BinOpKind, left Node) Node {
	tok := p.token
	prec := precedences[tok.Type]
	p.nextToken()
	right := p.parseExpression(prec)
	if right == nil {
		return nil
	}
	return &BinOp{Op: op, Left: left, Right: right, P: Pos{tok.Line, tok.Column}}
}

// parseIntLiteral accepts decimal, 0x, 0o and 0b literals up to 32 unsigned bits.
// Values above MaxInt32 wrap, so 0xFFFFFFFF is -1.
func parseIntLiteral(lit string) (int32, error) {
	base := 0
	if len(lit) > 1 && lit[0] == '0' && lit[1] >= '0' && lit[1] <= '9' {
		base = 10
	}
	v, err := strconv.ParseUint(lit, base, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed number %q", lit)
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("number %s does not fit in 32 bits", lit)
	}
	return int32(uint32(v)), nil
}
