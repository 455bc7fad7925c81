package expression

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType enumerates the lexical tokens of the size expression language.
type TokenType int

const (
	TokenIllegal TokenType = iota
	TokenEOF

	TokenIdent    // len, header.size
	TokenNumber   // 12, 0x1F, 0b101
	TokenCounter  // $$
	TokenCurrent  // $_
	TokenExternal // $name

	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenMod     // %
	TokenBitAnd  // &
	TokenBitOr   // |
	TokenBitXor  // ^
	TokenBitNot  // ~
	TokenLShift  // <<
	TokenRShift  // >>
	TokenURShift // >>>

	TokenLParen // (
	TokenRParen // )
)

var tokenNames = map[TokenType]string{
	TokenIllegal:  "ILLEGAL",
	TokenEOF:      "EOF",
	TokenIdent:    "IDENT",
	TokenNumber:   "NUMBER",
	TokenCounter:  "$$",
	TokenCurrent:  "$_",
	TokenExternal: "EXTERNAL",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenSlash:    "/",
	TokenMod:      "%",
	TokenBitAnd:   "&",
	TokenBitOr:    "|",
	TokenBitXor:   "^",
	TokenBitNot:   "~",
	TokenLShift:   "<<",
	TokenRShift:   ">>",
	TokenURShift:  ">>>",
	TokenLParen:   "(",
	TokenRParen:   ")",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TOKEN(%d)", int(t))
}

// Token is a lexical token with its 1-indexed source position.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

func (t Token) String() string {
	switch t.Type {
	case TokenIdent, TokenNumber, TokenExternal, TokenIllegal:
		return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Literal, t.Line, t.Column)
	}
	return fmt.Sprintf("%s at %d:%d", t.Type, t.Line, t.Column)
}

// Lexer splits an expression source into tokens.
type Lexer struct {
	input []rune
	pos   int
	line  int
	col   int
}

// NewLexer creates a Lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{input: []rune(src), line: 1, col: 1}
}

func (l *Lexer) ch() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peek() rune {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

// NextToken scans and returns the next token. TokenEOF is returned repeatedly at the end.
func (l *Lexer) NextToken() Token {
	for unicode.IsSpace(l.ch()) {
		l.advance()
	}
	tok := Token{Line: l.line, Column: l.col}

	single := func(t TokenType) Token {
		tok.Type = t
		tok.Literal = string(l.ch())
		l.advance()
		return tok
	}

	switch c := l.ch(); {
	case c == 0:
		tok.Type = TokenEOF
		return tok
	case c == '+':
		return single(TokenPlus)
	case c == '-':
		return single(TokenMinus)
	case c == '*':
		return single(TokenStar)
	case c == '/':
		return single(TokenSlash)
	case c == '%':
		return single(TokenMod)
	case c == '&':
		return single(TokenBitAnd)
	case c == '|':
		return single(TokenBitOr)
	case c == '^':
		return single(TokenBitXor)
	case c == '~':
		return single(TokenBitNot)
	case c == '(':
		return single(TokenLParen)
	case c == ')':
		return single(TokenRParen)
	case c == '<':
		if l.peek() != '<' {
			return single(TokenIllegal)
		}
		l.advance()
		l.advance()
		tok.Type, tok.Literal = TokenLShift, "<<"
		return tok
	case c == '>':
		if l.peek() != '>' {
			return single(TokenIllegal)
		}
		l.advance()
		l.advance()
		tok.Type, tok.Literal = TokenRShift, ">>"
		if l.ch() == '>' {
			l.advance()
			tok.Type, tok.Literal = TokenURShift, ">>>"
		}
		return tok
	case c == '$':
		return l.readDollar(tok)
	case isIdentStart(c):
		tok.Type = TokenIdent
		tok.Literal = l.readPath()
		return tok
	case c >= '0' && c <= '9':
		tok.Type = TokenNumber
		tok.Literal = l.readNumber()
		return tok
	default:
		return single(TokenIllegal)
	}
}

func (l *Lexer) readDollar(tok Token) Token {
	l.advance()
	switch c := l.ch(); {
	case c == '$':
		l.advance()
		tok.Type, tok.Literal = TokenCounter, "$$"
	case c == '_' && !isIdentPart(l.peek()):
		l.advance()
		tok.Type, tok.Literal = TokenCurrent, "$_"
	case isIdentStart(c):
		tok.Type = TokenExternal
		tok.Literal = l.readPath()
	default:
		tok.Type, tok.Literal = TokenIllegal, "$"
	}
	return tok
}

// readPath reads an identifier and any dot separated continuation.
func (l *Lexer) readPath() string {
	var sb strings.Builder
	for {
		for isIdentPart(l.ch()) {
			sb.WriteRune(l.ch())
			l.advance()
		}
		if l.ch() != '.' || !isIdentStart(l.peek()) {
			return sb.String()
		}
		sb.WriteRune('.')
		l.advance()
	}
}

// readNumber reads a numeric literal including any trailing identifier
// characters, so "12ab" becomes one malformed literal instead of two tokens.
func (l *Lexer) readNumber() string {
	var sb strings.Builder
	for isIdentPart(l.ch()) {
		sb.WriteRune(l.ch())
		l.advance()
	}
	return sb.String()
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
