package blockparser

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/twinfer/bbp-plugin/pkg/bitio"
)

type clauseKind uint8

const (
	clauseField clauseKind = iota
	clauseStructStart
	clauseStructEnd
)

// clause is one statement of a script: the text before a ';', before a '{', or a lone '}'.
type clause struct {
	kind clauseKind
	text string
	line int
}

// splitClauses cuts a script into clauses, dropping // comments.
func splitClauses(script string) ([]clause, error) {
	var (
		out       []clause
		buf       strings.Builder
		line      = 1
		startLine = 0
		depth     = 0
	)
	lineOf := func() int {
		if startLine == 0 {
			return line
		}
		return startLine
	}
	emit := func(kind clauseKind) {
		out = append(out, clause{kind: kind, text: strings.TrimSpace(buf.String()), line: lineOf()})
		buf.Reset()
		startLine = 0
	}
	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		case ch == '\n':
			line++
			buf.WriteRune(' ')
			continue
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			depth--
		case depth == 0 && ch == ';':
			if strings.TrimSpace(buf.String()) == "" {
				buf.Reset()
				startLine = 0
				continue
			}
			emit(clauseField)
			continue
		case depth == 0 && ch == '{':
			emit(clauseStructStart)
			continue
		case depth == 0 && ch == '}':
			if rest := strings.TrimSpace(buf.String()); rest != "" {
				return nil, &CompilationError{Line: lineOf(), Clause: rest, Msg: "missing ';' before '}'"}
			}
			buf.Reset()
			startLine = 0
			out = append(out, clause{kind: clauseStructEnd, text: "}", line: line})
			continue
		}
		if startLine == 0 && !unicode.IsSpace(ch) {
			startLine = line
		}
		buf.WriteRune(ch)
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		return nil, &CompilationError{Line: lineOf(), Clause: rest, Msg: "missing ';' at end of script"}
	}
	return out, nil
}

// fieldClause is the raw shape of a field or action clause:
//
//	[<|>] type[:extra] [[count]] [name]
type fieldClause struct {
	byteOrder    bitio.ByteOrder
	hasByteOrder bool
	typeName     string
	extra        string
	hasExtra     bool
	count        string
	hasCount     bool
	name         string
}

// structClause is the raw shape of a structure header: [name] [[count]] {
type structClause struct {
	name     string
	count    string
	hasCount bool
}

type clauseScanner struct {
	s   []rune
	pos int
}

func (sc *clauseScanner) skipSpace() {
	for sc.pos < len(sc.s) && unicode.IsSpace(sc.s[sc.pos]) {
		sc.pos++
	}
}

func (sc *clauseScanner) done() bool {
	sc.skipSpace()
	return sc.pos >= len(sc.s)
}

func (sc *clauseScanner) peek() rune {
	if sc.pos >= len(sc.s) {
		return 0
	}
	return sc.s[sc.pos]
}

// ident reads a name. Type names may end with '$' so that reset$$ is one word.
func (sc *clauseScanner) ident(allowDollar bool) string {
	start := sc.pos
	if sc.pos < len(sc.s) && (unicode.IsLetter(sc.s[sc.pos]) || sc.s[sc.pos] == '_') {
		sc.pos++
		for sc.pos < len(sc.s) {
			c := sc.s[sc.pos]
			if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || (allowDollar && c == '$') {
				sc.pos++
				continue
			}
			break
		}
	}
	return string(sc.s[start:sc.pos])
}

// balanced reads from an opening rune up to and including its matching closing rune.
func (sc *clauseScanner) balanced(openCh, closeCh rune) (string, error) {
	start := sc.pos
	depth := 0
	for ; sc.pos < len(sc.s); sc.pos++ {
		switch sc.s[sc.pos] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				sc.pos++
				return string(sc.s[start:sc.pos]), nil
			}
		}
	}
	return "", fmt.Errorf("missing %q", closeCh)
}

func (sc *clauseScanner) extra() (string, error) {
	sc.skipSpace()
	if sc.peek() == '(' {
		return sc.balanced('(', ')')
	}
	start := sc.pos
	if sc.peek() == '-' {
		sc.pos++
	}
	for sc.pos < len(sc.s) && unicode.IsDigit(sc.s[sc.pos]) {
		sc.pos++
	}
	if raw := string(sc.s[start:sc.pos]); raw != "" && raw != "-" {
		return raw, nil
	}
	return "", fmt.Errorf("expected a number or a parenthesised expression after ':'")
}

func (sc *clauseScanner) arrayCount() (string, error) {
	raw, err := sc.balanced('[', ']')
	if err != nil {
		return "", err
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return "", fmt.Errorf("empty array size")
	}
	return inner, nil
}

func scanFieldClause(text string) (fieldClause, error) {
	var fc fieldClause
	sc := &clauseScanner{s: []rune(text)}
	sc.skipSpace()
	switch sc.peek() {
	case '<':
		fc.byteOrder, fc.hasByteOrder = bitio.LittleEndian, true
		sc.pos++
	case '>':
		fc.byteOrder, fc.hasByteOrder = bitio.BigEndian, true
		sc.pos++
	}
	sc.skipSpace()
	fc.typeName = strings.ToLower(sc.ident(true))
	if fc.typeName == "" {
		return fc, fmt.Errorf("expected a type name")
	}
	sc.skipSpace()
	if sc.peek() == ':' {
		sc.pos++
		extra, err := sc.extra()
		if err != nil {
			return fc, err
		}
		fc.extra, fc.hasExtra = extra, true
	}
	sc.skipSpace()
	if sc.peek() == '[' {
		count, err := sc.arrayCount()
		if err != nil {
			return fc, err
		}
		fc.count, fc.hasCount = count, true
	}
	sc.skipSpace()
	fc.name = sc.ident(false)
	if !sc.done() {
		return fc, fmt.Errorf("unexpected %q", string(sc.s[sc.pos:]))
	}
	return fc, nil
}

func scanStructClause(text string) (structClause, error) {
	var st structClause
	sc := &clauseScanner{s: []rune(text)}
	sc.skipSpace()
	st.name = sc.ident(false)
	sc.skipSpace()
	if sc.peek() == '[' {
		count, err := sc.arrayCount()
		if err != nil {
			return st, err
		}
		st.count, st.hasCount = count, true
	}
	if !sc.done() {
		return st, fmt.Errorf("unexpected %q in structure header", string(sc.s[sc.pos:]))
	}
	return st, nil
}
