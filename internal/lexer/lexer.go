// Package lexer implements the Lexer of §4.1: a hand-written scanner
// producing a stream of token.Token values with full source-location
// payloads for diagnostics.
//
// Grounded on the character-scanning techniques of the teacher's
// lang/ylex/lexer.go (peek/peekN/advance, scanIdentifier, scanNumber's
// hex/octal/binary/decimal handling, scanCharLiteral/scanEscape's C
// escape table, scanString) — but the teacher's lexer is unusual in two
// ways this rewrite does NOT carry over: (1) it emits a textual
// "%d, %s, %s\n" line stream instead of real token values, because its
// downstream (yparse) reads lines back with a bufio.Scanner; (2) it
// intercepts const/var/struct declarations itself to fold array-dimension
// constant expressions at lex time. §4.1's contract is the simpler
// init/fetch/consume/unget/error producing a pure token stream, with
// constant folding left to internal/parser (parseConstExprFold), so this lexer does
// neither of those things — it is a straight text-to-Token scanner.
package lexer

import (
	"fmt"
	"strings"

	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/token"
)

// Lexer scans one source file into a pushback-buffered token stream.
type Lexer struct {
	filename string
	src      string
	pos      int // byte offset into src
	line     int
	lineStart int // byte offset where the current line began

	pushback   []token.Token // unget() stack, LIFO
}

// New creates a Lexer over src (already-preprocessed C text), reporting
// filename in diagnostics — the `init(source, filename)` operation of
// §4.1.
func New(filename, src string) *Lexer {
	return &Lexer{filename: filename, src: src, line: 1}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekN(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *Lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.lineStart = l.pos
	}
	return c
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.src) }

// currentLineText returns the full text of the line currently being
// scanned, for caret diagnostics.
func (l *Lexer) currentLineText() string {
	end := strings.IndexByte(l.src[l.lineStart:], '\n')
	if end < 0 {
		return l.src[l.lineStart:]
	}
	return l.src[l.lineStart : l.lineStart+end]
}

func (l *Lexer) mk(kind token.Kind) token.Token {
	return token.Token{
		Kind: kind,
		File: l.filename,
		Line: l.line,
		Text: l.currentLineText(),
		Col:  l.pos - l.lineStart,
	}
}

func (l *Lexer) errorf(format string, args ...any) *diag.Diagnostic {
	t := l.mk(0)
	return diag.New(diag.Lex, t, format, args...)
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isDigit(c byte) bool    { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isOctalDigit(c byte) bool { return c >= '0' && c <= '7' }

func (l *Lexer) skipWhitespaceAndComments() error {
	for !l.atEOF() {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekN(1) == '/':
			for !l.atEOF() && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekN(1) == '*':
			startLine := l.line
			l.advance()
			l.advance()
			closed := false
			for !l.atEOF() {
				if l.peek() == '*' && l.peekN(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return l.errorf("unterminated comment starting on line %d", startLine)
			}
		default:
			return nil
		}
	}
	return nil
}

// Fetch scans and returns the next token — §4.1's `fetch()`.
func (l *Lexer) Fetch() (token.Token, error) {
	if n := len(l.pushback); n > 0 {
		t := l.pushback[n-1]
		l.pushback = l.pushback[:n-1]
		return t, nil
	}
	if err := l.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	if l.atEOF() {
		return l.mk(token.EOF), nil
	}
	c := l.peek()
	switch {
	case c == '"':
		return l.scanString()
	case c == '\'':
		return l.scanCharLiteral()
	case isDigit(c):
		return l.scanNumber()
	case isLetter(c):
		return l.scanIdentifier(), nil
	default:
		return l.scanPunct()
	}
}

// Consume returns (tok, true) and advances if the next token has kind k;
// otherwise it ungets nothing and returns (zero, false) — §4.1
// `consume(kind)`.
func (l *Lexer) Consume(k token.Kind) (token.Token, bool, error) {
	t, err := l.Fetch()
	if err != nil {
		return token.Token{}, false, err
	}
	if t.Kind == k {
		return t, true, nil
	}
	l.Unget(t)
	return token.Token{}, false, nil
}

// Unget pushes back exactly one token — §4.1 `unget(token)`. The parser
// never ungets more than one token without an intervening fetch, but the
// stack shape tolerates it.
func (l *Lexer) Unget(t token.Token) {
	l.pushback = append(l.pushback, t)
}

func (l *Lexer) scanIdentifier() token.Token {
	start := l.pos
	startLine, startCol := l.line, l.pos-l.lineStart
	for !l.atEOF() && (isLetter(l.peek()) || isDigit(l.peek())) {
		l.advance()
	}
	name := l.src[start:l.pos]
	t := token.Token{File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol}
	if kw, ok := token.Lookup(name); ok {
		t.Kind = kw
	} else {
		t.Kind = token.Ident
		t.Name = name
	}
	return t
}

func (l *Lexer) scanNumber() (token.Token, error) {
	start := l.pos
	startLine, startCol := l.line, l.pos-l.lineStart
	base := 10
	if l.peek() == '0' && (l.peekN(1) == 'x' || l.peekN(1) == 'X') {
		l.advance()
		l.advance()
		base = 16
		for !l.atEOF() && (isHexDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	} else if l.peek() == '0' && isOctalDigit(l.peekN(1)) {
		l.advance()
		base = 8
		for !l.atEOF() && (isOctalDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	} else {
		for !l.atEOF() && (isDigit(l.peek()) || l.peek() == '_') {
			l.advance()
		}
	}
	digits := strings.ReplaceAll(l.src[start:l.pos], "_", "")
	var val int64
	var err error
	switch base {
	case 16:
		val, err = parseUint(digits[2:], 16)
	case 8:
		val, err = parseUint(digits, 8)
	default:
		val, err = parseUint(digits, 10)
	}
	if err != nil {
		return token.Token{}, l.errorf("integer out of range: %s", digits)
	}

	isLong := false
	isUnsigned := false
	for !l.atEOF() {
		c := l.peek()
		if c == 'l' || c == 'L' {
			isLong = true
			l.advance()
		} else if c == 'u' || c == 'U' {
			isUnsigned = true
			l.advance()
		} else {
			break
		}
	}
	kind := token.IntLit
	if isLong || val > 0x7fffffff {
		kind = token.LongLit
	}
	return token.Token{
		Kind: kind, File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol,
		IntVal: val, Unsigned: isUnsigned,
	}, nil
}

func parseUint(s string, base int) (int64, error) {
	if s == "" {
		s = "0"
	}
	var v uint64
	for _, c := range []byte(s) {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			return 0, fmt.Errorf("bad digit %q", c)
		}
		if d >= uint64(base) {
			return 0, fmt.Errorf("digit %q out of range for base %d", c, base)
		}
		v = v*uint64(base) + d
	}
	return int64(v), nil
}

// scanEscape consumes a backslash escape sequence (the backslash itself
// has already been consumed) and returns the decoded byte. Mirrors the
// teacher's scanEscape table, including \xNN hex escapes.
func (l *Lexer) scanEscape() (byte, error) {
	if l.atEOF() {
		return 0, l.errorf("unterminated escape sequence")
	}
	c := l.advance()
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\':
		return '\\', nil
	case '\'':
		return '\'', nil
	case '"':
		return '"', nil
	case 'a':
		return 7, nil
	case 'b':
		return 8, nil
	case 'f':
		return 12, nil
	case 'v':
		return 11, nil
	case 'x':
		var v byte
		n := 0
		for !l.atEOF() && isHexDigit(l.peek()) && n < 2 {
			v = v*16 + hexValue(l.advance())
			n++
		}
		if n == 0 {
			return 0, l.errorf("bad escape: \\x with no hex digits")
		}
		return v, nil
	default:
		return 0, l.errorf("bad escape: \\%c", c)
	}
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func (l *Lexer) scanString() (token.Token, error) {
	startLine, startCol := l.line, l.pos-l.lineStart
	l.advance() // opening quote
	var buf []byte
	for {
		if l.atEOF() || l.peek() == '\n' {
			return token.Token{}, l.errorf("unterminated string literal")
		}
		c := l.peek()
		if c == '"' {
			l.advance()
			break
		}
		if c == '\\' {
			l.advance()
			b, err := l.scanEscape()
			if err != nil {
				return token.Token{}, err
			}
			buf = append(buf, b)
			continue
		}
		buf = append(buf, l.advance())
	}
	return token.Token{
		Kind: token.StringLit, File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol,
		Str: buf,
	}, nil
}

func (l *Lexer) scanCharLiteral() (token.Token, error) {
	startLine, startCol := l.line, l.pos-l.lineStart
	l.advance() // opening quote
	if l.atEOF() {
		return token.Token{}, l.errorf("unterminated char literal")
	}
	var v byte
	if l.peek() == '\\' {
		l.advance()
		b, err := l.scanEscape()
		if err != nil {
			return token.Token{}, err
		}
		v = b
	} else {
		v = l.advance()
	}
	if l.atEOF() || l.peek() != '\'' {
		return token.Token{}, l.errorf("unterminated char literal")
	}
	l.advance()
	return token.Token{
		Kind: token.CharLit, File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol,
		IntVal: int64(int8(v)),
	}, nil
}

// multiCharPuncts lists every multi-character punctuator recognised
// before its single-character prefix (§4.1 step 6), longest first so
// e.g. "<<=" is tried before "<<" before "<".
var multiCharPuncts = []struct {
	s string
	k token.Kind
}{
	{"...", token.Ellipsis},
	{"<<=", token.ShlAssign},
	{">>=", token.ShrAssign},
	{"<<", token.Shl}, {">>", token.Shr},
	{"==", token.Eq}, {"!=", token.Ne}, {"<=", token.Le}, {">=", token.Ge},
	{"&&", token.AndAnd}, {"||", token.OrOr}, {"->", token.Arrow},
	{"++", token.Inc}, {"--", token.Dec},
	{"+=", token.AddAssign}, {"-=", token.SubAssign}, {"*=", token.MulAssign},
	{"/=", token.DivAssign}, {"%=", token.ModAssign},
	{"&=", token.AndAssign}, {"|=", token.OrAssign}, {"^=", token.XorAssign},
}

func (l *Lexer) scanPunct() (token.Token, error) {
	startLine, startCol := l.line, l.pos-l.lineStart
	rest := l.src[l.pos:]
	for _, mc := range multiCharPuncts {
		if strings.HasPrefix(rest, mc.s) {
			for range mc.s {
				l.advance()
			}
			return token.Token{Kind: mc.k, File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol}, nil
		}
	}
	c := l.advance()
	if c < 0x20 || c > 0x7e {
		return token.Token{}, l.errorf("unexpected character %q", c)
	}
	return token.Token{Kind: token.Kind(c), File: l.filename, Line: startLine, Text: l.currentLineText(), Col: startCol}, nil
}
