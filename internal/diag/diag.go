// Package diag implements the compiler's fatal-diagnostic channel. Every
// error in this compiler is fatal (§7 "every error is fatal"): there is no
// recovery and no multi-error reporting. The first Diagnostic returned by
// any pipeline stage ends the run.
package diag

import (
	"fmt"
	"strings"

	"github.com/gmofishsauce/xcc/internal/token"
)

// Kind names the category of a fatal diagnostic, matching §7's fixed list.
type Kind string

const (
	Lex                Kind = "lex"
	Parse              Kind = "parse"
	Type               Kind = "type"
	Redeclaration      Kind = "redeclaration"
	Undeclared         Kind = "undeclared"
	IllegalInitializer Kind = "illegal-initializer"
	ControlFlow        Kind = "control-flow"
	Internal           Kind = "internal"
)

// Diagnostic is a single fatal error. It always carries the triggering
// token so the caret can be rendered — the original C compiler sometimes
// passed NULL here and lost the source location; this rewrite never does.
type Diagnostic struct {
	Kind Kind
	Tok  token.Token
	Msg  string
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	file := d.Tok.File
	if file == "" {
		file = "<stdin>"
	}
	fmt.Fprintf(&b, "%s:%d: %s: %s\n", file, d.Tok.Line, d.Kind, d.Msg)
	if d.Tok.Text != "" {
		fmt.Fprintf(&b, "%s\n", d.Tok.Text)
		col := d.Tok.Col
		if col < 0 {
			col = 0
		}
		b.WriteString(strings.Repeat(" ", col))
		b.WriteString("^")
	}
	return b.String()
}

// New builds a user-facing Diagnostic of the given kind at tok.
func New(kind Kind, tok token.Token, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// Bug builds an `internal` Diagnostic: an allocator invariant violation or
// an unimplemented AST/IR node kind, routed through a distinct channel per
// §7 so tests can assert "a bug was hit" without confusing it with a
// legitimate source-level error.
func Bug(tok token.Token, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: Internal, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// IsBug reports whether err is an internal diagnostic.
func IsBug(err error) bool {
	d, ok := err.(*Diagnostic)
	return ok && d.Kind == Internal
}
