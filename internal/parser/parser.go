// Package parser implements the Parser of §4.2: recursive descent over a
// token stream, producing the ast.Program plus a struct/union/enum/typedef
// namespace. There is no error recovery (§4.2 "No recovery: this is a
// fail-fast compiler") — the first unexpected token aborts the parse.
//
// The teacher's own recursive-descent parser implementation (yparse's
// parser.go) is missing from the retrieval pack — only its supporting
// token.go/types.go/symtab.go/ast.go/main.go survive — so this file is
// written from scratch, but it is built to the exact shapes those
// surviving files establish: TokenReader's Peek/Next/Expect/ExpectKeyword
// idiom (generalised here into cur/advance/expect over a growable
// lookahead buffer, since the C declarator grammar needs unbounded
// backtracking that a single-token Peek cannot support) and the
// ast.go baseExpr/interface layout §4.2 is parsed directly into.
package parser

import (
	"fmt"

	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/lexer"
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// Parser holds one translation unit's worth of parsing state: the token
// lookahead buffer and the typedef/struct/enum-constant namespaces that
// accumulate across the whole file (§4.2 "tracked in a per-translation-
// unit map").
type Parser struct {
	lex *lexer.Lexer
	la  []token.Token
	idx int

	typedefs   map[string]*types.Type
	structTags map[string]*types.StructInfo
	enumConsts map[string]int64

	// paramNames records the parameter names parsed alongside a function
	// type's signature, keyed by the exact *types.Type NewFuncType
	// returned. types.Type carries only Params ([]*types.Type) because
	// names are not part of a function type's structural identity
	// (§3 "equality is structural") — a function pointer's declared type
	// doesn't care what its parameters are called — but parseFuncDef
	// still needs the names to populate the defined function's scope, so
	// they travel out-of-band here instead of changing Type's shape.
	paramNames map[*types.Type][]string
}

// New creates a Parser over lex.
func New(lex *lexer.Lexer) *Parser {
	return &Parser{
		lex:        lex,
		typedefs:   make(map[string]*types.Type),
		structTags: make(map[string]*types.StructInfo),
		enumConsts: make(map[string]int64),
		paramNames: make(map[*types.Type][]string),
	}
}

// abort is the panic payload used to unwind to ParseProgram on the first
// error, per §4.2's fail-fast policy. This is the same no-recovery
// discipline the teacher's own parsers enforce with a fatal os.Exit(1);
// panic/recover is the idiomatic Go analogue for a recursive-descent
// parser (used the same way in go/parser itself) since it unwinds an
// arbitrarily deep call stack without every frame threading an error.
type abort struct{ d *diag.Diagnostic }

func (p *Parser) fail(tok token.Token, format string, args ...any) {
	panic(abort{diag.New(diag.Parse, tok, format, args...)})
}

// ParseProgram parses the whole translation unit.
func (p *Parser) ParseProgram() (prog *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if a, ok := r.(abort); ok {
				err = a.d
				return
			}
			panic(r)
		}
	}()
	prog = &ast.Program{}
	for !p.at(token.EOF) {
		decls := p.parseTopLevelDecl()
		prog.Decls = append(prog.Decls, decls...)
	}
	return prog, nil
}

// ---- lookahead buffer ----

func (p *Parser) fill(n int) {
	for len(p.la) <= n {
		t, err := p.lex.Fetch()
		if err != nil {
			panic(abort{err.(*diag.Diagnostic)})
		}
		p.la = append(p.la, t)
	}
}

func (p *Parser) cur() token.Token {
	p.fill(p.idx)
	return p.la[p.idx]
}

func (p *Parser) peekAt(off int) token.Token {
	p.fill(p.idx + off)
	return p.la[p.idx+off]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	p.idx++
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) accept(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	return token.Token{}, false
}

func (p *Parser) expect(k token.Kind) token.Token {
	t, ok := p.accept(k)
	if !ok {
		p.fail(p.cur(), "expected %s, got %s", kindName(k), p.cur().String())
	}
	return t
}

func kindName(k token.Kind) string {
	if k < 256 {
		return fmt.Sprintf("%q", rune(k))
	}
	return token.Token{Kind: k}.String()
}

func (p *Parser) mark() int      { return p.idx }
func (p *Parser) reset(m int)    { p.idx = m }

// isTypeStart reports whether the current token can begin a declaration
// specifier — used to disambiguate a declaration from an expression
// statement and to implement the parser's "is this identifier a type?"
// hook into the typedef map (§4.2, cooperative: parser queries, lexer
// does not).
func (p *Parser) isTypeStart() bool {
	switch p.cur().Kind {
	case token.KwVoid, token.KwChar, token.KwShort, token.KwInt, token.KwLong,
		token.KwUnsigned, token.KwSigned, token.KwConst, token.KwStatic, token.KwExtern,
		token.KwStruct, token.KwUnion, token.KwEnum, token.KwTypedef:
		return true
	case token.Ident:
		_, ok := p.typedefs[p.cur().Name]
		return ok
	}
	return false
}
