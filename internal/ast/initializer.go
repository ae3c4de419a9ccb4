package ast

import "github.com/gmofishsauce/xcc/internal/token"

// InitKind discriminates the four Initializer variants of §3.
type InitKind int

const (
	InitSingle InitKind = iota
	InitMulti
	InitDot
	InitIndex
)

// Initializer is the recursive value §3 describes: `single(expr)`,
// `multi(list of initializer)`, `dot(name, initializer)` (designated
// struct field), or `index(constant, initializer)` (designated array
// element). internal/sema's flatten_initializer reduces any of these to
// only InitSingle/InitMulti, with InitMulti laid out positionally.
//
// Grounded on original_source/src/cc/sema.c's vSingle/vMulti/vDot/vArr
// tags; the teacher's own ast.go has no designated-initializer node
// (its ArrayInitExpr is flat), so this type is new rather than adapted.
type Initializer struct {
	Tok token.Token
	Kind InitKind

	X Expr // InitSingle

	List []*Initializer // InitMulti

	Name  string       // InitDot
	Inner *Initializer // InitDot, InitIndex

	Index Expr // InitIndex, constant-folded by sema before use
}

func (i *Initializer) Pos() token.Token { return i.Tok }

// Single builds a single(expr) initializer.
func Single(tok token.Token, x Expr) *Initializer {
	return &Initializer{Tok: tok, Kind: InitSingle, X: x}
}

// Multi builds a multi(list) initializer.
func Multi(tok token.Token, list []*Initializer) *Initializer {
	return &Initializer{Tok: tok, Kind: InitMulti, List: list}
}

// Dot builds a dot(name, inner) designated initializer.
func Dot(tok token.Token, name string, inner *Initializer) *Initializer {
	return &Initializer{Tok: tok, Kind: InitDot, Name: name, Inner: inner}
}

// IndexInit builds an index(constant, inner) designated initializer.
func IndexInit(tok token.Token, idx Expr, inner *Initializer) *Initializer {
	return &Initializer{Tok: tok, Kind: InitIndex, Index: idx, Inner: inner}
}
