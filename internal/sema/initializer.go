package sema

import (
	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// This file implements the flatten/fix-size/assign/clear initializer
// pipeline of original_source/src/cc/sema.c's flatten_initializer,
// fix_array_size, assign_initial_value and clear_initial_value,
// generalized from that file's single-pass C implementation into four
// cooperating passes over the ast.Initializer tree (§4.3, §13).

// fixArraySize resolves an `array of unknown length` declared type
// against its initializer, per §13's "array size inferred from
// initializer" rule: a char array gets the string literal's length
// (plus NUL), any other array gets its initializer list's length.
// Types with a known length, or non-array types, pass through unchanged.
func (a *Analyzer) fixArraySize(ty *types.Type, init *ast.Initializer, tok token.Token) *types.Type {
	if ty.Kind != types.Array || ty.ArrayLen != types.UnknownArrayLen {
		return ty
	}
	if init.Kind == ast.InitSingle {
		if sl, ok := unwrapStringLiteral(init.X); ok && isChar(ty.ElemType) {
			return types.NewArrayType(ty.ElemType, len(sl.Value)+1)
		}
		a.fail(diag.IllegalInitializer, tok, "array size cannot be inferred from this initializer")
	}
	if init.Kind == ast.InitMulti {
		return types.NewArrayType(ty.ElemType, len(init.List))
	}
	a.fail(diag.IllegalInitializer, tok, "invalid initializer for array of unknown size")
	return ty
}

func isChar(t *types.Type) bool { return t.Kind == types.Integer && t.Width == types.Char }

func unwrapStringLiteral(e ast.Expr) (*ast.StringLiteral, bool) {
	sl, ok := e.(*ast.StringLiteral)
	return sl, ok
}

// flattenInitializer reduces init against ty to a normalized tree with
// only InitSingle and InitMulti nodes, InitMulti laid out positionally
// (index i of List corresponds to element/member i, nil where nothing
// was mentioned), per flatten_initializer.
func (a *Analyzer) flattenInitializer(ty *types.Type, init *ast.Initializer) *ast.Initializer {
	switch ty.Kind {
	case types.Array:
		if isChar(ty.ElemType) && init.Kind == ast.InitSingle {
			if sl, ok := unwrapStringLiteral(init.X); ok {
				return a.charArrayFromString(ty, sl, init.Pos())
			}
		}
		return a.flattenAggregate(ty, init, ty.ArrayLen, func(i int) *types.Type { return ty.ElemType }, nil)
	case types.Struct, types.Union:
		si := ty.StructInfo
		return a.flattenAggregate(ty, init, len(si.Members), func(i int) *types.Type { return si.Members[i].Type }, si)
	default:
		return a.flattenScalar(ty, init)
	}
}

func (a *Analyzer) charArrayFromString(ty *types.Type, sl *ast.StringLiteral, tok token.Token) *ast.Initializer {
	n := ty.ArrayLen
	list := make([]*ast.Initializer, n)
	for i := 0; i < n; i++ {
		var b int64
		if i < len(sl.Value) {
			b = int64(sl.Value[i])
		}
		lit := ast.NewLiteral(tok, b, false, false)
		lit.SetType(types.TyChar)
		list[i] = ast.Single(tok, lit)
	}
	return ast.Multi(tok, list)
}

func (a *Analyzer) flattenScalar(ty *types.Type, init *ast.Initializer) *ast.Initializer {
	if init.Kind == ast.InitMulti {
		if len(init.List) != 1 {
			a.fail(diag.IllegalInitializer, init.Pos(), "too many braces around scalar initializer")
		}
		return a.flattenScalar(ty, init.List[0])
	}
	if init.Kind != ast.InitSingle {
		a.fail(diag.IllegalInitializer, init.Pos(), "invalid initializer")
	}
	xt := a.checkExprDecay(&init.X)
	init.X = a.castExpr(ty, init.X, xt, init.Pos())
	return init
}

// flattenAggregate positionally lays out an array/struct/union
// initializer's List, honoring InitIndex/InitDot designators by moving
// the current position, per §13's designated-initializer supplement.
func (a *Analyzer) flattenAggregate(ty *types.Type, init *ast.Initializer, n int, memberType func(int) *types.Type, si *types.StructInfo) *ast.Initializer {
	if init.Kind != ast.InitMulti {
		a.fail(diag.IllegalInitializer, init.Pos(), "invalid initializer for %s", ty)
	}
	if si != nil && si.IsUnion && len(init.List) > 1 {
		a.fail(diag.IllegalInitializer, init.Pos(), "too many initializers for %s", ty)
	}
	slots := make([]*ast.Initializer, n)
	pos := 0
	for _, item := range init.List {
		cur := item
		switch cur.Kind {
		case ast.InitIndex:
			pos = int(a.evalConstInt(cur.Index))
			cur = cur.Inner
		case ast.InitDot:
			if si == nil {
				a.fail(diag.IllegalInitializer, item.Pos(), "designated field initializer used on a non-struct type")
			}
			idx, m := si.FindMember(cur.Name)
			if m == nil {
				a.fail(diag.IllegalInitializer, item.Pos(), "no member named %q in %s", cur.Name, ty)
			}
			pos = idx
			cur = cur.Inner
		}
		if pos < 0 || pos >= n {
			a.fail(diag.IllegalInitializer, item.Pos(), "initializer index out of range for %s", ty)
		}
		slots[pos] = a.flattenInitializer(memberType(pos), cur)
		pos++
	}
	return ast.Multi(init.Pos(), slots)
}

// evalConstInt folds a designator index to a compile-time constant. It
// handles only the literal and unary-minus-of-literal forms designators
// actually use in practice; the general constant folder is the parser's
// parseConstExprFold.
func (a *Analyzer) evalConstInt(e ast.Expr) int64 {
	a.checkExpr(&e)
	switch n := e.(type) {
	case *ast.Literal:
		return n.IntVal
	case *ast.Unary:
		if n.Op == ast.Neg {
			return -a.evalConstInt(n.X)
		}
	}
	a.fail(diag.IllegalInitializer, e.Pos(), "initializer designator is not a constant expression")
	return 0
}

// assignInitialValue synthesizes the runtime assignment statements a
// local's initializer requires, per assign_initial_value: one ExprStmt
// per scalar leaf, built over Member/synthesized-subscript lvalues
// rooted at an Ident referring to v.
func (a *Analyzer) assignInitialValue(ty *types.Type, v *ast.VarInfo, flat *ast.Initializer, tok token.Token) []ast.Stmt {
	base := ast.NewIdent(tok, v.Name)
	base.SetType(ty)
	base.Sym = v
	var stmts []ast.Stmt
	a.emitInit(ty, base, flat, &stmts)
	return stmts
}

// emitInit walks ty/init in lockstep, appending one assignment per
// scalar leaf to *out. For a struct/array slot the caller never
// mentioned, it synthesizes a zero assignment (clear_initial_value) —
// except union members, which original_source/src/cc/sema.c's
// assert(!sinfo->is_union) guards against ever clearing, since writing
// one member of a union can stomp a sibling already written by an
// earlier designated initializer.
func (a *Analyzer) emitInit(ty *types.Type, target ast.Expr, init *ast.Initializer, out *[]ast.Stmt) {
	switch ty.Kind {
	case types.Array:
		n := ty.ArrayLen
		for i := 0; i < n; i++ {
			elemTarget := a.syntheticElemRef(target, ty.ElemType, i)
			var sub *ast.Initializer
			if init != nil && i < len(init.List) {
				sub = init.List[i]
			}
			a.emitInit(ty.ElemType, elemTarget, sub, out)
		}
	case types.Struct, types.Union:
		si := ty.StructInfo
		for i := range si.Members {
			m := &si.Members[i]
			var sub *ast.Initializer
			if init != nil && i < len(init.List) {
				sub = init.List[i]
			}
			if ty.Kind == types.Union && sub == nil {
				continue
			}
			mem := ast.NewMember(target.Pos(), target, m.Name, false)
			mem.Index = i
			mem.SetType(m.Type)
			a.emitInit(m.Type, mem, sub, out)
		}
	default:
		var rhs ast.Expr
		if init != nil && init.X != nil {
			rhs = init.X
		} else {
			zero := ast.NewLiteral(target.Pos(), 0, false, false)
			zero.SetType(ty)
			rhs = zero
		}
		assign := ast.NewAssign(target.Pos(), ast.AssignSimple, target, rhs)
		assign.SetType(ty)
		*out = append(*out, ast.NewExprStmt(target.Pos(), assign))
	}
}

// syntheticElemRef builds `*(base + i)`, the same lowering checkIndex
// performs for a source-level subscript, so the IR builder sees one
// uniform shape for both kinds of array element reference.
func (a *Analyzer) syntheticElemRef(base ast.Expr, elemTy *types.Type, i int) ast.Expr {
	tok := base.Pos()
	idx := ast.NewLiteral(tok, int64(i), false, false)
	idx.SetType(types.TyInt)
	addr := ast.NewBinary(tok, ast.Add, base, idx)
	addr.SetType(types.NewPointerType(elemTy))
	deref := ast.NewUnary(tok, ast.Deref, addr)
	deref.SetType(elemTy)
	return deref
}

// checkConstInitializer validates that every scalar leaf of a global's
// flattened initializer is a compile-time constant: a literal, a string
// literal, or the address of a global (possibly cast), per §4.3's
// "global initializers must be constant expressions".
func (a *Analyzer) checkConstInitializer(flat *ast.Initializer, tok token.Token) {
	switch flat.Kind {
	case ast.InitMulti:
		for _, sub := range flat.List {
			if sub != nil {
				a.checkConstInitializer(sub, tok)
			}
		}
	case ast.InitSingle:
		if !isConstExpr(flat.X) {
			a.fail(diag.IllegalInitializer, flat.Pos(), "initializer element is not a compile-time constant")
		}
	}
}

func isConstExpr(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Literal, *ast.StringLiteral:
		return true
	case *ast.Cast:
		return isConstExpr(n.X)
	case *ast.Unary:
		return n.Op == ast.Addr && isConstLvalue(n.X)
	}
	return false
}

func isConstLvalue(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Ident:
		return n.Sym != nil && n.Sym.IsGlobal
	case *ast.Member:
		return isConstLvalue(n.X)
	case *ast.Unary:
		return n.Op == ast.Deref && isConstExpr(n.X)
	}
	return false
}
