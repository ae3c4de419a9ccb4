package sema

import (
	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// checkExpr types the expression held in *slot, replacing *slot in place
// when the node itself must be lowered (subscript → *(a+b), per §3) and
// returning the resulting type. It does not insert array/function decay
// casts — callers that need an rvalue call checkExprDecay instead, so
// that `&arr` and `sizeof(arr)` see the un-decayed array type (§4.3).
func (a *Analyzer) checkExpr(slot *ast.Expr) *types.Type {
	switch n := (*slot).(type) {
	case *ast.Literal:
		return a.typeLiteral(n)
	case *ast.StringLiteral:
		ty := types.NewArrayType(types.TyChar, len(n.Value)+1)
		n.SetType(ty)
		return ty
	case *ast.Ident:
		v, _ := a.scope.Lookup(n.Name)
		if v == nil {
			a.fail(diag.Undeclared, n.Pos(), "undeclared identifier %q", n.Name)
		}
		n.Sym = v
		n.SetType(v.Type)
		return v.Type
	case *ast.Binary:
		return a.checkBinary(n)
	case *ast.Unary:
		return a.checkUnary(n)
	case *ast.Index:
		return a.checkIndex(slot, n)
	case *ast.Member:
		return a.checkMember(n)
	case *ast.Cast:
		a.checkExprDecay(&n.X)
		return n.GetType()
	case *ast.Call:
		return a.checkCall(n)
	case *ast.Cond:
		return a.checkCond(n)
	case *ast.Comma:
		a.checkExpr(&n.X)
		t := a.checkExprDecay(&n.Y)
		n.SetType(t)
		return t
	case *ast.Assign:
		return a.checkAssign(n)
	case *ast.IncDec:
		t := a.checkExpr(&n.X)
		a.requireLvalue(n.X)
		if !t.IsArithmetic() && t.Kind != types.Pointer {
			a.fail(diag.Type, n.Pos(), "%s requires an arithmetic or pointer operand", incDecName(n))
		}
		n.SetType(t)
		return t
	case *ast.SizeofExpr:
		a.checkExpr(&n.X)
		n.SetType(types.TyULong)
		return types.TyULong
	case *ast.SizeofType:
		n.SetType(types.TyULong)
		return types.TyULong
	}
	a.bug((*slot).Pos(), "sema: unhandled expression kind %T", *slot)
	return nil
}

func incDecName(n *ast.IncDec) string {
	if n.Inc {
		return "++"
	}
	return "--"
}

// checkExprDecay types *slot and, if the result is an array or function
// type, wraps *slot in an implicit Cast to the decayed pointer type
// (§4.3 "decay to pointer to char" generalised to every array/function
// used where a value is required).
func (a *Analyzer) checkExprDecay(slot *ast.Expr) *types.Type {
	t := a.checkExpr(slot)
	switch t.Kind {
	case types.Array:
		pty := types.NewPointerType(t.ElemType)
		*slot = ast.NewCast((*slot).Pos(), *slot, pty, true)
		return pty
	case types.Function:
		pty := types.NewPointerType(t)
		*slot = ast.NewCast((*slot).Pos(), *slot, pty, true)
		return pty
	}
	return t
}

func (a *Analyzer) typeLiteral(n *ast.Literal) *types.Type {
	var ty *types.Type
	switch {
	case n.Unsigned && (n.IsLong || uint64(n.IntVal) > 0xFFFFFFFF):
		ty = types.TyULong
	case n.Unsigned:
		ty = types.TyUInt
	case n.IsLong || n.IntVal > 0x7fffffff || n.IntVal < -0x80000000:
		ty = types.TyLong
	default:
		ty = types.TyInt
	}
	n.SetType(ty)
	return ty
}

func (a *Analyzer) requireLvalue(e ast.Expr) {
	switch n := e.(type) {
	case *ast.Ident, *ast.Member:
		return
	case *ast.Unary:
		if n.Op == ast.Deref {
			return
		}
	}
	a.fail(diag.Type, e.Pos(), "expression is not assignable")
}

func identVar(e ast.Expr) *ast.VarInfo {
	if id, ok := e.(*ast.Ident); ok {
		return id.Sym
	}
	return nil
}

// checkIndex lowers `a[i]` to `*(a+i)`, per §3's "subscript (lowered to
// *(a+b))" and §4.3.
func (a *Analyzer) checkIndex(slot *ast.Expr, n *ast.Index) *types.Type {
	xt := a.checkExprDecay(&n.X)
	it := a.checkExprDecay(&n.I)
	if xt.Kind != types.Pointer {
		a.fail(diag.Type, n.Pos(), "subscripted value is not an array or pointer")
	}
	if !it.IsIntegral() {
		a.fail(diag.Type, n.Pos(), "array subscript is not an integer")
	}
	add := ast.NewBinary(n.Pos(), ast.Add, n.X, n.I)
	add.SetType(xt)
	deref := ast.NewUnary(n.Pos(), ast.Deref, add)
	rt := xt.Pointee()
	deref.SetType(rt)
	*slot = deref
	return rt
}

func (a *Analyzer) checkMember(n *ast.Member) *types.Type {
	baseTy := a.checkExpr(&n.X)
	st := baseTy
	if n.Arrow {
		if baseTy.Kind != types.Pointer {
			a.fail(diag.Type, n.Pos(), "-> requires a pointer operand")
		}
		st = baseTy.Pointee()
	}
	if st.Kind != types.Struct && st.Kind != types.Union {
		a.fail(diag.Type, n.Pos(), "member reference on a non-struct/union type")
	}
	idx, m := st.StructInfo.FindMember(n.Field)
	if m == nil {
		a.fail(diag.Type, n.Pos(), "no member named %q in %s", n.Field, st)
	}
	n.Index = idx
	n.SetType(m.Type)
	return m.Type
}

func (a *Analyzer) checkCall(n *ast.Call) *types.Type {
	rawFt := a.checkExpr(&n.Callee)
	var ftype *types.Type
	switch {
	case rawFt.Kind == types.Function:
		ftype = rawFt
	case rawFt.Kind == types.Pointer && rawFt.ElemType.Kind == types.Function:
		ftype = rawFt.ElemType
	default:
		a.fail(diag.Type, n.Pos(), "called object is not a function")
	}
	if len(n.Args) < len(ftype.Params) || (!ftype.Variadic && len(n.Args) != len(ftype.Params)) {
		a.fail(diag.Type, n.Pos(), "wrong number of arguments to call")
	}
	for i := range n.Args {
		at := a.checkExprDecay(&n.Args[i])
		if i < len(ftype.Params) {
			n.Args[i] = a.castExpr(ftype.Params[i], n.Args[i], at, n.Pos())
		}
	}
	n.SetType(ftype.Return)
	return ftype.Return
}

func (a *Analyzer) checkCond(n *ast.Cond) *types.Type {
	ct := a.checkExprDecay(&n.C)
	if !ct.IsArithmetic() && ct.Kind != types.Pointer {
		a.fail(diag.Type, n.Pos(), "ternary condition must be arithmetic or pointer")
	}
	tt := a.checkExprDecay(&n.T)
	ft := a.checkExprDecay(&n.F)
	rt := a.commonType(tt, ft, n.Pos())
	n.T = a.castExpr(rt, n.T, tt, n.Pos())
	n.F = a.castExpr(rt, n.F, ft, n.Pos())
	n.SetType(rt)
	return rt
}

func (a *Analyzer) checkAssign(n *ast.Assign) *types.Type {
	lt := a.checkExpr(&n.LHS)
	a.requireLvalue(n.LHS)
	if v := identVar(n.LHS); v != nil && v.Flags&ast.FlagConst != 0 {
		a.fail(diag.Type, n.Pos(), "assignment to const-qualified %q", v.Name)
	}
	rt := a.checkExprDecay(&n.RHS)
	if op, isCompound := n.Op.BinOpOf(); isCompound {
		if !validBinaryOperands(op, lt, rt) {
			a.fail(diag.Type, n.Pos(), "invalid operand types for compound assignment")
		}
	}
	n.RHS = a.castExpr(lt, n.RHS, rt, n.Pos())
	n.SetType(lt)
	return lt
}

func validBinaryOperands(op ast.BinOp, x, y *types.Type) bool {
	if (op == ast.Add || op == ast.Sub) && x.Kind == types.Pointer && y.IsIntegral() {
		return true
	}
	return x.IsArithmetic() && y.IsArithmetic()
}

func (a *Analyzer) checkUnary(n *ast.Unary) *types.Type {
	switch n.Op {
	case ast.Addr:
		t := a.checkExpr(&n.X)
		a.requireLvalue(n.X)
		if id := identVar(n.X); id != nil {
			id.Flags |= ast.FlagAddressTaken
		}
		rt := types.NewPointerType(t)
		n.SetType(rt)
		return rt
	case ast.Deref:
		t := a.checkExprDecay(&n.X)
		if t.Kind != types.Pointer {
			a.fail(diag.Type, n.Pos(), "indirection requires a pointer operand")
		}
		rt := t.Pointee()
		n.SetType(rt)
		return rt
	case ast.Not:
		t := a.checkExprDecay(&n.X)
		if !t.IsArithmetic() && t.Kind != types.Pointer {
			a.fail(diag.Type, n.Pos(), "invalid operand to !")
		}
		n.SetType(types.TyInt)
		return types.TyInt
	default: // Neg, BitNot, Plus
		t := a.checkExprDecay(&n.X)
		if !t.IsArithmetic() {
			a.fail(diag.Type, n.Pos(), "invalid operand to unary %s", n.Op)
		}
		rt := promote(t)
		n.SetType(rt)
		return rt
	}
}

func (a *Analyzer) checkBinary(n *ast.Binary) *types.Type {
	xt := a.checkExprDecay(&n.X)
	yt := a.checkExprDecay(&n.Y)

	if n.Op.IsComparison() {
		ct := a.commonTypeForCompare(xt, yt, n.Pos())
		n.X = a.castExpr(ct, n.X, xt, n.Pos())
		n.Y = a.castExpr(ct, n.Y, yt, n.Pos())
		n.SetType(types.TyInt)
		return types.TyInt
	}

	if (n.Op == ast.Add || n.Op == ast.Sub) && xt.Kind == types.Pointer && yt.IsIntegral() {
		n.SetType(xt)
		return xt
	}
	if n.Op == ast.Add && yt.Kind == types.Pointer && xt.IsIntegral() {
		n.X, n.Y = n.Y, n.X
		n.SetType(yt)
		return yt
	}
	if n.Op == ast.Sub && xt.Kind == types.Pointer && yt.Kind == types.Pointer {
		n.SetType(types.TyLong)
		return types.TyLong
	}

	if !xt.IsArithmetic() || !yt.IsArithmetic() {
		a.fail(diag.Type, n.Pos(), "invalid operand types for %s", n.Op)
	}
	ct := a.usualArith(xt, yt)
	n.X = a.castExpr(ct, n.X, xt, n.Pos())
	n.Y = a.castExpr(ct, n.Y, yt, n.Pos())
	n.SetType(ct)
	return ct
}

// usualArith implements §4.3's "usual arithmetic conversions": promote
// below int up to int, then widen to the wider of the two, unsigned
// winning ties at the same width.
func (a *Analyzer) usualArith(x, y *types.Type) *types.Type {
	px, py := promote(x), promote(y)
	w := px.Width
	if py.Width > w {
		w = py.Width
	}
	unsigned := (px.Width == w && px.Unsigned) || (py.Width == w && py.Unsigned)
	return intType(w, unsigned)
}

func promote(t *types.Type) *types.Type {
	if t.Width < types.Int {
		return types.TyInt
	}
	return t
}

func intType(w types.IntWidth, unsigned bool) *types.Type {
	switch {
	case w == types.Long && unsigned:
		return types.TyULong
	case w == types.Long:
		return types.TyLong
	case unsigned:
		return types.TyUInt
	default:
		return types.TyInt
	}
}

func (a *Analyzer) commonTypeForCompare(xt, yt *types.Type, tok token.Token) *types.Type {
	switch {
	case xt.IsArithmetic() && yt.IsArithmetic():
		return a.usualArith(xt, yt)
	case xt.Kind == types.Pointer && yt.Kind == types.Pointer:
		return xt
	case xt.Kind == types.Pointer && yt.IsIntegral():
		return xt
	case yt.Kind == types.Pointer && xt.IsIntegral():
		return yt
	}
	a.fail(diag.Type, tok, "incomparable operand types")
	return nil
}

func (a *Analyzer) commonType(tt, ft *types.Type, tok token.Token) *types.Type {
	switch {
	case tt.IsArithmetic() && ft.IsArithmetic():
		return a.usualArith(tt, ft)
	case tt.Kind == types.Pointer && ft.Kind == types.Pointer:
		return tt
	case tt.Kind == types.Pointer && ft.IsIntegral():
		return tt
	case ft.Kind == types.Pointer && tt.IsIntegral():
		return ft
	case tt.Equal(ft):
		return tt
	}
	a.fail(diag.Type, tok, "incompatible operand types in conditional expression")
	return nil
}

// castExpr wraps e in an implicit Cast to target, or returns e unchanged
// if it is already of that type, per §4.3 "assignment requires the
// source be castable to the destination".
func (a *Analyzer) castExpr(target *types.Type, e ast.Expr, from *types.Type, tok token.Token) ast.Expr {
	if from.Equal(target) {
		return e
	}
	if !castable(from, target) {
		a.fail(diag.Type, tok, "cannot convert %s to %s", from, target)
	}
	return ast.NewCast(tok, e, target, true)
}

func castable(from, to *types.Type) bool {
	switch {
	case from.IsArithmetic() && to.IsArithmetic():
		return true
	case from.IsPointer() && to.IsPointer():
		return true
	case from.IsIntegral() && to.Kind == types.Pointer:
		return true
	case from.Kind == types.Pointer && to.IsIntegral():
		return true
	}
	return false
}
