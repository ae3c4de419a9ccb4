package sema

import (
	"fmt"

	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/types"
)

// checkFunc types one function body, per §4.3. Parameters are declared
// into a fresh scope nested directly under the global scope (C has no
// separate "parameter scope" visible to this compiler), curLoop/
// switchStack start empty, and at the end every `goto` collected along
// the way must name a label that was actually declared somewhere in the
// body (§4.3 "goto collects the destination label ... must match a
// declared label").
func (a *Analyzer) checkFunc(n *ast.FuncDecl) {
	prevFunc, prevScope, prevLoop, prevSwitch := a.curFunc, a.scope, a.curLoop, a.switchStack
	a.curFunc = n
	a.scope = ast.NewScope(a.global)
	a.curLoop = 0
	a.switchStack = nil
	defer func() {
		a.curFunc, a.scope, a.curLoop, a.switchStack = prevFunc, prevScope, prevLoop, prevSwitch
	}()

	for i, p := range n.Params {
		v := &ast.VarInfo{Name: p.Name, Type: p.Type, Storage: ast.StorageParam, ParamIndex: i, VReg: -1}
		if a.scope.DeclaredHere(p.Name) {
			a.fail(diag.Redeclaration, n.Pos(), "duplicate parameter %q", p.Name)
		}
		a.scope.Declare(v)
	}

	n.Body.Scope = ast.NewScope(a.scope)
	a.checkBlockIn(n.Body)

	for _, g := range n.Gotos {
		if _, ok := n.Labels[g.Label]; !ok {
			a.fail(diag.ControlFlow, g.Tok, "goto to undeclared label %q", g.Label)
		}
	}
}

// checkStmt type-checks and validates one statement, dispatching on
// kind. Control-flow statements (break/continue/case/default) consult
// curLoop/switchStack, mirroring original_source/src/cc/sema.c's single
// large switch over statement kinds, generalized per §13 to use two
// independent bits (lfBreak, lfContinue) rather than the original's
// buggy shared bit.
func (a *Analyzer) checkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		a.checkExprDecay(&n.X)
	case *ast.Block:
		if n.Scope == nil {
			n.Scope = ast.NewScope(a.scope)
		}
		a.checkBlockIn(n)
	case *ast.If:
		a.checkExprDecay(&n.Cond)
		a.checkStmt(n.Then)
		if n.Else != nil {
			a.checkStmt(n.Else)
		}
	case *ast.Switch:
		a.checkSwitch(n)
	case *ast.Case:
		a.checkCase(n)
	case *ast.Default:
		a.checkDefault(n)
	case *ast.While:
		a.checkExprDecay(&n.Cond)
		a.withLoop(func() { a.checkStmt(n.Body) })
	case *ast.DoWhile:
		a.withLoop(func() { a.checkStmt(n.Body) })
		a.checkExprDecay(&n.Cond)
	case *ast.For:
		scope := ast.NewScope(a.scope)
		a.inScope(scope, func() {
			if n.Init != nil {
				a.checkStmt(n.Init)
			}
			if n.Cond != nil {
				a.checkExprDecay(&n.Cond)
			}
			if n.Post != nil {
				a.checkExprDecay(&n.Post)
			}
			a.withLoop(func() { a.checkStmt(n.Body) })
		})
	case *ast.Break:
		if a.curLoop&lfBreak == 0 {
			a.fail(diag.ControlFlow, n.Pos(), "break statement not within a loop or switch")
		}
	case *ast.Continue:
		if a.curLoop&lfContinue == 0 {
			a.fail(diag.ControlFlow, n.Pos(), "continue statement not within a loop")
		}
	case *ast.Return:
		a.checkReturn(n)
	case *ast.Goto:
		a.curFunc.Gotos = append(a.curFunc.Gotos, ast.GotoRef{Label: n.Label, Tok: n.Pos()})
	case *ast.Labeled:
		if _, dup := a.curFunc.Labels[n.Label]; dup {
			a.fail(diag.Redeclaration, n.Pos(), "duplicate label %q", n.Label)
		}
		a.curFunc.Labels[n.Label] = n.Pos()
		a.checkStmt(n.Stmt)
	case *ast.LocalDecl:
		for _, d := range n.Decls {
			a.checkLocalVarDecl(d)
		}
	default:
		a.bug(s.Pos(), "sema: unhandled statement kind %T", s)
	}
}

// withLoop runs body with lfBreak|lfContinue set, restoring the prior
// curLoop afterward so a loop nested inside a switch still sees the
// switch's lfBreak without leaking its own lfContinue outward (§13).
func (a *Analyzer) withLoop(body func()) {
	prev := a.curLoop
	a.curLoop = lfBreak | lfContinue
	body()
	a.curLoop = prev
}

func (a *Analyzer) inScope(scope *ast.Scope, body func()) {
	prev := a.scope
	a.scope = scope
	body()
	a.scope = prev
}

func (a *Analyzer) checkBlockIn(n *ast.Block) {
	a.inScope(n.Scope, func() {
		for _, st := range n.Stmts {
			a.checkStmt(st)
		}
	})
}

// checkSwitch validates a switch statement body, pushing a switchCtx so
// Case/Default statements nested anywhere inside Body (including inside
// further nested blocks, but not inside a nested switch) can validate
// duplicate labels against this switch specifically.
func (a *Analyzer) checkSwitch(n *ast.Switch) {
	xt := a.checkExprDecay(&n.X)
	if !xt.IsIntegral() {
		a.fail(diag.Type, n.Pos(), "switch quantity is not an integer")
	}
	ctx := &switchCtx{sw: n}
	a.switchStack = append(a.switchStack, ctx)
	prevLoop := a.curLoop
	a.curLoop |= lfBreak
	a.checkStmt(n.Body)
	a.curLoop = prevLoop
	a.switchStack = a.switchStack[:len(a.switchStack)-1]
	n.HasDefault = ctx.hasDefault
}

func (a *Analyzer) checkCase(n *ast.Case) {
	if len(a.switchStack) == 0 {
		a.fail(diag.ControlFlow, n.Pos(), "case label not within a switch statement")
	}
	ctx := a.switchStack[len(a.switchStack)-1]
	if ctx.seen == nil {
		ctx.seen = make(map[int64]bool)
	}
	if ctx.seen[n.Value] {
		a.fail(diag.ControlFlow, n.Pos(), "duplicate case value %d", n.Value)
	}
	ctx.seen[n.Value] = true
	ctx.sw.CaseValues = append(ctx.sw.CaseValues, n.Value)
}

func (a *Analyzer) checkDefault(n *ast.Default) {
	if len(a.switchStack) == 0 {
		a.fail(diag.ControlFlow, n.Pos(), "default label not within a switch statement")
	}
	ctx := a.switchStack[len(a.switchStack)-1]
	if ctx.hasDefault {
		a.fail(diag.ControlFlow, n.Pos(), "multiple default labels in one switch")
	}
	ctx.hasDefault = true
}

func (a *Analyzer) checkReturn(n *ast.Return) {
	rt := a.curFunc.Type.Return
	isVoid := rt.Kind == types.Void
	if n.X == nil {
		if !isVoid {
			a.fail(diag.Type, n.Pos(), "non-void function %q must return a value", a.curFunc.Name)
		}
		return
	}
	if isVoid {
		a.fail(diag.Type, n.Pos(), "void function %q must not return a value", a.curFunc.Name)
	}
	xt := a.checkExprDecay(&n.X)
	n.X = a.castExpr(rt, n.X, xt, n.Pos())
}

// checkLocalVarDecl declares one local (or block-scope static) variable
// and lowers its initializer, per §4.3/§13. A `static` local is declared
// as a global VarInfo under a mangled label, mirroring the original
// compiler's treatment of function-scope statics as file-scope objects
// with a name the linker will never collide on.
func (a *Analyzer) checkLocalVarDecl(d *ast.VarDecl) {
	if d.Type.Kind == types.Void {
		a.fail(diag.Type, d.Pos(), "variable %q declared void", d.Name)
	}
	if d.Storage == ast.StorageStatic {
		a.staticLabel++
		label := fmt.Sprintf("%s.%s.%d", a.curFunc.Name, d.Name, a.staticLabel)
		v := &ast.VarInfo{Name: d.Name, Type: d.Type, Storage: ast.StorageStatic, IsGlobal: true, Label: label}
		if a.scope.DeclaredHere(d.Name) {
			a.fail(diag.Redeclaration, d.Pos(), "redeclaration of %q", d.Name)
		}
		a.scope.Declare(v)
		d.Sym = v
		if d.Init != nil {
			a.checkGlobalInitializer(d, v)
		}
		return
	}

	if a.scope.DeclaredHere(d.Name) {
		a.fail(diag.Redeclaration, d.Pos(), "redeclaration of %q", d.Name)
	}
	v := &ast.VarInfo{Name: d.Name, Type: d.Type, Storage: ast.StorageAuto, VReg: -1}
	a.scope.Declare(v)
	d.Sym = v

	if d.Init != nil {
		d.Type = a.fixArraySize(d.Type, d.Init, d.Pos())
		v.Type = d.Type
		flat := a.flattenInitializer(d.Type, d.Init)
		d.Inits = a.assignInitialValue(d.Type, v, flat, d.Pos())
	}
}

// checkGlobalVarDecl checks a top-level variable's initializer, which
// must reduce to compile-time constants (§4.3) rather than the runtime
// assignment statements a local gets.
func (a *Analyzer) checkGlobalVarDecl(n *ast.VarDecl) {
	v, _ := a.global.Lookup(n.Name)
	if n.Init == nil {
		return
	}
	a.checkGlobalInitializer(n, v)
}

func (a *Analyzer) checkGlobalInitializer(n *ast.VarDecl, v *ast.VarInfo) {
	n.Type = a.fixArraySize(n.Type, n.Init, n.Pos())
	v.Type = n.Type
	flat := a.flattenInitializer(n.Type, n.Init)
	a.checkConstInitializer(flat, n.Pos())
	v.Init = flat
}
