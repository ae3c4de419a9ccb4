package ir

import (
	"fmt"

	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// Builder lowers one typed ast.FuncDecl body into a Function's basic-
// block graph, per §4.4. Every local variable (auto or static-as-
// global aside, param included) gets exactly one persistent VReg for
// its whole lifetime, mutated in place by MOV/STORE — the conventional
// "virtual register represents a variable" IR shape, not strict SSA;
// §8's "no two instructions in a basic block assign the same vreg
// unless it's the three-to-two rewrite's MOV" is read as binding
// compiler-generated temporaries (each expression's intermediate
// result gets a fresh VReg) rather than a surface variable's long-lived
// home register — see DESIGN.md's note on the non-SSA,
// persistent-vreg-per-variable model.
type Builder struct {
	prog *Program

	fn      *Function
	cur     *BasicBlock
	exit    *BasicBlock
	retVReg *VReg

	vars       map[*ast.VarInfo]*VReg
	vregCount  int
	blockCount int
	labels     map[string]*BasicBlock

	breakTarget    []*BasicBlock
	continueTarget []*BasicBlock
	stringCount    int
}

// NewBuilder creates a Builder accumulating into a fresh Program.
func NewBuilder() *Builder {
	return &Builder{prog: &Program{}}
}

// Program returns the accumulated lowering result.
func (b *Builder) Program() *Program { return b.prog }

// abort is the fail-fast unwind payload, mirroring internal/sema's own
// panic/recover discipline (§7 "every error is fatal").
type abort struct{ d *diag.Diagnostic }

// bug raises an internal diagnostic for an IR-lowering invariant
// violation or an unhandled AST shape sema should already have ruled
// out — these never carry a useful source token of their own, since
// they're compiler bugs rather than source errors.
func bug(format string, args ...any) {
	panic(abort{diag.Bug(token.Token{}, format, args...)})
}

// Build lowers every function definition in prog into a *Program,
// recovering any internal bug raised during lowering as an error
// rather than crashing the process.
func Build(prog *ast.Program) (p *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ab, ok := r.(abort); ok {
				err = ab.d
				return
			}
			panic(r)
		}
	}()
	b := NewBuilder()
	for _, d := range prog.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok && fn.Body != nil {
			b.BuildFunc(fn)
		}
	}
	b.lowerGlobals(prog)
	return b.Program(), nil
}

// lowerGlobals appends every file-scope VarDecl's emission record —
// skipping functions and typedefs, which emit nothing themselves.
func (b *Builder) lowerGlobals(prog *ast.Program) {
	for _, d := range prog.Decls {
		vd, ok := d.(*ast.VarDecl)
		if !ok || vd.Sym == nil {
			continue
		}
		g := &Global{Label: vd.Sym.Label, Size: vd.Type.Sizeof()}
		if vd.Sym.Init != nil {
			g.Init = b.flattenGlobalInit(vd.Type, vd.Sym.Init, 0)
		}
		b.prog.Globals = append(b.prog.Globals, g)
	}
}

// flattenGlobalInit walks a normalized (post-sema) initializer tree
// into the flat InitValue slots the ELF writer's data segment expects.
func (b *Builder) flattenGlobalInit(ty *types.Type, init *ast.Initializer, base int) []InitValue {
	if init == nil {
		return nil
	}
	if init.Kind == ast.InitMulti {
		var out []InitValue
		switch ty.Kind {
		case types.Array:
			elemSize := ty.ElemType.Sizeof()
			for i, sub := range init.List {
				out = append(out, b.flattenGlobalInit(ty.ElemType, sub, base+i*elemSize)...)
			}
		case types.Struct, types.Union:
			for i, sub := range init.List {
				if i >= len(ty.StructInfo.Members) {
					break
				}
				m := ty.StructInfo.Members[i]
				out = append(out, b.flattenGlobalInit(m.Type, sub, base+m.Offset)...)
			}
		}
		return out
	}
	return []InitValue{globalScalarInit(ty, init.X, base)}
}

func globalScalarInit(ty *types.Type, e ast.Expr, offset int) InitValue {
	sz := ty.Sizeof()
	switch x := e.(type) {
	case *ast.Literal:
		return InitValue{Offset: offset, Size: sz, Imm: x.IntVal}
	case *ast.Unary:
		if x.Op == ast.Neg {
			if lit, ok := x.X.(*ast.Literal); ok {
				return InitValue{Offset: offset, Size: sz, Imm: -lit.IntVal}
			}
		}
		if x.Op == ast.Addr {
			if id, ok := x.X.(*ast.Ident); ok {
				return InitValue{Offset: offset, Size: sz, Label: id.Sym.Label}
			}
		}
	case *ast.Cast:
		return globalScalarInit(ty, x.X, offset)
	case *ast.Ident:
		return InitValue{Offset: offset, Size: sz, Label: x.Sym.Label}
	}
	bug("ir: unsupported global initializer shape %T", e)
	return InitValue{}
}

// BuildFunc lowers one function definition, appending it to b.Program().
func (b *Builder) BuildFunc(n *ast.FuncDecl) {
	b.fn = &Function{Name: n.Name}
	b.vars = make(map[*ast.VarInfo]*VReg)
	b.vregCount = 0
	b.blockCount = 0
	b.labels = make(map[string]*BasicBlock)

	entry := b.newBlock("entry")
	b.cur = entry
	b.exit = b.newBlock("exit")

	if n.Type.Return.Kind != types.Void {
		b.retVReg = b.newVReg(n.Type.Return, false)
	}

	for i := range n.Params {
		pv, ok := paramScopeLookup(n, i)
		if !ok {
			continue
		}
		vr := b.varVReg(pv)
		b.fn.Params = append(b.fn.Params, vr)
	}

	b.lowerBlock(n.Body)
	b.link(b.cur, b.exit)
	b.resolveGotos()

	b.fn.RetReg = b.retVReg
	b.retVReg = nil
	b.cur = b.exit
	b.prog.Funcs = append(b.prog.Funcs, b.fn)
}

// paramScopeLookup finds the VarInfo checkFunc declared for parameter i,
// by name — params are declared into the scope directly enclosing the
// body block (§4.3 "function entry pushes two scopes").
func paramScopeLookup(n *ast.FuncDecl, i int) (*ast.VarInfo, bool) {
	if i >= len(n.Params) || n.Body == nil || n.Body.Scope == nil || n.Body.Scope.Parent == nil {
		return nil, false
	}
	v, _ := n.Body.Scope.Parent.Lookup(n.Params[i].Name)
	return v, v != nil
}

func (b *Builder) newBlock(tag string) *BasicBlock {
	b.blockCount++
	bb := &BasicBlock{Label: fmt.Sprintf("%s.%s.%d", b.fn.Name, tag, b.blockCount)}
	b.fn.Blocks = append(b.fn.Blocks, bb)
	return bb
}

// link sets from's fallthrough successor, emitting nothing if from
// already ends in an unconditional JMP (dead code past a return/break/
// continue/goto has no fallthrough edge to add).
func (b *Builder) link(from, to *BasicBlock) {
	if n := len(from.Instrs); n > 0 && from.Instrs[n-1].Op == JMP && from.Instrs[n-1].Cond == CondAlways {
		return
	}
	from.Fallthrough = to
}

func (b *Builder) emit(in *Instr) *Instr {
	b.cur.Instrs = append(b.cur.Instrs, in)
	return in
}

func (b *Builder) newVReg(ty *types.Type, forceSpill bool) *VReg {
	vr := &VReg{ID: b.vregCount, Type: ty, RealReg: Unassigned, ForceSpill: forceSpill}
	b.vregCount++
	b.fn.VRegs = append(b.fn.VRegs, vr)
	return vr
}

// varVReg returns (creating if needed) the persistent VReg a local
// variable lives in. Address-taken and aggregate (struct/union/array)
// locals are force-spilled, so BOFS against them always yields a
// stable, unchanging memory address (§4.4 "address-taken locals").
func (b *Builder) varVReg(v *ast.VarInfo) *VReg {
	if vr, ok := b.vars[v]; ok {
		return vr
	}
	forced := v.IsAddressTaken() || isAggregate(v.Type)
	vr := b.newVReg(v.Type, forced)
	vr.Name = v.Name
	b.vars[v] = vr
	v.VReg = vr.ID
	return vr
}

func isAggregate(t *types.Type) bool {
	return t.Kind == types.Struct || t.Kind == types.Union || t.Kind == types.Array
}

// ---- statements ----

func (b *Builder) lowerBlock(blk *ast.Block) {
	for _, s := range blk.Stmts {
		b.lowerStmt(s)
	}
}

func (b *Builder) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		b.lowerExpr(n.X)
	case *ast.Block:
		b.lowerBlock(n)
	case *ast.LocalDecl:
		for _, d := range n.Decls {
			b.lowerLocalDecl(d)
		}
	case *ast.If:
		b.lowerIf(n)
	case *ast.While:
		b.lowerWhile(n)
	case *ast.DoWhile:
		b.lowerDoWhile(n)
	case *ast.For:
		b.lowerFor(n)
	case *ast.Switch:
		b.lowerSwitch(n)
	case *ast.Break:
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: b.breakTarget[len(b.breakTarget)-1]})
		next := b.newBlock("afterbreak")
		b.cur = next
	case *ast.Continue:
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: b.continueTarget[len(b.continueTarget)-1]})
		next := b.newBlock("aftercontinue")
		b.cur = next
	case *ast.Return:
		if n.X != nil {
			val := b.lowerExpr(n.X)
			b.emit(&Instr{Op: MOV, Dst: b.retVReg, Src1: val, Size: b.retVReg.Type.Sizeof()})
		}
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: b.exit})
		next := b.newBlock("afterreturn")
		b.cur = next
	case *ast.Goto:
		// Resolved to a real block jump by a post-pass once every
		// Labeled statement's block is known (see resolveGotos).
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Label: "goto:" + n.Label})
		next := b.newBlock("aftergoto")
		b.cur = next
	case *ast.Labeled:
		blk := b.newBlock("label_" + n.Label)
		b.link(b.cur, blk)
		b.cur = blk
		b.labels[n.Label] = blk
		b.lowerStmt(n.Stmt)
	case *ast.Case, *ast.Default:
		// Handled entirely within lowerSwitch, which walks the switch
		// body itself rather than dispatching through lowerStmt.
		bug("ir: case/default reached outside switch lowering")
	default:
		bug("ir: unhandled statement kind %T", s)
	}
}

// resolveGotos patches every placeholder `goto:LABEL` JMP emitted by
// lowerStmt's Goto case to its real target block, once the whole
// function body (hence every Labeled statement) has been lowered.
func (b *Builder) resolveGotos() {
	for _, blk := range b.fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == JMP && in.Block == nil && len(in.Label) > 5 && in.Label[:5] == "goto:" {
				name := in.Label[5:]
				target, ok := b.labels[name]
				if !ok {
					bug("ir: goto target block %q never lowered", name)
				}
				in.Block = target
				in.Label = ""
			}
		}
	}
}

func (b *Builder) lowerLocalDecl(d *ast.VarDecl) {
	b.varVReg(d.Sym)
	for _, st := range d.Inits {
		b.lowerStmt(st)
	}
}

func (b *Builder) lowerIf(n *ast.If) {
	thenBlk := b.newBlock("then")
	elseBlk := b.newBlock("else")
	var mergeBlk *BasicBlock

	b.lowerCond(n.Cond, thenBlk, elseBlk)

	b.cur = thenBlk
	b.lowerStmt(n.Then)
	thenEnd := b.cur

	b.cur = elseBlk
	if n.Else != nil {
		b.lowerStmt(n.Else)
	}
	elseEnd := b.cur

	mergeBlk = b.newBlock("endif")
	b.cur = thenEnd
	b.link(b.cur, mergeBlk)
	b.cur = elseEnd
	b.link(b.cur, mergeBlk)
	b.cur = mergeBlk
}

func (b *Builder) lowerWhile(n *ast.While) {
	head := b.newBlock("whilehead")
	body := b.newBlock("whilebody")
	after := b.newBlock("whileend")

	b.link(b.cur, head)
	b.cur = head
	b.lowerCond(n.Cond, body, after)

	b.breakTarget = append(b.breakTarget, after)
	b.continueTarget = append(b.continueTarget, head)
	b.cur = body
	b.lowerStmt(n.Body)
	b.link(b.cur, head)
	b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]
	b.continueTarget = b.continueTarget[:len(b.continueTarget)-1]

	b.cur = after
}

func (b *Builder) lowerDoWhile(n *ast.DoWhile) {
	body := b.newBlock("dobody")
	test := b.newBlock("dotest")
	after := b.newBlock("doend")

	b.link(b.cur, body)
	b.breakTarget = append(b.breakTarget, after)
	b.continueTarget = append(b.continueTarget, test)
	b.cur = body
	b.lowerStmt(n.Body)
	b.link(b.cur, test)
	b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]
	b.continueTarget = b.continueTarget[:len(b.continueTarget)-1]

	b.cur = test
	b.lowerCond(n.Cond, body, after)

	b.cur = after
}

func (b *Builder) lowerFor(n *ast.For) {
	if n.Init != nil {
		b.lowerStmt(n.Init)
	}
	head := b.newBlock("forhead")
	body := b.newBlock("forbody")
	post := b.newBlock("forpost")
	after := b.newBlock("forend")

	b.link(b.cur, head)
	b.cur = head
	if n.Cond != nil {
		b.lowerCond(n.Cond, body, after)
	} else {
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: body})
	}

	b.breakTarget = append(b.breakTarget, after)
	b.continueTarget = append(b.continueTarget, post)
	b.cur = body
	b.lowerStmt(n.Body)
	b.link(b.cur, post)
	b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]
	b.continueTarget = b.continueTarget[:len(b.continueTarget)-1]

	b.cur = post
	if n.Post != nil {
		b.lowerExpr(n.Post)
	}
	b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: head})

	b.cur = after
}

// lowerSwitch lowers to a sequence of CMP+JMP branches to case-labelled
// blocks plus an optional default, per §4.4. Body is a Block whose
// top-level Stmts are Case/Default markers interleaved with ordinary
// statements, so this walks it directly instead of going back through
// lowerStmt for the markers.
func (b *Builder) lowerSwitch(n *ast.Switch) {
	x := b.lowerExpr(n.X)
	after := b.newBlock("switchend")
	blk, _ := n.Body.(*ast.Block)
	if blk == nil {
		bug("ir: switch body is not a block")
	}

	caseBlocks := make(map[ast.Stmt]*BasicBlock)
	var defaultBlock *BasicBlock
	var order []ast.Stmt
	for _, st := range blk.Stmts {
		switch st.(type) {
		case *ast.Case, *ast.Default:
			nb := b.newBlock("case")
			caseBlocks[st] = nb
			order = append(order, st)
			if _, isDef := st.(*ast.Default); isDef {
				defaultBlock = nb
			}
		}
	}

	dispatch := b.cur
	for _, st := range order {
		if c, ok := st.(*ast.Case); ok {
			imm := b.newVReg(x.Type, false)
			b.emit(&Instr{Op: IMM, Dst: imm, Imm: c.Value, Size: x.Type.Sizeof()})
			b.emit(&Instr{Op: CMP, Src1: x, Src2: imm, Size: x.Type.Sizeof()})
			b.cur = dispatch
			b.emit(&Instr{Op: JMP, Cond: CondEQ, Block: caseBlocks[st]})
			next := b.newBlock("switchdispatch")
			b.link(dispatch, next)
			dispatch = next
		}
	}
	b.cur = dispatch
	if defaultBlock != nil {
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: defaultBlock})
	} else {
		b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: after})
	}

	b.breakTarget = append(b.breakTarget, after)
	b.cur = nil
	for _, st := range blk.Stmts {
		if nb, ok := caseBlocks[st]; ok {
			if b.cur != nil {
				b.link(b.cur, nb)
			}
			b.cur = nb
			continue
		}
		if b.cur == nil {
			// Statements before the first case label in a switch whose
			// body opens with non-label code are unreachable fallthrough
			// dead code; skip them rather than lowering into a nil block.
			continue
		}
		b.lowerStmt(st)
	}
	if b.cur != nil {
		b.link(b.cur, after)
	}
	b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]
	b.cur = after
}

// lowerCond lowers a boolean-context expression n directly into a
// branch to trueBlk/falseBlk, implementing short-circuit &&/|| and
// comparison operators without materializing a 0/1 value first (§4.4
// "short-circuit &&/|| ... become branches to merge blocks").
func (b *Builder) lowerCond(n ast.Expr, trueBlk, falseBlk *BasicBlock) {
	switch e := n.(type) {
	case *ast.Binary:
		switch e.Op {
		case ast.LogAnd:
			mid := b.newBlock("andmid")
			b.lowerCond(e.X, mid, falseBlk)
			b.cur = mid
			b.lowerCond(e.Y, trueBlk, falseBlk)
			return
		case ast.LogOr:
			mid := b.newBlock("ormid")
			b.lowerCond(e.X, trueBlk, mid)
			b.cur = mid
			b.lowerCond(e.Y, trueBlk, falseBlk)
			return
		}
		if cond, ok := condFor(e.Op); ok {
			x := b.lowerExpr(e.X)
			y := b.lowerExpr(e.Y)
			b.emit(&Instr{Op: CMP, Src1: x, Src2: y, Size: widerSize(x, y)})
			b.emit(&Instr{Op: JMP, Cond: cond, Block: trueBlk})
			b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: falseBlk})
			return
		}
	case *ast.Unary:
		if e.Op == ast.Not {
			b.lowerCond(e.X, falseBlk, trueBlk)
			return
		}
	}
	v := b.lowerExpr(n)
	zero := b.newVReg(v.Type, false)
	b.emit(&Instr{Op: IMM, Dst: zero, Imm: 0, Size: v.Type.Sizeof()})
	b.emit(&Instr{Op: CMP, Src1: v, Src2: zero, Size: v.Type.Sizeof()})
	b.emit(&Instr{Op: JMP, Cond: CondNE, Block: trueBlk})
	b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: falseBlk})
}

func widerSize(a, b *VReg) int {
	if a.Type.Sizeof() > b.Type.Sizeof() {
		return a.Type.Sizeof()
	}
	return b.Type.Sizeof()
}

func condFor(op ast.BinOp) (Cond, bool) {
	switch op {
	case ast.CmpEq:
		return CondEQ, true
	case ast.CmpNe:
		return CondNE, true
	case ast.CmpLt:
		return CondLT, true
	case ast.CmpLe:
		return CondLE, true
	case ast.CmpGt:
		return CondGT, true
	case ast.CmpGe:
		return CondGE, true
	}
	return 0, false
}

// ---- expressions ----

// lowerExpr evaluates n for its value, returning the VReg holding it.
func (b *Builder) lowerExpr(n ast.Expr) *VReg {
	switch e := n.(type) {
	case *ast.Literal:
		dst := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: IMM, Dst: dst, Imm: e.IntVal, Size: e.GetType().Sizeof()})
		return dst
	case *ast.StringLiteral:
		if e.Label == "" {
			b.stringCount++
			e.Label = fmt.Sprintf(".L.str.%d", b.stringCount)
			b.prog.Globals = append(b.prog.Globals, stringGlobal(e))
		}
		dst := b.newVReg(types.NewPointerType(types.TyChar), false)
		b.emit(&Instr{Op: IOFS, Dst: dst, Ref: &VarRef{Label: e.Label}, Size: 8})
		return dst
	case *ast.Ident:
		vr := b.varVReg(e.Sym)
		if e.Sym.IsGlobal {
			addr := b.newVReg(types.NewPointerType(e.Sym.Type), false)
			b.emit(&Instr{Op: IOFS, Dst: addr, Ref: &VarRef{Label: e.Sym.Label}, Size: 8})
			if isAggregate(e.Sym.Type) {
				return addr
			}
			val := b.newVReg(e.Sym.Type, false)
			b.emit(&Instr{Op: LOAD, Dst: val, Src1: addr, Size: e.Sym.Type.Sizeof()})
			return val
		}
		if vr.ForceSpill {
			addr := b.newVReg(types.NewPointerType(e.Sym.Type), false)
			b.emit(&Instr{Op: BOFS, Dst: addr, Ref: &VarRef{Local: vr}, Size: 8})
			if isAggregate(e.Sym.Type) {
				return addr
			}
			val := b.newVReg(e.Sym.Type, false)
			b.emit(&Instr{Op: LOAD, Dst: val, Src1: addr, Size: e.Sym.Type.Sizeof()})
			return val
		}
		return vr
	case *ast.Binary:
		return b.lowerBinary(e)
	case *ast.Unary:
		return b.lowerUnary(e)
	case *ast.Member:
		addr := b.lowerMemberAddr(e)
		if isAggregate(e.GetType()) {
			return addr
		}
		val := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: LOAD, Dst: val, Src1: addr, Size: e.GetType().Sizeof()})
		return val
	case *ast.Cast:
		return b.lowerCast(e)
	case *ast.Call:
		return b.lowerCall(e)
	case *ast.Cond:
		return b.lowerTernary(e)
	case *ast.Comma:
		b.lowerExpr(e.X)
		return b.lowerExpr(e.Y)
	case *ast.Assign:
		return b.lowerAssign(e)
	case *ast.IncDec:
		return b.lowerIncDec(e)
	case *ast.SizeofExpr:
		dst := b.newVReg(types.TyULong, false)
		b.emit(&Instr{Op: IMM, Dst: dst, Imm: int64(e.X.GetType().Sizeof()), Size: 8})
		return dst
	case *ast.SizeofType:
		dst := b.newVReg(types.TyULong, false)
		b.emit(&Instr{Op: IMM, Dst: dst, Imm: int64(e.T.Sizeof()), Size: 8})
		return dst
	}
	bug("ir: unhandled expression kind %T", n)
	return nil
}

func stringGlobal(sl *ast.StringLiteral) *Global {
	init := make([]InitValue, len(sl.Value)+1)
	for i, c := range sl.Value {
		init[i] = InitValue{Offset: i, Size: 1, Imm: int64(c)}
	}
	init[len(sl.Value)] = InitValue{Offset: len(sl.Value), Size: 1, Imm: 0}
	return &Global{Label: sl.Label, Size: len(sl.Value) + 1, Init: init}
}

// lowerAddr evaluates n for its address, per the lvalue forms sema
// guarantees survive to this stage: Ident, Member, and Unary(Deref)
// (array subscripting is already lowered to the latter by sema's
// checkIndex).
func (b *Builder) lowerAddr(n ast.Expr) *VReg {
	switch e := n.(type) {
	case *ast.Ident:
		vr := b.varVReg(e.Sym)
		addr := b.newVReg(types.NewPointerType(e.Sym.Type), false)
		if e.Sym.IsGlobal {
			b.emit(&Instr{Op: IOFS, Dst: addr, Ref: &VarRef{Label: e.Sym.Label}, Size: 8})
		} else {
			b.emit(&Instr{Op: BOFS, Dst: addr, Ref: &VarRef{Local: vr}, Size: 8})
		}
		return addr
	case *ast.Member:
		return b.lowerMemberAddr(e)
	case *ast.Unary:
		if e.Op == ast.Deref {
			return b.lowerExpr(e.X)
		}
	}
	bug("ir: %T is not an lvalue", n)
	return nil
}

func (b *Builder) lowerMemberAddr(e *ast.Member) *VReg {
	var base *VReg
	if e.Arrow {
		base = b.lowerExpr(e.X)
	} else {
		base = b.lowerAddr(e.X)
	}
	offset := fieldOffset(e)
	if offset == 0 {
		return base
	}
	addr := b.newVReg(types.NewPointerType(e.GetType()), false)
	imm := b.newVReg(types.TyLong, false)
	b.emit(&Instr{Op: IMM, Dst: imm, Imm: int64(offset), Size: 8})
	b.emit(&Instr{Op: ADD, Dst: addr, Src1: base, Src2: imm, Size: 8})
	return addr
}

func fieldOffset(e *ast.Member) int {
	st := e.X.GetType()
	if e.Arrow {
		st = st.Pointee()
	}
	return st.StructInfo.Members[e.Index].Offset
}

var binOpcode = map[ast.BinOp]Op{
	ast.Add: ADD, ast.Sub: SUB, ast.Mul: MUL, ast.Div: DIV, ast.Mod: MOD,
	ast.BitAnd: BITAND, ast.BitOr: BITOR, ast.BitXor: BITXOR,
	ast.Shl: LSHIFT, ast.Shr: RSHIFT,
}

func (b *Builder) lowerBinary(e *ast.Binary) *VReg {
	if e.Op == ast.LogAnd || e.Op == ast.LogOr || e.Op.IsComparison() {
		return b.materializeBool(e)
	}
	// Pointer arithmetic scaling: the operand sema left as a plain
	// integer must be scaled by the pointee size here (§4.3 "scales the
	// integer by the pointee size"; this rewrite does the scaling at
	// lowering time since it's a value transform, not a type change).
	xt, yt := e.X.GetType(), e.Y.GetType()
	if (e.Op == ast.Add || e.Op == ast.Sub) && xt.Kind == types.Pointer && yt.IsIntegral() {
		x := b.lowerExpr(e.X)
		y := b.scaleIndex(e.Y, xt.Pointee().Sizeof())
		dst := b.newVReg(xt, false)
		b.emit(&Instr{Op: binOpcode[e.Op], Dst: dst, Src1: x, Src2: y, Size: 8})
		return dst
	}
	if e.Op == ast.Sub && xt.Kind == types.Pointer && yt.Kind == types.Pointer {
		x := b.lowerExpr(e.X)
		y := b.lowerExpr(e.Y)
		diff := b.newVReg(types.TyLong, false)
		b.emit(&Instr{Op: SUB, Dst: diff, Src1: x, Src2: y, Size: 8})
		sz := xt.Pointee().Sizeof()
		if sz <= 1 {
			return diff
		}
		szVReg := b.newVReg(types.TyLong, false)
		b.emit(&Instr{Op: IMM, Dst: szVReg, Imm: int64(sz), Size: 8})
		out := b.newVReg(types.TyLong, false)
		b.emit(&Instr{Op: DIV, Dst: out, Src1: diff, Src2: szVReg, Size: 8})
		return out
	}
	x := b.lowerExpr(e.X)
	y := b.lowerExpr(e.Y)
	op, ok := binOpcode[e.Op]
	if !ok {
		bug("ir: unhandled binary operator %s", e.Op)
	}
	dst := b.newVReg(e.GetType(), false)
	b.emit(&Instr{Op: op, Dst: dst, Src1: x, Src2: y, Size: e.GetType().Sizeof()})
	return dst
}

// scaleIndex lowers n and multiplies it by factor (a no-op multiply by
// 1 is skipped for `char*` arithmetic, the common case).
func (b *Builder) scaleIndex(n ast.Expr, factor int) *VReg {
	v := b.lowerExpr(n)
	if factor == 1 {
		return v
	}
	f := b.newVReg(types.TyLong, false)
	b.emit(&Instr{Op: IMM, Dst: f, Imm: int64(factor), Size: 8})
	out := b.newVReg(types.TyLong, false)
	b.emit(&Instr{Op: MUL, Dst: out, Src1: v, Src2: f, Size: 8})
	return out
}

// materializeBool lowers a boolean-valued expression (comparison or
// logical &&/||) to an explicit 0/1 VReg via lowerCond + SET, for use
// in a non-branch context (e.g. `int ok = a < b;`).
func (b *Builder) materializeBool(e ast.Expr) *VReg {
	trueBlk := b.newBlock("booltrue")
	falseBlk := b.newBlock("boolfalse")
	merge := b.newBlock("boolend")
	b.lowerCond(e, trueBlk, falseBlk)

	dst := b.newVReg(types.TyInt, false)
	b.cur = trueBlk
	b.emit(&Instr{Op: IMM, Dst: dst, Imm: 1, Size: 4})
	b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: merge})

	b.cur = falseBlk
	b.emit(&Instr{Op: IMM, Dst: dst, Imm: 0, Size: 4})
	b.link(b.cur, merge)

	b.cur = merge
	return dst
}

func (b *Builder) lowerUnary(e *ast.Unary) *VReg {
	switch e.Op {
	case ast.Addr:
		return b.lowerAddr(e.X)
	case ast.Deref:
		addr := b.lowerExpr(e.X)
		if isAggregate(e.GetType()) {
			return addr
		}
		dst := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: LOAD, Dst: dst, Src1: addr, Size: e.GetType().Sizeof()})
		return dst
	case ast.Not:
		return b.materializeBool(e)
	case ast.Neg:
		x := b.lowerExpr(e.X)
		dst := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: NEG, Dst: dst, Src1: x, Size: e.GetType().Sizeof()})
		return dst
	case ast.BitNot:
		x := b.lowerExpr(e.X)
		dst := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: BITNOT, Dst: dst, Src1: x, Size: e.GetType().Sizeof()})
		return dst
	case ast.Plus:
		return b.lowerExpr(e.X)
	}
	bug("ir: unhandled unary operator %s", e.Op)
	return nil
}

func (b *Builder) lowerCast(e *ast.Cast) *VReg {
	src := b.lowerExpr(e.X)
	if src.Type.Equal(e.GetType()) {
		return src
	}
	dst := b.newVReg(e.GetType(), false)
	b.emit(&Instr{Op: CAST, Dst: dst, Src1: src, Size: e.GetType().Sizeof()})
	return dst
}

func (b *Builder) lowerCall(e *ast.Call) *VReg {
	// Right-to-left PUSHARG order (§4.4).
	for i := len(e.Args) - 1; i >= 0; i-- {
		a := b.lowerExpr(e.Args[i])
		b.emit(&Instr{Op: PUSHARG, Src1: a, Size: a.Type.Sizeof()})
	}
	call := &Instr{Op: CALL, Imm: int64(len(e.Args))}
	if id, ok := e.Callee.(*ast.Ident); ok && id.Sym != nil && id.Sym.IsGlobal && id.Sym.Type.Kind == types.Function {
		call.Label = id.Sym.Label
	} else {
		call.Src1 = b.lowerExpr(e.Callee)
	}
	b.emit(call)
	if e.GetType().Kind == types.Void {
		return nil
	}
	dst := b.newVReg(e.GetType(), false)
	b.emit(&Instr{Op: RESULT, Dst: dst, Size: e.GetType().Sizeof()})
	return dst
}

func (b *Builder) lowerTernary(e *ast.Cond) *VReg {
	tBlk := b.newBlock("terntrue")
	fBlk := b.newBlock("ternfalse")
	merge := b.newBlock("ternend")
	b.lowerCond(e.C, tBlk, fBlk)

	dst := b.newVReg(e.GetType(), false)
	b.cur = tBlk
	tv := b.lowerExpr(e.T)
	b.emit(&Instr{Op: MOV, Dst: dst, Src1: tv, Size: e.GetType().Sizeof()})
	b.emit(&Instr{Op: JMP, Cond: CondAlways, Block: merge})

	b.cur = fBlk
	fv := b.lowerExpr(e.F)
	b.emit(&Instr{Op: MOV, Dst: dst, Src1: fv, Size: e.GetType().Sizeof()})
	b.link(b.cur, merge)

	b.cur = merge
	return dst
}

func (b *Builder) lowerAssign(e *ast.Assign) *VReg {
	rhsExpr := e.RHS
	if op, isCompound := e.Op.BinOpOf(); isCompound {
		lv := b.lowerExpr(e.LHS)
		rv := b.lowerExpr(rhsExpr)
		dst := b.newVReg(e.GetType(), false)
		b.emit(&Instr{Op: binOpcode[op], Dst: dst, Src1: lv, Src2: rv, Size: e.GetType().Sizeof()})
		b.storeInto(e.LHS, dst)
		return dst
	}

	if isAggregate(e.GetType()) {
		dstAddr := b.lowerAddr(e.LHS)
		srcAddr := b.lowerAddr(rhsExpr)
		sz := b.newVReg(types.TyLong, false)
		b.emit(&Instr{Op: IMM, Dst: sz, Imm: int64(e.GetType().Sizeof()), Size: 8})
		b.emit(&Instr{Op: MEMCPY, Src1: dstAddr, Src2: srcAddr, Size: e.GetType().Sizeof()})
		return dstAddr
	}

	val := b.lowerExpr(rhsExpr)
	b.storeInto(e.LHS, val)
	return val
}

// storeInto writes val into the storage lhs names: a direct MOV for a
// register-resident local, otherwise a STORE through its address.
func (b *Builder) storeInto(lhs ast.Expr, val *VReg) {
	if id, ok := lhs.(*ast.Ident); ok && !id.Sym.IsGlobal {
		vr := b.varVReg(id.Sym)
		if !vr.ForceSpill {
			b.emit(&Instr{Op: MOV, Dst: vr, Src1: val, Size: vr.Type.Sizeof()})
			return
		}
	}
	addr := b.lowerAddr(lhs)
	b.emit(&Instr{Op: STORE, Src1: addr, Src2: val, Size: lhs.GetType().Sizeof()})
}

func (b *Builder) lowerIncDec(e *ast.IncDec) *VReg {
	old := b.lowerExpr(e.X)
	step := int64(1)
	size := 1
	if e.GetType().Kind == types.Pointer {
		size = e.GetType().Pointee().Sizeof()
	}
	one := b.newVReg(e.GetType(), false)
	b.emit(&Instr{Op: IMM, Dst: one, Imm: step * int64(size), Size: e.GetType().Sizeof()})
	op := ADD
	if !e.Inc {
		op = SUB
	}
	newv := b.newVReg(e.GetType(), false)
	b.emit(&Instr{Op: op, Dst: newv, Src1: old, Src2: one, Size: e.GetType().Sizeof()})
	b.storeInto(e.X, newv)
	if e.Post {
		return old
	}
	return newv
}
