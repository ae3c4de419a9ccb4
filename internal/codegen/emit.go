// Package codegen assembles a lowered, register-allocated ir.Program
// into a flat x86-64 code-and-data buffer and hands it to
// internal/elfwriter. It is the code-emission consumer internal/ir's doc
// comment names, playing the same role as other_examples/lcox74-bfcc's
// internal/codegen/linux-x86_64.go walking a flat IR into its pkg/amd64
// encoder and pkg/elf builder.
//
// Calling convention: every argument is pushed right-to-left by PUSHARG
// (§4.4) and every parameter is read back off the stack at its callee's
// entry — there is no System V register-argument passing. This matches
// the IR's own naming (PUSHARG, not "MOVARG") and keeps the prologue a
// single uniform loop regardless of arity; see DESIGN.md for why this
// departs from the platform ABI (the generated binary never calls into
// or is called from anything but its own _start and other emitted
// functions, so no external caller ever expects SysV register args).
package codegen

import (
	"fmt"

	"github.com/gmofishsauce/xcc/internal/amd64"
	"github.com/gmofishsauce/xcc/internal/elfwriter"
	"github.com/gmofishsauce/xcc/internal/ir"
)

// fixup is a forward reference to patch once every label's final address
// is known — the same shape as the teacher's asm.Fixup (addr/label),
// widened with a byte width since IOFS needs an absolute imm64 patch
// where JMP/CALL need a pc-relative imm32 one.
type fixup struct {
	pos   int
	width int // 4 (rel32) or 8 (absolute imm64)
	block *ir.BasicBlock
	fn    string
	glob  string
}

// Emitter assembles one ir.Program into a single code+data buffer.
type Emitter struct {
	target  elfwriter.Target
	code    []byte
	fixups  []fixup
	blkOff  map[*ir.BasicBlock]int
	fnOff   map[string]int
	dataOff map[string]int
	bssOff  map[string]int
	bssBase int
	bssSize int
}

// Emit assembles prog for target into a ready-to-write ELF64 image.
func Emit(prog *ir.Program, target elfwriter.Target) ([]byte, error) {
	e := &Emitter{
		target:  target,
		blkOff:  make(map[*ir.BasicBlock]int),
		fnOff:   make(map[string]int),
		dataOff: make(map[string]int),
		bssOff:  make(map[string]int),
	}
	e.emitStart()
	for _, fn := range prog.Funcs {
		if err := e.emitFunc(fn); err != nil {
			return nil, err
		}
	}
	e.emitData(prog.Globals)
	e.bssBase = len(e.code)
	e.emitBSS(prog.Globals)
	if err := e.patch(); err != nil {
		return nil, err
	}
	return elfwriter.NewBuilder(target).SetCode(e.code).SetBSSSize(e.bssSize).Build(), nil
}

func (e *Emitter) va(off int) uint64 {
	base := uint64(0x400000)
	if e.target == elfwriter.XV6 {
		base = 0x1000
	}
	return base + headerSize + uint64(off)
}

// headerSize mirrors elfwriter's own ehdr+phdr prefix; the code buffer
// this package builds is loaded starting right after it (§4.5 "entry
// point set to the virtual address of label _start").
const headerSize = 64 + 56

func (e *Emitter) emit(b []byte) int {
	pos := len(e.code)
	e.code = append(e.code, b...)
	return pos
}

// emitStart writes the freestanding entry point: read argc and argv off
// the initial process stack, push them as main's two stack arguments,
// call main, then exit with its return value as the process status
// (§1's "tiny hand-written startup shim"; no libc, no envp setup).
func (e *Emitter) emitStart() {
	e.fnOff["_start"] = len(e.code)
	e.emit(amd64.MovRegMem(amd64.RDI, amd64.RSP, 0)) // argc
	e.emit(amd64.Lea(amd64.RSI, amd64.RSP, 8))       // argv
	e.emit(amd64.PushReg(amd64.RSI))
	e.emit(amd64.PushReg(amd64.RDI))
	pos := e.emit(amd64.CallRel32(0))
	e.fixups = append(e.fixups, fixup{pos: pos + 1, width: 4, fn: "main"})
	e.emit(amd64.MovRegReg(amd64.RDI, amd64.RAX))
	e.emit(amd64.MovRegImm32(amd64.RAX, int32(exitSyscall(e.target))))
	e.emit(amd64.Syscall())
}

// exitSyscall is the kernel's exit syscall number for target — the
// standard published Linux x86-64 table (60) and xv6's syscall.h table
// (2); neither value is pack-grounded (the retrieval pack's
// original_source/ stops at code generation and never reaches a
// syscall ABI), so this is an out-of-pack ecosystem fact, recorded in
// DESIGN.md rather than attributed to a teacher file.
func exitSyscall(t elfwriter.Target) int {
	if t == elfwriter.XV6 {
		return 2
	}
	return 60
}

func (e *Emitter) emitFunc(fn *ir.Function) error {
	e.fnOff[fn.Name] = len(e.code)
	entry, exit := fn.Blocks[0], fn.Blocks[1]
	order := append([]*ir.BasicBlock{entry}, fn.Blocks[2:]...)
	order = append(order, exit)

	for i, blk := range order {
		e.blkOff[blk] = len(e.code)
		if blk == entry {
			e.emitPrologue(fn)
		}
		for _, in := range blk.Instrs {
			if err := e.emitInstr(fn, in); err != nil {
				return fmt.Errorf("%s: %w", fn.Name, err)
			}
		}
		if blk == exit {
			e.emitEpilogue(fn)
		}
		if blk.Fallthrough != nil {
			var next *ir.BasicBlock
			if i+1 < len(order) {
				next = order[i+1]
			}
			if blk.Fallthrough != next {
				pos := e.emit(amd64.JmpRel32(0))
				e.fixups = append(e.fixups, fixup{pos: pos + 1, width: 4, block: blk.Fallthrough})
			}
		}
	}
	return nil
}

// emitPrologue sets up the frame and reloads every parameter from its
// caller-pushed stack slot (rbp+16, rbp+24, ... per §4.4's push-all
// convention) into whatever home internal/regalloc gave it.
func (e *Emitter) emitPrologue(fn *ir.Function) {
	e.emit(amd64.PushReg(amd64.RBP))
	e.emit(amd64.MovRegReg(amd64.RBP, amd64.RSP))
	if fn.FrameSize > 0 {
		e.emit(amd64.SubRegImm32(amd64.RSP, int32(fn.FrameSize)))
	}
	for i, p := range fn.Params {
		srcOff := int32(16 + 8*i)
		if p.RealReg == ir.SpillSentinel {
			e.emit(amd64.MovRegMem(amd64.R10, amd64.RBP, srcOff))
			e.emit(amd64.MovMemReg(amd64.RBP, int32(p.FrameOffset), amd64.R10))
		} else {
			e.emit(amd64.MovRegMem(amd64.Reg(p.RealReg), amd64.RBP, srcOff))
		}
	}
}

// emitEpilogue moves the return value (if any) into rax, tears down the
// frame, and returns.
func (e *Emitter) emitEpilogue(fn *ir.Function) {
	if fn.RetReg != nil {
		if fn.RetReg.RealReg == ir.SpillSentinel {
			e.emit(amd64.MovRegMem(amd64.RAX, amd64.RBP, int32(fn.RetReg.FrameOffset)))
		} else if fn.RetReg.RealReg != int(amd64.RAX) {
			e.emit(amd64.MovRegReg(amd64.RAX, amd64.Reg(fn.RetReg.RealReg)))
		}
	}
	e.emit(amd64.MovRegReg(amd64.RSP, amd64.RBP))
	e.emit(amd64.PopReg(amd64.RBP))
	e.emit(amd64.Ret())
}

func reg(vr *ir.VReg) amd64.Reg { return amd64.Reg(vr.RealReg) }

func condOf(c ir.Cond) amd64.Cond {
	switch c {
	case ir.CondEQ:
		return amd64.CondE
	case ir.CondNE:
		return amd64.CondNE
	case ir.CondLT:
		return amd64.CondL
	case ir.CondLE:
		return amd64.CondLE
	case ir.CondGT:
		return amd64.CondG
	case ir.CondGE:
		return amd64.CondGE
	case ir.CondULT:
		return amd64.CondB
	case ir.CondULE:
		return amd64.CondBE
	case ir.CondUGT:
		return amd64.CondA
	case ir.CondUGE:
		return amd64.CondAE
	}
	return amd64.CondE
}

// movIfDiff emits `mov dst, src` unless the two already name the same
// register — the two-operand x86 arithmetic forms need dst primed with
// src1 before the op executes in place.
func (e *Emitter) movIfDiff(dst, src amd64.Reg) {
	if dst != src {
		e.emit(amd64.MovRegReg(dst, src))
	}
}

func fitsInt32(v int64) bool { return v >= -(1<<31) && v < (1 << 31) }

func (e *Emitter) emitInstr(fn *ir.Function, in *ir.Instr) error {
	switch in.Op {
	case ir.IMM:
		d := reg(in.Dst)
		if fitsInt32(in.Imm) {
			e.emit(amd64.MovRegImm32(d, int32(in.Imm)))
		} else {
			e.emit(amd64.MovRegImm64(d, uint64(in.Imm)))
		}
	case ir.BOFS:
		e.emit(amd64.Lea(reg(in.Dst), amd64.RBP, int32(in.Ref.Local.FrameOffset)))
	case ir.IOFS:
		pos := e.emit(amd64.MovRegImm64(reg(in.Dst), 0))
		e.fixups = append(e.fixups, fixup{pos: pos + 2, width: 8, glob: in.Ref.Label})
	case ir.MOV:
		e.movIfDiff(reg(in.Dst), reg(in.Src1))
	case ir.ADD, ir.SUB, ir.BITAND, ir.BITOR, ir.BITXOR:
		d, s1, s2 := reg(in.Dst), reg(in.Src1), reg(in.Src2)
		if d == s2 && d != s1 {
			// dst shares src2's register: priming dst with src1 would
			// overwrite src2, so operate on src2 in place instead.
			if in.Op == ir.SUB {
				e.emit(amd64.NegReg(d))
				e.emit(amd64.AddRegReg(d, s1))
			} else {
				e.emit(twoOp(in.Op, d, s1))
			}
			break
		}
		e.movIfDiff(d, s1)
		e.emit(twoOp(in.Op, d, s2))
	case ir.MUL:
		d, s1, s2 := reg(in.Dst), reg(in.Src1), reg(in.Src2)
		if d == s2 {
			e.emit(amd64.ImulRegReg(d, s1))
			break
		}
		e.movIfDiff(d, s1)
		e.emit(amd64.ImulRegReg(d, s2))
	case ir.DIV, ir.MOD:
		e.emitDivMod(in)
	case ir.NEG:
		e.movIfDiff(reg(in.Dst), reg(in.Src1))
		e.emit(amd64.NegReg(reg(in.Dst)))
	case ir.BITNOT:
		e.movIfDiff(reg(in.Dst), reg(in.Src1))
		e.emit(amd64.NotReg(reg(in.Dst)))
	case ir.LSHIFT, ir.RSHIFT:
		e.emitShift(in)
	case ir.CMP:
		e.emit(amd64.CmpRegReg(reg(in.Src1), reg(in.Src2)))
	case ir.SET:
		d := reg(in.Dst)
		e.emit(amd64.SetCC(condOf(in.Cond), d))
		e.emit(amd64.MovzxReg8(d, d))
	case ir.TEST:
		e.emit(amd64.TestRegReg(reg(in.Src1), reg(in.Src1)))
	case ir.NOT:
		s := reg(in.Src1)
		d := reg(in.Dst)
		e.emit(amd64.TestRegReg(s, s))
		e.emit(amd64.SetCC(amd64.CondE, d))
		e.emit(amd64.MovzxReg8(d, d))
	case ir.CAST:
		// Every operand is carried in a full 64-bit register slot;
		// narrowing/widening precision below 64 bits (char/short
		// truncation and sign-extension) is not yet modeled — see
		// DESIGN.md.
		e.movIfDiff(reg(in.Dst), reg(in.Src1))
	case ir.LOAD:
		e.emit(amd64.MovRegMem(reg(in.Dst), reg(in.Src1), 0))
	case ir.STORE:
		e.emit(amd64.MovMemReg(reg(in.Src1), 0, reg(in.Src2)))
	case ir.MEMCPY:
		e.emitMemcpy(in)
	case ir.PUSHARG:
		e.emit(amd64.PushReg(reg(in.Src1)))
	case ir.CALL:
		e.emitCall(in)
	case ir.RESULT:
		if in.Dst != nil {
			e.movIfDiff(reg(in.Dst), amd64.RAX)
		}
	case ir.JMP:
		if in.Cond == ir.CondAlways {
			pos := e.emit(amd64.JmpRel32(0))
			e.fixups = append(e.fixups, fixup{pos: pos + 1, width: 4, block: in.Block})
		} else {
			pos := e.emit(amd64.JccRel32(condOf(in.Cond), 0))
			e.fixups = append(e.fixups, fixup{pos: pos + 2, width: 4, block: in.Block})
		}
	case ir.LOADSPILLED:
		e.emit(amd64.MovRegMem(reg(in.Dst), amd64.RBP, int32(in.Src1.FrameOffset)))
	case ir.STORESPILLED:
		e.emit(amd64.MovMemReg(amd64.RBP, int32(in.Dst.FrameOffset), reg(in.Src1)))
	default:
		return fmt.Errorf("codegen: unhandled ir op %d", in.Op)
	}
	return nil
}

func twoOp(op ir.Op, dst, src amd64.Reg) []byte {
	switch op {
	case ir.ADD:
		return amd64.AddRegReg(dst, src)
	case ir.SUB:
		return amd64.SubRegReg(dst, src)
	case ir.BITAND:
		return amd64.AndRegReg(dst, src)
	case ir.BITOR:
		return amd64.OrRegReg(dst, src)
	case ir.BITXOR:
		return amd64.XorRegReg(dst, src)
	}
	panic("codegen: not a two-operand op")
}

// emitDivMod clears RAX/RDX's allocator-visible role: both registers
// are withheld from internal/regalloc's allocatable set for exactly
// this reason (see regalloc.go), so idiv is always free to clobber them.
func (e *Emitter) emitDivMod(in *ir.Instr) {
	e.movIfDiff(amd64.RAX, reg(in.Src1))
	e.emit(amd64.CqoSignExtendRaxToRdx())
	e.emit(amd64.IdivReg(reg(in.Src2)))
	if in.Op == ir.DIV {
		e.movIfDiff(reg(in.Dst), amd64.RAX)
	} else {
		e.movIfDiff(reg(in.Dst), amd64.RDX)
	}
}

// emitShift routes the count through cl, saving/restoring the ambient
// rcx when neither operand already lives there. An allocation that puts
// dst, src1, or src2 itself in rcx is not handled precisely — a known
// simplification, documented in DESIGN.md alongside the single spill
// scratch register limitation.
func (e *Emitter) emitShift(in *ir.Instr) {
	dst, src1, src2 := reg(in.Dst), reg(in.Src1), reg(in.Src2)
	saveRCX := dst != amd64.RCX && src1 != amd64.RCX && src2 != amd64.RCX
	if saveRCX {
		e.emit(amd64.PushReg(amd64.RCX))
	}
	if src2 != amd64.RCX {
		e.emit(amd64.MovRegReg(amd64.RCX, src2))
	}
	e.movIfDiff(dst, src1)
	if in.Op == ir.LSHIFT {
		e.emit(amd64.ShlRegCL(dst))
	} else {
		e.emit(amd64.SarRegCL(dst))
	}
	if saveRCX {
		e.emit(amd64.PopReg(amd64.RCX))
	}
}

// emitMemcpy unrolls a fixed-size struct/array copy in 8-byte chunks
// (plus a trailing byte tail) using r10 as scratch, falling back to r9
// when either operand itself was allocated r10.
func (e *Emitter) emitMemcpy(in *ir.Instr) {
	dstAddr, srcAddr := reg(in.Src1), reg(in.Src2)
	scratch := amd64.R10
	if dstAddr == scratch || srcAddr == scratch {
		scratch = amd64.R9
	}
	n := in.Size
	off := int32(0)
	for n >= 8 {
		e.emit(amd64.MovRegMem(scratch, srcAddr, off))
		e.emit(amd64.MovMemReg(dstAddr, off, scratch))
		off += 8
		n -= 8
	}
	for n > 0 {
		e.emit(amd64.MovRegMem(scratch, srcAddr, off))
		e.emit(amd64.MovMemReg(dstAddr, off, scratch))
		off++
		n--
	}
}

func (e *Emitter) emitCall(in *ir.Instr) {
	if in.Label != "" {
		pos := e.emit(amd64.CallRel32(0))
		e.fixups = append(e.fixups, fixup{pos: pos + 1, width: 4, fn: in.Label})
	} else {
		e.emit(amd64.CallRegIndirect(reg(in.Src1)))
	}
	if in.Imm > 0 {
		e.emit(amd64.AddRegImm32(amd64.RSP, int32(8*in.Imm)))
	}
}

func (e *Emitter) emitData(globals []*ir.Global) {
	for _, g := range globals {
		if g.Init == nil {
			continue
		}
		base := len(e.code)
		e.dataOff[g.Label] = base
		buf := make([]byte, g.Size)
		e.code = append(e.code, buf...)
		for _, iv := range g.Init {
			if iv.Label != "" {
				e.fixups = append(e.fixups, fixup{pos: base + iv.Offset, width: 8, glob: iv.Label})
				continue
			}
			putLE(e.code[base+iv.Offset:], iv.Imm, iv.Size)
		}
	}
}

func (e *Emitter) emitBSS(globals []*ir.Global) {
	for _, g := range globals {
		if g.Init != nil {
			continue
		}
		e.bssOff[g.Label] = e.bssSize
		e.bssSize += alignUp8(g.Size)
	}
}

func putLE(b []byte, v int64, size int) {
	u := uint64(v)
	for i := 0; i < size; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func alignUp8(v int) int { return (v + 7) / 8 * 8 }

func (e *Emitter) resolve(f fixup) (uint64, error) {
	switch {
	case f.block != nil:
		off, ok := e.blkOff[f.block]
		if !ok {
			return 0, fmt.Errorf("codegen: unresolved block %s", f.block.Label)
		}
		return e.va(off), nil
	case f.fn != "":
		off, ok := e.fnOff[f.fn]
		if !ok {
			return 0, fmt.Errorf("codegen: undefined function %q", f.fn)
		}
		return e.va(off), nil
	case f.glob != "":
		if off, ok := e.dataOff[f.glob]; ok {
			return e.va(off), nil
		}
		if off, ok := e.bssOff[f.glob]; ok {
			return e.va(e.bssBase + off), nil
		}
		return 0, fmt.Errorf("codegen: undefined global %q", f.glob)
	}
	return 0, fmt.Errorf("codegen: empty fixup")
}

func (e *Emitter) patch() error {
	for _, f := range e.fixups {
		target, err := e.resolve(f)
		if err != nil {
			return err
		}
		switch f.width {
		case 4:
			rel := int64(target) - int64(e.va(f.pos+4))
			if !fitsInt32(rel) {
				return fmt.Errorf("codegen: relative branch out of range")
			}
			putLE(e.code[f.pos:], rel, 4)
		case 8:
			putLE(e.code[f.pos:], int64(target), 8)
		}
	}
	return nil
}
