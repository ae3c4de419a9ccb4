package regalloc

import (
	"testing"

	"github.com/gmofishsauce/xcc/internal/ir"
	"github.com/gmofishsauce/xcc/internal/types"
)

// manyVars builds one basic block that defines n int vregs and then
// reads them one by one into an accumulator (a MOV followed by a chain
// of ADDs), so all n are live at once, forcing the allocator to spill
// once n exceeds RegCount.
func manyVars(n int) *ir.Function {
	fn := &ir.Function{Name: "test"}
	blk := &ir.BasicBlock{Label: "entry"}
	exit := &ir.BasicBlock{Label: "exit"}
	fn.Blocks = []*ir.BasicBlock{blk, exit}

	vregs := make([]*ir.VReg, n)
	for i := 0; i < n; i++ {
		vr := &ir.VReg{ID: i, Type: types.TyInt, RealReg: ir.Unassigned}
		vregs[i] = vr
		fn.VRegs = append(fn.VRegs, vr)
		blk.Instrs = append(blk.Instrs, &ir.Instr{Op: ir.IMM, Dst: vr, Imm: int64(i), Size: 4})
	}
	// A final reduction that reads every vreg so all intervals overlap.
	acc := &ir.VReg{ID: n, Type: types.TyInt, RealReg: ir.Unassigned}
	fn.VRegs = append(fn.VRegs, acc)
	blk.Instrs = append(blk.Instrs, &ir.Instr{Op: ir.MOV, Dst: acc, Src1: vregs[0], Size: 4})
	for i := 1; i < n; i++ {
		blk.Instrs = append(blk.Instrs, &ir.Instr{Op: ir.ADD, Dst: acc, Src1: acc, Src2: vregs[i], Size: 4})
	}
	blk.Fallthrough = exit
	return fn
}

func TestAllocateNoOverlappingSameRegister(t *testing.T) {
	fn := manyVars(RegCount + 3)
	Allocate(fn)

	// Recompute each vreg's [start,end] span over the final (post-spill-
	// code-insertion) instruction stream and check that no two spans
	// sharing a real register overlap (§8 "allocator correctness").
	type span struct{ start, end, reg int }
	spans := map[int]*span{}
	idx := 0
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			touch := func(vr *ir.VReg) {
				// SpilledRegNo is deliberately shared, instruction by
				// instruction, across every reloaded spilled vreg — it
				// is scratch space, not a normally allocated register,
				// so it is excluded from the no-overlap check.
				if vr == nil || vr.RealReg == ir.SpillSentinel || vr.RealReg == SpilledRegNo {
					return
				}
				s, ok := spans[vr.ID]
				if !ok {
					s = &span{start: idx, end: idx, reg: vr.RealReg}
					spans[vr.ID] = s
				}
				if idx < s.start {
					s.start = idx
				}
				if idx > s.end {
					s.end = idx
				}
			}
			touch(in.Dst)
			touch(in.Src1)
			touch(in.Src2)
			idx++
		}
	}
	var all []*span
	for _, s := range spans {
		all = append(all, s)
	}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.reg != b.reg {
				continue
			}
			if a.start <= b.end && b.start <= a.end {
				t.Errorf("register %d reused by overlapping live ranges [%d,%d] and [%d,%d]",
					a.reg, a.start, a.end, b.start, b.end)
			}
		}
	}
}

func TestFrameSizeMultipleOf16(t *testing.T) {
	fn := manyVars(RegCount + 5)
	Allocate(fn)
	if fn.FrameSize%16 != 0 {
		t.Errorf("FrameSize = %d, not a multiple of 16", fn.FrameSize)
	}
}

func TestSpilledOperandsAlwaysReloaded(t *testing.T) {
	fn := manyVars(RegCount + 3)
	Allocate(fn)
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == ir.LOADSPILLED || in.Op == ir.STORESPILLED {
				continue
			}
			for _, vr := range []*ir.VReg{in.Dst, in.Src1, in.Src2} {
				if vr != nil && vr.RealReg == ir.SpillSentinel {
					t.Errorf("instruction %v references an un-reloaded spilled vreg %d", in.Op, vr.ID)
				}
			}
		}
	}
}

func TestNoSpillWhenRegistersSuffice(t *testing.T) {
	fn := manyVars(RegCount - 1)
	Allocate(fn)
	for _, vr := range fn.VRegs {
		if vr.RealReg == ir.SpillSentinel {
			t.Errorf("vreg %d spilled even though only %d registers were needed (RegCount=%d)",
				vr.ID, RegCount, RegCount)
		}
	}
}
