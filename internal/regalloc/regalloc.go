// Package regalloc implements the linear-scan register allocator and
// frame-layout pass of §4.4: live-interval construction over a
// Function's already-built basic-block graph, greedy interval
// allocation with steal-or-spill, stack frame placement for spilled
// vregs, and the spill load/store insertion pass that makes every
// instruction's operands machine-representable again after spilling.
//
// Grounded on original_source/src/cc/regalloc.c's linear-scan pass
// (sort_live_interval, alloc_registers, insert_load_store_spilled),
// adapted from that file's flat instruction array to this rewrite's
// basic-block graph — instruction indices are assigned by a single
// global numbering pass across blocks in layout order (§4.4 "globally
// numbered across blocks in sequence") so liveness reasons about one
// flat timeline exactly as the original does.
package regalloc

import (
	"sort"

	"github.com/gmofishsauce/xcc/internal/ir"
)

// Allocatable general-purpose registers, numbered to match amd64.Reg
// (RAX=0, RCX=1, RDX=2, RBX=3, RSP=4, RBP=5, RSI=6, RDI=7, R8..R15=8..15).
// RAX and RDX are withheld: idiv's hardware contract clobbers both ack
// edge-to-edge with any multi/divide in the same block, and RAX doubles
// as the call-result register RESULT reads from. RSP/RBP are the stack
// pointer and frame pointer. R11 is withheld as the dedicated spill
// scratch register (SpilledRegNo).
var allocatable = []int{3, 1, 6, 7, 8, 9, 10, 12, 13, 14, 15}

// RegCount is the number of real registers linear-scan may hand out.
var RegCount = len(allocatable)

// SpilledRegNo is the one reserved machine register the spill
// load/store insertion pass uses as scratch space (R11).
const SpilledRegNo = 11

// WordSize is the machine word size in bytes — the width every spilled
// operand's *address* load always uses, regardless of the value's own
// Size (§4.4's documented asymmetry).
const WordSize = 8

// interval is one vreg's live range, per §4.4.
type interval struct {
	vr         *ir.VReg
	start, end int
	forceSpill bool
}

// Allocate runs the full §4.4 pipeline over fn: liveness, linear-scan
// allocation, frame layout, and spill load/store insertion. fn's
// blocks, vregs and Instrs are mutated in place.
func Allocate(fn *ir.Function) {
	numberInstructions(fn)
	ivs := buildIntervals(fn)
	linearScan(ivs)
	layoutFrame(fn, ivs)
	insertSpillCode(fn)
}

// numberInstructions assigns each basic block a [Start,End) range in a
// single global timeline, walking blocks in the order the IR builder
// appended them (§4.4 "globally numbered across blocks in sequence").
func numberInstructions(fn *ir.Function) {
	n := 0
	for _, blk := range fn.Blocks {
		blk.Start = n
		n += len(blk.Instrs)
		blk.End = n
	}
}

// buildIntervals computes one live interval per vreg: the widest
// [start,end] span across every instruction index where the vreg
// appears as an operand, extended by any block whose OutRegs/InRegs
// liveness sets (computed by the IR builder, or conservatively left
// empty when it doesn't bother) mention it.
func buildIntervals(fn *ir.Function) []*interval {
	byID := make(map[int]*interval, len(fn.VRegs))
	for _, vr := range fn.VRegs {
		byID[vr.ID] = &interval{vr: vr, start: 1 << 30, end: -1, forceSpill: vr.ForceSpill}
	}
	touch := func(vr *ir.VReg, idx int) {
		if vr == nil {
			return
		}
		iv := byID[vr.ID]
		if iv == nil {
			return
		}
		if idx < iv.start {
			iv.start = idx
		}
		if idx > iv.end {
			iv.end = idx
		}
	}
	for _, blk := range fn.Blocks {
		for i, in := range blk.Instrs {
			idx := blk.Start + i
			touch(in.Dst, idx)
			touch(in.Src1, idx)
			touch(in.Src2, idx)
		}
		for _, vr := range blk.InRegs {
			touch(vr, blk.Start)
		}
		for _, vr := range blk.OutRegs {
			touch(vr, blk.End)
		}
	}
	for _, p := range fn.Params {
		iv := byID[p.ID]
		if iv == nil {
			continue
		}
		// The prologue loads every parameter before instruction 0, so
		// each interval starts at -1 (the prologue); an unused parameter
		// is still live across the whole prologue.
		iv.start = -1
		if iv.end < 0 {
			iv.end = 0
		}
	}

	var out []*interval
	for _, vr := range fn.VRegs {
		iv := byID[vr.ID]
		if iv.end < 0 {
			// Never referenced (e.g. a declared-but-dead local) — give it
			// a degenerate interval so frame layout still reserves space
			// for address-taken/aggregate slots nothing else touches.
			iv.start, iv.end = 0, 0
		}
		out = append(out, iv)
	}
	return out
}

// linearScan is the §4.4 algorithm: sort by start (ties broken by
// ascending end — original_source/src/cc/regalloc.c's comparator reads
// `b->end - a->start`, a transcription slip this rewrite does not
// reproduce; see DESIGN.md), then sweep with an active list sorted by
// end, expiring, allocating, or stealing/spilling as each interval
// becomes current.
func linearScan(ivs []*interval) {
	sort.SliceStable(ivs, func(i, j int) bool {
		if ivs[i].start != ivs[j].start {
			return ivs[i].start < ivs[j].start
		}
		return ivs[i].end < ivs[j].end
	})

	var active []*interval
	freeRegs := append([]int(nil), allocatable...)

	expire := func(cur *interval) {
		kept := active[:0]
		for _, a := range active {
			if a.end <= cur.start {
				freeRegs = append(freeRegs, a.vr.RealReg)
				continue
			}
			kept = append(kept, a)
		}
		active = kept
	}

	spill := func(iv *interval) {
		iv.vr.RealReg = ir.SpillSentinel
	}

	for _, cur := range ivs {
		expire(cur)
		if cur.forceSpill {
			spill(cur)
			continue
		}
		if len(freeRegs) > 0 {
			sort.Ints(freeRegs)
			cur.vr.RealReg = freeRegs[0]
			freeRegs = freeRegs[1:]
			active = insertByEnd(active, cur)
			continue
		}
		// No free register: steal from the active interval ending
		// latest if it outlives cur, else spill cur itself.
		sort.Slice(active, func(i, j int) bool { return active[i].end < active[j].end })
		worst := active[len(active)-1]
		if worst.end > cur.end {
			cur.vr.RealReg = worst.vr.RealReg
			spill(worst)
			active = active[:len(active)-1]
			active = insertByEnd(active, cur)
		} else {
			spill(cur)
		}
	}
}

func insertByEnd(active []*interval, iv *interval) []*interval {
	active = append(active, iv)
	sort.Slice(active, func(i, j int) bool { return active[i].end < active[j].end })
	return active
}

// layoutFrame walks spilled vregs in the interval order linear-scan
// already produced, aligning frame_size upward to 8 bytes (the largest
// alignment any type here needs) before subtracting its size (§4.4). Stack-passed parameters
// that already carry a positive/negative offset from the calling
// convention are left untouched.
func layoutFrame(fn *ir.Function, ivs []*interval) {
	frameSize := 0
	for _, iv := range ivs {
		vr := iv.vr
		if vr.RealReg != ir.SpillSentinel {
			continue
		}
		if vr.FrameOffset != 0 {
			continue // pre-assigned stack-parameter slot
		}
		align := 8
		sz := vr.Type.Sizeof()
		if sz <= 0 {
			sz = 1
		}
		frameSize = alignUp(frameSize, align)
		frameSize += sz
		vr.FrameOffset = -frameSize
	}
	fn.FrameSize = alignUp(frameSize, 16)
	for _, iv := range ivs {
		if iv.vr.RealReg != ir.SpillSentinel && iv.vr.RealReg != ir.Unassigned {
			fn.UsedRegs[iv.vr.RealReg] = true
		}
	}
}

func alignUp(v, a int) int {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}

// insertSpillCode is the second IR pass of §4.4: before any instruction
// reading a spilled operand, insert a LOAD_SPILLED that reloads it into
// a scratch vreg pinned to SpilledRegNo and rewrites the operand to
// that scratch; after any instruction writing a spilled destination,
// redirect the write to scratch and insert a STORE_SPILLED that spills
// it back out. LOAD/STORE/MEMCPY's address operand is always reloaded
// at WordSize regardless of the instruction's own data Size, which
// describes only the value being moved — the asymmetry is carried
// verbatim from insert_load_store_spilled. Only one scratch register is
// reserved, inherited as-is from the original (see DESIGN.md): an
// instruction with two simultaneously spilled source operands is not
// correctly supported, matching the source's own limitation.
func insertSpillCode(fn *ir.Function) {
	used := false
	for _, blk := range fn.Blocks {
		var out []*ir.Instr
		for _, in := range blk.Instrs {
			in.Src1, out = reload(out, in, in.Src1, addressOperand(in, 1), &used)
			in.Src2, out = reload(out, in, in.Src2, addressOperand(in, 2), &used)
			origDst := in.Dst
			if origDst != nil && origDst.RealReg == ir.SpillSentinel {
				in.Dst = &ir.VReg{ID: origDst.ID, Type: origDst.Type, RealReg: SpilledRegNo, Name: origDst.Name}
				used = true
			}
			out = append(out, in)
			if origDst != nil && origDst.RealReg == ir.SpillSentinel {
				out = append(out, &ir.Instr{Op: ir.STORESPILLED, Dst: origDst, Src1: in.Dst, Size: origDst.Type.Sizeof()})
			}
		}
		blk.Instrs = out
	}
	if used {
		fn.UsedRegs[SpilledRegNo] = true
	}
}

// addressOperand reports whether operand slot n (1 or 2) of in is used
// as a memory address rather than a value — true for LOAD/MEMCPY's
// Src1, and for STORE's Src1 (the destination address); STORE's Src2
// is the value being written and keeps the instruction's own Size.
func addressOperand(in *ir.Instr, slot int) bool {
	switch in.Op {
	case ir.LOAD, ir.STORE, ir.MEMCPY:
		return slot == 1
	}
	return false
}

func reload(out []*ir.Instr, in *ir.Instr, vr *ir.VReg, isAddress bool, used *bool) (*ir.VReg, []*ir.Instr) {
	if vr == nil || vr.RealReg != ir.SpillSentinel {
		return vr, out
	}
	tmp := &ir.VReg{ID: vr.ID, Type: vr.Type, RealReg: SpilledRegNo, Name: vr.Name}
	size := vr.Type.Sizeof()
	if isAddress {
		size = WordSize
	}
	*used = true
	return tmp, append(out, &ir.Instr{Op: ir.LOADSPILLED, Dst: tmp, Src1: vr, Size: size})
}
