// Package amd64 implements the x86-64 machine-code encoder of §4.5/§12:
// one small function per instruction form, each returning an encoded
// []byte, assembled by internal/codegen's emitter exactly the way
// other_examples/lcox74-bfcc's internal/codegen/linux-x86_64.go drives
// its pkg/amd64 companion — a REX-prefix/ModRM/SIB byte packer with no
// disassembler or decoder half, since this compiler only ever emits.
package amd64

// Reg names the 16 general-purpose registers in their x86-64 encoding
// order (0-7 classic, 8-15 requiring a REX.B/R/X extension bit).
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r Reg) String() string {
	return [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}[r]
}

// low3 returns the bottom 3 bits of a register encoding (the ModRM/SIB
// field value; the 4th bit goes into REX.B/R/X).
func (r Reg) low3() byte { return byte(r) & 7 }
func (r Reg) ext() byte  { return byte(r) >> 3 & 1 }

// Cond is an x86-64 condition code, used by Jcc/SetCC.
type Cond byte

const (
	CondO  Cond = 0x0
	CondNO Cond = 0x1
	CondB  Cond = 0x2 // below / carry (unsigned <)
	CondAE Cond = 0x3 // above-or-equal (unsigned >=)
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondBE Cond = 0x6 // unsigned <=
	CondA  Cond = 0x7 // unsigned >
	CondS  Cond = 0x8
	CondNS Cond = 0x9
	CondL  Cond = 0xC // signed <
	CondGE Cond = 0xD // signed >=
	CondLE Cond = 0xE // signed <=
	CondG  Cond = 0xF // signed >
)

// rex builds a REX prefix byte. w selects the 64-bit operand size; r/x/b
// are the extension bits for ModRM.reg, SIB.index, and ModRM.rm/SIB.base
// respectively. The result always carries the 0x40 base bits; whether
// to emit it at all is decided by the caller (needsRex, or SetCC's
// byte-register rule).
func rex(w bool, r, x, b byte) byte {
	rx := byte(0x40)
	if w {
		rx |= 0x08
	}
	rx |= r << 2
	rx |= x << 1
	rx |= b
	return rx
}

func needsRex(w bool, r, x, b byte) bool { return w || r != 0 || x != 0 || b != 0 }

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | rm&7 }

func imm32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}
}

func imm64(v uint64) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56)}
}

// regRegOp encodes the common `OP reg, reg` two-register ModRM form
// shared by mov/add/sub/and/or/xor/cmp/test/imul's two-operand form.
func regRegOp(opcode byte, dst, src Reg, w bool) []byte {
	b := []byte{}
	if needsRex(w, src.ext(), 0, dst.ext()) {
		b = append(b, rex(w, src.ext(), 0, dst.ext()))
	}
	b = append(b, opcode, modrm(3, src.low3(), dst.low3()))
	return b
}

// MovRegReg encodes `mov dst, src` (64-bit).
func MovRegReg(dst, src Reg) []byte { return regRegOp(0x89, dst, src, true) }

// MovRegImm32 encodes `mov dst, imm32` sign-extended to 64 bits (`mov
// r/m64, imm32`, opcode 0xC7 /0).
func MovRegImm32(dst Reg, v int32) []byte {
	b := []byte{}
	if needsRex(true, 0, 0, dst.ext()) {
		b = append(b, rex(true, 0, 0, dst.ext()))
	}
	b = append(b, 0xC7, modrm(3, 0, dst.low3()))
	return append(b, imm32(v)...)
}

// MovRegImm64 encodes `movabs dst, imm64` (opcode 0xB8+rd).
func MovRegImm64(dst Reg, v uint64) []byte {
	b := []byte{rex(true, 0, 0, dst.ext()), 0xB8 + dst.low3()}
	return append(b, imm64(v)...)
}

// memOperand encodes a [base + disp32] ModRM/SIB byte sequence, used by
// every load/store form. RSP and R12 require an explicit SIB byte
// (their ModRM.rm encoding is reserved for SIB/RIP-relative addressing).
func memOperand(reg, base Reg) []byte {
	b := []byte{}
	mod := byte(2) // disp32 always, to keep fixup math uniform
	rm := base.low3()
	if rm == 4 { // RSP/R12 need SIB
		b = append(b, modrm(mod, reg.low3(), 4), 0x24)
	} else {
		b = append(b, modrm(mod, reg.low3(), rm))
	}
	return b
}

// MovRegMem encodes `mov dst, [base+disp]` (load).
func MovRegMem(dst, base Reg, disp int32) []byte {
	b := []byte{}
	if needsRex(true, dst.ext(), 0, base.ext()) {
		b = append(b, rex(true, dst.ext(), 0, base.ext()))
	}
	b = append(b, 0x8B)
	b = append(b, memOperand(dst, base)...)
	return append(b, imm32(disp)...)
}

// MovMemReg encodes `mov [base+disp], src` (store).
func MovMemReg(base Reg, disp int32, src Reg) []byte {
	b := []byte{}
	if needsRex(true, src.ext(), 0, base.ext()) {
		b = append(b, rex(true, src.ext(), 0, base.ext()))
	}
	b = append(b, 0x89)
	b = append(b, memOperand(src, base)...)
	return append(b, imm32(disp)...)
}

// Lea encodes `lea dst, [base+disp]`.
func Lea(dst, base Reg, disp int32) []byte {
	b := []byte{}
	if needsRex(true, dst.ext(), 0, base.ext()) {
		b = append(b, rex(true, dst.ext(), 0, base.ext()))
	}
	b = append(b, 0x8D)
	b = append(b, memOperand(dst, base)...)
	return append(b, imm32(disp)...)
}

// arithOpcodes maps each two-operand arithmetic/logic/compare op to its
// `OP r/m64, r64` opcode (0x01-family: ADD 0x01, OR 0x09, AND 0x21,
// SUB 0x29, XOR 0x31, CMP 0x39 — the standard x86 grouping where each
// op's register-to-r/m form is `base | 0x01`).
const (
	opAdd = 0x01
	opOr  = 0x09
	opAnd = 0x21
	opSub = 0x29
	opXor = 0x31
	opCmp = 0x39
)

func AddRegReg(dst, src Reg) []byte { return regRegOp(opAdd, dst, src, true) }
func SubRegReg(dst, src Reg) []byte { return regRegOp(opSub, dst, src, true) }
func AndRegReg(dst, src Reg) []byte { return regRegOp(opAnd, dst, src, true) }
func OrRegReg(dst, src Reg) []byte  { return regRegOp(opOr, dst, src, true) }
func XorRegReg(dst, src Reg) []byte { return regRegOp(opXor, dst, src, true) }
func CmpRegReg(dst, src Reg) []byte { return regRegOp(opCmp, dst, src, true) }

// AddRegImm32 encodes `add dst, imm32` (opcode 0x81 /0).
func AddRegImm32(dst Reg, v int32) []byte { return groupImm32(0x0, dst, v) }
func SubRegImm32(dst Reg, v int32) []byte { return groupImm32(0x5, dst, v) }
func AndRegImm32(dst Reg, v int32) []byte { return groupImm32(0x4, dst, v) }
func OrRegImm32(dst Reg, v int32) []byte  { return groupImm32(0x1, dst, v) }
func XorRegImm32(dst Reg, v int32) []byte { return groupImm32(0x6, dst, v) }
func CmpRegImm32(dst Reg, v int32) []byte { return groupImm32(0x7, dst, v) }

func groupImm32(ext byte, dst Reg, v int32) []byte {
	b := []byte{}
	if needsRex(true, 0, 0, dst.ext()) {
		b = append(b, rex(true, 0, 0, dst.ext()))
	}
	b = append(b, 0x81, modrm(3, ext, dst.low3()))
	return append(b, imm32(v)...)
}

// TestRegReg encodes `test dst, src`.
func TestRegReg(dst, src Reg) []byte { return regRegOp(0x85, dst, src, true) }

// NotReg encodes `not dst` (unary group 3, opcode 0xF7 /2).
func NotReg(dst Reg) []byte { return unaryGroup(0x2, dst) }

// NegReg encodes `neg dst` (unary group 3, opcode 0xF7 /3).
func NegReg(dst Reg) []byte { return unaryGroup(0x3, dst) }

func unaryGroup(ext byte, dst Reg) []byte {
	b := []byte{}
	if needsRex(true, 0, 0, dst.ext()) {
		b = append(b, rex(true, 0, 0, dst.ext()))
	}
	return append(b, 0xF7, modrm(3, ext, dst.low3()))
}

// ImulRegReg encodes `imul dst, src` (two-operand signed multiply,
// opcode 0x0F 0xAF /r).
func ImulRegReg(dst, src Reg) []byte {
	b := []byte{}
	if needsRex(true, dst.ext(), 0, src.ext()) {
		b = append(b, rex(true, dst.ext(), 0, src.ext()))
	}
	b = append(b, 0x0F, 0xAF, modrm(3, dst.low3(), src.low3()))
	return b
}

// CqoSignExtendRaxToRdx encodes `cqo`, sign-extending RAX into RDX:RAX —
// idiv's required setup step.
func CqoSignExtendRaxToRdx() []byte { return []byte{0x48, 0x99} }

// IdivReg encodes `idiv src` (signed divide RDX:RAX by src, quotient
// in RAX, remainder in RDX — group 3, opcode 0xF7 /7).
func IdivReg(src Reg) []byte {
	b := []byte{}
	if needsRex(true, 0, 0, src.ext()) {
		b = append(b, rex(true, 0, 0, src.ext()))
	}
	return append(b, 0xF7, modrm(3, 0x7, src.low3()))
}

// ShlRegCL/ShrRegCL/SarRegCL encode `shl/shr/sar dst, cl` (group 2,
// opcode 0xD3 /4 /5 /7 — this shift form always takes its count from
// CL; the register is fixed by the instruction encoding).
func ShlRegCL(dst Reg) []byte { return shiftGroup(0x4, dst) }
func ShrRegCL(dst Reg) []byte { return shiftGroup(0x5, dst) }
func SarRegCL(dst Reg) []byte { return shiftGroup(0x7, dst) }

func shiftGroup(ext byte, dst Reg) []byte {
	b := []byte{}
	if needsRex(true, 0, 0, dst.ext()) {
		b = append(b, rex(true, 0, 0, dst.ext()))
	}
	return append(b, 0xD3, modrm(3, ext, dst.low3()))
}

// SetCC encodes `setCC dst8` (byte-sized, zero-extends only the low
// byte — callers MOVZX the result into a full register themselves). A
// REX prefix (even the bare 0x40) is forced whenever dst is rsp/rbp/rsi/
// rdi: without one, the byte-register encoding for those four indices
// addresses ah/ch/dh/bh instead of spl/bpl/sil/dil.
func SetCC(cond Cond, dst Reg) []byte {
	b := []byte{}
	if dst.ext() != 0 || (dst >= RSP && dst <= RDI) {
		b = append(b, rex(false, 0, 0, dst.ext()))
	}
	return append(b, 0x0F, 0x90|byte(cond), modrm(3, 0, dst.low3()))
}

// MovzxReg8 encodes `movzx dst, src8` (zero-extend a byte to 64 bits).
func MovzxReg8(dst, src Reg) []byte {
	b := []byte{}
	if needsRex(true, dst.ext(), 0, src.ext()) {
		b = append(b, rex(true, dst.ext(), 0, src.ext()))
	}
	return append(b, 0x0F, 0xB6, modrm(3, dst.low3(), src.low3()))
}

// MovsxReg32 encodes `movsxd dst, src32` (sign-extend a 32-bit value to
// 64 bits, opcode 0x63).
func MovsxReg32(dst, src Reg) []byte {
	b := []byte{rex(true, dst.ext(), 0, src.ext())}
	return append(b, 0x63, modrm(3, dst.low3(), src.low3()))
}

// JmpRel32 encodes `jmp rel32` with a placeholder displacement; the
// caller patches the trailing 4 bytes once the target offset is known.
func JmpRel32(rel int32) []byte { return append([]byte{0xE9}, imm32(rel)...) }

// JccRel32 encodes `jCC rel32` (near conditional jump, 0x0F 0x80+cc).
func JccRel32(cond Cond, rel int32) []byte {
	return append([]byte{0x0F, 0x80 | byte(cond)}, imm32(rel)...)
}

// CallRel32 encodes `call rel32`.
func CallRel32(rel int32) []byte { return append([]byte{0xE8}, imm32(rel)...) }

// CallRegIndirect encodes `call reg` (group 5, opcode 0xFF /2) — a
// function-pointer call through a value already materialized in a
// register.
func CallRegIndirect(r Reg) []byte {
	b := []byte{}
	if r.ext() != 0 {
		b = append(b, rex(false, 0, 0, r.ext()))
	}
	return append(b, 0xFF, modrm(3, 0x2, r.low3()))
}

// Ret encodes `ret`.
func Ret() []byte { return []byte{0xC3} }

// PushReg encodes `push reg`.
func PushReg(r Reg) []byte {
	if r.ext() != 0 {
		return []byte{rex(false, 0, 0, r.ext()), 0x50 + r.low3()}
	}
	return []byte{0x50 + r.low3()}
}

// PopReg encodes `pop reg`.
func PopReg(r Reg) []byte {
	if r.ext() != 0 {
		return []byte{rex(false, 0, 0, r.ext()), 0x58 + r.low3()}
	}
	return []byte{0x58 + r.low3()}
}

// Syscall encodes the `syscall` instruction (0x0F 0x05), the only way
// this freestanding binary ever enters the kernel (_start/_exit/_write,
// per §1's "tiny hand-written startup shim").
func Syscall() []byte { return []byte{0x0F, 0x05} }

// XorSelf encodes `xor reg, reg` — the idiomatic zero-register idiom
// (shorter than `mov reg, 0`; unlike mov, it also sets the flags).
func XorSelf(r Reg) []byte { return XorRegReg(r, r) }
