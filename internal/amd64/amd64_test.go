package amd64

import (
	"bytes"
	"testing"
)

func TestRegRegOpEncodings(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"mov rax, rcx", MovRegReg(RAX, RCX), []byte{0x48, 0x89, 0xC8}},
		{"add rbx, rdx", AddRegReg(RBX, RDX), []byte{0x48, 0x01, 0xD3}},
		{"mov r8, r9", MovRegReg(R8, R9), []byte{0x4D, 0x89, 0xC8}},
		{"ret", Ret(), []byte{0xC3}},
		{"syscall", Syscall(), []byte{0x0F, 0x05}},
		{"cqo", CqoSignExtendRaxToRdx(), []byte{0x48, 0x99}},
		{"xor rax,rax", XorSelf(RAX), []byte{0x48, 0x31, 0xC0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("got % X, want % X", tt.got, tt.want)
			}
		})
	}
}

func TestPushPopRexExtension(t *testing.T) {
	// A register in 0-7 needs no REX; 8-15 needs rex.b.
	if got := PushReg(RAX); !bytes.Equal(got, []byte{0x50}) {
		t.Errorf("push rax = % X, want [50]", got)
	}
	if got := PushReg(R8); !bytes.Equal(got, []byte{0x41, 0x50}) {
		t.Errorf("push r8 = % X, want [41 50]", got)
	}
	if got := PopReg(R15); !bytes.Equal(got, []byte{0x41, 0x5F}) {
		t.Errorf("pop r15 = % X, want [41 5F]", got)
	}
}

func TestMovRegImm32SignExtends(t *testing.T) {
	got := MovRegImm32(RCX, -1)
	want := []byte{0x48, 0xC7, 0xC1, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("mov rcx, -1 = % X, want % X", got, want)
	}
}

func TestJccRel32Layout(t *testing.T) {
	got := JccRel32(CondE, 10)
	want := []byte{0x0F, 0x84, 0x0A, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("je +10 = % X, want % X", got, want)
	}
}

func TestSetCCForcesRexOnLowByteAmbiguousRegisters(t *testing.T) {
	// rsi/rdi/rsp/rbp need a REX prefix even with no extension bit set,
	// or the byte-register encoding targets ah/ch/dh/bh instead of
	// sil/dil/spl/bpl.
	got := SetCC(CondE, RSI)
	if len(got) < 1 || got[0]&0xF0 != 0x40 {
		t.Errorf("setcc dst=rsi = % X, want a REX prefix byte first", got)
	}
	gotNoRex := SetCC(CondE, RAX)
	if len(gotNoRex) > 0 && gotNoRex[0]&0xF0 == 0x40 {
		t.Errorf("setcc dst=rax emitted an unnecessary REX prefix: % X", gotNoRex)
	}
}

func TestCallRegIndirect(t *testing.T) {
	got := CallRegIndirect(RAX)
	want := []byte{0xFF, 0xD0}
	if !bytes.Equal(got, want) {
		t.Errorf("call rax = % X, want % X", got, want)
	}
	got2 := CallRegIndirect(R10)
	want2 := []byte{0x41, 0xFF, 0xD2}
	if !bytes.Equal(got2, want2) {
		t.Errorf("call r10 = % X, want % X", got2, want2)
	}
}
