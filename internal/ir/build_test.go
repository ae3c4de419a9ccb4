package ir

import (
	"testing"

	"github.com/gmofishsauce/xcc/internal/lexer"
	"github.com/gmofishsauce/xcc/internal/parser"
	"github.com/gmofishsauce/xcc/internal/sema"
)

func buildSrc(t *testing.T, src string) *Program {
	t.Helper()
	p := parser.New(lexer.New("test.c", src))
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	if err := sema.New().Analyze(prog); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	lowered, err := Build(prog)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return lowered
}

func countOp(fn *Function, op Op) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func TestBuildReturnConstant(t *testing.T) {
	lowered := buildSrc(t, "int main() { return 42; }")
	if len(lowered.Funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(lowered.Funcs))
	}
	fn := lowered.Funcs[0]
	if fn.Name != "main" {
		t.Errorf("Name = %q, want main", fn.Name)
	}
	if fn.RetReg == nil {
		t.Fatal("RetReg is nil for a non-void function")
	}
	if countOp(fn, IMM) == 0 {
		t.Error("expected at least one IMM instruction for the literal 42")
	}
}

func TestBuildVoidFunctionHasNoRetReg(t *testing.T) {
	lowered := buildSrc(t, "void noop() { }")
	fn := lowered.Funcs[0]
	if fn.RetReg != nil {
		t.Error("RetReg should be nil for a void function")
	}
}

func TestBuildCallRecordsArgCount(t *testing.T) {
	lowered := buildSrc(t, `
int add(int a, int b) { return a + b; }
int main() { return add(1, 2); }
`)
	var mainFn *Function
	for _, fn := range lowered.Funcs {
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	if mainFn == nil {
		t.Fatal("main not found")
	}
	found := false
	for _, blk := range mainFn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == CALL && in.Label == "add" {
				found = true
				if in.Imm != 2 {
					t.Errorf("CALL Imm = %d, want 2 (argument count)", in.Imm)
				}
			}
		}
	}
	if !found {
		t.Fatal("no CALL to add found")
	}
}

// TestGotoResolvesToRealBlock covers the placeholder-JMP resolution
// pass: every JMP must end up with a non-nil Block once Build returns.
func TestGotoResolvesToRealBlock(t *testing.T) {
	lowered := buildSrc(t, `
int main() {
	goto done;
	return 1;
done:
	return 0;
}
`)
	fn := lowered.Funcs[0]
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == JMP && in.Block == nil {
				t.Errorf("unresolved JMP in block %s", blk.Label)
			}
		}
	}
}

func TestBuildForceSpillsAddressTakenLocal(t *testing.T) {
	lowered := buildSrc(t, `
int main() {
	int x = 5;
	int *p = &x;
	return *p;
}
`)
	fn := lowered.Funcs[0]
	found := false
	for _, vr := range fn.VRegs {
		if vr.ForceSpill {
			found = true
		}
	}
	if !found {
		t.Error("expected the address-taken local to carry ForceSpill")
	}
}
