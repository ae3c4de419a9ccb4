package parser

import (
	"testing"

	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/lexer"
)

func parseSrc(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(lexer.New("test.c", src))
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	return prog
}

func TestParseFuncDef(t *testing.T) {
	prog := parseSrc(t, "int main() { return 42; }")
	if len(prog.Decls) != 1 {
		t.Fatalf("got %d decls, want 1", len(prog.Decls))
	}
	fn, ok := prog.Decls[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("decl is %T, want *ast.FuncDecl", prog.Decls[0])
	}
	if fn.Name != "main" {
		t.Errorf("Name = %q, want %q", fn.Name, "main")
	}
	if fn.Body == nil {
		t.Fatal("Body is nil")
	}
}

func TestParseGlobalVar(t *testing.T) {
	prog := parseSrc(t, "int counter = 7;")
	if len(prog.Decls) != 1 {
		t.Fatalf("got %d decls, want 1", len(prog.Decls))
	}
	vd, ok := prog.Decls[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("decl is %T, want *ast.VarDecl", prog.Decls[0])
	}
	if vd.Name != "counter" {
		t.Errorf("Name = %q, want %q", vd.Name, "counter")
	}
}

func TestParseStructAndSwitch(t *testing.T) {
	src := `
struct point { int x; int y; };
int classify(int n) {
	switch (n) {
	case 1:
		return 10;
	case 2:
		return 20;
	default:
		return -1;
	}
}
`
	prog := parseSrc(t, src)
	if len(prog.Decls) != 2 {
		t.Fatalf("got %d decls, want 2", len(prog.Decls))
	}
	if _, ok := prog.Decls[0].(*ast.StructDecl); !ok {
		t.Errorf("decl 0 is %T, want *ast.StructDecl", prog.Decls[0])
	}
	fn, ok := prog.Decls[1].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("decl 1 is %T, want *ast.FuncDecl", prog.Decls[1])
	}
	if fn.Name != "classify" {
		t.Errorf("Name = %q, want %q", fn.Name, "classify")
	}
}

func TestParseErrorIsFatal(t *testing.T) {
	p := New(lexer.New("test.c", "int main( { return 0; }"))
	if _, err := p.ParseProgram(); err == nil {
		t.Fatal("expected a parse error for a malformed parameter list")
	}
}
