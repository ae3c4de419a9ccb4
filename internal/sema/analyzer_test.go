package sema

import (
	"testing"

	"github.com/gmofishsauce/xcc/internal/diag"
	"github.com/gmofishsauce/xcc/internal/lexer"
	"github.com/gmofishsauce/xcc/internal/parser"
)

func analyzeSrc(t *testing.T, src string) error {
	t.Helper()
	p := parser.New(lexer.New("test.c", src))
	prog, err := p.ParseProgram()
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	return New().Analyze(prog)
}

func TestAnalyzeValidPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"return constant", "int main() { return 42; }"},
		{"recursive fib", `
int fib(int n) {
	if (n < 2) return n;
	return fib(n - 1) + fib(n - 2);
}
int main() { return fib(10); }
`},
		{"array sum", `
int main() {
	int a[3];
	a[0] = 1; a[1] = 2; a[2] = 3;
	int s = 0;
	for (int i = 0; i < 3; i = i + 1) s = s + a[i];
	return s;
}
`},
		{"designated initializer", `
struct point { int x; int y; };
int main() {
	struct point p = { .y = 7 };
	return p.y;
}
`},
		{"switch fallthrough", `
int main() {
	int n = 1;
	int r = 0;
	switch (n) {
	case 1:
		r = r + 10;
	case 2:
		r = r + 10;
		break;
	default:
		r = 1;
	}
	return r;
}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := analyzeSrc(t, tt.src); err != nil {
				t.Fatalf("Analyze: %v", err)
			}
		})
	}
}

// TestUndeclaredIdentifierRejected covers §8 scenario 7: a reference to
// an undeclared name is a fatal Undeclared diagnostic, not a panic.
func TestUndeclaredIdentifierRejected(t *testing.T) {
	err := analyzeSrc(t, "int main() { return x; }")
	if err == nil {
		t.Fatal("expected an error for an undeclared identifier")
	}
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		t.Fatalf("err is %T, want *diag.Diagnostic", err)
	}
	if d.Kind != diag.Undeclared {
		t.Errorf("Kind = %v, want %v", d.Kind, diag.Undeclared)
	}
}

func TestRedeclarationRejected(t *testing.T) {
	err := analyzeSrc(t, "int main() { int x; int x; return 0; }")
	if err == nil {
		t.Fatal("expected an error for a redeclared local")
	}
	if !diag.IsBug(err) {
		if d, ok := err.(*diag.Diagnostic); !ok || d.Kind != diag.Redeclaration {
			t.Errorf("err = %v, want a Redeclaration diagnostic", err)
		}
	}
}
