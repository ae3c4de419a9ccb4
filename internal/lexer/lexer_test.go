package lexer

import (
	"testing"

	"github.com/gmofishsauce/xcc/internal/token"
)

func fetchAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New("test.c", src)
	var toks []token.Token
	for {
		tok, err := l.Fetch()
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

// TestTokenRoundTrip exercises §8's "token round-trip" property: every
// kind the lexer can emit renders back to readable source via String().
func TestTokenRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"punctuators", "+ - ( ) { } ;", []string{"+", "-", "(", ")", "{", "}", ";"}},
		{"multi-char", "<< >> == != <= >= && || -> ++ --", []string{"<<", ">>", "==", "!=", "<=", ">=", "&&", "||", "->", "++", "--"}},
		{"keywords", "if else while return", []string{"if", "else", "while", "return"}},
		{"ident", "foobar", []string{"foobar"}},
		{"int literal", "42", []string{"42"}},
		{"string literal", `"hi"`, []string{`"hi"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := fetchAll(t, tt.src)
			var got []string
			for _, tok := range toks {
				if tok.Kind == token.EOF {
					break
				}
				got = append(got, tok.String())
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScanNumber(t *testing.T) {
	tests := []struct {
		src      string
		wantVal  int64
		wantLong bool
		wantUns  bool
	}{
		{"0", 0, false, false},
		{"42", 42, false, false},
		{"0x2A", 42, false, false},
		{"052", 42, false, false},
		{"10L", 10, true, false},
		{"10U", 10, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := fetchAll(t, tt.src)
			if len(toks) < 1 {
				t.Fatal("no tokens")
			}
			tok := toks[0]
			if tok.IntVal != tt.wantVal {
				t.Errorf("IntVal = %d, want %d", tok.IntVal, tt.wantVal)
			}
			if tt.wantLong && tok.Kind != token.LongLit {
				t.Errorf("Kind = %v, want LongLit", tok.Kind)
			}
			if tt.wantUns && !tok.Unsigned {
				t.Error("Unsigned = false, want true")
			}
		})
	}
}

func TestUnterminatedStringIsFatal(t *testing.T) {
	l := New("test.c", `"abc`)
	_, err := l.Fetch()
	if err == nil {
		t.Fatal("expected an error for an unterminated string literal")
	}
}

func TestUngetRoundTrips(t *testing.T) {
	l := New("test.c", "a b")
	first, err := l.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	l.Unget(first)
	again, err := l.Fetch()
	if err != nil {
		t.Fatal(err)
	}
	if again.Name != first.Name {
		t.Errorf("Unget did not replay the token: got %q, want %q", again.Name, first.Name)
	}
}
