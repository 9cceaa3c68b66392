package lexer

import "testing"

func scanTypes(t *testing.T, src string) []Type {
	t.Helper()
	toks, err := New(src).ScanAll()
	if err != nil {
		t.Fatalf("ScanAll(%q): %v", src, err)
	}
	types := make([]Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestScanAllKeywordsAndIdentifiers(t *testing.T) {
	got := scanTypes(t, "func main class var const")
	want := []Type{KwFunc, Ident, KwClass, KwVar, KwConst, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestScanAllOperatorsPreferTwoCharLookahead(t *testing.T) {
	toks, err := New("== != <= >= = < >").ScanAll()
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	want := []Type{Eq, Ne, Le, Ge, Assign, Lt, Gt, EOF}
	for i, w := range want {
		if toks[i].Type != w {
			t.Fatalf("token %d: got %v want %v", i, toks[i].Type, w)
		}
	}
}

func TestScanNumberDistinguishesIntAndFloat(t *testing.T) {
	toks, err := New("42 3.14 5.").ScanAll()
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if toks[0].Type != Int || toks[0].Literal != "42" {
		t.Fatalf("expected int 42, got %+v", toks[0])
	}
	if toks[1].Type != Float || toks[1].Literal != "3.14" {
		t.Fatalf("expected float 3.14, got %+v", toks[1])
	}
	// "5." with no following digit: the dot is NOT part of the number.
	if toks[2].Type != Int || toks[2].Literal != "5" {
		t.Fatalf("expected int 5 (trailing dot not consumed), got %+v", toks[2])
	}
	if toks[3].Type != Dot {
		t.Fatalf("expected a standalone Dot token after 5, got %+v", toks[3])
	}
}

func TestScanStringHandlesEscapes(t *testing.T) {
	toks, err := New(`"hi\n\t\"there\""`).ScanAll()
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if toks[0].Type != Str {
		t.Fatalf("expected a string token, got %+v", toks[0])
	}
	want := "hi\n\t\"there\""
	if toks[0].Literal != want {
		t.Fatalf("expected literal %q, got %q", want, toks[0].Literal)
	}
}

func TestScanStringUnterminatedIsAnError(t *testing.T) {
	_, err := New(`"unterminated`).ScanAll()
	if err == nil {
		t.Fatalf("expected an unterminated-string error")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestSkipsCommentsToEndOfLine(t *testing.T) {
	got := scanTypes(t, "var x # this is a comment\nvar y")
	want := []Type{KwVar, Ident, KwVar, Ident, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestIllegalBangWithoutEqualsIsAnError(t *testing.T) {
	_, err := New("!x").ScanAll()
	if err == nil {
		t.Fatalf("expected an error for a bare '!' not followed by '='")
	}
}

func TestParseIntAndFloatLiteralHelpers(t *testing.T) {
	i, err := ParseIntLiteral("123")
	if err != nil || i != 123 {
		t.Fatalf("ParseIntLiteral: got %d, %v", i, err)
	}
	f, err := ParseFloatLiteral("1.5")
	if err != nil || f != 1.5 {
		t.Fatalf("ParseFloatLiteral: got %f, %v", f, err)
	}
}
