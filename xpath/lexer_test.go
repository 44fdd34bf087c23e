package xpath

import "testing"

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := newLexer(src)
	var toks []Token
	for {
		tok := lx.current()
		if lx.err != nil {
			t.Fatalf("lex %q: %v", src, lx.err)
		}
		toks = append(toks, tok)
		if tok.Type == TokEOF {
			return toks
		}
		lx.advance()
	}
}

func lexTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	toks := lexAll(t, src)
	out := make([]TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func assertTypes(t *testing.T, src string, want ...TokenType) {
	t.Helper()
	got := lexTypes(t, src)
	if len(got) != len(want) {
		t.Fatalf("%q: got %d tokens %v, want %d %v", src, len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: token %d = %v, want %v (all: %v)", src, i, got[i], want[i], got)
		}
	}
}

func TestLexStarDisambiguation(t *testing.T) {
	// Operand position: wildcard.
	assertTypes(t, "*", TokStar, TokEOF)
	assertTypes(t, "child::*", TokAxisChild, TokStar, TokEOF)
	// After an operand: multiplication.
	assertTypes(t, "2 * 3", TokNumber, TokMultiply, TokNumber, TokEOF)
	assertTypes(t, "(a) * 3", TokLParen, TokNCName, TokRParen, TokMultiply, TokNumber, TokEOF)
	// A wildcard ends an operand, so a second star multiplies.
	assertTypes(t, "* * 2", TokStar, TokMultiply, TokNumber, TokEOF)
}

func TestLexKeywordContext(t *testing.T) {
	// "and" after an operand is the operator; at operand position a name.
	assertTypes(t, "a and b", TokNCName, TokAnd, TokNCName, TokEOF)
	assertTypes(t, "and", TokNCName, TokEOF)
	assertTypes(t, "$and and $or", TokDollar, TokNCName, TokAnd, TokDollar, TokNCName, TokEOF)
	assertTypes(t, "div div div", TokNCName, TokDiv, TokNCName, TokEOF)
}

func TestLexAxes(t *testing.T) {
	assertTypes(t, "descendant-or-self::node()",
		TokAxisDescendantOrSelf, TokNodeTest, TokRParen, TokEOF)
	// Whitespace permitted between the axis name and "::".
	assertTypes(t, "child :: a", TokAxisChild, TokNCName, TokEOF)
	toks := lexAll(t, "following-sibling::x")
	if toks[0].Type != TokAxisFollowingSibling {
		t.Errorf("axis token = %v", toks[0].Type)
	}
}

func TestLexNodeTypeTests(t *testing.T) {
	assertTypes(t, "text()", TokTextTest, TokRParen, TokEOF)
	assertTypes(t, "comment()", TokCommentTest, TokRParen, TokEOF)
	assertTypes(t, "processing-instruction('a')", TokPITest, TokString, TokRParen, TokEOF)
	// An ordinary name followed by "(" stays a name; the parser sees the
	// call.
	assertTypes(t, "position()", TokNCName, TokLParen, TokRParen, TokEOF)
}

func TestLexURIQName(t *testing.T) {
	toks := lexAll(t, "Q{http://example.com/ns}local")
	if toks[0].Type != TokURIQName || toks[0].URI != "http://example.com/ns" || toks[0].Value != "local" {
		t.Fatalf("URIQName = %+v", toks[0])
	}
}

func TestLexStringEscapes(t *testing.T) {
	toks := lexAll(t, `'it''s'`)
	if toks[0].Type != TokString || toks[0].Value != "it's" {
		t.Fatalf("string = %+v", toks[0])
	}
	toks = lexAll(t, `"say ""hi"""`)
	if toks[0].Value != `say "hi"` {
		t.Fatalf("string = %+v", toks[0])
	}
}

func TestLexNumbers(t *testing.T) {
	toks := lexAll(t, "3.14")
	if toks[0].Type != TokNumber || toks[0].Num != 3.14 {
		t.Fatalf("number = %+v", toks[0])
	}
	toks = lexAll(t, ".5")
	if toks[0].Type != TokNumber || toks[0].Num != 0.5 {
		t.Fatalf("number = %+v", toks[0])
	}
	toks = lexAll(t, "1e3")
	if toks[0].Type != TokNumber || toks[0].Num != 1000 {
		t.Fatalf("number = %+v", toks[0])
	}
	// "." not followed by a digit is the context item.
	assertTypes(t, ".", TokDot, TokEOF)
	assertTypes(t, "..", TokDotDot, TokEOF)
}

func TestLexSymbols(t *testing.T) {
	assertTypes(t, "a//b", TokNCName, TokDoubleSlash, TokNCName, TokEOF)
	assertTypes(t, "$x := 1", TokDollar, TokNCName, TokAssign, TokNumber, TokEOF)
	assertTypes(t, "a != b", TokNCName, TokNeq, TokNCName, TokEOF)
	assertTypes(t, "a <= b", TokNCName, TokLe, TokNCName, TokEOF)
	assertTypes(t, "f#2", TokNCName, TokHash, TokNumber, TokEOF)
	assertTypes(t, "?name", TokQuestion, TokNCName, TokEOF)
}

func TestLexComments(t *testing.T) {
	assertTypes(t, "a (: ignore (: nested :) me :) + b",
		TokNCName, TokPlus, TokNCName, TokEOF)
}

func TestLexAdjacency(t *testing.T) {
	toks := lexAll(t, "a:b")
	if !toks[1].Adjacent || !toks[2].Adjacent {
		t.Fatalf("a:b should lex with adjacent colon and local: %+v", toks)
	}
	toks = lexAll(t, "a : b")
	if toks[1].Adjacent {
		t.Fatalf("spaced colon should not be adjacent: %+v", toks[1])
	}
}

func TestLexPeekAndSaveRestore(t *testing.T) {
	lx := newLexer("a + b")
	if lx.current().Type != TokNCName {
		t.Fatalf("current = %v", lx.current().Type)
	}
	if lx.peek().Type != TokPlus {
		t.Fatalf("peek = %v", lx.peek().Type)
	}
	if lx.current().Type != TokNCName {
		t.Fatalf("peek must not consume; current = %v", lx.current().Type)
	}
	save := lx.save()
	lx.advance()
	lx.advance()
	if lx.current().Type != TokNCName || lx.value() != "b" {
		t.Fatalf("after advances: %v %q", lx.current().Type, lx.value())
	}
	lx.restore(save)
	if lx.current().Type != TokNCName || lx.value() != "a" {
		t.Fatalf("after restore: %v %q", lx.current().Type, lx.value())
	}
}

func TestLexUnterminatedString(t *testing.T) {
	lx := newLexer("'oops")
	for lx.err == nil && lx.current().Type != TokEOF {
		lx.advance()
	}
	if lx.err == nil {
		t.Fatal("expected a lex error for an unterminated literal")
	}
}
