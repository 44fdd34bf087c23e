package xpath

import "testing"

// Round-trip property: pretty-printing an AST yields an expression the
// parser accepts, and whose AST prints identically again (the canonical
// form is a fixed point).
func TestPrettyPrintRoundTrip(t *testing.T) {
	exprs := []string{
		"1 + 2 * 3 = 7",
		"/a/b[@id='x'][position()=1]/c",
		"contains(string(number(.)), 'foo')",
		"//item[price > 10]/name",
		"$doc/child::a/descendant-or-self::node()",
		"if ($x > 1) then 'big' else 'small'",
		"for $i in 1 to 3 return $i * $i",
		"let $x := 2 return $x + 1",
		"some $x in (1, 2) satisfies $x > 0",
		"map { 'a' : 1, 'b' : 2 }",
		"[1, 2, 3]",
		"array { 1, 2 }",
		"$m?key?*",
		"fn:concat#3",
		"function($a as xs:integer) as xs:integer { $a + 1 }",
		"$x instance of xs:integer+",
		"'1' cast as xs:integer",
		"a | b intersect c",
		"-(2 + 3)",
		"a ! string(.)",
		"(1, 2, 3)",
		"Q{http://ex.com}item/text()",
		"processing-instruction('style')",
		"..",
		"/",
	}
	for _, src := range exprs {
		first, err := Compile(src)
		if err != nil {
			t.Errorf("Compile(%q): %v", src, err)
			continue
		}
		printed := PrettyPrint(first.Root())
		second, err := Compile(printed)
		if err != nil {
			t.Errorf("Compile(PrettyPrint(%q)) = Compile(%q): %v", src, printed, err)
			continue
		}
		again := PrettyPrint(second.Root())
		if printed != again {
			t.Errorf("printing %q is not a fixed point:\n  first:  %s\n  second: %s", src, printed, again)
		}
	}
}

func TestPrettyPrintScenarios(t *testing.T) {
	e := MustCompile("/a/b")
	got := PrettyPrint(e.Root())
	want := "/child::a/child::b"
	if got != want {
		t.Errorf("PrettyPrint(/a/b) = %q, want %q", got, want)
	}
	e = MustCompile("@href")
	if got := PrettyPrint(e.Root()); got != "attribute::href" {
		t.Errorf("PrettyPrint(@href) = %q", got)
	}
	e = MustCompile("1+2")
	if got := PrettyPrint(e.Root()); got != "(1 + 2)" {
		t.Errorf("PrettyPrint(1+2) = %q", got)
	}
}
