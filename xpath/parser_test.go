package xpath

import (
	"strings"
	"testing"
)

func compile(t *testing.T, src string) Node {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	if e.String() != src {
		t.Fatalf("Expr.String() = %q, want %q", e.String(), src)
	}
	return e.Root()
}

func TestCompileLiterals(t *testing.T) {
	n := compile(t, "'hello'")
	lit, ok := n.(*Literal)
	if !ok || lit.Kind != StringLiteral || lit.Str != "hello" {
		t.Fatalf("got %#v", n)
	}
	n = compile(t, "42")
	lit, ok = n.(*Literal)
	if !ok || lit.Kind != NumberLiteral || lit.Num != 42 {
		t.Fatalf("got %#v", n)
	}
}

func TestCompileContextItemAndVariable(t *testing.T) {
	if _, ok := compile(t, ".").(*ContextItem); !ok {
		t.Fatal("'.' should compile to ContextItem")
	}
	v, ok := compile(t, "$ns:var").(*VariableRef)
	if !ok || v.Prefix != "ns" || v.Local != "var" {
		t.Fatalf("got %#v", v)
	}
	// Keywords are legal variable names.
	v, ok = compile(t, "$in").(*VariableRef)
	if !ok || v.Local != "in" {
		t.Fatalf("got %#v", v)
	}
}

// Scenario: nested function calls build nested FunctionCall nodes.
func TestCompileFunctionNesting(t *testing.T) {
	n := compile(t, "contains(string(number(.)), 'foo')")
	outer, ok := n.(*FunctionCall)
	if !ok || outer.Local != "contains" || len(outer.Args) != 2 {
		t.Fatalf("outer = %#v", n)
	}
	str, ok := outer.Args[0].(*FunctionCall)
	if !ok || str.Local != "string" || len(str.Args) != 1 {
		t.Fatalf("arg0 = %#v", outer.Args[0])
	}
	num, ok := str.Args[0].(*FunctionCall)
	if !ok || num.Local != "number" || len(num.Args) != 1 {
		t.Fatalf("inner = %#v", str.Args[0])
	}
	if _, ok := num.Args[0].(*ContextItem); !ok {
		t.Fatalf("innermost arg = %#v", num.Args[0])
	}
	lit, ok := outer.Args[1].(*Literal)
	if !ok || lit.Str != "foo" {
		t.Fatalf("arg1 = %#v", outer.Args[1])
	}
}

// Scenario: 1 + 2 * 3 = 7 must group as (=, (+ 1 (* 2 3)), 7).
func TestCompilePrattPrecedence(t *testing.T) {
	n := compile(t, "1 + 2 * 3 = 7")
	eq, ok := n.(*Binary)
	if !ok || eq.Op != OpEq {
		t.Fatalf("root = %#v", n)
	}
	add, ok := eq.Left.(*Binary)
	if !ok || add.Op != OpAdd {
		t.Fatalf("left = %#v", eq.Left)
	}
	mul, ok := add.Right.(*Binary)
	if !ok || mul.Op != OpMultiply {
		t.Fatalf("add right = %#v", add.Right)
	}
	if l := mul.Left.(*Literal); l.Num != 2 {
		t.Fatalf("mul left = %#v", mul.Left)
	}
	if r := eq.Right.(*Literal); r.Num != 7 {
		t.Fatalf("eq right = %#v", eq.Right)
	}
}

func TestCompileLeftAssociativity(t *testing.T) {
	n := compile(t, "1 - 2 - 3")
	outer := n.(*Binary)
	inner, ok := outer.Left.(*Binary)
	if !ok || inner.Op != OpSubtract {
		t.Fatalf("1-2-3 should group (1-2)-3, got %#v", n)
	}
}

// Scenario: stacked predicates wrap the step in a FilterExpr inside the
// location path.
func TestCompilePredicateStacking(t *testing.T) {
	n := compile(t, "/a/b[@id='x'][position()=1]/c")
	lp, ok := n.(*LocationPath)
	if !ok || !lp.Absolute || len(lp.Steps) != 3 {
		t.Fatalf("path = %#v", n)
	}
	if s := lp.Steps[0].(*Step); s.Axis != AxisChild || s.Test.Local != "a" {
		t.Fatalf("step0 = %#v", lp.Steps[0])
	}
	fe, ok := lp.Steps[1].(*FilterExpr)
	if !ok || len(fe.Predicates) != 2 {
		t.Fatalf("step1 = %#v", lp.Steps[1])
	}
	if s := fe.Base.(*Step); s.Test.Local != "b" {
		t.Fatalf("filter base = %#v", fe.Base)
	}
	p0 := fe.Predicates[0].(*Binary)
	attr := p0.Left.(*LocationPath).Steps[0].(*Step)
	if attr.Axis != AxisAttribute || attr.Test.Local != "id" {
		t.Fatalf("predicate 0 lhs = %#v", p0.Left)
	}
	if s := lp.Steps[2].(*Step); s.Test.Local != "c" {
		t.Fatalf("step2 = %#v", lp.Steps[2])
	}
}

func TestCompileDoubleSlash(t *testing.T) {
	n := compile(t, "//item")
	lp := n.(*LocationPath)
	if !lp.Absolute || len(lp.Steps) != 2 {
		t.Fatalf("//item = %#v", n)
	}
	dos := lp.Steps[0].(*Step)
	if dos.Axis != AxisDescendantOrSelf || dos.Test.Kind != TestAnyKind {
		t.Fatalf("expansion step = %#v", dos)
	}
}

func TestCompileRootOnly(t *testing.T) {
	lp := compile(t, "/").(*LocationPath)
	if !lp.Absolute || len(lp.Steps) != 0 {
		t.Fatalf("/ = %#v", lp)
	}
}

func TestCompileAbbreviations(t *testing.T) {
	lp := compile(t, "../@href").(*LocationPath)
	if len(lp.Steps) != 2 {
		t.Fatalf("path = %#v", lp)
	}
	if s := lp.Steps[0].(*Step); s.Axis != AxisParent || s.Test.Kind != TestAnyKind {
		t.Fatalf("step0 = %#v", lp.Steps[0])
	}
	if s := lp.Steps[1].(*Step); s.Axis != AxisAttribute || s.Test.Local != "href" {
		t.Fatalf("step1 = %#v", lp.Steps[1])
	}
}

func TestCompilePathFromFilter(t *testing.T) {
	n := compile(t, "$doc/child::a")
	pe, ok := n.(*PathExpr)
	if !ok {
		t.Fatalf("got %#v", n)
	}
	if _, ok := pe.Filter.(*VariableRef); !ok {
		t.Fatalf("filter = %#v", pe.Filter)
	}
	if len(pe.Path.Steps) != 1 {
		t.Fatalf("steps = %#v", pe.Path.Steps)
	}
}

func TestCompileUnionIntersect(t *testing.T) {
	n := compile(t, "a | b intersect c")
	u := n.(*Binary)
	if u.Op != OpUnion {
		t.Fatalf("root op = %v", u.Op)
	}
	i := u.Right.(*Binary)
	if i.Op != OpIntersect {
		t.Fatalf("right op = %v", i.Op)
	}
}

func TestCompileUnaryMinus(t *testing.T) {
	n := compile(t, "--2 + 1")
	add := n.(*Binary)
	un, ok := add.Left.(*Unary)
	if !ok || un.Negations != 2 {
		t.Fatalf("left = %#v", add.Left)
	}
}

func TestCompileSequence(t *testing.T) {
	n := compile(t, "(1, 2, 3)")
	seq, ok := n.(*Sequence)
	if !ok || len(seq.Items) != 3 {
		t.Fatalf("got %#v", n)
	}
	n = compile(t, "1, 2")
	seq, ok = n.(*Sequence)
	if !ok || len(seq.Items) != 2 {
		t.Fatalf("top-level comma = %#v", n)
	}
	if seq, ok := compile(t, "()").(*Sequence); !ok || len(seq.Items) != 0 {
		t.Fatal("() should be the empty sequence")
	}
}

func TestCompileIf(t *testing.T) {
	n := compile(t, "if ($x > 1) then 'big' else 'small'")
	ife, ok := n.(*If)
	if !ok {
		t.Fatalf("got %#v", n)
	}
	if _, ok := ife.Cond.(*Binary); !ok {
		t.Fatalf("cond = %#v", ife.Cond)
	}
	if lit := ife.Then.(*Literal); lit.Str != "big" {
		t.Fatalf("then = %#v", ife.Then)
	}
	if lit := ife.Else.(*Literal); lit.Str != "small" {
		t.Fatalf("else = %#v", ife.Else)
	}
}

func TestCompileForLetQuantified(t *testing.T) {
	n := compile(t, "for $i in 1 to 3, $j in $i return $i * $j")
	fe, ok := n.(*For)
	if !ok || len(fe.Bindings) != 2 {
		t.Fatalf("got %#v", n)
	}
	if fe.Bindings[0].Local != "i" || fe.Bindings[1].Local != "j" {
		t.Fatalf("bindings = %#v", fe.Bindings)
	}
	if _, ok := fe.Bindings[0].Expr.(*Binary); !ok {
		t.Fatalf("binding 0 expr = %#v", fe.Bindings[0].Expr)
	}

	le, ok := compile(t, "let $x := 2 return $x + 1").(*Let)
	if !ok || len(le.Bindings) != 1 || le.Bindings[0].Local != "x" {
		t.Fatalf("let = %#v", le)
	}

	q, ok := compile(t, "every $x in (1, 2) satisfies $x > 0").(*Quantified)
	if !ok || !q.Every || len(q.Bindings) != 1 {
		t.Fatalf("every = %#v", q)
	}
	if q := compile(t, "some $x in a satisfies $x").(*Quantified); q.Every {
		t.Fatal("some parsed as every")
	}
}

func TestCompileMapAndArrayConstructors(t *testing.T) {
	n := compile(t, "map { 'a' : 1, 'b' : 2 }")
	mc, ok := n.(*MapConstructor)
	if !ok || len(mc.Pairs) != 2 {
		t.Fatalf("got %#v", n)
	}
	if k := mc.Pairs[0].Key.(*Literal); k.Str != "a" {
		t.Fatalf("key 0 = %#v", mc.Pairs[0].Key)
	}

	a, ok := compile(t, "[1, 2, 3]").(*ArrayConstructor)
	if !ok || a.Curly || len(a.Members) != 3 {
		t.Fatalf("square array = %#v", a)
	}
	a, ok = compile(t, "array { 1, 2 }").(*ArrayConstructor)
	if !ok || !a.Curly || len(a.Members) != 2 {
		t.Fatalf("curly array = %#v", a)
	}
	if a := compile(t, "[]").(*ArrayConstructor); len(a.Members) != 0 {
		t.Fatal("[] should be empty")
	}
}

func TestCompileLookup(t *testing.T) {
	n := compile(t, "$m?key")
	lk, ok := n.(*Lookup)
	if !ok || lk.Key != "key" {
		t.Fatalf("got %#v", n)
	}
	if _, ok := lk.Base.(*VariableRef); !ok {
		t.Fatalf("base = %#v", lk.Base)
	}
	if lk := compile(t, "$a?*").(*Lookup); !lk.Wildcard {
		t.Fatal("?* should be a wildcard lookup")
	}
	if lk := compile(t, "$a?1").(*Lookup); lk.KeyExpr == nil {
		t.Fatal("?1 should carry a numeric key")
	}
	// Unary lookup has no base.
	if lk := compile(t, "?name").(*Lookup); lk.Base != nil || lk.Key != "name" {
		t.Fatalf("unary lookup = %#v", lk)
	}
}

func TestCompilePlaceholderVsLookup(t *testing.T) {
	// A bare "?" in an argument list is the placeholder.
	call := compile(t, "f(?, 2)").(*FunctionCall)
	if _, ok := call.Args[0].(*ArgumentPlaceholder); !ok {
		t.Fatalf("arg0 = %#v", call.Args[0])
	}
	// "?name" in the same position is a lookup on the context item.
	call = compile(t, "f(?name)").(*FunctionCall)
	if lk, ok := call.Args[0].(*Lookup); !ok || lk.Key != "name" {
		t.Fatalf("arg0 = %#v", call.Args[0])
	}
}

func TestCompileNamedFunctionRefAndDynamicCall(t *testing.T) {
	ref, ok := compile(t, "fn:concat#3").(*NamedFunctionRef)
	if !ok || ref.Prefix != "fn" || ref.Local != "concat" || ref.Arity != 3 {
		t.Fatalf("got %#v", ref)
	}
	dc, ok := compile(t, "$f(1, 2)").(*DynamicCall)
	if !ok || len(dc.Args) != 2 {
		t.Fatalf("got %#v", dc)
	}
	dc, ok = compile(t, "f#1(2)").(*DynamicCall)
	if !ok {
		t.Fatalf("got %#v", dc)
	}
	if _, ok := dc.Base.(*NamedFunctionRef); !ok {
		t.Fatalf("base = %#v", dc.Base)
	}
}

func TestCompileInlineFunction(t *testing.T) {
	n := compile(t, "function($a as xs:integer, $b) as xs:integer { $a + $b }")
	fn, ok := n.(*InlineFunction)
	if !ok || len(fn.Params) != 2 {
		t.Fatalf("got %#v", n)
	}
	if fn.Params[0].Name != "a" || fn.Params[0].Type == nil || fn.Params[1].Type != nil {
		t.Fatalf("params = %#v", fn.Params)
	}
	if fn.Returns == nil || fn.Returns.Local != "integer" {
		t.Fatalf("returns = %#v", fn.Returns)
	}
	if _, ok := fn.Body.(*Binary); !ok {
		t.Fatalf("body = %#v", fn.Body)
	}
}

func TestCompileTypeExpressions(t *testing.T) {
	n := compile(t, "$x instance of xs:integer+")
	te, ok := n.(*TypeExpr)
	if !ok || te.Kind != InstanceOf {
		t.Fatalf("got %#v", n)
	}
	if te.Type.Local != "integer" || te.Type.Occurrence != '+' {
		t.Fatalf("type = %#v", te.Type)
	}
	te = compile(t, "'1' cast as xs:integer").(*TypeExpr)
	if te.Kind != CastAs {
		t.Fatalf("kind = %v", te.Kind)
	}
	te = compile(t, "$x treat as element(row)").(*TypeExpr)
	if te.Kind != TreatAs || te.Type.Kind != ItemElement || te.Type.Local != "row" {
		t.Fatalf("treat = %#v", te.Type)
	}
	// instance of binds tighter than multiplication, so only the right
	// factor is wrapped.
	mul := compile(t, "2 * 3 instance of xs:integer").(*Binary)
	if mul.Op != OpMultiply {
		t.Fatalf("root op = %v", mul.Op)
	}
	if te, ok := mul.Right.(*TypeExpr); !ok || te.Kind != InstanceOf {
		t.Fatalf("right = %#v", mul.Right)
	}
}

func TestCompileKeywordsAsNames(t *testing.T) {
	// Keywords remain usable as element names and variable names.
	lp := compile(t, "child::for").(*LocationPath)
	if s := lp.Steps[0].(*Step); s.Test.Local != "for" {
		t.Fatalf("step = %#v", lp.Steps[0])
	}
	lp = compile(t, "if/then/else").(*LocationPath)
	if len(lp.Steps) != 3 {
		t.Fatalf("if/then/else path = %#v", lp)
	}
}

func TestCompileURIQualifiedNames(t *testing.T) {
	lp := compile(t, "Q{http://ex.com}item").(*LocationPath)
	s := lp.Steps[0].(*Step)
	if s.Test.URI != "http://ex.com" || s.Test.Local != "item" {
		t.Fatalf("step = %#v", s)
	}
}

// The parser's working set is heap context frames, one per nesting
// level; deeply nested input must not consume native call stack.
func TestCompileDeepNesting(t *testing.T) {
	const depth = 20000
	expr := strings.Repeat("(", depth) + "1" + strings.Repeat(")", depth)
	// Each paren layer collapses to its operand, so the result is the
	// bare literal.
	n := compile(t, expr)
	if lit, ok := n.(*Literal); !ok || lit.Num != 1 {
		t.Fatalf("deep nesting result = %#v", n)
	}

	var sb strings.Builder
	sb.WriteString("a")
	for i := 0; i < depth; i++ {
		sb.WriteString("/a")
	}
	lp := compile(t, sb.String()).(*LocationPath)
	if len(lp.Steps) != depth+1 {
		t.Fatalf("deep path steps = %d", len(lp.Steps))
	}
}

func TestCompileSyntaxErrors(t *testing.T) {
	cases := []string{
		"",
		"1 +",
		"a[",
		"f(1,",
		"if (a) then b",
		"let $x = 1 return $x",
		"a/",
		"'unterminated",
		"map { 'a' }",
		")",
	}
	for _, src := range cases {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) should fail", src)
		} else if _, ok := err.(*SyntaxError); !ok {
			t.Errorf("Compile(%q) error type = %T", src, err)
		}
	}
}

type mapResolver struct {
	bindings   map[string]string
	defaultURI string
}

func (r *mapResolver) Resolve(prefix string) (string, bool) {
	uri, ok := r.bindings[prefix]
	return uri, ok
}

func (r *mapResolver) DefaultElementNamespace() (string, bool) {
	return r.defaultURI, r.defaultURI != ""
}

func TestCompileWithResolver(t *testing.T) {
	res := &mapResolver{bindings: map[string]string{"g": "http://g.example"}}
	e, err := CompileWithResolver("g:item", res)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s := e.Root().(*LocationPath).Steps[0].(*Step)
	if s.Test.URI != "http://g.example" {
		t.Fatalf("resolved URI = %q", s.Test.URI)
	}

	_, err = CompileWithResolver("bad:item", res)
	se, ok := err.(*StaticError)
	if !ok || se.Code != "XPST0081" {
		t.Fatalf("undeclared prefix error = %#v", err)
	}

	// Without a resolver the prefix is retained for late binding.
	e, err = Compile("bad:item")
	if err != nil {
		t.Fatalf("compile without resolver: %v", err)
	}
	s = e.Root().(*LocationPath).Steps[0].(*Step)
	if s.Test.Prefix != "bad" || s.Test.URI != "" {
		t.Fatalf("retained prefix = %#v", s.Test)
	}
}

func TestCompileDefaultElementNamespace(t *testing.T) {
	res := &mapResolver{bindings: map[string]string{}, defaultURI: "http://d.example"}
	e, err := CompileWithResolver("item/@attr", res)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	lp := e.Root().(*LocationPath)
	if s := lp.Steps[0].(*Step); s.Test.URI != "http://d.example" {
		t.Fatalf("element test URI = %q", s.Test.URI)
	}
	// Attributes never adopt the default element namespace.
	if s := lp.Steps[1].(*Step); s.Test.URI != "" {
		t.Fatalf("attribute test URI = %q", s.Test.URI)
	}
}

func TestCompileSimpleMapOperator(t *testing.T) {
	n := compile(t, "a ! string(.)")
	b, ok := n.(*Binary)
	if !ok || b.Op != OpSimpleMap {
		t.Fatalf("got %#v", n)
	}
}

func TestMustCompilePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustCompile should panic on a bad expression")
		}
	}()
	MustCompile("1 +")
}
