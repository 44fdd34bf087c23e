package xpath

import (
	"fmt"
	"math"
)

// NamespaceResolver supplies prefix bindings at compile time. When a
// prefix cannot be resolved and no resolver is configured, the AST
// retains the prefix for late binding; with a resolver configured,
// an unresolvable prefix is a StaticError (XPST0081).
type NamespaceResolver interface {
	Resolve(prefix string) (uri string, ok bool)
	DefaultElementNamespace() (uri string, ok bool)
}

// Expr is a compiled XPath expression: the opaque AST root plus the
// original source string. It is immutable and safe to share across
// goroutines.
type Expr struct {
	root Node
	src  string
}

// Root returns the AST root.
func (e *Expr) Root() Node { return e.root }

// String returns the original expression source.
func (e *Expr) String() string { return e.src }

// Compile parses expression into an Expr. The error, when non-nil, is a
// *SyntaxError or *StaticError; no partial AST is returned.
func Compile(expression string) (*Expr, error) {
	return CompileWithResolver(expression, nil)
}

// CompileWithResolver is Compile with prefix resolution against resolver.
func CompileWithResolver(expression string, resolver NamespaceResolver) (*Expr, error) {
	p := &parser{lx: newLexer(expression), src: expression, resolver: resolver}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Expr{root: root, src: expression}, nil
}

// MustCompile is Compile that panics on error, for expressions known
// valid at build time.
func MustCompile(expression string) *Expr {
	e, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return e
}

// --- precedence -----------------------------------------------------------

// Binary operator precedence, lowest to highest. The sequence comma is
// handled by the context stack, and the sequence-type operators sit at
// typePrec with their own postfix handling.
func opPrec(op BinaryOp) int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe,
		OpValEq, OpValNe, OpValLt, OpValLe, OpValGt, OpValGe, OpIs:
		return 3
	case OpTo:
		return 4
	case OpAdd, OpSubtract:
		return 5
	case OpMultiply, OpDiv, OpIDiv, OpMod:
		return 6
	case OpUnion:
		return 7
	case OpIntersect, OpExcept:
		return 8
	case OpSimpleMap:
		return 10
	default:
		return 0
	}
}

const typePrec = 9

// binaryOpFor maps an operator token to its BinaryOp; ok is false for
// non-operator tokens.
func binaryOpFor(t TokenType) (BinaryOp, bool) {
	switch t {
	case TokOr:
		return OpOr, true
	case TokAnd:
		return OpAnd, true
	case TokEq:
		return OpEq, true
	case TokNeq:
		return OpNe, true
	case TokLt:
		return OpLt, true
	case TokLe:
		return OpLe, true
	case TokGt:
		return OpGt, true
	case TokGe:
		return OpGe, true
	case TokValEq:
		return OpValEq, true
	case TokValNe:
		return OpValNe, true
	case TokValLt:
		return OpValLt, true
	case TokValLe:
		return OpValLe, true
	case TokValGt:
		return OpValGt, true
	case TokValGe:
		return OpValGe, true
	case TokIs:
		return OpIs, true
	case TokTo:
		return OpTo, true
	case TokPlus:
		return OpAdd, true
	case TokMinus:
		return OpSubtract, true
	case TokMultiply:
		return OpMultiply, true
	case TokDiv:
		return OpDiv, true
	case TokIDiv:
		return OpIDiv, true
	case TokMod:
		return OpMod, true
	case TokPipe, TokUnion:
		return OpUnion, true
	case TokIntersect:
		return OpIntersect, true
	case TokExcept:
		return OpExcept, true
	case TokBang:
		return OpSimpleMap, true
	default:
		return 0, false
	}
}

// --- the context stack ----------------------------------------------------

type ctxKind int

const (
	ctxTop ctxKind = iota
	ctxArg        // one function-call (or dynamic-call) argument list
	ctxPredicate  // [ ... ]
	ctxParen      // ( ... ), upgraded to a sequence on ','
	ctxSquare     // [a, b] array constructor
	ctxCurlyArray // array { ... }
	ctxMap        // map { k : v, ... }
	ctxFnBody     // inline function body { ... }
	ctxIf         // if (cond) then ... else ...
	ctxBind       // for / let / some / every
)

type pState int

const (
	stNeedOperand pState = iota
	stPathCont
	stHaveOperand
)

type opEntry struct {
	op   BinaryOp
	prec int
}

// qname is a lexical name with an optionally resolved URI.
type qname struct {
	prefix string
	local  string
	uri    string
}

// parseContext is one frame of the explicit parse-context stack. Each
// frame owns its private operand and operator stacks for Pratt reduction
// plus scratch accumulators for the construct being assembled; one frame
// is heap-allocated per nesting level in place of a native call frame.
type parseContext struct {
	kind  ctxKind
	state pState

	operands  []Node
	ops       []opEntry
	negations int

	// The operand currently under construction: a postfix base, its
	// pending predicates, and the path being assembled around it.
	base       Node
	preds      []Node
	inPath     bool
	pathAbs    bool
	pathFilter Node // primary that a relative path continues from
	steps      []Node

	items []Node // sequence items, array members, function arguments
	seq   bool   // a comma upgraded this frame to a sequence

	fn      qname // function-call name for ctxArg
	fnPos   int
	dynBase Node // non-nil: ctxArg builds a DynamicCall on this base

	phase  int // ctxIf: 0 cond, 1 then, 2 else; ctxMap: 0 key, 1 value; ctxBind: 0 value, 1 body
	ifCond Node
	ifThen Node

	bindTok    TokenType // TokFor, TokLet, TokSome, TokEvery
	bindings   []Binding
	pendingVar qname

	pairs      []MapPair
	pendingKey Node

	params  []Param
	returns *SequenceType
}

type parser struct {
	lx       *lexer
	src      string
	resolver NamespaceResolver
	stack    []*parseContext
}

func (p *parser) push(c *parseContext) { p.stack = append(p.stack, c) }

func (p *parser) pop() *parseContext {
	c := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return c
}

func (p *parser) top() *parseContext { return p.stack[len(p.stack)-1] }

func (p *parser) syntaxErrorf(pos int, format string, args ...any) error {
	return &SyntaxError{Code: "XPST0003", Expr: p.src, Offset: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) staticErrorf(code string, pos int, format string, args ...any) error {
	return &StaticError{Code: code, Expr: p.src, Offset: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected() error {
	tok := p.lx.current()
	return p.syntaxErrorf(tok.Pos, "unexpected %q", tok.Type.String())
}

// expect consumes a token of type t or fails. A keyword follower ("of",
// "as", "in", ...) that arrives as a plain NCName — the lexer only
// keyword-converts in operator context — is accepted by spelling.
func (p *parser) expect(t TokenType) error {
	tok := p.lx.current()
	if tok.Type != t {
		if !(tok.Type == TokNCName && keywordType(tok.Value) == t) {
			return p.syntaxErrorf(tok.Pos, "expected %q, found %q", t.String(), tok.Type.String())
		}
	}
	p.lx.advance()
	return p.lexErr()
}

func (p *parser) lexErr() error {
	if p.lx.err != nil {
		e := p.lx.err
		e.Expr = p.src
		return e
	}
	return nil
}

// parse runs the main loop: dispatch on the top frame's state until the
// top-level context completes. The grammar's nesting lives entirely in
// p.stack; no step of the loop re-enters parse.
func (p *parser) parse() (Node, error) {
	p.push(&parseContext{kind: ctxTop, state: stNeedOperand})
	for {
		if err := p.lexErr(); err != nil {
			return nil, err
		}
		f := p.top()
		switch f.state {
		case stNeedOperand:
			if err := p.stepNeedOperand(f); err != nil {
				return nil, err
			}
		case stPathCont:
			if err := p.stepPathCont(f); err != nil {
				return nil, err
			}
		case stHaveOperand:
			result, done, err := p.stepHaveOperand(f)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
		}
	}
}

// --- NEED_OPERAND ----------------------------------------------------------

// startsOperand reports whether t can begin an operand, used to decide
// whether a lone "/" is the root expression or continues into a step.
func startsOperand(t TokenType) bool {
	switch t {
	case TokString, TokNumber, TokNCName, TokURIQName, TokStar, TokDot, TokDotDot,
		TokAt, TokDollar, TokLParen, TokLBracket, TokQuestion, TokMinus, TokPlus,
		TokNodeTest, TokTextTest, TokCommentTest, TokPITest,
		TokElementTest, TokAttributeTest, TokDocumentTest, TokNamespaceNodeTest,
		TokSchemaElementTest, TokSchemaAttributeTest, TokFunctionTest,
		TokMapTest, TokArrayTest, TokItemTest:
		return true
	}
	return t >= TokAxisChild && t <= TokAxisAncestorOrSelf
}

func descendantOrSelfStep() *Step {
	return &Step{Axis: AxisDescendantOrSelf, Test: NodeTest{Kind: TestAnyKind}}
}

func (p *parser) stepNeedOperand(f *parseContext) error {
	// Leading unary signs; '+' is the identity.
	for {
		switch p.lx.current().Type {
		case TokMinus:
			f.negations++
			p.lx.advance()
			continue
		case TokPlus:
			p.lx.advance()
			continue
		}
		break
	}
	if err := p.lexErr(); err != nil {
		return err
	}
	tok := p.lx.current()

	switch tok.Type {
	case TokSlash, TokDoubleSlash:
		if f.inPath || f.pathAbs || f.pathFilter != nil {
			return p.syntaxErrorf(tok.Pos, "expected a step after %q", tok.Type.String())
		}
		f.pathAbs = true
		f.inPath = true
		p.lx.advance()
		if tok.Type == TokDoubleSlash {
			f.steps = append(f.steps, descendantOrSelfStep())
			return nil
		}
		if !startsOperand(p.lx.current().Type) {
			// "/" alone selects the root.
			f.base = nil
			f.state = stPathCont
		}
		return nil

	case TokNumber:
		f.base = &Literal{Kind: NumberLiteral, Num: tok.Num, Str: tok.Value}
		p.lx.advance()
		f.state = stPathCont
		return nil

	case TokString:
		f.base = &Literal{Kind: StringLiteral, Str: tok.Value}
		p.lx.advance()
		f.state = stPathCont
		return nil

	case TokDot:
		f.base = &ContextItem{}
		p.lx.advance()
		f.state = stPathCont
		return nil

	case TokDotDot:
		f.base = &Step{Axis: AxisParent, Test: NodeTest{Kind: TestAnyKind}}
		f.inPath = true
		p.lx.advance()
		f.state = stPathCont
		return nil

	case TokDollar:
		p.lx.advance()
		qn, err := p.parseQName(true)
		if err != nil {
			return err
		}
		f.base = &VariableRef{Prefix: qn.prefix, Local: qn.local, URI: qn.uri}
		f.state = stPathCont
		return nil

	case TokLParen:
		p.lx.advance()
		if p.lx.current().Type == TokRParen {
			p.lx.advance()
			f.base = &Sequence{}
			f.state = stPathCont
			return nil
		}
		p.push(&parseContext{kind: ctxParen, state: stNeedOperand})
		return nil

	case TokLBracket:
		p.lx.advance()
		if p.lx.current().Type == TokRBracket {
			p.lx.advance()
			f.base = &ArrayConstructor{}
			f.state = stPathCont
			return nil
		}
		p.push(&parseContext{kind: ctxSquare, state: stNeedOperand})
		return nil

	case TokQuestion:
		// Unary lookup vs argument placeholder, decided by single-token
		// look-ahead: a digit, '*' or a name means lookup.
		p.lx.advance()
		next := p.lx.current()
		if next.Type == TokNumber || next.Type == TokStar || next.Type.IsNameLike() {
			lk, err := p.parseLookupKey(nil)
			if err != nil {
				return err
			}
			f.base = lk
		} else {
			f.base = &ArgumentPlaceholder{}
		}
		f.state = stPathCont
		return nil

	case TokAt:
		p.lx.advance()
		return p.parseStepTest(f, AxisAttribute)

	case TokStar:
		f.base = &Step{Axis: AxisChild, Test: NodeTest{Kind: TestAnyName}}
		f.inPath = true
		p.lx.advance()
		f.state = stPathCont
		return nil

	case TokNodeTest, TokTextTest, TokCommentTest, TokPITest,
		TokElementTest, TokAttributeTest, TokDocumentTest, TokNamespaceNodeTest,
		TokSchemaElementTest, TokSchemaAttributeTest:
		return p.parseStepTestAt(f, AxisChild, tok)

	case TokFunctionTest:
		return p.parseInlineFunction(f)

	case TokURIQName:
		return p.parseNameOperand(f, AxisChild)

	case TokNCName:
		// Keyword-introduced expressions lex as plain names in operand
		// position; single-token look-ahead picks them out.
		next := p.lx.peek()
		switch tok.Value {
		case "if":
			if next.Type == TokLParen {
				p.lx.advance()
				p.lx.advance()
				p.push(&parseContext{kind: ctxIf, state: stNeedOperand})
				return nil
			}
		case "for", "let", "some", "every":
			if next.Type == TokDollar {
				return p.beginBindingExpr(f, tok.Value)
			}
		case "map":
			if next.Type == TokLBrace {
				p.lx.advance()
				p.lx.advance()
				if p.lx.current().Type == TokRBrace {
					p.lx.advance()
					f.base = &MapConstructor{}
					f.state = stPathCont
					return nil
				}
				p.push(&parseContext{kind: ctxMap, state: stNeedOperand})
				return nil
			}
		case "array":
			if next.Type == TokLBrace {
				p.lx.advance()
				p.lx.advance()
				if p.lx.current().Type == TokRBrace {
					p.lx.advance()
					f.base = &ArrayConstructor{Curly: true}
					f.state = stPathCont
					return nil
				}
				p.push(&parseContext{kind: ctxCurlyArray, state: stNeedOperand})
				return nil
			}
		}
		return p.parseNameOperand(f, AxisChild)

	default:
		if tok.Type >= TokAxisChild && tok.Type <= TokAxisAncestorOrSelf {
			axis := Axis(int(tok.Type - TokAxisChild))
			p.lx.advance()
			return p.parseStepTest(f, axis)
		}
		return p.unexpected()
	}
}

// parseNameOperand handles an operand beginning with a name: a name-test
// step, a function call, or a named function reference. Speculative
// look-past with lexer save/restore disambiguates prefix:name( from
// prefix:* and prefix:name.
func (p *parser) parseNameOperand(f *parseContext, axis Axis) error {
	tok := p.lx.current()
	var qn qname
	if tok.Type == TokURIQName {
		qn = qname{local: tok.Value, uri: tok.URI}
		p.lx.advance()
	} else {
		name := tok.Value
		qn = qname{local: name}
		p.lx.advance()
		if p.lx.current().Type == TokColon && p.lx.current().Adjacent {
			save := p.lx.save()
			p.lx.advance()
			local := p.lx.current()
			switch {
			case local.Type == TokStar && local.Adjacent:
				// prefix:* namespace wildcard.
				p.lx.advance()
				uri, err := p.resolvePrefix(name, tok.Pos)
				if err != nil {
					return err
				}
				f.base = &Step{Axis: axis, Test: NodeTest{Kind: TestPrefixAny, Prefix: name, URI: uri}}
				f.inPath = true
				f.state = stPathCont
				return nil
			case local.Type == TokNCName && local.Adjacent:
				qn = qname{prefix: name, local: local.Value}
				p.lx.advance()
			case local.Adjacent && local.Type >= TokNodeTest && local.Type <= TokEmptySequenceTest:
				// prefix:name( — the local name collided with a reserved
				// spelling, which is only reserved unprefixed: this is a
				// function call whose '(' the lexer already consumed.
				p.lx.advance()
				uri, err := p.resolvePrefix(name, tok.Pos)
				if err != nil {
					return err
				}
				return p.beginFunctionCall(qname{prefix: name, local: local.Value, uri: uri}, tok.Pos)
			default:
				p.lx.restore(save)
			}
		}
	}

	cur := p.lx.current()
	switch cur.Type {
	case TokLParen:
		p.lx.advance()
		uri := qn.uri
		if qn.prefix != "" {
			var err error
			uri, err = p.resolvePrefix(qn.prefix, tok.Pos)
			if err != nil {
				return err
			}
		}
		qn.uri = uri
		return p.beginFunctionCall(qn, tok.Pos)

	case TokHash:
		p.lx.advance()
		num := p.lx.current()
		if num.Type != TokNumber || num.Num != math.Trunc(num.Num) {
			return p.syntaxErrorf(num.Pos, "expected an integer arity after #")
		}
		p.lx.advance()
		uri := qn.uri
		if qn.prefix != "" {
			var err error
			uri, err = p.resolvePrefix(qn.prefix, tok.Pos)
			if err != nil {
				return err
			}
		}
		f.base = &NamedFunctionRef{Prefix: qn.prefix, Local: qn.local, URI: uri, Arity: int(num.Num)}
		f.state = stPathCont
		return nil

	default:
		test := NodeTest{Kind: TestName, Prefix: qn.prefix, Local: qn.local, URI: qn.uri}
		if qn.prefix != "" && qn.uri == "" {
			uri, err := p.resolvePrefix(qn.prefix, tok.Pos)
			if err != nil {
				return err
			}
			test.URI = uri
		}
		if qn.prefix == "" && qn.uri == "" && axis != AxisAttribute && axis != AxisNamespace && p.resolver != nil {
			// Unprefixed element name tests adopt the configured default
			// element namespace; attributes never do.
			if uri, ok := p.resolver.DefaultElementNamespace(); ok {
				test.URI = uri
			}
		}
		f.base = &Step{Axis: axis, Test: test}
		f.inPath = true
		f.state = stPathCont
		return nil
	}
}

func (p *parser) resolvePrefix(prefix string, pos int) (string, error) {
	if prefix == "" || p.resolver == nil {
		return "", nil
	}
	uri, ok := p.resolver.Resolve(prefix)
	if !ok {
		return "", p.staticErrorf("XPST0081", pos, "undeclared namespace prefix %q", prefix)
	}
	return uri, nil
}

// beginFunctionCall pushes a FUNCTION_ARG context; the opening '(' has
// already been consumed.
func (p *parser) beginFunctionCall(fn qname, pos int) error {
	if p.lx.current().Type == TokRParen {
		p.lx.advance()
		return p.deliverPostfix(&FunctionCall{Prefix: fn.prefix, Local: fn.local, URI: fn.uri})
	}
	p.push(&parseContext{kind: ctxArg, state: stNeedOperand, fn: fn, fnPos: pos})
	return nil
}

// parseStepTest parses the node test following an explicit axis (or @)
// and installs the resulting step.
func (p *parser) parseStepTest(f *parseContext, axis Axis) error {
	tok := p.lx.current()
	switch tok.Type {
	case TokStar:
		p.lx.advance()
		f.base = &Step{Axis: axis, Test: NodeTest{Kind: TestAnyName}}
		f.inPath = true
		f.state = stPathCont
		return nil
	case TokNCName, TokURIQName:
		return p.parseNameTestStep(f, axis)
	default:
		return p.parseStepTestAt(f, axis, tok)
	}
}

// parseNameTestStep parses a (possibly prefixed or wildcarded) name test
// in axis position, where a following '(' never means a function call.
func (p *parser) parseNameTestStep(f *parseContext, axis Axis) error {
	tok := p.lx.current()
	test := NodeTest{Kind: TestName}
	if tok.Type == TokURIQName {
		test.Local = tok.Value
		test.URI = tok.URI
		p.lx.advance()
	} else {
		name := tok.Value
		p.lx.advance()
		if p.lx.current().Type == TokColon && p.lx.current().Adjacent {
			save := p.lx.save()
			p.lx.advance()
			local := p.lx.current()
			switch {
			case local.Type == TokStar && local.Adjacent:
				p.lx.advance()
				uri, err := p.resolvePrefix(name, tok.Pos)
				if err != nil {
					return err
				}
				test = NodeTest{Kind: TestPrefixAny, Prefix: name, URI: uri}
			case local.Type == TokNCName && local.Adjacent:
				p.lx.advance()
				uri, err := p.resolvePrefix(name, tok.Pos)
				if err != nil {
					return err
				}
				test.Prefix = name
				test.Local = local.Value
				test.URI = uri
			default:
				p.lx.restore(save)
				test.Local = name
			}
		} else {
			test.Local = name
		}
	}
	if test.Kind == TestName && test.Prefix == "" && test.URI == "" &&
		axis != AxisAttribute && axis != AxisNamespace && p.resolver != nil {
		if uri, ok := p.resolver.DefaultElementNamespace(); ok {
			test.URI = uri
		}
	}
	f.base = &Step{Axis: axis, Test: test}
	f.inPath = true
	f.state = stPathCont
	return nil
}

// parseStepTestAt handles node-type and kind tests as step tests.
func (p *parser) parseStepTestAt(f *parseContext, axis Axis, tok Token) error {
	var test NodeTest
	switch tok.Type {
	case TokNodeTest:
		p.lx.advance()
		if err := p.expect(TokRParen); err != nil {
			return err
		}
		test = NodeTest{Kind: TestAnyKind}
	case TokTextTest:
		p.lx.advance()
		if err := p.expect(TokRParen); err != nil {
			return err
		}
		test = NodeTest{Kind: TestText}
	case TokCommentTest:
		p.lx.advance()
		if err := p.expect(TokRParen); err != nil {
			return err
		}
		test = NodeTest{Kind: TestComment}
	case TokPITest:
		p.lx.advance()
		test = NodeTest{Kind: TestPI}
		cur := p.lx.current()
		if cur.Type.IsNameLike() || cur.Type == TokString {
			test.Local = cur.Value
			p.lx.advance()
		}
		if err := p.expect(TokRParen); err != nil {
			return err
		}
	case TokElementTest, TokAttributeTest, TokDocumentTest, TokNamespaceNodeTest,
		TokSchemaElementTest, TokSchemaAttributeTest:
		st, open, err := p.parseItemTypeHead()
		if err != nil {
			return err
		}
		if open {
			// document-node(element(...)) nests one kind test.
			inner, _, err := p.parseItemTypeHead()
			if err != nil {
				return err
			}
			st.Params = append(st.Params, inner)
			if err := p.expect(TokRParen); err != nil {
				return err
			}
		}
		test = NodeTest{Kind: TestKind, KindTest: st}
		if tok.Type == TokAttributeTest && axis == AxisChild {
			axis = AxisAttribute
		}
	default:
		return p.unexpected()
	}
	f.base = &Step{Axis: axis, Test: test}
	f.inPath = true
	f.state = stPathCont
	return nil
}

// parseLookupKey parses the key of a lookup whose '?' has been consumed.
func (p *parser) parseLookupKey(base Node) (*Lookup, error) {
	tok := p.lx.current()
	lk := &Lookup{Base: base}
	switch {
	case tok.Type == TokStar || tok.Type == TokMultiply:
		lk.Wildcard = true
		p.lx.advance()
	case tok.Type == TokNumber:
		lk.KeyExpr = &Literal{Kind: NumberLiteral, Num: tok.Num, Str: tok.Value}
		p.lx.advance()
	case tok.Type.IsNameLike():
		lk.Key = tok.Value
		p.lx.advance()
	default:
		return nil, p.syntaxErrorf(tok.Pos, "expected a lookup key, found %q", tok.Type.String())
	}
	return lk, nil
}

// parseInlineFunction parses function($p as T, ...) as R { body }. The
// lexer has already consumed through the opening parenthesis.
func (p *parser) parseInlineFunction(f *parseContext) error {
	p.lx.advance() // past "function("
	var params []Param
	if p.lx.current().Type != TokRParen {
		for {
			if err := p.expect(TokDollar); err != nil {
				return err
			}
			nameTok := p.lx.current()
			if !nameTok.Type.IsNameLike() {
				return p.syntaxErrorf(nameTok.Pos, "expected a parameter name")
			}
			param := Param{Name: nameTok.Value}
			p.lx.advance()
			if p.lx.current().Type == TokAs {
				p.lx.advance()
				st, err := p.parseSequenceType()
				if err != nil {
					return err
				}
				param.Type = st
			}
			params = append(params, param)
			if p.lx.current().Type == TokComma {
				p.lx.advance()
				continue
			}
			break
		}
	}
	if err := p.expect(TokRParen); err != nil {
		return err
	}
	var returns *SequenceType
	if p.lx.current().Type == TokAs {
		p.lx.advance()
		st, err := p.parseSequenceType()
		if err != nil {
			return err
		}
		returns = st
	}
	if err := p.expect(TokLBrace); err != nil {
		return err
	}
	if p.lx.current().Type == TokRBrace {
		p.lx.advance()
		f.base = &InlineFunction{Params: params, Returns: returns, Body: &Sequence{}}
		f.state = stPathCont
		return nil
	}
	p.push(&parseContext{kind: ctxFnBody, state: stNeedOperand, params: params, returns: returns})
	return nil
}

// beginBindingExpr starts a for/let/some/every expression at its keyword.
func (p *parser) beginBindingExpr(f *parseContext, keyword string) error {
	var bindTok TokenType
	switch keyword {
	case "for":
		bindTok = TokFor
	case "let":
		bindTok = TokLet
	case "some":
		bindTok = TokSome
	case "every":
		bindTok = TokEvery
	}
	p.lx.advance() // the keyword
	c := &parseContext{kind: ctxBind, state: stNeedOperand, bindTok: bindTok}
	if err := p.parseBindingHead(c); err != nil {
		return err
	}
	p.push(c)
	return nil
}

// parseBindingHead consumes "$name in" (for/some/every) or "$name :="
// (let), leaving the frame ready to parse the binding's value.
func (p *parser) parseBindingHead(c *parseContext) error {
	if err := p.expect(TokDollar); err != nil {
		return err
	}
	qn, err := p.parseQName(true)
	if err != nil {
		return err
	}
	c.pendingVar = qn
	if c.bindTok == TokLet {
		return p.expect(TokAssign)
	}
	return p.expect(TokIn)
}

// parseQName reads a (possibly prefixed) name where the grammar requires
// one; keyword spellings are accepted as names when nameLike is set.
func (p *parser) parseQName(nameLike bool) (qname, error) {
	tok := p.lx.current()
	if tok.Type == TokURIQName {
		p.lx.advance()
		return qname{local: tok.Value, uri: tok.URI}, nil
	}
	ok := tok.Type == TokNCName || (nameLike && tok.Type.IsNameLike())
	if !ok {
		return qname{}, p.syntaxErrorf(tok.Pos, "expected a name, found %q", tok.Type.String())
	}
	name := tok.Value
	p.lx.advance()
	if p.lx.current().Type == TokColon && p.lx.current().Adjacent {
		save := p.lx.save()
		p.lx.advance()
		local := p.lx.current()
		if local.Type.IsNameLike() && local.Adjacent {
			p.lx.advance()
			uri, err := p.resolvePrefix(name, tok.Pos)
			if err != nil {
				return qname{}, err
			}
			return qname{prefix: name, local: local.Value, uri: uri}, nil
		}
		p.lx.restore(save)
	}
	return qname{local: name}, nil
}

// --- PATH_CONTINUATION -----------------------------------------------------

// sealPreds folds accumulated predicates into the current base.
func (f *parseContext) sealPreds() {
	if len(f.preds) > 0 {
		f.base = &FilterExpr{Base: f.base, Predicates: f.preds}
		f.preds = nil
	}
}

// sealBaseIntoPath moves the current base into the path being assembled.
func (f *parseContext) sealBaseIntoPath() {
	f.sealPreds()
	if f.base == nil {
		return
	}
	isStepLike := false
	switch b := f.base.(type) {
	case *Step:
		isStepLike = true
	case *FilterExpr:
		if _, ok := b.Base.(*Step); ok {
			isStepLike = true
		}
	}
	if !f.inPath && !f.pathAbs && !isStepLike && f.pathFilter == nil && len(f.steps) == 0 {
		f.pathFilter = f.base
	} else {
		f.steps = append(f.steps, f.base)
	}
	f.base = nil
}

// dynamicCallBase reports whether base can be applied as a function value.
func dynamicCallBase(base Node) bool {
	switch base.(type) {
	case *Step, nil:
		return false
	}
	return true
}

func (p *parser) stepPathCont(f *parseContext) error {
	tok := p.lx.current()
	switch tok.Type {
	case TokLBracket:
		p.lx.advance()
		p.push(&parseContext{kind: ctxPredicate, state: stNeedOperand})
		return nil

	case TokQuestion:
		f.sealPreds()
		p.lx.advance()
		lk, err := p.parseLookupKey(f.base)
		if err != nil {
			return err
		}
		f.base = lk
		return nil

	case TokLParen:
		if f.base != nil && len(f.preds) == 0 && dynamicCallBase(f.base) {
			p.lx.advance()
			if p.lx.current().Type == TokRParen {
				p.lx.advance()
				f.base = &DynamicCall{Base: f.base}
				return nil
			}
			base := f.base
			f.base = nil
			p.push(&parseContext{kind: ctxArg, state: stNeedOperand, dynBase: base})
			return nil
		}
		return p.finalizeOperand(f)

	case TokSlash:
		if f.base == nil && f.pathAbs && len(f.steps) == 0 {
			return p.syntaxErrorf(tok.Pos, "unexpected %q after /", tok.Type.String())
		}
		f.sealBaseIntoPath()
		f.inPath = true
		p.lx.advance()
		f.state = stNeedOperand
		return nil

	case TokDoubleSlash:
		f.sealBaseIntoPath()
		f.inPath = true
		f.steps = append(f.steps, descendantOrSelfStep())
		p.lx.advance()
		f.state = stNeedOperand
		return nil

	default:
		return p.finalizeOperand(f)
	}
}

// finalizeOperand assembles the path/postfix work in progress into a
// single operand, applies pending unary negations, and moves to
// HAVE_OPERAND.
func (p *parser) finalizeOperand(f *parseContext) error {
	var operand Node
	if f.inPath || f.pathAbs || f.pathFilter != nil || len(f.steps) > 0 {
		f.sealBaseIntoPath()
		lp := &LocationPath{Absolute: f.pathAbs, Steps: f.steps}
		if f.pathFilter != nil {
			operand = &PathExpr{Filter: f.pathFilter, Path: lp}
		} else {
			operand = lp
		}
	} else {
		f.sealPreds()
		operand = f.base
	}
	f.base = nil
	f.preds = nil
	f.inPath = false
	f.pathAbs = false
	f.pathFilter = nil
	f.steps = nil
	if f.negations > 0 {
		operand = &Unary{Operand: operand, Negations: f.negations}
		f.negations = 0
	}
	f.operands = append(f.operands, operand)
	f.state = stHaveOperand
	return nil
}

// deliverPostfix hands a completed sub-expression to the enclosing frame
// as its new postfix base, resuming PATH_CONTINUATION there.
func (p *parser) deliverPostfix(node Node) error {
	f := p.top()
	f.base = node
	f.state = stPathCont
	return nil
}

// deliverOperand hands a completed keyword expression (if/for/let/
// quantified) to the enclosing frame as a finished operand; these extend
// greedily to the right, so no postfix applies.
func (p *parser) deliverOperand(node Node) error {
	f := p.top()
	if f.negations > 0 {
		node = &Unary{Operand: node, Negations: f.negations}
		f.negations = 0
	}
	f.operands = append(f.operands, node)
	f.state = stHaveOperand
	return nil
}

// --- HAVE_OPERAND ----------------------------------------------------------

// reduce pops operators with precedence >= prec, folding operands into
// Binary nodes; left associativity for every operator.
func (f *parseContext) reduce(prec int) {
	for len(f.ops) > 0 && f.ops[len(f.ops)-1].prec >= prec {
		op := f.ops[len(f.ops)-1]
		f.ops = f.ops[:len(f.ops)-1]
		n := len(f.operands)
		right, left := f.operands[n-1], f.operands[n-2]
		f.operands = f.operands[:n-2]
		f.operands = append(f.operands, &Binary{Op: op.op, Left: left, Right: right})
	}
}

// takeOperand reduces everything and returns the frame's single operand.
func (f *parseContext) takeOperand() Node {
	f.reduce(0)
	n := f.operands[len(f.operands)-1]
	f.operands = f.operands[:len(f.operands)-1]
	return n
}

func (p *parser) stepHaveOperand(f *parseContext) (Node, bool, error) {
	tok := p.lx.current()

	switch tok.Type {
	case TokInstance, TokCast, TokCastable, TokTreat:
		var kind TypeExprKind
		var follower TokenType
		switch tok.Type {
		case TokInstance:
			kind, follower = InstanceOf, TokOf
		case TokCast:
			kind, follower = CastAs, TokAs
		case TokCastable:
			kind, follower = CastableAs, TokAs
		case TokTreat:
			kind, follower = TreatAs, TokAs
		}
		p.lx.advance()
		if err := p.expect(follower); err != nil {
			return nil, false, err
		}
		f.reduce(typePrec)
		st, err := p.parseSequenceType()
		if err != nil {
			return nil, false, err
		}
		operand := f.operands[len(f.operands)-1]
		f.operands[len(f.operands)-1] = &TypeExpr{Kind: kind, Operand: operand, Type: st}
		return nil, false, nil
	}

	if op, ok := binaryOpFor(tok.Type); ok {
		prec := opPrec(op)
		f.reduce(prec)
		f.ops = append(f.ops, opEntry{op: op, prec: prec})
		p.lx.advance()
		f.state = stNeedOperand
		return nil, false, nil
	}

	if tok.Type == TokComma {
		return nil, false, p.handleComma(f)
	}

	return p.completeContext(f)
}

// handleComma routes a comma according to the enclosing context: sequence
// accumulation, the next function argument, the next map pair or array
// member, the next binding — or, for single-expression contexts, frame
// completion with the comma left for the parent.
func (p *parser) handleComma(f *parseContext) error {
	switch f.kind {
	case ctxTop, ctxParen:
		f.items = append(f.items, f.takeOperand())
		f.seq = true
		p.lx.advance()
		f.state = stNeedOperand
		return nil
	case ctxArg, ctxSquare, ctxCurlyArray:
		f.items = append(f.items, f.takeOperand())
		p.lx.advance()
		f.state = stNeedOperand
		return nil
	case ctxFnBody:
		f.items = append(f.items, f.takeOperand())
		f.seq = true
		p.lx.advance()
		f.state = stNeedOperand
		return nil
	case ctxIf:
		if f.phase == 0 {
			// The condition is a full expression; commas build a sequence.
			f.items = append(f.items, f.takeOperand())
			f.seq = true
			p.lx.advance()
			f.state = stNeedOperand
			return nil
		}
		// then/else operands are single expressions: the comma belongs to
		// an enclosing context.
		_, _, err := p.completeContext(f)
		return err
	case ctxMap:
		if f.phase != 1 {
			return p.unexpected()
		}
		f.pairs = append(f.pairs, MapPair{Key: f.pendingKey, Value: f.takeOperand()})
		f.pendingKey = nil
		f.phase = 0
		p.lx.advance()
		f.state = stNeedOperand
		return nil
	case ctxBind:
		if f.phase != 0 {
			_, _, err := p.completeContext(f)
			return err
		}
		b := Binding{Prefix: f.pendingVar.prefix, Local: f.pendingVar.local, URI: f.pendingVar.uri, Expr: f.takeOperand()}
		f.bindings = append(f.bindings, b)
		p.lx.advance()
		if err := p.parseBindingHead(f); err != nil {
			return err
		}
		f.state = stNeedOperand
		return nil
	default: // ctxPredicate: a predicate holds a single expression
		return p.unexpected()
	}
}

// completeContext finishes the top frame on a token no operator consumes
// (§"context completion"). For most frames this pops the stack and hands
// the built node to the parent; ctxIf and ctxMap advance phases in place.
func (p *parser) completeContext(f *parseContext) (Node, bool, error) {
	tok := p.lx.current()

	switch f.kind {
	case ctxTop:
		operand := f.takeOperand()
		if f.seq {
			f.items = append(f.items, operand)
			operand = &Sequence{Items: f.items}
		}
		if tok.Type != TokEOF {
			return nil, false, p.unexpected()
		}
		return operand, true, nil

	case ctxArg:
		operand := f.takeOperand()
		f.items = append(f.items, operand)
		if err := p.expect(TokRParen); err != nil {
			return nil, false, err
		}
		p.pop()
		if f.dynBase != nil {
			return nil, false, p.deliverPostfix(&DynamicCall{Base: f.dynBase, Args: f.items})
		}
		call := &FunctionCall{Prefix: f.fn.prefix, Local: f.fn.local, URI: f.fn.uri, Args: f.items}
		return nil, false, p.deliverPostfix(call)

	case ctxPredicate:
		operand := f.takeOperand()
		if err := p.expect(TokRBracket); err != nil {
			return nil, false, err
		}
		p.pop()
		parent := p.top()
		parent.preds = append(parent.preds, operand)
		parent.state = stPathCont
		return nil, false, nil

	case ctxParen:
		operand := f.takeOperand()
		if f.seq {
			f.items = append(f.items, operand)
			operand = &Sequence{Items: f.items}
		}
		if err := p.expect(TokRParen); err != nil {
			return nil, false, err
		}
		p.pop()
		return nil, false, p.deliverPostfix(operand)

	case ctxSquare:
		f.items = append(f.items, f.takeOperand())
		if err := p.expect(TokRBracket); err != nil {
			return nil, false, err
		}
		p.pop()
		return nil, false, p.deliverPostfix(&ArrayConstructor{Members: f.items})

	case ctxCurlyArray:
		f.items = append(f.items, f.takeOperand())
		if err := p.expect(TokRBrace); err != nil {
			return nil, false, err
		}
		p.pop()
		return nil, false, p.deliverPostfix(&ArrayConstructor{Curly: true, Members: f.items})

	case ctxMap:
		if f.phase == 0 {
			if err := p.expect(TokColon); err != nil {
				return nil, false, err
			}
			f.pendingKey = f.takeOperand()
			f.phase = 1
			f.state = stNeedOperand
			return nil, false, nil
		}
		f.pairs = append(f.pairs, MapPair{Key: f.pendingKey, Value: f.takeOperand()})
		if err := p.expect(TokRBrace); err != nil {
			return nil, false, err
		}
		p.pop()
		return nil, false, p.deliverPostfix(&MapConstructor{Pairs: f.pairs})

	case ctxFnBody:
		operand := f.takeOperand()
		if f.seq {
			f.items = append(f.items, operand)
			operand = &Sequence{Items: f.items}
		}
		if err := p.expect(TokRBrace); err != nil {
			return nil, false, err
		}
		p.pop()
		fn := &InlineFunction{Params: f.params, Returns: f.returns, Body: operand}
		return nil, false, p.deliverPostfix(fn)

	case ctxIf:
		switch f.phase {
		case 0:
			operand := f.takeOperand()
			if f.seq {
				f.items = append(f.items, operand)
				operand = &Sequence{Items: f.items}
				f.items = nil
				f.seq = false
			}
			if err := p.expect(TokRParen); err != nil {
				return nil, false, err
			}
			if err := p.expect(TokThen); err != nil {
				return nil, false, err
			}
			f.ifCond = operand
			f.phase = 1
			f.state = stNeedOperand
			return nil, false, nil
		case 1:
			if err := p.expect(TokElse); err != nil {
				return nil, false, err
			}
			f.ifThen = f.takeOperand()
			f.phase = 2
			f.state = stNeedOperand
			return nil, false, nil
		default:
			node := &If{Cond: f.ifCond, Then: f.ifThen, Else: f.takeOperand()}
			p.pop()
			return nil, false, p.deliverOperand(node)
		}

	case ctxBind:
		if f.phase == 0 {
			b := Binding{Prefix: f.pendingVar.prefix, Local: f.pendingVar.local, URI: f.pendingVar.uri, Expr: f.takeOperand()}
			f.bindings = append(f.bindings, b)
			follower := TokReturn
			if f.bindTok == TokSome || f.bindTok == TokEvery {
				follower = TokSatisfies
			}
			if err := p.expect(follower); err != nil {
				return nil, false, err
			}
			f.phase = 1
			f.state = stNeedOperand
			return nil, false, nil
		}
		body := f.takeOperand()
		var node Node
		switch f.bindTok {
		case TokFor:
			node = &For{Bindings: f.bindings, Body: body}
		case TokLet:
			node = &Let{Bindings: f.bindings, Body: body}
		case TokSome:
			node = &Quantified{Bindings: f.bindings, Body: body}
		default:
			node = &Quantified{Every: true, Bindings: f.bindings, Body: body}
		}
		p.pop()
		return nil, false, p.deliverOperand(node)

	default:
		return nil, false, p.unexpected()
	}
}
