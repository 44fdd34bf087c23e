package xpath

import "strings"

// ItemTypeKind classifies one item type of a sequence type.
type ItemTypeKind int

const (
	ItemAtomic ItemTypeKind = iota // a named (atomic or union) type
	ItemAnyItem
	ItemEmptySequence
	ItemNode
	ItemText
	ItemComment
	ItemPI
	ItemElement
	ItemAttribute
	ItemDocument
	ItemNamespaceNode
	ItemSchemaElement
	ItemSchemaAttribute
	ItemAnyFunction
	ItemFunction
	ItemAnyMap
	ItemMap
	ItemAnyArray
	ItemArray
)

// SequenceType is the parsed form of a sequence type: an item type with
// an occurrence indicator. Composite item types (map, array, function,
// document-node) nest their parameter types in Params/Returns.
type SequenceType struct {
	Kind       ItemTypeKind
	Occurrence byte // 0 for exactly one, else '?', '*' or '+'

	// Name operand: the atomic type name, the element/attribute name test
	// ("*" Local for a wildcard), the schema-element/attribute name, or
	// the processing-instruction target.
	Prefix string
	Local  string
	URI    string

	TypeName *SequenceType   // element(name, type) / attribute(name, type) annotation
	Params   []*SequenceType // map key+value, array member, function parameters, document-node inner test
	Returns  *SequenceType   // function(...) as R
}

// String renders the type in source form.
func (s *SequenceType) String() string {
	var sb strings.Builder
	s.write(&sb)
	return sb.String()
}

func (s *SequenceType) write(sb *strings.Builder) {
	switch s.Kind {
	case ItemEmptySequence:
		sb.WriteString("empty-sequence()")
		return
	case ItemAtomic:
		sb.WriteString(s.qname())
	case ItemAnyItem:
		sb.WriteString("item()")
	case ItemNode:
		sb.WriteString("node()")
	case ItemText:
		sb.WriteString("text()")
	case ItemComment:
		sb.WriteString("comment()")
	case ItemPI:
		sb.WriteString("processing-instruction(")
		sb.WriteString(s.Local)
		sb.WriteString(")")
	case ItemElement, ItemAttribute:
		if s.Kind == ItemElement {
			sb.WriteString("element(")
		} else {
			sb.WriteString("attribute(")
		}
		sb.WriteString(s.qname())
		if s.TypeName != nil {
			sb.WriteString(", ")
			s.TypeName.write(sb)
		}
		sb.WriteString(")")
	case ItemDocument:
		sb.WriteString("document-node(")
		if len(s.Params) > 0 {
			s.Params[0].write(sb)
		}
		sb.WriteString(")")
	case ItemNamespaceNode:
		sb.WriteString("namespace-node()")
	case ItemSchemaElement:
		sb.WriteString("schema-element(" + s.qname() + ")")
	case ItemSchemaAttribute:
		sb.WriteString("schema-attribute(" + s.qname() + ")")
	case ItemAnyFunction:
		sb.WriteString("function(*)")
	case ItemFunction:
		sb.WriteString("function(")
		for i, p := range s.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.write(sb)
		}
		sb.WriteString(") as ")
		s.Returns.write(sb)
	case ItemAnyMap:
		sb.WriteString("map(*)")
	case ItemMap:
		sb.WriteString("map(")
		s.Params[0].write(sb)
		sb.WriteString(", ")
		s.Params[1].write(sb)
		sb.WriteString(")")
	case ItemAnyArray:
		sb.WriteString("array(*)")
	case ItemArray:
		sb.WriteString("array(")
		s.Params[0].write(sb)
		sb.WriteString(")")
	}
	if s.Occurrence != 0 {
		sb.WriteByte(s.Occurrence)
	}
}

func (s *SequenceType) qname() string {
	switch {
	case s.URI != "" && s.Prefix == "":
		return "Q{" + s.URI + "}" + s.Local
	case s.Prefix != "":
		return s.Prefix + ":" + s.Local
	default:
		return s.Local
	}
}

// tsFrame is one entry on the explicit stack used while parsing nested
// composite item types; type parsing, like expression parsing, never
// recurses on the grammar.
type tsFrame struct {
	st    *SequenceType
	phase int // ItemFunction: 0 while parameters are incomplete, 1 for the return type
}

// parseSequenceType parses a SequenceType at the current token. Any
// occurrence indicator is accepted; cast/castable targets are not limited
// to '?' by this function or its callers.
func (p *parser) parseSequenceType() (*SequenceType, error) {
	if p.lx.current().Type == TokEmptySequenceTest {
		p.lx.advance()
		if err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return &SequenceType{Kind: ItemEmptySequence}, nil
	}

	var stack []*tsFrame
	var completed *SequenceType
	for {
		if completed == nil {
			st, open, err := p.parseItemTypeHead()
			if err != nil {
				return nil, err
			}
			if open {
				fr := &tsFrame{st: st}
				// A function type whose empty parameter list was already
				// consumed is waiting only for its return type.
				if st.Kind == ItemFunction && st.Params != nil {
					fr.phase = 1
				}
				stack = append(stack, fr)
				continue
			}
			p.readOccurrence(st)
			completed = st
		}
		if len(stack) == 0 {
			return completed, nil
		}
		f := stack[len(stack)-1]
		if f.phase == 1 {
			f.st.Returns = completed
			stack = stack[:len(stack)-1]
			p.readOccurrence(f.st)
			completed = f.st
			continue
		}
		f.st.Params = append(f.st.Params, completed)
		completed = nil
		switch p.lx.current().Type {
		case TokComma:
			p.lx.advance()
		case TokRParen:
			p.lx.advance()
			if f.st.Kind == ItemFunction {
				if err := p.expect(TokAs); err != nil {
					return nil, err
				}
				f.phase = 1
				continue
			}
			stack = stack[:len(stack)-1]
			p.readOccurrence(f.st)
			completed = f.st
		default:
			return nil, p.syntaxErrorf(p.lx.current().Pos, "expected ',' or ')' in %s type", f.st.Kind.name())
		}
	}
}

func (k ItemTypeKind) name() string {
	switch k {
	case ItemMap:
		return "map"
	case ItemArray:
		return "array"
	case ItemFunction:
		return "function"
	case ItemDocument:
		return "document-node"
	default:
		return "item"
	}
}

// parseItemTypeHead consumes the head of one item type. open reports that
// the type is composite and its nested parameter types follow (the
// opening parenthesis has already been consumed by the lexer).
func (p *parser) parseItemTypeHead() (st *SequenceType, open bool, err error) {
	tok := p.lx.current()
	switch tok.Type {
	case TokItemTest:
		p.lx.advance()
		return &SequenceType{Kind: ItemAnyItem}, false, p.expect(TokRParen)
	case TokNodeTest:
		p.lx.advance()
		return &SequenceType{Kind: ItemNode}, false, p.expect(TokRParen)
	case TokTextTest:
		p.lx.advance()
		return &SequenceType{Kind: ItemText}, false, p.expect(TokRParen)
	case TokCommentTest:
		p.lx.advance()
		return &SequenceType{Kind: ItemComment}, false, p.expect(TokRParen)
	case TokNamespaceNodeTest:
		p.lx.advance()
		return &SequenceType{Kind: ItemNamespaceNode}, false, p.expect(TokRParen)
	case TokPITest:
		p.lx.advance()
		st := &SequenceType{Kind: ItemPI}
		cur := p.lx.current()
		if cur.Type.IsNameLike() || cur.Type == TokString {
			st.Local = cur.Value
			p.lx.advance()
		}
		return st, false, p.expect(TokRParen)
	case TokElementTest, TokAttributeTest:
		kind := ItemElement
		if tok.Type == TokAttributeTest {
			kind = ItemAttribute
		}
		p.lx.advance()
		st := &SequenceType{Kind: kind}
		if p.lx.current().Type != TokRParen {
			if err := p.parseTypeQName(st, true); err != nil {
				return nil, false, err
			}
			if p.lx.current().Type == TokComma {
				p.lx.advance()
				tn := &SequenceType{Kind: ItemAtomic}
				if err := p.parseTypeQName(tn, false); err != nil {
					return nil, false, err
				}
				if p.lx.current().Type == TokQuestion {
					tn.Occurrence = '?'
					p.lx.advance()
				}
				st.TypeName = tn
			}
		}
		return st, false, p.expect(TokRParen)
	case TokSchemaElementTest, TokSchemaAttributeTest:
		kind := ItemSchemaElement
		if tok.Type == TokSchemaAttributeTest {
			kind = ItemSchemaAttribute
		}
		p.lx.advance()
		st := &SequenceType{Kind: kind}
		if err := p.parseTypeQName(st, false); err != nil {
			return nil, false, err
		}
		return st, false, p.expect(TokRParen)
	case TokDocumentTest:
		p.lx.advance()
		if p.lx.current().Type == TokRParen {
			p.lx.advance()
			return &SequenceType{Kind: ItemDocument}, false, nil
		}
		return &SequenceType{Kind: ItemDocument}, true, nil
	case TokMapTest:
		p.lx.advance()
		if p.lx.current().Type == TokStar {
			p.lx.advance()
			return &SequenceType{Kind: ItemAnyMap}, false, p.expect(TokRParen)
		}
		return &SequenceType{Kind: ItemMap}, true, nil
	case TokArrayTest:
		p.lx.advance()
		if p.lx.current().Type == TokStar {
			p.lx.advance()
			return &SequenceType{Kind: ItemAnyArray}, false, p.expect(TokRParen)
		}
		return &SequenceType{Kind: ItemArray}, true, nil
	case TokFunctionTest:
		p.lx.advance()
		if p.lx.current().Type == TokStar {
			p.lx.advance()
			return &SequenceType{Kind: ItemAnyFunction}, false, p.expect(TokRParen)
		}
		st := &SequenceType{Kind: ItemFunction}
		if p.lx.current().Type == TokRParen {
			p.lx.advance()
			if err := p.expect(TokAs); err != nil {
				return nil, false, err
			}
			st.Params = []*SequenceType{}
			return st, true, nil
		}
		return st, true, nil
	default:
		if tok.Type.IsNameLike() || tok.Type == TokURIQName {
			st := &SequenceType{Kind: ItemAtomic}
			if err := p.parseTypeQName(st, false); err != nil {
				return nil, false, err
			}
			return st, false, nil
		}
		return nil, false, p.syntaxErrorf(tok.Pos, "expected a sequence type, found %q", tok.Type.String())
	}
}

// readOccurrence consumes an occurrence indicator if present. After a
// completed item type the lexer is in operator context, so '*' arrives as
// TokMultiply.
func (p *parser) readOccurrence(st *SequenceType) {
	switch p.lx.current().Type {
	case TokQuestion:
		st.Occurrence = '?'
	case TokMultiply:
		st.Occurrence = '*'
	case TokPlus:
		st.Occurrence = '+'
	default:
		return
	}
	p.lx.advance()
}

// parseTypeQName reads a (possibly wildcard or prefixed) name into st,
// resolving the prefix when a resolver is configured.
func (p *parser) parseTypeQName(st *SequenceType, allowWildcard bool) error {
	tok := p.lx.current()
	switch {
	case tok.Type == TokStar || tok.Type == TokMultiply:
		if !allowWildcard {
			return p.syntaxErrorf(tok.Pos, "wildcard not permitted here")
		}
		st.Local = "*"
		p.lx.advance()
		return nil
	case tok.Type == TokURIQName:
		st.Local = tok.Value
		st.URI = tok.URI
		p.lx.advance()
		return nil
	case tok.Type.IsNameLike():
		name := tok.Value
		p.lx.advance()
		if p.lx.current().Type == TokColon && p.lx.current().Adjacent {
			save := p.lx.save()
			p.lx.advance()
			local := p.lx.current()
			if local.Type.IsNameLike() && local.Adjacent {
				st.Prefix = name
				st.Local = local.Value
				p.lx.advance()
				return p.resolveTypePrefix(st, tok.Pos)
			}
			p.lx.restore(save)
		}
		st.Local = name
		return nil
	default:
		return p.syntaxErrorf(tok.Pos, "expected a name, found %q", tok.Type.String())
	}
}

func (p *parser) resolveTypePrefix(st *SequenceType, pos int) error {
	if p.resolver == nil || st.Prefix == "" {
		return nil
	}
	uri, ok := p.resolver.Resolve(st.Prefix)
	if !ok {
		return p.staticErrorf("XPST0081", pos, "undeclared namespace prefix %q", st.Prefix)
	}
	st.URI = uri
	return nil
}
