package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/entity"
	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/xmltok"
)

const (
	xmlNamespaceURI   = "http://www.w3.org/XML/1998/namespace"
	xmlnsNamespaceURI = "http://www.w3.org/2000/xmlns/"
)

// rawAttr is one attribute collected while a start tag is being built,
// before xmlns separation and qname resolution (spec.md §4.2 "a per-element
// attribute accumulator").
type rawAttr struct {
	name  string
	value string
}

// nsFrame is one namespace-scope frame (spec.md §3.2): the prefix→URI
// bindings declared on a single element, plus the prefixes it bound (so
// endPrefixMapping can be emitted symmetrically on pop).
type nsFrame struct {
	bindings map[string]string
	declared []string // prefixes (or "" for default) declared on this frame, in declaration order
}

// elemFrame is one element-stack frame (spec.md §3.3).
type elemFrame struct {
	name           QName
	expansionDepth int
}

// Parser drives internal/xmltok's tokenizer and translates its token
// stream into Handler callbacks, owning the element stack, namespace
// scope, and entity table for one document parse (spec.md §4.2, §3.9).
// A Parser is not safe for concurrent use and parses exactly one document.
type Parser struct {
	opts    Options
	handler Handler
	tok     *xmltok.Tokenizer

	entities *entity.Table
	intern   map[string]string

	// tokenized records, per element then attribute name (raw lexical
	// QNames as declared), the attributes whose DTD type is non-CDATA:
	// their values collapse space runs and trim (spec.md §4.2).
	tokenized map[string]map[string]bool

	elems []elemFrame
	ns    []nsFrame

	// start-tag-in-progress scratch
	pendingElemName string
	pendingAttrs    []rawAttr
	curAttrName     string
	curAttrValue    bytes.Buffer
	haveCurAttr     bool
	inStartTag      bool

	pendingPITarget string

	docName, docPublicID, docSystemID string
	dtdStarted                        bool

	err error
}

// New returns a Parser that will drive handler as it consumes tokenized
// input (spec.md §4.2, §6.1).
func New(handler Handler, opts Options) *Parser {
	p := &Parser{
		opts:     opts,
		handler:  handler,
		entities: entity.New(),
	}
	if opts.StringInterning {
		p.intern = make(map[string]string)
	}
	p.tok = xmltok.New(p.onToken, opts.Limits)
	p.tok.SetXML11(opts.XML11)
	return p
}

// Parse reads r fully, tokenizing and dispatching Handler events as it
// goes (spec.md §5 "Scheduling model": single-threaded, on the caller's
// thread). It returns the first fatal error encountered, XML or Handler.
func (p *Parser) Parse(r io.Reader) error {
	if err := p.handler.StartDocument(); err != nil {
		return err
	}
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := p.tok.Feed(buf[:n]); err != nil {
				return err
			}
			if p.err != nil {
				return p.err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if err := p.tok.Close(); err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}
	return p.handler.EndDocument()
}

// onToken is the xmltok.EmitFunc driving this parser (spec.md §4.2).
func (p *Parser) onToken(tok xmltok.Token) error {
	switch tok.Kind {
	case xmltok.FATAL:
		p.err = tok.Err
		return tok.Err

	case xmltok.StartElementOpen:
		p.inStartTag = true
		p.pendingElemName = p.internName(tok.Name)
		p.pendingAttrs = p.pendingAttrs[:0]
		p.haveCurAttr = false

	case xmltok.AttributeName:
		p.finishCurAttr()
		p.curAttrName = p.internName(tok.Name)
		p.curAttrValue.Reset()
		p.haveCurAttr = true

	case xmltok.AttributeValue:
		p.curAttrValue.Write(tok.Data)

	case xmltok.CharRef, xmltok.PredefEntityRef:
		return p.emitChar(tok.Rune)

	case xmltok.GeneralEntityRef:
		return p.handleGeneralEntityRef(string(tok.Name))

	case xmltok.ParameterEntityRef:
		return p.handleParameterEntityRef(string(tok.Name))

	case xmltok.StartElementClose:
		return p.closeStartTag(tok.Empty)

	case xmltok.EndElement:
		return p.endElement(p.internName(tok.Name))

	case xmltok.CharData:
		return p.handler.Characters(tok.Data)

	case xmltok.CDATAStart:
		return p.handler.StartCDATA()
	case xmltok.CDATAEnd:
		return p.handler.EndCDATA()

	case xmltok.Comment:
		return p.handler.Comment(tok.Data)

	case xmltok.PITarget:
		p.pendingPITarget = string(tok.Name)
	case xmltok.PIData:
		return p.handler.ProcessingInstruction(p.pendingPITarget, string(tok.Data))

	case xmltok.DoctypeName:
		p.docName = string(tok.Name)
	case xmltok.DoctypePublicID:
		p.docPublicID = string(tok.Data)
	case xmltok.DoctypeSystemID:
		p.docSystemID = string(tok.Data)
	case xmltok.DoctypeSubsetStart:
		p.dtdStarted = true
		return p.handler.StartDTD(p.docName, p.docPublicID, p.docSystemID)
	case xmltok.DoctypeEnd:
		if !p.dtdStarted {
			if err := p.handler.StartDTD(p.docName, p.docPublicID, p.docSystemID); err != nil {
				return err
			}
		}
		return p.handler.EndDTD()

	case xmltok.EntityDecl:
		p.declareEntity(tok.Data)

	case xmltok.AttlistDecl:
		// Not validated against (spec.md §1 Non-goals), but the declared
		// attribute types drive value normalization: non-CDATA values
		// collapse space runs and trim (spec.md §4.1, §4.2).
		p.declareAttlist(tok.Data)

	case xmltok.ElementDecl, xmltok.NotationDecl:
		// Content-model and notation declarations are tokenized but not
		// validated against (spec.md §1 Non-goals); parsed and discarded.

	case xmltok.XMLDecl:
		// version/encoding already consumed by the tokenizer/decoder.

	case xmltok.EOF:
		// nothing to do; Parse() calls EndDocument itself.
	}
	return nil
}

// internName materializes a zero-copy name slice as an owned string,
// deduplicated through the per-parser intern table when the
// string-interning feature is on. The table lives exactly as long as one
// parse.
func (p *Parser) internName(b []byte) string {
	if p.intern == nil {
		return string(b)
	}
	if s, ok := p.intern[string(b)]; ok {
		return s
	}
	s := string(b)
	p.intern[s] = s
	return s
}

func (p *Parser) finishCurAttr() {
	if !p.haveCurAttr {
		return
	}
	p.pendingAttrs = append(p.pendingAttrs, rawAttr{name: p.curAttrName, value: p.curAttrValue.String()})
	p.haveCurAttr = false
}

// closeStartTag separates xmlns declarations, pushes the namespace frame,
// resolves the element and attribute qnames, detects duplicate attributes,
// and emits startElement (plus endElement immediately for the
// empty-element form) — spec.md §4.2 "On STARTELEMENT_CLOSE".
func (p *Parser) closeStartTag(empty bool) error {
	p.finishCurAttr()
	p.inStartTag = false

	var nsDecls []rawAttr
	var normal []rawAttr
	for _, a := range p.pendingAttrs {
		prefix, local := splitQName(a.name)
		if a.name == "xmlns" || prefix == "xmlns" {
			nsDecls = append(nsDecls, rawAttr{name: local, value: a.value})
			if p.opts.NamespacePrefixes {
				normal = append(normal, a)
			}
			continue
		}
		normal = append(normal, a)
	}

	frame := nsFrame{bindings: make(map[string]string, len(nsDecls))}
	if p.opts.Namespaces {
		for _, d := range nsDecls {
			prefix := d.name
			if d.name == "xmlns" {
				prefix = ""
			}
			frame.bindings[prefix] = d.value
			frame.declared = append(frame.declared, prefix)
		}
	}
	p.ns = append(p.ns, frame)
	for _, prefix := range frame.declared {
		if err := p.handler.StartPrefixMapping(prefix, frame.bindings[prefix]); err != nil {
			return err
		}
	}

	elemName := p.resolveName(p.pendingElemName, true)

	attrs := make([]Attribute, 0, len(normal))
	seen := make(map[[2]string]bool, len(normal))
	for _, a := range normal {
		qn := p.resolveName(a.name, false)
		key := [2]string{qn.URI, qn.Local}
		if seen[key] {
			return fmt.Errorf("content: duplicate attribute (%s, %s)", qn.URI, qn.Local)
		}
		seen[key] = true
		value := a.value
		if p.isTokenizedAttr(p.pendingElemName, a.name) {
			// Non-CDATA attribute types collapse runs of spaces and trim
			// (spec.md §4.2); the tokenizer already mapped tab/CR/LF to
			// spaces.
			value = collapseSpaces(value)
		}
		attrs = append(attrs, Attribute{Name: qn, Value: value})
	}

	p.elems = append(p.elems, elemFrame{name: elemName, expansionDepth: p.tok.ExpansionDepth()})

	if err := p.handler.StartElement(elemName, attrs); err != nil {
		return err
	}
	if empty {
		return p.popElement(elemName.Local)
	}
	return nil
}

func (p *Parser) endElement(name string) error {
	if len(p.elems) == 0 {
		return fmt.Errorf("content: end tag %q with no open element", name)
	}
	top := p.elems[len(p.elems)-1]
	if top.name.Local != localPart(name) {
		return fmt.Errorf("content: mismatched end tag: expected %q, got %q", top.name.Local, name)
	}
	if top.expansionDepth != p.tok.ExpansionDepth() {
		return fmt.Errorf("content: element %q closed in a different entity-expansion frame than it was opened", name)
	}
	return p.popElement(top.name.Local)
}

func (p *Parser) popElement(local string) error {
	n := len(p.elems)
	name := p.elems[n-1].name
	p.elems = p.elems[:n-1]
	if err := p.handler.EndElement(name); err != nil {
		return err
	}
	if len(p.ns) == 0 {
		return nil
	}
	frame := p.ns[len(p.ns)-1]
	p.ns = p.ns[:len(p.ns)-1]
	for i := len(frame.declared) - 1; i >= 0; i-- {
		if err := p.handler.EndPrefixMapping(frame.declared[i]); err != nil {
			return err
		}
	}
	return nil
}

func splitQName(name string) (prefix, local string) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func localPart(name string) string {
	_, local := splitQName(name)
	return local
}

// resolveName resolves a raw lexical name to a QName (spec.md §3.1, §3.2).
// Unprefixed element names adopt the innermost default-namespace binding;
// unprefixed attribute names never do (XML Namespaces: "default namespace
// declarations do not apply directly to attribute names").
func (p *Parser) resolveName(name string, isElement bool) QName {
	prefix, local := splitQName(name)
	qn := QName{Prefix: prefix, Local: local}
	if !p.opts.Namespaces {
		return qn
	}
	switch prefix {
	case "xml":
		qn.URI = xmlNamespaceURI
		return qn
	case "xmlns":
		qn.URI = xmlnsNamespaceURI
		return qn
	case "":
		if !isElement {
			return qn
		}
		qn.URI = p.lookupPrefix("")
		return qn
	default:
		qn.URI = p.lookupPrefix(prefix)
		return qn
	}
}

func (p *Parser) lookupPrefix(prefix string) string {
	for i := len(p.ns) - 1; i >= 0; i-- {
		if uri, ok := p.ns[i].bindings[prefix]; ok {
			return uri
		}
	}
	return ""
}

// handleGeneralEntityRef implements spec.md §4.2 "On references": internal
// entities are expanded in place via the tokenizer's expansion-frame stack
// when enabled; external references are skipped (skippedEntity) unless
// external resolution is enabled, in which case the resolver is consulted.
func (p *Parser) handleGeneralEntityRef(name string) error {
	decl, ok := p.entities.LookupGeneral(name)
	if !ok {
		return entity.ErrUndeclared(name, false)
	}
	if decl.IsUnparsed() {
		return entity.ErrUnparsedInContent(name)
	}
	switch decl.Kind {
	case entity.Internal:
		return p.expandInternal(name, decl)
	default:
		if p.inStartTag && p.haveCurAttr {
			// External entity references are never legal in attribute
			// values (spec.md §8): fatal, not skipped.
			return entity.ErrExternalForbidden(name)
		}
		if !p.opts.ExternalGeneralEntities {
			return p.handler.SkippedEntity(name)
		}
		if p.opts.Resolver == nil {
			return p.handler.SkippedEntity(name)
		}
		rc, _, resolved := p.opts.Resolver.Resolve(decl.PublicID, decl.SystemID)
		if !resolved {
			return p.handler.SkippedEntity(name)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		if p.tok.InExpansion(name) {
			return entity.ErrCycle(name)
		}
		return p.tok.PushExpansion(name, data)
	}
}

func (p *Parser) handleParameterEntityRef(name string) error {
	decl, ok := p.entities.LookupParameter(name)
	if !ok {
		return entity.ErrUndeclared(name, true)
	}
	if decl.Kind != entity.Internal {
		if !p.opts.ExternalParameterEntities {
			return nil
		}
	}
	return p.expandInternal(name, decl)
}

func (p *Parser) expandInternal(name string, decl *entity.Decl) error {
	if p.tok.InExpansion(name) {
		return entity.ErrCycle(name)
	}
	var buf bytes.Buffer
	for _, part := range decl.Parts {
		if part.Ref == "" {
			buf.WriteString(part.Literal)
			continue
		}
		if r, ok := entity.IsPredefined(part.Ref); ok {
			buf.WriteRune(r)
			continue
		}
		buf.WriteString("&" + part.Ref + ";")
	}
	return p.tok.PushExpansion(name, buf.Bytes())
}

func (p *Parser) emitChar(r rune) error {
	if p.inStartTag && p.haveCurAttr {
		p.curAttrValue.WriteRune(r)
		return nil
	}
	return p.handler.Characters([]byte(string(r)))
}

// declareEntity parses the raw body of an <!ENTITY ...> declaration (the
// text between the keyword and the closing '>') and registers it in the
// entity table (spec.md §3.4). General and parameter entities, internal
// and external (parsed/unparsed), are all recognized.
func (p *Parser) declareEntity(data []byte) {
	fields := tokenizeDecl(data)
	if len(fields) == 0 {
		return
	}
	isParam := false
	i := 0
	if fields[0] == "%" {
		isParam = true
		i++
	}
	if i >= len(fields) {
		return
	}
	name := fields[i]
	i++
	if i >= len(fields) {
		return
	}
	decl := &entity.Decl{Name: name}
	switch fields[i] {
	case "SYSTEM":
		i++
		if i >= len(fields) {
			return
		}
		decl.SystemID = fields[i]
		i++
		decl.Kind = entity.ExternalParsed
		if i+1 < len(fields) && fields[i] == "NDATA" {
			decl.Kind = entity.ExternalUnparsed
			decl.Notation = fields[i+1]
		}
	case "PUBLIC":
		i++
		if i+1 >= len(fields) {
			return
		}
		decl.PublicID = fields[i]
		decl.SystemID = fields[i+1]
		i += 2
		decl.Kind = entity.ExternalParsed
		if i+1 < len(fields) && fields[i] == "NDATA" {
			decl.Kind = entity.ExternalUnparsed
			decl.Notation = fields[i+1]
		}
	default:
		decl.Kind = entity.Internal
		decl.Parts = splitEntityParts(fields[i])
	}
	if isParam {
		p.entities.DeclareParameter(decl)
	} else {
		p.entities.DeclareGeneral(decl)
	}
}

// declareAttlist parses the raw body of an <!ATTLIST ...> declaration and
// records which attributes carry a non-CDATA (tokenized) type, the
// information closeStartTag needs for value normalization (spec.md §4.1
// "using attribute-type information from the DTD"). Content models are
// not validated; only the type names matter here.
func (p *Parser) declareAttlist(data []byte) {
	fields := tokenizeAttlistDecl(data)
	if len(fields) == 0 {
		return
	}
	elem := fields[0]
	i := 1
	for i+1 < len(fields) {
		name := fields[i]
		typ := fields[i+1]
		i += 2
		if typ == "NOTATION" && i < len(fields) && strings.HasPrefix(fields[i], "(") {
			i++
		}
		if i < len(fields) {
			switch fields[i] {
			case "#REQUIRED", "#IMPLIED":
				i++
			case "#FIXED":
				i += 2
			default:
				i++ // a bare quoted default value
			}
		}
		if p.tokenized == nil {
			p.tokenized = make(map[string]map[string]bool)
		}
		m := p.tokenized[elem]
		if m == nil {
			m = make(map[string]bool)
			p.tokenized[elem] = m
		}
		// First declaration of an attribute wins, matching the entity
		// table's first-wins rule.
		if _, exists := m[name]; !exists {
			m[name] = typ != "CDATA"
		}
	}
}

// isTokenizedAttr reports whether the DTD declared attribute name on
// element elem with a non-CDATA type.
func (p *Parser) isTokenizedAttr(elem, name string) bool {
	return p.tokenized[elem][name]
}

// collapseSpaces trims and collapses interior space runs, the non-CDATA
// half of attribute-value normalization.
func collapseSpaces(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// tokenizeAttlistDecl splits an ATTLIST body into fields: names and
// keywords, quoted literals (quotes stripped), and parenthesized
// enumerations kept whole as one "(...)" field.
func tokenizeAttlistDecl(data []byte) []string {
	var out []string
	i := 0
	for i < len(data) {
		for i < len(data) && isDeclSpace(data[i]) {
			i++
		}
		if i >= len(data) {
			break
		}
		switch data[i] {
		case '"', '\'':
			quote := data[i]
			i++
			start := i
			for i < len(data) && data[i] != quote {
				i++
			}
			out = append(out, string(data[start:i]))
			if i < len(data) {
				i++
			}
		case '(':
			start := i
			for i < len(data) && data[i] != ')' {
				i++
			}
			if i < len(data) {
				i++
			}
			out = append(out, string(data[start:i]))
		default:
			start := i
			for i < len(data) && !isDeclSpace(data[i]) && data[i] != '(' {
				i++
			}
			out = append(out, string(data[start:i]))
		}
	}
	return out
}

// splitEntityParts breaks an internal entity's literal replacement text
// into literal-run and nested-reference parts (spec.md §3.4 "already
// tokenized once at declaration time"). It recognizes "&name;" and
// "%name;" references; everything else is literal text.
func splitEntityParts(lit string) []entity.Part {
	var parts []entity.Part
	var buf bytes.Buffer
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, entity.Part{Literal: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(lit); i++ {
		c := lit[i]
		if (c == '&' || c == '%') && i+1 < len(lit) {
			if j := strings.IndexByte(lit[i+1:], ';'); j >= 0 {
				flush()
				parts = append(parts, entity.Part{Ref: lit[i+1 : i+1+j], RefIsParam: c == '%'})
				i += j + 1
				continue
			}
		}
		buf.WriteByte(c)
	}
	flush()
	return parts
}

// tokenizeDecl splits a declaration body into whitespace-separated fields,
// keeping each quoted literal as a single field with its quotes stripped.
func tokenizeDecl(data []byte) []string {
	var out []string
	i := 0
	for i < len(data) {
		for i < len(data) && isDeclSpace(data[i]) {
			i++
		}
		if i >= len(data) {
			break
		}
		if data[i] == '"' || data[i] == '\'' {
			quote := data[i]
			i++
			start := i
			for i < len(data) && data[i] != quote {
				i++
			}
			out = append(out, string(data[start:i]))
			if i < len(data) {
				i++
			}
			continue
		}
		start := i
		for i < len(data) && !isDeclSpace(data[i]) {
			i++
		}
		out = append(out, string(data[start:i]))
	}
	return out
}

func isDeclSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
