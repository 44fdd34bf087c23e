package xmltok

import (
	"bytes"
	"strconv"

	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/chars"
)

// This file holds the per-state transition functions the dispatch loop in
// run() (tokenizer.go) calls into. Each one consumes at most the single
// rune it is handed (states driven from the content-like loop), or manages
// its own peek/advance pairs for constructs that are more naturally
// scanned as a run (comments, CDATA, PI bodies, DTD markup declarations) —
// spec.md §4.1's states are the source of truth for the split.

func (t *Tokenizer) flushCharData() error {
	if len(t.genericBuf) == 0 {
		return nil
	}
	data := t.genericBuf
	t.genericBuf = nil
	return t.emitTok(Token{Kind: CharData, Data: data})
}

func (t *Tokenizer) stepContentLike(r rune, size int, isEOF bool) error {
	if isEOF {
		if err := t.flushCharData(); err != nil {
			return err
		}
		if t.state == stateEpilog {
			t.state = stateDone
			return t.emitTok(Token{Kind: EOF})
		}
		return t.emitFatal(t.fatalErr("GNZ-XML-EOF", "unexpected end of input"))
	}
	switch r {
	case '<':
		if err := t.flushCharData(); err != nil {
			return err
		}
		t.advance(size)
		t.returnState = t.state
		t.state = stateTagOpen
		return nil
	case '&':
		if t.state != stateContent {
			return t.emitFatal(t.fatalErr("GNZ-XML-CONTENT", "character reference not allowed here"))
		}
		if err := t.flushCharData(); err != nil {
			return err
		}
		t.advance(size)
		t.refIsParam = false
		t.refPhase = 0
		t.refReturnState = stateContent
		t.state = stateRef
		return nil
	default:
		if t.state != stateContent && !chars.IsWhitespace(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-CONTENT", "non-whitespace content not allowed outside the document element"))
		}
		if !chars.IsChar(r, t.xml11) {
			return t.emitFatal(t.fatalErr("GNZ-XML-CHAR", "illegal XML character"))
		}
		t.genericBuf = appendRune(t.genericBuf, r)
		t.docSeenAny = true
		t.advance(size)
		return nil
	}
}

func (t *Tokenizer) stepTagOpen(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "'<' at end of input"))
	}
	switch r {
	case '?':
		t.advance(size)
		t.nameBuf = nil
		t.state = statePITarget
		return nil
	case '!':
		t.advance(size)
		t.state = stateTagOpenBang
		return nil
	case '/':
		if t.returnState != stateContent {
			return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "end tag not allowed here"))
		}
		t.advance(size)
		t.docSeenAny = true
		t.nameBuf = nil
		t.state = stateEndTagName
		return nil
	default:
		if !chars.IsNameStartChar(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "expected element name after '<'"))
		}
		t.docSeenAny = true
		t.nameBuf = appendRune(nil, r)
		t.advance(size)
		t.state = stateStartTagName
		return nil
	}
}

func (t *Tokenizer) stepTagOpenBang(r rune, size int, isEOF bool) error {
	if matched, needMore := t.tryConsumeLiteral("--"); needMore {
		return nil
	} else if matched {
		t.genericBuf = nil
		t.state = stateCommentBody
		return nil
	}
	if matched, needMore := t.tryConsumeLiteral("[CDATA["); needMore {
		return nil
	} else if matched {
		if t.returnState != stateContent {
			return t.emitFatal(t.fatalErr("GNZ-XML-CDATA", "CDATA section not allowed here"))
		}
		if err := t.emitTok(Token{Kind: CDATAStart}); err != nil {
			return err
		}
		t.state = stateCDATABody
		return nil
	}
	if matched, needMore := t.tryConsumeLiteral("DOCTYPE"); needMore {
		return nil
	} else if matched {
		if t.returnState != statePrologBeforeDoctype || t.doctypeSeen {
			return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "DOCTYPE declaration not allowed here"))
		}
		t.doctypeSeen = true
		t.nameBuf = nil
		t.state = stateDoctypeDecl
		return nil
	}
	return t.emitFatal(t.fatalErr("GNZ-XML-MARKUP", "malformed '<!' markup declaration"))
}

// stepTagName scans a Name for either a start tag (isStart) or an end tag.
func (t *Tokenizer) stepTagName(r rune, size int, isEOF bool, isStart bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "unterminated tag name"))
	}
	if len(t.nameBuf) == 0 {
		if !chars.IsNameStartChar(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "expected element name"))
		}
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if chars.IsNameChar(r) {
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if isStart {
		if err := t.emitTok(Token{Kind: StartElementOpen, Name: t.nameBuf}); err != nil {
			return err
		}
		t.state = stateStartTagAttrs
		return nil
	}
	t.pendingEndName = append(t.pendingEndName[:0], t.nameBuf...)
	t.state = stateEndTagTrailingWS
	return nil
}

func (t *Tokenizer) stepEndTagTrailingWS(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "unterminated end tag"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	if r != '>' {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "expected '>' to close end tag"))
	}
	t.advance(size)
	if err := t.emitTok(Token{Kind: EndElement, Name: t.pendingEndName}); err != nil {
		return err
	}
	t.depth--
	if t.depth <= 0 {
		t.state = stateEpilog
	} else {
		t.state = stateContent
	}
	return nil
}

func (t *Tokenizer) stepStartTagAttrs(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "unterminated start tag"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	switch r {
	case '>':
		t.advance(size)
		if err := t.emitTok(Token{Kind: StartElementClose, Empty: false}); err != nil {
			return err
		}
		t.depth++
		t.rootSeen = true
		t.state = stateContent
		return nil
	case '/':
		t.advance(size)
		t.state = stateStartTagSlash
		return nil
	default:
		if !chars.IsNameStartChar(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "expected attribute name or '>'"))
		}
		t.nameBuf = appendRune(nil, r)
		t.advance(size)
		t.attrEqSeen = false
		t.state = stateAttrName
		return nil
	}
}

func (t *Tokenizer) stepStartTagSlash(r rune, size int, isEOF bool) error {
	if isEOF || r != '>' {
		return t.emitFatal(t.fatalErr("GNZ-XML-TAG", "malformed empty-element tag"))
	}
	t.advance(size)
	if err := t.emitTok(Token{Kind: StartElementClose, Empty: true}); err != nil {
		return err
	}
	if t.depth <= 0 {
		t.rootSeen = true
		t.state = stateEpilog
	} else {
		t.state = stateContent
	}
	return nil
}

func (t *Tokenizer) stepAttrName(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "unterminated attribute name"))
	}
	if chars.IsNameChar(r) {
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if err := t.emitTok(Token{Kind: AttributeName, Name: t.nameBuf}); err != nil {
		return err
	}
	t.attrEqSeen = false
	t.state = stateAttrEquals
	return nil
}

func (t *Tokenizer) stepAttrEquals(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "unterminated attribute"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	if !t.attrEqSeen {
		if r != '=' {
			return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "expected '=' after attribute name"))
		}
		t.attrEqSeen = true
		t.advance(size)
		return nil
	}
	switch r {
	case '"':
		t.advance(size)
		t.genericBuf = nil
		t.state = stateAttrValueDQuote
	case '\'':
		t.advance(size)
		t.genericBuf = nil
		t.state = stateAttrValueSQuote
	default:
		return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "expected quoted attribute value"))
	}
	return nil
}

func (t *Tokenizer) flushAttrValue() error {
	data := t.genericBuf
	t.genericBuf = nil
	return t.emitTok(Token{Kind: AttributeValue, Data: data})
}

func (t *Tokenizer) stepAttrValue(r rune, size int, isEOF bool, quote rune) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "unterminated attribute value"))
	}
	if r == quote {
		t.advance(size)
		if err := t.flushAttrValue(); err != nil {
			return err
		}
		t.state = stateStartTagAttrs
		return nil
	}
	if r == '<' {
		return t.emitFatal(t.fatalErr("GNZ-XML-ATTR", "'<' not allowed in attribute value"))
	}
	if r == '&' {
		if err := t.flushAttrValue(); err != nil {
			return err
		}
		t.advance(size)
		t.refIsParam = false
		t.refPhase = 0
		if quote == '"' {
			t.refReturnState = stateAttrValueDQuote
		} else {
			t.refReturnState = stateAttrValueSQuote
		}
		t.state = stateRef
		return nil
	}
	if chars.IsWhitespace(r) {
		t.genericBuf = append(t.genericBuf, ' ')
		t.advance(size)
		return nil
	}
	if !chars.IsChar(r, t.xml11) {
		return t.emitFatal(t.fatalErr("GNZ-XML-CHAR", "illegal XML character in attribute value"))
	}
	t.genericBuf = appendRune(t.genericBuf, r)
	t.advance(size)
	return nil
}

// --- references ------------------------------------------------------------

var predefinedRefs = map[string]rune{
	"amp": '&', "lt": '<', "gt": '>', "apos": '\'', "quot": '"',
}

// stepRef scans a "&...;"/"%...;" reference. Progress is tracked in
// refPhase/refHex/genericBuf so a reference split across Feed boundaries
// resumes exactly where it stopped.
func (t *Tokenizer) stepRef(isEOF bool) error {
	for {
		r, size, ok := t.peekRune()
		if !ok {
			t.suspended = true
			return nil
		}
		if size == 0 {
			return t.emitFatal(t.fatalErr("GNZ-XML-REF", "unterminated reference"))
		}
		switch t.refPhase {
		case 0:
			t.genericBuf = nil
			if r == '#' {
				t.advance(size)
				t.refPhase = 1
				t.refHex = false
				continue
			}
			if !chars.IsNameStartChar(r) {
				return t.emitFatal(t.fatalErr("GNZ-XML-REF", "malformed reference"))
			}
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
			t.refPhase = 3
		case 1:
			if r == 'x' {
				t.refHex = true
				t.advance(size)
			}
			t.refPhase = 2
		case 2:
			if r == ';' {
				t.advance(size)
				return t.finishCharRef()
			}
			valid := chars.IsDigit(r)
			if t.refHex {
				valid = chars.IsHexDigit(r)
			}
			if !valid {
				return t.emitFatal(t.fatalErr("GNZ-XML-REF", "malformed character reference"))
			}
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
		case 3:
			if r == ';' {
				t.advance(size)
				return t.finishNameRef()
			}
			if !chars.IsNameChar(r) {
				return t.emitFatal(t.fatalErr("GNZ-XML-REF", "malformed entity name"))
			}
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
		}
	}
}

func (t *Tokenizer) finishCharRef() error {
	if len(t.genericBuf) == 0 {
		return t.emitFatal(t.fatalErr("GNZ-XML-REF", "empty character reference"))
	}
	base := 10
	if t.refHex {
		base = 16
	}
	val, err := strconv.ParseInt(string(t.genericBuf), base, 32)
	if err != nil {
		return t.emitFatal(t.fatalErr("GNZ-XML-REF", "invalid character reference"))
	}
	rv := rune(val)
	if !chars.IsChar(rv, t.xml11) {
		return t.emitFatal(t.fatalErr("GNZ-XML-REF", "character reference resolves to an illegal character"))
	}
	if err := t.emitTok(Token{Kind: CharRef, Rune: rv}); err != nil {
		return err
	}
	t.state = t.refReturnState
	return nil
}

func (t *Tokenizer) finishNameRef() error {
	name := t.genericBuf
	t.genericBuf = nil
	var tok Token
	switch {
	case t.refIsParam:
		tok = Token{Kind: ParameterEntityRef, Name: name}
	default:
		if rv, ok := predefinedRefs[string(name)]; ok {
			tok = Token{Kind: PredefEntityRef, Name: name, Rune: rv}
		} else {
			tok = Token{Kind: GeneralEntityRef, Name: name}
		}
	}
	if err := t.emitTok(tok); err != nil {
		return err
	}
	t.state = t.refReturnState
	return nil
}

// --- comments, CDATA, processing instructions -------------------------------

func (t *Tokenizer) stepCommentBody(isEOF bool) error {
	f := t.cur()
	rest := f.buf[f.pos:]
	idx := bytes.Index(rest, []byte("--"))
	if idx < 0 || idx+2 >= len(rest) {
		if len(t.frames) == 1 && !t.atEOF {
			t.suspended = true
			return nil
		}
		return t.emitFatal(t.fatalErr("GNZ-XML-COMMENT", "unterminated comment"))
	}
	if rest[idx+2] != '>' {
		return t.emitFatal(t.fatalErr("GNZ-XML-COMMENT", "'--' is not allowed inside a comment"))
	}
	data := rest[:idx]
	if err := t.emitTok(Token{Kind: Comment, Data: data}); err != nil {
		return err
	}
	t.advance(idx + 3)
	t.state = t.returnState
	return nil
}

func (t *Tokenizer) stepCDATABody(isEOF bool) error {
	data, found, needMore := t.scanUntil("]]>")
	if needMore {
		return nil
	}
	if !found {
		return t.emitFatal(t.fatalErr("GNZ-XML-CDATA", "unterminated CDATA section"))
	}
	if len(data) > 0 {
		if err := t.emitTok(Token{Kind: CharData, Data: data}); err != nil {
			return err
		}
	}
	if err := t.emitTok(Token{Kind: CDATAEnd}); err != nil {
		return err
	}
	t.state = t.returnState
	return nil
}

func isXMLTarget(name []byte) bool {
	if len(name) != 3 {
		return false
	}
	lower := func(b byte) byte {
		if b >= 'A' && b <= 'Z' {
			return b + 32
		}
		return b
	}
	return lower(name[0]) == 'x' && lower(name[1]) == 'm' && lower(name[2]) == 'l'
}

func (t *Tokenizer) stepPITarget(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-PI", "unterminated processing instruction target"))
	}
	if len(t.nameBuf) == 0 {
		if !chars.IsNameStartChar(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-PI", "expected name after '<?'"))
		}
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if chars.IsNameChar(r) {
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if isXMLTarget(t.nameBuf) {
		if t.docSeenAny {
			return t.emitFatal(t.fatalErr("GNZ-XML-DECL", `the processing-instruction target "xml" is reserved`))
		}
		t.piIsXMLDecl = true
	} else {
		t.piIsXMLDecl = false
		if err := t.emitTok(Token{Kind: PITarget, Name: t.nameBuf}); err != nil {
			return err
		}
	}
	t.docSeenAny = true
	t.state = statePITargetWS
	return nil
}

func (t *Tokenizer) stepPITargetWS(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-PI", "unterminated processing instruction"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	if t.piIsXMLDecl {
		t.state = stateXMLDeclBody
		return nil
	}
	t.state = statePIBody
	return nil
}

func (t *Tokenizer) stepPIBody(isEOF bool) error {
	data, found, needMore := t.scanUntil("?>")
	if needMore {
		return nil
	}
	if !found {
		return t.emitFatal(t.fatalErr("GNZ-XML-PI", "unterminated processing instruction"))
	}
	if err := t.emitTok(Token{Kind: PIData, Data: data}); err != nil {
		return err
	}
	t.state = t.returnState
	return nil
}

// parsePseudoAttrs extracts name="value" pairs from the raw body of an XML
// declaration (always plain ASCII literals, no entity references).
func parsePseudoAttrs(data []byte) map[string]string {
	out := make(map[string]string, 3)
	i := 0
	for i < len(data) {
		for i < len(data) && (data[i] == ' ' || data[i] == '\t' || data[i] == '\r' || data[i] == '\n') {
			i++
		}
		start := i
		for i < len(data) && data[i] != '=' && data[i] != ' ' {
			i++
		}
		name := string(data[start:i])
		for i < len(data) && data[i] != '=' {
			i++
		}
		if i >= len(data) {
			break
		}
		i++ // '='
		for i < len(data) && (data[i] == ' ' || data[i] == '\t') {
			i++
		}
		if i >= len(data) || (data[i] != '"' && data[i] != '\'') {
			break
		}
		quote := data[i]
		i++
		vstart := i
		for i < len(data) && data[i] != quote {
			i++
		}
		if name != "" {
			out[name] = string(data[vstart:i])
		}
		if i < len(data) {
			i++
		}
	}
	return out
}

func (t *Tokenizer) stepXMLDeclBody(isEOF bool) error {
	data, found, needMore := t.scanUntil("?>")
	if needMore {
		return nil
	}
	if !found {
		return t.emitFatal(t.fatalErr("GNZ-XML-DECL", "unterminated XML declaration"))
	}
	attrs := parsePseudoAttrs(data)
	switch attrs["version"] {
	case "1.0":
	case "1.1":
		t.xml11 = true
	default:
		return t.emitFatal(t.fatalErr("GNZ-XML-DECL", "missing or unsupported XML declaration version"))
	}
	if err := t.emitTok(Token{Kind: XMLDecl, Data: data}); err != nil {
		return err
	}
	t.state = t.returnState
	return nil
}

// --- DOCTYPE -----------------------------------------------------------------

func (t *Tokenizer) stepDoctypeDeclName(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated DOCTYPE declaration"))
	}
	if len(t.nameBuf) == 0 {
		if chars.IsWhitespace(r) {
			t.advance(size)
			return nil
		}
		if !chars.IsNameStartChar(r) {
			return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "expected root element name"))
		}
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if chars.IsNameChar(r) {
		t.nameBuf = appendRune(t.nameBuf, r)
		t.advance(size)
		return nil
	}
	if err := t.emitTok(Token{Kind: DoctypeName, Name: t.nameBuf}); err != nil {
		return err
	}
	t.state = stateDoctypeDeclAfterName
	return nil
}

func (t *Tokenizer) stepDoctypeDeclAfterName(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated DOCTYPE declaration"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	if matched, needMore := t.tryConsumeLiteral("SYSTEM"); needMore {
		return nil
	} else if matched {
		t.extKind = 'S'
		t.extPhase = 0
		t.state = stateDoctypeExternalID
		return nil
	}
	if matched, needMore := t.tryConsumeLiteral("PUBLIC"); needMore {
		return nil
	} else if matched {
		t.extKind = 'P'
		t.extPhase = 0
		t.state = stateDoctypeExternalID
		return nil
	}
	switch r {
	case '[':
		t.advance(size)
		if err := t.emitTok(Token{Kind: DoctypeSubsetStart}); err != nil {
			return err
		}
		t.state = stateDTDIntSubset
		return nil
	case '>':
		t.advance(size)
		if err := t.emitTok(Token{Kind: DoctypeEnd}); err != nil {
			return err
		}
		t.state = statePrologAfterDoctype
		return nil
	}
	return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "malformed DOCTYPE declaration"))
}

func (t *Tokenizer) stepDoctypeExternalID(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated external identifier"))
	}
	switch t.extPhase {
	case 0:
		if chars.IsWhitespace(r) {
			t.advance(size)
			return nil
		}
		if r != '"' && r != '\'' {
			return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "expected quoted literal"))
		}
		t.curAttrQuote = r
		t.advance(size)
		t.genericBuf = nil
		t.extPhase = 1
		return nil
	case 1:
		if r == t.curAttrQuote {
			t.advance(size)
			lit := t.genericBuf
			t.genericBuf = nil
			if t.extKind == 'S' {
				if err := t.emitTok(Token{Kind: DoctypeSystemID, Data: lit}); err != nil {
					return err
				}
				t.extPhase = 9
			} else {
				if err := t.emitTok(Token{Kind: DoctypePublicID, Data: lit}); err != nil {
					return err
				}
				t.extPhase = 2
			}
			return nil
		}
		t.genericBuf = appendRune(t.genericBuf, r)
		t.advance(size)
		return nil
	case 2:
		if chars.IsWhitespace(r) {
			t.advance(size)
			return nil
		}
		if r != '"' && r != '\'' {
			return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "expected quoted system literal"))
		}
		t.curAttrQuote = r
		t.advance(size)
		t.genericBuf = nil
		t.extPhase = 3
		return nil
	case 3:
		if r == t.curAttrQuote {
			t.advance(size)
			lit := t.genericBuf
			t.genericBuf = nil
			if err := t.emitTok(Token{Kind: DoctypeSystemID, Data: lit}); err != nil {
				return err
			}
			t.extPhase = 9
			return nil
		}
		t.genericBuf = appendRune(t.genericBuf, r)
		t.advance(size)
		return nil
	default: // 9: external identifier fully read, redispatch to decide '[' vs '>'
		t.extPhase = 0
		t.state = stateDoctypeDeclAfterName
		return nil
	}
}

func (t *Tokenizer) stepDTDIntSubset(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated internal subset"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	switch r {
	case ']':
		t.advance(size)
		if err := t.emitTok(Token{Kind: DoctypeSubsetEnd}); err != nil {
			return err
		}
		t.state = stateDoctypeAfterSubset
		return nil
	case '%':
		t.advance(size)
		t.refIsParam = true
		t.refPhase = 0
		t.refReturnState = stateDTDIntSubset
		t.state = stateRef
		return nil
	case '<':
		t.advance(size)
		t.returnState = stateDTDIntSubset
		t.state = stateDTDTagOpen
		return nil
	default:
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unexpected character in internal subset"))
	}
}

func (t *Tokenizer) stepDTDTagOpen(r rune, size int, isEOF bool) error {
	if isEOF || r != '!' {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "expected markup declaration"))
	}
	t.advance(size)
	t.state = stateDTDBang
	return nil
}

func (t *Tokenizer) stepDTDBang(r rune, size int, isEOF bool) error {
	if matched, needMore := t.tryConsumeLiteral("--"); needMore {
		return nil
	} else if matched {
		t.genericBuf = nil
		t.state = stateCommentBody
		return nil
	}
	for _, kw := range []struct {
		lit  string
		kind Kind
	}{
		{"ELEMENT", ElementDecl},
		{"ATTLIST", AttlistDecl},
		{"ENTITY", EntityDecl},
		{"NOTATION", NotationDecl},
	} {
		if matched, needMore := t.tryConsumeLiteral(kw.lit); needMore {
			return nil
		} else if matched {
			t.markupDeclKind = kw.kind
			t.genericBuf = nil
			t.curAttrQuote = 0
			t.state = stateDTDMarkupDecl
			return nil
		}
	}
	return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unrecognized markup declaration"))
}

func (t *Tokenizer) stepDTDMarkupDecl(isEOF bool) error {
	for {
		r, size, ok := t.peekRune()
		if !ok {
			return nil
		}
		if size == 0 {
			return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated markup declaration"))
		}
		if t.curAttrQuote != 0 {
			if r == t.curAttrQuote {
				t.curAttrQuote = 0
			}
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
			continue
		}
		switch r {
		case '"', '\'':
			t.curAttrQuote = r
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
		case '>':
			t.advance(size)
			data := t.genericBuf
			t.genericBuf = nil
			if err := t.emitTok(Token{Kind: t.markupDeclKind, Data: data}); err != nil {
				return err
			}
			t.state = stateDTDIntSubset
			return nil
		default:
			t.genericBuf = appendRune(t.genericBuf, r)
			t.advance(size)
		}
	}
}

func (t *Tokenizer) stepDoctypeAfterSubset(r rune, size int, isEOF bool) error {
	if isEOF {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "unterminated DOCTYPE declaration"))
	}
	if chars.IsWhitespace(r) {
		t.advance(size)
		return nil
	}
	if r != '>' {
		return t.emitFatal(t.fatalErr("GNZ-XML-DOCTYPE", "expected '>' to close DOCTYPE declaration"))
	}
	t.advance(size)
	if err := t.emitTok(Token{Kind: DoctypeEnd}); err != nil {
		return err
	}
	t.state = statePrologAfterDoctype
	return nil
}
