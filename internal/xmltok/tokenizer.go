package xmltok

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Limits bounds the tokenizer's resource usage against malicious or
// pathological input (spec.md §4.1 "Bounds / DoS").
type Limits struct {
	MaxExpansionDepth int // default 20
	MaxExpandedChars  int // billion-laughs guard, per entity reference
	MaxAttrValueLen   int // not enforced: attribute values are never length-checked
}

// DefaultLimits returns the limits spec.md §4.1 names as defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxExpansionDepth: 20,
		MaxExpandedChars:  1 << 20,
		MaxAttrValueLen:   0,
	}
}

// EmitFunc receives each token as the tokenizer produces it. Returning a
// non-nil error stops tokenization after the current token (spec.md §5
// "Cancellation").
type EmitFunc func(Token) error

// frame is one entry in the entity-expansion input-frame stack (spec.md
// §4.1 "Entity expansion policy"). Frame 0 is always the caller's own fed
// bytes; frames above it hold an entity's replacement text.
type frame struct {
	buf  []byte
	pos  int
	name string // entity name this frame expands, "" for the root frame
}

// Tokenizer is a resumable, character-driven XML tokenizer (spec.md §4.1).
// One Tokenizer parses exactly one document; it is not safe for concurrent
// use (spec.md §5 "Scheduling model").
type Tokenizer struct {
	frames []frame
	state  state
	xml11  bool
	atEOF  bool

	limits        Limits
	expandedChars int

	emit EmitFunc

	nameBuf      []byte // element/attribute/PI-target/doctype name currently being scanned
	genericBuf   []byte // scratch for chardata/attr-value/literal accumulation
	curAttrName  []byte
	curAttrQuote rune // quote character currently being scanned (attr value, external ID literal, DTD decl)
	attrEqSeen   bool // mid stateAttrEquals: '=' already consumed, now seeking the opening quote
	pendingEndName []byte
	piIsXMLDecl  bool // mid statePITargetWS: the PI target was "xml", heading for stateXMLDeclBody

	returnState    state // content-like state to resume after a comment/PI/CDATA/tag
	refReturnState state // state to resume after a reference completes
	refIsParam     bool  // true while reading a "%name;" parameter-entity reference
	refPhase       int   // stateRef progress: 0 start, 1 after '#', 2 charref digits, 3 name chars
	refHex         bool  // charref is the &#x...; hexadecimal form

	// suspended is raised by a step that needs bytes beyond the buffered
	// input to make progress even though the buffer is not empty (a
	// partially seen multi-character literal or terminator); run returns
	// to the caller until the next Feed.
	suspended bool

	markupDeclKind Kind // ElementDecl/AttlistDecl/EntityDecl/NotationDecl for the declaration being scanned

	doctypeSeen bool
	extKind     byte // 'S' (SYSTEM) or 'P' (PUBLIC), while reading an ExternalID
	extPhase    int

	docSeenAny bool // any construct tokenized yet (gates the XML declaration's "must be first" rule)

	rootSeen bool // root element start tag has been opened (prolog vs. epilog)
	depth    int  // open-element nesting depth, to know when the root element closes

	byteOffset int // cumulative bytes consumed from frame 0, for Position reporting
	line, col  int
}

// New returns a Tokenizer ready to receive the start of a document.
func New(emit EmitFunc, limits Limits) *Tokenizer {
	return &Tokenizer{
		frames: []frame{{}},
		state:  statePrologBeforeDoctype,
		emit:   emit,
		limits: limits,
		line:   1,
		col:    1,
	}
}

// SetXML11 switches on the wider XML 1.1 character classes (spec.md §6.3
// "xml-1.1"). The content parser calls it at construction from its options;
// an XML declaration with version="1.1" also switches them on by itself.
func (t *Tokenizer) SetXML11(v bool) { t.xml11 = v }

// ExpansionDepth returns the current entity-expansion nesting depth: 0
// while tokenizing the caller's own bytes, N while inside N nested
// internal-entity expansions (spec.md §3.3 "the entity-expansion depth at
// which it was opened").
func (t *Tokenizer) ExpansionDepth() int {
	return len(t.frames) - 1
}

// InExpansion reports whether an expansion frame for the named entity is
// still active: a reference to such a name is a circular reference. The
// active frames are exactly the set of names being expanded, so they
// double as the cycle-detection stack.
func (t *Tokenizer) InExpansion(name string) bool {
	for i := 1; i < len(t.frames); i++ {
		if t.frames[i].name == name {
			return true
		}
	}
	return false
}

// PushExpansion pushes a new input frame sourcing text as the replacement
// of the named entity, internal or resolved external (spec.md §4.1 "Entity
// expansion policy").
// The caller (the content parser, which owns the entity table per spec.md
// §4.2) checks cycles via InExpansion before pushing; PushExpansion only
// enforces the tokenizer's own depth and size bounds.
func (t *Tokenizer) PushExpansion(name string, text []byte) error {
	if t.limits.MaxExpansionDepth > 0 && t.ExpansionDepth() >= t.limits.MaxExpansionDepth {
		return t.fatalErr("GNZ-XML-ENTDEPTH", fmt.Sprintf("entity expansion depth exceeds %d", t.limits.MaxExpansionDepth))
	}
	if t.ExpansionDepth() == 0 {
		// A reference in the caller's own text starts a fresh count.
		t.expandedChars = 0
	}
	t.expandedChars += len(text)
	if t.limits.MaxExpandedChars > 0 && t.expandedChars > t.limits.MaxExpandedChars {
		return t.fatalErr("GNZ-XML-ENTSIZE", fmt.Sprintf("entity expansion exceeds %d characters", t.limits.MaxExpandedChars))
	}
	t.frames = append(t.frames, frame{buf: text, name: name})
	return nil
}

// Feed appends data to the tokenizer's current input frame (always frame
// 0, the caller's own byte stream) and drives the state machine as far as
// it can go without requiring further input. It is safe to call Feed with
// arbitrarily small slices, including one byte at a time (spec.md §8
// testable property 6, "chunked-input stability").
func (t *Tokenizer) Feed(data []byte) error {
	root := &t.frames[0]
	root.buf = append(root.buf, data...)
	return t.run()
}

// Close signals end of input and drains any final token (an unterminated
// construct becomes a FATAL token; a clean epilog yields only the final EOF
// token).
func (t *Tokenizer) Close() error {
	t.atEOF = true
	return t.run()
}

// --- rune-level plumbing -------------------------------------------------

// cur returns the active (innermost) frame.
func (t *Tokenizer) cur() *frame {
	return &t.frames[len(t.frames)-1]
}

func (t *Tokenizer) atFrameEnd() bool {
	return t.cur().pos >= len(t.cur().buf)
}

// popExhaustedFrames pops any fully-consumed expansion frames above the
// root, so that scanning resumes in the parent context exactly where the
// entity reference occurred (spec.md §4.1 "On exhaustion, frame is
// popped").
func (t *Tokenizer) popExhaustedFrames() {
	for len(t.frames) > 1 && t.atFrameEnd() {
		t.frames = t.frames[:len(t.frames)-1]
	}
}

// peekRune looks at the next rune without consuming it. ok is false when
// more bytes are needed before a decision can be made (only possible on
// the root frame before Close).
func (t *Tokenizer) peekRune() (r rune, size int, ok bool) {
	t.popExhaustedFrames()
	f := t.cur()
	if f.pos >= len(f.buf) {
		if len(t.frames) == 1 && !t.atEOF {
			return 0, 0, false
		}
		return 0, 0, true // true EOF: no rune, but a decision can proceed
	}
	b := f.buf[f.pos:]
	r, size = utf8.DecodeRune(b)
	if r == utf8.RuneError && size == 1 {
		if len(t.frames) == 1 && !t.atEOF && len(b) < utf8.UTFMax {
			return 0, 0, false // might be a truncated multi-byte sequence
		}
	}
	return r, size, true
}

// advance consumes size bytes, the rune most recently returned by
// peekRune (or, from helpers operating on raw literals, a fixed count).
func (t *Tokenizer) advance(size int) {
	f := t.cur()
	wasRoot := len(t.frames) == 1
	f.pos += size
	if wasRoot {
		t.byteOffset += size
		for i := 0; i < size && f.pos-size+i < len(f.buf); i++ {
			if f.buf[f.pos-size+i] == '\n' {
				t.line++
				t.col = 1
			} else {
				t.col++
			}
		}
	}
}

func (t *Tokenizer) pos() Position {
	return Position{Byte: t.byteOffset, Line: t.line, Col: t.col}
}

func (t *Tokenizer) fatalErr(code, msg string) *FatalError {
	return &FatalError{Code: code, Message: msg, Pos: t.pos()}
}

func (t *Tokenizer) emitFatal(e error) error {
	t.state = stateDone
	_ = t.emit(Token{Kind: FATAL, Err: e, Pos: t.pos()})
	return e
}

// emitTok sends a well-formed token to the callback, stamping its position.
func (t *Tokenizer) emitTok(tok Token) error {
	tok.Pos = t.pos()
	return t.emit(tok)
}

// FatalError is a well-formedness or entity error that stops tokenization
// (spec.md §7 "Lexical / well-formedness errors").
type FatalError struct {
	Code    string
	Message string
	Pos     Position
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("xmltok: %s at byte %d: %s", e.Code, e.Pos.Byte, e.Message)
}

// tryConsumeLiteral attempts to consume the ASCII literal lit starting at
// the current position. needMore is true only when the root frame simply
// hasn't received enough bytes yet to decide (spec.md §4.1 "retains
// sufficient partial state to resume").
func (t *Tokenizer) tryConsumeLiteral(lit string) (matched, needMore bool) {
	f := t.cur()
	if f.pos+len(lit) > len(f.buf) {
		if len(t.frames) == 1 && !t.atEOF {
			t.suspended = true
			return false, true
		}
		return false, false
	}
	if string(f.buf[f.pos:f.pos+len(lit)]) != lit {
		return false, false
	}
	t.advance(len(lit))
	return true, false
}

// scanUntil searches the active frame, from the current position, for the
// literal terminator term. On success it returns the bytes before the
// terminator and consumes through the terminator. needMore is true only
// when the terminator might still arrive in a later Feed on the root
// frame; any other "not found" (EOF, or an exhausted expansion frame,
// which can never receive more bytes) is the caller's cue to raise an
// unterminated-construct error, since comments/CDATA/PI bodies are never
// split across an entity boundary.
func (t *Tokenizer) scanUntil(term string) (data []byte, found, needMore bool) {
	f := t.cur()
	rest := f.buf[f.pos:]
	idx := bytes.Index(rest, []byte(term))
	if idx >= 0 {
		data = rest[:idx]
		t.advance(idx + len(term))
		return data, true, false
	}
	if len(t.frames) == 1 && !t.atEOF {
		t.suspended = true
		return nil, false, true
	}
	return nil, false, false
}

func appendRune(buf []byte, r rune) []byte {
	return utf8.AppendRune(buf, r)
}

// --- the main loop ---------------------------------------------------------

// run drives the state machine until it either needs more input than is
// currently buffered, hits end of document, or the emit callback requests
// cancellation.
func (t *Tokenizer) run() error {
	for {
		if t.state == stateDone {
			return nil
		}
		r, size, ok := t.peekRune()
		if !ok {
			return nil // suspend: wait for the next Feed
		}
		isEOF := size == 0 && t.atFrameEnd() && len(t.frames) == 1

		var err error
		switch t.state {
		case statePrologBeforeDoctype, statePrologAfterDoctype, stateContent, stateEpilog:
			err = t.stepContentLike(r, size, isEOF)
		case stateTagOpen:
			err = t.stepTagOpen(r, size, isEOF)
		case stateTagOpenBang:
			err = t.stepTagOpenBang(r, size, isEOF)
		case stateStartTagName:
			err = t.stepTagName(r, size, isEOF, true)
		case stateEndTagName:
			err = t.stepTagName(r, size, isEOF, false)
		case stateEndTagTrailingWS:
			err = t.stepEndTagTrailingWS(r, size, isEOF)
		case stateStartTagAttrs:
			err = t.stepStartTagAttrs(r, size, isEOF)
		case stateAttrName:
			err = t.stepAttrName(r, size, isEOF)
		case stateAttrEquals:
			err = t.stepAttrEquals(r, size, isEOF)
		case stateAttrValueSQuote:
			err = t.stepAttrValue(r, size, isEOF, '\'')
		case stateAttrValueDQuote:
			err = t.stepAttrValue(r, size, isEOF, '"')
		case stateStartTagSlash:
			err = t.stepStartTagSlash(r, size, isEOF)
		case stateRef:
			err = t.stepRef(isEOF)
		case stateCDATABody:
			err = t.stepCDATABody(isEOF)
		case stateCommentBody:
			err = t.stepCommentBody(isEOF)
		case statePITarget:
			err = t.stepPITarget(r, size, isEOF)
		case statePITargetWS:
			err = t.stepPITargetWS(r, size, isEOF)
		case statePIBody:
			err = t.stepPIBody(isEOF)
		case stateXMLDeclBody:
			err = t.stepXMLDeclBody(isEOF)
		case stateDoctypeDecl:
			err = t.stepDoctypeDeclName(r, size, isEOF)
		case stateDoctypeDeclAfterName:
			err = t.stepDoctypeDeclAfterName(r, size, isEOF)
		case stateDoctypeExternalID:
			err = t.stepDoctypeExternalID(r, size, isEOF)
		case stateDTDIntSubset:
			err = t.stepDTDIntSubset(r, size, isEOF)
		case stateDTDTagOpen:
			err = t.stepDTDTagOpen(r, size, isEOF)
		case stateDTDBang:
			err = t.stepDTDBang(r, size, isEOF)
		case stateDTDMarkupDecl:
			err = t.stepDTDMarkupDecl(isEOF)
		case stateDoctypeAfterSubset:
			err = t.stepDoctypeAfterSubset(r, size, isEOF)
		default:
			err = t.emitFatal(t.fatalErr("GNZ-XML-INTERNAL", "unreachable tokenizer state"))
		}
		if err != nil {
			return err
		}
		if t.suspended {
			t.suspended = false
			return nil
		}
	}
}
