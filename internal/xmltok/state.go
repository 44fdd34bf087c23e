package xmltok

// state is the tokenizer's lexer state (spec.md §4.1 "States"). Several
// constructs (comments, CDATA, PI bodies) are scanned by searching the
// already-buffered frame for their terminator rather than by tracking a
// separate state per partially-seen terminator character; this keeps the
// state enum to the states spec.md names while remaining exactly as
// resumable, since a terminator not yet found simply leaves state
// unchanged until the next Feed supplies more bytes.
type state int

const (
	statePrologBeforeDoctype state = iota
	statePrologAfterDoctype
	stateContent
	stateTagOpen        // just saw '<'
	stateTagOpenBang     // just saw "<!", deciding comment/CDATA/DOCTYPE
	stateStartTagName
	stateStartTagAttrs
	stateAttrName
	stateAttrEquals
	stateAttrValueSQuote
	stateAttrValueDQuote
	stateStartTagSlash // just saw '/' in a start tag, expecting '>' for the empty-element form
	stateRef // mid "&...;" or "%...;" reference; refReturnState says where to resume
	stateEndTagName
	stateEndTagTrailingWS
	stateCDATABody
	stateCommentBody
	statePITarget
	statePITargetWS // skipping whitespace between a PI/XMLDecl target and its body
	statePIBody
	stateXMLDeclBody
	stateDoctypeDecl          // reading the Name following <!DOCTYPE
	stateDoctypeDeclAfterName // deciding ExternalID / internal subset / '>'
	stateDoctypeExternalID    // reading SYSTEM/PUBLIC literal(s)
	stateDTDIntSubset         // inside the '[' ... ']' internal subset
	stateDTDTagOpen           // saw '<' inside the internal subset, expecting '!'
	stateDTDBang              // saw '<!' inside the internal subset, deciding comment/markup decl
	stateDTDMarkupDecl        // inside <!ELEMENT|ATTLIST|ENTITY|NOTATION ...>, scanning to the closing '>'
	stateDoctypeAfterSubset   // saw ']', expecting whitespace* '>'
	stateEpilog
	stateDone
)
