package xpath

import "fmt"

// SyntaxError reports a malformed expression. It carries the original
// expression, the character offset of the offending token, and a short
// machine code alongside the human message.
type SyntaxError struct {
	Code    string // e.g. "XPST0003"
	Expr    string
	Offset  int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xpath: %s at offset %d in %q: %s", e.Code, e.Offset, e.Expr, e.Message)
}

// StaticError reports a static (non-syntactic) compilation failure, kept
// distinct from SyntaxError so callers can tell a malformed expression
// from an unresolved reference. The parser reports one such case: an
// undeclared namespace prefix (XPST0081).
type StaticError struct {
	Code    string
	Expr    string
	Offset  int
	Message string
}

func (e *StaticError) Error() string {
	return fmt.Sprintf("xpath: %s at offset %d in %q: %s", e.Code, e.Offset, e.Expr, e.Message)
}
