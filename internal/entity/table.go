// Package entity implements the XML entity table (spec.md §3.4): general
// and parameter entity declarations, predefined-entity resolution, and
// cycle detection across nested expansion.
package entity

import "fmt"

// Kind distinguishes the three EntityDecl variants of spec.md §3.4.
type Kind int

const (
	// Internal entities carry an already-tokenized replacement: a sequence
	// of literal-text and nested-reference parts.
	Internal Kind = iota
	// ExternalParsed entities are resolved via (PublicID, SystemID) and
	// their replacement text is itself XML to be tokenized.
	ExternalParsed
	// ExternalUnparsed entities may only be referenced as the value of an
	// ENTITY/ENTITIES-typed attribute; they are never expanded as text.
	ExternalUnparsed
)

// Part is one piece of an Internal entity's pre-tokenized replacement
// text: either a literal run or a nested reference to another entity,
// expanded lazily when the outer entity itself is expanded.
type Part struct {
	Literal   string // valid when Ref == ""
	Ref       string // name of a nested general/parameter entity reference
	RefIsParam bool
}

// Decl is one entity declaration, general or parameter.
type Decl struct {
	Name     string
	Kind     Kind
	Parts    []Part // Internal
	PublicID string // ExternalParsed / ExternalUnparsed
	SystemID string // ExternalParsed / ExternalUnparsed
	Notation string // ExternalUnparsed only: the associated NDATA notation name
}

// IsUnparsed reports whether d may only be referenced from attribute
// values typed ENTITY/ENTITIES, never expanded as content.
func (d *Decl) IsUnparsed() bool {
	return d.Kind == ExternalUnparsed
}

var predefined = map[string]rune{
	"amp":  '&',
	"lt":   '<',
	"gt":   '>',
	"apos": '\'',
	"quot": '"',
}

// IsPredefined reports whether name is one of the five predefined general
// entities (spec.md §3.4) that are always resolvable regardless of the
// entity table's contents.
func IsPredefined(name string) (rune, bool) {
	r, ok := predefined[name]
	return r, ok
}

// Table holds the general and parameter entity maps for one document
// parse (spec.md §3.4, §5 "Shared resources").
type Table struct {
	general   map[string]*Decl
	parameter map[string]*Decl
}

// New returns an empty entity table.
func New() *Table {
	return &Table{
		general:   make(map[string]*Decl),
		parameter: make(map[string]*Decl),
	}
}

// DeclareGeneral registers a general entity declaration. Per spec.md §3.4
// ("names unique per map"), a second declaration of the same name is
// ignored — the XML recommendation mandates that the first binding wins.
func (t *Table) DeclareGeneral(d *Decl) {
	if _, exists := t.general[d.Name]; exists {
		return
	}
	t.general[d.Name] = d
}

// DeclareParameter registers a parameter entity declaration, subject to
// the same first-wins rule as DeclareGeneral.
func (t *Table) DeclareParameter(d *Decl) {
	if _, exists := t.parameter[d.Name]; exists {
		return
	}
	t.parameter[d.Name] = d
}

// LookupGeneral returns the general entity declaration named name, if any.
func (t *Table) LookupGeneral(name string) (*Decl, bool) {
	d, ok := t.general[name]
	return d, ok
}

// LookupParameter returns the parameter entity declaration named name, if
// any.
func (t *Table) LookupParameter(name string) (*Decl, bool) {
	d, ok := t.parameter[name]
	return d, ok
}

// Error reports an entity-related fatal condition: undeclared reference,
// circular reference, or a resolution policy violation (spec.md §7
// "Entity errors").
type Error struct {
	Code    string
	Name    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("entity: %s (%s): %s", e.Name, e.Code, e.Message)
}

func newError(code, name, message string) *Error {
	return &Error{Code: code, Name: name, Message: message}
}

// ErrUndeclared builds the fatal error for a reference to a name absent
// from the relevant map.
func ErrUndeclared(name string, isParam bool) *Error {
	kind := "general"
	if isParam {
		kind = "parameter"
	}
	return newError("GNZ-ENT-UNDECL", name, fmt.Sprintf("undeclared %s entity", kind))
}

// ErrUnparsedInContent builds the fatal error for referencing an unparsed
// entity from content or an attribute value (spec.md §4.2, §8 "Unparsed
// entity referenced from content or attribute value → fatal").
func ErrUnparsedInContent(name string) *Error {
	return newError("GNZ-ENT-UNPARSED", name, "unparsed entity cannot be referenced as text")
}

// ErrExternalForbidden builds the fatal error for an external entity
// reference in an attribute value, where external references are never
// legal (content-context external references are handled instead via
// skippedEntity when resolution is disabled, spec.md §8).
func ErrExternalForbidden(name string) *Error {
	return newError("GNZ-ENT-EXTERNAL", name, "external entity reference not permitted in attribute value")
}

// ErrCycle builds the fatal error for a reference to an entity that is
// already being expanded (spec.md §9 "Entity table with cycle
// detection"): the set of names in flight is tracked by the tokenizer's
// expansion-frame stack, and a reference to a name on it is a cycle.
func ErrCycle(name string) *Error {
	return newError("GNZ-ENT-CYCLE", name, "circular entity reference")
}
