package content

import (
	"strings"
	"testing"
)

// recordingHandler captures every event as a printable line so tests can
// assert exact event sequences.
type recordingHandler struct {
	BaseHandler
	events []string
	text   strings.Builder
}

// flush folds buffered character runs into one logical text event, so
// tests see whole runs regardless of how the tokenizer split them.
func (h *recordingHandler) flush() {
	if h.text.Len() > 0 {
		h.events = append(h.events, "characters("+h.text.String()+")")
		h.text.Reset()
	}
}

func (h *recordingHandler) add(s string) {
	h.flush()
	h.events = append(h.events, s)
}

func (h *recordingHandler) StartDocument() error { h.add("startDocument"); return nil }
func (h *recordingHandler) EndDocument() error   { h.add("endDocument"); return nil }

func (h *recordingHandler) StartElement(name QName, attrs []Attribute) error {
	s := "startElement(" + name.String()
	for _, a := range attrs {
		s += " " + a.Name.String() + "=" + a.Value
	}
	h.add(s + ")")
	return nil
}

func (h *recordingHandler) EndElement(name QName) error {
	h.add("endElement(" + name.String() + ")")
	return nil
}

func (h *recordingHandler) Characters(text []byte) error {
	h.text.Write(text)
	return nil
}

func (h *recordingHandler) StartPrefixMapping(prefix, uri string) error {
	h.add("startPrefixMapping(" + prefix + "," + uri + ")")
	return nil
}

func (h *recordingHandler) EndPrefixMapping(prefix string) error {
	h.add("endPrefixMapping(" + prefix + ")")
	return nil
}

func (h *recordingHandler) SkippedEntity(name string) error {
	h.add("skippedEntity(" + name + ")")
	return nil
}

func parseString(t *testing.T, xml string, opts Options) (*recordingHandler, error) {
	t.Helper()
	h := &recordingHandler{}
	p := New(h, opts)
	err := p.Parse(strings.NewReader(xml))
	h.flush()
	return h, err
}

func assertEvents(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event count = %d, want %d:\n got: %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

// Entity round-trip in content: nested internal entities expand into one
// normalized character run.
func TestEntityRoundTrip(t *testing.T) {
	xml := `<?xml version='1.0'?><!DOCTYPE r [<!ENTITY inner "INNER"><!ENTITY outer "before &inner; after">]><r>&outer;</r>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startElement(r)",
		"characters(before INNER after)",
		"endElement(r)",
		"endDocument",
	)
}

// Namespace resolution: two prefixes bound to one URI resolve equal.
func TestNamespaceResolution(t *testing.T) {
	xml := `<r xmlns:a="u1" xmlns:b="u1"><a:x/><b:x/></r>`
	var starts []QName
	p := New(&qnameCollector{starts: &starts}, DefaultOptions())
	if err := p.Parse(strings.NewReader(xml)); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(starts) != 3 {
		t.Fatalf("expected 3 startElement events, got %d", len(starts))
	}
	ax, bx := starts[1], starts[2]
	if ax.URI != "u1" || bx.URI != "u1" {
		t.Errorf("URIs = %q, %q, want u1", ax.URI, bx.URI)
	}
	if !ax.Equal(bx) {
		t.Error("a:x and b:x should compare equal ignoring prefix")
	}
}

type qnameCollector struct {
	BaseHandler
	starts *[]QName
}

func (c *qnameCollector) StartElement(name QName, attrs []Attribute) error {
	*c.starts = append(*c.starts, name)
	return nil
}

// Prefix mappings are symmetric around their element.
func TestPrefixMappingSymmetry(t *testing.T) {
	xml := `<r xmlns:a="u1"><a:x xmlns:b="u2"/></r>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startPrefixMapping(a,u1)",
		"startElement(r)",
		"startPrefixMapping(b,u2)",
		"startElement(a:x)",
		"endElement(a:x)",
		"endPrefixMapping(b)",
		"endElement(r)",
		"endPrefixMapping(a)",
		"endDocument",
	)
}

// Start/end element events pair in balanced nesting order.
func TestBalancedEvents(t *testing.T) {
	xml := `<a><b><c/></b><b/></a>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	depth := 0
	for _, ev := range h.events {
		if strings.HasPrefix(ev, "startElement") {
			depth++
		}
		if strings.HasPrefix(ev, "endElement") {
			depth--
			if depth < 0 {
				t.Fatalf("unbalanced events: %v", h.events)
			}
		}
	}
	if depth != 0 {
		t.Fatalf("unclosed elements: %v", h.events)
	}
}

func TestDuplicateAttributeFatal(t *testing.T) {
	_, err := parseString(t, `<r a="1" a="2"/>`, DefaultOptions())
	if err == nil {
		t.Fatal("expected a duplicate-attribute error")
	}
}

// Duplicate after prefix resolution: different prefixes, same URI and
// local name.
func TestDuplicateAttributeAfterResolution(t *testing.T) {
	xml := `<r xmlns:a="u1" xmlns:b="u1" a:x="1" b:x="2"/>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected a duplicate-attribute error after namespace expansion")
	}
}

func TestAttributeValueNormalization(t *testing.T) {
	h, err := parseString(t, "<r a=\"x\ty\nz\"/>", DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startElement(r a=x y z)",
		"endElement(r)",
		"endDocument",
	)
}

// Non-CDATA attribute types collapse space runs and trim; CDATA keeps
// the spaces.
func TestAttlistNonCDATANormalization(t *testing.T) {
	xml := `<!DOCTYPE r [<!ATTLIST r tok NMTOKENS #IMPLIED raw CDATA #IMPLIED>]>` +
		`<r tok="  a   b  " raw="  a   b  "/>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startElement(r tok=a b raw=  a   b  )",
		"endElement(r)",
		"endDocument",
	)
}

func TestAttlistFirstDeclarationWins(t *testing.T) {
	xml := `<!DOCTYPE r [<!ATTLIST r a CDATA #IMPLIED><!ATTLIST r a NMTOKEN #IMPLIED>]>` +
		`<r a=" x  y "/>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startElement(r a= x  y )",
		"endElement(r)",
		"endDocument",
	)
}

func TestAttlistEnumerationCollapses(t *testing.T) {
	xml := `<!DOCTYPE r [<!ATTLIST r kind (big|small) "big">]><r kind=" big "/>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	assertEvents(t, h.events,
		"startDocument",
		"startElement(r kind=big)",
		"endElement(r)",
		"endDocument",
	)
}

func TestUndeclaredEntityFatal(t *testing.T) {
	_, err := parseString(t, `<r>&nosuch;</r>`, DefaultOptions())
	if err == nil {
		t.Fatal("expected an undeclared-entity error")
	}
}

func TestEntityCycleFatal(t *testing.T) {
	xml := `<!DOCTYPE r [<!ENTITY a "&b;"><!ENTITY b "&a;">]><r>&a;</r>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected a circular-reference error")
	}
	if !strings.Contains(err.Error(), "GNZ-ENT-CYCLE") {
		t.Errorf("error should carry the cycle code, got %v", err)
	}
}

func TestSelfReferentialEntityFatal(t *testing.T) {
	xml := `<!DOCTYPE r [<!ENTITY a "x &a; y">]><r>&a;</r>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected a circular-reference error")
	}
}

// Unparsed entities never expand as text.
func TestUnparsedEntityInContentFatal(t *testing.T) {
	xml := `<!DOCTYPE r [<!NOTATION gif SYSTEM "gif"><!ENTITY pic SYSTEM "p.gif" NDATA gif>]><r>&pic;</r>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected an unparsed-entity error")
	}
}

// External entities in content are skipped while resolution is disabled.
func TestExternalEntitySkipped(t *testing.T) {
	xml := `<!DOCTYPE r [<!ENTITY ext SYSTEM "http://x/e.xml">]><r>a&ext;b</r>`
	h, err := parseString(t, xml, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := false
	for _, ev := range h.events {
		if ev == "skippedEntity(ext)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected skippedEntity(ext) in %v", h.events)
	}
}

// An external entity reference in an attribute value is fatal, unlike
// the content-context skip.
func TestExternalEntityInAttributeFatal(t *testing.T) {
	xml := `<!DOCTYPE r [<!ENTITY ext SYSTEM "http://x/e.xml">]><r a="&ext;"/>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected a fatal error for an external reference in an attribute value")
	}
	if !strings.Contains(err.Error(), "GNZ-ENT-EXTERNAL") {
		t.Errorf("error should carry the external-entity code, got %v", err)
	}
}

// The entity-expansion depth limit bounds runaway nesting.
func TestExpansionDepthLimit(t *testing.T) {
	var decls strings.Builder
	decls.WriteString(`<!ENTITY e0 "x">`)
	for i := 1; i <= 30; i++ {
		decls.WriteString(`<!ENTITY e` + itoa(i) + ` "&e` + itoa(i-1) + `;">`)
	}
	xml := `<!DOCTYPE r [` + decls.String() + `]><r>&e30;</r>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected a depth-limit error")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestElementClosedAcrossEntityBoundaryFatal(t *testing.T) {
	// An element opened inside an entity expansion must close there too.
	xml := `<!DOCTYPE r [<!ENTITY open "<x>">]><r>&open;</x></r>`
	_, err := parseString(t, xml, DefaultOptions())
	if err == nil {
		t.Fatal("expected an expansion-boundary error")
	}
}

func TestHandlerErrorCancels(t *testing.T) {
	h := &cancelingHandler{stopAt: "b"}
	p := New(h, DefaultOptions())
	err := p.Parse(strings.NewReader(`<a><b/><c/></a>`))
	if err == nil {
		t.Fatal("expected the handler error to propagate")
	}
	if h.sawC {
		t.Error("no events may fire after the handler requested cancellation")
	}
}

type cancelingHandler struct {
	BaseHandler
	stopAt string
	sawC   bool
}

type stopError struct{}

func (stopError) Error() string { return "stop" }

func (h *cancelingHandler) StartElement(name QName, attrs []Attribute) error {
	if name.Local == "c" {
		h.sawC = true
	}
	if name.Local == h.stopAt {
		return stopError{}
	}
	return nil
}

func TestXMLPrefixAlwaysBound(t *testing.T) {
	var starts []QName
	p := New(&qnameCollector{starts: &starts}, DefaultOptions())
	if err := p.Parse(strings.NewReader(`<r xml:lang="en"/>`)); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(starts) != 1 {
		t.Fatalf("expected 1 element, got %d", len(starts))
	}
}

func TestNamespacePrefixesReported(t *testing.T) {
	opts := DefaultOptions()
	opts.NamespacePrefixes = true
	h, err := parseString(t, `<r xmlns:a="u1"/>`, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := false
	for _, ev := range h.events {
		if strings.Contains(ev, "xmlns:a=u1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected xmlns:a reported as an attribute in %v", h.events)
	}
}
