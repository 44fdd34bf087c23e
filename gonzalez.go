// Package gonzalez is a streaming XML parser with an XPath expression
// compiler. Documents are tokenized incrementally and delivered either
// through SAX-style callbacks (the content package) or, via Parser, as a
// channel of materialized XMLElement subtrees selected by name. XPath
// expressions compile to a shareable AST (the xpath package) for an
// external evaluation engine.
package gonzalez

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/cpkb-bluezoo/gonzalez-sub008/content"
	"github.com/cpkb-bluezoo/gonzalez-sub008/internal/decoder"
	"github.com/cpkb-bluezoo/gonzalez-sub008/xpath"
)

// Parser provides streaming XML parsing with selective element
// materialization. One Parser parses one document.
type Parser struct {
	ctx         context.Context
	reader      io.Reader
	streamNames map[string]bool // specific element names to stream
	bufferSize  int
	opts        Options
	once        sync.Once
	ch          chan *XMLElement

	mu  sync.Mutex
	err error
}

// NewParser creates a new XML parser.
// streamNames: specific element names to stream (pass nil or empty slice to stream nothing)
// bufferSize: channel buffer size for streaming (pass 0 to use default of 8)
func NewParser(ctx context.Context, reader io.Reader, streamNames []string, bufferSize int, opts ...Option) *Parser {
	if bufferSize <= 0 {
		bufferSize = 8
	}

	p := &Parser{
		ctx:        ctx,
		reader:     reader,
		bufferSize: bufferSize,
		opts:       buildOptions(opts),
	}

	if len(streamNames) > 0 {
		p.streamNames = make(map[string]bool)
		for _, name := range streamNames {
			p.streamNames[name] = true
		}
	}

	return p
}

// Stream returns a channel of XMLElements as they are parsed.
// It is safe to call multiple times — subsequent calls return the same channel.
func (p *Parser) Stream() <-chan *XMLElement {
	p.once.Do(func() {
		p.ch = make(chan *XMLElement, p.bufferSize)
		go func() {
			defer close(p.ch)
			p.parse(p.ch)
		}()
	})
	return p.ch
}

// Err returns the first fatal error the parse encountered, available once
// the Stream channel has closed. Context cancellation is not an error.
func (p *Parser) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Parser) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// cancelError unwinds the parse when the caller's context is done; it is
// swallowed before Err reports.
type cancelError struct{}

func (cancelError) Error() string { return "parse canceled" }

func (p *Parser) parse(ch chan<- *XMLElement) {
	h := &domHandler{p: p, ch: ch, stack: make([]*XMLElement, 0, 32)}
	cp := content.New(h, p.opts.inner)
	if err := cp.Parse(declaredEncodingReader(p.reader)); err != nil {
		if _, canceled := err.(cancelError); !canceled {
			p.setErr(err)
			if log := p.opts.inner.Logger; log != nil {
				log.WithError(err).Error("parse failed")
			}
		}
	}
}

// declaredEncodingReader wraps r so the tokenizer always sees UTF-8: the
// head of the stream is sniffed for a BOM and the XML declaration's
// encoding= attribute, and the matching decoder is switched in before the
// remaining bytes flow through.
func declaredEncodingReader(r io.Reader) io.Reader {
	d := decoder.New()
	head := make([]byte, 1024)
	n, _ := io.ReadFull(r, head)
	head = head[:n]
	if name, ok := decoder.SniffDeclaredEncoding(head); ok {
		// An unknown declared encoding is ignored: no error is reported
		// and the decoder simply stays on UTF-8.
		_ = d.SwitchEncoding(name)
	}
	return decoder.NewReader(io.MultiReader(bytes.NewReader(head), r), d)
}

// domHandler assembles content-parser events into pooled XMLElement
// subtrees and streams the selected ones.
type domHandler struct {
	content.BaseHandler
	p  *Parser
	ch chan<- *XMLElement

	stack     []*XMLElement
	pendingNS map[string]string
}

func (h *domHandler) StartPrefixMapping(prefix, uri string) error {
	if h.pendingNS == nil {
		h.pendingNS = make(map[string]string, 2)
	}
	h.pendingNS[prefix] = uri
	return nil
}

func (h *domHandler) StartElement(name content.QName, attrs []content.Attribute) error {
	if h.p.ctx.Err() != nil {
		return cancelError{}
	}

	// Build the namespace context: copy-and-merge only when this element
	// declares something new, otherwise share the parent's map.
	var parentNS map[string]string
	if len(h.stack) > 0 {
		parentNS = h.stack[len(h.stack)-1].namespaces
	}
	nsContext := parentNS
	if len(h.pendingNS) > 0 {
		nsContext = make(map[string]string, len(parentNS)+len(h.pendingNS))
		for k, v := range parentNS {
			nsContext[k] = v
		}
		for k, v := range h.pendingNS {
			nsContext[k] = v
		}
		h.pendingNS = nil
	}

	elem := getElementFromPool()
	elem.Name = name.String()
	elem.localName = name.Local
	elem.prefix = name.Prefix
	elem.namespaceURI = name.URI
	elem.namespaces = nsContext

	if len(attrs) > 0 {
		if cap(elem.Attributes) >= len(attrs) {
			elem.Attributes = elem.Attributes[:0]
		} else {
			elem.Attributes = make([]XMLAttribute, 0, len(attrs))
		}
		for _, a := range attrs {
			elem.Attributes = append(elem.Attributes, XMLAttribute{Name: a.Name.String(), Value: a.Value})
		}
	}

	if len(h.stack) > 0 {
		parent := h.stack[len(h.stack)-1]
		elem.parent = parent
		elem.siblingIndex = len(parent.children)
		parent.children = append(parent.children, elem)
	}
	h.stack = append(h.stack, elem)
	return nil
}

func (h *domHandler) EndElement(name content.QName) error {
	if len(h.stack) == 0 {
		return nil
	}
	elem := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return h.streamIfSelected(elem)
}

func (h *domHandler) streamIfSelected(elem *XMLElement) error {
	if len(h.p.streamNames) == 0 || !h.p.streamNames[elem.Name] {
		// Non-streamed elements stay in memory as children of their
		// parent and are returned to the pool when the parent is
		// released.
		return nil
	}
	elem.parent = nil // detach for streaming
	select {
	case h.ch <- elem:
		return nil
	case <-h.p.ctx.Done():
		return cancelError{}
	}
}

func (h *domHandler) Characters(text []byte) error {
	h.appendContent(text, xpath.TextNode)
	return nil
}

func (h *domHandler) Comment(text []byte) error {
	h.appendContent(text, xpath.CommentNode)
	return nil
}

// appendContent records a text or comment run as offsets into the parent
// element's rawContent buffer for zero-copy access.
func (h *domHandler) appendContent(text []byte, nodeType xpath.NodeType) {
	if len(h.stack) == 0 || len(text) == 0 {
		return
	}
	parent := h.stack[len(h.stack)-1]
	node := getContentNodeFromPool()
	node.start = len(parent.rawContent)
	parent.rawContent = append(parent.rawContent, text...)
	node.end = len(parent.rawContent)
	node.nodeType = nodeType
	node.parent = parent
	node.siblingIndex = len(parent.children)
	parent.children = append(parent.children, node)
}
