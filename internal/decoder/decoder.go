// Package decoder converts a stream of declared-encoding byte buffers into
// a stream of UTF-8 character buffers, honoring a leading BOM and the XML
// declaration's encoding= attribute for switch-over (spec.md §2
// "Byte→character decoder").
package decoder

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder incrementally re-encodes a declared-encoding byte stream to
// UTF-8. It starts out assuming UTF-8 (with BOM override) and switches to
// the declared encoding the first time SwitchEncoding is called with the
// name parsed out of the XML declaration.
type Decoder struct {
	r           transform.Transformer
	initialized bool
	pending     []byte // unconsumed bytes buffered before the declared encoding was known
}

// New returns a Decoder that assumes UTF-8 until SwitchEncoding is called.
func New() *Decoder {
	return &Decoder{r: unicode.BOMOverride(encoding.Nop.NewDecoder())}
}

// SwitchEncoding reconfigures the decoder to use the named encoding
// (typically the value of the XML declaration's encoding= attribute) for
// all subsequent input. Re-decoding of bytes already buffered is the
// caller's responsibility — in practice the XML declaration itself is
// always pure ASCII, so no previously-decoded text needs re-interpretation.
func (d *Decoder) SwitchEncoding(name string) error {
	if name == "" || isUTF8Name(name) {
		return nil
	}
	enc, _ := charset.Lookup(name)
	if enc == nil {
		return fmt.Errorf("decoder: unknown encoding %q", name)
	}
	d.r = enc.NewDecoder()
	return nil
}

func isUTF8Name(name string) bool {
	switch name {
	case "utf-8", "UTF-8", "utf8", "UTF8":
		return true
	default:
		return false
	}
}

// Transform decodes src into dst, following transform.Transformer
// semantics: it may consume less than all of src (atEOF distinguishes a
// truncated multi-byte sequence at the end of the current buffer from one
// genuinely at end of input) and the caller resumes with the unconsumed
// remainder on the next buffer.
func (d *Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	return d.r.Transform(dst, src, atEOF)
}

// Reset clears any decoder state carried between Transform calls.
func (d *Decoder) Reset() {
	d.r.Reset()
}

// NewReader wraps r so that Read returns UTF-8 bytes decoded from r's
// declared (or BOM-detected) encoding. It is a convenience entry point for
// callers that feed the tokenizer via io.Reader rather than discrete
// buffers; SwitchEncoding may still be called on d after construction, up
// until the first Read.
func NewReader(r io.Reader, d *Decoder) io.Reader {
	return transform.NewReader(r, d)
}

// SniffDeclaredEncoding scans the first bytes of buf (which must contain at
// least the opening "<?xml ... ?>" if one is present) for an encoding=
// attribute value, without fully tokenizing the declaration. The gonzalez
// façade uses it on the head of the stream to learn the declared encoding
// before any bytes reach the tokenizer, so the decoder can be switched in
// time for the rest of the document.
func SniffDeclaredEncoding(buf []byte) (name string, ok bool) {
	const marker = "encoding"
	idx := bytes.Index(buf, []byte(marker))
	if idx < 0 {
		return "", false
	}
	rest := buf[idx+len(marker):]
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\r' || rest[i] == '\n') {
		i++
	}
	if i >= len(rest) || rest[i] != '=' {
		return "", false
	}
	i++
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\r' || rest[i] == '\n') {
		i++
	}
	if i >= len(rest) {
		return "", false
	}
	quote := rest[i]
	if quote != '"' && quote != '\'' {
		return "", false
	}
	i++
	start := i
	for i < len(rest) && rest[i] != quote {
		i++
	}
	if i >= len(rest) {
		return "", false
	}
	return string(rest[start:i]), true
}
