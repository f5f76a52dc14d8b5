package xml

import (
	"bytes"

	"github.com/FocuswithJustin/folio/core/encoding"
)

// Writer builds an XML document in memory. Attributes are written in the
// order given, so equal input produces equal bytes.
type Writer struct {
	buf   bytes.Buffer
	stack []string
	// open is true while the last start tag still lacks its '>'.
	open bool
}

// NewWriter returns a Writer that has written the XML declaration.
func NewWriter() *Writer {
	w := &Writer{}
	w.buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	return w
}

// NewFragment returns a Writer without the XML declaration, for content
// that is spliced into another document with Raw.
func NewFragment() *Writer {
	return &Writer{}
}

func (w *Writer) close() {
	if w.open {
		w.buf.WriteByte('>')
		w.open = false
	}
}

// Start opens an element. attrs alternates names and values; an attribute
// with an empty value is skipped.
func (w *Writer) Start(name string, attrs ...string) {
	w.start(name, true, attrs)
}

func (w *Writer) start(name string, skipEmpty bool, attrs []string) {
	w.close()
	w.buf.WriteString("<" + name)
	for i := 0; i+1 < len(attrs); i += 2 {
		if skipEmpty && attrs[i+1] == "" {
			continue
		}
		w.buf.WriteString(" " + attrs[i] + `="` + encoding.EscapeXMLAttr(attrs[i+1]) + `"`)
	}
	w.stack = append(w.stack, name)
	w.open = true
}

// End closes the innermost open element, self-closing it when empty.
func (w *Writer) End() {
	if len(w.stack) == 0 {
		return
	}
	name := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	if w.open {
		w.buf.WriteString("/>")
		w.open = false
		return
	}
	w.buf.WriteString("</" + name + ">")
}

// Text writes escaped character data.
func (w *Writer) Text(s string) {
	if s == "" {
		return
	}
	w.close()
	w.buf.WriteString(encoding.EscapeXMLText(s))
}

// Raw writes already serialized markup.
func (w *Writer) Raw(b []byte) {
	if len(b) == 0 {
		return
	}
	w.close()
	w.buf.Write(b)
}

// Element writes a complete element holding text.
func (w *Writer) Element(name, text string, attrs ...string) {
	w.Start(name, attrs...)
	w.Text(text)
	w.End()
}

// Empty writes an element with no content.
func (w *Writer) Empty(name string, attrs ...string) {
	w.Start(name, attrs...)
	w.End()
}

// EmptyAll is Empty that also writes attributes with empty values.
func (w *Writer) EmptyAll(name string, attrs ...string) {
	w.start(name, false, attrs)
	w.End()
}

// Bytes closes any open elements and returns the document.
func (w *Writer) Bytes() []byte {
	for len(w.stack) > 0 {
		w.End()
	}
	return w.buf.Bytes()
}
