package rtf

import (
	"bytes"
	"encoding/hex"
	"strconv"

	"github.com/FocuswithJustin/folio/core/encoding"
)

// Writer builds RTF in memory. A control word is followed by a delimiter
// space only when the next output could extend it.
type Writer struct {
	buf   bytes.Buffer
	depth int
	// word is true while the last output was a control word.
	word bool
}

// Open starts a group.
func (w *Writer) Open() {
	w.buf.WriteByte('{')
	w.depth++
	w.word = false
}

// Close ends the innermost group.
func (w *Writer) Close() {
	if w.depth == 0 {
		return
	}
	w.buf.WriteByte('}')
	w.depth--
	w.word = false
}

// Dest opens a destination group. Ignorable destinations get \*.
func (w *Writer) Dest(word string, ignorable bool) {
	w.Open()
	if ignorable {
		w.buf.WriteString(`\*`)
	}
	w.Word(word)
}

// Word writes a control word without a parameter.
func (w *Writer) Word(word string) {
	w.buf.WriteString(`\` + word)
	w.word = true
}

// WordN writes a control word with a numeric parameter.
func (w *Writer) WordN(word string, n int) {
	w.buf.WriteString(`\` + word + strconv.Itoa(n))
	w.word = true
}

// Text writes escaped text.
func (w *Writer) Text(s string) {
	if s == "" {
		return
	}
	w.delimit()
	w.buf.WriteString(encoding.EscapeRTF(s))
	w.word = false
}

// Hex writes data as hex digits, as in picture groups.
func (w *Writer) Hex(data []byte) {
	w.delimit()
	w.buf.WriteString(hex.EncodeToString(data))
	w.word = false
}

// Raw writes already escaped RTF.
func (w *Writer) Raw(s string) {
	w.delimit()
	w.buf.WriteString(s)
	w.word = false
}

// Line ends the current output line; RTF readers ignore raw newlines.
func (w *Writer) Line() {
	w.buf.WriteByte('\n')
	w.word = false
}

func (w *Writer) delimit() {
	if w.word {
		w.buf.WriteByte(' ')
		w.word = false
	}
}

// Bytes closes any open groups and returns the document.
func (w *Writer) Bytes() []byte {
	for w.depth > 0 {
		w.Close()
	}
	return w.buf.Bytes()
}
