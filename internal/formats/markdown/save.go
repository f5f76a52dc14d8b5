package markdown

import (
	"bufio"
	"encoding/base64"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/encoding"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

type writer struct {
	doc   *dom.Document
	opts  *codec.SaveOptions
	out   *bufio.Writer
	media map[string]string
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if opts == nil {
		opts = &codec.SaveOptions{}
	}
	if err := opts.SaveFonts(doc); err != nil {
		return err
	}
	out := bufio.NewWriter(w)
	if err := writeFrontMatter(out, doc); err != nil {
		return err
	}
	wr := &writer{doc: doc, opts: opts, out: out, media: map[string]string{}}
	for i, sec := range doc.Sections() {
		if err := opts.Err(); err != nil {
			return err
		}
		if start := doc.Attrs(sec).SectionStart; i > 0 || start != dom.SectionContinuous {
			out.WriteString("<!--section " + string(start) + "-->\n\n")
		}
		if err := wr.blocks(doc.Children(doc.Body(sec))); err != nil {
			return err
		}
	}
	return out.Flush()
}

func (w *writer) blocks(ids []dom.NodeID) error {
	inList := false
	for _, id := range ids {
		switch w.doc.Type(id) {
		case dom.NodeParagraph:
			f := w.doc.Format(id)
			if inList && f.ListID == 0 {
				w.out.WriteByte('\n')
			}
			inList = f.ListID != 0
			if err := w.paragraph(id, f); err != nil {
				return err
			}
			if !inList {
				w.out.WriteByte('\n')
			}
		case dom.NodeTable:
			if inList {
				w.out.WriteByte('\n')
				inList = false
			}
			if err := w.table(id); err != nil {
				return err
			}
			w.out.WriteByte('\n')
		}
	}
	if inList {
		w.out.WriteByte('\n')
	}
	return nil
}

func (w *writer) paragraph(id dom.NodeID, f dom.Formatting) error {
	switch {
	case f.ListID != 0:
		w.out.WriteString(strings.Repeat("  ", f.ListLevel))
		if def, ok := w.doc.Lists().Get(f.ListID); ok && len(def.Levels) > 0 && def.Levels[0].Style != dom.NumberBullet {
			w.out.WriteString("1. ")
		} else {
			w.out.WriteString("- ")
		}
	case f.Style == "Quote":
		w.out.WriteString("> ")
	default:
		if n, ok := headingLevel(f.Style); ok {
			w.out.WriteString(strings.Repeat("#", n) + " ")
		}
	}
	text, err := w.inlines(w.doc.Children(id), false)
	if err != nil {
		return err
	}
	if text == "" {
		text = "<!--empty-->"
	}
	w.out.WriteString(text)
	w.out.WriteByte('\n')
	return nil
}

// headingLevel maps "Heading N" styles to ATX heading levels.
func headingLevel(style string) (int, bool) {
	rest, found := strings.CutPrefix(style, "Heading ")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 6 {
		return 0, false
	}
	return n, true
}

// Emphasis markers in nesting order, outermost first.
var marks = []struct {
	delim string
	on    func(dom.Formatting) bool
}{
	{"**", func(f dom.Formatting) bool { return f.Bold }},
	{"*", func(f dom.Formatting) bool { return f.Italic }},
	{"~~", func(f dom.Formatting) bool { return f.Strike }},
}

// inlines renders paragraph content. Emphasis is kept as a stack in marks
// order so that a reader closing the innermost open marker first rebuilds
// the same runs.
func (w *writer) inlines(ids []dom.NodeID, cell bool) (string, error) {
	var b strings.Builder
	var open []int
	lineStart := true
	setFormat := func(f dom.Formatting) {
		var want []int
		for i, m := range marks {
			if m.on(f) {
				want = append(want, i)
			}
		}
		keep := 0
		for keep < len(open) && keep < len(want) && open[keep] == want[keep] {
			keep++
		}
		for i := len(open) - 1; i >= keep; i-- {
			b.WriteString(marks[open[i]].delim)
			lineStart = false
		}
		open = open[:keep]
		for _, i := range want[keep:] {
			b.WriteString(marks[i].delim)
			open = append(open, i)
			lineStart = false
		}
	}
	for _, id := range ids {
		a := w.doc.Attrs(id)
		if w.doc.Type(id) == dom.NodeRun && w.doc.Text(id) == "" {
			continue
		}
		switch w.doc.Type(id) {
		case dom.NodeRun:
			text := w.doc.Text(id)
			setFormat(w.doc.Format(id))
			if lineStart {
				b.WriteString(escapeLineStart(text))
			} else {
				b.WriteString(encoding.EscapeMarkdown(text))
			}
		case dom.NodeBreak:
			switch a.Break {
			case dom.BreakPage:
				b.WriteString("<!--page-->")
			case dom.BreakColumn:
				b.WriteString("<!--column-->")
			default:
				if cell {
					b.WriteString("<br>")
				} else {
					b.WriteString("\\\n")
					lineStart = true
					continue
				}
			}
		case dom.NodeField:
			setFormat(w.doc.Format(id))
			b.WriteString("<!--field " + a.FieldCode + "-->")
			b.WriteString(encoding.EscapeMarkdown(a.FieldResult))
			b.WriteString("<!--/field-->")
		case dom.NodeBookmarkStart:
			b.WriteString("<!--bookmark " + a.Name + "-->")
		case dom.NodeBookmarkEnd:
			b.WriteString("<!--/bookmark " + a.Name + "-->")
		case dom.NodeImage:
			img, err := w.image(a)
			if err != nil {
				return "", err
			}
			b.WriteString(img)
		case dom.NodeSmartTag:
			s, err := w.inlines(w.doc.Children(id), cell)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		lineStart = false
	}
	setFormat(dom.Formatting{})
	return b.String(), nil
}

// escapeLineStart escapes text that begins a line, where list, quote and
// heading markers would otherwise be recognised.
func escapeLineStart(text string) string {
	s := encoding.EscapeMarkdown(text)
	lead := len(s) - len(strings.TrimLeft(s, " \t"))
	if lead > 0 {
		s = strings.NewReplacer(" ", "&#32;", "\t", "&#9;").Replace(s[:lead]) + s[lead:]
	}
	if s == "" {
		return s
	}
	switch s[0] {
	case '-', '+', '=':
		return "\\" + s
	}
	digits := len(s) - len(strings.TrimLeft(s, "0123456789"))
	if digits > 0 && digits < len(s) && (s[digits] == '.' || s[digits] == ')') {
		return s[:digits] + "\\" + s[digits:]
	}
	return s
}

// escapeTrailing protects trailing blanks of a table cell from trimming.
func escapeTrailing(s string) string {
	t := strings.TrimRight(s, " \t")
	return t + strings.NewReplacer(" ", "&#32;", "\t", "&#9;").Replace(s[len(t):])
}

func (w *writer) image(a dom.Attrs) (string, error) {
	blob, err := w.doc.Media.Get(a.Media)
	if err != nil {
		return "", nil
	}
	src, ok := w.media[a.Media]
	if !ok {
		if w.opts.ImagesFolder != "" || w.opts.PartSaving != nil {
			name := base.MediaName(a.Media, blob.ContentType)
			if err := w.opts.EmitPart(name, blob.Data); err != nil {
				return "", err
			}
			src = name
			if w.opts.PartSaving == nil {
				src = filepath.ToSlash(filepath.Join(filepath.Base(w.opts.ImagesFolder), name))
			}
		} else {
			src = "data:" + blob.ContentType + ";base64," + base64.StdEncoding.EncodeToString(blob.Data)
		}
		w.media[a.Media] = src
	}
	s := "![" + encoding.EscapeMarkdown(a.Alt) + "](" + src + ")"
	var attrs []string
	if a.Width != 0 {
		attrs = append(attrs, "width="+strconv.FormatFloat(a.Width, 'f', -1, 64)+"pt")
	}
	if a.Height != 0 {
		attrs = append(attrs, "height="+strconv.FormatFloat(a.Height, 'f', -1, 64)+"pt")
	}
	if len(attrs) > 0 {
		s += "{" + strings.Join(attrs, " ") + "}"
	}
	return s, nil
}

// table writes a pipe table. The first row becomes the header; paragraphs
// inside a cell are separated by <!--p-->.
func (w *writer) table(id dom.NodeID) error {
	rows := w.doc.Children(id)
	for i, row := range rows {
		cells := w.doc.Children(row)
		w.out.WriteByte('|')
		for _, cell := range cells {
			var parts []string
			for _, p := range w.doc.ChildNodes(cell, dom.NodeParagraph, true) {
				s, err := w.inlines(w.doc.Children(p), true)
				if err != nil {
					return err
				}
				parts = append(parts, s)
			}
			w.out.WriteString(" " + escapeTrailing(strings.Join(parts, "<!--p-->")) + " |")
		}
		w.out.WriteByte('\n')
		if i == 0 {
			w.out.WriteByte('|')
			for range cells {
				w.out.WriteString(" --- |")
			}
			w.out.WriteByte('\n')
		}
	}
	return nil
}
