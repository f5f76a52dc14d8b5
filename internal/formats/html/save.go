package html

import (
	"bytes"
	"encoding/base64"
	"fmt"
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
	doc    *dom.Document
	opts   *codec.SaveOptions
	buf    bytes.Buffer
	media  map[string]string
	indent bool
}

// chunk is a run of top-level blocks written to one output part.
type chunk struct {
	section dom.NodeID
	blocks  []dom.NodeID
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if opts == nil {
		opts = &codec.SaveOptions{}
	}
	if err := opts.SaveFonts(doc); err != nil {
		return err
	}
	wr := &writer{doc: doc, opts: opts, media: map[string]string{}, indent: opts.PrettyPrint}
	chunks := wr.split()
	for i, c := range chunks {
		if err := opts.Err(); err != nil {
			return err
		}
		wr.buf.Reset()
		if err := wr.page(c); err != nil {
			return err
		}
		if i == 0 {
			if _, err := w.Write(wr.buf.Bytes()); err != nil {
				return err
			}
			continue
		}
		if err := opts.EmitPart(fmt.Sprintf("part-%03d.html", i+1), append([]byte(nil), wr.buf.Bytes()...)); err != nil {
			return err
		}
	}
	return nil
}

// split groups the body blocks of every section into output pages. A page
// break ends its page after the paragraph holding it.
func (w *writer) split() [][]chunk {
	var out [][]chunk
	var cur []chunk
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	for i, s := range w.doc.Sections() {
		if i > 0 && (w.opts.Split == codec.SplitSection ||
			(w.opts.Split == codec.SplitPageBreak && w.doc.Attrs(s).SectionStart == dom.SectionNewPage)) {
			flush()
		}
		c := chunk{section: s}
		blocks := w.doc.Children(w.doc.Body(s))
		for _, b := range blocks {
			c.blocks = append(c.blocks, b)
			if w.opts.Split == codec.SplitPageBreak && w.hasPageBreak(b) {
				cur = append(cur, c)
				flush()
				c = chunk{section: s}
			}
		}
		if len(c.blocks) > 0 || len(blocks) == 0 {
			cur = append(cur, c)
		}
	}
	flush()
	if len(out) == 0 {
		out = [][]chunk{{}}
	}
	return out
}

func (w *writer) hasPageBreak(block dom.NodeID) bool {
	for _, b := range w.doc.ChildNodes(block, dom.NodeBreak, true) {
		if w.doc.Attrs(b).Break == dom.BreakPage {
			return true
		}
	}
	return false
}

func (w *writer) nl() {
	if w.indent {
		w.buf.WriteByte('\n')
	}
}

func (w *writer) page(chunks []chunk) error {
	w.buf.WriteString("<!DOCTYPE html>\n")
	w.buf.WriteString("<html>\n")
	w.buf.WriteString("<head>\n")
	w.buf.WriteString("<meta charset=\"utf-8\">\n")
	w.buf.WriteString("<meta name=\"generator\" content=\"" + Generator + "\">\n")
	w.buf.WriteString("<title>" + encoding.EscapeHTML(w.doc.Props.Title) + "</title>\n")
	if w.doc.Props.Author != "" {
		w.buf.WriteString("<meta name=\"author\" content=\"" + encoding.EscapeHTML(w.doc.Props.Author) + "\">\n")
	}
	w.buf.WriteString("</head>\n")
	w.buf.WriteString("<body>\n")
	for _, c := range chunks {
		w.buf.WriteString("<div class=\"section\" data-start=\"" + string(w.doc.Attrs(c.section).SectionStart) + "\">")
		w.nl()
		if err := w.blocks(c.blocks); err != nil {
			return err
		}
		w.buf.WriteString("</div>\n")
	}
	w.buf.WriteString("</body>\n")
	w.buf.WriteString("</html>\n")
	return nil
}

func (w *writer) blocks(ids []dom.NodeID) error {
	listID := 0
	closeList := func() {
		if listID != 0 {
			w.buf.WriteString("</" + w.listTag(listID) + ">")
			w.nl()
			listID = 0
		}
	}
	for _, id := range ids {
		switch w.doc.Type(id) {
		case dom.NodeParagraph:
			f := w.doc.Format(id)
			if f.ListID != listID {
				closeList()
				if f.ListID != 0 {
					listID = f.ListID
					w.buf.WriteString("<" + w.listTag(listID) + ">")
					w.nl()
				}
			}
			if err := w.paragraph(id, f); err != nil {
				return err
			}
		case dom.NodeTable:
			closeList()
			if err := w.table(id); err != nil {
				return err
			}
		}
	}
	closeList()
	return nil
}

func (w *writer) listTag(id int) string {
	def, ok := w.doc.Lists().Get(id)
	if !ok || (len(def.Levels) > 0 && def.Levels[0].Style == dom.NumberBullet) {
		return "ul"
	}
	return "ol"
}

func (w *writer) paragraph(id dom.NodeID, f dom.Formatting) error {
	tag := "p"
	var attrs []string
	if n, isHeading := headingLevel(f.Style); isHeading {
		tag = "h" + strconv.Itoa(n)
	} else if f.Style != "" {
		attrs = append(attrs, `data-style="`+encoding.EscapeHTML(f.Style)+`"`)
	}
	if f.ListID != 0 {
		tag = "li"
		if f.ListLevel != 0 {
			attrs = append(attrs, `data-level="`+strconv.Itoa(f.ListLevel)+`"`)
		}
	}
	if css := writeStyle(paraProps(f)); css != "" {
		attrs = append(attrs, `style="`+encoding.EscapeHTML(css)+`"`)
	}
	w.buf.WriteString("<" + tag)
	for _, a := range attrs {
		w.buf.WriteString(" " + a)
	}
	w.buf.WriteString(">")
	for _, c := range w.doc.Children(id) {
		if err := w.inline(c); err != nil {
			return err
		}
	}
	w.buf.WriteString("</" + tag + ">")
	w.nl()
	return nil
}

// headingLevel maps "Heading N" styles to h1-h6.
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

func (w *writer) table(id dom.NodeID) error {
	w.buf.WriteString("<table>")
	w.nl()
	for _, row := range w.doc.Children(id) {
		w.buf.WriteString("<tr>")
		for _, cell := range w.doc.Children(row) {
			w.buf.WriteString("<td>")
			if err := w.blocks(w.doc.Children(cell)); err != nil {
				return err
			}
			w.buf.WriteString("</td>")
		}
		w.buf.WriteString("</tr>")
		w.nl()
	}
	w.buf.WriteString("</table>")
	w.nl()
	return nil
}

func (w *writer) inline(id dom.NodeID) error {
	doc := w.doc
	a := doc.Attrs(id)
	switch doc.Type(id) {
	case dom.NodeRun:
		w.run(doc.Text(id), doc.Format(id))
	case dom.NodeBreak:
		switch a.Break {
		case dom.BreakPage:
			w.buf.WriteString(`<br style="page-break-before:always">`)
		case dom.BreakColumn:
			w.buf.WriteString(`<br data-break="column">`)
		default:
			w.buf.WriteString("<br>")
		}
	case dom.NodeField:
		w.buf.WriteString(`<span data-field="` + encoding.EscapeHTML(a.FieldCode) + `">`)
		w.buf.WriteString(encoding.EscapeHTML(a.FieldResult))
		w.buf.WriteString("</span>")
	case dom.NodeBookmarkStart:
		w.buf.WriteString(`<a id="` + encoding.EscapeHTML(a.Name) + `"></a>`)
	case dom.NodeBookmarkEnd:
		w.buf.WriteString(`<a data-bookmark-end="` + encoding.EscapeHTML(a.Name) + `"></a>`)
	case dom.NodeImage:
		return w.image(a)
	case dom.NodeSmartTag:
		for _, c := range doc.Children(id) {
			if err := w.inline(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *writer) run(text string, f dom.Formatting) {
	var open, closing []string
	props := runProps(f)
	var attrs []string
	if f.Style != "" {
		attrs = append(attrs, `data-style="`+encoding.EscapeHTML(f.Style)+`"`)
	}
	if css := writeStyle(props); css != "" {
		attrs = append(attrs, `style="`+encoding.EscapeHTML(css)+`"`)
	}
	if len(attrs) > 0 {
		open = append(open, "<span "+strings.Join(attrs, " ")+">")
		closing = append(closing, "</span>")
	}
	for _, t := range []struct {
		on  bool
		tag string
	}{{f.Bold, "b"}, {f.Italic, "i"}, {f.Underline, "u"}, {f.Strike, "s"}} {
		if t.on {
			open = append(open, "<"+t.tag+">")
			closing = append(closing, "</"+t.tag+">")
		}
	}
	for _, o := range open {
		w.buf.WriteString(o)
	}
	w.buf.WriteString(encoding.EscapeHTML(text))
	for i := len(closing) - 1; i >= 0; i-- {
		w.buf.WriteString(closing[i])
	}
}

func (w *writer) image(a dom.Attrs) error {
	blob, err := w.doc.Media.Get(a.Media)
	if err != nil {
		return nil
	}
	src, ok := w.media[a.Media]
	if !ok {
		if w.opts.ImagesFolder != "" || w.opts.PartSaving != nil {
			name := base.MediaName(a.Media, blob.ContentType)
			if err := w.opts.EmitPart(name, blob.Data); err != nil {
				return err
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
	props := map[string]string{}
	if a.Width != 0 {
		props["width"] = pt(a.Width)
	}
	if a.Height != 0 {
		props["height"] = pt(a.Height)
	}
	w.buf.WriteString(`<img src="` + encoding.EscapeHTML(src) + `" alt="` + encoding.EscapeHTML(a.Alt) + `"`)
	if css := writeStyle(props); css != "" {
		w.buf.WriteString(` style="` + css + `"`)
	}
	w.buf.WriteString(">")
	return nil
}
