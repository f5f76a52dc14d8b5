package flatxml

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/xml"
)

func num(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func integer(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func flag(v bool) string {
	if v {
		return "true"
	}
	return ""
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatAttrs(f dom.Formatting) []string {
	return []string{
		"style", f.Style,
		"font", f.Font,
		"size", num(f.Size),
		"bold", flag(f.Bold),
		"italic", flag(f.Italic),
		"underline", flag(f.Underline),
		"strike", flag(f.Strike),
		"color", f.Color,
		"highlight", f.Highlight,
		"align", string(f.Align),
		"list-id", integer(f.ListID),
		"list-level", integer(f.ListLevel),
		"space-after", num(f.SpaceAfter),
	}
}

func nodeAttrs(a dom.Attrs) []string {
	return []string{
		"break", string(a.Break),
		"start", string(a.SectionStart),
		"slot", string(a.HeaderFooter),
		"code", a.FieldCode,
		"result", a.FieldResult,
		"name", a.Name,
		"author", a.Author,
		"initial", a.Initial,
		"date", stamp(a.Date),
		"comment-id", integer(a.CommentID),
		"note", string(a.Footnote),
		"shape", string(a.Shape),
		"width", num(a.Width),
		"height", num(a.Height),
		"media", a.Media,
		"alt", a.Alt,
	}
}

func encode(doc *dom.Document) []byte {
	w := xml.NewWriter()
	w.Start("folio", "xmlns", Namespace, "version", strconv.Itoa(Version), "id", doc.ID)

	p := doc.Props
	w.Empty("props",
		"title", p.Title,
		"subject", p.Subject,
		"author", p.Author,
		"last-saved-by", p.LastSavedBy,
		"created", stamp(p.Created),
		"last-saved", stamp(p.LastSaved),
		"revision-number", integer(p.RevisionNumber))

	w.Start("styles")
	for _, name := range doc.Styles().Names() {
		st, _ := doc.Styles().Get(name)
		attrs := append([]string{"name", st.Name, "type", string(st.Type), "based-on", st.BasedOn, "built-in", flag(st.BuiltIn)},
			formatAttrs(st.Format)...)
		w.Empty("style", attrs...)
	}
	w.End()

	if ids := doc.Lists().IDs(); len(ids) > 0 {
		w.Start("lists")
		for _, id := range ids {
			def, _ := doc.Lists().Get(id)
			w.Start("list", "id", strconv.Itoa(def.ID))
			for _, lv := range def.Levels {
				w.Empty("level", "style", string(lv.Style), "text", lv.Text, "indent", num(lv.Indent))
			}
			w.End()
		}
		w.End()
	}

	if keys := doc.Variables().Keys(); len(keys) > 0 {
		w.Start("variables")
		for _, k := range keys {
			v, _ := doc.Variables().Get(k)
			w.Element("variable", v, "name", k)
		}
		w.End()
	}

	if hashes := doc.Media.Hashes(); len(hashes) > 0 {
		w.Start("media")
		for _, h := range hashes {
			b, err := doc.Media.Get(h)
			if err != nil {
				continue
			}
			w.Element("blob", base64.StdEncoding.EncodeToString(b.Data), "hash", h, "content-type", b.ContentType)
		}
		w.End()
	}

	for _, s := range doc.Sections() {
		encodeNode(w, doc, s)
	}
	return w.Bytes()
}

func encodeMark(w *xml.Writer, kind string, m dom.RevisionMark) {
	w.Start("mark",
		"kind", kind,
		"id", m.ID,
		"type", string(m.Type),
		"author", m.Author,
		"date", stamp(m.Date),
		"seq", strconv.FormatUint(m.Seq, 10),
		"pair", m.PairID)
	if m.OldFormat != nil {
		w.Empty("old", formatAttrs(*m.OldFormat)...)
	}
	w.End()
}

func encodeNode(w *xml.Writer, doc *dom.Document, id dom.NodeID) {
	t := doc.Type(id)
	a := doc.Attrs(id)
	w.Start(string(t), append(formatAttrs(doc.Format(id)), nodeAttrs(a)...)...)
	if m, ok := doc.ContentMark(id); ok {
		encodeMark(w, "content", m)
	}
	if m, ok := doc.FormatMark(id); ok {
		encodeMark(w, "format", m)
	}
	if pg := a.Page; pg != nil {
		w.Empty("page",
			"width", num(pg.Width),
			"height", num(pg.Height),
			"margin-top", num(pg.MarginTop),
			"margin-bottom", num(pg.MarginBottom),
			"margin-left", num(pg.MarginLeft),
			"margin-right", num(pg.MarginRight),
			"columns", integer(pg.Columns),
			"column-gap", num(pg.ColumnGap))
	}
	if t == dom.NodeRun {
		text := doc.Text(id)
		space := ""
		if strings.TrimSpace(text) != text {
			space = "preserve"
		}
		w.Element("t", text, "xml:space", space)
	}
	for _, c := range doc.Children(id) {
		encodeNode(w, doc, c)
	}
	w.End()
}

// reader collects the first attribute conversion error.
type reader struct {
	err error
}

func (r *reader) num(n *xml.Node, name string) float64 {
	s := n.Attr(name)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && r.err == nil {
		r.err = errors.NewParse("flatxml", "", n.Name()+"@"+name+": "+err.Error())
	}
	return v
}

func (r *reader) whole(n *xml.Node, name string) int {
	return int(r.num(n, name))
}

func (r *reader) when(n *xml.Node, name string) time.Time {
	s := n.Attr(name)
	if s == "" {
		return time.Time{}
	}
	v, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && r.err == nil {
		r.err = errors.NewParse("flatxml", "", n.Name()+"@"+name+": "+err.Error())
	}
	return v
}

func (r *reader) format(n *xml.Node) dom.Formatting {
	return dom.Formatting{
		Style:      n.Attr("style"),
		Font:       n.Attr("font"),
		Size:       r.num(n, "size"),
		Bold:       n.Attr("bold") == "true",
		Italic:     n.Attr("italic") == "true",
		Underline:  n.Attr("underline") == "true",
		Strike:     n.Attr("strike") == "true",
		Color:      n.Attr("color"),
		Highlight:  n.Attr("highlight"),
		Align:      dom.Alignment(n.Attr("align")),
		ListID:     r.whole(n, "list-id"),
		ListLevel:  r.whole(n, "list-level"),
		SpaceAfter: r.num(n, "space-after"),
	}
}

func (r *reader) attrs(n *xml.Node) dom.Attrs {
	a := dom.Attrs{
		Break:        dom.BreakType(n.Attr("break")),
		SectionStart: dom.SectionStart(n.Attr("start")),
		HeaderFooter: dom.HeaderFooterType(n.Attr("slot")),
		FieldCode:    n.Attr("code"),
		FieldResult:  n.Attr("result"),
		Name:         n.Attr("name"),
		Author:       n.Attr("author"),
		Initial:      n.Attr("initial"),
		Date:         r.when(n, "date"),
		CommentID:    r.whole(n, "comment-id"),
		Footnote:     dom.FootnoteType(n.Attr("note")),
		Shape:        dom.ShapeType(n.Attr("shape")),
		Width:        r.num(n, "width"),
		Height:       r.num(n, "height"),
		Media:        n.Attr("media"),
		Alt:          n.Attr("alt"),
	}
	if pg := n.Child("page"); pg != nil {
		a.Page = &dom.PageSetup{
			Width:        r.num(pg, "width"),
			Height:       r.num(pg, "height"),
			MarginTop:    r.num(pg, "margin-top"),
			MarginBottom: r.num(pg, "margin-bottom"),
			MarginLeft:   r.num(pg, "margin-left"),
			MarginRight:  r.num(pg, "margin-right"),
			Columns:      r.whole(pg, "columns"),
			ColumnGap:    r.num(pg, "column-gap"),
		}
	}
	return a
}

func (r *reader) mark(n *xml.Node) *dom.RevisionMark {
	seq, err := strconv.ParseUint(n.Attr("seq"), 10, 64)
	if err != nil && r.err == nil {
		r.err = errors.NewParse("flatxml", "", "mark@seq: "+err.Error())
	}
	m := &dom.RevisionMark{
		ID:     n.Attr("id"),
		Type:   dom.RevisionType(n.Attr("type")),
		Author: n.Attr("author"),
		Date:   r.when(n, "date"),
		Seq:    seq,
		PairID: n.Attr("pair"),
	}
	if old := n.Child("old"); old != nil {
		f := r.format(old)
		m.OldFormat = &f
	}
	return m
}

func decode(x *xml.Document, doc *dom.Document, opts *codec.LoadOptions) error {
	root := x.Root()
	if root == nil || root.Name() != "folio" {
		return errors.NewParse("flatxml", "", "root element is not folio")
	}
	r := &reader{}
	switch v := r.whole(root, "version"); {
	case v == 0:
		return errors.NewParse("flatxml", "", "missing version")
	case v > Version:
		return errors.NewUnsupported("flatxml version", "document version is newer than this reader")
	}
	if id := root.Attr("id"); id != "" {
		doc.ID = id
	}

	for _, c := range root.Children() {
		if err := opts.Err(); err != nil {
			return err
		}
		switch c.Name() {
		case "props":
			doc.Props = dom.Properties{
				Title:          c.Attr("title"),
				Subject:        c.Attr("subject"),
				Author:         c.Attr("author"),
				LastSavedBy:    c.Attr("last-saved-by"),
				Created:        r.when(c, "created"),
				LastSaved:      r.when(c, "last-saved"),
				RevisionNumber: r.whole(c, "revision-number"),
			}
		case "styles":
			for _, s := range c.Children() {
				doc.Styles().Restore(dom.Style{
					Name:    s.Attr("name"),
					Type:    dom.StyleType(s.Attr("type")),
					BasedOn: s.Attr("based-on"),
					BuiltIn: s.Attr("built-in") == "true",
					Format:  r.format(s),
				})
			}
		case "lists":
			for _, l := range c.Children() {
				def := dom.ListDef{ID: r.whole(l, "id")}
				for _, lv := range l.Children() {
					def.Levels = append(def.Levels, dom.ListLevel{
						Style:  dom.NumberStyle(lv.Attr("style")),
						Text:   lv.Attr("text"),
						Indent: r.num(lv, "indent"),
					})
				}
				doc.Lists().Put(def)
			}
		case "variables":
			for _, v := range c.Children() {
				doc.Variables().Set(v.Attr("name"), v.Text())
			}
		case "media":
			for _, b := range c.Children() {
				data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b.Text()))
				if err != nil {
					return errors.NewParse("flatxml", "", "media "+b.Attr("hash")+": "+err.Error())
				}
				if got := doc.Media.Put(b.Attr("content-type"), data); got != b.Attr("hash") {
					opts.Warn("flatxml", codec.DataLoss, "media "+b.Attr("hash")+" does not match its content")
				}
			}
		case string(dom.NodeSection):
			if err := r.node(doc, doc.Root(), c); err != nil {
				return err
			}
		default:
			opts.Warn("flatxml", codec.DataLoss, "unknown element "+c.Name()+" skipped")
		}
		if r.err != nil {
			return r.err
		}
	}

	for _, p := range doc.ChildNodes(doc.Root(), dom.NodeTypeAny, true) {
		if st := doc.Format(p).Style; st != "" {
			if _, ok := doc.Styles().Get(st); !ok {
				opts.Warn("flatxml", codec.MissingStyle, "style "+st+" is not defined")
			}
		}
	}
	return nil
}

func (r *reader) node(doc *dom.Document, parent dom.NodeID, n *xml.Node) error {
	t, err := dom.ParseNodeType(n.Name())
	if err != nil {
		return errors.NewParse("flatxml", "", err.Error())
	}
	id, err := doc.NewNode(t)
	if err != nil {
		return err
	}
	if t == dom.NodeRun {
		text := ""
		if tn := n.Child("t"); tn != nil {
			text = tn.Text()
		}
		if err := doc.SetText(id, text); err != nil {
			return err
		}
	}
	if f := r.format(n); !f.IsZero() {
		_ = doc.SetFormat(id, f)
	}
	a := r.attrs(n)
	// keep the defaults NewNode chose when the element leaves them out
	def := doc.Attrs(id)
	if a.SectionStart == "" {
		a.SectionStart = def.SectionStart
	}
	if a.Break == "" {
		a.Break = def.Break
	}
	if a.Shape == "" {
		a.Shape = def.Shape
	}
	if a.Footnote == "" {
		a.Footnote = def.Footnote
	}
	if a != (dom.Attrs{}) {
		_ = doc.SetAttrs(id, a)
	}
	if r.err != nil {
		return r.err
	}
	if err := doc.AppendChild(parent, id); err != nil {
		return err
	}

	for _, c := range n.Children() {
		switch c.Name() {
		case "t", "page":
		case "mark":
			m := r.mark(c)
			if c.Attr("kind") == "format" {
				_ = doc.SetFormatMark(id, m)
			} else {
				_ = doc.SetContentMark(id, m)
			}
		default:
			if err := r.node(doc, id, c); err != nil {
				return err
			}
		}
	}
	return r.err
}
