package html

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

type reader struct {
	doc      *dom.Document
	opts     *codec.LoadOptions
	verbatim bool

	body  dom.NodeID
	story dom.NodeID
	para  dom.NodeID
	pfmt  dom.Formatting
	lists map[int]int
	depth int

	// space is set when collapsed whitespace is pending between words.
	space bool
}

func load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.NewIO("read", "html", err)
	}
	text, info, err := codec.Decode(data, declaredEncoding(data, opts))
	if err != nil {
		return err
	}
	if info.Ambiguous {
		opts.Warn("html", codec.AmbiguousEncoding, "no charset declared, read as "+info.Name)
	}
	root, err := nethtml.Parse(strings.NewReader(text))
	if err != nil {
		return errors.NewParse("html", "", err.Error())
	}
	rd := &reader{doc: doc, opts: opts, lists: map[int]int{}}
	rd.head(root)
	body := find(root, atom.Body)
	if body == nil {
		body = root
	}
	if err := rd.blockChildren(body, dom.Formatting{}); err != nil {
		return err
	}
	if rd.body == dom.NoNode {
		if _, err := rd.section(dom.SectionContinuous); err != nil {
			return err
		}
	}
	doc.EnsureMinimum()
	return nil
}

// declaredEncoding returns the override from opts, else the charset the
// input declares in a BOM or meta element. Undeclared inputs are left to
// codec detection.
func declaredEncoding(data []byte, opts *codec.LoadOptions) string {
	if opts != nil && opts.Encoding != "" {
		return opts.Encoding
	}
	_, name, certain := charset.DetermineEncoding(data, "")
	if !certain && (name == "windows-1252" || name == "utf-8") {
		return ""
	}
	return name
}

func find(n *nethtml.Node, a atom.Atom) *nethtml.Node {
	if n.Type == nethtml.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func attr(n *nethtml.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (r *reader) head(root *nethtml.Node) {
	head := find(root, atom.Head)
	if head == nil {
		return
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != nethtml.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Title:
			r.doc.Props.Title = strings.TrimSpace(textContent(c))
		case atom.Meta:
			name, _ := attr(c, "name")
			content, _ := attr(c, "content")
			switch strings.ToLower(name) {
			case "generator":
				r.verbatim = content == Generator
			case "author":
				r.doc.Props.Author = content
			}
		}
	}
}

func textContent(n *nethtml.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == nethtml.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// section starts a new section and makes its body the current story.
func (r *reader) section(start dom.SectionStart) (dom.NodeID, error) {
	sec, body, err := base.NewSection(r.doc)
	if err != nil {
		return dom.NoNode, err
	}
	a := r.doc.Attrs(sec)
	a.SectionStart = start
	if err := r.doc.SetAttrs(sec, a); err != nil {
		return dom.NoNode, err
	}
	r.body, r.story, r.para = body, body, dom.NoNode
	return sec, nil
}

func (r *reader) ensureStory() error {
	if r.story != dom.NoNode {
		return nil
	}
	_, err := r.section(dom.SectionContinuous)
	return err
}

// paragraph returns the open paragraph, starting one when needed.
func (r *reader) paragraph() (dom.NodeID, error) {
	if r.para != dom.NoNode {
		return r.para, nil
	}
	if err := r.ensureStory(); err != nil {
		return dom.NoNode, err
	}
	p := r.doc.NewParagraph("")
	if err := r.doc.SetFormat(p, r.pfmt); err != nil {
		return dom.NoNode, err
	}
	if err := r.doc.AppendChild(r.story, p); err != nil {
		return dom.NoNode, err
	}
	r.para = p
	r.space = false
	return p, nil
}

func (r *reader) closeParagraph() {
	r.para = dom.NoNode
	r.space = false
}

// startParagraph closes the open paragraph and opens one formatted f.
func (r *reader) startParagraph(f dom.Formatting) error {
	r.closeParagraph()
	r.pfmt = f
	_, err := r.paragraph()
	r.pfmt = dom.Formatting{}
	return err
}

func (r *reader) blockChildren(n *nethtml.Node, f dom.Formatting) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := r.opts.Err(); err != nil {
			return err
		}
		if err := r.node(c, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) node(n *nethtml.Node, f dom.Formatting) error {
	switch n.Type {
	case nethtml.TextNode:
		return r.text(n.Data, f)
	case nethtml.ElementNode:
		return r.element(n, f)
	}
	return nil
}

func (r *reader) text(s string, f dom.Formatting) error {
	if !r.verbatim {
		s = r.collapse(s)
	}
	if s == "" {
		return nil
	}
	if r.para == dom.NoNode && strings.TrimSpace(s) == "" {
		return nil
	}
	p, err := r.paragraph()
	if err != nil {
		return err
	}
	if !r.verbatim && r.doc.ChildCount(p) == 0 {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return nil
		}
	}
	return base.AppendText(r.doc, p, s, f)
}

// collapse folds whitespace runs into single spaces across text nodes.
func (r *reader) collapse(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case ' ', '\t', '\n', '\r', '\f':
			if !r.space {
				b.WriteByte(' ')
				r.space = true
			}
		default:
			b.WriteRune(c)
			r.space = false
		}
	}
	return b.String()
}

var headings = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

func (r *reader) element(n *nethtml.Node, f dom.Formatting) error {
	style := parseStyle(attrOr(n, "style"))
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Template:
		return nil
	case atom.Div:
		if cls, _ := attr(n, "class"); cls == "section" {
			start := dom.SectionStart(attrOr(n, "data-start"))
			switch start {
			case dom.SectionContinuous, dom.SectionNewPage, dom.SectionNewColumn:
			default:
				start = dom.SectionContinuous
			}
			if _, err := r.section(start); err != nil {
				return err
			}
			return r.blockChildren(n, f)
		}
		r.closeParagraph()
		err := r.blockChildren(n, f)
		r.closeParagraph()
		return err
	case atom.P, atom.Pre, atom.Dt, atom.Dd, atom.Blockquote:
		pf := r.paraFormat(n, style)
		if err := r.startParagraph(pf); err != nil {
			return err
		}
		save := r.verbatim
		if n.DataAtom == atom.Pre {
			r.verbatim = true
		}
		err := r.blockChildren(n, f)
		r.verbatim = save
		r.closeParagraph()
		return err
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		name := "Heading " + strconv.Itoa(headings[n.DataAtom])
		if _, ok := r.doc.Styles().Get(name); !ok {
			if err := r.doc.Styles().Add(dom.Style{Name: name, Type: dom.StyleParagraph, BasedOn: "Normal", Format: dom.Formatting{Bold: true}}); err != nil {
				return err
			}
		}
		pf := r.paraFormat(n, style)
		pf.Style = name
		if err := r.startParagraph(pf); err != nil {
			return err
		}
		err := r.blockChildren(n, f)
		r.closeParagraph()
		return err
	case atom.Ul, atom.Ol:
		r.closeParagraph()
		var id int
		if n.DataAtom == atom.Ul {
			id = r.doc.Lists().AddBullet()
		} else {
			id = r.doc.Lists().AddNumbered()
		}
		r.lists[r.depth] = id
		r.depth++
		err := r.blockChildren(n, f)
		r.depth--
		r.closeParagraph()
		return err
	case atom.Li:
		pf := r.paraFormat(n, style)
		if r.depth > 0 {
			pf.ListID = r.lists[r.depth-1]
			pf.ListLevel = r.depth - 1
		}
		if lvl, err := strconv.Atoi(attrOr(n, "data-level")); err == nil {
			pf.ListLevel = lvl
		}
		if err := r.startParagraph(pf); err != nil {
			return err
		}
		err := r.blockChildren(n, f)
		r.closeParagraph()
		return err
	case atom.Table:
		return r.table(n, f)
	case atom.Br:
		return r.lineBreak(n, style)
	case atom.Img:
		return r.image(n, style)
	case atom.A:
		return r.anchor(n, f)
	case atom.Span:
		if code, ok := attr(n, "data-field"); ok {
			p, err := r.paragraph()
			if err != nil {
				return err
			}
			fld := r.doc.NewField(code, textContent(n))
			if err := r.doc.SetFormat(fld, f); err != nil {
				return err
			}
			return r.doc.AppendChild(p, fld)
		}
	case atom.Hr:
		r.closeParagraph()
		return nil
	}
	return r.blockChildren(n, r.runFormat(n, style, f))
}

func attrOr(n *nethtml.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func (r *reader) paraFormat(n *nethtml.Node, style map[string]string) dom.Formatting {
	var pf dom.Formatting
	applyParaProps(&pf, style)
	if name, ok := attr(n, "data-style"); ok && name != "" {
		r.requireStyle(name, dom.StyleParagraph)
		pf.Style = name
	}
	return pf
}

// requireStyle adds a placeholder for a style the input references but
// never defines.
func (r *reader) requireStyle(name string, t dom.StyleType) {
	if _, ok := r.doc.Styles().Get(name); ok {
		return
	}
	_ = r.doc.Styles().Add(dom.Style{Name: name, Type: t, BasedOn: "Normal"})
	r.opts.Warn("html", codec.MissingStyle, fmt.Sprintf("style %q is not defined", name))
}

func (r *reader) runFormat(n *nethtml.Node, style map[string]string, f dom.Formatting) dom.Formatting {
	switch n.DataAtom {
	case atom.B, atom.Strong:
		f.Bold = true
	case atom.I, atom.Em, atom.Cite, atom.Var:
		f.Italic = true
	case atom.U, atom.Ins:
		f.Underline = true
	case atom.S, atom.Strike, atom.Del:
		f.Strike = true
	case atom.Code, atom.Kbd, atom.Samp, atom.Tt:
		f.Font = "Courier New"
	}
	applyRunProps(&f, style)
	if name, ok := attr(n, "data-style"); ok && name != "" {
		r.requireStyle(name, dom.StyleCharacter)
		f.Style = name
	}
	return f
}

func (r *reader) lineBreak(n *nethtml.Node, style map[string]string) error {
	kind := dom.BreakLine
	switch {
	case attrOr(n, "data-break") == "column":
		kind = dom.BreakColumn
	case style["page-break-before"] == "always" || style["break-before"] == "page":
		kind = dom.BreakPage
	}
	p, err := r.paragraph()
	if err != nil {
		return err
	}
	r.space = false
	return r.doc.AppendChild(p, r.doc.NewBreak(kind))
}

func (r *reader) anchor(n *nethtml.Node, f dom.Formatting) error {
	if name, ok := attr(n, "data-bookmark-end"); ok {
		return r.marker(dom.NodeBookmarkEnd, name)
	}
	if id, ok := attr(n, "id"); ok && n.FirstChild == nil {
		return r.marker(dom.NodeBookmarkStart, id)
	}
	return r.blockChildren(n, f)
}

func (r *reader) marker(t dom.NodeType, name string) error {
	p, err := r.paragraph()
	if err != nil {
		return err
	}
	m, err := r.doc.NewNode(t)
	if err != nil {
		return err
	}
	if err := r.doc.SetAttrs(m, dom.Attrs{Name: name}); err != nil {
		return err
	}
	return r.doc.AppendChild(p, m)
}

func (r *reader) image(n *nethtml.Node, style map[string]string) error {
	src := attrOr(n, "src")
	data, ct, ok, err := base.LoadImage(r.opts, "html", src)
	if err != nil || !ok {
		return err
	}
	var width, height float64
	if v, ok := points(style["width"]); ok {
		width = v
	} else if v, err := strconv.ParseFloat(attrOr(n, "width"), 64); err == nil {
		width = v * 0.75
	}
	if v, ok := points(style["height"]); ok {
		height = v
	} else if v, err := strconv.ParseFloat(attrOr(n, "height"), 64); err == nil {
		height = v * 0.75
	}
	p, err := r.paragraph()
	if err != nil {
		return err
	}
	img := r.doc.NewImage(ct, data, width, height)
	a := r.doc.Attrs(img)
	a.Alt = attrOr(n, "alt")
	if err := r.doc.SetAttrs(img, a); err != nil {
		return err
	}
	r.space = false
	return r.doc.AppendChild(p, img)
}

func (r *reader) table(n *nethtml.Node, f dom.Formatting) error {
	r.closeParagraph()
	if err := r.ensureStory(); err != nil {
		return err
	}
	tbl, err := r.doc.NewNode(dom.NodeTable)
	if err != nil {
		return err
	}
	if err := r.doc.AppendChild(r.story, tbl); err != nil {
		return err
	}
	story := r.story
	defer func() {
		r.story = story
		r.closeParagraph()
	}()
	var rows func(*nethtml.Node) error
	rows = func(n *nethtml.Node) error {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != nethtml.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				if err := rows(c); err != nil {
					return err
				}
			case atom.Tr:
				if err := r.row(tbl, c, f); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := rows(n); err != nil {
		return err
	}
	if r.doc.ChildCount(tbl) == 0 {
		return r.doc.Remove(tbl)
	}
	return nil
}

func (r *reader) row(tbl dom.NodeID, tr *nethtml.Node, f dom.Formatting) error {
	row, err := r.doc.NewNode(dom.NodeRow)
	if err != nil {
		return err
	}
	if err := r.doc.AppendChild(tbl, row); err != nil {
		return err
	}
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != nethtml.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		cell, err := r.doc.NewNode(dom.NodeCell)
		if err != nil {
			return err
		}
		if err := r.doc.AppendChild(row, cell); err != nil {
			return err
		}
		r.story = cell
		r.closeParagraph()
		cf := f
		if c.DataAtom == atom.Th {
			cf.Bold = true
		}
		if err := r.blockChildren(c, cf); err != nil {
			return err
		}
		if r.doc.ChildCount(cell) == 0 {
			if _, err := r.doc.AppendParagraph(cell, ""); err != nil {
				return err
			}
		}
	}
	return nil
}
