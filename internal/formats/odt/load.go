package odt

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/xml"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

type autoStyle struct {
	parent        string
	f             dom.Formatting
	master        string
	before, after dom.BreakType
	columns       int
	gap           float64
}

type change struct {
	region *xml.Node
	mark   *dom.RevisionMark
}

// pendingRun collects adjacent text with the same formatting and marks.
type pendingRun struct {
	text   strings.Builder
	parent dom.NodeID
	format dom.Formatting
	cm, fm *dom.RevisionMark
}

type loader struct {
	doc  *dom.Document
	opts *codec.LoadOptions
	zip  *base.ZipReader
	err  error

	names           map[string]string
	auto            map[string]*autoStyle
	content, shared map[string]*autoStyle
	lists           map[string]int
	layouts         map[string]*xml.Node
	masters         map[string]*xml.Node
	changes         map[string]*change
	ended           map[string]bool
	pending         map[string]*xml.Node
	skipped         map[string]bool

	sec, body dom.NodeID
	blocks    int
	closed    bool
	space     bool
	active    []*change
	deleting  *dom.RevisionMark
	run       *pendingRun
	comments  int
}

func load(data []byte, doc *dom.Document, opts *codec.LoadOptions) error {
	z, err := base.OpenZip(data)
	if err != nil {
		return errors.NewParse("odt", "", err.Error())
	}
	l := &loader{
		doc:     doc,
		opts:    opts,
		zip:     z,
		names:   map[string]string{"Standard": "Normal"},
		content: make(map[string]*autoStyle),
		shared:  make(map[string]*autoStyle),
		lists:   make(map[string]int),
		layouts: make(map[string]*xml.Node),
		masters: make(map[string]*xml.Node),
		changes: make(map[string]*change),
		ended:   make(map[string]bool),
		pending: make(map[string]*xml.Node),
		skipped: make(map[string]bool),
	}
	x, err := l.parse("content.xml")
	if err != nil {
		return err
	}
	text := x.Root().Child("body").Child("text")
	if text == nil {
		return errors.NewParse("odt", "content.xml", "document has no office:text body")
	}
	if z.Has("meta.xml") {
		l.meta()
	}
	if z.Has("styles.xml") {
		l.styles()
	}
	l.automatic(x.Root().Child("automatic-styles"), l.content)
	l.auto = l.content
	l.customParts()
	if l.err != nil {
		return l.err
	}

	ends, _ := text.XPath(".//" + xml.Local("annotation-end"))
	for _, e := range ends {
		l.ended[e.Attr("name")] = true
	}
	for _, c := range text.Children() {
		switch c.Name() {
		case "tracked-changes":
			l.trackedChanges(c)
		case "user-field-decls", "variable-decls":
			for _, d := range c.Children() {
				l.doc.Variables().Set(d.Attr("name"), d.Attr("string-value"))
			}
		}
	}

	if l.sec, l.body, err = base.NewSection(doc); err != nil {
		return err
	}
	if err := l.text(text.Children()); err != nil {
		return err
	}
	return l.err
}

func (l *loader) fail(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *loader) parse(name string) (*xml.Document, error) {
	data, err := l.zip.Read(name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewParse("odt", name, "missing part")
		}
		return nil, err
	}
	if err := xml.Validate(data); err != nil {
		return nil, errors.NewParse("odt", name, err.Error())
	}
	x, err := xml.Parse(data)
	if err != nil {
		return nil, errors.NewParse("odt", name, err.Error())
	}
	if x.Root() == nil {
		return nil, errors.NewParse("odt", name, "empty part")
	}
	return x, nil
}

func (l *loader) optional(name string) *xml.Node {
	x, err := l.parse(name)
	if err != nil {
		l.opts.Warn("odt", codec.DataLoss, err.Error())
		return nil
	}
	return x.Root()
}

func (l *loader) skip(name string) {
	if l.skipped[name] {
		return
	}
	l.skipped[name] = true
	l.opts.Warn("odt", codec.DataLoss, "unsupported element "+name+" skipped")
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

var unitPoints = map[string]float64{"pt": 1, "in": 72, "cm": 72 / 2.54, "mm": 72 / 25.4, "pc": 12, "px": 0.75}

// length converts an ODF length such as "2.5cm" to points.
func length(s string) float64 {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || r == '%' })
	if i < 0 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	return v * unitPoints[s[i:]]
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var escaped = regexp.MustCompile(`_([0-9a-fA-F]{1,6})_`)

// decodeName reverses the _hex_ escapes of a style name.
func decodeName(name string) string {
	return escaped.ReplaceAllStringFunc(name, func(m string) string {
		r, err := strconv.ParseInt(m[1:len(m)-1], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(r))
	})
}

func (l *loader) meta() {
	root := l.optional("meta.xml")
	p := &l.doc.Props
	for _, c := range root.Child("meta").Children() {
		v := c.Text()
		switch c.Name() {
		case "title":
			p.Title = v
		case "subject":
			p.Subject = v
		case "initial-creator":
			p.Author = v
		case "creator":
			p.LastSavedBy = v
		case "creation-date":
			p.Created = parseDate(v)
		case "date":
			p.LastSaved = parseDate(v)
		case "editing-cycles":
			p.RevisionNumber = atoi(v)
		}
	}
}

var styleTypes = map[string]dom.StyleType{
	"paragraph": dom.StyleParagraph,
	"text":      dom.StyleCharacter,
	"table":     dom.StyleTable,
}

func (l *loader) styles() {
	root := l.optional("styles.xml")
	if root == nil {
		return
	}
	var defs []*xml.Node
	for _, st := range root.Child("styles").Children() {
		switch st.Name() {
		case "style":
			if _, ok := styleTypes[st.Attr("family")]; !ok {
				continue
			}
			name := st.Attr("name")
			display := st.Attr("display-name")
			if display == "" {
				display = decodeName(name)
			}
			if name == "Standard" {
				display = "Normal"
			}
			l.names[name] = display
			defs = append(defs, st)
		case "list-style":
			l.listStyle(st)
		}
	}
	for _, st := range defs {
		name := l.names[st.Attr("name")]
		existing, ok := l.doc.Styles().Get(name)
		s := dom.Style{
			Name:    name,
			Type:    styleTypes[st.Attr("family")],
			BasedOn: l.names[st.Attr("parent-style-name")],
			BuiltIn: ok && existing.BuiltIn,
		}
		props(st, &s.Format)
		l.doc.Styles().Restore(s)
	}
	l.automatic(root.Child("automatic-styles"), l.shared)
	for _, mp := range root.Child("master-styles").Children() {
		if mp.Name() == "master-page" {
			l.masters[mp.Attr("name")] = mp
		}
	}
}

// props reads the paragraph and text properties of a style element.
func props(st *xml.Node, f *dom.Formatting) {
	pp := st.Child("paragraph-properties")
	switch pp.Attr("text-align") {
	case "start", "left":
		f.Align = dom.AlignLeft
	case "center":
		f.Align = dom.AlignCenter
	case "end", "right":
		f.Align = dom.AlignRight
	case "justify":
		f.Align = dom.AlignJustify
	}
	if v := pp.Attr("margin-bottom"); v != "" {
		f.SpaceAfter = length(v)
	}
	tp := st.Child("text-properties")
	if tp == nil {
		return
	}
	if v := tp.Attr("font-family"); v != "" {
		f.Font = strings.Trim(v, `'"`)
	} else if v := tp.Attr("font-name"); v != "" {
		f.Font = v
	}
	if v := tp.Attr("font-size"); strings.HasSuffix(v, "pt") {
		f.Size = length(v)
	}
	switch w := tp.Attr("font-weight"); w {
	case "bold":
		f.Bold = true
	default:
		f.Bold = atoi(w) >= 600
	}
	switch tp.Attr("font-style") {
	case "italic", "oblique":
		f.Italic = true
	}
	if v := tp.Attr("text-underline-style"); v != "" && v != "none" {
		f.Underline = true
	}
	if v := tp.Attr("text-line-through-style"); v != "" && v != "none" {
		f.Strike = true
	}
	if v := tp.Attr("color"); strings.HasPrefix(v, "#") {
		f.Color = strings.ToUpper(v[1:])
	}
	if v := tp.Attr("background-color"); strings.HasPrefix(v, "#") {
		f.Highlight = strings.ToUpper(v[1:])
	}
}

func breakType(v string) dom.BreakType {
	switch v {
	case "page":
		return dom.BreakPage
	case "column":
		return dom.BreakColumn
	}
	return ""
}

func (l *loader) automatic(root *xml.Node, into map[string]*autoStyle) {
	for _, st := range root.Children() {
		switch st.Name() {
		case "style":
			a := &autoStyle{parent: st.Attr("parent-style-name"), master: st.Attr("master-page-name")}
			props(st, &a.f)
			pp := st.Child("paragraph-properties")
			a.before, a.after = breakType(pp.Attr("break-before")), breakType(pp.Attr("break-after"))
			if cols := st.Child("section-properties").Child("columns"); cols != nil {
				a.columns = max(atoi(cols.Attr("column-count")), 1)
				a.gap = length(cols.Attr("column-gap"))
			}
			into[st.Attr("name")] = a
		case "list-style":
			l.listStyle(st)
		case "page-layout":
			l.layouts[st.Attr("name")] = st
		}
	}
}

var numberStyles = map[string]dom.NumberStyle{
	"1": dom.NumberArabic,
	"a": dom.NumberLowerLatin,
	"I": dom.NumberUpperRoman,
}

// listStyle registers a list definition. Names of the form L<n> keep n as
// the list id when it is free.
func (l *loader) listStyle(st *xml.Node) {
	name := st.Attr("name")
	if _, ok := l.lists[name]; ok {
		return
	}
	id := 0
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "L")); err == nil && strings.HasPrefix(name, "L") && n > 0 {
		if _, used := l.doc.Lists().Get(n); !used {
			id = n
		}
	}
	if id == 0 {
		ids := l.doc.Lists().IDs()
		id = 1
		if len(ids) > 0 {
			id = ids[len(ids)-1] + 1
		}
	}
	var levels []dom.ListLevel
	for _, lv := range st.Children() {
		n := atoi(lv.Attr("level"))
		if n < 1 || n > 10 {
			continue
		}
		var ll dom.ListLevel
		switch lv.Name() {
		case "list-level-style-bullet":
			ll.Style, ll.Text = dom.NumberBullet, lv.Attr("bullet-char")
		case "list-level-style-number":
			ll.Style = numberStyles[lv.Attr("num-format")]
			if ll.Style == "" {
				ll.Style = dom.NumberArabic
			}
			ll.Text = lv.Attr("num-prefix") + "%" + strconv.Itoa(n) + lv.Attr("num-suffix")
		default:
			continue
		}
		pr := lv.Child("list-level-properties")
		ll.Indent = length(pr.Attr("space-before"))
		if align := pr.Child("list-level-label-alignment"); align != nil {
			ll.Indent = length(align.Attr("margin-left"))
		}
		for len(levels) < n {
			levels = append(levels, dom.ListLevel{Style: dom.NumberBullet, Text: "•"})
		}
		levels[n-1] = ll
	}
	l.doc.Lists().Put(dom.ListDef{ID: id, Levels: levels})
	l.lists[name] = id
}

func (l *loader) listID(name string) int {
	if id, ok := l.lists[name]; ok {
		return id
	}
	l.opts.Warn("odt", codec.MissingStyle, "list style "+name+" is not defined")
	return 0
}

var changeTypes = map[string]dom.RevisionType{
	"insertion":     dom.RevisionInsertion,
	"deletion":      dom.RevisionDeletion,
	"format-change": dom.RevisionFormatChange,
}

// trackedChanges reads the changed regions. The old formatting of a
// format change is not recorded by the format.
func (l *loader) trackedChanges(tc *xml.Node) {
	for _, cr := range tc.Children() {
		if cr.Name() != "changed-region" {
			continue
		}
		for _, k := range cr.Children() {
			t, ok := changeTypes[k.Name()]
			if !ok {
				continue
			}
			info := k.Child("change-info")
			m := l.doc.NewMark(t, info.Child("creator").Text(), parseDate(info.Child("date").Text()))
			if t == dom.RevisionFormatChange {
				m.OldFormat = &dom.Formatting{}
			}
			l.changes[cr.Attr("id")] = &change{region: k, mark: &m}
		}
	}
}

// named maps a style name to a display name, warning about undefined
// styles.
func (l *loader) named(name string) string {
	if name == "" {
		return ""
	}
	if display, ok := l.names[name]; ok {
		return display
	}
	l.opts.Warn("odt", codec.MissingStyle, "style "+name+" is not defined")
	return ""
}

func (l *loader) customParts() {
	known := map[string]bool{"content.xml": true, "styles.xml": true, "meta.xml": true, "settings.xml": true}
	if !l.zip.Has("META-INF/manifest.xml") {
		return
	}
	for _, e := range l.optional("META-INF/manifest.xml").Children() {
		name := e.Attr("full-path")
		if known[name] || name == "/" || strings.HasSuffix(name, "/") ||
			strings.HasPrefix(name, "Pictures/") || strings.HasPrefix(name, "META-INF/") || strings.HasPrefix(name, "Thumbnails/") {
			continue
		}
		if !l.zip.Has(name) {
			continue
		}
		data, err := l.zip.Read(name)
		if err != nil {
			l.fail(err)
			return
		}
		l.doc.CustomParts().Add(dom.CustomPart{Name: name, ContentType: e.Attr("media-type"), Data: data})
	}
}

func (l *loader) add(parent, child dom.NodeID) bool {
	if err := l.doc.AppendChild(parent, child); err != nil {
		l.fail(err)
		return false
	}
	return true
}

// text reads the top-level blocks of the body.
func (l *loader) text(nodes []*xml.Node) error {
	for _, c := range nodes {
		if err := l.opts.Err(); err != nil {
			return err
		}
		switch c.Name() {
		case "p", "h":
			l.paragraph(c, l.body, true, 0, 0)
		case "list":
			l.list(c, l.body, true, 0, 0)
		case "table":
			l.table(c, l.body, true)
		case "section":
			if err := l.section(c); err != nil {
				return err
			}
		case "tracked-changes", "user-field-decls", "variable-decls", "sequence-decls", "soft-page-break", "forms":
		default:
			l.skip(c.Name())
		}
		if l.err != nil {
			return l.err
		}
	}
	return nil
}

func (l *loader) newSection(start dom.SectionStart) error {
	sec, body, err := base.NewSection(l.doc)
	if err != nil {
		return err
	}
	l.sec, l.body = sec, body
	a := l.doc.Attrs(sec)
	a.SectionStart = start
	return l.doc.SetAttrs(sec, a)
}

// section reads a text:section as a continuous section.
func (l *loader) section(c *xml.Node) error {
	if l.blocks > 0 {
		if err := l.newSection(dom.SectionContinuous); err != nil {
			return err
		}
	}
	if st := l.auto[c.Attr("style-name")]; st != nil && st.columns > 0 {
		pg := dom.DefaultPageSetup()
		pg.Columns, pg.ColumnGap = st.columns, st.gap
		a := l.doc.Attrs(l.sec)
		a.Page = &pg
		l.fail(l.doc.SetAttrs(l.sec, a))
	}
	l.closed = false
	l.blocks++
	if err := l.text(c.Children()); err != nil {
		return err
	}
	l.closed = true
	return nil
}

// blockStart starts a new section when a top-level block carries a master
// page, or follows a closed text:section.
func (l *loader) blockStart(style string) {
	a := l.auto[style]
	switch {
	case a != nil && a.master != "":
		if l.blocks > 0 {
			l.fail(l.newSection(dom.SectionNewPage))
		}
		l.applyMaster(a.master)
	case l.closed:
		l.fail(l.newSection(dom.SectionContinuous))
	}
	l.closed = false
	l.blocks++
}

var headerSlots = map[string]dom.HeaderFooterType{
	"header":       dom.HeaderPrimary,
	"header-left":  dom.HeaderEven,
	"header-first": dom.HeaderFirst,
	"footer":       dom.FooterPrimary,
	"footer-left":  dom.FooterEven,
	"footer-first": dom.FooterFirst,
}

func (l *loader) applyMaster(name string) {
	mp, ok := l.masters[name]
	if !ok {
		l.opts.Warn("odt", codec.MissingStyle, "master page "+name+" is not defined")
		return
	}
	a := l.doc.Attrs(l.sec)
	if pp := l.layouts[mp.Attr("page-layout-name")].Child("page-layout-properties"); pp.Attr("page-width") != "" {
		pg := dom.DefaultPageSetup()
		pg.Width, pg.Height = length(pp.Attr("page-width")), length(pp.Attr("page-height"))
		pg.MarginTop, pg.MarginBottom = length(pp.Attr("margin-top")), length(pp.Attr("margin-bottom"))
		pg.MarginLeft, pg.MarginRight = length(pp.Attr("margin-left")), length(pp.Attr("margin-right"))
		if cols := pp.Child("columns"); cols != nil {
			pg.Columns = max(atoi(cols.Attr("column-count")), 1)
			pg.ColumnGap = length(cols.Attr("column-gap"))
		}
		a.Page = &pg
	}
	l.fail(l.doc.SetAttrs(l.sec, a))

	auto := l.auto
	l.auto = l.shared
	for _, c := range mp.Children() {
		slot, ok := headerSlots[c.Name()]
		if !ok || c.Attr("display") == "false" {
			continue
		}
		hf, err := l.doc.NewNode(dom.NodeHeaderFooter)
		if err != nil {
			l.fail(err)
			break
		}
		ha := l.doc.Attrs(hf)
		ha.HeaderFooter = slot
		l.fail(l.doc.SetAttrs(hf, ha))
		if l.add(l.sec, hf) {
			l.story(hf, c.Children())
		}
	}
	l.auto = auto
}

// story fills a story node with blocks.
func (l *loader) story(node dom.NodeID, nodes []*xml.Node) {
	space := l.space
	for _, c := range nodes {
		switch c.Name() {
		case "p", "h":
			l.paragraph(c, node, false, 0, 0)
		case "list":
			l.list(c, node, false, 0, 0)
		case "table":
			if l.doc.Type(node).CanContain(dom.NodeTable) {
				l.table(c, node, false)
			} else {
				l.opts.Warn("odt", codec.DataLoss, "table in "+string(l.doc.Type(node))+" dropped")
			}
		case "section":
			l.story(node, c.Children())
		case "creator", "date", "creator-initials", "soft-page-break":
		default:
			l.skip(c.Name())
		}
	}
	l.space = space
}

func (l *loader) list(n *xml.Node, parent dom.NodeID, top bool, id, depth int) {
	if st := n.Attr("style-name"); st != "" {
		id = l.listID(st)
	}
	for _, item := range n.Children() {
		if item.Name() != "list-item" && item.Name() != "list-header" {
			continue
		}
		for _, c := range item.Children() {
			switch c.Name() {
			case "p", "h":
				l.paragraph(c, parent, top, id, depth)
			case "list":
				l.list(c, parent, top, id, depth+1)
			}
		}
	}
}

func (l *loader) paragraphStyle(name string) (dom.Formatting, *autoStyle) {
	if a := l.auto[name]; a != nil {
		f := a.f
		f.Style = l.named(a.parent)
		return f, a
	}
	return dom.Formatting{Style: l.named(name)}, &autoStyle{}
}

func (l *loader) textStyle(name string) dom.Formatting {
	if a := l.auto[name]; a != nil {
		f := charOnly(a.f)
		f.Style = l.named(a.parent)
		return f
	}
	return dom.Formatting{Style: l.named(name)}
}

// paragraph reads a text:p or text:h. Top-level paragraphs go to the
// current body, which their style may have just moved to a new section.
func (l *loader) paragraph(c *xml.Node, parent dom.NodeID, top bool, listID, level int) {
	style := c.Attr("style-name")
	if top {
		l.blockStart(style)
		parent = l.body
	}
	p, err := l.doc.NewNode(dom.NodeParagraph)
	if err != nil {
		l.fail(err)
		return
	}
	f, a := l.paragraphStyle(style)
	if listID != 0 {
		f.ListID, f.ListLevel = listID, level
	}
	l.fail(l.doc.SetFormat(p, f))
	if !l.add(parent, p) {
		return
	}
	l.space = true
	if a.before != "" {
		l.place(p, l.doc.NewBreak(a.before), false)
	}
	l.inlines(c.Nodes(), p, dom.Formatting{})
	l.flush()
	if a.after != "" {
		l.place(p, l.doc.NewBreak(a.after), false)
	}
	l.paragraphMark(c, p)
}

// paragraphMark marks a paragraph inserted when a paragraph region
// brackets its whole content, and deleted when it ends in a deletion of an
// empty paragraph.
func (l *loader) paragraphMark(c *xml.Node, p dom.NodeID) {
	nodes := c.Nodes()
	if len(nodes) == 0 {
		return
	}
	first, last := nodes[0], nodes[len(nodes)-1]
	id := first.Attr("change-id")
	if first.Name() == "change-start" && last.Name() == "change-end" && last.Attr("change-id") == id && strings.HasPrefix(id, "pc") {
		if ch := l.changes[id]; ch != nil && ch.mark.Type == dom.RevisionInsertion {
			l.fail(l.doc.SetContentMark(p, ch.mark))
		}
		return
	}
	if last.Name() == "change" {
		ch := l.changes[last.Attr("change-id")]
		if ch == nil || ch.mark.Type != dom.RevisionDeletion {
			return
		}
		for _, rp := range ch.region.Children() {
			if rp.Name() == "change-info" {
				continue
			}
			if len(rp.Nodes()) > 0 {
				return
			}
		}
		l.fail(l.doc.SetContentMark(p, ch.mark))
	}
}

// marks returns the content and format marks in effect.
func (l *loader) marks() (cm, fm *dom.RevisionMark) {
	cm = l.deleting
	for i := len(l.active) - 1; i >= 0; i-- {
		m := l.active[i].mark
		switch {
		case m.Type == dom.RevisionFormatChange:
			if fm == nil {
				fm = m
			}
		case cm == nil:
			cm = m
		}
	}
	return cm, fm
}

// write appends text to the pending run, starting a new one when the
// formatting or marks differ.
func (l *loader) write(parent dom.NodeID, f dom.Formatting, s string) {
	if s == "" {
		return
	}
	cm, fm := l.marks()
	if r := l.run; r != nil && (r.parent != parent || r.format != f || r.cm != cm || r.fm != fm) {
		l.flush()
	}
	if l.run == nil {
		l.run = &pendingRun{parent: parent, format: f, cm: cm, fm: fm}
	}
	l.run.text.WriteString(s)
}

func (l *loader) flush() {
	r := l.run
	if r == nil {
		return
	}
	l.run = nil
	id := l.doc.NewRun(r.text.String(), r.format)
	if !l.add(r.parent, id) {
		return
	}
	l.setMarks(id, r.cm, r.fm)
}

func (l *loader) setMarks(id dom.NodeID, cm, fm *dom.RevisionMark) {
	if cm != nil {
		l.fail(l.doc.SetContentMark(id, cm))
	}
	if fm != nil {
		l.fail(l.doc.SetFormatMark(id, fm))
	}
}

// place appends an inline node with the marks in effect.
func (l *loader) place(parent, id dom.NodeID, marked bool) {
	l.flush()
	if !l.add(parent, id) {
		return
	}
	if marked {
		cm, fm := l.marks()
		l.setMarks(id, cm, fm)
	}
}

// collapse applies whitespace collapsing to character data.
func (l *loader) collapse(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !l.space {
				b.WriteByte(' ')
				l.space = true
			}
			continue
		}
		b.WriteRune(r)
		l.space = false
	}
	return b.String()
}

var fieldCodes = map[string]string{
	"page-number":     "PAGE",
	"page-count":      "NUMPAGES",
	"date":            "DATE",
	"title":           "TITLE",
	"initial-creator": "AUTHOR",
	"author-name":     "AUTHOR",
}

func (l *loader) inlines(nodes []*xml.Node, p dom.NodeID, f dom.Formatting) {
	for _, n := range nodes {
		if n.IsText() {
			l.write(p, f, l.collapse(n.Text()))
			continue
		}
		switch name := n.Name(); name {
		case "span":
			l.inlines(n.Nodes(), p, l.textStyle(n.Attr("style-name")))
		case "a", "meta", "ruby-base", "hidden-text":
			l.inlines(n.Nodes(), p, f)
		case "s":
			l.write(p, f, strings.Repeat(" ", max(atoi(n.Attr("c")), 1)))
			l.space = false
		case "tab":
			l.write(p, f, "\t")
			l.space = false
		case "line-break":
			l.place(p, l.doc.NewBreak(dom.BreakLine), true)
		case "bookmark-start", "bookmark":
			l.marker(p, dom.NodeBookmarkStart, dom.Attrs{Name: n.Attr("name")})
			if name == "bookmark" {
				l.marker(p, dom.NodeBookmarkEnd, dom.Attrs{Name: n.Attr("name")})
			}
		case "bookmark-end":
			l.marker(p, dom.NodeBookmarkEnd, dom.Attrs{Name: n.Attr("name")})
		case "change-start":
			if ch := l.changes[n.Attr("change-id")]; ch != nil {
				l.active = append(l.active, ch)
			}
		case "change-end":
			l.endChange(n.Attr("change-id"))
		case "change":
			l.deleted(n, p, f)
		case "note":
			l.note(n, p)
		case "annotation":
			name := n.Attr("name")
			if name != "" && l.ended[name] {
				l.marker(p, dom.NodeCommentRangeStart, dom.Attrs{CommentID: l.commentID(name)})
				l.pending[name] = n
				continue
			}
			l.comment(n, p)
		case "annotation-end":
			if src, ok := l.pending[n.Attr("name")]; ok {
				delete(l.pending, n.Attr("name"))
				l.marker(p, dom.NodeCommentRangeEnd, dom.Attrs{CommentID: l.commentID(n.Attr("name"))})
				l.comment(src, p)
			}
		case "frame":
			l.frame(n, p, f)
		case "rect", "custom-shape":
			l.shape(dom.ShapeRectangle, n, n.Children(), p, f)
		case "user-field-get", "variable-get":
			l.field(n, p, f, "DOCVARIABLE "+n.Attr("name"))
		case "text-input":
			l.field(n, p, f, n.Attr("description"))
		case "soft-page-break", "reference-mark", "reference-mark-start", "reference-mark-end", "alphabetical-index-mark":
		default:
			if code, ok := fieldCodes[name]; ok {
				l.field(n, p, f, code)
				continue
			}
			l.skip(name)
		}
	}
}

func (l *loader) endChange(id string) {
	for i := len(l.active) - 1; i >= 0; i-- {
		if l.changes[id] == l.active[i] {
			l.active = append(l.active[:i], l.active[i+1:]...)
			return
		}
	}
}

// deleted reads the removed content of a deletion in place of its
// text:change marker.
func (l *loader) deleted(n *xml.Node, p dom.NodeID, f dom.Formatting) {
	ch := l.changes[n.Attr("change-id")]
	if ch == nil || ch.mark.Type != dom.RevisionDeletion {
		return
	}
	saved := l.deleting
	l.deleting = ch.mark
	for _, rp := range ch.region.Children() {
		switch rp.Name() {
		case "p", "h":
			l.inlines(rp.Nodes(), p, f)
		}
	}
	l.flush()
	l.deleting = saved
}

func (l *loader) marker(p dom.NodeID, t dom.NodeType, a dom.Attrs) {
	id, err := l.doc.NewNode(t)
	if err != nil {
		l.fail(err)
		return
	}
	l.fail(l.doc.SetAttrs(id, a))
	l.place(p, id, false)
}

// plain returns the character content of a field element.
func (l *loader) plain(n *xml.Node) string {
	var b strings.Builder
	var walk func(nodes []*xml.Node)
	walk = func(nodes []*xml.Node) {
		for _, c := range nodes {
			switch {
			case c.IsText():
				b.WriteString(l.collapse(c.Text()))
			case c.Name() == "s":
				b.WriteString(strings.Repeat(" ", max(atoi(c.Attr("c")), 1)))
				l.space = false
			case c.Name() == "tab":
				b.WriteByte('\t')
				l.space = false
			default:
				walk(c.Nodes())
			}
		}
	}
	space := l.space
	l.space = false
	walk(n.Nodes())
	l.space = space
	return b.String()
}

func (l *loader) field(n *xml.Node, p dom.NodeID, f dom.Formatting, code string) {
	id := l.doc.NewField(code, l.plain(n))
	l.fail(l.doc.SetFormat(id, f))
	l.place(p, id, true)
}

func (l *loader) note(n *xml.Node, p dom.NodeID) {
	id, err := l.doc.NewNode(dom.NodeFootnote)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Footnote = dom.Footnote
	if n.Attr("note-class") == "endnote" {
		a.Footnote = dom.Endnote
	}
	l.fail(l.doc.SetAttrs(id, a))
	l.place(p, id, true)
	l.story(id, n.Child("note-body").Children())
}

// commentID reads the number at the end of an annotation name, or hands
// out the next free one.
func (l *loader) commentID(name string) int {
	i := strings.LastIndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if n, err := strconv.Atoi(name[i+1:]); err == nil {
		return n
	}
	l.comments++
	return 1000000 + l.comments
}

func (l *loader) comment(n *xml.Node, p dom.NodeID) {
	id, err := l.doc.NewNode(dom.NodeComment)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Author = n.Child("creator").Text()
	a.Date = parseDate(n.Child("date").Text())
	a.Initial = n.Child("creator-initials").Text()
	a.CommentID = l.commentID(n.Attr("name"))
	l.fail(l.doc.SetAttrs(id, a))
	l.place(p, id, true)
	l.story(id, n.Children())
}

// imageData resolves a frame image: a package picture, inline binary data
// or an external reference fetched through the resource loader.
func (l *loader) imageData(img *xml.Node) ([]byte, string, bool) {
	href := strings.TrimPrefix(img.Attr("href"), "./")
	switch {
	case href != "" && l.zip.Has(href):
		data, err := l.zip.Read(href)
		if err != nil {
			l.fail(err)
			return nil, "", false
		}
		return data, base.ImageType(href, data), true
	case img.Child("binary-data") != nil:
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(img.Child("binary-data").Text()), ""))
		if err != nil {
			l.opts.Warn("odt", codec.DataLoss, "undecodable embedded image")
			return nil, "", false
		}
		return data, base.ImageType("", data), true
	case href != "":
		data, ct, ok, err := base.LoadImage(l.opts, "odt", href)
		l.fail(err)
		return data, ct, ok
	}
	return nil, "", false
}

func (l *loader) frame(n *xml.Node, p dom.NodeID, f dom.Formatting) {
	w, h := length(n.Attr("width")), length(n.Attr("height"))
	if img := n.Child("image"); img != nil {
		data, ct, ok := l.imageData(img)
		if !ok {
			return
		}
		id := l.doc.NewImage(ct, data, w, h)
		a := l.doc.Attrs(id)
		a.Alt = n.Child("desc").Text()
		if a.Alt == "" {
			a.Alt = n.Child("title").Text()
		}
		l.fail(l.doc.SetAttrs(id, a))
		l.fail(l.doc.SetFormat(id, f))
		l.place(p, id, true)
		return
	}
	if box := n.Child("text-box"); box != nil {
		l.shape(dom.ShapeTextBox, n, box.Children(), p, f)
		return
	}
	l.skip("frame")
}

func (l *loader) shape(kind dom.ShapeType, n *xml.Node, content []*xml.Node, p dom.NodeID, f dom.Formatting) {
	id, err := l.doc.NewNode(dom.NodeShape)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Shape, a.Width, a.Height = kind, length(n.Attr("width")), length(n.Attr("height"))
	l.fail(l.doc.SetAttrs(id, a))
	l.fail(l.doc.SetFormat(id, f))
	l.place(p, id, true)
	var blocks []*xml.Node
	for _, c := range content {
		switch c.Name() {
		case "p", "h", "list", "table":
			blocks = append(blocks, c)
		}
	}
	l.story(id, blocks)
}

func (l *loader) table(t *xml.Node, parent dom.NodeID, top bool) {
	style := t.Attr("style-name")
	if top {
		l.blockStart(style)
		parent = l.body
	}
	tbl, err := l.doc.NewNode(dom.NodeTable)
	if err != nil {
		l.fail(err)
		return
	}
	name := ""
	if a := l.auto[style]; a != nil {
		name = l.named(a.parent)
	} else if _, ok := l.names[style]; ok {
		name = l.names[style]
	}
	if name != "" {
		l.fail(l.doc.SetFormat(tbl, dom.Formatting{Style: name}))
	}
	if !l.add(parent, tbl) {
		return
	}
	var rows func(nodes []*xml.Node)
	rows = func(nodes []*xml.Node) {
		for _, tr := range nodes {
			switch tr.Name() {
			case "table-row":
				row, err := l.doc.NewNode(dom.NodeRow)
				if err != nil || !l.add(tbl, row) {
					l.fail(err)
					return
				}
				for _, tc := range tr.Children() {
					if tc.Name() != "table-cell" {
						continue
					}
					cell, err := l.doc.NewNode(dom.NodeCell)
					if err != nil || !l.add(row, cell) {
						l.fail(err)
						return
					}
					l.story(cell, tc.Children())
				}
			case "table-header-rows", "table-rows", "table-row-group":
				rows(tr.Children())
			}
		}
	}
	rows(t.Children())
}
