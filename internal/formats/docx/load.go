package docx

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/xml"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

type loader struct {
	doc  *dom.Document
	opts *codec.LoadOptions
	zip  *base.ZipReader
	err  error

	// part and rels describe the part being read.
	part string
	rels map[string]rel

	contentTypes map[string]string
	styleNames   map[string]string
	notes        map[string]*xml.Node
	comments     map[string]*xml.Node
	bookmarks    map[string]string
	skipped      map[string]bool
	moveName     string
	field        *fieldState
}

// fieldState collects a complex field between its begin and end
// characters. Nested fields only contribute their result text.
type fieldState struct {
	code, result strings.Builder
	inResult     bool
	depth        int
	format       dom.Formatting
	mark         *dom.RevisionMark
	fmtMark      *dom.RevisionMark
}

// scope is where inline content goes: the paragraph, or a smart tag
// inside it, plus the revision element enclosing the content.
type scope struct {
	para, parent dom.NodeID
	mark         *dom.RevisionMark
}

func load(data []byte, doc *dom.Document, opts *codec.LoadOptions) error {
	z, err := base.OpenZip(data)
	if err != nil {
		return errors.NewParse("docx", "", err.Error())
	}
	l := &loader{
		doc:          doc,
		opts:         opts,
		zip:          z,
		contentTypes: make(map[string]string),
		styleNames:   make(map[string]string),
		notes:        make(map[string]*xml.Node),
		comments:     make(map[string]*xml.Node),
		bookmarks:    make(map[string]string),
		skipped:      make(map[string]bool),
	}

	main := "word/document.xml"
	pkg := l.readRels("")
	for _, r := range pkg {
		if r.typ == relDocument {
			main = r.target
		}
	}
	x, err := l.parse(main)
	if err != nil {
		return err
	}
	body := x.Root().Child("body")
	if body == nil {
		return errors.NewParse("docx", main, "document has no body")
	}
	l.readContentTypes()
	for _, r := range pkg {
		if r.typ == relCore {
			l.core(r.target)
		}
	}

	l.part, l.rels = main, l.readRels(main)
	for _, r := range sortedRels(l.rels) {
		switch r.typ {
		case relStyles:
			l.styles(r.target)
		case relNumbering:
			l.numbering(r.target)
		case relSettings:
			l.settings(r.target)
		case relFootnotes:
			l.collect(r.target, "footnote", "footnote")
		case relEndnotes:
			l.collect(r.target, "endnote", "endnote")
		case relComments:
			l.collect(r.target, "comment", "")
		case relCustomXML:
			l.customPart(r)
		}
	}
	if l.err != nil {
		return l.err
	}
	if err := l.body(body); err != nil {
		return err
	}
	return l.err
}

func (l *loader) fail(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

// parse reads and parses an XML part.
func (l *loader) parse(name string) (*xml.Document, error) {
	data, err := l.zip.Read(name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewParse("docx", name, "missing part")
		}
		return nil, err
	}
	if err := xml.Validate(data); err != nil {
		return nil, errors.NewParse("docx", name, err.Error())
	}
	x, err := xml.Parse(data)
	if err != nil {
		return nil, errors.NewParse("docx", name, err.Error())
	}
	if x.Root() == nil {
		return nil, errors.NewParse("docx", name, "empty part")
	}
	return x, nil
}

// optional parses a part whose absence only costs data.
func (l *loader) optional(name string) *xml.Node {
	x, err := l.parse(name)
	if err != nil {
		l.opts.Warn("docx", codec.DataLoss, err.Error())
		return nil
	}
	return x.Root()
}

// readRels returns the relationships of part, keyed by id, with targets
// resolved to package paths.
func (l *loader) readRels(part string) map[string]rel {
	name := "_rels/.rels"
	if part != "" {
		name = path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	}
	out := make(map[string]rel)
	if !l.zip.Has(name) {
		return out
	}
	root := l.optional(name)
	for _, r := range root.Children() {
		e := rel{id: r.Attr("Id"), typ: r.Attr("Type"), target: r.Attr("Target"), external: r.Attr("TargetMode") == "External"}
		if !e.external {
			if strings.HasPrefix(e.target, "/") {
				e.target = strings.TrimPrefix(e.target, "/")
			} else {
				e.target = path.Join(path.Dir(part), e.target)
			}
		}
		out[e.id] = e
	}
	return out
}

func sortedRels(m map[string]rel) []rel {
	out := make([]rel, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (l *loader) readContentTypes() {
	if !l.zip.Has("[Content_Types].xml") {
		return
	}
	for _, o := range l.optional("[Content_Types].xml").Children() {
		if o.Name() == "Override" {
			l.contentTypes[strings.TrimPrefix(o.Attr("PartName"), "/")] = o.Attr("ContentType")
		}
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func points(twips string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(twips), 64)
	return v / 20
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func flag(v string) bool {
	return v == "1" || v == "true" || v == "on"
}

// on reports whether a toggle property such as w:b is set.
func on(n *xml.Node) bool {
	if n == nil {
		return false
	}
	switch n.Attr("val") {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

func (l *loader) core(name string) {
	root := l.optional(name)
	if root == nil {
		return
	}
	p := &l.doc.Props
	for _, c := range root.Children() {
		v := c.Text()
		switch c.Name() {
		case "title":
			p.Title = v
		case "subject":
			p.Subject = v
		case "creator":
			p.Author = v
		case "lastModifiedBy":
			p.LastSavedBy = v
		case "revision":
			p.RevisionNumber = atoi(v)
		case "created":
			p.Created = parseDate(v)
		case "modified":
			p.LastSaved = parseDate(v)
		}
	}
}

var styleTypes = map[string]dom.StyleType{
	"paragraph": dom.StyleParagraph,
	"character": dom.StyleCharacter,
	"table":     dom.StyleTable,
	"numbering": dom.StyleList,
}

func (l *loader) styles(name string) {
	root := l.optional(name)
	if root == nil {
		return
	}
	var defs []*xml.Node
	for _, st := range root.Children() {
		if st.Name() != "style" {
			continue
		}
		id := st.Attr("styleId")
		n := st.Child("name").Attr("val")
		if n == "" {
			n = id
		}
		l.styleNames[id] = n
		defs = append(defs, st)
	}
	for _, st := range defs {
		s := dom.Style{
			Name:    l.styleNames[st.Attr("styleId")],
			Type:    styleTypes[st.Attr("type")],
			BasedOn: l.styleNames[st.Child("basedOn").Attr("val")],
			BuiltIn: !flag(st.Attr("customStyle")),
		}
		if s.Type == "" {
			s.Type = dom.StyleParagraph
		}
		pPr, rPr := st.Child("pPr"), st.Child("rPr")
		l.paragraphProps(pPr, &s.Format)
		l.runProps(rPr, &s.Format, false)
		l.doc.Styles().Restore(s)

		pc, rc := pPr.Child("pPrChange"), rPr.Child("rPrChange")
		if pc == nil && rc == nil {
			continue
		}
		src := pc
		if src == nil {
			src = rc
		}
		old := s
		old.Format = dom.Formatting{}
		l.paragraphProps(pc.Child("pPr"), &old.Format)
		l.runProps(rc.Child("rPr"), &old.Format, false)
		m := l.doc.NewMark(dom.RevisionStyleDefinition, src.Attr("author"), parseDate(src.Attr("date")))
		l.doc.SetStyleRevision(s.Name, &dom.StyleRevision{ID: m.ID, Author: m.Author, Date: m.Date, Seq: m.Seq, Old: old})
	}
}

// styleName maps a style id to its name, warning about undefined styles.
func (l *loader) styleName(id string) string {
	if name, ok := l.styleNames[id]; ok {
		return name
	}
	l.opts.Warn("docx", codec.MissingStyle, "style "+id+" is not defined")
	return ""
}

var alignNames = map[string]dom.Alignment{
	"left":       dom.AlignLeft,
	"start":      dom.AlignLeft,
	"center":     dom.AlignCenter,
	"right":      dom.AlignRight,
	"end":        dom.AlignRight,
	"both":       dom.AlignJustify,
	"distribute": dom.AlignJustify,
}

func (l *loader) paragraphProps(pPr *xml.Node, f *dom.Formatting) {
	if pPr == nil {
		return
	}
	if id := pPr.Child("pStyle").Attr("val"); id != "" {
		f.Style = l.styleName(id)
	}
	if num := pPr.Child("numPr"); num != nil {
		f.ListID = atoi(num.Child("numId").Attr("val"))
		f.ListLevel = atoi(num.Child("ilvl").Attr("val"))
	}
	if v, ok := pPr.Child("spacing").LookupAttr("after"); ok {
		f.SpaceAfter = points(v)
	}
	if v := pPr.Child("jc").Attr("val"); v != "" {
		f.Align = alignNames[v]
	}
}

var highlightColors = map[string]string{
	"yellow":      "FFFF00",
	"green":       "00FF00",
	"cyan":        "00FFFF",
	"magenta":     "FF00FF",
	"blue":        "0000FF",
	"red":         "FF0000",
	"darkBlue":    "000080",
	"darkCyan":    "008080",
	"darkGreen":   "008000",
	"darkMagenta": "800080",
	"darkRed":     "800000",
	"darkYellow":  "808000",
	"darkGray":    "808080",
	"lightGray":   "C0C0C0",
	"black":       "000000",
	"white":       "FFFFFF",
}

func (l *loader) runProps(rPr *xml.Node, f *dom.Formatting, withStyle bool) {
	if rPr == nil {
		return
	}
	if id := rPr.Child("rStyle").Attr("val"); withStyle && id != "" {
		f.Style = l.styleName(id)
	}
	if fonts := rPr.Child("rFonts"); fonts != nil {
		if f.Font = fonts.Attr("ascii"); f.Font == "" {
			f.Font = fonts.Attr("hAnsi")
		}
	}
	f.Bold = f.Bold || on(rPr.Child("b"))
	f.Italic = f.Italic || on(rPr.Child("i"))
	f.Strike = f.Strike || on(rPr.Child("strike")) || on(rPr.Child("dstrike"))
	f.Underline = f.Underline || on(rPr.Child("u"))
	if c := rPr.Child("color").Attr("val"); c != "" && c != "auto" {
		f.Color = strings.ToUpper(c)
	}
	if sz := rPr.Child("sz").Attr("val"); sz != "" {
		v, _ := strconv.ParseFloat(sz, 64)
		f.Size = v / 2
	}
	if h := highlightColors[rPr.Child("highlight").Attr("val")]; h != "" {
		f.Highlight = h
	}
	if fill := rPr.Child("shd").Attr("fill"); fill != "" && fill != "auto" {
		f.Highlight = strings.ToUpper(fill)
	}
}

var numberStyles = map[string]dom.NumberStyle{
	"bullet":      dom.NumberBullet,
	"decimal":     dom.NumberArabic,
	"lowerLetter": dom.NumberLowerLatin,
	"upperRoman":  dom.NumberUpperRoman,
}

func (l *loader) numbering(name string) {
	root := l.optional(name)
	if root == nil {
		return
	}
	abstract := make(map[string][]dom.ListLevel)
	for _, a := range root.Children() {
		if a.Name() != "abstractNum" {
			continue
		}
		var levels []dom.ListLevel
		for _, lvl := range a.Children() {
			if lvl.Name() != "lvl" {
				continue
			}
			style, ok := numberStyles[lvl.Child("numFmt").Attr("val")]
			if !ok {
				style = dom.NumberArabic
			}
			i := atoi(lvl.Attr("ilvl"))
			for len(levels) <= i {
				levels = append(levels, dom.ListLevel{Style: dom.NumberArabic})
			}
			levels[i] = dom.ListLevel{
				Style:  style,
				Text:   lvl.Child("lvlText").Attr("val"),
				Indent: points(lvl.Child("pPr").Child("ind").Attr("left")),
			}
		}
		abstract[a.Attr("abstractNumId")] = levels
	}
	for _, n := range root.Children() {
		if n.Name() != "num" {
			continue
		}
		id := atoi(n.Attr("numId"))
		if id == 0 {
			continue
		}
		l.doc.Lists().Put(dom.ListDef{ID: id, Levels: abstract[n.Child("abstractNumId").Attr("val")]})
	}
}

func (l *loader) settings(name string) {
	root := l.optional(name)
	for _, v := range root.Child("docVars").Children() {
		if v.Name() == "docVar" {
			l.doc.Variables().Set(v.Attr("name"), v.Attr("val"))
		}
	}
}

// collect indexes the notes or comments of a part by id. Separator notes
// carry a w:type and are skipped.
func (l *loader) collect(name, item, prefix string) {
	root := l.optional(name)
	for _, n := range root.Children() {
		if n.Name() != item {
			continue
		}
		if t := n.Attr("type"); t != "" && t != "normal" {
			continue
		}
		if prefix == "" {
			l.comments[n.Attr("id")] = n
		} else {
			l.notes[prefix+n.Attr("id")] = n
		}
	}
}

func (l *loader) customPart(r rel) {
	if r.external {
		l.doc.CustomParts().Add(dom.CustomPart{Name: r.target, External: true})
		return
	}
	data, err := l.zip.Read(r.target)
	if err != nil {
		l.opts.Warn("docx", codec.DataLoss, err.Error())
		return
	}
	l.doc.CustomParts().Add(dom.CustomPart{
		Name:        strings.TrimPrefix(r.target, "customXml/"),
		ContentType: l.contentTypes[r.target],
		Data:        data,
	})
}

// body reads the main story. A w:sectPr inside a paragraph closes the
// section holding that paragraph.
func (l *loader) body(body *xml.Node) error {
	sec, b, err := base.NewSection(l.doc)
	if err != nil {
		return err
	}
	final := false
	var walk func(nodes []*xml.Node) error
	walk = func(nodes []*xml.Node) error {
		for _, c := range nodes {
			if err := l.opts.Err(); err != nil {
				return err
			}
			switch c.Name() {
			case "p":
				sp := c.Child("pPr").Child("sectPr")
				if sp == nil || !carrier(c) {
					l.paragraph(c, b)
				}
				if sp != nil {
					l.sectionProps(sec, sp)
					if sec, b, err = base.NewSection(l.doc); err != nil {
						return err
					}
				}
			case "tbl":
				l.table(c, b)
			case "sectPr":
				l.sectionProps(sec, c)
				final = true
			case "sdt":
				if err := walk(c.Child("sdtContent").Children()); err != nil {
					return err
				}
			case "customXml":
				if err := walk(c.Children()); err != nil {
					return err
				}
			default:
				l.skip(c.Name())
			}
			if l.err != nil {
				return l.err
			}
		}
		return nil
	}
	if err := walk(body.Children()); err != nil {
		return err
	}
	if !final && len(l.doc.Sections()) > 1 && l.doc.ChildCount(b) == 0 {
		return l.doc.Remove(sec)
	}
	return nil
}

// carrier reports whether p is a hidden empty paragraph that only holds
// section properties.
func carrier(p *xml.Node) bool {
	for _, c := range p.Children() {
		if c.Name() != "pPr" {
			return false
		}
	}
	return on(p.Child("pPr").Child("rPr").Child("vanish"))
}

var markTypes = map[string]dom.RevisionType{
	"ins":      dom.RevisionInsertion,
	"del":      dom.RevisionDeletion,
	"moveFrom": dom.RevisionMoveFrom,
	"moveTo":   dom.RevisionMoveTo,
}

func (l *loader) mark(n *xml.Node, t dom.RevisionType) *dom.RevisionMark {
	m := l.doc.NewMark(t, n.Attr("author"), parseDate(n.Attr("date")))
	if t == dom.RevisionMoveFrom || t == dom.RevisionMoveTo {
		m.PairID = l.moveName
	}
	return &m
}

// formatMark reads a property change element. extra adds the old
// paragraph properties of a paragraph mark.
func (l *loader) formatMark(change *xml.Node, withStyle bool, extra *xml.Node) *dom.RevisionMark {
	src := change
	if src == nil {
		src = extra
	}
	if src == nil {
		return nil
	}
	m := l.doc.NewMark(dom.RevisionFormatChange, src.Attr("author"), parseDate(src.Attr("date")))
	old := dom.Formatting{}
	l.runProps(change.Child("rPr"), &old, withStyle)
	l.paragraphProps(extra.Child("pPr"), &old)
	m.OldFormat = &old
	return &m
}

func (l *loader) add(parent, child dom.NodeID) bool {
	if err := l.doc.AppendChild(parent, child); err != nil {
		l.fail(err)
		return false
	}
	return true
}

func (l *loader) skip(name string) {
	switch name {
	case "pPr", "rPr", "proofErr", "lastRenderedPageBreak", "bookmarkEnd", "permStart", "permEnd", "tblPr", "tblGrid", "trPr", "tcPr", "sdtPr", "sdtEndPr":
		return
	}
	if !l.skipped[name] {
		l.skipped[name] = true
		l.opts.Warn("docx", codec.DataLoss, "unsupported element "+name+" skipped")
	}
}

func (l *loader) paragraph(px *xml.Node, parent dom.NodeID) {
	p, err := l.doc.NewNode(dom.NodeParagraph)
	if err != nil {
		l.fail(err)
		return
	}
	var f dom.Formatting
	pPr := px.Child("pPr")
	rPr := pPr.Child("rPr")
	l.paragraphProps(pPr, &f)
	l.runProps(rPr, &f, false)
	l.fail(l.doc.SetFormat(p, f))
	if !l.add(parent, p) {
		return
	}
	for name, t := range markTypes {
		if n := rPr.Child(name); n != nil {
			l.fail(l.doc.SetContentMark(p, l.mark(n, t)))
		}
	}
	if fm := l.formatMark(rPr.Child("rPrChange"), false, pPr.Child("pPrChange")); fm != nil {
		l.fail(l.doc.SetFormatMark(p, fm))
	}
	l.field = nil
	l.inlines(px.Children(), scope{para: p, parent: p})
}

// place appends an inline node, falling back to the paragraph when the
// current parent cannot hold it.
func (l *loader) place(sc scope, id dom.NodeID, fm *dom.RevisionMark) {
	parent := sc.parent
	if !l.doc.Type(parent).CanContain(l.doc.Type(id)) {
		parent = sc.para
	}
	if !l.add(parent, id) {
		return
	}
	if sc.mark != nil {
		l.fail(l.doc.SetContentMark(id, sc.mark))
	}
	if fm != nil {
		l.fail(l.doc.SetFormatMark(id, fm))
	}
}

func (l *loader) inlines(nodes []*xml.Node, sc scope) {
	for _, n := range nodes {
		switch name := n.Name(); name {
		case "r":
			l.run(n, sc)
		case "ins", "del", "moveFrom", "moveTo":
			inner := sc
			inner.mark = l.mark(n, markTypes[name])
			l.inlines(n.Children(), inner)
		case "moveFromRangeStart", "moveToRangeStart":
			l.moveName = strings.TrimPrefix(n.Attr("name"), "move")
		case "moveFromRangeEnd", "moveToRangeEnd":
			l.moveName = ""
		case "fldSimple":
			var f dom.Formatting
			var result strings.Builder
			for i, r := range n.Children() {
				if i == 0 {
					l.runProps(r.Child("rPr"), &f, true)
				}
				result.WriteString(runText(r))
			}
			field := l.doc.NewField(strings.TrimSpace(n.Attr("instr")), result.String())
			l.fail(l.doc.SetFormat(field, f))
			l.place(sc, field, nil)
		case "hyperlink", "customXml", "dir", "bdo":
			l.inlines(n.Children(), sc)
		case "sdt":
			l.inlines(n.Child("sdtContent").Children(), sc)
		case "smartTag":
			tag, err := l.doc.NewNode(dom.NodeSmartTag)
			if err != nil {
				l.fail(err)
				continue
			}
			a := l.doc.Attrs(tag)
			a.Name = n.Attr("element")
			l.fail(l.doc.SetAttrs(tag, a))
			l.place(sc, tag, nil)
			inner := sc
			inner.parent = tag
			l.inlines(n.Children(), inner)
		case "bookmarkStart":
			l.bookmarks[n.Attr("id")] = n.Attr("name")
			l.marker(sc, dom.NodeBookmarkStart, dom.Attrs{Name: n.Attr("name")})
		case "bookmarkEnd":
			if bm, ok := l.bookmarks[n.Attr("id")]; ok {
				l.marker(sc, dom.NodeBookmarkEnd, dom.Attrs{Name: bm})
			}
		case "commentRangeStart":
			l.marker(sc, dom.NodeCommentRangeStart, dom.Attrs{CommentID: atoi(n.Attr("id"))})
		case "commentRangeEnd":
			l.marker(sc, dom.NodeCommentRangeEnd, dom.Attrs{CommentID: atoi(n.Attr("id"))})
		default:
			l.skip(name)
		}
	}
}

func (l *loader) marker(sc scope, t dom.NodeType, a dom.Attrs) {
	id, err := l.doc.NewNode(t)
	if err != nil {
		l.fail(err)
		return
	}
	l.fail(l.doc.SetAttrs(id, a))
	if !l.doc.Type(sc.parent).CanContain(t) {
		sc.parent = sc.para
	}
	l.add(sc.parent, id)
}

// runText returns the visible text of a run.
func runText(r *xml.Node) string {
	var b strings.Builder
	for _, c := range r.Children() {
		switch c.Name() {
		case "t", "delText":
			b.WriteString(c.Text())
		case "tab":
			b.WriteByte('\t')
		}
	}
	return b.String()
}

func (l *loader) run(r *xml.Node, sc scope) {
	var f dom.Formatting
	rPr := r.Child("rPr")
	l.runProps(rPr, &f, true)
	var fm *dom.RevisionMark
	if c := rPr.Child("rPrChange"); c != nil {
		fm = l.formatMark(c, true, nil)
	}

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			l.place(sc, l.doc.NewRun(text.String(), f), fm)
			text.Reset()
		}
	}
	write := func(s string) {
		switch {
		case l.field == nil:
			text.WriteString(s)
		case l.field.inResult:
			l.field.result.WriteString(s)
		}
	}
	for _, c := range r.Children() {
		switch c.Name() {
		case "t", "delText":
			write(c.Text())
		case "tab":
			write("\t")
		case "noBreakHyphen":
			write("-")
		case "instrText", "delInstrText":
			if l.field != nil && l.field.depth == 0 && !l.field.inResult {
				l.field.code.WriteString(c.Text())
			}
		case "fldChar":
			flush()
			l.fieldChar(c.Attr("fldCharType"), f, fm, sc)
		case "br", "cr":
			flush()
			kind := dom.BreakLine
			switch c.Attr("type") {
			case "page":
				kind = dom.BreakPage
			case "column":
				kind = dom.BreakColumn
			}
			br := l.doc.NewBreak(kind)
			l.fail(l.doc.SetFormat(br, f))
			l.place(sc, br, fm)
		case "footnoteReference", "endnoteReference":
			flush()
			l.note(c, f, sc)
		case "commentReference":
			flush()
			l.comment(c.Attr("id"), sc)
		case "drawing":
			flush()
			l.drawing(c, f, sc)
		case "pict", "object":
			flush()
			l.pict(c, f, sc)
		case "AlternateContent":
			flush()
			if fb := c.Child("Fallback"); fb != nil {
				for _, p := range fb.Children() {
					if p.Name() == "pict" {
						l.pict(p, f, sc)
					}
				}
			} else if ch := c.Child("Choice"); ch != nil {
				if d := ch.Child("drawing"); d != nil {
					l.drawing(d, f, sc)
				}
			}
		case "rPr", "footnoteRef", "endnoteRef", "separator", "continuationSeparator", "lastRenderedPageBreak", "softHyphen":
		default:
			l.skip(c.Name())
		}
	}
	flush()
}

func (l *loader) fieldChar(typ string, f dom.Formatting, fm *dom.RevisionMark, sc scope) {
	switch typ {
	case "begin":
		if l.field != nil {
			l.field.depth++
			return
		}
		l.field = &fieldState{format: f, mark: sc.mark, fmtMark: fm}
	case "separate":
		if l.field != nil && l.field.depth == 0 {
			l.field.inResult = true
		}
	case "end":
		if l.field == nil {
			return
		}
		if l.field.depth > 0 {
			l.field.depth--
			return
		}
		fs := l.field
		l.field = nil
		id := l.doc.NewField(strings.TrimSpace(fs.code.String()), fs.result.String())
		l.fail(l.doc.SetFormat(id, fs.format))
		sc.mark = fs.mark
		l.place(sc, id, fs.fmtMark)
	}
}

// story fills a story node with the blocks of an XML element. Tables in
// stories that cannot hold them are dropped with a warning.
func (l *loader) story(node dom.NodeID, nodes []*xml.Node) {
	field := l.field
	for _, c := range nodes {
		switch c.Name() {
		case "p":
			l.paragraph(c, node)
		case "tbl":
			if l.doc.Type(node).CanContain(dom.NodeTable) {
				l.table(c, node)
			} else {
				l.opts.Warn("docx", codec.DataLoss, "table in "+string(l.doc.Type(node))+" dropped")
			}
		case "sdt":
			l.story(node, c.Child("sdtContent").Children())
		default:
			l.skip(c.Name())
		}
	}
	l.field = field
}

func (l *loader) table(t *xml.Node, parent dom.NodeID) {
	tbl, err := l.doc.NewNode(dom.NodeTable)
	if err != nil {
		l.fail(err)
		return
	}
	if id := t.Child("tblPr").Child("tblStyle").Attr("val"); id != "" {
		l.fail(l.doc.SetFormat(tbl, dom.Formatting{Style: l.styleName(id)}))
	}
	if !l.add(parent, tbl) {
		return
	}
	var rows func(nodes []*xml.Node)
	rows = func(nodes []*xml.Node) {
		for _, tr := range nodes {
			switch tr.Name() {
			case "tr":
				row, err := l.doc.NewNode(dom.NodeRow)
				if err != nil || !l.add(tbl, row) {
					l.fail(err)
					return
				}
				for _, tc := range tr.Children() {
					if tc.Name() != "tc" {
						continue
					}
					cell, err := l.doc.NewNode(dom.NodeCell)
					if err != nil || !l.add(row, cell) {
						l.fail(err)
						return
					}
					l.story(cell, tc.Children())
				}
			case "sdt":
				rows(tr.Child("sdtContent").Children())
			}
		}
	}
	rows(t.Children())
}

func (l *loader) note(ref *xml.Node, f dom.Formatting, sc scope) {
	kind := dom.Footnote
	if ref.Name() == "endnoteReference" {
		kind = dom.Endnote
	}
	src, ok := l.notes[string(kind)+ref.Attr("id")]
	if !ok {
		l.opts.Warn("docx", codec.DataLoss, string(kind)+" "+ref.Attr("id")+" not found")
		return
	}
	id, err := l.doc.NewNode(dom.NodeFootnote)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Footnote = kind
	l.fail(l.doc.SetAttrs(id, a))
	f.Style = ""
	l.fail(l.doc.SetFormat(id, f))
	l.place(sc, id, nil)
	l.story(id, src.Children())
}

func (l *loader) comment(ref string, sc scope) {
	src, ok := l.comments[ref]
	if !ok {
		l.opts.Warn("docx", codec.DataLoss, "comment "+ref+" not found")
		return
	}
	id, err := l.doc.NewNode(dom.NodeComment)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Author = src.Attr("author")
	a.Initial = src.Attr("initials")
	a.Date = parseDate(src.Attr("date"))
	a.CommentID = atoi(ref)
	l.fail(l.doc.SetAttrs(id, a))
	l.place(sc, id, nil)
	l.story(id, src.Children())
}

// image resolves a relationship to picture bytes. Linked pictures are
// fetched through the resource loader.
func (l *loader) image(rid string, link bool) ([]byte, string, bool) {
	r, ok := l.rels[rid]
	if !ok {
		l.opts.Warn("docx", codec.DataLoss, "image relationship "+rid+" not found")
		return nil, "", false
	}
	if link || r.external {
		data, ct, ok, err := base.LoadImage(l.opts, "docx", r.target)
		l.fail(err)
		return data, ct, ok
	}
	data, err := l.zip.Read(r.target)
	if err != nil {
		l.opts.Warn("docx", codec.DataLoss, err.Error())
		return nil, "", false
	}
	return data, base.ImageType(r.target, data), true
}

func (l *loader) drawing(d *xml.Node, f dom.Formatting, sc scope) {
	extent, _ := d.XPathFirst(".//" + xml.Local("extent"))
	w := emuPoints(extent.Attr("cx"))
	h := emuPoints(extent.Attr("cy"))
	if box, _ := d.XPathFirst(".//" + xml.Local("txbxContent")); box != nil {
		l.shapeNode(dom.ShapeTextBox, w, h, box, f, sc)
		return
	}
	blip, _ := d.XPathFirst(".//" + xml.Local("blip"))
	if blip == nil {
		l.opts.Warn("docx", codec.DataLoss, "drawing without picture skipped")
		return
	}
	rid, link := blip.Attr("embed"), false
	if rid == "" {
		rid, link = blip.Attr("link"), true
	}
	data, ct, ok := l.image(rid, link)
	if !ok {
		return
	}
	img := l.doc.NewImage(ct, data, w, h)
	if pr, _ := d.XPathFirst(".//" + xml.Local("docPr")); pr != nil {
		a := l.doc.Attrs(img)
		a.Alt = pr.Attr("descr")
		l.fail(l.doc.SetAttrs(img, a))
	}
	l.fail(l.doc.SetFormat(img, f))
	l.place(sc, img, nil)
}

func emuPoints(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v / 12700
}

// vmlSize reads width and height from a VML style attribute.
func vmlSize(style string) (w, h float64) {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		scale := 1.0
		switch {
		case strings.HasSuffix(v, "pt"):
			v = strings.TrimSuffix(v, "pt")
		case strings.HasSuffix(v, "in"):
			v, scale = strings.TrimSuffix(v, "in"), 72
		case strings.HasSuffix(v, "px"):
			v, scale = strings.TrimSuffix(v, "px"), 0.75
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(k) {
		case "width":
			w = n * scale
		case "height":
			h = n * scale
		}
	}
	return w, h
}

func (l *loader) pict(p *xml.Node, f dom.Formatting, sc scope) {
	for _, c := range p.Children() {
		kind := dom.ShapeTextBox
		switch c.Name() {
		case "rect", "roundrect":
			kind = dom.ShapeRectangle
		case "shape", "oval":
		default:
			continue
		}
		w, h := vmlSize(c.Attr("style"))
		if img := c.Child("imagedata"); img != nil {
			data, ct, ok := l.image(img.Attr("id"), false)
			if ok {
				id := l.doc.NewImage(ct, data, w, h)
				l.fail(l.doc.SetFormat(id, f))
				l.place(sc, id, nil)
			}
			continue
		}
		box, _ := c.XPathFirst(".//" + xml.Local("txbxContent"))
		l.shapeNode(kind, w, h, box, f, sc)
	}
}

func (l *loader) shapeNode(kind dom.ShapeType, w, h float64, box *xml.Node, f dom.Formatting, sc scope) {
	id, err := l.doc.NewNode(dom.NodeShape)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(id)
	a.Shape, a.Width, a.Height = kind, w, h
	l.fail(l.doc.SetAttrs(id, a))
	l.fail(l.doc.SetFormat(id, f))
	l.place(sc, id, nil)
	if box != nil {
		l.story(id, box.Children())
	}
}

var headerSlots = map[string][2]dom.HeaderFooterType{
	"default": {dom.HeaderPrimary, dom.FooterPrimary},
	"first":   {dom.HeaderFirst, dom.FooterFirst},
	"even":    {dom.HeaderEven, dom.FooterEven},
}

func (l *loader) sectionProps(sec dom.NodeID, sp *xml.Node) {
	a := l.doc.Attrs(sec)
	switch sp.Child("type").Attr("val") {
	case "continuous":
		a.SectionStart = dom.SectionContinuous
	case "nextColumn":
		a.SectionStart = dom.SectionNewColumn
	default:
		a.SectionStart = dom.SectionNewPage
	}
	if sz := sp.Child("pgSz"); sz != nil {
		pg := dom.DefaultPageSetup()
		pg.Width, pg.Height = points(sz.Attr("w")), points(sz.Attr("h"))
		if m := sp.Child("pgMar"); m != nil {
			pg.MarginTop, pg.MarginRight = points(m.Attr("top")), points(m.Attr("right"))
			pg.MarginBottom, pg.MarginLeft = points(m.Attr("bottom")), points(m.Attr("left"))
		}
		if cols := sp.Child("cols"); cols != nil {
			pg.Columns = max(atoi(cols.Attr("num")), 1)
			if v, ok := cols.LookupAttr("space"); ok {
				pg.ColumnGap = points(v)
			}
		}
		a.Page = &pg
	}
	l.fail(l.doc.SetAttrs(sec, a))

	for _, ref := range sp.Children() {
		header := ref.Name() == "headerReference"
		if !header && ref.Name() != "footerReference" {
			continue
		}
		slots, ok := headerSlots[ref.Attr("type")]
		if !ok {
			slots = headerSlots["default"]
		}
		slot := slots[1]
		if header {
			slot = slots[0]
		}
		r, ok := l.rels[ref.Attr("id")]
		if !ok {
			l.opts.Warn("docx", codec.DataLoss, "header or footer "+ref.Attr("id")+" not found")
			continue
		}
		l.headerFooter(sec, slot, r.target)
	}
}

// headerFooter reads a header or footer part with its own relationships.
func (l *loader) headerFooter(sec dom.NodeID, slot dom.HeaderFooterType, name string) {
	root := l.optional(name)
	if root == nil {
		return
	}
	hf, err := l.doc.NewNode(dom.NodeHeaderFooter)
	if err != nil {
		l.fail(err)
		return
	}
	a := l.doc.Attrs(hf)
	a.HeaderFooter = slot
	l.fail(l.doc.SetAttrs(hf, a))
	if !l.add(sec, hf) {
		return
	}
	part, rels := l.part, l.rels
	l.part, l.rels = name, l.readRels(name)
	l.story(hf, root.Children())
	l.part, l.rels = part, rels
}
