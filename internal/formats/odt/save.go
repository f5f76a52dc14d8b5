package odt

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/xml"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// autoStyles collects the automatic styles of one part, writing each
// distinct style once.
type autoStyles struct {
	prefix string
	w      *xml.Writer
	names  map[string]string
	count  map[string]int
}

func newAutoStyles(prefix string) *autoStyles {
	return &autoStyles{prefix: prefix, w: xml.NewFragment(), names: make(map[string]string), count: make(map[string]int)}
}

func (a *autoStyles) get(letter, key string, write func(x *xml.Writer, name string)) string {
	k := letter + "|" + key
	if n, ok := a.names[k]; ok {
		return n
	}
	a.count[letter]++
	n := a.prefix + letter + strconv.Itoa(a.count[letter])
	a.names[k] = n
	write(a.w, n)
	return n
}

type saver struct {
	doc  *dom.Document
	opts *codec.SaveOptions

	x    *xml.Writer
	auto *autoStyles

	content, shared *autoStyles
	changes         *xml.Writer
	masters         *xml.Writer
	changeN         int
	files           map[string][]byte
	manifest        [][2]string
	media           map[string]string
	comments        map[int]dom.NodeID
	written         map[dom.NodeID]bool
	ranged          map[dom.NodeID]bool
	master          string
	frames          int
	notes           int
	tables          int
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	s := &saver{
		doc:      doc,
		opts:     opts,
		content:  newAutoStyles(""),
		shared:   newAutoStyles("H"),
		changes:  xml.NewFragment(),
		masters:  xml.NewFragment(),
		files:    make(map[string][]byte),
		media:    make(map[string]string),
		comments: make(map[int]dom.NodeID),
		written:  make(map[dom.NodeID]bool),
		ranged:   make(map[dom.NodeID]bool),
	}
	for _, c := range doc.ChildNodes(doc.Root(), dom.NodeComment, true) {
		id := doc.Attrs(c).CommentID
		if _, ok := s.comments[id]; !ok {
			s.comments[id] = c
		}
	}

	body, err := s.body()
	if err != nil {
		return err
	}
	s.addFile("content.xml", "text/xml", s.contentPart(body))
	s.addFile("styles.xml", "text/xml", s.stylesPart())
	s.addFile("meta.xml", "text/xml", s.metaPart())
	s.customParts()

	zw := base.NewZipWriter(w, opts.Timestamp(doc))
	if err := zw.Store("mimetype", []byte(mimeType)); err != nil {
		return err
	}
	if err := zw.Add("META-INF/manifest.xml", s.manifestPart()); err != nil {
		return err
	}
	for _, e := range s.manifest {
		if err := zw.Add(e[0], s.files[e[0]]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (s *saver) addFile(name, mediaType string, data []byte) {
	if _, ok := s.files[name]; !ok {
		s.manifest = append(s.manifest, [2]string{name, mediaType})
	}
	s.files[name] = data
}

func pt(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "pt"
}

func odfDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05")
}

// encodeName turns a display name into a style name. Characters outside
// [A-Za-z0-9-] become _hex_, so "Quote Block" is "Quote_20_Block".
func encodeName(name string) string {
	if name == "Normal" {
		return "Standard"
	}
	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			b.WriteRune(r)
			continue
		}
		fmt.Fprintf(&b, "_%x_", r)
	}
	return b.String()
}

// styleName returns the style name of a defined style.
func (s *saver) styleName(name string) string {
	if name == "" {
		return ""
	}
	if _, ok := s.doc.Styles().Get(name); !ok {
		return ""
	}
	return encodeName(name)
}

func listStyleName(id int) string {
	return "L" + strconv.Itoa(id)
}

func charOnly(f dom.Formatting) dom.Formatting {
	return dom.Formatting{Font: f.Font, Size: f.Size, Bold: f.Bold, Italic: f.Italic,
		Underline: f.Underline, Strike: f.Strike, Color: f.Color, Highlight: f.Highlight}
}

var alignments = map[dom.Alignment]string{
	dom.AlignLeft:    "start",
	dom.AlignCenter:  "center",
	dom.AlignRight:   "end",
	dom.AlignJustify: "justify",
}

func textProps(x *xml.Writer, f dom.Formatting) {
	if f.IsZero() {
		return
	}
	var attrs []string
	if f.Font != "" {
		attrs = append(attrs, "fo:font-family", f.Font)
	}
	if f.Size != 0 {
		attrs = append(attrs, "fo:font-size", pt(f.Size))
	}
	if f.Bold {
		attrs = append(attrs, "fo:font-weight", "bold")
	}
	if f.Italic {
		attrs = append(attrs, "fo:font-style", "italic")
	}
	if f.Underline {
		attrs = append(attrs, "style:text-underline-style", "solid", "style:text-underline-width", "auto", "style:text-underline-color", "font-color")
	}
	if f.Strike {
		attrs = append(attrs, "style:text-line-through-style", "solid")
	}
	if f.Color != "" {
		attrs = append(attrs, "fo:color", "#"+f.Color)
	}
	if f.Highlight != "" {
		attrs = append(attrs, "fo:background-color", "#"+f.Highlight)
	}
	x.Empty("style:text-properties", attrs...)
}

func paragraphProps(x *xml.Writer, f dom.Formatting, before, after dom.BreakType) {
	var attrs []string
	if f.Align != "" {
		attrs = append(attrs, "fo:text-align", alignments[f.Align])
	}
	if f.SpaceAfter != 0 {
		attrs = append(attrs, "fo:margin-bottom", pt(f.SpaceAfter))
	}
	if before != "" {
		attrs = append(attrs, "fo:break-before", string(before))
	}
	if after != "" {
		attrs = append(attrs, "fo:break-after", string(after))
	}
	if len(attrs) > 0 {
		x.Empty("style:paragraph-properties", attrs...)
	}
}

type paraStyle struct {
	f             dom.Formatting
	before, after dom.BreakType
	master        string
}

func (s *saver) paragraphStyle(ps paraStyle) string {
	f := ps.f
	if f.Align == "" && f.SpaceAfter == 0 && charOnly(f).IsZero() && ps.before == "" && ps.after == "" && ps.master == "" {
		return s.styleName(f.Style)
	}
	return s.auto.get("P", fmt.Sprintf("%+v", ps), func(x *xml.Writer, name string) {
		x.Start("style:style", "style:name", name, "style:family", "paragraph",
			"style:parent-style-name", s.styleName(f.Style), "style:master-page-name", ps.master)
		paragraphProps(x, f, ps.before, ps.after)
		textProps(x, charOnly(f))
		x.End()
	})
}

func (s *saver) textStyle(f dom.Formatting) string {
	c := charOnly(f)
	if c.IsZero() {
		return s.styleName(f.Style)
	}
	parent := s.styleName(f.Style)
	return s.auto.get("T", fmt.Sprintf("%+v|%s", c, parent), func(x *xml.Writer, name string) {
		x.Start("style:style", "style:name", name, "style:family", "text", "style:parent-style-name", parent)
		textProps(x, c)
		x.End()
	})
}

func (s *saver) body() ([]byte, error) {
	s.x, s.auto = xml.NewFragment(), s.content
	for i, sec := range s.doc.Sections() {
		if err := s.opts.Err(); err != nil {
			return nil, err
		}
		a := s.doc.Attrs(sec)
		blocks := s.doc.Children(s.doc.Body(sec))
		if i == 0 || a.SectionStart == dom.SectionNewPage {
			s.master = s.masterPage(sec, i+1)
			s.blocks(blocks)
			if s.master != "" {
				s.x.Empty("text:p", "text:style-name", s.paragraphStyle(paraStyle{master: s.master}))
				s.master = ""
			}
			continue
		}
		style := ""
		if pg := a.Page; pg != nil {
			cols, gap := max(pg.Columns, 1), pg.ColumnGap
			style = s.auto.get("Sect", fmt.Sprint(cols, gap), func(x *xml.Writer, name string) {
				x.Start("style:style", "style:name", name, "style:family", "section")
				x.Start("style:section-properties")
				x.Empty("style:columns", "fo:column-count", strconv.Itoa(cols), "fo:column-gap", pt(gap))
				x.End()
				x.End()
			})
		}
		s.x.Start("text:section", "text:style-name", style, "text:name", "Section"+strconv.Itoa(i+1))
		s.blocks(blocks)
		s.x.End()
	}
	return s.x.Bytes(), nil
}

// masterPage writes the page layout and master page of a section that
// starts a new page, with its headers and footers.
func (s *saver) masterPage(sec dom.NodeID, n int) string {
	name, layout := "MP"+strconv.Itoa(n), "PL"+strconv.Itoa(n)
	a := s.doc.Attrs(sec)

	w := s.shared.w
	w.Start("style:page-layout", "style:name", layout)
	if pg := a.Page; pg != nil {
		w.Start("style:page-layout-properties", "fo:page-width", pt(pg.Width), "fo:page-height", pt(pg.Height),
			"fo:margin-top", pt(pg.MarginTop), "fo:margin-bottom", pt(pg.MarginBottom),
			"fo:margin-left", pt(pg.MarginLeft), "fo:margin-right", pt(pg.MarginRight))
		w.Empty("style:columns", "fo:column-count", strconv.Itoa(max(pg.Columns, 1)), "fo:column-gap", pt(pg.ColumnGap))
		w.End()
	}
	w.End()

	px, pauto := s.x, s.auto
	s.x, s.auto = s.masters, s.shared
	s.x.Start("style:master-page", "style:name", name, "style:page-layout-name", layout)
	for _, slot := range []dom.HeaderFooterType{dom.HeaderPrimary, dom.HeaderEven, dom.HeaderFirst, dom.FooterPrimary, dom.FooterEven, dom.FooterFirst} {
		hf := s.doc.HeaderFooter(sec, slot)
		if hf == dom.NoNode {
			continue
		}
		s.x.Start(headerTags[slot])
		s.storyBlocks(hf)
		s.x.End()
	}
	s.x.End()
	s.x, s.auto = px, pauto
	return name
}

var headerTags = map[dom.HeaderFooterType]string{
	dom.HeaderPrimary: "style:header",
	dom.HeaderEven:    "style:header-left",
	dom.HeaderFirst:   "style:header-first",
	dom.FooterPrimary: "style:footer",
	dom.FooterEven:    "style:footer-left",
	dom.FooterFirst:   "style:footer-first",
}

func (s *saver) storyBlocks(node dom.NodeID) {
	blocks := s.doc.Children(node)
	if len(blocks) == 0 {
		s.x.Empty("text:p")
		return
	}
	s.blocks(blocks)
}

// blocks writes story content. Consecutive paragraphs of one list share a
// text:list element.
func (s *saver) blocks(ids []dom.NodeID) {
	for i := 0; i < len(ids); i++ {
		id := ids[i]
		switch s.doc.Type(id) {
		case dom.NodeParagraph:
			list := s.doc.Format(id).ListID
			if list == 0 {
				s.paragraph(id)
				continue
			}
			j := i
			for j+1 < len(ids) && s.doc.Type(ids[j+1]) == dom.NodeParagraph && s.doc.Format(ids[j+1]).ListID == list {
				j++
			}
			s.list(list, ids[i:j+1])
			i = j
		case dom.NodeTable:
			s.table(id)
		}
	}
}

// list nests each item as deep as its level.
func (s *saver) list(id int, paras []dom.NodeID) {
	x := s.x
	x.Start("text:list", "text:style-name", listStyleName(id))
	for _, p := range paras {
		lvl := s.doc.Format(p).ListLevel
		x.Start("text:list-item")
		for i := 0; i < lvl; i++ {
			x.Start("text:list")
			x.Start("text:list-item")
		}
		s.paragraph(p)
		for i := 0; i < lvl; i++ {
			x.End()
			x.End()
		}
		x.End()
	}
	x.End()
}

// pageBreak returns the kind of an unmarked page or column break.
func (s *saver) pageBreak(id dom.NodeID) dom.BreakType {
	if s.doc.Type(id) != dom.NodeBreak {
		return ""
	}
	if _, marked := s.doc.ContentMark(id); marked {
		return ""
	}
	switch k := s.doc.Attrs(id).Break; k {
	case dom.BreakPage, dom.BreakColumn:
		return k
	}
	return ""
}

// paragraph writes p. Page and column breaks at either end become
// break-before and break-after properties.
func (s *saver) paragraph(p dom.NodeID) {
	x := s.x
	f := s.doc.Format(p)
	f.ListID, f.ListLevel = 0, 0
	ps := paraStyle{f: f, master: s.master}
	s.master = ""
	kids := s.doc.Children(p)
	if len(kids) > 0 {
		if k := s.pageBreak(kids[0]); k != "" {
			ps.before, kids = k, kids[1:]
		}
	}
	if n := len(kids); n > 0 {
		if k := s.pageBreak(kids[n-1]); k != "" {
			ps.after, kids = k, kids[:n-1]
		}
	}
	x.Start("text:p", "text:style-name", s.paragraphStyle(ps))
	cm, marked := s.doc.ContentMark(p)
	switch {
	case marked && (cm.Type == dom.RevisionInsertion || cm.Type == dom.RevisionMoveTo):
		id := s.change("pc", cm, "insertion", nil)
		x.Empty("text:change-start", "text:change-id", id)
		s.inlines(kids)
		x.Empty("text:change-end", "text:change-id", id)
	case marked && (cm.Type == dom.RevisionDeletion || cm.Type == dom.RevisionMoveFrom):
		s.inlines(kids)
		id := s.change("ct", cm, "deletion", func() { s.x.Empty("text:p") })
		x.Empty("text:change", "text:change-id", id)
	default:
		s.inlines(kids)
	}
	x.End()
}

// change records a changed region and returns its id. content writes the
// removed content of a deletion. Regions bracketing a whole paragraph get
// ids starting with "pc".
func (s *saver) change(prefix string, m dom.RevisionMark, kind string, content func()) string {
	s.changeN++
	id := prefix + strconv.Itoa(s.changeN)
	var inner []byte
	if content != nil {
		px := s.x
		s.x = xml.NewFragment()
		content()
		inner = s.x.Bytes()
		s.x = px
	}
	x := s.changes
	x.Start("text:changed-region", "xml:id", id, "text:id", id)
	x.Start("text:" + kind)
	x.Start("office:change-info")
	x.Element("dc:creator", m.Author)
	x.Element("dc:date", odfDate(m.Date))
	x.End()
	x.Raw(inner)
	x.End()
	x.End()
	return id
}

func (s *saver) inlines(ids []dom.NodeID) {
	x := s.x
	for _, id := range ids {
		format := ""
		if fm, ok := s.doc.FormatMark(id); ok {
			format = s.change("ct", fm, "format-change", nil)
			x.Empty("text:change-start", "text:change-id", format)
		}
		cm, ok := s.doc.ContentMark(id)
		switch {
		case ok && (cm.Type == dom.RevisionInsertion || cm.Type == dom.RevisionMoveTo):
			c := s.change("ct", cm, "insertion", nil)
			x.Empty("text:change-start", "text:change-id", c)
			s.inline(id)
			x.Empty("text:change-end", "text:change-id", c)
		case ok && (cm.Type == dom.RevisionDeletion || cm.Type == dom.RevisionMoveFrom):
			c := s.change("ct", cm, "deletion", func() {
				s.x.Start("text:p")
				s.inline(id)
				s.x.End()
			})
			x.Empty("text:change", "text:change-id", c)
		default:
			s.inline(id)
		}
		if format != "" {
			x.Empty("text:change-end", "text:change-id", format)
		}
	}
}

func annotationName(id int) string {
	return "__Annotation__" + strconv.Itoa(id)
}

func (s *saver) inline(id dom.NodeID) {
	x := s.x
	a := s.doc.Attrs(id)
	f := s.doc.Format(id)
	switch s.doc.Type(id) {
	case dom.NodeRun:
		s.span(f, func() { s.text(s.doc.Text(id)) })
	case dom.NodeBreak:
		x.Empty("text:line-break")
	case dom.NodeField:
		s.span(f, func() { s.field(a) })
	case dom.NodeBookmarkStart:
		x.Empty("text:bookmark-start", "text:name", a.Name)
	case dom.NodeBookmarkEnd:
		x.Empty("text:bookmark-end", "text:name", a.Name)
	case dom.NodeCommentRangeStart:
		if c, ok := s.comments[a.CommentID]; ok && !s.written[c] {
			s.ranged[c] = true
			s.annotation(c)
		}
	case dom.NodeCommentRangeEnd:
		if c, ok := s.comments[a.CommentID]; ok && s.ranged[c] {
			x.Empty("office:annotation-end", "office:name", annotationName(a.CommentID))
		}
	case dom.NodeComment:
		if !s.written[id] {
			s.annotation(id)
		}
	case dom.NodeFootnote:
		s.note(id, a)
	case dom.NodeImage:
		s.image(a)
	case dom.NodeShape:
		s.shape(id, a)
	case dom.NodeSmartTag:
		s.inlines(s.doc.Children(id))
	}
}

func (s *saver) span(f dom.Formatting, content func()) {
	style := s.textStyle(f)
	if style == "" {
		content()
		return
	}
	s.x.Start("text:span", "text:style-name", style)
	content()
	s.x.End()
}

// text writes character data so that it survives whitespace collapsing:
// a space is literal only after a non-space character, every other space
// goes into text:s.
func (s *saver) text(t string) {
	var buf strings.Builder
	spaces := 0
	literal := false
	flush := func() {
		s.x.Text(buf.String())
		buf.Reset()
		if spaces > 0 {
			c := ""
			if spaces > 1 {
				c = strconv.Itoa(spaces)
			}
			s.x.Empty("text:s", "text:c", c)
			spaces = 0
		}
	}
	for _, r := range t {
		switch r {
		case ' ':
			if literal {
				buf.WriteByte(' ')
				literal = false
				continue
			}
			if buf.Len() > 0 {
				s.x.Text(buf.String())
				buf.Reset()
			}
			spaces++
		case '\t', '\n', '\v':
			flush()
			if r == '\t' {
				s.x.Empty("text:tab")
			} else {
				s.x.Empty("text:line-break")
			}
			literal = false
		default:
			if spaces > 0 {
				flush()
			}
			buf.WriteRune(r)
			literal = true
		}
	}
	flush()
}

// field writes fields with a native element when the code is a bare
// keyword, and a text input carrying the code otherwise.
func (s *saver) field(a dom.Attrs) {
	x := s.x
	code := strings.TrimSpace(a.FieldCode)
	words := strings.Fields(code)
	switch {
	case code == "PAGE":
		x.Start("text:page-number", "text:select-page", "current")
	case code == "NUMPAGES":
		x.Start("text:page-count")
	case code == "DATE":
		x.Start("text:date")
	case code == "TITLE":
		x.Start("text:title")
	case code == "AUTHOR":
		x.Start("text:initial-creator")
	case len(words) == 2 && words[0] == "DOCVARIABLE" && code == words[0]+" "+words[1]:
		x.Start("text:user-field-get", "text:name", words[1])
	default:
		x.Start("text:text-input", "text:description", a.FieldCode)
	}
	s.text(a.FieldResult)
	x.End()
}

func (s *saver) annotation(c dom.NodeID) {
	s.written[c] = true
	a := s.doc.Attrs(c)
	x := s.x
	x.Start("office:annotation", "office:name", annotationName(a.CommentID))
	x.Element("dc:creator", a.Author)
	if !a.Date.IsZero() {
		x.Element("dc:date", odfDate(a.Date))
	}
	if a.Initial != "" {
		x.Element("meta:creator-initials", a.Initial)
	}
	s.storyBlocks(c)
	x.End()
}

func (s *saver) note(id dom.NodeID, a dom.Attrs) {
	s.notes++
	n := strconv.Itoa(s.notes)
	class := "footnote"
	if a.Footnote == dom.Endnote {
		class = "endnote"
	}
	x := s.x
	x.Start("text:note", "text:id", "ftn"+n, "text:note-class", class)
	x.Element("text:note-citation", n)
	x.Start("text:note-body")
	s.storyBlocks(id)
	x.End()
	x.End()
}

// picture stores an image under Pictures/ once and returns its path.
func (s *saver) picture(hash string) (string, bool) {
	if name, ok := s.media[hash]; ok {
		return name, true
	}
	blob, err := s.doc.Media.Get(hash)
	if err != nil {
		return "", false
	}
	name := "Pictures/" + base.MediaName(hash, blob.ContentType)
	s.media[hash] = name
	s.addFile(name, blob.ContentType, blob.Data)
	return name, true
}

func (s *saver) image(a dom.Attrs) {
	href, ok := s.picture(a.Media)
	if !ok {
		return
	}
	s.frames++
	x := s.x
	x.Start("draw:frame", "draw:name", "Image"+strconv.Itoa(s.frames), "text:anchor-type", "as-char",
		"svg:width", pt(a.Width), "svg:height", pt(a.Height))
	x.Empty("draw:image", "xlink:href", href, "xlink:type", "simple", "xlink:show", "embed", "xlink:actuate", "onLoad")
	if a.Alt != "" {
		x.Element("svg:desc", a.Alt)
	}
	x.End()
}

func (s *saver) shape(id dom.NodeID, a dom.Attrs) {
	s.frames++
	x := s.x
	if a.Shape == dom.ShapeRectangle {
		x.Start("draw:rect", "draw:name", "Shape"+strconv.Itoa(s.frames), "text:anchor-type", "as-char",
			"svg:width", pt(a.Width), "svg:height", pt(a.Height))
		s.blocks(s.doc.Children(id))
		x.End()
		return
	}
	x.Start("draw:frame", "draw:name", "Frame"+strconv.Itoa(s.frames), "text:anchor-type", "as-char",
		"svg:width", pt(a.Width), "svg:height", pt(a.Height))
	x.Start("draw:text-box")
	s.storyBlocks(id)
	x.End()
	x.End()
}

func (s *saver) table(t dom.NodeID) {
	x := s.x
	style := s.doc.Format(t).Style
	name := s.styleName(style)
	if s.master != "" {
		master := s.master
		s.master = ""
		name = s.auto.get("Tab", master+"|"+name, func(x *xml.Writer, n string) {
			x.Start("style:style", "style:name", n, "style:family", "table",
				"style:parent-style-name", s.styleName(style), "style:master-page-name", master)
			x.End()
		})
	}
	rows := s.doc.Children(t)
	cols := 0
	for _, r := range rows {
		cols = max(cols, s.doc.ChildCount(r))
	}
	s.tables++
	x.Start("table:table", "table:name", "Table"+strconv.Itoa(s.tables), "table:style-name", name)
	if cols > 0 {
		x.Empty("table:table-column", "table:number-columns-repeated", strconv.Itoa(cols))
	}
	for _, r := range rows {
		x.Start("table:table-row")
		for _, c := range s.doc.Children(r) {
			x.Start("table:table-cell", "office:value-type", "string")
			s.storyBlocks(c)
			x.End()
		}
		x.End()
	}
	x.End()
}

func (s *saver) contentPart(body []byte) []byte {
	x := xml.NewWriter()
	x.Start("office:document-content", append(namespaces, "office:version", "1.2")...)
	x.Start("office:automatic-styles")
	x.Raw(s.content.w.Bytes())
	x.End()
	x.Start("office:body")
	x.Start("office:text")
	if s.changeN > 0 {
		x.Start("text:tracked-changes")
		x.Raw(s.changes.Bytes())
		x.End()
	}
	vars := s.doc.Variables()
	if keys := vars.Keys(); len(keys) > 0 {
		x.Start("text:user-field-decls")
		for _, k := range keys {
			v, _ := vars.Get(k)
			x.EmptyAll("text:user-field-decl", "office:value-type", "string", "office:string-value", v, "text:name", k)
		}
		x.End()
	}
	x.Raw(body)
	return x.Bytes()
}

var styleFamilies = map[dom.StyleType]string{
	dom.StyleParagraph: "paragraph",
	dom.StyleCharacter: "text",
	dom.StyleTable:     "table",
	"":                 "paragraph",
}

var numberFormats = map[dom.NumberStyle]string{
	dom.NumberArabic:     "1",
	dom.NumberLowerLatin: "a",
	dom.NumberUpperRoman: "I",
}

func (s *saver) stylesPart() []byte {
	x := xml.NewWriter()
	x.Start("office:document-styles", append(namespaces, "office:version", "1.2")...)
	x.Start("office:styles")
	sheet := s.doc.Styles()
	for _, name := range sheet.Names() {
		st, _ := sheet.Get(name)
		family, ok := styleFamilies[st.Type]
		if !ok {
			continue
		}
		display := name
		if name == "Normal" {
			display = ""
		}
		x.Start("style:style", "style:name", encodeName(name), "style:display-name", display,
			"style:family", family, "style:parent-style-name", s.styleName(st.BasedOn))
		if family == "paragraph" {
			paragraphProps(x, st.Format, "", "")
		}
		textProps(x, charOnly(st.Format))
		x.End()
	}
	for _, id := range s.doc.Lists().IDs() {
		def, _ := s.doc.Lists().Get(id)
		x.Start("text:list-style", "style:name", listStyleName(id))
		for i, l := range def.Levels {
			level := strconv.Itoa(i + 1)
			if l.Style == dom.NumberBullet {
				bullet := l.Text
				if bullet == "" {
					bullet = "•"
				}
				x.Start("text:list-level-style-bullet", "text:level", level, "text:bullet-char", bullet)
			} else {
				format := numberFormats[l.Style]
				if format == "" {
					format = "1"
				}
				prefix, suffix, found := strings.Cut(l.Text, "%"+level)
				if !found {
					prefix, suffix = "", l.Text
				}
				x.Start("text:list-level-style-number", "text:level", level, "style:num-format", format,
					"style:num-prefix", prefix, "style:num-suffix", suffix)
			}
			x.Empty("style:list-level-properties", "text:space-before", pt(l.Indent), "text:min-label-width", "18pt")
			x.End()
		}
		x.End()
	}
	x.End()
	x.Start("office:automatic-styles")
	x.Raw(s.shared.w.Bytes())
	x.End()
	x.Start("office:master-styles")
	x.Raw(s.masters.Bytes())
	x.End()
	return x.Bytes()
}

func (s *saver) metaPart() []byte {
	p := s.doc.Props
	x := xml.NewWriter()
	x.Start("office:document-meta", append(namespaces, "office:version", "1.2")...)
	x.Start("office:meta")
	x.Element("meta:generator", "folio")
	x.Element("dc:title", p.Title)
	x.Element("dc:subject", p.Subject)
	x.Element("meta:initial-creator", p.Author)
	x.Element("dc:creator", p.LastSavedBy)
	if !p.Created.IsZero() {
		x.Element("meta:creation-date", odfDate(p.Created))
	}
	x.Element("dc:date", odfDate(s.opts.Timestamp(s.doc)))
	x.Element("meta:editing-cycles", strconv.Itoa(p.RevisionNumber))
	return x.Bytes()
}

var reserved = map[string]bool{
	"mimetype": true, "content.xml": true, "styles.xml": true, "meta.xml": true,
	"settings.xml": true, "manifest.rdf": true,
}

// customParts stores embedded custom parts as extra package files.
// External parts have no place in the package and are skipped.
func (s *saver) customParts() {
	for _, p := range s.doc.CustomParts().All() {
		if p.External {
			continue
		}
		name := strings.TrimPrefix(p.Name, "/")
		if reserved[name] || strings.HasPrefix(name, "META-INF/") || strings.HasPrefix(name, "Pictures/") {
			name = "customXml/" + name
		}
		ct := p.ContentType
		if ct == "" {
			ct = "application/xml"
		}
		s.addFile(name, ct, p.Data)
	}
}

func (s *saver) manifestPart() []byte {
	x := xml.NewWriter()
	x.Start("manifest:manifest", "xmlns:manifest", "urn:oasis:names:tc:opendocument:xmlns:manifest:1.0", "manifest:version", "1.2")
	x.Empty("manifest:file-entry", "manifest:full-path", "/", "manifest:version", "1.2", "manifest:media-type", mimeType)
	entries := append([][2]string(nil), s.manifest...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i][0] < entries[j][0] })
	for _, e := range entries {
		x.Empty("manifest:file-entry", "manifest:full-path", e[0], "manifest:media-type", e[1])
	}
	return x.Bytes()
}
