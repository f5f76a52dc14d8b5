package docx

import (
	"fmt"
	"io"
	"math"
	"path"
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

type rel struct {
	id, typ, target string
	external        bool
}

type relList struct {
	list []rel
}

// add returns the id of a relationship, reusing an existing one with the
// same type and target.
func (r *relList) add(typ, target string, external bool) string {
	for _, x := range r.list {
		if x.typ == typ && x.target == target {
			return x.id
		}
	}
	id := "rId" + strconv.Itoa(len(r.list)+1)
	r.list = append(r.list, rel{id: id, typ: typ, target: target, external: external})
	return id
}

func (r *relList) bytes() []byte {
	x := xml.NewWriter()
	x.Start("Relationships", "xmlns", nsRel)
	for _, e := range r.list {
		mode := ""
		if e.external {
			mode = "External"
		}
		x.Empty("Relationship", "Id", e.id, "Type", e.typ, "Target", e.target, "TargetMode", mode)
	}
	return x.Bytes()
}

// saver writes one document. x and rels belong to the part being written.
type saver struct {
	doc  *dom.Document
	opts *codec.SaveOptions

	x    *xml.Writer
	rels *relList

	docRels   relList
	styleIDs  map[string]string
	overrides [][2]string
	defaults  map[string]string
	parts     map[string][]byte
	order     []string
	media     map[string]string

	footnotes, endnotes, comments *xml.Writer
	noteID                        int
	endnoteID                     int
	commentIDs                    map[dom.NodeID]int
	usedComments                  map[int]bool
	bookmarks                     map[string]int
	nextID                        int
	headers, footers              int
	evenOdd                       bool
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	s := &saver{
		doc:          doc,
		opts:         opts,
		parts:        make(map[string][]byte),
		media:        make(map[string]string),
		defaults:     map[string]string{"rels": "application/vnd.openxmlformats-package.relationships+xml", "xml": "application/xml"},
		commentIDs:   make(map[dom.NodeID]int),
		usedComments: make(map[int]bool),
		bookmarks:    make(map[string]int),
		footnotes:    notesWriter("w:footnotes", "w:footnote"),
		endnotes:     notesWriter("w:endnotes", "w:endnote"),
		comments:     xml.NewWriter(),
	}
	s.comments.Start("w:comments", "xmlns:w", nsW, "xmlns:r", nsR)
	s.styleIDs = assignStyleIDs(doc.Styles())
	s.reserveComments()

	body := xml.NewWriter()
	s.x, s.rels = body, &s.docRels
	body.Start("w:document", "xmlns:w", nsW, "xmlns:r", nsR, "xmlns:wp", nsWP, "xmlns:a", nsA, "xmlns:pic", nsPic, "xmlns:v", nsV)
	body.Start("w:body")
	sections := doc.Sections()
	for i, sec := range sections {
		if err := s.opts.Err(); err != nil {
			return err
		}
		last := i == len(sections)-1
		s.section(sec, last)
	}
	body.End()
	body.End()

	s.docRels.add(relStyles, "styles.xml", false)
	s.docRels.add(relSettings, "settings.xml", false)
	s.addPart("word/styles.xml", ctBase+"styles+xml", s.stylesPart())
	s.addPart("word/settings.xml", ctBase+"settings+xml", s.settingsPart())
	if s.doc.Lists().Len() > 0 {
		s.docRels.add(relNumbering, "numbering.xml", false)
		s.addPart("word/numbering.xml", ctBase+"numbering+xml", s.numberingPart())
	}
	if s.noteID > 0 {
		s.docRels.add(relFootnotes, "footnotes.xml", false)
		s.addPart("word/footnotes.xml", ctBase+"footnotes+xml", s.footnotes.Bytes())
	}
	if s.endnoteID > 0 {
		s.docRels.add(relEndnotes, "endnotes.xml", false)
		s.addPart("word/endnotes.xml", ctBase+"endnotes+xml", s.endnotes.Bytes())
	}
	if len(s.commentIDs) > 0 {
		s.docRels.add(relComments, "comments.xml", false)
		s.addPart("word/comments.xml", ctBase+"comments+xml", s.comments.Bytes())
	}
	s.customParts()
	s.addPart("word/document.xml", ctBase+"document.main+xml", body.Bytes())
	s.addPart("word/_rels/document.xml.rels", "", s.docRels.bytes())
	s.addPart("docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml", s.corePart())

	var pkg relList
	pkg.add(relDocument, "word/document.xml", false)
	pkg.add(relCore, "docProps/core.xml", false)

	zw := base.NewZipWriter(w, opts.Timestamp(doc))
	if err := zw.Add("[Content_Types].xml", s.contentTypes()); err != nil {
		return err
	}
	if err := zw.Add("_rels/.rels", pkg.bytes()); err != nil {
		return err
	}
	for _, name := range mainFirst(s.order) {
		if err := zw.Add(name, s.parts[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

// mainFirst puts the main document part and core properties first so that
// detection sees word/ in the head of the file.
func mainFirst(names []string) []string {
	out := []string{"word/document.xml", "docProps/core.xml"}
	for _, n := range names {
		if n != out[0] && n != out[1] {
			out = append(out, n)
		}
	}
	return out
}

func (s *saver) addPart(name, contentType string, data []byte) {
	if _, ok := s.parts[name]; !ok {
		s.order = append(s.order, name)
	}
	s.parts[name] = data
	if contentType != "" {
		s.overrides = append(s.overrides, [2]string{"/" + name, contentType})
	}
}

func (s *saver) contentTypes() []byte {
	x := xml.NewWriter()
	x.Start("Types", "xmlns", nsCT)
	exts := make([]string, 0, len(s.defaults))
	for ext := range s.defaults {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		x.Empty("Default", "Extension", ext, "ContentType", s.defaults[ext])
	}
	for _, o := range s.overrides {
		x.Empty("Override", "PartName", o[0], "ContentType", o[1])
	}
	return x.Bytes()
}

func notesWriter(root, item string) *xml.Writer {
	x := xml.NewWriter()
	x.Start(root, "xmlns:w", nsW, "xmlns:r", nsR)
	for i, typ := range []string{"separator", "continuationSeparator"} {
		x.Start(item, "w:type", typ, "w:id", strconv.Itoa(i-1))
		x.Start("w:p")
		x.Start("w:r")
		x.Empty("w:" + typ)
		x.End()
		x.End()
		x.End()
	}
	return x
}

// reserveComments gives every comment a unique id, keeping the id its
// range markers already use when it is free.
func (s *saver) reserveComments() {
	comments := s.doc.ChildNodes(s.doc.Root(), dom.NodeComment, true)
	var clash []dom.NodeID
	for _, c := range comments {
		id := s.doc.Attrs(c).CommentID
		if s.usedComments[id] {
			clash = append(clash, c)
			continue
		}
		s.usedComments[id] = true
		s.commentIDs[c] = id
	}
	next := 0
	for _, c := range clash {
		for s.usedComments[next] {
			next++
		}
		s.usedComments[next] = true
		s.commentIDs[c] = next
	}
}

func (s *saver) id() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func twips(pt float64) string {
	return strconv.Itoa(int(math.Round(pt * 20)))
}

func emu(pt float64) string {
	return strconv.FormatInt(int64(math.Round(pt*12700)), 10)
}

func wdate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// assignStyleIDs derives a unique w:styleId for every style name.
func assignStyleIDs(sheet *dom.StyleSheet) map[string]string {
	ids := make(map[string]string)
	used := make(map[string]bool)
	for _, name := range sheet.Names() {
		id := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, name)
		if id == "" {
			id = "Style"
		}
		candidate := id
		for n := 1; used[candidate]; n++ {
			candidate = id + strconv.Itoa(n)
		}
		used[candidate] = true
		ids[name] = candidate
	}
	return ids
}

var sectionTypes = map[dom.SectionStart]string{
	dom.SectionContinuous: "continuous",
	dom.SectionNewPage:    "nextPage",
	dom.SectionNewColumn:  "nextColumn",
}

var headerTypes = map[dom.HeaderFooterType]string{
	dom.HeaderPrimary: "default",
	dom.HeaderFirst:   "first",
	dom.HeaderEven:    "even",
	dom.FooterPrimary: "default",
	dom.FooterFirst:   "first",
	dom.FooterEven:    "even",
}

var alignments = map[dom.Alignment]string{
	dom.AlignLeft:    "left",
	dom.AlignCenter:  "center",
	dom.AlignRight:   "right",
	dom.AlignJustify: "both",
}

var numberFormats = map[dom.NumberStyle]string{
	dom.NumberBullet:     "bullet",
	dom.NumberArabic:     "decimal",
	dom.NumberLowerLatin: "lowerLetter",
	dom.NumberUpperRoman: "upperRoman",
}

// section writes the body blocks of sec. The section properties of every
// section but the last ride on its final paragraph, or on a hidden empty
// paragraph when the section does not end in one.
func (s *saver) section(sec dom.NodeID, last bool) {
	blocks := s.doc.Children(s.doc.Body(sec))
	props := s.sectionProps(sec)
	if last {
		s.blocks(blocks)
		props(s.x)
		return
	}
	if n := len(blocks); n > 0 && s.doc.Type(blocks[n-1]) == dom.NodeParagraph {
		s.blocks(blocks[:n-1])
		s.paragraph(blocks[n-1], props)
		return
	}
	s.blocks(blocks)
	s.x.Start("w:p")
	s.x.Start("w:pPr")
	s.x.Start("w:rPr")
	s.x.Empty("w:vanish")
	s.x.End()
	props(s.x)
	s.x.End()
	s.x.End()
}

// sectionProps writes the header and footer parts of sec and returns a
// function emitting its w:sectPr.
func (s *saver) sectionProps(sec dom.NodeID) func(*xml.Writer) {
	type ref struct{ kind, typ, id string }
	var refs []ref
	titlePage := false
	for _, hf := range s.doc.ChildNodes(sec, dom.NodeHeaderFooter, false) {
		slot := s.doc.Attrs(hf).HeaderFooter
		if slot == dom.HeaderFirst || slot == dom.FooterFirst {
			titlePage = true
		}
		if slot == dom.HeaderEven || slot == dom.FooterEven {
			s.evenOdd = true
		}
		kind, root, relType := "w:footerReference", "w:ftr", relFooter
		var name string
		if slot.IsHeader() {
			kind, root, relType = "w:headerReference", "w:hdr", relHeader
			s.headers++
			name = fmt.Sprintf("header%d.xml", s.headers)
		} else {
			s.footers++
			name = fmt.Sprintf("footer%d.xml", s.footers)
		}
		refs = append(refs, ref{kind: kind, typ: headerTypes[slot], id: s.docRels.add(relType, name, false)})
		s.story(hf, "word/"+name, root, ctBase+strings.TrimPrefix(relType, relBase)+"+xml")
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].kind > refs[j].kind })
	a := s.doc.Attrs(sec)
	return func(x *xml.Writer) {
		x.Start("w:sectPr")
		for _, r := range refs {
			x.Empty(r.kind, "w:type", r.typ, "r:id", r.id)
		}
		start := a.SectionStart
		if start == "" {
			start = dom.SectionContinuous
		}
		x.Empty("w:type", "w:val", sectionTypes[start])
		if pg := a.Page; pg != nil {
			x.Empty("w:pgSz", "w:w", twips(pg.Width), "w:h", twips(pg.Height))
			x.Empty("w:pgMar", "w:top", twips(pg.MarginTop), "w:right", twips(pg.MarginRight),
				"w:bottom", twips(pg.MarginBottom), "w:left", twips(pg.MarginLeft),
				"w:header", "720", "w:footer", "720", "w:gutter", "0")
			x.EmptyAll("w:cols", "w:num", strconv.Itoa(max(pg.Columns, 1)), "w:space", twips(pg.ColumnGap))
		}
		if titlePage {
			x.Empty("w:titlePg")
		}
		x.End()
	}
}

// story writes the blocks of a header or footer into a part of its own.
func (s *saver) story(node dom.NodeID, part, root, contentType string) {
	px, prels := s.x, s.rels
	s.x, s.rels = xml.NewWriter(), &relList{}
	s.x.Start(root, "xmlns:w", nsW, "xmlns:r", nsR, "xmlns:wp", nsWP, "xmlns:a", nsA, "xmlns:pic", nsPic, "xmlns:v", nsV)
	s.storyBlocks(node)
	s.addPart(part, contentType, s.x.Bytes())
	if len(s.rels.list) > 0 {
		s.addPart(path.Join(path.Dir(part), "_rels", path.Base(part)+".rels"), "", s.rels.bytes())
	}
	s.x, s.rels = px, prels
}

// storyBlocks writes the blocks of a story, ending with a paragraph as the
// format requires.
func (s *saver) storyBlocks(node dom.NodeID) {
	blocks := s.doc.Children(node)
	s.blocks(blocks)
	if n := len(blocks); n == 0 || s.doc.Type(blocks[n-1]) != dom.NodeParagraph {
		s.x.Empty("w:p")
	}
}

func (s *saver) blocks(ids []dom.NodeID) {
	for _, id := range ids {
		switch s.doc.Type(id) {
		case dom.NodeParagraph:
			s.paragraph(id, nil)
		case dom.NodeTable:
			s.table(id)
		}
	}
}

func (s *saver) table(t dom.NodeID) {
	x := s.x
	rows := s.doc.Children(t)
	cols := 0
	for _, r := range rows {
		cols = max(cols, s.doc.ChildCount(r))
	}
	x.Start("w:tbl")
	x.Start("w:tblPr")
	s.styleRef("w:tblStyle", s.doc.Format(t).Style)
	x.Empty("w:tblW", "w:w", "0", "w:type", "auto")
	x.End()
	x.Start("w:tblGrid")
	for i := 0; i < cols; i++ {
		x.Empty("w:gridCol", "w:w", twips(468/float64(cols)))
	}
	x.End()
	for _, r := range rows {
		x.Start("w:tr")
		for _, c := range s.doc.Children(r) {
			x.Start("w:tc")
			x.Start("w:tcPr")
			x.Empty("w:tcW", "w:w", "0", "w:type", "auto")
			x.End()
			s.storyBlocks(c)
			x.End()
		}
		x.End()
	}
	x.End()
}

// styleRef writes a reference to a defined style.
func (s *saver) styleRef(tag, name string) {
	if id, ok := s.styleIDs[name]; ok {
		s.x.Empty(tag, "w:val", id)
	}
}

// paragraphProps writes the paragraph-level properties of f.
func (s *saver) paragraphProps(f dom.Formatting) {
	x := s.x
	s.styleRef("w:pStyle", f.Style)
	if f.ListID != 0 {
		x.Start("w:numPr")
		x.Empty("w:ilvl", "w:val", strconv.Itoa(f.ListLevel))
		x.Empty("w:numId", "w:val", strconv.Itoa(f.ListID))
		x.End()
	}
	if f.SpaceAfter != 0 {
		x.Empty("w:spacing", "w:after", twips(f.SpaceAfter))
	}
	if f.Align != "" {
		x.Empty("w:jc", "w:val", alignments[f.Align])
	}
}

func hasParagraphProps(f dom.Formatting) bool {
	return f.Style != "" || f.ListID != 0 || f.SpaceAfter != 0 || f.Align != ""
}

// runProps writes the character properties of f in schema order. The
// style is skipped for paragraph marks, which take it from w:pStyle.
func (s *saver) runProps(f dom.Formatting, withStyle bool) {
	x := s.x
	if withStyle {
		s.styleRef("w:rStyle", f.Style)
	}
	if f.Font != "" {
		x.Empty("w:rFonts", "w:ascii", f.Font, "w:hAnsi", f.Font, "w:cs", f.Font)
	}
	if f.Bold {
		x.Empty("w:b")
	}
	if f.Italic {
		x.Empty("w:i")
	}
	if f.Strike {
		x.Empty("w:strike")
	}
	if f.Color != "" {
		x.Empty("w:color", "w:val", f.Color)
	}
	if f.Size != 0 {
		x.Empty("w:sz", "w:val", strconv.Itoa(int(math.Round(f.Size*2))))
	}
	if f.Underline {
		x.Empty("w:u", "w:val", "single")
	}
	if f.Highlight != "" {
		x.Empty("w:shd", "w:val", "clear", "w:color", "auto", "w:fill", f.Highlight)
	}
}

func charOnly(f dom.Formatting) dom.Formatting {
	return dom.Formatting{Font: f.Font, Size: f.Size, Bold: f.Bold, Italic: f.Italic,
		Underline: f.Underline, Strike: f.Strike, Color: f.Color, Highlight: f.Highlight}
}

func (s *saver) markAttrs(m dom.RevisionMark) []string {
	return []string{"w:id", s.id(), "w:author", m.Author, "w:date", wdate(m.Date)}
}

// rPr writes a run property block with an optional format change.
func (s *saver) rPr(f dom.Formatting, fm *dom.RevisionMark, extra func()) {
	if f.IsZero() && fm == nil && extra == nil {
		return
	}
	s.x.Start("w:rPr")
	s.runProps(f, true)
	if extra != nil {
		extra()
	}
	if fm != nil {
		s.x.Start("w:rPrChange", s.markAttrs(*fm)...)
		s.x.Start("w:rPr")
		if fm.OldFormat != nil {
			s.runProps(*fm.OldFormat, true)
		}
		s.x.End()
		s.x.End()
	}
	s.x.End()
}

var markTags = map[dom.RevisionType]string{
	dom.RevisionInsertion: "w:ins",
	dom.RevisionDeletion:  "w:del",
	dom.RevisionMoveFrom:  "w:moveFrom",
	dom.RevisionMoveTo:    "w:moveTo",
}

func (s *saver) paragraph(p dom.NodeID, sectPr func(*xml.Writer)) {
	x := s.x
	f := s.doc.Format(p)
	cm, hasContent := s.doc.ContentMark(p)
	fm, hasFormat := s.doc.FormatMark(p)
	chars := charOnly(f)

	x.Start("w:p")
	if hasParagraphProps(f) || hasContent || hasFormat || !chars.IsZero() || sectPr != nil {
		x.Start("w:pPr")
		s.paragraphProps(f)
		if hasContent || hasFormat || !chars.IsZero() {
			x.Start("w:rPr")
			if hasContent {
				x.Empty(markTags[cm.Type], s.markAttrs(cm)...)
			}
			s.runProps(chars, false)
			if hasFormat {
				x.Start("w:rPrChange", s.markAttrs(fm)...)
				x.Start("w:rPr")
				if fm.OldFormat != nil {
					s.runProps(charOnly(*fm.OldFormat), false)
				}
				x.End()
				x.End()
			}
			x.End()
		}
		if sectPr != nil {
			sectPr(x)
		}
		if hasFormat {
			x.Start("w:pPrChange", s.markAttrs(fm)...)
			x.Start("w:pPr")
			if fm.OldFormat != nil {
				s.paragraphProps(*fm.OldFormat)
			}
			x.End()
			x.End()
		}
		x.End()
	}
	deleted := hasContent && cm.Type == dom.RevisionDeletion
	s.inlines(s.doc.Children(p), deleted)
	x.End()
}

// inlines writes paragraph content. Runs carrying a content mark are
// wrapped in the matching revision element; moves are bracketed by a named
// range so both halves can be paired again.
func (s *saver) inlines(ids []dom.NodeID, deleted bool) {
	for _, id := range ids {
		m, ok := s.doc.ContentMark(id)
		wrap := ok && markTags[m.Type] != "" && wrappable(s.doc.Type(id))
		if !wrap {
			s.inline(id, deleted)
			continue
		}
		rangeID := ""
		if m.PairID != "" && (m.Type == dom.RevisionMoveFrom || m.Type == dom.RevisionMoveTo) {
			rangeID = s.id()
			s.x.Empty(markTags[m.Type]+"RangeStart", "w:id", rangeID, "w:name", "move"+m.PairID,
				"w:author", m.Author, "w:date", wdate(m.Date))
		}
		s.x.Start(markTags[m.Type], s.markAttrs(m)...)
		s.inline(id, deleted || m.Type == dom.RevisionDeletion || m.Type == dom.RevisionMoveFrom)
		s.x.End()
		if rangeID != "" {
			s.x.Empty(markTags[m.Type]+"RangeEnd", "w:id", rangeID)
		}
	}
}

// wrappable reports whether t is written as runs, which revision elements
// may enclose.
func wrappable(t dom.NodeType) bool {
	switch t {
	case dom.NodeRun, dom.NodeBreak, dom.NodeField, dom.NodeImage, dom.NodeShape, dom.NodeFootnote, dom.NodeComment:
		return true
	}
	return false
}

func (s *saver) inline(id dom.NodeID, deleted bool) {
	x := s.x
	a := s.doc.Attrs(id)
	f := s.doc.Format(id)
	var fm *dom.RevisionMark
	if m, ok := s.doc.FormatMark(id); ok {
		fm = &m
	}
	switch s.doc.Type(id) {
	case dom.NodeRun:
		x.Start("w:r")
		s.rPr(f, fm, nil)
		s.text(s.doc.Text(id), deleted)
		x.End()
	case dom.NodeBreak:
		x.Start("w:r")
		s.rPr(f, fm, nil)
		switch a.Break {
		case dom.BreakPage:
			x.Empty("w:br", "w:type", "page")
		case dom.BreakColumn:
			x.Empty("w:br", "w:type", "column")
		default:
			x.Empty("w:br")
		}
		x.End()
	case dom.NodeField:
		s.field(a, f, fm, deleted)
	case dom.NodeBookmarkStart:
		n, ok := s.bookmarks[a.Name]
		if !ok {
			n = len(s.bookmarks)
			s.bookmarks[a.Name] = n
		}
		x.Empty("w:bookmarkStart", "w:id", strconv.Itoa(n), "w:name", a.Name)
	case dom.NodeBookmarkEnd:
		n, ok := s.bookmarks[a.Name]
		if !ok {
			n = len(s.bookmarks)
			s.bookmarks[a.Name] = n
		}
		x.Empty("w:bookmarkEnd", "w:id", strconv.Itoa(n))
	case dom.NodeCommentRangeStart:
		x.Empty("w:commentRangeStart", "w:id", strconv.Itoa(a.CommentID))
	case dom.NodeCommentRangeEnd:
		x.Empty("w:commentRangeEnd", "w:id", strconv.Itoa(a.CommentID))
	case dom.NodeComment:
		s.comment(id, a)
	case dom.NodeFootnote:
		s.note(id, a, f, fm)
	case dom.NodeImage:
		s.image(a, f, fm)
	case dom.NodeShape:
		s.shape(id, a, f, fm)
	case dom.NodeSmartTag:
		x.Start("w:smartTag", "w:uri", "urn:folio:smarttag", "w:element", smartTagElement(a.Name))
		s.inlines(s.doc.Children(id), deleted)
		x.End()
	}
}

func smartTagElement(name string) string {
	if name == "" {
		return "tag"
	}
	return name
}

// text writes run text, turning tabs into w:tab.
func (s *saver) text(t string, deleted bool) {
	tag := "w:t"
	if deleted {
		tag = "w:delText"
	}
	for i, part := range strings.Split(t, "\t") {
		if i > 0 {
			s.x.Empty("w:tab")
		}
		if part != "" {
			s.x.Element(tag, part, "xml:space", "preserve")
		}
	}
}

// field writes a complex field so that it may sit inside revision
// elements.
func (s *saver) field(a dom.Attrs, f dom.Formatting, fm *dom.RevisionMark, deleted bool) {
	x := s.x
	instr := "w:instrText"
	if deleted {
		instr = "w:delInstrText"
	}
	char := func(typ string) {
		x.Start("w:r")
		s.rPr(f, fm, nil)
		x.Empty("w:fldChar", "w:fldCharType", typ)
		x.End()
	}
	char("begin")
	x.Start("w:r")
	s.rPr(f, fm, nil)
	x.Element(instr, " "+a.FieldCode+" ", "xml:space", "preserve")
	x.End()
	char("separate")
	if a.FieldResult != "" {
		x.Start("w:r")
		s.rPr(f, fm, nil)
		s.text(a.FieldResult, deleted)
		x.End()
	}
	char("end")
}

func (s *saver) comment(id dom.NodeID, a dom.Attrs) {
	n := strconv.Itoa(s.commentIDs[id])
	s.x.Start("w:r")
	s.x.Empty("w:commentReference", "w:id", n)
	s.x.End()

	px := s.x
	s.x = s.comments
	s.x.Start("w:comment", "w:id", n, "w:author", a.Author, "w:date", wdate(a.Date), "w:initials", a.Initial)
	s.storyBlocks(id)
	s.x.End()
	s.x = px
}

func (s *saver) note(id dom.NodeID, a dom.Attrs, f dom.Formatting, fm *dom.RevisionMark) {
	ref, item, out := "w:footnoteReference", "w:footnote", s.footnotes
	counter := &s.noteID
	if a.Footnote == dom.Endnote {
		ref, item, out = "w:endnoteReference", "w:endnote", s.endnotes
		counter = &s.endnoteID
	}
	*counter++
	n := strconv.Itoa(*counter)
	s.x.Start("w:r")
	s.rPr(f, fm, func() { s.x.Empty("w:vertAlign", "w:val", "superscript") })
	s.x.Empty(ref, "w:id", n)
	s.x.End()

	px := s.x
	s.x = out
	s.x.Start(item, "w:id", n)
	s.storyBlocks(id)
	s.x.End()
	s.x = px
}

// mediaTarget stores an image part once and returns its relationship id
// from the current part.
func (s *saver) mediaTarget(hash string) (string, bool) {
	blob, err := s.doc.Media.Get(hash)
	if err != nil {
		return "", false
	}
	name, ok := s.media[hash]
	if !ok {
		name = "media/" + base.MediaName(hash, blob.ContentType)
		s.media[hash] = name
		s.addPart("word/"+name, "", blob.Data)
		s.defaults[strings.TrimPrefix(path.Ext(name), ".")] = blob.ContentType
	}
	return s.rels.add(relImage, name, false), true
}

func (s *saver) image(a dom.Attrs, f dom.Formatting, fm *dom.RevisionMark) {
	rid, ok := s.mediaTarget(a.Media)
	if !ok {
		return
	}
	x := s.x
	n := s.id()
	cx, cy := emu(a.Width), emu(a.Height)
	x.Start("w:r")
	s.rPr(f, fm, nil)
	x.Start("w:drawing")
	x.Start("wp:inline", "distT", "0", "distB", "0", "distL", "0", "distR", "0")
	x.Empty("wp:extent", "cx", cx, "cy", cy)
	x.Empty("wp:docPr", "id", n, "name", "Picture "+n, "descr", a.Alt)
	x.Start("a:graphic")
	x.Start("a:graphicData", "uri", "http://schemas.openxmlformats.org/drawingml/2006/picture")
	x.Start("pic:pic")
	x.Start("pic:nvPicPr")
	x.Empty("pic:cNvPr", "id", n, "name", "Picture "+n)
	x.Empty("pic:cNvPicPr")
	x.End()
	x.Start("pic:blipFill")
	x.Empty("a:blip", "r:embed", rid)
	x.Start("a:stretch")
	x.Empty("a:fillRect")
	x.End()
	x.End()
	x.Start("pic:spPr")
	x.Start("a:xfrm")
	x.Empty("a:off", "x", "0", "y", "0")
	x.Empty("a:ext", "cx", cx, "cy", cy)
	x.End()
	x.Start("a:prstGeom", "prst", "rect")
	x.Empty("a:avLst")
	x.End()
	x.End()
	x.End()
	x.End()
	x.End()
	x.End()
	x.End()
	x.End()
}

func (s *saver) shape(id dom.NodeID, a dom.Attrs, f dom.Formatting, fm *dom.RevisionMark) {
	x := s.x
	tag := "v:shape"
	if a.Shape == dom.ShapeRectangle {
		tag = "v:rect"
	}
	style := "width:" + strconv.FormatFloat(a.Width, 'f', -1, 64) + "pt;height:" + strconv.FormatFloat(a.Height, 'f', -1, 64) + "pt"
	x.Start("w:r")
	s.rPr(f, fm, nil)
	x.Start("w:pict")
	x.Start(tag, "id", "_x0000_s"+s.id(), "style", style)
	if s.doc.ChildCount(id) > 0 || a.Shape != dom.ShapeRectangle {
		x.Start("v:textbox")
		x.Start("w:txbxContent")
		s.storyBlocks(id)
		x.End()
		x.End()
	}
	x.End()
	x.End()
	x.End()
}

func (s *saver) stylesPart() []byte {
	px := s.x
	x := xml.NewWriter()
	s.x = x
	x.Start("w:styles", "xmlns:w", nsW)
	sheet := s.doc.Styles()
	for _, name := range sheet.Names() {
		st, _ := sheet.Get(name)
		typ := string(st.Type)
		switch st.Type {
		case dom.StyleList:
			typ = "numbering"
		case "":
			typ = "paragraph"
		}
		def, custom := "", ""
		if name == "Normal" {
			def = "1"
		}
		if !st.BuiltIn {
			custom = "1"
		}
		x.Start("w:style", "w:type", typ, "w:default", def, "w:customStyle", custom, "w:styleId", s.styleIDs[name])
		x.Empty("w:name", "w:val", name)
		if st.BasedOn != "" {
			if id, ok := s.styleIDs[st.BasedOn]; ok {
				x.Empty("w:basedOn", "w:val", id)
			}
		}
		rev, hasRev := s.doc.StyleRevision(name)
		pf := st.Format
		pf.Style = ""
		if hasParagraphProps(pf) || hasRev {
			x.Start("w:pPr")
			s.paragraphProps(pf)
			if hasRev {
				old := rev.Old.Format
				old.Style = ""
				x.Start("w:pPrChange", "w:id", s.id(), "w:author", rev.Author, "w:date", wdate(rev.Date))
				x.Start("w:pPr")
				s.paragraphProps(old)
				x.End()
				x.End()
			}
			x.End()
		}
		cf := charOnly(st.Format)
		if !cf.IsZero() || hasRev {
			x.Start("w:rPr")
			s.runProps(cf, false)
			if hasRev {
				x.Start("w:rPrChange", "w:id", s.id(), "w:author", rev.Author, "w:date", wdate(rev.Date))
				x.Start("w:rPr")
				s.runProps(charOnly(rev.Old.Format), false)
				x.End()
				x.End()
			}
			x.End()
		}
		x.End()
	}
	s.x = px
	return x.Bytes()
}

func (s *saver) numberingPart() []byte {
	x := xml.NewWriter()
	x.Start("w:numbering", "xmlns:w", nsW)
	ids := s.doc.Lists().IDs()
	for i, id := range ids {
		def, _ := s.doc.Lists().Get(id)
		x.Start("w:abstractNum", "w:abstractNumId", strconv.Itoa(i))
		for lvl, l := range def.Levels {
			x.Start("w:lvl", "w:ilvl", strconv.Itoa(lvl))
			x.Empty("w:start", "w:val", "1")
			format := numberFormats[l.Style]
			if format == "" {
				format = "decimal"
			}
			x.Empty("w:numFmt", "w:val", format)
			x.Empty("w:lvlText", "w:val", l.Text)
			x.Start("w:pPr")
			x.Empty("w:ind", "w:left", twips(l.Indent), "w:hanging", "360")
			x.End()
			x.End()
		}
		x.End()
	}
	for i, id := range ids {
		x.Start("w:num", "w:numId", strconv.Itoa(id))
		x.Empty("w:abstractNumId", "w:val", strconv.Itoa(i))
		x.End()
	}
	return x.Bytes()
}

func (s *saver) settingsPart() []byte {
	x := xml.NewWriter()
	x.Start("w:settings", "xmlns:w", nsW)
	if s.evenOdd {
		x.Empty("w:evenAndOddHeaders")
	}
	vars := s.doc.Variables()
	if keys := vars.Keys(); len(keys) > 0 {
		x.Start("w:docVars")
		for _, k := range keys {
			v, _ := vars.Get(k)
			x.EmptyAll("w:docVar", "w:name", k, "w:val", v)
		}
		x.End()
	}
	return x.Bytes()
}

func (s *saver) corePart() []byte {
	p := s.doc.Props
	x := xml.NewWriter()
	x.Start("cp:coreProperties",
		"xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties",
		"xmlns:dc", "http://purl.org/dc/elements/1.1/",
		"xmlns:dcterms", "http://purl.org/dc/terms/",
		"xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	x.Element("dc:title", p.Title)
	x.Element("dc:subject", p.Subject)
	x.Element("dc:creator", p.Author)
	x.Element("cp:lastModifiedBy", p.LastSavedBy)
	x.Element("cp:revision", strconv.Itoa(p.RevisionNumber))
	if !p.Created.IsZero() {
		x.Element("dcterms:created", wdate(p.Created), "xsi:type", "dcterms:W3CDTF")
	}
	x.Element("dcterms:modified", wdate(s.opts.Timestamp(s.doc)), "xsi:type", "dcterms:W3CDTF")
	return x.Bytes()
}

// customParts writes custom parts under customXml/ and links them from the
// main document.
func (s *saver) customParts() {
	for _, p := range s.doc.CustomParts().All() {
		if p.External {
			s.docRels.add(relCustomXML, p.Name, true)
			continue
		}
		name := p.Name
		if !strings.Contains(name, "/") {
			name = "customXml/" + name
		}
		ct := p.ContentType
		if ct == "" {
			ct = "application/xml"
		}
		s.addPart(name, ct, p.Data)
		s.docRels.add(relCustomXML, "../"+name, false)
	}
}
