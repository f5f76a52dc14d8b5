package rtf

import (
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	rtfcore "github.com/FocuswithJustin/folio/core/rtf"
)

// defaultFont is \f0. Runs without a font never reference it.
const defaultFont = "Times New Roman"

// tableWidth is the text width split between the cells of a row, in twips.
const tableWidth = 9360

type saver struct {
	doc     *dom.Document
	opts    *codec.SaveOptions
	w       rtfcore.Writer
	fonts   map[string]int
	colors  map[string]int
	styles  map[string]int
	authors map[string]int
	// inCell is set while the blocks of a table cell are written.
	inCell bool
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if err := opts.SaveFonts(doc); err != nil {
		return err
	}
	s := &saver{
		doc:     doc,
		opts:    opts,
		fonts:   map[string]int{},
		colors:  map[string]int{},
		styles:  map[string]int{},
		authors: map[string]int{},
	}
	s.collect()

	s.w.Open()
	s.w.WordN("rtf", 1)
	s.w.Word("ansi")
	s.w.WordN("ansicpg", 1252)
	s.w.WordN("deff", 0)
	s.w.WordN("uc", 1)
	s.w.WordN("deftab", twips(doc.DefaultTabStop))
	s.w.Line()
	s.fontTable()
	s.colorTable()
	s.styleSheet()
	s.listTables()
	s.revisionTable()
	s.info()
	s.docVars()
	for i, sec := range doc.Sections() {
		if err := opts.Err(); err != nil {
			return err
		}
		if i > 0 {
			s.w.Word("sect")
			s.w.Line()
		}
		s.section(sec)
	}
	s.w.Close()
	_, err := w.Write(s.w.Bytes())
	return err
}

func twips(pt float64) int {
	return int(math.Round(pt * 20))
}

func numbered(m map[string]int, first int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		m[k] = first + i
	}
}

// collect numbers the fonts, colors, styles and revision authors that the
// document references.
func (s *saver) collect() {
	use := func(f dom.Formatting) {
		if f.Font != "" {
			s.fonts[f.Font] = 0
		}
		if f.Color != "" {
			s.colors[strings.ToUpper(f.Color)] = 0
		}
		if f.Highlight != "" {
			s.colors[strings.ToUpper(f.Highlight)] = 0
		}
	}
	sheet := s.doc.Styles()
	n := 1
	for _, name := range sheet.Names() {
		st, _ := sheet.Get(name)
		use(st.Format)
		switch {
		case name == "Normal":
			s.styles[name] = 0
		case st.Type != dom.StyleList:
			s.styles[name] = n
			n++
		}
	}
	s.doc.Walk(s.doc.Root(), func(id dom.NodeID) bool {
		use(s.doc.Format(id))
		if m, ok := s.doc.ContentMark(id); ok {
			s.authors[m.Author] = 0
		}
		if m, ok := s.doc.FormatMark(id); ok {
			s.authors[m.Author] = 0
		}
		return true
	})
	numbered(s.fonts, 1)
	numbered(s.colors, 1)
	numbered(s.authors, 1)
}

func sortedBy(m map[string]int) []string {
	out := make([]string, len(m))
	for k, v := range m {
		out[v-1] = k
	}
	return out
}

func (s *saver) fontTable() {
	s.w.Dest("fonttbl", false)
	s.w.Open()
	s.w.WordN("f", 0)
	s.w.Word("froman")
	s.w.Text(defaultFont + ";")
	s.w.Close()
	for _, name := range sortedBy(s.fonts) {
		s.w.Open()
		s.w.WordN("f", s.fonts[name])
		s.w.Word("fnil")
		s.w.Text(name + ";")
		s.w.Close()
	}
	s.w.Close()
	s.w.Line()
}

func (s *saver) colorTable() {
	s.w.Dest("colortbl", false)
	s.w.Text(";")
	for _, hex := range sortedBy(s.colors) {
		v, _ := strconv.ParseUint(hex, 16, 32)
		s.w.WordN("red", int(v>>16&0xff))
		s.w.WordN("green", int(v>>8&0xff))
		s.w.WordN("blue", int(v&0xff))
		s.w.Text(";")
	}
	s.w.Close()
	s.w.Line()
}

// charWords writes the character formatting of f.
func (s *saver) charWords(f dom.Formatting) {
	if f.Font != "" {
		s.w.WordN("f", s.fonts[f.Font])
	}
	if f.Size > 0 {
		s.w.WordN("fs", int(math.Round(f.Size*2)))
	}
	if f.Bold {
		s.w.Word("b")
	}
	if f.Italic {
		s.w.Word("i")
	}
	if f.Underline {
		s.w.Word("ul")
	}
	if f.Strike {
		s.w.Word("strike")
	}
	if f.Color != "" {
		s.w.WordN("cf", s.colors[strings.ToUpper(f.Color)])
	}
	if f.Highlight != "" {
		s.w.WordN("highlight", s.colors[strings.ToUpper(f.Highlight)])
	}
}

var alignWords = map[dom.Alignment]string{
	dom.AlignLeft:    "ql",
	dom.AlignCenter:  "qc",
	dom.AlignRight:   "qr",
	dom.AlignJustify: "qj",
}

// paraWords writes the paragraph formatting of f.
func (s *saver) paraWords(f dom.Formatting) {
	if w, ok := alignWords[f.Align]; ok {
		s.w.Word(w)
	}
	if f.SpaceAfter > 0 {
		s.w.WordN("sa", twips(f.SpaceAfter))
	}
	if f.ListID > 0 {
		if def, ok := s.doc.Lists().Get(f.ListID); ok && f.ListLevel < len(def.Levels) {
			s.w.WordN("li", twips(def.Levels[f.ListLevel].Indent))
		}
		s.w.WordN("ls", f.ListID)
		s.w.WordN("ilvl", f.ListLevel)
	}
}

func (s *saver) styleSheet() {
	sheet := s.doc.Styles()
	s.w.Dest("stylesheet", false)
	for _, name := range sheet.Names() {
		st, _ := sheet.Get(name)
		n, ok := s.styles[name]
		if !ok {
			continue
		}
		s.w.Open()
		switch st.Type {
		case dom.StyleCharacter:
			s.w.Word("*")
			s.w.WordN("cs", n)
			s.w.Word("additive")
		case dom.StyleTable:
			s.w.Word("*")
			s.w.WordN("ts", n)
		default:
			s.w.WordN("s", n)
		}
		if b, ok := s.styles[st.BasedOn]; ok && st.BasedOn != "" {
			s.w.WordN("sbasedon", b)
		}
		s.paraWords(st.Format)
		s.charWords(st.Format)
		s.w.Text(name + ";")
		s.w.Close()
	}
	s.w.Close()
	s.w.Line()
}

var levelFormats = map[dom.NumberStyle]int{
	dom.NumberArabic:     0,
	dom.NumberUpperRoman: 1,
	dom.NumberLowerLatin: 4,
	dom.NumberBullet:     23,
}

// levelText writes a \leveltext template: a length byte, then the
// characters with "%N" placeholders turned into level bytes.
func (s *saver) levelText(template string) {
	type token struct {
		level int
		text  string
	}
	var tokens []token
	rs := []rune(template)
	for i := 0; i < len(rs); i++ {
		if rs[i] == '%' && i+1 < len(rs) && rs[i+1] >= '1' && rs[i+1] <= '9' {
			tokens = append(tokens, token{level: int(rs[i+1] - '0')})
			i++
			continue
		}
		tokens = append(tokens, token{text: string(rs[i])})
	}
	s.w.Open()
	s.w.Word("leveltext")
	s.w.Raw(hexByte(len(tokens)))
	for _, t := range tokens {
		if t.level > 0 {
			s.w.Raw(hexByte(t.level - 1))
			continue
		}
		s.w.Text(t.text)
	}
	s.w.Text(";")
	s.w.Close()
}

func hexByte(n int) string {
	const digits = "0123456789abcdef"
	return `\'` + string(digits[n>>4&0xf]) + string(digits[n&0xf])
}

func (s *saver) listTables() {
	lists := s.doc.Lists()
	ids := lists.IDs()
	if len(ids) == 0 {
		return
	}
	s.w.Dest("listtable", true)
	for _, id := range ids {
		def, _ := lists.Get(id)
		s.w.Open()
		s.w.Word("list")
		for _, lv := range def.Levels {
			s.w.Open()
			s.w.Word("listlevel")
			s.w.WordN("levelnfc", levelFormats[lv.Style])
			s.w.WordN("levelstartat", 1)
			s.levelText(lv.Text)
			s.w.WordN("li", twips(lv.Indent))
			s.w.Close()
		}
		s.w.WordN("listid", id)
		s.w.Close()
	}
	s.w.Close()
	s.w.Dest("listoverridetable", true)
	for _, id := range ids {
		s.w.Open()
		s.w.Word("listoverride")
		s.w.WordN("listid", id)
		s.w.WordN("listoverridecount", 0)
		s.w.WordN("ls", id)
		s.w.Close()
	}
	s.w.Close()
	s.w.Line()
}

func (s *saver) revisionTable() {
	if len(s.authors) == 0 {
		return
	}
	s.w.Dest("revtbl", true)
	for _, a := range append([]string{"Unknown"}, sortedBy(s.authors)...) {
		s.w.Open()
		s.w.Text(a + ";")
		s.w.Close()
	}
	s.w.Close()
	s.w.Line()
}

func (s *saver) dateGroup(word string, t time.Time) {
	if t.IsZero() {
		return
	}
	t = t.UTC()
	s.w.Dest(word, false)
	s.w.WordN("yr", t.Year())
	s.w.WordN("mo", int(t.Month()))
	s.w.WordN("dy", t.Day())
	s.w.WordN("hr", t.Hour())
	s.w.WordN("min", t.Minute())
	s.w.WordN("sec", t.Second())
	s.w.Close()
}

func (s *saver) info() {
	p := s.doc.Props
	s.w.Dest("info", false)
	for _, f := range []struct{ word, value string }{
		{"title", p.Title},
		{"subject", p.Subject},
		{"author", p.Author},
		{"operator", p.LastSavedBy},
	} {
		if f.value == "" {
			continue
		}
		s.w.Dest(f.word, false)
		s.w.Text(f.value)
		s.w.Close()
	}
	s.dateGroup("creatim", p.Created)
	s.dateGroup("revtim", s.opts.Timestamp(s.doc))
	if p.RevisionNumber > 0 {
		s.w.WordN("version", p.RevisionNumber)
	}
	s.w.Close()
	s.w.Line()
}

func (s *saver) docVars() {
	vars := s.doc.Variables()
	for _, name := range vars.Keys() {
		value, _ := vars.Get(name)
		s.w.Dest("docvar", true)
		s.w.Open()
		s.w.Text(name)
		s.w.Close()
		s.w.Open()
		s.w.Text(value)
		s.w.Close()
		s.w.Close()
		s.w.Line()
	}
}

var startWords = map[dom.SectionStart]string{
	dom.SectionNewPage:    "sbkpage",
	dom.SectionContinuous: "sbknone",
	dom.SectionNewColumn:  "sbkcol",
}

var slotWords = []struct {
	slot dom.HeaderFooterType
	word string
}{
	{dom.HeaderPrimary, "header"},
	{dom.HeaderEven, "headerl"},
	{dom.HeaderFirst, "headerf"},
	{dom.FooterPrimary, "footer"},
	{dom.FooterEven, "footerl"},
	{dom.FooterFirst, "footerf"},
}

func (s *saver) section(sec dom.NodeID) {
	a := s.doc.Attrs(sec)
	s.w.Word("sectd")
	if w, ok := startWords[a.SectionStart]; ok {
		s.w.Word(w)
	}
	if pg := a.Page; pg != nil {
		s.w.WordN("pgwsxn", twips(pg.Width))
		s.w.WordN("pghsxn", twips(pg.Height))
		s.w.WordN("marglsxn", twips(pg.MarginLeft))
		s.w.WordN("margrsxn", twips(pg.MarginRight))
		s.w.WordN("margtsxn", twips(pg.MarginTop))
		s.w.WordN("margbsxn", twips(pg.MarginBottom))
		s.w.WordN("cols", max(pg.Columns, 1))
		s.w.WordN("colsx", twips(pg.ColumnGap))
	}
	if s.doc.HeaderFooter(sec, dom.HeaderFirst) != dom.NoNode || s.doc.HeaderFooter(sec, dom.FooterFirst) != dom.NoNode {
		s.w.Word("titlepg")
	}
	for _, sw := range slotWords {
		hf := s.doc.HeaderFooter(sec, sw.slot)
		if hf == dom.NoNode {
			continue
		}
		s.w.Dest(sw.word, false)
		s.story(hf)
		s.w.Close()
	}
	s.w.Line()
	s.blocks(s.doc.Children(s.doc.Body(sec)))
}

// story writes the blocks of a nested story outside any table context.
func (s *saver) story(id dom.NodeID) {
	inCell := s.inCell
	s.inCell = false
	s.blocks(s.doc.Children(id))
	s.inCell = inCell
}

func (s *saver) blocks(ids []dom.NodeID) {
	for _, id := range ids {
		switch s.doc.Type(id) {
		case dom.NodeParagraph:
			s.paragraph(id, "par")
		case dom.NodeTable:
			s.table(id)
		}
	}
}

func (s *saver) table(t dom.NodeID) {
	if s.inCell {
		// Nested tables are written as plain paragraphs of the outer cell.
		for _, r := range s.doc.Children(t) {
			for _, c := range s.doc.Children(r) {
				s.blocks(s.doc.Children(c))
			}
		}
		return
	}
	s.inCell = true
	defer func() { s.inCell = false }()
	for _, r := range s.doc.Children(t) {
		cells := s.doc.Children(r)
		s.w.Word("trowd")
		for i := range cells {
			s.w.WordN("cellx", (i+1)*tableWidth/len(cells))
		}
		s.w.Line()
		for _, c := range cells {
			blocks := s.doc.Children(c)
			last := len(blocks) - 1
			for i, b := range blocks {
				if i == last && s.doc.Type(b) == dom.NodeParagraph {
					s.paragraph(b, "cell")
					continue
				}
				s.blocks([]dom.NodeID{b})
			}
			if last < 0 || s.doc.Type(blocks[last]) != dom.NodeParagraph {
				s.w.Word("pard")
				s.w.Word("intbl")
				s.w.Word("cell")
			}
		}
		s.w.Word("row")
		s.w.Line()
	}
}

// markWords writes the revision words of a content mark and a format mark.
func (s *saver) markWords(cm, fm *dom.RevisionMark) {
	if cm != nil {
		switch cm.Type {
		case dom.RevisionDeletion, dom.RevisionMoveFrom:
			s.w.Word("deleted")
			s.w.WordN("revauthdel", s.authors[cm.Author])
			s.w.WordN("revdttmdel", rtfcore.DTTM(cm.Date))
		case dom.RevisionInsertion, dom.RevisionMoveTo:
			s.w.Word("revised")
			s.w.WordN("revauth", s.authors[cm.Author])
			s.w.WordN("revdttm", rtfcore.DTTM(cm.Date))
		}
	}
	if fm != nil {
		s.w.WordN("crauth", s.authors[fm.Author])
		s.w.WordN("crdate", rtfcore.DTTM(fm.Date))
	}
}

func (s *saver) marks(id dom.NodeID) (cm, fm *dom.RevisionMark) {
	if m, ok := s.doc.ContentMark(id); ok {
		cm = &m
	}
	if m, ok := s.doc.FormatMark(id); ok {
		fm = &m
	}
	return cm, fm
}

func (s *saver) paragraph(p dom.NodeID, end string) {
	f := s.doc.Format(p)
	s.w.Word("pard")
	s.w.Word("plain")
	if n, ok := s.styles[f.Style]; ok && f.Style != "" {
		s.w.WordN("s", n)
	}
	if s.inCell {
		s.w.Word("intbl")
	}
	s.paraWords(f)
	s.inlines(s.doc.Children(p))
	if cm, _ := s.marks(p); cm != nil {
		s.w.Open()
		s.markWords(cm, nil)
		s.w.Word(end)
		s.w.Close()
	} else {
		s.w.Word(end)
	}
	s.w.Line()
}

func (s *saver) inlines(ids []dom.NodeID) {
	for _, id := range ids {
		s.inline(id)
	}
}

var breakWords = map[dom.BreakType]string{
	dom.BreakLine:   "line",
	dom.BreakPage:   "page",
	dom.BreakColumn: "column",
}

// charStart opens a group carrying the formatting and marks of an inline.
func (s *saver) charStart(id dom.NodeID) {
	f := s.doc.Format(id)
	s.w.Open()
	if n, ok := s.styles[f.Style]; ok && f.Style != "" {
		s.w.WordN("cs", n)
	}
	s.charWords(f)
	s.markWords(s.marks(id))
}

func (s *saver) inline(id dom.NodeID) {
	a := s.doc.Attrs(id)
	switch s.doc.Type(id) {
	case dom.NodeRun:
		s.charStart(id)
		s.text(s.doc.Text(id))
		s.w.Close()
	case dom.NodeBreak:
		s.charStart(id)
		s.w.Word(breakWords[a.Break])
		s.w.Close()
	case dom.NodeField:
		s.charStart(id)
		s.w.Word("field")
		s.w.Dest("fldinst", true)
		s.w.Text(a.FieldCode)
		s.w.Close()
		s.w.Dest("fldrslt", false)
		s.text(a.FieldResult)
		s.w.Close()
		s.w.Close()
	case dom.NodeBookmarkStart, dom.NodeBookmarkEnd:
		word := "bkmkstart"
		if s.doc.Type(id) == dom.NodeBookmarkEnd {
			word = "bkmkend"
		}
		s.w.Dest(word, true)
		s.w.Text(a.Name)
		s.w.Close()
	case dom.NodeCommentRangeStart, dom.NodeCommentRangeEnd:
		word := "atrfstart"
		if s.doc.Type(id) == dom.NodeCommentRangeEnd {
			word = "atrfend"
		}
		s.w.Dest(word, true)
		s.w.Text(strconv.Itoa(a.CommentID))
		s.w.Close()
	case dom.NodeComment:
		s.comment(id, a)
	case dom.NodeFootnote:
		s.w.Open()
		s.w.Word("super")
		s.w.Word("chftn")
		s.w.Close()
		s.w.Dest("footnote", false)
		if a.Footnote == dom.Endnote {
			s.w.Word("ftnalt")
		}
		s.story(id)
		s.w.Close()
	case dom.NodeImage:
		s.image(a)
	case dom.NodeShape:
		s.shape(id, a)
	case dom.NodeSmartTag:
		s.inlines(s.doc.Children(id))
	}
}

// text writes run text; line feeds become \line.
func (s *saver) text(t string) {
	for i, part := range strings.Split(strings.ReplaceAll(t, "\v", "\n"), "\n") {
		if i > 0 {
			s.w.Word("line")
		}
		s.w.Text(part)
	}
}

func (s *saver) comment(id dom.NodeID, a dom.Attrs) {
	s.w.Open()
	s.w.Dest("atnid", true)
	s.w.Text(a.Initial)
	s.w.Close()
	s.w.Dest("atnauthor", true)
	s.w.Text(a.Author)
	s.w.Close()
	s.w.Word("chatn")
	s.w.Dest("annotation", true)
	s.w.Dest("atnref", true)
	s.w.Text(strconv.Itoa(a.CommentID))
	s.w.Close()
	if !a.Date.IsZero() {
		s.w.Dest("atndate", true)
		s.w.Text(strconv.Itoa(rtfcore.DTTM(a.Date)))
		s.w.Close()
	}
	s.story(id)
	s.w.Close()
	s.w.Close()
}

var blipWords = map[string]string{
	"image/png":   "pngblip",
	"image/jpeg":  "jpegblip",
	"image/x-emf": "emfblip",
	"image/x-wmf": "wmetafile8",
}

func (s *saver) image(a dom.Attrs) {
	blob, err := s.doc.Media.Get(a.Media)
	if err != nil {
		return
	}
	blip, ok := blipWords[blob.ContentType]
	if !ok {
		blip = "pngblip"
	}
	s.w.Dest("pict", false)
	if a.Alt != "" {
		s.w.Dest("picprop", true)
		s.property("wzDescription", a.Alt)
		s.w.Close()
	}
	s.w.Word(blip)
	s.w.WordN("picwgoal", twips(a.Width))
	s.w.WordN("pichgoal", twips(a.Height))
	s.w.Line()
	s.w.Hex(blob.Data)
	s.w.Close()
}

func (s *saver) property(name, value string) {
	s.w.Dest("sp", false)
	s.w.Dest("sn", false)
	s.w.Text(name)
	s.w.Close()
	s.w.Dest("sv", false)
	s.w.Text(value)
	s.w.Close()
	s.w.Close()
}

// Shape types of the shape property table.
const (
	shapeRectangle = 1
	shapeTextBox   = 202
)

func (s *saver) shape(id dom.NodeID, a dom.Attrs) {
	typ := shapeTextBox
	if a.Shape == dom.ShapeRectangle {
		typ = shapeRectangle
	}
	s.w.Dest("shp", false)
	s.w.Dest("shpinst", true)
	s.w.WordN("shpleft", 0)
	s.w.WordN("shptop", 0)
	s.w.WordN("shpright", twips(a.Width))
	s.w.WordN("shpbottom", twips(a.Height))
	s.property("shapeType", strconv.Itoa(typ))
	if s.doc.ChildCount(id) > 0 {
		s.w.Dest("shptxt", false)
		s.story(id)
		s.w.Close()
	}
	s.w.Close()
	s.w.Close()
}
