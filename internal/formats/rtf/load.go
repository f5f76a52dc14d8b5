package rtf

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	rtfcore "github.com/FocuswithJustin/folio/core/rtf"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// markKey identifies one revision: consecutive text with equal keys is
// merged into one run.
type markKey struct {
	typ  dom.RevisionType
	auth int
	date int
}

// state is the character state scoped to a group.
type state struct {
	f                dom.Formatting
	revised, deleted bool
	auth, authDel    int
	dttm, dttmDel    int
	formatted        bool
	crauth, crdate   int
	uc               int
}

func (st state) content() *markKey {
	switch {
	case st.deleted:
		return &markKey{dom.RevisionDeletion, st.authDel, st.dttmDel}
	case st.revised:
		return &markKey{dom.RevisionInsertion, st.auth, st.dttm}
	}
	return nil
}

func (st state) format() *markKey {
	if !st.formatted {
		return nil
	}
	return &markKey{dom.RevisionFormatChange, st.crauth, st.crdate}
}

func sameKey(a, b *markKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type pendingRun struct {
	text   strings.Builder
	parent dom.NodeID
	format dom.Formatting
	cm, fm *markKey
}

// context is the insertion point that nested stories save and restore.
type context struct {
	story, para      dom.NodeID
	pf               dom.Formatting
	intbl            bool
	table, row, cell dom.NodeID
}

type loader struct {
	doc  *dom.Document
	opts *codec.LoadOptions
	src  *rtfcore.Document
	dec  *rtfcore.Decoder
	err  error

	fonts   map[int]string
	colors  []string
	styles  map[int]string
	lists   map[int]int
	authors []string

	sec dom.NodeID
	context
	run *pendingRun

	// author and initial of the next annotation
	atnAuthor, atnInitial string
	ranges                map[string]int
	comments              int
	skipped               map[string]bool
}

// header destinations read before the body.
var headerDests = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"listtable": true, "listoverridetable": true, "revtbl": true,
	"pntext": true, "listtext": true, "docvar": true,
}

func load(data []byte, doc *dom.Document, opts *codec.LoadOptions) error {
	src, err := rtfcore.Parse(data)
	if err != nil {
		return err
	}
	cp := src.CodePage
	if opts != nil && opts.Encoding != "" {
		if n, ok := strings.CutPrefix(opts.Encoding, "windows-"); ok {
			cp, _ = strconv.Atoi(n)
		}
	}
	l := &loader{
		doc:     doc,
		opts:    opts,
		src:     src,
		dec:     rtfcore.NewDecoder(cp),
		fonts:   map[int]string{},
		styles:  map[int]string{},
		lists:   map[int]int{},
		ranges:  map[string]int{},
		skipped: map[string]bool{},
	}
	root := src.Root
	l.header(root)
	if l.sec, l.story, err = base.NewSection(doc); err != nil {
		return err
	}
	l.resetSection()
	l.group(root, state{uc: 1})
	if l.err != nil {
		return l.err
	}
	l.finish()
	return l.err
}

func (l *loader) fail(err error) {
	if err != nil && l.err == nil {
		l.err = err
	}
}

func (l *loader) skip(what string) {
	if l.skipped[what] {
		return
	}
	l.skipped[what] = true
	l.opts.Warn("rtf", codec.DataLoss, "unsupported "+what+" skipped")
}

func (l *loader) text(g *rtfcore.Group) string {
	return l.src.Text(g)
}

// entry returns the text of a table entry without its ';' terminator.
func (l *loader) entry(g *rtfcore.Group) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(l.text(g)), ";"))
}

func (l *loader) header(root *rtfcore.Group) {
	if cw, ok := root.Word("deftab"); ok && cw.Param > 0 {
		l.doc.DefaultTabStop = float64(cw.Param) / 20
	}
	info := l.src.Info()
	p := &l.doc.Props
	p.Title, p.Subject, p.Author, p.LastSavedBy = info.Title, info.Subject, info.Author, info.Operator
	p.Created, p.LastSaved, p.RevisionNumber = info.Created, info.Revised, info.Version

	for _, it := range root.Items {
		g, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		switch dest, _ := g.Destination(); dest {
		case "fonttbl":
			l.fontTable(g)
		case "colortbl":
			l.colorTable(g)
		case "revtbl":
			for _, it := range g.Items {
				if sub, ok := it.(*rtfcore.Group); ok {
					l.authors = append(l.authors, l.entry(sub))
				}
			}
		case "docvar":
			var parts []string
			for _, it := range g.Items {
				if sub, ok := it.(*rtfcore.Group); ok {
					parts = append(parts, l.text(sub))
				}
			}
			if len(parts) > 0 && parts[0] != "" {
				value := ""
				if len(parts) > 1 {
					value = parts[1]
				}
				l.doc.Variables().Set(parts[0], value)
			}
		}
	}
	// Lists come before styles, which may reference them.
	if g := root.Find("listtable"); g != nil {
		l.listTable(g, root.Find("listoverridetable"))
	}
	if g := root.Find("stylesheet"); g != nil {
		l.styleSheet(g)
	}
}

func (l *loader) fontTable(g *rtfcore.Group) {
	for _, it := range g.Items {
		sub, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		cw, ok := sub.Word("f")
		if !ok {
			continue
		}
		l.fonts[cw.Param] = l.entry(sub)
	}
}

func (l *loader) colorTable(g *rtfcore.Group) {
	var r, gr, b int
	set := false
	for _, it := range g.Items {
		switch v := it.(type) {
		case rtfcore.ControlWord:
			switch v.Word {
			case "red":
				r, set = v.Param, true
			case "green":
				gr, set = v.Param, true
			case "blue":
				b, set = v.Param, true
			}
		case string:
			for range strings.Count(v, ";") {
				c := ""
				if set {
					c = strings.ToUpper(hex.EncodeToString([]byte{byte(r), byte(gr), byte(b)}))
				}
				l.colors = append(l.colors, c)
				r, gr, b, set = 0, 0, 0, false
			}
		}
	}
}

func (l *loader) color(n int) string {
	if n > 0 && n < len(l.colors) {
		return l.colors[n]
	}
	return ""
}

func (l *loader) author(n int) string {
	if n >= 0 && n < len(l.authors) {
		return l.authors[n]
	}
	return "Unknown"
}

var levelStyles = map[int]dom.NumberStyle{
	0:  dom.NumberArabic,
	1:  dom.NumberUpperRoman,
	4:  dom.NumberLowerLatin,
	23: dom.NumberBullet,
}

func (l *loader) listTable(table, overrides *rtfcore.Group) {
	ids := map[int]int{}
	for _, it := range table.Items {
		g, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		if d, _ := g.Destination(); d != "list" {
			continue
		}
		cw, _ := g.Word("listid")
		def := dom.ListDef{ID: cw.Param}
		for _, it := range g.Items {
			lg, ok := it.(*rtfcore.Group)
			if !ok {
				continue
			}
			if d, _ := lg.Destination(); d != "listlevel" {
				continue
			}
			lv := dom.ListLevel{Style: dom.NumberArabic}
			if nfc, ok := lg.Word("levelnfc"); ok {
				if st, ok := levelStyles[nfc.Param]; ok {
					lv.Style = st
				}
			}
			if li, ok := lg.Word("li"); ok {
				lv.Indent = float64(li.Param) / 20
			}
			if lt := lg.Find("leveltext"); lt != nil {
				lv.Text = l.levelText(lt)
			}
			def.Levels = append(def.Levels, lv)
		}
		if def.ID <= 0 {
			def.ID = len(ids) + 1
		}
		if len(def.Levels) > 0 {
			l.doc.Lists().Put(def)
			ids[cw.Param] = def.ID
		}
	}
	if overrides == nil {
		for listID, id := range ids {
			l.lists[listID] = id
		}
		return
	}
	for _, it := range overrides.Items {
		g, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		lid, _ := g.Word("listid")
		ls, ok := g.Word("ls")
		if id, found := ids[lid.Param]; ok && found {
			l.lists[ls.Param] = id
		}
	}
}

// levelText turns a \leveltext template back into "%N" form.
func (l *loader) levelText(g *rtfcore.Group) string {
	var b strings.Builder
	dec := rtfcore.NewDecoder(l.src.CodePage)
	first := true
	for _, it := range g.Items {
		switch v := it.(type) {
		case rtfcore.ControlWord:
			if v.Word == "'" {
				if first {
					first = false
					continue
				}
				if v.Param < 9 {
					b.WriteString("%" + strconv.Itoa(v.Param+1))
					continue
				}
			}
			b.WriteString(dec.Word(v))
		case string:
			b.WriteString(dec.Text(v))
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (l *loader) styleSheet(g *rtfcore.Group) {
	type def struct {
		style   dom.Style
		basedOn int
	}
	var defs []def
	for _, it := range g.Items {
		sg, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		d := def{style: dom.Style{Type: dom.StyleParagraph}, basedOn: -1}
		n := 0
		var st state
		for _, it := range sg.Items {
			cw, ok := it.(rtfcore.ControlWord)
			if !ok {
				continue
			}
			switch cw.Word {
			case "s":
				n = cw.Param
			case "cs":
				n, d.style.Type = cw.Param, dom.StyleCharacter
			case "ts":
				n, d.style.Type = cw.Param, dom.StyleTable
			case "ds", "tsrowd":
				d.style.Type = dom.StyleList
			case "sbasedon":
				d.basedOn = cw.Param
			default:
				l.charWord(cw, &st)
				l.paraWord(cw, &d.style.Format)
			}
		}
		st.f.Style = ""
		d.style.Format = mergeChar(d.style.Format, st.f)
		d.style.Name = l.entry(sg)
		if d.style.Name == "" || d.style.Type == dom.StyleList {
			continue
		}
		l.styles[n] = d.style.Name
		defs = append(defs, d)
	}
	for _, d := range defs {
		s := d.style
		if d.basedOn >= 0 {
			s.BasedOn = l.styles[d.basedOn]
		}
		existing, ok := l.doc.Styles().Get(s.Name)
		s.BuiltIn = ok && existing.BuiltIn
		l.doc.Styles().Restore(s)
	}
}

// mergeChar copies the character fields of c into f.
func mergeChar(f, c dom.Formatting) dom.Formatting {
	f.Font, f.Size, f.Color, f.Highlight = c.Font, c.Size, c.Color, c.Highlight
	f.Bold, f.Italic, f.Underline, f.Strike = c.Bold, c.Italic, c.Underline, c.Strike
	return f
}

func toggle(cw rtfcore.ControlWord) bool {
	return !cw.HasParam || cw.Param != 0
}

// charWord applies a character formatting or revision word to st.
func (l *loader) charWord(cw rtfcore.ControlWord, st *state) bool {
	switch cw.Word {
	case "plain":
		st.f = dom.Formatting{}
	case "f":
		if cw.Param == l.src.DefaultFont {
			st.f.Font = ""
		} else {
			st.f.Font = l.fonts[cw.Param]
		}
	case "fs":
		st.f.Size = float64(cw.Param) / 2
	case "b":
		st.f.Bold = toggle(cw)
	case "i":
		st.f.Italic = toggle(cw)
	case "ul":
		st.f.Underline = toggle(cw)
	case "ulnone":
		st.f.Underline = false
	case "strike":
		st.f.Strike = toggle(cw)
	case "cf":
		st.f.Color = l.color(cw.Param)
	case "highlight", "cb", "chcbpat":
		st.f.Highlight = l.color(cw.Param)
	case "cs":
		st.f.Style = l.styles[cw.Param]
	case "revised":
		st.revised = toggle(cw)
	case "deleted":
		st.deleted = toggle(cw)
	case "revauth":
		st.auth = cw.Param
	case "revauthdel":
		st.authDel = cw.Param
	case "revdttm":
		st.dttm = cw.Param
	case "revdttmdel":
		st.dttmDel = cw.Param
	case "crauth":
		st.formatted, st.crauth = true, cw.Param
	case "crdate":
		st.crdate = cw.Param
	case "uc":
		st.uc = max(cw.Param, 0)
		l.dec.UC = st.uc
	default:
		return false
	}
	return true
}

var alignments = map[string]dom.Alignment{
	"ql": dom.AlignLeft,
	"qc": dom.AlignCenter,
	"qr": dom.AlignRight,
	"qj": dom.AlignJustify,
}

// paraWord applies a paragraph formatting word to f.
func (l *loader) paraWord(cw rtfcore.ControlWord, f *dom.Formatting) bool {
	if a, ok := alignments[cw.Word]; ok {
		f.Align = a
		return true
	}
	switch cw.Word {
	case "sa":
		f.SpaceAfter = float64(cw.Param) / 20
	case "ls":
		f.ListID = l.lists[cw.Param]
		if f.ListID == 0 {
			l.opts.Warn("rtf", codec.MissingStyle, "list override "+strconv.Itoa(cw.Param)+" is not defined")
		}
	case "ilvl":
		f.ListLevel = cw.Param
	default:
		return false
	}
	return true
}

func (l *loader) resetSection() {
	a := l.doc.Attrs(l.sec)
	a.SectionStart = dom.SectionNewPage
	a.Page = nil
	l.fail(l.doc.SetAttrs(l.sec, a))
}

func (l *loader) page() (dom.Attrs, *dom.PageSetup) {
	a := l.doc.Attrs(l.sec)
	if a.Page == nil {
		pg := dom.DefaultPageSetup()
		a.Page = &pg
	}
	return a, a.Page
}

var sectionStarts = map[string]dom.SectionStart{
	"sbkpage": dom.SectionNewPage,
	"sbkodd":  dom.SectionNewPage,
	"sbkeven": dom.SectionNewPage,
	"sbknone": dom.SectionContinuous,
	"sbkcol":  dom.SectionNewColumn,
}

// sectionWord applies a section formatting word to the current section.
func (l *loader) sectionWord(cw rtfcore.ControlWord) bool {
	if s, ok := sectionStarts[cw.Word]; ok {
		a := l.doc.Attrs(l.sec)
		a.SectionStart = s
		l.fail(l.doc.SetAttrs(l.sec, a))
		return true
	}
	v := float64(cw.Param) / 20
	var set func(*dom.PageSetup)
	switch cw.Word {
	case "sectd":
		l.resetSection()
		return true
	case "pgwsxn":
		set = func(p *dom.PageSetup) { p.Width = v }
	case "pghsxn":
		set = func(p *dom.PageSetup) { p.Height = v }
	case "marglsxn":
		set = func(p *dom.PageSetup) { p.MarginLeft = v }
	case "margrsxn":
		set = func(p *dom.PageSetup) { p.MarginRight = v }
	case "margtsxn":
		set = func(p *dom.PageSetup) { p.MarginTop = v }
	case "margbsxn":
		set = func(p *dom.PageSetup) { p.MarginBottom = v }
	case "cols":
		set = func(p *dom.PageSetup) { p.Columns = max(cw.Param, 1) }
	case "colsx":
		set = func(p *dom.PageSetup) { p.ColumnGap = v }
	default:
		return false
	}
	a, pg := l.page()
	set(pg)
	l.fail(l.doc.SetAttrs(l.sec, a))
	return true
}

var slots = map[string]dom.HeaderFooterType{
	"header":  dom.HeaderPrimary,
	"headerr": dom.HeaderPrimary,
	"headerl": dom.HeaderEven,
	"headerf": dom.HeaderFirst,
	"footer":  dom.FooterPrimary,
	"footerr": dom.FooterPrimary,
	"footerl": dom.FooterEven,
	"footerf": dom.FooterFirst,
}

var breakTypes = map[string]dom.BreakType{
	"line":   dom.BreakLine,
	"page":   dom.BreakPage,
	"column": dom.BreakColumn,
}

// group interprets the items of g with the character state st.
func (l *loader) group(g *rtfcore.Group, st state) {
	l.dec.UC = st.uc
	for _, it := range g.Items {
		if l.err != nil {
			return
		}
		switch v := it.(type) {
		case string:
			l.write(st, l.dec.Text(v))
		case rtfcore.ControlWord:
			l.word(v, &st)
		case *rtfcore.Group:
			l.nested(v, st)
			l.dec.UC = st.uc
		}
	}
}

func (l *loader) word(cw rtfcore.ControlWord, st *state) {
	if l.charWord(cw, st) || l.paraWord(cw, &l.pf) || l.sectionWord(cw) {
		return
	}
	if kind, ok := breakTypes[cw.Word]; ok {
		l.place(l.doc.NewBreak(kind), *st)
		return
	}
	switch cw.Word {
	case "pard":
		l.pf = dom.Formatting{}
		l.intbl = false
	case "s":
		l.pf.Style = l.styles[cw.Param]
		if l.pf.Style == "" {
			l.opts.Warn("rtf", codec.MissingStyle, "style "+strconv.Itoa(cw.Param)+" is not defined")
		}
	case "intbl":
		l.intbl = true
	case "par", "nestcell":
		l.endParagraph(*st)
	case "cell":
		l.endParagraph(*st)
		l.cell = dom.NoNode
	case "row":
		l.flush()
		l.row, l.cell = dom.NoNode, dom.NoNode
	case "sect":
		l.finish()
		var err error
		l.sec, l.story, err = base.NewSection(l.doc)
		l.fail(err)
		l.para, l.table, l.row, l.cell = dom.NoNode, dom.NoNode, dom.NoNode, dom.NoNode
		l.resetSection()
	case "tab":
		l.write(*st, "\t")
	default:
		l.write(*st, l.dec.Word(cw))
	}
}

func (l *loader) nested(g *rtfcore.Group, st state) {
	dest, ignorable := g.Destination()
	if _, ok := g.Word("field"); ok && dest != "fldinst" {
		l.field(g, st)
		return
	}
	if slot, ok := slots[dest]; ok {
		l.headerFooter(g, slot)
		return
	}
	switch dest {
	case "footnote":
		l.footnote(g, st)
	case "atnid":
		l.atnInitial = strings.TrimSpace(l.text(g))
	case "atnauthor":
		l.atnAuthor = strings.TrimSpace(l.text(g))
	case "annotation":
		l.annotation(g, st)
	case "bkmkstart", "bkmkend":
		t := dom.NodeBookmarkStart
		if dest == "bkmkend" {
			t = dom.NodeBookmarkEnd
		}
		l.marker(t, dom.Attrs{Name: strings.TrimSpace(l.text(g))}, st)
	case "atrfstart", "atrfend":
		t := dom.NodeCommentRangeStart
		if dest == "atrfend" {
			t = dom.NodeCommentRangeEnd
		}
		l.marker(t, dom.Attrs{CommentID: l.rangeID(strings.TrimSpace(l.text(g)))}, st)
	case "pict":
		l.picture(g, st)
	case "shppict":
		if p := g.Find("pict"); p != nil {
			l.picture(p, st)
		}
	case "shp":
		l.shape(g, st)
	case "chftn", "chatn", "nonshppict", "shprslt":
	default:
		switch {
		case headerDests[dest]:
		case ignorable:
		default:
			l.group(g, st)
		}
	}
}

// rangeID maps a comment range name to a comment number.
func (l *loader) rangeID(name string) int {
	if n, err := strconv.Atoi(name); err == nil {
		return n
	}
	if id, ok := l.ranges[name]; ok {
		return id
	}
	l.comments++
	l.ranges[name] = 1000000 + l.comments
	return l.ranges[name]
}

func (l *loader) add(parent, child dom.NodeID) bool {
	if err := l.doc.AppendChild(parent, child); err != nil {
		l.fail(err)
		return false
	}
	return true
}

func (l *loader) newNode(t dom.NodeType) dom.NodeID {
	id, err := l.doc.NewNode(t)
	l.fail(err)
	return id
}

// paragraph returns the open paragraph, creating it and any table rows
// and cells it belongs to.
func (l *loader) paragraph() dom.NodeID {
	if l.para != dom.NoNode {
		return l.para
	}
	parent := l.story
	if l.intbl && l.doc.Type(l.story).CanContain(dom.NodeTable) {
		if l.table == dom.NoNode {
			l.table = l.newNode(dom.NodeTable)
			l.add(l.story, l.table)
			l.row = dom.NoNode
		}
		if l.row == dom.NoNode {
			l.row = l.newNode(dom.NodeRow)
			l.add(l.table, l.row)
			l.cell = dom.NoNode
		}
		if l.cell == dom.NoNode {
			l.cell = l.newNode(dom.NodeCell)
			l.add(l.row, l.cell)
		}
		parent = l.cell
	} else {
		l.table, l.row, l.cell = dom.NoNode, dom.NoNode, dom.NoNode
	}
	l.para = l.newNode(dom.NodeParagraph)
	l.add(parent, l.para)
	return l.para
}

func (l *loader) endParagraph(st state) {
	l.flush()
	p := l.paragraph()
	l.fail(l.doc.SetFormat(p, l.pf))
	if k := st.content(); k != nil {
		l.fail(l.doc.SetContentMark(p, l.mark(k)))
	}
	l.para = dom.NoNode
}

// finish closes a paragraph left open at the end of a story.
func (l *loader) finish() {
	l.flush()
	if l.para != dom.NoNode {
		l.fail(l.doc.SetFormat(l.para, l.pf))
		l.para = dom.NoNode
	}
}

func (l *loader) mark(k *markKey) *dom.RevisionMark {
	if k == nil {
		return nil
	}
	m := l.doc.NewMark(k.typ, l.author(k.auth), rtfcore.ParseDTTM(k.date))
	if k.typ == dom.RevisionFormatChange {
		m.OldFormat = &dom.Formatting{}
	}
	return &m
}

func (l *loader) setMarks(id dom.NodeID, st state) {
	if k := st.content(); k != nil {
		l.fail(l.doc.SetContentMark(id, l.mark(k)))
	}
	if k := st.format(); k != nil {
		l.fail(l.doc.SetFormatMark(id, l.mark(k)))
	}
}

// write appends text to the pending run, starting a new one when the
// formatting or marks differ.
func (l *loader) write(st state, s string) {
	if s == "" {
		return
	}
	p := l.paragraph()
	cm, fm := st.content(), st.format()
	if r := l.run; r != nil && (r.parent != p || r.format != st.f || !sameKey(r.cm, cm) || !sameKey(r.fm, fm)) {
		l.flush()
	}
	if l.run == nil {
		l.run = &pendingRun{parent: p, format: st.f, cm: cm, fm: fm}
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
	if r.cm != nil {
		l.fail(l.doc.SetContentMark(id, l.mark(r.cm)))
	}
	if r.fm != nil {
		l.fail(l.doc.SetFormatMark(id, l.mark(r.fm)))
	}
}

// place appends an inline node with the formatting and marks of st.
func (l *loader) place(id dom.NodeID, st state) {
	p := l.paragraph()
	l.flush()
	if !l.add(p, id) {
		return
	}
	if l.doc.Type(id) != dom.NodeBookmarkStart && l.doc.Type(id) != dom.NodeBookmarkEnd {
		l.fail(l.doc.SetFormat(id, st.f))
	}
	l.setMarks(id, st)
}

func (l *loader) marker(t dom.NodeType, a dom.Attrs, st state) {
	id := l.newNode(t)
	l.fail(l.doc.SetAttrs(id, a))
	l.place(id, state{uc: st.uc})
}

// readStory reads g into the story node id.
func (l *loader) readStory(id dom.NodeID, g *rtfcore.Group) {
	l.flush()
	saved := l.context
	l.context = context{story: id}
	l.group(g, state{uc: 1})
	l.finish()
	l.context = saved
}

func (l *loader) headerFooter(g *rtfcore.Group, slot dom.HeaderFooterType) {
	if l.doc.HeaderFooter(l.sec, slot) != dom.NoNode {
		l.skip("duplicate " + string(slot))
		return
	}
	id := l.newNode(dom.NodeHeaderFooter)
	l.fail(l.doc.SetAttrs(id, dom.Attrs{HeaderFooter: slot}))
	if l.add(l.sec, id) {
		l.readStory(id, g)
	}
}

func (l *loader) field(g *rtfcore.Group, st state) {
	var code, result string
	for _, it := range g.Items {
		switch v := it.(type) {
		case rtfcore.ControlWord:
			l.charWord(v, &st)
		case *rtfcore.Group:
			switch d, _ := v.Destination(); d {
			case "fldinst":
				code = strings.TrimSpace(l.text(v))
			case "fldrslt":
				result = l.text(v)
			}
		}
	}
	l.place(l.doc.NewField(code, result), st)
}

func (l *loader) footnote(g *rtfcore.Group, st state) {
	id := l.newNode(dom.NodeFootnote)
	if _, ok := g.Word("ftnalt"); ok {
		a := l.doc.Attrs(id)
		a.Footnote = dom.Endnote
		l.fail(l.doc.SetAttrs(id, a))
	}
	l.place(id, st)
	l.readStory(id, g)
}

func (l *loader) annotation(g *rtfcore.Group, st state) {
	a := dom.Attrs{Author: l.atnAuthor, Initial: l.atnInitial}
	l.atnAuthor, l.atnInitial = "", ""
	if ref := g.Find("atnref"); ref != nil {
		a.CommentID = l.rangeID(strings.TrimSpace(l.text(ref)))
	} else {
		l.comments++
		a.CommentID = 1000000 + l.comments
	}
	if d := g.Find("atndate"); d != nil {
		n, _ := strconv.Atoi(strings.TrimSpace(l.text(d)))
		a.Date = rtfcore.ParseDTTM(n)
	}
	id := l.newNode(dom.NodeComment)
	l.fail(l.doc.SetAttrs(id, a))
	l.place(id, state{uc: st.uc})
	l.readStory(id, g)
}

var blipTypes = map[string]string{
	"pngblip":   "image/png",
	"jpegblip":  "image/jpeg",
	"emfblip":   "image/x-emf",
	"wmetafile": "image/x-wmf",
	"macpict":   "image/pict",
	"dibitmap":  "image/bmp",
	"wbitmap":   "image/bmp",
}

// properties reads the {\sp{\sn name}{\sv value}} pairs directly inside g.
func (l *loader) properties(g *rtfcore.Group) map[string]string {
	props := map[string]string{}
	for _, it := range g.Items {
		sp, ok := it.(*rtfcore.Group)
		if !ok {
			continue
		}
		if d, _ := sp.Destination(); d != "sp" {
			continue
		}
		sn, sv := sp.Find("sn"), sp.Find("sv")
		if sn != nil && sv != nil {
			props[strings.TrimSpace(l.text(sn))] = l.text(sv)
		}
	}
	return props
}

func (l *loader) picture(g *rtfcore.Group, st state) {
	var hexData strings.Builder
	var data []byte
	contentType := ""
	var w, h, goalW, goalH float64
	scaleX, scaleY := 100.0, 100.0
	alt := ""
	for _, it := range g.Items {
		switch v := it.(type) {
		case rtfcore.ControlWord:
			if ct, ok := blipTypes[v.Word]; ok {
				contentType = ct
			}
			switch v.Word {
			case "picw":
				w = float64(v.Param) * 0.75
			case "pich":
				h = float64(v.Param) * 0.75
			case "picwgoal":
				goalW = float64(v.Param) / 20
			case "pichgoal":
				goalH = float64(v.Param) / 20
			case "picscalex":
				scaleX = float64(v.Param)
			case "picscaley":
				scaleY = float64(v.Param)
			}
		case string:
			hexData.WriteString(v)
		case rtfcore.Binary:
			data = append(data, v...)
		case *rtfcore.Group:
			if d, _ := v.Destination(); d == "picprop" {
				props := l.properties(v)
				alt = props["wzDescription"]
				if alt == "" {
					alt = props["wzName"]
				}
			}
		}
	}
	if data == nil {
		clean := strings.Map(func(r rune) rune {
			if strings.ContainsRune(" \t\r\n", r) {
				return -1
			}
			return r
		}, hexData.String())
		var err error
		if data, err = hex.DecodeString(clean); err != nil || len(data) == 0 {
			l.skip("picture data")
			return
		}
	}
	if sniffed := base.ImageType("", data); sniffed != "application/octet-stream" || contentType == "" {
		contentType = sniffed
	}
	if goalW > 0 {
		w = goalW
	}
	if goalH > 0 {
		h = goalH
	}
	id := l.doc.NewImage(contentType, data, w*scaleX/100, h*scaleY/100)
	if alt != "" {
		a := l.doc.Attrs(id)
		a.Alt = alt
		l.fail(l.doc.SetAttrs(id, a))
	}
	l.place(id, st)
}

// Shape types of the shape property table.
var shapeTypes = map[string]dom.ShapeType{
	"1":   dom.ShapeRectangle,
	"202": dom.ShapeTextBox,
}

func (l *loader) shape(g *rtfcore.Group, st state) {
	inst := g.Find("shpinst")
	if inst == nil {
		l.skip("shape without shpinst")
		return
	}
	word := func(name string) float64 {
		cw, _ := inst.Word(name)
		return float64(cw.Param) / 20
	}
	typ, ok := shapeTypes[strings.TrimSpace(l.properties(inst)["shapeType"])]
	if !ok {
		typ = dom.ShapeTextBox
	}
	id := l.newNode(dom.NodeShape)
	a := l.doc.Attrs(id)
	a.Shape = typ
	a.Width = word("shpright") - word("shpleft")
	a.Height = word("shpbottom") - word("shptop")
	l.fail(l.doc.SetAttrs(id, a))
	l.place(id, st)
	if txt := inst.Find("shptxt"); txt != nil {
		l.readStory(id, txt)
	}
}
