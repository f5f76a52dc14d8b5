package layout

import (
	"github.com/FocuswithJustin/folio/core/dom"
)

// layouter holds the state of one pass. The body flows through columns
// and pages; headers, cells, notes, comments and text boxes are laid out
// as fixed boxes.
type layouter struct {
	c    *Collector
	doc  *dom.Document
	opts Options

	sections []dom.NodeID
	secIdx   int
	set      setup
	secPage  int

	page     *Entity
	col      *Entity
	colIdx   int
	y        float64
	bottom   float64
	notes    []*Entity
	commentY float64
	footer   dom.NodeID
	pageSet  setup

	footnoteNum int
	endnoteNum  int
	endnotes    []dom.NodeID
}

func (l *layouter) run() {
	l.sections = l.doc.Sections()
	for i, sec := range l.sections {
		l.secIdx = i
		a := l.doc.Attrs(sec)
		set := l.opts.setupFor(a.Page)
		switch {
		case l.page == nil:
			l.set = set
			l.secPage = 0
			l.newPage()
		case a.SectionStart == dom.SectionNewPage && l.pageHasContent():
			l.set = set
			l.secPage = 0
			l.newPage()
		case a.SectionStart == dom.SectionNewColumn:
			l.set = set
			l.secPage = 1
			l.nextColumn()
		default:
			l.set = set
			l.secPage = 1
		}
		l.flow(l.doc.Children(l.doc.Body(sec)))
	}
	for _, n := range l.endnotes {
		l.flowNote(n)
	}
	l.finishPage()
}

func (l *layouter) pageHasContent() bool {
	return l.colIdx > 0 || len(l.col.Children) > 0
}

func (l *layouter) contentWidth() float64 {
	return l.set.width - l.set.left - l.set.right
}

func (l *layouter) newPage() {
	l.finishPage()
	idx := len(l.c.pages) + 1
	p := &Entity{Type: Page, PageIndex: idx, Rect: Rect{Width: l.set.width, Height: l.set.height}}
	p.index = idx - 1
	l.c.pages = append(l.c.pages, p)
	l.c.register(p, idx)
	l.page = p
	l.pageSet = l.set
	l.secPage++
	l.bottom = l.set.height - l.set.bottom
	l.notes = nil
	l.commentY = 0

	first := l.secPage == 1
	even := idx%2 == 0
	if hf := l.headerFooter(true, first, even); hf != dom.NoNode {
		y := l.set.top / 2
		ents, h := l.box(l.doc.Children(hf), l.set.left, y, l.contentWidth())
		e := &Entity{Type: HeaderFooter, Node: hf, Rect: Rect{X: l.set.left, Y: y, Width: l.contentWidth(), Height: h}}
		for _, ch := range ents {
			e.add(ch)
		}
		l.attach(l.page, e)
	}
	l.footer = l.headerFooter(false, first, even)

	l.colIdx = 0
	l.openColumn()
}

func (l *layouter) finishPage() {
	if l.page == nil || l.footer == dom.NoNode {
		return
	}
	ps := l.pageSet
	w := ps.width - ps.left - ps.right
	ents, h := l.box(l.doc.Children(l.footer), ps.left, 0, w)
	e := &Entity{Type: HeaderFooter, Node: l.footer, Rect: Rect{X: ps.left, Width: w, Height: h}}
	for _, ch := range ents {
		e.add(ch)
	}
	e.shift(ps.height - ps.bottom/2 - h)
	l.attach(l.page, e)
	l.footer = dom.NoNode
}

// headerFooter picks the header or footer story for the page being
// opened. Sections without their own story use the previous section's.
func (l *layouter) headerFooter(header, first, even bool) dom.NodeID {
	primary, firstKind, evenKind := dom.FooterPrimary, dom.FooterFirst, dom.FooterEven
	if header {
		primary, firstKind, evenKind = dom.HeaderPrimary, dom.HeaderFirst, dom.HeaderEven
	}
	find := func(kind dom.HeaderFooterType) dom.NodeID {
		for i := l.secIdx; i >= 0; i-- {
			if hf := l.doc.HeaderFooter(l.sections[i], kind); hf != dom.NoNode {
				return hf
			}
		}
		return dom.NoNode
	}
	if first {
		if hf := find(firstKind); hf != dom.NoNode {
			return hf
		}
	}
	if even {
		if hf := find(evenKind); hf != dom.NoNode {
			return hf
		}
	}
	return find(primary)
}

func (l *layouter) openColumn() {
	w := l.set.columnWidth()
	x := l.set.left + float64(l.colIdx)*(w+l.set.gap)
	col := &Entity{Type: Column, Rect: Rect{X: x, Y: l.set.top, Width: w, Height: l.set.height - l.set.top - l.set.bottom}}
	l.attach(l.page, col)
	l.col = col
	l.y = l.set.top
}

func (l *layouter) nextColumn() {
	if l.colIdx+1 < l.set.columns {
		l.colIdx++
		l.openColumn()
		return
	}
	l.newPage()
}

// reserve makes room for h points of body content, moving to the next
// column or page when the current one is not empty and too full.
func (l *layouter) reserve(h float64) {
	if l.y+h > l.bottom && len(l.col.Children) > 0 {
		l.nextColumn()
	}
}

func (l *layouter) attach(parent, e *Entity) {
	parent.add(e)
	l.c.register(e, l.page.PageIndex)
	l.anchors(e)
}

// anchors lays out the notes, comments and text boxes anchored in e.
func (l *layouter) anchors(e *Entity) {
	for _, a := range e.anchors {
		switch l.doc.Type(a.node) {
		case dom.NodeFootnote:
			if l.doc.Attrs(a.node).Footnote == dom.Endnote {
				l.endnotes = append(l.endnotes, a.node)
			} else {
				l.footnote(a.node)
			}
		case dom.NodeComment:
			l.comment(a.node, e.Rect.Y)
		case dom.NodeShape:
			l.textBox(a.node, a.x, e.Rect.Y)
		}
	}
	for _, ch := range e.Children {
		l.anchors(ch)
	}
}

func (l *layouter) flow(blocks []dom.NodeID) {
	for _, b := range blocks {
		switch l.doc.Type(b) {
		case dom.NodeParagraph:
			l.flowParagraph(b)
		case dom.NodeTable:
			for _, row := range l.doc.Children(b) {
				e := l.row(row, l.col.Rect.X, l.col.Rect.Width)
				l.reserve(e.Rect.Height)
				e.shift(l.y)
				l.attach(l.col, e)
				l.y += e.Rect.Height
			}
		}
	}
}

func (l *layouter) flowParagraph(p dom.NodeID) {
	for _, ln := range l.lines(p, l.col.Rect.Width) {
		l.reserve(ln.height)
		l.attach(l.col, l.lineEntity(p, ln, l.col.Rect.X, l.y, l.col.Rect.Width))
		l.y += ln.height
		switch ln.brk {
		case dom.BreakPage:
			l.newPage()
		case dom.BreakColumn:
			l.nextColumn()
		}
	}
	l.y += l.doc.Format(p).SpaceAfter
}

// box lays out blocks top-down from y without breaking pages and returns
// the entities and the height used.
func (l *layouter) box(blocks []dom.NodeID, x, y, w float64) ([]*Entity, float64) {
	var out []*Entity
	top := y
	for _, b := range blocks {
		switch l.doc.Type(b) {
		case dom.NodeParagraph:
			for _, ln := range l.lines(b, w) {
				out = append(out, l.lineEntity(b, ln, x, y, w))
				y += ln.height
			}
			y += l.doc.Format(b).SpaceAfter
		case dom.NodeTable:
			for _, row := range l.doc.Children(b) {
				e := l.row(row, x, w)
				e.shift(y)
				out = append(out, e)
				y += e.Rect.Height
			}
		}
	}
	return out, y - top
}

// row lays out a table row at y = 0 with equal column widths. Every cell
// takes the height of the tallest.
func (l *layouter) row(row dom.NodeID, x, w float64) *Entity {
	cells := l.doc.Children(row)
	e := &Entity{Type: Row, Node: row, Rect: Rect{X: x, Width: w}}
	if len(cells) == 0 {
		e.Rect.Height = l.opts.FontSize * l.opts.LineSpacing
		return e
	}
	cw := w / float64(len(cells))
	for i, cell := range cells {
		cx := x + float64(i)*cw
		ents, h := l.box(l.doc.Children(cell), cx, 0, cw)
		ce := &Entity{Type: Cell, Node: cell, Rect: Rect{X: cx, Width: cw, Height: h}}
		for _, ch := range ents {
			ce.add(ch)
		}
		e.add(ce)
		e.Rect.Height = max(e.Rect.Height, h)
	}
	for _, ce := range e.Children {
		ce.Rect.Height = e.Rect.Height
	}
	return e
}

// footnote places note n at the bottom of the page and pushes the notes
// already there up. The room left for body text shrinks accordingly.
func (l *layouter) footnote(n dom.NodeID) {
	w := l.contentWidth()
	ents, h := l.box(l.doc.Children(n), l.set.left, 0, w)
	e := &Entity{Type: Footnote, Node: n, Rect: Rect{X: l.set.left, Width: w, Height: h}}
	for _, ch := range ents {
		e.add(ch)
	}
	for _, prev := range l.notes {
		prev.shift(-h)
	}
	e.shift(l.set.height - l.set.bottom - h)
	l.bottom -= h
	l.notes = append(l.notes, e)
	l.attach(l.page, e)
}

// flowNote places an endnote in the body flow after the last section.
func (l *layouter) flowNote(n dom.NodeID) {
	w := l.col.Rect.Width
	ents, h := l.box(l.doc.Children(n), l.col.Rect.X, 0, w)
	e := &Entity{Type: Footnote, Node: n, Rect: Rect{X: l.col.Rect.X, Width: w, Height: h}}
	for _, ch := range ents {
		e.add(ch)
	}
	l.reserve(h)
	e.shift(l.y)
	l.attach(l.col, e)
	l.y += h
}

// comment places comment n in the right margin, level with its anchor
// or below the previous comment on the page.
func (l *layouter) comment(n dom.NodeID, anchorY float64) {
	w := max(l.set.right-8, 36)
	x := l.set.width - l.set.right + 4
	y := max(anchorY, l.commentY)
	ents, h := l.box(l.doc.Children(n), x, y, w)
	e := &Entity{Type: Comment, Node: n, Rect: Rect{X: x, Y: y, Width: w, Height: h}}
	for _, ch := range ents {
		e.add(ch)
	}
	l.commentY = y + h
	l.attach(l.page, e)
}

func (l *layouter) textBox(n dom.NodeID, x, y float64) {
	a := l.doc.Attrs(n)
	w := orDefault(a.Width, 144)
	ents, h := l.box(l.doc.Children(n), x, y, w)
	e := &Entity{Type: TextBox, Node: n, Rect: Rect{X: x, Y: y, Width: w, Height: max(h, a.Height)}}
	for _, ch := range ents {
		e.add(ch)
	}
	l.attach(l.page, e)
}
