package layout

import (
	"strconv"
	"unicode"

	"github.com/FocuswithJustin/folio/core/dom"
)

// piece is an unbreakable unit of a line. Pieces with an empty kind take
// no room and produce no span.
type piece struct {
	kind   string
	text   string
	node   dom.NodeID
	width  float64
	height float64
	anchor bool
}

type line struct {
	pieces []piece
	height float64
	brk    dom.BreakType
}

// breaker fills lines of a fixed width.
type breaker struct {
	width float64
	minH  float64
	lines []line
	cur   line
	used  float64
}

func (b *breaker) push(pc piece) {
	if pc.width > 0 && b.used > 0 && b.used+pc.width > b.width {
		b.flush("")
	}
	b.cur.pieces = append(b.cur.pieces, pc)
	b.used += pc.width
	if pc.height > b.cur.height {
		b.cur.height = pc.height
	}
}

func (b *breaker) flush(brk dom.BreakType) {
	if b.cur.height < b.minH {
		b.cur.height = b.minH
	}
	b.cur.brk = brk
	b.lines = append(b.lines, b.cur)
	b.cur = line{}
	b.used = 0
}

// fontSize returns the effective size of run inside paragraph p, or of the
// paragraph itself when run is NoNode.
func (l *layouter) fontSize(p, run dom.NodeID) float64 {
	st := l.doc.Styles()
	pf := l.doc.Format(p)
	f := pf.Merge(st.Resolve(pf.Style))
	if run != dom.NoNode {
		rf := l.doc.Format(run)
		f = rf.Merge(st.Resolve(rf.Style)).Merge(f)
	}
	if f.Size > 0 {
		return f.Size
	}
	return l.opts.FontSize
}

// lines breaks paragraph p into lines no wider than width.
func (l *layouter) lines(p dom.NodeID, width float64) []line {
	size := l.fontSize(p, dom.NoNode)
	b := &breaker{width: width, minH: size * l.opts.LineSpacing}
	l.inline(b, p, p)
	kind, text := l.paragraphMark(p)
	b.push(piece{kind: kind, text: text, node: p, height: b.minH})
	b.flush("")
	return b.lines
}

func (l *layouter) inline(b *breaker, p, parent dom.NodeID) {
	for _, n := range l.doc.Children(parent) {
		size := l.fontSize(p, n)
		h := size * l.opts.LineSpacing
		cw := size * l.opts.CharWidthRatio
		a := l.doc.Attrs(n)
		switch l.doc.Type(n) {
		case dom.NodeRun:
			l.words(b, n, l.doc.Text(n), cw, h)
		case dom.NodeSmartTag:
			l.inline(b, p, n)
		case dom.NodeBreak:
			switch a.Break {
			case dom.BreakPage:
				b.push(piece{kind: KindPageBreak, text: string(dom.CharPageBreak), node: n, height: h})
				b.flush(dom.BreakPage)
			case dom.BreakColumn:
				b.push(piece{kind: KindColumnBreak, text: string(dom.CharColumnBreak), node: n, height: h})
				b.flush(dom.BreakColumn)
			default:
				b.push(piece{kind: KindLineBreak, text: string(dom.CharLineBreak), node: n, height: h})
				b.flush("")
			}
		case dom.NodeField:
			text := a.FieldResult
			b.push(piece{kind: KindField, text: text, node: n, width: cw * float64(len([]rune(text))), height: h})
		case dom.NodeImage:
			b.push(piece{kind: KindShape, node: n, width: orDefault(a.Width, cw), height: max(a.Height, h)})
		case dom.NodeShape:
			b.push(piece{kind: KindShape, node: n, width: orDefault(a.Width, cw), height: max(a.Height, h), anchor: a.Shape == dom.ShapeTextBox})
		case dom.NodeFootnote:
			var ref string
			if a.Footnote == dom.Endnote {
				l.endnoteNum++
				ref = strconv.Itoa(l.endnoteNum)
			} else {
				l.footnoteNum++
				ref = strconv.Itoa(l.footnoteNum)
			}
			b.push(piece{kind: KindText, text: ref, node: n, width: cw * float64(len(ref)), height: h, anchor: true})
		case dom.NodeComment:
			b.push(piece{node: n, anchor: true})
		default:
			b.push(piece{node: n})
		}
	}
}

// words pushes run text as words with their trailing spaces. A word wider
// than the line is split at the line width.
func (l *layouter) words(b *breaker, run dom.NodeID, text string, cw, h float64) {
	rs := []rune(text)
	perLine := int(b.width / cw)
	if perLine < 1 {
		perLine = 1
	}
	for i := 0; i < len(rs); {
		j := i
		for j < len(rs) && !unicode.IsSpace(rs[j]) {
			j++
		}
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		word := rs[i:j]
		for len(word) > perLine {
			b.push(piece{kind: KindText, text: string(word[:perLine]), node: run, width: cw * float64(perLine), height: h})
			word = word[perLine:]
		}
		b.push(piece{kind: KindText, text: string(word), node: run, width: cw * float64(len(word)), height: h})
		i = j
	}
}

// paragraphMark returns the span that ends p: a cell end for the last
// paragraph of a cell, a section break for the last paragraph of every
// body but the last.
func (l *layouter) paragraphMark(p dom.NodeID) (string, string) {
	parent := l.doc.Parent(p)
	if l.doc.NextSibling(p) == dom.NoNode {
		switch l.doc.Type(parent) {
		case dom.NodeCell:
			return KindCell, "¤"
		case dom.NodeBody:
			if l.doc.NextSibling(l.doc.Parent(parent)) != dom.NoNode {
				return KindSectionBreak, "§"
			}
		}
	}
	return KindParagraph, "¶"
}

func orDefault(v, d float64) float64 {
	if v > 0 {
		return v
	}
	return d
}

// lineEntity places ln at (x, y). Adjacent text pieces of one run share a
// span.
func (l *layouter) lineEntity(p dom.NodeID, ln line, x, y, w float64) *Entity {
	e := &Entity{Type: Line, Node: p, Rect: Rect{X: x, Y: y, Width: w, Height: ln.height}}
	cx := x
	var last *Entity
	for _, pc := range ln.pieces {
		if pc.anchor {
			e.anchors = append(e.anchors, anchor{node: pc.node, x: cx})
		}
		if pc.kind == "" {
			e.marks = append(e.marks, pc.node)
			continue
		}
		if last != nil && last.Kind == KindText && pc.kind == KindText && last.Node == pc.node {
			last.Text += pc.text
			last.Rect.Width += pc.width
		} else {
			last = &Entity{Type: Span, Kind: pc.kind, Text: pc.text, Node: pc.node,
				Rect: Rect{X: cx, Y: y, Width: pc.width, Height: ln.height}}
			e.add(last)
		}
		if pc.kind == KindText || pc.kind == KindField {
			e.Text += pc.text
		}
		cx += pc.width
	}
	return e
}
