package dom

import (
	"strings"
)

// GetText returns the text of node and its subtree including control
// characters: paragraphs end in '\r', the last paragraph of a body ends in
// '\f' (section break), the last paragraph of a cell ends in '\a' and each
// row adds a closing '\a'. Fields render as '\x13' code '\x14' result '\x15'.
func (d *Document) GetText(node NodeID) string {
	var b strings.Builder
	d.writeText(&b, node)
	return b.String()
}

func (d *Document) writeText(b *strings.Builder, n NodeID) {
	r := d.rec(n)
	if r == nil {
		return
	}
	switch r.typ {
	case NodeRun:
		b.WriteString(r.text)
	case NodeBreak:
		b.WriteRune(breakChar(r.attrs.Break))
	case NodeField:
		b.WriteRune(CharFieldStart)
		b.WriteString(r.attrs.FieldCode)
		b.WriteRune(CharFieldSeparator)
		b.WriteString(r.attrs.FieldResult)
		b.WriteRune(CharFieldEnd)
	case NodeParagraph:
		for _, c := range r.children {
			d.writeText(b, c)
		}
		b.WriteRune(d.paragraphEnd(n))
	case NodeRow:
		for _, c := range r.children {
			d.writeText(b, c)
		}
		b.WriteRune(CharCell)
	default:
		for _, c := range r.children {
			d.writeText(b, c)
		}
	}
}

func breakChar(t BreakType) rune {
	switch t {
	case BreakLine:
		return CharLineBreak
	case BreakColumn:
		return CharColumnBreak
	default:
		return CharPageBreak
	}
}

// paragraphEnd returns the control character that terminates paragraph p.
func (d *Document) paragraphEnd(p NodeID) rune {
	parent := d.Parent(p)
	if parent == NoNode || d.NextSibling(p) != NoNode {
		return CharParagraph
	}
	switch d.Type(parent) {
	case NodeBody:
		return CharSectionBreak
	case NodeCell:
		return CharCell
	}
	return CharParagraph
}

// ToText renders the subtree the way a plain-text save displays it: field
// results without codes, no comments or footnote bodies, no headers and
// footers, paragraphs ending in "\r\n", cells separated by tabs.
func (d *Document) ToText(node NodeID) string {
	var b strings.Builder
	d.writePlain(&b, node)
	return b.String()
}

func (d *Document) writePlain(b *strings.Builder, n NodeID) {
	r := d.rec(n)
	if r == nil {
		return
	}
	switch r.typ {
	case NodeRun:
		b.WriteString(r.text)
	case NodeBreak:
		switch r.attrs.Break {
		case BreakPage:
			b.WriteRune(CharPageBreak)
		default:
			b.WriteString("\r\n")
		}
	case NodeField:
		b.WriteString(r.attrs.FieldResult)
	case NodeComment, NodeFootnote, NodeHeaderFooter:
	case NodeParagraph:
		for _, c := range r.children {
			d.writePlain(b, c)
		}
		if d.Type(d.Parent(n)) != NodeCell || d.NextSibling(n) != NoNode {
			b.WriteString("\r\n")
		}
	case NodeRow:
		for i, c := range r.children {
			if i > 0 {
				b.WriteByte('\t')
			}
			d.writePlain(b, c)
		}
		b.WriteString("\r\n")
	default:
		for _, c := range r.children {
			d.writePlain(b, c)
		}
	}
}

// ParagraphText returns the inline text of a paragraph without its
// terminator or field codes.
func (d *Document) ParagraphText(p NodeID) string {
	var b strings.Builder
	for _, c := range d.Children(p) {
		switch d.Type(c) {
		case NodeComment, NodeFootnote:
			continue
		}
		d.writePlain(&b, c)
	}
	return b.String()
}
