package dom

import (
	"github.com/FocuswithJustin/folio/core/errors"
)

// Section break kinds accepted by Builder.InsertBreak. They never appear on
// Break nodes.
const (
	BreakSectionNewPage    BreakType = "section_new_page"
	BreakSectionContinuous BreakType = "section_continuous"
)

// AppendParagraph adds a paragraph holding text at the end of story.
func (d *Document) AppendParagraph(story NodeID, text string) (NodeID, error) {
	p := d.NewParagraph(text)
	if err := d.AppendChild(story, p); err != nil {
		return NoNode, err
	}
	return p, nil
}

type tableState struct {
	table NodeID
	row   NodeID
	after NodeID
}

// Builder writes content at a cursor paragraph.
type Builder struct {
	doc  *Document
	para NodeID
	// Font is applied to runs written by Write.
	Font Formatting
	// Paragraph is applied to paragraphs created by the builder.
	Paragraph Formatting

	tables []tableState
}

// NewBuilder returns a builder positioned at the end of the document.
func NewBuilder(doc *Document) *Builder {
	b := &Builder{doc: doc}
	b.MoveToDocumentEnd()
	return b
}

// Document returns the document being built.
func (b *Builder) Document() *Document {
	return b.doc
}

// CurrentParagraph returns the cursor paragraph.
func (b *Builder) CurrentParagraph() NodeID {
	return b.para
}

// MoveToDocumentEnd places the cursor in the last paragraph of the last body.
func (b *Builder) MoveToDocumentEnd() {
	b.tables = nil
	b.doc.EnsureMinimum()
	body := b.doc.Body(b.doc.LastSection())
	paras := b.doc.ChildNodes(body, NodeParagraph, false)
	if len(paras) == 0 {
		p, _ := b.doc.AppendParagraph(body, "")
		b.para = p
		return
	}
	b.para = paras[len(paras)-1]
}

// MoveTo places the cursor in paragraph p.
func (b *Builder) MoveTo(p NodeID) error {
	if b.doc.Type(p) != NodeParagraph {
		return errors.NewValidation("cursor", "builder can only move to a paragraph")
	}
	b.para = p
	b.tables = nil
	return nil
}

// Write appends a run using the current font.
func (b *Builder) Write(text string) (NodeID, error) {
	if text == "" {
		return NoNode, nil
	}
	r := b.doc.NewRun(text, b.Font)
	if err := b.doc.AppendChild(b.para, r); err != nil {
		return NoNode, err
	}
	return r, nil
}

// Writeln writes text and ends the paragraph.
func (b *Builder) Writeln(text string) error {
	if _, err := b.Write(text); err != nil {
		return err
	}
	_, err := b.InsertParagraph()
	return err
}

// InsertParagraph starts a new paragraph after the cursor and moves there.
func (b *Builder) InsertParagraph() (NodeID, error) {
	p := b.doc.mustNew(NodeParagraph)
	b.doc.nodes[p].format = b.Paragraph
	if err := b.doc.InsertAfter(b.doc.Parent(b.para), p, b.para); err != nil {
		return NoNode, err
	}
	b.para = p
	return p, nil
}

// InsertBreak inserts a line, page or column break, or starts a new section.
func (b *Builder) InsertBreak(kind BreakType) error {
	switch kind {
	case BreakLine, BreakPage, BreakColumn:
		return b.doc.AppendChild(b.para, b.doc.NewBreak(kind))
	case BreakSectionNewPage:
		return b.insertSection(SectionNewPage)
	case BreakSectionContinuous:
		return b.insertSection(SectionContinuous)
	}
	return errors.NewValidation("break", "unknown break kind "+string(kind))
}

// insertSection splits the current section after the cursor paragraph.
func (b *Builder) insertSection(start SectionStart) error {
	body := b.doc.Parent(b.para)
	sec := b.doc.Parent(body)
	if b.doc.Type(body) != NodeBody || b.doc.Type(sec) != NodeSection {
		return errors.NewInvalidState("insert section break", "cursor is not in a section body")
	}
	ns := b.doc.NewSection()
	b.doc.nodes[ns].attrs.SectionStart = start
	if pg := b.doc.nodes[sec].attrs.Page; pg != nil {
		p := *pg
		b.doc.nodes[ns].attrs.Page = &p
	}
	nbody := b.doc.Body(ns)
	var tail []NodeID
	for n := b.doc.NextSibling(b.para); n != NoNode; n = b.doc.NextSibling(n) {
		tail = append(tail, n)
	}
	if err := b.doc.InsertAfter(b.doc.root, ns, sec); err != nil {
		return err
	}
	for _, n := range tail {
		if err := b.doc.AppendChild(nbody, n); err != nil {
			return err
		}
	}
	if len(tail) == 0 || b.doc.Type(tail[0]) != NodeParagraph {
		p := b.doc.mustNew(NodeParagraph)
		b.doc.nodes[p].format = b.Paragraph
		if err := b.doc.InsertBefore(nbody, p, b.doc.FirstChild(nbody)); err != nil {
			return err
		}
		b.para = p
		return nil
	}
	b.para = tail[0]
	return nil
}

// InsertField appends a field with the given code and result.
func (b *Builder) InsertField(code, result string) (NodeID, error) {
	f := b.doc.NewField(code, result)
	b.doc.nodes[f].format = b.Font
	if err := b.doc.AppendChild(b.para, f); err != nil {
		return NoNode, err
	}
	return f, nil
}

// InsertImage stores data and appends an image.
func (b *Builder) InsertImage(contentType string, data []byte, width, height float64) (NodeID, error) {
	img := b.doc.NewImage(contentType, data, width, height)
	if err := b.doc.AppendChild(b.para, img); err != nil {
		return NoNode, err
	}
	return img, nil
}

// StartBookmark appends a bookmark start marker.
func (b *Builder) StartBookmark(name string) (NodeID, error) {
	return b.marker(NodeBookmarkStart, name)
}

// EndBookmark appends a bookmark end marker.
func (b *Builder) EndBookmark(name string) (NodeID, error) {
	return b.marker(NodeBookmarkEnd, name)
}

func (b *Builder) marker(t NodeType, name string) (NodeID, error) {
	m := b.doc.mustNew(t)
	b.doc.nodes[m].attrs.Name = name
	if err := b.doc.AppendChild(b.para, m); err != nil {
		return NoNode, err
	}
	return m, nil
}

// StartTable begins a table at the cursor. The cursor paragraph, if it
// already holds content, is kept before the table.
func (b *Builder) StartTable() (NodeID, error) {
	if b.doc.ChildCount(b.para) > 0 {
		if _, err := b.InsertParagraph(); err != nil {
			return NoNode, err
		}
	}
	t := b.doc.mustNew(NodeTable)
	if err := b.doc.InsertBefore(b.doc.Parent(b.para), t, b.para); err != nil {
		return NoNode, err
	}
	b.tables = append(b.tables, tableState{table: t, after: b.para})
	return t, nil
}

// InsertCell adds a cell to the open row, starting a row when needed, and
// moves the cursor into it.
func (b *Builder) InsertCell() (NodeID, error) {
	if len(b.tables) == 0 {
		return NoNode, errors.NewInvalidState("insert cell", "no table started")
	}
	ts := &b.tables[len(b.tables)-1]
	if ts.row == NoNode {
		ts.row = b.doc.mustNew(NodeRow)
		if err := b.doc.AppendChild(ts.table, ts.row); err != nil {
			return NoNode, err
		}
	}
	cell := b.doc.mustNew(NodeCell)
	p := b.doc.mustNew(NodeParagraph)
	b.doc.nodes[p].format = b.Paragraph
	b.doc.nodes[cell].children = []NodeID{p}
	b.doc.nodes[p].parent = cell
	if err := b.doc.AppendChild(ts.row, cell); err != nil {
		return NoNode, err
	}
	b.para = p
	return cell, nil
}

// EndRow closes the open row.
func (b *Builder) EndRow() (NodeID, error) {
	if len(b.tables) == 0 || b.tables[len(b.tables)-1].row == NoNode {
		return NoNode, errors.NewInvalidState("end row", "no row started")
	}
	ts := &b.tables[len(b.tables)-1]
	row := ts.row
	ts.row = NoNode
	return row, nil
}

// EndTable closes the table and moves the cursor after it.
func (b *Builder) EndTable() (NodeID, error) {
	if len(b.tables) == 0 {
		return NoNode, errors.NewInvalidState("end table", "no table started")
	}
	ts := b.tables[len(b.tables)-1]
	if ts.row != NoNode {
		return NoNode, errors.NewInvalidState("end table", "row still open")
	}
	b.tables = b.tables[:len(b.tables)-1]
	b.para = ts.after
	return ts.table, nil
}
