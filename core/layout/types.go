// Package layout computes page placement for a document.
//
// A layout pass walks the content tree once and builds a separate tree of
// entities (pages, columns, lines, spans and so on) positioned by
// rectangles in points. The result is a snapshot: it is not updated when
// the document changes. Callers check Stale and call Clear then Update.
package layout

import (
	"strings"

	"github.com/FocuswithJustin/folio/core/dom"
)

// EntityType is a bit set of layout entity kinds, so MoveParent can look
// for any of several types at once.
type EntityType int

const (
	Page EntityType = 1 << iota
	Column
	HeaderFooter
	Row
	Cell
	Line
	Span
	Footnote
	Comment
	TextBox

	AnyEntity EntityType = 1<<iota - 1
)

var typeNames = []struct {
	t    EntityType
	name string
}{
	{Page, "Page"},
	{Column, "Column"},
	{HeaderFooter, "HeaderFooter"},
	{Row, "Row"},
	{Cell, "Cell"},
	{Line, "Line"},
	{Span, "Span"},
	{Footnote, "Footnote"},
	{Comment, "Comment"},
	{TextBox, "TextBox"},
}

// String returns the type names joined with "|".
func (t EntityType) String() string {
	var parts []string
	for _, n := range typeNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Span kinds.
const (
	KindText         = "TEXT"
	KindParagraph    = "PARAGRAPH"
	KindCell         = "CELL"
	KindLineBreak    = "LINEBREAK"
	KindPageBreak    = "PAGEBREAK"
	KindColumnBreak  = "COLUMNBREAK"
	KindSectionBreak = "SECTIONBREAK"
	KindField        = "FIELD"
	KindShape        = "SHAPE"
)

// Rect is a rectangle in points, origin at the top left of the page.
type Rect struct {
	X, Y, Width, Height float64
}

// Bottom returns Y + Height.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Entity is one placed object. Entities are owned by the Collector that
// produced them and must not be modified.
type Entity struct {
	Type EntityType
	// Kind is set on spans and names what the span renders.
	Kind      string
	Rect      Rect
	PageIndex int
	Text      string
	// Node is the content node the entity renders, or NoNode for pages
	// and columns.
	Node     dom.NodeID
	Parent   *Entity
	Children []*Entity

	marks   []dom.NodeID // zero-width nodes placed on this line
	anchors []anchor     // notes, comments and text boxes anchored on this line
	index   int          // position among siblings
	seq     int          // position in the logical list of its type
}

type anchor struct {
	node dom.NodeID
	x    float64
}

func (e *Entity) add(c *Entity) {
	c.Parent = e
	c.index = len(e.Children)
	e.Children = append(e.Children, c)
}

func (e *Entity) shift(dy float64) {
	e.Rect.Y += dy
	for _, c := range e.Children {
		c.shift(dy)
	}
}

// Margins are page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Options control a layout pass. Section page setup overrides the page
// size, margins and columns.
type Options struct {
	PageWidth      float64
	PageHeight     float64
	Margins        Margins
	LineSpacing    float64
	CharWidthRatio float64
	FontSize       float64
}

// DefaultOptions is US Letter with one-inch margins and 12pt text.
func DefaultOptions() Options {
	return Options{
		PageWidth:      612,
		PageHeight:     792,
		Margins:        Margins{Top: 72, Bottom: 72, Left: 72, Right: 72},
		LineSpacing:    1.2,
		CharWidthRatio: 0.5,
		FontSize:       12,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.PageWidth <= 0 {
		o.PageWidth = d.PageWidth
	}
	if o.PageHeight <= 0 {
		o.PageHeight = d.PageHeight
	}
	if o.Margins == (Margins{}) {
		o.Margins = d.Margins
	}
	if o.LineSpacing <= 0 {
		o.LineSpacing = d.LineSpacing
	}
	if o.CharWidthRatio <= 0 {
		o.CharWidthRatio = d.CharWidthRatio
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	return o
}

// setup is the page geometry in effect for a section.
type setup struct {
	width, height            float64
	top, bottom, left, right float64
	columns                  int
	gap                      float64
}

func (o Options) setupFor(ps *dom.PageSetup) setup {
	s := setup{
		width: o.PageWidth, height: o.PageHeight,
		top: o.Margins.Top, bottom: o.Margins.Bottom,
		left: o.Margins.Left, right: o.Margins.Right,
		columns: 1, gap: 36,
	}
	if ps == nil {
		return s
	}
	if ps.Width > 0 {
		s.width = ps.Width
	}
	if ps.Height > 0 {
		s.height = ps.Height
	}
	if ps.MarginTop > 0 {
		s.top = ps.MarginTop
	}
	if ps.MarginBottom > 0 {
		s.bottom = ps.MarginBottom
	}
	if ps.MarginLeft > 0 {
		s.left = ps.MarginLeft
	}
	if ps.MarginRight > 0 {
		s.right = ps.MarginRight
	}
	if ps.Columns > 1 {
		s.columns = ps.Columns
	}
	if ps.ColumnGap > 0 {
		s.gap = ps.ColumnGap
	}
	return s
}

func (s setup) columnWidth() float64 {
	w := s.width - s.left - s.right
	w = (w - s.gap*float64(s.columns-1)) / float64(s.columns)
	if w < 1 {
		w = 1
	}
	return w
}
