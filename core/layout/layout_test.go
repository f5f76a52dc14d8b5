package layout

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/FocuswithJustin/folio/core/dom"
	ferrors "github.com/FocuswithJustin/folio/core/errors"
)

func update(t *testing.T, doc *dom.Document) *Collector {
	t.Helper()
	c := NewCollector(doc, Options{})
	if err := c.Update(); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	return c
}

// breaksDoc writes two sections holding two page breaks each.
func breaksDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_, _ = b.Write("Section 1")
	_ = b.InsertBreak(dom.BreakPage)
	_ = b.InsertBreak(dom.BreakPage)
	if err := doc.AppendChild(doc.Root(), doc.NewSection()); err != nil {
		t.Fatal(err)
	}
	b.MoveToDocumentEnd()
	_, _ = b.Write("Section 2")
	_ = b.InsertBreak(dom.BreakPage)
	_ = b.InsertBreak(dom.BreakPage)
	return doc
}

func TestPageBreaksAcrossSections(t *testing.T) {
	doc := breaksDoc(t)
	c := NewCollector(doc, Options{})
	if c.Document() != doc {
		t.Error("Document() returned a different document")
	}
	if n := c.NumPagesSpanned(doc.Root()); n != 0 {
		t.Errorf("NumPagesSpanned() before Update = %d, want 0", n)
	}
	if err := c.Update(); err != nil {
		t.Fatal(err)
	}
	if n := c.NumPagesSpanned(doc.Root()); n != 5 {
		t.Errorf("NumPagesSpanned(document) = %d, want 5", n)
	}
	if c.PageCount() != 5 {
		t.Errorf("PageCount() = %d, want 5", c.PageCount())
	}

	secs := doc.Sections()
	tests := []struct {
		node       dom.NodeID
		start, end int
	}{
		{secs[0], 1, 3},
		{secs[1], 3, 5},
		{doc.FirstChild(doc.FirstChild(doc.Body(secs[0]))), 1, 1},
	}
	for _, tt := range tests {
		if s, e := c.StartPageIndex(tt.node), c.EndPageIndex(tt.node); s != tt.start || e != tt.end {
			t.Errorf("%s pages = %d-%d, want %d-%d", doc.Type(tt.node), s, e, tt.start, tt.end)
		}
	}

	for _, n := range doc.ChildNodes(doc.Root(), dom.NodeTypeAny, true) {
		s, e := c.StartPageIndex(n), c.EndPageIndex(n)
		if e < s || c.NumPagesSpanned(n) != e-s+1 {
			t.Errorf("node %d: start %d, end %d, spanned %d", n, s, e, c.NumPagesSpanned(n))
		}
	}
}

func TestStaleAndClear(t *testing.T) {
	doc := breaksDoc(t)
	c := update(t, doc)
	if c.Stale() {
		t.Error("Stale() right after Update = true")
	}
	b := dom.NewBuilder(doc)
	_ = b.InsertBreak(dom.BreakPage)
	if !c.Stale() {
		t.Error("Stale() after a mutation = false")
	}
	if n := c.NumPagesSpanned(doc.Root()); n != 5 {
		t.Errorf("NumPagesSpanned() on a stale layout = %d, want 5", n)
	}
	c.Clear()
	if n := c.NumPagesSpanned(doc.Root()); n != 0 {
		t.Errorf("NumPagesSpanned() after Clear = %d, want 0", n)
	}
	if err := c.Update(); err != nil {
		t.Fatal(err)
	}
	if n := c.NumPagesSpanned(doc.Root()); n != 6 {
		t.Errorf("NumPagesSpanned() after re-Update = %d, want 6", n)
	}
}

func TestSectionStart(t *testing.T) {
	tests := []struct {
		brk   dom.BreakType
		pages int
	}{
		{dom.BreakSectionContinuous, 1},
		{dom.BreakSectionNewPage, 2},
	}
	for _, tt := range tests {
		t.Run(string(tt.brk), func(t *testing.T) {
			doc := dom.New()
			b := dom.NewBuilder(doc)
			_ = b.Writeln("one")
			_ = b.InsertBreak(tt.brk)
			_, _ = b.Write("two")
			if got := update(t, doc).PageCount(); got != tt.pages {
				t.Errorf("PageCount() = %d, want %d", got, tt.pages)
			}
		})
	}
}

func TestNoSections(t *testing.T) {
	c := NewCollector(dom.NewEmpty(), Options{})
	if err := c.Update(); err == nil {
		t.Error("Update() on an empty document succeeded")
	}
	if _, err := NewEnumerator(c); err == nil {
		t.Error("NewEnumerator() without layout succeeded")
	}
}

func TestLineWrapping(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	// 468pt of text width at 6pt per character holds fifteen "word " units.
	_, _ = b.Write(strings.Repeat("word ", 40))
	c := update(t, doc)

	col := c.Pages()[0].Children[0]
	if col.Type != Column {
		t.Fatalf("first page child = %v, want Column", col.Type)
	}
	if len(col.Children) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(col.Children))
	}
	if got, want := col.Children[0].Text, strings.Repeat("word ", 15); got != want {
		t.Errorf("line 1 = %q, want %q", got, want)
	}
	last := col.Children[2]
	mark := last.Children[len(last.Children)-1]
	if mark.Kind != KindParagraph || mark.Text != "¶" {
		t.Errorf("last span = %s %q, want PARAGRAPH ¶", mark.Kind, mark.Text)
	}
	for i, ln := range col.Children {
		if math.Abs(ln.Rect.Height-14.4) > 1e-9 {
			t.Errorf("line %d height = %v, want 14.4", i, ln.Rect.Height)
		}
		if ln.Rect.Width != 468 || ln.Rect.X != 72 {
			t.Errorf("line %d rect = %+v", i, ln.Rect)
		}
	}
}

func TestOverflow(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	for i := 0; i < 60; i++ {
		_ = b.Writeln("line")
	}
	c := update(t, doc)
	if c.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", c.PageCount())
	}
	paras := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)
	if got := c.StartPageIndex(paras[0]); got != 1 {
		t.Errorf("first paragraph page = %d, want 1", got)
	}
	if got := c.StartPageIndex(paras[len(paras)-1]); got != 2 {
		t.Errorf("last paragraph page = %d, want 2", got)
	}
	for _, ln := range c.Pages()[0].Children[0].Children {
		if ln.Rect.Bottom() > 720+1e-6 {
			t.Errorf("line bottom %v overflows the page", ln.Rect.Bottom())
		}
	}
}

func TestTable(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	tbl, _ := b.StartTable()
	cell, _ := b.InsertCell()
	_, _ = b.Write("a")
	_, _ = b.InsertCell()
	_ = b.Writeln("b")
	_, _ = b.Write("c")
	row, _ := b.EndRow()
	_, _ = b.EndTable()
	c := update(t, doc)

	re := c.Entity(row)
	if re == nil || re.Type != Row || len(re.Children) != 2 {
		t.Fatalf("Entity(row) = %+v", re)
	}
	if ce := c.Entity(cell); ce != re.Children[0] || ce.Rect.Width != 234 {
		t.Errorf("Entity(cell) = %+v, want first cell 234pt wide", ce)
	}
	// the second cell holds two lines, so both cells are two lines tall
	if h := re.Children[0].Rect.Height; math.Abs(h-28.8) > 1e-9 {
		t.Errorf("cell height = %v, want 28.8", h)
	}
	p := doc.FirstChild(cell)
	if e := c.Entity(p); e == nil || e.Kind != KindCell {
		t.Errorf("Entity(cell paragraph) = %+v, want CELL span", e)
	}
	if c.StartPageIndex(tbl) != 1 {
		t.Errorf("StartPageIndex(table) = %d, want 1", c.StartPageIndex(tbl))
	}
}

func TestEnumeratorOrders(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_, _ = b.Write("first")
	_ = b.InsertBreak(dom.BreakPage)
	_ = b.Writeln("")
	_, _ = b.Write("second")
	c := update(t, doc)
	e, err := NewEnumerator(c)
	if err != nil {
		t.Fatal(err)
	}
	if e.Type() != Page || e.PageIndex() != 1 {
		t.Fatalf("start = %v page %d, want Page 1", e.Type(), e.PageIndex())
	}

	for _, want := range []EntityType{Column, Line, Span} {
		if !e.MoveFirstChild() || e.Type() != want {
			t.Fatalf("MoveFirstChild() reached %v, want %v", e.Type(), want)
		}
	}
	if e.Kind() != KindText || e.Text() != "first" {
		t.Errorf("span = %s %q, want TEXT first", e.Kind(), e.Text())
	}
	if !e.MoveNext() || e.Kind() != KindPageBreak {
		t.Fatalf("MoveNext() reached %s, want PAGEBREAK", e.Kind())
	}
	if e.MoveNext() {
		t.Error("MoveNext() left the line")
	}

	if !e.MoveNextLogical() || e.Kind() != KindParagraph || e.PageIndex() != 2 {
		t.Errorf("MoveNextLogical() = %s on page %d, want PARAGRAPH on page 2", e.Kind(), e.PageIndex())
	}
	if !e.MoveNextLogical() || e.Text() != "second" {
		t.Errorf("MoveNextLogical() = %q, want second", e.Text())
	}
	if !e.MovePreviousLogical() || !e.MovePreviousLogical() || e.Kind() != KindPageBreak {
		t.Errorf("MovePreviousLogical() = %s, want PAGEBREAK", e.Kind())
	}

	if !e.MoveParent(Page) || e.PageIndex() != 1 {
		t.Errorf("MoveParent(Page) = %v page %d", e.Type(), e.PageIndex())
	}
	if e.MoveParent(0) {
		t.Error("MoveParent() above a page succeeded")
	}
	if !e.MoveNext() || e.PageIndex() != 2 {
		t.Errorf("MoveNext() from page 1 = page %d", e.PageIndex())
	}
	if !e.MovePrevious() || e.PageIndex() != 1 {
		t.Errorf("MovePrevious() = page %d", e.PageIndex())
	}

	if err := e.SetCurrent(doc.LastChild(doc.Body(doc.FirstSection()))); err != nil {
		t.Fatal(err)
	}
	if e.Text() != "¶" || e.PageIndex() != 2 {
		t.Errorf("SetCurrent(last paragraph) = %q page %d", e.Text(), e.PageIndex())
	}
	if !e.MoveParent(Line|Cell) || e.Type() != Line {
		t.Errorf("MoveParent(Line|Cell) = %v", e.Type())
	}
	if !e.MoveLastChild() || e.Kind() != KindParagraph {
		t.Errorf("MoveLastChild() = %s", e.Kind())
	}
	if err := e.Reset(); err != nil || e.Current() != c.Pages()[0] {
		t.Errorf("Reset() = %v, did not return to the first page", err)
	}
	if err := e.SetCurrent(dom.NodeID(9999)); err == nil {
		t.Error("SetCurrent(unknown) succeeded")
	}
}

func addStory(t *testing.T, doc *dom.Document, parent dom.NodeID, typ dom.NodeType, a dom.Attrs, text string) dom.NodeID {
	t.Helper()
	n, err := doc.NewNode(typ)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.SetAttrs(n, a); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.AppendParagraph(n, text); err != nil {
		t.Fatal(err)
	}
	if err := doc.AppendChild(parent, n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestEnumeratorAfterClear(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_, _ = b.Write("first")
	_ = b.InsertBreak(dom.BreakPage)
	_, _ = b.Write("second")
	c := update(t, doc)
	e, err := NewEnumerator(c)
	if err != nil {
		t.Fatal(err)
	}
	_ = e.MoveNext()

	c.Clear()
	if e.Valid() {
		t.Error("Valid() = true after Clear")
	}
	var ise *ferrors.InvalidStateError
	if err := e.Reset(); !errors.As(err, &ise) {
		t.Errorf("Reset() after Clear error = %v, want InvalidStateError", err)
	}
	moves := []struct {
		name string
		move func() bool
	}{
		{"MoveNext", e.MoveNext},
		{"MovePrevious", e.MovePrevious},
		{"MoveFirstChild", e.MoveFirstChild},
		{"MoveLastChild", e.MoveLastChild},
		{"MoveNextLogical", e.MoveNextLogical},
		{"MovePreviousLogical", e.MovePreviousLogical},
		{"MoveParent", func() bool { return e.MoveParent(0) }},
	}
	for _, m := range moves {
		if m.move() {
			t.Errorf("%s() after Clear = true, want false", m.name)
		}
	}

	if err := c.Update(); err != nil {
		t.Fatal(err)
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("Reset() after Update error = %v", err)
	}
	if !e.Valid() || e.Current() != c.Pages()[0] || !e.MoveNext() || e.PageIndex() != 2 {
		t.Errorf("cursor after Reset = page %d, valid %v", e.PageIndex(), e.Valid())
	}
}

func TestHeadersAndFooters(t *testing.T) {
	doc := dom.New()
	sec := doc.FirstSection()
	header := addStory(t, doc, sec, dom.NodeHeaderFooter, dom.Attrs{HeaderFooter: dom.HeaderPrimary}, "Head")
	first := addStory(t, doc, sec, dom.NodeHeaderFooter, dom.Attrs{HeaderFooter: dom.HeaderFirst}, "Title page")
	footer := addStory(t, doc, sec, dom.NodeHeaderFooter, dom.Attrs{HeaderFooter: dom.FooterPrimary}, "Foot")
	b := dom.NewBuilder(doc)
	_, _ = b.Write("body")
	_ = b.InsertBreak(dom.BreakPage)
	_ = b.InsertBreak(dom.BreakPage)
	c := update(t, doc)

	if got := c.StartPageIndex(first); got != 1 || c.EndPageIndex(first) != 1 {
		t.Errorf("first-page header pages = %d-%d, want 1-1", got, c.EndPageIndex(first))
	}
	if s, e := c.StartPageIndex(header), c.EndPageIndex(header); s != 2 || e != 3 {
		t.Errorf("header pages = %d-%d, want 2-3", s, e)
	}
	if c.NumPagesSpanned(footer) != 3 {
		t.Errorf("NumPagesSpanned(footer) = %d, want 3", c.NumPagesSpanned(footer))
	}
	var kinds []string
	for _, ch := range c.Pages()[1].Children {
		if ch.Type == HeaderFooter {
			kinds = append(kinds, ch.Children[0].Text)
			if ch.Node == footer && ch.Rect.Y < 720 {
				t.Errorf("footer y = %v, want below the body", ch.Rect.Y)
			}
		}
	}
	if strings.Join(kinds, ",") != "Head,Foot" {
		t.Errorf("page 2 header/footer lines = %v", kinds)
	}
}

func TestNotesCommentsAndTextBoxes(t *testing.T) {
	doc := dom.New()
	p := doc.FirstChild(doc.Body(doc.FirstSection()))
	_ = doc.AppendChild(p, doc.NewRun("text", dom.Formatting{}))
	fn := addStory(t, doc, p, dom.NodeFootnote, dom.Attrs{Footnote: dom.Footnote}, "note")
	cm := addStory(t, doc, p, dom.NodeComment, dom.Attrs{Author: "ann"}, "remark")
	tb := addStory(t, doc, p, dom.NodeShape, dom.Attrs{Shape: dom.ShapeTextBox, Width: 100, Height: 50}, "boxed")
	c := update(t, doc)

	note := c.Entity(fn)
	if note == nil || note.Type != Footnote {
		t.Fatalf("Entity(footnote) = %+v", note)
	}
	if math.Abs(note.Rect.Bottom()-720) > 1e-6 {
		t.Errorf("footnote bottom = %v, want 720", note.Rect.Bottom())
	}
	if note.Children[0].Text != "note" {
		t.Errorf("footnote line = %q", note.Children[0].Text)
	}
	ref := c.Pages()[0].Children[0].Children[0].Children[1]
	if ref.Text != "1" || ref.Node != fn {
		t.Errorf("footnote reference span = %q", ref.Text)
	}

	com := c.Entity(cm)
	if com == nil || com.Type != Comment || com.Rect.X < 540 {
		t.Errorf("Entity(comment) = %+v, want comment in the right margin", com)
	}
	box := c.Entity(tb)
	if box == nil || box.Type != TextBox || box.Rect.Width != 100 || box.Rect.Height != 50 {
		t.Errorf("Entity(text box) = %+v", box)
	}
	if c.StartPageIndex(tb) != 1 {
		t.Errorf("StartPageIndex(text box) = %d", c.StartPageIndex(tb))
	}
}

func TestColumnsAndPageSetup(t *testing.T) {
	doc := dom.New()
	sec := doc.FirstSection()
	a := doc.Attrs(sec)
	a.Page = &dom.PageSetup{Width: 400, Height: 500, Columns: 2, ColumnGap: 20}
	if err := doc.SetAttrs(sec, a); err != nil {
		t.Fatal(err)
	}
	b := dom.NewBuilder(doc)
	_, _ = b.Write("left")
	_ = b.InsertBreak(dom.BreakColumn)
	_, _ = b.Write("right")
	c := update(t, doc)

	if c.PageCount() != 1 {
		t.Fatalf("PageCount() = %d, want 1", c.PageCount())
	}
	page := c.Pages()[0]
	if page.Rect.Width != 400 || page.Rect.Height != 500 {
		t.Errorf("page rect = %+v", page.Rect)
	}
	var cols []*Entity
	for _, ch := range page.Children {
		if ch.Type == Column {
			cols = append(cols, ch)
		}
	}
	if len(cols) != 2 {
		t.Fatalf("columns = %d, want 2", len(cols))
	}
	// (400 - 144 - 20) / 2
	if cols[0].Rect.Width != 118 || cols[1].Rect.X != 72+118+20 {
		t.Errorf("columns = %+v, %+v", cols[0].Rect, cols[1].Rect)
	}
	if got := cols[1].Children[0].Text; got != "right" {
		t.Errorf("second column text = %q, want right", got)
	}
}

func TestEntityTypeString(t *testing.T) {
	tests := []struct {
		t    EntityType
		want string
	}{
		{Page, "Page"},
		{Line | Cell, "Cell|Line"},
		{0, "None"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
