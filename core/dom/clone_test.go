package dom

import (
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestCloneIsIndependent(t *testing.T) {
	d := New()
	b := NewBuilder(d)
	_, _ = b.Write("original")
	_, _ = b.InsertImage("image/png", []byte{0x89, 'P', 'N', 'G'}, 10, 10)
	_ = d.Styles().Add(Style{Name: "Quote", Format: Formatting{Italic: true}})
	d.Variables().Set("k", "v")

	c := d.Clone()
	if c.ID == d.ID {
		t.Error("Clone() reused the document ID")
	}
	if got, want := c.GetText(c.Root()), d.GetText(d.Root()); got != want {
		t.Errorf("clone GetText() = %q, want %q", got, want)
	}

	run := c.ChildNodes(c.Root(), NodeRun, true)[0]
	_ = c.SetText(run, "changed")
	_ = c.Styles().Update(Style{Name: "Quote", Format: Formatting{Bold: true}})
	c.Variables().Set("k", "other")
	c.Media.Delete(c.Attrs(c.ChildNodes(c.Root(), NodeImage, true)[0]).Media)

	if got := d.GetText(d.Root()); got != "original\f" {
		t.Errorf("source GetText() = %q after clone edit", got)
	}
	if st, _ := d.Styles().Get("Quote"); !st.Format.Italic || st.Format.Bold {
		t.Error("source style changed through clone")
	}
	if v, _ := d.Variables().Get("k"); v != "v" {
		t.Error("source variable changed through clone")
	}
	if d.Media.Len() != 1 {
		t.Error("source media changed through clone")
	}
}

func TestImportCopiesResources(t *testing.T) {
	src := New()
	_ = src.Styles().Add(Style{Name: "Base", Format: Formatting{Size: 9}})
	_ = src.Styles().Add(Style{Name: "Note", BasedOn: "Base"})
	b := NewBuilder(src)
	b.Paragraph = Formatting{Style: "Note"}
	p, _ := b.InsertParagraph()
	_, _ = b.InsertImage("image/gif", []byte("GIF89a"), 1, 1)

	dst := New()
	n, err := dst.Import(src, p)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if dst.Parent(n) != NoNode {
		t.Error("imported node is attached")
	}
	if _, ok := dst.Styles().Get("Base"); !ok {
		t.Error("BasedOn chain was not imported")
	}
	if dst.Media.Len() != 1 {
		t.Errorf("Media.Len() = %d, want 1", dst.Media.Len())
	}
	if _, err := dst.Import(src, src.Root()); err == nil {
		t.Error("Import(root) succeeded")
	}
}

func TestCloneNodeMarks(t *testing.T) {
	d := New()
	r := d.NewRun("x", Formatting{})
	m := d.NewMark(RevisionInsertion, "A", fixedTime)
	_ = d.SetContentMark(r, &m)

	keep, _ := d.CloneNode(r, true)
	drop, _ := d.CloneNode(r, false)
	if _, ok := d.ContentMark(keep); !ok {
		t.Error("CloneNode(keepMarks) lost the mark")
	}
	if _, ok := d.ContentMark(drop); ok {
		t.Error("CloneNode(!keepMarks) kept the mark")
	}
}

func TestHash(t *testing.T) {
	a, b := New(), New()
	pa, _ := a.AppendParagraph(a.Body(a.FirstSection()), "same")
	pb, _ := b.AppendParagraph(b.Body(b.FirstSection()), "same")
	if a.Hash(pa) != b.Hash(pb) {
		t.Error("equal paragraphs hash differently")
	}
	if len(a.Hash(pa)) != 64 {
		t.Errorf("Hash() length = %d, want 64", len(a.Hash(pa)))
	}

	before := a.Hash(pa)
	_ = a.SetFormat(a.FirstChild(pa), Formatting{Bold: true})
	if a.Hash(pa) == before {
		t.Error("formatting change did not change the hash")
	}
	if a.HashWith(pa, HashOptions{IgnoreFormatting: true}) != b.HashWith(pb, HashOptions{IgnoreFormatting: true}) {
		t.Error("IgnoreFormatting hash differs on formatting only")
	}
	_ = a.SetText(a.FirstChild(pa), "other")
	if a.HashWith(pa, HashOptions{IgnoreFormatting: true}) == b.HashWith(pb, HashOptions{IgnoreFormatting: true}) {
		t.Error("text change did not change the hash")
	}
}

func TestPendingMarksOrder(t *testing.T) {
	d := New()
	body := d.Body(d.FirstSection())
	p1, _ := d.AppendParagraph(body, "a")
	p2, _ := d.AppendParagraph(body, "b")
	m1 := d.NewMark(RevisionInsertion, "A", fixedTime)
	m2 := d.NewMark(RevisionDeletion, "B", fixedTime)
	_ = d.SetContentMark(p2, &m1)
	_ = d.SetContentMark(p1, &m2)
	d.SetStyleRevision("Normal", &StyleRevision{ID: "s", Author: "C", Seq: d.NewMark(RevisionStyleDefinition, "C", fixedTime).Seq})

	marks := d.PendingMarks()
	if len(marks) != 3 {
		t.Fatalf("len(PendingMarks()) = %d, want 3", len(marks))
	}
	if marks[0].Style != "Normal" || marks[1].Node != p1 || marks[2].Node != p2 {
		t.Errorf("PendingMarks() order = %+v", marks)
	}
	if !d.HasRevisions() {
		t.Error("HasRevisions() = false")
	}
	if n, ok := d.InRevision(d.FirstChild(p1), RevisionDeletion); !ok || n != p1 {
		t.Errorf("InRevision() = %d, %v", n, ok)
	}
	_ = d.SetContentMark(p1, nil)
	_ = d.SetContentMark(p2, nil)
	d.SetStyleRevision("Normal", nil)
	if d.HasRevisions() {
		t.Error("HasRevisions() = true after clearing")
	}
}
