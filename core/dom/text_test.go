package dom

import (
	"strings"
	"testing"
)

func TestGetTextControlCharacters(t *testing.T) {
	d := NewEmpty()
	d.EnsureMinimum()
	b := NewBuilder(d)
	_, _ = b.Write("Hello")
	_ = b.InsertBreak(BreakLine)
	_, _ = b.Write("world")
	_, _ = b.InsertParagraph()
	_, _ = b.InsertField("PAGE", "1")
	_ = b.InsertBreak(BreakPage)
	_, _ = b.InsertParagraph()
	_, _ = b.StartTable()
	_, _ = b.InsertCell()
	_, _ = b.Write("A")
	_, _ = b.InsertCell()
	_, _ = b.Write("B")
	_, _ = b.EndRow()
	_, _ = b.EndTable()
	_, _ = b.Write("end")

	want := "Hello\vworld\r" +
		"\x13PAGE\x141\x15\f\r" +
		"A\aB\a\a" +
		"end\f"
	if got := d.GetText(d.Root()); got != want {
		t.Errorf("GetText() = %q, want %q", got, want)
	}
}

func TestGetTextSections(t *testing.T) {
	d := New()
	b := NewBuilder(d)
	_, _ = b.Write("one")
	_ = b.InsertBreak(BreakSectionNewPage)
	_, _ = b.Write("two")

	if got := d.GetText(d.Root()); got != "one\ftwo\f" {
		t.Errorf("GetText() = %q, want %q", got, "one\ftwo\f")
	}
	if got := len(d.Sections()); got != 2 {
		t.Errorf("len(Sections()) = %d, want 2", got)
	}
	if got := d.Attrs(d.LastSection()).SectionStart; got != SectionNewPage {
		t.Errorf("SectionStart = %q, want %q", got, SectionNewPage)
	}
}

func TestGetTextIncludesHeaderFooter(t *testing.T) {
	d := New()
	sec := d.FirstSection()
	hf, _ := d.NewNode(NodeHeaderFooter)
	_ = d.SetAttrs(hf, Attrs{HeaderFooter: HeaderPrimary})
	_ = d.AppendChild(sec, hf)
	_, _ = d.AppendParagraph(hf, "Head")

	if got := d.GetText(d.Root()); !strings.Contains(got, "Head\r") {
		t.Errorf("GetText() = %q, want header text", got)
	}
	if got := d.ToText(d.Root()); strings.Contains(got, "Head") {
		t.Errorf("ToText() = %q, header must be excluded", got)
	}
	if d.HeaderFooter(sec, HeaderPrimary) != hf {
		t.Error("HeaderFooter() did not find the primary header")
	}
}

func TestToText(t *testing.T) {
	d := New()
	body := d.Body(d.FirstSection())
	_ = d.Remove(d.FirstChild(body))
	p, _ := d.AppendParagraph(body, "Date: ")
	_ = d.AppendChild(p, d.NewField("DATE", "2026-01-02"))
	c, _ := d.NewNode(NodeComment)
	_ = d.AppendChild(p, c)
	_, _ = d.AppendParagraph(c, "hidden")
	_, _ = d.AppendParagraph(body, "second")

	want := "Date: 2026-01-02\r\nsecond\r\n"
	if got := d.ToText(d.Root()); got != want {
		t.Errorf("ToText() = %q, want %q", got, want)
	}
	if got := d.ParagraphText(p); got != "Date: 2026-01-02" {
		t.Errorf("ParagraphText() = %q", got)
	}
}

func TestToTextTable(t *testing.T) {
	d := New()
	b := NewBuilder(d)
	_, _ = b.StartTable()
	for _, s := range []string{"a", "b"} {
		_, _ = b.InsertCell()
		_, _ = b.Write(s)
	}
	_, _ = b.EndRow()
	_, _ = b.EndTable()

	if got := d.ToText(d.Root()); got != "a\tb\r\n\r\n" {
		t.Errorf("ToText() = %q, want %q", got, "a\tb\r\n\r\n")
	}
}
