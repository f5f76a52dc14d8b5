package markdown

import (
	"bytes"
	"strings"
	"testing"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
)

func TestDescriptor(t *testing.T) {
	d := Descriptor()
	if d.Name != "markdown" {
		t.Errorf("Expected name 'markdown', got %s", d.Name)
	}
	if d.ContentType != "text/markdown" {
		t.Errorf("Expected content type 'text/markdown', got %s", d.ContentType)
	}
}

func TestDetect(t *testing.T) {
	h := &Handler{}
	tests := []struct {
		name string
		head string
		want bool
	}{
		{"front matter", "---\ntitle: x\n---\n# Hi", true},
		{"empty front matter", "---\n---\n", true},
		{"unterminated", "---\ntitle: x\n", false},
		{"rule only", "--- not yaml", false},
		{"plain", "# Heading", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Detect([]byte(tt.head)).Detected; got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func parse(t *testing.T, input string) *dom.Document {
	t.Helper()
	doc := dom.NewEmpty()
	if err := (&Handler{}).Load(strings.NewReader(input), doc, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return doc
}

func saveString(t *testing.T, doc *dom.Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := (&Handler{}).Save(&buf, doc, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return buf.String()
}

func paragraphs(doc *dom.Document) []string {
	var out []string
	for _, p := range doc.ChildNodes(doc.Root(), dom.NodeParagraph, true) {
		out = append(out, doc.ParagraphText(p))
	}
	return out
}

func TestLoadBlocks(t *testing.T) {
	input := "---\ntitle: Guide\nauthor: Ann\n---\n\n" +
		"# Title #\n\n" +
		"Some text\ncontinued here.\n\n" +
		"- one\n- two\n  - nested\n1. first\n\n" +
		"> quoted\n\n" +
		"***\n\n" +
		"```\ncode  line\n```\n"
	doc := parse(t, input)
	if doc.Props.Title != "Guide" || doc.Props.Author != "Ann" {
		t.Errorf("Props = %q/%q", doc.Props.Title, doc.Props.Author)
	}
	want := []string{"Title", "Some text continued here.", "one", "two", "nested", "first", "quoted", "code  line"}
	if got := paragraphs(doc); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("paragraphs = %q, want %q", got, want)
	}
	paras := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)
	if f := doc.Format(paras[0]); f.Style != "Heading 1" {
		t.Errorf("heading style = %q", f.Style)
	}
	one, nested, first := doc.Format(paras[2]), doc.Format(paras[4]), doc.Format(paras[5])
	if one.ListID == 0 || nested.ListLevel != 1 || nested.ListID == one.ListID {
		t.Errorf("nested list = %+v under %+v", nested, one)
	}
	if first.ListID == one.ListID {
		t.Error("Expected ordered list to start a new list")
	}
	if f := doc.Format(paras[6]); f.Style != "Quote" {
		t.Errorf("quote style = %q", f.Style)
	}
	runs := doc.ChildNodes(paras[7], dom.NodeRun, false)
	if len(runs) != 1 || doc.Format(runs[0]).Font != CodeFont {
		t.Error("Expected code line in code font")
	}
}

func TestLoadInline(t *testing.T) {
	tests := []struct {
		name  string
		input string
		text  string
		check func(*testing.T, *dom.Document, []dom.NodeID)
	}{
		{"bold and italic", "a **b** *c* ***d***", "a b c d", func(t *testing.T, doc *dom.Document, runs []dom.NodeID) {
			if f := doc.Format(runs[1]); !f.Bold || f.Italic {
				t.Errorf("b = %+v", f)
			}
			if f := doc.Format(runs[3]); f.Bold || !f.Italic {
				t.Errorf("c = %+v", f)
			}
			if f := doc.Format(runs[5]); !f.Bold || !f.Italic {
				t.Errorf("d = %+v", f)
			}
		}},
		{"strike and code", "~~gone~~ `x*y`", "gone x*y", func(t *testing.T, doc *dom.Document, runs []dom.NodeID) {
			if !doc.Format(runs[0]).Strike {
				t.Error("Expected strike")
			}
			if doc.Format(runs[2]).Font != CodeFont {
				t.Error("Expected code font")
			}
		}},
		{"intraword underscore", "snake_case_name", "snake_case_name", nil},
		{"escapes and entities", `\*not\* &amp; &#32;x`, "*not* &  x", nil},
		{"link", "see [the docs](http://x) now", "see the docs now", nil},
		{"hard break", "a\\\nb", "a\r\nb", nil},
		{"html break", "a<br>b", "a\r\nb", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, tt.input)
			p := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)[0]
			if got := doc.ParagraphText(p); got != tt.text {
				t.Errorf("ParagraphText() = %q, want %q", got, tt.text)
			}
			if tt.check != nil {
				tt.check(t, doc, doc.ChildNodes(p, dom.NodeRun, false))
			}
		})
	}
}

func TestLoadTable(t *testing.T) {
	doc := parse(t, "| a | b \\| c |\n| --- | :-: |\n| x<!--p-->y |  |\ntrailing\n")
	cells := doc.ChildNodes(doc.Root(), dom.NodeCell, true)
	if len(cells) != 4 {
		t.Fatalf("Expected 4 cells, got %d", len(cells))
	}
	if got := doc.ParagraphText(doc.FirstChild(cells[1])); got != "b | c" {
		t.Errorf("cell text = %q", got)
	}
	if n := doc.ChildCount(cells[2]); n != 2 {
		t.Errorf("Expected 2 paragraphs in cell, got %d", n)
	}
	if n := doc.ChildCount(cells[3]); n != 1 {
		t.Errorf("Expected empty cell paragraph, got %d", n)
	}
	body := doc.Body(doc.FirstSection())
	if last := doc.LastChild(body); doc.ParagraphText(last) != "trailing" {
		t.Errorf("Expected paragraph after table, got %q", doc.ParagraphText(last))
	}
}

func TestSaveEscaping(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_ = b.Writeln("- not a list")
	_ = b.Writeln("1. not ordered")
	_ = b.Writeln("  indented *stars*")
	_, _ = b.Write(`back\slash`)
	out := saveString(t, doc)
	for _, want := range []string{`\- not a list`, `1\. not ordered`, `&#32;&#32;indented \*stars\*`, `back\\slash`} {
		if !strings.Contains(out, want) {
			t.Errorf("Save() missing %q in\n%s", want, out)
		}
	}
	got := parse(t, out)
	if got.GetText(got.Root()) != doc.GetText(doc.Root()) {
		t.Errorf("GetText() = %q, want %q", got.GetText(got.Root()), doc.GetText(doc.Root()))
	}
}

func sample(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.New()
	doc.Props.Title = "Plan: v2"
	if err := doc.Styles().Add(dom.Style{Name: "Heading 2", Type: dom.StyleParagraph}); err != nil {
		t.Fatal(err)
	}
	b := dom.NewBuilder(doc)
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{Style: "Heading 2"})
	_ = b.Writeln("Goals")
	b.Font = dom.Formatting{Bold: true, Italic: true}
	_, _ = b.Write("both")
	b.Font = dom.Formatting{Italic: true}
	_, _ = b.Write("italic")
	b.Font = dom.Formatting{Bold: true, Strike: true}
	_, _ = b.Write("bold-struck")
	b.Font = dom.Formatting{}
	_, _ = b.Write(" plain ")
	_ = b.InsertBreak(dom.BreakLine)
	_, _ = b.Write("- after break")
	_, _ = b.InsertField("DATE \\@ yyyy", "2026")
	_, _ = b.StartBookmark("mark")
	_ = b.InsertBreak(dom.BreakPage)
	_, _ = b.EndBookmark("mark")
	_, _ = b.InsertParagraph()
	list := doc.Lists().AddNumbered()
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{ListID: list})
	_ = b.Writeln("item")
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{ListID: list, ListLevel: 1})
	_ = b.Writeln("")
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{})
	_, _ = b.StartTable()
	_, _ = b.InsertCell()
	_, _ = b.Write("x | y ")
	_, _ = b.InsertParagraph()
	_, _ = b.Write("z")
	_, _ = b.InsertCell()
	_, _ = b.EndRow()
	_, _ = b.InsertCell()
	_, _ = b.Write("r2")
	_, _ = b.InsertCell()
	_ = b.InsertBreak(dom.BreakLine)
	_, _ = b.EndRow()
	_, _ = b.EndTable()
	_ = b.InsertBreak(dom.BreakSectionContinuous)
	_ = b.InsertBreak(dom.BreakSectionNewPage)
	_, _ = b.Write("last")
	return doc
}

func TestRoundTrip(t *testing.T) {
	doc := sample(t)
	var buf bytes.Buffer
	if _, err := codec.Save(doc, &buf, "markdown", nil); err != nil {
		t.Fatal(err)
	}
	got, err := codec.Load(bytes.NewReader(buf.Bytes()), &codec.LoadOptions{Format: "markdown"})
	if err != nil {
		t.Fatal(err)
	}
	if got.GetText(got.Root()) != doc.GetText(doc.Root()) {
		t.Errorf("GetText() = %q, want %q\n%s", got.GetText(got.Root()), doc.GetText(doc.Root()), buf.String())
	}
	if got.Props.Title != doc.Props.Title {
		t.Errorf("Title = %q, want %q", got.Props.Title, doc.Props.Title)
	}
	if len(got.Sections()) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(got.Sections()))
	}
	if s := got.Attrs(got.Sections()[2]).SectionStart; s != dom.SectionNewPage {
		t.Errorf("SectionStart = %q", s)
	}
	var formats []dom.Formatting
	for _, r := range got.ChildNodes(got.Root(), dom.NodeRun, true)[1:4] {
		formats = append(formats, got.Format(r))
	}
	want := []dom.Formatting{{Bold: true, Italic: true}, {Italic: true}, {Bold: true, Strike: true}}
	for i := range want {
		if formats[i] != want[i] {
			t.Errorf("run %d format = %+v, want %+v", i, formats[i], want[i])
		}
	}
	if out := saveString(t, got); out != buf.String() {
		t.Errorf("second save differs:\n%s\nvs\n%s", out, buf.String())
	}
}

func TestImages(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	doc := dom.New()
	b := dom.NewBuilder(doc)
	img, _ := b.InsertImage("image/png", png, 20, 10)
	a := doc.Attrs(img)
	a.Alt = "logo [v1]"
	_ = doc.SetAttrs(img, a)

	out := saveString(t, doc)
	if !strings.Contains(out, `![logo \[v1\]](data:image/png;base64,`) || !strings.Contains(out, "{width=20pt height=10pt}") {
		t.Fatalf("Save() = %s", out)
	}
	got := parse(t, out)
	imgs := got.ChildNodes(got.Root(), dom.NodeImage, true)
	if len(imgs) != 1 {
		t.Fatalf("Expected 1 image, got %d", len(imgs))
	}
	ga := got.Attrs(imgs[0])
	if ga.Alt != "logo [v1]" || ga.Width != 20 || ga.Height != 10 {
		t.Errorf("image attrs = %+v", ga)
	}

	var names []string
	opts := &codec.SaveOptions{PartSaving: func(name string, data []byte) error {
		names = append(names, name)
		return nil
	}}
	var buf bytes.Buffer
	if err := (&Handler{}).Save(&buf, doc, opts); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || !strings.Contains(buf.String(), "]("+names[0]+")") {
		t.Errorf("parts = %v, output %s", names, buf.String())
	}
}

func TestBadFrontMatter(t *testing.T) {
	err := (&Handler{}).Load(strings.NewReader("---\ntitle: [unclosed\n---\n"), dom.NewEmpty(), nil)
	if err == nil {
		t.Error("Expected error for malformed front matter")
	}
}
