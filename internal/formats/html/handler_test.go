package html

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
)

var pngData = []byte("\x89PNG\r\n\x1a\nfake")

func TestDescriptor(t *testing.T) {
	d := Descriptor()
	if d.Name != "html" {
		t.Errorf("Expected name 'html', got %s", d.Name)
	}
	if !d.CanLoad || !d.CanSave {
		t.Error("Expected load and save support")
	}
}

func TestDetect(t *testing.T) {
	h := &Handler{}
	tests := []struct {
		name string
		head string
		want bool
	}{
		{"doctype", "<!DOCTYPE html><html></html>", true},
		{"lower doctype with bom", "\xEF\xBB\xBF  <!doctype html>", true},
		{"html element", "<html lang=en>", true},
		{"xml", "<?xml version=\"1.0\"?><root/>", false},
		{"text", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Detect([]byte(tt.head)).Detected; got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func parse(t *testing.T, input string, opts *codec.LoadOptions) *dom.Document {
	t.Helper()
	doc := dom.NewEmpty()
	if err := (&Handler{}).Load(strings.NewReader(input), doc, opts); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return doc
}

func sample(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.New()
	doc.Props.Title = "Report & Summary"
	if err := doc.Styles().Add(dom.Style{Name: "Heading 1", Type: dom.StyleParagraph}); err != nil {
		t.Fatal(err)
	}
	b := dom.NewBuilder(doc)
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{Style: "Heading 1"})
	_ = b.Writeln("Intro")
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{Align: dom.AlignCenter})
	b.Font = dom.Formatting{Bold: true, Color: "FF0000"}
	_, _ = b.Write("bold <red>")
	b.Font = dom.Formatting{}
	_, _ = b.Write("  plain  ")
	_ = b.InsertBreak(dom.BreakLine)
	_, _ = b.InsertField("PAGE", "1")
	_, _ = b.StartBookmark("here")
	_, _ = b.Write("marked")
	_, _ = b.EndBookmark("here")
	_, _ = b.InsertParagraph()
	_ = doc.SetFormat(b.CurrentParagraph(), dom.Formatting{})
	_, _ = b.StartTable()
	_, _ = b.InsertCell()
	_, _ = b.Write("a")
	_, _ = b.InsertCell()
	_, _ = b.EndRow()
	_, _ = b.EndTable()
	_ = b.InsertBreak(dom.BreakSectionNewPage)
	_, _ = b.Write("second")
	_ = b.InsertBreak(dom.BreakPage)
	_, _ = b.Write("third")
	return doc
}

func TestRoundTrip(t *testing.T) {
	doc := sample(t)
	var buf bytes.Buffer
	if _, err := codec.Save(doc, &buf, "html", nil); err != nil {
		t.Fatal(err)
	}
	got, err := codec.Load(bytes.NewReader(buf.Bytes()), &codec.LoadOptions{Format: "html"})
	if err != nil {
		t.Fatal(err)
	}
	if got.GetText(got.Root()) != doc.GetText(doc.Root()) {
		t.Errorf("GetText() = %q, want %q", got.GetText(got.Root()), doc.GetText(doc.Root()))
	}
	if got.Props.Title != doc.Props.Title {
		t.Errorf("Title = %q, want %q", got.Props.Title, doc.Props.Title)
	}
	secs := got.Sections()
	if len(secs) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(secs))
	}
	if s := got.Attrs(secs[1]).SectionStart; s != dom.SectionNewPage {
		t.Errorf("SectionStart = %q, want %q", s, dom.SectionNewPage)
	}
	paras := got.ChildNodes(got.Body(secs[0]), dom.NodeParagraph, false)
	if f := got.Format(paras[0]); f.Style != "Heading 1" {
		t.Errorf("heading style = %q", f.Style)
	}
	if f := got.Format(paras[1]); f.Align != dom.AlignCenter {
		t.Errorf("Align = %q, want center", f.Align)
	}
	runs := got.ChildNodes(paras[1], dom.NodeRun, false)
	if f := got.Format(runs[0]); !f.Bold || f.Color != "FF0000" {
		t.Errorf("run format = %+v", f)
	}
	if len(got.ChildNodes(got.Root(), dom.NodeBookmarkStart, true)) != 1 {
		t.Error("Expected bookmark start to survive")
	}
}

func TestSaveDeterministic(t *testing.T) {
	doc := sample(t)
	var a, b bytes.Buffer
	if err := (&Handler{}).Save(&a, doc, nil); err != nil {
		t.Fatal(err)
	}
	if err := (&Handler{}).Save(&b, doc, nil); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("Expected identical output for identical input")
	}
	out := a.String()
	for _, want := range []string{
		`<meta name="generator" content="folio">`,
		"<title>Report &amp; Summary</title>",
		"<h1>Intro</h1>",
		`<span style="color:#FF0000"><b>bold &lt;red&gt;</b></span>`,
		`<span data-field="PAGE">1</span>`,
		`<br style="page-break-before:always">`,
		"<table>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Save() output missing %q", want)
		}
	}
}

func TestLoadForeign(t *testing.T) {
	input := `<html><head><title> Notes </title></head><body>
<h2>Title   here</h2>
<p>Some
   <em>spaced</em>   words</p>
<ul><li>one</li><li>two</li></ul>
<ol><li>first</li></ol>
<table><tr><th>h</th><td></td></tr></table>
<pre>keep   this</pre>
</body></html>`
	doc := parse(t, input, nil)
	if doc.Props.Title != "Notes" {
		t.Errorf("Title = %q", doc.Props.Title)
	}
	body := doc.Body(doc.FirstSection())
	paras := doc.ChildNodes(body, dom.NodeParagraph, false)
	var texts []string
	for _, p := range paras {
		texts = append(texts, doc.ParagraphText(p))
	}
	want := []string{"Title here", "Some spaced words", "one", "two", "first", "keep   this"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("paragraphs = %q, want %q", texts, want)
	}
	if _, ok := doc.Styles().Get("Heading 2"); !ok {
		t.Error("Expected Heading 2 style to be created")
	}
	bullet, numbered := doc.Format(paras[2]), doc.Format(paras[4])
	if bullet.ListID == 0 || numbered.ListID == 0 || bullet.ListID == numbered.ListID {
		t.Errorf("list ids = %d, %d", bullet.ListID, numbered.ListID)
	}
	if def, _ := doc.Lists().Get(bullet.ListID); def.Levels[0].Style != dom.NumberBullet {
		t.Errorf("Expected bullet list, got %q", def.Levels[0].Style)
	}
	cells := doc.ChildNodes(body, dom.NodeCell, true)
	if len(cells) != 2 {
		t.Fatalf("Expected 2 cells, got %d", len(cells))
	}
	if len(doc.Children(cells[1])) != 1 {
		t.Error("Expected empty cell to hold one paragraph")
	}
	runs := doc.ChildNodes(cells[0], dom.NodeRun, true)
	if len(runs) != 1 || !doc.Format(runs[0]).Bold {
		t.Error("Expected bold header cell run")
	}
}

func TestLoadEncoding(t *testing.T) {
	var w codec.WarningCollector
	doc := parse(t, "<html><head><meta charset=\"windows-1251\"></head><body><p>\xCF\xF0\xE8</p></body></html>", &codec.LoadOptions{Warnings: &w})
	if got := doc.ParagraphText(doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)[0]); got != "При" {
		t.Errorf("ParagraphText() = %q, want %q", got, "При")
	}
	if w.Has(codec.AmbiguousEncoding) {
		t.Error("Expected no ambiguity warning for declared charset")
	}

	w.Clear()
	parse(t, "<p>caf\xE9</p>", &codec.LoadOptions{Warnings: &w})
	if !w.Has(codec.AmbiguousEncoding) {
		t.Error("Expected ambiguity warning for undeclared legacy bytes")
	}
}

func TestMissingStyle(t *testing.T) {
	var w codec.WarningCollector
	doc := parse(t, `<p data-style="Quote">x</p>`, &codec.LoadOptions{Warnings: &w})
	if !w.Has(codec.MissingStyle) {
		t.Error("Expected missing style warning")
	}
	if _, ok := doc.Styles().Get("Quote"); !ok {
		t.Error("Expected placeholder style")
	}
}

func TestImages(t *testing.T) {
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_, _ = b.InsertImage("image/png", pngData, 30, 15)

	t.Run("data uri", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&Handler{}).Save(&buf, doc, nil); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `src="data:image/png;base64,`) {
			t.Fatalf("Expected data URI, got %s", buf.String())
		}
		got := parse(t, buf.String(), nil)
		imgs := got.ChildNodes(got.Root(), dom.NodeImage, true)
		if len(imgs) != 1 {
			t.Fatalf("Expected 1 image, got %d", len(imgs))
		}
		a := got.Attrs(imgs[0])
		if a.Width != 30 || a.Height != 15 {
			t.Errorf("size = %vx%v, want 30x15", a.Width, a.Height)
		}
		blob, err := got.Media.Get(a.Media)
		if err != nil || !bytes.Equal(blob.Data, pngData) {
			t.Errorf("image data not preserved: %v", err)
		}
	})

	t.Run("part saving", func(t *testing.T) {
		parts := map[string][]byte{}
		opts := &codec.SaveOptions{PartSaving: func(name string, data []byte) error {
			parts[name] = data
			return nil
		}}
		var buf bytes.Buffer
		if err := (&Handler{}).Save(&buf, doc, opts); err != nil {
			t.Fatal(err)
		}
		if len(parts) != 1 {
			t.Fatalf("Expected 1 part, got %d", len(parts))
		}
		for name := range parts {
			if !strings.HasSuffix(name, ".png") || !strings.Contains(buf.String(), `src="`+name+`"`) {
				t.Errorf("part %q not referenced", name)
			}
		}
	})

	t.Run("images folder", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "img")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := (&Handler{}).Save(&buf, doc, &codec.SaveOptions{ImagesFolder: dir}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `src="img/`) {
			t.Errorf("Expected relative image path, got %s", buf.String())
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("Expected 1 file in images folder, got %d", len(entries))
		}
	})
}

func TestLoadLinkedImage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pic.png"), pngData, 0o644); err != nil {
		t.Fatal(err)
	}
	doc := parse(t, `<p><img src="pic.png" width="40"></p>`, &codec.LoadOptions{BaseURI: dir})
	imgs := doc.ChildNodes(doc.Root(), dom.NodeImage, true)
	if len(imgs) != 1 {
		t.Fatalf("Expected 1 image, got %d", len(imgs))
	}
	if w := doc.Attrs(imgs[0]).Width; w != 30 {
		t.Errorf("Width = %v, want 30", w)
	}

	var w codec.WarningCollector
	doc = parse(t, `<p><img src="missing.png"></p>`, &codec.LoadOptions{BaseURI: dir, Warnings: &w})
	if len(doc.ChildNodes(doc.Root(), dom.NodeImage, true)) != 0 {
		t.Error("Expected missing image to be dropped")
	}
	if !w.Has(codec.UnresolvedResource) {
		t.Error("Expected unresolved resource warning")
	}

	boom := errors.New("denied")
	opts := &codec.LoadOptions{ResourceLoading: func(codec.ResourceRequest) (codec.ResourceAction, []byte, error) {
		return codec.ResourceDefault, nil, boom
	}}
	err := (&Handler{}).Load(strings.NewReader(`<img src="x.png">`), dom.NewEmpty(), opts)
	if !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want %v", err, boom)
	}
}

func TestSplit(t *testing.T) {
	pageBreaks := func(t *testing.T) *dom.Document {
		doc := dom.New()
		b := dom.NewBuilder(doc)
		_, _ = b.Write("a")
		_ = b.InsertBreak(dom.BreakPage)
		_ = b.Writeln("")
		_ = b.Writeln("b")
		return doc
	}
	tests := []struct {
		name  string
		doc   func(*testing.T) *dom.Document
		split codec.SplitCriteria
		parts []string
	}{
		{"none", sample, codec.SplitNone, nil},
		{"section", sample, codec.SplitSection, []string{"part-002.html"}},
		{"new page section", sample, codec.SplitPageBreak, []string{"part-002.html"}},
		{"page break", pageBreaks, codec.SplitPageBreak, []string{"part-002.html"}},
		{"page break ignored", pageBreaks, codec.SplitSection, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			opts := &codec.SaveOptions{Split: tt.split, PartSaving: func(name string, data []byte) error {
				names = append(names, name)
				if !bytes.HasPrefix(data, []byte("<!DOCTYPE html>")) {
					t.Errorf("part %s is not a complete page", name)
				}
				return nil
			}}
			var buf bytes.Buffer
			if err := (&Handler{}).Save(&buf, tt.doc(t), opts); err != nil {
				t.Fatal(err)
			}
			if strings.Join(names, ",") != strings.Join(tt.parts, ",") {
				t.Errorf("parts = %v, want %v", names, tt.parts)
			}
		})
	}
}
