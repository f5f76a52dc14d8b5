package epub

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	epubcore "github.com/FocuswithJustin/folio/core/epub"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

func sampleDocument(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.New()
	doc.Props.Title = "Field Notes"
	doc.Props.Author = "Ann"
	doc.Props.Created = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	_ = doc.Styles().Add(dom.Style{Name: "Heading 1", Type: dom.StyleParagraph, Format: dom.Formatting{Bold: true, Size: 16}})
	_ = doc.Styles().Add(dom.Style{Name: "Quote Block", Type: dom.StyleParagraph, Format: dom.Formatting{Italic: true}})
	list := doc.Lists().AddNumbered()

	b := dom.NewBuilder(doc)
	if _, err := b.Write("Preface text"); err != nil {
		t.Fatal(err)
	}
	b.Paragraph = dom.Formatting{Style: "Heading 1"}
	_ = b.Writeln("")
	_, _ = b.Write("Birds & Bees")
	b.Paragraph = dom.Formatting{Style: "Quote Block", Align: dom.AlignCenter}
	_ = b.Writeln("")
	b.Font = dom.Formatting{Bold: true, Color: "FF0000"}
	_, _ = b.Write("kept")
	b.Font = dom.Formatting{}
	gone, _ := b.Write(" removed")
	_, _ = b.InsertField("PAGE", "7")
	p := b.CurrentParagraph()
	note, _ := doc.NewNode(dom.NodeFootnote)
	_ = doc.AppendChild(note, doc.NewParagraph("A note."))
	_ = doc.AppendChild(p, note)
	b.Paragraph = dom.Formatting{ListID: list}
	_ = b.Writeln("")
	_, _ = b.Write("one")
	_ = b.Writeln("")
	_, _ = b.Write("two")
	b.Paragraph = dom.Formatting{}
	_ = b.Writeln("")
	_, _ = b.InsertImage("image/png", []byte("\x89PNG\r\n\x1a\nfake"), 20, 10)
	_, _ = b.StartTable()
	_, _ = b.InsertCell()
	_, _ = b.Write("a1")
	_, _ = b.EndRow()
	_, _ = b.EndTable()
	_ = b.InsertBreak(dom.BreakSectionNewPage)
	_, _ = b.Write("Appendix")

	del := doc.NewMark(dom.RevisionDeletion, "Bob", time.Time{})
	if err := doc.SetContentMark(gone, &del); err != nil {
		t.Fatal(err)
	}
	return doc
}

func saveBytes(t *testing.T, doc *dom.Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := (&Handler{}).Save(&buf, doc, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return buf.Bytes()
}

func parse(t *testing.T, data []byte) *epubcore.Book {
	t.Helper()
	zr, err := base.OpenZip(data)
	if err != nil {
		t.Fatal(err)
	}
	book, err := epubcore.Parse(zr.Read)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return book
}

func TestSave(t *testing.T) {
	data := saveBytes(t, sampleDocument(t))
	if got := string(data[30:38]); got != "mimetype" {
		t.Errorf("first entry = %q, want mimetype", got)
	}
	book := parse(t, data)
	m := book.Metadata
	if m.Title != "Field Notes" || m.Author != "Ann" || !strings.HasPrefix(m.Identifier, "urn:uuid:") {
		t.Errorf("Metadata = %+v", m)
	}
	var titles []string
	for _, c := range book.Chapters {
		titles = append(titles, c.Title)
	}
	if want := "Field Notes|Birds & Bees|Chapter 3"; strings.Join(titles, "|") != want {
		t.Errorf("chapter titles = %q, want %q", strings.Join(titles, "|"), want)
	}

	body := book.Chapters[1].Body
	for _, want := range []string{
		`<h1>Birds &amp; Bees</h1>`,
		`<p class="quote-block" style="text-align:center">`,
		`<span style="color:#FF0000"><b>kept</b></span>`,
		`7<sup><a href="#fn1">1</a></sup>`,
		`<aside epub:type="footnote" id="fn1">`,
		`<ol><li>one</li><li>two</li></ol>`,
		`<td><p>a1</p></td>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("chapter body lacks %s\n%s", want, body)
		}
	}
	if strings.Contains(body, "removed") {
		t.Error("deleted text was exported")
	}
	if len(book.Resources) != 1 || book.Resources[0].ContentType != "image/png" {
		t.Fatalf("resources = %+v", book.Resources)
	}
	if !strings.Contains(body, `src="../`+book.Resources[0].Name+`"`) {
		t.Errorf("image reference missing from %s", body)
	}
	if !strings.Contains(book.Chapters[2].Body, "Appendix") {
		t.Errorf("last chapter = %q", book.Chapters[2].Body)
	}
}

func TestSaveDeterministic(t *testing.T) {
	a := saveBytes(t, sampleDocument(t))
	b := saveBytes(t, sampleDocument(t))
	if !bytes.Equal(a, b) {
		t.Error("saving the same document twice produced different bytes")
	}
}

func TestSaveEmpty(t *testing.T) {
	book := parse(t, saveBytes(t, dom.New()))
	if len(book.Chapters) != 1 || book.Chapters[0].Title != "Untitled" {
		t.Errorf("chapters = %+v", book.Chapters)
	}
}

func TestSaveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := &codec.SaveOptions{Context: ctx}
	err := (&Handler{}).Save(&bytes.Buffer{}, sampleDocument(t), opts)
	if err == nil {
		t.Error("Save() error = nil for a canceled context")
	}
}

func TestLoadUnsupported(t *testing.T) {
	err := (&Handler{}).Load(bytes.NewReader(nil), dom.NewEmpty(), nil)
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Load() error = %v, want %v", err, errors.ErrUnsupported)
	}
}

func TestDetect(t *testing.T) {
	h := &Handler{}
	if r := h.Detect(saveBytes(t, dom.New())); !r.Detected {
		t.Errorf("Detect() = %+v for saved output", r)
	}
	if r := h.Detect([]byte("PK\x03\x04 something else")); r.Detected {
		t.Errorf("Detect() = %+v for a plain zip", r)
	}
}
