package odt

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

var when = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func story(t *testing.T, doc *dom.Document, typ dom.NodeType, a dom.Attrs, text string) dom.NodeID {
	t.Helper()
	id, err := doc.NewNode(typ)
	if err != nil {
		t.Fatal(err)
	}
	a.Shape, a.Footnote = doc.Attrs(id).Shape, doc.Attrs(id).Footnote
	if err := doc.SetAttrs(id, a); err != nil {
		t.Fatal(err)
	}
	if text != "" {
		if err := doc.AppendChild(id, doc.NewParagraph(text)); err != nil {
			t.Fatal(err)
		}
	}
	return id
}

func marker(t *testing.T, doc *dom.Document, typ dom.NodeType, a dom.Attrs) dom.NodeID {
	t.Helper()
	id, err := doc.NewNode(typ)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.SetAttrs(id, a); err != nil {
		t.Fatal(err)
	}
	return id
}

func sampleDocument(t *testing.T) *dom.Document {
	t.Helper()
	doc := dom.New()
	doc.Props.Title = "Quarterly"
	doc.Props.Author = "Ann"
	doc.Props.LastSavedBy = "Bob"
	doc.Props.RevisionNumber = 4
	doc.Props.Created = when
	doc.Variables().Set("Client", "Acme & Co")
	doc.Variables().Set("Empty", "")
	_ = doc.Styles().Add(dom.Style{Name: "Quote Block", Type: dom.StyleParagraph, BasedOn: "Normal", Format: dom.Formatting{Italic: true, Align: dom.AlignCenter}})
	_ = doc.Styles().Add(dom.Style{Name: "Strong", Type: dom.StyleCharacter, Format: dom.Formatting{Bold: true}})
	list := doc.Lists().Add(
		dom.ListLevel{Style: dom.NumberArabic, Text: "%1.", Indent: 36},
		dom.ListLevel{Style: dom.NumberLowerLatin, Text: "(%2)", Indent: 72},
	)

	b := dom.NewBuilder(doc)
	b.Font = dom.Formatting{Bold: true, Font: "Arial", Size: 10.5, Color: "FF0000", Highlight: "FFFF00"}
	if _, err := b.Write("Hello\tthere "); err != nil {
		t.Fatal(err)
	}
	b.Font = dom.Formatting{}
	field, _ := b.InsertField("DOCVARIABLE Client", "Acme & Co")
	_, _ = b.InsertField("PAGE \\* MERGEFORMAT", "1")
	_, _ = b.StartBookmark("intro")
	_, _ = b.Write("  world")
	_, _ = b.EndBookmark("intro")
	_ = b.InsertBreak(dom.BreakLine)
	b.Font = dom.Formatting{Style: "Strong"}
	_, _ = b.Write("strong")
	b.Font = dom.Formatting{}

	p := b.CurrentParagraph()
	_ = doc.AppendChild(p, story(t, doc, dom.NodeFootnote, dom.Attrs{}, "A note."))
	_ = doc.AppendChild(p, marker(t, doc, dom.NodeCommentRangeStart, dom.Attrs{CommentID: 3}))
	_ = doc.AppendChild(p, doc.NewRun("noted", dom.Formatting{}))
	_ = doc.AppendChild(p, marker(t, doc, dom.NodeCommentRangeEnd, dom.Attrs{CommentID: 3}))
	_ = doc.AppendChild(p, story(t, doc, dom.NodeComment, dom.Attrs{Author: "Bob", Initial: "B", Date: when, CommentID: 3}, "Check this."))
	_ = doc.AppendChild(p, story(t, doc, dom.NodeShape, dom.Attrs{Width: 100, Height: 40}, "Boxed"))
	rect := story(t, doc, dom.NodeShape, dom.Attrs{Width: 50, Height: 20}, "")
	ra := doc.Attrs(rect)
	ra.Shape = dom.ShapeRectangle
	_ = doc.SetAttrs(rect, ra)
	_ = doc.AppendChild(p, rect)

	b.Paragraph = dom.Formatting{Style: "Quote Block", SpaceAfter: 6}
	_ = b.Writeln("")
	_, _ = b.Write("quoted")
	_ = b.InsertBreak(dom.BreakPage)
	inserted := b.CurrentParagraph()
	b.Paragraph = dom.Formatting{ListID: list}
	_ = b.Writeln("")
	_, _ = b.Write("first item")
	b.Paragraph = dom.Formatting{ListID: list, ListLevel: 1}
	_ = b.Writeln("")
	_, _ = b.Write("nested item")
	b.Paragraph = dom.Formatting{}
	_ = b.Writeln("")
	img, _ := b.InsertImage("image/png", []byte("\x89PNG\r\n\x1a\nfake"), 72, 36)
	ia := doc.Attrs(img)
	ia.Alt = "Logo"
	_ = doc.SetAttrs(img, ia)
	_, _ = b.StartTable()
	_, _ = b.InsertCell()
	_, _ = b.Write("a1")
	_, _ = b.InsertCell()
	_, _ = b.Write("b1")
	_, _ = b.EndRow()
	_, _ = b.EndTable()
	_ = b.InsertBreak(dom.BreakSectionNewPage)
	_, _ = b.Write("second section")
	_ = b.InsertBreak(dom.BreakColumn)
	_ = b.InsertBreak(dom.BreakSectionContinuous)
	_, _ = b.Write("third section")

	first := doc.Sections()[0]
	_ = doc.AppendChild(first, story(t, doc, dom.NodeHeaderFooter, dom.Attrs{HeaderFooter: dom.HeaderPrimary}, "Header text"))
	_ = doc.AppendChild(first, story(t, doc, dom.NodeHeaderFooter, dom.Attrs{HeaderFooter: dom.FooterEven}, "Even footer"))
	sec := doc.Sections()[1]
	a := doc.Attrs(sec)
	pg := dom.DefaultPageSetup()
	pg.Columns = 2
	pg.MarginLeft = 54
	a.Page = &pg
	_ = doc.SetAttrs(sec, a)
	third := doc.Sections()[2]
	a = doc.Attrs(third)
	cols := dom.DefaultPageSetup()
	cols.Columns, cols.ColumnGap = 3, 12
	a.Page = &cols
	_ = doc.SetAttrs(third, a)

	runs := doc.ChildNodes(doc.Root(), dom.NodeRun, true)
	ins := doc.NewMark(dom.RevisionInsertion, "Ann", when)
	if err := doc.SetContentMark(runs[0], &ins); err != nil {
		t.Fatal(err)
	}
	del := doc.NewMark(dom.RevisionDeletion, "Cy", when)
	_ = doc.SetContentMark(runs[1], &del)
	_ = doc.SetContentMark(field, &del)
	fm := doc.NewMark(dom.RevisionFormatChange, "Bob", when)
	fm.OldFormat = &dom.Formatting{Italic: true}
	_ = doc.SetFormatMark(runs[0], &fm)
	pm := doc.NewMark(dom.RevisionInsertion, "Dee", when)
	_ = doc.SetContentMark(inserted, &pm)
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

func loadBytes(t *testing.T, data []byte, opts *codec.LoadOptions) *dom.Document {
	t.Helper()
	doc := dom.NewEmpty()
	if err := (&Handler{}).Load(bytes.NewReader(data), doc, opts); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return doc
}

func TestRoundTrip(t *testing.T) {
	doc := sampleDocument(t)
	got := loadBytes(t, saveBytes(t, doc), nil)

	if g, w := got.GetText(got.Root()), doc.GetText(doc.Root()); g != w {
		t.Errorf("GetText() = %q, want %q", g, w)
	}
	p := got.Props
	if p.Title != "Quarterly" || p.Author != "Ann" || p.LastSavedBy != "Bob" || p.RevisionNumber != 4 || !p.Created.Equal(when) {
		t.Errorf("Props = %+v", p)
	}
	if v, _ := got.Variables().Get("Client"); v != "Acme & Co" {
		t.Errorf("variable Client = %q, want %q", v, "Acme & Co")
	}
	if !got.Variables().Contains("Empty") {
		t.Error("empty variable was dropped")
	}
	if st, ok := got.Styles().Get("Quote Block"); !ok || st.BasedOn != "Normal" || !st.Format.Italic || st.Format.Align != dom.AlignCenter || st.BuiltIn {
		t.Errorf("style = %+v, %v", st, ok)
	}
	if st, ok := got.Styles().Get("Strong"); !ok || st.Type != dom.StyleCharacter || !st.Format.Bold {
		t.Errorf("character style = %+v, %v", st, ok)
	}
	if st, ok := got.Styles().Get("Normal"); !ok || !st.BuiltIn {
		t.Errorf("Normal = %+v, %v", st, ok)
	}
	def, ok := got.Lists().Get(1)
	if !ok || len(def.Levels) != 2 || def.Levels[0].Text != "%1." || def.Levels[1].Text != "(%2)" ||
		def.Levels[1].Style != dom.NumberLowerLatin || def.Levels[1].Indent != 72 {
		t.Errorf("list 1 = %+v, %v", def, ok)
	}
	if got.Media.Len() != 1 {
		t.Errorf("media = %d, want 1", got.Media.Len())
	}

	runs := got.ChildNodes(got.Root(), dom.NodeRun, true)
	f := got.Format(runs[0])
	if !f.Bold || f.Font != "Arial" || f.Size != 10.5 || f.Color != "FF0000" || f.Highlight != "FFFF00" {
		t.Errorf("run format = %+v", f)
	}
	if m, ok := got.ContentMark(runs[0]); !ok || m.Type != dom.RevisionInsertion || m.Author != "Ann" || !m.Date.Equal(when) {
		t.Errorf("insertion mark = %+v, %v", m, ok)
	}
	if m, ok := got.FormatMark(runs[0]); !ok || m.Author != "Bob" {
		t.Errorf("format mark = %+v, %v", m, ok)
	}
	if m, ok := got.ContentMark(runs[1]); !ok || m.Type != dom.RevisionDeletion || got.Text(runs[1]) != "  world" {
		t.Errorf("deleted run %q mark = %+v, %v", got.Text(runs[1]), m, ok)
	}
	for _, r := range runs {
		if got.Text(r) == "strong" && got.Format(r).Style != "Strong" {
			t.Errorf("strong run format = %+v", got.Format(r))
		}
	}

	fields := got.ChildNodes(got.Root(), dom.NodeField, true)
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(fields))
	}
	if a := got.Attrs(fields[0]); a.FieldCode != "DOCVARIABLE Client" || a.FieldResult != "Acme & Co" {
		t.Errorf("field 0 = %q / %q", a.FieldCode, a.FieldResult)
	}
	if m, ok := got.ContentMark(fields[0]); !ok || m.Type != dom.RevisionDeletion || m.Author != "Cy" {
		t.Errorf("field mark = %+v, %v", m, ok)
	}
	if a := got.Attrs(fields[1]); a.FieldCode != "PAGE \\* MERGEFORMAT" {
		t.Errorf("field 1 code = %q", a.FieldCode)
	}

	counts := map[dom.NodeType]int{
		dom.NodeFootnote:          1,
		dom.NodeComment:           1,
		dom.NodeCommentRangeStart: 1,
		dom.NodeCommentRangeEnd:   1,
		dom.NodeShape:             2,
		dom.NodeImage:             1,
		dom.NodeTable:             1,
		dom.NodeCell:              2,
		dom.NodeBookmarkStart:     1,
		dom.NodeBookmarkEnd:       1,
		dom.NodeHeaderFooter:      2,
		dom.NodeSection:           3,
	}
	for typ, want := range counts {
		if n := len(got.ChildNodes(got.Root(), typ, true)); n != want {
			t.Errorf("%s nodes = %d, want %d", typ, n, want)
		}
	}
	c := got.ChildNodes(got.Root(), dom.NodeComment, true)[0]
	if a := got.Attrs(c); a.Author != "Bob" || a.Initial != "B" || a.CommentID != 3 || !a.Date.Equal(when) {
		t.Errorf("comment attrs = %+v", a)
	}
	img := got.ChildNodes(got.Root(), dom.NodeImage, true)[0]
	if a := got.Attrs(img); a.Width != 72 || a.Height != 36 || a.Alt != "Logo" {
		t.Errorf("image attrs = %+v", a)
	}
	shapes := got.ChildNodes(got.Root(), dom.NodeShape, true)
	if a := got.Attrs(shapes[0]); a.Shape != dom.ShapeTextBox || a.Width != 100 || a.Height != 40 {
		t.Errorf("text box attrs = %+v", a)
	}
	if a := got.Attrs(shapes[1]); a.Shape != dom.ShapeRectangle || got.ChildCount(shapes[1]) != 0 {
		t.Errorf("rectangle attrs = %+v", a)
	}
	if hf := got.HeaderFooter(got.Sections()[0], dom.FooterEven); hf == dom.NoNode || got.GetText(hf) != "Even footer\r" {
		t.Errorf("even footer = %v", hf)
	}

	var quoted, nested bool
	for _, p := range got.ChildNodes(got.Body(got.Sections()[0]), dom.NodeParagraph, false) {
		switch f := got.Format(p); {
		case f.Style == "Quote Block":
			quoted = f.SpaceAfter == 6
			if m, ok := got.ContentMark(p); !ok || m.Author != "Dee" {
				t.Errorf("paragraph mark = %+v, %v", m, ok)
			}
		case f.ListID == 1 && f.ListLevel == 1:
			nested = got.ParagraphText(p) == "nested item"
		}
	}
	if !quoted || !nested {
		t.Errorf("quoted = %v, nested = %v", quoted, nested)
	}

	secs := got.Sections()
	if a := got.Attrs(secs[1]); a.SectionStart != dom.SectionNewPage || a.Page == nil || a.Page.Columns != 2 || a.Page.MarginLeft != 54 {
		t.Errorf("section 2 attrs = %+v", a)
	}
	if a := got.Attrs(secs[2]); a.SectionStart != dom.SectionContinuous || a.Page == nil || a.Page.Columns != 3 || a.Page.ColumnGap != 12 {
		t.Errorf("section 3 attrs = %+v", a)
	}
}

func TestSaveDeterministic(t *testing.T) {
	a := saveBytes(t, sampleDocument(t))
	b := saveBytes(t, sampleDocument(t))
	if !bytes.Equal(a, b) {
		t.Error("saving the same document twice produced different bytes")
	}
}

func TestSavePackage(t *testing.T) {
	data := saveBytes(t, sampleDocument(t))
	if !bytes.HasPrefix(data[30:], []byte("mimetype"+mimeType)) {
		t.Errorf("package does not start with a stored mimetype entry: %q", data[:80])
	}
	z, err := base.OpenZip(data)
	if err != nil {
		t.Fatal(err)
	}
	names := z.Names()
	if len(names) < 5 || names[0] != "mimetype" || names[1] != "META-INF/manifest.xml" {
		t.Fatalf("entries = %v", names)
	}
	manifest, _ := z.Read("META-INF/manifest.xml")
	for _, want := range []string{"content.xml", "styles.xml", "meta.xml", "Pictures/"} {
		if !strings.Contains(string(manifest), want) {
			t.Errorf("manifest lacks %s", want)
		}
	}
	content, _ := z.Read("content.xml")
	for _, want := range []string{"<text:tracked-changes>", `text:change-id="pc`, "<text:s text:c=\"2\"/>", "<text:user-field-get", "office:annotation-end"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("content.xml lacks %s", want)
		}
	}
}

func TestWhitespace(t *testing.T) {
	tests := []string{"a  b", " lead", "trail  ", "\tx", "   ", "a \t b"}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			doc := dom.New()
			p := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)[0]
			if err := doc.AppendChild(p, doc.NewRun(text, dom.Formatting{})); err != nil {
				t.Fatal(err)
			}
			got := loadBytes(t, saveBytes(t, doc), nil)
			gp := got.ChildNodes(got.Root(), dom.NodeParagraph, true)[0]
			if g := got.ParagraphText(gp); g != text {
				t.Errorf("ParagraphText() = %q, want %q", g, text)
			}
		})
	}
}

const contentOpen = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0" xmlns:xlink="http://www.w3.org/1999/xlink">`

// odtPackage builds a minimal package around a content.xml document.
func odtPackage(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := base.NewZipWriter(&buf, time.Time{})
	if err := zw.Store("mimetype", []byte(mimeType)); err != nil {
		t.Fatal(err)
	}
	if content != "" {
		if err := zw.Add("content.xml", []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadWrittenElsewhere(t *testing.T) {
	content := contentOpen + `<office:automatic-styles>
<style:style style:name="P1" style:family="paragraph"><style:paragraph-properties fo:text-align="justify" fo:break-before="page"/></style:style>
<style:style style:name="T1" style:family="text"><style:text-properties fo:font-weight="700" fo:font-size="12pt" fo:color="#00ff00"/></style:style>
</office:automatic-styles><office:body><office:text>
<text:h text:outline-level="1">Title</text:h>
<text:p text:style-name="P1">  Leading spaces   collapse <text:span text:style-name="T1">bold</text:span> <text:a xlink:href="http://x">link</text:a><text:bookmark text:name="here"/></text:p>
<text:p text:style-name="Ghost">x</text:p>
<office:forms/>
<text:unknown-thing/>
</office:text></office:body></office:document-content>`
	var w codec.WarningCollector
	doc := loadBytes(t, odtPackage(t, content), &codec.LoadOptions{Warnings: &w})

	want := "Title\r\fLeading spaces collapse bold link\rx\f"
	if got := doc.GetText(doc.Root()); got != want {
		t.Errorf("GetText() = %q, want %q", got, want)
	}
	paras := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)
	if f := doc.Format(paras[1]); f.Align != dom.AlignJustify {
		t.Errorf("paragraph format = %+v", f)
	}
	for _, r := range doc.ChildNodes(doc.Root(), dom.NodeRun, true) {
		if doc.Text(r) == "bold" {
			if f := doc.Format(r); !f.Bold || f.Size != 12 || f.Color != "00FF00" {
				t.Errorf("bold run format = %+v", f)
			}
		}
	}
	if n := len(doc.ChildNodes(doc.Root(), dom.NodeBookmarkStart, true)); n != 1 {
		t.Errorf("bookmarks = %d, want 1", n)
	}
	if !w.Has(codec.MissingStyle) || !w.Has(codec.DataLoss) {
		t.Errorf("warnings = %v", w.All())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not a zip", []byte("plain text")},
		{"no content", odtPackage(t, "")},
		{"malformed content", odtPackage(t, contentOpen+"<office:body>")},
		{"no text body", odtPackage(t, contentOpen+"<office:body><office:spreadsheet/></office:body></office:document-content>")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Handler{}).Load(bytes.NewReader(tt.data), dom.NewEmpty(), nil)
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Load() error = %v, want %v", err, errors.ErrInvalidInput)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	h := &Handler{}
	data := saveBytes(t, sampleDocument(t))
	if res := h.Detect(data[:min(len(data), codec.HeadSize)]); !res.Detected {
		t.Errorf("Detect(saved package) = %+v", res)
	}
	if res := h.Detect([]byte("PK\x03\x04\x14\x00mimetypeapplication/epub+zip")); res.Detected {
		t.Errorf("Detect(epub) = %+v", res)
	}
	info, err := codec.DetectFormat(bytes.NewReader(data))
	if err != nil || info.Format != "odt" {
		t.Errorf("DetectFormat() = %q, %v", info.Format, err)
	}
}
