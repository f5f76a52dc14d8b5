package epub

import (
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	epubcore "github.com/FocuswithJustin/folio/core/epub"
	"github.com/FocuswithJustin/folio/core/xml"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

type saver struct {
	doc  *dom.Document
	opts *codec.SaveOptions
	book *epubcore.Book
	// media maps hashes to resource names.
	media map[string]string

	// chapter state
	title string
	x     *xml.Writer
	notes [][]dom.NodeID
}

func save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if err := opts.SaveFonts(doc); err != nil {
		return err
	}
	ts := opts.Timestamp(doc)
	title := doc.Props.Title
	if title == "" {
		title = "Untitled"
	}
	s := &saver{
		doc:  doc,
		opts: opts,
		book: &epubcore.Book{Metadata: epubcore.Metadata{
			Title:       title,
			Author:      doc.Props.Author,
			Identifier:  "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(doc.Hash(doc.Root()))).String(),
			Description: doc.Props.Subject,
			Date:        doc.Props.Created,
			Modified:    ts,
		}},
		media: map[string]string{},
	}
	if err := s.chapters(); err != nil {
		return err
	}
	zw := base.NewZipWriter(w, ts)
	if err := s.book.Write(zw); err != nil {
		return err
	}
	return zw.Close()
}

// chapters splits the body blocks of every section into chapters.
func (s *saver) chapters() error {
	doc := s.doc
	for i, sec := range doc.Sections() {
		if err := s.opts.Err(); err != nil {
			return err
		}
		if i > 0 && doc.Attrs(sec).SectionStart == dom.SectionNewPage {
			s.endChapter()
		}
		blocks := doc.Children(doc.Body(sec))
		for j := 0; j < len(blocks); {
			if doc.Type(blocks[j]) == dom.NodeParagraph && doc.Format(blocks[j]).Style == "Heading 1" {
				s.endChapter()
				s.title = doc.ParagraphText(blocks[j])
			}
			// Paragraphs of one list are written together.
			k := j + 1
			if id := s.listID(blocks[j]); id != 0 {
				for k < len(blocks) && s.listID(blocks[k]) == id {
					k++
				}
			}
			if err := s.blocks(blocks[j:k]); err != nil {
				return err
			}
			j = k
		}
	}
	s.endChapter()
	if len(s.book.Chapters) == 0 {
		s.start()
		s.endChapter()
	}
	return nil
}

func (s *saver) listID(id dom.NodeID) int {
	if s.doc.Type(id) != dom.NodeParagraph {
		return 0
	}
	return s.doc.Format(id).ListID
}

func (s *saver) start() {
	if s.x == nil {
		s.x = xml.NewFragment()
	}
}

func (s *saver) endChapter() {
	if s.x == nil {
		return
	}
	for i, note := range s.notes {
		n := strconv.Itoa(i + 1)
		s.x.Start("aside", "epub:type", "footnote", "id", "fn"+n)
		if err := s.blocks(note); err != nil {
			return
		}
		s.x.End()
	}
	title := s.title
	if title == "" {
		title = s.book.Metadata.Title
		if len(s.book.Chapters) > 0 {
			title = "Chapter " + strconv.Itoa(len(s.book.Chapters)+1)
		}
	}
	s.book.Chapters = append(s.book.Chapters, epubcore.Chapter{Title: title, Body: string(s.x.Bytes())})
	s.x, s.title, s.notes = nil, "", nil
}

func (s *saver) blocks(ids []dom.NodeID) error {
	s.start()
	list := 0
	for _, id := range ids {
		switch s.doc.Type(id) {
		case dom.NodeParagraph:
			f := s.doc.Format(id)
			if f.ListID != list {
				if list != 0 {
					s.x.End()
				}
				list = f.ListID
				if list != 0 {
					s.x.Start(s.listTag(list))
				}
			}
			if err := s.paragraph(id, f); err != nil {
				return err
			}
		case dom.NodeTable:
			if list != 0 {
				s.x.End()
				list = 0
			}
			if err := s.table(id); err != nil {
				return err
			}
		}
	}
	if list != 0 {
		s.x.End()
	}
	return nil
}

func (s *saver) listTag(id int) string {
	def, ok := s.doc.Lists().Get(id)
	if !ok || (len(def.Levels) > 0 && def.Levels[0].Style == dom.NumberBullet) {
		return "ul"
	}
	return "ol"
}

var alignments = map[dom.Alignment]string{
	dom.AlignCenter:  "center",
	dom.AlignRight:   "right",
	dom.AlignJustify: "justify",
}

func (s *saver) paragraph(id dom.NodeID, f dom.Formatting) error {
	tag := "p"
	if rest, ok := strings.CutPrefix(f.Style, "Heading "); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= 6 {
			tag = "h" + rest
		}
	}
	if f.ListID != 0 {
		tag = "li"
	}
	class := ""
	if f.Style != "" && tag == "p" {
		class = cssClass(f.Style)
	}
	style := ""
	if a, ok := alignments[f.Align]; ok {
		style = "text-align:" + a
	}
	s.x.Start(tag, "class", class, "style", style)
	for _, c := range s.doc.Children(id) {
		if err := s.inline(c); err != nil {
			return err
		}
	}
	s.x.End()
	return nil
}

// cssClass turns a style name into a class token.
func cssClass(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

func (s *saver) table(id dom.NodeID) error {
	s.x.Start("table")
	for _, row := range s.doc.Children(id) {
		s.x.Start("tr")
		for _, cell := range s.doc.Children(row) {
			s.x.Start("td")
			if err := s.blocks(s.doc.Children(cell)); err != nil {
				return err
			}
			s.x.End()
		}
		s.x.End()
	}
	s.x.End()
	return nil
}

// deleted reports whether id is pending removal; the book shows the
// document as if its revisions were accepted.
func (s *saver) deleted(id dom.NodeID) bool {
	m, ok := s.doc.ContentMark(id)
	return ok && (m.Type == dom.RevisionDeletion || m.Type == dom.RevisionMoveFrom)
}

func (s *saver) inline(id dom.NodeID) error {
	if s.deleted(id) {
		return nil
	}
	doc := s.doc
	a := doc.Attrs(id)
	switch doc.Type(id) {
	case dom.NodeRun:
		s.run(doc.Text(id), base.EffectiveFormat(doc, id))
	case dom.NodeBreak:
		s.x.Empty("br")
	case dom.NodeField:
		s.run(a.FieldResult, base.EffectiveFormat(doc, id))
	case dom.NodeBookmarkStart:
		s.x.Empty("a", "id", a.Name)
	case dom.NodeImage:
		return s.image(a)
	case dom.NodeFootnote:
		s.notes = append(s.notes, doc.Children(id))
		n := strconv.Itoa(len(s.notes))
		s.x.Start("sup")
		s.x.Element("a", n, "href", "#fn"+n)
		s.x.End()
	case dom.NodeShape:
		s.x.Start("span", "class", "shape")
		for _, p := range doc.ChildNodes(id, dom.NodeParagraph, false) {
			for _, c := range doc.Children(p) {
				if err := s.inline(c); err != nil {
					return err
				}
			}
		}
		s.x.End()
	case dom.NodeSmartTag:
		for _, c := range doc.Children(id) {
			if err := s.inline(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *saver) run(text string, f dom.Formatting) {
	if text == "" {
		return
	}
	var css []string
	if f.Font != "" {
		css = append(css, "font-family:'"+f.Font+"'")
	}
	if f.Size != 0 {
		css = append(css, "font-size:"+strconv.FormatFloat(f.Size, 'f', -1, 64)+"pt")
	}
	if f.Color != "" {
		css = append(css, "color:#"+f.Color)
	}
	if f.Highlight != "" {
		css = append(css, "background-color:#"+f.Highlight)
	}
	depth := 0
	if len(css) > 0 {
		s.x.Start("span", "style", strings.Join(css, ";"))
		depth++
	}
	for _, t := range []struct {
		on  bool
		tag string
	}{{f.Bold, "b"}, {f.Italic, "i"}, {f.Underline, "u"}, {f.Strike, "s"}} {
		if t.on {
			s.x.Start(t.tag)
			depth++
		}
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			s.x.Empty("br")
		}
		s.x.Text(line)
	}
	for ; depth > 0; depth-- {
		s.x.End()
	}
}

func (s *saver) image(a dom.Attrs) error {
	blob, err := s.doc.Media.Get(a.Media)
	if err != nil {
		return nil
	}
	name, ok := s.media[a.Media]
	if !ok {
		name = "images/" + base.MediaName(a.Media, blob.ContentType)
		s.media[a.Media] = name
		s.book.Resources = append(s.book.Resources, epubcore.Resource{Name: name, ContentType: blob.ContentType, Data: blob.Data})
	}
	style := ""
	if a.Width != 0 && a.Height != 0 {
		style = "width:" + strconv.FormatFloat(a.Width, 'f', -1, 64) + "pt;height:" + strconv.FormatFloat(a.Height, 'f', -1, 64) + "pt"
	}
	s.x.EmptyAll("img", "src", "../"+name, "alt", a.Alt, "style", style)
	return nil
}
