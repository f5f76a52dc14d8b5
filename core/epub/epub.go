// Package epub builds EPUB 3 packages: the container, the OPF package
// document, the EPUB 2 NCX and EPUB 3 navigation documents, a stylesheet,
// XHTML chapters and binary resources.
package epub

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/xml"
)

// MimeType is the content of the mimetype entry.
const MimeType = "application/epub+zip"

// Book is an EPUB publication held in memory.
type Book struct {
	Metadata  Metadata
	Chapters  []Chapter
	Resources []Resource
	// Cover names a resource used as the cover image.
	Cover string
	CSS   string
}

// Metadata is the Dublin Core metadata of the package document.
type Metadata struct {
	Title       string
	Author      string
	Language    string
	Identifier  string
	Publisher   string
	Description string
	Date        time.Time
	Modified    time.Time
}

// Chapter is one XHTML content document. Body is well-formed XHTML
// markup placed inside <body>.
type Chapter struct {
	Title string
	Body  string
}

// Resource is a binary file stored under OEBPS/, for example an image
// referenced from a chapter as "../images/x.png".
type Resource struct {
	Name        string
	ContentType string
	Data        []byte
}

// Archive receives the entries of the package in order. Store entries are
// uncompressed.
type Archive interface {
	Store(name string, data []byte) error
	Add(name string, data []byte) error
}

// DefaultCSS is used when Book.CSS is empty.
const DefaultCSS = `body {
  font-family: serif;
  margin: 1em;
  line-height: 1.6;
}
h1, h2, h3 {
  font-family: sans-serif;
}
p {
  margin: 0.5em 0;
}
table {
  border-collapse: collapse;
}
td {
  border: 1px solid #999;
  padding: 0.2em 0.4em;
  vertical-align: top;
}
`

// ChapterName returns the archive path of chapter i.
func ChapterName(i int) string {
	return "OEBPS/text/chapter" + strconv.Itoa(i+1) + ".xhtml"
}

// Write emits the package to a. The mimetype entry comes first.
func (b *Book) Write(a Archive) error {
	if len(b.Chapters) == 0 {
		return errors.NewValidation("chapters", "EPUB must have at least one chapter")
	}
	if b.Metadata.Identifier == "" {
		return errors.NewValidation("identifier", "EPUB must have an identifier")
	}
	if err := a.Store("mimetype", []byte(MimeType)); err != nil {
		return err
	}
	parts := []struct {
		name string
		data []byte
	}{
		{"META-INF/container.xml", containerXML()},
		{"OEBPS/content.opf", b.packageDocument()},
		{"OEBPS/toc.ncx", b.ncx()},
		{"OEBPS/toc.xhtml", b.nav()},
		{"OEBPS/style.css", []byte(b.css())},
	}
	for _, p := range parts {
		if err := a.Add(p.name, p.data); err != nil {
			return err
		}
	}
	for _, r := range b.Resources {
		if err := a.Add("OEBPS/"+r.Name, r.Data); err != nil {
			return err
		}
	}
	for i, c := range b.Chapters {
		if err := a.Add(ChapterName(i), b.chapter(c)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Book) css() string {
	if b.CSS == "" {
		return DefaultCSS
	}
	return b.CSS
}

func containerXML() []byte {
	x := xml.NewWriter()
	x.Start("container", "version", "1.0", "xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")
	x.Start("rootfiles")
	x.Empty("rootfile", "full-path", "OEBPS/content.opf", "media-type", "application/oebps-package+xml")
	return x.Bytes()
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func (b *Book) packageDocument() []byte {
	m := b.Metadata
	lang := m.Language
	if lang == "" {
		lang = "en"
	}
	x := xml.NewWriter()
	x.Start("package", "xmlns", "http://www.idpf.org/2007/opf", "version", "3.0", "unique-identifier", "BookId")
	x.Start("metadata", "xmlns:dc", "http://purl.org/dc/elements/1.1/")
	x.Element("dc:identifier", m.Identifier, "id", "BookId")
	x.Element("dc:title", m.Title)
	x.Element("dc:language", lang)
	if m.Author != "" {
		x.Element("dc:creator", m.Author)
	}
	if !m.Date.IsZero() {
		x.Element("dc:date", m.Date.UTC().Format("2006-01-02"))
	}
	if m.Publisher != "" {
		x.Element("dc:publisher", m.Publisher)
	}
	if m.Description != "" {
		x.Element("dc:description", m.Description)
	}
	x.Element("meta", stamp(m.Modified), "property", "dcterms:modified")
	if b.Cover != "" {
		x.Empty("meta", "name", "cover", "content", "cover-image")
	}
	x.End()

	x.Start("manifest")
	x.Empty("item", "id", "toc", "href", "toc.xhtml", "media-type", "application/xhtml+xml", "properties", "nav")
	x.Empty("item", "id", "ncx", "href", "toc.ncx", "media-type", "application/x-dtbncx+xml")
	x.Empty("item", "id", "style", "href", "style.css", "media-type", "text/css")
	for i, r := range b.Resources {
		id, props := "res"+strconv.Itoa(i+1), ""
		if r.Name == b.Cover {
			id, props = "cover-image", "cover-image"
		}
		x.Empty("item", "id", id, "href", r.Name, "media-type", r.ContentType, "properties", props)
	}
	for i := range b.Chapters {
		id := "chapter" + strconv.Itoa(i+1)
		x.Empty("item", "id", id, "href", "text/"+id+".xhtml", "media-type", "application/xhtml+xml")
	}
	x.End()

	x.Start("spine", "toc", "ncx")
	for i := range b.Chapters {
		x.Empty("itemref", "idref", "chapter"+strconv.Itoa(i+1))
	}
	return x.Bytes()
}

func (b *Book) ncx() []byte {
	x := xml.NewWriter()
	x.Start("ncx", "xmlns", "http://www.daisy.org/z3986/2005/ncx/", "version", "2005-1")
	x.Start("head")
	x.Empty("meta", "name", "dtb:uid", "content", b.Metadata.Identifier)
	x.Empty("meta", "name", "dtb:depth", "content", "1")
	x.Empty("meta", "name", "dtb:totalPageCount", "content", "0")
	x.Empty("meta", "name", "dtb:maxPageNumber", "content", "0")
	x.End()
	x.Start("docTitle")
	x.Element("text", b.Metadata.Title)
	x.End()
	x.Start("navMap")
	for i, c := range b.Chapters {
		n := strconv.Itoa(i + 1)
		x.Start("navPoint", "id", "navpoint"+n, "playOrder", n)
		x.Start("navLabel")
		x.Element("text", c.Title)
		x.End()
		x.Empty("content", "src", "text/chapter"+n+".xhtml")
		x.End()
	}
	return x.Bytes()
}

func (b *Book) nav() []byte {
	x := xhtml("Table of Contents", "style.css")
	x.Start("nav", "epub:type", "toc", "id", "toc")
	x.Element("h1", "Table of Contents")
	x.Start("ol")
	for i, c := range b.Chapters {
		x.Start("li")
		x.Element("a", c.Title, "href", "text/chapter"+strconv.Itoa(i+1)+".xhtml")
		x.End()
	}
	return x.Bytes()
}

func (b *Book) chapter(c Chapter) []byte {
	x := xhtml(c.Title, "../style.css")
	x.Raw([]byte(c.Body))
	return x.Bytes()
}

// xhtml starts an XHTML document and leaves <body> open.
func xhtml(title, css string) *xml.Writer {
	x := xml.NewFragment()
	x.Raw([]byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<!DOCTYPE html>\n"))
	x.Start("html", "xmlns", "http://www.w3.org/1999/xhtml", "xmlns:epub", "http://www.idpf.org/2007/ops")
	x.Start("head")
	x.Element("title", title)
	x.Empty("link", "rel", "stylesheet", "type", "text/css", "href", css)
	x.End()
	x.Start("body")
	return x
}

// Parse reads the package document and chapters of an EPUB. read returns
// the content of an archive entry.
func Parse(read func(name string) ([]byte, error)) (*Book, error) {
	data, err := read("META-INF/container.xml")
	if err != nil {
		return nil, err
	}
	container, err := xml.Parse(data)
	if err != nil {
		return nil, errors.NewParse("epub", "container.xml", err.Error())
	}
	root, _ := container.XPathFirst("//" + xml.Local("rootfile"))
	opfPath := root.Attr("full-path")
	if opfPath == "" {
		return nil, errors.NewParse("epub", "container.xml", "no rootfile")
	}
	if data, err = read(opfPath); err != nil {
		return nil, err
	}
	opf, err := xml.Parse(data)
	if err != nil {
		return nil, errors.NewParse("epub", opfPath, err.Error())
	}

	book := &Book{}
	meta := func(name string) string {
		n, _ := opf.XPathFirst("//" + xml.Local("metadata") + "/" + xml.Local(name))
		return strings.TrimSpace(n.Text())
	}
	book.Metadata = Metadata{
		Title:       meta("title"),
		Author:      meta("creator"),
		Language:    meta("language"),
		Identifier:  meta("identifier"),
		Publisher:   meta("publisher"),
		Description: meta("description"),
	}
	if t, err := time.Parse("2006-01-02", meta("date")); err == nil {
		book.Metadata.Date = t
	}
	if n, _ := opf.XPathFirst("//" + xml.Local("meta") + "[@property='dcterms:modified']"); n != nil {
		book.Metadata.Modified, _ = time.Parse(time.RFC3339, strings.TrimSpace(n.Text()))
	}

	dir := path.Dir(opfPath)
	hrefs := map[string]string{}
	items, _ := opf.XPath("//" + xml.Local("manifest") + "/" + xml.Local("item"))
	for _, it := range items {
		hrefs[it.Attr("id")] = it.Attr("href")
		if strings.Contains(it.Attr("properties"), "cover-image") {
			book.Cover = it.Attr("href")
		}
		if strings.HasPrefix(it.Attr("media-type"), "image/") {
			data, err := read(path.Join(dir, it.Attr("href")))
			if err != nil {
				return nil, err
			}
			book.Resources = append(book.Resources, Resource{Name: it.Attr("href"), ContentType: it.Attr("media-type"), Data: data})
		}
	}
	refs, _ := opf.XPath("//" + xml.Local("spine") + "/" + xml.Local("itemref"))
	for _, ref := range refs {
		href, ok := hrefs[ref.Attr("idref")]
		if !ok {
			return nil, errors.NewParse("epub", opfPath, fmt.Sprintf("spine item %q is not in the manifest", ref.Attr("idref")))
		}
		name := path.Join(dir, href)
		data, err := read(name)
		if err != nil {
			return nil, err
		}
		doc, err := xml.Parse(data)
		if err != nil {
			return nil, errors.NewParse("epub", name, err.Error())
		}
		title, _ := doc.XPathFirst("//" + xml.Local("head") + "/" + xml.Local("title"))
		body, _ := doc.XPathFirst("//" + xml.Local("body"))
		book.Chapters = append(book.Chapters, Chapter{Title: strings.TrimSpace(title.Text()), Body: body.InnerXML()})
	}
	return book, nil
}
