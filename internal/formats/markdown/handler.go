// Package markdown provides the codec for CommonMark documents with YAML
// front matter.
//
// Document features Markdown has no syntax for are written as HTML
// comments so that a saved document loads back with the same text:
//
//	<!--section new_page-->       starts a section
//	<!--empty-->                  an empty paragraph
//	<!--page--> <!--column-->     page and column breaks
//	<!--field CODE-->result<!--/field-->
//	<!--bookmark NAME--> <!--/bookmark NAME-->
package markdown

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Handler implements codec.Codec for Markdown.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "markdown",
		Extensions:  []string{".md", ".markdown"},
		ContentType: "text/markdown",
		CanLoad:     true,
		CanSave:     true,
		Capabilities: codec.Capabilities{
			EncodingDetection: true,
			TextFidelity:      true,
		},
	}
}

// Register registers this codec with the codec registry.
func Register() {
	codec.Register(&Handler{})
}

func init() {
	Register()
}

// Descriptor implements codec.Codec.
func (h *Handler) Descriptor() codec.FormatDescriptor {
	return Descriptor()
}

// Detect implements codec.Codec. Only front matter is conclusive; other
// Markdown is indistinguishable from plain text and found by extension.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "markdown",
		Confidence: 20,
		CustomValidator: func(head []byte) (bool, string) {
			if !bytes.HasPrefix(head, []byte("---\n")) && !bytes.HasPrefix(head, []byte("---\r\n")) {
				return false, ""
			}
			if _, _, ok := splitFrontMatter(head); ok {
				return true, "YAML front matter"
			}
			return false, ""
		},
	})
}

// frontMatter is the YAML header of a document.
type frontMatter struct {
	Title   string `yaml:"title,omitempty"`
	Subject string `yaml:"subject,omitempty"`
	Author  string `yaml:"author,omitempty"`
}

// splitFrontMatter separates a leading "---" block from the body.
func splitFrontMatter(data []byte) (header, body []byte, ok bool) {
	rest, found := bytes.CutPrefix(data, []byte("---"))
	if !found {
		return nil, data, false
	}
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, data, false
	}
	rest = rest[nl+1:]
	for off := 0; off < len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		line := rest[off:]
		if end >= 0 {
			line = rest[off : off+end]
		}
		if t := bytes.TrimRight(line, "\r"); string(t) == "---" || string(t) == "..." {
			next := len(rest)
			if end >= 0 {
				next = off + end + 1
			}
			return rest[:off], rest[next:], true
		}
		if end < 0 {
			break
		}
		off += end + 1
	}
	return nil, data, false
}

func readFrontMatter(header []byte, doc *dom.Document) error {
	var fm frontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return errors.NewParse("markdown", "", "front matter: "+err.Error())
	}
	doc.Props.Title = fm.Title
	doc.Props.Subject = fm.Subject
	doc.Props.Author = fm.Author
	return nil
}

func writeFrontMatter(w io.Writer, doc *dom.Document) error {
	fm := frontMatter{Title: doc.Props.Title, Subject: doc.Props.Subject, Author: doc.Props.Author}
	if fm == (frontMatter{}) {
		return nil
	}
	data, err := yaml.Marshal(&fm)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "---\n\n")
	return err
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	return load(r, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	return save(w, doc, opts)
}
