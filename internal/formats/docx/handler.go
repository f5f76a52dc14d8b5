// Package docx reads and writes Office Open XML word processing documents.
//
// The package covers what the document model holds: paragraphs, runs and
// their direct formatting, styles, lists, tables, sections with headers and
// footers, fields, bookmarks, comments, foot- and endnotes, inline images,
// text boxes and tracked changes. Complex fields are folded into a single
// field node; hyperlinks keep their text only.
package docx

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Namespaces and relationship types used in the package.
const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	nsV   = "urn:schemas-microsoft-com:vml"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsCT  = "http://schemas.openxmlformats.org/package/2006/content-types"

	relBase      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	relDocument  = relBase + "officeDocument"
	relCore      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relStyles    = relBase + "styles"
	relNumbering = relBase + "numbering"
	relSettings  = relBase + "settings"
	relFootnotes = relBase + "footnotes"
	relEndnotes  = relBase + "endnotes"
	relComments  = relBase + "comments"
	relHeader    = relBase + "header"
	relFooter    = relBase + "footer"
	relImage     = relBase + "image"
	relCustomXML = relBase + "customXml"

	ctBase = "application/vnd.openxmlformats-officedocument.wordprocessingml."
)

// Handler implements codec.Codec for .docx files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "docx",
		Extensions:  []string{".docx", ".docm", ".dotx"},
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		CanLoad:     true,
		CanSave:     true,
		Capabilities: codec.Capabilities{
			Revisions:    true,
			Styles:       true,
			TextFidelity: true,
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

// Detect implements codec.Codec. Word packages name their main part under
// word/ in one of the first local file headers.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "docx",
		Confidence: 70,
		CustomValidator: func(head []byte) (bool, string) {
			ok := bytes.HasPrefix(head, []byte("PK\x03\x04")) && bytes.Contains(head, []byte("word/"))
			return ok, "zip package with a word/ part"
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return load(data, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if opts == nil {
		opts = &codec.SaveOptions{}
	}
	return save(w, doc, opts)
}
