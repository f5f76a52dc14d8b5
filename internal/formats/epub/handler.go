// Package epub provides the EPUB export codec. Documents are split into
// chapters at "Heading 1" paragraphs and new-page sections.
package epub

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	epubcore "github.com/FocuswithJustin/folio/core/epub"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Handler implements codec.Codec for EPUB.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "epub",
		Extensions:  []string{".epub"},
		ContentType: epubcore.MimeType,
		CanSave:     true,
		Capabilities: codec.Capabilities{
			Styles: true,
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

// Detect implements codec.Codec.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "epub",
		Confidence: 80,
		CustomValidator: func(head []byte) (bool, string) {
			ok := bytes.HasPrefix(head, []byte("PK\x03\x04")) && bytes.Contains(head, []byte("mimetype"+epubcore.MimeType))
			return ok, "zip package with an EPUB mimetype"
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	return base.UnsupportedOperationError("load", "epub")
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	if opts == nil {
		opts = &codec.SaveOptions{}
	}
	return save(w, doc, opts)
}
