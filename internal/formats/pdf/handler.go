// Package pdf recognises PDF files so that detection can name them and
// saving reports a clear error. Rendering is out of scope.
package pdf

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Handler implements codec.Codec for .pdf files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "pdf",
		Extensions:  []string{".pdf"},
		ContentType: "application/pdf",
		Capabilities: codec.Capabilities{
			Encryption: true,
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

// Detect implements codec.Codec. A trailer or object referencing /Encrypt
// within the head marks the file as encrypted.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "pdf",
		Magic:      [][]byte{[]byte("%PDF-")},
		Confidence: 80,
		Encrypted: func(head []byte) bool {
			return bytes.Contains(head, []byte("/Encrypt"))
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	return base.UnsupportedOperationError("load", "pdf")
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	return base.UnsupportedOperationError("save", "pdf")
}
