// Package html provides the codec for HTML documents.
package html

import (
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Generator is written into saved documents. Inputs carrying it are read
// without HTML whitespace collapsing.
const Generator = "folio"

// Handler implements codec.Codec for HTML.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "html",
		Extensions:  []string{".html", ".htm", ".xhtml"},
		ContentType: "text/html",
		CanLoad:     true,
		CanSave:     true,
		Capabilities: codec.Capabilities{
			EncodingDetection: true,
			Styles:            true,
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

// Detect implements codec.Codec.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "html",
		Confidence: 50,
		CustomValidator: func(head []byte) (bool, string) {
			for _, p := range []string{"<!DOCTYPE html", "<html"} {
				if base.HasPrefixFold(head, p) {
					return true, "HTML document element"
				}
			}
			return false, ""
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	return load(r, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	return save(w, doc, opts)
}
