// Package rtf provides the codec for Rich Text Format documents.
//
// Revisions use the \revised, \deleted and \crauth words with authors in
// the revision table; comments are annotation destinations anchored by
// \atrfstart and \atrfend.
package rtf

import (
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Handler implements codec.Codec for RTF.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "rtf",
		Extensions:  []string{".rtf"},
		ContentType: "application/rtf",
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

// Detect implements codec.Codec.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "RTF",
		Magic:      [][]byte{[]byte(`{\rtf`)},
		Confidence: 90,
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
