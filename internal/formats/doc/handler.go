// Package doc recognises legacy Word binary files so that detection can
// name them. Loading and saving are not supported.
package doc

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// compoundMagic starts every OLE2 compound file.
var compoundMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Handler implements codec.Codec for .doc files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "doc",
		Extensions:  []string{".doc", ".dot"},
		ContentType: "application/msword",
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

// Detect implements codec.Codec. An encrypted package stores its payload
// in an "EncryptedPackage" stream, whose UTF-16 name shows up in the
// directory sectors of small files.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "doc",
		Magic:      [][]byte{compoundMagic},
		Confidence: 80,
		Encrypted: func(head []byte) bool {
			return bytes.Contains(head, utf16le("EncryptedPackage"))
		},
	})
}

func utf16le(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0)
	}
	return out
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	return base.UnsupportedOperationError("load", "doc")
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	return base.UnsupportedOperationError("save", "doc")
}
