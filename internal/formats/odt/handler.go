// Package odt reads and writes OpenDocument text packages.
//
// Sections map to master pages when they start a new page and to
// text:section regions otherwise. Tracked changes use the
// text:tracked-changes regions of the format: insertions and format
// changes bracket their content, deletions keep it inside the region.
package odt

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

const mimeType = "application/vnd.oasis.opendocument.text"

// Namespaces written into every part.
var namespaces = []string{
	"xmlns:office", "urn:oasis:names:tc:opendocument:xmlns:office:1.0",
	"xmlns:style", "urn:oasis:names:tc:opendocument:xmlns:style:1.0",
	"xmlns:text", "urn:oasis:names:tc:opendocument:xmlns:text:1.0",
	"xmlns:table", "urn:oasis:names:tc:opendocument:xmlns:table:1.0",
	"xmlns:draw", "urn:oasis:names:tc:opendocument:xmlns:drawing:1.0",
	"xmlns:fo", "urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0",
	"xmlns:svg", "urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0",
	"xmlns:xlink", "http://www.w3.org/1999/xlink",
	"xmlns:dc", "http://purl.org/dc/elements/1.1/",
	"xmlns:meta", "urn:oasis:names:tc:opendocument:xmlns:meta:1.0",
}

// Handler implements codec.Codec for .odt files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "odt",
		Extensions:  []string{".odt", ".ott"},
		ContentType: mimeType,
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

// Detect implements codec.Codec. The stored mimetype entry comes first in
// the package, so its name and content sit in the head.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "odt",
		Confidence: 80,
		CustomValidator: func(head []byte) (bool, string) {
			ok := bytes.HasPrefix(head, []byte("PK\x03\x04")) && bytes.Contains(head, []byte("mimetype"+mimeType))
			return ok, "zip package with an OpenDocument text mimetype"
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
