// Package flatxml implements a single-file XML rendition of the document
// tree. Every node becomes an element named after its type; formatting and
// attributes become XML attributes and revision marks become <mark>
// children. Custom parts and macros are not written.
package flatxml

import (
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/xml"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Namespace identifies flat XML documents.
const Namespace = "urn:folio:flat"

// Version is written on the root element.
const Version = 1

// Handler implements codec.Codec for flat XML.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "flatxml",
		Extensions:  []string{".xml"},
		ContentType: "application/xml",
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
		FormatName:     "flatxml",
		ContentMarkers: []string{"<folio", Namespace},
		Confidence:     60,
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := xml.Validate(data); err != nil {
		return errors.NewParse("flatxml", "", err.Error())
	}
	x, err := xml.Parse(data)
	if err != nil {
		return errors.NewParse("flatxml", "", err.Error())
	}
	return decode(x, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	out := encode(doc)
	if opts != nil && opts.PrettyPrint {
		var err error
		if out, err = xml.Format(out, xml.FormatOptions{}); err != nil {
			return err
		}
	}
	_, err := w.Write(out)
	return err
}
