// Package sqlite provides the codec for Folio database documents: a SQLite
// file with one table per resource and one row per node, so documents can
// be queried with plain SQL.
package sqlite

import (
	"bytes"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	sqlitecore "github.com/FocuswithJustin/folio/core/sqlite"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// applicationID is stored in the database header at offset 68 ("Foli").
const applicationID = 0x466F6C69

// Handler implements codec.Codec for .fdb files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "sqlite",
		Extensions:  []string{".fdb"},
		ContentType: "application/vnd.sqlite3",
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

// Detect implements codec.Codec. Other SQLite databases are not claimed.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "sqlite",
		Confidence: 90,
		CustomValidator: func(head []byte) (bool, string) {
			ok := bytes.HasPrefix(head, []byte(sqlitecore.Magic)) && len(head) >= 72 &&
				string(head[68:72]) == "Foli"
			return ok, "SQLite database with the folio application id"
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
	data, err := save(doc, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
