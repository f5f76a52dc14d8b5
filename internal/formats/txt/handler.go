// Package txt provides the codec for plain text. Each line becomes a
// paragraph; saving writes field results only, with CRLF line ends.
package txt

import (
	"bytes"
	"io"
	"strings"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Handler implements codec.Codec for text files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "txt",
		Extensions:  []string{".txt", ".text"},
		ContentType: "text/plain",
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

// Detect implements codec.Codec. Text is the fallback for anything without
// NUL bytes, so it reports the lowest confidence.
func (h *Handler) Detect(head []byte) codec.DetectResult {
	return base.Detect(head, base.DetectConfig{
		FormatName: "txt",
		Confidence: 1,
		CustomValidator: func(head []byte) (bool, string) {
			enc := codec.DetectEncoding(head)
			if strings.HasPrefix(enc.Name, "utf-16") {
				return true, "UTF-16 byte order mark"
			}
			return !bytes.ContainsRune(head, 0), "no binary content"
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	name := ""
	if opts != nil {
		name = opts.Encoding
	}
	text, info, err := codec.Decode(data, name)
	if err != nil {
		return err
	}
	if info.Ambiguous {
		opts.Warn("txt", codec.AmbiguousEncoding, "input is not UTF-8, decoded as "+info.Name)
	}

	_, body, err := base.NewSection(doc)
	if err != nil {
		return err
	}
	for _, line := range splitLines(text) {
		if err := opts.Err(); err != nil {
			return err
		}
		p := doc.NewParagraph("")
		if err := base.AppendText(doc, p, line, dom.Formatting{}); err != nil {
			return err
		}
		if err := doc.AppendChild(body, p); err != nil {
			return err
		}
	}
	return nil
}

// splitLines splits on CRLF, LF or CR. A final terminator does not start
// another paragraph.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	_, err := io.WriteString(w, doc.ToText(doc.Root()))
	return err
}
