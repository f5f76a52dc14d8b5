// Package native provides the codec for Folio's own JSON document format.
// It is lossless: every node, resource and pending revision survives a
// save and load.
package native

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// Version is written into every document.
const Version = 1

// Handler implements codec.Codec for .fdoc files.
type Handler struct{}

// Descriptor returns the format descriptor for registration.
func Descriptor() codec.FormatDescriptor {
	return codec.FormatDescriptor{
		Name:        "native",
		Extensions:  []string{".fdoc"},
		ContentType: "application/vnd.folio+json",
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
		FormatName: "native",
		Confidence: 60,
		CustomValidator: func(head []byte) (bool, string) {
			ok := base.HasPrefixFold(head, "{") && bytes.Contains(head, []byte(`"folio":`))
			return ok, "folio JSON document"
		},
	})
}

// Load implements codec.Codec.
func (h *Handler) Load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return Decode(data, doc, opts)
}

// Save implements codec.Codec.
func (h *Handler) Save(w io.Writer, doc *dom.Document, opts *codec.SaveOptions) error {
	data, err := Encode(doc, opts.PrettyPrint)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// File is the serialised form of a document.
type File struct {
	Folio          int              `json:"folio"`
	ID             string           `json:"id"`
	Props          dom.Properties   `json:"props"`
	DefaultTabStop float64          `json:"default_tab_stop,omitempty"`
	Styles         []dom.Style      `json:"styles"`
	StyleRevisions []StyleRevision  `json:"style_revisions,omitempty"`
	Lists          []dom.ListDef    `json:"lists,omitempty"`
	Variables      []Variable       `json:"variables,omitempty"`
	Parts          []dom.CustomPart `json:"parts,omitempty"`
	VBA            *dom.VBAProject  `json:"vba,omitempty"`
	Media          []Media          `json:"media,omitempty"`
	Sections       []Node           `json:"sections"`
}

// StyleRevision is a pending style definition change.
type StyleRevision struct {
	Style    string            `json:"style"`
	Revision dom.StyleRevision `json:"revision"`
}

// Variable is one document variable.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Media is one stored image.
type Media struct {
	Hash        string `json:"hash"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Node is one node and its subtree.
type Node struct {
	Type       dom.NodeType      `json:"type"`
	Text       string            `json:"text,omitempty"`
	Format     *dom.Formatting   `json:"format,omitempty"`
	Attrs      *dom.Attrs        `json:"attrs,omitempty"`
	Mark       *dom.RevisionMark `json:"mark,omitempty"`
	FormatMark *dom.RevisionMark `json:"format_mark,omitempty"`
	Children   []Node            `json:"children,omitempty"`
}

// Encode serialises doc.
func Encode(doc *dom.Document, pretty bool) ([]byte, error) {
	f := ToFile(doc)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToFile converts doc to its serialisable form.
func ToFile(doc *dom.Document) *File {
	f := &File{
		Folio:          Version,
		ID:             doc.ID,
		Props:          doc.Props,
		DefaultTabStop: doc.DefaultTabStop,
		Parts:          doc.CustomParts().All(),
		VBA:            doc.VBA,
	}
	for _, name := range doc.Styles().Names() {
		st, _ := doc.Styles().Get(name)
		f.Styles = append(f.Styles, st)
		if rev, ok := doc.StyleRevision(name); ok {
			f.StyleRevisions = append(f.StyleRevisions, StyleRevision{Style: name, Revision: rev})
		}
	}
	for _, id := range doc.Lists().IDs() {
		def, _ := doc.Lists().Get(id)
		f.Lists = append(f.Lists, def)
	}
	for _, k := range doc.Variables().Keys() {
		v, _ := doc.Variables().Get(k)
		f.Variables = append(f.Variables, Variable{Name: k, Value: v})
	}
	for _, h := range doc.Media.Hashes() {
		b, err := doc.Media.Get(h)
		if err != nil {
			continue
		}
		f.Media = append(f.Media, Media{Hash: h, ContentType: b.ContentType, Data: b.Data})
	}
	for _, s := range doc.Sections() {
		f.Sections = append(f.Sections, encodeNode(doc, s))
	}
	return f
}

func encodeNode(doc *dom.Document, id dom.NodeID) Node {
	n := Node{Type: doc.Type(id), Text: doc.Text(id)}
	if fm := doc.Format(id); !fm.IsZero() {
		n.Format = &fm
	}
	if a := doc.Attrs(id); a != (dom.Attrs{}) {
		n.Attrs = &a
	}
	if m, ok := doc.ContentMark(id); ok {
		n.Mark = &m
	}
	if m, ok := doc.FormatMark(id); ok {
		n.FormatMark = &m
	}
	for _, c := range doc.Children(id) {
		n.Children = append(n.Children, encodeNode(doc, c))
	}
	return n
}

// Decode fills the empty document doc from data.
func Decode(data []byte, doc *dom.Document, opts *codec.LoadOptions) error {
	var f File
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&f); err != nil {
		return errors.NewParse("native", "", err.Error())
	}
	return FromFile(&f, doc, opts)
}

// FromFile fills the empty document doc from f. Structural errors in the
// node tree abort the load.
func FromFile(f *File, doc *dom.Document, opts *codec.LoadOptions) error {
	if f.Folio == 0 {
		return errors.NewParse("native", "", "missing folio version")
	}
	if f.Folio > Version {
		return errors.NewUnsupported("native version", "document version is newer than this reader")
	}
	if f.ID != "" {
		doc.ID = f.ID
	}
	doc.Props = f.Props
	if f.DefaultTabStop != 0 {
		doc.DefaultTabStop = f.DefaultTabStop
	}
	for _, st := range f.Styles {
		doc.Styles().Restore(st)
	}
	for _, sr := range f.StyleRevisions {
		rev := sr.Revision
		doc.SetStyleRevision(sr.Style, &rev)
	}
	for _, def := range f.Lists {
		doc.Lists().Put(def)
	}
	for _, v := range f.Variables {
		doc.Variables().Set(v.Name, v.Value)
	}
	for _, p := range f.Parts {
		doc.CustomParts().Add(p)
	}
	doc.VBA = f.VBA
	for _, m := range f.Media {
		if got := doc.Media.Put(m.ContentType, m.Data); got != m.Hash {
			opts.Warn("native", codec.DataLoss, "media "+m.Hash+" does not match its content")
		}
	}
	for _, s := range f.Sections {
		if err := opts.Err(); err != nil {
			return err
		}
		if s.Type != dom.NodeSection {
			return errors.NewStructure(dom.NodeDocument.String(), s.Type.String(), "top-level node is not a section")
		}
		if _, err := decodeNode(doc, doc.Root(), s); err != nil {
			return err
		}
	}
	for _, p := range doc.ChildNodes(doc.Root(), dom.NodeTypeAny, true) {
		if st := doc.Format(p).Style; st != "" {
			if _, ok := doc.Styles().Get(st); !ok {
				opts.Warn("native", codec.MissingStyle, "style "+st+" is not defined")
			}
		}
	}
	return nil
}

func decodeNode(doc *dom.Document, parent dom.NodeID, n Node) (dom.NodeID, error) {
	id, err := doc.NewNode(n.Type)
	if err != nil {
		return dom.NoNode, err
	}
	if n.Type == dom.NodeRun {
		if err := doc.SetText(id, n.Text); err != nil {
			return dom.NoNode, err
		}
	}
	if n.Format != nil {
		_ = doc.SetFormat(id, *n.Format)
	}
	if n.Attrs != nil {
		_ = doc.SetAttrs(id, *n.Attrs)
	}
	if err := doc.AppendChild(parent, id); err != nil {
		return dom.NoNode, err
	}
	_ = doc.SetContentMark(id, n.Mark)
	_ = doc.SetFormatMark(id, n.FormatMark)
	for _, c := range n.Children {
		if _, err := decodeNode(doc, id, c); err != nil {
			return dom.NoNode, err
		}
	}
	return id, nil
}
