// Package codec defines the load/save contract that every document format
// implements and the registry the formats register into.
package codec

import (
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/FocuswithJustin/folio/core/dom"
)

// Capabilities lists optional features of a format.
type Capabilities struct {
	EncodingDetection bool `json:"encoding_detection,omitempty"`
	Encryption        bool `json:"encryption,omitempty"`
	DigitalSignature  bool `json:"digital_signature,omitempty"`
	Revisions         bool `json:"revisions,omitempty"`
	Styles            bool `json:"styles,omitempty"`
	// TextFidelity means a save followed by a load reproduces GetText
	// exactly for documents holding only paragraphs and runs.
	TextFidelity bool `json:"text_fidelity,omitempty"`
}

// FormatDescriptor identifies a serialisation format.
type FormatDescriptor struct {
	Name         string       `json:"name"`
	Extensions   []string     `json:"extensions"`
	ContentType  string       `json:"content_type"`
	CanLoad      bool         `json:"can_load"`
	CanSave      bool         `json:"can_save"`
	Capabilities Capabilities `json:"capabilities"`
}

// DetectResult is the outcome of inspecting the head of an input.
type DetectResult struct {
	Detected bool
	// Confidence ranks competing detections; higher wins.
	Confidence int
	Encrypted  bool
	Reason     string
}

// Codec translates between a document and one serialised format. Codecs
// that cannot load or save return an UnsupportedError from that method.
type Codec interface {
	Descriptor() FormatDescriptor
	Detect(head []byte) DetectResult
	Load(r io.Reader, doc *dom.Document, opts *LoadOptions) error
	Save(w io.Writer, doc *dom.Document, opts *SaveOptions) error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Codec)
)

// Register adds c under its descriptor name, replacing any previous codec.
func Register(c Codec) {
	name := c.Descriptor().Name
	if name == "" {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = c
}

// Get returns the codec named name.
func Get(name string) (Codec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[strings.ToLower(name)]
	return c, ok
}

// ByExtension returns the codec owning the extension of path.
func ByExtension(path string) (Codec, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	for _, c := range List() {
		for _, e := range c.Descriptor().Extensions {
			if e == ext {
				return c, true
			}
		}
	}
	return nil, false
}

// List returns all codecs sorted by name.
func List() []Codec {
	registryMu.RLock()
	out := make([]Codec, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	registryMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor().Name < out[j].Descriptor().Name })
	return out
}

// Descriptors returns the descriptors of all codecs sorted by name.
func Descriptors() []FormatDescriptor {
	codecs := List()
	out := make([]FormatDescriptor, len(codecs))
	for i, c := range codecs {
		out[i] = c.Descriptor()
	}
	return out
}

// Unregister removes a codec. Intended for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}
