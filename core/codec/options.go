package codec

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/fonts"
	"github.com/FocuswithJustin/folio/internal/validation"
)

// ResourceType is the kind of an external resource referenced by an input.
type ResourceType int

const (
	ResourceImage ResourceType = iota + 1
	ResourceStylesheet
	ResourceDocument
)

func (t ResourceType) String() string {
	switch t {
	case ResourceImage:
		return "image"
	case ResourceStylesheet:
		return "stylesheet"
	case ResourceDocument:
		return "document"
	default:
		return "unknown"
	}
}

// ResourceRequest is passed to a ResourceLoading callback.
type ResourceRequest struct {
	Type ResourceType
	// URI is the reference resolved against the base URI.
	URI string
	// OriginalURI is the reference as written in the input.
	OriginalURI string
}

// ResourceAction is a ResourceLoading callback's decision.
type ResourceAction int

const (
	// ResourceDefault loads the resource the usual way.
	ResourceDefault ResourceAction = iota
	// ResourceSkip drops the resource and continues loading.
	ResourceSkip
	// ResourceUserProvided uses the bytes returned by the callback.
	ResourceUserProvided
)

// LoadOptions configure Load. The zero value detects the format and uses
// defaults everywhere.
type LoadOptions struct {
	// Format forces a codec by name and skips detection.
	Format string
	// Password decrypts encrypted inputs.
	Password string
	// BaseURI resolves relative resource references.
	BaseURI string
	// Encoding overrides text encoding detection, e.g. "windows-1251".
	Encoding string
	Warnings WarningSink
	// NodeChanging is installed on the document while it is built.
	NodeChanging dom.NodeChangingCallback
	// Fonts, when set, substitutes unavailable fonts after loading.
	Fonts           *fonts.Settings
	ResourceLoading func(ResourceRequest) (ResourceAction, []byte, error)
	Context         context.Context
}

// Err reports cancellation of the load context.
func (o *LoadOptions) Err() error {
	if o == nil || o.Context == nil {
		return nil
	}
	return o.Context.Err()
}

// Warn sends a warning from source to the configured sink.
func (o *LoadOptions) Warn(source string, kind WarningKind, description string) {
	var sink WarningSink
	if o != nil {
		sink = o.Warnings
	}
	emit(sink, Warning{Source: source, Kind: kind, Description: description})
}

// readFile is swapped in tests.
var readFile = os.ReadFile

// Resource fetches an external resource referenced by the input being
// loaded. ok is false when the resource was skipped or could not be
// reached; both cases are reported to the warning sink. An error from the
// callback aborts the load with an UnresolvedResource LoadError.
func (o *LoadOptions) Resource(source string, typ ResourceType, ref string) (data []byte, ok bool, err error) {
	req := ResourceRequest{Type: typ, URI: o.resolve(ref), OriginalURI: ref}
	action := ResourceDefault
	if o != nil && o.ResourceLoading != nil {
		var provided []byte
		action, provided, err = o.ResourceLoading(req)
		if err != nil {
			return nil, false, errors.NewLoad(errors.UnresolvedResource, source, err)
		}
		switch action {
		case ResourceSkip:
			o.Warn(source, UnresolvedResource, "skipped "+typ.String()+" "+ref)
			return nil, false, nil
		case ResourceUserProvided:
			return provided, true, nil
		}
	}
	data, err = fetchLocal(req.URI)
	if err != nil {
		o.Warn(source, UnresolvedResource, err.Error())
		return nil, false, nil
	}
	return data, true, nil
}

func (o *LoadOptions) resolve(ref string) string {
	if o == nil || o.BaseURI == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() || filepath.IsAbs(ref) {
		return ref
	}
	base, err := url.Parse(o.BaseURI)
	if err == nil && base.Scheme != "" && base.Scheme != "file" {
		return base.ResolveReference(u).String()
	}
	return filepath.Join(strings.TrimPrefix(o.BaseURI, "file://"), filepath.FromSlash(ref))
}

// fetchLocal reads file references. Network schemes are not fetched
// without a ResourceLoading callback.
func fetchLocal(uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1 {
		return nil, errors.NewUnsupported("resource scheme", u.Scheme+" resources need a ResourceLoading callback")
	}
	path := strings.TrimPrefix(uri, "file://")
	data, err := readFile(path)
	if err != nil {
		return nil, errors.NewIO("read resource", path, err)
	}
	return data, nil
}

// SplitCriteria selects where multi-part outputs are split.
type SplitCriteria int

const (
	SplitNone SplitCriteria = iota
	SplitSection
	SplitPageBreak
)

// FontInfo describes a font used by a saved document.
type FontInfo struct {
	Name   string
	Bold   bool
	Italic bool
}

// SaveOptions configure Save.
type SaveOptions struct {
	// Format is the target codec; Save fills it from its argument.
	Format      string
	PrettyPrint bool
	// Split divides HTML output into one part per section or page break.
	Split SplitCriteria
	// ImagesFolder receives media files written by formats that reference
	// images externally. Empty means embed where the format allows it.
	ImagesFolder string
	// FontSaving is called once for each font a format references.
	FontSaving func(FontInfo) error
	// PartSaving receives extra output parts instead of ImagesFolder.
	PartSaving func(name string, data []byte) error
	Password   string
	// PinnedTime replaces the timestamps written into the output.
	PinnedTime time.Time
	Context    context.Context

	parts []string
}

// Err reports cancellation of the save context.
func (o *SaveOptions) Err() error {
	if o == nil || o.Context == nil {
		return nil
	}
	return o.Context.Err()
}

// epoch is used when neither a pinned time nor a last-saved time exists.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Timestamp returns the time a save writes into its output.
func (o *SaveOptions) Timestamp(doc *dom.Document) time.Time {
	if o != nil && !o.PinnedTime.IsZero() {
		return o.PinnedTime.UTC()
	}
	if !doc.Props.LastSaved.IsZero() {
		return doc.Props.LastSaved.UTC()
	}
	return epoch
}

var writeFile = os.WriteFile

// EmitPart writes an extra output part through PartSaving or into
// ImagesFolder, and records its name in the output metadata.
func (o *SaveOptions) EmitPart(name string, data []byte) error {
	switch {
	case o.PartSaving != nil:
		if err := o.PartSaving(name, data); err != nil {
			return err
		}
	case o.ImagesFolder != "":
		path, err := validation.SanitizePath(o.ImagesFolder, name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.NewIO("create folder", filepath.Dir(path), err)
		}
		if err := writeFile(path, data, 0o644); err != nil {
			return errors.NewIO("write part", path, err)
		}
	default:
		return errors.NewValidation("save", "no destination for part "+name)
	}
	o.parts = append(o.parts, name)
	return nil
}

// SaveFonts reports each distinct font used by doc to FontSaving, in
// first-use order.
func (o *SaveOptions) SaveFonts(doc *dom.Document) error {
	if o == nil || o.FontSaving == nil {
		return nil
	}
	seen := map[FontInfo]bool{}
	for _, n := range doc.ChildNodes(doc.Root(), dom.NodeRun, true) {
		f := doc.Format(n)
		if f.Style != "" {
			f = f.Merge(doc.Styles().Resolve(f.Style))
		}
		if f.Font == "" {
			continue
		}
		fi := FontInfo{Name: f.Font, Bold: f.Bold, Italic: f.Italic}
		if seen[fi] {
			continue
		}
		seen[fi] = true
		if err := o.FontSaving(fi); err != nil {
			return err
		}
	}
	return nil
}

// OutputMetadata describes a completed save.
type OutputMetadata struct {
	ContentType  string
	BytesWritten int64
	// Parts lists extra parts written besides the main output.
	Parts []string
}
