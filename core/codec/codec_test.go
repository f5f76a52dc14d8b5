package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/fonts"
)

// lineCodec stores one paragraph per line after a "LINES" header.
type lineCodec struct {
	name       string
	confidence int
	encrypted  bool
	loadErr    error
	saveErr    error
	part       bool
}

func (c *lineCodec) Descriptor() FormatDescriptor {
	return FormatDescriptor{
		Name: c.name, Extensions: []string{"." + c.name}, ContentType: "text/x-" + c.name,
		CanLoad: true, CanSave: true,
	}
}

func (c *lineCodec) Detect(head []byte) DetectResult {
	if !bytes.HasPrefix(head, []byte("LINES\n")) {
		return DetectResult{}
	}
	return DetectResult{Detected: true, Confidence: c.confidence, Encrypted: c.encrypted}
}

func (c *lineCodec) Load(r io.Reader, doc *dom.Document, opts *LoadOptions) error {
	if c.loadErr != nil {
		return c.loadErr
	}
	sec := doc.NewSection()
	if err := doc.AppendChild(doc.Root(), sec); err != nil {
		return err
	}
	sc := bufio.NewScanner(r)
	sc.Scan()
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "font:"); ok {
			p := doc.NewParagraph("")
			_ = doc.AppendChild(p, doc.NewRun(name, dom.Formatting{Font: name}))
			_ = doc.AppendChild(doc.Body(sec), p)
			continue
		}
		if _, err := doc.AppendParagraph(doc.Body(sec), line); err != nil {
			return err
		}
	}
	return nil
}

func (c *lineCodec) Save(w io.Writer, doc *dom.Document, opts *SaveOptions) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	if c.part {
		if err := opts.EmitPart("extra.bin", []byte("x")); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "LINES")
	for _, p := range doc.ChildNodes(doc.Root(), dom.NodeParagraph, true) {
		fmt.Fprintln(w, doc.ParagraphText(p))
	}
	return nil
}

// detectOnly recognises a magic string but cannot load or save.
type detectOnly struct{}

func (detectOnly) Descriptor() FormatDescriptor {
	return FormatDescriptor{Name: "magic", Extensions: []string{".magic"}, ContentType: "application/x-magic"}
}

func (detectOnly) Detect(head []byte) DetectResult {
	return DetectResult{Detected: bytes.HasPrefix(head, []byte("MAGIC")), Confidence: 100}
}

func (detectOnly) Load(io.Reader, *dom.Document, *LoadOptions) error {
	return errors.NewUnsupported("load", "magic")
}

func (detectOnly) Save(io.Writer, *dom.Document, *SaveOptions) error {
	return errors.NewUnsupported("save", "magic")
}

func register(t *testing.T, cs ...Codec) {
	t.Helper()
	for _, c := range cs {
		Register(c)
		name := c.Descriptor().Name
		t.Cleanup(func() { Unregister(name) })
	}
}

func TestRegistry(t *testing.T) {
	register(t, &lineCodec{name: "zlines"}, &lineCodec{name: "alines"})

	if _, ok := Get("ALINES"); !ok {
		t.Error("Get() is not case-insensitive")
	}
	if c, ok := ByExtension("/tmp/x.ZLINES"); !ok || c.Descriptor().Name != "zlines" {
		t.Errorf("ByExtension() = %v, %v", c, ok)
	}
	if _, ok := ByExtension("noext"); ok {
		t.Error("ByExtension() matched a path without extension")
	}
	var names []string
	for _, d := range Descriptors() {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "alines,zlines" {
		t.Errorf("Descriptors() = %v", names)
	}
}

func TestDetectFormat(t *testing.T) {
	register(t, &lineCodec{name: "low", confidence: 10}, &lineCodec{name: "high", confidence: 50}, detectOnly{})

	tests := []struct {
		input string
		want  string
	}{
		{"LINES\nabc\n", "high"},
		{"MAGIC...", "magic"},
		{"nothing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			info, err := DetectFormat(strings.NewReader(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if info.Format != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", info.Format, tt.want)
			}
		})
	}
}

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name      string
		head      []byte
		want      string
		bom       int
		ambiguous bool
	}{
		{"utf8 bom", []byte("\xEF\xBB\xBFhi"), "utf-8", 3, false},
		{"utf16le bom", []byte{0xFF, 0xFE, 'h', 0}, "utf-16le", 2, false},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'h'}, "utf-16be", 2, false},
		{"plain utf8", []byte("naïve"), "utf-8", 0, false},
		{"cut rune", []byte("caf\xC3"), "utf-8", 0, false},
		{"latin1", []byte("caf\xE9 au lait"), LegacyEncoding, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectEncoding(tt.head)
			if got.Name != tt.want || got.BOM != tt.bom || got.Ambiguous != tt.ambiguous {
				t.Errorf("DetectEncoding() = %+v, want %s bom=%d ambiguous=%v", got, tt.want, tt.bom, tt.ambiguous)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	got, info, err := Decode([]byte("caf\xE9"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "café" || !info.Ambiguous {
		t.Errorf("Decode() = %q, %+v", got, info)
	}
	got, _, err = Decode([]byte{0xFF, 0xFE, 'o', 0, 'k', 0}, "")
	if err != nil || got != "ok" {
		t.Errorf("Decode(utf-16le) = %q, %v", got, err)
	}
	got, _, err = Decode([]byte{0xCF, 0xF0, 0xE8}, "windows-1251")
	if err != nil || got != "При" {
		t.Errorf("Decode(windows-1251) = %q, %v", got, err)
	}
	if _, _, err := Decode([]byte("x"), "no-such-encoding"); err == nil {
		t.Error("Decode() accepted an unknown encoding")
	}
}

func TestLoad(t *testing.T) {
	register(t, &lineCodec{name: "lines"})

	var changes int
	doc, err := Load(strings.NewReader("LINES\none\ntwo\n"), &LoadOptions{
		NodeChanging: func(*dom.Document, dom.NodeChangeArgs) { changes++ },
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := doc.GetText(doc.Root()); got != "one\rtwo\f" {
		t.Errorf("GetText() = %q", got)
	}
	if doc.OriginalLoadFormat != "lines" {
		t.Errorf("OriginalLoadFormat = %q", doc.OriginalLoadFormat)
	}
	if changes == 0 {
		t.Error("node-changing callback never ran")
	}
	before := changes
	doc.AppendParagraph(doc.Body(doc.FirstSection()), "three")
	if changes != before {
		t.Error("node-changing callback still installed after load")
	}
}

func TestLoadErrors(t *testing.T) {
	register(t,
		&lineCodec{name: "broken", loadErr: fmt.Errorf("bad line")},
		&lineCodec{name: "locked", confidence: 100, encrypted: true},
	)
	tests := []struct {
		name  string
		input string
		opts  *LoadOptions
		kind  errors.LoadErrorKind
	}{
		{"unknown override", "x", &LoadOptions{Format: "nope"}, errors.UnsupportedFormat},
		{"undetected", "????", nil, errors.UnsupportedFormat},
		{"codec failure", "LINES\n", &LoadOptions{Format: "broken"}, errors.Corrupted},
		{"encrypted", "LINES\n", nil, errors.WrongPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input), tt.opts)
			if !errors.IsLoadKind(err, tt.kind) {
				t.Errorf("Load() error = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestLoadDetectOnly(t *testing.T) {
	register(t, detectOnly{})
	_, err := Load(strings.NewReader("MAGIC"), nil)
	if !errors.IsLoadKind(err, errors.UnsupportedFormat) {
		t.Errorf("Load() error = %v, want unsupported format", err)
	}
}

func TestLoadFileAndFonts(t *testing.T) {
	register(t, &lineCodec{name: "lines"})
	path := filepath.Join(t.TempDir(), "in.lines")
	if err := os.WriteFile(path, []byte("LINES\nfont:Nowhere Sans\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var warnings WarningCollector
	doc, err := LoadFile(path, &LoadOptions{
		Warnings: &warnings,
		Fonts:    &fonts.Settings{DefaultFontName: "Arial", Available: []string{"Arial"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if doc.OriginalFileName != path {
		t.Errorf("OriginalFileName = %q", doc.OriginalFileName)
	}
	if !warnings.Has(FontSubstitution) {
		t.Errorf("warnings = %v, want font substitution", warnings.All())
	}
	run := doc.ChildNodes(doc.Root(), dom.NodeRun, true)[0]
	if got := doc.Format(run).Font; got != "Arial" {
		t.Errorf("font = %q, want Arial", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.lines"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) error = %v", err)
	}
}

func TestSave(t *testing.T) {
	register(t,
		&lineCodec{name: "lines"},
		&lineCodec{name: "failing", saveErr: fmt.Errorf("disk full")},
		&lineCodec{name: "parted", part: true},
		detectOnly{},
	)
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_ = b.Writeln("alpha")
	_, _ = b.Write("beta")

	var buf bytes.Buffer
	meta, err := Save(doc, &buf, "lines", nil)
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "LINES\nalpha\nbeta\n" {
		t.Errorf("output = %q", buf.String())
	}
	if meta.BytesWritten != int64(buf.Len()) || meta.ContentType != "text/x-lines" {
		t.Errorf("metadata = %+v", meta)
	}

	var second bytes.Buffer
	_, _ = Save(doc, &second, "lines", nil)
	if !bytes.Equal(buf.Bytes(), second.Bytes()) {
		t.Error("two saves differ")
	}

	parts := map[string][]byte{}
	meta, err = Save(doc, io.Discard, "parted", &SaveOptions{PartSaving: func(name string, data []byte) error {
		parts[name] = data
		return nil
	}})
	if err != nil || len(meta.Parts) != 1 || string(parts["extra.bin"]) != "x" {
		t.Errorf("Save(parted) = %+v, %v, parts %v", meta, err, parts)
	}
	if _, err := Save(doc, io.Discard, "parted", nil); !errors.IsSaveKind(err, errors.IOFailure) {
		t.Errorf("Save(parted) without destination error = %v", err)
	}

	tests := []struct {
		format string
		kind   errors.SaveErrorKind
	}{
		{"nope", errors.UnsupportedTargetFormat},
		{"magic", errors.UnsupportedTargetFormat},
		{"failing", errors.IOFailure},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := Save(doc, io.Discard, tt.format, nil)
			if !errors.IsSaveKind(err, tt.kind) {
				t.Errorf("Save() error = %v, want %v", err, tt.kind)
			}
		})
	}
	if _, err := Save(doc, io.Discard, "magic", nil); err == nil || !strings.Contains(err.Error(), "application/x-magic") {
		t.Errorf("Save(magic) error = %v, want content type in message", err)
	}
}

func TestSaveFile(t *testing.T) {
	register(t, &lineCodec{name: "lines"})
	doc := dom.New()
	_, _ = dom.NewBuilder(doc).Write("hi")
	dir := t.TempDir()

	path := filepath.Join(dir, "out.lines")
	if _, err := SaveFile(doc, path, "", nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "LINES\nhi\n" {
		t.Errorf("file = %q", data)
	}
	if _, err := SaveFile(doc, filepath.Join(dir, "out.unknown"), "", nil); !errors.IsSaveKind(err, errors.UnsupportedTargetFormat) {
		t.Errorf("SaveFile(unknown ext) error = %v", err)
	}
}

func TestResource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pic.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	var w WarningCollector
	opts := &LoadOptions{BaseURI: dir, Warnings: &w}
	data, ok, err := opts.Resource("test", ResourceImage, "pic.png")
	if err != nil || !ok || string(data) != "png" {
		t.Errorf("Resource(local) = %q, %v, %v", data, ok, err)
	}
	_, ok, err = opts.Resource("test", ResourceImage, "gone.png")
	if err != nil || ok || w.Len() != 1 {
		t.Errorf("Resource(missing) ok=%v err=%v warnings=%d", ok, err, w.Len())
	}
	_, ok, _ = opts.Resource("test", ResourceImage, "http://example.com/a.png")
	if ok || w.Len() != 2 {
		t.Errorf("Resource(http) ok=%v warnings=%d", ok, w.Len())
	}

	var seen ResourceRequest
	opts.ResourceLoading = func(r ResourceRequest) (ResourceAction, []byte, error) {
		seen = r
		switch r.OriginalURI {
		case "skip.png":
			return ResourceSkip, nil, nil
		case "fail.png":
			return ResourceDefault, nil, fmt.Errorf("denied")
		}
		return ResourceUserProvided, []byte("mine"), nil
	}
	data, ok, _ = opts.Resource("test", ResourceImage, "http://example.com/a.png")
	if !ok || string(data) != "mine" || seen.URI != "http://example.com/a.png" {
		t.Errorf("Resource(provided) = %q, %v, %+v", data, ok, seen)
	}
	_, ok, _ = opts.Resource("test", ResourceImage, "skip.png")
	if ok || w.Len() != 3 {
		t.Errorf("Resource(skip) ok=%v warnings=%d", ok, w.Len())
	}
	_, _, err = opts.Resource("test", ResourceImage, "fail.png")
	if !errors.IsLoadKind(err, errors.UnresolvedResource) {
		t.Errorf("Resource(fail) error = %v", err)
	}
}

func TestToString(t *testing.T) {
	register(t, &lineCodec{name: "lines"})
	doc := dom.New()
	b := dom.NewBuilder(doc)
	_ = b.Writeln("first")
	_, _ = b.InsertField("PAGE", "7")

	got, err := ToString(doc, doc.Root(), "txt")
	if err != nil || got != "first\r\n7\r\n" {
		t.Errorf("ToString(txt) = %q, %v", got, err)
	}
	p := doc.ChildNodes(doc.Root(), dom.NodeParagraph, true)[0]
	got, err = ToString(doc, p, "lines")
	if err != nil || got != "LINES\nfirst\n" {
		t.Errorf("ToString(paragraph) = %q, %v", got, err)
	}
	run := doc.ChildNodes(doc.Root(), dom.NodeRun, true)[0]
	got, err = ToString(doc, run, "lines")
	if err != nil || got != "LINES\nfirst\n" {
		t.Errorf("ToString(run) = %q, %v", got, err)
	}
}

func TestSaveOptionsTimestamp(t *testing.T) {
	doc := dom.New()
	if got := (&SaveOptions{}).Timestamp(doc); !got.Equal(epoch) {
		t.Errorf("Timestamp() = %v, want epoch", got)
	}
	doc.Props.LastSaved = epoch.AddDate(40, 0, 0)
	if got := (*SaveOptions)(nil).Timestamp(doc); !got.Equal(doc.Props.LastSaved) {
		t.Errorf("Timestamp() = %v", got)
	}
}

func TestEmitPart(t *testing.T) {
	dir := t.TempDir()
	opts := &SaveOptions{ImagesFolder: filepath.Join(dir, "media")}
	if err := opts.EmitPart("img/a.png", []byte("png")); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(filepath.Join(dir, "media", "img", "a.png")); err != nil || string(data) != "png" {
		t.Errorf("part file = %q, %v", data, err)
	}
	for _, name := range []string{"../escape.png", "/abs.png", ""} {
		if err := opts.EmitPart(name, nil); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("EmitPart(%q) error = %v, want ErrInvalidInput", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.png")); err == nil {
		t.Error("part written outside the folder")
	}
	if len(opts.parts) != 1 || opts.parts[0] != "img/a.png" {
		t.Errorf("parts = %v", opts.parts)
	}
}
