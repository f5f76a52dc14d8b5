package codec

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/core/fonts"
	"github.com/FocuswithJustin/folio/internal/logging"
	"github.com/FocuswithJustin/folio/internal/validation"
)

// HeadSize bounds how much of an input DetectFormat inspects.
const HeadSize = 8 << 10

// FileFormatInfo is the outcome of DetectFormat.
type FileFormatInfo struct {
	// Format is the detected codec name, empty when nothing matched.
	Format      string
	Descriptor  FormatDescriptor
	IsEncrypted bool
	// Encoding is set for text-based formats.
	Encoding EncodingInfo
	Reason   string
}

// DetectFormat inspects at most HeadSize bytes of r.
func DetectFormat(r io.Reader) (FileFormatInfo, error) {
	head, err := io.ReadAll(io.LimitReader(r, HeadSize))
	if err != nil {
		return FileFormatInfo{}, errors.NewIO("read", "", err)
	}
	return detectHead(head), nil
}

func detectHead(head []byte) FileFormatInfo {
	var (
		best   Codec
		result DetectResult
	)
	for _, c := range List() {
		res := c.Detect(head)
		if res.Detected && (best == nil || res.Confidence > result.Confidence) {
			best, result = c, res
		}
	}
	if best == nil {
		return FileFormatInfo{}
	}
	d := best.Descriptor()
	info := FileFormatInfo{
		Format:      d.Name,
		Descriptor:  d,
		IsEncrypted: result.Encrypted,
		Reason:      result.Reason,
	}
	if d.Capabilities.EncodingDetection {
		info.Encoding = DetectEncoding(head)
	}
	return info
}

// Load reads a document from r. The whole input is buffered so codecs
// can seek within container formats.
func Load(r io.Reader, opts *LoadOptions) (*dom.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewLoad(errors.Corrupted, "", errors.NewIO("read", "", err))
	}
	return loadBytes(data, "", opts)
}

// LoadFile reads the document at path. When detection fails the file
// extension picks the codec.
func LoadFile(path string, opts *LoadOptions) (*dom.Document, error) {
	if fi, err := os.Stat(path); err == nil {
		if err := validation.CheckSize(path, fi.Size()); err != nil {
			return nil, errors.NewLoad(errors.Corrupted, "", err)
		}
	}
	data, err := readFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	o := LoadOptions{}
	if opts != nil {
		o = *opts
	}
	if o.BaseURI == "" {
		o.BaseURI = filepath.Dir(path)
	}
	doc, err := loadBytes(data, path, &o)
	if err != nil {
		return nil, err
	}
	doc.OriginalFileName = path
	return doc, nil
}

func loadBytes(data []byte, path string, opts *LoadOptions) (*dom.Document, error) {
	start := time.Now()
	if opts == nil {
		opts = &LoadOptions{}
	}
	if err := opts.Err(); err != nil {
		return nil, err
	}

	c, err := pick(data, path, opts.Format)
	if err != nil {
		return nil, err
	}
	name := c.Descriptor().Name

	doc := dom.NewEmpty()
	if opts.NodeChanging != nil {
		doc.SetNodeChangingCallback(opts.NodeChanging)
		defer doc.SetNodeChangingCallback(nil)
	}
	if err := c.Load(bytes.NewReader(data), doc, opts); err != nil {
		logging.CodecError(name, "load", err)
		var le *errors.LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		if errors.Is(err, errors.ErrUnsupported) {
			return nil, errors.NewLoad(errors.UnsupportedFormat, name, err)
		}
		return nil, errors.NewLoad(errors.Corrupted, name, err)
	}
	if opts.Fonts != nil {
		fonts.ApplySubstitution(doc, opts.Fonts, fontWarner{sink: opts.Warnings})
	}
	doc.OriginalLoadFormat = name
	logging.CodecLoad(name, int64(len(data)), time.Since(start), "document_id", doc.ID)
	return doc, nil
}

func pick(data []byte, path, format string) (Codec, error) {
	if format != "" {
		c, ok := Get(format)
		if !ok {
			return nil, errors.NewLoad(errors.UnsupportedFormat, format, nil)
		}
		return c, nil
	}
	head := data
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	info := detectHead(head)
	if info.Format == "" || info.Format == "txt" {
		// Plain text matches almost anything; an extension is a stronger hint.
		if c, ok := ByExtension(path); ok {
			return c, nil
		}
	}
	if info.Format == "" {
		return nil, errors.NewLoad(errors.UnsupportedFormat, "", nil)
	}
	c, _ := Get(info.Format)
	if !c.Descriptor().CanLoad {
		return nil, errors.NewLoad(errors.UnsupportedFormat, info.Format,
			errors.NewUnsupported("load", c.Descriptor().ContentType+" can only be detected"))
	}
	if info.IsEncrypted && !c.Descriptor().Capabilities.Encryption {
		return nil, errors.NewLoad(errors.WrongPassword, info.Format, nil)
	}
	return c, nil
}
