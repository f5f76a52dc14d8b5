package base

import (
	"bytes"
	"encoding/base64"
	"net/url"
	"path"
	"strings"

	"github.com/FocuswithJustin/folio/core/codec"
)

var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/tiff":    ".tif",
}

// ImageExt returns the file extension for an image content type.
func ImageExt(contentType string) string {
	if ext, ok := imageExtensions[contentType]; ok {
		return ext
	}
	return ".bin"
}

// ImageType returns the content type of an image from its magic bytes,
// falling back to the extension of name.
func ImageType(name string, data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case len(data) > 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	for ct, e := range imageExtensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}

// MediaName is the part name used for an image stored under hash.
func MediaName(hash, contentType string) string {
	if len(hash) > 16 {
		hash = hash[:16]
	}
	return hash + ImageExt(contentType)
}

// LoadImage returns the bytes and content type of an image reference, a
// data: URI or a resource resolved through opts. ok is false when the image
// was dropped with a warning.
func LoadImage(opts *codec.LoadOptions, source, src string) (data []byte, contentType string, ok bool, err error) {
	if rest, found := strings.CutPrefix(src, "data:"); found {
		meta, payload, _ := strings.Cut(rest, ",")
		ct, isBase64 := strings.CutSuffix(meta, ";base64")
		if isBase64 {
			data, err = base64.StdEncoding.DecodeString(payload)
		} else {
			var s string
			s, err = url.PathUnescape(payload)
			data = []byte(s)
		}
		if err != nil {
			opts.Warn(source, codec.DataLoss, "undecodable image data URI")
			return nil, "", false, nil
		}
		if ct == "" {
			ct = ImageType("", data)
		}
		return data, ct, true, nil
	}
	data, ok, err = opts.Resource(source, codec.ResourceImage, src)
	if err != nil || !ok {
		return nil, "", false, err
	}
	return data, ImageType(src, data), true, nil
}
