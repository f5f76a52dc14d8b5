package codec

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// LegacyEncoding is assumed for text that is not valid UTF-8.
const LegacyEncoding = "windows-1252"

// EncodingInfo is the outcome of text encoding detection.
type EncodingInfo struct {
	// Name is the WHATWG encoding label, e.g. "utf-8".
	Name string
	// BOM is the length of the byte order mark, if any.
	BOM int
	// Ambiguous is set when the legacy fallback was used.
	Ambiguous bool
}

var boms = []struct {
	mark []byte
	name string
}{
	{[]byte{0xEF, 0xBB, 0xBF}, "utf-8"},
	{[]byte{0xFF, 0xFE}, "utf-16le"},
	{[]byte{0xFE, 0xFF}, "utf-16be"},
}

// DetectEncoding guesses the encoding of text from its head: byte order
// mark first, then UTF-8 validity, then the legacy code page.
func DetectEncoding(head []byte) EncodingInfo {
	for _, b := range boms {
		if bytes.HasPrefix(head, b.mark) {
			return EncodingInfo{Name: b.name, BOM: len(b.mark)}
		}
	}
	if utf8.Valid(trimPartialRune(head)) {
		return EncodingInfo{Name: "utf-8"}
	}
	return EncodingInfo{Name: LegacyEncoding, Ambiguous: true}
}

// trimPartialRune drops a rune cut off by the end of a bounded read.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

// LookupEncoding returns the decoder for a WHATWG label.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch name {
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	}
	return htmlindex.Get(name)
}

// Decode converts data to UTF-8. An empty name detects the encoding.
func Decode(data []byte, name string) (string, EncodingInfo, error) {
	info := EncodingInfo{Name: name}
	if name == "" {
		info = DetectEncoding(data)
	} else {
		for _, b := range boms {
			if b.name == name && bytes.HasPrefix(data, b.mark) {
				info.BOM = len(b.mark)
			}
		}
	}
	data = data[info.BOM:]
	if info.Name == "utf-8" {
		return string(data), info, nil
	}
	enc, err := LookupEncoding(info.Name)
	if err != nil {
		return "", info, err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", info, err
	}
	return string(out), info, nil
}
