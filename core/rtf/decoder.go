package rtf

import (
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Decoder converts text items and character escapes to UTF-8. UC is the
// current \uc value; the caller saves and restores it around groups.
type Decoder struct {
	UC   int
	enc  encoding.Encoding
	skip int
	high uint16
	// bytes holds consecutive hex escapes until they are decoded together.
	bytes []byte
}

// NewDecoder returns a decoder for the document code page.
func (d *Document) NewDecoder() *Decoder {
	return NewDecoder(d.CodePage)
}

// NewDecoder returns a decoder for a Windows code page. Unknown pages fall
// back to 1252.
func NewDecoder(codePage int) *Decoder {
	var enc encoding.Encoding = charmap.Windows1252
	if codePage != 1252 && codePage > 0 {
		if e, err := htmlindex.Get("windows-" + strconv.Itoa(codePage)); err == nil {
			enc = e
		} else if codePage == 65001 {
			enc = encoding.Nop
		}
	}
	return &Decoder{UC: 1, enc: enc}
}

// Text decodes a literal text item.
func (d *Decoder) Text(s string) string {
	if d.skip > 0 {
		n := min(d.skip, len(s))
		d.skip -= n
		s = s[n:]
	}
	if s == "" {
		return ""
	}
	d.high = 0
	out, err := d.enc.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return out
}

// Word decodes the character escapes among control words and returns ""
// for everything else.
func (d *Decoder) Word(cw ControlWord) string {
	switch cw.Word {
	case "'":
		if d.skip > 0 {
			d.skip--
			return ""
		}
		return d.Hex(byte(cw.Param))
	case "u":
		d.skip = d.UC
		return d.Unicode(cw.Param)
	case "uc":
		d.UC = max(cw.Param, 0)
	case "\\", "{", "}":
		return d.literal(cw.Word)
	case "~":
		return d.literal(" ")
	case "_":
		return d.literal("‑")
	case "emdash":
		return d.literal("—")
	case "endash":
		return d.literal("–")
	case "bullet":
		return d.literal("•")
	case "lquote":
		return d.literal("‘")
	case "rquote":
		return d.literal("’")
	case "ldblquote":
		return d.literal("“")
	case "rdblquote":
		return d.literal("”")
	}
	return ""
}

func (d *Decoder) literal(s string) string {
	d.skip = 0
	d.high = 0
	return s
}

// Hex decodes one byte of a \'hh escape. Bytes of a multi-byte character
// are held until the character is complete.
func (d *Decoder) Hex(b byte) string {
	d.high = 0
	if _, single := d.enc.(*charmap.Charmap); single {
		out, _ := d.enc.NewDecoder().Bytes([]byte{b})
		return string(out)
	}
	d.bytes = append(d.bytes, b)
	if d.enc == encoding.Nop {
		if !utf8.FullRune(d.bytes) {
			return ""
		}
	} else if d.bytes[0] >= 0x80 && len(d.bytes) < 2 {
		return ""
	}
	out, err := d.enc.NewDecoder().Bytes(d.bytes)
	d.bytes = d.bytes[:0]
	if err != nil {
		return "\uFFFD"
	}
	return string(out)
}

// Unicode decodes the parameter of \uN, which is a signed UTF-16 unit.
func (d *Decoder) Unicode(n int) string {
	u := uint16(int16(n))
	switch {
	case utf16.IsSurrogate(rune(u)) && u < 0xdc00:
		d.high = u
		return ""
	case utf16.IsSurrogate(rune(u)) && d.high != 0:
		r := utf16.DecodeRune(rune(d.high), rune(u))
		d.high = 0
		return string(r)
	}
	d.high = 0
	return string(rune(u))
}
