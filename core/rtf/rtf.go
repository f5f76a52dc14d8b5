// Package rtf parses RTF into a tree of groups and control words, decodes
// its text, and writes RTF back out.
package rtf

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Document is a parsed RTF file.
type Document struct {
	Root *Group
	// CodePage is the \ansicpg of the header, 1252 when absent.
	CodePage int
	// DefaultFont is the \deff font number.
	DefaultFont int
}

// Group is the content of one pair of braces. Items are *Group,
// ControlWord, string (literal text) or Binary.
type Group struct {
	Items []any
}

// ControlWord is a control word or control symbol. Hex escapes are the
// symbol "'" with the byte value in Param.
type ControlWord struct {
	Word     string
	Param    int
	HasParam bool
}

// Binary is the payload of a \binN word.
type Binary []byte

// Parse parses RTF data.
func Parse(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, errors.NewParse("rtf", "", "empty RTF data")
	}
	if !bytes.HasPrefix(data, []byte(`{\rtf`)) {
		return nil, errors.NewParse("rtf", "", `missing \rtf header`)
	}
	p := &parser{data: data}
	root, err := p.group(0)
	if err != nil {
		return nil, err
	}
	doc := &Document{Root: root, CodePage: 1252}
	for _, it := range root.Items {
		cw, ok := it.(ControlWord)
		if !ok {
			continue
		}
		switch cw.Word {
		case "ansicpg":
			if cw.Param > 0 {
				doc.CodePage = cw.Param
			}
		case "deff":
			doc.DefaultFont = cw.Param
		}
	}
	return doc, nil
}

// maxDepth bounds group nesting.
const maxDepth = 512

type parser struct {
	data []byte
	pos  int
}

func (p *parser) fail(msg string) error {
	return errors.NewParse("rtf", "", msg+" at offset "+strconv.Itoa(p.pos))
}

func (p *parser) group(depth int) (*Group, error) {
	if depth > maxDepth {
		return nil, p.fail("groups nested too deeply")
	}
	p.pos++ // '{'
	g := &Group{}
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case '}':
			p.pos++
			return g, nil
		case '{':
			nested, err := p.group(depth + 1)
			if err != nil {
				return nil, err
			}
			g.Items = append(g.Items, nested)
		case '\\':
			cw, err := p.controlWord()
			if err != nil {
				return nil, err
			}
			if cw.Word == "bin" && cw.HasParam {
				n := max(cw.Param, 0)
				if p.pos+n > len(p.data) {
					return nil, p.fail(`\bin runs past the end of the data`)
				}
				g.Items = append(g.Items, Binary(p.data[p.pos:p.pos+n]))
				p.pos += n
				continue
			}
			g.Items = append(g.Items, cw)
		case '\r', '\n':
			p.pos++
		default:
			if t := p.text(); t != "" {
				g.Items = append(g.Items, t)
			}
		}
	}
	return nil, p.fail("unclosed group")
}

func (p *parser) controlWord() (ControlWord, error) {
	p.pos++ // '\'
	if p.pos >= len(p.data) {
		return ControlWord{}, p.fail("unexpected end after backslash")
	}
	ch := p.data[p.pos]

	if isLetter(ch) {
		start := p.pos
		for p.pos < len(p.data) && isLetter(p.data[p.pos]) {
			p.pos++
		}
		cw := ControlWord{Word: string(p.data[start:p.pos])}
		if p.pos < len(p.data) && (p.data[p.pos] == '-' || isDigit(p.data[p.pos])) {
			numStart := p.pos
			p.pos++
			for p.pos < len(p.data) && isDigit(p.data[p.pos]) {
				p.pos++
			}
			cw.Param, _ = strconv.Atoi(string(p.data[numStart:p.pos]))
			cw.HasParam = true
		}
		if p.pos < len(p.data) && p.data[p.pos] == ' ' {
			p.pos++
		}
		return cw, nil
	}

	p.pos++
	switch ch {
	case '\'':
		if p.pos+2 > len(p.data) {
			return ControlWord{}, p.fail("truncated hex escape")
		}
		v, err := strconv.ParseUint(string(p.data[p.pos:p.pos+2]), 16, 8)
		if err != nil {
			return ControlWord{}, p.fail("bad hex escape")
		}
		p.pos += 2
		return ControlWord{Word: "'", Param: int(v), HasParam: true}, nil
	case '\r', '\n':
		return ControlWord{Word: "par"}, nil
	}
	return ControlWord{Word: string(ch)}, nil
}

func (p *parser) text() string {
	start := p.pos
	var buf []byte
	for p.pos < len(p.data) {
		ch := p.data[p.pos]
		if ch == '{' || ch == '}' || ch == '\\' {
			break
		}
		if ch == '\r' || ch == '\n' {
			if buf == nil {
				buf = append([]byte(nil), p.data[start:p.pos]...)
			}
		} else if buf != nil {
			buf = append(buf, ch)
		}
		p.pos++
	}
	if buf != nil {
		return string(buf)
	}
	return string(p.data[start:p.pos])
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Destination returns the control word that opens g, and whether the group
// is marked ignorable with \*.
func (g *Group) Destination() (word string, ignorable bool) {
	for _, it := range g.Items {
		cw, ok := it.(ControlWord)
		if !ok {
			return "", ignorable
		}
		if cw.Word == "*" {
			ignorable = true
			continue
		}
		return cw.Word, ignorable
	}
	return "", ignorable
}

// Word returns the first control word named name directly inside g.
func (g *Group) Word(name string) (ControlWord, bool) {
	for _, it := range g.Items {
		if cw, ok := it.(ControlWord); ok && cw.Word == name {
			return cw, true
		}
	}
	return ControlWord{}, false
}

// Find returns the first nested group, at any depth, whose destination is
// name.
func (g *Group) Find(name string) *Group {
	for _, it := range g.Items {
		sub, ok := it.(*Group)
		if !ok {
			continue
		}
		if d, _ := sub.Destination(); d == name {
			return sub
		}
		if found := sub.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Info holds the \info group of a document.
type Info struct {
	Title    string
	Subject  string
	Author   string
	Operator string
	Created  time.Time
	Revised  time.Time
	Version  int
}

// Info extracts the document information group.
func (d *Document) Info() Info {
	var info Info
	g := d.Root.Find("info")
	if g == nil {
		return info
	}
	for _, it := range g.Items {
		sub, ok := it.(*Group)
		if !ok {
			continue
		}
		dest, _ := sub.Destination()
		switch dest {
		case "title":
			info.Title = strings.TrimSpace(d.Text(sub))
		case "subject":
			info.Subject = strings.TrimSpace(d.Text(sub))
		case "author":
			info.Author = strings.TrimSpace(d.Text(sub))
		case "operator":
			info.Operator = strings.TrimSpace(d.Text(sub))
		case "creatim":
			info.Created = groupTime(sub)
		case "revtim":
			info.Revised = groupTime(sub)
		case "version":
			cw, _ := sub.Word("version")
			info.Version = cw.Param
		}
	}
	if cw, ok := g.Word("version"); ok {
		info.Version = cw.Param
	}
	return info
}

// groupTime reads the \yr \mo \dy \hr \min \sec words of a date group.
func groupTime(g *Group) time.Time {
	v := map[string]int{"mo": 1, "dy": 1}
	for _, it := range g.Items {
		if cw, ok := it.(ControlWord); ok && cw.HasParam {
			v[cw.Word] = cw.Param
		}
	}
	if v["yr"] == 0 {
		return time.Time{}
	}
	return time.Date(v["yr"], time.Month(v["mo"]), v["dy"], v["hr"], v["min"], v["sec"], 0, time.UTC)
}

// Text returns the decoded plain text of g and its nested groups, skipping
// ignorable destinations. Only \tab, \line and \par add control characters.
func (d *Document) Text(g *Group) string {
	var b strings.Builder
	dec := d.NewDecoder()
	var walk func(g *Group)
	walk = func(g *Group) {
		for _, it := range g.Items {
			switch v := it.(type) {
			case string:
				b.WriteString(dec.Text(v))
			case ControlWord:
				switch v.Word {
				case "tab":
					b.WriteByte('\t')
				case "line":
					b.WriteByte('\n')
				case "par":
					b.WriteByte('\n')
				default:
					b.WriteString(dec.Word(v))
				}
			case *Group:
				if _, ignorable := v.Destination(); ignorable {
					continue
				}
				uc := dec.UC
				walk(v)
				dec.UC = uc
			}
		}
	}
	walk(g)
	return b.String()
}

// DTTM packs t into the 32-bit date format of revision and annotation
// words. Seconds are dropped.
func DTTM(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	t = t.UTC()
	v := uint32(t.Minute()) | uint32(t.Hour())<<6 | uint32(t.Day())<<11 |
		uint32(t.Month())<<16 | uint32(t.Year()-1900)<<20 | uint32(t.Weekday())<<29
	return int(int32(v))
}

// ParseDTTM unpacks a DTTM value.
func ParseDTTM(n int) time.Time {
	v := uint32(int32(n))
	if v == 0 {
		return time.Time{}
	}
	return time.Date(int(v>>20&0x1ff)+1900, time.Month(v>>16&0xf), int(v>>11&0x1f),
		int(v>>6&0x1f), int(v&0x3f), 0, 0, time.UTC)
}
