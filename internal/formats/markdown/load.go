package markdown

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/FocuswithJustin/folio/core/codec"
	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/formats/base"
)

// CodeFont is applied to code spans and fenced code.
const CodeFont = "Courier New"

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	bulletRe    = regexp.MustCompile(`^[-+*][ \t]+(.*)$`)
	orderedRe   = regexp.MustCompile(`^[0-9]{1,9}[.)][ \t]+(.*)$`)
	ruleRe      = regexp.MustCompile(`^(?:(?:\*[ \t]*){3,}|(?:-[ \t]*){3,}|(?:_[ \t]*){3,})$`)
	separatorRe = regexp.MustCompile(`^\|?[ \t]*:?-+:?[ \t]*(?:\|[ \t]*:?-+:?[ \t]*)*\|?[ \t]*$`)
	sectionRe   = regexp.MustCompile(`^<!--section ([a-z_]+)-->$`)
	entityRe    = regexp.MustCompile(`^&(?:#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6}|[A-Za-z][A-Za-z0-9]{1,31});`)
)

type listRef struct {
	id      int
	ordered bool
}

type reader struct {
	doc  *dom.Document
	opts *codec.LoadOptions

	story dom.NodeID
	in    *inline
	lists []listRef
	fence string
}

func load(r io.Reader, doc *dom.Document, opts *codec.LoadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.NewIO("read", "markdown", err)
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
		opts.Warn("markdown", codec.AmbiguousEncoding, "input is not UTF-8, decoded as "+info.Name)
	}
	body := []byte(text)
	if header, rest, ok := splitFrontMatter(body); ok {
		if err := readFrontMatter(header, doc); err != nil {
			return err
		}
		body = rest
	}
	rd := &reader{doc: doc, opts: opts}
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		if err := opts.Err(); err != nil {
			return err
		}
		n, err := rd.line(lines, i)
		if err != nil {
			return err
		}
		i += n
	}
	rd.closeParagraph()
	if rd.story == dom.NoNode {
		if err := rd.section(dom.SectionContinuous); err != nil {
			return err
		}
	}
	doc.EnsureMinimum()
	return nil
}

func (r *reader) section(start dom.SectionStart) error {
	sec, body, err := base.NewSection(r.doc)
	if err != nil {
		return err
	}
	a := r.doc.Attrs(sec)
	a.SectionStart = start
	if err := r.doc.SetAttrs(sec, a); err != nil {
		return err
	}
	r.story = body
	r.lists = nil
	return nil
}

// paragraph closes the open paragraph and starts a new one formatted f.
func (r *reader) paragraph(f dom.Formatting) (*inline, error) {
	r.closeParagraph()
	if r.story == dom.NoNode {
		if err := r.section(dom.SectionContinuous); err != nil {
			return nil, err
		}
	}
	p, err := r.doc.AppendParagraph(r.story, "")
	if err != nil {
		return nil, err
	}
	if err := r.doc.SetFormat(p, f); err != nil {
		return nil, err
	}
	r.in = &inline{r: r, para: p}
	return r.in, nil
}

func (r *reader) closeParagraph() {
	if r.in != nil {
		_ = r.in.flush()
		r.in = nil
	}
}

func (r *reader) ensureStyle(name string) {
	if _, ok := r.doc.Styles().Get(name); ok {
		return
	}
	f := dom.Formatting{}
	if strings.HasPrefix(name, "Heading ") {
		f.Bold = true
	}
	_ = r.doc.Styles().Add(dom.Style{Name: name, Type: dom.StyleParagraph, BasedOn: "Normal", Format: f})
}

// line consumes lines[i] and returns how many following lines it also used.
func (r *reader) line(lines []string, i int) (int, error) {
	raw := strings.TrimRight(lines[i], "\r")
	trimmed := strings.TrimLeft(raw, " \t")
	indent := indentWidth(raw[:len(raw)-len(trimmed)])

	if r.fence != "" {
		if strings.HasPrefix(trimmed, r.fence) {
			r.fence = ""
			return 0, nil
		}
		in, err := r.paragraph(dom.Formatting{})
		if err != nil {
			return 0, err
		}
		err = base.AppendText(r.doc, in.para, raw, dom.Formatting{Font: CodeFont})
		r.closeParagraph()
		return 0, err
	}

	switch {
	case trimmed == "":
		r.closeParagraph()
		return 0, nil
	case sectionRe.MatchString(trimmed):
		r.closeParagraph()
		start := dom.SectionStart(sectionRe.FindStringSubmatch(trimmed)[1])
		switch start {
		case dom.SectionContinuous, dom.SectionNewPage, dom.SectionNewColumn:
		default:
			start = dom.SectionContinuous
		}
		return 0, r.section(start)
	case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
		r.closeParagraph()
		r.fence = trimmed[:3]
		r.lists = nil
		return 0, nil
	case ruleRe.MatchString(trimmed):
		r.closeParagraph()
		return 0, nil
	}

	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		name := "Heading " + strconv.Itoa(len(m[1]))
		r.ensureStyle(name)
		r.lists = nil
		in, err := r.paragraph(dom.Formatting{Style: name})
		if err != nil {
			return 0, err
		}
		if err := in.line(m[2]); err != nil {
			return 0, err
		}
		if !in.hard {
			r.closeParagraph()
		}
		return 0, nil
	}

	if strings.HasPrefix(trimmed, "|") && i+1 < len(lines) && separatorRe.MatchString(strings.TrimSpace(lines[i+1])) {
		r.closeParagraph()
		r.lists = nil
		return r.table(lines, i)
	}

	if rest, ok := strings.CutPrefix(trimmed, ">"); ok {
		rest = strings.TrimPrefix(rest, " ")
		if r.in == nil || r.doc.Format(r.in.para).Style != "Quote" {
			r.ensureStyle("Quote")
			r.lists = nil
			if _, err := r.paragraph(dom.Formatting{Style: "Quote"}); err != nil {
				return 0, err
			}
		} else if strings.TrimSpace(rest) == "" {
			r.closeParagraph()
			return 0, nil
		}
		return 0, r.in.continueWith(rest)
	}

	if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
		return 0, r.listItem(indent, false, m[1])
	}
	if m := orderedRe.FindStringSubmatch(trimmed); m != nil {
		return 0, r.listItem(indent, true, m[1])
	}

	if r.in == nil {
		r.lists = nil
		if _, err := r.paragraph(dom.Formatting{}); err != nil {
			return 0, err
		}
	}
	return 0, r.in.continueWith(trimmed)
}

func indentWidth(ws string) int {
	n := 0
	for _, c := range ws {
		if c == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return n
}

func (r *reader) listItem(indent int, ordered bool, content string) error {
	level := indent / 2
	if level > 8 {
		level = 8
	}
	if level < len(r.lists) {
		r.lists = r.lists[:level+1]
		if r.lists[level].ordered != ordered {
			r.lists = r.lists[:level]
		}
	}
	for len(r.lists) <= level {
		var id int
		if ordered {
			id = r.doc.Lists().AddNumbered()
		} else {
			id = r.doc.Lists().AddBullet()
		}
		r.lists = append(r.lists, listRef{id: id, ordered: ordered})
	}
	level = len(r.lists) - 1
	in, err := r.paragraph(dom.Formatting{ListID: r.lists[level].id, ListLevel: level})
	if err != nil {
		return err
	}
	return in.line(content)
}

// table reads a pipe table starting at lines[i] and returns the number of
// extra lines consumed.
func (r *reader) table(lines []string, i int) (int, error) {
	if r.story == dom.NoNode {
		if err := r.section(dom.SectionContinuous); err != nil {
			return 0, err
		}
	}
	tbl, err := r.doc.NewNode(dom.NodeTable)
	if err != nil {
		return 0, err
	}
	if err := r.doc.AppendChild(r.story, tbl); err != nil {
		return 0, err
	}
	story := r.story
	defer func() { r.story = story }()

	used := 0
	for j := i; j < len(lines); j++ {
		line := strings.TrimSpace(lines[j])
		if j == i+1 {
			used++
			continue
		}
		if !strings.HasPrefix(line, "|") {
			break
		}
		if j > i {
			used++
		}
		row, err := r.doc.NewNode(dom.NodeRow)
		if err != nil {
			return 0, err
		}
		if err := r.doc.AppendChild(tbl, row); err != nil {
			return 0, err
		}
		for _, text := range splitRow(line) {
			cell, err := r.doc.NewNode(dom.NodeCell)
			if err != nil {
				return 0, err
			}
			if err := r.doc.AppendChild(row, cell); err != nil {
				return 0, err
			}
			r.story = cell
			for _, part := range strings.Split(strings.TrimSpace(text), "<!--p-->") {
				in, err := r.paragraph(dom.Formatting{})
				if err != nil {
					return 0, err
				}
				if err := in.line(part); err != nil {
					return 0, err
				}
				r.closeParagraph()
			}
		}
	}
	return used, nil
}

// splitRow splits a table row on unescaped pipes, dropping the outer ones.
func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}
	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line):
			cur.WriteByte(line[i])
			cur.WriteByte(line[i+1])
			i++
		case line[i] == '|':
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(cells, cur.String())
}

type mark struct {
	delim string
	apply func(*dom.Formatting)
}

var (
	boldMark   = func(f *dom.Formatting) { f.Bold = true }
	italicMark = func(f *dom.Formatting) { f.Italic = true }
	strikeMark = func(f *dom.Formatting) { f.Strike = true }
)

// inline parses the content lines of one paragraph. Emphasis stays open
// across hard and soft line breaks.
type inline struct {
	r     *reader
	para  dom.NodeID
	stack []mark
	text  strings.Builder
	code  bool
	hard  bool
	lines int
}

func (in *inline) format() dom.Formatting {
	var f dom.Formatting
	for _, m := range in.stack {
		m.apply(&f)
	}
	if in.code {
		f.Font = CodeFont
	}
	return f
}

func (in *inline) flush() error {
	if in.text.Len() == 0 {
		return nil
	}
	err := in.r.doc.AppendChild(in.para, in.r.doc.NewRun(in.text.String(), in.format()))
	in.text.Reset()
	return err
}

func (in *inline) appendNode(id dom.NodeID) error {
	if err := in.flush(); err != nil {
		return err
	}
	return in.r.doc.AppendChild(in.para, id)
}

// continueWith adds a further source line, joined by a space unless the
// previous line ended in a hard break.
func (in *inline) continueWith(s string) error {
	if in.lines > 0 && !in.hard {
		in.text.WriteByte(' ')
	}
	return in.line(s)
}

func (in *inline) line(s string) error {
	in.lines++
	in.hard = false
	trailing := len(s) - len(strings.TrimRight(s, `\`))
	if trailing%2 == 1 {
		s = s[:len(s)-1]
		in.hard = true
	}
	if err := in.parse(s); err != nil {
		return err
	}
	if in.hard {
		return in.appendNode(in.r.doc.NewBreak(dom.BreakLine))
	}
	return nil
}

func isPunct(c byte) bool {
	return c < 0x80 && strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (in *inline) parse(s string) error {
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && isPunct(s[i+1]):
			in.text.WriteByte(s[i+1])
			i += 2
		case c == '&':
			if m := entityRe.FindString(s[i:]); m != "" {
				in.text.WriteString(nethtml.UnescapeString(m))
				i += len(m)
			} else {
				in.text.WriteByte(c)
				i++
			}
		case c == '`':
			n := run(s, i, '`')
			end := strings.Index(s[i+n:], strings.Repeat("`", n))
			if end < 0 {
				in.text.WriteString(s[i : i+n])
				i += n
				continue
			}
			if err := in.flush(); err != nil {
				return err
			}
			in.code = true
			in.text.WriteString(s[i+n : i+n+end])
			err := in.flush()
			in.code = false
			if err != nil {
				return err
			}
			i += 2*n + end
		case c == '*' || c == '_':
			n := run(s, i, c)
			if c == '_' && i > 0 && i+n < len(s) && isAlnum(s[i-1]) && isAlnum(s[i+n]) {
				in.text.WriteString(s[i : i+n])
				i += n
				continue
			}
			if err := in.emphasis(c, n); err != nil {
				return err
			}
			i += n
		case c == '~' && strings.HasPrefix(s[i:], "~~"):
			if err := in.flush(); err != nil {
				return err
			}
			if len(in.stack) > 0 && in.stack[len(in.stack)-1].delim == "~~" {
				in.stack = in.stack[:len(in.stack)-1]
			} else {
				in.stack = append(in.stack, mark{"~~", strikeMark})
			}
			i += 2
		case c == '!' && strings.HasPrefix(s[i:], "!["):
			n, err := in.image(s[i:])
			if err != nil {
				return err
			}
			if n == 0 {
				in.text.WriteByte(c)
				n = 1
			}
			i += n
		case c == '[':
			text, _, n := link(s[i:])
			if n == 0 {
				in.text.WriteByte(c)
				i++
				continue
			}
			if err := in.parse(text); err != nil {
				return err
			}
			i += n
		case c == '<':
			n, err := in.tag(s[i:])
			if err != nil {
				return err
			}
			if n == 0 {
				in.text.WriteByte(c)
				n = 1
			}
			i += n
		default:
			in.text.WriteByte(c)
			i++
		}
	}
	return nil
}

func run(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

// emphasis closes matching markers from the top of the stack, then opens
// bold before italic with what remains of the delimiter run.
func (in *inline) emphasis(c byte, n int) error {
	if err := in.flush(); err != nil {
		return err
	}
	bold, italic := strings.Repeat(string(c), 2), string(c)
	for n > 0 && len(in.stack) > 0 {
		top := in.stack[len(in.stack)-1]
		if top.delim != bold && top.delim != italic || len(top.delim) > n {
			break
		}
		in.stack = in.stack[:len(in.stack)-1]
		n -= len(top.delim)
	}
	if n >= 2 {
		in.stack = append(in.stack, mark{bold, boldMark})
		n -= 2
	}
	if n >= 1 {
		in.stack = append(in.stack, mark{italic, italicMark})
		n--
	}
	in.text.WriteString(strings.Repeat(string(c), n))
	return nil
}

// link splits "[text](target)" and returns its length, or 0 when s does
// not start with a complete link.
func link(s string) (text, target string, n int) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				if i+1 >= len(s) || s[i+1] != '(' {
					return "", "", 0
				}
				end := strings.IndexByte(s[i+2:], ')')
				if end < 0 {
					return "", "", 0
				}
				return s[1:i], strings.TrimSpace(s[i+2 : i+2+end]), i + 3 + end
			}
		}
	}
	return "", "", 0
}

func (in *inline) image(s string) (int, error) {
	alt, src, n := link(s[1:])
	if n == 0 {
		return 0, nil
	}
	n++
	var width, height float64
	if strings.HasPrefix(s[n:], "{") {
		if end := strings.IndexByte(s[n:], '}'); end > 0 {
			for _, kv := range strings.Fields(s[n+1 : n+end]) {
				k, v, _ := strings.Cut(kv, "=")
				pt, err := strconv.ParseFloat(strings.TrimSuffix(v, "pt"), 64)
				if err != nil {
					continue
				}
				switch k {
				case "width":
					width = pt
				case "height":
					height = pt
				}
			}
			n += end + 1
		}
	}
	data, ct, ok, err := base.LoadImage(in.r.opts, "markdown", src)
	if err != nil || !ok {
		return n, err
	}
	img := in.r.doc.NewImage(ct, data, width, height)
	a := in.r.doc.Attrs(img)
	a.Alt = unescape(alt)
	if err := in.r.doc.SetAttrs(img, a); err != nil {
		return 0, err
	}
	return n, in.appendNode(img)
}

// unescape resolves backslash escapes and entities without inline markup.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && isPunct(s[i+1]):
			i++
			b.WriteByte(s[i])
		case s[i] == '&':
			if m := entityRe.FindString(s[i:]); m != "" {
				b.WriteString(nethtml.UnescapeString(m))
				i += len(m) - 1
				continue
			}
			b.WriteByte('&')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// tag handles comment markers and <br>. It returns 0 for anything else.
func (in *inline) tag(s string) (int, error) {
	doc := in.r.doc
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "<br") {
		end := strings.IndexByte(s, '>')
		if end < 0 || strings.Trim(lower[3:end], " /") != "" {
			return 0, nil
		}
		return end + 1, in.appendNode(doc.NewBreak(dom.BreakLine))
	}
	if !strings.HasPrefix(s, "<!--") {
		return 0, nil
	}
	end := strings.Index(s, "-->")
	if end < 0 {
		return 0, nil
	}
	n := end + 3
	body := s[4:end]
	kind, arg, _ := strings.Cut(body, " ")
	switch kind {
	case "page":
		return n, in.appendNode(doc.NewBreak(dom.BreakPage))
	case "column":
		return n, in.appendNode(doc.NewBreak(dom.BreakColumn))
	case "field":
		close := strings.Index(s[n:], "<!--/field-->")
		if close < 0 {
			return n, nil
		}
		fld := doc.NewField(arg, unescape(s[n:n+close]))
		if err := in.flush(); err != nil {
			return 0, err
		}
		if err := doc.SetFormat(fld, in.format()); err != nil {
			return 0, err
		}
		return n + close + len("<!--/field-->"), in.appendNode(fld)
	case "bookmark", "/bookmark":
		t := dom.NodeBookmarkStart
		if kind == "/bookmark" {
			t = dom.NodeBookmarkEnd
		}
		m, err := doc.NewNode(t)
		if err != nil {
			return 0, err
		}
		if err := doc.SetAttrs(m, dom.Attrs{Name: arg}); err != nil {
			return 0, err
		}
		return n, in.appendNode(m)
	}
	return n, nil
}
