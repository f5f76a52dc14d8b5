// Package compare records the differences between two documents as
// revisions on the first one.
package compare

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// Target selects whose formatting wins for text present in both documents.
type Target int

const (
	// TargetNew applies the other document's formatting and records the
	// difference as a FormatChange.
	TargetNew Target = iota
	// TargetOriginal keeps the base formatting and records nothing.
	TargetOriginal
)

// Granularity is the unit paragraphs are diffed in.
type Granularity int

const (
	WordLevel Granularity = iota
	CharLevel
)

// Options tune a comparison.
type Options struct {
	IgnoreFormatting        bool
	IgnoreCaseChanges       bool
	IgnoreComments          bool
	IgnoreTables            bool
	IgnoreFields            bool
	IgnoreFootnotes         bool
	IgnoreTextboxes         bool
	IgnoreHeadersAndFooters bool
	Target                  Target
	Granularity             Granularity
}

// Compare marks base with the revisions that turn it into other. Accepting
// all of them afterwards makes the text of base equal to the text of
// other. Both documents must be free of revisions.
func Compare(base, other *dom.Document, author string, when time.Time, opts Options) error {
	if base.HasRevisions() || other.HasRevisions() {
		return errors.NewInvalidState("compare", "documents must not have revisions")
	}
	start := time.Now()
	resume := base.SuspendHook()
	defer resume()

	c := &comparer{base: base, other: other, opts: opts, author: author, when: when}
	c.simple = !opts.IgnoreCaseChanges && !opts.IgnoreComments && !opts.IgnoreFields &&
		!opts.IgnoreFootnotes && !opts.IgnoreTextboxes && !opts.IgnoreTables
	if err := c.sections(); err != nil {
		return err
	}
	logging.CompareResult(author, c.count, time.Since(start))
	return nil
}

type comparer struct {
	base, other *dom.Document
	opts        Options
	author      string
	when        time.Time
	simple      bool
	count       int
}

func (c *comparer) newMark(t dom.RevisionType) dom.RevisionMark {
	c.count++
	return c.base.NewMark(t, c.author, c.when)
}

func (c *comparer) mark(n dom.NodeID, t dom.RevisionType) error {
	m := c.newMark(t)
	return c.base.SetContentMark(n, &m)
}

func (c *comparer) sections() error {
	bs, os := c.base.Sections(), c.other.Sections()
	for i := 0; i < len(bs) || i < len(os); i++ {
		switch {
		case i >= len(os):
			if err := c.markStory(bs[i], dom.RevisionDeletion); err != nil {
				return err
			}
		case i >= len(bs):
			sec, err := c.base.Import(c.other, os[i])
			if err != nil {
				return err
			}
			if err := c.base.AppendChild(c.base.Root(), sec); err != nil {
				return err
			}
			if err := c.markStory(sec, dom.RevisionInsertion); err != nil {
				return err
			}
		default:
			if err := c.story(c.base.Body(bs[i]), c.other.Body(os[i])); err != nil {
				return err
			}
			if !c.opts.IgnoreHeadersAndFooters {
				if err := c.headersFooters(bs[i], os[i]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// markStory flags every block under a section or story.
func (c *comparer) markStory(n dom.NodeID, t dom.RevisionType) error {
	for _, story := range c.base.Children(n) {
		if c.base.Type(story) == dom.NodeHeaderFooter && c.opts.IgnoreHeadersAndFooters {
			continue
		}
		for _, b := range c.blocks(c.base, story) {
			if err := c.mark(b, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *comparer) headersFooters(bsec, osec dom.NodeID) error {
	seen := map[dom.HeaderFooterType]bool{}
	for _, hf := range c.base.ChildNodes(bsec, dom.NodeHeaderFooter, false) {
		kind := c.base.Attrs(hf).HeaderFooter
		seen[kind] = true
		ohf := c.other.HeaderFooter(osec, kind)
		if ohf == dom.NoNode {
			for _, b := range c.blocks(c.base, hf) {
				if err := c.mark(b, dom.RevisionDeletion); err != nil {
					return err
				}
			}
			continue
		}
		if err := c.story(hf, ohf); err != nil {
			return err
		}
	}
	for _, ohf := range c.other.ChildNodes(osec, dom.NodeHeaderFooter, false) {
		if seen[c.other.Attrs(ohf).HeaderFooter] {
			continue
		}
		hf, err := c.base.NewNode(dom.NodeHeaderFooter)
		if err != nil {
			return err
		}
		_ = c.base.SetAttrs(hf, c.other.Attrs(ohf))
		if err := c.base.AppendChild(bsec, hf); err != nil {
			return err
		}
		for _, ob := range c.blocks(c.other, ohf) {
			if _, err := c.insert(hf, ob, dom.NoNode, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// blocks lists the paragraphs and tables of a story that take part in
// the comparison.
func (c *comparer) blocks(doc *dom.Document, story dom.NodeID) []dom.NodeID {
	var out []dom.NodeID
	for _, b := range doc.Children(story) {
		if doc.Type(b) == dom.NodeTable && c.opts.IgnoreTables {
			continue
		}
		out = append(out, b)
	}
	return out
}

// insert imports block ob of other into story before ref and flags it.
func (c *comparer) insert(story, ob, ref dom.NodeID, m *dom.RevisionMark) (dom.NodeID, error) {
	n, err := c.base.Import(c.other, ob)
	if err != nil {
		return dom.NoNode, err
	}
	if err := c.base.InsertBefore(story, n, ref); err != nil {
		return dom.NoNode, err
	}
	if m != nil {
		return n, c.base.SetContentMark(n, m)
	}
	return n, c.mark(n, dom.RevisionInsertion)
}

// story aligns the blocks of two stories and records the differences.
func (c *comparer) story(bstory, ostory dom.NodeID) error {
	bb, ob := c.blocks(c.base, bstory), c.blocks(c.other, ostory)
	bk := make([]string, len(bb))
	for i, b := range bb {
		bk[i] = c.blockKey(c.base, b)
	}
	ok := make([]string, len(ob))
	for j, o := range ob {
		ok[j] = c.blockKey(c.other, o)
	}
	ops := script(bk, ok)
	moves := c.moves(ops, bb, ob)

	var dels, ins []int
	flush := func(ref dom.NodeID) error {
		err := c.gap(bstory, bb, ob, dels, ins, ref, moves)
		dels, ins = dels[:0], ins[:0]
		return err
	}
	for _, o := range ops {
		switch o.kind {
		case '-':
			dels = append(dels, o.i)
		case '+':
			ins = append(ins, o.j)
		default:
			if err := flush(bb[o.i]); err != nil {
				return err
			}
		}
	}
	return flush(dom.NoNode)
}

// moves pairs deleted and inserted paragraphs of equal non-empty text
// that sit in different gaps of the edit script. The MoveFrom half is
// flagged immediately; the MoveTo marks are returned by other index.
func (c *comparer) moves(ops []op, bb, ob []dom.NodeID) map[int]*dom.RevisionMark {
	type cand struct {
		idx, gap int
		text     string
	}
	var dels, ins []cand
	gap := 0
	for _, o := range ops {
		switch o.kind {
		case '=':
			gap++
		case '-':
			if c.base.Type(bb[o.i]) == dom.NodeParagraph {
				if t := c.base.GetText(bb[o.i]); len(t) > 1 {
					dels = append(dels, cand{o.i, gap, t[:len(t)-1]})
				}
			}
		case '+':
			if c.other.Type(ob[o.j]) == dom.NodeParagraph {
				if t := c.other.GetText(ob[o.j]); len(t) > 1 {
					ins = append(ins, cand{o.j, gap, t[:len(t)-1]})
				}
			}
		}
	}
	out := map[int]*dom.RevisionMark{}
	used := map[int]bool{}
	for _, in := range ins {
		for k, d := range dels {
			if used[k] || d.gap == in.gap || d.text != in.text {
				continue
			}
			used[k] = true
			from, to := c.newMark(dom.RevisionMoveFrom), c.newMark(dom.RevisionMoveTo)
			from.PairID, to.PairID = to.ID, from.ID
			_ = c.base.SetContentMark(bb[d.idx], &from)
			out[in.idx] = &to
			break
		}
	}
	return out
}

// gap resolves one stretch of unmatched blocks. The blocks of other are
// placed in their order: each one either takes over the next unmatched
// base block in place (paragraph pairs, tables of the same shape) or is
// inserted before it. Base blocks left over become deletions.
func (c *comparer) gap(story dom.NodeID, bb, ob []dom.NodeID, dels, ins []int, ref dom.NodeID, moves map[int]*dom.RevisionMark) error {
	var d []int
	for _, i := range dels {
		if _, moved := c.base.ContentMark(bb[i]); !moved {
			d = append(d, i)
		}
	}
	k := 0
	anchor := func(k int) dom.NodeID {
		if k < len(d) {
			return bb[d[k]]
		}
		return ref
	}
	for _, j := range ins {
		x := ob[j]
		if m, ok := moves[j]; ok {
			if _, err := c.insert(story, x, anchor(k), m); err != nil {
				return err
			}
			continue
		}
		if k >= len(d) {
			if _, err := c.insert(story, x, ref, nil); err != nil {
				return err
			}
			continue
		}
		b := bb[d[k]]
		k++
		switch {
		case c.base.Type(b) == dom.NodeParagraph && c.other.Type(x) == dom.NodeParagraph:
			if err := c.paragraph(b, x); err != nil {
				return err
			}
			continue
		case c.sameShape(b, x):
			if err := c.table(b, x); err != nil {
				return err
			}
			continue
		}
		if err := c.mark(b, dom.RevisionDeletion); err != nil {
			return err
		}
		if _, err := c.insert(story, x, anchor(k), nil); err != nil {
			return err
		}
	}
	for ; k < len(d); k++ {
		if err := c.mark(bb[d[k]], dom.RevisionDeletion); err != nil {
			return err
		}
	}
	return nil
}

func (c *comparer) sameShape(b, o dom.NodeID) bool {
	if c.base.Type(b) != dom.NodeTable || c.other.Type(o) != dom.NodeTable {
		return false
	}
	br, or := c.base.Children(b), c.other.Children(o)
	if len(br) != len(or) {
		return false
	}
	for i := range br {
		if c.base.ChildCount(br[i]) != c.other.ChildCount(or[i]) {
			return false
		}
	}
	return true
}

func (c *comparer) table(b, o dom.NodeID) error {
	br, or := c.base.Children(b), c.other.Children(o)
	for i := range br {
		bc, oc := c.base.Children(br[i]), c.other.Children(or[i])
		for k := range bc {
			if err := c.story(bc[k], oc[k]); err != nil {
				return err
			}
		}
	}
	return nil
}

// blockKey identifies a block for alignment. Without ignore flags it is
// the subtree content hash.
func (c *comparer) blockKey(doc *dom.Document, n dom.NodeID) string {
	if c.simple {
		return doc.HashWith(n, dom.HashOptions{IgnoreFormatting: c.opts.IgnoreFormatting})
	}
	var b strings.Builder
	c.writeKey(&b, doc, n)
	return b.String()
}

func (c *comparer) writeKey(b *strings.Builder, doc *dom.Document, n dom.NodeID) {
	switch doc.Type(n) {
	case dom.NodeParagraph:
		b.WriteString("P")
		if !c.opts.IgnoreFormatting {
			b.WriteString(fmtKey(doc.Format(n)))
		}
		for _, t := range c.tokens(doc, n) {
			b.WriteByte(0)
			b.WriteString(t.key)
			if !c.opts.IgnoreFormatting {
				for _, p := range t.pieces {
					b.WriteString(fmtKey(p.f))
				}
			}
		}
		b.WriteByte(1)
	default:
		b.WriteString(string(doc.Type(n)))
		b.WriteByte('(')
		for _, ch := range doc.Children(n) {
			c.writeKey(b, doc, ch)
		}
		b.WriteByte(')')
	}
}

func fmtKey(f dom.Formatting) string {
	if f.IsZero() {
		return ""
	}
	return fmt.Sprintf("%v", f)
}

// piece is one character of paragraph text, or one non-text inline node.
type piece struct {
	r    rune
	f    dom.Formatting
	node dom.NodeID
}

// token is the unit of paragraph alignment.
type token struct {
	key    string
	pieces []piece
}

func (c *comparer) tokens(doc *dom.Document, p dom.NodeID) []token {
	var out []token
	var word []piece
	flushWord := func() {
		if len(word) > 0 {
			out = append(out, c.textToken(word))
			word = nil
		}
	}
	for _, n := range doc.Children(p) {
		if doc.Type(n) != dom.NodeRun {
			flushWord()
			out = append(out, token{key: c.atomKey(doc, n), pieces: []piece{{node: n, f: doc.Format(n)}}})
			continue
		}
		f := doc.Format(n)
		for _, r := range doc.Text(n) {
			pc := piece{r: r, f: f}
			if c.opts.Granularity == WordLevel && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				word = append(word, pc)
				continue
			}
			flushWord()
			out = append(out, c.textToken([]piece{pc}))
		}
	}
	flushWord()
	return out
}

func (c *comparer) textToken(ps []piece) token {
	rs := make([]rune, len(ps))
	for i, p := range ps {
		rs[i] = p.r
	}
	s := string(rs)
	if c.opts.IgnoreCaseChanges {
		s = strings.ToLower(s)
	}
	return token{key: "t" + s, pieces: ps}
}

// atomKey identifies a non-text inline node. Ignored kinds compare equal
// regardless of content.
func (c *comparer) atomKey(doc *dom.Document, n dom.NodeID) string {
	a := doc.Attrs(n)
	switch t := doc.Type(n); t {
	case dom.NodeBreak:
		return "b" + string(a.Break)
	case dom.NodeField:
		if c.opts.IgnoreFields {
			return "f"
		}
		return "f" + a.FieldCode + "\x14" + a.FieldResult
	case dom.NodeBookmarkStart, dom.NodeBookmarkEnd:
		return string(t) + a.Name
	case dom.NodeImage:
		return "i" + a.Media
	case dom.NodeComment, dom.NodeCommentRangeStart, dom.NodeCommentRangeEnd:
		if c.opts.IgnoreComments {
			return string(t)
		}
		return string(t) + strconv.Itoa(a.CommentID) + doc.GetText(n)
	case dom.NodeFootnote:
		if c.opts.IgnoreFootnotes {
			return string(t)
		}
		return string(t) + doc.GetText(n)
	case dom.NodeShape:
		if c.opts.IgnoreTextboxes {
			return string(t)
		}
		return string(t) + doc.GetText(n)
	default:
		return string(t) + doc.GetText(n)
	}
}
