package compare

import (
	"github.com/FocuswithJustin/folio/core/dom"
)

type segKind int

const (
	segKeep segKind = iota
	segDelete
	segInsert
)

// segment is a stretch of the rebuilt paragraph: either text sharing one
// formatting and revision state, or a single inline node.
type segment struct {
	kind segKind
	text []rune
	f    dom.Formatting
	old  *dom.Formatting
	node dom.NodeID
	from *dom.Document
}

// paragraph diffs two paired paragraphs token by token and rebuilds the
// inline content of b with the differences flagged.
func (c *comparer) paragraph(b, o dom.NodeID) error {
	bt, ot := c.tokens(c.base, b), c.tokens(c.other, o)
	bk := make([]string, len(bt))
	for i, t := range bt {
		bk[i] = t.key
	}
	ok := make([]string, len(ot))
	for j, t := range ot {
		ok[j] = t.key
	}

	var segs []segment
	add := func(s segment) {
		if s.node == dom.NoNode && len(segs) > 0 {
			last := &segs[len(segs)-1]
			if last.node == dom.NoNode && last.kind == s.kind && last.f == s.f && sameOld(last.old, s.old) {
				last.text = append(last.text, s.text...)
				return
			}
		}
		segs = append(segs, s)
	}
	takeFormat := !c.opts.IgnoreFormatting && c.opts.Target == TargetNew
	for _, step := range script(bk, ok) {
		switch step.kind {
		case '=':
			theirs := ot[step.j].pieces
			for k, p := range bt[step.i].pieces {
				s := segment{kind: segKeep, f: p.f, node: p.node, from: c.base}
				if p.node == dom.NoNode {
					s.text = []rune{p.r}
				}
				if k >= len(theirs) {
					add(s)
					continue
				}
				if q := theirs[k]; takeFormat && p.f != q.f {
					old := p.f
					s.f, s.old = q.f, &old
				}
				add(s)
			}
		case '-':
			for _, p := range bt[step.i].pieces {
				s := segment{kind: segDelete, f: p.f, node: p.node, from: c.base}
				if p.node == dom.NoNode {
					s.text = []rune{p.r}
				}
				add(s)
			}
		case '+':
			for _, p := range ot[step.j].pieces {
				s := segment{kind: segInsert, f: p.f, node: p.node, from: c.other}
				if p.node == dom.NoNode {
					s.text = []rune{p.r}
				}
				add(s)
			}
		}
	}
	if err := c.rebuild(b, segs); err != nil {
		return err
	}
	if of := c.other.Format(o); takeFormat && c.base.Format(b) != of {
		m := c.newMark(dom.RevisionFormatChange)
		old := c.base.Format(b)
		m.OldFormat = &old
		if err := c.base.SetFormat(b, of); err != nil {
			return err
		}
		return c.base.SetFormatMark(b, &m)
	}
	return nil
}

func sameOld(a, b *dom.Formatting) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// rebuild replaces the children of p with segs. Inline nodes of base are
// reused; runs are recreated.
func (c *comparer) rebuild(p dom.NodeID, segs []segment) error {
	doc := c.base
	reused := map[dom.NodeID]bool{}
	for _, s := range segs {
		if s.node != dom.NoNode && s.from == doc {
			reused[s.node] = true
		}
	}
	for _, ch := range doc.Children(p) {
		var err error
		if reused[ch] {
			err = doc.Remove(ch)
		} else {
			err = doc.Delete(ch)
		}
		if err != nil {
			return err
		}
	}
	for _, s := range segs {
		n := s.node
		switch {
		case n == dom.NoNode:
			n = doc.NewRun(string(s.text), s.f)
		case s.from != doc:
			imported, err := doc.Import(s.from, n)
			if err != nil {
				return err
			}
			n = imported
		case s.old != nil:
			if err := doc.SetFormat(n, s.f); err != nil {
				return err
			}
		}
		if err := doc.AppendChild(p, n); err != nil {
			return err
		}
		switch {
		case s.kind == segDelete:
			if err := c.mark(n, dom.RevisionDeletion); err != nil {
				return err
			}
		case s.kind == segInsert:
			if err := c.mark(n, dom.RevisionInsertion); err != nil {
				return err
			}
		case s.old != nil:
			m := c.newMark(dom.RevisionFormatChange)
			m.OldFormat = s.old
			if err := doc.SetFormatMark(n, &m); err != nil {
				return err
			}
		}
	}
	return nil
}
