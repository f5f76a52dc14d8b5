package revision

import (
	"strings"
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// Type is the kind of a revision.
type Type = dom.RevisionType

const (
	Insertion             = dom.RevisionInsertion
	Deletion              = dom.RevisionDeletion
	FormatChange          = dom.RevisionFormatChange
	MoveFrom              = dom.RevisionMoveFrom
	MoveTo                = dom.RevisionMoveTo
	StyleDefinitionChange = dom.RevisionStyleDefinition
)

// Revision is one pending change. It refers either to a node or to a
// style, never both.
type Revision struct {
	ID     string
	Type   Type
	Author string
	Date   time.Time

	doc    *dom.Document
	node   dom.NodeID
	style  string
	format bool
	pair   string
}

// ParentNode returns the node the revision applies to, or NoNode for a
// style revision.
func (r Revision) ParentNode() dom.NodeID {
	return r.node
}

// ParentStyle returns the style name of a style revision, or "".
func (r Revision) ParentStyle() string {
	return r.style
}

func fromRef(doc *dom.Document, ref dom.MarkRef) Revision {
	m := ref.Mark
	return Revision{
		ID: m.ID, Type: m.Type, Author: m.Author, Date: m.Date,
		doc: doc, node: ref.Node, style: ref.Style, format: ref.Format, pair: m.PairID,
	}
}

// Collection is a live view of the revisions of a document. Index 0 is
// the most recent revision.
type Collection struct {
	doc *dom.Document
}

// Revisions returns the revision collection of doc.
func Revisions(doc *dom.Document) *Collection {
	return &Collection{doc: doc}
}

func (c *Collection) list() []Revision {
	refs := c.doc.PendingMarks()
	out := make([]Revision, len(refs))
	for i, ref := range refs {
		out[i] = fromRef(c.doc, ref)
	}
	return out
}

// Count returns the number of pending revisions.
func (c *Collection) Count() int {
	return len(c.doc.PendingMarks())
}

// At returns the revision at index i.
func (c *Collection) At(i int) (Revision, error) {
	list := c.list()
	if i < 0 || i >= len(list) {
		return Revision{}, errors.NewRange("revisions", i, len(list))
	}
	return list[i], nil
}

// All returns a snapshot of the pending revisions, most recent first.
func (c *Collection) All() []Revision {
	return c.list()
}

// AcceptAll accepts revisions until none remain and returns how many
// were processed.
func (c *Collection) AcceptAll() (int, error) {
	return c.drain("accept_all", Revision.Accept)
}

// RejectAll rejects revisions until none remain. Rejecting everything
// recorded since tracking started restores the document text.
func (c *Collection) RejectAll() (int, error) {
	return c.drain("reject_all", Revision.Reject)
}

func (c *Collection) drain(event string, apply func(Revision) error) (int, error) {
	n := 0
	for {
		refs := c.doc.PendingMarks()
		if len(refs) == 0 {
			break
		}
		if err := apply(fromRef(c.doc, refs[0])); err != nil {
			return n, err
		}
		if after := c.doc.PendingMarks(); len(after) >= len(refs) {
			return n, errors.NewInvalidState(event, "revision "+refs[0].Mark.ID+" was not resolved")
		}
		n++
	}
	logging.RevisionEvent(event, "", n)
	return n, nil
}

// Accept commits the revision and removes its record.
func (r Revision) Accept() error {
	doc := r.doc
	resume := doc.SuspendHook()
	defer resume()
	switch {
	case r.style != "":
		doc.SetStyleRevision(r.style, nil)
		return nil
	case r.format:
		return doc.SetFormatMark(r.node, nil)
	}
	switch r.Type {
	case Insertion:
		return doc.SetContentMark(r.node, nil)
	case Deletion:
		return doc.Delete(r.node)
	case MoveFrom, MoveTo:
		from, to := r.halves()
		if from != dom.NoNode {
			if err := doc.Delete(from); err != nil {
				return err
			}
		}
		if to != dom.NoNode {
			return doc.SetContentMark(to, nil)
		}
		return nil
	}
	return errors.NewUnsupported("revision", "unknown type "+string(r.Type))
}

// Reject undoes the revision and removes its record.
func (r Revision) Reject() error {
	doc := r.doc
	resume := doc.SuspendHook()
	defer resume()
	switch {
	case r.style != "":
		if sr, ok := doc.StyleRevision(r.style); ok {
			doc.Styles().Restore(sr.Old)
		}
		doc.SetStyleRevision(r.style, nil)
		return nil
	case r.format:
		m, ok := doc.FormatMark(r.node)
		if ok && m.OldFormat != nil {
			if err := doc.SetFormat(r.node, *m.OldFormat); err != nil {
				return err
			}
		}
		return doc.SetFormatMark(r.node, nil)
	}
	switch r.Type {
	case Insertion:
		return doc.Delete(r.node)
	case Deletion:
		return doc.SetContentMark(r.node, nil)
	case MoveFrom, MoveTo:
		from, to := r.halves()
		if to != dom.NoNode {
			if err := doc.Delete(to); err != nil {
				return err
			}
		}
		if from != dom.NoNode {
			return doc.SetContentMark(from, nil)
		}
		return nil
	}
	return errors.NewUnsupported("revision", "unknown type "+string(r.Type))
}

// halves finds both nodes of a move pair.
func (r Revision) halves() (from, to dom.NodeID) {
	if r.Type == MoveFrom {
		from = r.node
	} else {
		to = r.node
	}
	for _, ref := range r.doc.PendingMarks() {
		if ref.Format || ref.Mark.ID != r.pair {
			continue
		}
		if ref.Mark.Type == MoveFrom {
			from = ref.Node
		} else {
			to = ref.Node
		}
	}
	return from, to
}

// Group is a run of adjacent node revisions sharing author and type.
type Group struct {
	Author    string
	Type      Type
	Text      string
	Revisions []Revision
}

// Groups returns node revisions merged into groups, in document order.
// Style revisions are not grouped.
func (c *Collection) Groups() []Group {
	byNode := map[dom.NodeID][]Revision{}
	for _, r := range c.list() {
		if r.style == "" {
			byNode[r.node] = append(byNode[r.node], r)
		}
	}
	var groups []Group
	var last dom.NodeID
	c.doc.Walk(c.doc.Root(), func(n dom.NodeID) bool {
		for _, r := range byNode[n] {
			if k := len(groups); k > 0 {
				g := &groups[k-1]
				if g.Author == r.Author && g.Type == r.Type && adjacent(c.doc, last, n) {
					g.Revisions = append(g.Revisions, r)
					g.Text += groupText(c.doc, n, r)
					last = n
					continue
				}
			}
			groups = append(groups, Group{Author: r.Author, Type: r.Type, Text: groupText(c.doc, n, r), Revisions: []Revision{r}})
			last = n
		}
		return true
	})
	return groups
}

// adjacent reports whether b directly follows a, ignoring bookmark markers.
func adjacent(doc *dom.Document, a, b dom.NodeID) bool {
	if a == b {
		return true
	}
	for n := doc.PreviousSibling(b); n != dom.NoNode; n = doc.PreviousSibling(n) {
		if n == a {
			return true
		}
		switch doc.Type(n) {
		case dom.NodeBookmarkStart, dom.NodeBookmarkEnd:
			continue
		}
		return false
	}
	return false
}

func groupText(doc *dom.Document, n dom.NodeID, _ Revision) string {
	return strings.TrimRight(doc.GetText(n), "\f")
}
