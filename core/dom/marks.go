package dom

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RevisionType is the kind of a tracked change.
type RevisionType string

const (
	RevisionInsertion       RevisionType = "Insertion"
	RevisionDeletion        RevisionType = "Deletion"
	RevisionFormatChange    RevisionType = "FormatChange"
	RevisionMoveFrom        RevisionType = "MoveFrom"
	RevisionMoveTo          RevisionType = "MoveTo"
	RevisionStyleDefinition RevisionType = "StyleDefinitionChange"
)

// RevisionMark flags a node with a pending change. Content marks
// (insertion, deletion, move) and format marks are stored separately so
// one node can carry both.
type RevisionMark struct {
	ID     string       `json:"id"`
	Type   RevisionType `json:"type"`
	Author string       `json:"author"`
	Date   time.Time    `json:"date"`
	// Seq orders marks; higher is more recent.
	Seq uint64 `json:"seq"`
	// PairID links the MoveFrom and MoveTo halves of one move.
	PairID string `json:"pair_id,omitempty"`
	// OldFormat is the formatting before a FormatChange.
	OldFormat *Formatting `json:"old_format,omitempty"`
}

// StyleRevision records the definition of a style before a tracked update.
type StyleRevision struct {
	ID     string    `json:"id"`
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
	Seq    uint64    `json:"seq"`
	Old    Style     `json:"old"`
}

// MarkRef locates one pending mark, either on a node or on a style.
type MarkRef struct {
	Node   NodeID
	Style  string
	Format bool
	Mark   RevisionMark
}

func (m *RevisionMark) copy() *RevisionMark {
	if m == nil {
		return nil
	}
	c := *m
	if m.OldFormat != nil {
		f := *m.OldFormat
		c.OldFormat = &f
	}
	return &c
}

// NewMark returns a mark of type t with a fresh ID and the next sequence number.
func (d *Document) NewMark(t RevisionType, author string, date time.Time) RevisionMark {
	d.revSeq++
	return RevisionMark{ID: uuid.New().String(), Type: t, Author: author, Date: date, Seq: d.revSeq}
}

// ContentMark returns the insertion, deletion or move mark of a node.
func (d *Document) ContentMark(id NodeID) (RevisionMark, bool) {
	if r := d.rec(id); r != nil && r.content != nil {
		return *r.content.copy(), true
	}
	return RevisionMark{}, false
}

// FormatMark returns the format change mark of a node.
func (d *Document) FormatMark(id NodeID) (RevisionMark, bool) {
	if r := d.rec(id); r != nil && r.fmtMark != nil {
		return *r.fmtMark.copy(), true
	}
	return RevisionMark{}, false
}

// SetContentMark flags a node; nil clears the flag.
func (d *Document) SetContentMark(id NodeID, m *RevisionMark) error {
	r := d.rec(id)
	if r == nil {
		return d.Check(id)
	}
	r.content = m.copy()
	d.trackSeq(m)
	d.bump()
	return nil
}

// SetFormatMark sets the format change mark of a node; nil clears it.
func (d *Document) SetFormatMark(id NodeID, m *RevisionMark) error {
	r := d.rec(id)
	if r == nil {
		return d.Check(id)
	}
	r.fmtMark = m.copy()
	d.trackSeq(m)
	d.bump()
	return nil
}

func (d *Document) trackSeq(m *RevisionMark) {
	if m != nil && m.Seq > d.revSeq {
		d.revSeq = m.Seq
	}
}

// SetStyleRevision records a pending style definition change; nil clears it.
func (d *Document) SetStyleRevision(name string, rev *StyleRevision) {
	if rev == nil {
		delete(d.styleMarks, name)
	} else {
		c := *rev
		d.styleMarks[name] = &c
		if c.Seq > d.revSeq {
			d.revSeq = c.Seq
		}
	}
	d.bump()
}

// StyleRevision returns the pending change of a style.
func (d *Document) StyleRevision(name string) (StyleRevision, bool) {
	if r, ok := d.styleMarks[name]; ok {
		return *r, true
	}
	return StyleRevision{}, false
}

// InRevision reports whether id or one of its ancestors carries a content
// mark of type t, returning the marked node.
func (d *Document) InRevision(id NodeID, t RevisionType) (NodeID, bool) {
	for n := id; n != NoNode; n = d.Parent(n) {
		if r := d.rec(n); r != nil && r.content != nil && r.content.Type == t {
			return n, true
		}
	}
	return NoNode, false
}

// PendingMarks lists every mark on attached nodes and styles, most recent first.
func (d *Document) PendingMarks() []MarkRef {
	var out []MarkRef
	d.Walk(d.root, func(n NodeID) bool {
		r := &d.nodes[n]
		if r.content != nil {
			out = append(out, MarkRef{Node: n, Mark: *r.content.copy()})
		}
		if r.fmtMark != nil {
			out = append(out, MarkRef{Node: n, Format: true, Mark: *r.fmtMark.copy()})
		}
		return true
	})
	for name, sr := range d.styleMarks {
		out = append(out, MarkRef{Style: name, Mark: RevisionMark{
			ID: sr.ID, Type: RevisionStyleDefinition, Author: sr.Author, Date: sr.Date, Seq: sr.Seq,
		}})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mark.Seq > out[j].Mark.Seq })
	return out
}

// HasRevisions reports whether any pending mark exists.
func (d *Document) HasRevisions() bool {
	if len(d.styleMarks) > 0 {
		return true
	}
	found := false
	d.Walk(d.root, func(n NodeID) bool {
		if found {
			return false
		}
		r := &d.nodes[n]
		found = r.content != nil || r.fmtMark != nil
		return !found
	})
	return found
}
