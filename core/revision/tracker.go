// Package revision implements change tracking on a dom.Document.
//
// While a Tracker is installed, edits stay visible in the tree but are
// flagged: inserted nodes carry an Insertion mark, removed nodes stay
// attached with a Deletion mark, formatting and style edits keep the
// previous value. Accepting a revision commits it; rejecting applies the
// stored inverse.
package revision

import (
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/logging"
)

// State is the tracking state of a document.
type State int

const (
	NotTracking State = iota
	Tracking
)

// String returns the state name.
func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "not_tracking"
}

// TimePolicy supplies the date stamped on new revisions.
type TimePolicy func() time.Time

// FixedTime stamps every revision with t.
func FixedTime(t time.Time) TimePolicy {
	return func() time.Time { return t }
}

// Clock stamps revisions with the current value of now.
func Clock(now func() time.Time) TimePolicy {
	if now == nil {
		now = time.Now
	}
	return now
}

// Tracker is the mutation hook installed while revisions are tracked.
type Tracker struct {
	Author string
	Time   TimePolicy
}

var _ dom.MutationHook = (*Tracker)(nil)

// StartTracking begins tracking edits to doc under author. A zero when
// stamps revisions with the wall clock.
func StartTracking(doc *dom.Document, author string, when time.Time) *Tracker {
	policy := Clock(nil)
	if !when.IsZero() {
		policy = FixedTime(when)
	}
	return StartTrackingWith(doc, author, policy)
}

// StartTrackingWith begins tracking with an explicit time policy.
func StartTrackingWith(doc *dom.Document, author string, policy TimePolicy) *Tracker {
	if policy == nil {
		policy = Clock(nil)
	}
	t := &Tracker{Author: author, Time: policy}
	doc.SetMutationHook(t)
	logging.RevisionEvent("start_tracking", author, 0)
	return t
}

// StopTracking stops tracking. Existing revisions stay pending.
func StopTracking(doc *dom.Document) {
	if t, ok := Current(doc); ok {
		logging.RevisionEvent("stop_tracking", t.Author, 0)
		doc.SetMutationHook(nil)
	}
}

// Current returns the active tracker of doc.
func Current(doc *dom.Document) (*Tracker, bool) {
	t, ok := doc.MutationHook().(*Tracker)
	return t, ok && t != nil
}

// StateOf reports whether doc is being tracked.
func StateOf(doc *dom.Document) State {
	if _, ok := Current(doc); ok {
		return Tracking
	}
	return NotTracking
}

// HasRevisions reports whether doc holds pending revisions.
func HasRevisions(doc *dom.Document) bool {
	return doc.HasRevisions()
}

func (t *Tracker) mark(doc *dom.Document, typ dom.RevisionType) dom.RevisionMark {
	return doc.NewMark(typ, t.Author, t.Time())
}

// NodeInserted flags node as inserted unless it already sits inside a
// pending insertion.
func (t *Tracker) NodeInserted(doc *dom.Document, node dom.NodeID) {
	if _, ok := doc.InRevision(doc.Parent(node), dom.RevisionInsertion); ok {
		return
	}
	if _, ok := doc.ContentMark(node); ok {
		return
	}
	m := t.mark(doc, dom.RevisionInsertion)
	_ = doc.SetContentMark(node, &m)
}

// NodeRemoving keeps node attached and flags it deleted. Removing a node
// that is itself a pending insertion removes it for real.
func (t *Tracker) NodeRemoving(doc *dom.Document, node dom.NodeID) bool {
	if _, ok := doc.InRevision(node, dom.RevisionInsertion); ok {
		return false
	}
	if _, ok := doc.InRevision(node, dom.RevisionDeletion); ok {
		return true
	}
	switch doc.Type(node) {
	case dom.NodeSection, dom.NodeBody, dom.NodeHeaderFooter:
		return false
	}
	m := t.mark(doc, dom.RevisionDeletion)
	_ = doc.SetContentMark(node, &m)
	return true
}

// FormatChanging records the formatting in effect before the first
// tracked change of node.
func (t *Tracker) FormatChanging(doc *dom.Document, node dom.NodeID, old dom.Formatting) {
	if _, ok := doc.InRevision(node, dom.RevisionInsertion); ok {
		return
	}
	if _, ok := doc.FormatMark(node); ok {
		return
	}
	m := t.mark(doc, dom.RevisionFormatChange)
	m.OldFormat = &old
	_ = doc.SetFormatMark(node, &m)
}

// TextChanging turns an in-place text edit into a deleted copy of the old
// run followed by the edited run flagged as inserted.
func (t *Tracker) TextChanging(doc *dom.Document, node dom.NodeID, old string) {
	if _, ok := doc.InRevision(node, dom.RevisionInsertion); ok {
		return
	}
	resume := doc.SuspendHook()
	defer resume()
	clone, err := doc.CloneNode(node, false)
	if err != nil {
		return
	}
	_ = doc.SetText(clone, old)
	if err := doc.InsertBefore(doc.Parent(node), clone, node); err != nil {
		return
	}
	del := t.mark(doc, dom.RevisionDeletion)
	_ = doc.SetContentMark(clone, &del)
	ins := t.mark(doc, dom.RevisionInsertion)
	_ = doc.SetContentMark(node, &ins)
}

// StyleChanging keeps the definition in effect before the first tracked
// update of a style.
func (t *Tracker) StyleChanging(doc *dom.Document, old dom.Style) {
	if _, ok := doc.StyleRevision(old.Name); ok {
		return
	}
	m := t.mark(doc, dom.RevisionStyleDefinition)
	doc.SetStyleRevision(old.Name, &dom.StyleRevision{ID: m.ID, Author: m.Author, Date: m.Date, Seq: m.Seq, Old: old})
}

// NodeMoving records a move of tracked content as a MoveFrom/MoveTo pair.
// Content that is itself a pending insertion moves for real.
func (t *Tracker) NodeMoving(doc *dom.Document, node, parent, ref dom.NodeID) bool {
	if _, ok := doc.InRevision(node, dom.RevisionInsertion); ok {
		return false
	}
	switch doc.Type(node) {
	case dom.NodeSection, dom.NodeBody, dom.NodeHeaderFooter:
		return false
	}
	_, err := t.move(doc, node, parent, ref)
	return err == nil
}

// Move relocates node under parent before ref. While tracking, the node
// stays in place flagged MoveFrom and a copy flagged MoveTo is inserted at
// the destination; the two halves are accepted and rejected together.
func Move(doc *dom.Document, node, parent, ref dom.NodeID) (dom.NodeID, error) {
	t, ok := Current(doc)
	if !ok {
		return node, doc.InsertBefore(parent, node, ref)
	}
	if err := doc.Check(node); err != nil {
		return dom.NoNode, err
	}
	if !doc.IsAttached(node) {
		return dom.NoNode, errors.NewInvalidState("move", "node is not attached")
	}
	return t.move(doc, node, parent, ref)
}

func (t *Tracker) move(doc *dom.Document, node, parent, ref dom.NodeID) (dom.NodeID, error) {
	resume := doc.SuspendHook()
	defer resume()
	clone, err := doc.CloneNode(node, false)
	if err != nil {
		return dom.NoNode, err
	}
	if err := doc.InsertBefore(parent, clone, ref); err != nil {
		_ = doc.Delete(clone)
		return dom.NoNode, err
	}
	from := t.mark(doc, dom.RevisionMoveFrom)
	to := t.mark(doc, dom.RevisionMoveTo)
	from.PairID, to.PairID = to.ID, from.ID
	if err := doc.SetContentMark(node, &from); err != nil {
		return dom.NoNode, err
	}
	return clone, doc.SetContentMark(clone, &to)
}
