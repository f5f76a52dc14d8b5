package layout

import (
	"strconv"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
)

// Enumerator is a cursor over the entities of a Collector.
//
// MoveNext and MovePrevious stay among the siblings of the current entity,
// so they never leave its page. MoveNextLogical and MovePreviousLogical
// step through every entity of the current type in story order and cross
// page boundaries freely.
//
// Clearing or updating the collector invalidates the cursor: moves report
// false until Reset or SetCurrent places it on the new layout.
type Enumerator struct {
	c     *Collector
	cur   *Entity
	epoch int
}

// NewEnumerator returns a cursor on the first page. The collector must
// have been updated.
func NewEnumerator(c *Collector) (*Enumerator, error) {
	if len(c.pages) == 0 {
		return nil, errors.NewInvalidState("enumerate layout", "layout has not been computed")
	}
	return &Enumerator{c: c, cur: c.pages[0], epoch: c.epoch}, nil
}

// Current returns the entity under the cursor.
func (e *Enumerator) Current() *Entity { return e.cur }

func (e *Enumerator) Kind() string { return e.cur.Kind }
func (e *Enumerator) Type() EntityType { return e.cur.Type }
func (e *Enumerator) Text() string { return e.cur.Text }
func (e *Enumerator) Rectangle() Rect { return e.cur.Rect }
func (e *Enumerator) PageIndex() int { return e.cur.PageIndex }
func (e *Enumerator) Node() dom.NodeID { return e.cur.Node }
func (e *Enumerator) Collector() *Collector { return e.c }

// Reset moves to the first page. It fails when the collector holds no
// layout.
func (e *Enumerator) Reset() error {
	if len(e.c.pages) == 0 {
		return errors.NewInvalidState("enumerate layout", "layout has not been computed")
	}
	e.cur, e.epoch = e.c.pages[0], e.c.epoch
	return nil
}

// Valid reports whether the cursor still points into the current layout.
func (e *Enumerator) Valid() bool {
	return e.epoch == e.c.epoch && len(e.c.pages) > 0
}

// SetCurrent moves to the entity of node.
func (e *Enumerator) SetCurrent(node dom.NodeID) error {
	ent := e.c.Entity(node)
	if ent == nil {
		return errors.NewNotFound("layout entity", strconv.Itoa(int(node)))
	}
	e.cur, e.epoch = ent, e.c.epoch
	return nil
}

func (e *Enumerator) siblings() []*Entity {
	if e.cur.Parent == nil {
		return e.c.pages
	}
	return e.cur.Parent.Children
}

func (e *Enumerator) MoveFirstChild() bool {
	if !e.Valid() {
		return false
	}
	if len(e.cur.Children) == 0 {
		return false
	}
	e.cur = e.cur.Children[0]
	return true
}

func (e *Enumerator) MoveLastChild() bool {
	if !e.Valid() {
		return false
	}
	if len(e.cur.Children) == 0 {
		return false
	}
	e.cur = e.cur.Children[len(e.cur.Children)-1]
	return true
}

// MoveNext moves to the next sibling in visual order.
func (e *Enumerator) MoveNext() bool {
	if !e.Valid() {
		return false
	}
	sib := e.siblings()
	if e.cur.index+1 >= len(sib) {
		return false
	}
	e.cur = sib[e.cur.index+1]
	return true
}

// MovePrevious moves to the previous sibling in visual order.
func (e *Enumerator) MovePrevious() bool {
	if !e.Valid() {
		return false
	}
	if e.cur.index == 0 {
		return false
	}
	e.cur = e.siblings()[e.cur.index-1]
	return true
}

// MoveNextLogical moves to the next entity of the same type in story
// order, which may be on a later page.
func (e *Enumerator) MoveNextLogical() bool {
	if !e.Valid() {
		return false
	}
	list := e.c.logical[e.cur.Type]
	if e.cur.seq+1 >= len(list) {
		return false
	}
	e.cur = list[e.cur.seq+1]
	return true
}

// MovePreviousLogical is the reverse of MoveNextLogical.
func (e *Enumerator) MovePreviousLogical() bool {
	if !e.Valid() {
		return false
	}
	if e.cur.seq == 0 {
		return false
	}
	e.cur = e.c.logical[e.cur.Type][e.cur.seq-1]
	return true
}

// MoveParent moves to the nearest ancestor whose type is in types. Zero
// means the direct parent.
func (e *Enumerator) MoveParent(types EntityType) bool {
	if !e.Valid() {
		return false
	}
	for p := e.cur.Parent; p != nil; p = p.Parent {
		if types == 0 || p.Type&types != 0 {
			e.cur = p
			return true
		}
	}
	return false
}
