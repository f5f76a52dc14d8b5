package layout

import (
	"time"

	"github.com/FocuswithJustin/folio/core/dom"
	"github.com/FocuswithJustin/folio/core/errors"
	"github.com/FocuswithJustin/folio/internal/logging"
)

type pageRange struct {
	start, end int
}

// Collector owns the layout of one document. Page queries report 0 until
// Update has run.
type Collector struct {
	doc  *dom.Document
	opts Options

	pages    []*Entity
	logical  map[EntityType][]*Entity
	ranges   map[dom.NodeID]pageRange
	entities map[dom.NodeID]*Entity
	count    int

	laidOut    bool
	generation uint64
	// epoch counts Clear calls so cursors can tell their entities are gone.
	epoch int
}

// NewCollector returns a collector for doc. Zero fields of opts take the
// defaults.
func NewCollector(doc *dom.Document, opts Options) *Collector {
	c := &Collector{doc: doc, opts: opts.normalized()}
	c.Clear()
	return c
}

// Document returns the document being laid out.
func (c *Collector) Document() *dom.Document { return c.doc }

// Clear drops the current layout. Page queries report 0 afterwards.
func (c *Collector) Clear() {
	c.pages = nil
	c.logical = make(map[EntityType][]*Entity)
	c.ranges = make(map[dom.NodeID]pageRange)
	c.entities = make(map[dom.NodeID]*Entity)
	c.count = 0
	c.laidOut = false
	c.epoch++
}

// Update lays out the whole document, replacing any previous layout.
func (c *Collector) Update() error {
	start := time.Now()
	c.Clear()
	if len(c.doc.Sections()) == 0 {
		return errors.NewInvalidState("layout", "document has no sections")
	}
	l := &layouter{c: c, doc: c.doc, opts: c.opts}
	l.run()
	c.laidOut = true
	c.generation = c.doc.Generation()
	logging.LayoutPass(len(c.pages), c.count, time.Since(start))
	return nil
}

// Stale reports whether the document changed since the last Update.
func (c *Collector) Stale() bool {
	return c.laidOut && c.doc.Generation() != c.generation
}

// PageCount returns the number of pages, or 0 before Update.
func (c *Collector) PageCount() int { return len(c.pages) }

// Pages returns the page entities in order.
func (c *Collector) Pages() []*Entity { return c.pages }

// StartPageIndex returns the 1-based page on which node begins, or 0 when
// the node was not laid out.
func (c *Collector) StartPageIndex(node dom.NodeID) int {
	return c.ranges[node].start
}

// EndPageIndex returns the 1-based page on which node ends, or 0.
func (c *Collector) EndPageIndex(node dom.NodeID) int {
	return c.ranges[node].end
}

// NumPagesSpanned returns the number of pages node touches.
func (c *Collector) NumPagesSpanned(node dom.NodeID) int {
	r := c.ranges[node]
	if r.start == 0 {
		return 0
	}
	return r.end - r.start + 1
}

// Entity returns the entity that best represents node: the end mark span
// of a paragraph, the Row or Cell of table parts, the note, comment or
// text box entity of anchored stories and the first span of other inline
// nodes. It returns nil when node has no entity.
func (c *Collector) Entity(node dom.NodeID) *Entity {
	return c.entities[node]
}

// register records e and its subtree as placed on page.
func (c *Collector) register(e *Entity, page int) {
	e.PageIndex = page
	e.seq = len(c.logical[e.Type])
	c.logical[e.Type] = append(c.logical[e.Type], e)
	c.count++
	if e.Node != dom.NoNode {
		c.extend(e.Node, page)
		c.remember(e)
	}
	for _, n := range e.marks {
		c.extend(n, page)
	}
	for _, ch := range e.Children {
		c.register(ch, page)
	}
}

func (c *Collector) remember(e *Entity) {
	prev, ok := c.entities[e.Node]
	switch {
	case !ok:
		c.entities[e.Node] = e
	case prev.Type == Line && e.Type == Span:
		// paragraph end mark
		c.entities[e.Node] = e
	case prev.Type&(Span|Line) != 0 && e.Type&(Footnote|Comment|TextBox) != 0:
		c.entities[e.Node] = e
	}
}

// extend widens the page range of node and its ancestors to cover page.
func (c *Collector) extend(node dom.NodeID, page int) {
	for n := node; n != dom.NoNode; n = c.doc.Parent(n) {
		r, ok := c.ranges[n]
		if ok && r.start <= page && page <= r.end {
			return
		}
		if !ok || page < r.start {
			r.start = page
		}
		if page > r.end {
			r.end = page
		}
		c.ranges[n] = r
	}
}
