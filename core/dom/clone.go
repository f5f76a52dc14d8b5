package dom

import (
	"github.com/google/uuid"

	"github.com/FocuswithJustin/folio/core/errors"
)

// Clone returns a deep copy sharing no mutable state with d. Hooks and
// callbacks are not copied.
func (d *Document) Clone() *Document {
	c := &Document{
		ID:                 uuid.New().String(),
		key:                docSeq.Add(1),
		Props:              d.Props,
		Media:              d.Media.Clone(),
		VBA:                d.VBA.Clone(),
		DefaultTabStop:     d.DefaultTabStop,
		OriginalFileName:   d.OriginalFileName,
		OriginalLoadFormat: d.OriginalLoadFormat,
		nodes:              make([]record, len(d.nodes)),
		root:               d.root,
		variables:          d.variables.clone(),
		parts:              d.parts.clone(),
		revSeq:             d.revSeq,
		styleMarks:         make(map[string]*StyleRevision, len(d.styleMarks)),
	}
	for i, r := range d.nodes {
		r.children = append([]NodeID(nil), r.children...)
		r.attrs = r.attrs.clone()
		r.content = r.content.copy()
		r.fmtMark = r.fmtMark.copy()
		c.nodes[i] = r
	}
	c.styles = d.styles.clone(c)
	c.lists = d.lists.clone(c)
	for k, v := range d.styleMarks {
		sr := *v
		c.styleMarks[k] = &sr
	}
	return c
}

// CloneNode deep-copies the subtree at id into a new detached subtree of
// the same document. Revision marks are copied only when keepMarks is set.
func (d *Document) CloneNode(id NodeID, keepMarks bool) (NodeID, error) {
	if err := d.Check(id); err != nil {
		return NoNode, err
	}
	return d.copyFrom(d, id, keepMarks), nil
}

// Import deep-copies the subtree at id of src into d as a new detached
// subtree. Referenced media and missing styles are copied along.
func (d *Document) Import(src *Document, id NodeID) (NodeID, error) {
	if err := src.Check(id); err != nil {
		return NoNode, err
	}
	if id == src.root {
		return NoNode, errors.NewStructure("none", NodeDocument.String(), "the document node cannot be imported")
	}
	return d.copyFrom(src, id, false), nil
}

func (d *Document) copyFrom(src *Document, id NodeID, keepMarks bool) NodeID {
	sr := src.nodes[id]
	n := d.alloc(sr.typ)
	r := record{
		typ:    sr.typ,
		text:   sr.text,
		format: sr.format,
		attrs:  sr.attrs.clone(),
	}
	if keepMarks {
		r.content = sr.content.copy()
		r.fmtMark = sr.fmtMark.copy()
	}
	if src != d {
		d.importResources(src, r)
	}
	d.nodes[n] = r
	for _, c := range sr.children {
		cn := d.copyFrom(src, c, keepMarks)
		d.nodes[cn].parent = n
		d.nodes[n].children = append(d.nodes[n].children, cn)
	}
	return n
}

func (d *Document) importResources(src *Document, r record) {
	if r.attrs.Media != "" && !d.Media.Has(r.attrs.Media) {
		if blob, err := src.Media.Get(r.attrs.Media); err == nil {
			d.Media.Put(blob.ContentType, blob.Data)
		}
	}
	for name := r.format.Style; name != ""; {
		if _, ok := d.styles.Get(name); ok {
			break
		}
		st, ok := src.styles.Get(name)
		if !ok {
			break
		}
		d.styles.Restore(st)
		name = st.BasedOn
	}
}
