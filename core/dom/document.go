// Package dom implements the in-memory document model: an arena of typed
// nodes addressed by NodeID handles, plus the named resources (styles,
// lists, variables, custom parts, macros, media) that nodes reference.
//
// A Document is not safe for concurrent use. Callbacks registered on a
// document run synchronously and may mutate it; every traversal that can
// reach a callback works on a snapshot of the child sequence.
package dom

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/folio/core/cas"
	"github.com/FocuswithJustin/folio/core/errors"
)

// Attrs carries the type-specific payload of a node. Fields that do not
// apply to a node's type are left zero.
type Attrs struct {
	// Break is the kind of a Break leaf.
	Break BreakType `json:"break,omitempty"`
	// SectionStart and Page configure a Section.
	SectionStart SectionStart `json:"section_start,omitempty"`
	Page         *PageSetup   `json:"page,omitempty"`
	// HeaderFooter names the slot of a HeaderFooter.
	HeaderFooter HeaderFooterType `json:"header_footer,omitempty"`
	// FieldCode and FieldResult belong to a Field leaf.
	FieldCode   string `json:"field_code,omitempty"`
	FieldResult string `json:"field_result,omitempty"`
	// Name is a bookmark name.
	Name string `json:"name,omitempty"`
	// Comment metadata; CommentID also links comment range markers.
	Author    string    `json:"author,omitempty"`
	Initial   string    `json:"initial,omitempty"`
	Date      time.Time `json:"date,omitempty"`
	CommentID int       `json:"comment_id,omitempty"`
	// Footnote is the note kind of a Footnote.
	Footnote FootnoteType `json:"footnote,omitempty"`
	// Shape is the kind of a Shape.
	Shape ShapeType `json:"shape,omitempty"`
	// Width and Height size shapes and images, in points.
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	// Media is the content hash of an Image in Document.Media.
	Media string `json:"media,omitempty"`
	// Alt is image alternative text.
	Alt string `json:"alt,omitempty"`
}

func (a Attrs) clone() Attrs {
	if a.Page != nil {
		p := *a.Page
		a.Page = &p
	}
	return a
}

type record struct {
	typ      NodeType
	parent   NodeID
	children []NodeID
	text     string
	format   Formatting
	attrs    Attrs
	content  *RevisionMark
	fmtMark  *RevisionMark
	childGen uint64
	dead     bool
}

// NodeChangeAction says what happened to a node.
type NodeChangeAction int

const (
	NodeInserted NodeChangeAction = iota + 1
	NodeRemoved
)

// NodeChangeArgs describes one structural change.
type NodeChangeArgs struct {
	Node      NodeID
	OldParent NodeID
	NewParent NodeID
	Action    NodeChangeAction
}

// NodeChangingCallback observes insertions and removals after they are
// applied. It may mutate the document.
type NodeChangingCallback func(doc *Document, args NodeChangeArgs)

// MutationHook intercepts mutations of attached nodes. The revision engine
// installs one while tracking is on.
type MutationHook interface {
	// NodeInserted runs after node was attached.
	NodeInserted(doc *Document, node NodeID)
	// NodeRemoving runs before node is detached. Returning true means the
	// hook has taken over and the node stays attached.
	NodeRemoving(doc *Document, node NodeID) bool
	// NodeMoving runs before an attached node is moved under parent
	// before ref. Returning true means the hook has made the move itself
	// and node stays where it is.
	NodeMoving(doc *Document, node, parent, ref NodeID) bool
	// FormatChanging runs before a node's formatting is replaced.
	FormatChanging(doc *Document, node NodeID, old Formatting)
	// TextChanging runs before a run's text is replaced.
	TextChanging(doc *Document, node NodeID, old string)
	// StyleChanging runs before a style definition is replaced.
	StyleChanging(doc *Document, old Style)
}

// Document owns a node arena and the resources its nodes reference.
type Document struct {
	// ID uniquely identifies this document instance.
	ID string
	// Props are the built-in document properties.
	Props Properties
	// Media stores images by content hash.
	Media *cas.MemStore
	// VBA is the macro project, nil when the document has none.
	VBA *VBAProject
	// DefaultTabStop is the default tab interval in points.
	DefaultTabStop float64
	// OriginalFileName is the path the document was loaded from, if any.
	OriginalFileName string
	// OriginalLoadFormat is the codec name the document was loaded with.
	OriginalLoadFormat string

	key       uint64
	nodes     []record
	root      NodeID
	styles    *StyleSheet
	lists     *Lists
	variables *Variables
	parts     *CustomParts

	gen          uint64
	hook         MutationHook
	suspended    int
	nodeChanging NodeChangingCallback

	revSeq     uint64
	styleMarks map[string]*StyleRevision
}

var docSeq atomic.Uint64

// NewEmpty returns a document whose root has no sections. Loaders start here.
func NewEmpty() *Document {
	d := &Document{
		ID:             uuid.New().String(),
		key:            docSeq.Add(1),
		Media:          cas.NewMemStore(),
		DefaultTabStop: 36,
		nodes:          make([]record, 1, 64),
		parts:          &CustomParts{},
		variables:      newVariables(),
		styleMarks:     make(map[string]*StyleRevision),
	}
	d.styles = newStyleSheet(d)
	d.lists = newLists(d)
	d.root = d.alloc(NodeDocument)
	return d
}

// New returns a document with one section, body and empty paragraph.
func New() *Document {
	d := NewEmpty()
	d.EnsureMinimum()
	return d
}

func (d *Document) alloc(t NodeType) NodeID {
	d.nodes = append(d.nodes, record{typ: t})
	return NodeID(len(d.nodes) - 1)
}

func (d *Document) bump() {
	d.gen++
}

// Generation increases on every mutation of the tree or its resources.
func (d *Document) Generation() uint64 {
	return d.gen
}

// Root returns the Document node.
func (d *Document) Root() NodeID {
	return d.root
}

// Styles returns the style sheet.
func (d *Document) Styles() *StyleSheet { return d.styles }

// Lists returns the list definitions.
func (d *Document) Lists() *Lists { return d.lists }

// Variables returns the variable table.
func (d *Document) Variables() *Variables { return d.variables }

// CustomParts returns the custom part collection.
func (d *Document) CustomParts() *CustomParts { return d.parts }

// SetMutationHook installs h; nil removes it.
func (d *Document) SetMutationHook(h MutationHook) {
	d.hook = h
}

// MutationHook returns the installed hook.
func (d *Document) MutationHook() MutationHook {
	return d.hook
}

// SuspendHook disables the mutation hook until the returned func is called.
// Calls nest.
func (d *Document) SuspendHook() (resume func()) {
	d.suspended++
	done := false
	return func() {
		if !done {
			done = true
			d.suspended--
		}
	}
}

func (d *Document) activeHook() MutationHook {
	if d.suspended > 0 {
		return nil
	}
	return d.hook
}

// SetNodeChangingCallback installs cb; nil removes it.
func (d *Document) SetNodeChangingCallback(cb NodeChangingCallback) {
	d.nodeChanging = cb
}

func (d *Document) notify(args NodeChangeArgs) {
	if d.nodeChanging != nil {
		d.nodeChanging(d, args)
	}
}

// Valid reports whether id refers to a live node of this document.
func (d *Document) Valid(id NodeID) bool {
	return id > 0 && int(id) < len(d.nodes) && !d.nodes[id].dead
}

// Check returns an InvalidStateError for an unknown or deleted handle.
func (d *Document) Check(id NodeID) error {
	if !d.Valid(id) {
		return errors.NewInvalidState("node access", "node handle is not live")
	}
	return nil
}

func (d *Document) rec(id NodeID) *record {
	if !d.Valid(id) {
		return nil
	}
	return &d.nodes[id]
}

// Type returns the node type, or NodeTypeAny for a dead handle.
func (d *Document) Type(id NodeID) NodeType {
	if r := d.rec(id); r != nil {
		return r.typ
	}
	return NodeTypeAny
}

// Parent returns the parent handle, NoNode when detached.
func (d *Document) Parent(id NodeID) NodeID {
	if r := d.rec(id); r != nil {
		return r.parent
	}
	return NoNode
}

// Children returns a snapshot of the children of id.
func (d *Document) Children(id NodeID) []NodeID {
	if r := d.rec(id); r != nil {
		return append([]NodeID(nil), r.children...)
	}
	return nil
}

// ChildCount returns the number of children.
func (d *Document) ChildCount(id NodeID) int {
	if r := d.rec(id); r != nil {
		return len(r.children)
	}
	return 0
}

// Child returns the i-th child.
func (d *Document) Child(id NodeID, i int) (NodeID, error) {
	r := d.rec(id)
	if r == nil {
		return NoNode, d.Check(id)
	}
	if i < 0 || i >= len(r.children) {
		return NoNode, errors.NewRange("children", i, len(r.children))
	}
	return r.children[i], nil
}

// FirstChild returns the first child or NoNode.
func (d *Document) FirstChild(id NodeID) NodeID {
	if r := d.rec(id); r != nil && len(r.children) > 0 {
		return r.children[0]
	}
	return NoNode
}

// LastChild returns the last child or NoNode.
func (d *Document) LastChild(id NodeID) NodeID {
	if r := d.rec(id); r != nil && len(r.children) > 0 {
		return r.children[len(r.children)-1]
	}
	return NoNode
}

// IndexOf returns the position of child within its parent, or -1.
func (d *Document) IndexOf(child NodeID) int {
	p := d.rec(d.Parent(child))
	if p == nil {
		return -1
	}
	for i, c := range p.children {
		if c == child {
			return i
		}
	}
	return -1
}

// NextSibling returns the following sibling or NoNode.
func (d *Document) NextSibling(id NodeID) NodeID {
	p := d.rec(d.Parent(id))
	if i := d.IndexOf(id); p != nil && i >= 0 && i+1 < len(p.children) {
		return p.children[i+1]
	}
	return NoNode
}

// PreviousSibling returns the preceding sibling or NoNode.
func (d *Document) PreviousSibling(id NodeID) NodeID {
	p := d.rec(d.Parent(id))
	if i := d.IndexOf(id); p != nil && i > 0 {
		return p.children[i-1]
	}
	return NoNode
}

// Ancestor returns the nearest proper ancestor of type t, or NoNode.
func (d *Document) Ancestor(id NodeID, t NodeType) NodeID {
	for p := d.Parent(id); p != NoNode; p = d.Parent(p) {
		if d.Type(p) == t {
			return p
		}
	}
	return NoNode
}

// IsAncestor reports whether a is a proper ancestor of n.
func (d *Document) IsAncestor(a, n NodeID) bool {
	for p := d.Parent(n); p != NoNode; p = d.Parent(p) {
		if p == a {
			return true
		}
	}
	return false
}

// IsAttached reports whether id is reachable from the root.
func (d *Document) IsAttached(id NodeID) bool {
	if !d.Valid(id) {
		return false
	}
	return id == d.root || d.IsAncestor(d.root, id)
}

// Text returns the text of a Run.
func (d *Document) Text(id NodeID) string {
	if r := d.rec(id); r != nil {
		return r.text
	}
	return ""
}

// Format returns the direct formatting of a node.
func (d *Document) Format(id NodeID) Formatting {
	if r := d.rec(id); r != nil {
		return r.format
	}
	return Formatting{}
}

// Attrs returns the type-specific payload of a node.
func (d *Document) Attrs(id NodeID) Attrs {
	if r := d.rec(id); r != nil {
		return r.attrs.clone()
	}
	return Attrs{}
}

// ChildNodes lists nodes of type t under id in document order. With
// recursive false only direct children are considered. NodeTypeAny matches
// every type.
func (d *Document) ChildNodes(id NodeID, t NodeType, recursive bool) []NodeID {
	var out []NodeID
	var walk func(NodeID)
	walk = func(n NodeID) {
		for _, c := range d.Children(n) {
			if t == NodeTypeAny || d.Type(c) == t {
				out = append(out, c)
			}
			if recursive {
				walk(c)
			}
		}
	}
	walk(id)
	return out
}

// Sections returns the sections of the document.
func (d *Document) Sections() []NodeID {
	return d.ChildNodes(d.root, NodeSection, false)
}

// FirstSection returns the first section or NoNode.
func (d *Document) FirstSection() NodeID {
	return d.FirstChild(d.root)
}

// LastSection returns the last section or NoNode.
func (d *Document) LastSection() NodeID {
	return d.LastChild(d.root)
}

// Body returns the Body of a section.
func (d *Document) Body(section NodeID) NodeID {
	for _, c := range d.Children(section) {
		if d.Type(c) == NodeBody {
			return c
		}
	}
	return NoNode
}

// HeaderFooter returns the header or footer of a section in slot kind.
func (d *Document) HeaderFooter(section NodeID, kind HeaderFooterType) NodeID {
	for _, c := range d.Children(section) {
		if d.Type(c) == NodeHeaderFooter && d.nodes[c].attrs.HeaderFooter == kind {
			return c
		}
	}
	return NoNode
}

// NewNode allocates a detached node of type t.
func (d *Document) NewNode(t NodeType) (NodeID, error) {
	if !t.IsValid() || t == NodeDocument {
		return NoNode, errors.NewValidation("node type", "cannot create node of type "+t.String())
	}
	id := d.alloc(t)
	switch t {
	case NodeSection:
		d.nodes[id].attrs.SectionStart = SectionContinuous
	case NodeBreak:
		d.nodes[id].attrs.Break = BreakPage
	case NodeShape:
		d.nodes[id].attrs.Shape = ShapeTextBox
	case NodeFootnote:
		d.nodes[id].attrs.Footnote = Footnote
	}
	return id, nil
}

func (d *Document) mustNew(t NodeType) NodeID {
	id, err := d.NewNode(t)
	if err != nil {
		panic(err)
	}
	return id
}

// NewRun allocates a detached run.
func (d *Document) NewRun(text string, f Formatting) NodeID {
	id := d.mustNew(NodeRun)
	d.nodes[id].text = text
	d.nodes[id].format = f
	return id
}

// NewParagraph allocates a detached paragraph, with one run when text is non-empty.
func (d *Document) NewParagraph(text string) NodeID {
	p := d.mustNew(NodeParagraph)
	if text != "" {
		r := d.NewRun(text, Formatting{})
		d.nodes[p].children = []NodeID{r}
		d.nodes[r].parent = p
	}
	return p
}

// NewSection allocates a detached section containing an empty body.
func (d *Document) NewSection() NodeID {
	s := d.mustNew(NodeSection)
	b := d.mustNew(NodeBody)
	d.nodes[s].children = []NodeID{b}
	d.nodes[b].parent = s
	return s
}

// NewBreak allocates a detached break.
func (d *Document) NewBreak(kind BreakType) NodeID {
	id := d.mustNew(NodeBreak)
	d.nodes[id].attrs.Break = kind
	return id
}

// NewField allocates a detached field with the given code and displayed result.
func (d *Document) NewField(code, result string) NodeID {
	id := d.mustNew(NodeField)
	d.nodes[id].attrs.FieldCode = code
	d.nodes[id].attrs.FieldResult = result
	return id
}

// NewImage stores data in Media and allocates a detached image referencing it.
func (d *Document) NewImage(contentType string, data []byte, width, height float64) NodeID {
	id := d.mustNew(NodeImage)
	d.nodes[id].attrs.Media = d.Media.Put(contentType, data)
	d.nodes[id].attrs.Width = width
	d.nodes[id].attrs.Height = height
	return id
}

// SetAttrs replaces the payload of a node.
func (d *Document) SetAttrs(id NodeID, a Attrs) error {
	r := d.rec(id)
	if r == nil {
		return d.Check(id)
	}
	r.attrs = a.clone()
	d.bump()
	return nil
}

// SetText replaces the text of a Run.
func (d *Document) SetText(id NodeID, text string) error {
	r := d.rec(id)
	if r == nil {
		return d.Check(id)
	}
	if r.typ != NodeRun {
		return errors.NewValidation("text", "only runs carry text, not "+r.typ.String())
	}
	if r.text == text {
		return nil
	}
	if h := d.activeHook(); h != nil && d.IsAttached(id) {
		h.TextChanging(d, id, r.text)
		r = d.rec(id)
	}
	r.text = text
	d.bump()
	return nil
}

// SetFormat replaces the direct formatting of a node.
func (d *Document) SetFormat(id NodeID, f Formatting) error {
	r := d.rec(id)
	if r == nil {
		return d.Check(id)
	}
	if r.format == f {
		return nil
	}
	if h := d.activeHook(); h != nil && d.IsAttached(id) {
		h.FormatChanging(d, id, r.format)
		r = d.rec(id)
	}
	r.format = f
	d.bump()
	return nil
}

// validateInsert checks that child may be placed under parent before ref.
func (d *Document) validateInsert(parent, child, ref NodeID) error {
	pr, cr := d.rec(parent), d.rec(child)
	if pr == nil {
		return d.Check(parent)
	}
	if cr == nil {
		return d.Check(child)
	}
	if child == d.root {
		return errors.NewStructure(pr.typ.String(), cr.typ.String(), "the document node cannot be a child")
	}
	if !pr.typ.IsComposite() {
		return errors.NewStructure(pr.typ.String(), cr.typ.String(), pr.typ.String()+" is a leaf")
	}
	if !pr.typ.CanContain(cr.typ) {
		return errors.NewStructure(pr.typ.String(), cr.typ.String(), "")
	}
	if child == parent || d.IsAncestor(child, parent) {
		return errors.NewStructure(pr.typ.String(), cr.typ.String(), "a node cannot contain itself")
	}
	if cr.typ == NodeBody && cr.parent != parent && d.Body(parent) != NoNode {
		return errors.NewStructure(pr.typ.String(), cr.typ.String(), "section already has a body")
	}
	if ref != NoNode {
		if ref == child {
			return errors.NewStructure(pr.typ.String(), cr.typ.String(), "reference node is the node being inserted")
		}
		if d.Parent(ref) != parent {
			return errors.NewInvalidState("insert", "reference node is not a child of the parent")
		}
	}
	return nil
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child NodeID) error {
	return d.InsertBefore(parent, child, NoNode)
}

// InsertAfter attaches child immediately after ref; NoNode prepends.
func (d *Document) InsertAfter(parent, child, ref NodeID) error {
	if ref == NoNode {
		return d.InsertBefore(parent, child, d.FirstChild(parent))
	}
	next := d.NextSibling(ref)
	if d.Parent(ref) != parent {
		return errors.NewInvalidState("insert", "reference node is not a child of the parent")
	}
	if next == child {
		next = d.NextSibling(child)
	}
	return d.InsertBefore(parent, child, next)
}

// InsertBefore attaches child under parent immediately before ref, or last
// when ref is NoNode. A child attached elsewhere is moved; while revisions
// are tracked the hook may leave it in place and insert a copy instead.
// The operation is validated in full before anything changes.
func (d *Document) InsertBefore(parent, child, ref NodeID) error {
	if err := d.validateInsert(parent, child, ref); err != nil {
		return err
	}

	oldParent := d.nodes[child].parent
	if oldParent != NoNode {
		if h := d.activeHook(); h != nil && d.IsAttached(child) && d.IsAttached(parent) {
			if h.NodeMoving(d, child, parent, ref) {
				return nil
			}
		}
		d.detach(child)
	}

	pr := &d.nodes[parent]
	pos := len(pr.children)
	if ref != NoNode {
		for i, c := range pr.children {
			if c == ref {
				pos = i
				break
			}
		}
	}
	children := make([]NodeID, 0, len(pr.children)+1)
	children = append(children, pr.children[:pos]...)
	children = append(children, child)
	children = append(children, pr.children[pos:]...)
	pr.children = children
	pr.childGen++
	d.nodes[child].parent = parent
	d.bump()

	if h := d.activeHook(); h != nil && d.IsAttached(parent) {
		h.NodeInserted(d, child)
	}
	d.notify(NodeChangeArgs{Node: child, OldParent: oldParent, NewParent: parent, Action: NodeInserted})
	return nil
}

// detach unlinks id from its parent. The subtree stays intact.
func (d *Document) detach(id NodeID) {
	r := &d.nodes[id]
	p := &d.nodes[r.parent]
	children := make([]NodeID, 0, len(p.children))
	for _, c := range p.children {
		if c != id {
			children = append(children, c)
		}
	}
	p.children = children
	p.childGen++
	r.parent = NoNode
	d.bump()
}

// Remove detaches node and its whole subtree from the tree. The detached
// subtree stays valid and may be inserted again. While revisions are
// tracked the hook may keep the node attached and flag it instead.
func (d *Document) Remove(node NodeID) error {
	r := d.rec(node)
	if r == nil {
		return d.Check(node)
	}
	if node == d.root {
		return errors.NewStructure("none", NodeDocument.String(), "the document node cannot be removed")
	}
	if r.parent == NoNode {
		return errors.NewInvalidState("remove", "node is not attached")
	}
	if h := d.activeHook(); h != nil && d.IsAttached(node) {
		if h.NodeRemoving(d, node) {
			return nil
		}
		if !d.Valid(node) || d.nodes[node].parent == NoNode {
			return nil
		}
	}
	oldParent := d.nodes[node].parent
	d.detach(node)
	d.notify(NodeChangeArgs{Node: node, OldParent: oldParent, Action: NodeRemoved})
	return nil
}

// Delete permanently removes node and its subtree, bypassing revision
// tracking. Handles into the subtree become invalid.
func (d *Document) Delete(node NodeID) error {
	r := d.rec(node)
	if r == nil {
		return d.Check(node)
	}
	if node == d.root {
		return errors.NewStructure("none", NodeDocument.String(), "the document node cannot be removed")
	}
	oldParent := r.parent
	if oldParent != NoNode {
		d.detach(node)
	}
	var kill func(NodeID)
	kill = func(n NodeID) {
		for _, c := range d.nodes[n].children {
			kill(c)
		}
		d.nodes[n] = record{typ: d.nodes[n].typ, dead: true}
	}
	kill(node)
	d.bump()
	if oldParent != NoNode {
		d.notify(NodeChangeArgs{Node: node, OldParent: oldParent, Action: NodeRemoved})
	}
	return nil
}

// RemoveAllChildren deletes every child of id.
func (d *Document) RemoveAllChildren(id NodeID) error {
	if err := d.Check(id); err != nil {
		return err
	}
	for _, c := range d.Children(id) {
		if err := d.Remove(c); err != nil {
			return err
		}
	}
	return nil
}

// Iterator walks the children of one node and fails fast when that child
// sequence is changed by anything other than the iterator itself.
type Iterator struct {
	doc    *Document
	parent NodeID
	gen    uint64
	pos    int
	cur    NodeID
	err    error
}

// Iterate returns an iterator over the children of parent.
func (d *Document) Iterate(parent NodeID) *Iterator {
	it := &Iterator{doc: d, parent: parent, pos: -1}
	if r := d.rec(parent); r != nil {
		it.gen = r.childGen
	} else {
		it.err = d.Check(parent)
	}
	return it
}

// Next advances and reports whether a child is available.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	r := it.doc.rec(it.parent)
	if r == nil {
		it.err = it.doc.Check(it.parent)
		return false
	}
	if r.childGen != it.gen {
		it.err = errors.NewInvalidState("iterate", "children changed during iteration")
		return false
	}
	it.pos++
	if it.pos >= len(r.children) {
		return false
	}
	it.cur = r.children[it.pos]
	return true
}

// Node returns the current child.
func (it *Iterator) Node() NodeID {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Walk visits id and its descendants in document order. Each node's
// children are snapshotted before descending so fn may mutate the tree;
// nodes removed by fn before they are reached are skipped. Returning false
// from fn prunes that node's subtree.
func (d *Document) Walk(id NodeID, fn func(NodeID) bool) {
	if !d.Valid(id) {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range d.Children(id) {
		if d.Valid(c) && d.Parent(c) == id {
			d.Walk(c, fn)
		}
	}
}
