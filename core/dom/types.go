package dom

import (
	"fmt"
)

// NodeID is a handle into a document's node arena. Handles are never
// reused within one document, so a stale handle cannot alias a new node.
type NodeID int32

// NoNode is the null handle.
const NoNode NodeID = 0

// NodeType identifies the variant of a node.
type NodeType string

// Node types. Composite types own ordered children; the rest are leaves.
const (
	NodeTypeAny           NodeType = ""
	NodeDocument          NodeType = "Document"
	NodeSection           NodeType = "Section"
	NodeBody              NodeType = "Body"
	NodeHeaderFooter      NodeType = "HeaderFooter"
	NodeParagraph         NodeType = "Paragraph"
	NodeTable             NodeType = "Table"
	NodeRow               NodeType = "Row"
	NodeCell              NodeType = "Cell"
	NodeComment           NodeType = "Comment"
	NodeFootnote          NodeType = "Footnote"
	NodeShape             NodeType = "Shape"
	NodeSmartTag          NodeType = "SmartTag"
	NodeRun               NodeType = "Run"
	NodeBreak             NodeType = "Break"
	NodeField             NodeType = "Field"
	NodeBookmarkStart     NodeType = "BookmarkStart"
	NodeBookmarkEnd       NodeType = "BookmarkEnd"
	NodeCommentRangeStart NodeType = "CommentRangeStart"
	NodeCommentRangeEnd   NodeType = "CommentRangeEnd"
	NodeImage             NodeType = "Image"
)

var compositeTypes = map[NodeType]bool{
	NodeDocument:     true,
	NodeSection:      true,
	NodeBody:         true,
	NodeHeaderFooter: true,
	NodeParagraph:    true,
	NodeTable:        true,
	NodeRow:          true,
	NodeCell:         true,
	NodeComment:      true,
	NodeFootnote:     true,
	NodeShape:        true,
	NodeSmartTag:     true,
}

var leafTypes = map[NodeType]bool{
	NodeRun:               true,
	NodeBreak:             true,
	NodeField:             true,
	NodeBookmarkStart:     true,
	NodeBookmarkEnd:       true,
	NodeCommentRangeStart: true,
	NodeCommentRangeEnd:   true,
	NodeImage:             true,
}

var (
	storyChildren  = []NodeType{NodeParagraph, NodeTable}
	inlineChildren = []NodeType{
		NodeRun, NodeBreak, NodeField, NodeBookmarkStart, NodeBookmarkEnd,
		NodeComment, NodeCommentRangeStart, NodeCommentRangeEnd,
		NodeFootnote, NodeShape, NodeImage, NodeSmartTag,
	}
)

// allowedChildren is the structural grammar of the tree.
var allowedChildren = map[NodeType][]NodeType{
	NodeDocument:     {NodeSection},
	NodeSection:      {NodeBody, NodeHeaderFooter},
	NodeBody:         storyChildren,
	NodeHeaderFooter: storyChildren,
	NodeCell:         storyChildren,
	NodeComment:      {NodeParagraph},
	NodeFootnote:     {NodeParagraph},
	NodeShape:        storyChildren,
	NodeTable:        {NodeRow},
	NodeRow:          {NodeCell},
	NodeParagraph:    inlineChildren,
	NodeSmartTag:     {NodeRun, NodeBreak, NodeField},
}

// IsValid reports whether t is a known concrete node type.
func (t NodeType) IsValid() bool {
	return compositeTypes[t] || leafTypes[t]
}

// IsComposite reports whether nodes of type t may own children.
func (t NodeType) IsComposite() bool {
	return compositeTypes[t]
}

// CanContain reports whether a node of type child may be placed directly under t.
func (t NodeType) CanContain(child NodeType) bool {
	for _, c := range allowedChildren[t] {
		if c == child {
			return true
		}
	}
	return false
}

// IsInline reports whether t lives inside a paragraph.
func (t NodeType) IsInline() bool {
	for _, c := range inlineChildren {
		if c == t {
			return true
		}
	}
	return false
}

// IsStory reports whether t is a container of block-level content.
func (t NodeType) IsStory() bool {
	switch t {
	case NodeBody, NodeHeaderFooter, NodeComment, NodeFootnote, NodeShape:
		return true
	}
	return false
}

// String returns the type name.
func (t NodeType) String() string {
	if t == NodeTypeAny {
		return "Any"
	}
	return string(t)
}

// ParseNodeType converts a name to a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if s == "Any" {
		return NodeTypeAny, nil
	}
	if !t.IsValid() {
		return NodeTypeAny, fmt.Errorf("unknown node type %q", s)
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *NodeType) UnmarshalText(b []byte) error {
	v, err := ParseNodeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// BreakType distinguishes Break leaves.
type BreakType string

const (
	BreakLine   BreakType = "line"
	BreakPage   BreakType = "page"
	BreakColumn BreakType = "column"
)

// SectionStart controls where a section begins during layout.
type SectionStart string

const (
	// SectionContinuous flows the section on the current page.
	SectionContinuous SectionStart = "continuous"
	// SectionNewPage starts the section on a new page.
	SectionNewPage SectionStart = "new_page"
	// SectionNewColumn starts the section in the next column.
	SectionNewColumn SectionStart = "new_column"
)

// HeaderFooterType names the slot a HeaderFooter occupies.
type HeaderFooterType string

const (
	HeaderPrimary HeaderFooterType = "header_primary"
	HeaderFirst   HeaderFooterType = "header_first"
	HeaderEven    HeaderFooterType = "header_even"
	FooterPrimary HeaderFooterType = "footer_primary"
	FooterFirst   HeaderFooterType = "footer_first"
	FooterEven    HeaderFooterType = "footer_even"
)

// IsHeader reports whether h is one of the header slots.
func (h HeaderFooterType) IsHeader() bool {
	return h == HeaderPrimary || h == HeaderFirst || h == HeaderEven
}

// FootnoteType distinguishes footnotes from endnotes.
type FootnoteType string

const (
	Footnote FootnoteType = "footnote"
	Endnote  FootnoteType = "endnote"
)

// ShapeType distinguishes floating shapes.
type ShapeType string

const (
	ShapeTextBox   ShapeType = "textbox"
	ShapeRectangle ShapeType = "rectangle"
)

// Alignment is paragraph alignment.
type Alignment string

const (
	AlignLeft    Alignment = "left"
	AlignCenter  Alignment = "center"
	AlignRight   Alignment = "right"
	AlignJustify Alignment = "justify"
)

// Control characters produced by GetText.
const (
	CharParagraph      = '\r'
	CharCell           = '\a'
	CharSectionBreak   = '\f'
	CharPageBreak      = '\f'
	CharLineBreak      = '\v'
	CharColumnBreak    = '\x0e'
	CharFieldStart     = '\x13'
	CharFieldSeparator = '\x14'
	CharFieldEnd       = '\x15'
	CharFootnoteRef    = '\x02'
)
