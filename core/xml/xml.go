// Package xml wraps xmlquery for the XML-based codecs: parsing with entity
// expansion disabled, XPath lookups, mixed-content walking, pretty-printing
// and a small deterministic writer.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities, and Validate disables internal
//     entity expansion as well.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/folio/core/encoding"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element or text node.
type Node struct {
	node *xmlquery.Node
}

// ValidationError is the first well-formedness problem in an input.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// FormatOptions controls XML formatting behavior.
type FormatOptions struct {
	Indent string // Indentation string (e.g., "  " or "\t")
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks that data is well-formed and returns a *ValidationError
// positioned at the first problem.
//
// Security: entity expansion is disabled (CWE-611).
func Validate(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Entity = map[string]string{}
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			line, col := decoder.InputPos()
			return &ValidationError{Line: line, Column: col, Message: err.Error()}
		}
	}
}

// Format formats/pretty-prints XML data.
func Format(data []byte, opts FormatOptions) ([]byte, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	formatNode(&buf, doc.root, 0, opts.Indent)
	return buf.Bytes(), nil
}

// formatNode recursively formats an XML node. Elements holding text keep
// it inline and unchanged so that significant whitespace survives.
func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			formatNode(w, child, depth, indent)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			fmt.Fprintf(w, " %s=\"%s\"", attr.Name.Local, encoding.EscapeXMLAttr(attr.Value))
		}
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		writeIndent(w, depth, indent)
		name := qualified(n.Prefix, n.Data)
		w.WriteString("<" + name)
		for _, attr := range n.Attr {
			fmt.Fprintf(w, " %s=\"%s\"", qualified(attr.Name.Space, attr.Name.Local), encoding.EscapeXMLAttr(attr.Value))
		}
		if n.FirstChild == nil {
			w.WriteString("/>\n")
			return
		}
		if inline(n) {
			w.WriteString(">")
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				switch child.Type {
				case xmlquery.TextNode:
					w.WriteString(encoding.EscapeXMLText(child.Data))
				case xmlquery.CharDataNode:
					w.WriteString("<![CDATA[" + child.Data + "]]>")
				default:
					w.WriteString(child.OutputXML(true))
				}
			}
			w.WriteString("</" + name + ">\n")
			return
		}
		w.WriteString(">\n")
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			formatNode(w, child, depth+1, indent)
		}
		writeIndent(w, depth, indent)
		w.WriteString("</" + name + ">\n")

	case xmlquery.CharDataNode:
		writeIndent(w, depth, indent)
		w.WriteString("<![CDATA[" + n.Data + "]]>\n")

	case xmlquery.CommentNode:
		writeIndent(w, depth, indent)
		w.WriteString("<!--" + n.Data + "-->\n")
	}
}

// inline reports whether n keeps its content on one line: it holds
// non-blank text, or text and no elements at all.
func inline(n *xmlquery.Node) bool {
	elements := false
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if strings.TrimSpace(child.Data) != "" {
				return true
			}
		case xmlquery.ElementNode:
			elements = true
		}
	}
	return !elements
}

func qualified(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return queryAll(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first matching node,
// or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	return queryFirst(d.root, expr)
}

// Serialize converts the document back to XML bytes.
func (d *Document) Serialize() []byte {
	if d.root == nil {
		return nil
	}
	return []byte(d.root.OutputXML(true))
}

func queryAll(n *xmlquery.Node, expr string) ([]*Node, error) {
	if n == nil {
		return nil, nil
	}
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(n, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, m := range nodes {
		result[i] = &Node{node: m}
	}
	return result, nil
}

func queryFirst(n *xmlquery.Node, expr string) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	m, err := xmlquery.Query(n, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	return &Node{node: m}, nil
}

// Local returns an XPath step matching elements by local name in any
// namespace, e.g. Local("body") is *[local-name()='body'].
func Local(name string) string {
	return "*[local-name()='" + name + "']"
}

// XPath runs expr relative to n.
func (n *Node) XPath(expr string) ([]*Node, error) {
	return queryAll(n.raw(), expr)
}

// XPathFirst runs expr relative to n and returns the first match or nil.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	return queryFirst(n.raw(), expr)
}

// Name returns the local element name without its prefix.
func (n *Node) Name() string {
	x := n.raw()
	if x == nil || x.Type != xmlquery.ElementNode {
		return ""
	}
	return x.Data
}

// IsText reports whether n is a text or CDATA node.
func (n *Node) IsText() bool {
	x := n.raw()
	return x != nil && (x.Type == xmlquery.TextNode || x.Type == xmlquery.CharDataNode)
}

// Text returns the text content of the node and its descendants.
func (n *Node) Text() string {
	if n.raw() == nil {
		return ""
	}
	return n.raw().InnerText()
}

// InnerXML returns the inner XML of the node.
func (n *Node) InnerXML() string {
	if n.raw() == nil {
		return ""
	}
	var buf bytes.Buffer
	for child := n.raw().FirstChild; child != nil; child = child.NextSibling {
		buf.WriteString(child.OutputXML(true))
	}
	return buf.String()
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	var children []*Node
	for _, c := range n.Nodes() {
		if !c.IsText() {
			children = append(children, c)
		}
	}
	return children
}

// Nodes returns child elements and text nodes in document order.
func (n *Node) Nodes() []*Node {
	if n.raw() == nil {
		return nil
	}
	var out []*Node
	for child := n.raw().FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode, xmlquery.TextNode, xmlquery.CharDataNode:
			out = append(out, &Node{node: child})
		}
	}
	return out
}

// Child returns the first child element with the given local name, or nil.
// Methods on a nil *Node return zero values, so lookups can be chained.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Attributes returns all attributes of the node keyed by local name.
func (n *Node) Attributes() map[string]string {
	if n.raw() == nil {
		return nil
	}
	attrs := make(map[string]string)
	for _, attr := range n.raw().Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Attr returns the value of an attribute. A prefix in name is ignored, so
// "w:val" and "val" find the same attribute.
func (n *Node) Attr(name string) string {
	v, _ := n.LookupAttr(name)
	return v
}

// LookupAttr is Attr that also reports whether the attribute exists.
func (n *Node) LookupAttr(name string) (string, bool) {
	if n.raw() == nil {
		return "", false
	}
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	for _, attr := range n.raw().Attr {
		if attr.Name.Local == name {
			return attr.Value, true
		}
	}
	return "", false
}

func (n *Node) raw() *xmlquery.Node {
	if n == nil {
		return nil
	}
	return n.node
}
