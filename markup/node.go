// Package markup provides the document tree that component expansion
// operates on.
//
// The tree is built from the golang.org/x/net/html tokenizer rather than the
// full HTML5 tree builder. The HTML5 builder lower-cases tag names, moves
// unknown elements around and ignores the self-closing flag on non-void
// elements, all of which corrupt component markup such as:
//
//	<Greeting><Name>World</Name></Greeting>
//	Hello <Name/>!
//
// Instead, every node keeps the raw source text of its tags, so rendering an
// untouched tree reproduces the input byte for byte. Only the parts of a
// document that are replaced during expansion change.
//
// Tag names are case-sensitive. HTML-specific behaviour (void elements such
// as <br>, raw text in <script> and <style>, end tags matched regardless of
// case) applies only to HTML names written all in lower or all in upper
// case, so a component named "Title" or "Input" behaves like any other
// element and </greeting> does not close <Greeting>.
package markup

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// NodeType identifies the kind of a Node.
type NodeType uint32

const (
	// DocumentNode is the root of a parsed document or fragment.
	DocumentNode NodeType = iota
	// ElementNode is a start tag with its children and end tag.
	ElementNode
	// TextNode is character data, kept exactly as written.
	TextNode
	// CommentNode is an HTML comment.
	CommentNode
	// DoctypeNode is a <!DOCTYPE ...> declaration.
	DoctypeNode
	// RawNode is source text that does not fit the tree, such as an end
	// tag with no matching start tag. It is rendered verbatim.
	RawNode
)

func (t NodeType) String() string {
	switch t {
	case DocumentNode:
		return "document"
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	case DoctypeNode:
		return "doctype"
	case RawNode:
		return "raw"
	default:
		return "unknown"
	}
}

// Node is a single node of a markup tree.
//
// A node owns its Children slice. There are no parent pointers: replacing a
// node is a splice on the parent's child slice (see ReplaceChild).
type Node struct {
	Type NodeType

	// Tag is the element name exactly as written in the source
	// (case preserved). Empty for non-element nodes.
	Tag string

	// Attr holds the element's attributes as reported by the tokenizer.
	// Attribute keys are lower-cased; rendering uses the raw start tag, so
	// Attr is informational.
	Attr []html.Attribute

	// Data is the raw source of text, comment, doctype and raw nodes.
	Data string

	// SelfClosing is set for elements written as <tag/>.
	SelfClosing bool

	Children []*Node

	start string
	end   string
}

// NewComment returns a comment node containing text.
func NewComment(text string) *Node {
	return &Node{Type: CommentNode, Data: "<!--" + text + "-->"}
}

// Closed reports whether an element was explicitly terminated, either by a
// matching end tag, by the self-closing syntax, or because it is a void
// element. Elements closed only by the end of their parent (or of the
// document) report false.
func (n *Node) Closed() bool {
	if n.Type != ElementNode {
		return true
	}
	return n.SelfClosing || n.end != "" || isVoid(n.Tag)
}

// ChildElement returns the first direct child element whose tag equals tag.
func (n *Node) ChildElement(tag string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Type == ElementNode && c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// ReplaceChild replaces the child at index i with nodes. Passing no nodes
// removes the child.
func (n *Node) ReplaceChild(i int, nodes ...*Node) {
	rest := append([]*Node(nil), n.Children[i+1:]...)
	n.Children = append(append(n.Children[:i], nodes...), rest...)
}

// AppendChild adds nodes to the end of n's children.
func (n *Node) AppendChild(nodes ...*Node) {
	n.Children = append(n.Children, nodes...)
}

// Find returns the first element in n's subtree (n included) for which
// match returns true, searching depth first in document order.
func (n *Node) Find(match func(*Node) bool) (*Node, bool) {
	if n.Type == ElementNode && match(n) {
		return n, true
	}
	for _, c := range n.Children {
		if found, ok := c.Find(match); ok {
			return found, true
		}
	}
	return nil, false
}

// String renders n, including its own tags, to markup.
func (n *Node) String() string {
	var buf bytes.Buffer
	_ = Render(&buf, n)
	return buf.String()
}

// InnerMarkup renders n's children to markup, without n's own tags.
func (n *Node) InnerMarkup() string {
	var buf bytes.Buffer
	for _, c := range n.Children {
		_ = Render(&buf, c)
	}
	return buf.String()
}

// Render writes the markup for n and its subtree to w.
func Render(w io.Writer, n *Node) error {
	sw, ok := w.(io.StringWriter)
	if !ok {
		sw = &stringWriter{w}
	}
	return render(sw, n)
}

func render(w io.StringWriter, n *Node) error {
	switch n.Type {
	case DocumentNode:
		for _, c := range n.Children {
			if err := render(w, c); err != nil {
				return err
			}
		}
		return nil
	case ElementNode:
		if _, err := w.WriteString(n.startTag()); err != nil {
			return err
		}
		if n.SelfClosing {
			return nil
		}
		for _, c := range n.Children {
			if err := render(w, c); err != nil {
				return err
			}
		}
		end := n.end
		if n.start == "" && !isVoid(n.Tag) {
			end = "</" + n.Tag + ">"
		}
		_, err := w.WriteString(end)
		return err
	default:
		_, err := w.WriteString(n.Data)
		return err
	}
}

// startTag returns the raw start tag, or a synthesized one for elements that
// were not produced by the parser.
func (n *Node) startTag() string {
	if n.start != "" {
		return n.start
	}
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	if n.SelfClosing {
		b.WriteByte('/')
	}
	b.WriteByte('>')
	return b.String()
}

type stringWriter struct {
	w io.Writer
}

func (s *stringWriter) WriteString(str string) (int, error) {
	return s.w.Write([]byte(str))
}
