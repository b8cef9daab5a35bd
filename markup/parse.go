package markup

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// voidElements never have children or end tags.
var voidElements = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Keygen: true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// rawTextElements switch the tokenizer into raw text mode after their start
// tag: their content is not tokenized as markup. Everything else, <title>
// and <textarea> included, is parsed so the instances inside expand.
var rawTextElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
}

// htmlAtom returns the atom for tag when tag is an HTML element written all
// in lower case or all in upper case, or 0. Mixed case names such as
// "Input" are components.
func htmlAtom(tag string) atom.Atom {
	lower := strings.ToLower(tag)
	if tag == "" || (tag != lower && tag != strings.ToUpper(tag)) {
		return 0
	}
	return atom.Lookup([]byte(lower))
}

// closes reports whether an end tag named name closes the open element tag.
// Component tags match exactly; HTML tags ignore case.
func closes(tag, name string) bool {
	if tag == name {
		return true
	}
	a := htmlAtom(tag)
	return a != 0 && a == htmlAtom(name)
}

func isVoid(tag string) bool {
	return voidElements[htmlAtom(tag)]
}

// SyntaxError reports a failure of the underlying tokenizer.
type SyntaxError struct {
	// Offset is the number of bytes consumed before the failure.
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("markup: syntax error at byte %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Parse reads markup from r and returns the document node.
//
// Parsing is lenient in the way HTML is: unmatched end tags are kept as raw
// nodes and elements left open are closed by their parent's end tag or by
// the end of input. Use Node.Closed to detect the latter.
func Parse(r io.Reader) (*Node, error) {
	z := html.NewTokenizer(r)
	doc := &Node{Type: DocumentNode}
	stack := []*Node{doc}
	offset := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, &SyntaxError{Offset: offset, Err: err}
			}
			return doc, nil
		}

		raw := string(z.Raw())
		offset += len(raw)
		top := stack[len(stack)-1]

		switch tt {
		case html.TextToken:
			top.AppendChild(&Node{Type: TextNode, Data: raw})
		case html.CommentToken:
			top.AppendChild(&Node{Type: CommentNode, Data: raw})
		case html.DoctypeToken:
			top.AppendChild(&Node{Type: DoctypeNode, Data: raw})
		case html.SelfClosingTagToken:
			n := newElement(z, raw)
			n.SelfClosing = true
			// The tokenizer ignores "/>" when deciding on raw text mode.
			z.NextIsNotRawText()
			top.AppendChild(n)
		case html.StartTagToken:
			n := newElement(z, raw)
			top.AppendChild(n)
			a := htmlAtom(n.Tag)
			if !rawTextElements[a] {
				z.NextIsNotRawText()
			}
			if !voidElements[a] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			name := tagName(raw)
			i := len(stack) - 1
			for ; i > 0; i-- {
				if closes(stack[i].Tag, name) {
					break
				}
			}
			if i == 0 {
				top.AppendChild(&Node{Type: RawNode, Data: raw})
				continue
			}
			stack[i].end = raw
			stack = stack[:i]
		}
	}
}

// ParseString parses s and returns the document node.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment parses s and returns its top-level nodes.
func ParseFragment(s string) ([]*Node, error) {
	doc, err := ParseString(s)
	if err != nil {
		return nil, err
	}
	return doc.Children, nil
}

func newElement(z *html.Tokenizer, raw string) *Node {
	n := &Node{Type: ElementNode, Tag: tagName(raw), start: raw}
	tok := z.Token()
	n.Attr = tok.Attr
	return n
}

// tagName extracts the tag name, case preserved, from a raw start or end tag.
func tagName(raw string) string {
	s := strings.TrimPrefix(raw, "<")
	s = strings.TrimPrefix(s, "/")
	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '/' || r == '>'
	})
	if end < 0 {
		return s
	}
	return s[:end]
}
