package components

import (
	"io"
	"sort"
	"strings"

	"github.com/johnjansen/stamp/markup"
)

// MaxPasses is the default number of expansion passes a document may take
// before expansion is considered runaway.
const MaxPasses = 100

// Expander expands component instances in documents.
//
// The zero value is ready to use. An Expander holds no per-document state
// and may be shared between goroutines.
type Expander struct {
	// MaxPasses bounds the number of passes per document. Zero means
	// MaxPasses.
	MaxPasses int

	// Annotate surrounds every expansion with <!-- Name --> and
	// <!-- /Name --> comments, which helps when debugging nested components.
	Annotate bool
}

// Expand runs a single post-order expansion pass over root and returns the
// number of instances replaced.
//
// A node's original children are processed before the node itself is
// tested. Replacement content is spliced into the parent in place of the
// instance and is not revisited in the same pass.
func Expand(root *markup.Node, reg *Registry) (int, error) {
	var e Expander
	return e.Pass(root, reg)
}

// ExpandDocument expands every component instance in src until none remain
// and returns the resulting markup.
func ExpandDocument(src string, reg *Registry) (string, error) {
	var e Expander
	return e.Document("", src, reg)
}

// ExpandString expands a markup fragment. It is ExpandDocument under a name
// that reads better for snippets.
func ExpandString(fragment string, reg *Registry) (string, error) {
	return ExpandDocument(fragment, reg)
}

// ExpandReader reads markup from r and expands it.
func ExpandReader(r io.Reader, reg *Registry) (string, error) {
	var e Expander
	doc, err := markup.Parse(r)
	if err != nil {
		return "", &ParseError{Reason: "parsing document", Cause: err}
	}
	if _, err := e.Tree("", doc, reg); err != nil {
		return "", err
	}
	return doc.String(), nil
}

// Pass runs a single expansion pass over root. See Expand.
func (e *Expander) Pass(root *markup.Node, reg *Registry) (int, error) {
	return e.expandChildren(root, reg)
}

// Document expands src completely. name identifies the document in errors
// and may be empty.
func (e *Expander) Document(name, src string, reg *Registry) (string, error) {
	doc, err := markup.ParseString(src)
	if err != nil {
		return "", &ParseError{Document: name, Reason: "parsing document", Cause: err}
	}
	if _, err := e.Tree(name, doc, reg); err != nil {
		return "", err
	}
	return doc.String(), nil
}

// Tree expands root in place, running passes until one replaces nothing, and
// returns the number of passes that made replacements.
//
// A document that uses a component whose templates refer back to itself is
// rejected up front with a RecursionLimitError naming the cycle. Expansion
// that still has not settled after MaxPasses passes is a RecursionLimitError
// as well.
func (e *Expander) Tree(name string, root *markup.Node, reg *Registry) (int, error) {
	if cycle := reg.cycleFrom(instanceTags(root, reg)); cycle != nil {
		return 0, &RecursionLimitError{Cycle: cycle, Components: []string{cycle[0]}, Document: name}
	}

	limit := e.MaxPasses
	if limit <= 0 {
		limit = MaxPasses
	}

	for pass := 0; pass < limit; pass++ {
		n, err := e.Pass(root, reg)
		if err != nil {
			return pass, withDocument(err, name)
		}
		if n == 0 {
			return pass, nil
		}
	}

	remaining := instanceTags(root, reg)
	if len(remaining) == 0 {
		return limit, nil
	}
	return limit, &RecursionLimitError{Passes: limit, Components: remaining, Document: name}
}

func (e *Expander) expandChildren(n *markup.Node, reg *Registry) (int, error) {
	count := 0
	for i := 0; i < len(n.Children); i++ {
		child := n.Children[i]
		if child.Type != markup.ElementNode {
			continue
		}

		sub, err := e.expandChildren(child, reg)
		count += sub
		if err != nil {
			return count, err
		}

		c, ok := reg.Lookup(child.Tag)
		if !ok {
			continue
		}

		repl, err := e.instantiate(child, c)
		if err != nil {
			return count, err
		}
		n.ReplaceChild(i, repl...)
		i += len(repl) - 1
		count++
	}
	return count, nil
}

// instantiate returns the nodes that replace instance.
func (e *Expander) instantiate(instance *markup.Node, c *Component) ([]*markup.Node, error) {
	if !instance.Closed() {
		return nil, &ParseError{Component: c.Name, Reason: "instance <" + instance.Tag + "> is never closed"}
	}

	actual, err := Extract(instance, c.Parameters)
	if err != nil {
		return nil, err
	}

	nodes, err := markup.ParseFragment(Populate(c, actual))
	if err != nil {
		return nil, &ParseError{Component: c.Name, Reason: "parsing expanded template", Cause: err}
	}

	if e.Annotate {
		wrapped := make([]*markup.Node, 0, len(nodes)+2)
		wrapped = append(wrapped, markup.NewComment(" "+c.Name+" "))
		wrapped = append(wrapped, nodes...)
		wrapped = append(wrapped, markup.NewComment(" /"+c.Name+" "))
		nodes = wrapped
	}
	return nodes, nil
}

// instanceTags returns the sorted, distinct tags of the component instances
// in n's subtree.
func instanceTags(n *markup.Node, reg *Registry) []string {
	seen := make(map[string]bool)
	var walk func(*markup.Node)
	walk = func(n *markup.Node) {
		if n.Type == markup.ElementNode && reg.Has(n.Tag) {
			seen[n.Tag] = true
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// containsInstance reports whether s mentions any registered tag at all. It
// is a cheap pre-check before parsing.
func containsInstance(s string, reg *Registry) bool {
	for name := range reg.components {
		if strings.Contains(s, "<"+name) {
			return true
		}
	}
	return false
}
