package components

import (
	"github.com/johnjansen/stamp/markup"
)

// Extract collects the actual parameter values carried by an instance
// element.
//
// For each declared parameter P, the first direct child element of instance
// whose tag is exactly P supplies the value: its inner markup, verbatim.
// <P/> yields the empty string. Elements named P deeper in the instance
// belong to nested markup and are not considered.
func Extract(instance *markup.Node, params []string) (map[string]string, error) {
	values := make(map[string]string, len(params))
	for _, p := range params {
		child, ok := instance.ChildElement(p)
		if !ok {
			return nil, &MissingParameterError{Component: instance.Tag, Parameter: p}
		}
		values[p] = child.InnerMarkup()
	}
	return values, nil
}

// ExtractText is Extract for an instance given as markup text. The first
// element of the markup is taken as the instance.
func ExtractText(instance string, params []string) (map[string]string, error) {
	doc, err := markup.ParseString(instance)
	if err != nil {
		return nil, &ParseError{Reason: "parsing instance", Cause: err}
	}
	for _, n := range doc.Children {
		if n.Type == markup.ElementNode {
			return Extract(n, params)
		}
	}
	return nil, &ParseError{Reason: "no element in instance markup"}
}
