package components

import "strings"

// Populate returns c's template with every <P/> marker replaced by
// actual[P], for each declared parameter P.
//
// Values are inserted verbatim. Markers or instances inside a value are left
// for the next expansion pass.
func Populate(c *Component, actual map[string]string) string {
	if len(c.Parameters) == 0 {
		return c.Template
	}
	// One pass: a marker inside an inserted value stays as written.
	pairs := make([]string, 0, 2*len(c.Parameters))
	for _, p := range c.Parameters {
		pairs = append(pairs, "<"+p+"/>", actual[p])
	}
	return strings.NewReplacer(pairs...).Replace(c.Template)
}

// RestoreSelfClosing rewrites each empty <P></P> pair back to the <P/>
// marker form.
//
// Serializing a tree can turn markers into open/close pairs; this puts them
// back so they stay recognizable to Populate.
func RestoreSelfClosing(s string, params []string) string {
	for _, p := range params {
		s = strings.ReplaceAll(s, "<"+p+"></"+p+">", "<"+p+"/>")
	}
	return s
}
