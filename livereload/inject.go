package livereload

import (
	"strings"

	"github.com/johnjansen/stamp/markup"
)

// Script returns the client script that listens on the event stream at path.
func Script(path string) string {
	return `<script>(function(){` +
		`var es=new EventSource("` + path + `");` +
		`es.addEventListener("reload",function(){window.location.reload();});` +
		`})();</script>`
}

// Inject adds the reload script to doc: at the end of <body> when there is
// one, at the end of the document otherwise. It has the signature of a
// components.Transform.
func (b *Broker) Inject(doc *markup.Node) error {
	nodes, err := markup.ParseFragment(Script(b.path))
	if err != nil {
		return err
	}

	body, ok := doc.Find(func(n *markup.Node) bool {
		return strings.EqualFold(n.Tag, "body")
	})
	if !ok {
		body = doc
	}
	body.AppendChild(nodes...)
	return nil
}
