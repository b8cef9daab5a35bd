package components

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

const (
	templateOpen  = "<Template>"
	templateClose = "</Template>"
)

// Component is a reusable markup fragment loaded from a definition file.
//
// A definition looks like:
//
//	<Element>
//	    <Name>Greeting</Name>
//	    <Parameter>Name</Parameter>
//	    <Template><p>Hello <Name/>!</p></Template>
//	</Element>
//
// Every <Greeting> element in a document is replaced by the template, with
// each <Name/> placeholder substituted by the markup found inside the
// instance's <Name> child.
type Component struct {
	// Name is both the component's identity and the tag that triggers it.
	// It is matched case-sensitively against tags as written.
	Name string

	// Parameters lists the declared parameter names, in declaration order,
	// without duplicates.
	Parameters []string

	// Template is the component body with <P/> placeholder markers.
	Template string

	// File is the definition file the component was loaded from, if any.
	File string
}

// definition is the structured part of a definition file, decoded after
// the Template block has been cut out.
type definition struct {
	XMLName    xml.Name `xml:"Element"`
	Name       string   `xml:"Name"`
	Parameters []string `xml:"Parameter"`
}

// ParseDefinition builds a Component from the contents of a definition file.
// file is used only for error reporting.
//
// The template is taken verbatim from between the first <Template> and the
// last </Template> marker, so it may contain markup that is not well-formed
// XML. The remainder of the file is decoded as XML.
func ParseDefinition(file string, src []byte) (*Component, error) {
	open := bytes.Index(src, []byte(templateOpen))
	closing := bytes.LastIndex(src, []byte(templateClose))
	if open < 0 || closing < open+len(templateOpen) {
		c := &DefinitionError{File: file, Reason: "missing <Template>...</Template> block"}
		if name := peekName(src); name != "" {
			c.Component = name
		}
		return nil, c
	}

	template := strings.TrimSpace(string(src[open+len(templateOpen) : closing]))

	rest := make([]byte, 0, len(src))
	rest = append(rest, src[:open]...)
	rest = append(rest, src[closing+len(templateClose):]...)

	var def definition
	if err := xml.Unmarshal(rest, &def); err != nil {
		return nil, &DefinitionError{
			File:      file,
			Component: peekName(src),
			Reason:    unmarshalReason(rest),
			Cause:     err,
		}
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, &DefinitionError{File: file, Reason: "missing <Name>"}
	}

	return &Component{
		Name:       name,
		Parameters: normalizeParameters(def.Parameters),
		Template:   template,
		File:       file,
	}, nil
}

// unmarshalReason describes why rest could not be decoded as a definition.
func unmarshalReason(rest []byte) string {
	d := xml.NewDecoder(bytes.NewReader(rest))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return "no <Element> root"
		}
		if err != nil {
			return "malformed XML"
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "Element" {
				return "definition root must be <Element>, found <" + start.Name.Local + ">"
			}
			return "malformed XML"
		}
	}
}

// normalizeParameters trims names and drops blanks and repeats, keeping the
// first occurrence.
func normalizeParameters(params []string) []string {
	out := make([]string, 0, len(params))
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// peekName returns the text of the first <Name> element, for error messages
// about definitions that could not be decoded.
func peekName(src []byte) string {
	s := string(src)
	i := strings.Index(s, "<Name>")
	if i < 0 {
		return ""
	}
	s = s[i+len("<Name>"):]
	j := strings.Index(s, "</Name>")
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(s[:j])
}
