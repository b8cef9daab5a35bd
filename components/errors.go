package components

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSealed is returned when a sealed registry is asked to change.
var ErrSealed = errors.New("components: registry is sealed")

// DefinitionError reports a malformed component definition file.
type DefinitionError struct {
	File      string
	Component string
	Reason    string
	Cause     error
}

func (e *DefinitionError) Error() string {
	var b strings.Builder
	b.WriteString("definition error")
	if e.File != "" {
		fmt.Fprintf(&b, " in %s", e.File)
	}
	if e.Component != "" {
		fmt.Fprintf(&b, " (component %s)", e.Component)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *DefinitionError) Unwrap() error {
	return e.Cause
}

// MissingParameterError reports an instance that omits a declared parameter.
type MissingParameterError struct {
	Component string
	Parameter string
	Document  string
}

func (e *MissingParameterError) Error() string {
	msg := fmt.Sprintf("component %s: missing parameter <%s>", e.Component, e.Parameter)
	if e.Document != "" {
		return e.Document + ": " + msg
	}
	return msg
}

// RecursionLimitError reports expansion that did not settle within the pass
// budget, which means a component references itself directly or through
// other components.
type RecursionLimitError struct {
	Passes     int
	Components []string
	// Cycle is the reference chain when the cycle was found statically,
	// e.g. [A B A].
	Cycle    []string
	Document string
}

func (e *RecursionLimitError) Error() string {
	var b strings.Builder
	if e.Document != "" {
		b.WriteString(e.Document)
		b.WriteString(": ")
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, "component cycle detected: %s", strings.Join(e.Cycle, " -> "))
		return b.String()
	}
	fmt.Fprintf(&b, "expansion did not settle after %d passes", e.Passes)
	if len(e.Components) > 0 {
		fmt.Fprintf(&b, " (still changing: %s)", strings.Join(e.Components, ", "))
	}
	return b.String()
}

// ParseError reports markup that could not be turned into a tree, or an
// instance whose extent is ambiguous because it is never closed.
type ParseError struct {
	Document  string
	Component string
	Reason    string
	Cause     error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Document != "" {
		b.WriteString(e.Document)
		b.WriteString(": ")
	}
	b.WriteString("parse error")
	if e.Component != "" {
		fmt.Fprintf(&b, " in component %s", e.Component)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// withDocument records the document identifier on expansion errors that do
// not carry one yet.
func withDocument(err error, document string) error {
	if document == "" {
		return err
	}
	var mp *MissingParameterError
	if errors.As(err, &mp) && mp.Document == "" {
		mp.Document = document
	}
	var rl *RecursionLimitError
	if errors.As(err, &rl) && rl.Document == "" {
		rl.Document = document
	}
	var pe *ParseError
	if errors.As(err, &pe) && pe.Document == "" {
		pe.Document = document
	}
	return err
}
