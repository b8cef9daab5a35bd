package components

import (
	"fmt"
	"sort"

	"github.com/johnjansen/stamp/markup"
)

// MaxSelfExpandPasses bounds SelfExpand.
const MaxSelfExpandPasses = 100

// SelfExpand resolves components that are built from other components by
// expanding every template against the registry until a full pass changes
// nothing. It returns the number of passes taken, including the final one
// that confirmed the templates are stable, and seals the registry.
//
// Templates are parsed as standalone documents. After each pass, empty
// <P></P> pairs are rewritten to <P/> for every known parameter P before
// templates are compared.
//
// A component that refers to itself, directly or through other components,
// is reported as a RecursionLimitError naming the cycle before any template
// is touched. Templates that still change after MaxSelfExpandPasses passes
// are reported the same way, listing the components that kept changing.
// Templates are left as they were whenever an error is returned.
func (r *Registry) SelfExpand() (int, error) {
	if r.sealed.Load() {
		return 0, ErrSealed
	}

	graph := r.references()
	if cycle := findCycle(graph, r.Names()); cycle != nil {
		return 0, &RecursionLimitError{Cycle: cycle, Components: []string{cycle[0]}}
	}

	names := r.Names()
	params := r.ParameterNames()
	var e Expander

	limit := r.selfExpandPasses
	if limit <= 0 {
		limit = MaxSelfExpandPasses
	}

	// Templates are updated in place during a pass and put back on failure.
	original := make(map[string]string, len(names))
	for _, name := range names {
		original[name] = r.components[name].Template
	}
	restore := func() {
		for name, tmpl := range original {
			r.components[name].Template = tmpl
		}
	}

	var changed []string
	for pass := 1; pass <= limit; pass++ {
		changed = changed[:0]
		for _, name := range names {
			c := r.components[name]
			if !containsInstance(c.Template, r) {
				continue
			}

			doc, err := markup.ParseString(c.Template)
			if err != nil {
				restore()
				return pass, &ParseError{Component: name, Reason: "parsing template", Cause: err}
			}
			if _, err := e.Pass(doc, r); err != nil {
				restore()
				return pass, fmt.Errorf("expanding template of %s: %w", name, err)
			}

			out := RestoreSelfClosing(doc.String(), params)
			if out != c.Template {
				c.Template = out
				changed = append(changed, name)
			}
		}

		r.log.WithField("pass", pass).Debugf("self-expansion changed %d templates", len(changed))
		if len(changed) == 0 {
			r.Seal()
			r.log.WithField("passes", pass).Info("components expanded")
			return pass, nil
		}
	}

	restore()
	return limit, &RecursionLimitError{
		Passes:     limit,
		Components: append([]string(nil), changed...),
	}
}

// references maps each component to the sorted, distinct components used as
// elements in its template. Sealed registries compute it once.
func (r *Registry) references() map[string][]string {
	if r.sealed.Load() && r.graph != nil {
		return r.graph
	}

	graph := make(map[string][]string, len(r.components))
	for name, c := range r.components {
		doc, err := markup.ParseString(c.Template)
		if err != nil {
			// Reported when the template is expanded.
			continue
		}
		graph[name] = instanceTags(doc, r)
	}
	return graph
}

// cycleFrom returns a reference cycle reachable from any of roots, or nil.
func (r *Registry) cycleFrom(roots []string) []string {
	if len(roots) == 0 {
		return nil
	}
	return findCycle(r.references(), roots)
}

// findCycle runs a depth-first search from each root in turn and returns the
// first cycle found as a chain that starts and ends with the same name.
func findCycle(graph map[string][]string, roots []string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(graph))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch state[name] {
		case done:
			return nil
		case visiting:
			for i, p := range path {
				if p == name {
					return append(append([]string(nil), path[i:]...), name)
				}
			}
			return []string{name, name}
		}

		state[name] = visiting
		path = append(path, name)
		for _, ref := range graph[name] {
			if cycle := visit(ref); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)
	for _, root := range sorted {
		if cycle := visit(root); cycle != nil {
			return cycle
		}
	}
	return nil
}
