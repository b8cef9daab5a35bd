// Package components expands custom markup elements into reusable,
// parameterized fragments.
//
// Components are loaded from definition files into a Registry. A document is
// expanded by replacing every element whose tag is a registered component
// name with the component's template, after substituting the parameter
// values carried by the element's children:
//
//	<Greeting><Name>World</Name></Greeting>
//
// becomes
//
//	<p>Hello World!</p>
//
// Expansion is recursive: components may use other components, in their
// templates or in the parameter values of an instance. Registry.SelfExpand
// pre-expands templates so documents usually need a single pass.
//
// A definition file holds one component:
//
//	<Element>
//	    <Name>Greeting</Name>
//	    <Parameter>Name</Parameter>
//	    <Template><p>Hello <Name/>!</p></Template>
//	</Element>
//
// The system supports:
//   - Any number of parameters, each used any number of times in a template
//   - Markup, including other instances, as parameter values
//   - Components built from other components, resolved up front by SelfExpand
//   - Cycle detection, reported with the chain of components involved
//   - Per-request expansion of Buffalo responses through ExpanderMiddleware
//
// Instances are found on a parsed tree, not by searching the text. A
// parameter element only counts when it is a direct child of the instance,
// so a nested <Name> inside a value belongs to that value, and an instance
// that is never closed is an error rather than a guess at where it ends.
//
// A Registry is mutable while it is being built and immutable once sealed.
// Sealed registries are safe for concurrent use by any number of documents,
// which is what lets the preview server swap in a freshly loaded registry
// without locking the requests that still use the old one.
package components

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultExtension is the file extension of definition files.
const DefaultExtension = ".xml"

// Registry holds the set of known components, keyed by name.
//
// There is no package-level registry. Build one with NewRegistry or Load and
// pass it to the expansion functions.
type Registry struct {
	components map[string]*Component
	sealed     atomic.Bool
	log        logrus.FieldLogger

	// graph caches references() once sealed.
	graph map[string][]string

	// generation distinguishes registries in page cache keys.
	generation uint64

	// selfExpandPasses overrides MaxSelfExpandPasses when positive.
	selfExpandPasses int
}

var generations atomic.Uint64

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*Component),
		log:        discardLogger(),
		generation: generations.Add(1),
	}
}

// SetLogger sets the logger used for load and self-expansion progress.
func (r *Registry) SetLogger(log logrus.FieldLogger) {
	if log == nil {
		log = discardLogger()
	}
	r.log = log
}

// Register adds a component. A component with the same name is replaced.
// Sealed registries refuse new components with ErrSealed.
func (r *Registry) Register(c *Component) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return &DefinitionError{File: fileOf(c), Reason: "component has no name"}
	}
	c.Parameters = normalizeParameters(c.Parameters)
	r.components[c.Name] = c
	return nil
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (*Component, bool) {
	c, ok := r.components[name]
	return c, ok
}

// Has reports whether name is a registered component.
func (r *Registry) Has(name string) bool {
	_, ok := r.components[name]
	return ok
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	return len(r.components)
}

// Names returns the registered component names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParameterNames returns the union of all declared parameter names, sorted.
func (r *Registry) ParameterNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range r.components {
		for _, p := range c.Parameters {
			if !seen[p] {
				seen[p] = true
				names = append(names, p)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Seal makes the registry immutable. Sealing twice is a no-op.
func (r *Registry) Seal() {
	if r.sealed.Load() {
		return
	}
	r.graph = r.references()
	r.sealed.Store(true)
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// LoadOptions controls how Load reads a components directory.
type LoadOptions struct {
	// Extensions lists the definition file extensions, including the dot.
	// Defaults to DefaultExtension.
	Extensions []string

	// AllowShadowing lets a later definition replace an earlier one with the
	// same name. Files are read in lexical order, so the last one wins.
	// Without it, a duplicate name is a DefinitionError.
	AllowShadowing bool

	// Logger receives progress messages. Defaults to a discarding logger.
	Logger logrus.FieldLogger
}

// Load reads every definition file in dir and returns the resulting registry.
// Files are processed in lexical order; subdirectories and files with other
// extensions (such as the Element.xsd schema) are ignored.
func Load(dir string, opts LoadOptions) (*Registry, error) {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{DefaultExtension}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading components directory: %w", err)
	}

	reg := NewRegistry()
	reg.SetLogger(opts.Logger)

	for _, entry := range entries {
		if entry.IsDir() || !hasExtension(entry.Name(), exts) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		c, err := ParseDefinition(path, src)
		if err != nil {
			return nil, err
		}

		if prev, ok := reg.Lookup(c.Name); ok {
			if !opts.AllowShadowing {
				return nil, &DefinitionError{
					File:      path,
					Component: c.Name,
					Reason:    fmt.Sprintf("duplicate component name, already defined in %s", prev.File),
				}
			}
			reg.log.WithFields(logrus.Fields{
				"component": c.Name,
				"file":      path,
				"previous":  prev.File,
			}).Warn("component shadows an earlier definition")
		}

		if err := reg.Register(c); err != nil {
			return nil, err
		}
		reg.log.WithField("file", path).Infof("created component %s", c.Name)
	}

	return reg, nil
}

func hasExtension(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func fileOf(c *Component) string {
	if c == nil {
		return ""
	}
	return c.File
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
