package generators

import (
	"embed"
	"fmt"
	"path/filepath"
)

//go:embed templates
var templatesFS embed.FS

func mustTemplate(name string) string {
	b, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		panic(fmt.Sprintf("generators: missing embedded template %s: %v", name, err))
	}
	return string(b)
}

// ComponentOptions describes a component definition to generate.
type ComponentOptions struct {
	// Dir is the components directory.
	Dir string

	// Name is the component name, which is also its tag.
	Name string

	// Parameters are the declared parameter names, in order.
	Parameters []string

	// Force overwrites an existing definition.
	Force bool
}

// GenerateComponent writes a skeleton definition file for a component and
// returns its path. The template lays out one placeholder per parameter.
func GenerateComponent(opts ComponentOptions) (string, error) {
	if !ValidName(opts.Name) {
		return "", fmt.Errorf("invalid component name %q", opts.Name)
	}
	seen := map[string]bool{}
	for _, p := range opts.Parameters {
		if !ValidName(p) {
			return "", fmt.Errorf("invalid parameter name %q", p)
		}
		if seen[p] {
			return "", fmt.Errorf("parameter %q declared twice", p)
		}
		seen[p] = true
	}

	path := filepath.Join(opts.Dir, opts.Name+".xml")
	data := struct {
		Name       string
		Class      string
		Parameters []string
	}{
		Name:       opts.Name,
		Class:      ToKebab(opts.Name),
		Parameters: opts.Parameters,
	}
	if err := GenerateFile(mustTemplate("component.xml.tmpl"), data, path, opts.Force); err != nil {
		return "", err
	}
	return path, nil
}
