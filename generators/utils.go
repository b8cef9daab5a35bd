package generators

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

var (
	componentNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	delimiterRe     = regexp.MustCompile(`[_\-\s]+`)
)

// ValidName reports whether s can be used as a component or parameter name,
// that is, as a tag name.
func ValidName(s string) bool {
	return componentNameRe.MatchString(s)
}

// ToSnake converts string to snake_case
func ToSnake(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")

	// Insert underscores before capitals
	re := regexp.MustCompile("([a-z0-9])([A-Z])")
	s = re.ReplaceAllString(s, "${1}_${2}")

	// Handle runs of capitals
	re = regexp.MustCompile("([A-Z]+)([A-Z][a-z])")
	s = re.ReplaceAllString(s, "${1}_${2}")

	return strings.ToLower(s)
}

// ToCamel converts string to CamelCase
func ToCamel(s string) string {
	parts := delimiterRe.Split(s, -1)
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// ToKebab converts string to kebab-case
func ToKebab(s string) string {
	return strings.ReplaceAll(ToSnake(s), "_", "-")
}

// GenerateFile creates a file from a template. Existing files are left alone
// unless force is set.
func GenerateFile(tmplContent string, data interface{}, outputPath string, force bool) error {
	if !force && FileExists(outputPath) {
		return fmt.Errorf("%s already exists", outputPath)
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpl, err := template.New("generator").Funcs(template.FuncMap{
		"kebab": ToKebab,
		"snake": ToSnake,
		"camel": ToCamel,
	}).Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", outputPath, err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
