package generators

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ScaffoldOptions configures Scaffold.
type ScaffoldOptions struct {
	// Dir is the project directory. It is created if needed.
	Dir string

	// Components, Source and Out name the project's directories.
	// They default to "components", "src" and "out".
	Components string
	Source     string
	Out        string

	// Yes accepts the defaults and skips the confirmation asked when Dir
	// already has visible entries.
	Yes bool

	// In and Output carry the confirmation prompt.
	In     io.Reader
	Output io.Writer
}

// ScaffoldResult lists what Scaffold did.
type ScaffoldResult struct {
	// Aborted is set when the user declined to scaffold a non-empty
	// directory.
	Aborted bool

	Created []string
	Skipped []string
}

// Scaffold prepares a new project: the components and source directories,
// the Element.xsd schema for editors, a sample component and page, and a
// stamp.yml. Existing files are never overwritten.
func Scaffold(opts ScaffoldOptions) (*ScaffoldResult, error) {
	if opts.Components == "" {
		opts.Components = "components"
	}
	if opts.Source == "" {
		opts.Source = "src"
	}
	if opts.Out == "" {
		opts.Out = "out"
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}

	res := &ScaffoldResult{}

	if !opts.Yes {
		visible, err := visibleEntries(opts.Dir)
		if err != nil {
			return nil, err
		}
		if visible > 0 {
			ok, err := confirm(opts.In, opts.Output, "Directory is not empty. Continue? [y/N] ")
			if err != nil {
				return nil, err
			}
			if !ok {
				res.Aborted = true
				return res, nil
			}
		}
	}

	for _, dir := range []string{opts.Components, opts.Source} {
		if err := os.MkdirAll(filepath.Join(opts.Dir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	files := []struct {
		path string
		tmpl string
		data interface{}
	}{
		{filepath.Join(opts.Components, "Element.xsd"), "Element.xsd", nil},
		{filepath.Join(opts.Components, "Greeting.xml"), "Greeting.xml", nil},
		{filepath.Join(opts.Source, "index.html"), "index.html.tmpl", map[string]string{"Title": filepath.Base(absOr(opts.Dir))}},
		{"stamp.yml", "stamp.yml.tmpl", map[string]string{"Components": opts.Components, "Source": opts.Source, "Out": opts.Out}},
	}

	for _, f := range files {
		path := filepath.Join(opts.Dir, f.path)
		if FileExists(path) {
			res.Skipped = append(res.Skipped, f.path)
			continue
		}

		content := mustTemplate(f.tmpl)
		var err error
		if f.data == nil {
			err = writeFile(path, content)
		} else {
			err = GenerateFile(content, f.data, path, false)
		}
		if err != nil {
			return nil, err
		}
		res.Created = append(res.Created, f.path)
	}

	return res, nil
}

func visibleEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			n++
		}
	}
	return n, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if in == nil {
		return false, nil
	}
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func absOr(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
