package generators

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/markbates/grift/grift"
	"github.com/spf13/pflag"
)

func init() {
	// Register generator tasks
	registerGeneratorTasks()
}

// Stdin and Stdout are used by the interactive tasks.
var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
)

func registerGeneratorTasks() {
	_ = grift.Namespace("stamp", func() {
		_ = grift.Desc("init", "Scaffold a new project in the current (or given) directory")
		_ = grift.Add("init", initProject)

		_ = grift.Desc("generate:component", "Generate a component definition: <Name> [Parameter ...]")
		_ = grift.Add("generate:component", generateComponent)
	})

	// Shorthand aliases
	_ = grift.Namespace("g", func() {
		_ = grift.Add("component", generateComponent)
	})
}

// initProject scaffolds a project
func initProject(c *grift.Context) error {
	fs := pflag.NewFlagSet("stamp:init", pflag.ContinueOnError)
	yes := fs.BoolP("yes", "y", false, "accept defaults without asking")
	components := fs.StringP("components", "c", "components", "components directory")
	source := fs.StringP("source", "s", "src", "source directory")
	out := fs.StringP("out", "o", "out", "output directory")
	fs.SetOutput(Stdout)
	if err := fs.Parse(c.Args); err != nil {
		return err
	}

	dir := "."
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	res, err := Scaffold(ScaffoldOptions{
		Dir:        dir,
		Components: *components,
		Source:     *source,
		Out:        *out,
		Yes:        *yes,
		In:         Stdin,
		Output:     Stdout,
	})
	if err != nil {
		return err
	}
	if res.Aborted {
		fmt.Fprintln(Stdout, "Aborted.")
		return nil
	}

	for _, f := range res.Created {
		fmt.Fprintf(Stdout, "   create  %s\n", filepath.Join(dir, f))
	}
	for _, f := range res.Skipped {
		fmt.Fprintf(Stdout, "   exists  %s\n", filepath.Join(dir, f))
	}
	fmt.Fprintf(Stdout, "✅ Project ready. Run `stamp build` to expand %s into %s.\n", *source, *out)
	return nil
}

// generateComponent creates a component definition
func generateComponent(c *grift.Context) error {
	fs := pflag.NewFlagSet("stamp:generate:component", pflag.ContinueOnError)
	dir := fs.StringP("components", "c", "components", "components directory")
	force := fs.BoolP("force", "f", false, "overwrite an existing definition")
	fs.SetOutput(Stdout)
	if err := fs.Parse(c.Args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: stamp generate:component <Name> [Parameter ...]")
	}

	path, err := GenerateComponent(ComponentOptions{
		Dir:        *dir,
		Name:       fs.Arg(0),
		Parameters: fs.Args()[1:],
		Force:      *force,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(Stdout, "✅ Created component %s\n", fs.Arg(0))
	fmt.Fprintf(Stdout, "   - %s\n", path)
	return nil
}
