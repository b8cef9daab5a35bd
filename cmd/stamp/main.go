package main

import (
	"fmt"
	"os"

	"github.com/markbates/grift/grift"

	// Import stamp to register its tasks
	_ "github.com/johnjansen/stamp"
)

func usage() {
	fmt.Println("Usage: stamp <command> [flags] [args...]")
	fmt.Println("\nCommands:")
	fmt.Println("  build                     - Expand the source tree into the output directory")
	fmt.Println("  serve                     - Serve the source tree with live expansion and reload")
	fmt.Println("  init [dir]                - Scaffold a new project")
	fmt.Println("  components                - List the components and their parameters")
	fmt.Println("  generate:component <Name> - Generate a component definition")
	fmt.Println("  list                      - List every registered task")
	fmt.Println("")
	fmt.Println("Run 'stamp <command> --help' for the flags of a command")
}

// taskName maps a command to its task. Commands without a namespace live
// under stamp:.
func taskName(cmd string) string {
	for _, task := range grift.List() {
		if task == cmd {
			return cmd
		}
	}
	return "stamp:" + cmd
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	case "list":
		fmt.Println("Available Tasks:")
		fmt.Println("================")
		for _, task := range grift.List() {
			fmt.Printf("  %s\n", task)
		}
		os.Exit(0)
	}

	name := taskName(os.Args[1])

	ctx := grift.NewContext(name)
	ctx.Args = os.Args[2:]

	if err := grift.Run(name, ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error running %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
