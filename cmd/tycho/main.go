// Tycho CLI - the main entry point for running Tycho programs
package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:])
	case "repl":
		err = cmdREPL(args[1:])
	case "disasm":
		err = cmdDisasm(args[1:])
	case "image":
		err = cmdImage(args[1:])
	case "deps":
		err = cmdDeps(args[1:])
	case "lsp":
		err = cmdLSP(args[1:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "tycho: unknown command %q\n\n", args[0])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tycho <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run [file.ty]        Run a script, or the current project when no file is given\n")
	fmt.Fprintf(os.Stderr, "  repl                 Start an interactive session\n")
	fmt.Fprintf(os.Stderr, "  disasm <file.ty>     Print the compiled bytecode listing\n")
	fmt.Fprintf(os.Stderr, "  image <save|load|list>  Manage content-addressed images\n")
	fmt.Fprintf(os.Stderr, "  deps                 Resolve project dependencies\n")
	fmt.Fprintf(os.Stderr, "  lsp                  Start the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  tycho run main.ty            # Run a single script\n")
	fmt.Fprintf(os.Stderr, "  tycho run -m main            # Run project, call global 'main' when done\n")
	fmt.Fprintf(os.Stderr, "  tycho image save -name dev main.ty\n")
	fmt.Fprintf(os.Stderr, "  tycho image load dev\n")
}
