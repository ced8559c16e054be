package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tycholang/tycho/manifest"
	"github.com/tycholang/tycho/vm"
)

// cmdRun runs a single script, or the surrounding project when no file
// argument is given.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose output")
	mainEntry := fs.String("m", "", "Global function to call after the script runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var source string
	if fs.NArg() > 0 {
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			return err
		}
		source = string(data)
	} else {
		var err error
		source, err = projectSource(*verbose)
		if err != nil {
			return err
		}
	}

	p, err := vm.Compile(source)
	if err != nil {
		return err
	}

	if _, err := p.Run(); err != nil {
		return formatRuntimeError(err)
	}

	if *mainEntry != "" {
		return runMain(p, *mainEntry, *verbose)
	}
	return nil
}

// projectSource locates the enclosing project, resolves its
// dependencies, and concatenates all source files with the entry file
// last.
func projectSource(verbose bool) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("no tycho.toml found (run inside a project, or pass a .ty file)")
	}
	if verbose {
		fmt.Printf("Project %s (%s)\n", m.Project.Name, m.Dir)
	}

	deps, err := manifest.NewResolver(m, verbose).Resolve()
	if err != nil {
		return "", fmt.Errorf("resolving dependencies: %w", err)
	}

	var b strings.Builder
	for _, dep := range deps {
		depManifest := dep.Manifest
		if depManifest == nil {
			continue
		}
		files, err := depManifest.SourceFiles()
		if err != nil {
			return "", fmt.Errorf("dependency %s: %w", dep.Name, err)
		}
		if err := appendFiles(&b, files, verbose); err != nil {
			return "", err
		}
	}

	files, err := m.SourceFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no .ty files found in %v", m.Source.Dirs)
	}
	if err := appendFiles(&b, files, verbose); err != nil {
		return "", err
	}

	return b.String(), nil
}

func appendFiles(b *strings.Builder, files []string, verbose bool) error {
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if verbose {
			fmt.Printf("  %s\n", f)
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return nil
}

// runMain calls a global function by name. A numeric result becomes
// the process exit code.
func runMain(p *vm.Program, entry string, verbose bool) error {
	if verbose {
		fmt.Printf("Calling %s\n", entry)
	}

	result, err := p.InvokeAsync(entry)
	if err != nil {
		return formatRuntimeError(err)
	}

	if result.Kind == vm.KindNumber {
		os.Exit(int(result.Num))
	}
	return nil
}

// formatRuntimeError renders thrown language values the way a script
// author expects to see them.
func formatRuntimeError(err error) error {
	if te, ok := err.(*vm.ThrownError); ok {
		return fmt.Errorf("uncaught %s", te.Value.ToDisplayString())
	}
	return err
}
