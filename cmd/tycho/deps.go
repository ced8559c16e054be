package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tycholang/tycho/manifest"
)

// cmdDeps resolves project dependencies and prints them in load order.
func cmdDeps(args []string) error {
	fs := flag.NewFlagSet("deps", flag.ExitOnError)
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no tycho.toml found")
	}

	deps, err := manifest.NewResolver(m, *verbose).Resolve()
	if err != nil {
		return err
	}

	if len(deps) == 0 {
		fmt.Println("No dependencies")
		return nil
	}
	for _, dep := range deps {
		fmt.Printf("%s\t%s\t%s\n", dep.Name, dep.Namespace, dep.LocalPath)
	}
	return nil
}
