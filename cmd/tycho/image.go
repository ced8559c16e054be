package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tycholang/tycho/manifest"
	"github.com/tycholang/tycho/vm"
)

// cmdImage manages the content-addressed image store.
func cmdImage(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tycho image <save|load|list> [options]")
	}
	switch args[0] {
	case "save":
		return imageSave(args[1:])
	case "load":
		return imageLoad(args[1:])
	case "list":
		return imageList(args[1:])
	default:
		return fmt.Errorf("unknown image command %q (use save, load, or list)", args[0])
	}
}

// storePath resolves the image database location: flag override, then
// project manifest, then the default under the current directory.
func storePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return "", err
	}
	if m != nil {
		return m.ImageStorePath(), nil
	}
	return filepath.Join(cwd, ".tycho", "images.db"), nil
}

func imageSave(args []string) error {
	fs := flag.NewFlagSet("image save", flag.ExitOnError)
	name := fs.String("name", "", "Tag the saved image with a name")
	store := fs.String("store", "", "Image database path (default: project store)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tycho image save [-name tag] <file.ty>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := vm.Compile(string(data))
	if err != nil {
		return err
	}

	dbPath, err := storePath(*store)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return err
	}

	s, err := vm.OpenImageStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	hash, err := s.SaveProgram(p, *name)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func imageLoad(args []string) error {
	fs := flag.NewFlagSet("image load", flag.ExitOnError)
	store := fs.String("store", "", "Image database path (default: project store)")
	mainEntry := fs.String("m", "", "Global function to call after the script runs")
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: tycho image load <hash-or-name>")
	}

	dbPath, err := storePath(*store)
	if err != nil {
		return err
	}

	s, err := vm.OpenImageStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.LoadProgram(fs.Arg(0))
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

func imageList(args []string) error {
	fs := flag.NewFlagSet("image list", flag.ExitOnError)
	store := fs.String("store", "", "Image database path (default: project store)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dbPath, err := storePath(*store)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("(no image store)")
		return nil
	}

	s, err := vm.OpenImageStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	hashes, err := s.Hashes()
	if err != nil {
		return err
	}
	for _, h := range hashes {
		fmt.Println(h)
	}
	return nil
}
