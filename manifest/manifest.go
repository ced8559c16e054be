// Package manifest handles tycho.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest represents a tycho.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Dependencies map[string]Dependency `toml:"dependencies"`
	Image        ImageConfig           `toml:"image"`

	// Dir is the directory containing the tycho.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
	Version   string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Dependency represents a single project dependency.
type Dependency struct {
	Git       string `toml:"git"`
	Tag       string `toml:"tag"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// ImageConfig configures compiled image output.
type ImageConfig struct {
	Output string `toml:"output"`
	Store  string `toml:"store"`
}

// Load parses a tycho.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "tycho.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main.ty"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a tycho.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "tycho.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// SourceFiles returns all .ty files under the configured source
// directories, sorted for deterministic compile order. The entry file,
// when present, sorts last so its top-level statements run after every
// other file's declarations are registered.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.HasSuffix(path, ".ty") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	entry := m.EntryPath()
	sort.Slice(files, func(i, j int) bool {
		if files[i] == entry {
			return false
		}
		if files[j] == entry {
			return true
		}
		return files[i] < files[j]
	})
	return files, nil
}

// EntryPath returns the absolute path of the entry file.
func (m *Manifest) EntryPath() string {
	for _, dir := range m.SourceDirPaths() {
		path := filepath.Join(dir, m.Source.Entry)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// ImageStorePath returns the configured image store path, defaulting
// to .tycho/images.db.
func (m *Manifest) ImageStorePath() string {
	if m.Image.Store != "" {
		return filepath.Join(m.Dir, m.Image.Store)
	}
	return filepath.Join(m.Dir, ".tycho", "images.db")
}

// DepsDir returns the path to the .tycho/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".tycho", "deps")
}

// LockFilePath returns the path to .tycho/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".tycho", "lock.toml")
}
