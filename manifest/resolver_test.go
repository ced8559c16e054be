package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolver_LocalPathDependency(t *testing.T) {
	root := t.TempDir()
	depDir := filepath.Join(root, "libs", "strings")
	writeFile(t, filepath.Join(depDir, "tycho.toml"), `
[project]
name = "strings"
namespace = "Strings"
`)
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.strings]
path = "../libs/strings"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("deps: got %d, want 1", len(deps))
	}
	if deps[0].Name != "strings" || deps[0].Namespace != "Strings" {
		t.Errorf("got %+v", deps[0])
	}

	// The resolution is pinned in the lock file.
	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if lf.FindLockedDep("strings") == nil {
		t.Error("resolved dependency should be recorded in the lock file")
	}
}

func TestResolver_TransitiveDepsBeforeDependents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "base", "tycho.toml"), `
[project]
name = "base"
`)
	writeFile(t, filepath.Join(root, "mid", "tycho.toml"), `
[project]
name = "mid"

[dependencies.base]
path = "../base"
`)
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.mid]
path = "../mid"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("deps: got %d, want 2 (%v)", len(deps), deps)
	}
	if deps[0].Name != "base" || deps[1].Name != "mid" {
		t.Errorf("load order: got [%s %s], want [base mid]", deps[0].Name, deps[1].Name)
	}
}

func TestResolver_MissingLocalPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tycho.toml"), `
[project]
name = "app"

[dependencies.ghost]
path = "./no-such-dir"
`)
	m, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := NewResolver(m, false).Resolve(); err == nil {
		t.Fatal("missing local dependency should fail resolution")
	}
}

func TestResolver_ReservedNamespaceRejected(t *testing.T) {
	root := t.TempDir()
	depDir := filepath.Join(root, "error")
	if err := os.MkdirAll(depDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.error]
path = "../error"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := NewResolver(m, false).Resolve(); err == nil {
		t.Fatal("dependency whose PascalCase name is a builtin global should be rejected")
	}
}

func TestResolver_DependencyCycleReported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "tycho.toml"), `
[project]
name = "a"

[dependencies.b]
path = "../b"
`)
	writeFile(t, filepath.Join(root, "b", "tycho.toml"), `
[project]
name = "b"

[dependencies.a]
path = "../a"
`)
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.a]
path = "../a"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = NewResolver(m, false).Resolve()
	if err == nil {
		t.Fatal("mutually dependent packages should fail resolution")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error should mention the cycle, got %v", err)
	}
}

func TestResolver_NamespaceClashReported(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"util-x", "utilX"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.util-x]
path = "../util-x"

[dependencies.utilX]
path = "../utilX"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = NewResolver(m, false).Resolve()
	if err == nil {
		t.Fatal("two dependencies mapping to the same namespace should fail")
	}
	if !strings.Contains(err.Error(), "UtilX") {
		t.Errorf("error should name the clashing namespace, got %v", err)
	}
}

func TestResolver_TransitivePathRelativeToOwner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vendor", "mid", "tycho.toml"), `
[project]
name = "mid"

[dependencies.leaf]
path = "./leaf"
`)
	writeFile(t, filepath.Join(root, "vendor", "mid", "leaf", "tycho.toml"), `
[project]
name = "leaf"
`)
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.mid]
path = "../vendor/mid"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(deps) != 2 || deps[0].Name != "leaf" {
		t.Fatalf("deps: got %v, want leaf then mid", deps)
	}
	want := filepath.Join(root, "vendor", "mid", "leaf")
	if deps[0].LocalPath != want {
		t.Errorf("leaf path: got %s, want %s", deps[0].LocalPath, want)
	}
}

func TestResolver_NamespaceOverrideBypassesReservation(t *testing.T) {
	root := t.TempDir()
	depDir := filepath.Join(root, "error")
	if err := os.MkdirAll(depDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(root, "app", "tycho.toml"), `
[project]
name = "app"

[dependencies.error]
path = "../error"
namespace = "Errs"
`)

	m, err := Load(filepath.Join(root, "app"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	deps, err := NewResolver(m, false).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if deps[0].Namespace != "Errs" {
		t.Errorf("namespace: got %q, want Errs", deps[0].Namespace)
	}
}
