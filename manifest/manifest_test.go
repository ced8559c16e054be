package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad_ParsesProjectAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tycho.toml"), `
[project]
name = "calc"
version = "0.1.0"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "calc" || m.Project.Version != "0.1.0" {
		t.Errorf("project: got %+v", m.Project)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs: got %v, want [src]", m.Source.Dirs)
	}
	if m.Source.Entry != "main.ty" {
		t.Errorf("default entry: got %q, want main.ty", m.Source.Entry)
	}
	if m.Dir == "" || !filepath.IsAbs(m.Dir) {
		t.Errorf("Dir should be absolute, got %q", m.Dir)
	}
}

func TestLoad_MissingManifest(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load without tycho.toml should fail")
	}
}

func TestFindAndLoad_WalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tycho.toml"), `
[project]
name = "nested"
`)
	deep := filepath.Join(root, "src", "lib")
	if err := os.MkdirAll(deep, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m, err := FindAndLoad(deep)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil || m.Project.Name != "nested" {
		t.Errorf("got %+v, want project nested", m)
	}
}

func TestFindAndLoad_NoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Error("should return nil when no manifest exists up the tree")
	}
}

func TestSourceFiles_SortedWithEntryLast(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tycho.toml"), `
[project]
name = "ordered"

[source]
dirs = ["src"]
entry = "main.ty"
`)
	writeFile(t, filepath.Join(dir, "src", "main.ty"), "console.log(1);")
	writeFile(t, filepath.Join(dir, "src", "b.ty"), "class B {}")
	writeFile(t, filepath.Join(dir, "src", "a.ty"), "class A {}")
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "ignored")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	files, err := m.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("file count: got %d, want 3 (%v)", len(files), files)
	}
	if filepath.Base(files[0]) != "a.ty" || filepath.Base(files[1]) != "b.ty" {
		t.Errorf("order: got %v, want a.ty then b.ty", files)
	}
	if filepath.Base(files[2]) != "main.ty" {
		t.Errorf("entry should sort last, got %v", files)
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.toml")
	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "collections", Git: "https://example.com/collections.git", Tag: "v1.2.0", Commit: "abc123"},
			{Name: "local-util", Path: "../util"},
		},
	}
	if err := WriteLock(path, lf); err != nil {
		t.Fatalf("WriteLock: %v", err)
	}

	got, err := ReadLock(path)
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if len(got.Deps) != 2 {
		t.Fatalf("deps: got %d, want 2", len(got.Deps))
	}
	c := got.FindLockedDep("collections")
	if c == nil || c.Tag != "v1.2.0" || c.Commit != "abc123" {
		t.Errorf("collections: got %+v", c)
	}
	if got.FindLockedDep("nope") != nil {
		t.Error("FindLockedDep should return nil for unknown names")
	}
}

func TestReadLock_MissingFileIsEmpty(t *testing.T) {
	lf, err := ReadLock(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("ReadLock: %v", err)
	}
	if len(lf.Deps) != 0 {
		t.Error("missing lock file should read as empty")
	}
}
