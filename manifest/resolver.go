package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolvedDep is a dependency pinned to a local directory.
type ResolvedDep struct {
	Name      string
	LocalPath string
	Namespace string
	Manifest  *Manifest // nil when the dependency ships no manifest
}

// Resolver walks the dependency graph of a root manifest depth-first:
// git dependencies materialize under the deps dir, every dependency
// gets a unique namespace, and the outcome is pinned in the lock file.
type Resolver struct {
	root    *Manifest
	lock    *LockFile
	verbose bool

	resolved map[string]*ResolvedDep
	visiting map[string]bool       // DFS stack, for cycle reporting
	specs    map[string]Dependency // declared spec per resolved name
	taken    map[string]string     // namespace -> claiming dependency
	order    []ResolvedDep
}

// NewResolver creates a resolver rooted at a manifest.
func NewResolver(m *Manifest, verbose bool) *Resolver {
	return &Resolver{
		root:     m,
		verbose:  verbose,
		resolved: map[string]*ResolvedDep{},
		visiting: map[string]bool{},
		specs:    map[string]Dependency{},
		taken:    map[string]string{},
	}
}

// Resolve returns every dependency in load order (dependencies before
// dependents) and rewrites the lock file to match.
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	lock, err := ReadLock(r.root.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.root.DepsDir(), 0755); err != nil {
		return nil, fmt.Errorf("creating deps dir: %w", err)
	}

	if err := r.visitAll(r.root, r.root.Dependencies); err != nil {
		return nil, err
	}

	if err := r.writeLock(); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return r.order, nil
}

func (r *Resolver) visitAll(owner *Manifest, deps map[string]Dependency) error {
	for name, dep := range deps {
		if err := r.visit(owner, name, dep); err != nil {
			return err
		}
	}
	return nil
}

// visit resolves one dependency and, before appending it to the load
// order, recurses into its own dependencies so they land first.
func (r *Resolver) visit(owner *Manifest, name string, dep Dependency) error {
	if r.resolved[name] != nil {
		return nil
	}
	if r.visiting[name] {
		return fmt.Errorf("dependency cycle through %q", name)
	}
	r.visiting[name] = true
	defer delete(r.visiting, name)

	var rd *ResolvedDep
	var err error
	switch {
	case dep.Path != "":
		rd, err = r.resolvePath(owner, name, dep)
	case dep.Git != "":
		rd, err = r.resolveGit(name, dep)
	default:
		err = fmt.Errorf("neither git nor path specified")
	}
	if err != nil {
		return fmt.Errorf("resolving %s: %w", name, err)
	}

	if prev, clash := r.taken[rd.Namespace]; clash {
		return fmt.Errorf("dependencies %q and %q both claim namespace %s; add a namespace override for one of them",
			prev, name, rd.Namespace)
	}
	r.taken[rd.Namespace] = name
	r.specs[name] = dep

	if rd.Manifest != nil {
		if err := r.visitAll(rd.Manifest, rd.Manifest.Dependencies); err != nil {
			return err
		}
	}

	r.resolved[name] = rd
	r.order = append(r.order, *rd)
	return nil
}

// resolveNamespace determines the effective namespace for a dependency
// using the three-level resolution order:
//  1. Consumer override (dep.Namespace from TOML)
//  2. Producer manifest (depManifest.Project.Namespace)
//  3. PascalCase fallback (ToPascalCase(name))
func resolveNamespace(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var ns string
	switch {
	case dep.Namespace != "":
		ns = dep.Namespace
	case depManifest != nil && depManifest.Project.Namespace != "":
		ns = depManifest.Project.Namespace
	default:
		ns = ToPascalCase(name)
	}

	if IsReservedNamespace(ns) {
		return "", fmt.Errorf("dependency %q resolves to reserved namespace %q (used by a builtin global); add namespace = \"...\" override in [dependencies]", name, ns)
	}

	return ns, nil
}

// resolvePath resolves a path dependency relative to the manifest that
// declares it, so a transitive path dependency is found next to its
// owner rather than next to the root project.
func (r *Resolver) resolvePath(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	local := dep.Path
	if !filepath.IsAbs(local) {
		local = filepath.Join(owner.Dir, local)
	}
	local, err := filepath.Abs(local)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
	}
	if _, err := os.Stat(local); err != nil {
		return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, local, err)
	}

	depManifest, _ := Load(local)
	ns, err := resolveNamespace(name, dep, depManifest)
	if err != nil {
		return nil, err
	}

	return &ResolvedDep{
		Name:      name,
		LocalPath: local,
		Namespace: ns,
		Manifest:  depManifest,
	}, nil
}

// resolveGit materializes a git dependency under the deps dir. A lock
// entry whose tag still matches the manifest pins the exact commit, so
// repeat resolutions reproduce the same tree; otherwise the requested
// ref is fetched and checked out, and the next lock write pins it.
func (r *Resolver) resolveGit(name string, dep Dependency) (*ResolvedDep, error) {
	dir := filepath.Join(r.root.DepsDir(), name)
	locked := r.lock.FindLockedDep(name)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if r.verbose {
			fmt.Printf("  Cloning %s from %s\n", name, dep.Git)
		}
		if err := gitClone(dep.Git, dir); err != nil {
			return nil, err
		}
	}

	switch {
	case locked != nil && locked.Tag == dep.Tag && locked.Commit != "":
		if err := gitCheckout(dir, locked.Commit); err != nil {
			return nil, err
		}
	case dep.Tag != "":
		if r.verbose {
			fmt.Printf("  Fetching %s\n", name)
		}
		if err := gitFetch(dir); err != nil {
			return nil, err
		}
		if err := gitCheckout(dir, dep.Tag); err != nil {
			return nil, err
		}
	}

	depManifest, _ := Load(dir)
	ns, err := resolveNamespace(name, dep, depManifest)
	if err != nil {
		return nil, err
	}

	return &ResolvedDep{
		Name:      name,
		LocalPath: dir,
		Namespace: ns,
		Manifest:  depManifest,
	}, nil
}

// writeLock pins the resolved graph in load order, so repeat runs
// produce byte-identical lock files.
func (r *Resolver) writeLock() error {
	lf := &LockFile{}
	for _, rd := range r.order {
		spec := r.specs[rd.Name]
		ld := LockedDep{Name: rd.Name}
		if spec.Git != "" {
			ld.Git = spec.Git
			ld.Tag = spec.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		} else {
			ld.Path = spec.Path
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.root.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.root.LockFilePath(), lf)
}
