// Package inventory implements FileInventory: the walk that turns a
// resolved *pkggraph.Graph into per-package script and native-resource
// file lists, per spec.md §4.2.
package inventory

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/manifest"
	"github.com/m-saito/nsbuild/internal/pathutil"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

// File is an alias for pkggraph.File so this package's internal helpers
// can return the same value the graph's own fields hold.
type File = pkggraph.File

const (
	appDirName          = "app"
	appResourcesDirName = "App_Resources"
	nodeModulesDirName  = "node_modules"
	platformsDirName    = "platforms"
	manifestFileName    = "package.json"
)

// Walker builds a FileInventory over an already-resolved package graph.
type Walker struct {
	Store       filestore.Store
	ProjectRoot string
	// Platforms lists the known target platforms (e.g. "ios", "android")
	// whose App_Resources/<platform> and platforms/<platform>
	// subdirectories are enumerated into NativeFiles.
	Platforms []string
}

// Build populates App.ScriptFiles/Directories/NativeFiles and walks
// every Available dependency in g.Dependencies, spawning Nested
// packages as it discovers them.
func (w *Walker) Build(g *pkggraph.Graph) error {
	if err := w.buildApp(g.App); err != nil {
		return err
	}

	// Dependencies is mutated as Nested packages are spawned mid-walk, so
	// snapshot the names to enumerate before iterating.
	names := make([]string, 0, len(g.Dependencies))
	for name := range g.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pkg := g.Dependencies[name]
		if pkg.Availability != pkggraph.Available {
			continue
		}
		scopeRoot := filepath.Join(w.ProjectRoot, pkg.Path)
		if err := w.walkPackageTree(g, scopeRoot, scopeRoot, pkg); err != nil {
			return err
		}
	}

	// Native files depend on each package's own manifest, which is only
	// fully known (including Nested packages spawned above) once the
	// script walk has completed, so this runs as a second pass.
	for _, pkg := range g.Dependencies {
		if pkg.Availability != pkggraph.Available {
			continue
		}
		if err := w.buildPackageNativeFiles(pkg); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) buildApp(app *pkggraph.Package) error {
	appRoot := filepath.Join(w.ProjectRoot, appDirName)
	if w.Store.Exists(appRoot) {
		files, dirs, err := w.walkScripts(appRoot, appRoot, func(relFromRoot string) bool {
			return relFromRoot == appResourcesDirName
		})
		if err != nil {
			return fmt.Errorf("enumerating app/: %w", err)
		}
		app.ScriptFiles = files
		app.Directories = dirs
	}

	for _, platform := range w.Platforms {
		dir := filepath.Join(appRoot, appResourcesDirName, platform)
		if !w.Store.Exists(dir) {
			continue
		}
		files, err := w.walkFlat(dir)
		if err != nil {
			return fmt.Errorf("enumerating App_Resources/%s: %w", platform, err)
		}
		app.NativeFiles[platform] = files
	}
	return nil
}

func (w *Walker) buildPackageNativeFiles(pkg *pkggraph.Package) error {
	if pkg.Manifest.Framework == nil {
		return nil
	}
	pkgRoot := filepath.Join(w.ProjectRoot, pkg.Path)
	for platform := range pkg.Manifest.Framework.Platforms {
		dir := filepath.Join(pkgRoot, platformsDirName, platform)
		if !w.Store.Exists(dir) {
			continue
		}
		files, err := w.walkFlat(dir)
		if err != nil {
			return fmt.Errorf("enumerating %s/platforms/%s: %w", pkg.Name, platform, err)
		}
		pkg.NativeFiles[platform] = files
	}
	return nil
}

// walkScripts recursively lists files and directories under root,
// skipping any top-level entry for which skipTop(relativeName) is true.
// Paths on returned entries are relative to root.
func (w *Walker) walkScripts(root, dir string, skipTop func(rel string) bool) ([]File, []string, error) {
	entries, err := w.Store.List(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []File
	var dirs []string
	for _, e := range entries {
		full := filepath.Join(dir, e.Name)
		rel := pathutil.Rel(root, full)
		if dir == root && skipTop(rel) {
			continue
		}
		if e.IsDir {
			dirs = append(dirs, pathutil.AsDir(rel))
			subFiles, subDirs, err := w.walkScripts(root, full, skipTop)
			if err != nil {
				return nil, nil, err
			}
			files = append(files, subFiles...)
			dirs = append(dirs, subDirs...)
			continue
		}
		files = append(files, File{
			Path:         rel,
			AbsolutePath: full,
			Name:         e.Name,
			Extension:    filepath.Ext(e.Name),
			MTime:        e.ModTime.UnixMilli(),
		})
	}
	return files, dirs, nil
}

// walkFlat recursively lists files under dir with no directory
// tracking, used for App_Resources/<platform> and platforms/<platform>
// (spec.md §4.2: "flat file list").
func (w *Walker) walkFlat(root string) ([]File, error) {
	var out []File
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := w.Store.List(dir)
		if err != nil {
			return fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name)
			if e.IsDir {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			out = append(out, File{
				Path:         pathutil.Rel(root, full),
				AbsolutePath: full,
				Name:         e.Name,
				Extension:    filepath.Ext(e.Name),
				MTime:        e.ModTime.UnixMilli(),
			})
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// walkPackageTree enumerates one Available package's own script tree,
// honoring the node_modules/platforms ignore rules and spawning Nested
// packages when it encounters an embedded package.json (spec.md §4.2,
// third paragraph). scopeRoot is the directory files/dirs in scope are
// currently made relative to; scope accumulates into scope's own
// ScriptFiles/Directories until a Nested spawn changes it.
func (w *Walker) walkPackageTree(g *pkggraph.Graph, scopeRoot, dir string, scope *pkggraph.Package) error {
	entries, err := w.Store.List(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	for _, e := range entries {
		full := filepath.Join(dir, e.Name)
		if !e.IsDir {
			scope.ScriptFiles = append(scope.ScriptFiles, File{
				Path:         pathutil.Rel(scopeRoot, full),
				AbsolutePath: full,
				Name:         e.Name,
				Extension:    filepath.Ext(e.Name),
				MTime:        e.ModTime.UnixMilli(),
			})
			continue
		}

		if e.Name == nodeModulesDirName {
			continue
		}
		if scope.Manifest.Framework != nil && e.Name == platformsDirName {
			continue
		}

		nestedManifestPath := filepath.Join(full, manifestFileName)
		if !w.Store.Exists(nestedManifestPath) {
			scope.Directories = append(scope.Directories, pathutil.AsDir(pathutil.Rel(scopeRoot, full)))
			if err := w.walkPackageTree(g, scopeRoot, full, scope); err != nil {
				return err
			}
			continue
		}

		text, err := w.Store.ReadText(nestedManifestPath)
		if err != nil {
			return fmt.Errorf("reading nested manifest %s: %w", nestedManifestPath, err)
		}
		m, err := manifest.Parse([]byte(text))
		if err != nil {
			return fmt.Errorf("nested package at %s: %w", full, err)
		}

		name := m.Name
		if name == "" {
			name = e.Name
		}
		if _, collides := g.Dependencies[name]; collides {
			// Demote the parent scope, not the colliding nested package;
			// its subtree is already owned elsewhere and is not
			// recorded here (spec.md §4.2).
			scope.Availability = pkggraph.ShadowedByDiverged
			continue
		}

		nested := &pkggraph.Package{
			Kind:        pkggraph.KindNested,
			Name:        name,
			Path:        pathutil.Rel(w.ProjectRoot, full),
			Manifest:    m,
			Version:     m.Version,
			NativeFiles: map[string][]File{},
		}
		nested.Availability = pkggraph.Available
		g.Dependencies[name] = nested
		scope.Children = append(scope.Children, nested)

		if err := w.walkPackageTree(g, full, full, nested); err != nil {
			return err
		}
	}
	return nil
}
