// Package delta implements DeltaPlanner: it turns a resolved
// PackageGraph into a directory-level {mkdir, copy, rmfile, rmdir} set
// against a per-target output layout, and reconciles that desired
// state against what already exists on disk (spec.md §4.3).
package delta

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/pathutil"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

// Output is the per-target directory layout (spec.md §6): App and
// Modules are absolute (or project-relative) roots the desired
// delta targets.
type Output struct {
	App     string
	Modules string
}

// Delta is the four path-keyed sets spec.md §3 describes. Mkdir/Rmfile/
// Rmdir are plain path sets; Copy maps a destination path to its
// source file.
type Delta struct {
	Mkdir  []string
	Copy   map[string]pkggraph.File
	RmFile []string
	RmDir  []string
}

func newDelta() *Delta {
	return &Delta{Copy: map[string]pkggraph.File{}}
}

// ChangedScripts reports whether applying this delta would touch any
// script file (spec.md §4.3: "changedScripts = (copy ≠ ∅) ∨ (rmfile ≠ ∅)").
func (d *Delta) ChangedScripts() bool {
	return len(d.Copy) > 0 || len(d.RmFile) > 0
}

// Planner computes and reconciles deltas for one platform.
type Planner struct {
	Store           filestore.Store
	CurrentPlatform string
}

// platformSuffix returns the ".<platform>." infix a filename may carry
// to scope it to one platform (e.g. "view.ios.js").
func platformSuffix(platform string) string { return "." + platform + "." }

// BuildDelta computes the desired delta for the App and every Available
// dependency in g against out (spec.md §4.3, "Desired state").
func (p *Planner) BuildDelta(g *pkggraph.Graph, out Output) *Delta {
	d := newDelta()

	for _, dir := range g.App.Directories {
		d.Mkdir = append(d.Mkdir, pathutil.AsDir(filepath.Join(out.App, pathutil.TrimDir(dir))))
	}
	for _, f := range g.App.ScriptFiles {
		dst := filepath.Join(out.App, f.Path)
		d.Copy[dst] = f
	}

	names := make([]string, 0, len(g.Dependencies))
	for name := range g.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pack := g.Dependencies[name]
		if pack.Availability != pkggraph.Available {
			continue
		}
		p.planPackage(d, out, pack)
	}

	dedupeMkdir(d)
	return d
}

func (p *Planner) planPackage(d *Delta, out Output, pack *pkggraph.Package) {
	pkgRoot := filepath.Join(out.Modules, pack.Name)

	for _, seg := range pathSegments(pack.Name) {
		d.Mkdir = append(d.Mkdir, pathutil.AsDir(filepath.Join(out.Modules, seg)))
	}
	for _, dir := range pack.Directories {
		d.Mkdir = append(d.Mkdir, pathutil.AsDir(filepath.Join(pkgRoot, pathutil.TrimDir(dir))))
	}

	for _, f := range pack.ScriptFiles {
		if excludedByOtherPlatform(f.Name, p.CurrentPlatform) {
			continue
		}
		rewritten := strings.ReplaceAll(f.Path, platformSuffix(p.CurrentPlatform), ".")
		dst := filepath.Join(pkgRoot, rewritten)
		if prev, exists := d.Copy[dst]; exists {
			// Collision: logged (not fatal), last-writer wins by insertion
			// order — this sorted-by-name package walk is that insertion
			// order.
			slog.Warn("copy destination collision, last writer wins",
				"dst", dst, "previous", prev.AbsolutePath, "next", f.AbsolutePath)
		}
		d.Copy[dst] = f
	}
}

// knownPlatforms restricts the "<other>." infix match in
// excludedByOtherPlatform to the known mobile target names, so an
// ordinary dotted filename segment (e.g. "module.test.js") is never
// mistaken for a platform suffix.
var knownPlatforms = []string{"ios", "android"}

// excludedByOtherPlatform reports whether name carries a platform
// suffix for a platform other than current (spec.md §4.3: "every
// script file whose name contains the suffix of a non-current platform
// is excluded").
func excludedByOtherPlatform(name, current string) bool {
	for _, platform := range knownPlatforms {
		if platform != current && strings.Contains(name, platformSuffix(platform)) {
			return true
		}
	}
	return false
}

func pathSegments(name string) []string {
	parts := strings.Split(filepath.ToSlash(name), "/")
	segs := make([]string, 0, len(parts))
	acc := ""
	for _, part := range parts {
		if acc == "" {
			acc = part
		} else {
			acc = acc + "/" + part
		}
		segs = append(segs, filepath.FromSlash(acc))
	}
	return segs
}

func dedupeMkdir(d *Delta) {
	seen := map[string]bool{}
	out := d.Mkdir[:0]
	for _, m := range d.Mkdir {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	d.Mkdir = out
}

// RebuildDelta reconciles a freshly-built desired delta against what
// already exists under out.App and out.Modules (spec.md §4.3, "Reality
// diff").
func (p *Planner) RebuildDelta(d *Delta, out Output) (*Delta, error) {
	existingDirs := map[string]bool{}
	for _, root := range []string{out.App, out.Modules} {
		if !p.Store.Exists(root) {
			continue
		}
		if err := p.reconcileTree(d, existingDirs, root); err != nil {
			return nil, err
		}
	}

	// Step 2: any mkdir entry for a directory that already exists on
	// disk is redundant, whether or not it was seen during the scan
	// above (e.g. out.App itself, never listed as a child of anything).
	pruned := d.Mkdir[:0]
	for _, m := range d.Mkdir {
		if existingDirs[m] {
			continue
		}
		pruned = append(pruned, m)
	}
	d.Mkdir = pruned
	return d, nil
}

// reconcileTree walks one existing output root and, for every existing
// directory and file it finds, updates d in place per spec.md §4.3 step
// 1. existingDirs accumulates every directory path seen, used for the
// step-2 prune pass.
func (p *Planner) reconcileTree(d *Delta, existingDirs map[string]bool, dir string) error {
	entries, err := p.Store.List(dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name)
		if e.IsDir {
			key := pathutil.AsDir(full)
			existingDirs[key] = true
			if !containsMkdir(d.Mkdir, key) {
				d.RmDir = append(d.RmDir, key)
			}
			if err := p.reconcileTree(d, existingDirs, full); err != nil {
				return err
			}
			continue
		}

		if src, ok := d.Copy[full]; ok {
			info, err := p.Store.Stat(full)
			if err != nil {
				return fmt.Errorf("stat %s: %w", full, err)
			}
			if info.ModTime().UnixMilli() >= src.MTime {
				delete(d.Copy, full)
			}
		} else {
			d.RmFile = append(d.RmFile, full)
		}
	}
	return nil
}

func containsMkdir(mkdir []string, key string) bool {
	for _, m := range mkdir {
		if m == key {
			return true
		}
	}
	return false
}
