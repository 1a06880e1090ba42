// Package pkggraph implements the dependency resolver: given a project
// root, it walks the nested installed-package tree and produces the
// flattened *available* dependency map with conflict resolution, per
// spec.md §4.1.
package pkggraph

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/manifest"
)

// Kind distinguishes the three node roles in the tree (spec.md §3).
type Kind int

const (
	KindApp Kind = iota
	KindPackage
	KindNested
)

func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindNested:
		return "nested"
	default:
		return "package"
	}
}

// Availability is the resolution outcome for a Package (spec.md §3).
type Availability int

const (
	Available Availability = iota
	NotInstalled
	ShadowedByAncestor
	ShadowedByDiverged
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case NotInstalled:
		return "not-installed"
	case ShadowedByAncestor:
		return "shadowed-by-ancestor"
	case ShadowedByDiverged:
		return "shadowed-by-diverged"
	default:
		return "unknown"
	}
}

// File describes one file belonging to a Package (spec.md §3).
type File struct {
	Path         string // relative to the enclosing package
	AbsolutePath string
	Name         string
	Extension    string
	MTime        int64 // ms since epoch
}

// Package is a node in the dependency tree (spec.md §3). Ownership is
// tree-shaped: children carry the two ancestor-resolved-name sets
// downward and never hold a parent pointer, per SPEC_FULL.md §9.
type Package struct {
	Kind            Kind
	Name            string
	Path            string // relative to project root
	Manifest        manifest.Manifest
	Version         string
	RequiredVersion string

	ResolvedAtParent      map[string]bool
	ResolvedAtGrandparent map[string]bool

	Children    []*Package
	ScriptFiles []File
	NativeFiles map[string][]File
	Directories []string

	Availability Availability
}

// Graph is the result of a resolve pass (spec.md §3: PackageGraph).
type Graph struct {
	App          *Package
	Dependencies map[string]*Package
}

// Builder walks an installed package tree rooted at ProjectRoot.
type Builder struct {
	Store       filestore.Store
	ProjectRoot string
}

// Build runs the DFS resolver described in spec.md §4.1 and returns the
// flattened graph. A malformed manifest is fatal (ErrManifestParse,
// wrapped); NotInstalled is recorded on the node, not returned as an
// error.
func (b *Builder) Build() (*Graph, error) {
	app := &Package{
		Kind:                  KindApp,
		Name:                  "app",
		Path:                  ".",
		ResolvedAtParent:      map[string]bool{},
		ResolvedAtGrandparent: map[string]bool{},
		NativeFiles:           map[string][]File{},
	}
	g := &Graph{Dependencies: map[string]*Package{}}
	if err := b.resolve(g, app); err != nil {
		return nil, err
	}
	g.App = app
	return g, nil
}

func (b *Builder) resolve(g *Graph, p *Package) error {
	manifestPath := filepath.Join(b.ProjectRoot, p.Path, "package.json")
	if !b.Store.Exists(manifestPath) {
		p.Availability = NotInstalled
		return nil
	}

	// Step 2: ancestor shadowing only applies to non-App nodes — the app
	// is the root and has no ancestors to be shadowed by.
	if p.Kind != KindApp && p.ResolvedAtGrandparent[p.Name] {
		p.Availability = ShadowedByAncestor
		return nil
	}

	text, err := b.Store.ReadText(manifestPath)
	if err != nil {
		return fmt.Errorf("reading manifest for %s: %w", p.Name, err)
	}
	m, err := manifest.Parse([]byte(text))
	if err != nil {
		return fmt.Errorf("package %s: %w", p.Name, err)
	}
	p.Manifest = m
	p.Version = m.Version

	switch {
	case p.Kind == KindApp:
		// Step 4: an app-level framework identifier renames the app.
		// The app is never entered into the shared dependency table and
		// is therefore exempt from the version tie-break in step 5 —
		// it can never be shadowed by a nested package of the same name
		// (see DESIGN.md Open Question decisions).
		if m.Framework != nil && m.Framework.ID != "" {
			p.Name = m.Framework.ID
		}
		p.Availability = Available

	default:
		if existing, ok := g.Dependencies[p.Name]; ok {
			// Step 5: higher semver wins; ties favor the incumbent.
			if manifest.CompareVersions(p.Version, existing.Version) > 0 {
				existing.Availability = ShadowedByDiverged
				p.Availability = Available
				g.Dependencies[p.Name] = p
			} else {
				p.Availability = ShadowedByDiverged
			}
		} else {
			// Step 6: first sighting of this name.
			p.Availability = Available
			g.Dependencies[p.Name] = p
		}
	}

	// Step 7 runs regardless of the Available/ShadowedByDiverged outcome:
	// a diverged package's own subtree can still introduce new,
	// previously-unseen names into the global table. Only NotInstalled
	// and ShadowedByAncestor (handled above, both return early) stop
	// the walk.
	resolved := make(map[string]bool, len(p.ResolvedAtParent)+len(m.Dependencies))
	for name := range p.ResolvedAtParent {
		resolved[name] = true
	}
	depNames := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		resolved[name] = true
		depNames = append(depNames, name)
	}
	sort.Strings(depNames) // deterministic child order regardless of manifest map iteration

	for _, depName := range depNames {
		child := &Package{
			Kind:                  KindPackage,
			Name:                  depName,
			Path:                  filepath.Join(p.Path, "node_modules", depName),
			RequiredVersion:       m.Dependencies[depName],
			ResolvedAtGrandparent: p.ResolvedAtParent,
			ResolvedAtParent:      resolved,
			NativeFiles:           map[string][]File{},
		}
		p.Children = append(p.Children, child)
		if err := b.resolve(g, child); err != nil {
			return err
		}
	}
	return nil
}
