package report

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/pkggraph"
	"github.com/m-saito/nsbuild/internal/vcsinfo"
)

// BuildGraphSnapshot flattens g into a GraphSnapshot, attaching vcs
// provenance if the caller has one (pass a zero vcsinfo.Info to omit
// it).
func BuildGraphSnapshot(g *pkggraph.Graph, vcs vcsinfo.Info) GraphSnapshot {
	snap := GraphSnapshot{
		VCS: vcs,
		App: snapshotPackage(g.App),
	}
	names := make([]string, 0, len(g.Dependencies))
	for name := range g.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		snap.Dependencies = append(snap.Dependencies, snapshotPackage(g.Dependencies[name]))
	}
	return snap
}

func snapshotPackage(p *pkggraph.Package) PackageSnapshot {
	return PackageSnapshot{
		Kind:         p.Kind.String(),
		Name:         p.Name,
		Version:      p.Version,
		Availability: p.Availability.String(),
		ScriptFiles:  len(p.ScriptFiles),
		Directories:  p.Directories,
	}
}

// BuildDeltaSnapshot presents d for platform.
func BuildDeltaSnapshot(platform string, d *delta.Delta, vcs vcsinfo.Info) DeltaSnapshot {
	copyDests := make([]string, 0, len(d.Copy))
	for dst := range d.Copy {
		copyDests = append(copyDests, dst)
	}
	sort.Strings(copyDests)

	mkdir := append([]string(nil), d.Mkdir...)
	sort.Strings(mkdir)
	rmfile := append([]string(nil), d.RmFile...)
	sort.Strings(rmfile)
	rmdir := append([]string(nil), d.RmDir...)
	sort.Strings(rmdir)

	return DeltaSnapshot{
		VCS:      vcs,
		Platform: platform,
		Mkdir:    mkdir,
		Copy:     copyDests,
		RmFile:   rmfile,
		RmDir:    rmdir,
	}
}

// PresentGraphYAML writes snap as YAML to w.
func PresentGraphYAML(w io.Writer, snap GraphSnapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling graph snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PresentDeltaYAML writes snap as YAML to w.
func PresentDeltaYAML(w io.Writer, snap DeltaSnapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling delta snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}
