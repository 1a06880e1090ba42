// Package report presents PackageGraph and Delta snapshots as YAML,
// grounded on the teacher's internal/view's TreeOutput/DetailOutput +
// PresentTreeYAML/PresentDetailYAML split: a types.go of yaml-tagged
// output structs, and a thin presenter that marshals and writes them.
package report

import "github.com/m-saito/nsbuild/internal/vcsinfo"

// PackageSnapshot is one node of a resolved dependency tree.
type PackageSnapshot struct {
	Kind         string   `yaml:"kind"`
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version,omitempty"`
	Availability string   `yaml:"availability"`
	ScriptFiles  int      `yaml:"scriptFiles"`
	Directories  []string `yaml:"directories,omitempty"`
}

// GraphSnapshot presents a resolved *pkggraph.Graph.
type GraphSnapshot struct {
	VCS          vcsinfo.Info      `yaml:"vcs,omitempty"`
	App          PackageSnapshot   `yaml:"app"`
	Dependencies []PackageSnapshot `yaml:"dependencies,omitempty"`
}

// DeltaSnapshot presents one platform's computed *delta.Delta.
type DeltaSnapshot struct {
	VCS      vcsinfo.Info `yaml:"vcs,omitempty"`
	Platform string       `yaml:"platform"`
	Mkdir    []string     `yaml:"mkdir,omitempty"`
	Copy     []string     `yaml:"copy,omitempty"` // destination paths only
	RmFile   []string     `yaml:"rmfile,omitempty"`
	RmDir    []string     `yaml:"rmdir,omitempty"`
}
