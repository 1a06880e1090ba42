// Package rebuild orchestrates one core-rebuild invocation across every
// configured platform: a single PackageGraph + FileInventory pass
// (shared, since native-resource enumeration already walks every known
// platform per spec.md §4.2) feeding an independent DeltaPlanner +
// apply + PrepareInfoStore reconciliation per platform.
//
// SPEC_FULL.md §9 / DESIGN.md resolve the reference source's "rebuild
// always returns the iOS result" bug by keying the result type on
// platform instead of returning one hardcoded value: Run returns every
// platform's Result, and the caller (cmd/nsbuild's rebuild command)
// selects the one it actually asked for.
package rebuild

import (
	"fmt"
	"time"

	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/inventory"
	"github.com/m-saito/nsbuild/internal/metrics"
	"github.com/m-saito/nsbuild/internal/pkggraph"
	"github.com/m-saito/nsbuild/internal/prepareinfo"
	"github.com/m-saito/nsbuild/internal/reconciler"
)

// Config wires one Run invocation's collaborators and per-platform
// targets.
type Config struct {
	Store       filestore.Store
	ProjectRoot string
	// Platforms lists every platform to rebuild in this invocation, and
	// doubles as FileInventory's native-resource platform set (spec.md
	// §4.2).
	Platforms []string
	// Outputs and PlatformRoots are keyed by the same platform strings
	// as Platforms: the per-target directory layout (spec.md §6) and
	// the directory PrepareInfoStore persists ".nsprepareinfo" under.
	Outputs       map[string]delta.Output
	PlatformRoots map[string]string
	Options       prepareinfo.Options
	Metrics       *metrics.Recorder
}

// Result is one platform's rebuild outcome.
type Result struct {
	Platform    string
	Graph       *pkggraph.Graph
	Delta       *delta.Delta
	PrepareInfo prepareinfo.Record
	Err         error
}

// Run builds the shared PackageGraph/FileInventory once, then computes,
// applies, and stamps a Delta for every configured platform. A
// PackageGraph build failure (ManifestParse, spec.md §7) is fatal to
// the whole invocation, since every platform shares it; a per-platform
// delta/apply failure is recorded on that platform's Result without
// stopping the others.
func Run(cfg Config) (map[string]Result, error) {
	builder := pkggraph.Builder{Store: cfg.Store, ProjectRoot: cfg.ProjectRoot}
	graph, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("resolving package graph: %w", err)
	}

	walker := inventory.Walker{Store: cfg.Store, ProjectRoot: cfg.ProjectRoot, Platforms: cfg.Platforms}
	if err := walker.Build(graph); err != nil {
		return nil, fmt.Errorf("enumerating files: %w", err)
	}

	prepStore := prepareinfo.Store{FileStore: cfg.Store}
	results := make(map[string]Result, len(cfg.Platforms))
	for _, platform := range cfg.Platforms {
		results[platform] = runPlatform(cfg, &prepStore, graph, platform)
	}
	return results, nil
}

func runPlatform(cfg Config, prepStore *prepareinfo.Store, graph *pkggraph.Graph, platform string) Result {
	start := time.Now()
	res := Result{Platform: platform, Graph: graph}

	out, ok := cfg.Outputs[platform]
	if !ok {
		res.Err = fmt.Errorf("rebuild: no output layout configured for platform %s", platform)
		return res
	}
	platformRoot, ok := cfg.PlatformRoots[platform]
	if !ok {
		res.Err = fmt.Errorf("rebuild: no platform root configured for platform %s", platform)
		return res
	}

	planner := delta.Planner{Store: cfg.Store, CurrentPlatform: platform}
	d := planner.BuildDelta(graph, out)
	d, err := planner.RebuildDelta(d, out)
	if err != nil {
		res.Err = fmt.Errorf("diffing against disk: %w", err)
		return res
	}
	res.Delta = d

	if err := reconciler.Apply(cfg.Store, d); err != nil {
		res.Err = fmt.Errorf("applying delta: %w", err)
		return res
	}

	flags := prepareinfo.ChangeFlags{
		AppFilesChanged: d.ChangedScripts(),
		ModulesChanged:  d.ChangedScripts(),
	}
	record, err := prepStore.Reconcile(platformRoot, cfg.Options, flags)
	if err != nil {
		res.Err = fmt.Errorf("reconciling prepare info: %w", err)
		return res
	}
	res.PrepareInfo = record

	if cfg.Metrics != nil {
		cfg.Metrics.ObserveRebuildDuration(platform, time.Since(start))
		cfg.Metrics.SetDeltaOpCounts(len(d.Mkdir), len(d.Copy), len(d.RmFile), len(d.RmDir))
	}
	return res
}
