// Package reconciler runs a periodic full-delta reconciliation pass
// during a long-lived watch session, as a safety net against drift
// that a live-sync session's incremental bookkeeping might miss (a
// missed filesystem event, a file edited outside the watched project,
// a crash mid-batch). It generalizes the teacher's own periodic-tidy
// instinct (cleanOldDylibs, invoked from the watch loop to sweep stale
// thunk artifacts every few rebuilds) into a scheduled job covering
// the whole output tree instead of one directory.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/inventory"
	"github.com/m-saito/nsbuild/internal/metrics"
	"github.com/m-saito/nsbuild/internal/pkggraph"
)

// Target is one platform's output directories to reconcile.
type Target struct {
	Platform string
	Output   delta.Output
}

// Config configures the scheduled reconciliation loop.
type Config struct {
	Store       filestore.Store
	ProjectRoot string
	// Platforms lists every target platform known to the project, used
	// to enumerate App_Resources/<platform> native files regardless of
	// which single platform a given Target reconciles.
	Platforms []string
	Targets   []Target
	Interval  time.Duration
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// Reconciler runs Config.Targets' full-delta rebuild against disk on a
// fixed interval, logging (and, when Delta is non-empty, applying) any
// drift it finds.
type Reconciler struct {
	cfg       Config
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// New validates cfg and builds a Reconciler; it does not start the
// schedule (call Start for that).
func New(cfg Config) (*Reconciler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return &Reconciler{cfg: cfg, logger: logger, scheduler: scheduler}, nil
}

// Start registers the recurring reconciliation job and starts the
// scheduler. Call Shutdown to stop it.
func (r *Reconciler) Start(ctx context.Context) error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() { r.runOnce(ctx) }),
	)
	if err != nil {
		return fmt.Errorf("scheduling reconciliation job: %w", err)
	}
	r.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler, waiting for an in-flight pass to
// finish.
func (r *Reconciler) Shutdown() error {
	return r.scheduler.Shutdown()
}

// runOnce reconciles every configured target once, logging what it
// finds. A per-target error is logged and does not stop the other
// targets from being checked.
func (r *Reconciler) runOnce(ctx context.Context) {
	for _, target := range r.cfg.Targets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := r.reconcileTarget(target); err != nil {
			r.logger.Error("reconciliation pass failed", "platform", target.Platform, "err", err)
		}
	}
}

func (r *Reconciler) reconcileTarget(target Target) error {
	builder := pkggraph.Builder{Store: r.cfg.Store, ProjectRoot: r.cfg.ProjectRoot}
	graph, err := builder.Build()
	if err != nil {
		return fmt.Errorf("resolving package graph: %w", err)
	}

	walker := inventory.Walker{Store: r.cfg.Store, ProjectRoot: r.cfg.ProjectRoot, Platforms: r.cfg.Platforms}
	if err := walker.Build(graph); err != nil {
		return fmt.Errorf("enumerating files: %w", err)
	}

	planner := delta.Planner{Store: r.cfg.Store, CurrentPlatform: target.Platform}
	d := planner.BuildDelta(graph, target.Output)
	d, err = planner.RebuildDelta(d, target.Output)
	if err != nil {
		return fmt.Errorf("diffing against disk: %w", err)
	}

	driftCount := len(d.Mkdir) + len(d.Copy) + len(d.RmFile) + len(d.RmDir)
	if driftCount == 0 {
		r.logger.Debug("reconciliation found no drift", "platform", target.Platform)
		return nil
	}
	r.logger.Warn("reconciliation found drift against disk",
		"platform", target.Platform,
		"mkdir", len(d.Mkdir), "copy", len(d.Copy), "rmfile", len(d.RmFile), "rmdir", len(d.RmDir))

	if err := Apply(r.cfg.Store, d); err != nil {
		return fmt.Errorf("applying reconciliation delta: %w", err)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SetDeltaOpCounts(len(d.Mkdir), len(d.Copy), len(d.RmFile), len(d.RmDir))
	}
	return nil
}

// Apply materializes a Delta's four operation sets against store, in
// the dependency-safe order: directories created before the files that
// live in them, files removed before the directories that contained
// them.
func Apply(store filestore.Store, d *delta.Delta) error {
	for _, dir := range d.Mkdir {
		if err := store.MkdirAll(dir); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	for dst, src := range d.Copy {
		if err := store.Copy(src.AbsolutePath, dst); err != nil {
			return fmt.Errorf("copying %s to %s: %w", src.AbsolutePath, dst, err)
		}
	}
	for _, file := range d.RmFile {
		if err := store.RemoveFile(file); err != nil {
			return fmt.Errorf("removing %s: %w", file, err)
		}
	}
	// RmDir lists parents before the children reconcileTree found while
	// descending into them; removing in that order would fail on a
	// non-empty parent, so walk it back to front.
	for i := len(d.RmDir) - 1; i >= 0; i-- {
		if err := store.RemoveDir(d.RmDir[i]); err != nil {
			return fmt.Errorf("removing %s: %w", d.RmDir[i], err)
		}
	}
	return nil
}
