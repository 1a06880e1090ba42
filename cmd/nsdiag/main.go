// Command nsdiag inspects the persisted state nsbuild leaves behind
// between invocations: the resolved package graph, a platform's
// `.nsprepareinfo` record, a device's `.nslivesyncinfo` stamp, and the
// sqlite audit trail of past rebuilds and syncs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/m-saito/nsbuild/internal/auditlog"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/livesync"
	"github.com/m-saito/nsbuild/internal/pathutil"
	"github.com/m-saito/nsbuild/internal/pkggraph"
	"github.com/m-saito/nsbuild/internal/prepareinfo"
	"github.com/m-saito/nsbuild/internal/report"
	"github.com/m-saito/nsbuild/internal/vcsinfo"
)

// CLI is nsdiag's root command set.
type CLI struct {
	Project string `short:"p" help:"Project root directory." default:"."`
	Verbose bool   `short:"v" help:"Enable debug-level logging."`

	Graph    GraphCmd    `cmd:"" help:"Print the resolved package dependency graph as YAML."`
	Prepare  PrepareCmd  `cmd:"" help:"Print a platform's .nsprepareinfo record."`
	Livesync LivesyncCmd `cmd:"" help:"Print a device build output's .nslivesyncinfo stamp."`
	Audit    AuditCmd    `cmd:"" help:"Print recent audit-log entries for a platform."`
}

// Global is shared state every subcommand's Run receives.
type Global struct {
	Store       filestore.Store
	ProjectRoot string
}

// AfterApply wires up logging before any subcommand runs.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// GraphCmd resolves and prints the project's package graph.
type GraphCmd struct{}

func (g *GraphCmd) Run(_ *Global, root *CLI) error {
	builder := pkggraph.Builder{Store: filestore.New(), ProjectRoot: root.Project}
	graph, err := builder.Build()
	if err != nil {
		return fmt.Errorf("resolving package graph: %w", err)
	}
	vcs, _ := vcsinfo.Read(root.Project)
	snap := report.BuildGraphSnapshot(graph, vcs)
	return report.PresentGraphYAML(os.Stdout, snap)
}

// PrepareCmd reads one platform's prepare-info record.
type PrepareCmd struct {
	Platform string `arg:"" help:"ios or android."`
}

func (p *PrepareCmd) Run(_ *Global, root *CLI) error {
	platformRoot := filepath.Join(root.Project, "platforms", p.Platform)
	store := prepareinfo.Store{FileStore: filestore.New()}
	record, err := store.Read(platformRoot)
	if err != nil {
		return fmt.Errorf("reading prepare info: %w", err)
	}
	if record.Time == "" {
		fmt.Printf("%s: never prepared\n", p.Platform)
		return nil
	}
	fmt.Printf("%s: prepared at %s (bundle=%v release=%v)\n", p.Platform, record.Time, record.Bundle, record.Release)
	return nil
}

// LivesyncCmd reads a device build output directory's live-sync stamp.
type LivesyncCmd struct {
	BuildOutputDir string `arg:"" help:"Device build output directory (the simulator app container, or the Android build output)."`
}

func (l *LivesyncCmd) Run(_ *Global, _ *CLI) error {
	stamp, err := livesync.ReadStamp(filestore.New(), l.BuildOutputDir)
	if err != nil {
		return fmt.Errorf("reading live-sync stamp: %w", err)
	}
	if stamp == "" {
		fmt.Println("never synced")
		return nil
	}
	fmt.Printf("last synced prepare stamp: %s\n", stamp)
	return nil
}

// AuditCmd lists recent rebuild/sync audit entries for one platform.
type AuditCmd struct {
	Platform string `arg:"" help:"ios or android."`
	Limit    int    `help:"Maximum rows to print." default:"20"`
}

func (a *AuditCmd) Run(_ *Global, root *CLI) error {
	cacheRoot, err := pathutil.ProjectCacheRoot(root.Project)
	if err != nil {
		return fmt.Errorf("resolving cache root: %w", err)
	}
	dbPath := filepath.Join(cacheRoot, "audit.db")
	if _, statErr := os.Stat(dbPath); statErr != nil {
		fmt.Printf("no audit log yet at %s\n", dbPath)
		return nil
	}

	audit, err := auditlog.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer func() { _ = audit.Close() }()

	entries, err := audit.RecentByPlatform(a.Platform, a.Limit)
	if err != nil {
		return fmt.Errorf("reading audit entries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("no audit entries for %s\n", a.Platform)
		return nil
	}
	for _, e := range entries {
		device := e.DeviceID
		if device == "" {
			device = "-"
		}
		fmt.Printf("%s  %-8s %-10s device=%-20s files=%-4d %s\n",
			e.Timestamp.Format("2006-01-02T15:04:05"), e.Kind, e.Platform, device, e.FileCount, e.Outcome)
	}
	return nil
}

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli, kong.Description("nsdiag inspects nsbuild's persisted rebuild and live-sync state."))

	root, err := filepath.Abs(cli.Project)
	if err != nil {
		parser.FatalIfErrorf(err)
	}
	globals := &Global{Store: filestore.New(), ProjectRoot: root}

	if err := parser.Run(globals, cli); err != nil {
		parser.FatalIfErrorf(err)
	}
}
