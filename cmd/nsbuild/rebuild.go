package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/m-saito/nsbuild/internal/auditlog"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/metrics"
	"github.com/m-saito/nsbuild/internal/pathutil"
	"github.com/m-saito/nsbuild/internal/prepareinfo"
	"github.com/m-saito/nsbuild/internal/rebuild"
	"github.com/m-saito/nsbuild/internal/report"
	"github.com/m-saito/nsbuild/internal/vcsinfo"
)

var rebuildYAML bool

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <platform>",
	Short: "Resolve dependencies and materialize the output directory for one platform",
	Long: `Resolves the project's installed package tree (PackageGraph), enumerates
application and package files (FileInventory), and diffs the desired
output against what already exists on disk (DeltaPlanner), applying the
resulting mkdir/copy/rmfile/rmdir operations.

The package graph and file inventory are shared across every configured
platform, but only the requested platform's result is reported — fixing
the reference source's bug where the command always returned the iOS
result regardless of which platform was asked for (spec.md §9).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform := args[0]
		if _, err := parsePlatform(platform); err != nil {
			return err
		}

		flags := resolveFlags()
		store := filestore.New()
		_, strOutputs, roots := platformOutputMaps(projectDir)

		cacheRoot, err := pathutil.ProjectCacheRoot(projectDir)
		if err != nil {
			return fmt.Errorf("resolving cache root: %w", err)
		}
		if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
			return fmt.Errorf("creating cache root: %w", err)
		}
		audit, err := auditlog.Open(cacheRoot + "/audit.db")
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = audit.Close() }()

		recorder := metrics.NewRecorder(nil)

		results, err := rebuild.Run(rebuild.Config{
			Store:         store,
			ProjectRoot:   projectDir,
			Platforms:     knownPlatforms,
			Outputs:       strOutputs,
			PlatformRoots: roots,
			Options:       prepareinfo.Options{Bundle: flags.Bundle, Release: flags.Release},
			Metrics:       recorder,
		})
		if err != nil {
			return err
		}

		res := results[platform]
		outcome := "success"
		fileCount := 0
		if res.Err != nil {
			outcome = res.Err.Error()
		} else if res.Delta != nil {
			fileCount = len(res.Delta.Copy) + len(res.Delta.RmFile)
		}
		if auditErr := audit.Append(auditlog.Entry{
			Kind:      auditlog.KindRebuild,
			Platform:  platform,
			FileCount: fileCount,
			Outcome:   outcome,
		}); auditErr != nil {
			cmd.PrintErrf("warning: recording audit entry: %v\n", auditErr)
		}
		if res.Err != nil {
			return fmt.Errorf("rebuilding %s: %w", platform, res.Err)
		}

		vcs, _ := vcsinfo.Read(projectDir)
		if rebuildYAML {
			snap := report.BuildDeltaSnapshot(platform, res.Delta, vcs)
			return report.PresentDeltaYAML(os.Stdout, snap)
		}

		fmt.Printf("rebuilt %s: %d mkdir, %d copy, %d rmfile, %d rmdir (prepared at %s)\n",
			platform, len(res.Delta.Mkdir), len(res.Delta.Copy), len(res.Delta.RmFile), len(res.Delta.RmDir),
			formatPrepareTime(res.PrepareInfo.Time))
		return nil
	},
}

func formatPrepareTime(t string) string {
	if t == "" {
		return "unchanged"
	}
	if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
		return parsed.Format(time.RFC3339)
	}
	return t
}

func init() {
	rebuildCmd.Flags().BoolVar(&rebuildYAML, "yaml", false, "print the computed delta as YAML instead of a summary line")
	rootCmd.AddCommand(rebuildCmd)
}
