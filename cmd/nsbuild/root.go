package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/m-saito/nsbuild/internal/config"
	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/livesync"
)

// knownPlatforms is the closed set spec.md §6 defines an output layout
// for.
var knownPlatforms = []string{"ios", "android"}

var (
	projectDir      string
	verbose         bool
	flagBundle      bool
	flagRelease     bool
	flagDevice      string
	flagLiveEdit    bool
	flagSyncAll     bool
	flagBundleSet   bool
	flagReleaseSet  bool
	flagLiveEditSet bool
	flagSyncAllSet  bool
)

var rootCmd = &cobra.Command{
	Use:   "nsbuild",
	Short: "Incremental rebuild and live-sync engine for mobile cross-platform projects",
	Long: `nsbuild resolves a project's installed package tree, materializes a
per-platform output directory suitable for packaging onto an Android or
iOS device, and incrementally re-materializes plus live-syncs that
directory to attached devices as files change.`,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "project root directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (debug-level) logging")
	rootCmd.PersistentFlags().BoolVar(&flagBundle, "bundle", false, "bundle the app (webpack-style single-file output)")
	rootCmd.PersistentFlags().BoolVar(&flagRelease, "release", false, "build/prepare in release mode")
	rootCmd.PersistentFlags().StringVar(&flagDevice, "device", "", "target device identifier (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagLiveEdit, "live-edit", true, "enable iOS debugger-socket live edit for scripts-only changes")
	rootCmd.PersistentFlags().BoolVar(&flagSyncAll, "sync-all-files", false, "resolved into the config flags; a full sync always transfers every file under the output roots regardless")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		flagBundleSet = cmd.Flags().Changed("bundle")
		flagReleaseSet = cmd.Flags().Changed("release")
		flagLiveEditSet = cmd.Flags().Changed("live-edit")
		flagSyncAllSet = cmd.Flags().Changed("sync-all-files")
	}
}

func initLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// resolveFlags layers the process's persistent flags over config.Resolve's
// env/.env/.nsbuildrc fallback chain (spec.md §6 configuration flags).
func resolveFlags() config.Flags {
	overrides := config.Overrides{}
	if flagBundleSet {
		overrides.Bundle = &flagBundle
	}
	if flagReleaseSet {
		overrides.Release = &flagRelease
	}
	if flagDevice != "" {
		overrides.Device = &flagDevice
	}
	if flagLiveEditSet {
		overrides.LiveEdit = &flagLiveEdit
	}
	if flagSyncAllSet {
		overrides.SyncAllFiles = &flagSyncAll
	}
	return config.Resolve(projectDir, overrides)
}

// targetOutputs computes the per-platform directory layout spec.md §6
// defines, rooted at projectDir.
func targetOutputs(projRoot string) (map[string]delta.Output, map[string]string) {
	base := filepath.Base(mustAbs(projRoot))
	iosRoot := filepath.Join(projRoot, "platforms", "ios")
	iosApp := filepath.Join(iosRoot, base, "app")
	androidRoot := filepath.Join(projRoot, "platforms", "android")
	androidApp := filepath.Join(androidRoot, "src", "main", "assets", "app")

	outputs := map[string]delta.Output{
		"ios":     {App: iosApp, Modules: filepath.Join(iosApp, "tns_modules")},
		"android": {App: androidApp, Modules: filepath.Join(androidApp, "tns_modules")},
	}
	roots := map[string]string{
		"ios":     iosRoot,
		"android": androidRoot,
	}
	return outputs, roots
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func platformOutputMaps(projRoot string) (map[livesync.Platform]delta.Output, map[string]delta.Output, map[string]string) {
	strOutputs, roots := targetOutputs(projRoot)
	lsOutputs := map[livesync.Platform]delta.Output{
		livesync.PlatformIOS:     strOutputs["ios"],
		livesync.PlatformAndroid: strOutputs["android"],
	}
	return lsOutputs, strOutputs, roots
}

func parsePlatform(s string) (livesync.Platform, error) {
	switch s {
	case "ios":
		return livesync.PlatformIOS, nil
	case "android":
		return livesync.PlatformAndroid, nil
	default:
		return "", errUnknownPlatform(s)
	}
}

type errUnknownPlatform string

func (e errUnknownPlatform) Error() string {
	return "unknown platform " + string(e) + " (expected ios or android)"
}
