package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/m-saito/nsbuild/internal/classifier"
	"github.com/m-saito/nsbuild/internal/dashboard"
	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/deviceops"
	"github.com/m-saito/nsbuild/internal/eventbus"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/livesync"
	"github.com/m-saito/nsbuild/internal/prepareinfo"
	"github.com/m-saito/nsbuild/internal/reconciler"
	"github.com/m-saito/nsbuild/internal/toolchain"
)

var (
	watchDevices     []string
	watchUI          bool
	watchNATSURL     string
	watchReconcile   time.Duration
	watchIOSBundle   string
	watchAndroidPkg  string
	watchAndroidADB  string
	watchExcludes    []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project tree and live-sync changes to registered devices",
	Long: `Watches the project directory for filesystem events, coalesces them
through a SyncBatch per platform (spec.md §4.6), and for each flush
either transfers the changed files and refreshes every registered
device, or runs a full deploy cycle when ChangeClassifier decides the
change requires a build (spec.md §4.4, §4.7). A gocron job runs a
periodic full-delta reconciliation against disk as a drift safety net
(SPEC_FULL.md §12).

Each --device is "<platform>:<id>[:sim]", e.g. "ios:00008030-ABC:sim" or
"android:emulator-5554".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(watchDevices) == 0 {
			return fmt.Errorf("at least one --device is required")
		}

		store := filestore.New()
		lsOutputs, strOutputs, roots := platformOutputMaps(projectDir)

		ops := deviceops.New(deviceops.Config{
			Commander:          toolchain.NewCommander(),
			IOSBundleID:        watchIOSBundle,
			AndroidPackageName: watchAndroidPkg,
			AndroidADBPath:     watchAndroidADB,
			Outputs:            lsOutputs,
		})
		builder := &toolchain.Builder{Commander: toolchain.NewCommander()}

		var dashUpdates chan dashboard.Update
		if watchUI {
			dashUpdates = make(chan dashboard.Update, 64)
		}

		coordinator := livesync.New(livesync.Config{
			Store:      store,
			Classifier: &classifier.Classifier{Store: store},
			Ops:        ops,
			Builder:    builder,
			ProjectDir: projectDir,
			Outputs:    lsOutputs,
			Excluded:   watchExcludes,
			LiveEdit:   resolveFlags().LiveEdit,
			PackagePath: func(p livesync.Platform) (string, error) {
				return "", fmt.Errorf("watch: no package path configured for %s; watch cannot run a build+install cycle", p)
			},
			PrepareTime: func(p livesync.Platform) (string, error) {
				prepStore := prepareinfo.Store{FileStore: store}
				record, err := prepStore.Read(roots[string(p)])
				if err != nil {
					return "", err
				}
				return record.Time, nil
			},
			AfterFileSync: func(dev livesync.Device, files []string) {
				if dashUpdates != nil {
					dashUpdates <- dashboard.Update{LogLine: dashboard.FormatLogLine(timeNow(), dev.ID, fmt.Sprintf("synced %d files", len(files)))}
				}
			},
		})

		devices, err := parseWatchDevices(watchDevices)
		if err != nil {
			return err
		}
		for _, dev := range devices {
			coordinator.RegisterDevice(dev)
		}

		var bus *eventbus.Client
		var unsubscribe func() error
		if watchNATSURL != "" {
			bus = eventbus.Connect(watchNATSURL, nil)
			unsubscribe, err = coordinator.SubscribeRemoteEvents(bus)
			if err != nil {
				return fmt.Errorf("subscribing to remote file events: %w", err)
			}
		}

		rec, err := reconciler.New(reconciler.Config{
			Store:       store,
			ProjectRoot: projectDir,
			Platforms:   knownPlatforms,
			Targets:     reconcileTargets(strOutputs, devices),
			Interval:    watchReconcile,
		})
		if err != nil {
			return fmt.Errorf("building reconciler: %w", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("starting reconciler: %w", err)
		}
		defer func() { _ = rec.Shutdown() }()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating file watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		if err := addWatchDirs(watcher, projectDir); err != nil {
			return fmt.Errorf("setting up directory watch: %w", err)
		}

		fmt.Fprintf(os.Stderr, "watching %s for changes (Ctrl+C to stop)...\n", projectDir)

		if watchUI {
			dash := dashboard.New()
			go runWatchLoop(ctx, watcher, coordinator)
			err := dash.Run(ctx, dashUpdates)
			if unsubscribe != nil {
				_ = unsubscribe()
			}
			if bus != nil {
				_ = bus.Close()
			}
			return err
		}

		runWatchLoop(ctx, watcher, coordinator)
		if unsubscribe != nil {
			_ = unsubscribe()
		}
		if bus != nil {
			_ = bus.Close()
		}
		return nil
	},
}

// timeNow is a thin seam so dashboard log lines can be deterministically
// tested without monkey-patching time.Now directly.
var timeNow = time.Now

func runWatchLoop(ctx context.Context, watcher *fsnotify.Watcher, coordinator *livesync.Coordinator) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			kind, ok := translateEventKind(ev.Op)
			if !ok {
				continue
			}
			if err := coordinator.HandlePartialSync(livesync.Event{Path: ev.Name, Kind: kind}); err != nil {
				fmt.Fprintf(os.Stderr, "handling %s: %v\n", ev.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}

func translateEventKind(op fsnotify.Op) (livesync.EventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return livesync.EventAdd, true
	case op.Has(fsnotify.Write):
		return livesync.EventChange, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return livesync.EventUnlink, true
	default:
		return 0, false
	}
}

// addWatchDirs recursively registers every directory under root with
// watcher, skipping node_modules and platforms (build output, not
// source) so the watch doesn't drown in generated-file churn.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == "node_modules" || name == "platforms" || (strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func parseWatchDevices(specs []string) ([]livesync.Device, error) {
	devices := make([]livesync.Device, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --device %q, expected <platform>:<id>[:sim]", spec)
		}
		platform, err := parsePlatform(parts[0])
		if err != nil {
			return nil, err
		}
		dev := livesync.Device{ID: parts[1], Platform: platform}
		if len(parts) == 3 && parts[2] == "sim" {
			dev.IsSimulator = true
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func reconcileTargets(strOutputs map[string]delta.Output, devices []livesync.Device) []reconciler.Target {
	seen := map[string]bool{}
	var targets []reconciler.Target
	for _, dev := range devices {
		platform := string(dev.Platform)
		if seen[platform] {
			continue
		}
		seen[platform] = true
		targets = append(targets, reconciler.Target{Platform: platform, Output: strOutputs[platform]})
	}
	return targets
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchDevices, "device", nil, "device to live-sync to, \"<platform>:<id>[:sim]\" (repeatable)")
	watchCmd.Flags().BoolVar(&watchUI, "ui", false, "show a live TUI dashboard of device/batch status instead of plain log lines")
	watchCmd.Flags().StringVar(&watchNATSURL, "nats-url", "", "also subscribe to file events published by an out-of-process watcher over NATS")
	watchCmd.Flags().DurationVar(&watchReconcile, "reconcile-interval", 5*time.Minute, "periodic full-delta reconciliation interval")
	watchCmd.Flags().StringVar(&watchIOSBundle, "ios-bundle-id", "", "iOS app bundle identifier")
	watchCmd.Flags().StringVar(&watchAndroidPkg, "android-package", "", "Android application package name")
	watchCmd.Flags().StringVar(&watchAndroidADB, "adb-path", "adb", "path to the adb binary")
	watchCmd.Flags().StringSliceVar(&watchExcludes, "exclude", nil, "glob pattern to exclude from sync, matched case-insensitively (repeatable)")
	rootCmd.AddCommand(watchCmd)
}
