package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/m-saito/nsbuild/internal/classifier"
	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/deviceops"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/inventory"
	"github.com/m-saito/nsbuild/internal/livesync"
	"github.com/m-saito/nsbuild/internal/pkggraph"
	"github.com/m-saito/nsbuild/internal/prepareinfo"
	"github.com/m-saito/nsbuild/internal/toolchain"
)

var (
	livesyncDeviceID      string
	livesyncSimulator     bool
	livesyncPackagePath   string
	livesyncIOSBundleID   string
	livesyncAndroidPkg    string
	livesyncAndroidADB    string
	livesyncXcodeProject  string
	livesyncXcodeScheme   string
	livesyncGradleDir     string
	livesyncForceDeploy   bool
)

var livesyncCmd = &cobra.Command{
	Use:   "livesync <platform>",
	Short: "Run one full sync to a single attached device or simulator",
	Long: `Ensures the app is installed on the target device, transfers the
project's output directory, and refreshes the running app — spec.md
§4.7's "Full sync" steps 1-5. A build/install cycle only runs first if
ChangeClassifier.ShouldBuildWhenLivesyncing reports the device's
last-synced prepare stamp is stale (spec.md §4.4), or --force-deploy is
passed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platformStr := args[0]
		platform, err := parsePlatform(platformStr)
		if err != nil {
			return err
		}
		if livesyncDeviceID == "" {
			return fmt.Errorf("--device is required")
		}
		if livesyncPackagePath == "" {
			return fmt.Errorf("--package-path is required (path to the built .app or .apk)")
		}

		store := filestore.New()
		lsOutputs, _, roots := platformOutputMaps(projectDir)

		ops := deviceops.New(deviceops.Config{
			Commander:          toolchain.NewCommander(),
			IOSBundleID:        livesyncIOSBundleID,
			AndroidPackageName: livesyncAndroidPkg,
			AndroidADBPath:     livesyncAndroidADB,
			Outputs:            lsOutputs,
		})
		builder := &toolchain.Builder{
			Commander: toolchain.NewCommander(),
			IOS:       toolchain.XcodeProject{ProjectPath: livesyncXcodeProject, Scheme: livesyncXcodeScheme},
			Android:   toolchain.GradleProject{ProjectDir: livesyncGradleDir},
		}

		coordinator := livesync.New(livesync.Config{
			Store:      store,
			Classifier: &classifier.Classifier{Store: store},
			Ops:        ops,
			Builder:    builder,
			ProjectDir: projectDir,
			Outputs:    lsOutputs,
			LiveEdit:   resolveFlags().LiveEdit,
			PackagePath: func(livesync.Platform) (string, error) {
				return livesyncPackagePath, nil
			},
			PrepareTime: func(p livesync.Platform) (string, error) {
				prepStore := prepareinfo.Store{FileStore: store}
				record, err := prepStore.Read(roots[string(p)])
				if err != nil {
					return "", err
				}
				return record.Time, nil
			},
		})

		dev := livesync.Device{ID: livesyncDeviceID, Platform: platform, IsSimulator: livesyncSimulator}
		coordinator.RegisterDevice(dev)

		shouldBuild, err := decideShouldBuild(store, roots, lsOutputs, ops, dev)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := coordinator.FullSync(ctx, dev, livesync.FullSyncOptions{ShouldBuild: shouldBuild || livesyncForceDeploy}); err != nil {
			return fmt.Errorf("full sync to %s: %w", dev.ID, err)
		}
		fmt.Printf("synced %s (%s)\n", dev.ID, platformStr)
		return nil
	},
}

// decideShouldBuild implements spec.md §4.4's second predicate. The
// "latest changes-summary" it consults is a dry-run DeltaPlanner pass
// (computed, never applied, against the live package artifact's own
// mtime as the "latest build time") rather than a persisted signal,
// since this one-shot command has no separate prepare step of its own.
func decideShouldBuild(store filestore.Store, roots map[string]string, lsOutputs map[livesync.Platform]delta.Output, ops *deviceops.Ops, dev livesync.Device) (bool, error) {
	prepStore := prepareinfo.Store{FileStore: store}
	record, err := prepStore.Read(roots[string(dev.Platform)])
	if err != nil {
		return false, fmt.Errorf("reading prepare info: %w", err)
	}

	info, err := store.Stat(livesyncPackagePath)
	latestBuildTime := ""
	if err == nil {
		latestBuildTime = info.ModTime().UTC().Format(time.RFC3339Nano)
	}

	outDir, err := ops.BuildOutputDir(dev)
	var stampPtr *string
	if err == nil {
		stamp, err := livesync.ReadStamp(store, outDir)
		if err != nil {
			return false, fmt.Errorf("reading livesync stamp: %w", err)
		}
		if stamp != "" {
			stampPtr = &stamp
		}
	}

	graphBuilder := pkggraph.Builder{Store: store, ProjectRoot: projectDir}
	graph, err := graphBuilder.Build()
	if err != nil {
		return false, fmt.Errorf("resolving package graph: %w", err)
	}
	walker := inventory.Walker{Store: store, ProjectRoot: projectDir, Platforms: knownPlatforms}
	if err := walker.Build(graph); err != nil {
		return false, fmt.Errorf("enumerating files: %w", err)
	}
	planner := delta.Planner{Store: store, CurrentPlatform: string(dev.Platform)}
	d := planner.BuildDelta(graph, lsOutputs[dev.Platform])
	d, err = planner.RebuildDelta(d, lsOutputs[dev.Platform])
	if err != nil {
		return false, fmt.Errorf("diffing against disk: %w", err)
	}

	return classifier.ShouldBuildWhenLivesyncing(classifier.BuildDecision{
		PrepareTime:         record.Time,
		LatestBuildTime:     latestBuildTime,
		LiveSyncStamp:       stampPtr,
		ChangesRequireBuild: d.ChangedScripts(),
	}), nil
}

func init() {
	livesyncCmd.Flags().StringVar(&livesyncDeviceID, "device", "", "target device UDID or serial (required)")
	livesyncCmd.Flags().BoolVar(&livesyncSimulator, "simulator", false, "target is an iOS simulator (vs. a physical device)")
	livesyncCmd.Flags().StringVar(&livesyncPackagePath, "package-path", "", "path to the built .app (iOS) or .apk (Android) (required)")
	livesyncCmd.Flags().StringVar(&livesyncIOSBundleID, "ios-bundle-id", "", "iOS app bundle identifier")
	livesyncCmd.Flags().StringVar(&livesyncAndroidPkg, "android-package", "", "Android application package name")
	livesyncCmd.Flags().StringVar(&livesyncAndroidADB, "adb-path", "adb", "path to the adb binary")
	livesyncCmd.Flags().StringVar(&livesyncXcodeProject, "xcode-project", "", "path to .xcodeproj, used if a build is triggered")
	livesyncCmd.Flags().StringVar(&livesyncXcodeScheme, "xcode-scheme", "", "Xcode scheme to build")
	livesyncCmd.Flags().StringVar(&livesyncGradleDir, "gradle-dir", "", "Android project directory containing gradlew")
	livesyncCmd.Flags().BoolVar(&livesyncForceDeploy, "force-deploy", false, "always run a build+install cycle before syncing")
	rootCmd.AddCommand(livesyncCmd)
}
