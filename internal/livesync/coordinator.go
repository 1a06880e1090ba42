package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/m-saito/nsbuild/internal/classifier"
	"github.com/m-saito/nsbuild/internal/delta"
	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/syncbatch"
)

// BuildRunner triggers a prepare+build cycle for one platform. It is an
// external collaborator (spec.md §1: "platform build toolchains... remain
// external collaborators").
type BuildRunner interface {
	Build(ctx context.Context, platform Platform) error
}

// DeviceOps is every device-specific primitive LiveSyncCoordinator
// drives: install lifecycle, file transfer, refresh, and the debugger
// channel. Device discovery and the low-level transfer/refresh
// mechanics are external collaborators (spec.md §1); DeviceOps owns
// translating a local path into whatever the device side needs.
type DeviceOps interface {
	Stop(ctx context.Context, dev Device) error
	Uninstall(ctx context.Context, dev Device) error
	Install(ctx context.Context, dev Device, packagePath string) error
	TransferDirectory(ctx context.Context, dev Device, localRoot string) error
	TransferFiles(ctx context.Context, dev Device, localPaths []string) error
	RemoveFiles(ctx context.Context, dev Device, localPaths []string) error
	AndroidRefresh(ctx context.Context, dev Device, localPaths []string) error
	Restart(ctx context.Context, dev Device) error
	Dialer(dev Device) Dialer
	// BuildOutputDir returns the directory LiveSyncInfo is stamped
	// under for dev: the device build output, or (for an iOS
	// simulator) the emulator build output directory (spec.md §6).
	BuildOutputDir(dev Device) (string, error)
}

// Config wires a Coordinator's collaborators and policy knobs.
type Config struct {
	Store       filestore.Store
	Classifier  *classifier.Classifier
	Ops         DeviceOps
	Builder     BuildRunner
	Logger      *slog.Logger
	ProjectDir  string
	Outputs     map[Platform]delta.Output
	Excluded    []string // excludedProjectDirsAndFiles glob patterns, matched case-insensitively
	LiveEdit    bool
	// FastSyncExtensions is the glossary's "fast-sync" allowlist: file
	// extensions (including the leading dot, lowercase) for which a hot
	// refresh is sufficient. Defaults to defaultFastSyncExtensions.
	FastSyncExtensions map[string]bool
	PackagePath func(platform Platform) (string, error)
	PrepareTime func(platform Platform) (string, error)
	// AfterFileSync, if set, runs after a successful per-flush sync and
	// stamp (spec.md §4.7's optional afterFileSyncAction).
	AfterFileSync func(dev Device, files []string)
}

// Coordinator implements LiveSyncCoordinator (spec.md §4.7): it owns a
// per-platform SyncBatch, the fileHashes no-op table, and the registered
// devices a flush fans out to.
type Coordinator struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry

	mu         sync.Mutex
	fileHashes map[string]string
	devices    map[string]Device
	batches    map[Platform]*syncbatch.Batch
	debuggers  map[string]*DebuggerSocket
}

// New constructs a Coordinator. One Batch per platform is created
// lazily the first time a device of that platform is registered.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FastSyncExtensions == nil {
		cfg.FastSyncExtensions = defaultFastSyncExtensions
	}
	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		registry:   NewRegistry(),
		fileHashes: map[string]string{},
		devices:    map[string]Device{},
		batches:    map[Platform]*syncbatch.Batch{},
		debuggers:  map[string]*DebuggerSocket{},
	}
}

// RegisterDevice adds dev to the set a flush fans out to.
func (c *Coordinator) RegisterDevice(dev Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[dev.ID] = dev
	if _, ok := c.batches[dev.Platform]; !ok {
		platform := dev.Platform
		c.batches[platform] = syncbatch.New(func(paths []string) {
			c.runFlush(platform, paths)
		})
	}
}

// UnregisterDevice removes dev and its cached install/debugger state.
func (c *Coordinator) UnregisterDevice(dev Device) {
	c.mu.Lock()
	delete(c.devices, dev.ID)
	if sock, ok := c.debuggers[dev.ID]; ok {
		_ = sock.Close()
		delete(c.debuggers, dev.ID)
	}
	c.mu.Unlock()
	c.registry.Forget(dev)
}

func (c *Coordinator) devicesForPlatform(platform Platform) []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Device
	for _, dev := range c.devices {
		if dev.Platform == platform {
			out = append(out, dev)
		}
	}
	return out
}

// FullSyncOptions parameterizes one full sync (spec.md §4.7).
type FullSyncOptions struct {
	ShouldBuild bool
	// PostAction, if set, runs instead of refreshApplication+LiveSyncInfo
	// stamp — step 5's "invoke the caller's postAction and stop" branch.
	PostAction func() error
}

// FullSync runs steps 1-5 of spec.md §4.7 for one device.
func (c *Coordinator) FullSync(ctx context.Context, dev Device, opts FullSyncOptions) error {
	sessionID := uuid.NewString()
	c.logger.Debug("starting full sync", "session", sessionID, "device", dev.ID)
	if opts.ShouldBuild {
		if c.cfg.Builder == nil {
			return fmt.Errorf("livesync: build required but no BuildRunner configured")
		}
		if err := c.cfg.Builder.Build(ctx, dev.Platform); err != nil {
			return fmt.Errorf("building %s: %w", dev.Platform, err)
		}
	}

	packagePath, err := c.cfg.PackagePath(dev.Platform)
	if err != nil {
		return fmt.Errorf("resolving package path for %s: %w", dev.Platform, err)
	}
	if err := c.ensureInstalled(ctx, dev, packagePath); err != nil {
		return err
	}

	out, ok := c.cfg.Outputs[dev.Platform]
	if !ok {
		return fmt.Errorf("livesync: no output layout registered for platform %s", dev.Platform)
	}

	c.logger.Info("Transferring project files...")
	useDirectoryTransfer := dev.Platform == PlatformAndroid || (dev.Platform == PlatformIOS && dev.IsSimulator)
	for _, root := range []string{out.App, out.Modules} {
		if useDirectoryTransfer {
			if err := c.cfg.Ops.TransferDirectory(ctx, dev, root); err != nil {
				return fmt.Errorf("transferring %s to %s: %w", root, dev.ID, err)
			}
			continue
		}
		files, err := c.listFilesExcluding(root)
		if err != nil {
			return err
		}
		if err := c.cfg.Ops.TransferFiles(ctx, dev, files); err != nil {
			return fmt.Errorf("transferring files to %s: %w", dev.ID, err)
		}
	}

	if opts.PostAction != nil {
		return opts.PostAction()
	}
	return c.refreshAndStamp(ctx, dev, nil)
}

// ensureInstalled implements step 2: stop & uninstall if the session
// has a prior install recorded, then install the latest package.
func (c *Coordinator) ensureInstalled(ctx context.Context, dev Device, packagePath string) error {
	if installed, _ := c.registry.Installed(dev); installed {
		if err := c.cfg.Ops.Stop(ctx, dev); err != nil {
			return fmt.Errorf("stopping %s: %w", dev.ID, err)
		}
		if err := c.cfg.Ops.Uninstall(ctx, dev); err != nil {
			return fmt.Errorf("uninstalling from %s: %w", dev.ID, err)
		}
	}

	c.logger.Info("Installing...")
	if err := c.cfg.Ops.Install(ctx, dev, packagePath); err != nil {
		return fmt.Errorf("installing on %s: %w", dev.ID, err)
	}

	bundleID := ""
	if dev.Platform == PlatformIOS {
		if id, err := ReadBundleID(packagePath); err != nil {
			c.logger.Debug("reading installed bundle id", "device", dev.ID, "err", err)
		} else {
			bundleID = id
		}
	}
	c.registry.MarkInstalled(dev, bundleID)
	return nil
}

// refreshAndStamp runs the device refresh strategy, then — only after
// that refresh has succeeded — stamps LiveSyncInfo (SPEC_FULL.md §9
// resolves the reference source's early-stamp ordering bug this way).
func (c *Coordinator) refreshAndStamp(ctx context.Context, dev Device, changed []string) error {
	if err := c.refreshDevice(ctx, dev, changed); err != nil {
		return fmt.Errorf("refreshing %s: %w", dev.ID, err)
	}

	outDir, err := c.cfg.Ops.BuildOutputDir(dev)
	if err != nil {
		return fmt.Errorf("resolving build output dir for %s: %w", dev.ID, err)
	}
	prepareTime, err := c.cfg.PrepareTime(dev.Platform)
	if err != nil {
		return fmt.Errorf("resolving prepare time for %s: %w", dev.Platform, err)
	}
	if err := WriteStamp(c.cfg.Store, outDir, prepareTime); err != nil {
		return err
	}
	c.logger.Info(fmt.Sprintf("Successfully synced application on device %s", dev.ID))
	return nil
}

// EventKind is the filesystem-watcher notification kind a partial sync
// reacts to (spec.md §4.7, "Partial sync").
type EventKind int

const (
	EventAdd EventKind = iota
	EventChange
	EventUnlink
)

// Event is one filesystem change notification.
type Event struct {
	Path string
	Kind EventKind
}

// appResourcesMarker is the directory name whose edits always require a
// full build rather than a partial sync (spec.md §4.7).
const appResourcesMarker = "App_Resources"

// HandlePartialSync implements spec.md §4.7's "Partial sync" paragraph
// for one filesystem event.
func (c *Coordinator) HandlePartialSync(ev Event) error {
	if underAppResources(ev.Path) {
		c.logger.Warn("edit under App_Resources requires a full build", "path", ev.Path)
		return nil
	}

	if ev.Kind == EventUnlink {
		c.mu.Lock()
		delete(c.fileHashes, ev.Path)
		c.mu.Unlock()
		return c.removeFileEverywhere(ev.Path)
	}

	if c.isExcluded(ev.Path) {
		return nil
	}

	hash, err := c.cfg.Store.ContentHash(ev.Path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", ev.Path, err)
	}
	c.mu.Lock()
	if c.fileHashes[ev.Path] == hash {
		c.mu.Unlock()
		return nil
	}
	c.fileHashes[ev.Path] = hash
	batches := c.platformBatches()
	c.mu.Unlock()
	for _, batch := range batches {
		batch.AddFile(ev.Path)
	}
	return nil
}

// platformBatches returns every registered platform's batch; the caller
// holds c.mu. A coordinator wired to more than one live platform
// enqueues into each platform's batch independently; callers that need
// per-platform control should call AddFile on the relevant Batch
// directly via BatchFor instead of HandlePartialSync.
func (c *Coordinator) platformBatches() []*syncbatch.Batch {
	out := make([]*syncbatch.Batch, 0, len(c.batches))
	for _, b := range c.batches {
		out = append(out, b)
	}
	return out
}

// BatchFor returns the SyncBatch for platform, creating it (with no
// registered devices yet) if needed.
func (c *Coordinator) BatchFor(platform Platform) *syncbatch.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.batches[platform]; ok {
		return b
	}
	b := syncbatch.New(func(paths []string) { c.runFlush(platform, paths) })
	c.batches[platform] = b
	return b
}

func (c *Coordinator) removeFileEverywhere(path string) error {
	ctx := context.Background()
	for _, dev := range c.allDevices() {
		if err := c.cfg.Ops.RemoveFiles(ctx, dev, []string{path}); err != nil {
			c.logger.Warn("Unable to sync files", "device", dev.ID, "err", err)
		}
	}
	return nil
}

func (c *Coordinator) allDevices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Device, 0, len(c.devices))
	for _, dev := range c.devices {
		out = append(out, dev)
	}
	return out
}

func underAppResources(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == appResourcesMarker {
			return true
		}
	}
	return false
}

// isExcluded matches path's base name and project-relative form against
// every excludedProjectDirsAndFiles glob, case-insensitively.
func (c *Coordinator) isExcluded(path string) bool {
	candidates := []string{strings.ToLower(filepath.Base(path))}
	if rel, err := filepath.Rel(c.cfg.ProjectDir, path); err == nil {
		candidates = append(candidates, strings.ToLower(filepath.ToSlash(rel)))
	}
	for _, pattern := range c.cfg.Excluded {
		lowered := strings.ToLower(pattern)
		for _, candidate := range candidates {
			if ok, _ := filepath.Match(lowered, candidate); ok {
				return true
			}
		}
	}
	return false
}

// runFlush is the SyncBatch.Done callback: spec.md §4.7's "Per-flush
// action".
func (c *Coordinator) runFlush(platform Platform, paths []string) {
	ctx := context.Background()
	batchID := uuid.NewString()
	c.logger.Debug("flushing sync batch", "batch", batchID, "platform", platform, "files", len(paths))
	requiresBuild := false
	for _, p := range paths {
		ok, err := c.cfg.Classifier.FileChangeRequiresBuild(p, c.cfg.ProjectDir)
		if err != nil {
			c.logger.Error("classifying change", "path", p, "err", err)
			continue
		}
		if ok {
			requiresBuild = true
			break
		}
	}

	devices := c.devicesForPlatform(platform)
	if requiresBuild {
		c.runDeployCycle(ctx, platform, devices)
		return
	}

	for _, dev := range devices {
		if err := c.cfg.Ops.TransferFiles(ctx, dev, paths); err != nil {
			c.logger.Warn("Unable to sync files", "device", dev.ID, "err", err)
			continue
		}
		if err := c.refreshAndStamp(ctx, dev, paths); err != nil {
			c.logger.Warn("Unable to sync files", "device", dev.ID, "err", err)
			continue
		}
		if c.cfg.AfterFileSync != nil {
			c.cfg.AfterFileSync(dev, paths)
		}
	}
}

// runDeployCycle is spec.md §4.7's "run a deploy cycle followed by a
// blind refresh" branch: BuildRequired-during-livesync is not an error,
// it is reclassified to a full deploy (spec.md §7).
func (c *Coordinator) runDeployCycle(ctx context.Context, platform Platform, devices []Device) {
	if c.cfg.Builder != nil {
		if err := c.cfg.Builder.Build(ctx, platform); err != nil {
			c.logger.Error("Unable to sync files", "err", err)
			return
		}
	}
	packagePath, err := c.cfg.PackagePath(platform)
	if err != nil {
		c.logger.Error("Unable to sync files", "err", err)
		return
	}
	for _, dev := range devices {
		if err := c.ensureInstalled(ctx, dev, packagePath); err != nil {
			c.logger.Warn("Unable to sync files", "device", dev.ID, "err", err)
			continue
		}
		if err := c.refreshAndStamp(ctx, dev, nil); err != nil {
			c.logger.Warn("Unable to sync files", "device", dev.ID, "err", err)
		}
	}
}

// listFilesExcluding recursively lists every file under root (spec.md
// §4.7's localToDevicePaths materialization), dropping anything
// isExcluded matches.
func (c *Coordinator) listFilesExcluding(root string) ([]string, error) {
	if !c.cfg.Store.Exists(root) {
		return nil, nil
	}
	var out []string
	entries, err := c.cfg.Store.List(root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	for _, e := range entries {
		full := filepath.Join(root, e.Name)
		if e.IsDir {
			children, err := c.listFilesExcluding(full)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
			continue
		}
		if c.isExcluded(full) {
			continue
		}
		out = append(out, full)
	}
	return out, nil
}
