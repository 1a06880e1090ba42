package livesync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// defaultFastSyncExtensions is the "hot refresh is sufficient" allowlist
// for non-script file changes on iOS; anything else forces a restart
// (spec.md §4.7, glossary "Fast-sync").
var defaultFastSyncExtensions = map[string]bool{
	".json": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".css":  true,
	".xml":  true,
}

const scriptExtension = ".js"

// refreshDevice dispatches to the per-platform device refresh strategy
// (spec.md §4.7, "Device refresh strategies"). changed is nil for a
// blind refresh (full sync step 5, or the deploy-cycle branch of a
// per-flush action).
func (c *Coordinator) refreshDevice(ctx context.Context, dev Device, changed []string) error {
	switch dev.Platform {
	case PlatformAndroid:
		return c.cfg.Ops.AndroidRefresh(ctx, dev, changed)
	case PlatformIOS:
		return c.iosRefresh(ctx, dev, changed)
	default:
		return fmt.Errorf("livesync: unknown platform %q", dev.Platform)
	}
}

// iosRefresh implements the iOS branch of spec.md §4.7's device refresh
// strategies.
func (c *Coordinator) iosRefresh(ctx context.Context, dev Device, changed []string) error {
	scripts, others := partitionScripts(changed)

	for _, f := range others {
		if !c.cfg.FastSyncExtensions[strings.ToLower(filepath.Ext(f))] {
			return c.cfg.Ops.Restart(ctx, dev)
		}
	}

	if c.cfg.LiveEdit && len(scripts) > 0 && len(others) == 0 {
		if err := c.debuggerRefresh(ctx, dev, scripts); err != nil {
			c.logger.Debug("debugger refresh failed, falling back to restart", "device", dev.ID, "err", err)
			return c.cfg.Ops.Restart(ctx, dev)
		}
		return nil
	}

	if len(changed) > 0 {
		// Every non-script file is on the fast-sync allowlist, so a hot
		// refresh (Page.reload over the debugger socket) is sufficient.
		if err := c.debuggerSocketFor(dev).Reload(ctx); err != nil {
			c.logger.Debug("page reload failed, falling back to restart", "device", dev.ID, "err", err)
			return c.cfg.Ops.Restart(ctx, dev)
		}
		return nil
	}
	return c.cfg.Ops.Restart(ctx, dev)
}

func partitionScripts(paths []string) (scripts, others []string) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), scriptExtension) {
			scripts = append(scripts, p)
		} else {
			others = append(others, p)
		}
	}
	return scripts, others
}

// debuggerRefresh sends one Debugger.setScriptSource per changed script
// followed by a single Page.reload over the lazily-established
// per-device debugger socket (spec.md §4.7).
func (c *Coordinator) debuggerRefresh(ctx context.Context, dev Device, scripts []string) error {
	sock := c.debuggerSocketFor(dev)
	for _, path := range scripts {
		source, err := c.cfg.Store.ReadText(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := sock.SetScriptSource(ctx, path, source); err != nil {
			return fmt.Errorf("setScriptSource %s: %w", path, err)
		}
	}
	if err := sock.Reload(ctx); err != nil {
		return fmt.Errorf("page reload: %w", err)
	}
	return nil
}

func (c *Coordinator) debuggerSocketFor(dev Device) *DebuggerSocket {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sock, ok := c.debuggers[dev.ID]; ok {
		return sock
	}
	sock := NewDebuggerSocket(c.cfg.Ops.Dialer(dev), c.logger)
	c.debuggers[dev.ID] = sock
	return sock
}
