// Package classifier implements ChangeClassifier's two independent
// predicates: whether an edited file forces a full platform build, and
// whether a live-sync session should build before syncing (spec.md
// §4.4).
package classifier

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/m-saito/nsbuild/internal/filestore"
	"github.com/m-saito/nsbuild/internal/manifest"
)

const (
	nodeModulesDirName = "node_modules"
	tnsCoreModulesName = "tns-core-modules"
	platformsDirName   = "platforms"
	manifestFileName   = "package.json"
)

// Classifier evaluates FileChangeRequiresBuild against the filesystem.
type Classifier struct {
	Store filestore.Store
}

// FileChangeRequiresBuild implements spec.md §4.4's first predicate:
// a `package.json` edit always forces a build; an edit under
// `node_modules/` (excluding `tns-core-modules/`) forces a build only
// when it lands under an ancestor package's `platforms/` subtree and
// that ancestor declares framework support.
func (c *Classifier) FileChangeRequiresBuild(file, projectDir string) (bool, error) {
	if filepath.Base(file) == manifestFileName {
		return true, nil
	}

	rel, err := filepath.Rel(projectDir, file)
	if err != nil {
		return false, fmt.Errorf("relativizing %s to %s: %w", file, projectDir, err)
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	nmIdx := indexOf(segs, nodeModulesDirName)
	if nmIdx == -1 {
		return false, nil
	}
	if nmIdx+1 < len(segs) && segs[nmIdx+1] == tnsCoreModulesName {
		return false, nil
	}

	for dir := filepath.Dir(file); withinRoot(projectDir, dir); dir = filepath.Dir(dir) {
		manifestPath := filepath.Join(dir, manifestFileName)
		if c.Store.Exists(manifestPath) {
			text, err := c.Store.ReadText(manifestPath)
			if err != nil {
				return false, fmt.Errorf("reading %s: %w", manifestPath, err)
			}
			m, err := manifest.Parse([]byte(text))
			if err != nil {
				return false, fmt.Errorf("parsing %s: %w", manifestPath, err)
			}
			if m.Framework != nil && underSubdir(dir, file, platformsDirName) {
				return true, nil
			}
		}
		if dir == projectDir {
			break
		}
	}
	return false, nil
}

func indexOf(segs []string, name string) int {
	for i, s := range segs {
		if s == name {
			return i
		}
	}
	return -1
}

func withinRoot(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func underSubdir(ancestor, file, subdir string) bool {
	rel, err := filepath.Rel(ancestor, file)
	if err != nil {
		return false
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	return len(segs) > 0 && segs[0] == subdir
}

// BuildDecision carries the inputs to ShouldBuildWhenLivesyncing: the
// current prepare stamp, the latest build time for the target, the
// device's own LiveSyncInfo stamp (nil if the device has never been
// synced), and whether the latest change summary says a build is
// required.
type BuildDecision struct {
	PrepareTime         string
	LatestBuildTime     string
	LiveSyncStamp       *string
	ChangesRequireBuild bool
}

// ShouldBuildWhenLivesyncing implements spec.md §4.4's second
// predicate.
func ShouldBuildWhenLivesyncing(d BuildDecision) bool {
	if d.PrepareTime == d.LatestBuildTime {
		return false
	}
	if d.LiveSyncStamp != nil {
		return d.PrepareTime != *d.LiveSyncStamp && d.ChangesRequireBuild
	}
	return d.ChangesRequireBuild
}
