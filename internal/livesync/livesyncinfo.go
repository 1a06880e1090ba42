package livesync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/m-saito/nsbuild/internal/filestore"
)

const liveSyncInfoFileName = ".nslivesyncinfo"

// ReadStamp returns the last prepareInfo.time applied to the device
// build output at buildOutputDir, or "" if the device has never been
// synced (spec.md §6: "<device-build-output>/.nslivesyncinfo").
func ReadStamp(store filestore.Store, buildOutputDir string) (string, error) {
	path := filepath.Join(buildOutputDir, liveSyncInfoFileName)
	if !store.Exists(path) {
		return "", nil
	}
	text, err := store.ReadText(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(text), nil
}

// WriteStamp records prepareTime as the last prepare applied to
// buildOutputDir. Callers must only call this strictly after a
// confirmed device refresh (SPEC_FULL.md §9 resolves the reference
// source's early-stamp bug this way).
func WriteStamp(store filestore.Store, buildOutputDir, prepareTime string) error {
	path := filepath.Join(buildOutputDir, liveSyncInfoFileName)
	if err := store.WriteText(path, prepareTime); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
