package livesync

import (
	"fmt"
	"os"
	"path/filepath"

	"howett.net/plist"
)

// ReadBundleID reads CFBundleIdentifier from the Info.plist inside an
// installed .app bundle, used to confirm the install target before a
// refresh or restart (spec.md §4.7 "Ensure app is installed").
func ReadBundleID(appPath string) (string, error) {
	path := filepath.Join(appPath, "Info.plist")
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally.
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	var info struct {
		BundleID string `plist:"CFBundleIdentifier"`
	}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return info.BundleID, nil
}
