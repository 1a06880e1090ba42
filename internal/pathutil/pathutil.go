// Package pathutil provides the small set of path helpers the rest of the
// core build on: a stable per-project cache root and path-joining that
// always produces the separator-terminated directory form the delta
// planner expects.
package pathutil

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProjectCacheRoot returns a stable cache directory for the given project
// root, namespaced by a short hash of its absolute path so that two
// projects never collide. Mirrors the cache-scoped-root idiom used for
// per-project temp directories: hash the absolute path, nest under the
// user cache dir rather than /tmp so the directory survives reboots.
func ProjectCacheRoot(projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	h := sha256.Sum256([]byte(abs))
	short := fmt.Sprintf("%x", h[:8])

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(cacheDir, "nsbuild", "project-"+short), nil
}

// AsDir returns p in its mkdir-entry form: cleaned, with exactly one
// trailing path separator. Delta.mkdir entries always end in the
// separator (see DeltaPlanner §4.3), so every producer of a mkdir key
// must pass through here.
func AsDir(p string) string {
	clean := filepath.Clean(p)
	if clean == "." {
		return string(filepath.Separator)
	}
	return clean + string(filepath.Separator)
}

// TrimDir removes a trailing AsDir separator, returning the clean form
// of a directory path used as a map key anywhere other than Delta.mkdir.
func TrimDir(p string) string {
	return strings.TrimSuffix(p, string(filepath.Separator))
}

// Join joins a base directory and a relative path, cleaning the result.
// A thin wrapper so that call sites never need to reach for filepath
// directly and every join goes through one seam.
func Join(base string, parts ...string) string {
	all := append([]string{base}, parts...)
	return filepath.Join(all...)
}

// Rel returns path relative to base, matching filepath.Rel but panicking
// never: on error it falls back to the original path, since the delta
// planner only ever calls this with paths it knows are nested under base.
func Rel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return rel
}
