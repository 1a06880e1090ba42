// Package manifest parses the subset of a package manifest the core
// depends on: version, dependencies, and the optional framework block
// (spec.md §6, "Input: package manifest").
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Framework describes the optional framework block carried by the app's
// manifest: an identifier used to rename the app package (spec.md §4.1
// step 4) and a platform support map.
type Framework struct {
	ID        string            `json:"id"`
	Platforms map[string]string `json:"platforms"`
}

// Manifest is the parsed subset of package.json this core depends on.
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Framework    *Framework        `json:"nativescript,omitempty"`
}

// raw mirrors Manifest's JSON shape but keeps Framework optional-absent
// distinguishable from present-but-empty during decode.
type raw struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Framework    *Framework        `json:"nativescript"`
}

// Parse decodes a manifest document, tolerating a leading UTF-8 BOM
// (spec.md §4.1 step 3: "Parse the manifest (UTF-8 JSON; tolerate a
// UTF-8 BOM)"). A malformed manifest is fatal to the rebuild per
// spec.md §7 (ErrManifestParse), so the caller should treat any
// non-nil error here as fatal, not as NotInstalled.
func Parse(data []byte) (Manifest, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	return Manifest{
		Name:         r.Name,
		Version:      r.Version,
		Dependencies: r.Dependencies,
		Framework:    r.Framework,
	}, nil
}

// ErrManifestParse marks a manifest decode failure as fatal-to-rebuild
// per spec.md §7's ManifestParse error kind.
var ErrManifestParse = fmt.Errorf("manifest parse error")

// CompareVersions implements the semver total order spec.md §4.1 step 5
// requires for the tie-break: the higher version wins, ties favor the
// incumbent. Returns >0 if a wins, <0 if b wins, 0 on a tie.
// Non-semver-valid strings compare equal (callers should treat that as
// "tie, incumbent wins", matching spec.md's total-order requirement
// only over semver-valid versions).
func CompareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return 0
	}
	return va.Compare(vb)
}
