// Package prepareinfo implements PrepareInfoStore: the per-platform
// `.nsprepareinfo` record stamping the last successful prepare
// (spec.md §4.5, §3).
package prepareinfo

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/m-saito/nsbuild/internal/filestore"
)

const fileName = ".nsprepareinfo"

// Record is the persisted PrepareInfo shape (spec.md §3).
type Record struct {
	Time    string `json:"time"`
	Bundle  bool   `json:"bundle"`
	Release bool   `json:"release"`
}

// Options are the prepare-session flags compared against the stored
// record during reconciliation.
type Options struct {
	Bundle  bool
	Release bool
}

// ChangeFlags are the six independent dirty signals invariant 5
// (spec.md §8) names; PrepareInfo is rewritten iff at least one is set.
type ChangeFlags struct {
	AppFilesChanged     bool
	AppResourcesChanged bool
	ModulesChanged      bool
	ConfigChanged       bool
	PackageChanged      bool
	NativeChanged       bool
}

// Any reports whether any change flag fired.
func (f ChangeFlags) Any() bool {
	return f.AppFilesChanged || f.AppResourcesChanged || f.ModulesChanged ||
		f.ConfigChanged || f.PackageChanged || f.NativeChanged
}

func allTrue() ChangeFlags {
	return ChangeFlags{true, true, true, true, true, true}
}

// Store reads and reconciles the record at <platformRoot>/.nsprepareinfo.
type Store struct {
	FileStore filestore.Store
}

// Read returns the stored record, or the zero Record if none exists
// yet (a platform directory being prepared for the first time).
func (s *Store) Read(platformRoot string) (Record, error) {
	path := filepath.Join(platformRoot, fileName)
	if !s.FileStore.Exists(path) {
		return Record{}, nil
	}
	var r Record
	if err := s.FileStore.ReadJSON(path, &r); err != nil {
		return Record{}, fmt.Errorf("reading prepare info at %s: %w", path, err)
	}
	return r, nil
}

// Reconcile implements spec.md §4.5: a bundle/release flag flip forces
// every change flag true and updates the stored option flags; the
// record is rewritten, with `time` refreshed, iff any change flag is
// set after that forcing.
func (s *Store) Reconcile(platformRoot string, opts Options, flags ChangeFlags) (Record, error) {
	record, err := s.Read(platformRoot)
	if err != nil {
		return Record{}, err
	}

	if opts.Bundle != record.Bundle || opts.Release != record.Release {
		flags = allTrue()
		record.Bundle = opts.Bundle
		record.Release = opts.Release
	}

	if !flags.Any() {
		return record, nil
	}

	record.Time = time.Now().UTC().Format(time.RFC3339Nano)
	path := filepath.Join(platformRoot, fileName)
	if err := s.FileStore.WriteJSON(path, record); err != nil {
		return Record{}, fmt.Errorf("writing prepare info at %s: %w", path, err)
	}
	return record, nil
}
