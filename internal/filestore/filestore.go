// Package filestore abstracts the filesystem surface the core needs.
// It is a synchronous-contract interface — every method blocks until
// the operation completes, matching the re-architecture note in
// SPEC_FULL.md §9 that replaces the original fiber-based IFuture style
// with plain blocking calls.
package filestore

import (
	"crypto/sha1" //nolint:gosec // content hash for change-detection, not security.
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry describes one directory entry as returned by List.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime time.Time
}

// Store is the blocking filesystem facade consumed by every other core
// component. A single implementation (OS) backs both production use and
// the tests, which run against t.TempDir() directories.
type Store interface {
	ReadText(path string) (string, error)
	WriteText(path, contents string) error
	ReadJSON(path string, v any) error
	WriteJSON(path string, v any) error
	Stat(path string) (os.FileInfo, error)
	Exists(path string) bool
	List(dir string) ([]Entry, error)
	Copy(src, dst string) error
	MkdirAll(dir string) error
	RemoveFile(path string) error
	RemoveDir(path string) error
	ContentHash(path string) (string, error)
	TempName(dir, pattern string) (string, error)
}

// OS is the production Store backed by the real filesystem.
type OS struct{}

// New returns the production filesystem-backed Store.
func New() Store { return OS{} }

func (OS) ReadText(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally.
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (OS) WriteText(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil { //nolint:gosec // G306
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (s OS) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed internally.
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON atomically: to a temp file in the
// same directory, then renamed over the destination. PrepareInfo
// records are persisted through it.
func (OS) WriteJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	closed = true
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}
	return nil
}

func (OS) Stat(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (OS) List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat entry %s/%s: %w", dir, e.Name(), err)
		}
		out = append(out, Entry{Name: e.Name(), IsDir: e.IsDir(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (OS) Copy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint:gosec // G301
		return fmt.Errorf("creating parent of %s: %w", dst, err)
	}
	in, err := os.Open(src) //nolint:gosec // src is constructed internally.
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) //nolint:gosec // dst is constructed internally.
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

func (OS) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func (OS) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

func (OS) RemoveDir(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing directory %s: %w", path, err)
	}
	return nil
}

// ContentHash returns the hex sha1 of the file's contents, used by the
// live-sync coordinator to suppress no-op change notifications (spec
// §4.7: "Compute sha1 of the file; if equal to the cached hash, drop.").
func (OS) ContentHash(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is constructed internally.
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha1.New() //nolint:gosec // not a security boundary.
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (OS) TempName(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating temp name in %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return name, nil
}
