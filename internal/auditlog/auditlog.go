// Package auditlog persists a durable record of rebuilds and device
// syncs, plus a fileHashes cache that survives process restart,
// grounded on inful-docbuilder's SQLiteStore
// (internal/eventstore/sqlite.go): a schema-in-string
// CREATE TABLE IF NOT EXISTS, database/sql over a blank-imported
// driver, one mutex guarding the handle (SPEC_FULL.md §12 "Audit
// trail").
package auditlog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Kind distinguishes the two row shapes the log carries.
type Kind string

const (
	KindRebuild Kind = "rebuild"
	KindSync    Kind = "sync"
)

// Entry is one completed rebuild or device sync.
type Entry struct {
	ID        int64
	Kind      Kind
	Platform  string
	DeviceID  string // empty for a rebuild row
	FileCount int
	Outcome   string // "success" or the error message
	Timestamp time.Time
}

// Store is the sqlite-backed audit log and fileHashes cache.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates (or opens) the sqlite database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		platform TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		file_count INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_platform ON entries(platform);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);

	CREATE TABLE IF NOT EXISTS file_hashes (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one completed rebuild or device sync.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO entries (kind, platform, device_id, file_count, outcome, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		string(e.Kind), e.Platform, e.DeviceID, e.FileCount, e.Outcome, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// RecentByPlatform returns the most recent limit entries for platform,
// newest first.
func (s *Store) RecentByPlatform(platform string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		"SELECT id, kind, platform, device_id, file_count, outcome, timestamp FROM entries WHERE platform = ? ORDER BY id DESC LIMIT ?",
		platform, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var ts int64
		if err := rows.Scan(&e.ID, &kind, &e.Platform, &e.DeviceID, &e.FileCount, &e.Outcome, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return out, nil
}

// FileHash returns the cached content hash for path, and whether one
// was recorded.
func (s *Store) FileHash(path string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hash string
	err := s.db.QueryRow("SELECT hash FROM file_hashes WHERE path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading file hash for %s: %w", path, err)
	}
	return hash, true, nil
}

// SetFileHash upserts the cached content hash for path (the durable
// counterpart to LiveSyncCoordinator's in-memory fileHashes table,
// spec.md §4.7, surviving a process restart).
func (s *Store) SetFileHash(path, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO file_hashes (path, hash) VALUES (?, ?) ON CONFLICT(path) DO UPDATE SET hash = excluded.hash",
		path, hash,
	)
	if err != nil {
		return fmt.Errorf("setting file hash for %s: %w", path, err)
	}
	return nil
}

// DeleteFileHash removes path's cached hash (mirrors the in-memory
// table's removal on an `unlink` event).
func (s *Store) DeleteFileHash(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM file_hashes WHERE path = ?", path); err != nil {
		return fmt.Errorf("deleting file hash for %s: %w", path, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
