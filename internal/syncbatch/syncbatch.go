// Package syncbatch implements SyncBatch: a time-bounded coalescer that
// turns a burst of file-change paths into a single flush invocation
// (spec.md §4.6). The debounce-timer-plus-signal-channel shape mirrors
// the teacher's watch loop (formerly cmd/internal/preview/watcher.go,
// trackedDebounce/depDebounce), adapted from a single pending timer to
// one that can hand off to a brand-new accumulating batch the instant
// it fires, so a slow `done` callback never blocks new events.
package syncbatch

import (
	"sort"
	"sync"
	"time"
)

// DefaultQuietInterval is the recommended quiet period (spec.md §4.6).
const DefaultQuietInterval = 250 * time.Millisecond

// Batch coalesces AddFile calls arriving within QuietInterval of the
// first AddFile of a batch into one Done invocation carrying the
// accumulated, deduplicated path set; later calls do not extend the
// window.
type Batch struct {
	QuietInterval time.Duration
	Done          func(paths []string)

	mu           sync.Mutex
	accumulating map[string]bool
	timer        *time.Timer
	inFlight     int
}

// New returns a Batch with the recommended quiet interval.
func New(done func(paths []string)) *Batch {
	return &Batch{QuietInterval: DefaultQuietInterval, Done: done}
}

// AddFile enqueues path. If no flush is currently pending for the
// accumulating batch, it arms a fresh quiet-interval timer.
func (b *Batch) AddFile(path string) {
	b.mu.Lock()
	if b.accumulating == nil {
		b.accumulating = map[string]bool{}
	}
	b.accumulating[path] = true
	if b.timer == nil {
		b.timer = time.AfterFunc(b.QuietInterval, b.flush)
	}
	b.mu.Unlock()
}

// flush fires on timer expiry: it snapshots and clears the accumulating
// set under the lock, then invokes Done outside the lock so a slow
// callback never blocks a new AddFile from immediately starting the
// next, independently-scheduled batch.
func (b *Batch) flush() {
	b.mu.Lock()
	paths := make([]string, 0, len(b.accumulating))
	for p := range b.accumulating {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	b.accumulating = map[string]bool{}
	b.timer = nil
	b.inFlight++
	b.mu.Unlock()

	b.Done(paths)

	b.mu.Lock()
	b.inFlight--
	b.mu.Unlock()
}

// SyncPending reports whether a batch is accumulating or its Done
// callback is still running (spec.md §4.6: true between the first
// AddFile of a batch and completion of its Done callback).
func (b *Batch) SyncPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accumulating) > 0 || b.inFlight > 0
}
