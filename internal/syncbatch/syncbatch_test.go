package syncbatch

import (
	"sync"
	"testing"
	"time"
)

func TestAddFileCoalescesWithinQuietInterval(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]string
	done := make(chan struct{}, 1)

	b := &Batch{QuietInterval: 30 * time.Millisecond, Done: func(paths []string) {
		mu.Lock()
		flushes = append(flushes, paths)
		mu.Unlock()
		done <- struct{}{}
	}}

	b.AddFile("a.js")
	b.AddFile("b.js")
	b.AddFile("a.js") // duplicate within the same batch collapses

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 1 {
		t.Fatalf("expected exactly one flush, got %d: %v", len(flushes), flushes)
	}
	if len(flushes[0]) != 2 {
		t.Fatalf("expected 2 deduplicated paths, got %v", flushes[0])
	}
}

func TestAddFileAfterFlushOpensIndependentBatch(t *testing.T) {
	var mu sync.Mutex
	var flushes [][]string
	done := make(chan struct{}, 2)

	b := &Batch{QuietInterval: 20 * time.Millisecond, Done: func(paths []string) {
		mu.Lock()
		flushes = append(flushes, paths)
		mu.Unlock()
		done <- struct{}{}
	}}

	b.AddFile("a.js")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first flush")
	}

	b.AddFile("b.js")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second flush")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushes) != 2 {
		t.Fatalf("expected 2 independent flushes, got %d: %v", len(flushes), flushes)
	}
	if flushes[0][0] != "a.js" || flushes[1][0] != "b.js" {
		t.Fatalf("unexpected flush contents: %v", flushes)
	}
}

func TestSyncPendingLifecycle(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	b := &Batch{QuietInterval: 10 * time.Millisecond, Done: func(paths []string) {
		entered <- struct{}{}
		<-release
	}}

	if b.SyncPending() {
		t.Fatal("expected SyncPending to be false before any AddFile")
	}

	b.AddFile("a.js")
	if !b.SyncPending() {
		t.Fatal("expected SyncPending to be true immediately after AddFile")
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Done to start")
	}
	if !b.SyncPending() {
		t.Fatal("expected SyncPending to stay true while Done is running")
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for b.SyncPending() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.SyncPending() {
		t.Fatal("expected SyncPending to become false after Done completes")
	}
}
