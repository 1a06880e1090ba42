package livesync

import (
	"testing"

	"github.com/m-saito/nsbuild/internal/filestore"
)

func TestLiveSyncInfoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := filestore.New()

	stamp, err := ReadStamp(store, dir)
	if err != nil {
		t.Fatalf("ReadStamp: %v", err)
	}
	if stamp != "" {
		t.Fatalf("expected empty stamp before any write, got %q", stamp)
	}

	if err := WriteStamp(store, dir, "2026-07-31T00:00:00.000000000Z"); err != nil {
		t.Fatalf("WriteStamp: %v", err)
	}

	stamp, err = ReadStamp(store, dir)
	if err != nil {
		t.Fatalf("ReadStamp: %v", err)
	}
	if stamp != "2026-07-31T00:00:00.000000000Z" {
		t.Fatalf("got %q", stamp)
	}
}
