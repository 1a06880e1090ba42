package vcsinfo

import "testing"

func TestReadNonRepoReturnsZeroValue(t *testing.T) {
	info, err := Read(t.TempDir())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Commit != "" || info.Dirty {
		t.Fatalf("expected zero Info for a non-repo directory, got %+v", info)
	}
}
