// Package vcsinfo attaches git provenance to snapshots and audit
// records: the HEAD commit and whether the worktree is clean. It is
// advisory only — nothing in the core rebuild/live-sync path depends
// on its result, so a project that isn't a git checkout degrades to a
// zero-value Info rather than an error.
package vcsinfo

import (
	"github.com/go-git/go-git/v5"
)

// Info is the git provenance attached to a report or audit entry.
type Info struct {
	Commit string
	Branch string
	Dirty  bool
}

// Read inspects the git repository containing root, if any. A missing
// or non-git directory is not an error: it returns a zero Info.
func Read(root string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Info{}, nil //nolint:nilerr // absence of a repo is a valid, common state.
	}

	head, err := repo.Head()
	if err != nil {
		return Info{}, nil //nolint:nilerr // e.g. a freshly initialized repo with no commits.
	}

	info := Info{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return info, nil //nolint:nilerr // bare repositories have no worktree to check.
	}
	status, err := wt.Status()
	if err != nil {
		return info, nil //nolint:nilerr // best-effort dirty check.
	}
	info.Dirty = !status.IsClean()
	return info, nil
}
