// Package reconcile walks an overlay's upper layer after a sandboxed
// command exits and classifies every entry it finds into the ordered set
// of changes the integrator must apply to the real project tree.
package reconcile

import "github.com/relaycode/bubble/lib/project"

// EntryKind is the overlay entry's on-disk kind, as distinct from the
// tracked FileBase kind it may or may not match.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryFolder
	EntrySymlink
	EntryWhiteout
)

// Change is one classified overlay entry, ready for the integrator.
type Change struct {
	ChangeType  project.ChangeType
	EntryKind   EntryKind
	OverlaySlot string // "overlay1", ...
	OverlayPath string
	RealPath    string

	// Existing is the tracked FileBase this entry corresponds to, or nil
	// for an added entry.
	Existing project.FileBase

	// LinkTarget is populated for EntrySymlink entries: the overlay
	// symlink's raw readlink() target, before any PathMapper rewrite.
	LinkTarget string

	// IsIgnored reports whether this entry should be tagged is_ignored on
	// its FileBase, per spec.md §4.5: inherited from the effective
	// parent's ignore status, or'd with a git-ignore provider check when
	// the entry falls under a git working tree.
	IsIgnored bool
}
