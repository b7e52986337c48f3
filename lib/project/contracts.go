package project

import "context"

// ProjectFolder is the consumed interface for the top-level project
// handle a caller passes to Bubble.New.
type ProjectFolder interface {
	// BuildRoots returns the project's build roots in stable order — the
	// sandbox grants writable overlay access to exactly these paths.
	BuildRoots() []string
	Manager() ProjectManager
	// Files exposes the project's in-memory file map. Not itemized as
	// its own accessor anywhere spec.md names a caller-supplied handle;
	// resolved here since Scan and Integrator both need it and
	// ProjectFolder is the only object the core is actually handed.
	Files() ProjectFiles
}

// ProjectFiles is the consumed interface over the project's in-memory
// file map, keyed by absolute real path.
type ProjectFiles interface {
	// Lookup returns the tracked FileBase at path, or nil if untracked.
	Lookup(path string) FileBase
	// FolderAt returns the tracked Folder at path, or nil.
	FolderAt(path string) *Folder
	// FileAt returns the tracked File at path, or nil.
	FileAt(path string) *File
	// FindContainerOf returns the nearest tracked ancestor Folder of
	// path, creating intermediate Folder entries if the chain is
	// missing (spec.md §4.6's "make_children for a dummy path").
	FindContainerOf(path string) *Folder
	// Remove drops fb from every map that indexes it.
	Remove(fb FileBase)
	// Register adds fb to the file map, keyed by its current path.
	Register(fb FileBase)
}

// ProjectManager is the consumed interface for project-level callbacks
// the Integrator invokes as a side effect of reconciling one entry.
type ProjectManager interface {
	// OnFileContentsChange notifies the embedding app that f's on-disk
	// content changed, so editors/caches can invalidate.
	OnFileContentsChange(f *File)
	GitProvider() GitProvider
	Database() Database
	// DeleteManager exposes the delete helper the Integrator uses for
	// deletions, per spec.md §4.7.
	DeleteManager() DeleteManager
}

// GitProvider is the consumed interface Scan uses to decide which entries
// to tag as ignored, per spec.md §4.5.
type GitProvider interface {
	RepositoryExists(folder *Folder) bool
	GetWorkdirPath(folder *Folder) string
	PathIsIgnored(folder *Folder, relativePath string) bool
}

// Database is the consumed persistence interface the Integrator routines
// and the DeleteManager save FileBase and History records through.
type Database interface {
	SaveFileBase(ctx context.Context, fb FileBase) error
	SaveHistory(ctx context.Context, h History) error
}

// DeleteManager is the consumed interface for the atomic
// history-then-filesystem delete helper described in spec.md §4.7. The
// concrete implementation lives in lib/integrate, which this package
// cannot import without a cycle; callers obtain one from
// integrate.NewDeleteManager and expose it through ProjectManager.
type DeleteManager interface {
	// Remove atomically writes fb's History record (with content backup
	// if applicable) and then performs the filesystem deletion. If
	// history persistence fails, the filesystem mutation must not
	// happen and ErrHistoryPersistFailed is returned.
	Remove(ctx context.Context, fb FileBase, timestamp int64, invocationID string) error
	// Cleanup sweeps dangling in-memory parent-chain references left by
	// deletions processed during the most recent scan. Deferred to a
	// single post-scan pass rather than run per-entry, so it never
	// mutates the structure Scan is actively iterating.
	Cleanup(ctx context.Context)
}
