package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/paths"
	"gvisor.dev/gvisor/pkg/cleanup"
)

// OverlayLayout describes the directory layout allocated for one
// invocation, per spec.md §3.
type OverlayLayout struct {
	// BaseDir is {cacheRoot}/overlay-YYYYMMDD-HHMMSS.{nanoseconds}/ (UTC).
	BaseDir string
	// BuildRoots is the ordered set of real project directories this
	// layout grants writable overlay access to.
	BuildRoots []string
	// Overlay maps overlay slot names ("overlay1", ...) to real roots.
	Overlay *OverlayMap

	p         *paths.Paths // shared path construction, rooted at the cache dir
	label     string       // this invocation's "overlay-<label>" directory name minus the prefix
	slotOrder []string     // stable overlay1, overlay2, ... order
}

// UpperDir returns the upper/ directory of the layout.
func (l *OverlayLayout) UpperDir() string {
	return l.p.UpperDir(l.BaseDir)
}

// WorkDir returns the work/ directory of the layout.
func (l *OverlayLayout) WorkDir() string {
	return l.p.WorkDir(l.BaseDir)
}

// OverlaySlot returns the upper/overlayN directory for the N-th build root
// (1-based).
func (l *OverlayLayout) OverlaySlot(n int) string {
	return l.p.OverlaySlot(l.BaseDir, n)
}

// WorkSlot returns the work/workN directory for the N-th build root
// (1-based).
func (l *OverlayLayout) WorkSlot(n int) string {
	return l.p.WorkSlot(l.BaseDir, n)
}

// SlotOrder returns the overlay slot names in the stable order they were
// allocated, so callers (the launcher, the scanner) can walk build roots
// in the order spec.md §4.3's build_arguments requires.
func (l *OverlayLayout) SlotOrder() []string {
	return l.slotOrder
}

// PathMapper returns a PathMapper scoped to this layout's upper directory.
func (l *OverlayLayout) PathMapper() *PathMapper {
	return NewPathMapper(l.UpperDir(), l.Overlay)
}

// OverlayWorkspace allocates, lays out, and tears down the per-invocation
// upper/work tree described by spec.md §4.2.
type OverlayWorkspace struct {
	cacheRoot string
	paths     *paths.Paths
}

// NewOverlayWorkspace creates a workspace rooted at cacheRoot (typically
// $XDG_CACHE_HOME/bubble).
func NewOverlayWorkspace(cacheRoot string) *OverlayWorkspace {
	return &OverlayWorkspace{cacheRoot: cacheRoot, paths: paths.New(cacheRoot)}
}

// Prepare creates base_dir, upper/, work/, and one overlayN/workN slot pair
// per build root, in stable 1-based iteration order. Any directory
// creation failure unwinds the directories already created (in reverse
// order) and returns ErrOverlayPrepareFailed; cleanup() is still safe to
// call afterward.
func (w *OverlayWorkspace) Prepare(ctx context.Context, buildRoots []string) (*OverlayLayout, error) {
	label := time.Now().UTC().Format("20060102-150405.000000000")
	baseDir := w.paths.InvocationDir(label)

	layout := &OverlayLayout{
		BaseDir:    baseDir,
		BuildRoots: append([]string(nil), buildRoots...),
		Overlay:    NewOverlayMap(),
		p:          w.paths,
		label:      label,
	}

	cu := cleanup.Make(func() {})
	defer cu.Clean()

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create base dir: %v", ErrOverlayPrepareFailed, err)
	}
	cu.Add(func() { os.RemoveAll(baseDir) })

	if err := os.MkdirAll(layout.UpperDir(), 0755); err != nil {
		return nil, fmt.Errorf("%w: create upper dir: %v", ErrOverlayPrepareFailed, err)
	}
	if err := os.MkdirAll(layout.WorkDir(), 0755); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", ErrOverlayPrepareFailed, err)
	}

	for i, root := range buildRoots {
		n := i + 1
		if err := os.MkdirAll(layout.OverlaySlot(n), 0755); err != nil {
			return nil, fmt.Errorf("%w: create overlay slot %d: %v", ErrOverlayPrepareFailed, n, err)
		}
		if err := os.MkdirAll(layout.WorkSlot(n), 0755); err != nil {
			return nil, fmt.Errorf("%w: create work slot %d: %v", ErrOverlayPrepareFailed, n, err)
		}
		slot := fmt.Sprintf("overlay%d", n)
		layout.Overlay.Add(slot, root)
		layout.slotOrder = append(layout.slotOrder, slot)
	}

	cu.Release()
	return layout, nil
}

// StartMonitor is a no-op in the scan-based reconciliation design; it is
// retained as a hook for an incremental (fsnotify-driven) implementation,
// per spec.md §4.2.
func (w *OverlayWorkspace) StartMonitor(ctx context.Context, layout *OverlayLayout) {
}

// Cleanup recursively deletes upper/ and work/ (chmod-ing unreadable
// directories to 0755 before descending, tolerating chmod failure), then
// removes the wrapper directory. Each step is best-effort: it logs but
// never returns an error, since spec.md §4.2 requires cleanup to run
// unconditionally, including after a failed command or failed
// reconciliation.
func (w *OverlayWorkspace) Cleanup(ctx context.Context, layout *OverlayLayout) {
	log := logger.FromContext(ctx)

	chmodWalk(layout.UpperDir(), log)
	if err := os.RemoveAll(layout.UpperDir()); err != nil {
		log.WarnContext(ctx, "cleanup: remove upper dir failed", "path", layout.UpperDir(), "error", err)
	}

	chmodWalk(layout.WorkDir(), log)
	if err := os.RemoveAll(layout.WorkDir()); err != nil {
		log.WarnContext(ctx, "cleanup: remove work dir failed", "path", layout.WorkDir(), "error", err)
	}

	if err := os.RemoveAll(layout.BaseDir); err != nil {
		log.WarnContext(ctx, "cleanup: remove base dir failed", "path", layout.BaseDir, "error", err)
	}
}

// SweepStale removes overlay-* directories directly under cacheRoot whose
// modification time is older than olderThan, per spec.md §9's "may
// optionally sweep stale overlay-* directories older than a threshold on
// startup; this is not required for correctness". A crashed process
// leaves its per-invocation wrapper directory behind since Cleanup never
// ran; this is the recovery path for that, run once at caller startup —
// never from inside Exec itself, which must not have the side effect of
// deleting directories unrelated to its own invocation.
func SweepStale(cacheRoot string, olderThan time.Duration) error {
	entries, err := os.ReadDir(cacheRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "overlay-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(cacheRoot, entry.Name())
		chmodWalk(path, slog.Default())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sweep stale overlays: %v", errs)
	}
	return nil
}

// chmodWalk best-effort chmods every directory under root to 0755 so that
// subsequent RemoveAll can descend into directories a sandboxed command
// may have left unreadable. Failures are logged and otherwise ignored.
func chmodWalk(root string, log *slog.Logger) {
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		if chmodErr := os.Chmod(path, 0755); chmodErr != nil {
			log.Warn("cleanup: chmod failed", "path", path, "error", chmodErr)
		}
		return nil
	})
}
