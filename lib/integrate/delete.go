package integrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
)

// deleteManager is the atomic history-then-filesystem delete helper
// described in spec.md §4.7. It satisfies project.DeleteManager.
type deleteManager struct {
	files project.ProjectFiles
	db    project.Database

	mu      sync.Mutex
	pending []project.FileBase // awaiting the post-scan Cleanup sweep
}

// NewDeleteManager creates a DeleteManager backed by files and db.
func NewDeleteManager(files project.ProjectFiles, db project.Database) project.DeleteManager {
	return &deleteManager{files: files, db: db}
}

// Remove atomically writes fb's History record, then performs the
// filesystem deletion. If history persistence fails, the filesystem
// mutation is skipped entirely and ErrHistoryPersistFailed is returned so
// the caller (Integrator.remove) can log and move on to the next entry.
func (d *deleteManager) Remove(ctx context.Context, fb project.FileBase, timestamp int64, invocationID string) error {
	log := logger.FromContext(ctx)

	var backup []byte
	if file, ok := fb.(*project.File); ok {
		if content, err := os.ReadFile(file.Path()); err == nil {
			backup = content
		}
	}

	h := project.NewHistory(fb.Id(), project.ChangeDeleted, timestamp, invocationID, backup)
	if err := d.db.SaveHistory(ctx, h); err != nil {
		return fmt.Errorf("%w: %v", project.ErrHistoryPersistFailed, err)
	}

	switch fb.Kind() {
	case project.KindFolder:
		if err := removeFolderRecursive(fb.Path(), log); err != nil {
			log.WarnContext(ctx, "delete manager: remove folder failed", "path", fb.Path(), "error", err)
		}
	default:
		if err := os.Remove(fb.Path()); err != nil && !os.IsNotExist(err) {
			log.WarnContext(ctx, "delete manager: unlink failed", "path", fb.Path(), "error", err)
		}
	}

	if f, ok := fb.(*project.File); ok {
		f.Buffer = nil
	}
	fb.SetDeleted(true)

	if err := d.db.SaveFileBase(ctx, fb); err != nil {
		log.WarnContext(ctx, "delete manager: save filebase failed", "path", fb.Path(), "error", err)
	}

	d.mu.Lock()
	d.pending = append(d.pending, fb)
	d.mu.Unlock()

	return nil
}

// Cleanup detaches every pending deletion's in-memory parent-chain
// reference. Deferred to a single post-scan pass rather than run inline
// in Remove, so deletions never mutate the Folder.Children map that Scan
// is actively iterating.
func (d *deleteManager) Cleanup(ctx context.Context) {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, fb := range pending {
		if parent := d.files.FolderAt(fb.ParentPath()); parent != nil {
			parent.RemoveChild(filepath.Base(fb.Path()))
		}
		d.files.Remove(fb)
	}
}

// removeFolderRecursive deletes dir and its contents, chmod-ing
// unreadable directories to 0755 best-effort along the way.
func removeFolderRecursive(dir string, log interface{ Warn(string, ...any) }) error {
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || !d.IsDir() {
			return nil
		}
		if chmodErr := os.Chmod(path, 0755); chmodErr != nil {
			log.Warn("delete manager: chmod failed", "path", path, "error", chmodErr)
		}
		return nil
	})
	return os.RemoveAll(dir)
}
