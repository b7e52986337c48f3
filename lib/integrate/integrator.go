// Package integrate applies one classified overlay change at a time to
// the real filesystem and the in-memory project tree, recording a
// FileHistory entry for each, per spec.md §4.6.
package integrate

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/relaycode/bubble/lib/reconcile"
	"github.com/relaycode/bubble/lib/sandbox"
)

// Integrator applies reconcile.Change values one at a time. Every routine
// is idempotent with respect to the on-disk outcome, logs rather than
// propagates its own failures, and writes exactly one History record
// before mutating state.
type Integrator struct {
	files        project.ProjectFiles
	mgr          project.ProjectManager
	mapper       *sandbox.PathMapper
	upper        string
	invocationID string
}

// New creates an Integrator. mapper and upperDir are taken from the
// OverlayLayout the current invocation's Scan ran against, so symlink
// targets that point back into the overlay can be rewritten to their
// real-root equivalent. invocationID tags every History record this
// Integrator writes, per SPEC_FULL.md §3.
func New(files project.ProjectFiles, mgr project.ProjectManager, mapper *sandbox.PathMapper, upperDir string, invocationID string) *Integrator {
	return &Integrator{files: files, mgr: mgr, mapper: mapper, upper: upperDir, invocationID: invocationID}
}

// Apply dispatches one classified change to its handler. Failures are
// logged inside the handler and never returned, so a caller iterating a
// whole change set never needs to special-case a failed entry — spec.md
// §4.6's "scan continues with the next entry".
func (i *Integrator) Apply(ctx context.Context, change reconcile.Change, timestamp int64) {
	switch {
	case change.ChangeType == project.ChangeDeleted:
		i.remove(ctx, change, timestamp)
	case change.EntryKind == reconcile.EntryFolder && change.ChangeType == project.ChangeAdded:
		i.folderAdded(ctx, change, timestamp)
	case change.EntryKind == reconcile.EntrySymlink:
		i.aliasChanged(ctx, change, timestamp)
	case change.ChangeType == project.ChangeAdded:
		i.fileAdded(ctx, change, timestamp)
	default:
		i.fileModified(ctx, change, timestamp)
	}
}

func (i *Integrator) fileAdded(ctx context.Context, change reconcile.Change, timestamp int64) {
	log := logger.FromContext(ctx)

	content, err := os.ReadFile(change.OverlayPath)
	if err != nil {
		log.WarnContext(ctx, "integrator: file_added read failed", "path", change.OverlayPath, "error", err)
		return
	}

	h := project.NewHistory(0, project.ChangeAdded, timestamp, i.invocationID, nil)
	if err := i.mgr.Database().SaveHistory(ctx, h); err != nil {
		log.WarnContext(ctx, "integrator: file_added history failed", "path", change.RealPath, "error", err)
		return
	}

	if err := copyFileContentAndMode(change.OverlayPath, change.RealPath, content); err != nil {
		log.WarnContext(ctx, "integrator: file_added copy failed", "path", change.RealPath, "error", err)
		return
	}

	parent := i.files.FindContainerOf(filepath.Dir(change.RealPath))
	fb := project.NewFile(change.RealPath)
	fb.MarkChanged(project.ChangeAdded, timestamp)
	fb.SetIgnored(change.IsIgnored)
	if parent != nil {
		parent.AddChild(filepath.Base(change.RealPath), fb)
	}
	i.files.Register(fb)

	if err := i.mgr.Database().SaveFileBase(ctx, fb); err != nil {
		log.WarnContext(ctx, "integrator: file_added save failed", "path", change.RealPath, "error", err)
	}
}

func (i *Integrator) fileModified(ctx context.Context, change reconcile.Change, timestamp int64) {
	log := logger.FromContext(ctx)

	file, ok := change.Existing.(*project.File)
	if !ok {
		log.WarnContext(ctx, "integrator: file_modified on non-file tracked entry", "path", change.RealPath)
		return
	}

	backup, err := os.ReadFile(change.RealPath)
	if err != nil {
		log.WarnContext(ctx, "integrator: file_modified read backup failed", "path", change.RealPath, "error", err)
		return
	}

	h := project.NewHistory(file.Id(), project.ChangeModified, timestamp, i.invocationID, backup)
	if err := i.mgr.Database().SaveHistory(ctx, h); err != nil {
		log.WarnContext(ctx, "integrator: file_modified history failed", "path", change.RealPath, "error", err)
		return
	}

	content, err := os.ReadFile(change.OverlayPath)
	if err != nil {
		log.WarnContext(ctx, "integrator: file_modified read overlay failed", "path", change.OverlayPath, "error", err)
		return
	}
	if err := copyFileContentAndMode(change.OverlayPath, change.RealPath, content); err != nil {
		log.WarnContext(ctx, "integrator: file_modified copy failed", "path", change.RealPath, "error", err)
		return
	}

	if file.Buffer != nil {
		file.Buffer = content
	}
	i.mgr.OnFileContentsChange(file)
	file.MarkChanged(project.ChangeModified, timestamp)
	file.SetIgnored(change.IsIgnored)

	if err := i.mgr.Database().SaveFileBase(ctx, file); err != nil {
		log.WarnContext(ctx, "integrator: file_modified save failed", "path", change.RealPath, "error", err)
	}
}

func (i *Integrator) remove(ctx context.Context, change reconcile.Change, timestamp int64) {
	log := logger.FromContext(ctx)
	if change.Existing == nil {
		return
	}
	if err := i.mgr.DeleteManager().Remove(ctx, change.Existing, timestamp, i.invocationID); err != nil {
		log.WarnContext(ctx, "integrator: remove failed", "path", change.RealPath, "error", err)
	}
}

func (i *Integrator) folderAdded(ctx context.Context, change reconcile.Change, timestamp int64) {
	log := logger.FromContext(ctx)

	h := project.NewHistory(0, project.ChangeAdded, timestamp, i.invocationID, nil)
	if err := i.mgr.Database().SaveHistory(ctx, h); err != nil {
		log.WarnContext(ctx, "integrator: folder_added history failed", "path", change.RealPath, "error", err)
		return
	}

	if err := os.MkdirAll(change.RealPath, 0755); err != nil {
		log.WarnContext(ctx, "integrator: folder_added mkdir failed", "path", change.RealPath, "error", err)
		return
	}

	parent := i.files.FindContainerOf(filepath.Dir(change.RealPath))
	folder := project.NewFolder(change.RealPath)
	folder.MarkChanged(project.ChangeAdded, timestamp)
	folder.SetIgnored(change.IsIgnored)
	if parent != nil {
		parent.AddChild(filepath.Base(change.RealPath), folder)
	}
	i.files.Register(folder)

	if err := i.mgr.Database().SaveFileBase(ctx, folder); err != nil {
		log.WarnContext(ctx, "integrator: folder_added save failed", "path", change.RealPath, "error", err)
	}
}

// aliasChanged handles both alias_added and alias_modified: the
// replace-in-place logic is identical either way (spec.md §4.6).
func (i *Integrator) aliasChanged(ctx context.Context, change reconcile.Change, timestamp int64) {
	log := logger.FromContext(ctx)

	target := change.LinkTarget
	if filepath.IsAbs(target) && strings.HasPrefix(target, i.upper) {
		target = i.mapper.ToReal(target)
	}

	ct := project.ChangeAdded
	var backup []byte
	var existingID int64
	if alias, ok := change.Existing.(*project.FileAlias); ok {
		ct = project.ChangeModified
		backup = []byte(alias.LinkTarget)
		existingID = alias.Id()
	}

	h := project.NewHistory(existingID, ct, timestamp, i.invocationID, backup)
	if err := i.mgr.Database().SaveHistory(ctx, h); err != nil {
		log.WarnContext(ctx, "integrator: alias history failed", "path", change.RealPath, "error", err)
		return
	}

	if err := os.Remove(change.RealPath); err != nil && !os.IsNotExist(err) {
		log.WarnContext(ctx, "integrator: alias unlink existing failed", "path", change.RealPath, "error", err)
		return
	}
	if err := os.Symlink(target, change.RealPath); err != nil {
		log.WarnContext(ctx, "integrator: alias symlink create failed", "path", change.RealPath, "error", err)
		return
	}

	if alias, ok := change.Existing.(*project.FileAlias); ok {
		alias.LinkTarget = target
		alias.MarkChanged(project.ChangeModified, timestamp)
		alias.SetIgnored(change.IsIgnored)
		if err := i.mgr.Database().SaveFileBase(ctx, alias); err != nil {
			log.WarnContext(ctx, "integrator: alias save failed", "path", change.RealPath, "error", err)
		}
		return
	}

	parent := i.files.FindContainerOf(filepath.Dir(change.RealPath))
	fb := project.NewFileAlias(change.RealPath, target)
	fb.MarkChanged(project.ChangeAdded, timestamp)
	fb.SetIgnored(change.IsIgnored)
	if parent != nil {
		parent.AddChild(filepath.Base(change.RealPath), fb)
	}
	i.files.Register(fb)
	if err := i.mgr.Database().SaveFileBase(ctx, fb); err != nil {
		log.WarnContext(ctx, "integrator: alias save failed", "path", change.RealPath, "error", err)
	}
}

// copyFileContentAndMode writes content to realPath and masks the
// overlay file's permission bits onto the real file's existing mode,
// per spec.md §4.6.
func copyFileContentAndMode(overlayPath, realPath string, content []byte) error {
	overlayInfo, err := os.Stat(overlayPath)
	if err != nil {
		return err
	}

	existingMode := os.FileMode(0644)
	if realInfo, err := os.Stat(realPath); err == nil {
		existingMode = realInfo.Mode()
	}

	if err := os.MkdirAll(filepath.Dir(realPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(realPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, existingMode&overlayInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, bytes.NewReader(content)); err != nil {
		return err
	}
	return os.Chmod(realPath, existingMode&overlayInfo.Mode().Perm())
}
