package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/relaycode/bubble/lib/sandbox"
	"github.com/samber/lo"
)

// subdir is a queued directory entry awaiting pass 2 recursion.
type subdir struct {
	overlayPath string
	realPath    string
	tracked     *project.Folder
	ignored     bool
}

// ignoreCtx carries the git-ignore lookup state for one build root's walk,
// resolved once at the root rather than per entry: whether the root falls
// under a git working tree, and the workdir path PathIsIgnored expects
// relative paths against.
type ignoreCtx struct {
	git     project.GitProvider
	folder  *project.Folder
	hasGit  bool
	workdir string
}

// effectiveIgnored reports whether realPath should be tagged is_ignored,
// per spec.md §4.5: inherited from the parent's ignore status, or'd with
// a git-ignore provider check (only when the root is a git working tree).
func (c ignoreCtx) effectiveIgnored(parentIgnored bool, realPath string) bool {
	if parentIgnored {
		return true
	}
	if !c.hasGit {
		return false
	}
	rel, err := filepath.Rel(c.workdir, realPath)
	if err != nil {
		return false
	}
	return c.git.PathIsIgnored(c.folder, rel)
}

// Scan walks layout's upper directory tree after the sandboxed command
// has exited and returns the classified changes in the global order the
// integrator requires: deletions (files before folders, reverse-sorted
// path), then additions (ascending path), then modifications. git
// resolves each build root's ignore status; pass a no-op GitProvider if
// the caller's project never runs against a git working tree.
func Scan(ctx context.Context, layout *sandbox.OverlayLayout, files project.ProjectFiles, git project.GitProvider) ([]Change, error) {
	log := logger.FromContext(ctx)

	var all []Change
	for _, slot := range layout.SlotOrder() {
		root, ok := layout.Overlay.RootFor(slot)
		if !ok {
			continue
		}
		n := slotIndex(slot)
		upperRoot := layout.OverlaySlot(n)

		if _, err := os.Stat(upperRoot); os.IsNotExist(err) {
			continue
		}

		rootFolder, _ := files.Lookup(root).(*project.Folder)
		if rootFolder == nil {
			rootFolder = project.NewFolder(root)
		}
		ic := ignoreCtx{git: git, folder: rootFolder}
		if git != nil && git.RepositoryExists(rootFolder) {
			ic.hasGit = true
			ic.workdir = git.GetWorkdirPath(rootFolder)
		}

		changes, err := scanDir(slot, upperRoot, root, files, ic, rootFolder.IsIgnored())
		if err != nil {
			log.WarnContext(ctx, "scan: walk failed", "slot", slot, "error", err)
			continue
		}
		all = append(all, changes...)
	}

	return orderChanges(all), nil
}

func slotIndex(slot string) int {
	var n int
	fmt.Sscanf(slot, "overlay%d", &n)
	return n
}

// scanDir classifies the immediate children of overlayDir (which mirrors
// realDir), then recurses into any subdirectories found, in that order —
// spec.md §4.5's two-pass classify-then-recurse contract. parentIgnored
// is the effective ignore status of realDir itself, inherited by every
// child regardless of what the git provider says about them individually.
func scanDir(slot, overlayDir, realDir string, files project.ProjectFiles, ic ignoreCtx, parentIgnored bool) ([]Change, error) {
	entries, err := os.ReadDir(overlayDir)
	if err != nil {
		return nil, fmt.Errorf("read overlay dir %s: %w", overlayDir, err)
	}

	var changes []Change
	var subdirs []subdir

	for _, entry := range entries {
		overlayPath := filepath.Join(overlayDir, entry.Name())
		realPath := filepath.Join(realDir, entry.Name())
		ignored := ic.effectiveIgnored(parentIgnored, realPath)

		info, err := os.Lstat(overlayPath)
		if err != nil {
			continue
		}

		tracked := files.Lookup(realPath)

		switch {
		case isWhiteout(info):
			if tracked != nil {
				changes = append(changes, deletionFor(slot, overlayPath, realPath, tracked))
			}
			// No tracked entry: a whiteout for something the project
			// never knew about has no effect to replay.

		case info.IsDir():
			folder, _ := tracked.(*project.Folder)
			if tracked != nil && folder == nil {
				changes = append(changes, deletionFor(slot, overlayPath, realPath, tracked))
				tracked = nil
			}
			changes = append(changes, classify(slot, EntryFolder, overlayPath, realPath, tracked, "", ignored))
			subdirs = append(subdirs, subdir{overlayPath: overlayPath, realPath: realPath, tracked: folder, ignored: ignored})

		case info.Mode()&os.ModeSymlink != 0:
			if alias, ok := tracked.(*project.FileAlias); !ok && tracked != nil {
				changes = append(changes, deletionFor(slot, overlayPath, realPath, tracked))
				tracked = nil
			} else if ok {
				tracked = alias
			}
			target, err := os.Readlink(overlayPath)
			if err != nil {
				continue
			}
			changes = append(changes, classify(slot, EntrySymlink, overlayPath, realPath, tracked, target, ignored))

		default:
			if file, ok := tracked.(*project.File); !ok && tracked != nil {
				changes = append(changes, deletionFor(slot, overlayPath, realPath, tracked))
				tracked = nil
			} else if ok {
				tracked = file
			}
			changes = append(changes, classify(slot, EntryFile, overlayPath, realPath, tracked, "", ignored))
		}
	}

	for _, sd := range subdirs {
		nested, err := scanDir(slot, sd.overlayPath, sd.realPath, files, ic, sd.ignored)
		if err != nil {
			continue
		}
		changes = append(changes, nested...)
	}

	return changes, nil
}

// classify determines added vs modified per spec.md §4.5: no tracked
// FileBase means added, otherwise modified.
func classify(slot string, kind EntryKind, overlayPath, realPath string, tracked project.FileBase, linkTarget string, ignored bool) Change {
	ct := project.ChangeAdded
	if tracked != nil {
		ct = project.ChangeModified
	}
	return Change{
		ChangeType:  ct,
		EntryKind:   kind,
		OverlaySlot: slot,
		OverlayPath: overlayPath,
		RealPath:    realPath,
		Existing:    tracked,
		LinkTarget:  linkTarget,
		IsIgnored:   ignored,
	}
}

func deletionFor(slot, overlayPath, realPath string, tracked project.FileBase) Change {
	kind := EntryFile
	switch tracked.Kind() {
	case project.KindFolder:
		kind = EntryFolder
	case project.KindFileAlias:
		kind = EntrySymlink
	}
	return Change{
		ChangeType:  project.ChangeDeleted,
		EntryKind:   kind,
		OverlaySlot: slot,
		OverlayPath: overlayPath,
		RealPath:    realPath,
		Existing:    tracked,
	}
}

// orderChanges applies the global ordering guarantee of spec.md §4.5:
// deletions first (files before folders, by reverse-sorted path so
// children precede parents), then additions ascending, then
// modifications.
func orderChanges(changes []Change) []Change {
	deleted := lo.Filter(changes, func(c Change, _ int) bool { return c.ChangeType == project.ChangeDeleted })
	deletedFiles := lo.Filter(deleted, func(c Change, _ int) bool { return c.EntryKind != EntryFolder })
	deletedFolders := lo.Filter(deleted, func(c Change, _ int) bool { return c.EntryKind == EntryFolder })
	added := lo.Filter(changes, func(c Change, _ int) bool { return c.ChangeType == project.ChangeAdded })
	modified := lo.Filter(changes, func(c Change, _ int) bool {
		return c.ChangeType != project.ChangeDeleted && c.ChangeType != project.ChangeAdded
	})

	sort.Slice(deletedFiles, func(i, j int) bool { return deletedFiles[i].RealPath > deletedFiles[j].RealPath })
	sort.Slice(deletedFolders, func(i, j int) bool { return deletedFolders[i].RealPath > deletedFolders[j].RealPath })
	sort.Slice(added, func(i, j int) bool { return added[i].RealPath < added[j].RealPath })

	out := make([]Change, 0, len(changes))
	out = append(out, deletedFiles...)
	out = append(out, deletedFolders...)
	out = append(out, added...)
	out = append(out, modified...)
	return out
}
