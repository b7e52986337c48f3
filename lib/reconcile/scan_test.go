package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/relaycode/bubble/lib/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFiles struct {
	mu  sync.Mutex
	all map[string]project.FileBase
}

func newMemFiles() *memFiles { return &memFiles{all: make(map[string]project.FileBase)} }

func (m *memFiles) Lookup(path string) project.FileBase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all[path]
}
func (m *memFiles) FolderAt(path string) *project.Folder {
	fb, _ := m.Lookup(path).(*project.Folder)
	return fb
}
func (m *memFiles) FileAt(path string) *project.File {
	fb, _ := m.Lookup(path).(*project.File)
	return fb
}
func (m *memFiles) FindContainerOf(path string) *project.Folder { return nil }
func (m *memFiles) Remove(fb project.FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.all, fb.Path())
}
func (m *memFiles) Register(fb project.FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all[fb.Path()] = fb
}

func testContext() context.Context {
	return logger.AddToContext(context.Background(), logger.NewLogger(logger.NewConfig()))
}

// noGit is a GitProvider that never reports a git working tree, for
// tests that don't exercise is_ignored.
type noGit struct{}

func (noGit) RepositoryExists(folder *project.Folder) bool                   { return false }
func (noGit) GetWorkdirPath(folder *project.Folder) string                   { return "" }
func (noGit) PathIsIgnored(folder *project.Folder, relativePath string) bool { return false }

// globGit is a GitProvider stub backed by a fixed set of ignored relative
// paths, standing in for a real .gitignore evaluator in tests.
type globGit struct {
	workdir string
	ignored map[string]bool
}

func (g *globGit) RepositoryExists(folder *project.Folder) bool { return true }
func (g *globGit) GetWorkdirPath(folder *project.Folder) string { return g.workdir }
func (g *globGit) PathIsIgnored(folder *project.Folder, relativePath string) bool {
	return g.ignored[relativePath]
}

func prepareLayout(t *testing.T, realRoot string) *sandbox.OverlayLayout {
	t.Helper()
	cacheRoot := t.TempDir()
	ws := sandbox.NewOverlayWorkspace(cacheRoot)
	layout, err := ws.Prepare(testContext(), []string{realRoot})
	require.NoError(t, err)
	return layout
}

func TestScan_AddedFile(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "new.txt"), []byte("x\n"), 0644))

	changes, err := Scan(testContext(), layout, newMemFiles(), noGit{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, project.ChangeAdded, changes[0].ChangeType)
	assert.Equal(t, EntryFile, changes[0].EntryKind)
	assert.Equal(t, filepath.Join(realRoot, "new.txt"), changes[0].RealPath)
}

func TestScan_ModifiedFile(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	realPath := filepath.Join(realRoot, "a.txt")
	require.NoError(t, os.WriteFile(realPath, []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "a.txt"), []byte("B\n"), 0644))

	files := newMemFiles()
	tracked := project.NewFile(realPath)
	files.Register(tracked)

	changes, err := Scan(testContext(), layout, files, noGit{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, project.ChangeModified, changes[0].ChangeType)
	assert.Same(t, tracked, changes[0].Existing)
}

func TestScan_NoChanges(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	changes, err := Scan(testContext(), layout, newMemFiles(), noGit{})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestScan_NestedFolder(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	nested := filepath.Join(layout.OverlaySlot(1), "dir", "nested.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0755))
	require.NoError(t, os.WriteFile(nested, []byte("n\n"), 0644))

	changes, err := Scan(testContext(), layout, newMemFiles(), noGit{})
	require.NoError(t, err)
	require.Len(t, changes, 2)

	var sawFolder, sawFile bool
	for _, c := range changes {
		if c.EntryKind == EntryFolder {
			sawFolder = true
			assert.Equal(t, filepath.Join(realRoot, "dir"), c.RealPath)
		}
		if c.EntryKind == EntryFile {
			sawFile = true
			assert.Equal(t, filepath.Join(realRoot, "dir", "nested.txt"), c.RealPath)
		}
	}
	assert.True(t, sawFolder)
	assert.True(t, sawFile)
}

func TestScan_OrderingDeletionsBeforeAdditionsBeforeModifications(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	oldPath := filepath.Join(realRoot, "old.txt")
	modPath := filepath.Join(realRoot, "mod.txt")
	require.NoError(t, os.WriteFile(oldPath, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(modPath, []byte("before"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "new.txt"), []byte("new"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "mod.txt"), []byte("after"), 0644))
	require.NoError(t, makeWhiteout(filepath.Join(layout.OverlaySlot(1), "old.txt")))

	files := newMemFiles()
	files.Register(project.NewFile(oldPath))
	tracked := project.NewFile(modPath)
	files.Register(tracked)

	changes, err := Scan(testContext(), layout, files, noGit{})
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, project.ChangeDeleted, changes[0].ChangeType)
	assert.Equal(t, project.ChangeAdded, changes[1].ChangeType)
	assert.Equal(t, project.ChangeModified, changes[2].ChangeType)
}

func TestScan_GitIgnoredEntryTagged(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "ignored.log"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(layout.OverlaySlot(1), "kept.txt"), []byte("x"), 0644))

	git := &globGit{workdir: realRoot, ignored: map[string]bool{"ignored.log": true}}
	changes, err := Scan(testContext(), layout, newMemFiles(), git)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	for _, c := range changes {
		if filepath.Base(c.RealPath) == "ignored.log" {
			assert.True(t, c.IsIgnored)
		} else {
			assert.False(t, c.IsIgnored)
		}
	}
}

func TestScan_GitIgnoredFolderPropagatesToChildren(t *testing.T) {
	realRoot := t.TempDir()
	layout := prepareLayout(t, realRoot)

	nested := filepath.Join(layout.OverlaySlot(1), "vendor", "pkg.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0755))
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0644))

	git := &globGit{workdir: realRoot, ignored: map[string]bool{"vendor": true}}
	changes, err := Scan(testContext(), layout, newMemFiles(), git)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	for _, c := range changes {
		assert.True(t, c.IsIgnored, "path %s should inherit parent's ignored status", c.RealPath)
	}
}
