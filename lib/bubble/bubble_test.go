package bubble

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/relaycode/bubble/lib/integrate"
	"github.com/relaycode/bubble/lib/logger"
	"github.com/relaycode/bubble/lib/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFiles struct {
	mu      sync.Mutex
	all     map[string]project.FileBase
	folders map[string]*project.Folder
	nextID  int64
}

func newMemFiles() *memFiles {
	return &memFiles{all: make(map[string]project.FileBase), folders: make(map[string]*project.Folder)}
}
func (m *memFiles) Lookup(path string) project.FileBase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all[path]
}
func (m *memFiles) FolderAt(path string) *project.Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folders[path]
}
func (m *memFiles) FileAt(path string) *project.File {
	fb, _ := m.Lookup(path).(*project.File)
	return fb
}
func (m *memFiles) FindContainerOf(path string) *project.Folder {
	m.mu.Lock()
	folder, ok := m.folders[path]
	m.mu.Unlock()
	if ok {
		return folder
	}
	folder = project.NewFolder(path)
	m.Register(folder)
	return folder
}
func (m *memFiles) Remove(fb project.FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.all, fb.Path())
	delete(m.folders, fb.Path())
}
func (m *memFiles) Register(fb project.FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	fb.SetId(m.nextID)
	m.all[fb.Path()] = fb
	if folder, ok := fb.(*project.Folder); ok {
		m.folders[fb.Path()] = folder
	}
}

type memDB struct {
	mu      sync.Mutex
	History []project.History
}

func (d *memDB) SaveFileBase(ctx context.Context, fb project.FileBase) error { return nil }
func (d *memDB) SaveHistory(ctx context.Context, h project.History) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.History = append(d.History, h)
	return nil
}

type memGit struct{}

func (memGit) RepositoryExists(folder *project.Folder) bool                   { return false }
func (memGit) GetWorkdirPath(folder *project.Folder) string                   { return "" }
func (memGit) PathIsIgnored(folder *project.Folder, relativePath string) bool { return false }

type testProject struct {
	buildRoots []string
	files      *memFiles
	db         *memDB
	deleteMg   project.DeleteManager
}

func newTestProject(buildRoots []string) *testProject {
	files := newMemFiles()
	db := &memDB{}
	return &testProject{
		buildRoots: buildRoots,
		files:      files,
		db:         db,
		deleteMg:   integrate.NewDeleteManager(files, db),
	}
}

func (p *testProject) BuildRoots() []string           { return p.buildRoots }
func (p *testProject) Manager() project.ProjectManager { return p }
func (p *testProject) Files() project.ProjectFiles     { return p.files }

func (p *testProject) OnFileContentsChange(f *project.File) {}
func (p *testProject) GitProvider() project.GitProvider     { return memGit{} }
func (p *testProject) Database() project.Database           { return p.db }
func (p *testProject) DeleteManager() project.DeleteManager { return p.deleteMg }

func testContext() context.Context {
	return logger.AddToContext(context.Background(), logger.NewLogger(logger.NewConfig()))
}

func TestBubble_Exec_CreatesTrackedFile(t *testing.T) {
	if !CanSandbox() {
		t.Skip("bwrap not available in this environment")
	}

	realRoot := t.TempDir()
	proj := newTestProject([]string{realRoot})

	b, err := New(proj, t.TempDir(), false)
	require.NoError(t, err)

	result, err := b.Exec(testContext(), "echo x > new.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	content, err := os.ReadFile(filepath.Join(realRoot, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(content))

	tracked := proj.files.Lookup(filepath.Join(realRoot, "new.txt"))
	require.NotNil(t, tracked)
	require.Len(t, proj.db.History, 1)
	assert.Equal(t, project.ChangeAdded, proj.db.History[0].ChangeType)
}

func TestBubble_Exec_NoWrites_NoHistory(t *testing.T) {
	if !CanSandbox() {
		t.Skip("bwrap not available in this environment")
	}

	realRoot := t.TempDir()
	proj := newTestProject([]string{realRoot})

	b, err := New(proj, t.TempDir(), false)
	require.NoError(t, err)

	result, err := b.Exec(testContext(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Combined)
	assert.Empty(t, proj.db.History)
}

func TestBubble_New_SandboxUnavailable(t *testing.T) {
	if CanSandbox() {
		t.Skip("bwrap available; cannot exercise the unavailable path here")
	}

	_, err := New(newTestProject(nil), t.TempDir(), false)
	assert.ErrorIs(t, err, ErrSandboxUnavailable)
}
