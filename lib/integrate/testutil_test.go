package integrate

import (
	"context"
	"sync"

	"github.com/relaycode/bubble/lib/project"
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
	fb := m.Lookup(path)
	f, _ := fb.(*project.File)
	return f
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

func newMemDB() *memDB { return &memDB{} }

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

type memManager struct {
	db       *memDB
	git      memGit
	deleteMg project.DeleteManager
}

func (m *memManager) OnFileContentsChange(f *project.File) {}
func (m *memManager) GitProvider() project.GitProvider     { return m.git }
func (m *memManager) Database() project.Database           { return m.db }
func (m *memManager) DeleteManager() project.DeleteManager { return m.deleteMg }
