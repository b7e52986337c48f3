package project

import (
	"context"
	"sync"
)

// memFiles is an in-memory ProjectFiles used across package tests.
type memFiles struct {
	mu      sync.Mutex
	all     map[string]FileBase
	folders map[string]*Folder
	nextID  int64
}

func newMemFiles() *memFiles {
	return &memFiles{all: make(map[string]FileBase), folders: make(map[string]*Folder)}
}

func (m *memFiles) Lookup(path string) FileBase {
	m.mu.Lock()
	defer m.mu.Unlock()
	fb, ok := m.all[path]
	if !ok {
		return nil
	}
	return fb
}

func (m *memFiles) FolderAt(path string) *Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folders[path]
}

func (m *memFiles) FileAt(path string) *File {
	fb := m.Lookup(path)
	f, _ := fb.(*File)
	return f
}

func (m *memFiles) FindContainerOf(path string) *Folder {
	m.mu.Lock()
	folder, ok := m.folders[path]
	m.mu.Unlock()
	if ok {
		return folder
	}
	folder = NewFolder(path)
	m.Register(folder)
	return folder
}

func (m *memFiles) Remove(fb FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.all, fb.Path())
	delete(m.folders, fb.Path())
}

func (m *memFiles) Register(fb FileBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	fb.SetId(m.nextID)
	m.all[fb.Path()] = fb
	if folder, ok := fb.(*Folder); ok {
		m.folders[fb.Path()] = folder
	}
}

// memDB is an in-memory Database used across package tests.
type memDB struct {
	mu        sync.Mutex
	History   []History
	SaveCalls int
}

func newMemDB() *memDB { return &memDB{} }

func (d *memDB) SaveFileBase(ctx context.Context, fb FileBase) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.SaveCalls++
	return nil
}

func (d *memDB) SaveHistory(ctx context.Context, h History) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.History = append(d.History, h)
	return nil
}

// memGit is a no-op GitProvider used across package tests.
type memGit struct{}

func (memGit) RepositoryExists(folder *Folder) bool                      { return false }
func (memGit) GetWorkdirPath(folder *Folder) string                      { return "" }
func (memGit) PathIsIgnored(folder *Folder, relativePath string) bool    { return false }
