// Package memproject is the in-memory ProjectFolder implementation
// bubbled runs against: one project, one build root, no database beyond
// a process-lifetime history slice. It exists so the debug/admin binary
// has a concrete project.ProjectFolder to hand Bubble.New without
// depending on a real embedding application's database and git layers,
// following the same shape as the in-memory scaffolds lib/project and
// lib/integrate's own tests use.
package memproject

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/relaycode/bubble/lib/integrate"
	"github.com/relaycode/bubble/lib/project"
)

// Files is a process-lifetime, mutex-protected index of every FileBase
// reconciled into the project tree so far, keyed by absolute real path.
type Files struct {
	mu      sync.RWMutex
	all     map[string]project.FileBase
	folders map[string]*project.Folder
	nextID  int64
}

// NewFiles creates an empty Files index rooted at root; root itself is
// registered as the top-level tracked Folder so FindContainerOf always
// has a chain to walk up to.
func NewFiles(root string) *Files {
	f := &Files{all: make(map[string]project.FileBase), folders: make(map[string]*project.Folder)}
	f.Register(project.NewFolder(root))
	return f
}

func (f *Files) Lookup(path string) project.FileBase {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.all[path]
}

func (f *Files) FolderAt(path string) *project.Folder {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.folders[path]
}

func (f *Files) FileAt(path string) *project.File {
	fb, _ := f.Lookup(path).(*project.File)
	return fb
}

func (f *Files) FindContainerOf(path string) *project.Folder {
	f.mu.RLock()
	folder, ok := f.folders[path]
	f.mu.RUnlock()
	if ok {
		return folder
	}
	folder = project.NewFolder(path)
	f.Register(folder)
	if parentPath := filepath.Dir(path); parentPath != path {
		f.FindContainerOf(parentPath).AddChild(filepath.Base(path), folder)
	}
	return folder
}

func (f *Files) Remove(fb project.FileBase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.all, fb.Path())
	delete(f.folders, fb.Path())
}

func (f *Files) Register(fb project.FileBase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fb.SetId(f.nextID)
	f.all[fb.Path()] = fb
	if folder, ok := fb.(*project.Folder); ok {
		f.folders[fb.Path()] = folder
	}
}

// Snapshot returns every tracked entry, for the debug dump handler.
func (f *Files) Snapshot() []project.FileBase {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]project.FileBase, 0, len(f.all))
	for _, fb := range f.all {
		out = append(out, fb)
	}
	return out
}

// DB is a process-lifetime append-only store of FileHistory records; it
// persists nothing across restarts, matching bubbled's role as a debug
// harness rather than a production embedding application.
type DB struct {
	mu      sync.Mutex
	history []project.History
}

func NewDB() *DB { return &DB{} }

func (d *DB) SaveFileBase(ctx context.Context, fb project.FileBase) error { return nil }

func (d *DB) SaveHistory(ctx context.Context, h project.History) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, h)
	return nil
}

// History returns every record saved so far, newest last.
func (d *DB) History() []project.History {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]project.History(nil), d.history...)
}

// Git is a no-op GitProvider: bubbled runs against a plain directory, not
// a git worktree, so nothing is ever reported as ignored.
type Git struct{}

func (Git) RepositoryExists(folder *project.Folder) bool                   { return false }
func (Git) GetWorkdirPath(folder *project.Folder) string                   { return "" }
func (Git) PathIsIgnored(folder *project.Folder, relativePath string) bool { return false }

// Project is the ProjectFolder + ProjectManager bubbled hands to
// bubble.New: a single build root rooted at Dir.
type Project struct {
	Dir      string
	files    *Files
	db       *DB
	git      Git
	deleteMg project.DeleteManager
}

// New creates a Project scoped to a single build root at dir.
func New(dir string) *Project {
	dir = filepath.Clean(dir)
	files := NewFiles(dir)
	db := NewDB()
	return &Project{
		Dir:      dir,
		files:    files,
		db:       db,
		deleteMg: integrate.NewDeleteManager(files, db),
	}
}

func (p *Project) BuildRoots() []string            { return []string{p.Dir} }
func (p *Project) Manager() project.ProjectManager { return p }
func (p *Project) Files() project.ProjectFiles     { return p.files }

func (p *Project) OnFileContentsChange(f *project.File) {}
func (p *Project) GitProvider() project.GitProvider     { return p.git }
func (p *Project) Database() project.Database           { return p.db }
func (p *Project) DeleteManager() project.DeleteManager { return p.deleteMg }

// FilesIndex exposes the concrete Files index for handlers that need to
// list or roll back tracked entries beyond the narrow ProjectFiles
// interface (e.g. the debug dump and rollback routes).
func (p *Project) FilesIndex() *Files { return p.files }

// HistoryStore exposes the concrete DB for the same reason.
func (p *Project) HistoryStore() *DB { return p.db }
