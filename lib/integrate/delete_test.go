package integrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaycode/bubble/lib/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteManager_Remove_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	files := newMemFiles()
	db := newMemDB()
	fb := project.NewFile(path)
	files.Register(fb)
	root := project.NewFolder(dir)
	files.Register(root)
	root.AddChild("a.txt", fb)

	dm := NewDeleteManager(files, db)
	err := dm.Remove(testContext(), fb, 1000, "inv-1")
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, fb.IsDeleted())
	require.Len(t, db.History, 1)
	assert.Equal(t, "content", string(db.History[0].ContentBackup))

	// Folder map still references the child until Cleanup runs.
	assert.Contains(t, root.Children(), "a.txt")
	dm.Cleanup(testContext())
	assert.NotContains(t, root.Children(), "a.txt")
	assert.Nil(t, files.Lookup(path))
}

func TestDeleteManager_Remove_Folder(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.txt"), []byte("x"), 0644))

	files := newMemFiles()
	db := newMemDB()
	fb := project.NewFolder(sub)
	files.Register(fb)

	dm := NewDeleteManager(files, db)
	err := dm.Remove(testContext(), fb, 2000, "inv-1")
	require.NoError(t, err)

	assert.NoDirExists(t, sub)
	assert.True(t, fb.IsDeleted())
}

type failingHistoryDB struct{ memDB }

func (f *failingHistoryDB) SaveHistory(ctx context.Context, h project.History) error {
	return assert.AnError
}

func TestDeleteManager_Remove_HistoryFailureSkipsFilesystemMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0644))

	files := newMemFiles()
	db := &failingHistoryDB{memDB: *newMemDB()}
	fb := project.NewFile(path)
	files.Register(fb)

	dm := NewDeleteManager(files, db)
	err := dm.Remove(testContext(), fb, 3000, "inv-1")

	assert.ErrorIs(t, err, project.ErrHistoryPersistFailed)
	assert.FileExists(t, path)
	assert.False(t, fb.IsDeleted())
}
