package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaycode/bubble/lib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	return logger.AddToContext(context.Background(), logger.NewLogger(logger.NewConfig()))
}

func TestOverlayWorkspace_Prepare(t *testing.T) {
	cacheRoot := t.TempDir()
	rootA := filepath.Join(t.TempDir(), "proj-a")
	rootB := filepath.Join(t.TempDir(), "proj-b")
	require.NoError(t, os.MkdirAll(rootA, 0755))
	require.NoError(t, os.MkdirAll(rootB, 0755))

	ws := NewOverlayWorkspace(cacheRoot)
	layout, err := ws.Prepare(testContext(), []string{rootA, rootB})
	require.NoError(t, err)

	assert.DirExists(t, layout.UpperDir())
	assert.DirExists(t, layout.WorkDir())
	assert.DirExists(t, layout.OverlaySlot(1))
	assert.DirExists(t, layout.WorkSlot(1))
	assert.DirExists(t, layout.OverlaySlot(2))
	assert.DirExists(t, layout.WorkSlot(2))

	assert.Equal(t, []string{"overlay1", "overlay2"}, layout.SlotOrder())
	root, ok := layout.Overlay.RootFor("overlay1")
	require.True(t, ok)
	assert.Equal(t, rootA, root)

	ws.Cleanup(testContext(), layout)
	assert.NoDirExists(t, layout.BaseDir)
}

func TestOverlayWorkspace_Prepare_EmptyBuildRoots(t *testing.T) {
	cacheRoot := t.TempDir()
	ws := NewOverlayWorkspace(cacheRoot)

	layout, err := ws.Prepare(testContext(), nil)
	require.NoError(t, err)
	assert.Empty(t, layout.SlotOrder())
	assert.DirExists(t, layout.UpperDir())
	assert.DirExists(t, layout.WorkDir())

	ws.Cleanup(testContext(), layout)
	assert.NoDirExists(t, layout.BaseDir)
}
