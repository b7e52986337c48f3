package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaunchAndDrain_Success(t *testing.T) {
	if !CanSandbox() {
		t.Skip("bwrap not available in this environment")
	}

	cacheRoot := t.TempDir()
	ws := NewOverlayWorkspace(cacheRoot)
	ctx := testContext()

	layout, err := ws.Prepare(ctx, nil)
	require.NoError(t, err)
	defer ws.Cleanup(ctx, layout)

	launcher := NewSandboxLauncher(false)
	running, err := launcher.Launch(ctx, layout, "echo hi")
	require.NoError(t, err)
	require.NotEmpty(t, running.InvocationID)

	pump := NewOutputPump()
	result, err := pump.Drain(ctx, running)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, "hi\n", result.Combined)
}

func TestLaunchAndDrain_NonzeroExit(t *testing.T) {
	if !CanSandbox() {
		t.Skip("bwrap not available in this environment")
	}

	cacheRoot := t.TempDir()
	ws := NewOverlayWorkspace(cacheRoot)
	ctx := testContext()

	layout, err := ws.Prepare(ctx, nil)
	require.NoError(t, err)
	defer ws.Cleanup(ctx, layout)

	launcher := NewSandboxLauncher(false)
	running, err := launcher.Launch(ctx, layout, "echo out; echo err 1>&2; exit 3")
	require.NoError(t, err)

	pump := NewOutputPump()
	result, err := pump.Drain(ctx, running)
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "err\nout\nExit code: 3\n", result.Combined)
}

func TestProbe_NestedSandbox(t *testing.T) {
	t.Setenv("FLATPAK_ID", "org.example.App")
	report := Probe()
	assert.False(t, report.OK)
	assert.True(t, report.NestedSandbox)
}
