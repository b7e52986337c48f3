package sandbox

import (
	"testing"

	"github.com/relaycode/bubble/lib/paths"
	"github.com/stretchr/testify/assert"
)

func TestBuildArguments_Order(t *testing.T) {
	layout := &OverlayLayout{
		BaseDir:    "/cache/overlay-1",
		BuildRoots: []string{"/home/u/p", "/home/u/q"},
		Overlay:    NewOverlayMap(),
		p:          paths.New("/cache"),
		slotOrder:  []string{"overlay1", "overlay2"},
	}
	layout.Overlay.Add("overlay1", "/home/u/p")
	layout.Overlay.Add("overlay2", "/home/u/q")

	args, err := BuildArguments(layout, "echo hi", false)
	if err != nil {
		// bwrap may be absent in the test environment; nothing further to
		// assert about argv shape in that case.
		t.Skipf("bwrap not available: %v", err)
	}

	assert.Equal(t, "--unshare-user", args[1])
	assert.Equal(t, []string{"--tmpfs", "/tmp"}, args[2:4])
	assert.Equal(t, []string{"--ro-bind", "/", "/"}, args[4:7])

	assert.Equal(t, []string{"--dir", "/home/u/p", "--overlay-src", "/home/u/p",
		"--overlay", layout.OverlaySlot(1), layout.WorkSlot(1), "/home/u/p"}, args[7:15])
	assert.Equal(t, []string{"--dir", "/home/u/q", "--overlay-src", "/home/u/q",
		"--overlay", layout.OverlaySlot(2), layout.WorkSlot(2), "/home/u/q"}, args[15:23])

	assert.Equal(t, []string{"--chdir", "/home/u/p"}, args[23:25])
	assert.Equal(t, "--unshare-net", args[25])
	assert.Equal(t, []string{"--", "/bin/sh", "-c", "echo hi"}, args[26:])
}

func TestBuildArguments_AllowNetwork(t *testing.T) {
	layout := &OverlayLayout{Overlay: NewOverlayMap(), p: paths.New("/cache")}

	args, err := BuildArguments(layout, "echo hi", true)
	if err != nil {
		t.Skipf("bwrap not available: %v", err)
	}

	for _, a := range args {
		assert.NotEqual(t, "--unshare-net", a)
	}
}

func TestBuildArguments_EmptyBuildRoots(t *testing.T) {
	layout := &OverlayLayout{Overlay: NewOverlayMap(), p: paths.New("/cache")}

	args, err := BuildArguments(layout, "echo hi", false)
	if err != nil {
		t.Skipf("bwrap not available: %v", err)
	}

	for _, a := range args {
		assert.NotEqual(t, "--chdir", a)
		assert.NotEqual(t, "--overlay", a)
	}
}
