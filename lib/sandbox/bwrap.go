package sandbox

import (
	"fmt"
	"os"
	"os/exec"
)

// nestedSandboxEnvVar is the sentinel environment variable treated as "we
// are already running inside a nested sandbox host, bubblewrap is
// unavailable", per spec.md §4.3 and §6.
const nestedSandboxEnvVar = "FLATPAK_ID"

// CanSandbox reports whether bubblewrap is usable in the current
// environment: a bwrap executable must be on PATH, and the process must
// not be running inside a nested-sandbox host.
func CanSandbox() bool {
	report := Probe()
	return report.OK
}

// CapabilityReport is the detailed result of a sandboxing capability
// probe (SPEC_FULL.md §7) — richer than the bare bool spec.md §6 requires,
// so a caller can render a useful diagnostic.
type CapabilityReport struct {
	OK              bool
	BwrapPath       string
	NestedSandbox   bool
	NestedSandboxBy string // the env var that indicated nesting, if any
	Reason          string
}

// Probe runs the bubblewrap capability check and returns a detailed report.
func Probe() CapabilityReport {
	bwrapPath, lookErr := exec.LookPath("bwrap")
	if v := os.Getenv(nestedSandboxEnvVar); v != "" {
		return CapabilityReport{
			OK:              false,
			BwrapPath:       bwrapPath,
			NestedSandbox:   true,
			NestedSandboxBy: nestedSandboxEnvVar,
			Reason:          fmt.Sprintf("%s is set; already running inside a nested sandbox", nestedSandboxEnvVar),
		}
	}
	if lookErr != nil {
		return CapabilityReport{
			OK:     false,
			Reason: "bwrap executable not found on PATH",
		}
	}
	return CapabilityReport{OK: true, BwrapPath: bwrapPath}
}

// BuildArguments composes the bubblewrap argument vector for layout and
// command, per spec.md §4.3. The order and content of the returned slice
// is part of the spec's bit-level contract (§6): two conforming
// implementations given the same inputs must produce the same argv.
func BuildArguments(layout *OverlayLayout, command string, allowNetwork bool) ([]string, error) {
	bwrapPath, err := exec.LookPath("bwrap")
	if err != nil {
		return nil, fmt.Errorf("%w", ErrBwrapNotFound)
	}

	args := []string{
		bwrapPath,
		"--unshare-user",
		"--tmpfs", "/tmp",
		"--ro-bind", "/", "/",
	}

	for _, slot := range layout.SlotOrder() {
		root, _ := layout.Overlay.RootFor(slot)
		n := slotIndex(slot)
		args = append(args,
			"--dir", root,
			"--overlay-src", root,
			"--overlay", layout.OverlaySlot(n), layout.WorkSlot(n), root,
		)
	}

	if len(layout.BuildRoots) > 0 {
		args = append(args, "--chdir", layout.BuildRoots[0])
	}

	if !allowNetwork {
		args = append(args, "--unshare-net")
	}

	args = append(args, "--", "/bin/sh", "-c", command)

	return args, nil
}

// slotIndex parses the 1-based index out of an "overlayN" slot name.
func slotIndex(slot string) int {
	var n int
	fmt.Sscanf(slot, "overlay%d", &n)
	return n
}
