package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/nrednav/cuid2"
	"github.com/relaycode/bubble/lib/logger"
)

// SandboxLauncher spawns the bwrap-wrapped child process for one command
// invocation, per spec.md §4.3.
type SandboxLauncher struct {
	allowNetwork bool
}

// NewSandboxLauncher creates a launcher. allowNetwork controls whether
// spawned commands keep network access (the default is to unshare it).
func NewSandboxLauncher(allowNetwork bool) *SandboxLauncher {
	return &SandboxLauncher{allowNetwork: allowNetwork}
}

// RunningCommand is a spawned, not-yet-waited sandboxed command.
type RunningCommand struct {
	InvocationID string
	cmd          *exec.Cmd
	stdout       *os.File
	stderr       *os.File
}

// Launch builds the bwrap argument vector for layout and command, spawns
// it inheriting the current process's stdin and full environment, and
// returns pipes for stdout/stderr for the OutputPump to drain.
func (l *SandboxLauncher) Launch(ctx context.Context, layout *OverlayLayout, command string) (*RunningCommand, error) {
	log := logger.FromContext(ctx)

	args, err := BuildArguments(layout, command, l.allowNetwork)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Env = os.Environ()

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrStreamsUnavailable, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrStreamsUnavailable, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	invocationID := cuid2.Generate()
	log.InfoContext(ctx, "launching sandboxed command", "invocation_id", invocationID, "argv", args)

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	// The write ends are owned by the child now; close our copies so the
	// read side observes EOF once the child exits.
	stdoutW.Close()
	stderrW.Close()

	return &RunningCommand{
		InvocationID: invocationID,
		cmd:          cmd,
		stdout:       stdoutR,
		stderr:       stderrR,
	}, nil
}

// Stdout returns the child's stdout pipe read end.
func (r *RunningCommand) Stdout() *os.File { return r.stdout }

// Stderr returns the child's stderr pipe read end.
func (r *RunningCommand) Stderr() *os.File { return r.stderr }

// Wait blocks until the child exits and returns its exit code. A nonzero
// exit code is not itself an error; ErrWaitFailed wraps only failures to
// wait on the process at all (e.g. it was never successfully started).
func (r *RunningCommand) Wait() (int, error) {
	err := r.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("%w: %v", ErrWaitFailed, err)
}
