package sandbox

import "errors"

var (
	// ErrPathOutsideRoots is returned by the PathMapper when a path is
	// neither under the overlay base path nor under any known real root.
	ErrPathOutsideRoots = errors.New("path outside overlay roots")

	// ErrOverlayPrepareFailed is returned when OverlayWorkspace.Prepare
	// cannot create the directory layout for an invocation.
	ErrOverlayPrepareFailed = errors.New("overlay prepare failed")

	// ErrBwrapNotFound is returned when the bwrap executable cannot be
	// located on PATH.
	ErrBwrapNotFound = errors.New("bwrap executable not found")

	// ErrSpawnFailed is returned when the OS refuses to create the
	// sandboxed child process.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrStreamsUnavailable is returned when the OS cannot expose
	// readable file descriptors for the child's stdout/stderr pipes.
	ErrStreamsUnavailable = errors.New("streams unavailable")

	// ErrWaitFailed is returned when waiting on the child process fails
	// for a reason other than a nonzero exit code.
	ErrWaitFailed = errors.New("wait failed")
)
