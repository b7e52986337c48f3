package bubble

import "errors"

// ErrSandboxUnavailable is returned by New when CanSandbox reports the
// environment cannot run bubblewrap; the spec does not require a
// fallback execution path, so the caller must choose one.
var ErrSandboxUnavailable = errors.New("sandbox unavailable in this environment")
