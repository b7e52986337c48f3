package project

import "errors"

var (
	// ErrHistoryPersistFailed is returned when a FileHistory record could
	// not be committed to the database; the caller must not perform the
	// corresponding filesystem mutation.
	ErrHistoryPersistFailed = errors.New("history persist failed")

	// ErrUnknownFileBase names a filebase id the project tree does not
	// know. No function in this module returns it; Rollback works on
	// caller-resolved paths rather than ids.
	ErrUnknownFileBase = errors.New("unknown filebase")

	// ErrNotRollbackable is returned when Rollback is asked to undo a
	// FileHistory record that carries no content backup.
	ErrNotRollbackable = errors.New("history record has no backup to roll back to")
)
