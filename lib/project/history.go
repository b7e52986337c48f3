package project

import "fmt"

// History is an immutable audit/rollback record for one reconciled entry,
// per FileBase change. All records produced within a single sandboxed
// command invocation share one Timestamp, so a caller can group and
// replay a command's effects as a unit.
type History struct {
	FilebaseId int64
	ChangeType ChangeType
	Timestamp  int64 // unix seconds, identical across one invocation

	// InvocationID disambiguates two invocations that land in the same
	// wall-clock second, which Timestamp alone cannot: see SPEC_FULL.md
	// §3. The distilled spec is silent on this, so it is additive, not a
	// redesign.
	InvocationID string

	// ContentBackup holds the pre-change bytes for Modified and Deleted
	// records; it is always nil for Added records, since there is no
	// prior content to back up.
	ContentBackup []byte
}

// NewHistory constructs a History record. backup must be nil when ct is
// ChangeAdded, per spec.md §3's "never for added" invariant; Modified and
// Deleted records carry a backup when there is content to back up (a
// folder deletion, for one, carries none). NewHistory does not itself
// enforce this — its callers in lib/integrate (the Integrator and the
// DeleteManager) are responsible for it.
func NewHistory(filebaseId int64, ct ChangeType, timestamp int64, invocationID string, backup []byte) History {
	return History{
		FilebaseId:    filebaseId,
		ChangeType:    ct,
		Timestamp:     timestamp,
		InvocationID:  invocationID,
		ContentBackup: backup,
	}
}

// Rollback returns the content a file should be restored to by replaying
// h, or an error wrapping ErrNotRollbackable when h carries no backup at
// all. A Deleted record's backup
// restores the file; a Modified record's backup restores the pre-change
// content. An Added record has no backup: rolling it back means deleting
// the file, which Rollback cannot itself express since it has no
// filesystem access — the caller inspects ChangeType instead.
func (h History) Rollback() ([]byte, error) {
	if h.ChangeType == ChangeAdded {
		return nil, fmt.Errorf("%w: change_type=added has no backup", ErrNotRollbackable)
	}
	if h.ContentBackup == nil {
		return nil, fmt.Errorf("%w: filebase_id=%d timestamp=%d", ErrNotRollbackable, h.FilebaseId, h.Timestamp)
	}
	return h.ContentBackup, nil
}
