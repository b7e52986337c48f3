package project

import (
	"fmt"
	"os"
	"sort"
)

// RollbackTarget is where a History record's content is restored to on
// disk; real paths are resolved by the caller (typically from the
// FileBase the record's FilebaseId names) since History itself carries
// no path.
type RollbackTarget struct {
	Path    string
	History History
}

// Rollback replays a command invocation's History records against disk,
// restoring each target to its pre-change content and removing files
// that the invocation added. Records are applied newest timestamp first;
// records sharing a timestamp (every record of one invocation, spec.md
// §3) are applied in reverse of the order they are passed in, so a caller
// passing records in the order Integrator wrote them unwinds them
// most-recent-first.
//
// This is a supplement beyond the reconciliation core itself: spec.md
// exposes rollback only as "the user may roll back a command by
// replaying its records" without prescribing a replay routine.
func Rollback(targets []RollbackTarget) error {
	ordered := make([]RollbackTarget, 0, len(targets))
	for i := len(targets) - 1; i >= 0; i-- {
		ordered = append(ordered, targets[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].History.Timestamp > ordered[j].History.Timestamp
	})

	var errs []error
	for _, t := range ordered {
		if err := rollbackOne(t); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", t.Path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("rollback completed with %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func rollbackOne(t RollbackTarget) error {
	switch t.History.ChangeType {
	case ChangeAdded:
		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case ChangeModified, ChangeDeleted:
		content, err := t.History.Rollback()
		if err != nil {
			return err
		}
		return os.WriteFile(t.Path, content, 0644)
	default:
		return fmt.Errorf("unknown change type %q", t.History.ChangeType)
	}
}
