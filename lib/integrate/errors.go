package integrate

import "errors"

var (
	// ErrIntegratorStepFailed names a single integrator routine's failure.
	// The Integrator's routines log such failures and continue with the
	// next entry; none of them returns this error.
	ErrIntegratorStepFailed = errors.New("integrator step failed")
)
