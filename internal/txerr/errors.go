// Package txerr implements the error taxonomy of the assignment loop:
// ConfigurationError and SupplyError are fatal, NoPath and WorkerCrash
// are non-fatal and recorded against the offending request, Interrupted
// terminates the run with a non-zero exit code. Wrapping follows
// github.com/pkg/errors so callers can still unwrap with Cause.
package txerr

import "github.com/pkg/errors"

// Sentinel errors. Use errors.Is against these after unwrapping, or
// errors.Cause for the original value.
var (
	// ErrConfiguration: missing/invalid configuration value, missing
	// weights file, unknown user-class function, unknown overlap
	// variable. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrSupply: malformed schedule arrays (non-sortable, negative times,
	// missing stop). Fatal.
	ErrSupply = errors.New("supply error")
	// ErrNoPath: a request has no feasible itinerary. Non-fatal.
	ErrNoPath = errors.New("no path")
	// ErrWorkerCrash: a worker died mid-request. Non-fatal.
	ErrWorkerCrash = errors.New("worker crashed")
	// ErrInterrupted: user cancellation (SIGINT).
	ErrInterrupted = errors.New("interrupted")
)

// Configuration wraps err as a ConfigurationError with msg context.
func Configuration(msg string, err error) error {
	if err == nil {
		return errors.Wrap(ErrConfiguration, msg)
	}
	return errors.Wrapf(err, "%s: %s", ErrConfiguration, msg)
}

// Supply wraps err as a SupplyError with msg context.
func Supply(msg string, err error) error {
	if err == nil {
		return errors.Wrap(ErrSupply, msg)
	}
	return errors.Wrapf(err, "%s: %s", ErrSupply, msg)
}

// WorkerCrash wraps err as a WorkerCrash for the given request id.
func WorkerCrash(requestID string, err error) error {
	return errors.Wrapf(ErrWorkerCrash, "request %s: %v", requestID, err)
}

// IsFatal reports whether err should terminate the assignment run, as
// opposed to being recorded against a single request and continuing.
func IsFatal(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrConfiguration || cause == ErrSupply || cause == ErrInterrupted ||
		errorsIsWrapped(err, ErrConfiguration) || errorsIsWrapped(err, ErrSupply) || errorsIsWrapped(err, ErrInterrupted)
}

func errorsIsWrapped(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		cause := errors.Cause(err)
		if cause == err {
			return false
		}
		err = cause
	}
	return false
}

// ExitCode maps a terminal error (or nil) to the process exit code:
// 0 normal, 2 configuration/unhandled error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 2
}
