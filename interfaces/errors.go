package interfaces

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and conflict failures are synchronous and local:
// they are raised before any VM execution is attempted. Execution and
// submission failures carry enough context to diagnose (script kind, account
// nonce at the time of failure).
var (
	// ErrValidation marks a malformed name or account id. Requests failing
	// validation never touch the VM.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an attempt to register a name that is already bound.
	ErrConflict = errors.New("name already registered")

	// ErrNotFound marks a lookup miss. It is an absence result, not a fault.
	ErrNotFound = errors.New("name not found")
)

// ExecutionError is a VM-level failure: advice channel mismatch, storage
// conflict, stack underflow. Retrying the identical execution is pointless;
// the inputs must be corrected first.
type ExecutionError struct {
	// ScriptKind names the transaction script that failed.
	ScriptKind string

	// Nonce is the account nonce at the time of the failure.
	Nonce uint64

	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s script (nonce %d): %v", e.ScriptKind, e.Nonce, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SubmissionError is a network or executor failure while submitting a proven
// transaction. Transient failures may be retried with backoff; terminal ones
// must be surfaced to the caller without retry.
type SubmissionError struct {
	// Transient distinguishes retryable network failures from terminal
	// rejections of the transaction itself.
	Transient bool

	Err error
}

func (e *SubmissionError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient submission failure: %v", e.Err)
	}
	return fmt.Sprintf("transaction rejected: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable submission failure.
func IsTransient(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Transient
}
