package protection

import (
	"errors"
	"fmt"
)

// Sentinel errors for semantic HTTP responses, mapped 1:1 and never retried.
var (
	// ErrJobNotFound is returned when the service does not know the job.
	ErrJobNotFound = errors.New("job not found")

	// ErrStillProcessing is returned when a result or variant is requested
	// before the job reached a terminal state.
	ErrStillProcessing = errors.New("job still processing")
)

// ValidationError reports a client-side submission violation. It is raised
// before any network call and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError wraps ErrJobNotFound with the offending job ID.
type NotFoundError struct {
	JobID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// Unwrap lets errors.Is(err, ErrJobNotFound) match.
func (e NotFoundError) Unwrap() error { return ErrJobNotFound }

// StillProcessingError wraps ErrStillProcessing with the job ID.
type StillProcessingError struct {
	JobID string
}

func (e StillProcessingError) Error() string {
	return fmt.Sprintf("job %s is still processing", e.JobID)
}

// Unwrap lets errors.Is(err, ErrStillProcessing) match.
func (e StillProcessingError) Unwrap() error { return ErrStillProcessing }

// PollingTimeoutError is raised after the configured number of non-terminal
// polls. It is distinct from job failure: the job may still be running
// server-side.
type PollingTimeoutError struct {
	JobID    string
	Attempts int
}

func (e PollingTimeoutError) Error() string {
	return fmt.Sprintf("job %s did not reach a terminal state after %d polls", e.JobID, e.Attempts)
}

// JobFailedError indicates the remote job itself reported a failed status.
// It carries the server's error message verbatim.
type JobFailedError struct {
	JobID   string
	Code    string
	Message string
}

func (e JobFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	if e.Code != "" {
		return fmt.Sprintf("job %s failed (%s): %s", e.JobID, e.Code, msg)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobID, msg)
}

// NewJobFailedError builds a JobFailedError from a terminal snapshot,
// substituting the generic fallback when the server sent no message.
func NewJobFailedError(jobID, code, message string) JobFailedError {
	return JobFailedError{JobID: jobID, Code: code, Message: message}
}

// NetworkError wraps a transport failure. The poller does not retry it; it
// propagates as the poll's terminal failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e NetworkError) Unwrap() error { return e.Err }
