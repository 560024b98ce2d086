package protection

// JobStatus represents the current state of a protection job. It enables
// tracking of job lifecycle from submission through completion or failure.
type JobStatus string

const (
	// JobStatusQueued indicates a job has been accepted but not yet started.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusProcessing indicates a job is actively running pipeline steps.
	JobStatusProcessing JobStatus = "PROCESSING"

	// JobStatusCompleted indicates all pipeline steps finished successfully.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed indicates the job encountered an unrecoverable error.
	JobStatusFailed JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether polling should stop at this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a wire string to a JobStatus. Unknown strings
// parse to the empty (unspecified) status, which is treated as non-terminal.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "queued", "QUEUED", "pending":
		return JobStatusQueued
	case "processing", "PROCESSING", "running", "in_progress":
		return JobStatusProcessing
	case "completed", "COMPLETED", "done":
		return JobStatusCompleted
	case "failed", "FAILED", "error":
		return JobStatusFailed
	default:
		return "" // represents unspecified
	}
}
