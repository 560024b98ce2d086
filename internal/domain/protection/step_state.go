package protection

// StepState represents the display state of an individual pipeline step. It
// enables fine-grained tracking of per-step progress and error conditions.
type StepState string

const (
	// StepStatePending indicates a step has not been observed yet.
	StepStatePending StepState = "PENDING"

	// StepStateInProgress indicates the server is actively working on a step.
	StepStateInProgress StepState = "IN_PROGRESS"

	// StepStateSuccess indicates a step finished successfully.
	StepStateSuccess StepState = "SUCCESS"

	// StepStateError indicates a step encountered an unrecoverable error.
	StepStateError StepState = "ERROR"

	// StepStateUnspecified is used when a step state is unknown.
	StepStateUnspecified StepState = "UNSPECIFIED"
)

// String returns the string representation of the StepState.
func (s StepState) String() string { return string(s) }

// IsTerminal reports whether the state admits no further transitions.
func (s StepState) IsTerminal() bool {
	return s == StepStateSuccess || s == StepStateError
}

// ParseStepState converts a raw wire string to a StepState. Raw payloads use
// a handful of spellings for each state; anything unrecognized parses to
// UNSPECIFIED rather than failing.
func ParseStepState(s string) StepState {
	switch s {
	case "pending", "queued", "PENDING":
		return StepStatePending
	case "processing", "in_progress", "running", "IN_PROGRESS":
		return StepStateInProgress
	case "completed", "success", "done", "SUCCESS":
		return StepStateSuccess
	case "failed", "error", "ERROR":
		return StepStateError
	default:
		return StepStateUnspecified
	}
}

// isValidTransition checks if the current state can transition to the target
// state. It enforces the per-step lifecycle rules so a step can never regress.
func (s StepState) isValidTransition(target StepState) bool {
	switch s {
	case StepStatePending:
		// From Pending, can move to InProgress, or straight to a terminal
		// state when completion is inferred or swept without the step ever
		// being observed in progress.
		return target == StepStateInProgress || target == StepStateSuccess || target == StepStateError
	case StepStateInProgress:
		// From InProgress, can only move to a terminal state.
		return target == StepStateSuccess || target == StepStateError
	case StepStateSuccess, StepStateError:
		// Terminal states - no further transitions allowed.
		return false
	case StepStateUnspecified:
		// Cannot transition from unspecified state.
		return false
	default:
		return false
	}
}

// CanTransition reports whether moving to target is a forward transition.
// The reconciler uses this to suppress regressions instead of erroring.
func (s StepState) CanTransition(target StepState) bool { return s.isValidTransition(target) }
