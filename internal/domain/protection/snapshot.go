package protection

// StepReport is the per-step detail carried by legacy status payloads.
type StepReport struct {
	State           StepState
	DurationSeconds float64
	ErrorMessage    string
}

// Snapshot is the canonical point-in-time view of a job's progress. It is
// produced fresh on every poll and remembers nothing about prior polls.
type Snapshot struct {
	jobStatus     JobStatus
	activeStep    StepKey
	hasActiveStep bool
	rawActiveStep string
	percentage    int
	stepReports   map[string]StepReport
	errMessage    string
}

// NewSnapshot creates a canonical Snapshot. Percentage is clamped to [0,100].
func NewSnapshot(
	jobStatus JobStatus,
	activeStep StepKey,
	hasActiveStep bool,
	rawActiveStep string,
	percentage int,
	stepReports map[string]StepReport,
	errMessage string,
) Snapshot {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return Snapshot{
		jobStatus:     jobStatus,
		activeStep:    activeStep,
		hasActiveStep: hasActiveStep,
		rawActiveStep: rawActiveStep,
		percentage:    percentage,
		stepReports:   stepReports,
		errMessage:    errMessage,
	}
}

// JobStatus returns the overall job status carried by this snapshot.
func (s Snapshot) JobStatus() JobStatus { return s.jobStatus }

// ActiveStep returns the catalog key of the step the server reported as
// active, and whether the raw label resolved to a catalog entry.
func (s Snapshot) ActiveStep() (StepKey, bool) { return s.activeStep, s.hasActiveStep }

// RawActiveStep returns the server's step label before catalog resolution.
func (s Snapshot) RawActiveStep() string { return s.rawActiveStep }

// Percentage returns the overall job completion percentage, clamped to [0,100].
func (s Snapshot) Percentage() int { return s.percentage }

// StepReports returns per-step detail keyed by raw step name. Only legacy
// payloads carry it; nil otherwise.
func (s Snapshot) StepReports() map[string]StepReport { return s.stepReports }

// ErrorMessage returns the server-provided failure message, if any.
func (s Snapshot) ErrorMessage() string { return s.errMessage }

// IsTerminal reports whether the job reached a terminal status.
func (s Snapshot) IsTerminal() bool { return s.jobStatus.IsTerminal() }
