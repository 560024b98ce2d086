package protection

// RawStatus is the wire shape returned by GET /jobs/{id}. The service has
// emitted two incompatible shapes historically: a legacy per-step map and a
// modern progress object. Both are decoded into this tagged union and
// resolved once by Normalize, so every downstream component depends on one
// canonical Snapshot.
type RawStatus struct {
	JobID      string                   `json:"job_id"`
	Status     string                   `json:"status"`
	Progress   *RawProgress             `json:"progress,omitempty"`
	Steps      map[string]RawStepStatus `json:"steps,omitempty"`
	Percentage *float64                 `json:"percentage,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// RawProgress is the modern progress object: a free-text step label
// (optionally prefixed with "Processing "), a step number, and a percentage.
type RawProgress struct {
	CurrentStep string   `json:"current_step"`
	StepNumber  int      `json:"step_number"`
	Percentage  *float64 `json:"percentage,omitempty"`
}

// RawStepStatus is one entry of the legacy steps map.
type RawStepStatus struct {
	Status   string  `json:"status"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Normalizer converts any historical status payload shape into one canonical
// Snapshot. It is a pure function of its input: malformed or missing fields
// degrade to safe defaults, never an error.
type Normalizer struct {
	catalog *Catalog
}

// NewNormalizer creates a Normalizer resolving raw step names through the
// given catalog.
func NewNormalizer(catalog *Catalog) *Normalizer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Normalizer{catalog: catalog}
}

// Normalize folds a raw status payload into a canonical Snapshot. The modern
// progress shape is preferred when both are present; the legacy steps map is
// used only as a fallback.
func (n *Normalizer) Normalize(raw RawStatus) Snapshot {
	status := ParseJobStatus(raw.Status)

	percentage := 0
	if raw.Percentage != nil {
		percentage = int(*raw.Percentage)
	}

	var (
		active    StepKey
		hasActive bool
		rawActive string
		reports   map[string]StepReport
	)

	switch {
	case raw.Progress != nil:
		rawActive = raw.Progress.CurrentStep
		active, hasActive = n.catalog.Resolve(rawActive)
		if raw.Progress.Percentage != nil {
			percentage = int(*raw.Progress.Percentage)
		}

	case len(raw.Steps) > 0:
		reports = make(map[string]StepReport, len(raw.Steps))
		for name, st := range raw.Steps {
			reports[name] = StepReport{
				State:           legacyStepState(st.Status),
				DurationSeconds: st.Duration,
				ErrorMessage:    st.Error,
			}
		}
		// Legacy payloads carry no explicit active step; surface the
		// in-progress entry when exactly one resolves, walking catalog
		// order to stay deterministic over an unordered map.
		for _, key := range n.catalog.Keys() {
			for name, r := range reports {
				resolved, ok := n.catalog.Resolve(name)
				if ok && resolved == key && r.State == StepStateInProgress {
					active, hasActive, rawActive = key, true, name
					break
				}
			}
			if hasActive {
				break
			}
		}
	}

	return NewSnapshot(status, active, hasActive, rawActive, percentage, reports, raw.Error)
}

// legacyStepState maps a legacy per-entry status string to a StepState.
// Unrecognized statuses degrade to pending.
func legacyStepState(s string) StepState {
	if st := ParseStepState(s); st != StepStateUnspecified {
		return st
	}
	return StepStatePending
}
