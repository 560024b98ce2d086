// Package reconcile folds canonical progress snapshots into a stable,
// never-regressing set of named pipeline-step states. It is a pure reducer:
// transitions are the only observable output and it never touches
// presentation state directly.
package reconcile

import (
	"github.com/artshield/artshield/internal/domain/protection"
)

// Transition is one forward step-state change emitted to the presentation
// layer.
type Transition struct {
	Step   protection.StepKey
	State  protection.StepState
	Detail string
}

// State holds the reconciliation state for exactly one in-flight job. It is
// created when a job starts polling and must never be shared or reused
// across jobs; stale state from a prior job must not leak into a new one.
type State struct {
	states        map[protection.StepKey]protection.StepState
	lastActive    protection.StepKey
	hasLastActive bool
}

// NewState creates a fresh per-job reconciliation state with every catalog
// step pending.
func NewState() *State {
	return &State{states: make(map[protection.StepKey]protection.StepState)}
}

// Reset reinitializes the state for a new job. Reset must happen-before the
// first poll of that job.
func (s *State) Reset() {
	s.states = make(map[protection.StepKey]protection.StepState)
	s.lastActive = ""
	s.hasLastActive = false
}

// StepState returns the current state of a step, defaulting to pending.
func (s *State) StepState(key protection.StepKey) protection.StepState {
	if st, ok := s.states[key]; ok {
		return st
	}
	return protection.StepStatePending
}

// Reconciler consumes canonical snapshots and a fixed step catalog and
// maintains per-step state, emitting only forward transitions.
type Reconciler struct {
	catalog *protection.Catalog
	order   map[protection.StepKey]int
}

// New creates a Reconciler over the given catalog.
func New(catalog *protection.Catalog) *Reconciler {
	if catalog == nil {
		catalog = protection.DefaultCatalog()
	}
	order := make(map[protection.StepKey]int)
	for i, key := range catalog.Keys() {
		order[key] = i
	}
	return &Reconciler{catalog: catalog, order: order}
}

// isForwardSwitch reports whether moving the active step from prev to next
// advances through the pipeline. A server flapping back to an earlier step
// must not imply that the later step finished.
func (r *Reconciler) isForwardSwitch(prev, next protection.StepKey) bool {
	pi, ok := r.order[prev]
	if !ok {
		return true
	}
	ni, ok := r.order[next]
	if !ok {
		return true
	}
	return ni > pi
}

// advance attempts a forward transition for one step. It is idempotent and
// suppresses anything that would move a terminal step backward; suppression
// is a no-op, never an error, because a progress display must not crash a
// job that is otherwise succeeding.
func (r *Reconciler) advance(st *State, key protection.StepKey, target protection.StepState, detail string) (Transition, bool) {
	cur := st.StepState(key)
	if cur == target {
		return Transition{}, false
	}
	if !cur.CanTransition(target) {
		return Transition{}, false
	}
	st.states[key] = target
	return Transition{Step: key, State: target, Detail: detail}, true
}

// Begin marks a step as actively in progress and records it as the last
// active step. The client uses it to seed the upload step it performs
// itself before the server reports anything.
func (r *Reconciler) Begin(st *State, key protection.StepKey) []Transition {
	var out []Transition
	if t, ok := r.advance(st, key, protection.StepStateInProgress, ""); ok {
		out = append(out, t)
	}
	if !st.StepState(key).IsTerminal() {
		st.lastActive = key
		st.hasLastActive = true
	}
	return out
}

// Apply folds one snapshot into the state and returns the forward
// transitions it produced. Snapshots arrive strictly in fetch order, so only
// inconsistent content needs handling, never out-of-order arrival. Apply
// never fails: unresolvable or missing fields degrade to no-ops.
func (r *Reconciler) Apply(st *State, snap protection.Snapshot) []Transition {
	var out []Transition

	if active, ok := snap.ActiveStep(); ok {
		// A forward step switch implies the previous step finished, even if
		// no explicit success event was ever received for it.
		if st.hasLastActive && st.lastActive != active &&
			r.isForwardSwitch(st.lastActive, active) &&
			!st.StepState(st.lastActive).IsTerminal() {
			if t, applied := r.advance(st, st.lastActive, protection.StepStateSuccess, ""); applied {
				out = append(out, t)
			}
		}

		if !st.StepState(active).IsTerminal() {
			if t, applied := r.advance(st, active, protection.StepStateInProgress, snap.RawActiveStep()); applied {
				out = append(out, t)
			}
			st.lastActive = active
			st.hasLastActive = true
		}

		if snap.Percentage() >= 100 || snap.JobStatus() == protection.JobStatusCompleted {
			if t, applied := r.advance(st, active, protection.StepStateSuccess, ""); applied {
				out = append(out, t)
			}
		}
	}

	// Legacy shape: explicit per-step reports, walked in catalog order so an
	// unordered wire map yields deterministic transitions.
	if reports := snap.StepReports(); len(reports) > 0 {
		out = append(out, r.applyReports(st, reports)...)
	}

	return out
}

// applyReports walks a legacy per-step map and emits explicit transitions,
// respecting the monotonic invariant.
func (r *Reconciler) applyReports(st *State, reports map[string]protection.StepReport) []Transition {
	var out []Transition
	for _, key := range r.catalog.Keys() {
		for raw, report := range reports {
			resolved, ok := r.catalog.Resolve(raw)
			if !ok || resolved != key {
				continue
			}
			switch report.State {
			case protection.StepStateInProgress:
				if t, applied := r.advance(st, key, protection.StepStateInProgress, raw); applied {
					out = append(out, t)
					st.lastActive = key
					st.hasLastActive = true
				}
			case protection.StepStateSuccess:
				if t, applied := r.advance(st, key, protection.StepStateSuccess, ""); applied {
					out = append(out, t)
				}
			case protection.StepStateError:
				if t, applied := r.advance(st, key, protection.StepStateError, report.ErrorMessage); applied {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

// ForceComplete sweeps every catalog step not yet terminal to success, in
// catalog order. It is invoked once when the job reports completed, so the
// display never freezes mid-pipeline just because the server stopped sending
// per-step detail after its final callback.
func (r *Reconciler) ForceComplete(st *State) []Transition {
	var out []Transition
	for _, key := range r.catalog.Keys() {
		if st.StepState(key).IsTerminal() {
			continue
		}
		if t, applied := r.advance(st, key, protection.StepStateSuccess, ""); applied {
			out = append(out, t)
		}
	}
	return out
}
