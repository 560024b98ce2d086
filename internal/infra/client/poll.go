package client

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/artshield/artshield/internal/app/reconcile"
	"github.com/artshield/artshield/internal/domain/protection"
)

// StepObserver receives reconciled progress while a job is polled. Callbacks
// run on the polling goroutine; implementations must not block.
type StepObserver interface {
	// OnStepTransition is invoked for every forward step-state change, in
	// the order the reconciler emitted them.
	OnStepTransition(t reconcile.Transition)

	// OnTerminal fires exactly once when polling ends. Result is non-nil
	// only on success.
	OnTerminal(res *Result, err error)
}

// StepObserverFunc adapts a plain function to a StepObserver that ignores
// the terminal callback.
type StepObserverFunc func(t reconcile.Transition)

func (f StepObserverFunc) OnStepTransition(t reconcile.Transition) {
	if f != nil {
		f(t)
	}
}

func (f StepObserverFunc) OnTerminal(*Result, error) {}

// PollUntilComplete polls a job's status until it reaches a terminal state,
// reconciling every snapshot into forward step transitions for the observer.
// Each call gets a fresh reconciliation state, with the upload step seeded as
// active since the client itself performed the upload.
//
// On completed it fetches the result once; if that single fetch fails, the
// returned Result degrades to what the last snapshot carried rather than
// losing the terminal signal. On failed it returns a JobFailedError with the
// server's message verbatim. Exhausting the attempt budget returns a
// PollingTimeoutError.
func (c *Client) PollUntilComplete(ctx context.Context, jobID string, obs StepObserver) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "client.poll_until_complete",
		trace.WithAttributes(attribute.String("job_id", jobID)),
	)
	defer span.End()

	emit := func(transitions []reconcile.Transition) {
		if obs == nil {
			return
		}
		for _, t := range transitions {
			obs.OnStepTransition(t)
		}
	}
	finish := func(res *Result, err error) (*Result, error) {
		if obs != nil {
			obs.OnTerminal(res, err)
		}
		return res, err
	}

	st := reconcile.NewState()
	emit(c.reconciler.Begin(st, protection.StepUpload))

	fetch := func(ctx context.Context) (protection.Snapshot, error) {
		raw, err := c.GetStatus(ctx, jobID)
		if err != nil {
			return protection.Snapshot{}, err
		}
		return c.normalizer.Normalize(raw), nil
	}

	last, err := c.newPoller().PollUntilTerminal(ctx, fetch,
		func(s protection.Snapshot) bool { return s.IsTerminal() },
		func(s protection.Snapshot) { emit(c.reconciler.Apply(st, s)) },
	)
	if err != nil {
		var timeout protection.PollingTimeoutError
		if errors.As(err, &timeout) && timeout.JobID == "" {
			timeout.JobID = jobID
			err = timeout
		}
		return finish(nil, err)
	}

	if last.JobStatus() == protection.JobStatusFailed {
		c.log.Warn(ctx, "protection job failed", "job_id", jobID, "error", last.ErrorMessage())
		return finish(nil, protection.NewJobFailedError(jobID, "", last.ErrorMessage()))
	}

	emit(c.reconciler.ForceComplete(st))

	res, err := c.GetResult(ctx, jobID)
	if err != nil {
		// The job did complete; a failed result read must not demote that.
		c.log.Warn(ctx, "result fetch failed after completion, degrading to last snapshot",
			"job_id", jobID, "error", err)
		res = &Result{
			JobID:  jobID,
			Status: string(last.JobStatus()),
		}
	}
	return finish(res, nil)
}
