// Package poller provides a generic retry-until-terminal scheduler with
// bounded attempts and exponential delay growth. It drives repeated status
// fetches for a single job; the caller must not start a second poll loop
// before the first resolves or fails.
package poller

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/artshield/artshield/internal/domain/protection"
)

// Config bounds the poll loop.
type Config struct {
	// InitialDelay is the wait before the first fetch and the base for the
	// exponential schedule.
	InitialDelay time.Duration

	// Interval is the steady-state base delay used when InitialDelay is zero.
	Interval time.Duration

	// MaxAttempts is the number of non-terminal fetches before the poll
	// fails with PollingTimeoutError.
	MaxAttempts int

	// Multiplier grows the delay between attempts. Defaults to 1.5.
	Multiplier float64

	// MaxDelay is the hard ceiling on the delay. Defaults to 10s.
	MaxDelay time.Duration
}

const (
	defaultMultiplier = 1.5
	defaultMaxDelay   = 10 * time.Second
)

// Poller runs bounded exponential-backoff poll loops.
type Poller struct {
	cfg    Config
	tracer trace.Tracer

	// sleep pauses between attempts. Tests replace it to observe the
	// delay schedule without waiting it out.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Poller. Zero config fields take their defaults.
func New(cfg Config, tracer trace.Tracer) *Poller {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaultMultiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = cfg.Interval
	}
	return &Poller{cfg: cfg, tracer: tracer, sleep: sleep}
}

// PollUntilTerminal waits the initial delay, fetches a snapshot, notifies
// onSnapshot, and resolves once isTerminal returns true. Otherwise the delay
// grows by the multiplier up to the ceiling and the loop repeats, failing
// with PollingTimeoutError after MaxAttempts non-terminal fetches.
//
// Each iteration is a single suspension point. A fetch error propagates
// immediately as the poll's terminal failure; transient transport retry is
// deliberately not this layer's concern. Cancelling ctx aborts both the
// delay and, through the fetch's own ctx handling, the in-flight request.
func (p *Poller) PollUntilTerminal(
	ctx context.Context,
	fetch func(ctx context.Context) (protection.Snapshot, error),
	isTerminal func(protection.Snapshot) bool,
	onSnapshot func(protection.Snapshot),
) (protection.Snapshot, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialDelay
	bo.Multiplier = p.cfg.Multiplier
	bo.MaxInterval = p.cfg.MaxDelay
	bo.MaxElapsedTime = 0
	// The attempt budget bounds the loop; jitter between attempts would make
	// the schedule non-reproducible.
	bo.RandomizationFactor = 0
	bo.Reset()

	var last protection.Snapshot
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		delay := bo.NextBackOff()
		if err := p.sleep(ctx, delay); err != nil {
			return last, err
		}

		attemptCtx, span := p.tracer.Start(ctx, "poller.fetch_status",
			trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("delay_ms", delay.Milliseconds()),
			),
		)
		snap, err := fetch(attemptCtx)
		span.End()
		if err != nil {
			return last, err
		}
		last = snap

		if onSnapshot != nil {
			onSnapshot(snap)
		}
		if isTerminal(snap) {
			return snap, nil
		}
	}

	return last, protection.PollingTimeoutError{Attempts: p.cfg.MaxAttempts}
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
