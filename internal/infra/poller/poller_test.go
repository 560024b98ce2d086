package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/artshield/artshield/internal/domain/protection"
)

func testTracer() trace.Tracer { return noop.NewTracerProvider().Tracer("test") }

func processingSnapshot() protection.Snapshot {
	return protection.NewSnapshot(protection.JobStatusProcessing, "", false, "", 10, nil, "")
}

func completedSnapshot() protection.Snapshot {
	return protection.NewSnapshot(protection.JobStatusCompleted, "", false, "", 100, nil, "")
}

func TestPollUntilTerminalStopsAtTerminal(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Millisecond, MaxAttempts: 10}, testTracer())

	fetches := 0
	snap, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) {
			fetches++
			if fetches < 3 {
				return processingSnapshot(), nil
			}
			return completedSnapshot(), nil
		},
		func(s protection.Snapshot) bool { return s.IsTerminal() },
		nil,
	)

	require.NoError(t, err)
	assert.Equal(t, 3, fetches)
	assert.Equal(t, protection.JobStatusCompleted, snap.JobStatus())
}

func TestPollUntilTerminalExhaustsAttempts(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Millisecond, MaxAttempts: 5}, testTracer())

	fetches := 0
	var seen []protection.Snapshot
	_, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) {
			fetches++
			return processingSnapshot(), nil
		},
		func(s protection.Snapshot) bool { return s.IsTerminal() },
		func(s protection.Snapshot) { seen = append(seen, s) },
	)

	var timeout protection.PollingTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 5, timeout.Attempts)
	assert.Equal(t, 5, fetches, "the attempt budget bounds fetches exactly")
	assert.Len(t, seen, 5, "every snapshot is observed even when the poll times out")
}

func TestPollUntilTerminalPropagatesFetchError(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Millisecond, MaxAttempts: 10}, testTracer())

	boom := errors.New("connection refused")
	fetches := 0
	_, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) {
			fetches++
			return protection.Snapshot{}, boom
		},
		func(protection.Snapshot) bool { return false },
		nil,
	)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fetches, "fetch errors are terminal, not retried")
}

func TestPollUntilTerminalObservesEachSnapshot(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Millisecond, MaxAttempts: 10}, testTracer())

	fetches := 0
	var observed int
	snap, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) {
			fetches++
			if fetches == 2 {
				return completedSnapshot(), nil
			}
			return processingSnapshot(), nil
		},
		func(s protection.Snapshot) bool { return s.IsTerminal() },
		func(protection.Snapshot) { observed++ },
	)

	require.NoError(t, err)
	assert.Equal(t, 2, observed, "the terminal snapshot is observed too")
	assert.True(t, snap.IsTerminal())
}

func TestPollUntilTerminalContextCancellation(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Hour, MaxAttempts: 10}, testTracer())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.PollUntilTerminal(ctx,
			func(context.Context) (protection.Snapshot, error) {
				return processingSnapshot(), nil
			},
			func(protection.Snapshot) bool { return false },
			nil,
		)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not abort on context cancellation")
	}
}

// recordDelays swaps the poller's sleep for one that captures each delay and
// returns immediately.
func recordDelays(p *Poller) *[]time.Duration {
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return &delays
}

func TestBackoffScheduleExactDelays(t *testing.T) {
	t.Parallel()

	p := New(Config{
		InitialDelay: 2 * time.Second,
		MaxAttempts:  5,
		Multiplier:   1.2,
		MaxDelay:     10 * time.Second,
	}, testTracer())
	delays := recordDelays(p)

	_, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) { return processingSnapshot(), nil },
		func(protection.Snapshot) bool { return false },
		nil,
	)

	var timeout protection.PollingTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Len(t, *delays, 5)

	// Each delay is the previous one times the multiplier, below the ceiling.
	wantMillis := []float64{2000, 2400, 2880, 3456, 4147.2}
	for i, want := range wantMillis {
		got := float64((*delays)[i].Nanoseconds()) / 1e6
		assert.InDelta(t, want, got, 0.001, "delay %d", i)
	}
}

func TestBackoffScheduleCeiling(t *testing.T) {
	t.Parallel()

	p := New(Config{
		InitialDelay: 2 * time.Second,
		MaxAttempts:  12,
		Multiplier:   1.2,
		MaxDelay:     10 * time.Second,
	}, testTracer())
	delays := recordDelays(p)

	_, err := p.PollUntilTerminal(context.Background(),
		func(context.Context) (protection.Snapshot, error) { return processingSnapshot(), nil },
		func(protection.Snapshot) bool { return false },
		nil,
	)

	var timeout protection.PollingTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Len(t, *delays, 12)
	assert.Equal(t, 2*time.Second, (*delays)[0])

	ceiling := 10 * time.Second
	capThreshold := time.Duration(float64(ceiling) / 1.2)
	for i := 1; i < len(*delays); i++ {
		prev, cur := (*delays)[i-1], (*delays)[i]
		if prev >= capThreshold {
			assert.Equal(t, ceiling, cur, "delay %d must sit at the ceiling", i)
			continue
		}
		assert.InEpsilon(t, 1.2, float64(cur)/float64(prev), 1e-6,
			"delay %d must grow by the multiplier", i)
	}
	assert.Equal(t, ceiling, (*delays)[len(*delays)-1], "the schedule must reach the ceiling")
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	p := New(Config{Interval: time.Second, MaxAttempts: 3}, testTracer())

	assert.Equal(t, time.Second, p.cfg.InitialDelay, "initial delay defaults to the interval")
	assert.Equal(t, defaultMultiplier, p.cfg.Multiplier)
	assert.Equal(t, defaultMaxDelay, p.cfg.MaxDelay)
}
