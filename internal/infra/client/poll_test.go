package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artshield/artshield/internal/app/reconcile"
	"github.com/artshield/artshield/internal/domain/protection"
)

// recordingObserver captures everything the poll loop reports.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []reconcile.Transition
	result      *Result
	err         error
	terminals   int
}

func (o *recordingObserver) OnStepTransition(t reconcile.Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) OnTerminal(res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = res
	o.err = err
	o.terminals++
}

// scriptedStatusServer serves a fixed sequence of status payloads, repeating
// the last one, plus a result endpoint.
type scriptedStatusServer struct {
	mu            sync.Mutex
	statuses      []map[string]any
	statusCalls   int
	resultCalls   int
	resultStatus  int
	resultPayload map[string]any
}

func (s *scriptedStatusServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.statusCalls
		if idx >= len(s.statuses) {
			idx = len(s.statuses) - 1
		}
		s.statusCalls++
		payload := s.statuses[idx]
		s.mu.Unlock()
		json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("/jobs/job-1/result", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.resultCalls++
		status := s.resultStatus
		payload := s.resultPayload
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(payload)
	})
	return mux
}

func TestPollUntilCompleteFullPipeline(t *testing.T) {
	t.Parallel()

	script := &scriptedStatusServer{
		statuses: []map[string]any{
			{"status": "processing", "progress": map[string]any{"current_step": "Processing imagehash", "percentage": 20}},
			{"status": "processing", "progress": map[string]any{"current_step": "Processing grid", "percentage": 40}},
			{"status": "processing", "progress": map[string]any{"current_step": "Processing nightshade", "percentage": 60}},
			{"status": "completed", "percentage": 100},
		},
		resultPayload: map[string]any{"job_id": "job-1", "status": "completed"},
	}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	obs := &recordingObserver{}
	res, err := newTestClient(t, srv.URL).PollUntilComplete(context.Background(), "job-1", obs)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "job-1", res.JobID)

	want := []reconcile.Transition{
		{Step: protection.StepUpload, State: protection.StepStateInProgress},
		{Step: protection.StepUpload, State: protection.StepStateSuccess},
		{Step: protection.StepImageHash, State: protection.StepStateInProgress, Detail: "Processing imagehash"},
		{Step: protection.StepImageHash, State: protection.StepStateSuccess},
		// "grid" is a historical alias; it resolves to the same catalog step.
		{Step: protection.StepFawkes, State: protection.StepStateInProgress, Detail: "Processing grid"},
		{Step: protection.StepFawkes, State: protection.StepStateSuccess},
		{Step: protection.StepNightshade, State: protection.StepStateInProgress, Detail: "Processing nightshade"},
		// Completion sweeps the remaining steps in catalog order.
		{Step: protection.StepNightshade, State: protection.StepStateSuccess},
		{Step: protection.StepWatermark, State: protection.StepStateSuccess},
		{Step: protection.StepC2PA, State: protection.StepStateSuccess},
	}
	assert.Equal(t, want, obs.transitions)

	assert.Equal(t, 1, obs.terminals, "OnTerminal fires exactly once")
	assert.Equal(t, res, obs.result)
	assert.NoError(t, obs.err)
	assert.Equal(t, 1, script.resultCalls, "the result is fetched exactly once")
}

func TestPollUntilCompleteFailedJob(t *testing.T) {
	t.Parallel()

	script := &scriptedStatusServer{
		statuses: []map[string]any{
			{"status": "processing", "progress": map[string]any{"current_step": "Processing fawkes", "percentage": 30}},
			{"status": "failed", "error": "fawkes worker crashed"},
		},
	}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	obs := &recordingObserver{}
	res, err := newTestClient(t, srv.URL).PollUntilComplete(context.Background(), "job-1", obs)
	require.Nil(t, res)

	var failed protection.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "job-1", failed.JobID)
	assert.Contains(t, failed.Error(), "fawkes worker crashed")

	assert.Equal(t, 1, obs.terminals)
	assert.Error(t, obs.err)
	assert.Zero(t, script.resultCalls, "failed jobs never fetch a result")
}

func TestPollUntilCompleteFailedJobWithoutMessage(t *testing.T) {
	t.Parallel()

	script := &scriptedStatusServer{
		statuses: []map[string]any{{"status": "failed"}},
	}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PollUntilComplete(context.Background(), "job-1", nil)

	var failed protection.JobFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, failed.Error(), "Unknown error")
}

func TestPollUntilCompleteTimesOut(t *testing.T) {
	t.Parallel()

	script := &scriptedStatusServer{
		statuses: []map[string]any{
			{"status": "processing", "progress": map[string]any{"current_step": "Processing fawkes", "percentage": 30}},
		},
	}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Polling.MaxAttempts = 4
	c, err := New(cfg, loggerForTest(), tracerForTest())
	require.NoError(t, err)

	_, err = c.PollUntilComplete(context.Background(), "job-1", nil)

	var timeout protection.PollingTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Attempts)
	assert.Equal(t, 4, script.statusCalls)
}

func TestPollUntilCompleteDegradesWhenResultFetchFails(t *testing.T) {
	t.Parallel()

	script := &scriptedStatusServer{
		statuses:     []map[string]any{{"status": "completed", "percentage": 100}},
		resultStatus: http.StatusInternalServerError,
	}
	srv := httptest.NewServer(script.handler())
	defer srv.Close()

	obs := &recordingObserver{}
	res, err := newTestClient(t, srv.URL).PollUntilComplete(context.Background(), "job-1", obs)

	// The job completed; a broken result endpoint must not turn that into a
	// failure.
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, string(protection.JobStatusCompleted), res.Status)
	assert.Equal(t, 1, obs.terminals)
}

func TestPollUntilCompleteNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).PollUntilComplete(context.Background(), "gone", nil)
	assert.ErrorIs(t, err, protection.ErrJobNotFound)
}
