package promptjob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []JobStatus
	errs  map[int]error
	calls int
}

func (f *scriptedFetcher) FetchJob(_ context.Context, jobID string) (JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if err := f.errs[i]; err != nil {
		return JobStatus{}, err
	}
	if i >= len(f.steps) {
		return JobStatus{JobID: jobID, Status: StatusProcessing}, nil
	}
	return f.steps[i], nil
}

var fast = PollOptions{Interval: time.Millisecond, MaxAttempts: 5}

func TestPoll_CompletesAfterTransients(t *testing.T) {
	f := &scriptedFetcher{steps: []JobStatus{
		{Status: StatusPending},
		{Status: StatusProcessing},
		{Status: StatusCompleted, Response: "done"},
	}}
	var seen []Status
	opts := fast
	opts.OnTransient = func(_ int, st JobStatus) { seen = append(seen, st.Status) }

	r := Poll(context.Background(), f, "job-1", opts)
	require.True(t, r.Succeeded())
	assert.Equal(t, "done", r.Response)
	assert.Equal(t, 3, r.Attempts)
	assert.Equal(t, []Status{StatusPending, StatusProcessing}, seen)
}

func TestPoll_ExhaustionIsFailure(t *testing.T) {
	f := &scriptedFetcher{}
	transients := 0
	opts := PollOptions{Interval: time.Millisecond, MaxAttempts: 4, OnTransient: func(int, JobStatus) { transients++ }}

	r := Poll(context.Background(), f, "job-2", opts)
	assert.Equal(t, StatusFailed, r.Status)
	assert.True(t, r.TimedOut)
	assert.Equal(t, 4, f.calls)
	assert.Equal(t, 4, transients)

	var jf *JobFailedError
	require.ErrorAs(t, r.AsError(), &jf)
	assert.True(t, jf.TimedOut)
	assert.Equal(t, "job-2", jf.JobID)
}

func TestPoll_FetchErrorIsTransient(t *testing.T) {
	f := &scriptedFetcher{
		steps: []JobStatus{{}, {Status: StatusCompleted, Response: "ok"}},
		errs:  map[int]error{0: errors.New("connection reset")},
	}
	var first JobStatus
	opts := fast
	opts.OnTransient = func(attempt int, st JobStatus) {
		if attempt == 1 {
			first = st
		}
	}

	r := Poll(context.Background(), f, "job-3", opts)
	require.True(t, r.Succeeded())
	assert.Equal(t, StatusError, first.Status)
	assert.Contains(t, first.Error, "connection reset")
}

func TestPoll_CancelledMapsToFailed(t *testing.T) {
	f := &scriptedFetcher{steps: []JobStatus{{Status: StatusCancelled}}}
	r := Poll(context.Background(), f, "job-4", fast)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "job cancelled", r.Error)
	assert.False(t, r.TimedOut)
}

func TestPoll_FailedCarriesReason(t *testing.T) {
	f := &scriptedFetcher{steps: []JobStatus{{Status: StatusFailed, Error: "insufficient balance"}}}
	err := Poll(context.Background(), f, "job-5", fast).AsError()
	require.Error(t, err)
	assert.Equal(t, "Job failed: insufficient balance", err.Error())
}

func TestPoll_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &scriptedFetcher{}
	opts := PollOptions{Interval: time.Hour, MaxAttempts: 100, OnTransient: func(int, JobStatus) { cancel() }}

	done := make(chan JobResult)
	go func() { done <- Poll(ctx, f, "job-6", opts) }()

	select {
	case r := <-done:
		assert.Equal(t, StatusFailed, r.Status)
		assert.False(t, r.TimedOut)
		assert.Equal(t, 1, f.calls)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not observe cancellation")
	}
}

func TestPollOptions_Defaults(t *testing.T) {
	o := PollOptions{}.withDefaults()
	assert.Equal(t, 3*time.Second, o.Interval)
	assert.Equal(t, 100, o.MaxAttempts)
}
