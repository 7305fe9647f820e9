package promptjob

import (
	"context"
	"fmt"
	"time"
)

// StatusFetcher reads the current state of a job.
type StatusFetcher interface {
	FetchJob(ctx context.Context, jobID string) (JobStatus, error)
}

// Poll fetches job status until it turns terminal, the attempts run out, or
// ctx is done. A fetch error counts as a non-terminal attempt. Poll never
// returns an error; every failure is a JobResult with StatusFailed.
func Poll(ctx context.Context, f StatusFetcher, jobID string, opts PollOptions) JobResult {
	opts = opts.withDefaults()
	timer := time.NewTimer(opts.Interval)
	timer.Stop()
	defer timer.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(jobID, attempt-1, err)
		}

		st, err := f.FetchJob(ctx, jobID)
		if err == nil && st.Status.Terminal() {
			return terminal(jobID, attempt, st)
		}
		if err != nil {
			st = JobStatus{JobID: jobID, Status: StatusError, Error: err.Error()}
		}
		if opts.OnTransient != nil {
			opts.OnTransient(attempt, st)
		}

		if attempt == opts.MaxAttempts {
			break
		}
		timer.Reset(opts.Interval)
		select {
		case <-ctx.Done():
			return cancelled(jobID, attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return JobResult{
		JobID:    jobID,
		Status:   StatusFailed,
		Error:    fmt.Sprintf("job %s still running after %d attempts", jobID, opts.MaxAttempts),
		TimedOut: true,
		Attempts: opts.MaxAttempts,
	}
}

func terminal(jobID string, attempt int, st JobStatus) JobResult {
	r := JobResult{
		JobID:    jobID,
		Status:   st.Status,
		Response: st.Response,
		Error:    st.Error,
		Attempts: attempt,
		Raw:      st.Raw,
	}
	if st.Status == StatusCancelled {
		r.Status = StatusFailed
		if r.Error == "" {
			r.Error = "job cancelled"
		}
	}
	return r
}

func cancelled(jobID string, attempts int, err error) JobResult {
	return JobResult{
		JobID:    jobID,
		Status:   StatusFailed,
		Error:    "polling stopped: " + err.Error(),
		Attempts: attempts,
	}
}
