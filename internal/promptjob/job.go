// Package promptjob submits natural-language prompts to the upstream agent
// service and waits for their asynchronous results.
package promptjob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"

	// StatusError marks a poll attempt whose status fetch itself failed.
	StatusError Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Submission is the upstream acknowledgement of an accepted prompt.
type Submission struct {
	JobID         string
	CorrelationID string
}

// JobStatus is one observation of a job.
type JobStatus struct {
	JobID    string
	Status   Status
	Response string
	Error    string
	Raw      json.RawMessage
}

// JobResult is the terminal outcome of a job. Status is either
// StatusCompleted or StatusFailed; cancellation and attempt exhaustion both
// surface as StatusFailed.
type JobResult struct {
	JobID         string
	CorrelationID string
	Status        Status
	Response      string
	Error         string
	TimedOut      bool
	Attempts      int
	Raw           json.RawMessage
}

func (r JobResult) Succeeded() bool { return r.Status == StatusCompleted }

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// OnTransient is called for every attempt that does not reach a terminal status.
	OnTransient func(attempt int, st JobStatus)
}

var DefaultPoll = PollOptions{Interval: 3 * time.Second, MaxAttempts: 100}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPoll.Interval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultPoll.MaxAttempts
	}
	return o
}

// Client is the upstream prompt-job service.
type Client interface {
	Submit(ctx context.Context, prompt, correlationID string) (Submission, error)
	Poll(ctx context.Context, jobID string, opts PollOptions) JobResult
}

// SubmissionError means the upstream refused or never acknowledged a prompt.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submitPrompt failed: %s: %v", e.Message, e.Err)
	}
	return "submitPrompt failed: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// JobFailedError is a job that ended in failure, including running out of
// poll attempts.
type JobFailedError struct {
	JobID    string
	Reason   string
	TimedOut bool
}

func (e *JobFailedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown"
	}
	return "Job failed: " + reason
}

// AsError converts a failed result into a *JobFailedError, or nil on success.
func (r JobResult) AsError() error {
	if r.Succeeded() {
		return nil
	}
	return &JobFailedError{JobID: r.JobID, Reason: r.Error, TimedOut: r.TimedOut}
}
