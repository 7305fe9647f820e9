package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kjannette/trahn-agent/internal/promptjob"
)

// ScriptedReply is what a ScriptedJobs client does for one prompt.
type ScriptedReply struct {
	// SubmitErr rejects the submission.
	SubmitErr string
	// Statuses are returned by successive polls; once exhausted the job
	// stays "processing".
	Statuses      []promptjob.JobStatus
	CorrelationID string
}

// Completed is a reply whose job finishes on the first poll.
func Completed(response string) ScriptedReply {
	return ScriptedReply{Statuses: []promptjob.JobStatus{{Status: promptjob.StatusCompleted, Response: response}}}
}

// Failed is a reply whose job fails on the first poll.
func Failed(reason string) ScriptedReply {
	return ScriptedReply{Statuses: []promptjob.JobStatus{{Status: promptjob.StatusFailed, Error: reason}}}
}

// Hanging is a reply whose job never leaves "processing".
func Hanging() ScriptedReply { return ScriptedReply{} }

// ScriptedJobs is a promptjob.Client that answers prompts by substring.
// Polling goes through promptjob.Poll so attempt accounting matches the real client.
type ScriptedJobs struct {
	mu      sync.Mutex
	rules   []scriptRule
	jobs    map[string]*scriptedJob
	nextID  int
	prompts []string
}

type scriptRule struct {
	contains string
	reply    ScriptedReply
}

type scriptedJob struct {
	statuses []promptjob.JobStatus
	polls    int
}

func NewScriptedJobs() *ScriptedJobs {
	return &ScriptedJobs{jobs: map[string]*scriptedJob{}}
}

// On registers reply for any prompt containing substr. Earlier rules win.
func (s *ScriptedJobs) On(substr string, reply ScriptedReply) *ScriptedJobs {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, scriptRule{contains: substr, reply: reply})
	return s
}

func (s *ScriptedJobs) Submit(_ context.Context, prompt, correlationID string) (promptjob.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	var reply *ScriptedReply
	for i := range s.rules {
		if strings.Contains(prompt, s.rules[i].contains) {
			reply = &s.rules[i].reply
			break
		}
	}
	if reply == nil {
		return promptjob.Submission{}, &promptjob.SubmissionError{Message: "no script for prompt"}
	}
	if reply.SubmitErr != "" {
		return promptjob.Submission{}, &promptjob.SubmissionError{Message: reply.SubmitErr}
	}

	s.nextID++
	id := fmt.Sprintf("job-%d", s.nextID)
	s.jobs[id] = &scriptedJob{statuses: reply.Statuses}

	thread := reply.CorrelationID
	if thread == "" {
		thread = correlationID
	}
	if thread == "" {
		thread = "thread-" + id
	}
	return promptjob.Submission{JobID: id, CorrelationID: thread}, nil
}

func (s *ScriptedJobs) FetchJob(_ context.Context, jobID string) (promptjob.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return promptjob.JobStatus{}, errors.New("unknown job " + jobID)
	}
	i := j.polls
	j.polls++
	if i >= len(j.statuses) {
		return promptjob.JobStatus{JobID: jobID, Status: promptjob.StatusProcessing}, nil
	}
	st := j.statuses[i]
	st.JobID = jobID
	return st, nil
}

func (s *ScriptedJobs) Poll(ctx context.Context, jobID string, opts promptjob.PollOptions) promptjob.JobResult {
	return promptjob.Poll(ctx, s, jobID, opts)
}

// Polls reports how many times jobID was fetched.
func (s *ScriptedJobs) Polls(jobID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

// SubmittedPrompts returns a copy of every prompt seen so far.
func (s *ScriptedJobs) SubmittedPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
