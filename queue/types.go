package queue

import (
	"fmt"
	"time"
)

// Job is one pipeline run waiting to be picked up by a worker.
type Job struct {
	// RunID identifies the run across the queue, the registry and the
	// events channel.
	RunID string `json:"run_id"`

	// InputDir holds the documents to ingest.
	InputDir string `json:"input_dir"`

	// RunDir receives every artifact of the run.
	RunDir string `json:"run_dir"`

	// TraceID carries the distributed tracing context of the submitter.
	TraceID string `json:"trace_id,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the job was
	// enqueued.
	SubmittedAt int64 `json:"submitted_at"`
}

// Event is one progress notification of a running job, published to the
// run's channel as the worker moves through the pipeline.
type Event struct {
	// RunID correlates the event with its job.
	RunID string `json:"run_id"`

	// State is the run state at the time of the event.
	State string `json:"state"`

	// Stage is the pipeline stage the event refers to, empty for
	// whole-run events.
	Stage string `json:"stage,omitempty"`

	// Error is the failure message when State is failed.
	Error string `json:"error,omitempty"`

	// WorkerID identifies the worker processing the run.
	WorkerID string `json:"worker_id"`

	// At is the Unix timestamp in milliseconds of the event.
	At int64 `json:"at"`
}

// RunMeta is the registry record of a run, stored as a Redis hash so runs
// stay listable after the worker that built them is gone.
type RunMeta struct {
	// RunID is the unique run identifier.
	RunID string `json:"run_id"`

	// InputDir is the document directory the run ingested.
	InputDir string `json:"input_dir"`

	// RunDir is where the run's artifacts live.
	RunDir string `json:"run_dir"`

	// State is the last reported run state.
	State string `json:"state"`

	// SubmittedAt is the Unix timestamp in milliseconds of enqueueing.
	SubmittedAt int64 `json:"submitted_at"`
}

// IsValid checks that the job has everything a worker needs.
func (j *Job) IsValid() error {
	if j.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if j.InputDir == "" {
		return fmt.Errorf("input_dir is required")
	}
	if j.RunDir == "" {
		return fmt.Errorf("run_dir is required")
	}
	if j.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", j.SubmittedAt)
	}
	return nil
}

// Age returns the duration since the job was enqueued. Useful for
// detecting stale jobs and measuring queue wait time.
func (j *Job) Age() time.Duration {
	if j.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-j.SubmittedAt) * time.Millisecond
}

// HasError reports whether the event carries a failure.
func (e *Event) HasError() bool {
	return e.Error != ""
}

// IsValid checks that the event is complete enough to publish.
func (e *Event) IsValid() error {
	if e.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if e.State == "" {
		return fmt.Errorf("state is required")
	}
	if e.At <= 0 {
		return fmt.Errorf("at must be positive, got %d", e.At)
	}
	return nil
}

// IsValid checks that the registry record is complete.
func (m *RunMeta) IsValid() error {
	if m.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if m.RunDir == "" {
		return fmt.Errorf("run_dir is required")
	}
	if m.State == "" {
		return fmt.Errorf("state is required")
	}
	return nil
}
