// Package scheduler provides the task runner that executes consent and
// account polls: a worker pool with two delivery modes (adhoc and
// durable), outcome-driven retry, and the periodic fan-out driver.
package scheduler

import (
	"context"
	"time"
)

// Outcome is a task's declared conclusion. The runner interprets it to
// decide on requeue/retry.
type Outcome int

const (
	// OutcomeComplete means the task finished; it must not be retried,
	// even when no useful work was done.
	OutcomeComplete Outcome = iota
	// OutcomeIncomplete is a soft-fail signal; the runner re-enqueues
	// the task with backoff.
	OutcomeIncomplete
	// OutcomeFatal means the task failed in a way retrying cannot fix.
	// The runner reports it and drops the task.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Handler executes one task type, identified by a stable name string.
// The payload must round-trip through the durable queue unchanged.
type Handler interface {
	Name() string
	Execute(ctx context.Context, payload []byte) (Outcome, error)
}

// Task is one dispatched unit of work.
type Task struct {
	Name    string
	Payload []byte
	Attempt int
	// JobID is non-zero when the task was claimed from the durable queue.
	JobID int64
}

// Job is one row of the durable queue.
type Job struct {
	ID        int64
	Name      string
	Payload   []byte
	Attempts  int
	NextRunAt time.Time
}

// JobStore persists durable ("jobbing") tasks. Implemented in the
// infrastructure layer.
type JobStore interface {
	// Enqueue persists a job to run at runAt. attempts carries the
	// retry count already spent on the task; zero for a fresh job.
	Enqueue(ctx context.Context, name string, payload []byte, attempts int, runAt time.Time) (int64, error)

	// ClaimDue claims up to limit due jobs, leasing them so concurrent
	// claimers skip them.
	ClaimDue(ctx context.Context, limit int) ([]*Job, error)

	// Complete removes a finished job.
	Complete(ctx context.Context, id int64) error

	// Reschedule records a retry: bumped attempt count and next run time.
	Reschedule(ctx context.Context, id int64, attempts int, nextRunAt time.Time) error
}
