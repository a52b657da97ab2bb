package jobqueue

import (
	"context"
	"time"
)

// Strategy is the pluggable persistence backend for jobs. Implementations
// must make Next atomic: a job is claimed by at most one caller.
type Strategy interface {
	// Add persists a new job. Missing ID, state, and timestamps are
	// populated. Returns the stored job.
	Add(ctx context.Context, job Job) (Job, error)

	// Next atomically claims the oldest eligible pending job on the queue,
	// transitioning it to running and incrementing its attempt counter.
	// The boolean is false when no job is eligible.
	Next(ctx context.Context, queue string) (Job, bool, error)

	// Update persists job mutations. Updating a job that has already
	// settled returns ErrAlreadySettled.
	Update(ctx context.Context, job Job) error

	// FindByID fetches a job.
	FindByID(ctx context.Context, id string) (Job, error)

	// FindMany lists jobs matching opts and reports the total count
	// before pagination.
	FindMany(ctx context.Context, opts ListOptions) ([]Job, int, error)

	// Cancel settles a pending or running job as cancelled. Cancelling a
	// settled job returns ErrAlreadySettled.
	Cancel(ctx context.Context, id string) (Job, error)

	// Requeue returns a failed or cancelled job to pending, clearing its
	// error and granting extraRetries additional attempts. This is the
	// only sanctioned settled-to-pending transition.
	Requeue(ctx context.Context, id string, extraRetries int) (Job, error)

	// RemoveSettled deletes settled jobs on the queue (all queues when
	// empty) settled before the cutoff. Returns the number removed.
	RemoveSettled(ctx context.Context, queue string, olderThan time.Time) (int, error)

	// Stats reports per-queue job counts.
	Stats(ctx context.Context) ([]QueueStats, error)
}

// Notifier is implemented by strategies that can signal job arrival, letting
// workers wake immediately instead of waiting out a poll interval.
type Notifier interface {
	// NotifyChannel returns a channel that receives a signal when a job
	// may have become eligible on the queue. Signals are best-effort;
	// workers still poll as a fallback.
	NotifyChannel(queue string) <-chan struct{}
}
