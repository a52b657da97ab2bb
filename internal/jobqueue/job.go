// Package jobqueue implements the background job subsystem: durable jobs with
// pluggable persistence strategies, per-queue worker pools, and retry with
// exponential backoff.
package jobqueue

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Settled reports whether s is terminal.
func (s State) Settled() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Job is a single unit of deferred work.
type Job struct {
	ID         string          `json:"id" db:"id"`
	Queue      string          `json:"queue" db:"queue"`
	Payload    json.RawMessage `json:"payload,omitempty" db:"payload"`
	State      State           `json:"state" db:"state"`
	Progress   int             `json:"progress" db:"progress"`
	Attempts   int             `json:"attempts" db:"attempts"`
	MaxRetries int             `json:"max_retries" db:"max_retries"`
	Result     json.RawMessage `json:"result,omitempty" db:"result"`
	Error      string          `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	RunAt      time.Time       `json:"run_at" db:"run_at"`
	StartedAt  time.Time       `json:"started_at,omitempty" db:"started_at"`
	SettledAt  time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}

// IsSettled reports whether the job reached a terminal state.
func (j Job) IsSettled() bool {
	return j.State.Settled()
}

// Eligible reports whether the job may be claimed at the given instant.
func (j Job) Eligible(now time.Time) bool {
	return j.State == StatePending && !j.RunAt.After(now)
}

// ListOptions filters and paginates FindMany results.
type ListOptions struct {
	Queue  string
	States []State
	Limit  int
	Offset int
}

// QueueStats summarizes one queue for introspection endpoints.
type QueueStats struct {
	Name      string `json:"name"`
	Pending   int    `json:"pending"`
	Running   int    `json:"running"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}

var (
	// ErrNotFound indicates the job does not exist in the strategy.
	ErrNotFound = errors.New("jobqueue: job not found")
	// ErrAlreadySettled indicates an update attempted to transition a
	// settled job. Settled jobs only leave their terminal state through
	// Requeue.
	ErrAlreadySettled = errors.New("jobqueue: job already settled")
)
