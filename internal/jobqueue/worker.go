package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopforge/shopforge/internal/events"
)

// worker is one claim-and-process loop for a queue. It blocks on the
// strategy's notify channel when available and falls back to the poll
// interval otherwise.
func (s *Service) worker(q *Queue) {
	defer s.wg.Done()

	acceptCtx := s.acceptCtx

	var notify <-chan struct{}
	if n, ok := s.strategy.(Notifier); ok {
		notify = n.NotifyChannel(q.name)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-acceptCtx.Done():
			return
		default:
		}

		job, ok, err := s.strategy.Next(acceptCtx, q.name)
		if err != nil {
			if acceptCtx.Err() != nil {
				return
			}
			s.log.WithError(err).WithField("queue", q.name).Warn("claim next job failed")
		}
		if ok {
			s.runJob(q, job)
			continue
		}

		// Nothing eligible; wait for a signal or the next poll tick.
		// A nil notify channel blocks forever, leaving only the ticker.
		select {
		case <-acceptCtx.Done():
			return
		case <-notify:
		case <-ticker.C:
		}
	}
}

func (s *Service) runJob(q *Queue, job Job) {
	jobCtx, cancel := context.WithCancel(s.hardCtx)
	defer cancel()
	s.trackRunning(job.ID, cancel)
	defer s.untrackRunning(job.ID)

	active := &ActiveJob{job: job, strategy: s.strategy}
	start := time.Now()
	result, err := q.process(jobCtx, active)
	duration := time.Since(start)
	job = active.snapshot()

	switch {
	case err == nil:
		s.settleCompleted(q, job, result, duration)
	case jobCtx.Err() != nil:
		s.handleInterrupted(q, job)
	default:
		s.settleErrored(q, job, err, duration)
	}
}

func (s *Service) settleCompleted(q *Queue, job Job, result any, duration time.Duration) {
	ctx := context.Background()

	job.State = StateCompleted
	job.Progress = 100
	job.Error = ""
	job.SettledAt = time.Now().UTC()
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			job.Result = raw
		} else {
			s.log.WithError(err).WithField("job_id", job.ID).Warn("marshal job result failed")
		}
	}

	if err := s.strategy.Update(ctx, job); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			// Cancelled while the handler was finishing; the cancel wins.
			return
		}
		s.log.WithError(err).WithField("job_id", job.ID).Error("persist completed job failed")
		return
	}

	s.recordSettled(q.name, "completed", duration)
	if s.bus != nil {
		s.bus.Publish(events.New(events.JobCompleted, "job", job.ID, map[string]any{
			"queue":    job.Queue,
			"attempts": job.Attempts,
		}))
	}
	s.log.WithField("job_id", job.ID).
		WithField("queue", job.Queue).
		WithField("duration", duration.String()).
		Debug("job completed")
}

func (s *Service) settleErrored(q *Queue, job Job, procErr error, duration time.Duration) {
	ctx := context.Background()
	job.Error = procErr.Error()

	if job.Attempts > job.MaxRetries {
		job.State = StateFailed
		job.SettledAt = time.Now().UTC()
	} else {
		delay := s.backoff(job.Attempts)
		job.State = StatePending
		job.RunAt = time.Now().UTC().Add(delay)
	}

	if err := s.strategy.Update(ctx, job); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			return
		}
		s.log.WithError(err).WithField("job_id", job.ID).Error("persist errored job failed")
		return
	}

	if job.State == StateFailed {
		s.recordSettled(q.name, "failed", duration)
		if s.bus != nil {
			s.bus.Publish(events.New(events.JobFailed, "job", job.ID, map[string]any{
				"queue":    job.Queue,
				"attempts": job.Attempts,
				"error":    job.Error,
			}))
		}
		s.log.WithError(procErr).
			WithField("job_id", job.ID).
			WithField("queue", job.Queue).
			WithField("attempts", job.Attempts).
			Warn("job failed permanently")
		return
	}

	s.log.WithError(procErr).
		WithField("job_id", job.ID).
		WithField("queue", job.Queue).
		WithField("attempt", job.Attempts).
		WithField("retry_at", job.RunAt.Format(time.RFC3339)).
		Info("job errored; retry scheduled")
}

// handleInterrupted returns a job interrupted by cancellation or shutdown to
// its proper state. An API cancel has already settled the job; shutdown
// returns it to pending so another worker can pick it up.
func (s *Service) handleInterrupted(q *Queue, job Job) {
	ctx := context.Background()

	stored, err := s.strategy.FindByID(ctx, job.ID)
	if err != nil {
		s.log.WithError(err).WithField("job_id", job.ID).Warn("inspect interrupted job failed")
		return
	}
	if stored.IsSettled() {
		s.recordSettled(q.name, "cancelled", 0)
		return
	}

	job.State = StatePending
	job.RunAt = time.Now().UTC()
	if err := s.strategy.Update(ctx, job); err != nil && !errors.Is(err, ErrAlreadySettled) {
		s.log.WithError(err).WithField("job_id", job.ID).Error("return interrupted job to pending failed")
		return
	}
	s.log.WithField("job_id", job.ID).
		WithField("queue", job.Queue).
		Info("job interrupted by shutdown; returned to pending")
}

// backoff computes the retry delay after the given attempt count using
// exponential growth capped at the configured maximum.
func (s *Service) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := s.opts.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= s.opts.BackoffCap {
			return s.opts.BackoffCap
		}
	}
	if delay > s.opts.BackoffCap {
		return s.opts.BackoffCap
	}
	return delay
}

// ActiveJob is the handle a ProcessFunc receives for the job it is running.
type ActiveJob struct {
	job      Job
	strategy Strategy
}

// ID returns the job ID.
func (a *ActiveJob) ID() string { return a.job.ID }

// Queue returns the queue name.
func (a *ActiveJob) Queue() string { return a.job.Queue }

// Attempts returns the attempt count including the current run.
func (a *ActiveJob) Attempts() int { return a.job.Attempts }

// Payload returns the raw payload.
func (a *ActiveJob) Payload() json.RawMessage { return a.job.Payload }

// UnmarshalPayload decodes the payload into v.
func (a *ActiveJob) UnmarshalPayload(v any) error {
	if len(a.job.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", a.job.ID)
	}
	return json.Unmarshal(a.job.Payload, v)
}

// SetProgress persists a progress percentage (clamped to 0-99 while
// running; completion sets 100). Returns ErrAlreadySettled when the job was
// cancelled out from under the handler, which handlers should treat as a
// stop signal.
func (a *ActiveJob) SetProgress(ctx context.Context, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	a.job.Progress = pct
	return a.strategy.Update(ctx, a.job)
}

func (a *ActiveJob) snapshot() Job { return a.job }
