package jobqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStrategy keeps jobs in process memory. It is safe for concurrent use
// and is the default strategy for tests and single-process deployments.
type MemoryStrategy struct {
	mu      sync.Mutex
	jobs    map[string]Job
	pending map[string][]string // queue -> job IDs in FIFO order
	notify  map[string]chan struct{}
}

var _ Strategy = (*MemoryStrategy)(nil)
var _ Notifier = (*MemoryStrategy)(nil)

// NewMemoryStrategy returns an empty in-memory strategy.
func NewMemoryStrategy() *MemoryStrategy {
	return &MemoryStrategy{
		jobs:    make(map[string]Job),
		pending: make(map[string][]string),
		notify:  make(map[string]chan struct{}),
	}
}

func (s *MemoryStrategy) notifyLocked(queue string) {
	ch, ok := s.notify[queue]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// NotifyChannel implements Notifier.
func (s *MemoryStrategy) NotifyChannel(queue string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.notify[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		s.notify[queue] = ch
	}
	return ch
}

func (s *MemoryStrategy) Add(_ context.Context, job Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.State = StatePending
	job.CreatedAt = now
	if job.RunAt.IsZero() {
		job.RunAt = now
	}

	s.jobs[job.ID] = job
	s.pending[job.Queue] = append(s.pending[job.Queue], job.ID)
	s.notifyLocked(job.Queue)
	return job, nil
}

func (s *MemoryStrategy) Next(_ context.Context, queue string) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ids := s.pending[queue]
	for i, id := range ids {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if !job.Eligible(now) {
			continue
		}
		s.pending[queue] = append(append([]string(nil), ids[:i]...), ids[i+1:]...)

		job.State = StateRunning
		job.Attempts++
		job.StartedAt = now
		s.jobs[id] = job
		return job, true, nil
	}

	// Drop IDs that settled or vanished while queued.
	kept := ids[:0]
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok && job.State == StatePending {
			kept = append(kept, id)
		}
	}
	s.pending[queue] = kept
	return Job{}, false, nil
}

func (s *MemoryStrategy) Update(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.IsSettled() {
		return ErrAlreadySettled
	}

	job.CreatedAt = stored.CreatedAt
	if job.IsSettled() && job.SettledAt.IsZero() {
		job.SettledAt = time.Now().UTC()
	}
	s.jobs[job.ID] = job

	if job.State == StatePending {
		s.pending[job.Queue] = append(s.pending[job.Queue], job.ID)
		s.notifyLocked(job.Queue)
	}
	return nil
}

func (s *MemoryStrategy) FindByID(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStrategy) FindMany(_ context.Context, opts ListOptions) ([]Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[State]bool, len(opts.States))
	for _, st := range opts.States {
		states[st] = true
	}

	var matched []Job
	for _, job := range s.jobs {
		if opts.Queue != "" && job.Queue != opts.Queue {
			continue
		}
		if len(states) > 0 && !states[job.State] {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStrategy) Cancel(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.IsSettled() {
		return Job{}, ErrAlreadySettled
	}

	job.State = StateCancelled
	job.SettledAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStrategy) Requeue(_ context.Context, id string, extraRetries int) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if job.State != StateFailed && job.State != StateCancelled {
		return Job{}, ErrAlreadySettled
	}

	job.State = StatePending
	job.Error = ""
	job.Progress = 0
	job.SettledAt = time.Time{}
	job.RunAt = time.Now().UTC()
	if extraRetries > 0 {
		job.MaxRetries += extraRetries
	}
	s.jobs[id] = job
	s.pending[job.Queue] = append(s.pending[job.Queue], job.ID)
	s.notifyLocked(job.Queue)
	return job, nil
}

func (s *MemoryStrategy) RemoveSettled(_ context.Context, queue string, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if !job.IsSettled() {
			continue
		}
		if queue != "" && job.Queue != queue {
			continue
		}
		if job.SettledAt.After(olderThan) {
			continue
		}
		delete(s.jobs, id)
		removed++
	}
	return removed, nil
}

func (s *MemoryStrategy) Stats(_ context.Context) ([]QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byQueue := make(map[string]*QueueStats)
	for _, job := range s.jobs {
		stats, ok := byQueue[job.Queue]
		if !ok {
			stats = &QueueStats{Name: job.Queue}
			byQueue[job.Queue] = stats
		}
		switch job.State {
		case StatePending:
			stats.Pending++
		case StateRunning:
			stats.Running++
		case StateCompleted:
			stats.Completed++
		case StateFailed:
			stats.Failed++
		case StateCancelled:
			stats.Cancelled++
		}
	}

	names := make([]string, 0, len(byQueue))
	for name := range byQueue {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]QueueStats, 0, len(names))
	for _, name := range names {
		out = append(out, *byQueue[name])
	}
	return out, nil
}
