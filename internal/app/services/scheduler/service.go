// Package scheduler runs recurring maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shopforge/shopforge/pkg/logger"
)

// TaskFunc performs one run of a scheduled task.
type TaskFunc func(ctx context.Context) error

// Task is a named cron-scheduled unit of work.
type Task struct {
	// ID identifies the task, e.g. "purge-settled-jobs".
	ID string
	// Schedule is a standard five-field cron expression.
	Schedule string
	// Run performs the work. The context is cancelled on shutdown.
	Run TaskFunc
}

// TaskStatus is the introspection view of one task.
type TaskStatus struct {
	ID        string     `json:"id"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type taskState struct {
	task    Task
	entry   cron.EntryID
	lastRun time.Time
	lastErr string
}

// Service owns the cron runner. It implements system.Service.
type Service struct {
	log  *logger.Logger
	cron *cron.Cron

	mu      sync.Mutex
	tasks   map[string]*taskState
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Service{
		log:   log,
		cron:  cron.New(),
		tasks: make(map[string]*taskState),
	}
}

// Register adds a task. Tasks registered after Start are scheduled
// immediately.
func (s *Service) Register(task Task) error {
	task.ID = strings.TrimSpace(task.ID)
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(task.Schedule) == "" {
		return fmt.Errorf("task %s: schedule is required", task.ID)
	}
	if task.Run == nil {
		return fmt.Errorf("task %s: run func is required", task.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already registered", task.ID)
	}

	state := &taskState{task: task}
	entry, err := s.cron.AddFunc(task.Schedule, func() { s.runTask(state) })
	if err != nil {
		return fmt.Errorf("task %s: %w", task.ID, err)
	}
	state.entry = entry
	s.tasks[task.ID] = state
	return nil
}

func (s *Service) runTask(state *taskState) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now().UTC()
	err := state.task.Run(ctx)

	s.mu.Lock()
	state.lastRun = start
	if err != nil {
		state.lastErr = err.Error()
	} else {
		state.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithField("task", state.task.ID).Error("scheduled task failed")
		return
	}
	s.log.WithField("task", state.task.ID).
		WithField("duration", time.Since(start).String()).
		Debug("scheduled task completed")
}

// RunNow executes a registered task immediately, outside its schedule.
func (s *Service) RunNow(ctx context.Context, id string) error {
	s.mu.Lock()
	state, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", id)
	}

	start := time.Now().UTC()
	err := state.task.Run(ctx)

	s.mu.Lock()
	state.lastRun = start
	if err != nil {
		state.lastErr = err.Error()
	} else {
		state.lastErr = ""
	}
	s.mu.Unlock()
	return err
}

// Tasks reports the status of every registered task.
func (s *Service) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, state := range s.tasks {
		status := TaskStatus{
			ID:        state.task.ID,
			Schedule:  state.task.Schedule,
			LastError: state.lastErr,
		}
		if !state.lastRun.IsZero() {
			t := state.lastRun
			status.LastRun = &t
		}
		if s.started {
			if next := s.cron.Entry(state.entry).Next; !next.IsZero() {
				n := next.UTC()
				status.NextRun = &n
			}
		}
		out = append(out, status)
	}
	return out
}

// Name implements system.Service.
func (s *Service) Name() string { return "scheduler" }

// Start begins cron dispatch.
func (s *Service) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	s.started = true
	s.log.WithField("tasks", len(s.tasks)).Info("scheduler started")
	return nil
}

// Stop halts dispatch and waits for in-flight tasks up to the context
// deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
