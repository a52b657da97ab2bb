package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/pkg/logger"
)

// Options tunes the queue service.
type Options struct {
	PollInterval   time.Duration
	DefaultRetries int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	DrainTimeout   time.Duration
}

func (o Options) normalized() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.DefaultRetries < 0 {
		o.DefaultRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffCap < o.BackoffBase {
		o.BackoffCap = time.Minute
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 20 * time.Second
	}
	return o
}

// ProcessFunc handles one claimed job. Returning nil settles the job as
// completed with the returned value marshalled into its result. Returning an
// error triggers retry with backoff until the job's retry budget runs out.
type ProcessFunc func(ctx context.Context, job *ActiveJob) (any, error)

// QueueOptions configures one named queue.
type QueueOptions struct {
	// Workers is the number of concurrent workers for this queue.
	// Defaults to 1.
	Workers int
	// MaxRetries overrides the service default for jobs added without an
	// explicit retry budget. Negative means "use the service default".
	MaxRetries int
}

// Queue is a named job queue bound to a process function.
type Queue struct {
	name       string
	svc        *Service
	process    ProcessFunc
	workers    int
	maxRetries int
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// AddOptions tunes a single Add call.
type AddOptions struct {
	// RunAt delays the job until the given instant.
	RunAt time.Time
	// MaxRetries overrides the queue's retry budget. Negative means
	// "use the queue default".
	MaxRetries int
}

// Add enqueues a payload with queue defaults.
func (q *Queue) Add(ctx context.Context, payload any) (Job, error) {
	return q.AddWithOptions(ctx, payload, AddOptions{MaxRetries: -1})
}

// AddWithOptions enqueues a payload.
func (q *Queue) AddWithOptions(ctx context.Context, payload any, opts AddOptions) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	retries := opts.MaxRetries
	if retries < 0 {
		retries = q.maxRetries
	}

	job := Job{
		Queue:      q.name,
		Payload:    raw,
		MaxRetries: retries,
		RunAt:      opts.RunAt,
	}
	job, err = q.svc.strategy.Add(ctx, job)
	if err != nil {
		return Job{}, err
	}
	q.svc.recordAdded(q.name)
	return job, nil
}

// Service owns the persistence strategy and the worker pools for all queues.
// It implements system.Service.
type Service struct {
	strategy Strategy
	bus      *events.Bus
	log      *logger.Logger
	opts     Options

	mu         sync.Mutex
	queues     map[string]*Queue
	running    map[string]context.CancelFunc
	started    bool
	acceptCtx  context.Context
	hardCtx    context.Context
	acceptStop context.CancelFunc
	hardStop   context.CancelFunc
	wg         sync.WaitGroup

	// onAdded is a metrics hook; nil-safe.
	onAdded func(queue string)
	// onSettled is a metrics hook; nil-safe.
	onSettled func(queue, result string, duration time.Duration)
}

// NewService builds a queue service on the given strategy.
func NewService(strategy Strategy, bus *events.Bus, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewDefault("jobqueue")
	}
	return &Service{
		strategy: strategy,
		bus:      bus,
		log:      log,
		opts:     opts.normalized(),
		queues:   make(map[string]*Queue),
		running:  make(map[string]context.CancelFunc),
	}
}

// SetHooks installs metrics callbacks. Call before Start.
func (s *Service) SetHooks(onAdded func(queue string), onSettled func(queue, result string, duration time.Duration)) {
	s.onAdded = onAdded
	s.onSettled = onSettled
}

func (s *Service) recordAdded(queue string) {
	if s.onAdded != nil {
		s.onAdded(queue)
	}
}

func (s *Service) recordSettled(queue, result string, duration time.Duration) {
	if s.onSettled != nil {
		s.onSettled(queue, result, duration)
	}
}

// Strategy exposes the underlying strategy for introspection endpoints.
func (s *Service) Strategy() Strategy { return s.strategy }

// CreateQueue registers a named queue with its process function. Creating a
// queue on a started service spawns its workers immediately.
func (s *Service) CreateQueue(name string, opts QueueOptions, process ProcessFunc) (*Queue, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if process == nil {
		return nil, fmt.Errorf("queue %s: process func is required", name)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = s.opts.DefaultRetries
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queues[name]; exists {
		return nil, fmt.Errorf("queue %s already exists", name)
	}
	q := &Queue{
		name:       name,
		svc:        s,
		process:    process,
		workers:    opts.Workers,
		maxRetries: retries,
	}
	s.queues[name] = q

	if s.started {
		s.spawnLocked(q)
	}
	return q, nil
}

// GetQueue returns a registered queue.
func (s *Service) GetQueue(name string) (*Queue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[name]
	return q, ok
}

// Name implements system.Service.
func (s *Service) Name() string { return "job-queue" }

// Start spawns workers for all registered queues.
func (s *Service) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("job queue already started")
	}
	acceptCtx, acceptCancel := context.WithCancel(context.Background())
	hardCtx, hardCancel := context.WithCancel(context.Background())
	s.acceptCtx = acceptCtx
	s.hardCtx = hardCtx
	s.acceptStop = acceptCancel
	s.hardStop = hardCancel
	s.started = true

	for _, q := range s.queues {
		s.spawnLocked(q)
	}
	return nil
}

func (s *Service) spawnLocked(q *Queue) {
	for i := 0; i < q.workers; i++ {
		s.wg.Add(1)
		go s.worker(q)
	}
	s.log.WithField("queue", q.name).
		WithField("workers", q.workers).
		Info("queue workers started")
}

// Stop drains in-flight jobs up to the drain timeout, then cancels whatever
// is still running. Jobs interrupted by the hard cancel return to pending.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	acceptStop := s.acceptStop
	hardStop := s.hardStop
	s.mu.Unlock()

	acceptStop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	drain := time.NewTimer(s.opts.DrainTimeout)
	defer drain.Stop()

	select {
	case <-done:
		hardStop()
		return nil
	case <-drain.C:
	case <-ctx.Done():
	}

	hardStop()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("job queue workers did not exit")
	}
}

// CancelJob settles a pending job as cancelled, or interrupts it when it is
// running on this process.
func (s *Service) CancelJob(ctx context.Context, id string) (Job, error) {
	job, err := s.strategy.Cancel(ctx, id)
	if err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return job, nil
}

// RetryJob returns a failed or cancelled job to pending with a fresh retry
// budget grant.
func (s *Service) RetryJob(ctx context.Context, id string, extraRetries int) (Job, error) {
	if extraRetries <= 0 {
		extraRetries = s.opts.DefaultRetries
	}
	return s.strategy.Requeue(ctx, id, extraRetries)
}

func (s *Service) trackRunning(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()
}

func (s *Service) untrackRunning(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}
