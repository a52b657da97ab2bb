package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisPrefix = "jobq"

// RedisStrategy persists jobs in Redis. Pending job IDs live on a per-queue
// list; claims use RPOPLPUSH so an ID is handed to exactly one worker.
// Delayed jobs wait in a sorted set keyed by their run-at time. Enqueues
// PUBLISH a wake-up nudge so workers subscribed via NotifyChannel dispatch
// without waiting for a poll tick.
type RedisStrategy struct {
	client *redis.Client

	mu        sync.Mutex
	notifiers map[string]chan struct{}
}

var _ Strategy = (*RedisStrategy)(nil)
var _ Notifier = (*RedisStrategy)(nil)

// NewRedisStrategy wraps an existing Redis client.
func NewRedisStrategy(client *redis.Client) *RedisStrategy {
	return &RedisStrategy{
		client:    client,
		notifiers: make(map[string]chan struct{}),
	}
}

func jobKey(id string) string          { return redisPrefix + ":job:" + id }
func pendingKey(queue string) string   { return redisPrefix + ":queue:" + queue + ":pending" }
func processKey(queue string) string   { return redisPrefix + ":queue:" + queue + ":processing" }
func delayedKey(queue string) string   { return redisPrefix + ":queue:" + queue + ":delayed" }
func queueJobsKey(queue string) string { return redisPrefix + ":queue:" + queue + ":jobs" }
func notifyKey(queue string) string    { return redisPrefix + ":queue:" + queue + ":notify" }
func queuesKey() string                { return redisPrefix + ":queues" }

// NotifyChannel implements Notifier. The first call per queue subscribes to
// the queue's notify channel and collapses published nudges into wake-up
// signals.
func (s *RedisStrategy) NotifyChannel(queue string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.notifiers[queue]; ok {
		return ch
	}
	signal := make(chan struct{}, 1)
	s.notifiers[queue] = signal

	sub := s.client.Subscribe(context.Background(), notifyKey(queue))
	go func() {
		// Channel closes when the client is closed; workers fall back to
		// their poll ticker from then on.
		for range sub.Channel() {
			select {
			case signal <- struct{}{}:
			default:
			}
		}
	}()
	return signal
}

func (s *RedisStrategy) nudge(ctx context.Context, queue string) {
	// Best effort; the poll ticker covers a lost nudge.
	s.client.Publish(ctx, notifyKey(queue), "1")
}

func (s *RedisStrategy) saveJob(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return s.client.Set(ctx, jobKey(job.ID), data, 0).Err()
}

func (s *RedisStrategy) loadJob(ctx context.Context, id string) (Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func (s *RedisStrategy) Add(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.State = StatePending
	job.CreatedAt = now
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	if err := s.saveJob(ctx, job); err != nil {
		return Job{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, queuesKey(), job.Queue)
	pipe.SAdd(ctx, queueJobsKey(job.Queue), job.ID)
	if job.RunAt.After(now) {
		pipe.ZAdd(ctx, delayedKey(job.Queue), &redis.Z{Score: float64(job.RunAt.Unix()), Member: job.ID})
	} else {
		pipe.LPush(ctx, pendingKey(job.Queue), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	if !job.RunAt.After(now) {
		s.nudge(ctx, job.Queue)
	}
	return job, nil
}

// promoteDue moves delayed jobs whose run-at time has passed onto the
// pending list.
func (s *RedisStrategy) promoteDue(ctx context.Context, queue string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	ids, err := s.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, delayedKey(queue), id)
		pipe.LPush(ctx, pendingKey(queue), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStrategy) Next(ctx context.Context, queue string) (Job, bool, error) {
	if err := s.promoteDue(ctx, queue); err != nil {
		return Job{}, false, err
	}

	for {
		id, err := s.client.RPopLPush(ctx, pendingKey(queue), processKey(queue)).Result()
		if errors.Is(err, redis.Nil) {
			return Job{}, false, nil
		}
		if err != nil {
			return Job{}, false, fmt.Errorf("claim job: %w", err)
		}

		job, err := s.loadJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Purged while queued; drop the stale ID.
			s.client.LRem(ctx, processKey(queue), 0, id)
			continue
		}
		if err != nil {
			return Job{}, false, err
		}

		now := time.Now().UTC()
		switch {
		case job.State != StatePending:
			// Cancelled while queued.
			s.client.LRem(ctx, processKey(queue), 0, id)
			continue
		case job.RunAt.After(now):
			pipe := s.client.TxPipeline()
			pipe.LRem(ctx, processKey(queue), 0, id)
			pipe.ZAdd(ctx, delayedKey(queue), &redis.Z{Score: float64(job.RunAt.Unix()), Member: id})
			if _, err := pipe.Exec(ctx); err != nil {
				return Job{}, false, err
			}
			continue
		}

		job.State = StateRunning
		job.Attempts++
		job.StartedAt = now
		if err := s.saveJob(ctx, job); err != nil {
			return Job{}, false, err
		}
		return job, true, nil
	}
}

func (s *RedisStrategy) Update(ctx context.Context, job Job) error {
	stored, err := s.loadJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if stored.IsSettled() {
		return ErrAlreadySettled
	}

	job.CreatedAt = stored.CreatedAt
	if job.IsSettled() && job.SettledAt.IsZero() {
		job.SettledAt = time.Now().UTC()
	}
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	due := job.State == StatePending && !job.RunAt.After(time.Now().UTC())
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, processKey(job.Queue), 0, job.ID)
	if job.State == StatePending {
		if due {
			pipe.LPush(ctx, pendingKey(job.Queue), job.ID)
		} else {
			pipe.ZAdd(ctx, delayedKey(job.Queue), &redis.Z{Score: float64(job.RunAt.Unix()), Member: job.ID})
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if due {
		s.nudge(ctx, job.Queue)
	}
	return nil
}

func (s *RedisStrategy) FindByID(ctx context.Context, id string) (Job, error) {
	return s.loadJob(ctx, id)
}

func (s *RedisStrategy) queueNames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, queuesKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStrategy) jobsForQueue(ctx context.Context, queue string) ([]Job, error) {
	ids, err := s.client.SMembers(ctx, queueJobsKey(queue)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.loadJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.client.SRem(ctx, queueJobsKey(queue), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *RedisStrategy) FindMany(ctx context.Context, opts ListOptions) ([]Job, int, error) {
	queues := []string{opts.Queue}
	if opts.Queue == "" {
		var err error
		queues, err = s.queueNames(ctx)
		if err != nil {
			return nil, 0, err
		}
	}

	states := make(map[State]bool, len(opts.States))
	for _, st := range opts.States {
		states[st] = true
	}

	var matched []Job
	for _, queue := range queues {
		jobs, err := s.jobsForQueue(ctx, queue)
		if err != nil {
			return nil, 0, err
		}
		for _, job := range jobs {
			if len(states) > 0 && !states[job.State] {
				continue
			}
			matched = append(matched, job)
		}
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

func (s *RedisStrategy) Cancel(ctx context.Context, id string) (Job, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.IsSettled() {
		return Job{}, ErrAlreadySettled
	}

	job.State = StateCancelled
	job.SettledAt = time.Now().UTC()
	if err := s.saveJob(ctx, job); err != nil {
		return Job{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, pendingKey(job.Queue), 0, id)
	pipe.LRem(ctx, processKey(job.Queue), 0, id)
	pipe.ZRem(ctx, delayedKey(job.Queue), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *RedisStrategy) Requeue(ctx context.Context, id string, extraRetries int) (Job, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return Job{}, err
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
	if err := s.saveJob(ctx, job); err != nil {
		return Job{}, err
	}
	if err := s.client.LPush(ctx, pendingKey(job.Queue), job.ID).Err(); err != nil {
		return Job{}, err
	}
	s.nudge(ctx, job.Queue)
	return job, nil
}

func (s *RedisStrategy) RemoveSettled(ctx context.Context, queue string, olderThan time.Time) (int, error) {
	queues := []string{queue}
	if queue == "" {
		var err error
		queues, err = s.queueNames(ctx)
		if err != nil {
			return 0, err
		}
	}

	removed := 0
	for _, name := range queues {
		jobs, err := s.jobsForQueue(ctx, name)
		if err != nil {
			return removed, err
		}
		for _, job := range jobs {
			if !job.IsSettled() || job.SettledAt.After(olderThan) {
				continue
			}
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, jobKey(job.ID))
			pipe.SRem(ctx, queueJobsKey(name), job.ID)
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *RedisStrategy) Stats(ctx context.Context) ([]QueueStats, error) {
	queues, err := s.queueNames(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]QueueStats, 0, len(queues))
	for _, name := range queues {
		jobs, err := s.jobsForQueue(ctx, name)
		if err != nil {
			return nil, err
		}
		stats := QueueStats{Name: name}
		for _, job := range jobs {
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
		out = append(out, stats)
	}
	return out, nil
}
