package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// newRedisStrategy connects to a live Redis and isolates the test in its own
// logical database, flushed before use.
func newRedisStrategy(t *testing.T) *RedisStrategy {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush test db: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStrategy(client)
}

func TestRedisStrategyLifecycle(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]string{"kind": "thumbnail"})
	job, err := s.Add(ctx, Job{Queue: "images", Payload: payload, MaxRetries: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if job.ID == "" || job.State != StatePending {
		t.Fatalf("unexpected added job: %+v", job)
	}

	claimed, ok, err := s.Next(ctx, "images")
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	if claimed.ID != job.ID || claimed.State != StateRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed job: %+v", claimed)
	}

	// Queue is empty while the job is processing.
	if _, ok, err := s.Next(ctx, "images"); err != nil || ok {
		t.Fatalf("expected empty queue, ok=%v err=%v", ok, err)
	}

	claimed.State = StateCompleted
	claimed.Result, _ = json.Marshal(map[string]bool{"done": true})
	if err := s.Update(ctx, claimed); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, err := s.FindByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.State != StateCompleted || got.SettledAt.IsZero() {
		t.Fatalf("expected settled job, got %+v", got)
	}

	if err := s.Update(ctx, got); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled on settled update, got %v", err)
	}
}

func TestRedisStrategyDelayedJob(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	_, err := s.Add(ctx, Job{Queue: "emails", RunAt: time.Now().Add(200 * time.Millisecond)})
	if err != nil {
		t.Fatalf("add delayed: %v", err)
	}

	if _, ok, err := s.Next(ctx, "emails"); err != nil || ok {
		t.Fatalf("delayed job claimed early, ok=%v err=%v", ok, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, err := s.Next(ctx, "emails"); err != nil {
			t.Fatalf("next: %v", err)
		} else if ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("delayed job never became claimable")
}

func TestRedisStrategyCancelAndRequeue(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	job, err := s.Add(ctx, Job{Queue: "tasks", MaxRetries: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cancelled, err := s.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != StateCancelled {
		t.Fatalf("expected cancelled, got %+v", cancelled)
	}
	if _, err := s.Cancel(ctx, job.ID); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled on second cancel, got %v", err)
	}
	if _, ok, err := s.Next(ctx, "tasks"); err != nil || ok {
		t.Fatalf("cancelled job still claimable, ok=%v err=%v", ok, err)
	}

	requeued, err := s.Requeue(ctx, job.ID, 3)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued.State != StatePending || requeued.MaxRetries != 4 {
		t.Fatalf("unexpected requeued job: %+v", requeued)
	}
	if _, ok, err := s.Next(ctx, "tasks"); err != nil || !ok {
		t.Fatalf("requeued job not claimable, ok=%v err=%v", ok, err)
	}
}

func TestRedisStrategyFindManyAndStats(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.Add(ctx, Job{Queue: "bulk", Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if _, err := s.Add(ctx, Job{Queue: "other"}); err != nil {
		t.Fatalf("add other: %v", err)
	}

	jobs, total, err := s.FindMany(ctx, ListOptions{Queue: "bulk", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if total != 5 || len(jobs) != 2 {
		t.Fatalf("expected total 5 page 2, got total %d len %d", total, len(jobs))
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	byName := map[string]QueueStats{}
	for _, st := range stats {
		byName[st.Name] = st
	}
	if byName["bulk"].Pending != 5 || byName["other"].Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRedisStrategyRemoveSettled(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	job, err := s.Add(ctx, Job{Queue: "purge"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	claimed, ok, err := s.Next(ctx, "purge")
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	claimed.State = StateCompleted
	if err := s.Update(ctx, claimed); err != nil {
		t.Fatalf("settle: %v", err)
	}

	removed, err := s.RemoveSettled(ctx, "", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("remove settled: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := s.FindByID(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestRedisStrategyNotifyWakesOnAdd(t *testing.T) {
	s := newRedisStrategy(t)
	ctx := context.Background()

	signal := s.NotifyChannel("images")
	// Give the pub/sub subscription a moment to establish.
	time.Sleep(100 * time.Millisecond)

	payload, _ := json.Marshal(map[string]string{"kind": "thumbnail"})
	if _, err := s.Add(ctx, Job{Queue: "images", Payload: payload}); err != nil {
		t.Fatalf("add: %v", err)
	}

	select {
	case <-signal:
	case <-time.After(2 * time.Second):
		t.Fatal("no wake-up signal after enqueue")
	}

	// Requeue after a failure nudges waiting workers too.
	claimed, ok, err := s.Next(ctx, "images")
	if err != nil || !ok {
		t.Fatalf("next: ok=%v err=%v", ok, err)
	}
	claimed.State = StateFailed
	claimed.Error = "boom"
	if err := s.Update(ctx, claimed); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Requeue(ctx, claimed.ID, 1); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	select {
	case <-signal:
	case <-time.After(2 * time.Second):
		t.Fatal("no wake-up signal after requeue")
	}

	// Repeat calls share the queue's channel.
	if got := s.NotifyChannel("images"); got != signal {
		t.Fatal("second NotifyChannel returned a different channel")
	}
}
