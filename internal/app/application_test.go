package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopforge/shopforge/internal/app/domain/email"
	assetsvc "github.com/shopforge/shopforge/internal/app/services/assets"
	collectionsvc "github.com/shopforge/shopforge/internal/app/services/collections"
	emailsvc "github.com/shopforge/shopforge/internal/app/services/email"
	"github.com/shopforge/shopforge/internal/app/storage/memory"
	"github.com/shopforge/shopforge/internal/jobqueue"
)

func TestBuiltinQueuesInheritDefaultRetries(t *testing.T) {
	application, err := New(Stores{}, Options{
		Queue: jobqueue.Options{DefaultRetries: 3},
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	t.Cleanup(func() { application.Bus.Close() })

	ctx := context.Background()
	for _, name := range []string{collectionsvc.QueueName, assetsvc.QueueName, emailsvc.QueueName} {
		q, ok := application.Jobs.GetQueue(name)
		if !ok {
			t.Fatalf("queue %s not registered", name)
		}
		job, err := q.Add(ctx, map[string]string{"ref": "x"})
		if err != nil {
			t.Fatalf("add to %s: %v", name, err)
		}
		stored, err := application.Jobs.Strategy().FindByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("find job on %s: %v", name, err)
		}
		if stored.MaxRetries != 3 {
			t.Fatalf("queue %s: MaxRetries = %d, want configured default 3", name, stored.MaxRetries)
		}
	}
}

func TestEmailJobRetriesWithConfiguredDefault(t *testing.T) {
	store := memory.New()
	transport := emailsvc.NewMemoryTransport()
	transport.FailWith(errors.New("relay down"))

	application, err := New(Stores{Email: store}, Options{
		EmailTransport: transport,
		Worker:         true,
		Queue: jobqueue.Options{
			PollInterval:   10 * time.Millisecond,
			DefaultRetries: 2,
			BackoffBase:    5 * time.Millisecond,
			BackoffCap:     10 * time.Millisecond,
			DrainTimeout:   100 * time.Millisecond,
		},
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { application.Stop(ctx) })

	m, err := store.CreateMessage(ctx, email.Message{
		Type:      "ping",
		Recipient: "buyer@example.com",
		Subject:   "ping",
		Body:      "pong",
		State:     email.StatePending,
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	q, ok := application.Jobs.GetQueue(emailsvc.QueueName)
	if !ok {
		t.Fatal("send-email queue not registered")
	}
	job, err := q.Add(ctx, emailsvc.SendPayload{MessageID: m.ID})
	if err != nil {
		t.Fatalf("enqueue delivery: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var stored jobqueue.Job
	for {
		stored, err = application.Jobs.Strategy().FindByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("find job: %v", err)
		}
		if stored.IsSettled() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never settled, state = %s", stored.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if stored.State != jobqueue.StateFailed {
		t.Fatalf("state = %s, want failed", stored.State)
	}
	if stored.MaxRetries != 2 {
		t.Fatalf("MaxRetries = %d, want configured default 2", stored.MaxRetries)
	}
	if stored.Attempts != 3 {
		t.Fatalf("attempts = %d, want initial run plus 2 retries", stored.Attempts)
	}
}
