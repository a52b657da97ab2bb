package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingTypes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(ProductCreated, ProductDeleted)
	defer cancel()

	bus.Publish(New(ProductCreated, "product", "p1", map[string]any{"slug": "mug"}))
	bus.Publish(New(VariantCreated, "variant", "v1", nil))
	bus.Publish(New(ProductDeleted, "product", "p1", nil))

	first := <-ch
	if first.Type != ProductCreated || first.EntityID != "p1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := <-ch
	if second.Type != ProductDeleted {
		t.Fatalf("expected deletion event, got %+v", second)
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event past filter: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllTypes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// No type arguments means every event.
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(New(AssetCreated, "asset", "a1", nil))
	bus.Publish(New(JobCompleted, "job", "j1", nil))

	if evt := <-ch; evt.Type != AssetCreated {
		t.Fatalf("expected asset event, got %+v", evt)
	}
	if evt := <-ch; evt.Type != JobCompleted {
		t.Fatalf("expected job event, got %+v", evt)
	}
}

func TestSubscribeFunc(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{})
	cancel := bus.SubscribeFunc(func(evt Event) {
		mu.Lock()
		got = append(got, evt)
		mu.Unlock()
		close(done)
	}, CustomerRegistered)
	defer cancel()

	bus.Publish(New(CustomerRegistered, "customer", "c1", map[string]any{"email": "a@b.c"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].EntityID != "c1" {
		t.Fatalf("unexpected handler events: %+v", got)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(ProductCreated)
	cancel()

	bus.Publish(New(ProductCreated, "product", "p1", nil))

	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("received event after cancel: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDroppedCounter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// A subscriber that never reads fills its buffer, after which publishes
	// to it are counted as dropped rather than blocking.
	_, cancel := bus.Subscribe(ProductCreated)
	defer cancel()

	for i := 0; i < defaultBuffer+10; i++ {
		bus.Publish(New(ProductCreated, "product", "p", nil))
	}
	if bus.Dropped() == 0 {
		t.Fatalf("expected dropped events with a stalled subscriber")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(ProductCreated)
	defer cancel()

	bus.Close()
	bus.Publish(New(ProductCreated, "product", "p1", nil))

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed subscriber channel")
	}
}

func TestDropHookReceivesRunningTotal(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var last uint64
	bus.SetDropHook(func(total uint64) {
		mu.Lock()
		last = total
		mu.Unlock()
	})

	_, cancel := bus.Subscribe(ProductCreated)
	defer cancel()

	for i := 0; i < defaultBuffer+5; i++ {
		bus.Publish(New(ProductCreated, "product", "p1", nil))
	}

	mu.Lock()
	got := last
	mu.Unlock()
	if got == 0 {
		t.Fatal("hook never invoked")
	}
	if got != bus.Dropped() {
		t.Fatalf("hook total = %d, dropped = %d", got, bus.Dropped())
	}
}
