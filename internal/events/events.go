// Package events provides the in-process event bus connecting entity
// mutations to background behavior such as collection rebuilds and email
// notifications.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event.
type Type string

const (
	// Catalog events
	ProductCreated      Type = "product.created"
	ProductUpdated      Type = "product.updated"
	ProductDeleted      Type = "product.deleted"
	VariantCreated      Type = "variant.created"
	VariantUpdated      Type = "variant.updated"
	VariantStockChanged Type = "variant.stock_changed"

	// Collection events
	CollectionModified Type = "collection.modified"
	CollectionRebuilt  Type = "collection.rebuilt"

	// Asset events
	AssetCreated Type = "asset.created"
	AssetDeleted Type = "asset.deleted"

	// Customer events
	CustomerRegistered             Type = "customer.registered"
	CustomerVerified               Type = "customer.verified"
	CustomerPasswordResetRequested Type = "customer.password_reset_requested"

	// Order events. The order workflow itself lives in plugins; the core
	// defines the type so email listeners can bind to it.
	OrderPlaced Type = "order.placed"

	// Job events
	JobCompleted Type = "job.completed"
	JobFailed    Type = "job.failed"
)

// Event is a single occurrence published on the bus.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Entity    string         `json:"entity,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event with ID and timestamp populated.
func New(t Type, entity, entityID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Entity:    entity,
		EntityID:  entityID,
		Payload:   payload,
	}
}

const defaultBuffer = 256

type subscriber struct {
	ch    chan Event
	types map[Type]bool
	once  sync.Once
}

// closeOnce guards against the channel being closed by both cancel and
// Bus.Close.
func (s *subscriber) closeOnce() {
	s.once.Do(func() { close(s.ch) })
}

func (s *subscriber) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	return s.types[t]
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full loses the event, and the loss is counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	dropped     atomic.Uint64
	closed      bool

	// onDrop receives the running drop total; nil-safe.
	onDrop func(total uint64)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Publish delivers the event to every subscriber interested in its type.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			total := b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(total)
			}
		}
	}
}

// Subscribe registers interest in the given event types (all types when
// empty). The returned cancel func must be called to release the
// subscription; the channel is closed on cancel.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	sub := &subscriber{
		ch:    make(chan Event, defaultBuffer),
		types: make(map[Type]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
		sub.closeOnce()
	}
	return sub.ch, cancel
}

// SubscribeFunc runs the handler on its own goroutine for every matching
// event until cancel is called.
func (b *Bus) SubscribeFunc(handler func(Event), types ...Type) func() {
	ch, cancel := b.Subscribe(types...)
	go func() {
		for evt := range ch {
			handler(evt)
		}
	}()
	return cancel
}

// SetDropHook installs a callback invoked with the running drop total each
// time an event is lost. Call before the bus is shared.
func (b *Bus) SetDropHook(fn func(total uint64)) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Dropped reports how many events were lost to slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops delivery and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		sub.closeOnce()
	}
}
