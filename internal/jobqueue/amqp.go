package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPStrategy layers push dispatch over an inner bookkeeping strategy. Job
// records live in the inner strategy so inspection and retry work as usual;
// the broker carries wake-up signals, so workers dispatch as soon as a job is
// published instead of waiting for a poll tick.
type AMQPStrategy struct {
	inner    Strategy
	exchange string

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	consumers map[string]chan struct{}
	closed    bool
}

var _ Strategy = (*AMQPStrategy)(nil)
var _ Notifier = (*AMQPStrategy)(nil)

// NewAMQPStrategy dials the broker and wraps the inner strategy. When inner
// is nil an in-memory strategy is used. A non-empty exchange routes signals
// through a durable direct exchange; empty uses the default exchange.
func NewAMQPStrategy(url, exchange string, inner Strategy) (*AMQPStrategy, error) {
	if inner == nil {
		inner = NewMemoryStrategy()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	return &AMQPStrategy{
		inner:     inner,
		exchange:  exchange,
		conn:      conn,
		ch:        ch,
		consumers: make(map[string]chan struct{}),
	}, nil
}

func amqpQueueName(queue string) string { return "shopforge.jobs." + queue }

func (s *AMQPStrategy) declare(queue string) error {
	name := amqpQueueName(queue)
	if _, err := s.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if s.exchange != "" {
		if err := s.ch.QueueBind(name, name, s.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

func (s *AMQPStrategy) publish(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("amqp strategy closed")
	}
	if err := s.declare(job.Queue); err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, s.exchange, amqpQueueName(job.Queue), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(job.ID),
	})
}

// NotifyChannel implements Notifier. The first call per queue starts a
// broker consumer whose deliveries are collapsed into wake-up signals.
func (s *AMQPStrategy) NotifyChannel(queue string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.consumers[queue]; ok {
		return ch
	}
	signal := make(chan struct{}, 1)
	s.consumers[queue] = signal

	if err := s.declare(queue); err != nil {
		// Workers fall back to polling the inner strategy.
		return signal
	}
	deliveries, err := s.ch.Consume(amqpQueueName(queue), "", false, false, false, false, nil)
	if err != nil {
		return signal
	}

	go func() {
		for d := range deliveries {
			select {
			case signal <- struct{}{}:
			default:
			}
			_ = d.Ack(false)
		}
	}()
	return signal
}

func (s *AMQPStrategy) Add(ctx context.Context, job Job) (Job, error) {
	stored, err := s.inner.Add(ctx, job)
	if err != nil {
		return Job{}, err
	}
	if err := s.publish(ctx, stored); err != nil {
		return Job{}, fmt.Errorf("publish job signal: %w", err)
	}
	return stored, nil
}

func (s *AMQPStrategy) Next(ctx context.Context, queue string) (Job, bool, error) {
	return s.inner.Next(ctx, queue)
}

func (s *AMQPStrategy) Update(ctx context.Context, job Job) error {
	if err := s.inner.Update(ctx, job); err != nil {
		return err
	}
	// A job returned to pending (retry backoff) needs a fresh signal once
	// it becomes due. Delayed retries are cheap enough to re-publish
	// immediately; workers re-check eligibility before claiming.
	if job.State == StatePending {
		if err := s.publish(ctx, job); err != nil {
			return fmt.Errorf("publish retry signal: %w", err)
		}
	}
	return nil
}

func (s *AMQPStrategy) FindByID(ctx context.Context, id string) (Job, error) {
	return s.inner.FindByID(ctx, id)
}

func (s *AMQPStrategy) FindMany(ctx context.Context, opts ListOptions) ([]Job, int, error) {
	return s.inner.FindMany(ctx, opts)
}

func (s *AMQPStrategy) Cancel(ctx context.Context, id string) (Job, error) {
	return s.inner.Cancel(ctx, id)
}

func (s *AMQPStrategy) Requeue(ctx context.Context, id string, extraRetries int) (Job, error) {
	job, err := s.inner.Requeue(ctx, id, extraRetries)
	if err != nil {
		return Job{}, err
	}
	if err := s.publish(ctx, job); err != nil {
		return Job{}, fmt.Errorf("publish requeue signal: %w", err)
	}
	return job, nil
}

func (s *AMQPStrategy) RemoveSettled(ctx context.Context, queue string, olderThan time.Time) (int, error) {
	return s.inner.RemoveSettled(ctx, queue, olderThan)
}

func (s *AMQPStrategy) Stats(ctx context.Context) ([]QueueStats, error) {
	return s.inner.Stats(ctx)
}

// Close shuts down the broker connection. Pending bookkeeping stays in the
// inner strategy.
func (s *AMQPStrategy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.ch.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
