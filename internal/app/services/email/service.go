package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopforge/shopforge/internal/app/domain/email"
	"github.com/shopforge/shopforge/internal/app/metrics"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// QueueName is the job queue delivering messages.
const QueueName = "send-email"

// SendPayload is the delivery job payload.
type SendPayload struct {
	MessageID string `json:"message_id"`
}

// Service turns bus events into persisted messages and delivers them
// through the transport via the job queue, inheriting its retry semantics.
type Service struct {
	store     storage.EmailStore
	transport Transport
	bus       *events.Bus
	log       *logger.Logger
	listeners []Listener

	queue *jobqueue.Queue
}

// New creates a configured email service. A nil transport falls back to the
// logger transport.
func New(store storage.EmailStore, transport Transport, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("email")
	}
	if transport == nil {
		transport = NewLoggerTransport(log)
	}
	return &Service{
		store:     store,
		transport: transport,
		bus:       bus,
		log:       log,
	}
}

// RegisterListener adds a listener. Call before Subscribe.
func (s *Service) RegisterListener(l Listener) error {
	if strings.TrimSpace(l.Type) == "" {
		return fmt.Errorf("listener type is required")
	}
	if l.Event == "" {
		return fmt.Errorf("listener event is required")
	}
	if l.Recipient == nil || l.Subject == nil || l.Body == nil {
		return fmt.Errorf("listener %s: recipient, subject and body are required", l.Type)
	}
	s.listeners = append(s.listeners, l)
	return nil
}

// AttachQueue binds the delivery queue. The queue's process func must be
// ProcessSendJob.
func (s *Service) AttachQueue(q *jobqueue.Queue) { s.queue = q }

// Subscribe wires every registered listener to the bus.
func (s *Service) Subscribe() {
	if s.bus == nil {
		return
	}
	for _, l := range s.listeners {
		listener := l
		s.bus.SubscribeFunc(func(evt events.Event) {
			s.handleEvent(listener, evt)
		}, listener.Event)
	}
}

func (s *Service) handleEvent(l Listener, evt events.Event) {
	if l.Filter != nil && !l.Filter(evt) {
		return
	}
	recipient := strings.TrimSpace(l.Recipient(evt))
	if recipient == "" {
		return
	}

	ctx := context.Background()
	m, err := s.store.CreateMessage(ctx, email.Message{
		Type:      l.Type,
		Recipient: recipient,
		Subject:   l.Subject(evt),
		Body:      l.Body(evt),
		State:     email.StatePending,
	})
	if err != nil {
		s.log.WithError(err).WithField("type", l.Type).Error("persist message failed")
		return
	}

	if s.queue == nil {
		s.log.WithField("message_id", m.ID).Warn("no delivery queue attached; message stays pending")
		return
	}
	if _, err := s.queue.Add(ctx, SendPayload{MessageID: m.ID}); err != nil {
		s.log.WithError(err).WithField("message_id", m.ID).Error("enqueue delivery failed")
	}
}

// ProcessSendJob delivers one message. Queue processor for QueueName; a
// transport failure marks the message failed and returns the error so the
// queue retries.
func (s *Service) ProcessSendJob(ctx context.Context, job *jobqueue.ActiveJob) (any, error) {
	var payload SendPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return nil, err
	}

	m, err := s.store.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return nil, err
	}
	if m.State == email.StateSent {
		return map[string]string{"state": string(m.State)}, nil
	}

	m.Attempts++
	if sendErr := s.transport.Send(ctx, m); sendErr != nil {
		metrics.RecordEmailSend(false)
		m.State = email.StateFailed
		m.LastError = sendErr.Error()
		if _, err := s.store.UpdateMessage(ctx, m); err != nil {
			s.log.WithError(err).WithField("message_id", m.ID).Error("persist failed message failed")
		}
		return nil, sendErr
	}

	metrics.RecordEmailSend(true)
	m.State = email.StateSent
	m.LastError = ""
	if _, err := s.store.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.log.WithField("message_id", m.ID).
		WithField("to", m.Recipient).
		WithField("type", m.Type).
		Debug("email delivered")
	return map[string]string{"state": string(email.StateSent)}, nil
}

// Messages lists persisted messages for introspection.
func (s *Service) Messages(ctx context.Context, state email.State, since time.Time) ([]email.Message, error) {
	return s.store.ListMessages(ctx, state, since)
}
