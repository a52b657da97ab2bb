package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"github.com/shopforge/shopforge/internal/app/domain/email"
	"github.com/shopforge/shopforge/pkg/logger"
)

// Transport delivers one rendered message.
type Transport interface {
	Send(ctx context.Context, m email.Message) error
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPTransport sends through a plain SMTP relay. The standard library
// client is enough here; there is no templating or attachment handling in
// the core pipeline.
type SMTPTransport struct {
	cfg SMTPConfig
}

// NewSMTPTransport validates the relay config.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPTransport{cfg: cfg}, nil
}

func (t *SMTPTransport) Send(_ context.Context, m email.Message) error {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + t.cfg.From,
		"To: " + m.Recipient,
		"Subject: " + m.Subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		m.Body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, t.cfg.From, []string{m.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.Recipient, err)
	}
	return nil
}

// LoggerTransport writes messages to the log instead of sending them. The
// dev default.
type LoggerTransport struct {
	log *logger.Logger
}

func NewLoggerTransport(log *logger.Logger) *LoggerTransport {
	if log == nil {
		log = logger.NewDefault("email")
	}
	return &LoggerTransport{log: log}
}

func (t *LoggerTransport) Send(_ context.Context, m email.Message) error {
	t.log.WithField("to", m.Recipient).
		WithField("type", m.Type).
		WithField("subject", m.Subject).
		Info("email (logger transport)")
	return nil
}

// MemoryTransport collects sent messages for tests.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []email.Message
	fail error
}

func NewMemoryTransport() *MemoryTransport { return &MemoryTransport{} }

// FailWith makes subsequent sends return err. Pass nil to clear.
func (t *MemoryTransport) FailWith(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

func (t *MemoryTransport) Send(_ context.Context, m email.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail != nil {
		return t.fail
	}
	t.sent = append(t.sent, m)
	return nil
}

// Sent returns a copy of the delivered messages.
func (t *MemoryTransport) Sent() []email.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]email.Message, len(t.sent))
	copy(out, t.sent)
	return out
}
