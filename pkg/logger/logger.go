// Package logger provides structured logging for the application, backed by
// logrus. Services receive a *Logger and attach contextual fields as needed.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or "file"
	FilePrefix string
}

// Logger wraps a logrus logger with a component name.
type Logger struct {
	l    *logrus.Logger
	name string
}

// Entry is a logger with accumulated fields.
type Entry struct {
	e *logrus.Entry
}

// New builds a logger from config.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(resolveOutput(cfg))
	return &Logger{l: l}
}

// NewDefault returns an info-level text logger tagged with a component name.
func NewDefault(name string) *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{l: l, name: name}
}

// Named returns a copy of the logger with a different component name.
func (log *Logger) Named(name string) *Logger {
	if log == nil {
		return NewDefault(name)
	}
	return &Logger{l: log.l, name: name}
}

// SetOutput redirects log output. Used by tests.
func (log *Logger) SetOutput(w io.Writer) {
	log.l.SetOutput(w)
}

func (log *Logger) entry() *logrus.Entry {
	if log.name == "" {
		return logrus.NewEntry(log.l)
	}
	return log.l.WithField("component", log.name)
}

// WithField returns an entry with a single field attached.
func (log *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{e: log.entry().WithField(key, value)}
}

// WithFields returns an entry with several fields attached.
func (log *Logger) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{e: log.entry().WithFields(logrus.Fields(fields))}
}

// WithError returns an entry with the error attached.
func (log *Logger) WithError(err error) *Entry {
	return &Entry{e: log.entry().WithError(err)}
}

func (log *Logger) Debug(args ...interface{}) { log.entry().Debug(args...) }
func (log *Logger) Info(args ...interface{})  { log.entry().Info(args...) }
func (log *Logger) Warn(args ...interface{})  { log.entry().Warn(args...) }
func (log *Logger) Error(args ...interface{}) { log.entry().Error(args...) }
func (log *Logger) Fatal(args ...interface{}) { log.entry().Fatal(args...) }

func (log *Logger) Debugf(format string, args ...interface{}) { log.entry().Debugf(format, args...) }
func (log *Logger) Infof(format string, args ...interface{})  { log.entry().Infof(format, args...) }
func (log *Logger) Warnf(format string, args ...interface{})  { log.entry().Warnf(format, args...) }
func (log *Logger) Errorf(format string, args ...interface{}) { log.entry().Errorf(format, args...) }

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{e: e.e.WithField(key, value)}
}

func (e *Entry) WithFields(fields map[string]interface{}) *Entry {
	return &Entry{e: e.e.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{e: e.e.WithError(err)}
}

func (e *Entry) Debug(args ...interface{}) { e.e.Debug(args...) }
func (e *Entry) Info(args ...interface{})  { e.e.Info(args...) }
func (e *Entry) Warn(args ...interface{})  { e.e.Warn(args...) }
func (e *Entry) Error(args ...interface{}) { e.e.Error(args...) }

func (e *Entry) Debugf(format string, args ...interface{}) { e.e.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...interface{})  { e.e.Infof(format, args...) }
func (e *Entry) Warnf(format string, args ...interface{})  { e.e.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...interface{}) { e.e.Errorf(format, args...) }

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "shopforge"
		}
		name := prefix + "-" + time.Now().UTC().Format("20060102") + ".log"
		if dir := filepath.Dir(name); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}
