package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Context keys recognized by WithContext. Orchestration code stores these
// so every log line within an attempt carries the same correlation fields.
type contextKey string

const (
	ContextKeyAppID       contextKey = "app_id"
	ContextKeyAttemptID   contextKey = "attempt_id"
	ContextKeyEnvironment contextKey = "environment"
	ContextKeyRequestID   contextKey = "request_id"
)

// Logger wraps logrus for structured logging with context support
type Logger struct {
	*logrus.Entry
}

// New creates a new logger
func New() *Logger {
	return &Logger{
		Entry: logrus.NewEntry(logrus.StandardLogger()),
	}
}

// WithContext creates a logger carrying the deployment correlation fields
// present on the context (app id, attempt id, environment, request id).
func WithContext(ctx context.Context) *Logger {
	logger := New()

	for _, key := range []contextKey{ContextKeyAppID, ContextKeyAttemptID, ContextKeyEnvironment, ContextKeyRequestID} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			logger.Entry = logger.Entry.WithField(string(key), v)
		}
	}

	return logger
}

// ContextWith returns a child context carrying a correlation field for
// WithContext to pick up.
func ContextWith(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		Entry: l.Entry.WithField(key, value),
	}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		Entry: l.Entry.WithFields(fields),
	}
}

// Debug logs a debug message (only shown when LOG_LEVEL=debug)
func (l *Logger) Debug(args ...interface{}) {
	l.Entry.Debug(args...)
}

// Debugf logs a formatted debug message (only shown when LOG_LEVEL=debug)
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Entry.Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(args ...interface{}) {
	l.Entry.Info(args...)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(args ...interface{}) {
	l.Entry.Warn(args...)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(args ...interface{}) {
	l.Entry.Error(args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Entry.Errorf(format, args...)
}
