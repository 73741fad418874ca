package audit

import (
	"context"

	"github.com/leasehold/leasehold/pkg/contextkeys"
)

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok && logger != nil {
		return logger
	}
	return NoopLogger{}
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Recorder collects events in memory. It is meant for tests.
type Recorder struct {
	Events []*Event
}

func (r *Recorder) Log(ctx context.Context, event *Event) error {
	r.Events = append(r.Events, event)
	return nil
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []EventType {
	types := make([]EventType, 0, len(r.Events))
	for _, e := range r.Events {
		types = append(types, e.Type)
	}
	return types
}
