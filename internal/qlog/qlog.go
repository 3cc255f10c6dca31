// Package qlog records one event per served RDAP query for offline
// analytics. Emission is fire-and-forget: the serving path hands events to
// a bounded pipeline and never blocks on, or fails because of, delivery.
package qlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a query ended.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeRedirect Outcome = "redirect"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// Event is one served query.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Outcome    Outcome   `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	ClientIP   string    `json:"client_ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// Publisher accepts events from the serving path. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
func (Nop) Close() error                   { return nil }

// Sink delivers events to their destination. Write may block; the pipeline
// in front of it keeps the serving path decoupled.
type Sink interface {
	Write(ctx context.Context, e Event) error
	Close() error
}

// LogSink writes each event as one structured log line. Used when no broker
// is configured but query history should still land somewhere.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink over the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Write(ctx context.Context, e Event) error {
	l.logger.InfoContext(ctx, "rdap query",
		"id", e.ID,
		"kind", e.Kind,
		"key", e.Key,
		"outcome", string(e.Outcome),
		"duration_ms", e.DurationMS,
		"client_ip", e.ClientIP,
		"user_agent", e.UserAgent,
	)
	return nil
}

func (l *LogSink) Close() error { return nil }
