// Package events delivers engine events to sinks.
//
// Sinks are fire-and-forget from the engine's point of view: callers log a
// failed Emit and carry on. FanOut delivers to every sink and joins errors.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// Event names
const (
	ReconciliationCompleted  = "reconciliation.completed"
	BankConnected            = "bank.connected"
	BankTransactionsImported = "bank.transactions_imported"
	RuleMatched              = "rule.matched"
	JournalPosted            = "journal.posted"
)

// Event is a named, organization-scoped notification
type Event struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// New builds an event with a fresh id
func New(org ledger.OrganizationContext, name string, payload map[string]any) Event {
	return Event{
		ID:             uuid.NewString(),
		OrganizationID: org.OrganizationID,
		Name:           name,
		Payload:        payload,
		OccurredAt:     time.Now().UTC(),
	}
}

// Sink receives events
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Nop discards events
type Nop struct{}

// Emit implements Sink
func (Nop) Emit(context.Context, Event) error { return nil }

// LogSink writes events to a logger
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink; a nil logger uses slog.Default()
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit implements Sink
func (s *LogSink) Emit(_ context.Context, event Event) error {
	attrs := []any{
		"event_id", event.ID,
		"organization_id", event.OrganizationID,
	}
	for k, v := range event.Payload {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.Info("event "+event.Name, attrs...)
	return nil
}

// StoreSink persists events to the audit table
type StoreSink struct {
	repo storage.EventRepository
}

// NewStoreSink creates a StoreSink
func NewStoreSink(repo storage.EventRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

// Emit implements Sink
func (s *StoreSink) Emit(ctx context.Context, event Event) error {
	return s.repo.SaveEvent(ctx, &storage.EventRecord{
		ID:             event.ID,
		OrganizationID: event.OrganizationID,
		Name:           event.Name,
		Payload:        event.Payload,
		OccurredAt:     event.OccurredAt,
	})
}

// FanOut delivers each event to every sink
type FanOut []Sink

// Emit implements Sink. Every sink is tried even when an earlier one fails.
func (f FanOut) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
