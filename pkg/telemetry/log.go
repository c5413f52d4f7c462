// Package telemetry provides the append-only in-memory event log with
// sequential pub/sub fan-out. Durability is an external subscriber's
// responsibility; the log itself guarantees nothing beyond in-process
// delivery in emission order.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/ports"
)

// importanceByKind is the static alert-priority lookup. Kinds missing
// from the table default to ImportanceLow.
var importanceByKind = map[domain.EventKind]domain.Importance{
	domain.EventBookingStarted:    domain.ImportanceNormal,
	domain.EventStageChanged:      domain.ImportanceNormal,
	domain.EventConfidenceUpdated: domain.ImportanceLow,
	domain.EventViewRecorded:      domain.ImportanceLow,
	domain.EventDropOffDetected:   domain.ImportanceCritical,
	domain.EventTrustInjected:     domain.ImportanceNormal,
	domain.EventHookFired:         domain.ImportanceNormal,
	domain.EventHookFailed:        domain.ImportanceHigh,
	domain.EventBookingCompleted:  domain.ImportanceHigh,
	domain.EventBookingCancelled:  domain.ImportanceHigh,
	domain.EventBookingFailed:     domain.ImportanceCritical,
}

// ImportanceOf returns the static importance for an event kind.
func ImportanceOf(kind domain.EventKind) domain.Importance {
	if imp, ok := importanceByKind[kind]; ok {
		return imp
	}
	return domain.ImportanceLow
}

// Log is the in-memory event log. Safe for concurrent use.
type Log struct {
	mu        sync.RWMutex
	events    []domain.TelemetryEvent
	listeners []ports.TelemetryListener

	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Log.
type Option func(*Log)

// WithLogger configures a logger for listener-failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an empty event log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers a listener. Listeners are invoked sequentially,
// in registration order, for every event emitted after subscription.
func (l *Log) Subscribe(listener ports.TelemetryListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// Emit appends an event and fans it out to every subscriber. The
// assigned event id is returned via the stored copy; the input maps
// are owned by the log after the call.
func (l *Log) Emit(ctx context.Context, kind domain.EventKind, txID, actor, note string, payload map[string]any) domain.TelemetryEvent {
	ev := domain.TelemetryEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		TxID:       txID,
		Actor:      actor,
		Importance: ImportanceOf(kind),
		Note:       note,
		Payload:    payload,
		At:         l.now(),
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	listeners := make([]ports.TelemetryListener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	// Sequential fan-out preserves emission order for every consumer.
	for _, listener := range listeners {
		l.deliver(ctx, listener, ev)
	}
	return ev
}

// deliver invokes one listener, recovering panics so a broken
// subscriber cannot block the rest.
func (l *Log) deliver(ctx context.Context, listener ports.TelemetryListener, ev domain.TelemetryEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("telemetry listener panicked",
				"kind", ev.Kind,
				"tx_id", ev.TxID,
				"panic", r,
			)
		}
	}()
	listener.OnEvent(ctx, ev)
}

// Events returns the events recorded for a transaction id, in emission
// order. An empty txID returns everything.
func (l *Log) Events(txID string) []domain.TelemetryEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if txID == "" {
		out := make([]domain.TelemetryEvent, len(l.events))
		copy(out, l.events)
		return out
	}
	var out []domain.TelemetryEvent
	for _, ev := range l.events {
		if ev.TxID == txID {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
