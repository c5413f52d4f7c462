// Package observability exports engine activity as Prometheus metrics.
// The Metrics type is a telemetry listener: subscribe it to the event
// log and every emission increments the matching counter.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/telemetry"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	transitions   *prometheus.CounterVec
	dropOffs      *prometheus.CounterVec
	hookFires     *prometheus.CounterVec
	trustMessages *prometheus.CounterVec
	bookings      *prometheus.CounterVec
}

// stagePayload mirrors the stage_changed event payload fields the
// collector cares about.
type stagePayload struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

type dropPayload struct {
	Kind string `mapstructure:"kind"`
	Risk string `mapstructure:"risk"`
}

type hookPayload struct {
	RuleID string `mapstructure:"rule_id"`
	Action string `mapstructure:"action"`
}

type trustPayload struct {
	Point    string `mapstructure:"point"`
	Category string `mapstructure:"category"`
}

// NewMetrics builds and registers the collectors on the given
// registerer (prometheus.DefaultRegisterer in production).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funnel_stage_transitions_total",
			Help: "Applied lifecycle stage transitions.",
		}, []string{"from", "to"}),
		dropOffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funnel_dropoffs_total",
			Help: "Positive drop-off detections by kind and risk tier.",
		}, []string{"kind", "risk"}),
		hookFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funnel_hook_fires_total",
			Help: "Conversion hooks fired by rule id and action type.",
		}, []string{"rule_id", "action"}),
		trustMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funnel_trust_messages_total",
			Help: "Trust messages selected by injection point and category.",
		}, []string{"point", "category"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "funnel_bookings_total",
			Help: "Bookings by lifecycle outcome event.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.transitions, m.dropOffs, m.hookFires, m.trustMessages, m.bookings)
	return m
}

// OnEvent implements ports.TelemetryListener.
func (m *Metrics) OnEvent(ctx context.Context, ev domain.TelemetryEvent) {
	switch ev.Kind {
	case domain.EventStageChanged:
		var p stagePayload
		if err := telemetry.DecodePayload(ev, &p); err == nil {
			m.transitions.WithLabelValues(p.From, p.To).Inc()
		}
	case domain.EventDropOffDetected:
		var p dropPayload
		if err := telemetry.DecodePayload(ev, &p); err == nil {
			m.dropOffs.WithLabelValues(p.Kind, p.Risk).Inc()
		}
	case domain.EventHookFired:
		var p hookPayload
		if err := telemetry.DecodePayload(ev, &p); err == nil {
			m.hookFires.WithLabelValues(p.RuleID, p.Action).Inc()
		}
	case domain.EventTrustInjected:
		var p trustPayload
		if err := telemetry.DecodePayload(ev, &p); err == nil {
			m.trustMessages.WithLabelValues(p.Point, p.Category).Inc()
		}
	case domain.EventBookingStarted, domain.EventBookingCompleted,
		domain.EventBookingCancelled, domain.EventBookingFailed:
		m.bookings.WithLabelValues(string(ev.Kind)).Inc()
	}
}
