package domain

import "time"

// EventKind categorizes a telemetry event.
type EventKind string

const (
	EventBookingStarted    EventKind = "booking_started"
	EventStageChanged      EventKind = "stage_changed"
	EventConfidenceUpdated EventKind = "confidence_updated"
	EventViewRecorded      EventKind = "view_recorded"
	EventDropOffDetected   EventKind = "drop_off_detected"
	EventTrustInjected     EventKind = "trust_injected"
	EventHookFired         EventKind = "hook_fired"
	EventHookFailed        EventKind = "hook_failed"
	EventBookingCompleted  EventKind = "booking_completed"
	EventBookingCancelled  EventKind = "booking_cancelled"
	EventBookingFailed     EventKind = "booking_failed"
)

// Importance ranks an event for downstream alert prioritization. It is
// a static property of the kind, never computed per event.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceNormal   Importance = "normal"
	ImportanceLow      Importance = "low"
)

// TelemetryEvent is one immutable structured occurrence. Payload must
// not be mutated after emission.
type TelemetryEvent struct {
	ID         string         `json:"id"`
	Kind       EventKind      `json:"kind"`
	TxID       string         `json:"tx_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Importance Importance     `json:"importance"`
	Note       string         `json:"note,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}
