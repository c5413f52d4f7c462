package telemetry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/convertly/funnel/pkg/domain"
)

// DecodePayload maps an event's payload into a typed struct, so
// listeners can consume structured fields without hand-written key
// lookups. Field names match via `mapstructure` tags.
func DecodePayload(ev domain.TelemetryEvent, out any) error {
	if ev.Payload == nil {
		return nil
	}
	if err := mapstructure.WeakDecode(ev.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Kind, err)
	}
	return nil
}
