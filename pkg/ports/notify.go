package ports

import (
	"context"

	"github.com/convertly/funnel/pkg/domain"
)

// DropOffNotifier is the fire-and-forget side channel invoked on every
// positive drop-off detection. The detector never depends on the
// return; errors are logged and dropped.
type DropOffNotifier interface {
	NotifyDropOff(ctx context.Context, ev domain.DropOffEvent) error
}

// TelemetryListener receives every emitted event, in emission order.
// Listeners run sequentially; a panicking listener is isolated and
// must not block delivery to the others.
type TelemetryListener interface {
	OnEvent(ctx context.Context, ev domain.TelemetryEvent)
}

// ListenerFunc adapts a plain function to TelemetryListener.
type ListenerFunc func(ctx context.Context, ev domain.TelemetryEvent)

// OnEvent implements TelemetryListener.
func (f ListenerFunc) OnEvent(ctx context.Context, ev domain.TelemetryEvent) {
	f(ctx, ev)
}
