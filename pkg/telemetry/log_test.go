package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/ports"
)

func TestLog_EmitAssignsIdentityAndImportance(t *testing.T) {
	l := NewLog()
	ev := l.Emit(context.Background(), domain.EventDropOffDetected, "tx1", "detector", "gone quiet", nil)

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
	assert.Equal(t, domain.ImportanceCritical, ev.Importance)
	assert.Equal(t, 1, l.Len())
}

func TestLog_ListenersReceiveInEmissionOrder(t *testing.T) {
	l := NewLog()
	var kinds []domain.EventKind
	l.Subscribe(ports.ListenerFunc(func(ctx context.Context, ev domain.TelemetryEvent) {
		kinds = append(kinds, ev.Kind)
	}))

	ctx := context.Background()
	l.Emit(ctx, domain.EventBookingStarted, "tx1", "", "", nil)
	l.Emit(ctx, domain.EventStageChanged, "tx1", "", "", nil)
	l.Emit(ctx, domain.EventBookingCompleted, "tx1", "", "", nil)

	assert.Equal(t, []domain.EventKind{
		domain.EventBookingStarted,
		domain.EventStageChanged,
		domain.EventBookingCompleted,
	}, kinds)
}

func TestLog_PanickingListenerIsIsolated(t *testing.T) {
	l := NewLog()
	l.Subscribe(ports.ListenerFunc(func(ctx context.Context, ev domain.TelemetryEvent) {
		panic("bad subscriber")
	}))
	received := 0
	l.Subscribe(ports.ListenerFunc(func(ctx context.Context, ev domain.TelemetryEvent) {
		received++
	}))

	l.Emit(context.Background(), domain.EventStageChanged, "tx1", "", "", nil)

	assert.Equal(t, 1, received, "later listeners still notified")
	assert.Equal(t, 1, l.Len(), "event still appended")
}

func TestLog_FilterByTransaction(t *testing.T) {
	l := NewLog()
	ctx := context.Background()
	l.Emit(ctx, domain.EventBookingStarted, "tx1", "", "", nil)
	l.Emit(ctx, domain.EventBookingStarted, "tx2", "", "", nil)
	l.Emit(ctx, domain.EventStageChanged, "tx1", "", "", nil)

	require.Len(t, l.Events("tx1"), 2)
	require.Len(t, l.Events("tx2"), 1)
	require.Len(t, l.Events(""), 3)
	assert.Empty(t, l.Events("tx3"))
}

func TestImportanceOf_UnknownKindDefaultsLow(t *testing.T) {
	assert.Equal(t, domain.ImportanceLow, ImportanceOf(domain.EventKind("custom")))
}

func TestDecodePayload(t *testing.T) {
	ev := domain.TelemetryEvent{
		Kind: domain.EventStageChanged,
		Payload: map[string]any{
			"from": domain.StageInitiated,
			"to":   domain.StageValidating,
		},
	}
	var p struct {
		From string `mapstructure:"from"`
		To   string `mapstructure:"to"`
	}
	require.NoError(t, DecodePayload(ev, &p))
	assert.Equal(t, "initiated", p.From)
	assert.Equal(t, "validating", p.To)
}
