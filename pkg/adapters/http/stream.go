package http

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/convertly/funnel/pkg/domain"
)

// StreamManager fans telemetry out to SSE subscribers keyed by
// transaction id. It implements ports.TelemetryListener so it can be
// subscribed to the event log directly.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

// NewStreamManager creates an empty stream manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers an SSE client for a transaction id. The returned
// cancel func must be called on disconnect.
func (sm *StreamManager) Subscribe(txID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[txID]; !ok {
		sm.subscribers[txID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[txID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[txID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, txID)
			}
		}
	}
}

// OnEvent implements ports.TelemetryListener: every emission is
// serialized once and broadcast to the transaction's subscribers.
// Slow clients drop messages rather than block the emitter.
func (sm *StreamManager) OnEvent(ctx context.Context, ev domain.TelemetryEvent) {
	if ev.TxID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[ev.TxID] {
		select {
		case ch <- string(data):
		default:
		}
	}
}
