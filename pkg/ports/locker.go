package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a previously acquired lock.
type UnlockFunc func(ctx context.Context) error

// Locker coordinates per-transaction serialization across engine
// replicas. The orchestrator already serializes per transaction id in
// process; a distributed Locker extends that guarantee when more than
// one instance shares a context store.
type Locker interface {
	// Lock acquires the lock for key, blocking until acquired, the
	// context is canceled, or the TTL expires (implementation
	// specific). The returned UnlockFunc MUST be called to release.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
