package ports

import (
	"context"

	"github.com/convertly/funnel/pkg/domain"
)

// ContextStore is the repository for per-transaction contexts. The
// in-memory adapter is the default; a deployment may swap in a
// distributed cache without touching engine logic.
type ContextStore interface {
	// Save persists the context keyed by transaction id.
	Save(ctx context.Context, txID string, tc *domain.TxContext) error

	// Load retrieves the context for a transaction id.
	// Returns domain.ErrContextNotFound if it does not exist.
	Load(ctx context.Context, txID string) (*domain.TxContext, error)

	// Delete removes the context for a transaction id.
	Delete(ctx context.Context, txID string) error

	// List returns the active transaction ids in deterministic order.
	List(ctx context.Context) ([]string, error)
}

// SessionStore is the repository for behavioral session records.
type SessionStore interface {
	// Save persists the session keyed by session id.
	Save(ctx context.Context, sessionID string, rec *domain.SessionRecord) error

	// Load retrieves the session for an id.
	// Returns domain.ErrSessionNotFound if it does not exist.
	Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// Delete removes the session for an id.
	Delete(ctx context.Context, sessionID string) error

	// List returns the known session ids in deterministic order.
	List(ctx context.Context) ([]string, error)
}
