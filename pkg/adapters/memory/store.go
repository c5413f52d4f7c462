// Package memory provides in-process repository adapters. They are
// the default wiring: all engine state is process-resident and lost on
// restart, which the surrounding system compensates for via an
// external telemetry sink.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/convertly/funnel/pkg/domain"
)

// ContextStore implements ports.ContextStore on a mutex-guarded map.
// Safe for concurrent use. Values are deep-copied on the way in and
// out so callers stay isolated.
type ContextStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TxContext
}

// NewContextStore creates an empty context store.
func NewContextStore() *ContextStore {
	return &ContextStore{data: make(map[string]*domain.TxContext)}
}

// Save persists the context keyed by transaction id.
func (s *ContextStore) Save(ctx context.Context, txID string, tc *domain.TxContext) error {
	if txID == "" {
		return fmt.Errorf("transaction id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[txID] = tc.Clone()
	return nil
}

// Load retrieves the context for a transaction id.
func (s *ContextStore) Load(ctx context.Context, txID string) (*domain.TxContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.data[txID]
	if !ok {
		return nil, domain.ErrContextNotFound
	}
	return tc.Clone(), nil
}

// Delete removes the context for a transaction id.
func (s *ContextStore) Delete(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, txID)
	return nil
}

// List returns the active transaction ids in sorted order.
func (s *ContextStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SessionStore implements ports.SessionStore on a mutex-guarded map.
// Safe for concurrent use.
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionRecord
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[string]*domain.SessionRecord)}
}

// Save persists the session keyed by id.
func (s *SessionStore) Save(ctx context.Context, sessionID string, rec *domain.SessionRecord) error {
	if sessionID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = rec.Clone()
	return nil
}

// Load retrieves the session for an id.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the session for an id.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// List returns the known session ids in sorted order.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
