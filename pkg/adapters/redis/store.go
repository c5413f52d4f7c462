// Package redis provides session-store and locking adapters backed by
// Redis, for deployments that share behavioral sessions across engine
// replicas.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/convertly/funnel/pkg/domain"
)

// SessionStore implements ports.SessionStore on Redis. Records are
// stored as JSON values with an optional TTL; ids are indexed in a
// sorted set so List stays cheap.
type SessionStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the SessionStore.
type Option func(*SessionStore)

// WithTTL sets the expiration for session records.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix for session records.
func WithPrefix(prefix string) Option {
	return func(s *SessionStore) { s.prefix = prefix }
}

// New creates a session store with its own client.
func New(address, password string, db int, opts ...Option) *SessionStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a session store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *SessionStore {
	s := &SessionStore{
		client: client,
		prefix: "funnel:session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *SessionStore) indexKey() string {
	return s.prefix + "index"
}

// Save persists the session record as JSON and indexes its id.
func (s *SessionStore) Save(ctx context.Context, sessionID string, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}

	// Index score is the expiry instant; no TTL means effectively never.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: sessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session to redis: %w", err)
	}
	return nil
}

// Load retrieves a session record.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session from redis: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	if rec.RiskFactors == nil {
		rec.RiskFactors = domain.NewTagSet()
	}
	return &rec, nil
}

// Delete removes a session record and its index entry.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the known session ids, lazily pruning expired index
// entries first.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("prune expired sessions: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}
