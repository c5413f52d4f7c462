package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertly/funnel/pkg/domain"
)

func newTestStore(t *testing.T, opts ...Option) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client, opts...), mr
}

func TestSessionStore_Contract(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	rec := domain.NewSessionRecord("s1", time.Now().UTC())
	rec.Stage = domain.StageValidating
	rec.ConfidenceTrend = []int{80, 55}
	rec.Visits = append(rec.Visits, domain.PageVisit{
		URL: "/booking/price", View: "price_summary", At: time.Now().UTC(),
	})
	rec.RiskFactors.Add("weather")
	require.NoError(t, s.Save(ctx, "s1", rec))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageValidating, got.Stage)
	assert.Equal(t, []int{80, 55}, got.ConfidenceTrend)
	require.Len(t, got.Visits, 1)
	assert.Equal(t, "price_summary", got.Visits[0].View)
	assert.True(t, got.RiskFactors.Has("weather"))

	require.NoError(t, s.Save(ctx, "s0", domain.NewSessionRecord("s0", time.Now().UTC())))
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s0", "s1"}, ids)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s0"}, ids)
}

func TestSessionStore_EmptyRiskFactorsSurviveRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "s1", domain.NewSessionRecord("s1", time.Now().UTC())))
	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.RiskFactors)
	got.RiskFactors.Add("ok")
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	s, mr := newTestStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "s1", domain.NewSessionRecord("s1", time.Now().UTC())))
	mr.FastForward(2 * time.Minute)

	_, err := s.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_Prefix(t *testing.T) {
	s, mr := newTestStore(t, WithPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "s1", domain.NewSessionRecord("s1", time.Now().UTC())))
	assert.True(t, mr.Exists("custom:s1"))
}

func TestLocker_MutualExclusion(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client, "funnel:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "tx1", time.Minute)
	require.NoError(t, err)

	// A second acquisition blocks until released or canceled.
	short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "tx1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))

	unlock2, err := locker.Lock(ctx, "tx1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

func TestLocker_StaleUnlockIsSafe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client, "funnel:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "tx1", time.Minute)
	require.NoError(t, err)

	// Simulate expiry plus reacquisition by another holder.
	mr.FastForward(2 * time.Minute)
	unlockNew, err := locker.Lock(ctx, "tx1", time.Minute)
	require.NoError(t, err)

	// The stale unlock must not release the new holder's lock.
	require.NoError(t, unlock(ctx))
	assert.True(t, mr.Exists("funnel:lock:tx1"))
	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("funnel:lock:tx1"))
}
