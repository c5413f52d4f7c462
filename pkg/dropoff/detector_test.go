package dropoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertly/funnel/pkg/adapters/memory"
	"github.com/convertly/funnel/pkg/domain"
)

// testClock lets tests move time forward deterministically.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDetector(t *testing.T, opts ...Option) (*Detector, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewDetector(Config{}, memory.NewSessionStore(), opts...), clock
}

func TestDetector_NoDetectionOnFreshSession(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDetector_Abandoned(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.RecordView(ctx, "s1", "/home", "home", 50))

	clock.Advance(5*time.Minute + time.Second)

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DropAbandoned, ev.Kind)
	assert.Equal(t, domain.RiskHigh, ev.Risk)
	assert.Equal(t, 90, ev.Confidence)

	rec, err := d.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, rec.DroppedOff)
}

func TestDetector_BouncedAtThreshold(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))

	for i := 0; i < 2; i++ {
		require.NoError(t, d.RecordView(ctx, "s1", "/booking/price", "price_summary", 50))
	}
	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev, "two price visits must not bounce")

	require.NoError(t, d.RecordView(ctx, "s1", "/booking/checkout", "checkout", 50))
	ev, err = d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DropBounced, ev.Kind)
	assert.Equal(t, domain.RiskMedium, ev.Risk)
	assert.Equal(t, 85, ev.Confidence)

	// The bounce flag is sticky.
	rec, err := d.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, rec.Bounced)
}

func TestDetector_ConfidenceDrop(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.RecordConfidence(ctx, "s1", 80))
	require.NoError(t, d.RecordConfidence(ctx, "s1", 55))

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DropHesitated, ev.Kind)
	assert.Equal(t, 80, ev.Confidence)
	assert.Equal(t, domain.RiskMedium, ev.Risk)
}

func TestDetector_ConfidenceDropNeedsMoreThanDelta(t *testing.T) {
	d, _ := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.RecordConfidence(ctx, "s1", 80))
	require.NoError(t, d.RecordConfidence(ctx, "s1", 60)) // exactly 20: not a drop

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDetector_DwellOnHesitationStage(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.RecordStateChange(ctx, "s1", domain.StageResourceMatch))

	clock.Advance(31 * time.Second)
	// Keep the session visible so the abandon heuristic stays quiet.
	require.NoError(t, d.RecordView(ctx, "s1", "/booking/progress", "progress", 50))

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DropHesitated, ev.Kind)
	assert.Equal(t, domain.RiskHigh, ev.Risk)
	assert.Equal(t, 85, ev.Confidence)
}

func TestDetector_NoDwellOnLowRiskStage(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.RecordStateChange(ctx, "s1", domain.StageInitiated))

	clock.Advance(31 * time.Second)
	require.NoError(t, d.RecordView(ctx, "s1", "/home", "home", 50))

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDetector_AbandonWinsOverBounce(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	for i := 0; i < 3; i++ {
		require.NoError(t, d.RecordView(ctx, "s1", "/booking/price", "price_summary", 50))
	}
	clock.Advance(6 * time.Minute)

	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.DropAbandoned, ev.Kind, "abandon is checked first")
}

func TestDetector_MarkCompleteStopsDetection(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))
	require.NoError(t, d.MarkComplete(ctx, "s1"))

	clock.Advance(time.Hour)
	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev)

	// Idempotent: a second completion changes nothing.
	require.NoError(t, d.MarkComplete(ctx, "s1"))
	ev, err = d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, 1, d.GetStats().CompletedSessions)
}

func TestDetector_UnknownSession(t *testing.T) {
	d, _ := newTestDetector(t)
	_, err := d.CheckDropOff(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestDetector_Stats(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()

	assert.Equal(t, float64(100), d.GetStats().CompletionRate, "no sessions yet")

	require.NoError(t, d.Start(ctx, "done"))
	require.NoError(t, d.Start(ctx, "gone"))
	require.NoError(t, d.MarkComplete(ctx, "done"))

	clock.Advance(10 * time.Minute)
	_, err := d.CheckDropOff(ctx, "gone")
	require.NoError(t, err)

	stats := d.GetStats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 1, stats.DroppedSessions)
	assert.Equal(t, float64(50), stats.CompletionRate)
	assert.Len(t, d.Detections(), 1)
}

func TestDetector_CleanupOldSessions(t *testing.T) {
	d, clock := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "old"))

	clock.Advance(48 * time.Hour)
	require.NoError(t, d.Start(ctx, "fresh"))

	removed, err := d.CleanupOldSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = d.sessions.Load(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = d.sessions.Load(ctx, "fresh")
	assert.NoError(t, err)
}

// failingNotifier always errors; detection must not care.
type failingNotifier struct{ calls int }

func (n *failingNotifier) NotifyDropOff(ctx context.Context, ev domain.DropOffEvent) error {
	n.calls++
	return errors.New("channel down")
}

func TestDetector_NotifierFailureIsIgnored(t *testing.T) {
	notifier := &failingNotifier{}
	d, clock := newTestDetector(t, WithNotifier(notifier))
	ctx := context.Background()
	require.NoError(t, d.Start(ctx, "s1"))

	clock.Advance(10 * time.Minute)
	ev, err := d.CheckDropOff(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 1, notifier.calls)
}
