// Package dropoff infers customer disengagement from timing and count
// signals alone. A customer who goes silent sends no event, so every
// heuristic here works off what the session already recorded: visit
// timestamps, visit counts, the confidence trend and time-in-stage.
package dropoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/ports"
)

// Config tunes the detection heuristics. Zero fields fall back to the
// defaults below.
type Config struct {
	// AbandonTimeout is how long a session may go without a visit
	// before it counts as abandoned. Default 5 minutes.
	AbandonTimeout time.Duration

	// BounceThreshold is the number of visits to price/checkout-tagged
	// views that flags a bounce. Default 3.
	BounceThreshold int

	// ConfidenceDropDelta is the drop between the two most recent
	// confidence samples that flags hesitation. Default 20.
	ConfidenceDropDelta int

	// HesitationDwell is the time-in-stage on a hesitation-prone stage
	// that flags hesitation. Default 30 seconds.
	HesitationDwell time.Duration

	// BounceViews are the substrings that tag a view as price/checkout
	// related. Matched case-insensitively against view name and URL.
	BounceViews []string

	// HesitationStages is the subset of stages where dwelling signals
	// doubt. Defaults to the high- and medium-risk tiers.
	HesitationStages []domain.Stage
}

func (c Config) withDefaults() Config {
	if c.AbandonTimeout <= 0 {
		c.AbandonTimeout = 5 * time.Minute
	}
	if c.BounceThreshold <= 0 {
		c.BounceThreshold = 3
	}
	if c.ConfidenceDropDelta <= 0 {
		c.ConfidenceDropDelta = 20
	}
	if c.HesitationDwell <= 0 {
		c.HesitationDwell = 30 * time.Second
	}
	if len(c.BounceViews) == 0 {
		c.BounceViews = []string{"price", "checkout", "payment"}
	}
	if len(c.HesitationStages) == 0 {
		for _, s := range domain.Stages {
			if tier := domain.StageRiskTier(s); tier == domain.RiskHigh || tier == domain.RiskMedium {
				c.HesitationStages = append(c.HesitationStages, s)
			}
		}
	}
	return c
}

// Stats aggregates detection outcomes across all sessions ever started
// on this detector. Cleanup does not rewind counters.
type Stats struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	DroppedSessions   int     `json:"dropped_sessions"`
	BouncedSessions   int     `json:"bounced_sessions"`
	HesitationEvents  int     `json:"hesitation_events"`
	CompletionRate    float64 `json:"completion_rate"`
}

// Detector tracks sessions and classifies disengagement. Safe for
// concurrent use across session ids; per-id operations are expected to
// be serialized by the caller.
type Detector struct {
	cfg      Config
	sessions ports.SessionStore
	notifier ports.DropOffNotifier
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	detections []domain.DropOffEvent
	counts     Stats
}

// Option configures the Detector.
type Option func(*Detector)

// WithNotifier attaches a fire-and-forget drop-off side channel.
func WithNotifier(n ports.DropOffNotifier) Option {
	return func(d *Detector) { d.notifier = n }
}

// WithLogger configures the detector's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector over the given session store.
func NewDetector(cfg Config, sessions ports.SessionStore, opts ...Option) *Detector {
	d := &Detector{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		logger:   logging.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start registers a session. Starting an already-known id is a no-op,
// so a session opened before the booking began is simply adopted.
func (d *Detector) Start(ctx context.Context, sessionID string) error {
	if _, err := d.sessions.Load(ctx, sessionID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	rec := domain.NewSessionRecord(sessionID, d.now())
	if err := d.sessions.Save(ctx, sessionID, rec); err != nil {
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}

	d.mu.Lock()
	d.counts.TotalSessions++
	d.mu.Unlock()
	return nil
}

// loadOrStart fetches the session, creating it on first contact.
func (d *Detector) loadOrStart(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	rec, err := d.sessions.Load(ctx, sessionID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	if err := d.Start(ctx, sessionID); err != nil {
		return nil, err
	}
	return d.sessions.Load(ctx, sessionID)
}

// RecordView appends a page visit.
func (d *Detector) RecordView(ctx context.Context, sessionID, url, view string, confidence int) error {
	rec, err := d.loadOrStart(ctx, sessionID)
	if err != nil {
		return err
	}
	now := d.now()
	rec.Visits = append(rec.Visits, domain.PageVisit{
		URL:        url,
		View:       view,
		Stage:      rec.Stage,
		Confidence: confidence,
		At:         now,
	})
	rec.LastSeen = now
	return d.sessions.Save(ctx, sessionID, rec)
}

// RecordStateChange notes that the correlated booking entered a stage.
// Resets the dwell clock.
func (d *Detector) RecordStateChange(ctx context.Context, sessionID string, stage domain.Stage) error {
	rec, err := d.loadOrStart(ctx, sessionID)
	if err != nil {
		return err
	}
	now := d.now()
	rec.Stage = stage
	rec.StageEnteredAt = now
	rec.LastSeen = now
	return d.sessions.Save(ctx, sessionID, rec)
}

// RecordConfidence appends a confidence sample to the trend.
func (d *Detector) RecordConfidence(ctx context.Context, sessionID string, level int) error {
	rec, err := d.loadOrStart(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.ConfidenceTrend = append(rec.ConfidenceTrend, level)
	rec.LastSeen = d.now()
	return d.sessions.Save(ctx, sessionID, rec)
}

// RecordRiskFactor unions risk factors into the session.
func (d *Detector) RecordRiskFactor(ctx context.Context, sessionID string, factors ...string) error {
	rec, err := d.loadOrStart(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.RiskFactors.Add(factors...)
	rec.LastSeen = d.now()
	return d.sessions.Save(ctx, sessionID, rec)
}

// MarkComplete ends detection for a session. Idempotent: a second call
// changes nothing.
func (d *Detector) MarkComplete(ctx context.Context, sessionID string) error {
	rec, err := d.loadOrStart(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.Complete {
		return nil
	}
	rec.Complete = true
	rec.LastSeen = d.now()
	if err := d.sessions.Save(ctx, sessionID, rec); err != nil {
		return err
	}

	d.mu.Lock()
	d.counts.CompletedSessions++
	d.mu.Unlock()
	return nil
}

// CheckDropOff classifies the session against the heuristics in fixed
// priority order, first match wins. Returns nil when nothing fires or
// the session is complete. A positive detection is appended to the
// global log and pushed to the notifier, and flags the session.
func (d *Detector) CheckDropOff(ctx context.Context, sessionID string) (*domain.DropOffEvent, error) {
	rec, err := d.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Complete {
		return nil, nil
	}

	ev := d.classify(rec)
	if ev == nil {
		return nil, nil
	}

	switch ev.Kind {
	case domain.DropAbandoned:
		rec.DroppedOff = true
	case domain.DropBounced:
		rec.Bounced = true // sticky: never cleared, even on later completion
	}
	if err := d.sessions.Save(ctx, sessionID, rec); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.detections = append(d.detections, *ev)
	switch ev.Kind {
	case domain.DropAbandoned:
		d.counts.DroppedSessions++
	case domain.DropBounced:
		d.counts.BouncedSessions++
	case domain.DropHesitated:
		d.counts.HesitationEvents++
	}
	d.mu.Unlock()

	d.notify(ctx, *ev)
	return ev, nil
}

// classify runs the heuristic ladder against a snapshot.
func (d *Detector) classify(rec *domain.SessionRecord) *domain.DropOffEvent {
	now := d.now()

	// 1. Abandoned: silence since the last recorded visit.
	lastSeen := rec.StartedAt
	if v := rec.LastVisit(); v != nil {
		lastSeen = v.At
	}
	if now.Sub(lastSeen) > d.cfg.AbandonTimeout {
		return &domain.DropOffEvent{
			SessionID:  rec.ID,
			Kind:       domain.DropAbandoned,
			Risk:       domain.RiskHigh,
			Confidence: 90,
			Detail:     fmt.Sprintf("no visit for %s", now.Sub(lastSeen).Round(time.Second)),
			At:         now,
		}
	}

	// 2. Bounced: circling the price/checkout views.
	if n := d.countBounceVisits(rec); n >= d.cfg.BounceThreshold {
		return &domain.DropOffEvent{
			SessionID:  rec.ID,
			Kind:       domain.DropBounced,
			Risk:       domain.RiskMedium,
			Confidence: 85,
			Detail:     fmt.Sprintf("%d visits to price/checkout views", n),
			At:         now,
		}
	}

	// 3. Hesitated: sharp confidence drop between the last two samples.
	if n := len(rec.ConfidenceTrend); n >= 2 {
		drop := rec.ConfidenceTrend[n-2] - rec.ConfidenceTrend[n-1]
		if drop > d.cfg.ConfidenceDropDelta {
			return &domain.DropOffEvent{
				SessionID:  rec.ID,
				Kind:       domain.DropHesitated,
				Risk:       domain.RiskMedium,
				Confidence: 80,
				Detail:     fmt.Sprintf("confidence dropped %d points", drop),
				At:         now,
			}
		}
	}

	// 4. Hesitated: dwelling too long on a hesitation-prone stage.
	if d.hesitationStage(rec.Stage) && now.Sub(rec.StageEnteredAt) > d.cfg.HesitationDwell {
		return &domain.DropOffEvent{
			SessionID:  rec.ID,
			Kind:       domain.DropHesitated,
			Risk:       domain.RiskHigh,
			Confidence: 85,
			Detail:     fmt.Sprintf("dwelling on %s for %s", rec.Stage, now.Sub(rec.StageEnteredAt).Round(time.Second)),
			At:         now,
		}
	}

	return nil
}

func (d *Detector) countBounceVisits(rec *domain.SessionRecord) int {
	n := 0
	for _, v := range rec.Visits {
		for _, tag := range d.cfg.BounceViews {
			if strings.Contains(strings.ToLower(v.View), tag) || strings.Contains(strings.ToLower(v.URL), tag) {
				n++
				break
			}
		}
	}
	return n
}

func (d *Detector) hesitationStage(s domain.Stage) bool {
	for _, hs := range d.cfg.HesitationStages {
		if hs == s {
			return true
		}
	}
	return false
}

// notify pushes a detection to the side channel. Fire and forget: the
// detection outcome never depends on the notifier.
func (d *Detector) notify(ctx context.Context, ev domain.DropOffEvent) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyDropOff(ctx, ev); err != nil {
		d.logger.Warn("drop-off notifier failed",
			"session_id", ev.SessionID,
			"kind", ev.Kind,
			"err", err,
		)
	}
}

// Detections returns a copy of the global detection log.
func (d *Detector) Detections() []domain.DropOffEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.DropOffEvent, len(d.detections))
	copy(out, d.detections)
	return out
}

// GetStats returns aggregate detection counts. The completion rate is
// 100% when no session was ever started.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.counts
	if s.TotalSessions == 0 {
		s.CompletionRate = 100
	} else {
		s.CompletionRate = float64(s.CompletedSessions) / float64(s.TotalSessions) * 100
	}
	return s
}

// CleanupOldSessions removes sessions whose last activity is older
// than maxAge. This is the only garbage collection the detector has;
// there is no external persistence. Returns the number removed.
func (d *Detector) CleanupOldSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := d.sessions.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := d.now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		rec, err := d.sessions.Load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue
			}
			return removed, err
		}
		if rec.LastSeen.Before(cutoff) {
			if err := d.sessions.Delete(ctx, id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if removed > 0 {
		d.logger.Info("cleaned up stale sessions", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}
