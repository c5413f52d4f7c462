// Package funnel is a booking conversion orchestration engine. It
// drives a customer through a multi-stage booking lifecycle, infers
// disengagement from timing and behavioral signals, and decides in
// real time which reassurance message or remediation action to
// surface.
//
// The root package is a facade: New wires the default in-memory
// stores, the built-in rule tables, the drop-off detector and the
// telemetry log into a ready orchestrator. Every part can be swapped
// via options; the engine never owns global state.
package funnel

import (
	"context"
	"log/slog"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/adapters/memory"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/dropoff"
	"github.com/convertly/funnel/pkg/flow"
	"github.com/convertly/funnel/pkg/hooks"
	"github.com/convertly/funnel/pkg/ports"
	"github.com/convertly/funnel/pkg/telemetry"
	"github.com/convertly/funnel/pkg/trust"
)

// Version is the engine version, overridable at build time.
var Version = "0.1.0"

// Engine bundles the wired components. Construct with New.
type Engine struct {
	orch     *flow.Orchestrator
	events   *telemetry.Log
	detector *dropoff.Detector
	hooks    *hooks.Engine
}

type settings struct {
	logger      *slog.Logger
	contexts    ports.ContextStore
	sessions    ports.SessionStore
	notifier    ports.DropOffNotifier
	locker      ports.Locker
	detectorCfg dropoff.Config
	trustRules  []trust.Rule
	hookRules   []*hooks.Rule
	confidence  int
}

// Option configures the engine.
type Option func(*settings)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithContextStore swaps the transaction-context repository.
func WithContextStore(store ports.ContextStore) Option {
	return func(s *settings) { s.contexts = store }
}

// WithSessionStore swaps the behavioral-session repository.
func WithSessionStore(store ports.SessionStore) Option {
	return func(s *settings) { s.sessions = store }
}

// WithNotifier attaches a drop-off notification side channel.
func WithNotifier(n ports.DropOffNotifier) Option {
	return func(s *settings) { s.notifier = n }
}

// WithLocker enables distributed per-transaction locking.
func WithLocker(l ports.Locker) Option {
	return func(s *settings) { s.locker = l }
}

// WithDetectorConfig tunes the drop-off heuristics.
func WithDetectorConfig(cfg dropoff.Config) Option {
	return func(s *settings) { s.detectorCfg = cfg }
}

// WithTrustRules replaces the built-in trust message table.
func WithTrustRules(rules []trust.Rule) Option {
	return func(s *settings) { s.trustRules = rules }
}

// WithHookRules replaces the built-in conversion hook table.
func WithHookRules(rules []*hooks.Rule) Option {
	return func(s *settings) { s.hookRules = rules }
}

// WithConfidenceThreshold overrides the trust re-evaluation gate.
func WithConfidenceThreshold(level int) Option {
	return func(s *settings) { s.confidence = level }
}

// New wires a ready engine.
func New(opts ...Option) *Engine {
	s := settings{
		logger:     logging.NewNop(),
		trustRules: trust.DefaultRules(),
		hookRules:  hooks.DefaultRules(),
		confidence: 60,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.contexts == nil {
		s.contexts = memory.NewContextStore()
	}
	if s.sessions == nil {
		s.sessions = memory.NewSessionStore()
	}

	events := telemetry.NewLog(telemetry.WithLogger(s.logger))

	detectorOpts := []dropoff.Option{dropoff.WithLogger(s.logger)}
	if s.notifier != nil {
		detectorOpts = append(detectorOpts, dropoff.WithNotifier(s.notifier))
	}
	detector := dropoff.NewDetector(s.detectorCfg, s.sessions, detectorOpts...)

	resolver := trust.NewResolver(s.trustRules, trust.WithLogger(s.logger))

	hookEngine := hooks.NewEngine(s.hookRules,
		hooks.WithResolver(resolver),
		hooks.WithDetector(detector),
		hooks.WithLogger(s.logger),
	)

	orchOpts := []flow.Option{
		flow.WithLogger(s.logger),
		flow.WithConfidenceThreshold(s.confidence),
	}
	if s.locker != nil {
		orchOpts = append(orchOpts, flow.WithLocker(s.locker))
	}
	orch := flow.NewOrchestrator(s.contexts, detector, resolver, hookEngine, events, orchOpts...)

	return &Engine{
		orch:     orch,
		events:   events,
		detector: detector,
		hooks:    hookEngine,
	}
}

// Orchestrator exposes the underlying coordinator for adapters.
func (e *Engine) Orchestrator() *flow.Orchestrator { return e.orch }

// Telemetry exposes the event log for subscribers (analytics sinks,
// metrics, SSE streams).
func (e *Engine) Telemetry() *telemetry.Log { return e.events }

// Detector exposes the drop-off detector (stats, cleanup).
func (e *Engine) Detector() *dropoff.Detector { return e.detector }

// Hooks exposes the conversion hook engine for rule management.
func (e *Engine) Hooks() *hooks.Engine { return e.hooks }

// Initialize starts a booking.
func (e *Engine) Initialize(ctx context.Context, txID, customerID, sessionID string, device *domain.DeviceSignal) (*flow.Result, error) {
	return e.orch.Initialize(ctx, txID, customerID, sessionID, device)
}

// Transition applies a stage change.
func (e *Engine) Transition(ctx context.Context, txID string, target domain.Stage, reason string) (*flow.Result, error) {
	return e.orch.Transition(ctx, txID, target, reason)
}

// UpdateConfidence reports a confidence level with hesitation points
// and risk factors.
func (e *Engine) UpdateConfidence(ctx context.Context, txID string, level int, hesitationPoints, riskFactors []string) (*flow.Result, error) {
	return e.orch.UpdateConfidence(ctx, txID, level, hesitationPoints, riskFactors)
}

// RecordView reports a page visit.
func (e *Engine) RecordView(ctx context.Context, txID, pageURL, viewName string) (*flow.Result, error) {
	return e.orch.RecordView(ctx, txID, pageURL, viewName)
}

// Complete finishes a booking.
func (e *Engine) Complete(ctx context.Context, txID string) (*flow.Result, error) {
	return e.orch.Complete(ctx, txID)
}

// Cancel cancels a booking.
func (e *Engine) Cancel(ctx context.Context, txID, reason string) (*flow.Result, error) {
	return e.orch.Cancel(ctx, txID, reason)
}

// Fail marks a booking as failed.
func (e *Engine) Fail(ctx context.Context, txID, reason string) (*flow.Result, error) {
	return e.orch.Fail(ctx, txID, reason)
}

// ProcessHesitation runs the composite hesitation pipeline.
func (e *Engine) ProcessHesitation(ctx context.Context, txID string) (*flow.Result, error) {
	return e.orch.ProcessHesitation(ctx, txID)
}

// SessionStats returns aggregate detection counts.
func (e *Engine) SessionStats() dropoff.Stats {
	return e.orch.SessionStats()
}
