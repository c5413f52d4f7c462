// Package flow is the engine's single entry point. The Orchestrator
// owns one TxContext per transaction id and routes every inbound
// signal through the state machine, the drop-off detector and both
// rule engines, emitting telemetry for each side effect.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/dropoff"
	"github.com/convertly/funnel/pkg/hooks"
	"github.com/convertly/funnel/pkg/ports"
	"github.com/convertly/funnel/pkg/telemetry"
	"github.com/convertly/funnel/pkg/trust"
)

const lockTTL = 30 * time.Second

// Result aggregates what one operation changed and decided.
type Result struct {
	TxID          string                `json:"tx_id"`
	Stage         domain.Stage          `json:"stage"`
	Trust         *domain.TrustMessage  `json:"trust,omitempty"`
	Hooks         []domain.HookResult   `json:"hooks,omitempty"`
	DropOff       *domain.DropOffEvent  `json:"drop_off,omitempty"`
	TrustMessages []domain.TrustMessage `json:"trust_messages,omitempty"`
}

// Orchestrator coordinates the engine components. Operations on the
// same transaction id serialize on an internal per-id lock; distinct
// ids run in parallel. An optional distributed Locker extends the
// guarantee across replicas sharing a context store.
type Orchestrator struct {
	contexts ports.ContextStore
	detector *dropoff.Detector
	resolver *trust.Resolver
	hooks    *hooks.Engine
	events   *telemetry.Log

	locks  *lockTable
	locker ports.Locker
	logger *slog.Logger

	// confidenceThreshold gates trust re-evaluation on confidence
	// updates: only levels below it trigger the resolver.
	confidenceThreshold int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLocker enables distributed per-transaction locking.
func WithLocker(locker ports.Locker) Option {
	return func(o *Orchestrator) { o.locker = locker }
}

// WithLogger configures the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithConfidenceThreshold overrides the trust re-evaluation gate
// (default 60).
func WithConfidenceThreshold(level int) Option {
	return func(o *Orchestrator) { o.confidenceThreshold = level }
}

// NewOrchestrator wires the engine components together.
func NewOrchestrator(
	contexts ports.ContextStore,
	detector *dropoff.Detector,
	resolver *trust.Resolver,
	hookEngine *hooks.Engine,
	events *telemetry.Log,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		contexts:            contexts,
		detector:            detector,
		resolver:            resolver,
		hooks:               hookEngine,
		events:              events,
		locks:               newLockTable(),
		logger:              logging.NewNop(),
		confidenceThreshold: 60,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// withTx serializes fn against the transaction id, taking the
// distributed lock too when configured.
func (o *Orchestrator) withTx(ctx context.Context, txID string, fn func() error) error {
	return o.locks.withLock(txID, func() error {
		if o.locker != nil {
			unlock, err := o.locker.Lock(ctx, txID, lockTTL)
			if err != nil {
				return fmt.Errorf("acquire distributed lock: %w", err)
			}
			defer func() {
				if err := unlock(ctx); err != nil {
					o.logger.Warn("failed to release distributed lock (will expire via TTL)",
						"tx_id", txID, "err", err)
				}
			}()
		}
		return fn()
	})
}

// load fetches the context, logging unknown ids as a warning.
func (o *Orchestrator) load(ctx context.Context, txID string) (*domain.TxContext, error) {
	tc, err := o.contexts.Load(ctx, txID)
	if err != nil {
		if errors.Is(err, domain.ErrContextNotFound) {
			o.logger.Warn("operation on unknown transaction", "tx_id", txID)
		}
		return nil, err
	}
	return tc, nil
}

// emit records an event in the log and on the context's own trail.
func (o *Orchestrator) emit(ctx context.Context, tc *domain.TxContext, kind domain.EventKind, note string, payload map[string]any) {
	ev := o.events.Emit(ctx, kind, tc.TxID, "orchestrator", note, payload)
	tc.Events = append(tc.Events, ev)
}

// Initialize creates the context for a new booking, opens its
// correlated drop-off session and emits the started event. Fails with
// domain.ErrContextExists if the id is already active.
func (o *Orchestrator) Initialize(ctx context.Context, txID, customerID, sessionID string, device *domain.DeviceSignal) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		if _, err := o.contexts.Load(ctx, txID); err == nil {
			return fmt.Errorf("%w: %s", domain.ErrContextExists, txID)
		} else if !errors.Is(err, domain.ErrContextNotFound) {
			return err
		}

		tc := domain.NewTxContext(txID, customerID, sessionID)
		tc.Device = device

		if err := o.detector.Start(ctx, sessionID); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		o.emit(ctx, tc, domain.EventBookingStarted, "booking initiated", map[string]any{
			"customer_id": customerID,
			"session_id":  sessionID,
		})

		if err := o.contexts.Save(ctx, txID, tc); err != nil {
			return err
		}
		o.logger.Info("booking initialized", "tx_id", txID, "customer_id", customerID)
		res = &Result{TxID: txID, Stage: tc.Stage()}
		return nil
	})
	return res, err
}

// Transition applies a stage change. A rejected transition returns
// domain.ErrInvalidTransition with zero side effects: no event, no
// detector forwarding, no rule evaluation.
func (o *Orchestrator) Transition(ctx context.Context, txID string, target domain.Stage, reason string) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		tc, err := o.load(ctx, txID)
		if err != nil {
			return err
		}

		next, err := tc.Machine.Apply(target, reason)
		if err != nil {
			o.logger.Info("transition rejected",
				"tx_id", txID, "from", tc.Stage(), "to", target)
			return err
		}
		tc.Machine = next
		tc.StageEnteredAt = time.Now().UTC()

		o.emit(ctx, tc, domain.EventStageChanged, reason, map[string]any{
			"from":      next.Previous,
			"to":        next.Current,
			"risk_tier": domain.StageRiskTier(next.Current),
		})
		if err := o.detector.RecordStateChange(ctx, tc.SessionID, target); err != nil {
			return err
		}

		res = &Result{TxID: txID, Stage: target}
		o.evaluate(ctx, tc, res, true, true)

		if target.Terminal() {
			if err := o.finishSession(ctx, tc, target); err != nil {
				return err
			}
		}
		return o.contexts.Save(ctx, txID, tc)
	})
	return res, err
}

// UpdateConfidence unions the reported hesitation points and risk
// factors into the context and samples the detector. The trust
// resolver only re-evaluates below the confidence threshold; hooks
// re-evaluate whenever hesitation points arrived.
func (o *Orchestrator) UpdateConfidence(ctx context.Context, txID string, level int, hesitationPoints, riskFactors []string) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		tc, err := o.load(ctx, txID)
		if err != nil {
			return err
		}

		if level < 0 {
			level = 0
		} else if level > 100 {
			level = 100
		}
		tc.Confidence = level
		tc.Hesitations.Add(hesitationPoints...)
		tc.RiskFactors.Add(riskFactors...)

		if err := o.detector.RecordConfidence(ctx, tc.SessionID, level); err != nil {
			return err
		}
		if len(riskFactors) > 0 {
			if err := o.detector.RecordRiskFactor(ctx, tc.SessionID, riskFactors...); err != nil {
				return err
			}
		}
		o.emit(ctx, tc, domain.EventConfidenceUpdated, "", map[string]any{
			"level":       level,
			"hesitations": tc.Hesitations.Values(),
		})

		res = &Result{TxID: txID, Stage: tc.Stage()}
		o.evaluate(ctx, tc, res, level < o.confidenceThreshold, len(hesitationPoints) > 0)

		drop, err := o.detector.CheckDropOff(ctx, tc.SessionID)
		if err != nil {
			return err
		}
		if drop != nil {
			res.DropOff = drop
			o.emit(ctx, tc, domain.EventDropOffDetected, drop.Detail, map[string]any{
				"kind": drop.Kind,
				"risk": drop.Risk,
			})
		}
		return o.contexts.Save(ctx, txID, tc)
	})
	return res, err
}

// RecordView updates the current view, forwards the visit to the
// detector and re-evaluates both rule engines.
func (o *Orchestrator) RecordView(ctx context.Context, txID, pageURL, viewName string) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		tc, err := o.load(ctx, txID)
		if err != nil {
			return err
		}

		tc.CurrentView = viewName
		if err := o.detector.RecordView(ctx, tc.SessionID, pageURL, viewName, tc.Confidence); err != nil {
			return err
		}
		o.emit(ctx, tc, domain.EventViewRecorded, "", map[string]any{
			"url":  pageURL,
			"view": viewName,
		})

		res = &Result{TxID: txID, Stage: tc.Stage()}
		o.evaluate(ctx, tc, res, true, true)
		return o.contexts.Save(ctx, txID, tc)
	})
	return res, err
}

// Complete forces the transition to the completed stage. Completing an
// already-completed booking is a no-op success.
func (o *Orchestrator) Complete(ctx context.Context, txID string) (*Result, error) {
	return o.finish(ctx, txID, domain.StageCompleted, "")
}

// Cancel forces the transition to the cancelled stage.
func (o *Orchestrator) Cancel(ctx context.Context, txID, reason string) (*Result, error) {
	return o.finish(ctx, txID, domain.StageCancelled, reason)
}

// Fail forces the transition to the failed stage.
func (o *Orchestrator) Fail(ctx context.Context, txID, reason string) (*Result, error) {
	return o.finish(ctx, txID, domain.StageFailed, reason)
}

func (o *Orchestrator) finish(ctx context.Context, txID string, target domain.Stage, reason string) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		tc, err := o.load(ctx, txID)
		if err != nil {
			return err
		}

		if tc.Stage() != target {
			next, err := tc.Machine.Apply(target, reason)
			if err != nil {
				return err
			}
			tc.Machine = next
			tc.StageEnteredAt = time.Now().UTC()
		}
		if err := o.finishSession(ctx, tc, target); err != nil {
			return err
		}
		res = &Result{TxID: txID, Stage: target}
		return o.contexts.Save(ctx, txID, tc)
	})
	return res, err
}

// finishSession marks the correlated session complete and emits the
// terminal telemetry for the stage.
func (o *Orchestrator) finishSession(ctx context.Context, tc *domain.TxContext, target domain.Stage) error {
	if err := o.detector.MarkComplete(ctx, tc.SessionID); err != nil {
		return err
	}

	kind := domain.EventBookingCompleted
	switch target {
	case domain.StageCancelled:
		kind = domain.EventBookingCancelled
	case domain.StageFailed:
		kind = domain.EventBookingFailed
	}
	o.emit(ctx, tc, kind, "", map[string]any{"stage": target})
	o.logger.Info("booking reached terminal stage", "tx_id", tc.TxID, "stage", target)
	return nil
}

// evaluate runs the rule engines against the context and folds the
// outcomes into the result, the context histories and telemetry.
func (o *Orchestrator) evaluate(ctx context.Context, tc *domain.TxContext, res *Result, withTrust, withHooks bool) {
	if withTrust {
		if msg := o.resolver.Resolve(tc); msg != nil {
			tc.TrustHistory = append(tc.TrustHistory, *msg)
			res.Trust = msg
			o.emit(ctx, tc, domain.EventTrustInjected, msg.Message, map[string]any{
				"point":    msg.Point,
				"category": msg.Category,
			})
		}
	}
	if withHooks {
		fired := o.hooks.Evaluate(ctx, tc)
		if len(fired) > 0 {
			tc.HookHistory = append(tc.HookHistory, fired...)
			res.Hooks = fired
			for _, hr := range fired {
				o.emit(ctx, tc, domain.EventHookFired, hr.Message, map[string]any{
					"rule_id": hr.RuleID,
					"action":  hr.Action,
				})
			}
		}
	}
}

// ProcessHesitation runs the composite hesitation pipeline: hook
// evaluation, ranked trust fallbacks and a correlated drop-off check.
func (o *Orchestrator) ProcessHesitation(ctx context.Context, txID string) (*Result, error) {
	var res *Result
	err := o.withTx(ctx, txID, func() error {
		tc, err := o.load(ctx, txID)
		if err != nil {
			return err
		}

		outcome, err := o.hooks.ProcessHesitation(ctx, tc)
		if err != nil {
			return err
		}

		res = &Result{
			TxID:          txID,
			Stage:         tc.Stage(),
			Hooks:         outcome.HookResults,
			TrustMessages: outcome.TrustMessages,
			DropOff:       outcome.DropOff,
		}
		if len(outcome.HookResults) > 0 {
			tc.HookHistory = append(tc.HookHistory, outcome.HookResults...)
			for _, hr := range outcome.HookResults {
				o.emit(ctx, tc, domain.EventHookFired, hr.Message, map[string]any{
					"rule_id": hr.RuleID,
					"action":  hr.Action,
				})
			}
		}
		if outcome.DropOff != nil {
			o.emit(ctx, tc, domain.EventDropOffDetected, outcome.DropOff.Detail, map[string]any{
				"kind": outcome.DropOff.Kind,
				"risk": outcome.DropOff.Risk,
			})
		}
		return o.contexts.Save(ctx, txID, tc)
	})
	return res, err
}

// Context returns a copy of the transaction's current context.
func (o *Orchestrator) Context(ctx context.Context, txID string) (*domain.TxContext, error) {
	return o.load(ctx, txID)
}

// Events returns the telemetry recorded for a transaction.
func (o *Orchestrator) Events(txID string) []domain.TelemetryEvent {
	return o.events.Events(txID)
}

// SessionStats returns the detector's aggregate counts.
func (o *Orchestrator) SessionStats() dropoff.Stats {
	return o.detector.GetStats()
}

// AddHook, RemoveHook and EnableHook manage the conversion hook table
// at runtime.
func (o *Orchestrator) AddHook(rule *hooks.Rule) error     { return o.hooks.AddRule(rule) }
func (o *Orchestrator) RemoveHook(id string) bool          { return o.hooks.RemoveRule(id) }
func (o *Orchestrator) EnableHook(id string, on bool) bool { return o.hooks.SetEnabled(id, on) }
