// Package hooks detects hesitation categories and produces remediation
// actions. Unlike the trust resolver, the hook engine multi-fires:
// independent concerns co-occur, so every matching rule runs. The rule
// table is runtime-mutable.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/dropoff"
	"github.com/convertly/funnel/pkg/trust"
)

// Predicate decides whether a rule applies to a context.
type Predicate func(*domain.TxContext) bool

// Action produces the rule's intervention. Actions may do I/O; a
// failing action is isolated and never blocks the other rules.
type Action func(ctx context.Context, tc *domain.TxContext) (domain.HookResult, error)

// Rule is one conversion hook. Priority 0 runs first.
type Rule struct {
	ID       string
	Priority int
	Enabled  bool
	When     Predicate
	Run      Action
}

// HesitationOutcome is the composite result of ProcessHesitation.
type HesitationOutcome struct {
	HookResults   []domain.HookResult   `json:"hook_results"`
	TrustMessages []domain.TrustMessage `json:"trust_messages"`
	DropOff       *domain.DropOffEvent  `json:"drop_off,omitempty"`
}

// Engine evaluates the hook table. Safe for concurrent use; table
// mutations and evaluations serialize on an internal lock.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule

	resolver *trust.Resolver
	detector *dropoff.Detector
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithResolver wires the trust resolver used by ProcessHesitation.
func WithResolver(r *trust.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithDetector wires the drop-off detector used by ProcessHesitation.
func WithDetector(d *dropoff.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// WithLogger configures the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine seeded with the given rules.
func NewEngine(rules []*Rule, opts ...Option) *Engine {
	e := &Engine{
		rules:  append([]*Rule(nil), rules...),
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddRule appends a rule to the table. Duplicate ids are rejected.
func (e *Engine) AddRule(rule *Rule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("rule must have an id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("rule %q already registered", rule.ID)
		}
	}
	e.rules = append(e.rules, rule)
	return nil
}

// RemoveRule deletes a rule by id. Unknown ids are a no-op returning
// false.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// SetEnabled toggles a rule without removing it. Returns false for
// unknown ids.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.ID == id {
			r.Enabled = enabled
			return true
		}
	}
	return false
}

// Rules returns the rule ids in evaluation order.
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := e.snapshot()
	ids := make([]string, len(snapshot))
	for i, r := range snapshot {
		ids[i] = r.ID
	}
	return ids
}

// snapshot returns enabled rules sorted ascending by priority. Stable,
// so equal priorities keep registration order. Caller must hold mu.
func (e *Engine) snapshot() []*Rule {
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Evaluate runs every enabled rule against the context in ascending
// priority order and returns the results of all that fired. Rules run
// sequentially; a rule whose action errors or panics is logged and
// skipped, never aborting the batch.
func (e *Engine) Evaluate(ctx context.Context, tc *domain.TxContext) []domain.HookResult {
	e.mu.RLock()
	rules := e.snapshot()
	e.mu.RUnlock()

	var results []domain.HookResult
	for _, rule := range rules {
		if rule.When == nil || !rule.When(tc) {
			continue
		}
		res, err := e.run(ctx, rule, tc)
		if err != nil {
			e.logger.Warn("conversion hook failed",
				"rule_id", rule.ID,
				"tx_id", tc.TxID,
				"err", err,
			)
			continue
		}
		res.RuleID = rule.ID
		res.At = e.now()
		results = append(results, res)
	}
	return results
}

// run invokes one action with panic isolation.
func (e *Engine) run(ctx context.Context, rule *Rule, tc *domain.TxContext) (res domain.HookResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s panicked: %v", rule.ID, r)
		}
	}()
	return rule.Run(ctx, tc)
}

// ProcessHesitation is the composite hesitation entry point: hook
// evaluation, the trust resolver's ranked fallback messages, and a
// correlated drop-off check.
func (e *Engine) ProcessHesitation(ctx context.Context, tc *domain.TxContext) (HesitationOutcome, error) {
	out := HesitationOutcome{
		HookResults: e.Evaluate(ctx, tc),
	}
	if e.resolver != nil {
		out.TrustMessages = e.resolver.Fallback(tc)
	}
	if e.detector != nil && tc.SessionID != "" {
		ev, err := e.detector.CheckDropOff(ctx, tc.SessionID)
		if err != nil {
			return out, fmt.Errorf("drop-off check for session %s: %w", tc.SessionID, err)
		}
		out.DropOff = ev
	}
	return out, nil
}
