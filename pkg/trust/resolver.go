// Package trust selects at most one customer-facing reassurance or
// transparency message for a (stage, behavioral-context) pair. Rule
// tables are immutable after construction; evaluation is stateless and
// fully deterministic.
package trust

import (
	"log/slog"
	"time"

	"github.com/convertly/funnel/internal/logging"
	"github.com/convertly/funnel/pkg/domain"
)

// Predicate decides whether a rule applies to a context.
type Predicate func(*domain.TxContext) bool

// Rule binds a message to an injection point, guarded by a predicate.
// Rules are read-only at runtime.
type Rule struct {
	Point    domain.InjectionPoint
	When     Predicate
	Message  string
	Priority domain.TrustPriority
	Category domain.TrustCategory
}

// stageScope bounds the search space per stage: only these injection
// points are ever considered for a stage. Terminal stages map to
// nothing; a completed or dead booking gets no message.
var stageScope = map[domain.Stage][]domain.InjectionPoint{
	domain.StageInitiated:     {domain.PointBookingStart},
	domain.StageValidating:    {domain.PointBookingStart, domain.PointDeadlineDisplay},
	domain.StageResourceMatch: {domain.PointResourceSearch, domain.PointPriceDisplay},
	domain.StageAssigned:      {domain.PointResourceAssigned, domain.PointPriceDisplay},
	domain.StageAccepted:      {domain.PointResourceAssigned, domain.PointDeadlineDisplay, domain.PointPriceDisplay, domain.PointPartsNotice},
	domain.StageConfirmed:     {domain.PointPriceConfirm, domain.PointPaymentEntry, domain.PointDeadlineDisplay},
	domain.StageEscrowPending: {domain.PointEscrowHold, domain.PointPaymentEntry},
}

// ScopeFor returns the injection points considered at a stage.
func ScopeFor(stage domain.Stage) []domain.InjectionPoint {
	points := stageScope[stage]
	out := make([]domain.InjectionPoint, len(points))
	copy(out, points)
	return out
}

// Resolver evaluates an injected, immutable rule table.
type Resolver struct {
	rules  []Rule
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger configures the resolver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver over the given rules. Declaration
// order is the tie-break between equal priorities, so the slice order
// is part of the contract.
func NewResolver(rules []Rule, opts ...Option) *Resolver {
	r := &Resolver{
		rules:  append([]Rule(nil), rules...),
		logger: logging.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve picks at most one message for the context's current stage.
// Primary pass: rules whose injection point is in stage scope and
// whose predicate holds. If none match, a best-effort pass re-scans
// the same scope ignoring predicates, so the customer still sees
// something relevant to the stage. Highest priority wins; ties go to
// declaration order.
func (r *Resolver) Resolve(tc *domain.TxContext) *domain.TrustMessage {
	scope := stageScope[tc.Stage()]
	if len(scope) == 0 {
		return nil
	}

	if msg := r.pick(tc, scope, true); msg != nil {
		return msg
	}
	// Best-effort fallback: scope match only. The message may have been
	// authored for a different concern; see DESIGN.md.
	msg := r.pick(tc, scope, false)
	if msg != nil {
		r.logger.Debug("trust fallback surfaced message",
			"tx_id", tc.TxID,
			"stage", tc.Stage(),
			"point", msg.Point,
		)
	}
	return msg
}

// ResolveAt evaluates only the rules bound to one injection point,
// with predicates enforced. Used when the caller knows exactly which
// UI moment is rendering.
func (r *Resolver) ResolveAt(tc *domain.TxContext, point domain.InjectionPoint) *domain.TrustMessage {
	return r.pick(tc, []domain.InjectionPoint{point}, true)
}

// Fallback returns every stage-scoped message ordered best first,
// predicates ignored. The hesitation pipeline uses it to offer the
// product layer a ranked list rather than a single pick.
func (r *Resolver) Fallback(tc *domain.TxContext) []domain.TrustMessage {
	scope := stageScope[tc.Stage()]
	if len(scope) == 0 {
		return nil
	}

	var out []domain.TrustMessage
	for p := domain.TrustHigh; ; p-- {
		for _, rule := range r.rules {
			if rule.Priority == p && pointIn(rule.Point, scope) {
				out = append(out, r.message(rule))
			}
		}
		if p == domain.TrustLow {
			break
		}
	}
	return out
}

// pick returns the best rule within the given points, or nil.
func (r *Resolver) pick(tc *domain.TxContext, points []domain.InjectionPoint, checkPredicate bool) *domain.TrustMessage {
	var best *Rule
	for i := range r.rules {
		rule := &r.rules[i]
		if !pointIn(rule.Point, points) {
			continue
		}
		if checkPredicate && (rule.When == nil || !rule.When(tc)) {
			continue
		}
		// Strict > keeps declaration order as the tie-break.
		if best == nil || rule.Priority > best.Priority {
			best = rule
		}
	}
	if best == nil {
		return nil
	}
	msg := r.message(*best)
	return &msg
}

func (r *Resolver) message(rule Rule) domain.TrustMessage {
	return domain.TrustMessage{
		Point:    rule.Point,
		Message:  rule.Message,
		Priority: rule.Priority,
		Category: rule.Category,
		At:       r.now(),
	}
}

func pointIn(p domain.InjectionPoint, points []domain.InjectionPoint) bool {
	for _, q := range points {
		if q == p {
			return true
		}
	}
	return false
}
