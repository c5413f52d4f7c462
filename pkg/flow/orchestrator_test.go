package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convertly/funnel/pkg/adapters/memory"
	"github.com/convertly/funnel/pkg/domain"
	"github.com/convertly/funnel/pkg/dropoff"
	"github.com/convertly/funnel/pkg/hooks"
	"github.com/convertly/funnel/pkg/telemetry"
	"github.com/convertly/funnel/pkg/trust"
)

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *telemetry.Log) {
	t.Helper()
	sessions := memory.NewSessionStore()
	detector := dropoff.NewDetector(dropoff.Config{}, sessions)
	resolver := trust.NewResolver(trust.DefaultRules())
	engine := hooks.NewEngine(hooks.DefaultRules(),
		hooks.WithResolver(resolver), hooks.WithDetector(detector))
	events := telemetry.NewLog()

	return NewOrchestrator(memory.NewContextStore(), detector, resolver, engine, events, opts...), events
}

func TestOrchestrator_Initialize(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()

	res, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StageInitiated, res.Stage)

	evs := events.Events("tx1")
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventBookingStarted, evs[0].Kind)

	// A second initialization for the same id is a handled conflict.
	_, err = o.Initialize(ctx, "tx1", "c1", "s1", nil)
	assert.ErrorIs(t, err, domain.ErrContextExists)
}

func TestOrchestrator_UnknownTransactionIsHandled(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.Transition(ctx, "ghost", domain.StageValidating, "")
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
	_, err = o.UpdateConfidence(ctx, "ghost", 50, nil, nil)
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
	_, err = o.RecordView(ctx, "ghost", "/x", "x")
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
	_, err = o.Complete(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
	_, err = o.ProcessHesitation(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrContextNotFound)
}

func TestOrchestrator_RejectedTransitionHasNoSideEffects(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)
	before := len(events.Events("tx1"))

	_, err = o.Transition(ctx, "tx1", domain.StageCompleted, "skip ahead")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageInitiated, tc.Stage(), "no state change")
	assert.Empty(t, tc.Machine.History)
	assert.Len(t, events.Events("tx1"), before, "no telemetry emitted")
}

func TestOrchestrator_TransitionEmitsAndEvaluates(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	res, err := o.Transition(ctx, "tx1", domain.StageValidating, "docs ok")
	require.NoError(t, err)
	assert.Equal(t, domain.StageValidating, res.Stage)

	var kinds []domain.EventKind
	for _, ev := range events.Events("tx1") {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventStageChanged)

	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageInitiated, tc.Machine.Previous)
	require.Len(t, tc.Machine.History, 1)
	assert.Equal(t, "docs ok", tc.Machine.History[0].Reason)
}

func TestOrchestrator_EndToEndCompletion(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	path := []domain.Stage{
		domain.StageValidating, domain.StageResourceMatch, domain.StageAssigned,
		domain.StageAccepted, domain.StageConfirmed, domain.StageEscrowPending,
		domain.StageCompleted,
	}
	for _, stage := range path {
		_, err := o.Transition(ctx, "tx1", stage, "")
		require.NoError(t, err, "transition to %s", stage)
	}

	stats := o.SessionStats()
	assert.GreaterOrEqual(t, stats.TotalSessions, 1)
	assert.Equal(t, 1, stats.CompletedSessions)
	assert.Equal(t, 0, stats.DroppedSessions)
	assert.Equal(t, float64(100), stats.CompletionRate)

	var kinds []domain.EventKind
	for _, ev := range events.Events("tx1") {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventBookingCompleted)
}

func TestOrchestrator_UpdateConfidenceGatesTrust(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)
	_, err = o.Transition(ctx, "tx1", domain.StageValidating, "")
	require.NoError(t, err)

	// Above the threshold with no hesitation points: neither engine
	// re-evaluates.
	res, err := o.UpdateConfidence(ctx, "tx1", 85, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Trust)
	assert.Empty(t, res.Hooks)

	// Below the threshold the resolver runs.
	res, err = o.UpdateConfidence(ctx, "tx1", 30, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Trust)

	// Hesitation points always trigger the hook engine.
	res, err = o.UpdateConfidence(ctx, "tx1", 30, []string{domain.HesitationPrice}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Hooks)
	assert.Equal(t, "low_confidence", res.Hooks[0].RuleID)

	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.True(t, tc.Hesitations.Has(domain.HesitationPrice), "points are unioned, not replaced")
}

func TestOrchestrator_UpdateConfidenceClampsLevel(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	_, err = o.UpdateConfidence(ctx, "tx1", 180, nil, nil)
	require.NoError(t, err)
	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, 100, tc.Confidence)

	_, err = o.UpdateConfidence(ctx, "tx1", -5, nil, nil)
	require.NoError(t, err)
	tc, err = o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, 0, tc.Confidence)
}

func TestOrchestrator_RecordView(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	res, err := o.RecordView(ctx, "tx1", "/booking/price", "price_summary")
	require.NoError(t, err)
	assert.Equal(t, domain.StageInitiated, res.Stage)

	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, "price_summary", tc.CurrentView)

	var kinds []domain.EventKind
	for _, ev := range events.Events("tx1") {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventViewRecorded)
}

func TestOrchestrator_CancelMarksSessionComplete(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	res, err := o.Cancel(ctx, "tx1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCancelled, res.Stage)

	var kinds []domain.EventKind
	for _, ev := range events.Events("tx1") {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventBookingCancelled)
	assert.Equal(t, 1, o.SessionStats().CompletedSessions)

	// Cancelling again: already at the target stage, no-op success.
	_, err = o.Cancel(ctx, "tx1", "again")
	assert.NoError(t, err)
}

func TestOrchestrator_FailEmitsTerminalEvent(t *testing.T) {
	o, events := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)

	res, err := o.Fail(ctx, "tx1", "payment declined")
	require.NoError(t, err)
	assert.Equal(t, domain.StageFailed, res.Stage)

	var kinds []domain.EventKind
	for _, ev := range events.Events("tx1") {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventBookingFailed)
}

func TestOrchestrator_ProcessHesitation(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Initialize(ctx, "tx1", "c1", "s1", nil)
	require.NoError(t, err)
	for _, stage := range []domain.Stage{domain.StageValidating, domain.StageResourceMatch} {
		_, err = o.Transition(ctx, "tx1", stage, "")
		require.NoError(t, err)
	}
	_, err = o.UpdateConfidence(ctx, "tx1", 30, []string{domain.HesitationPrice}, nil)
	require.NoError(t, err)

	res, err := o.ProcessHesitation(ctx, "tx1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Hooks)
	assert.NotEmpty(t, res.TrustMessages)

	tc, err := o.Context(ctx, "tx1")
	require.NoError(t, err)
	assert.NotEmpty(t, tc.HookHistory)
}

func TestOrchestrator_HookManagement(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	require.NoError(t, o.AddHook(&hooks.Rule{
		ID: "custom", Priority: 99, Enabled: true,
		When: func(*domain.TxContext) bool { return false },
		Run: func(ctx context.Context, tc *domain.TxContext) (domain.HookResult, error) {
			return domain.HookResult{}, nil
		},
	}))
	assert.True(t, o.EnableHook("custom", false))
	assert.True(t, o.RemoveHook("custom"))
	assert.False(t, o.RemoveHook("custom"))
}
