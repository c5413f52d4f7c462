package domain

// Stage identifies one step in a booking's canonical progression.
type Stage string

const (
	StageInitiated     Stage = "initiated"
	StageValidating    Stage = "validating"
	StageResourceMatch Stage = "resource_match"
	StageAssigned      Stage = "assigned"
	StageAccepted      Stage = "accepted"
	StageConfirmed     Stage = "confirmed"
	StageEscrowPending Stage = "escrow_pending"
	StageCompleted     Stage = "completed"
	StageCancelled     Stage = "cancelled"
	StageFailed        Stage = "failed"
)

// Stages lists every stage in progression order. Terminal stages last.
var Stages = []Stage{
	StageInitiated,
	StageValidating,
	StageResourceMatch,
	StageAssigned,
	StageAccepted,
	StageConfirmed,
	StageEscrowPending,
	StageCompleted,
	StageCancelled,
	StageFailed,
}

// legalTransitions is the single source of truth for stage progression.
// A stage absent from the map (or mapped to nil) accepts no outgoing
// transitions.
var legalTransitions = map[Stage][]Stage{
	StageInitiated:     {StageValidating, StageCancelled, StageFailed},
	StageValidating:    {StageResourceMatch, StageCancelled, StageFailed},
	StageResourceMatch: {StageAssigned, StageCancelled, StageFailed},
	StageAssigned:      {StageAccepted, StageResourceMatch, StageCancelled, StageFailed},
	StageAccepted:      {StageConfirmed, StageCancelled, StageFailed},
	StageConfirmed:     {StageEscrowPending, StageCancelled, StageFailed},
	StageEscrowPending: {StageCompleted, StageCancelled, StageFailed},
	StageCompleted:     nil,
	StageCancelled:     nil,
	StageFailed:        nil,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// Terminal reports whether s accepts no outgoing transitions.
func (s Stage) Terminal() bool {
	targets, ok := legalTransitions[s]
	return ok && len(targets) == 0
}

// CanTransition reports whether moving from s to target is legal.
func (s Stage) CanTransition(target Stage) bool {
	for _, t := range legalTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// LegalTargets returns the stages reachable from s in one transition.
// The returned slice is a copy; callers may mutate it freely.
func (s Stage) LegalTargets() []Stage {
	targets := legalTransitions[s]
	out := make([]Stage, len(targets))
	copy(out, targets)
	return out
}

// RiskTier classifies how likely a customer is to drop off at a stage.
type RiskTier string

const (
	RiskHigh   RiskTier = "high"
	RiskMedium RiskTier = "medium"
	RiskLow    RiskTier = "low"
)

// StageRiskTier returns the drop-off risk tier for a stage. Matching a
// resource and validating are where most abandonment happens; assigned
// and accepted still lose customers to second thoughts.
func StageRiskTier(s Stage) RiskTier {
	switch s {
	case StageResourceMatch, StageValidating:
		return RiskHigh
	case StageAssigned, StageAccepted:
		return RiskMedium
	default:
		return RiskLow
	}
}
