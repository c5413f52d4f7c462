package hooks

import (
	"context"
	"time"

	"github.com/convertly/funnel/pkg/domain"
)

// fixed returns an action that always yields the given result.
func fixed(action domain.ActionType, message string, confidence int) Action {
	return func(ctx context.Context, tc *domain.TxContext) (domain.HookResult, error) {
		return domain.HookResult{
			Action:     action,
			Message:    message,
			Confidence: confidence,
		}, nil
	}
}

// DefaultRules returns the built-in hook table covering the known
// hesitation categories. Priorities are spaced so deployments can
// slot custom rules between them.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:       "low_confidence",
			Priority: 0,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Confidence < 40
			},
			Run: fixed(domain.ActionReassurance,
				"Thousands of customers completed this exact booking last month. You are in safe hands.", 75),
		},
		{
			ID:       "price_hesitation",
			Priority: 1,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Hesitating(domain.HesitationPrice)
			},
			Run: fixed(domain.ActionDiscount,
				"Complete your booking in the next 15 minutes and we will take 5% off.", 80),
		},
		{
			ID:       "deadline_ambiguity",
			Priority: 2,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Hesitating(domain.HesitationDeadline) || tc.PromisedBy == nil && tc.Stage() == domain.StageAccepted
			},
			Run: fixed(domain.ActionTransparency,
				"Your confirmed arrival window will be locked in before payment is taken.", 70),
		},
		{
			ID:       "resource_uncertainty",
			Priority: 3,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				if tc.Hesitating(domain.HesitationResource) {
					return true
				}
				s := tc.Stage()
				return tc.ResourceID == "" && (s == domain.StageResourceMatch || s == domain.StageAssigned)
			},
			Run: fixed(domain.ActionTransparency,
				"We only assign certified technicians with a 4.5+ rating for this job type.", 72),
		},
		{
			ID:       "delay_fear",
			Priority: 4,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Hesitating(domain.HesitationDelay)
			},
			Run: fixed(domain.ActionReassurance,
				"On-time arrival is guaranteed or your visit fee is waived.", 78),
		},
		{
			ID:       "payment_uncertainty",
			Priority: 5,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Hesitating(domain.HesitationPayment) ||
					(tc.Stage() == domain.StageEscrowPending && tc.Confidence < 60)
			},
			Run: fixed(domain.ActionTransparency,
				"Nothing is charged until the job is done. Your payment sits in escrow until you approve.", 82),
		},
		{
			ID:       "parts_unavailable",
			Priority: 6,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.PartsPending || tc.Hesitating(domain.HesitationParts)
			},
			Run: fixed(domain.ActionTransparency,
				"The required part ships from our own warehouse; we confirm its arrival before scheduling.", 68),
		},
		{
			ID:       "prolonged_dwell",
			Priority: 7,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return !tc.Machine.Terminal() && time.Since(tc.StageEnteredAt) > 2*time.Minute
			},
			Run: fixed(domain.ActionUrgency,
				"Technician availability in your area is filling up for today. Your quote is held for 10 more minutes.", 65),
		},
		{
			ID:       "loyalty_offer",
			Priority: 8,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.LoyaltyTier != "" && tc.Hesitating(domain.HesitationPrice)
			},
			Run: fixed(domain.ActionDiscount,
				"As a returning customer you qualify for member pricing on this booking.", 74),
		},
		{
			ID:       "device_urgency",
			Priority: 9,
			Enabled:  true,
			When: func(tc *domain.TxContext) bool {
				return tc.Device != nil && tc.Device.Platform == "mobile" && tc.Confidence < 50
			},
			Run: fixed(domain.ActionUrgency,
				"Finish in one tap: your details are saved and the slot is reserved on this device.", 60),
		},
	}
}
