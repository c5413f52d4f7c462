package trust

import "github.com/convertly/funnel/pkg/domain"

// Named predicates. YAML rule files reference these by name, so copy
// can be tuned without recompiling while the behavioral logic stays in
// code.
var predicates = map[string]Predicate{
	"always": func(*domain.TxContext) bool { return true },
	"low_confidence": func(tc *domain.TxContext) bool {
		return tc.Confidence < 60
	},
	"very_low_confidence": func(tc *domain.TxContext) bool {
		return tc.Confidence < 40
	},
	"price_hesitation": func(tc *domain.TxContext) bool {
		return tc.Hesitating(domain.HesitationPrice)
	},
	"deadline_hesitation": func(tc *domain.TxContext) bool {
		return tc.Hesitating(domain.HesitationDeadline)
	},
	"payment_hesitation": func(tc *domain.TxContext) bool {
		return tc.Hesitating(domain.HesitationPayment) || tc.Hesitating(domain.HesitationPrice)
	},
	"delay_fear": func(tc *domain.TxContext) bool {
		return tc.Hesitating(domain.HesitationDelay) || tc.Hesitating(domain.HesitationDeadline)
	},
	"resource_unassigned": func(tc *domain.TxContext) bool {
		return tc.ResourceID == ""
	},
	"parts_pending": func(tc *domain.TxContext) bool {
		return tc.PartsPending
	},
}

// PredicateByName returns a registered predicate, used by the YAML
// rule loader.
func PredicateByName(name string) (Predicate, bool) {
	p, ok := predicates[name]
	return p, ok
}

// DefaultRules returns the built-in trust message table. The slice
// order is the declaration order used for priority tie-breaks.
func DefaultRules() []Rule {
	return []Rule{
		{
			Point:    domain.PointBookingStart,
			When:     predicates["always"],
			Message:  "You can cancel free of charge until a technician accepts your booking.",
			Priority: domain.TrustLow,
			Category: domain.CategoryGuarantee,
		},
		{
			Point:    domain.PointResourceSearch,
			When:     predicates["resource_unassigned"],
			Message:  "We are matching you with vetted technicians nearby. Most matches complete within two minutes.",
			Priority: domain.TrustMedium,
			Category: domain.CategoryProgress,
		},
		{
			Point:    domain.PointPriceDisplay,
			When:     predicates["price_hesitation"],
			Message:  "The price you see is the price you pay. No call-out fees, no surprises.",
			Priority: domain.TrustHigh,
			Category: domain.CategoryTransparency,
		},
		{
			Point:    domain.PointPriceConfirm,
			When:     predicates["low_confidence"],
			Message:  "Here is the full cost breakdown: labour, parts and tax. Nothing is added at checkout.",
			Priority: domain.TrustHigh,
			Category: domain.CategoryTransparency,
		},
		{
			Point:    domain.PointPriceConfirm,
			When:     predicates["price_hesitation"],
			Message:  "Price-match promise: find the same certified service cheaper and we refund the difference.",
			Priority: domain.TrustMedium,
			Category: domain.CategoryConfidence,
		},
		{
			Point:    domain.PointResourceAssigned,
			When:     predicates["always"],
			Message:  "Your technician is identity-checked and rated by verified customers.",
			Priority: domain.TrustMedium,
			Category: domain.CategoryConfidence,
		},
		{
			Point:    domain.PointDeadlineDisplay,
			When:     predicates["delay_fear"],
			Message:  "If we miss the promised window, the visit fee is automatically waived.",
			Priority: domain.TrustHigh,
			Category: domain.CategoryGuarantee,
		},
		{
			Point:    domain.PointDeadlineDisplay,
			When:     predicates["always"],
			Message:  "We will keep you updated at every step until the work is done.",
			Priority: domain.TrustLow,
			Category: domain.CategoryProgress,
		},
		{
			Point:    domain.PointPaymentEntry,
			When:     predicates["payment_hesitation"],
			Message:  "Payment is held in escrow and only released after you confirm the job is complete.",
			Priority: domain.TrustHigh,
			Category: domain.CategoryGuarantee,
		},
		{
			Point:    domain.PointEscrowHold,
			When:     predicates["always"],
			Message:  "Your payment is protected. Funds stay in escrow until you sign off the work.",
			Priority: domain.TrustMedium,
			Category: domain.CategoryGuarantee,
		},
		{
			Point:    domain.PointPartsNotice,
			When:     predicates["parts_pending"],
			Message:  "A required part is on order. We will confirm the delivery date before any work starts.",
			Priority: domain.TrustHigh,
			Category: domain.CategoryTransparency,
		},
	}
}
