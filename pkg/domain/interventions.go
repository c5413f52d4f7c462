package domain

import "time"

// InjectionPoint names a UI moment where a trust message may surface.
type InjectionPoint string

const (
	PointBookingStart     InjectionPoint = "booking_start"
	PointPriceDisplay     InjectionPoint = "price_display"
	PointPriceConfirm     InjectionPoint = "price_confirmation"
	PointResourceSearch   InjectionPoint = "resource_search"
	PointResourceAssigned InjectionPoint = "resource_assigned"
	PointDeadlineDisplay  InjectionPoint = "deadline_display"
	PointPaymentEntry     InjectionPoint = "payment_entry"
	PointEscrowHold       InjectionPoint = "escrow_hold"
	PointPartsNotice      InjectionPoint = "parts_notice"
)

// TrustPriority orders trust rules. Higher wins.
type TrustPriority int

const (
	TrustLow TrustPriority = iota
	TrustMedium
	TrustHigh
)

// TrustCategory classifies what a trust message addresses.
type TrustCategory string

const (
	CategoryTransparency TrustCategory = "transparency"
	CategoryConfidence   TrustCategory = "confidence"
	CategoryGuarantee    TrustCategory = "guarantee"
	CategoryProgress     TrustCategory = "progress"
)

// TrustMessage is one selected reassurance/transparency message. At
// most one is produced per resolver evaluation.
type TrustMessage struct {
	Point    InjectionPoint `json:"point"`
	Message  string         `json:"message"`
	Priority TrustPriority  `json:"priority"`
	Category TrustCategory  `json:"category"`
	At       time.Time      `json:"at,omitempty"`
}

// ActionType declares what kind of remediation a conversion hook took.
type ActionType string

const (
	ActionReassurance  ActionType = "reassurance"
	ActionDiscount     ActionType = "discount"
	ActionUrgency      ActionType = "urgency"
	ActionTransparency ActionType = "transparency"
)

// HookResult is the outcome of one fired conversion hook. An
// evaluation may produce zero or many; hooks are independent.
type HookResult struct {
	RuleID     string     `json:"rule_id"`
	Action     ActionType `json:"action"`
	Message    string     `json:"message"`
	Confidence int        `json:"confidence"`
	At         time.Time  `json:"at,omitempty"`
}

// DropOffKind names a detected disengagement pattern.
type DropOffKind string

const (
	DropAbandoned DropOffKind = "abandoned"
	DropBounced   DropOffKind = "bounced"
	DropHesitated DropOffKind = "hesitated"
)

// DropOffEvent is one immutable positive detection appended to the
// detector's global log.
type DropOffEvent struct {
	SessionID  string      `json:"session_id"`
	Kind       DropOffKind `json:"kind"`
	Risk       RiskTier    `json:"risk"`
	Confidence int         `json:"confidence"`
	Detail     string      `json:"detail,omitempty"`
	At         time.Time   `json:"at"`
}
