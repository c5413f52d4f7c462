package domain

import "time"

// Well-known hesitation-point tags. Free-form tags are accepted too;
// these are the ones the built-in rule tables key on.
const (
	HesitationPrice    = "price"
	HesitationDeadline = "deadline"
	HesitationResource = "resource"
	HesitationDelay    = "delay"
	HesitationPayment  = "payment"
	HesitationParts    = "parts"
)

// DeviceSignal carries optional client-device attributes captured at
// initialization.
type DeviceSignal struct {
	Platform   string `json:"platform,omitempty"`
	Model      string `json:"model,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

// TxContext is the per-transaction working state. It owns exactly one
// state machine; every stage mutation goes through Machine.Apply.
//
// A context has one logical owner at a time. The orchestrator
// serializes operations per transaction id; the type itself is not
// safe for concurrent mutation.
type TxContext struct {
	TxID       string `json:"tx_id"`
	CustomerID string `json:"customer_id"`
	SessionID  string `json:"session_id"`

	Machine Machine `json:"machine"`

	// Confidence is the customer's last reported confidence, 0-100.
	Confidence  int    `json:"confidence"`
	CurrentView string `json:"current_view,omitempty"`

	Hesitations TagSet `json:"hesitations,omitempty"`
	RiskFactors TagSet `json:"risk_factors,omitempty"`

	// Optional signals supplied by the surrounding product layer.
	Device       *DeviceSignal `json:"device,omitempty"`
	QuotedPrice  float64       `json:"quoted_price,omitempty"`
	ResourceID   string        `json:"resource_id,omitempty"`
	PartsPending bool          `json:"parts_pending,omitempty"`
	PromisedBy   *time.Time    `json:"promised_by,omitempty"`
	LoyaltyTier  string        `json:"loyalty_tier,omitempty"`

	// Accumulated outcomes, append-only.
	Events       []TelemetryEvent `json:"events,omitempty"`
	TrustHistory []TrustMessage   `json:"trust_history,omitempty"`
	HookHistory  []HookResult     `json:"hook_history,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	StageEnteredAt time.Time `json:"stage_entered_at"`
}

// NewTxContext creates a context at the initiated stage. Confidence
// starts at the neutral midpoint until the client reports a level.
func NewTxContext(txID, customerID, sessionID string) *TxContext {
	now := time.Now().UTC()
	return &TxContext{
		TxID:           txID,
		CustomerID:     customerID,
		SessionID:      sessionID,
		Machine:        NewMachine(),
		Confidence:     50,
		Hesitations:    NewTagSet(),
		RiskFactors:    NewTagSet(),
		CreatedAt:      now,
		StageEnteredAt: now,
	}
}

// Stage is shorthand for the machine's current stage.
func (c *TxContext) Stage() Stage {
	return c.Machine.Current
}

// Hesitating reports whether the given point has been recorded.
func (c *TxContext) Hesitating(point string) bool {
	return c.Hesitations.Has(point)
}

// Clone returns a deep copy. Stores use it to keep callers isolated
// from their internal state.
func (c *TxContext) Clone() *TxContext {
	out := *c
	out.Hesitations = c.Hesitations.Clone()
	out.RiskFactors = c.RiskFactors.Clone()
	out.Events = append([]TelemetryEvent(nil), c.Events...)
	out.TrustHistory = append([]TrustMessage(nil), c.TrustHistory...)
	out.HookHistory = append([]HookResult(nil), c.HookHistory...)
	out.Machine.History = append([]StateTransition(nil), c.Machine.History...)
	if c.Device != nil {
		d := *c.Device
		out.Device = &d
	}
	if c.PromisedBy != nil {
		t := *c.PromisedBy
		out.PromisedBy = &t
	}
	return &out
}
