package domain

import "time"

// PageVisit is one recorded page view within a session.
type PageVisit struct {
	URL        string    `json:"url"`
	View       string    `json:"view"`
	Stage      Stage     `json:"stage"`
	Confidence int       `json:"confidence"`
	At         time.Time `json:"at"`
}

// SessionRecord tracks one browsing session's behavioral signals. It
// lives independently of any TxContext: a session may exist before a
// booking starts and is correlated by session id once one does.
//
// Visits and ConfidenceTrend are append-only; flags only ever flip
// from false to true.
type SessionRecord struct {
	ID string `json:"id"`

	Visits          []PageVisit `json:"visits,omitempty"`
	ConfidenceTrend []int       `json:"confidence_trend,omitempty"`
	RiskFactors     TagSet      `json:"risk_factors,omitempty"`

	Complete   bool `json:"complete"`
	DroppedOff bool `json:"dropped_off"`
	Bounced    bool `json:"bounced"`

	Stage          Stage     `json:"stage"`
	StageEnteredAt time.Time `json:"stage_entered_at"`

	StartedAt time.Time `json:"started_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// NewSessionRecord starts a session at the given instant.
func NewSessionRecord(id string, now time.Time) *SessionRecord {
	return &SessionRecord{
		ID:             id,
		RiskFactors:    NewTagSet(),
		Stage:          StageInitiated,
		StageEnteredAt: now,
		StartedAt:      now,
		LastSeen:       now,
	}
}

// LastVisit returns the most recent visit, or nil if none recorded.
func (s *SessionRecord) LastVisit() *PageVisit {
	if len(s.Visits) == 0 {
		return nil
	}
	return &s.Visits[len(s.Visits)-1]
}

// Clone returns a deep copy for store isolation.
func (s *SessionRecord) Clone() *SessionRecord {
	out := *s
	out.Visits = append([]PageVisit(nil), s.Visits...)
	out.ConfidenceTrend = append([]int(nil), s.ConfidenceTrend...)
	out.RiskFactors = s.RiskFactors.Clone()
	return &out
}
