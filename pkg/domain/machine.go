package domain

import (
	"fmt"
	"time"
)

// StateTransition records one applied stage change. Immutable once
// appended to a machine's history.
type StateTransition struct {
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Machine guards a single booking's stage progression. It is a value
// type: Apply returns a new machine and never mutates the receiver, so
// a rejected transition leaves the caller's copy untouched.
type Machine struct {
	Current  Stage             `json:"current"`
	Previous Stage             `json:"previous,omitempty"`
	History  []StateTransition `json:"history,omitempty"`
}

// NewMachine returns a machine at the initiated stage with an empty
// history.
func NewMachine() Machine {
	return Machine{Current: StageInitiated}
}

// Apply attempts the transition to target. On success it returns a new
// machine with the move appended to history. On rejection it returns
// the receiver unchanged and ErrInvalidTransition; it never panics.
func (m Machine) Apply(target Stage, reason string) (Machine, error) {
	if !m.Current.CanTransition(target) {
		return m, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Current, target)
	}

	next := Machine{
		Current:  target,
		Previous: m.Current,
		History:  make([]StateTransition, len(m.History), len(m.History)+1),
	}
	copy(next.History, m.History)
	next.History = append(next.History, StateTransition{
		From:   m.Current,
		To:     target,
		Reason: reason,
		At:     time.Now().UTC(),
	})
	return next, nil
}

// Terminal reports whether the machine has reached a sink stage.
func (m Machine) Terminal() bool {
	return m.Current.Terminal()
}
