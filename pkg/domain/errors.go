package domain

import "errors"

// ErrInvalidTransition is returned when a target stage is not in the
// legal-transition set for the current stage. The machine is left
// untouched.
var ErrInvalidTransition = errors.New("invalid stage transition")

// ErrContextExists is returned when initializing a transaction whose id
// is already active.
var ErrContextExists = errors.New("transaction context already exists")

// ErrContextNotFound is returned when a transaction id is unknown.
var ErrContextNotFound = errors.New("transaction context not found")

// ErrSessionNotFound is returned when a session id cannot be found in
// the store.
var ErrSessionNotFound = errors.New("session not found")
