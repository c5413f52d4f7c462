// Package domain holds the core data model of the conversion engine:
// lifecycle stages and their legal transitions, the per-transaction
// context, behavioral session records, and the value types exchanged
// between the detector, the rule engines and the orchestrator.
//
// Types here carry no behavior beyond their own invariants. They do not
// log, emit telemetry or touch stores; that is the caller's job.
package domain
