// Package ports defines the interfaces between the engine and its
// pluggable infrastructure: context and session repositories, per-key
// locking, the drop-off notification side channel and telemetry
// listeners. Adapters live under pkg/adapters.
package ports
