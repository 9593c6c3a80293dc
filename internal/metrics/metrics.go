// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the auth core.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Backend sync metrics
	IncSyncAttempt(outcome string) // outcome: "success", "retryable", "terminal"
	ObserveSyncDuration(duration time.Duration)

	// Session restoration metrics
	IncRestore(outcome string) // outcome: "restored", "miss", "expired", "optimistic"

	// Credential refresh metrics
	IncRefresh(outcome string) // outcome: "success", "expired", "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
