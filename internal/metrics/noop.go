package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncSyncAttempt is a no-op.
func (n *NoopRecorder) IncSyncAttempt(outcome string) {}

// ObserveSyncDuration is a no-op.
func (n *NoopRecorder) ObserveSyncDuration(duration time.Duration) {}

// IncRestore is a no-op.
func (n *NoopRecorder) IncRestore(outcome string) {}

// IncRefresh is a no-op.
func (n *NoopRecorder) IncRefresh(outcome string) {}
