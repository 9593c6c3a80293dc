// Package policy provides pure computations for retry backoff and
// network-adaptive timeouts. Nothing here performs I/O; callers feed in
// configuration and an optional network-condition sample.
package policy

import (
	"math"
	"math/rand"
	"time"
)

const (
	// DefaultSyncTimeout is the per-attempt budget for a backend sync call.
	DefaultSyncTimeout = 15 * time.Second
	// DefaultRestoreTimeout bounds the session-restoration liveness check.
	DefaultRestoreTimeout = 5 * time.Second
	// DefaultRefreshTimeout bounds a credential refresh call.
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of retries after the first sync attempt.
	DefaultMaxRetries = 2

	// DefaultInitialBackoff is the delay before the first retry.
	DefaultInitialBackoff = 500 * time.Millisecond
	// DefaultBackoffMultiplier grows the delay per retry.
	DefaultBackoffMultiplier = 2.0
	// DefaultMaxBackoff caps the delay between retries.
	DefaultMaxBackoff = 5 * time.Second

	// JitterFactor is the ±fraction of jitter applied to backoff delays.
	JitterFactor = 0.1

	// DefaultSafetyBuffer pads the worst-case flow duration estimate.
	DefaultSafetyBuffer = 2 * time.Second
)

// BackoffConfig parameterizes exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff returns the standard backoff parameters.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:    DefaultInitialBackoff,
		Multiplier: DefaultBackoffMultiplier,
		Max:        DefaultMaxBackoff,
	}
}

// Delay calculates the backoff delay for a 0-indexed retry attempt:
// min(initial * multiplier^attempt, max), with ±10% uniform jitter,
// floored to a whole millisecond. Never negative.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	capped := math.Min(base, float64(c.Max))

	jitterRange := capped * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	ms := math.Floor((capped + jitter) / float64(time.Millisecond))
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxDelay is the upper bound of Delay for any attempt, jitter included.
func (c BackoffConfig) MaxDelay() time.Duration {
	return time.Duration(float64(c.Max) * (1 + JitterFactor))
}

// MaxFlowDuration is the deterministic worst-case duration of a retried
// flow: each attempt running to its full timeout plus the jitter-inclusive
// backoff before every retry, plus a safety buffer. UI loading timers use
// this to bound the wait without guessing.
func MaxFlowDuration(perAttempt time.Duration, maxRetries int, backoff BackoffConfig, safetyBuffer time.Duration) time.Duration {
	if maxRetries < 0 {
		maxRetries = 0
	}

	total := time.Duration(maxRetries+1) * perAttempt
	for i := 0; i < maxRetries; i++ {
		base := float64(backoff.Initial) * math.Pow(backoff.Multiplier, float64(i))
		capped := math.Min(base, float64(backoff.Max))
		total += time.Duration(capped * (1 + JitterFactor))
	}
	return total + safetyBuffer
}
