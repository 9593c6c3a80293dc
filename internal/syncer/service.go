// Package syncer implements the backend synchronization protocol:
// exchanging an identity-provider login for a Gatewayz API credential,
// restoring and refreshing cached sessions, and logout. It owns the
// retry loop, per-attempt timeouts, and single-flight deduplication.
package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/storage"
)

// maxResponseBody bounds how much of a backend response is read.
const maxResponseBody = 1 << 20

// Backend endpoints consumed by the service.
const (
	pathAuth       = "/api/auth"
	pathRefresh    = "/api/auth/refresh"
	pathUser       = "/api/user"
	pathInvalidate = "/api/auth/invalidate"
)

// Config parameterizes a Service.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.gatewayz.ai.
	BaseURL string

	// Per-attempt timeouts. Sync and refresh timeouts are scaled by
	// network conditions; the restore timeout is a fixed fast probe.
	SyncTimeout    time.Duration
	RestoreTimeout time.Duration
	RefreshTimeout time.Duration

	// MaxRetries is the number of retries after the first sync attempt.
	MaxRetries int

	// Backoff is the delay policy between sync attempts.
	Backoff policy.BackoffConfig

	// RetryableStatuses are HTTP statuses retried within the attempt
	// budget. Defaults to 502, 503, 504.
	RetryableStatuses []int
}

func (c Config) withDefaults() Config {
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = policy.DefaultSyncTimeout
	}
	if c.RestoreTimeout <= 0 {
		c.RestoreTimeout = policy.DefaultRestoreTimeout
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = policy.DefaultRefreshTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff == (policy.BackoffConfig{}) {
		c.Backoff = policy.DefaultBackoff()
	}
	if c.RetryableStatuses == nil {
		c.RetryableStatuses = []int{
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return c
}

// Service performs the network protocol against the Gatewayz backend.
type Service struct {
	cfg     Config
	client  *http.Client
	creds   *storage.CredentialStore
	bus     *events.Bus
	metrics metrics.Recorder
	logger  *slog.Logger
	netsrc  policy.ConditionSource
	flight  singleflight.Group
}

// New creates a Service. A nil recorder falls back to a no-op.
func New(cfg Config, creds *storage.CredentialStore, bus *events.Bus, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		client:  NewHTTPClient(),
		creds:   creds,
		bus:     bus,
		metrics: recorder,
		logger:  logger.With("component", "syncer"),
	}
}

// SetHTTPClient overrides the default HTTP client.
func (s *Service) SetHTTPClient(client *http.Client) {
	if client != nil {
		s.client = client
	}
}

// SetConditionSource installs a network-condition sampler used to scale
// timeouts. Without one, timeouts assume moderate network quality.
func (s *Service) SetConditionSource(src policy.ConditionSource) {
	s.netsrc = src
}

// MaxSyncFlowDuration is the deterministic worst-case duration of a full
// sync flow, usable by callers to bound loading-state timers.
func (s *Service) MaxSyncFlowDuration() time.Duration {
	perAttempt := policy.AdaptiveTimeout(s.cfg.SyncTimeout, s.netsrc)
	return policy.MaxFlowDuration(perAttempt, s.cfg.MaxRetries, s.cfg.Backoff, policy.DefaultSafetyBuffer)
}

// retryableStatus reports whether the HTTP status is in the retryable set.
func (s *Service) retryableStatus(status int) bool {
	for _, code := range s.cfg.RetryableStatuses {
		if status == code {
			return true
		}
	}
	return false
}

// classifyTransport maps a request error to TIMEOUT (deadline fired)
// or NETWORK_ERROR (anything else).
func classifyTransport(err error) *autherr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return autherr.Wrap(autherr.CodeTimeout, "request timed out", err)
	}
	return autherr.Wrap(autherr.CodeNetworkError, "request failed", err)
}

// readBody drains up to maxResponseBody bytes of a response body.
func readBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return ""
	}
	return string(data)
}

// redactKey shortens a credential for logging.
func redactKey(key string) string {
	if len(key) <= 8 {
		return "[redacted]"
	}
	return key[:8] + "..."
}
