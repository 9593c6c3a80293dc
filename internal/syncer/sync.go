package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
)

// WelcomeGrant is the payload of a new-user-welcome notification.
type WelcomeGrant struct {
	Credits int64 `json:"credits"`
}

// SyncWithBackend exchanges the identity-provider login result for a
// backend-issued API credential, retrying transient failures within the
// configured attempt budget.
//
// Concurrent calls for the same provider user collapse into one network
// flow; followers receive the leader's outcome. The leader's context
// governs the in-flight call.
func (s *Service) SyncWithBackend(ctx context.Context, input SyncInput) (*model.AuthenticatedUser, error) {
	if input.ProviderUserID == "" {
		return nil, autherr.New(autherr.CodeUnknown, "provider user id is required")
	}

	v, err, _ := s.flight.Do("sync:"+input.ProviderUserID, func() (any, error) {
		return s.doSync(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.AuthenticatedUser), nil
}

func (s *Service) doSync(ctx context.Context, input SyncInput) (*model.AuthenticatedUser, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSyncDuration(time.Since(start))
	}()

	payload, err := json.Marshal(s.buildSyncRequest(ctx, input))
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeUnknown, "marshal sync request", err)
	}

	var lastErr *autherr.Error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.cfg.Backoff.Delay(attempt - 1)
			s.logger.Debug("backing off before retry",
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, classifyTransport(ctx.Err())
			case <-timer.C:
			}
		}

		user, aerr, retry := s.attemptSync(ctx, payload)
		if aerr == nil {
			s.metrics.IncSyncAttempt("success")
			s.finishSync(ctx, user)
			return user, nil
		}
		if !retry {
			s.metrics.IncSyncAttempt("terminal")
			s.logger.Warn("sync failed",
				"attempt", attempt,
				"code", aerr.Code,
				"error", aerr.Message,
			)
			return nil, aerr
		}
		s.metrics.IncSyncAttempt("retryable")
		s.logger.Warn("sync attempt failed",
			"attempt", attempt,
			"code", aerr.Code,
			"error", aerr.Message,
		)
		lastErr = aerr
	}

	return nil, lastErr
}

// attemptSync performs one POST /api/auth under the adaptive timeout and
// classifies the outcome. retry reports whether the failure is worth
// another attempt within this flow.
func (s *Service) attemptSync(ctx context.Context, payload []byte) (user *model.AuthenticatedUser, aerr *autherr.Error, retry bool) {
	timeout := policy.AdaptiveTimeout(s.cfg.SyncTimeout, s.netsrc)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.BaseURL+pathAuth, bytes.NewReader(payload))
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeUnknown, "create sync request", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err), true
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		drain(resp)
		return nil, autherr.New(autherr.CodeInvalidToken, "identity token rejected"), false

	case resp.StatusCode == http.StatusTooManyRequests:
		drain(resp)
		e := autherr.New(autherr.CodeRateLimited, "rate limited by backend")
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			e.WithDetail("retry_after", ra)
			if secs, ok := parseRetryAfter(ra); ok {
				e.WithDetail("retry_after_seconds", secs)
			}
		}
		return nil, e, false

	case s.retryableStatus(resp.StatusCode):
		drain(resp)
		e := autherr.Newf(autherr.CodeBackendError, "backend unavailable (HTTP %d)", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
		return nil, e, true

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		e := autherr.Newf(autherr.CodeBackendError, "sync rejected (HTTP %d)", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", readBody(resp))
		return nil, e, false
	}

	var decoded syncResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&decoded); err != nil {
		return nil, autherr.Wrap(autherr.CodeBackendError, "malformed sync response", err), false
	}
	if !decoded.Success || decoded.APIKey == "" {
		return nil, autherr.New(autherr.CodeBackendError, "sync response missing credential"), false
	}

	u := decoded.snapshot().User(decoded.APIKey)
	u.IsNewUser = decoded.IsNewUser
	return u, nil, false
}

// finishSync persists the session write-through and emits notifications.
func (s *Service) finishSync(ctx context.Context, user *model.AuthenticatedUser) {
	stored := user.Stored()
	stored.SyncedAt = time.Now().UTC()
	s.creds.Save(ctx, user.APIKey, stored)

	s.logger.Info("backend sync complete",
		"user_id", user.UserID,
		"api_key", redactKey(user.APIKey),
		"new_user", user.IsNewUser,
		"credits", user.Credits,
	)

	s.bus.Publish(events.TopicRefreshComplete, user)
	if user.IsNewUser {
		s.bus.Publish(events.TopicNewUserWelcome, WelcomeGrant{Credits: user.Credits})
	}
}

// parseRetryAfter accepts the two header forms: delay seconds or an
// HTTP-date.
func parseRetryAfter(v string) (int64, bool) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return secs, true
	}
	if at, err := http.ParseTime(v); err == nil {
		secs := int64(time.Until(at).Seconds())
		if secs < 0 {
			secs = 0
		}
		return secs, true
	}
	return 0, false
}

// drain empties a response body so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
}
