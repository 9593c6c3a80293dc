package syncer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
)

// RestoreSession validates a cached credential against the backend and
// rebuilds the session. Returns (nil, nil) when no session is cached or
// the credential is truly expired.
//
// The validation probe is fast and never retried. Only a definitive 401
// logs the user out; any other failure yields the cached session
// unchanged, trading freshness for availability so a backend hiccup
// cannot log out a user holding a usable credential.
func (s *Service) RestoreSession(ctx context.Context) (*model.AuthenticatedUser, error) {
	v, err, _ := s.flight.Do("restore", func() (any, error) {
		return s.doRestore(ctx), nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*model.AuthenticatedUser), nil
}

func (s *Service) doRestore(ctx context.Context) *model.AuthenticatedUser {
	apiKey := s.creds.APIKey(ctx)
	if apiKey == "" {
		s.metrics.IncRestore("miss")
		return nil
	}

	cached := s.creds.UserData(ctx)

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RestoreTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.cfg.BaseURL+pathUser, nil)
	if err != nil {
		return s.optimisticRestore(cached, apiKey, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return s.optimisticRestore(cached, apiKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		s.logger.Info("cached session expired, clearing credentials")
		s.creds.Clear(ctx)
		s.metrics.IncRestore("expired")
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		drain(resp)
		return s.optimisticRestore(cached, apiKey,
			autherr.Newf(autherr.CodeBackendError, "validation returned HTTP %d", resp.StatusCode))
	}

	var decoded syncResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&decoded); err != nil {
		return s.optimisticRestore(cached, apiKey, err)
	}

	fresh := decoded.snapshot()
	merged := fresh
	if cached != nil {
		merged = cached.MergedWith(fresh)
	}
	merged.SyncedAt = time.Now().UTC()
	s.creds.Save(ctx, apiKey, merged)

	s.metrics.IncRestore("restored")
	s.logger.Info("session restored", "user_id", merged.UserID)
	return merged.User(apiKey)
}

// optimisticRestore falls back to the cached snapshot on inconclusive
// validation failures.
func (s *Service) optimisticRestore(cached *model.StoredUserData, apiKey string, cause error) *model.AuthenticatedUser {
	if cached == nil {
		s.metrics.IncRestore("miss")
		s.logger.Warn("session validation failed and no cached profile", "error", cause)
		return nil
	}
	s.metrics.IncRestore("optimistic")
	s.logger.Warn("session validation inconclusive, keeping cached session",
		"user_id", cached.UserID,
		"error", cause,
	)
	return cached.User(apiKey)
}

// Refresh re-issues the API credential using the cached one. A 401
// clears storage and reports SESSION_EXPIRED; any other failure leaves
// the cached credential in place, because a failed refresh does not
// imply the session is gone. Concurrent calls share one flow.
func (s *Service) Refresh(ctx context.Context) (*model.AuthenticatedUser, error) {
	v, err, _ := s.flight.Do("refresh", func() (any, error) {
		return s.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.AuthenticatedUser), nil
}

func (s *Service) doRefresh(ctx context.Context) (*model.AuthenticatedUser, error) {
	apiKey := s.creds.APIKey(ctx)
	if apiKey == "" {
		s.metrics.IncRefresh("expired")
		return nil, autherr.New(autherr.CodeSessionExpired, "no credential to refresh")
	}

	timeout := policy.AdaptiveTimeout(s.cfg.RefreshTimeout, s.netsrc)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.BaseURL+pathRefresh, nil)
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeUnknown, "create refresh request", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		s.metrics.IncRefresh("failed")
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		s.creds.Clear(ctx)
		s.metrics.IncRefresh("expired")
		return nil, autherr.New(autherr.CodeSessionExpired, "credential no longer accepted")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.metrics.IncRefresh("failed")
		return nil, autherr.Newf(autherr.CodeBackendError, "refresh rejected (HTTP %d)", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", readBody(resp))
	}

	var decoded syncResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&decoded); err != nil {
		s.metrics.IncRefresh("failed")
		return nil, autherr.Wrap(autherr.CodeBackendError, "malformed refresh response", err)
	}
	if !decoded.Success {
		s.metrics.IncRefresh("failed")
		return nil, autherr.New(autherr.CodeBackendError, "refresh response unsuccessful")
	}

	// Backend fields win; cached fields fill gaps the response left out.
	merged := decoded.snapshot()
	if cached := s.creds.UserData(ctx); cached != nil {
		merged = cached.MergedWith(decoded.snapshot())
	}
	merged.SyncedAt = time.Now().UTC()

	newKey := decoded.APIKey
	if newKey == "" {
		newKey = apiKey
	}
	s.creds.Save(ctx, newKey, merged)

	s.metrics.IncRefresh("success")
	s.logger.Info("credential refreshed",
		"user_id", merged.UserID,
		"api_key", redactKey(newKey),
	)

	user := merged.User(newKey)
	s.bus.Publish(events.TopicRefreshComplete, user)
	return user, nil
}

// Logout clears the persisted session and notifies subscribers. The
// backend invalidation call runs off the critical path and is purely
// best-effort; logout never waits on the network.
func (s *Service) Logout(ctx context.Context) {
	apiKey := s.creds.APIKey(ctx)
	s.creds.Clear(ctx)
	s.logger.Info("logged out")
	s.bus.Publish(events.TopicLogout, nil)

	if apiKey == "" {
		return
	}
	go s.invalidate(apiKey)
}

func (s *Service) invalidate(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+pathInvalidate, nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("server-side invalidation failed", "error", err)
		return
	}
	defer resp.Body.Close()
	drain(resp)
}
