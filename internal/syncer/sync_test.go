package syncer

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/storage"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/testutil"
)

type fixture struct {
	svc   *Service
	store *storage.MemoryStore
	creds *storage.CredentialStore
	bus   *events.Bus
	rec   *metrics.InMemoryRecorder
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()

	logger := testutil.DiscardLogger()
	store := storage.NewMemory()
	creds := storage.NewCredentialStore(store, logger)
	bus := events.New()
	rec := metrics.NewInMemory()

	cfg := Config{
		BaseURL:        baseURL,
		SyncTimeout:    2 * time.Second,
		RestoreTimeout: 2 * time.Second,
		RefreshTimeout: 2 * time.Second,
		MaxRetries:     2,
		Backoff: policy.BackoffConfig{
			Initial:    5 * time.Millisecond,
			Multiplier: 2,
			Max:        20 * time.Millisecond,
		},
	}
	return &fixture{
		svc:   New(cfg, creds, bus, logger, rec),
		store: store,
		creds: creds,
		bus:   bus,
		rec:   rec,
	}
}

func basicInput() SyncInput {
	return SyncInput{
		ProviderUserID: "did:privy:u1",
		Token:          "tok",
		AuthMethod:     model.AuthMethodEmail,
		LinkedAccounts: []model.LinkedAccount{
			{Type: "email", Email: "test@example.com"},
		},
	}
}

func TestSyncSuccess(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthBody = map[string]any{
		"credits":     12.7,
		"is_new_user": true,
		"tier":        "pro",
	}
	f := newFixture(t, backend.URL())

	var welcome []events.Event
	f.bus.Subscribe(events.TopicNewUserWelcome, func(e events.Event) { welcome = append(welcome, e) })
	var complete []events.Event
	f.bus.Subscribe(events.TopicRefreshComplete, func(e events.Event) { complete = append(complete, e) })

	user, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.NoError(t, err)

	assert.Equal(t, "42", user.UserID)
	assert.Equal(t, "gw_test_key", user.APIKey)
	assert.Equal(t, int64(12), user.Credits, "fractional credits are floored")
	assert.Equal(t, model.TierPro, user.Tier)
	assert.True(t, user.IsNewUser)

	// Write-through: credential and snapshot are persisted.
	assert.Equal(t, "gw_test_key", f.creds.APIKey(context.Background()))
	snap := f.creds.UserData(context.Background())
	require.NotNil(t, snap)
	assert.Equal(t, int64(12), snap.Credits)
	assert.False(t, snap.SyncedAt.IsZero())

	require.Len(t, welcome, 1)
	assert.Equal(t, WelcomeGrant{Credits: 12}, welcome[0].Payload)
	assert.Len(t, complete, 1)

	assert.Equal(t, 1, backend.Calls("/api/auth"))
	assert.Equal(t, uint64(1), f.rec.Snapshot().SyncAttempts["success"])
}

func TestSyncExistingUserNoWelcome(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	fired := false
	f.bus.Subscribe(events.TopicNewUserWelcome, func(events.Event) { fired = true })

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestSyncUnauthorizedIsTerminal(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthScript = []int{401}
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeInvalidToken, autherr.CodeOf(err))
	assert.Equal(t, 1, backend.Calls("/api/auth"), "401 is never retried")
}

func TestSyncRateLimitedCarriesRetryAfter(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthScript = []int{429}
	backend.RetryAfter = "30"
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)

	var aerr *autherr.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, autherr.CodeRateLimited, aerr.Code)
	assert.Equal(t, "30", aerr.Details["retry_after"])
	assert.Equal(t, int64(30), aerr.Details["retry_after_seconds"])
	assert.Equal(t, 1, backend.Calls("/api/auth"))
}

func TestSyncRetriesServiceUnavailable(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthScript = []int{503, 503, 503}
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeBackendError, autherr.CodeOf(err))
	assert.Equal(t, 3, backend.Calls("/api/auth"), "one initial attempt plus two retries")
	assert.Equal(t, uint64(3), f.rec.Snapshot().SyncAttempts["retryable"])
}

func TestSyncRecoversAfterRetry(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthScript = []int{503, 502}
	f := newFixture(t, backend.URL())

	user, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.NoError(t, err)
	assert.Equal(t, "gw_test_key", user.APIKey)
	assert.Equal(t, 3, backend.Calls("/api/auth"))
}

func TestSyncBadRequestIsTerminal(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthScript = []int{400}
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeBackendError, autherr.CodeOf(err))
	assert.Equal(t, 1, backend.Calls("/api/auth"))
}

func TestSyncMissingCredentialIsTerminal(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthBody = map[string]any{"api_key": ""}
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeBackendError, autherr.CodeOf(err))
	assert.Empty(t, f.creds.APIKey(context.Background()), "nothing persisted on failure")
}

func TestSyncNetworkErrorAfterRetries(t *testing.T) {
	// Nothing listens here; connections are refused immediately.
	f := newFixture(t, "http://127.0.0.1:1")

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
}

func TestSyncTimeoutClassification(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthDelay = 500 * time.Millisecond
	f := newFixture(t, backend.URL())
	f.svc.cfg.SyncTimeout = 20 * time.Millisecond
	f.svc.cfg.MaxRetries = 1

	_, err := f.svc.SyncWithBackend(context.Background(), basicInput())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeTimeout, autherr.CodeOf(err))
	assert.Equal(t, 2, backend.Calls("/api/auth"), "timeouts are retried")
}

func TestSyncSingleFlight(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AuthDelay = 150 * time.Millisecond
	f := newFixture(t, backend.URL())

	const callers = 5
	users := make([]*model.AuthenticatedUser, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			users[i], errs[i] = f.svc.SyncWithBackend(context.Background(), basicInput())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, backend.Calls("/api/auth"), "concurrent callers share one request")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, users[0], users[i], "all callers observe the same outcome")
	}
}

func TestSyncRequiresProviderUserID(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	_, err := f.svc.SyncWithBackend(context.Background(), SyncInput{Token: "tok"})
	require.Error(t, err)
	assert.Equal(t, 0, backend.Calls("/api/auth"))
}

func TestSyncPayloadShape(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	// Referral code present in storage rides along.
	require.NoError(t, f.store.Set(context.Background(), storage.KeyReferralCode, "FRIEND50"))

	input := SyncInput{
		ProviderUserID: "did:privy:u1",
		Token:          "tok",
		LinkedAccounts: []model.LinkedAccount{
			{Type: "github_oauth", Username: "octo"},
			{Type: "wallet", Address: "0xabc"},
		},
	}
	_, err := f.svc.SyncWithBackend(context.Background(), input)
	require.NoError(t, err)

	req := backend.LastAuthRequest()
	require.NotNil(t, req)
	assert.Equal(t, "did:privy:u1", req["privy_user_id"])
	assert.Equal(t, "tok", req["token"])
	assert.Equal(t, "FRIEND50", req["referral_code"])

	user := req["user"].(map[string]any)
	assert.Equal(t, "octo", user["github_username"])
	assert.Equal(t, "0xabc", user["wallet_address"])

	accounts := user["linked_accounts"].([]any)
	require.Len(t, accounts, 2)
	first := accounts[0].(map[string]any)
	assert.Equal(t, "github", first["type"], "provider type names are normalized")
}

func TestMaxSyncFlowDuration(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	// Deterministic and comfortably above a single attempt timeout.
	d := f.svc.MaxSyncFlowDuration()
	assert.Greater(t, d, f.svc.cfg.SyncTimeout)
}

func TestParseRetryAfter(t *testing.T) {
	secs, ok := parseRetryAfter("30")
	require.True(t, ok)
	assert.Equal(t, int64(30), secs)

	date := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	secs, ok = parseRetryAfter(date)
	require.True(t, ok)
	assert.InDelta(t, 90, secs, 2)

	// Past dates clamp to zero.
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	secs, ok = parseRetryAfter(past)
	require.True(t, ok)
	assert.Zero(t, secs)

	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)
}
