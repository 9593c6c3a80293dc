package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/testutil"
)

func seedSession(t *testing.T, f *fixture) {
	t.Helper()
	f.creds.Save(context.Background(), "gw_cached", model.StoredUserData{
		UserID:         "42",
		ProviderUserID: "did:privy:u1",
		Email:          "cached@example.com",
		DisplayName:    "Ada",
		Credits:        50,
		Tier:           model.TierBasic,
	})
}

func TestRestoreNoSession(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	user, err := f.svc.RestoreSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Equal(t, 0, backend.Calls("/api/user"), "no probe without a credential")
}

func TestRestoreSuccessMergesBackendFields(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.UserBody = map[string]any{
		"email":        "fresh@example.com",
		"credits":      7,
		"display_name": "",
	}
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	user, err := f.svc.RestoreSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "gw_cached", user.APIKey)
	assert.Equal(t, "fresh@example.com", user.Email, "backend fields win")
	assert.Equal(t, "Ada", user.DisplayName, "cached fields fill gaps")
	assert.Equal(t, int64(7), user.Credits)

	assert.Equal(t, uint64(1), f.rec.Snapshot().Restores["restored"])
}

func TestRestoreExpiredClearsStorage(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.UserStatus = 401
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	user, err := f.svc.RestoreSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	assert.Empty(t, f.creds.APIKey(context.Background()))
	assert.Nil(t, f.creds.UserData(context.Background()))
	assert.Equal(t, uint64(1), f.rec.Snapshot().Restores["expired"])
}

func TestRestoreOptimisticOnBackendError(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.UserStatus = 500
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	user, err := f.svc.RestoreSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user, "backend hiccup must not log the user out")

	assert.Equal(t, "gw_cached", user.APIKey)
	assert.Equal(t, "cached@example.com", user.Email)
	assert.Equal(t, int64(50), user.Credits)
	assert.Equal(t, "gw_cached", f.creds.APIKey(context.Background()), "storage untouched")
	assert.Equal(t, uint64(1), f.rec.Snapshot().Restores["optimistic"])
}

func TestRestoreOptimisticOnNetworkError(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	seedSession(t, f)

	user, err := f.svc.RestoreSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "cached@example.com", user.Email)
}

func TestRefreshWithoutCredential(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	_, err := f.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeSessionExpired, autherr.CodeOf(err))
	assert.Equal(t, 0, backend.Calls("/api/auth/refresh"))
}

func TestRefreshSuccess(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.RefreshBody = map[string]any{
		"api_key":      "gw_rotated",
		"credits":      49.9,
		"display_name": "",
	}
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	var complete int
	f.bus.Subscribe(events.TopicRefreshComplete, func(events.Event) { complete++ })

	user, err := f.svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "gw_rotated", user.APIKey)
	assert.Equal(t, int64(49), user.Credits)
	assert.Equal(t, "Ada", user.DisplayName, "cached display name survives sparse response")

	assert.Equal(t, "gw_rotated", f.creds.APIKey(context.Background()), "rotated key persisted")
	assert.Equal(t, 1, complete)
	assert.Equal(t, uint64(1), f.rec.Snapshot().Refreshes["success"])
}

func TestRefreshExpiredClearsStorage(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.RefreshStatus = 401
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	_, err := f.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeSessionExpired, autherr.CodeOf(err))
	assert.Empty(t, f.creds.APIKey(context.Background()))
}

func TestRefreshFailureKeepsCredential(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.RefreshStatus = 500
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	_, err := f.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeBackendError, autherr.CodeOf(err))
	assert.Equal(t, "gw_cached", f.creds.APIKey(context.Background()),
		"refresh failure does not imply logout")
}

func TestRefreshNetworkFailureKeepsCredential(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1")
	seedSession(t, f)

	_, err := f.svc.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, autherr.CodeNetworkError, autherr.CodeOf(err))
	assert.Equal(t, "gw_cached", f.creds.APIKey(context.Background()))
}

func TestLogout(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())
	seedSession(t, f)

	var logouts int
	f.bus.Subscribe(events.TopicLogout, func(events.Event) { logouts++ })

	f.svc.Logout(context.Background())

	assert.Empty(t, f.creds.APIKey(context.Background()))
	assert.Nil(t, f.creds.UserData(context.Background()))
	assert.Equal(t, 1, logouts)

	// Server-side invalidation happens off the critical path.
	assert.Eventually(t, func() bool {
		return backend.Calls("/api/auth/invalidate") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogoutWithoutSessionSkipsInvalidation(t *testing.T) {
	backend := testutil.NewBackend(t)
	f := newFixture(t, backend.URL())

	f.svc.Logout(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, backend.Calls("/api/auth/invalidate"))
}
