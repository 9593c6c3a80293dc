package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
)

// Storage keys, namespaced under the application prefix.
const (
	KeyAPIKey       = "gatewayz:auth:api_key"
	KeyUserData     = "gatewayz:auth:user_data"
	KeyReferralCode = "gatewayz:auth:referral_code"
)

// CredentialStore persists the API credential and user-profile snapshot.
// Every operation is best-effort: storage failures are logged and
// swallowed, so loss of persistence degrades to "re-authenticate on next
// start" instead of failing the auth flow.
type CredentialStore struct {
	store  Store
	logger *slog.Logger
}

// NewCredentialStore wraps a Store with the fixed credential keys.
func NewCredentialStore(store Store, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{
		store:  store,
		logger: logger.With("component", "storage.credentials"),
	}
}

// APIKey returns the cached credential, or "" if none is stored.
func (c *CredentialStore) APIKey(ctx context.Context) string {
	v, err := c.store.Get(ctx, KeyAPIKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("failed to read api key", "error", err)
		}
		return ""
	}
	return v
}

// UserData returns the cached profile snapshot, or nil if absent or
// unparseable. A corrupt snapshot is treated as a miss.
func (c *CredentialStore) UserData(ctx context.Context) *model.StoredUserData {
	v, err := c.store.Get(ctx, KeyUserData)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("failed to read user data", "error", err)
		}
		return nil
	}

	var data model.StoredUserData
	if err := json.Unmarshal([]byte(v), &data); err != nil {
		c.logger.Warn("corrupt user data snapshot, discarding", "error", err)
		return nil
	}
	return &data
}

// ReferralCode returns the stored referral code, or "" if none.
// This core only ever reads the code; the signup surface writes it.
func (c *CredentialStore) ReferralCode(ctx context.Context) string {
	v, err := c.store.Get(ctx, KeyReferralCode)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("failed to read referral code", "error", err)
		}
		return ""
	}
	return v
}

// Save writes the credential and profile snapshot through to storage.
func (c *CredentialStore) Save(ctx context.Context, apiKey string, data model.StoredUserData) {
	if err := c.store.Set(ctx, KeyAPIKey, apiKey); err != nil {
		c.logger.Warn("failed to persist api key", "error", err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("failed to marshal user data", "error", err)
		return
	}
	if err := c.store.Set(ctx, KeyUserData, string(payload)); err != nil {
		c.logger.Warn("failed to persist user data", "error", err)
	}
}

// Clear removes the credential and profile snapshot. The referral code
// survives logout so a later signup can still claim it.
func (c *CredentialStore) Clear(ctx context.Context) {
	if err := c.store.Delete(ctx, KeyAPIKey, KeyUserData); err != nil {
		c.logger.Warn("failed to clear credentials", "error", err)
	}
}
