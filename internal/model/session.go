// Package model defines domain entities for the authentication core.
package model

import (
	"math"
	"time"
)

// Tier is the subscription tier of an account.
type Tier string

// Known subscription tiers.
const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierMax   Tier = "max"
)

// ParseTier maps a backend tier string to a Tier, defaulting to basic.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro:
		return TierPro
	case TierMax:
		return TierMax
	default:
		return TierBasic
	}
}

// AuthMethod is how the user proved their identity to the provider.
type AuthMethod string

// Supported authentication methods.
const (
	AuthMethodEmail           AuthMethod = "email"
	AuthMethodGoogle          AuthMethod = "google"
	AuthMethodGitHub          AuthMethod = "github"
	AuthMethodWallet          AuthMethod = "wallet"
	AuthMethodSessionTransfer AuthMethod = "session_transfer"
)

// Subscription holds optional subscription metadata returned by the backend.
type Subscription struct {
	Status  string `json:"status,omitempty"`
	EndDate string `json:"end_date,omitempty"`
}

// AuthenticatedUser is the authoritative in-memory session record.
// It is created only by a successful sync, refresh, or restoration and
// destroyed only by logout or detected session invalidation.
type AuthenticatedUser struct {
	UserID          string
	ProviderUserID  string
	APIKey          string
	Email           string
	DisplayName     string
	Credits         int64
	Tier            Tier
	TierDisplayName string
	Subscription    *Subscription
	IsNewUser       bool
	AuthMethod      AuthMethod
}

// Stored returns the serializable subset of the session that is persisted.
// The API key is stored under its own key and is intentionally absent here.
func (u *AuthenticatedUser) Stored() StoredUserData {
	s := StoredUserData{
		UserID:          u.UserID,
		ProviderUserID:  u.ProviderUserID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Credits:         u.Credits,
		Tier:            u.Tier,
		TierDisplayName: u.TierDisplayName,
		AuthMethod:      u.AuthMethod,
	}
	if u.Subscription != nil {
		s.SubscriptionStatus = u.Subscription.Status
		s.SubscriptionEndDate = u.Subscription.EndDate
	}
	return s
}

// StoredUserData is the persisted user-profile snapshot.
type StoredUserData struct {
	UserID              string     `json:"user_id"`
	ProviderUserID      string     `json:"privy_user_id"`
	Email               string     `json:"email,omitempty"`
	DisplayName         string     `json:"display_name,omitempty"`
	Credits             int64      `json:"credits"`
	Tier                Tier       `json:"tier,omitempty"`
	TierDisplayName     string     `json:"tier_display_name,omitempty"`
	SubscriptionStatus  string     `json:"subscription_status,omitempty"`
	SubscriptionEndDate string     `json:"subscription_end_date,omitempty"`
	AuthMethod          AuthMethod `json:"auth_method,omitempty"`
	SyncedAt            time.Time  `json:"synced_at,omitempty"`
}

// User rebuilds the in-memory session record from a snapshot plus the
// separately stored credential.
func (s StoredUserData) User(apiKey string) *AuthenticatedUser {
	u := &AuthenticatedUser{
		UserID:          s.UserID,
		ProviderUserID:  s.ProviderUserID,
		APIKey:          apiKey,
		Email:           s.Email,
		DisplayName:     s.DisplayName,
		Credits:         s.Credits,
		Tier:            s.Tier,
		TierDisplayName: s.TierDisplayName,
		AuthMethod:      s.AuthMethod,
	}
	if s.SubscriptionStatus != "" || s.SubscriptionEndDate != "" {
		u.Subscription = &Subscription{Status: s.SubscriptionStatus, EndDate: s.SubscriptionEndDate}
	}
	return u
}

// MergedWith overlays fresh backend fields onto the cached snapshot.
// Backend fields win; cached fields fill gaps the backend left empty.
func (s StoredUserData) MergedWith(fresh StoredUserData) StoredUserData {
	out := s
	if fresh.UserID != "" {
		out.UserID = fresh.UserID
	}
	if fresh.ProviderUserID != "" {
		out.ProviderUserID = fresh.ProviderUserID
	}
	if fresh.Email != "" {
		out.Email = fresh.Email
	}
	if fresh.DisplayName != "" {
		out.DisplayName = fresh.DisplayName
	}
	out.Credits = fresh.Credits
	if fresh.Tier != "" {
		out.Tier = fresh.Tier
	}
	if fresh.TierDisplayName != "" {
		out.TierDisplayName = fresh.TierDisplayName
	}
	if fresh.SubscriptionStatus != "" {
		out.SubscriptionStatus = fresh.SubscriptionStatus
	}
	if fresh.SubscriptionEndDate != "" {
		out.SubscriptionEndDate = fresh.SubscriptionEndDate
	}
	if fresh.AuthMethod != "" {
		out.AuthMethod = fresh.AuthMethod
	}
	if !fresh.SyncedAt.IsZero() {
		out.SyncedAt = fresh.SyncedAt
	}
	return out
}

// NormalizeCredits converts a backend credit value to a non-negative
// integer balance. NaN, negative, and absent values collapse to zero;
// fractional values are floored.
func NormalizeCredits(v *float64) int64 {
	if v == nil {
		return 0
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int64(math.Floor(f))
}
