package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCredits(t *testing.T) {
	nan := math.NaN()
	neg := -1.0
	frac := 3.9
	whole := 12.0

	tests := []struct {
		name string
		in   *float64
		want int64
	}{
		{"absent", nil, 0},
		{"nan", &nan, 0},
		{"negative", &neg, 0},
		{"fractional", &frac, 3},
		{"whole", &whole, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCredits(tt.in))
		})
	}
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierPro, ParseTier("pro"))
	assert.Equal(t, TierMax, ParseTier("max"))
	assert.Equal(t, TierBasic, ParseTier("basic"))
	assert.Equal(t, TierBasic, ParseTier(""))
	assert.Equal(t, TierBasic, ParseTier("enterprise"))
}

func TestStoredRoundTrip(t *testing.T) {
	u := &AuthenticatedUser{
		UserID:         "42",
		ProviderUserID: "did:privy:u1",
		APIKey:         "gw_abc",
		Email:          "a@b.c",
		DisplayName:    "Ada",
		Credits:        7,
		Tier:           TierPro,
		Subscription:   &Subscription{Status: "active", EndDate: "2026-12-01"},
		AuthMethod:     AuthMethodGoogle,
	}

	s := u.Stored()
	assert.Equal(t, "active", s.SubscriptionStatus)

	back := s.User("gw_abc")
	assert.Equal(t, u.UserID, back.UserID)
	assert.Equal(t, u.APIKey, back.APIKey)
	assert.Equal(t, u.Credits, back.Credits)
	assert.NotNil(t, back.Subscription)
	assert.Equal(t, "active", back.Subscription.Status)
}

func TestMergedWith(t *testing.T) {
	cached := StoredUserData{
		UserID:      "42",
		Email:       "old@b.c",
		DisplayName: "Ada",
		Credits:     10,
		Tier:        TierBasic,
	}
	fresh := StoredUserData{
		UserID:  "42",
		Email:   "new@b.c",
		Credits: 3,
	}

	merged := cached.MergedWith(fresh)
	assert.Equal(t, "new@b.c", merged.Email, "backend fields win")
	assert.Equal(t, "Ada", merged.DisplayName, "cached fields fill gaps")
	assert.Equal(t, int64(3), merged.Credits, "credits always taken from backend")
	assert.Equal(t, TierBasic, merged.Tier)
}
