package syncer

import (
	"context"
	"encoding/json"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
)

// SyncInput carries the identity-provider login result into a backend sync.
type SyncInput struct {
	ProviderUserID string
	Token          string
	Email          string
	LinkedAccounts []model.LinkedAccount
	AuthMethod     model.AuthMethod
}

// linkedAccountPayload is a linked account in backend wire form.
type linkedAccountPayload struct {
	Type     string `json:"type"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Address  string `json:"address,omitempty"`
}

// syncUserPayload is the nested user object of POST /api/auth.
type syncUserPayload struct {
	PrivyUserID    string                 `json:"privy_user_id"`
	Email          string                 `json:"email,omitempty"`
	WalletAddress  string                 `json:"wallet_address,omitempty"`
	GoogleEmail    string                 `json:"google_email,omitempty"`
	GithubUsername string                 `json:"github_username,omitempty"`
	LinkedAccounts []linkedAccountPayload `json:"linked_accounts,omitempty"`
}

// syncRequest is the body of POST /api/auth.
type syncRequest struct {
	User         syncUserPayload  `json:"user"`
	Token        string           `json:"token"`
	PrivyUserID  string           `json:"privy_user_id"`
	AuthMethod   model.AuthMethod `json:"auth_method"`
	ReferralCode string           `json:"referral_code,omitempty"`
}

// syncResponse is the body of successful auth and refresh responses.
type syncResponse struct {
	Success             bool        `json:"success"`
	UserID              json.Number `json:"user_id"`
	APIKey              string      `json:"api_key"`
	AuthMethod          string      `json:"auth_method"`
	PrivyUserID         string      `json:"privy_user_id"`
	IsNewUser           bool        `json:"is_new_user"`
	DisplayName         string      `json:"display_name"`
	Email               string      `json:"email"`
	Credits             *float64    `json:"credits"`
	Tier                string      `json:"tier"`
	TierDisplayName     string      `json:"tier_display_name"`
	SubscriptionStatus  string      `json:"subscription_status"`
	SubscriptionEndDate string      `json:"subscription_end_date"`
	Error               string      `json:"error"`
}

// snapshot converts a backend response into the persisted wire form.
func (r *syncResponse) snapshot() model.StoredUserData {
	return model.StoredUserData{
		UserID:              r.UserID.String(),
		ProviderUserID:      r.PrivyUserID,
		Email:               r.Email,
		DisplayName:         r.DisplayName,
		Credits:             model.NormalizeCredits(r.Credits),
		Tier:                model.ParseTier(r.Tier),
		TierDisplayName:     r.TierDisplayName,
		SubscriptionStatus:  r.SubscriptionStatus,
		SubscriptionEndDate: r.SubscriptionEndDate,
		AuthMethod:          model.AuthMethod(r.AuthMethod),
	}
}

// buildSyncRequest assembles the POST /api/auth payload from the provider
// login result, deriving contact fields and the auth method from linked
// accounts when the caller did not supply them.
func (s *Service) buildSyncRequest(ctx context.Context, input SyncInput) syncRequest {
	identity := model.ExtractIdentity(input.Email, input.LinkedAccounts)

	method := input.AuthMethod
	if method == "" {
		method = identity.AuthMethod
	}

	user := syncUserPayload{
		PrivyUserID:   input.ProviderUserID,
		Email:         identity.Email,
		WalletAddress: identity.Wallet,
	}

	for _, acct := range input.LinkedAccounts {
		kind := model.NormalizeAccountType(acct.Type)
		switch kind {
		case "google":
			if user.GoogleEmail == "" {
				user.GoogleEmail = acct.Email
			}
		case "github":
			if user.GithubUsername == "" {
				user.GithubUsername = acct.Username
			}
		}
		user.LinkedAccounts = append(user.LinkedAccounts, linkedAccountPayload{
			Type:     kind,
			Email:    acct.Email,
			Name:     acct.Name,
			Username: acct.Username,
			Address:  acct.Address,
		})
	}

	return syncRequest{
		User:         user,
		Token:        input.Token,
		PrivyUserID:  input.ProviderUserID,
		AuthMethod:   method,
		ReferralCode: s.creds.ReferralCode(ctx),
	}
}
