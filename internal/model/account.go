package model

import "strings"

// LinkedAccount is an identity the provider has attached to the user.
type LinkedAccount struct {
	Type     string `json:"type"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Address  string `json:"address,omitempty"`
}

// NormalizeAccountType maps provider-specific account type names to the
// short form the backend expects, e.g. "github_oauth" -> "github".
func NormalizeAccountType(t string) string {
	switch t {
	case "google_oauth", "github_oauth", "twitter_oauth", "discord_oauth", "apple_oauth":
		return strings.TrimSuffix(t, "_oauth")
	default:
		return t
	}
}

// ExtractedIdentity is what linked-account inspection yields: the best
// email and display name available plus the inferred auth method.
type ExtractedIdentity struct {
	Email       string
	DisplayName string
	Wallet      string
	AuthMethod  AuthMethod
}

// ExtractIdentity derives contact fields and the auth method from linked
// accounts. An explicitly provided email always wins; otherwise the first
// account that carries one is used. The scan still continues so a wallet
// address is captured even when email arrives from another account.
func ExtractIdentity(explicitEmail string, accounts []LinkedAccount) ExtractedIdentity {
	out := ExtractedIdentity{
		Email:      explicitEmail,
		AuthMethod: AuthMethodEmail,
	}

	for _, acct := range accounts {
		switch NormalizeAccountType(acct.Type) {
		case "email":
			if out.Email == "" && acct.Email != "" {
				out.Email = acct.Email
			}
		case "google":
			if out.Email == "" && acct.Email != "" {
				out.Email = acct.Email
				out.AuthMethod = AuthMethodGoogle
			}
			if out.DisplayName == "" {
				out.DisplayName = acct.Name
			}
		case "github":
			if out.DisplayName == "" {
				if acct.Username != "" {
					out.DisplayName = acct.Username
				} else {
					out.DisplayName = acct.Name
				}
			}
			if out.Email == "" && acct.Email != "" {
				out.Email = acct.Email
				out.AuthMethod = AuthMethodGitHub
			}
		case "wallet":
			if out.Wallet == "" {
				out.Wallet = acct.Address
			}
			if out.Email == "" {
				out.AuthMethod = AuthMethodWallet
			}
		}
	}

	return out
}
