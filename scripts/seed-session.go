// Seeds a session into the Redis store so the auth core restores it on
// next start. Useful for local development without a real login.
//
// Usage:
//
//	go run ./scripts/seed-session.go -redis-url redis://localhost:6379/0 \
//	    -privy-user-id did:privy:dev -email dev@example.com
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/storage"
)

type output struct {
	APIKey       string `json:"api_key"`
	UserID       string `json:"user_id"`
	PrivyUserID  string `json:"privy_user_id"`
	Email        string `json:"email"`
	Credits      int64  `json:"credits"`
	Tier         string `json:"tier"`
	ReferralCode string `json:"referral_code,omitempty"`
}

func main() {
	var (
		redisURL     = flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis connection string")
		apiKey       = flag.String("api-key", "", "API key to store (generated when empty)")
		userID       = flag.String("user-id", "1", "Backend user ID")
		privyUserID  = flag.String("privy-user-id", "did:privy:dev", "Identity-provider user ID")
		email        = flag.String("email", "dev@example.com", "Account email")
		credits      = flag.Int64("credits", 100, "Credit balance")
		tier         = flag.String("tier", "basic", "Subscription tier (basic, pro, max)")
		referralCode = flag.String("referral-code", "", "Pending referral code")
		format       = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *redisURL == "" {
		fmt.Fprintln(os.Stderr, "REDIS_URL is required")
		os.Exit(1)
	}

	key := *apiKey
	if key == "" {
		key = "gw_dev_" + strings.ToLower(ulid.Make().String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.NewRedis(ctx, *redisURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect redis:", err)
		os.Exit(1)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	creds := storage.NewCredentialStore(store, logger)
	creds.Save(ctx, key, model.StoredUserData{
		UserID:         *userID,
		ProviderUserID: *privyUserID,
		Email:          *email,
		Credits:        *credits,
		Tier:           model.ParseTier(*tier),
		SyncedAt:       time.Now().UTC(),
	})
	if *referralCode != "" {
		if err := store.Set(ctx, storage.KeyReferralCode, *referralCode); err != nil {
			fmt.Fprintln(os.Stderr, "store referral code:", err)
			os.Exit(1)
		}
	}

	// Read back so a silent storage failure is visible here.
	if creds.APIKey(ctx) != key {
		fmt.Fprintln(os.Stderr, "seed verification failed: credential not stored")
		os.Exit(1)
	}

	out := output{
		APIKey:       key,
		UserID:       *userID,
		PrivyUserID:  *privyUserID,
		Email:        *email,
		Credits:      *credits,
		Tier:         *tier,
		ReferralCode: *referralCode,
	}

	if *format == "json" {
		json.NewEncoder(os.Stdout).Encode(out)
		return
	}
	fmt.Printf("Seeded session for %s\n", out.PrivyUserID)
	fmt.Printf("  api_key: %s\n", out.APIKey)
	fmt.Printf("  email:   %s\n", out.Email)
	fmt.Printf("  credits: %d\n", out.Credits)
}
