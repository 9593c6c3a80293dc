// Package main is the entrypoint for authctl, a CLI that drives the
// Gatewayz session-auth core against a live backend: login, session
// status, credential refresh, and logout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/auth"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/config"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/metrics"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/storage"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/syncer"
)

const usage = `usage: authctl <command> [flags]

commands:
  login    exchange an identity-provider login for an API credential
  status   restore the cached session and print it
  refresh  re-issue the credential for the cached session
  logout   clear the cached session and invalidate the credential
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open session store",
			slog.String("error", err.Error()),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer closeStore()

	bus := events.New()
	creds := storage.NewCredentialStore(store, logger)
	service := syncer.New(syncer.Config{
		BaseURL:        cfg.APIBaseURL,
		SyncTimeout:    cfg.SyncTimeout,
		RestoreTimeout: cfg.RestoreTimeout,
		RefreshTimeout: cfg.RefreshTimeout,
		MaxRetries:     cfg.MaxSyncRetries,
		Backoff:        cfg.Backoff(),
	}, creds, bus, logger, metrics.NewNoop())

	if tier := parseNetworkTier(cfg.NetworkTier); tier != "" {
		service.SetConditionSource(policy.FixedTier(tier))
	}

	machine := auth.NewMachine(service, bus, logger, auth.Callbacks{
		OnError: func(err *autherr.Error, retryable bool) {
			logger.Warn("auth error", "code", err.Code, "error", err, "retryable", retryable)
		},
	})

	if err := run(ctx, machine, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, machine *auth.Machine, command string, args []string) error {
	switch command {
	case "login":
		return runLogin(ctx, machine, args)
	case "status":
		return runStatus(ctx, machine)
	case "refresh":
		return runRefresh(ctx, machine)
	case "logout":
		return runLogout(ctx, machine)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func runLogin(ctx context.Context, machine *auth.Machine, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	userID := fs.String("user", "", "identity-provider user ID (required)")
	token := fs.String("token", "", "identity-provider access token (required)")
	email := fs.String("email", "", "account email")
	method := fs.String("method", "email", "auth method: email, google, github, wallet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *token == "" {
		fs.Usage()
		return fmt.Errorf("login requires -user and -token")
	}

	if err := machine.Start(ctx); err != nil {
		return err
	}
	if machine.State() == auth.StateAuthenticated {
		fmt.Println("already authenticated; run `authctl logout` first")
		return nil
	}

	if err := machine.Login(model.AuthMethod(*method)); err != nil {
		return err
	}
	if err := machine.CompleteLogin(ctx, auth.ProviderResult{
		UserID: *userID,
		Token:  *token,
		Email:  *email,
		Method: model.AuthMethod(*method),
	}); err != nil {
		return err
	}

	printUser(machine.CurrentUser())
	return nil
}

func runStatus(ctx context.Context, machine *auth.Machine) error {
	if err := machine.Start(ctx); err != nil {
		return err
	}
	if machine.State() != auth.StateAuthenticated {
		fmt.Println("no session")
		return nil
	}
	printUser(machine.CurrentUser())
	return nil
}

func runRefresh(ctx context.Context, machine *auth.Machine) error {
	if err := machine.Start(ctx); err != nil {
		return err
	}
	if machine.State() != auth.StateAuthenticated {
		return fmt.Errorf("no session to refresh")
	}
	if err := machine.Refresh(ctx); err != nil {
		return err
	}
	printUser(machine.CurrentUser())
	return nil
}

func runLogout(ctx context.Context, machine *auth.Machine) error {
	if err := machine.Start(ctx); err != nil {
		return err
	}
	machine.Logout(ctx)
	fmt.Println("logged out")
	return nil
}

func printUser(u *model.AuthenticatedUser) {
	if u == nil {
		fmt.Println("no session")
		return
	}
	fmt.Printf("user_id:  %s\n", u.UserID)
	fmt.Printf("email:    %s\n", u.Email)
	fmt.Printf("tier:     %s\n", u.Tier)
	fmt.Printf("credits:  %d\n", u.Credits)
	if u.IsNewUser {
		fmt.Println("welcome:  new account")
	}
}

// openStore selects the session store: Redis when configured, an
// in-memory store otherwise. The returned func releases the store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; sessions will not survive process restarts")
		return storage.NewMemory(), func() {}, nil
	}
	rs, err := storage.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to Redis")
	return rs, func() { rs.Close() }, nil
}

func parseNetworkTier(s string) policy.Tier {
	switch strings.ToLower(s) {
	case "fast":
		return policy.TierFast
	case "moderate":
		return policy.TierModerate
	case "slow":
		return policy.TierSlow
	case "very_slow":
		return policy.TierVerySlow
	}
	return ""
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if parsed.User != nil {
		parsed.User = url.User(parsed.User.Username())
	}
	return parsed.String()
}
