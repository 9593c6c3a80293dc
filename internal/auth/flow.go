package auth

import (
	"context"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/syncer"
)

// SyncService is the backend protocol the machine drives.
// *syncer.Service satisfies it.
type SyncService interface {
	SyncWithBackend(ctx context.Context, input syncer.SyncInput) (*model.AuthenticatedUser, error)
	RestoreSession(ctx context.Context) (*model.AuthenticatedUser, error)
	Refresh(ctx context.Context) (*model.AuthenticatedUser, error)
	Logout(ctx context.Context)
}

// ProviderResult is a successful identity-provider login handed to the
// machine for backend synchronization.
type ProviderResult struct {
	UserID         string
	Token          string
	Email          string
	LinkedAccounts []model.LinkedAccount
	Method         model.AuthMethod
}

// Start attempts session restoration from the idle state. A cached,
// still-valid session lands in authenticated; anything else lands in
// unauthenticated.
func (m *Machine) Start(ctx context.Context) error {
	user, err := m.service.RestoreSession(ctx)
	if err != nil {
		m.logger.Warn("session restoration failed", "error", err)
	}
	if user != nil {
		return m.Dispatch(Event{Type: EventSessionRestored, User: user})
	}
	return m.Dispatch(Event{Type: EventSessionAbsent})
}

// Login marks the start of a provider login flow.
func (m *Machine) Login(method model.AuthMethod) error {
	return m.Dispatch(Event{Type: EventLoginStart, Method: method})
}

// CompleteLogin takes the provider's login result through backend sync.
// It blocks for the duration of the retried sync flow; use
// Service.MaxSyncFlowDuration to bound UI waits.
func (m *Machine) CompleteLogin(ctx context.Context, res ProviderResult) error {
	if err := m.Dispatch(Event{Type: EventProviderSuccess}); err != nil {
		return err
	}

	user, err := m.service.SyncWithBackend(ctx, syncer.SyncInput{
		ProviderUserID: res.UserID,
		Token:          res.Token,
		Email:          res.Email,
		LinkedAccounts: res.LinkedAccounts,
		AuthMethod:     res.Method,
	})
	if err != nil {
		m.Dispatch(Event{Type: EventSyncError, Err: autherr.From(err)}) //nolint:errcheck
		return err
	}
	return m.Dispatch(Event{Type: EventSyncSuccess, User: user})
}

// FailLogin records an identity-provider failure.
func (m *Machine) FailLogin(err *autherr.Error) error {
	return m.Dispatch(Event{Type: EventProviderError, Err: err})
}

// Refresh re-issues the credential for the authenticated session.
// A SESSION_EXPIRED outcome logs the user out; any other failure keeps
// the stale session and surfaces the error through callbacks.
func (m *Machine) Refresh(ctx context.Context) error {
	if err := m.Dispatch(Event{Type: EventRefreshStart}); err != nil {
		return err
	}

	user, err := m.service.Refresh(ctx)
	if err != nil {
		m.Dispatch(Event{Type: EventRefreshError, Err: autherr.From(err)}) //nolint:errcheck
		return err
	}
	return m.Dispatch(Event{Type: EventRefreshSuccess, User: user})
}

// Logout clears the persisted session and returns the machine to
// unauthenticated. Always legal.
func (m *Machine) Logout(ctx context.Context) {
	m.service.Logout(ctx)
	m.Dispatch(Event{Type: EventLogout}) //nolint:errcheck
}

// Reset returns the machine to idle, dropping all context.
func (m *Machine) Reset() {
	m.Dispatch(Event{Type: EventReset}) //nolint:errcheck
}
