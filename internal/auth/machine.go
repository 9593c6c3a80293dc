// Package auth implements the authentication state machine consumed by
// the UI layer. The machine holds the current state and session context,
// accepts events, drives the sync service, and notifies subscribers on
// every transition.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/autherr"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/events"
	"github.com/Alpaca-Network/gatewayz-auth-go/internal/model"
)

// State is a node of the authentication lifecycle.
type State string

// Lifecycle states. idle is the sole initial state; authenticated and
// unauthenticated are the stable rest states.
const (
	StateIdle            State = "idle"
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateSyncing         State = "syncing"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
	StateError           State = "error"
)

// EventType names a state machine input.
type EventType string

// Machine events.
const (
	EventLoginStart      EventType = "LOGIN_START"
	EventProviderSuccess EventType = "PROVIDER_SUCCESS"
	EventProviderError   EventType = "PROVIDER_ERROR"
	EventSyncSuccess     EventType = "SYNC_SUCCESS"
	EventSyncError       EventType = "SYNC_ERROR"
	EventSessionRestored EventType = "SESSION_RESTORED"
	EventSessionAbsent   EventType = "SESSION_ABSENT"
	EventRefreshStart    EventType = "REFRESH_START"
	EventRefreshSuccess  EventType = "REFRESH_SUCCESS"
	EventRefreshError    EventType = "REFRESH_ERROR"
	EventLogout          EventType = "LOGOUT"
	EventReset           EventType = "RESET"
)

// Event is an input to the machine. User accompanies success events,
// Err accompanies failures.
type Event struct {
	Type   EventType
	User   *model.AuthenticatedUser
	Err    *autherr.Error
	Method model.AuthMethod
}

// Context is the machine's session context. Consumers receive copies;
// only the machine mutates it.
type Context struct {
	User            *model.AuthenticatedUser
	Err             *autherr.Error
	Retryable       bool
	RetryCount      int
	LastSyncAttempt time.Time
}

// Change is the payload published on the auth-state-change topic.
type Change struct {
	State   State
	Context Context
}

// ErrInvalidTransition is returned when an event is not legal in the
// current state.
var ErrInvalidTransition = errors.New("auth: invalid transition")

// transition returns the next state for an event, or ok=false when the
// event is not accepted in the current state.
func transition(s State, e Event) (State, bool) {
	switch e.Type {
	case EventLogout:
		// Always reachable; returns the machine to its rest state.
		return StateUnauthenticated, true
	case EventReset:
		return StateIdle, true
	case EventLoginStart:
		if s == StateUnauthenticated || s == StateError {
			return StateAuthenticating, true
		}
	case EventProviderSuccess:
		// idle is accepted so a login racing restoration still lands.
		if s == StateAuthenticating || s == StateIdle {
			return StateSyncing, true
		}
	case EventProviderError:
		if s == StateAuthenticating {
			return StateError, true
		}
	case EventSyncSuccess:
		if s == StateSyncing {
			return StateAuthenticated, true
		}
	case EventSyncError:
		if s == StateSyncing {
			return StateError, true
		}
	case EventSessionRestored:
		if s == StateIdle {
			return StateAuthenticated, true
		}
	case EventSessionAbsent:
		if s == StateIdle {
			return StateUnauthenticated, true
		}
	case EventRefreshStart:
		if s == StateAuthenticated {
			return StateRefreshing, true
		}
	case EventRefreshSuccess:
		if s == StateRefreshing {
			return StateAuthenticated, true
		}
	case EventRefreshError:
		if s == StateRefreshing {
			if e.Err != nil && e.Err.Code == autherr.CodeSessionExpired {
				return StateUnauthenticated, true
			}
			// Stale credential stays usable; the error surfaces separately.
			return StateAuthenticated, true
		}
	}
	return s, false
}

// Callbacks are invoked on machine transitions. All are optional.
type Callbacks struct {
	OnStateChange   func(State, Context)
	OnAuthenticated func(*model.AuthenticatedUser)
	OnError         func(*autherr.Error, bool)
	OnLogout        func()
}

// Machine is the auth state machine. Construct with NewMachine.
type Machine struct {
	mu        sync.Mutex
	state     State
	ctx       Context
	service   SyncService
	bus       *events.Bus
	callbacks Callbacks
	logger    *slog.Logger
}

// NewMachine creates a Machine in the idle state. The machine listens
// for refresh-requested events on the bus and refreshes in response.
func NewMachine(service SyncService, bus *events.Bus, logger *slog.Logger, callbacks Callbacks) *Machine {
	m := &Machine{
		state:     StateIdle,
		service:   service,
		bus:       bus,
		callbacks: callbacks,
		logger:    logger.With("component", "auth.machine"),
	}
	bus.Subscribe(events.TopicRefreshRequested, func(events.Event) {
		go m.Refresh(context.Background()) //nolint:errcheck
	})
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state and a copy of the context.
func (m *Machine) Snapshot() (State, Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.ctx
}

// CurrentUser returns the session user, or nil outside authenticated
// states.
func (m *Machine) CurrentUser() *model.AuthenticatedUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.User
}

// Dispatch feeds an event into the machine. Illegal events return
// ErrInvalidTransition and leave the machine untouched.
func (m *Machine) Dispatch(event Event) error {
	m.mu.Lock()

	next, ok := transition(m.state, event)
	if !ok {
		from := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event.Type, from)
	}

	prev := m.state
	m.state = next
	m.apply(event)
	state, snapshot := m.state, m.ctx
	m.mu.Unlock()

	m.logger.Debug("transition",
		"event", event.Type,
		"from", prev,
		"to", state,
	)
	m.notify(event, state, snapshot)
	return nil
}

// apply mutates the context for an accepted event. Caller holds the lock.
func (m *Machine) apply(event Event) {
	switch event.Type {
	case EventLoginStart:
		m.ctx.Err = nil
		m.ctx.Retryable = false

	case EventProviderSuccess:
		m.ctx.LastSyncAttempt = time.Now()
		m.ctx.Err = nil

	case EventSyncSuccess, EventSessionRestored, EventRefreshSuccess:
		m.ctx.User = event.User
		m.ctx.Err = nil
		m.ctx.Retryable = false
		m.ctx.RetryCount = 0

	case EventProviderError, EventSyncError:
		m.ctx.Err = event.Err
		m.ctx.Retryable = event.Err != nil && event.Err.Retryable()
		m.ctx.RetryCount++

	case EventRefreshError:
		m.ctx.Err = event.Err
		m.ctx.Retryable = event.Err != nil && event.Err.Retryable()
		if event.Err != nil && event.Err.Code == autherr.CodeSessionExpired {
			m.ctx.User = nil
		}

	case EventLogout, EventReset:
		m.ctx = Context{}

	case EventSessionAbsent:
		// Nothing cached; context is already empty.
	}
}

// notify fans a transition out to callbacks and the event bus.
func (m *Machine) notify(event Event, state State, snapshot Context) {
	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(state, snapshot)
	}
	m.bus.Publish(events.TopicAuthStateChange, Change{State: state, Context: snapshot})

	switch event.Type {
	case EventSyncSuccess, EventSessionRestored, EventRefreshSuccess:
		if m.callbacks.OnAuthenticated != nil && snapshot.User != nil {
			m.callbacks.OnAuthenticated(snapshot.User)
		}
	case EventProviderError, EventSyncError, EventRefreshError:
		if m.callbacks.OnError != nil && event.Err != nil {
			m.callbacks.OnError(event.Err, snapshot.Retryable)
		}
	case EventLogout:
		if m.callbacks.OnLogout != nil {
			m.callbacks.OnLogout()
		}
	}
}
