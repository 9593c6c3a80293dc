package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeBackend is a scriptable stand-in for the Gatewayz backend. Each
// auth call consumes the next status from AuthScript; once the script is
// exhausted, calls succeed with the default response merged with
// AuthBody overrides.
type FakeBackend struct {
	server *httptest.Server

	mu          sync.Mutex
	calls       map[string]int
	lastAuthReq map[string]any

	// AuthScript is the sequence of HTTP statuses returned by
	// successive POST /api/auth calls. 0 and exhausted entries mean 200.
	AuthScript []int
	// AuthDelay stalls every auth call, for single-flight and timeout tests.
	AuthDelay time.Duration
	// AuthBody overrides fields of the default success response.
	AuthBody map[string]any
	// RetryAfter, when set, is sent on 429 responses.
	RetryAfter string

	// UserStatus is the GET /api/user response status (0 means 200).
	UserStatus int
	// UserBody overrides fields of the default user response.
	UserBody map[string]any

	// RefreshStatus is the POST /api/auth/refresh status (0 means 200).
	RefreshStatus int
	// RefreshBody overrides fields of the default refresh response.
	RefreshBody map[string]any
}

// NewBackend starts a FakeBackend and registers cleanup with t.
func NewBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{calls: make(map[string]int)}

	r := chi.NewRouter()
	r.Post("/api/auth", b.handleAuth)
	r.Post("/api/auth/refresh", b.handleRefresh)
	r.Get("/api/user", b.handleUser)
	r.Post("/api/auth/invalidate", b.handleInvalidate)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the backend base URL.
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// Calls returns how many requests hit the given path.
func (b *FakeBackend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// LastAuthRequest returns the decoded body of the most recent auth call.
func (b *FakeBackend) LastAuthRequest() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuthReq
}

// defaultAuthResponse mirrors a typical successful /api/auth body.
func defaultAuthResponse() map[string]any {
	return map[string]any{
		"success":       true,
		"user_id":       42,
		"api_key":       "gw_test_key",
		"auth_method":   "email",
		"privy_user_id": "did:privy:u1",
		"is_new_user":   false,
		"display_name":  "Test User",
		"email":         "test@example.com",
		"credits":       100,
		"tier":          "basic",
	}
}

func merge(base, overrides map[string]any) map[string]any {
	for k, v := range overrides {
		base[k] = v
	}
	return base
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (b *FakeBackend) handleAuth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	n := b.calls["/api/auth"]
	b.calls["/api/auth"]++

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		b.lastAuthReq = req
	}

	status := 0
	if n < len(b.AuthScript) {
		status = b.AuthScript[n]
	}
	retryAfter := b.RetryAfter
	overrides := b.AuthBody
	delay := b.AuthDelay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 && status != http.StatusOK {
		if status == http.StatusTooManyRequests && retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
		return
	}

	writeJSON(w, http.StatusOK, merge(defaultAuthResponse(), overrides))
}

func (b *FakeBackend) handleUser(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls["/api/user"]++
	status := b.UserStatus
	overrides := b.UserBody
	b.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
		return
	}

	body := defaultAuthResponse()
	delete(body, "api_key")
	writeJSON(w, http.StatusOK, merge(body, overrides))
}

func (b *FakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls["/api/auth/refresh"]++
	status := b.RefreshStatus
	overrides := b.RefreshBody
	b.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
		return
	}

	writeJSON(w, http.StatusOK, merge(defaultAuthResponse(), overrides))
}

func (b *FakeBackend) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls["/api/auth/invalidate"]++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
