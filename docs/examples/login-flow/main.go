// Gatewayz Login Flow Example
//
// This is a minimal stub of the backend endpoints the auth core speaks
// to, handy for running the full login flow on a laptop with no real
// backend or identity provider.
//
// Usage:
//   go run main.go
//
// Then, from the repository root:
//   export GATEWAYZ_API_URL="http://localhost:9000"
//   go run ./cmd/authctl login -user did:privy:dev -token dev-token -email dev@example.com
//   go run ./cmd/authctl status
//   go run ./cmd/authctl refresh
//   go run ./cmd/authctl logout
//
// The stub accepts any provider token, issues a random API key, and
// tracks issued keys in memory so status, refresh, and logout behave
// like the real thing.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
)

type account struct {
	PrivyUserID string
	Email       string
	Credits     float64
	IsNewUser   bool
}

type stub struct {
	mu       sync.Mutex
	accounts map[string]*account // api key -> account
	seen     map[string]bool     // privy user ids that logged in before
}

func main() {
	s := &stub{
		accounts: make(map[string]*account),
		seen:     make(map[string]bool),
	}

	http.HandleFunc("/api/auth", s.handleAuth)
	http.HandleFunc("/api/auth/refresh", s.handleRefresh)
	http.HandleFunc("/api/user", s.handleUser)
	http.HandleFunc("/api/auth/invalidate", s.handleInvalidate)

	log.Println("Starting stub backend on :9000")
	log.Println("Point the auth core at it: export GATEWAYZ_API_URL=http://localhost:9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func (s *stub) handleAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		PrivyUserID string `json:"privy_user_id"`
		Token       string `json:"token"`
		User        struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PrivyUserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusUnauthorized, "missing provider token")
		return
	}

	s.mu.Lock()
	isNew := !s.seen[req.PrivyUserID]
	s.seen[req.PrivyUserID] = true
	key := newKey()
	acct := &account{
		PrivyUserID: req.PrivyUserID,
		Email:       req.User.Email,
		Credits:     100,
		IsNewUser:   isNew,
	}
	if isNew {
		acct.Credits = 10 // welcome grant
	}
	s.accounts[key] = acct
	s.mu.Unlock()

	log.Printf("✓ Authenticated %s (new_user=%v)", req.PrivyUserID, isNew)
	writeProfile(w, key, acct)
}

func (s *stub) handleRefresh(w http.ResponseWriter, r *http.Request) {
	acct, oldKey, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	s.mu.Lock()
	delete(s.accounts, oldKey)
	key := newKey()
	acct.IsNewUser = false
	s.accounts[key] = acct
	s.mu.Unlock()

	log.Printf("✓ Rotated key for %s", acct.PrivyUserID)
	writeProfile(w, key, acct)
}

func (s *stub) handleUser(w http.ResponseWriter, r *http.Request) {
	acct, _, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	writeProfile(w, "", acct)
}

func (s *stub) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	_, key, ok := s.authorize(r)
	if ok {
		s.mu.Lock()
		delete(s.accounts, key)
		s.mu.Unlock()
		log.Printf("✓ Invalidated key %s...", key[:10])
	}
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func (s *stub) authorize(r *http.Request) (*account, string, bool) {
	key := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[key]
	return acct, key, ok
}

func writeProfile(w http.ResponseWriter, apiKey string, acct *account) {
	body := map[string]any{
		"success":       true,
		"user_id":       acct.PrivyUserID,
		"privy_user_id": acct.PrivyUserID,
		"email":         acct.Email,
		"credits":       acct.Credits,
		"tier":          "basic",
		"is_new_user":   acct.IsNewUser,
	}
	if apiKey != "" {
		body["api_key"] = apiKey
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newKey() string {
	buf := make([]byte, 16)
	rand.Read(buf)
	return "gw_live_" + hex.EncodeToString(buf)
}
