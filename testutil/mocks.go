package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockServer is an httptest server that dispatches on method and path and counts hits.
type MockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

func newMockServer(t *testing.T) *MockServer {
	t.Helper()
	m := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		m.mu.Lock()
		m.hits[key]++
		handler, ok := m.handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for method and path, replacing any earlier handler.
func (m *MockServer) Handle(method, path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = h
}

// Hits returns how many requests reached method and path.
func (m *MockServer) Hits(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[method+" "+path]
}

// JSON returns a handler that writes v as a JSON body.
func JSON(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// Status returns a handler that replies with code and an empty body.
func Status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) }
}

// MockOpenDotaServer mocks the OpenDota endpoints used by the tracker.
type MockOpenDotaServer struct {
	*MockServer
}

// NewMockOpenDotaServer creates a new mock OpenDota API server. Its URL is the API base.
func NewMockOpenDotaServer(t *testing.T) *MockOpenDotaServer {
	t.Helper()
	return &MockOpenDotaServer{MockServer: newMockServer(t)}
}

// RecentMatchesPath returns the recent matches path for steamID.
func RecentMatchesPath(steamID string) string {
	return fmt.Sprintf("/players/%s/recentMatches", steamID)
}

// MatchPath returns the detail path for matchID.
func MatchPath(matchID int64) string { return fmt.Sprintf("/matches/%d", matchID) }

// ParsePath returns the parse request path for matchID.
func ParsePath(matchID int64) string { return fmt.Sprintf("/request/%d", matchID) }

// MockRecentMatches serves matches for steamID.
func (m *MockOpenDotaServer) MockRecentMatches(steamID string, matches []map[string]any) {
	if matches == nil {
		matches = []map[string]any{}
	}
	m.Handle(http.MethodGet, RecentMatchesPath(steamID), JSON(matches))
}

// MockMatch serves the detail payload for matchID and accepts parse requests for it.
func (m *MockOpenDotaServer) MockMatch(matchID int64, detail map[string]any) {
	m.Handle(http.MethodGet, MatchPath(matchID), JSON(detail))
	m.Handle(http.MethodPost, ParsePath(matchID), Status(http.StatusOK))
}

// MockHeroes serves the hero catalog as id → localized name.
func (m *MockOpenDotaServer) MockHeroes(heroes map[int]string) {
	list := make([]map[string]any, 0, len(heroes))
	for id, name := range heroes {
		list = append(list, map[string]any{"id": id, "name": fmt.Sprintf("npc_dota_hero_%d", id), "localized_name": name})
	}
	m.Handle(http.MethodGet, "/heroes", JSON(list))
}

// MockItems serves the item catalog as id → display name.
func (m *MockOpenDotaServer) MockItems(items map[int]string) {
	out := make(map[string]any, len(items))
	for id, name := range items {
		out[fmt.Sprintf("item_%d", id)] = map[string]any{"id": id, "dname": name}
	}
	m.Handle(http.MethodGet, "/constants/items", JSON(out))
}

// MockTwitchServer mocks the Twitch Helix and OAuth endpoints.
type MockTwitchServer struct {
	*MockServer
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	return &MockTwitchServer{MockServer: newMockServer(t)}
}

// MockUsersResponse serves /helix/users with the given id → login pairs.
func (m *MockTwitchServer) MockUsersResponse(users map[string]string) {
	data := make([]map[string]string, 0, len(users))
	for id, login := range users {
		data = append(data, map[string]string{"id": id, "login": login, "display_name": login})
	}
	m.Handle(http.MethodGet, "/helix/users", JSON(map[string]any{"data": data}))
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle(http.MethodPost, "/oauth2/token", JSON(map[string]any{
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "bearer",
	}))
}
