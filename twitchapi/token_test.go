package twitchapi

import (
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/onnwee/match-tender/testutil"
)

func TestTokenSource_Cached(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse("test-token-123", 3600)

	ts, err := NewTokenSource("test-client", "test-secret", srv.URL+"/oauth2/token", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "test-token-123" {
			t.Errorf("Token() = %s, want test-token-123", tok.AccessToken)
		}
	}
	if hits := srv.Hits(http.MethodPost, "/oauth2/token"); hits != 1 {
		t.Errorf("expected 1 token request, got %d", hits)
	}
}

func TestTokenSource_RefreshesExpired(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	// Expiry inside the refresh margin forces a fetch on every call.
	srv.MockOAuthTokenResponse("short-lived", 1)

	ts, err := NewTokenSource("test-client", "test-secret", srv.URL+"/oauth2/token", srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Token(); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Token(); err != nil {
		t.Fatal(err)
	}
	if hits := srv.Hits(http.MethodPost, "/oauth2/token"); hits != 2 {
		t.Errorf("expected 2 token requests, got %d", hits)
	}
}

func TestTokenSource_SendsClientCredentials(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.Handle(http.MethodPost, "/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "cid" || r.Form.Get("client_secret") != "sec" {
			t.Errorf("form = %v", r.Form)
		}
		testutil.JSON(map[string]any{"access_token": "t", "expires_in": 3600, "token_type": "bearer"})(w, r)
	})
	ts, _ := NewTokenSource("cid", "sec", srv.URL+"/oauth2/token", srv.Client())
	if _, err := ts.Token(); err != nil {
		t.Fatal(err)
	}
}

func TestTokenSource_MissingCredentials(t *testing.T) {
	if _, err := NewTokenSource("", "", "", nil); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v", err)
	}
}

func TestTokenSource_ServerError(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.Handle(http.MethodPost, "/oauth2/token", testutil.Status(http.StatusInternalServerError))
	ts, _ := NewTokenSource("cid", "sec", srv.URL+"/oauth2/token", srv.Client())
	if _, err := ts.Token(); err == nil {
		t.Error("expected error")
	}
}

func TestTokenSource_ConcurrentAccess(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse("shared", 3600)
	ts, _ := NewTokenSource("cid", "sec", srv.URL+"/oauth2/token", srv.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, err := ts.Token(); err != nil || tok.AccessToken != "shared" {
				t.Errorf("Token() = %v, %v", tok, err)
			}
		}()
	}
	wg.Wait()
	if hits := srv.Hits(http.MethodPost, "/oauth2/token"); hits != 1 {
		t.Errorf("expected 1 token request, got %d", hits)
	}
}
