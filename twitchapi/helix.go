// Package twitchapi contains minimal helpers to interact with the Twitch Helix
// API for user lookups, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when Helix has no user for the query.
var ErrUserNotFound = errors.New("twitchapi: user not found")

// User is a Helix user record.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// HelixClient resolves Twitch users.
type HelixClient struct {
	BaseURL  string
	ClientID string

	hc *http.Client
}

// NewHelixClient returns a client that authenticates every request with tokens from ts.
func NewHelixClient(baseURL, clientID string, ts oauth2.TokenSource, timeout time.Duration) *HelixClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := oauth2.NewClient(context.Background(), ts)
	hc.Timeout = timeout
	return &HelixClient{BaseURL: strings.TrimRight(baseURL, "/"), ClientID: clientID, hc: hc}
}

// GetUserID resolves a login name to its user ID.
func (c *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(strings.TrimPrefix(login, "@"))
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	users, err := c.users(ctx, "login", login)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if strings.EqualFold(u.Login, login) {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
}

// DisplayName returns the display name of the user with id, or "" when the
// lookup fails.
func (c *HelixClient) DisplayName(ctx context.Context, id string) string {
	users, err := c.users(ctx, "id", id)
	if err != nil {
		slog.Debug("helix user lookup failed", slog.String("component", "twitchapi"), slog.String("id", id), slog.Any("err", err))
		return ""
	}
	for _, u := range users {
		if u.ID == id {
			if u.DisplayName != "" {
				return u.DisplayName
			}
			return u.Login
		}
	}
	return ""
}

func (c *HelixClient) users(ctx context.Context, key, value string) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/users", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set(key, value)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("helix users: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
