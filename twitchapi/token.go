package twitchapi

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is Twitch's OAuth token endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// ErrMissingCredentials is returned when no client id/secret are configured.
var ErrMissingCredentials = errors.New("twitchapi: missing client id/secret for app token")

// NewTokenSource returns a cached app access (client credentials) token source.
// Tokens are refreshed shortly before they expire.
// NOTE: This token CANNOT be used for IRC chat; chat requires a user (bot) OAuth token with chat:read/chat:edit scopes.
func NewTokenSource(clientID, clientSecret, tokenURL string, hc *http.Client) (oauth2.TokenSource, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.Background()
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	return cfg.TokenSource(ctx), nil
}
