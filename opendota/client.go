// Package opendota is a typed client for the OpenDota public API: recent matches
// per player, match detail, parse requests, and the hero and item catalogs.
//
// Every request waits on a shared rate limiter and is bounded by the HTTP client
// timeout. Transport errors, non-2xx responses and undecodable bodies are wrapped
// in ErrUpstreamUnavailable so callers can tell "upstream failed" apart from
// "no data".
package opendota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/match-tender/telemetry"
)

// DefaultBaseURL is the public OpenDota API root.
const DefaultBaseURL = "https://api.opendota.com/api"

// ErrUpstreamUnavailable wraps every failure to obtain a usable response.
var ErrUpstreamUnavailable = errors.New("opendota: upstream unavailable")

const tracerName = "opendota"

// Client talks to OpenDota. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	catalog    *catalogCache
	details    *detailCache
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey sends key as the api_key query parameter.
func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithCatalogTTL sets how long hero and item catalogs are cached.
func WithCatalogTTL(ttl time.Duration) Option {
	return func(c *Client) { c.catalog.ttl = ttl }
}

// WithMatchTTL sets how long match details are reused. Zero disables reuse.
func WithMatchTTL(ttl time.Duration) Option {
	return func(c *Client) { c.details.ttl = ttl }
}

// NewClient returns a client for baseURL allowing requestsPerMinute calls.
// A non-positive rate disables limiting.
func NewClient(baseURL string, requestsPerMinute int, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		catalog:    newCatalogCache(24 * time.Hour),
		details:    newDetailCache(time.Minute),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RecentMatches returns the player's recent matches, newest first.
func (c *Client) RecentMatches(ctx context.Context, steamID string) ([]RecentMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "opendota.recent_matches", telemetry.SteamIDAttr(steamID))
	defer span.End()

	var out []RecentMatch
	if err := c.do(ctx, http.MethodGet, "recent_matches", "/players/"+url.PathEscape(steamID)+"/recentMatches", &out); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetSpanSuccess(span)
	return out, nil
}

// LatestMatch returns the player's most recent match, or nil when the player has none.
func (c *Client) LatestMatch(ctx context.Context, steamID string) (*RecentMatch, error) {
	matches, err := c.RecentMatches(ctx, steamID)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	m := matches[0]
	return &m, nil
}

// Match returns the full detail for matchID. Details fetched within the match
// TTL are reused, and concurrent fetches of one match share a request. Callers
// must not modify the returned value.
func (c *Client) Match(ctx context.Context, matchID int64) (*Match, error) {
	if m, ok := c.details.get(matchID); ok {
		return m, nil
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "opendota.match", telemetry.MatchIDAttr(matchID))
	defer span.End()

	key := strconv.FormatInt(matchID, 10)
	v, err, _ := c.details.group.Do(key, func() (any, error) {
		var m Match
		if err := c.do(ctx, http.MethodGet, "match", "/matches/"+key, &m); err != nil {
			return nil, err
		}
		c.details.put(&m, matchID)
		return &m, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetSpanSuccess(span)
	return v.(*Match), nil
}

// IsParsed reports whether OpenDota has finished parsing matchID. Any failure is
// logged and reported as not parsed.
func (c *Client) IsParsed(ctx context.Context, matchID int64) bool {
	m, err := c.Match(ctx, matchID)
	if err != nil {
		slog.Warn("parse status check failed", slog.Int64("match_id", matchID), slog.Any("err", err), slog.String("component", "opendota"))
		return false
	}
	return m.Parsed()
}

// RequestParse asks OpenDota to parse matchID. Failures are logged, not returned.
func (c *Client) RequestParse(ctx context.Context, matchID int64) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "opendota.request_parse", telemetry.MatchIDAttr(matchID))
	defer span.End()

	c.details.forget(matchID)
	if err := c.do(ctx, http.MethodPost, "request_parse", "/request/"+strconv.FormatInt(matchID, 10), nil); err != nil {
		telemetry.RecordError(span, err)
		slog.Warn("parse request failed", slog.Int64("match_id", matchID), slog.Any("err", err), slog.String("component", "opendota"))
		return
	}
	slog.Info("requested match parse", slog.Int64("match_id", matchID), slog.String("component", "opendota"))
}

// do performs a rate-limited request and decodes the JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, op, path string, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, out)
	telemetry.ObserveUpstream(op, time.Since(start))
	if err != nil {
		telemetry.IncUpstreamError(op)
		return fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, method, path, err)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL + path
	if c.apiKey != "" {
		u += "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
