// Package ai proxies prompts to an OpenRouter-hosted chat model. It keeps a
// short per-user conversation history and can narrate a parsed match.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/match-tender/telemetry"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ErrUnexpectedResponse is returned when the completion payload has no message.
var ErrUnexpectedResponse = errors.New("ai: unexpected response structure")

// StatusError is a non-2xx answer from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: completion returned status %d: %s", e.Code, e.Body)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the chat-completions endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient returns a client that authenticates with apiKey as a bearer token.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"}))
	hc.Timeout = timeout
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), model: model, httpClient: hc}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message *Message `json:"message"`
	} `json:"choices"`
}

// Complete sends messages and returns the assistant's reply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "ai", "ai.complete")
	defer span.End()

	reply, err := c.complete(ctx, messages)
	if err != nil {
		telemetry.Inc(telemetry.AICompletionErrors)
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.SetSpanSuccess(span)
	return reply, nil
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := string(raw)
		if len(b) > 200 {
			b = b[:200] + "..."
		}
		return "", &StatusError{Code: resp.StatusCode, Body: b}
	}
	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message == nil {
		return "", ErrUnexpectedResponse
	}
	return out.Choices[0].Message.Content, nil
}

// Chunk splits text into pieces of at most limit runes.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	chunks := make([]string, 0, len(runes)/limit+1)
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	return append(chunks, string(runes))
}
