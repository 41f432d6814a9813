package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/onnwee/match-tender/opendota"
	"github.com/onnwee/match-tender/report"
)

// System prompts.
const (
	ChatSystemMessage  = "You are a friendly assistant in a Dota 2 community chat. Answer concisely and keep a playful tone."
	StorySystemMessage = "You are an energetic Dota 2 caster. You turn match data into short, vivid stories."
)

// Completer sends a conversation to a model.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Assistant keeps per-user conversation history in memory.
type Assistant struct {
	completer  Completer
	maxHistory int

	mu      sync.Mutex
	history map[string][]Message
}

// NewAssistant returns an Assistant that keeps at most maxHistory turns per user.
func NewAssistant(c Completer, maxHistory int) *Assistant {
	if maxHistory < 2 {
		maxHistory = 10
	}
	return &Assistant{completer: c, maxHistory: maxHistory, history: make(map[string][]Message)}
}

// Ask sends prompt with userID's history and records both turns on success.
// A failed call leaves the history unchanged.
func (a *Assistant) Ask(ctx context.Context, userID, prompt string) (string, error) {
	a.mu.Lock()
	past := append([]Message(nil), a.history[userID]...)
	a.mu.Unlock()

	msgs := make([]Message, 0, len(past)+2)
	msgs = append(msgs, Message{Role: "system", Content: ChatSystemMessage})
	msgs = append(msgs, past...)
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	reply, err := a.completer.Complete(ctx, msgs)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[userID], Message{Role: "user", Content: prompt}, Message{Role: "assistant", Content: reply})
	for len(h) > a.maxHistory {
		h = h[2:]
	}
	a.history[userID] = h
	return reply, nil
}

// Clear forgets userID's history.
func (a *Assistant) Clear(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.history, userID)
}

// History returns a copy of userID's history.
func (a *Assistant) History(userID string) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.history[userID]...)
}

// Story narrates a parsed match.
func (a *Assistant) Story(ctx context.Context, m *opendota.Match, heroNames map[int]string) (string, error) {
	return a.completer.Complete(ctx, []Message{
		{Role: "system", Content: StorySystemMessage},
		{Role: "user", Content: StoryPrompt(m, heroNames)},
	})
}

// StoryPrompt builds the narration request for m.
func StoryPrompt(m *opendota.Match, heroNames map[int]string) string {
	var b strings.Builder
	winner := "Dire"
	if m.RadiantWin {
		winner = "Radiant"
	}
	fmt.Fprintf(&b, "Generate a short, engaging story about this Dota 2 match:\nMatch ID: %d\nDuration: %s\nWinner: %s\n\nPlayers:\n",
		m.MatchID, report.Duration(m.Duration), winner)
	for _, p := range m.Players {
		hero, ok := heroNames[p.HeroID]
		if !ok {
			hero = opendota.UnknownRole
		}
		fmt.Fprintf(&b, "%s as %s (%s): %d/%d/%d\n", p.Name("Anonymous"), hero, report.Team(p.PlayerSlot), p.Kills, p.Deaths, p.Assists)
	}

	b.WriteString("\nKey events:\n")
	for _, o := range m.Objectives {
		fmt.Fprintf(&b, "%s - %s (%s)\n", report.Duration(o.Time), o.Type, o.TeamName())
	}

	b.WriteString("\nChat highlights:\n")
	shown := 0
	for _, c := range m.Chat {
		if c.Type != "chat" {
			continue
		}
		speaker := "Unknown"
		if c.PlayerSlot != nil {
			if p, ok := m.PlayerBySlot(*c.PlayerSlot); ok {
				speaker = p.Name("Unknown")
			}
		}
		fmt.Fprintf(&b, "%s - %s: %s\n", report.Duration(c.Time), speaker, c.Key)
		if shown++; shown == 5 {
			break
		}
	}

	b.WriteString("\nPlease create a narrative that captures the excitement and key moments of the match, " +
		"incorporating player actions, objectives, and any interesting chat messages. " +
		"Keep the story concise but entertaining. Use player names and hero names when describing actions.")
	return b.String()
}
