// Package commands parses prefixed chat messages and dispatches them to the
// registry, the tracker and the AI assistant. It is platform neutral: adapters
// turn platform messages into a Message and supply a Responder.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/match-tender/ai"
	"github.com/onnwee/match-tender/opendota"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/telemetry"
	"github.com/onnwee/match-tender/tracker"
)

// Message is an inbound chat message.
type Message struct {
	Text     string
	AuthorID string
	// Mentions holds the user ids mentioned in the message, in order.
	Mentions []string
}

// Responder answers in the channel the message came from.
type Responder interface {
	tracker.Sink
	Reply(ctx context.Context, text string) error
	Typing(ctx context.Context)
}

// RecentStatser serves the rs command.
type RecentStatser interface {
	RecentStats(ctx context.Context, userID string, sink tracker.Sink) error
}

// Assistant serves gpat, gpatclear and story.
type Assistant interface {
	Ask(ctx context.Context, userID, prompt string) (string, error)
	Clear(userID string)
	Story(ctx context.Context, m *opendota.Match, heroNames map[int]string) (string, error)
}

// MatchSource serves story.
type MatchSource interface {
	Match(ctx context.Context, matchID int64) (*opendota.Match, error)
	RequestParse(ctx context.Context, matchID int64)
	HeroName(ctx context.Context, heroID int) string
}

// Router dispatches commands.
type Router struct {
	Prefix   string
	Registry *registry.Registry
	Stats    RecentStatser
	// AI and Matches may be nil; AI commands then explain they are disabled.
	AI      Assistant
	Matches MatchSource
	// ValidUserID validates the platform's user ids.
	ValidUserID func(string) bool
	// MaxMessageLen bounds each reply chunk.
	MaxMessageLen int
}

type handler func(ctx context.Context, msg Message, args []string, r Responder) error

func (rt *Router) handlers() map[string]handler {
	return map[string]handler{
		"help":       rt.help,
		"register":   rt.register,
		"unregister": rt.unregister,
		"rs":         rt.recentStats,
		"toggleauto": rt.toggleAuto,
		"gpat":       rt.gpat,
		"gpatclear":  rt.gpatClear,
		"story":      rt.story,
		"caow":       rt.caow,
	}
}

// Handle processes msg if it starts with the prefix. It reports whether the
// message was a command.
func (rt *Router) Handle(ctx context.Context, msg Message, r Responder) bool {
	if !strings.HasPrefix(msg.Text, rt.Prefix) {
		return false
	}
	args := strings.Fields(strings.TrimPrefix(msg.Text, rt.Prefix))
	if len(args) == 0 {
		return false
	}
	name := strings.ToLower(args[0])
	args = args[1:]

	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "commands"), slog.String("command", name), slog.String("author", msg.AuthorID))
	h, ok := rt.handlers()[name]
	if !ok {
		name = "unknown"
		h = rt.unknown
	}
	telemetry.IncCommand(name)
	if err := h(ctx, msg, args, r); err != nil {
		logger.Warn("command failed", slog.Any("err", err))
	}
	return true
}

func (rt *Router) unknown(ctx context.Context, _ Message, _ []string, r Responder) error {
	return r.Reply(ctx, fmt.Sprintf("Unknown command. Use %shelp to see available commands.", rt.Prefix))
}

func (rt *Router) help(ctx context.Context, _ Message, _ []string, r Responder) error {
	return r.Reply(ctx, helpText(rt.Prefix))
}

func (rt *Router) caow(ctx context.Context, _ Message, _ []string, r Responder) error {
	return r.Reply(ctx, Caow)
}

// target returns the mentioned user, or the author when nobody is mentioned.
func target(msg Message, args []string) string {
	if len(args) == 0 {
		return msg.AuthorID
	}
	if len(msg.Mentions) > 0 {
		return msg.Mentions[0]
	}
	if id := extractUserID(args[0]); id != "" {
		return id
	}
	return args[0]
}

func (rt *Router) register(ctx context.Context, msg Message, args []string, r Responder) error {
	if len(args) < 1 {
		return r.Reply(ctx, fmt.Sprintf(ProvideSteamID, rt.Prefix))
	}
	steamID := args[0]
	userID := target(msg, args[1:])

	if !IsValidSteamID(steamID) {
		return r.Reply(ctx, InvalidSteamID)
	}
	if rt.ValidUserID != nil && !rt.ValidUserID(userID) {
		return r.Reply(ctx, InvalidUserID)
	}

	err := rt.Registry.Add(ctx, registry.NewUser(userID, steamID))
	switch {
	case err == nil:
		return r.Reply(ctx, fmt.Sprintf(RegisterSuccess, steamID, rt.Prefix))
	case errors.Is(err, registry.ErrDuplicateSteamID):
		owner := ""
		if u, ok := rt.Registry.GetBySteamID(steamID); ok {
			owner = u.UserID
		}
		return r.Reply(ctx, fmt.Sprintf(AlreadyRegistered, steamID, owner))
	case errors.Is(err, registry.ErrAlreadyRegistered):
		existing, _ := rt.Registry.Get(userID)
		return r.Reply(ctx, fmt.Sprintf(UserAlreadyRegistered, existing.SteamID, rt.Prefix))
	default:
		_ = r.Reply(ctx, SaveFailed)
		return err
	}
}

func (rt *Router) unregister(ctx context.Context, msg Message, _ []string, r Responder) error {
	removed, err := rt.Registry.Remove(ctx, msg.AuthorID)
	switch {
	case err == nil:
		return r.Reply(ctx, fmt.Sprintf(UnregisterSuccess, removed.SteamID))
	case errors.Is(err, registry.ErrNotRegistered):
		return r.Reply(ctx, NotRegistered)
	default:
		_ = r.Reply(ctx, SaveFailed)
		return err
	}
}

func (rt *Router) recentStats(ctx context.Context, msg Message, args []string, r Responder) error {
	userID := target(msg, args)
	err := rt.Stats.RecentStats(ctx, userID, r)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrNotRegistered):
		return r.Reply(ctx, fmt.Sprintf(NeedRegistration, rt.Prefix))
	case errors.Is(err, report.ErrDeliveryFailed):
		return err
	default:
		_ = r.Reply(ctx, RecentStatsFailed)
		return err
	}
}

func (rt *Router) toggleAuto(ctx context.Context, msg Message, _ []string, r Responder) error {
	u, err := rt.Registry.Modify(ctx, msg.AuthorID, func(u *registry.User) { u.AutoNotify = !u.AutoNotify })
	switch {
	case err == nil:
		state := "disabled"
		if u.AutoNotify {
			state = "enabled"
		}
		return r.Reply(ctx, fmt.Sprintf(AutoToggled, state))
	case errors.Is(err, registry.ErrNotRegistered):
		return r.Reply(ctx, fmt.Sprintf(NeedRegistration, rt.Prefix))
	default:
		_ = r.Reply(ctx, SaveFailed)
		return err
	}
}

func (rt *Router) gpat(ctx context.Context, msg Message, args []string, r Responder) error {
	if rt.AI == nil {
		return r.Reply(ctx, AIDisabled)
	}
	if len(args) == 0 {
		return r.Reply(ctx, fmt.Sprintf(ProvidePrompt, rt.Prefix))
	}
	r.Typing(ctx)
	reply, err := rt.AI.Ask(ctx, msg.AuthorID, strings.Join(args, " "))
	if err != nil {
		_ = r.Reply(ctx, aiFailure(err))
		return err
	}
	return rt.replyChunks(ctx, r, reply)
}

func (rt *Router) gpatClear(ctx context.Context, msg Message, _ []string, r Responder) error {
	if rt.AI == nil {
		return r.Reply(ctx, AIDisabled)
	}
	rt.AI.Clear(msg.AuthorID)
	return r.Reply(ctx, HistoryCleared)
}

func (rt *Router) story(ctx context.Context, _ Message, args []string, r Responder) error {
	if rt.AI == nil || rt.Matches == nil {
		return r.Reply(ctx, AIDisabled)
	}
	if len(args) != 1 {
		return r.Reply(ctx, fmt.Sprintf(ProvideMatchID, rt.Prefix))
	}
	matchID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || matchID <= 0 {
		return r.Reply(ctx, InvalidMatchID)
	}

	m, err := rt.Matches.Match(ctx, matchID)
	if err != nil {
		_ = r.Reply(ctx, MatchUnavailable)
		return err
	}
	if !m.Parsed() {
		rt.Matches.RequestParse(ctx, matchID)
		return r.Reply(ctx, MatchUnavailable)
	}

	heroNames := make(map[int]string, len(m.Players))
	for _, p := range m.Players {
		if _, ok := heroNames[p.HeroID]; !ok {
			heroNames[p.HeroID] = rt.Matches.HeroName(ctx, p.HeroID)
		}
	}
	r.Typing(ctx)
	story, err := rt.AI.Story(ctx, m, heroNames)
	if err != nil {
		_ = r.Reply(ctx, StoryFailed)
		return err
	}
	return rt.replyChunks(ctx, r, story)
}

func (rt *Router) replyChunks(ctx context.Context, r Responder, text string) error {
	for _, chunk := range ai.Chunk(text, rt.MaxMessageLen) {
		if err := r.Reply(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func aiFailure(err error) string {
	var se *ai.StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf(AIStatusFailure, se.Code)
	case errors.Is(err, ai.ErrUnexpectedResponse):
		return AIUnexpected
	default:
		return AIUnreachable
	}
}
