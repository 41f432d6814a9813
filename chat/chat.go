package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/match-tender/ai"
	"github.com/onnwee/match-tender/commands"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/telemetry"
	"github.com/onnwee/match-tender/tracker"
)

// MaxMessageLen is the Twitch chat message limit.
const MaxMessageLen = 500

var (
	// ErrNotConnected is returned by sends while the IRC connection is down.
	ErrNotConnected = fmt.Errorf("%w: twitch chat not connected", report.ErrDeliveryFailed)

	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]{3,25})`)
)

// IRC is the subset of *twitch.Client the bot calls.
type IRC interface {
	Say(channel, text string)
	Join(channels ...string)
	Connect() error
	Disconnect() error
	OnConnect(callback func())
	OnPrivateMessage(callback func(message twitch.PrivateMessage))
}

// Users resolves Twitch logins and ids. *twitchapi.HelixClient implements it.
type Users interface {
	GetUserID(ctx context.Context, login string) (string, error)
	DisplayName(ctx context.Context, id string) string
}

// Bot is the Twitch adapter. It implements tracker.SinkProvider and
// tracker.Directory.
type Bot struct {
	irc     IRC
	channel string
	router  *commands.Router
	// users may be nil.
	users Users

	connected atomic.Bool
}

// New creates a bot that logs in as username with a user OAuth token.
func New(username, oauthToken, channel string, router *commands.Router, users Users) *Bot {
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	return NewWithIRC(twitch.NewClient(username, oauthToken), channel, router, users)
}

// NewWithIRC builds a bot on an existing IRC client.
func NewWithIRC(irc IRC, channel string, router *commands.Router, users Users) *Bot {
	b := &Bot{irc: irc, channel: strings.ToLower(strings.TrimPrefix(channel, "#")), router: router, users: users}
	irc.OnConnect(func() {
		b.connected.Store(true)
		slog.Info("twitch chat connected", slog.String("component", "chat"), slog.String("channel", b.channel))
	})
	irc.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		go b.HandleMessage(context.Background(), msg)
	})
	return b
}

// Run joins the channel and blocks until ctx is done or the connection fails.
func (b *Bot) Run(ctx context.Context) error {
	b.irc.Join(b.channel)
	errc := make(chan error, 1)
	go func() { errc <- b.irc.Connect() }()

	select {
	case <-ctx.Done():
		b.connected.Store(false)
		if err := b.irc.Disconnect(); err != nil {
			slog.Warn("twitch disconnect", slog.String("component", "chat"), slog.Any("err", err))
		}
		return nil
	case err := <-errc:
		b.connected.Store(false)
		if err == nil || errors.Is(err, twitch.ErrClientDisconnected) {
			return nil
		}
		return fmt.Errorf("twitch connect: %w", err)
	}
}

// HandleMessage routes one chat message. Messages from other channels and
// from the bot itself are ignored.
func (b *Bot) HandleMessage(ctx context.Context, msg twitch.PrivateMessage) {
	if !strings.EqualFold(msg.Channel, b.channel) || msg.User.ID == "" {
		return
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	b.router.Handle(ctx, commands.Message{
		Text:     msg.Message,
		AuthorID: msg.User.ID,
		Mentions: b.resolveMentions(ctx, msg.Message),
	}, &sink{bot: b})
}

func (b *Bot) resolveMentions(ctx context.Context, text string) []string {
	if b.users == nil {
		return nil
	}
	var ids []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		id, err := b.users.GetUserID(ctx, m[1])
		if err != nil {
			telemetry.LoggerWithCorr(ctx).Debug("mention not resolved", slog.String("component", "chat"), slog.String("login", m[1]), slog.Any("err", err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// TrackerSink returns the joined channel.
func (b *Bot) TrackerSink(context.Context) (tracker.Sink, error) {
	if !b.connected.Load() {
		return nil, ErrNotConnected
	}
	return &sink{bot: b}, nil
}

// DisplayName returns the Twitch display name of id, or "" when unknown.
func (b *Bot) DisplayName(ctx context.Context, id string) string {
	if b.users == nil {
		return ""
	}
	return b.users.DisplayName(ctx, id)
}

// say posts text as one or more single-line messages.
func (b *Bot) say(text string) error {
	if !b.connected.Load() {
		return ErrNotConnected
	}
	for _, chunk := range ai.Chunk(Flatten(text), MaxMessageLen) {
		b.irc.Say(b.channel, chunk)
	}
	return nil
}

// Flatten joins the lines of text with " | ".
func Flatten(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	return strings.Join(lines, " | ")
}

// sink is the joined channel. It is both a tracker.Sink and a commands.Responder.
type sink struct{ bot *Bot }

func (s *sink) SendReport(_ context.Context, r report.Report) error { return s.bot.say(r.Text()) }

func (s *sink) SendText(_ context.Context, text string) error { return s.bot.say(text) }

func (s *sink) Reply(_ context.Context, text string) error { return s.bot.say(text) }

func (s *sink) Typing(context.Context) {}
