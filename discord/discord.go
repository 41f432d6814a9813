// Package discord connects the command router and the tracker to a Discord
// bot account. Reports are posted as embeds.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/onnwee/match-tender/commands"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/telemetry"
	"github.com/onnwee/match-tender/tracker"
)

// MaxMessageLen is Discord's message content limit.
const MaxMessageLen = 2000

// ErrChannelNotFound is returned by TrackerSink when no text channel carries
// the configured name.
var ErrChannelNotFound = fmt.Errorf("%w: tracker channel not found", report.ErrDeliveryFailed)

// Session is the subset of *discordgo.Session the bot calls.
type Session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// Bot is a Discord adapter. It implements tracker.SinkProvider and
// tracker.Directory.
type Bot struct {
	api         Session
	router      *commands.Router
	channelName string
	// guildIDs lists the guilds the bot is a member of.
	guildIDs func() []string

	open  func() error
	close func() error

	mu        sync.Mutex
	channelID string
}

// New creates a bot authenticated with token. Reports go to the first text
// channel named channelName.
func New(token string, router *commands.Router, channelName string) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	b := NewWithSession(s, router, channelName, func() []string {
		s.State.RLock()
		defer s.State.RUnlock()
		ids := make([]string, 0, len(s.State.Guilds))
		for _, g := range s.State.Guilds {
			ids = append(ids, g.ID)
		}
		return ids
	})
	b.open, b.close = s.Open, s.Close
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord connected", slog.String("component", "discord"), slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(context.Background(), m.Message)
	})
	return b, nil
}

// NewWithSession builds a bot on an existing session.
func NewWithSession(api Session, router *commands.Router, channelName string, guildIDs func() []string) *Bot {
	return &Bot{api: api, router: router, channelName: channelName, guildIDs: guildIDs}
}

// Run opens the gateway connection and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.open == nil {
		return fmt.Errorf("discord: bot has no gateway connection")
	}
	if err := b.open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	if err := b.close(); err != nil {
		slog.Warn("discord close", slog.String("component", "discord"), slog.Any("err", err))
	}
	return nil
}

// HandleMessage routes a message from the gateway. Messages from bots are ignored.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, u.ID)
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	b.router.Handle(ctx, commands.Message{Text: m.Content, AuthorID: m.Author.ID, Mentions: mentions}, &channel{api: b.api, id: m.ChannelID})
}

// TrackerSink returns the tracker channel. A found channel id is cached.
func (b *Bot) TrackerSink(ctx context.Context) (tracker.Sink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channelID != "" {
		return &channel{api: b.api, id: b.channelID}, nil
	}
	for _, guildID := range b.guildIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chans, err := b.api.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			slog.Warn("list guild channels", slog.String("component", "discord"), slog.String("guild_id", guildID), slog.Any("err", err))
			continue
		}
		for _, c := range chans {
			if c.Type == discordgo.ChannelTypeGuildText && c.Name == b.channelName {
				b.channelID = c.ID
				return &channel{api: b.api, id: c.ID}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: #%s", ErrChannelNotFound, b.channelName)
}

// DisplayName returns the username for userID, or "" when the lookup fails.
func (b *Bot) DisplayName(ctx context.Context, userID string) string {
	u, err := b.api.User(userID, discordgo.WithContext(ctx))
	if err != nil || u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// channel is a Discord text channel. It is both a tracker.Sink and a
// commands.Responder.
type channel struct {
	api Session
	id  string
}

func (c *channel) SendReport(ctx context.Context, r report.Report) error {
	_, err := c.api.ChannelMessageSendComplex(c.id, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{Embed(r)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", report.ErrDeliveryFailed, err)
	}
	return nil
}

func (c *channel) SendText(ctx context.Context, text string) error {
	if err := c.Reply(ctx, text); err != nil {
		return fmt.Errorf("%w: %v", report.ErrDeliveryFailed, err)
	}
	return nil
}

func (c *channel) Reply(ctx context.Context, text string) error {
	_, err := c.api.ChannelMessageSend(c.id, text, discordgo.WithContext(ctx))
	return err
}

func (c *channel) Typing(ctx context.Context) {
	_ = c.api.ChannelTyping(c.id, discordgo.WithContext(ctx))
}

// Embed converts r into a Discord embed.
func Embed(r report.Report) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		Color:       r.Color,
	}
	if r.Thumbnail != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.Thumbnail}
	}
	for _, f := range r.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if !r.Timestamp.IsZero() {
		e.Timestamp = r.Timestamp.UTC().Format(time.RFC3339)
	}
	if r.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: r.Footer}
	}
	return e
}
