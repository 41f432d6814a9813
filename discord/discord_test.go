package discord

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/match-tender/commands"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/report"
)

type fakeSession struct {
	channels map[string][]*discordgo.Channel
	users    map[string]*discordgo.User
	sent     map[string][]string
	embeds   map[string][]*discordgo.MessageEmbed
	typing   int
	listed   int
	fail     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		channels: map[string][]*discordgo.Channel{},
		users:    map[string]*discordgo.User{},
		sent:     map[string][]string{},
		embeds:   map[string][]*discordgo.MessageEmbed{},
	}
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.fail {
		return nil, errors.New("403 forbidden")
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.fail {
		return nil, errors.New("403 forbidden")
	}
	f.embeds[channelID] = append(f.embeds[channelID], data.Embeds...)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.typing++
	return nil
}

func (f *fakeSession) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.listed++
	if guildID == "broken" {
		return nil, errors.New("500")
	}
	return f.channels[guildID], nil
}

func (f *fakeSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("404 unknown user")
	}
	return u, nil
}

func guilds(ids ...string) func() []string { return func() []string { return ids } }

func TestTrackerSinkResolvesByName(t *testing.T) {
	fs := newFakeSession()
	fs.channels["g2"] = []*discordgo.Channel{
		{ID: "voice", Name: "doto-tracker", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "tracker", Name: "doto-tracker", Type: discordgo.ChannelTypeGuildText},
	}
	b := NewWithSession(fs, nil, "doto-tracker", guilds("broken", "g2"))

	sink, err := b.TrackerSink(context.Background())
	if err != nil {
		t.Fatalf("TrackerSink: %v", err)
	}
	if err := sink.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got := fs.sent["tracker"]; len(got) != 1 || got[0] != "hello" {
		t.Errorf("sent = %v", fs.sent)
	}

	listed := fs.listed
	if _, err := b.TrackerSink(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fs.listed != listed {
		t.Error("resolved channel was not cached")
	}
}

func TestTrackerSinkMissingChannel(t *testing.T) {
	b := NewWithSession(newFakeSession(), nil, "doto-tracker", guilds("g1"))
	_, err := b.TrackerSink(context.Background())
	if !errors.Is(err, ErrChannelNotFound) || !errors.Is(err, report.ErrDeliveryFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestSendFailuresWrapDeliveryFailed(t *testing.T) {
	fs := newFakeSession()
	fs.fail = true
	c := &channel{api: fs, id: "c"}
	if err := c.SendReport(context.Background(), report.Report{Title: "x"}); !errors.Is(err, report.ErrDeliveryFailed) {
		t.Errorf("SendReport err = %v", err)
	}
	if err := c.SendText(context.Background(), "x"); !errors.Is(err, report.ErrDeliveryFailed) {
		t.Errorf("SendText err = %v", err)
	}
}

func TestEmbed(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Embed(report.Report{
		Title:     "Victory",
		URL:       report.MatchURL(1),
		Color:     report.ColorVictory,
		Thumbnail: "https://cdn/hero.png",
		Fields:    []report.Field{{Name: "KDA", Value: "3.00", Inline: true}, {Name: "Items", Value: "BKB"}},
		Timestamp: ts,
		Footer:    "Match ID: 1",
	})
	if e.Title != "Victory" || e.Color != report.ColorVictory || e.URL != "https://www.opendota.com/matches/1" {
		t.Errorf("embed = %+v", e)
	}
	if e.Thumbnail == nil || e.Thumbnail.URL != "https://cdn/hero.png" {
		t.Errorf("thumbnail = %+v", e.Thumbnail)
	}
	if len(e.Fields) != 2 || !e.Fields[0].Inline || e.Fields[1].Inline {
		t.Errorf("fields = %+v", e.Fields)
	}
	if e.Timestamp != "2024-03-01T12:00:00Z" || e.Footer.Text != "Match ID: 1" {
		t.Errorf("timestamp/footer = %q %+v", e.Timestamp, e.Footer)
	}

	bare := Embed(report.Report{Title: "t"})
	if bare.Thumbnail != nil || bare.Footer != nil || bare.Timestamp != "" {
		t.Errorf("empty parts should be omitted: %+v", bare)
	}
}

func TestDisplayName(t *testing.T) {
	fs := newFakeSession()
	fs.users["1"] = &discordgo.User{ID: "1", Username: "alice", GlobalName: "Alice A"}
	fs.users["2"] = &discordgo.User{ID: "2", Username: "bob"}
	b := NewWithSession(fs, nil, "", guilds())
	for id, want := range map[string]string{"1": "Alice A", "2": "bob", "3": ""} {
		if got := b.DisplayName(context.Background(), id); got != want {
			t.Errorf("DisplayName(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestHandleMessage(t *testing.T) {
	fs := newFakeSession()
	reg, err := registry.Open(context.Background(), registry.NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil))
	if err != nil {
		t.Fatal(err)
	}
	router := &commands.Router{Prefix: "+", Registry: reg, ValidUserID: commands.IsValidDiscordID, MaxMessageLen: MaxMessageLen}
	b := NewWithSession(fs, router, "", guilds())

	const author = "111111111111111111"
	b.HandleMessage(context.Background(), &discordgo.Message{ChannelID: "c", Content: "+register 12345678", Author: &discordgo.User{ID: author}})
	if _, ok := reg.Get(author); !ok {
		t.Fatal("register did not reach the registry")
	}
	if len(fs.sent["c"]) != 1 {
		t.Errorf("replies = %v", fs.sent["c"])
	}

	b.HandleMessage(context.Background(), &discordgo.Message{ChannelID: "c", Content: "+caow", Author: &discordgo.User{ID: "9", Bot: true}})
	if len(fs.sent["c"]) != 1 {
		t.Error("bot messages must be ignored")
	}
}
