package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/match-tender/commands"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/report"
)

type fakeIRC struct {
	mu        sync.Mutex
	said      []string
	joined    []string
	onConnect func()
}

func (f *fakeIRC) Say(_ string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
}

func (f *fakeIRC) Join(channels ...string) { f.joined = append(f.joined, channels...) }

func (f *fakeIRC) Connect() error {
	f.onConnect()
	return nil
}

func (f *fakeIRC) Disconnect() error { return nil }

func (f *fakeIRC) OnConnect(cb func()) { f.onConnect = cb }

func (f *fakeIRC) OnPrivateMessage(func(message twitch.PrivateMessage)) {}

func (f *fakeIRC) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

type fakeUsers map[string]string

func (f fakeUsers) GetUserID(_ context.Context, login string) (string, error) {
	if id, ok := f[strings.ToLower(login)]; ok {
		return id, nil
	}
	return "", errors.New("user not found")
}

func (f fakeUsers) DisplayName(_ context.Context, id string) string {
	for login, uid := range f {
		if uid == id {
			return login
		}
	}
	return ""
}

func newBot(t *testing.T, users Users) (*Bot, *fakeIRC, *registry.Registry) {
	t.Helper()
	reg, err := registry.Open(context.Background(), registry.NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil))
	if err != nil {
		t.Fatal(err)
	}
	router := &commands.Router{Prefix: "+", Registry: reg, ValidUserID: commands.IsValidTwitchID, MaxMessageLen: MaxMessageLen}
	irc := &fakeIRC{}
	b := NewWithIRC(irc, "#DotoChannel", router, users)
	irc.onConnect()
	return b, irc, reg
}

func privmsg(channel, userID, text string) twitch.PrivateMessage {
	return twitch.PrivateMessage{Channel: channel, Message: text, User: twitch.User{ID: userID, Name: "someone"}}
}

func TestFlatten(t *testing.T) {
	if got := Flatten("Victory\nKDA: 3.00\r\n\nItems"); got != "Victory | KDA: 3.00 | Items" {
		t.Errorf("Flatten = %q", got)
	}
}

func TestSendReportIsFlattenedAndChunked(t *testing.T) {
	b, irc, _ := newBot(t, nil)
	sink, err := b.TrackerSink(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := report.Report{Title: "Victory", Fields: []report.Field{{Name: "Notes", Value: strings.Repeat("x", 600)}}}
	if err := sink.SendReport(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	got := irc.messages()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	for _, m := range got {
		if strings.Contains(m, "\n") || len([]rune(m)) > MaxMessageLen {
			t.Errorf("bad chunk %q", m)
		}
	}
	if !strings.HasPrefix(got[0], "Victory | Notes:") {
		t.Errorf("first chunk = %q", got[0])
	}
}

func TestNotConnected(t *testing.T) {
	reg, _ := registry.Open(context.Background(), registry.NewFileStore(filepath.Join(t.TempDir(), "u.json"), nil))
	b := NewWithIRC(&fakeIRC{}, "chan", &commands.Router{Prefix: "+", Registry: reg}, nil)
	_, err := b.TrackerSink(context.Background())
	if !errors.Is(err, ErrNotConnected) || !errors.Is(err, report.ErrDeliveryFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestHandleMessageRegistersMention(t *testing.T) {
	b, irc, reg := newBot(t, fakeUsers{"friend": "4242"})

	b.HandleMessage(context.Background(), privmsg("dotochannel", "1001", "+register 12345678 @Friend"))
	if u, ok := reg.Get("4242"); !ok || u.SteamID != "12345678" {
		t.Fatalf("mentioned user not registered: %+v %v", u, ok)
	}
	if msgs := irc.messages(); len(msgs) != 1 || !strings.HasPrefix(msgs[0], "Successfully registered") {
		t.Errorf("replies = %q", msgs)
	}

	b.HandleMessage(context.Background(), privmsg("dotochannel", "1001", "+register 87654321 @ghost"))
	if msgs := irc.messages(); msgs[len(msgs)-1] != commands.InvalidUserID {
		t.Errorf("unresolved mention reply = %q", msgs[len(msgs)-1])
	}

	b.HandleMessage(context.Background(), privmsg("elsewhere", "1001", "+caow"))
	if n := len(irc.messages()); n != 2 {
		t.Errorf("message from another channel was handled (%d replies)", n)
	}
}

func TestHelpIsSingleLine(t *testing.T) {
	b, irc, _ := newBot(t, nil)
	b.HandleMessage(context.Background(), privmsg("dotochannel", "1", "+help"))
	msgs := irc.messages()
	if len(msgs) == 0 || strings.Contains(msgs[0], "\n") || !strings.Contains(msgs[0], " | +register") {
		t.Errorf("help = %q", msgs)
	}
}

func TestRunJoinsChannel(t *testing.T) {
	irc := &fakeIRC{}
	reg, _ := registry.Open(context.Background(), registry.NewFileStore(filepath.Join(t.TempDir(), "u.json"), nil))
	b := NewWithIRC(irc, "#Chan", &commands.Router{Prefix: "+", Registry: reg}, fakeUsers{"chan": "9"})
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(irc.joined) != 1 || irc.joined[0] != "chan" {
		t.Errorf("joined = %v", irc.joined)
	}
	if got := b.DisplayName(context.Background(), "9"); got != "chan" {
		t.Errorf("DisplayName = %q", got)
	}
}
