package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onnwee/match-tender/ai"
	"github.com/onnwee/match-tender/opendota"
	"github.com/onnwee/match-tender/registry"
	"github.com/onnwee/match-tender/report"
	"github.com/onnwee/match-tender/tracker"
)

type recorder struct {
	replies []string
	reports []report.Report
	typing  int
}

func (r *recorder) Reply(_ context.Context, text string) error {
	r.replies = append(r.replies, text)
	return nil
}

func (r *recorder) Typing(context.Context) { r.typing++ }

func (r *recorder) SendReport(_ context.Context, rep report.Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

func (r *recorder) SendText(ctx context.Context, text string) error { return r.Reply(ctx, text) }

func (r *recorder) last() string {
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

type fakeStats struct {
	calledWith string
	err        error
}

func (f *fakeStats) RecentStats(ctx context.Context, userID string, sink tracker.Sink) error {
	f.calledWith = userID
	if f.err != nil {
		return f.err
	}
	return sink.SendReport(ctx, report.Report{Title: "stats for " + userID})
}

type fakeAssistant struct {
	askErr  error
	reply   string
	cleared []string
	storyOf int64
}

func (f *fakeAssistant) Ask(_ context.Context, _, prompt string) (string, error) {
	if f.askErr != nil {
		return "", f.askErr
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "echo: " + prompt, nil
}

func (f *fakeAssistant) Clear(userID string) { f.cleared = append(f.cleared, userID) }

func (f *fakeAssistant) Story(_ context.Context, m *opendota.Match, heroNames map[int]string) (string, error) {
	f.storyOf = m.MatchID
	return fmt.Sprintf("story of %d with %s", m.MatchID, heroNames[1]), nil
}

type fakeMatches struct {
	match     *opendota.Match
	requested []int64
}

func (f *fakeMatches) Match(context.Context, int64) (*opendota.Match, error) {
	if f.match == nil {
		return nil, opendota.ErrUpstreamUnavailable
	}
	return f.match, nil
}

func (f *fakeMatches) RequestParse(_ context.Context, id int64) { f.requested = append(f.requested, id) }

func (f *fakeMatches) HeroName(_ context.Context, id int) string {
	if id == 1 {
		return "Anti-Mage"
	}
	return opendota.UnknownRole
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	reg, err := registry.Open(context.Background(), registry.NewFileStore(filepath.Join(t.TempDir(), "users.json"), nil))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return &Router{
		Prefix:        "+",
		Registry:      reg,
		Stats:         &fakeStats{},
		ValidUserID:   IsValidDiscordID,
		MaxMessageLen: 2000,
	}
}

const (
	alice = "111111111111111111"
	bob   = "222222222222222222"
)

func run(t *testing.T, rt *Router, text, author string, mentions ...string) *recorder {
	t.Helper()
	rec := &recorder{}
	if !rt.Handle(context.Background(), Message{Text: text, AuthorID: author, Mentions: mentions}, rec) {
		t.Fatalf("%q was not handled", text)
	}
	return rec
}

func TestNonCommandsAreIgnored(t *testing.T) {
	rt := newRouter(t)
	for _, text := range []string{"hello", "", "+", "+   "} {
		if rt.Handle(context.Background(), Message{Text: text, AuthorID: alice}, &recorder{}) {
			t.Errorf("%q handled", text)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	rec := run(t, newRouter(t), "+dance", alice)
	if rec.last() != "Unknown command. Use +help to see available commands." {
		t.Errorf("reply = %q", rec.last())
	}
}

func TestHelpAndCaow(t *testing.T) {
	rt := newRouter(t)
	rt.Prefix = "!"
	if rec := run(t, rt, "!help", alice); !strings.Contains(rec.last(), "!register <steam_id>") {
		t.Errorf("help = %q", rec.last())
	}
	if rec := run(t, rt, "!CAOW", alice); rec.last() != Caow {
		t.Errorf("caow = %q", rec.last())
	}
}

func TestRegister(t *testing.T) {
	rt := newRouter(t)

	if rec := run(t, rt, "+register", alice); !strings.HasPrefix(rec.last(), "Please provide your Steam ID") {
		t.Errorf("missing arg reply = %q", rec.last())
	}
	if rec := run(t, rt, "+register 12ab", alice); rec.last() != InvalidSteamID {
		t.Errorf("bad steam id reply = %q", rec.last())
	}

	rec := run(t, rt, "+register 12345678", alice)
	if !strings.HasPrefix(rec.last(), "Successfully registered Steam ID: 12345678") {
		t.Errorf("success reply = %q", rec.last())
	}
	u, ok := rt.Registry.Get(alice)
	if !ok || u.SteamID != "12345678" || !u.AutoNotify || u.LastMatchID != nil {
		t.Errorf("stored user = %+v", u)
	}

	rec = run(t, rt, "+register 12345678 <@"+bob+">", alice, bob)
	if rec.last() != fmt.Sprintf(AlreadyRegistered, "12345678", alice) {
		t.Errorf("duplicate reply = %q", rec.last())
	}
	if _, ok := rt.Registry.Get(bob); ok {
		t.Error("duplicate steam id registered")
	}

	rec = run(t, rt, "+register 87654321", alice)
	if !strings.Contains(rec.last(), "already registered with Steam ID 12345678") {
		t.Errorf("re-register reply = %q", rec.last())
	}
}

func TestRegisterOnBehalfOfMention(t *testing.T) {
	rt := newRouter(t)
	run(t, rt, "+register 12345678 <@!"+bob+">", alice)
	if u, ok := rt.Registry.Get(bob); !ok || u.SteamID != "12345678" {
		t.Errorf("mention without Mentions slice: %+v %v", u, ok)
	}
	if rec := run(t, rt, "+register 99999999 <@123>", alice); rec.last() != InvalidUserID {
		t.Errorf("invalid mention reply = %q", rec.last())
	}
}

func TestUnregister(t *testing.T) {
	rt := newRouter(t)
	if rec := run(t, rt, "+unregister", alice); rec.last() != NotRegistered {
		t.Errorf("reply = %q", rec.last())
	}
	run(t, rt, "+register 12345678", alice)
	if rec := run(t, rt, "+unregister", alice); rec.last() != "Successfully unregistered Steam ID: 12345678" {
		t.Errorf("reply = %q", rec.last())
	}
	if rt.Registry.Len() != 0 {
		t.Error("user still registered")
	}
}

func TestToggleAuto(t *testing.T) {
	rt := newRouter(t)
	if rec := run(t, rt, "+toggleauto", alice); !strings.HasPrefix(rec.last(), "You need to register first") {
		t.Errorf("reply = %q", rec.last())
	}
	run(t, rt, "+register 12345678", alice)
	if rec := run(t, rt, "+toggleauto", alice); !strings.HasSuffix(rec.last(), "disabled.") {
		t.Errorf("reply = %q", rec.last())
	}
	if u, _ := rt.Registry.Get(alice); u.AutoNotify {
		t.Error("auto notify still on")
	}
	if rec := run(t, rt, "+toggleauto", alice); !strings.HasSuffix(rec.last(), "enabled.") {
		t.Errorf("reply = %q", rec.last())
	}
}

func TestRecentStats(t *testing.T) {
	rt := newRouter(t)
	stats := rt.Stats.(*fakeStats)

	rec := run(t, rt, "+rs", alice)
	if stats.calledWith != alice || len(rec.reports) != 1 {
		t.Errorf("rs for self: called %q, reports %d", stats.calledWith, len(rec.reports))
	}
	run(t, rt, "+rs <@"+bob+">", alice, bob)
	if stats.calledWith != bob {
		t.Errorf("rs for mention called %q", stats.calledWith)
	}

	stats.err = registry.ErrNotRegistered
	if rec := run(t, rt, "+rs", alice); !strings.HasPrefix(rec.last(), "You need to register first") {
		t.Errorf("reply = %q", rec.last())
	}
	stats.err = fmt.Errorf("%w: closed", report.ErrDeliveryFailed)
	if rec := run(t, rt, "+rs", alice); len(rec.replies) != 0 {
		t.Errorf("delivery failure should not reply: %q", rec.replies)
	}
	stats.err = errors.New("boom")
	if rec := run(t, rt, "+rs", alice); rec.last() != RecentStatsFailed {
		t.Errorf("reply = %q", rec.last())
	}
}

func TestAICommandsDisabled(t *testing.T) {
	rt := newRouter(t)
	for _, text := range []string{"+gpat hi", "+gpatclear", "+story 1"} {
		if rec := run(t, rt, text, alice); rec.last() != AIDisabled {
			t.Errorf("%s: reply = %q", text, rec.last())
		}
	}
}

func TestGpat(t *testing.T) {
	rt := newRouter(t)
	fa := &fakeAssistant{}
	rt.AI = fa

	if rec := run(t, rt, "+gpat", alice); !strings.HasPrefix(rec.last(), "Please provide a prompt") {
		t.Errorf("reply = %q", rec.last())
	}
	rec := run(t, rt, "+gpat who   is the best carry", alice)
	if rec.last() != "echo: who is the best carry" || rec.typing != 1 {
		t.Errorf("reply = %q typing = %d", rec.last(), rec.typing)
	}

	fa.reply = strings.Repeat("x", 4100)
	if rec := run(t, rt, "+gpat long", alice); len(rec.replies) != 3 {
		t.Errorf("long reply chunks = %d", len(rec.replies))
	}

	fa.askErr = &ai.StatusError{Code: 429}
	if rec := run(t, rt, "+gpat hi", alice); rec.last() != fmt.Sprintf(AIStatusFailure, 429) {
		t.Errorf("reply = %q", rec.last())
	}
	fa.askErr = fmt.Errorf("%w: empty", ai.ErrUnexpectedResponse)
	if rec := run(t, rt, "+gpat hi", alice); rec.last() != AIUnexpected {
		t.Errorf("reply = %q", rec.last())
	}
	fa.askErr = context.DeadlineExceeded
	if rec := run(t, rt, "+gpat hi", alice); rec.last() != AIUnreachable {
		t.Errorf("reply = %q", rec.last())
	}

	run(t, rt, "+gpatclear", alice)
	if len(fa.cleared) != 1 || fa.cleared[0] != alice {
		t.Errorf("cleared = %v", fa.cleared)
	}
}

func TestStory(t *testing.T) {
	rt := newRouter(t)
	fa := &fakeAssistant{}
	fm := &fakeMatches{}
	rt.AI, rt.Matches = fa, fm

	if rec := run(t, rt, "+story", alice); !strings.HasPrefix(rec.last(), "Please provide a match ID") {
		t.Errorf("reply = %q", rec.last())
	}
	if rec := run(t, rt, "+story abc", alice); rec.last() != InvalidMatchID {
		t.Errorf("reply = %q", rec.last())
	}
	if rec := run(t, rt, "+story 42", alice); rec.last() != MatchUnavailable {
		t.Errorf("fetch failure reply = %q", rec.last())
	}

	fm.match = &opendota.Match{MatchID: 42, Players: []opendota.Player{{HeroID: 1}}}
	if rec := run(t, rt, "+story 42", alice); rec.last() != MatchUnavailable || len(fm.requested) != 1 {
		t.Errorf("unparsed: reply = %q requested = %v", rec.last(), fm.requested)
	}

	version := 21
	fm.match.Version = &version
	rec := run(t, rt, "+story 42", alice)
	if rec.last() != "story of 42 with Anti-Mage" || fa.storyOf != 42 {
		t.Errorf("reply = %q", rec.last())
	}
}

func TestValidators(t *testing.T) {
	cases := []struct {
		fn   func(string) bool
		in   string
		want bool
	}{
		{IsValidSteamID, "12345678", true},
		{IsValidSteamID, "1234567890", true},
		{IsValidSteamID, "1234567", false},
		{IsValidSteamID, "12345678901", false},
		{IsValidSteamID, "7656119x", false},
		{IsValidDiscordID, "123456789012345678", true},
		{IsValidDiscordID, "1234", false},
		{IsValidTwitchID, "44322889", true},
		{IsValidTwitchID, "someone", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Errorf("validate(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
