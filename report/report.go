// Package report turns OpenDota match data into chat-ready reports.
//
// The Build* functions are pure: they take already-fetched match data and
// resolved catalog names and return a Report. Builder does the fetching and
// falls back to a summary-only report when match detail is unavailable.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrDeliveryFailed wraps any failure to post a report or notice to a channel.
var ErrDeliveryFailed = errors.New("report: delivery failed")

// Colors used for the report accent.
const (
	ColorVictory = 0x66bb6a
	ColorDefeat  = 0xef5350
)

// MatchURL returns the OpenDota page for matchID.
func MatchURL(matchID int64) string {
	return fmt.Sprintf("https://www.opendota.com/matches/%d", matchID)
}

// Field is one name/value pair of a report.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Report is a platform-neutral rich message. Discord renders it as an embed;
// platforms without embeds use Text.
type Report struct {
	Title       string
	Description string
	URL         string
	Color       int
	Thumbnail   string
	Fields      []Field
	Timestamp   time.Time
	Footer      string
}

// Field returns the value of the field called name.
func (r Report) Field(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

var mdLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)

func plain(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	return strings.ReplaceAll(s, "**", "")
}

// Text renders the report as plain text, one line per block field and inline
// fields joined with " | ".
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString(plain(r.Title))
	if r.Description != "" {
		b.WriteString(": ")
		b.WriteString(plain(r.Description))
	}
	var inline []string
	flush := func() {
		if len(inline) > 0 {
			b.WriteString("\n")
			b.WriteString(strings.Join(inline, " | "))
			inline = inline[:0]
		}
	}
	for _, f := range r.Fields {
		if f.Inline {
			inline = append(inline, plain(f.Name)+": "+plain(f.Value))
			continue
		}
		flush()
		b.WriteString("\n")
		b.WriteString(plain(f.Name))
		b.WriteString(":\n")
		b.WriteString(plain(f.Value))
	}
	flush()
	if r.URL != "" {
		b.WriteString("\n")
		b.WriteString(r.URL)
	}
	return b.String()
}

// KDA returns (kills+assists)/max(deaths,1) with two decimals.
func KDA(kills, deaths, assists int) string {
	return fmt.Sprintf("%.2f", float64(kills+assists)/float64(max(deaths, 1)))
}

// Duration formats seconds as m:ss.
func Duration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Won reports whether the player in slot was on the winning side.
func Won(playerSlot int, radiantWin bool) bool {
	return (playerSlot < 128) == radiantWin
}

// Team returns the side name for slot.
func Team(playerSlot int) string {
	if playerSlot < 128 {
		return "Radiant"
	}
	return "Dire"
}

func outcome(won bool) (string, int) {
	if won {
		return "Victory", ColorVictory
	}
	return "Defeat", ColorDefeat
}

var gameModes = map[int]string{
	0: "Unknown", 1: "All Pick", 2: "Captains Mode", 3: "Random Draft", 4: "Single Draft",
	5: "All Random", 11: "Mid Only", 12: "Least Played", 16: "Captains Draft",
	18: "Ability Draft", 20: "All Random Deathmatch", 21: "1v1 Mid", 22: "All Draft", 23: "Turbo",
}

var regions = map[int]string{
	1: "US West", 2: "US East", 3: "Europe", 5: "Singapore", 6: "Dubai", 7: "Australia",
	8: "Stockholm", 9: "Austria", 10: "Brazil", 11: "South Africa", 12: "China", 14: "Chile",
	15: "Peru", 16: "India", 19: "Japan", 20: "Taiwan", 25: "South America",
}

// GameMode names a game mode id. Unknown ids are shown as numbers.
func GameMode(mode *int) string { return lookup(gameModes, mode) }

// Region names a region id. Unknown ids are shown as numbers.
func Region(region *int) string { return lookup(regions, region) }

func lookup(names map[int]string, id *int) string {
	if id == nil {
		return "Unknown"
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return fmt.Sprintf("%d", *id)
}
