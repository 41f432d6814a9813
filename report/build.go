package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/onnwee/match-tender/opendota"
)

// Names carries the catalog names resolved for an individual report.
type Names struct {
	Hero      string
	HeroImage string
	Items     [6]string
}

func footerTime(start int64) (time.Time, string) {
	ts := time.Unix(start, 0).UTC()
	return ts, "Match played on " + ts.Format("2006-01-02 15:04 MST")
}

// BuildIndividual renders one player's performance in a match.
func BuildIndividual(detail *opendota.Match, p opendota.Player, names Names, displayName string) Report {
	won := Won(p.PlayerSlot, detail.RadiantWin)
	result, color := outcome(won)
	ts, footer := footerTime(detail.StartTime)
	url := MatchURL(detail.MatchID)

	return Report{
		Title:       "Recent Match for " + displayName,
		Description: fmt.Sprintf("**%s** as **%s**", result, names.Hero),
		URL:         url,
		Color:       color,
		Thumbnail:   names.HeroImage,
		Fields: []Field{
			{Name: "K/D/A", Value: fmt.Sprintf("%d/%d/%d", p.Kills, p.Deaths, p.Assists), Inline: true},
			{Name: "KDA Ratio", Value: KDA(p.Kills, p.Deaths, p.Assists), Inline: true},
			{Name: "Level", Value: fmt.Sprintf("%d", p.Level), Inline: true},
			{Name: "Last Hits/Denies", Value: fmt.Sprintf("%d/%d", p.LastHits, p.Denies), Inline: true},
			{Name: "GPM/XPM", Value: fmt.Sprintf("%d/%d", p.GoldPerMin, p.XPPerMin), Inline: true},
			{Name: "Hero Damage", Value: humanize.Comma(int64(p.HeroDamage)), Inline: true},
			{Name: "Tower Damage", Value: humanize.Comma(int64(p.TowerDamage)), Inline: true},
			{Name: "Hero Healing", Value: humanize.Comma(int64(p.HeroHealing)), Inline: true},
			{Name: "Items", Value: strings.Join(names.Items[:], ", "), Inline: false},
			{Name: "Gold Spent", Value: humanize.Comma(int64(p.GoldSpent)), Inline: true},
			{Name: "Team", Value: Team(p.PlayerSlot), Inline: true},
			{Name: "Match ID", Value: fmt.Sprintf("[%d](%s)", detail.MatchID, url), Inline: true},
			{Name: "Duration", Value: Duration(detail.Duration), Inline: true},
			{Name: "Game Mode", Value: GameMode(detail.GameMode), Inline: true},
			{Name: "Region", Value: Region(detail.Region), Inline: true},
		},
		Timestamp: ts,
		Footer:    footer,
	}
}

// BuildSummary renders a report from the recent-match payload alone. It is used
// when match detail is not available yet.
func BuildSummary(m opendota.RecentMatch, heroName, heroImage, displayName string) Report {
	result, color := outcome(m.Won())
	ts, footer := footerTime(m.StartTime)
	url := MatchURL(m.MatchID)
	mode := m.GameMode

	return Report{
		Title:       "Recent Match for " + displayName,
		Description: fmt.Sprintf("**%s** as **%s**", result, heroName),
		URL:         url,
		Color:       color,
		Thumbnail:   heroImage,
		Fields: []Field{
			{Name: "K/D/A", Value: fmt.Sprintf("%d/%d/%d", m.Kills, m.Deaths, m.Assists), Inline: true},
			{Name: "KDA Ratio", Value: KDA(m.Kills, m.Deaths, m.Assists), Inline: true},
			{Name: "Last Hits", Value: fmt.Sprintf("%d", m.LastHits), Inline: true},
			{Name: "GPM/XPM", Value: fmt.Sprintf("%d/%d", m.GoldPerMin, m.XPPerMin), Inline: true},
			{Name: "Hero Damage", Value: humanize.Comma(int64(m.HeroDamage)), Inline: true},
			{Name: "Team", Value: Team(m.PlayerSlot), Inline: true},
			{Name: "Match ID", Value: fmt.Sprintf("[%d](%s)", m.MatchID, url), Inline: true},
			{Name: "Duration", Value: Duration(m.Duration), Inline: true},
			{Name: "Game Mode", Value: GameMode(&mode), Inline: true},
		},
		Timestamp: ts,
		Footer:    footer + " (detailed stats pending)",
	}
}

// BuildCombined renders the full scoreboard of a match several tracked players
// took part in. tracked holds their Steam ids; heroNames maps hero id to name.
func BuildCombined(detail *opendota.Match, tracked []string, heroNames map[int]string) Report {
	isTracked := func(p opendota.Player) bool {
		id := p.SteamID()
		return id != "" && lo.Contains(tracked, id)
	}
	line := func(p opendota.Player, _ int) string {
		name := p.Name("Unknown")
		if isTracked(p) {
			name = "**" + name + "**"
		}
		hero, ok := heroNames[p.HeroID]
		if !ok {
			hero = opendota.UnknownRole
		}
		return fmt.Sprintf("%s (%s): %d/%d/%d | LH: %d | GPM: %d | XPM: %d",
			name, hero, p.Kills, p.Deaths, p.Assists, p.LastHits, p.GoldPerMin, p.XPPerMin)
	}
	kills := func(p opendota.Player) int { return p.Kills }

	radiant := lo.Filter(detail.Players, func(p opendota.Player, _ int) bool { return p.IsRadiant() })
	dire := lo.Filter(detail.Players, func(p opendota.Player, _ int) bool { return !p.IsRadiant() })

	trackedWon := lo.SomeBy(detail.Players, func(p opendota.Player) bool {
		return isTracked(p) && Won(p.PlayerSlot, detail.RadiantWin)
	})
	_, color := outcome(trackedWon)
	winner := "Dire"
	if detail.RadiantWin {
		winner = "Radiant"
	}
	ts, _ := footerTime(detail.StartTime)

	return Report{
		Title:       fmt.Sprintf("Match %d Summary", detail.MatchID),
		Description: fmt.Sprintf("**%s Victory**", winner),
		URL:         MatchURL(detail.MatchID),
		Color:       color,
		Fields: []Field{
			{Name: "Radiant", Value: strings.Join(lo.Map(radiant, line), "\n")},
			{Name: "Dire", Value: strings.Join(lo.Map(dire, line), "\n")},
			{Name: "Score", Value: fmt.Sprintf("Radiant %d - %d Dire", lo.SumBy(radiant, kills), lo.SumBy(dire, kills)), Inline: true},
			{Name: "Duration", Value: Duration(detail.Duration), Inline: true},
			{Name: "Game Mode", Value: GameMode(detail.GameMode), Inline: true},
		},
		Timestamp: ts,
		Footer:    fmt.Sprintf("Match ID: %d", detail.MatchID),
	}
}

// Participant is a tracked player's view of a shared match.
type Participant struct {
	SteamID     string
	DisplayName string
	Recent      opendota.RecentMatch
}

// BuildCombinedSummary renders a shared match from the tracked players'
// recent-match payloads when match detail is unavailable.
func BuildCombinedSummary(matchID int64, participants []Participant, heroNames map[int]string) Report {
	var first opendota.RecentMatch
	if len(participants) > 0 {
		first = participants[0].Recent
	}
	anyWon := lo.SomeBy(participants, func(p Participant) bool { return p.Recent.Won() })
	_, color := outcome(anyWon)
	lines := lo.Map(participants, func(p Participant, _ int) string {
		hero, ok := heroNames[p.Recent.HeroID]
		if !ok {
			hero = opendota.UnknownRole
		}
		result, _ := outcome(p.Recent.Won())
		return fmt.Sprintf("**%s** (%s, %s): %d/%d/%d | %s",
			p.DisplayName, hero, Team(p.Recent.PlayerSlot), p.Recent.Kills, p.Recent.Deaths, p.Recent.Assists, result)
	})
	ts, _ := footerTime(first.StartTime)
	mode := first.GameMode

	return Report{
		Title:       fmt.Sprintf("Match %d Summary", matchID),
		Description: "Detailed stats are not available yet.",
		URL:         MatchURL(matchID),
		Color:       color,
		Fields: []Field{
			{Name: "Tracked Players", Value: strings.Join(lines, "\n")},
			{Name: "Duration", Value: Duration(first.Duration), Inline: true},
			{Name: "Game Mode", Value: GameMode(&mode), Inline: true},
		},
		Timestamp: ts,
		Footer:    fmt.Sprintf("Match ID: %d", matchID),
	}
}
