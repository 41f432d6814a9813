package opendota

import "strconv"

// RadiantSlotLimit separates Radiant (below) from Dire (at or above) player slots.
const RadiantSlotLimit = 128

// RecentMatch is one entry of /players/{id}/recentMatches.
type RecentMatch struct {
	MatchID     int64 `json:"match_id"`
	PlayerSlot  int   `json:"player_slot"`
	RadiantWin  bool  `json:"radiant_win"`
	Duration    int   `json:"duration"`
	GameMode    int   `json:"game_mode"`
	LobbyType   int   `json:"lobby_type"`
	HeroID      int   `json:"hero_id"`
	StartTime   int64 `json:"start_time"`
	Version     *int  `json:"version"`
	Kills       int   `json:"kills"`
	Deaths      int   `json:"deaths"`
	Assists     int   `json:"assists"`
	XPPerMin    int   `json:"xp_per_min"`
	GoldPerMin  int   `json:"gold_per_min"`
	HeroDamage  int   `json:"hero_damage"`
	TowerDamage int   `json:"tower_damage"`
	HeroHealing int   `json:"hero_healing"`
	LastHits    int   `json:"last_hits"`
}

// IsRadiant reports whether the player was on Radiant.
func (m RecentMatch) IsRadiant() bool { return m.PlayerSlot < RadiantSlotLimit }

// Won reports whether the player's team won.
func (m RecentMatch) Won() bool { return m.IsRadiant() == m.RadiantWin }

// Match is the /matches/{id} detail payload.
type Match struct {
	MatchID      int64       `json:"match_id"`
	RadiantWin   bool        `json:"radiant_win"`
	Duration     int         `json:"duration"`
	StartTime    int64       `json:"start_time"`
	GameMode     *int        `json:"game_mode"`
	Region       *int        `json:"region"`
	RadiantScore int         `json:"radiant_score"`
	DireScore    int         `json:"dire_score"`
	Version      *int        `json:"version"`
	Players      []Player    `json:"players"`
	Chat         []ChatEvent `json:"chat"`
	Objectives   []Objective `json:"objectives"`
}

// Parsed reports whether OpenDota has parsed the replay.
func (m *Match) Parsed() bool { return m != nil && m.Version != nil }

// PlayerBySteamID returns the roster entry whose account id is steamID.
func (m *Match) PlayerBySteamID(steamID string) (Player, bool) {
	for _, p := range m.Players {
		if p.SteamID() == steamID {
			return p, true
		}
	}
	return Player{}, false
}

// PlayerBySlot returns the roster entry in slot.
func (m *Match) PlayerBySlot(slot int) (Player, bool) {
	for _, p := range m.Players {
		if p.PlayerSlot == slot {
			return p, true
		}
	}
	return Player{}, false
}

// Player is one roster entry of a match detail.
type Player struct {
	AccountID   *int64 `json:"account_id"`
	PersonaName string `json:"personaname"`
	HeroID      int    `json:"hero_id"`
	PlayerSlot  int    `json:"player_slot"`
	Kills       int    `json:"kills"`
	Deaths      int    `json:"deaths"`
	Assists     int    `json:"assists"`
	Level       int    `json:"level"`
	LastHits    int    `json:"last_hits"`
	Denies      int    `json:"denies"`
	GoldPerMin  int    `json:"gold_per_min"`
	XPPerMin    int    `json:"xp_per_min"`
	HeroDamage  int    `json:"hero_damage"`
	TowerDamage int    `json:"tower_damage"`
	HeroHealing int    `json:"hero_healing"`
	GoldSpent   int    `json:"gold_spent"`
	NetWorth    int    `json:"net_worth"`
	Item0       int    `json:"item_0"`
	Item1       int    `json:"item_1"`
	Item2       int    `json:"item_2"`
	Item3       int    `json:"item_3"`
	Item4       int    `json:"item_4"`
	Item5       int    `json:"item_5"`
}

// IsRadiant reports whether the player was on Radiant.
func (p Player) IsRadiant() bool { return p.PlayerSlot < RadiantSlotLimit }

// SteamID returns the Steam32 account id as text, or "" for anonymous players.
func (p Player) SteamID() string {
	if p.AccountID == nil {
		return ""
	}
	return strconv.FormatInt(*p.AccountID, 10)
}

// Items returns the six inventory slots in order.
func (p Player) Items() [6]int {
	return [6]int{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5}
}

// Name returns the persona name or fallback when it is hidden.
func (p Player) Name(fallback string) string {
	if p.PersonaName == "" {
		return fallback
	}
	return p.PersonaName
}

// ChatEvent is one entry of a parsed match's chat log.
type ChatEvent struct {
	Time       int    `json:"time"`
	Type       string `json:"type"`
	Key        string `json:"key"`
	PlayerSlot *int   `json:"player_slot"`
}

// Objective is one entry of a parsed match's objectives list.
type Objective struct {
	Time int    `json:"time"`
	Type string `json:"type"`
	Team *int   `json:"team"`
	Key  any    `json:"key"`
}

// TeamName returns "Radiant" for team 2 and "Dire" otherwise.
func (o Objective) TeamName() string {
	if o.Team != nil && *o.Team == 2 {
		return "Radiant"
	}
	return "Dire"
}

// Hero is one entry of the /heroes catalog.
type Hero struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	LocalizedName string `json:"localized_name"`
}

// Item is one value of the /constants/items catalog.
type Item struct {
	ID    int    `json:"id"`
	DName string `json:"dname"`
}
