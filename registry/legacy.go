package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// legacyUser is the record layout written by the first version of the bot.
type legacyUser struct {
	DiscordID        string `json:"discordId"`
	SteamID          string `json:"steamId"`
	AutoShow         *bool  `json:"autoShow"`
	LastCheckedMatch *int64 `json:"lastCheckedMatch"`
}

// ReadLegacyFile decodes a users.json written by the first version of the bot.
// Missing autoShow defaults to true.
func ReadLegacyFile(path string) ([]User, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rows []legacyUser
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode legacy users %s: %w", path, err)
	}
	out := make([]User, 0, len(rows))
	for i, row := range rows {
		if row.DiscordID == "" || row.SteamID == "" {
			return nil, fmt.Errorf("legacy user %d: missing discordId or steamId", i)
		}
		u := NewUser(row.DiscordID, row.SteamID)
		if row.AutoShow != nil {
			u.AutoNotify = *row.AutoShow
		}
		u.LastMatchID = row.LastCheckedMatch
		out = append(out, u)
	}
	return out, nil
}
