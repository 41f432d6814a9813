package commands

import "regexp"

var (
	steamIDPattern   = regexp.MustCompile(`^[0-9]{8,10}$`)
	discordIDPattern = regexp.MustCompile(`^[0-9]{17,19}$`)
	twitchIDPattern  = regexp.MustCompile(`^[0-9]{1,20}$`)
	digitsPattern    = regexp.MustCompile(`[0-9]+`)
)

// IsValidSteamID reports whether id looks like a Steam32 account id (8-10 digits).
func IsValidSteamID(id string) bool { return steamIDPattern.MatchString(id) }

// IsValidDiscordID reports whether id is a Discord snowflake.
func IsValidDiscordID(id string) bool { return discordIDPattern.MatchString(id) }

// IsValidTwitchID reports whether id is a numeric Twitch user id.
func IsValidTwitchID(id string) bool { return twitchIDPattern.MatchString(id) }

// extractUserID pulls the first run of digits out of a mention like <@123>.
func extractUserID(mention string) string {
	return digitsPattern.FindString(mention)
}
