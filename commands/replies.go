package commands

import "strings"

// Replies. Format verbs that take the prefix are noted by a trailing %s.
const (
	Caow                  = "Thrower hai!!"
	ProvideSteamID        = "Please provide your Steam ID. Usage: %sregister <steam_id>"
	InvalidSteamID        = "Invalid Steam ID. Please provide a valid 32-bit Steam ID."
	InvalidUserID         = "Invalid user ID. Please provide a valid user ID."
	AlreadyRegistered     = "Steam ID %s is already registered to user %s."
	UserAlreadyRegistered = "You are already registered with Steam ID %s. Use %sunregister first to change it."
	RegisterSuccess       = "Successfully registered Steam ID: %s. Auto-show is enabled by default. Use %stoggleauto to disable."
	NotRegistered         = "You are not registered."
	UnregisterSuccess     = "Successfully unregistered Steam ID: %s"
	NeedRegistration      = "You need to register first. Use %sregister <steam_id> to register."
	AutoToggled           = "Auto-show for your recent matches has been %s."
	SaveFailed            = "Could not save your change. Please try again later."
	RecentStatsFailed     = "An error occurred while fetching the recent match stats. Please try again later."
	ProvidePrompt         = "Please provide a prompt. Usage: %sgpat <your prompt here>"
	HistoryCleared        = "Your AI conversation history has been cleared."
	ProvideMatchID        = "Please provide a match ID. Usage: %sstory <match_id>"
	InvalidMatchID        = "Invalid match ID. Please provide a valid number."
	MatchUnavailable      = "Unable to fetch match data. The match might not be parsed yet."
	StoryFailed           = "An error occurred while generating the match story. Please try again later."
	AIDisabled            = "AI features are not configured on this bot."
	AIStatusFailure       = "An error occurred while getting the AI-generated text. Status: %d. Please try again later."
	AIUnexpected          = "Received an unexpected response from the AI service. Please try again later."
	AIUnreachable         = "No response received from the AI service. Please try again later."
)

func helpText(prefix string) string {
	lines := []string{
		"Available commands:",
		"+register <steam_id> [@user] - Register your (or a mentioned user's) Steam ID",
		"+unregister - Remove your registration",
		"+rs [@user] - Show your or mentioned user's most recent match stats",
		"+toggleauto - Toggle auto-showing of your recent matches",
		"+gpat <prompt> - Ask the AI assistant",
		"+gpatclear - Clear your AI conversation history",
		"+story <match_id> - Tell the story of a parsed match",
		"+help - Show this help message",
	}
	return strings.ReplaceAll(strings.Join(lines, "\n"), "+", prefix)
}
