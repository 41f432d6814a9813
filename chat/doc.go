// Package chat is the Twitch chat adapter.
//
// It joins TWITCH_CHANNEL over IRC as TWITCH_BOT_USERNAME, feeds every
// message to the command router and posts tracker reports to the same
// channel. Twitch has no rich embeds, so reports are rendered with
// report.Report.Text, flattened onto one line and split at MaxMessageLen.
//
// Credentials: the IRC client requires a bot username and a user OAuth token
// with chat:read/chat:edit scopes. @login mentions and display names are
// resolved through Helix when TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET are
// set; without them mentions are left unresolved and user ids are shown as is.
package chat
