// Package chat connects to Twitch IRC for the watched channel while it is live.
//
// Connector implements platform.Connector. Each Connect opens a go-twitch-irc
// client, joins the channel and waits for the server to accept the login.
// The returned Session pushes:
//   - EventConnected once the login succeeded,
//   - EventComment for every PRIVMSG,
//   - EventControl{ControlStreamSuspended} for a msg_channel_suspended NOTICE,
//   - EventDisconnected when the connection drops on its own.
//
// Credentials: without TWITCH_BOT_USERNAME/TWITCH_OAUTH_TOKEN the client logs
// in anonymously, which is enough to read chat.
package chat
