// Command livewatch watches one account on a streaming platform and triggers
// Streamer.bot actions when it goes live and when the live ends.
// It:
//   - Loads configuration from the environment (and .env), then applies CLI flags.
//   - Polls live status every interval and fires LIVE_ACTION on the Offline→Live
//     edge and OFFLINE_ACTION on the Live→Offline edge, once per edge.
//   - While live on Twitch, holds a chat session; a stream-end notice or a
//     dropped connection ends the live run before the next poll.
//   - Optionally journals transitions to Postgres, publishes them to Redis and
//     AMQP, and serves /healthz, /readyz, /status, /transitions, /events and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
