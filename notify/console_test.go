package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/onnwee/livewatch/platform"
)

func TestConsoleMarkers(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{Out: &buf}
	ctx := context.Background()

	c.Started()
	_ = c.Notify(ctx, Event{Kind: KindLive})
	c.OnEvent(ctx, platform.Event{Kind: platform.EventDisconnected, Err: errors.New("EOF")})
	_ = c.Notify(ctx, Event{Kind: KindOffline})
	c.OnEvent(ctx, platform.Event{Kind: platform.EventComment, User: "u", Text: "hidden"})

	assert.Equal(t, "~STARTED\n~LIVE\n~DISCONNECTED\n~LIVE_ENDED\n", buf.String())
}

func TestConsoleChat(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{Out: &buf, Chat: true}
	at := time.Date(2025, 3, 1, 18, 4, 5, 0, time.UTC)
	c.OnEvent(context.Background(), platform.Event{Kind: platform.EventComment, User: "viewer1", Text: "hello there", At: at})
	assert.Equal(t, "[2025-03-01 18:04:05] viewer1 | hello there\n", buf.String())
}
