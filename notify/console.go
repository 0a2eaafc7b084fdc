package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/onnwee/livewatch/platform"
)

// Marker lines written for a supervising process that parses stdout.
const (
	MarkerStarted      = "~STARTED"
	MarkerLive         = "~LIVE"
	MarkerLiveEnded    = "~LIVE_ENDED"
	MarkerDisconnected = "~DISCONNECTED"
)

// Console writes marker lines and chat comments to Out.
type Console struct {
	Out io.Writer
	// Chat prints comments as "[time] user | text".
	Chat bool

	mu sync.Mutex
}

func (c *Console) Name() string { return "console" }

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.Out, s)
}

// Started writes the startup marker.
func (c *Console) Started() { c.println(MarkerStarted) }

func (c *Console) Notify(_ context.Context, ev Event) error {
	switch ev.Kind {
	case KindLive:
		c.println(MarkerLive)
	case KindOffline:
		c.println(MarkerLiveEnded)
	}
	return nil
}

// OnEvent is a watchdog.EventFunc printing disconnects and, with Chat, comments.
func (c *Console) OnEvent(_ context.Context, ev platform.Event) {
	switch ev.Kind {
	case platform.EventDisconnected:
		c.println(MarkerDisconnected)
	case platform.EventComment:
		if c.Chat {
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			c.println(fmt.Sprintf("[%s] %s | %s", at.Format("2006-01-02 15:04:05"), ev.User, ev.Text))
		}
	}
}
