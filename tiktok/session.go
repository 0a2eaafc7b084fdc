package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/telemetry"
)

// Relay frame types.
const (
	FrameComment    = "comment"
	FrameControl    = "control"
	FrameLiveEnd    = "live_end"
	FrameDisconnect = "disconnect"
)

// Frame is one JSON text message from a LIVE event relay. Action carries the
// room control action (1 paused, 2 unpaused, 3 ended, 4 suspended).
type Frame struct {
	Type      string `json:"type"`
	User      string `json:"user,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Text      string `json:"text,omitempty"`
	Action    int    `json:"action,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix milliseconds
}

// Connector opens sessions on a TikTok LIVE event relay: a websocket that
// pushes the room's webcast events as Frames. URL may contain "{account}",
// otherwise the unique id is added as the uniqueId query parameter.
type Connector struct {
	URL      string
	UniqueID string
	// Timeout bounds the websocket handshake. Defaults to 15s.
	Timeout time.Duration
	Dialer  *websocket.Dialer
}

func (c *Connector) endpoint() (string, error) {
	id := strings.TrimPrefix(strings.TrimSpace(c.UniqueID), "@")
	if id == "" {
		return "", errors.New("tiktok: unique id empty")
	}
	if strings.Contains(c.URL, "{account}") {
		return strings.ReplaceAll(c.URL, "{account}", url.PathEscape(id)), nil
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("tiktok: relay url: %w", err)
	}
	q := u.Query()
	q.Set("uniqueId", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the relay. The session emits EventConnected first.
func (c *Connector) Connect(ctx context.Context) (platform.Session, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(dctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("tiktok: relay dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("tiktok: relay dial: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan platform.Event, 256),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.events <- platform.Event{Kind: platform.EventConnected, At: time.Now()}
	go s.read()
	slog.Info("tiktok: relay connected", slog.String("account", c.UniqueID))
	return s, nil
}

// Session is one relay connection.
type Session struct {
	conn   *websocket.Conn
	events chan platform.Event
	done   chan struct{}
	exited chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *Session) read() {
	defer close(s.exited)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = errors.New("connection closed")
			}
			s.emit(platform.Event{Kind: platform.EventDisconnected, Err: err, At: time.Now()})
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("tiktok: undecodable relay frame", slog.Any("err", err))
			continue
		}
		s.handle(f)
	}
}

func (s *Session) handle(f Frame) {
	at := time.Now()
	if f.Timestamp > 0 {
		at = time.UnixMilli(f.Timestamp)
	}
	switch f.Type {
	case FrameComment:
		user := f.Nickname
		if user == "" {
			user = f.User
		}
		telemetry.CountComment()
		// Comments are dropped rather than stalling the reader.
		select {
		case s.events <- platform.Event{Kind: platform.EventComment, User: user, Text: f.Text, At: at}:
		case <-s.done:
		default:
			slog.Debug("tiktok: event buffer full, dropping comment", slog.String("user", user))
		}
	case FrameControl:
		s.emit(platform.Event{Kind: platform.EventControl, Code: platform.ControlCode(f.Action), At: at})
	case FrameLiveEnd:
		s.emit(platform.Event{Kind: platform.EventStreamEnded, At: at})
	case FrameDisconnect:
		s.emit(platform.Event{Kind: platform.EventDisconnected, Err: errors.New("relay lost the room"), At: at})
	default:
		slog.Debug("tiktok: ignoring relay frame", slog.String("type", f.Type))
	}
}

func (s *Session) emit(ev platform.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Events delivers session signals. It is never closed.
func (s *Session) Events() <-chan platform.Event { return s.events }

// Close sends a close frame and waits for the reader. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := s.conn.Close()
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		slog.Warn("tiktok: relay reader did not exit after close")
	}
	return err
}
