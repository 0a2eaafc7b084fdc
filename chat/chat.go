package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/telemetry"
)

// NoticeChannelSuspended is the NOTICE msg-id Twitch sends for a suspended channel.
const NoticeChannelSuspended = "msg_channel_suspended"

// ircClient is the subset of *twitch.Client the connector drives.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnNoticeMessage(func(twitch.NoticeMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Connector opens IRC sessions for one channel.
type Connector struct {
	Channel    string
	Username   string
	OAuthToken string
	// Timeout bounds the login handshake. Defaults to 15s.
	Timeout time.Duration

	newClient func() ircClient
}

func (c *Connector) client() ircClient {
	if c.newClient != nil {
		return c.newClient()
	}
	if c.Username == "" || c.OAuthToken == "" {
		return twitch.NewAnonymousClient()
	}
	tok := c.OAuthToken
	if !strings.HasPrefix(tok, "oauth:") {
		tok = "oauth:" + tok
	}
	return twitch.NewClient(c.Username, tok)
}

type sessionState int

const (
	statePending sessionState = iota
	stateOpen
	stateClosed
)

// Session is one IRC connection.
type Session struct {
	client ircClient
	events chan platform.Event
	done   chan struct{}
	exited chan struct{}

	mu      sync.Mutex
	state   sessionState
	exitErr error
	hasExit bool
}

// Connect logs in and joins the channel. It returns once the server accepted the
// login, the client failed, the timeout passed or ctx was cancelled.
func (c *Connector) Connect(ctx context.Context) (platform.Session, error) {
	if c.Channel == "" {
		return nil, errors.New("chat: channel empty")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &Session{
		client: c.client(),
		events: make(chan platform.Event, 256),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	connected := make(chan struct{})
	var once sync.Once
	s.client.OnConnect(func() {
		once.Do(func() { close(connected) })
		s.onConnect()
	})
	s.client.OnPrivateMessage(s.onPrivateMessage)
	s.client.OnNoticeMessage(s.onNotice)
	s.client.Join(strings.ToLower(strings.TrimPrefix(c.Channel, "#")))

	go s.run()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-connected:
	case <-s.exited:
		return nil, fmt.Errorf("chat: connect: %w", s.exitError())
	case <-timer.C:
		s.abort()
		return nil, fmt.Errorf("chat: no login confirmation after %s", timeout)
	case <-ctx.Done():
		s.abort()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	if s.hasExit {
		err := s.exitErr
		s.mu.Unlock()
		return nil, fmt.Errorf("chat: connection lost during login: %w", err)
	}
	s.state = stateOpen
	s.mu.Unlock()

	slog.Info("chat: connected", slog.String("channel", c.Channel), slog.Bool("anonymous", c.Username == "" || c.OAuthToken == ""))
	s.emit(platform.Event{Kind: platform.EventConnected, At: time.Now()})
	return s, nil
}

func (s *Session) run() {
	defer close(s.exited)
	err := s.client.Connect()
	s.mu.Lock()
	s.hasExit = true
	s.exitErr = err
	open := s.state == stateOpen
	s.mu.Unlock()
	if open {
		if err == nil || errors.Is(err, twitch.ErrClientDisconnected) {
			err = errors.New("connection closed")
		}
		s.emit(platform.Event{Kind: platform.EventDisconnected, Err: err, At: time.Now()})
	}
}

func (s *Session) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitErr == nil {
		return errors.New("client exited")
	}
	return s.exitErr
}

// abort tears down a session that never opened.
func (s *Session) abort() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
	close(s.done)
	_ = s.client.Disconnect()
}

// onConnect disconnects a client whose login completed after Connect gave up.
// Disconnect is a no-op before login, so abort alone cannot stop it.
func (s *Session) onConnect() {
	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if closed {
		slog.Debug("chat: login confirmed after connect was abandoned, disconnecting")
		_ = s.client.Disconnect()
	}
}

func (s *Session) emit(ev platform.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) onPrivateMessage(msg twitch.PrivateMessage) {
	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	user := msg.User.DisplayName
	if user == "" {
		user = msg.User.Name
	}
	telemetry.CountComment()
	ev := platform.Event{Kind: platform.EventComment, User: user, Text: msg.Message, At: at}
	// Comments are dropped rather than stalling the IRC reader.
	select {
	case s.events <- ev:
	case <-s.done:
	default:
		slog.Debug("chat: event buffer full, dropping comment", slog.String("user", user))
	}
}

func (s *Session) onNotice(msg twitch.NoticeMessage) {
	slog.Debug("chat: notice", slog.String("msg_id", msg.MsgID), slog.String("message", msg.Message))
	if msg.MsgID == NoticeChannelSuspended {
		s.emit(platform.Event{Kind: platform.EventControl, Code: platform.ControlStreamSuspended, Text: msg.Message, At: time.Now()})
	}
}

// Events delivers session signals. It is never closed.
func (s *Session) Events() <-chan platform.Event { return s.events }

// Close disconnects and waits for the client goroutine. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	s.mu.Unlock()
	close(s.done)

	err := s.client.Disconnect()
	if errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		err = nil
	}
	select {
	case <-s.exited:
	case <-time.After(5 * time.Second):
		slog.Warn("chat: client did not exit after disconnect")
	}
	return err
}
