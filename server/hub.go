package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/livewatch/notify"
	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/watchdog"
)

// Message types pushed to /events clients.
const (
	MsgSnapshot   = "snapshot"
	MsgTransition = "transition"
	MsgComment    = "comment"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrTooManyConnections is returned by addClient when the hub is full.
var ErrTooManyConnections = errors.New("too many websocket connections")

// Message is the envelope written to websocket clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// CommentPayload is the payload of a comment message.
type CommentPayload struct {
	User string    `json:"user"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, 64)}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub broadcasts transitions and chat comments to websocket clients.
// It implements notify.Notifier; OnEvent is a watchdog.EventFunc.
type Hub struct {
	// Status, when set, is sent to every new client as a snapshot message.
	Status StatusSource

	mu       sync.RWMutex
	clients  map[*client]struct{}
	max      int
	upgrader websocket.Upgrader
}

// NewHub creates a hub accepting at most maxConns clients (0 means unlimited).
// checkOrigin may be nil to accept same-origin requests only.
func NewHub(maxConns int, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		max:      maxConns,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// addClient registers conn and sends it the current snapshot.
func (h *Hub) addClient(conn *websocket.Conn) (*client, error) {
	var snapshot []byte
	if h.Status != nil {
		snapshot, _ = json.Marshal(Message{Type: MsgSnapshot, Payload: h.Status.Snapshot()})
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.max > 0 && len(h.clients) >= h.max {
		return nil, ErrTooManyConnections
	}
	c := newClient(conn)
	if snapshot != nil {
		c.send <- snapshot
	}
	h.clients[c] = struct{}{}
	return c, nil
}

// removeClient unregisters c and stops its writer.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// dropLocked closes c.send at most once. h.mu must be held for writing;
// every send on c.send happens under the same lock.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("hub: marshal", slog.Any("err", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("hub: client too slow, disconnecting", slog.String("remote", c.conn.RemoteAddr().String()))
			h.dropLocked(c)
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

// Notify broadcasts a transition message.
func (h *Hub) Notify(_ context.Context, ev notify.Event) error {
	h.broadcast(Message{Type: MsgTransition, Payload: ev})
	return nil
}

// OnEvent broadcasts chat comments; other session events are not forwarded.
func (h *Hub) OnEvent(_ context.Context, ev platform.Event) {
	if ev.Kind != platform.EventComment {
		return
	}
	h.broadcast(Message{Type: MsgComment, Payload: CommentPayload{User: ev.User, Text: ev.Text, At: ev.At}})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and keeps reading until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws upgrade error", slog.Any("err", err))
		return
	}
	c, err := h.addClient(conn)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	slog.Debug("ws client connected", slog.String("remote", r.RemoteAddr))

	go func() {
		defer func() {
			h.removeClient(c)
			slog.Debug("ws client disconnected", slog.String("remote", r.RemoteAddr))
		}()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// StatusSource exposes the watchdog snapshot.
type StatusSource interface {
	Snapshot() watchdog.Snapshot
}
