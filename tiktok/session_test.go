package tiktok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/livewatch/platform"
)

// fakeRelay upgrades each request, writes frames and then waits for hold.
type fakeRelay struct {
	frames []Frame
	hold   chan struct{}
	query  chan string
}

func (f *fakeRelay) start(t *testing.T) string {
	t.Helper()
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case f.query <- r.URL.RawQuery:
		default:
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, fr := range f.frames {
			if err := conn.WriteJSON(fr); err != nil {
				return
			}
		}
		if f.hold != nil {
			<-f.hold
			return
		}
		// Keep reading until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, s platform.Session) platform.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return platform.Event{}
	}
}

func TestConnectorMapsFrames(t *testing.T) {
	relay := &fakeRelay{
		query: make(chan string, 1),
		frames: []Frame{
			{Type: FrameComment, User: "fan1", Nickname: "Fan One", Text: "hi", Timestamp: 1700000000000},
			{Type: "gift", User: "fan2"},
			{Type: FrameControl, Action: 3},
			{Type: FrameLiveEnd},
		},
	}
	c := &Connector{URL: relay.start(t) + "/events", UniqueID: "@hofzeitprojekt"}
	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "uniqueId=hofzeitprojekt", <-relay.query)
	assert.Equal(t, platform.EventConnected, next(t, s).Kind)

	comment := next(t, s)
	assert.Equal(t, platform.EventComment, comment.Kind)
	assert.Equal(t, "Fan One", comment.User)
	assert.Equal(t, "hi", comment.Text)
	assert.Equal(t, time.UnixMilli(1700000000000), comment.At)

	control := next(t, s)
	assert.Equal(t, platform.EventControl, control.Kind)
	assert.Equal(t, platform.ControlStreamEnded, control.Code)

	assert.Equal(t, platform.EventStreamEnded, next(t, s).Kind)
}

func TestConnectorAccountPlaceholder(t *testing.T) {
	relay := &fakeRelay{query: make(chan string, 1)}
	c := &Connector{URL: relay.start(t) + "/rooms/{account}?lang=en", UniqueID: "hofzeitprojekt"}
	endpoint, err := c.endpoint()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(endpoint, "/rooms/hofzeitprojekt?lang=en"), endpoint)

	s, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, "lang=en", <-relay.query)
}

func TestConnectorDisconnects(t *testing.T) {
	t.Run("relay frame", func(t *testing.T) {
		relay := &fakeRelay{frames: []Frame{{Type: FrameDisconnect}}}
		s, err := (&Connector{URL: relay.start(t), UniqueID: "a"}).Connect(context.Background())
		require.NoError(t, err)
		defer s.Close()
		next(t, s)
		ev := next(t, s)
		assert.Equal(t, platform.EventDisconnected, ev.Kind)
		assert.Error(t, ev.Err)
	})
	t.Run("connection dropped", func(t *testing.T) {
		hold := make(chan struct{})
		relay := &fakeRelay{hold: hold}
		s, err := (&Connector{URL: relay.start(t), UniqueID: "a"}).Connect(context.Background())
		require.NoError(t, err)
		defer s.Close()
		next(t, s)
		close(hold)
		assert.Equal(t, platform.EventDisconnected, next(t, s).Kind)
	})
}

func TestConnectorErrors(t *testing.T) {
	_, err := (&Connector{URL: "ws://127.0.0.1:1/", UniqueID: ""}).Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique id empty")

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = (&Connector{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), UniqueID: "a"}).Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSessionCloseIsIdempotentAndSilent(t *testing.T) {
	relay := &fakeRelay{}
	s, err := (&Connector{URL: relay.start(t), UniqueID: "a"}).Connect(context.Background())
	require.NoError(t, err)
	next(t, s)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	select {
	case ev := <-s.Events():
		t.Fatalf("event after Close: %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}
