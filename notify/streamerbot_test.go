package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerBotDoAction(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		status   int
		wantAuth string
		wantErr  string
	}{
		{name: "no key", status: http.StatusOK},
		{name: "bearer key", apiKey: "s3cret", status: http.StatusOK, wantAuth: "Bearer s3cret"},
		{name: "server error", status: http.StatusInternalServerError, wantErr: "500"},
		{name: "unauthorized", apiKey: "wrong", status: http.StatusUnauthorized, wantAuth: "Bearer wrong", wantErr: "401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody []byte
			var gotAuth, gotType, gotPath, gotMethod string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod = r.Method
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				gotType = r.Header.Get("Content-Type")
				gotBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			sb := &StreamerBot{BaseURL: srv.URL + "/", APIKey: tt.apiKey}
			err := sb.Notify(context.Background(), Event{Kind: KindLive, Action: "LiveStart"})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, http.MethodPost, gotMethod)
			assert.Equal(t, "/DoAction", gotPath)
			assert.Equal(t, "application/json", gotType)
			assert.Equal(t, tt.wantAuth, gotAuth)
			assert.JSONEq(t, `{"action":{"name":"LiveStart"}}`, string(gotBody))
		})
	}
}

func TestStreamerBotSkipsEmptyAction(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	sb := &StreamerBot{BaseURL: srv.URL}
	require.NoError(t, sb.Notify(context.Background(), Event{Kind: KindOffline}))
	assert.False(t, called)
}

func TestStreamerBotUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sb := &StreamerBot{BaseURL: url}
	err := sb.DoAction(context.Background(), "LiveEnd")
	require.Error(t, err)
}

func TestStreamerBotEmptyBaseURL(t *testing.T) {
	err := (&StreamerBot{}).DoAction(context.Background(), "LiveEnd")
	require.Error(t, err)
}

func TestEventJSON(t *testing.T) {
	b, err := json.Marshal(Event{ID: "x", Kind: KindOffline, Platform: "twitch", Account: "a", Reason: "stream_ended"})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "offline", m["kind"])
	assert.NotContains(t, m, "action")
	assert.Equal(t, "twitch.offline", RoutingKey(Event{Platform: "twitch", Kind: KindOffline}))
}
