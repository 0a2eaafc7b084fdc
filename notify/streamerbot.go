package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StreamerBot triggers actions on a Streamer.bot HTTP server.
type StreamerBot struct {
	BaseURL    string // e.g. http://localhost:7474
	APIKey     string // optional bearer token
	HTTPClient *http.Client
}

type doActionRequest struct {
	Action actionRef `json:"action"`
}

type actionRef struct {
	Name string `json:"name"`
}

func (s *StreamerBot) Name() string { return "streamerbot" }

func (s *StreamerBot) http() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Notify runs the event's action. Events without an action are skipped.
func (s *StreamerBot) Notify(ctx context.Context, ev Event) error {
	if ev.Action == "" {
		slog.Debug("streamer.bot: no action configured", slog.String("kind", ev.Kind))
		return nil
	}
	return s.DoAction(ctx, ev.Action)
}

// DoAction POSTs {"action":{"name":name}} to <BaseURL>/DoAction.
func (s *StreamerBot) DoAction(ctx context.Context, name string) error {
	if s.BaseURL == "" {
		return fmt.Errorf("streamer.bot base url empty")
	}
	payload, err := json.Marshal(doActionRequest{Action: actionRef{Name: name}})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/DoAction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	resp, err := s.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("streamer.bot DoAction %q failed: %s: %s", name, resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
