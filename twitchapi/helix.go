// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and stream status, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned by GetUserID when the login does not exist.
var ErrUserNotFound = errors.New("twitch user not found")

// HelixClient provides minimal methods needed for live detection.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	// BaseURL overrides DefaultBaseURL (tests).
	BaseURL    string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) endpoint(path string) string {
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + path
}

// get performs an authenticated GET and decodes the JSON body into out.
// A 401 drops the cached app token and retries once.
func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := hc.AppTokenSource.Get(ctx)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.endpoint(path), nil)
		if err != nil {
			return err
		}
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := hc.http().Do(req)
		if err != nil {
			return err
		}
		err = decodeHelix(resp, out)
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			hc.AppTokenSource.Invalidate()
			continue
		}
		return err
	}
}

func decodeHelix(resp *http.Response, out any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helix %s: %s: %s", resp.Request.URL.Path, resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", url.Values{"login": {login}}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return body.Data[0].ID, nil
}

// Stream is one entry of GET /streams.
type Stream struct {
	ID          string `json:"id"`
	UserLogin   string `json:"user_login"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	ViewerCount int    `json:"viewer_count"`
	StartedAt   string `json:"started_at"`
}

// GetStreams lists the active streams for a login. Empty means offline.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "/streams", url.Values{"user_login": {login}}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// IsLive reports whether login has a live stream. An empty type counts as live.
func (hc *HelixClient) IsLive(ctx context.Context, login string) (bool, error) {
	streams, err := hc.GetStreams(ctx, login)
	if err != nil {
		return false, err
	}
	if len(streams) == 0 {
		return false, nil
	}
	t := streams[0].Type
	return t == "live" || t == "", nil
}

// StatusChecker binds a login to a client.
type StatusChecker struct {
	Client *HelixClient
	Login  string
}

// UserID resolves Login once; a misspelled login fails with ErrUserNotFound.
func (c StatusChecker) UserID(ctx context.Context) (string, error) {
	return c.Client.GetUserID(ctx, c.Login)
}

func (c StatusChecker) IsLive(ctx context.Context) (bool, error) {
	return c.Client.IsLive(ctx, c.Login)
}
