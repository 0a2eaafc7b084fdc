// Package tiktok checks whether a TikTok account is live using the public
// web room endpoint, and follows a live room's events through a LIVE event
// relay websocket.
package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the TikTok web origin.
	DefaultBaseURL = "https://www.tiktok.com"
	// DefaultUserAgent is sent because the endpoint rejects non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// roomStatusLive is the room/user status value TikTok uses for an ongoing live.
	roomStatusLive = 2
)

// Client queries live status for one unique id (the @handle without "@").
type Client struct {
	UniqueID   string
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// APIError is a non-zero statusCode in an otherwise valid response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tiktok api status %d: %s", e.StatusCode, e.Message)
}

type roomInfo struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       struct {
		User struct {
			UniqueID string `json:"uniqueId"`
			RoomID   string `json:"roomId"`
			Status   int    `json:"status"`
		} `json:"user"`
		LiveRoom *struct {
			Title  string `json:"title"`
			Status int    `json:"status"`
		} `json:"liveRoom"`
	} `json:"data"`
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) uniqueID() string {
	return strings.TrimPrefix(strings.TrimSpace(c.UniqueID), "@")
}

// roomInfo fetches the raw room info for the account.
func (c *Client) roomInfo(ctx context.Context) (*roomInfo, error) {
	id := c.uniqueID()
	if id == "" {
		return nil, fmt.Errorf("unique id empty")
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("sourceType", "54")
	q.Set("uniqueId", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api-live/user/room/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tiktok room info: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var info roomInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tiktok room info: %w", err)
	}
	if info.StatusCode != 0 {
		return nil, &APIError{StatusCode: info.StatusCode, Message: info.Message}
	}
	return &info, nil
}

// IsLive reports whether the account currently has a live room.
func (c *Client) IsLive(ctx context.Context) (bool, error) {
	info, err := c.roomInfo(ctx)
	if err != nil {
		return false, err
	}
	if info.Data.LiveRoom != nil {
		return info.Data.LiveRoom.Status == roomStatusLive, nil
	}
	return info.Data.User.Status == roomStatusLive, nil
}
