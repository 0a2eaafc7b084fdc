// Package youtubeapi checks whether a YouTube channel is broadcasting live
// through the YouTube Data API v3 with an API key.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Checker implements platform.StatusChecker for one channel.
// Account is either a channel id ("UC...") or a handle ("@name").
type Checker struct {
	svc     *yt.Service
	account string

	mu        sync.Mutex
	channelID string
}

// New builds a Checker. Extra options are appended after the API key (tests
// pass option.WithEndpoint).
func New(ctx context.Context, apiKey, account string, opts ...option.ClientOption) (*Checker, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key empty")
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, errors.New("youtube account empty")
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	c := &Checker{svc: svc, account: account}
	if isChannelID(account) {
		c.channelID = account
	}
	return c, nil
}

// HTTPClient returns a client that adds apiKey to every request and gives
// up after timeout. Pass it with option.WithHTTPClient.
func HTTPClient(apiKey string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &transport.APIKey{Key: apiKey},
	}
}

func isChannelID(s string) bool {
	return strings.HasPrefix(s, "UC") && len(s) == 24
}

// ChannelID returns the resolved channel id, resolving a handle on first use.
func (c *Checker) ChannelID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID != "" {
		return c.channelID, nil
	}
	handle := c.account
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	resp, err := c.svc.Channels.List([]string{"id"}).ForHandle(handle).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel not found for handle %s", handle)
	}
	c.channelID = resp.Items[0].Id
	return c.channelID, nil
}

// IsLive reports whether the channel has an ongoing live broadcast.
func (c *Checker) IsLive(ctx context.Context) (bool, error) {
	id, err := c.ChannelID(ctx)
	if err != nil {
		return false, err
	}
	resp, err := c.svc.Search.List([]string{"id"}).
		ChannelId(id).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("youtube search: %w", err)
	}
	return len(resp.Items) > 0, nil
}
