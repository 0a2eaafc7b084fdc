// Package config loads the environment (and an optional .env file) into a
// typed Config. CLI flags override fields after Load; Validate runs last.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/onnwee/livewatch/platform"
)

// Supported platforms.
const (
	PlatformTikTok  = "tiktok"
	PlatformTwitch  = "twitch"
	PlatformYouTube = "youtube"
)

type Config struct {
	Platform       string        `env:"LIVEWATCH_PLATFORM" default:"tiktok"`
	Account        string        `env:"LIVEWATCH_ACCOUNT" default:"hofzeitprojekt"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" default:"60s"`
	StreamEndCodes string        `env:"STREAM_END_CODES" default:"3 4"`
	// StatusTimeout bounds each HTTP request of a status query.
	StatusTimeout   time.Duration `env:"STATUS_TIMEOUT" default:"15s"`
	EndOnDisconnect bool          `env:"END_ON_DISCONNECT" default:"true"`
	ChatEnabled     bool          `env:"CHAT_ENABLED" default:"true"`
	// ChatLog prints comments to stdout as "[time] user | text".
	ChatLog            bool          `env:"CHAT_LOG" default:"false"`
	ChatConnectTimeout time.Duration `env:"CHAT_CONNECT_TIMEOUT" default:"15s"`

	// Streamer.bot
	StreamerBotEnabled bool          `env:"STREAMERBOT_ENABLED" default:"true"`
	StreamerBotURL     string        `env:"STREAMERBOT_URL" default:"http://localhost:7474"`
	StreamerBotAPIKey  string        `env:"STREAMERBOT_API_KEY"`
	LiveAction         string        `env:"LIVE_ACTION" default:"LiveStart"`
	OfflineAction      string        `env:"OFFLINE_ACTION" default:"LiveEnd"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" default:"15s"`

	// Twitch
	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchBotUsername  string `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken   string `env:"TWITCH_OAUTH_TOKEN"`

	// YouTube
	YTAPIKey string `env:"YT_API_KEY"`

	// TikTok LIVE event relay websocket; empty runs TikTok status-only.
	TikTokEventsURL string `env:"TIKTOK_EVENTS_URL"`

	// Endpoint overrides, mostly for tests and proxies.
	TikTokBaseURL  string `env:"TIKTOK_BASE_URL"`
	TwitchHelixURL string `env:"TWITCH_HELIX_URL"`
	TwitchTokenURL string `env:"TWITCH_TOKEN_URL"`
	YTEndpoint     string `env:"YT_API_ENDPOINT"`

	// Sinks
	DBDsn        string `env:"DB_DSN"`
	RedisURL     string `env:"REDIS_URL"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" default:"livewatch"`

	// HTTP
	HTTPAddr                string `env:"HTTP_ADDR"`
	HTTPAuthToken           string `env:"HTTP_AUTH_TOKEN"`
	CORSAllowedOrigins      string `env:"CORS_ALLOWED_ORIGINS"`
	EventsRateLimit         int    `env:"EVENTS_RATE_LIMIT" default:"10"`
	MaxWebSocketConnections int    `env:"MAX_WEBSOCKET_CONNECTIONS" default:"100"`

	// Status circuit breaker; 0 failures disables it.
	BreakerFailures uint32        `env:"STATUS_BREAKER_FAILURES" default:"5"`
	BreakerOpenFor  time.Duration `env:"STATUS_BREAKER_OPEN_FOR" default:"5m"`

	// Observability
	LogLevel         string  `env:"LOG_LEVEL" default:"info"`
	LogFormat        string  `env:"LOG_FORMAT" default:"text"`
	LogFile          string  `env:"LOG_FILE"`
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" default:"1.0"`
}

// Load reads .env (if present) and the environment, applying defaults.
// Call Validate after applying any overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return &cfg, nil
}

// EndCodes parses StreamEndCodes.
func (c *Config) EndCodes() ([]platform.ControlCode, error) {
	return platform.ParseControlCodes(c.StreamEndCodes)
}

// CORSOrigins splits CORSAllowedOrigins on commas.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ValidateSource checks only what a status query needs: the platform, its
// credentials and the account.
func (c *Config) ValidateSource() error {
	return errors.Join(c.sourceErrors()...)
}

func (c *Config) sourceErrors() []error {
	var errs []error
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	switch c.Platform {
	case PlatformTikTok:
	case PlatformTwitch:
		if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
			errs = append(errs, errors.New("twitch requires TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET"))
		}
	case PlatformYouTube:
		if c.YTAPIKey == "" {
			errs = append(errs, errors.New("youtube requires YT_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown platform %q (want tiktok, twitch or youtube)", c.Platform))
	}
	if strings.TrimSpace(strings.TrimPrefix(c.Account, "@")) == "" {
		errs = append(errs, errors.New("account is required"))
	}
	if c.StatusTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STATUS_TIMEOUT must be positive, got %s", c.StatusTimeout))
	}
	return errs
}

// Validate checks the settings needed for the selected platform and sinks.
func (c *Config) Validate() error {
	errs := c.sourceErrors()
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if _, err := c.EndCodes(); err != nil {
		errs = append(errs, fmt.Errorf("STREAM_END_CODES: %w", err))
	}
	if c.StreamerBotEnabled {
		if u, err := url.Parse(c.StreamerBotURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("STREAMERBOT_URL %q is not an absolute URL", c.StreamerBotURL))
		}
	}
	if c.TikTokEventsURL != "" {
		if u, err := url.Parse(c.TikTokEventsURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Errorf("TIKTOK_EVENTS_URL %q is not a ws:// or wss:// URL", c.TikTokEventsURL))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_ARG must be within [0,1], got %v", c.TraceSampleRatio))
	}
	return errors.Join(errs...)
}

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
}
