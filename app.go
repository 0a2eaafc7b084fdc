package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"google.golang.org/api/option"

	"github.com/onnwee/livewatch/chat"
	"github.com/onnwee/livewatch/config"
	"github.com/onnwee/livewatch/db"
	"github.com/onnwee/livewatch/notify"
	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/server"
	"github.com/onnwee/livewatch/telemetry"
	"github.com/onnwee/livewatch/tiktok"
	"github.com/onnwee/livewatch/twitchapi"
	"github.com/onnwee/livewatch/watchdog"
	"github.com/onnwee/livewatch/youtubeapi"
)

// buildChecker returns the status checker for cfg.Platform and, where the
// platform has one, the session connector.
func buildChecker(ctx context.Context, cfg *config.Config) (platform.StatusChecker, platform.Connector, error) {
	httpClient := &http.Client{Timeout: cfg.StatusTimeout}
	switch cfg.Platform {
	case config.PlatformTikTok:
		checker := &tiktok.Client{UniqueID: cfg.Account, BaseURL: cfg.TikTokBaseURL, HTTPClient: httpClient}
		if cfg.TikTokEventsURL == "" || !cfg.ChatEnabled {
			return checker, nil, nil
		}
		return checker, &tiktok.Connector{
			URL:      cfg.TikTokEventsURL,
			UniqueID: cfg.Account,
			Timeout:  cfg.ChatConnectTimeout,
		}, nil
	case config.PlatformTwitch:
		login := strings.ToLower(cfg.Account)
		hc := &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{
				ClientID:     cfg.TwitchClientID,
				ClientSecret: cfg.TwitchClientSecret,
				TokenURL:     cfg.TwitchTokenURL,
				HTTPClient:   httpClient,
			},
			ClientID:   cfg.TwitchClientID,
			BaseURL:    cfg.TwitchHelixURL,
			HTTPClient: httpClient,
		}
		checker := twitchapi.StatusChecker{Client: hc, Login: login}
		if !cfg.ChatEnabled {
			return checker, nil, nil
		}
		return checker, &chat.Connector{
			Channel:    login,
			Username:   cfg.TwitchBotUsername,
			OAuthToken: cfg.TwitchOAuthToken,
			Timeout:    cfg.ChatConnectTimeout,
		}, nil
	case config.PlatformYouTube:
		// option.WithHTTPClient bypasses option.WithAPIKey, so the key rides on the transport.
		opts := []option.ClientOption{option.WithHTTPClient(youtubeapi.HTTPClient(cfg.YTAPIKey, cfg.StatusTimeout))}
		if cfg.YTEndpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.YTEndpoint))
		}
		c, err := youtubeapi.New(ctx, cfg.YTAPIKey, cfg.Account, opts...)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}
}

// resolveAccount looks up the Twitch user id once at startup. An unknown
// login is fatal; any other error only means the lookup is retried by polling.
func resolveAccount(ctx context.Context, checker platform.StatusChecker) error {
	tc, ok := checker.(twitchapi.StatusChecker)
	if !ok {
		return nil
	}
	id, err := tc.UserID(ctx)
	switch {
	case errors.Is(err, twitchapi.ErrUserNotFound):
		return err
	case err != nil:
		slog.Warn("could not resolve twitch user id", slog.String("login", tc.Login), slog.Any("err", err))
	default:
		slog.Info("resolved twitch user", slog.String("login", tc.Login), slog.String("user_id", id))
	}
	return nil
}

// sinks are the notifiers and event observers built from cfg, plus what has
// to be released on shutdown.
type sinks struct {
	console   *notify.Console
	hub       *server.Hub
	journal   *db.Journal
	database  *sql.DB
	notifiers []notify.Notifier
	onEvent   []watchdog.EventFunc
	closers   []func()
}

func (s *sinks) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildSinks connects every configured sink. A sink that fails to connect
// aborts startup.
func buildSinks(ctx context.Context, cfg *config.Config, stdout io.Writer) (*sinks, error) {
	s := &sinks{console: &notify.Console{Out: stdout, Chat: cfg.ChatLog}}
	if cfg.StreamerBotEnabled {
		s.notifiers = append(s.notifiers, &notify.StreamerBot{BaseURL: cfg.StreamerBotURL, APIKey: cfg.StreamerBotAPIKey})
	} else {
		slog.Info("streamer.bot webhook disabled")
	}
	s.notifiers = append(s.notifiers, s.console)
	s.onEvent = append(s.onEvent, s.console.OnEvent)

	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		})
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			s.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.database = database
		s.journal = &db.Journal{DB: database, Platform: cfg.Platform, Account: cfg.Account}
		s.notifiers = append(s.notifiers, s.journal)
		s.onEvent = append(s.onEvent, s.journal.RecordComment)
	}

	if cfg.RedisURL != "" {
		r, err := notify.NewRedis(cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = r.Close() })
		if err := r.Ping(ctx); err != nil {
			s.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		s.notifiers = append(s.notifiers, r)
	}

	if cfg.AMQPURL != "" {
		a, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = a.Close() })
		s.notifiers = append(s.notifiers, a)
	}

	if cfg.HTTPAddr != "" {
		s.hub = server.NewHub(cfg.MaxWebSocketConnections, server.OriginChecker(cfg.CORSOrigins()))
		s.closers = append(s.closers, s.hub.Close)
		s.notifiers = append(s.notifiers, s.hub)
		s.onEvent = append(s.onEvent, s.hub.OnEvent)
	}
	return s, nil
}

// runWatch wires the watchdog to its checker and sinks and runs it until ctx
// is cancelled or SIGINT/SIGTERM arrives.
func runWatch(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    "livewatch",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing initialization failed: %w", err)
	}
	defer shutdownTracing()

	checker, connector, err := buildChecker(ctx, cfg)
	if err != nil {
		return err
	}
	if err := resolveAccount(ctx, checker); err != nil {
		return err
	}
	checker = platform.NewBreakerChecker(cfg.Platform, checker, platform.BreakerSettings{
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenFor:             cfg.BreakerOpenFor,
		OnStateChange:       telemetry.UpdateCircuitGauge,
	})

	codes, err := cfg.EndCodes()
	if err != nil {
		return err
	}

	s, err := buildSinks(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer s.close()

	d := &notify.Dispatcher{
		LiveAction:    cfg.LiveAction,
		OfflineAction: cfg.OfflineAction,
		Notifiers:     s.notifiers,
		Timeout:       cfg.NotifyTimeout,
	}
	w := watchdog.New(watchdog.Config{
		Platform:         cfg.Platform,
		Account:          cfg.Account,
		Interval:         cfg.PollInterval,
		Checker:          checker,
		Connector:        connector,
		OnLive:           []watchdog.TransitionFunc{d.OnLive},
		OnOffline:        []watchdog.TransitionFunc{d.OnOffline},
		OnEvent:          s.onEvent,
		IsStreamEnd:      platform.EndCodes(codes...),
		IgnoreDisconnect: !cfg.EndOnDisconnect,
	})

	var wg sync.WaitGroup
	if cfg.HTTPAddr != "" {
		s.hub.Status = w
		opts := server.Options{
			Status:          w,
			Hub:             s.hub,
			AuthToken:       cfg.HTTPAuthToken,
			CORSOrigins:     cfg.CORSOrigins(),
			EventsPerMinute: cfg.EventsRateLimit,
		}
		if s.journal != nil {
			opts.Journal = s.journal
			opts.DB = s.database
		}
		if b, ok := checker.(*platform.BreakerChecker); ok {
			opts.Breaker = b
		}
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer wg.Wait()
		defer cancelSrv()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(srvCtx, cfg.HTTPAddr, server.NewMux(srvCtx, opts)); err != nil {
				slog.Error("http server stopped", slog.Any("err", err))
			}
		}()
	}

	slog.Info("livewatch starting",
		slog.String("version", version),
		slog.String("platform", cfg.Platform),
		slog.String("account", cfg.Account),
		slog.Duration("interval", cfg.PollInterval),
		slog.Bool("webhook", cfg.StreamerBotEnabled),
		slog.Int("notifiers", len(s.notifiers)))
	s.console.Started()
	return w.Run(ctx)
}
