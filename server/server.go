// Package server exposes the optional HTTP surface: health, readiness, the
// watchdog snapshot, Prometheus metrics, the transition journal and a
// websocket feed of transitions and chat comments. Every request gets a
// correlation ID and a tracing span.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livewatch/db"
	"github.com/onnwee/livewatch/telemetry"
)

// TransitionLister lists recent journal rows.
type TransitionLister interface {
	Recent(ctx context.Context, limit int) ([]db.TransitionRow, error)
}

// Pinger reports storage reachability for readiness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BreakerState reports the status circuit state ("closed", "half-open", "open").
type BreakerState interface {
	State() string
}

// Options wires the server to the running watchdog.
type Options struct {
	Status  StatusSource
	Hub     *Hub
	Journal TransitionLister // nil when no database is configured
	DB      Pinger
	Breaker BreakerState
	// AuthToken protects /status, /transitions and /events when set.
	AuthToken string
	// CORSOrigins restricts CORS; empty allows all origins.
	CORSOrigins []string
	// EventsPerMinute limits websocket handshakes per client IP; 0 disables.
	EventsPerMinute int
}

// NewMux returns the HTTP handler with all routes.
// ctx bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, opts Options) http.Handler {
	h := &Handlers{status: opts.Status, journal: opts.Journal, db: opts.DB, breaker: opts.Breaker}
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       opts.EventsPerMinute > 0,
		requestsPerIP: opts.EventsPerMinute,
		window:        time.Minute,
	})
	protect := func(next http.Handler) http.Handler { return tokenAuth(next, opts.AuthToken) }

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)
	mux.Handle("GET /status", protect(http.HandlerFunc(h.HandleStatus)))
	mux.Handle("GET /transitions", protect(http.HandlerFunc(h.HandleTransitions)))
	if opts.Hub != nil {
		mux.Handle("GET /events", protect(rateLimitMiddleware(opts.Hub, limiter)))
	}

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
	})
	return withCORSConfig(handler, newCORSConfig(opts.CORSOrigins))
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack implements http.Hijacker for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
