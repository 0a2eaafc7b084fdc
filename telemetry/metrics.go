// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal         *prometheus.CounterVec // result=live|offline|error
	TransitionsTotal   *prometheus.CounterVec // to, reason
	ConnectsTotal      *prometheus.CounterVec // result=ok|error
	DisconnectsTotal   *prometheus.CounterVec // reason
	NotificationsTotal *prometheus.CounterVec // notifier, result
	CommentsTotal      prometheus.Counter

	// Histograms (seconds)
	PollDuration   prometheus.Observer
	NotifyDuration *prometheus.HistogramVec

	// Gauges
	LiveGauge        prometheus.Gauge
	CircuitOpenGauge prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_polls_total", Help: "Status polls by result"}, []string{"result"})
		TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_transitions_total", Help: "Belief transitions"}, []string{"to", "reason"})
		ConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_session_connects_total", Help: "Session connect attempts by result"}, []string{"result"})
		DisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_session_disconnects_total", Help: "Session teardowns by reason"}, []string{"reason"})
		NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "livewatch_notifications_total", Help: "Notifier calls by result"}, []string{"notifier", "result"})
		CommentsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "livewatch_comments_total", Help: "Chat comments received from the open session"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livewatch_poll_duration_seconds", Help: "Status query duration seconds", Buckets: prometheus.DefBuckets})
		NotifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "livewatch_notify_duration_seconds", Help: "Notifier call duration seconds", Buckets: prometheus.DefBuckets}, []string{"notifier"})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livewatch_live", Help: "Current belief live=1 offline=0"})
		CircuitOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livewatch_status_circuit_open", Help: "Status check circuit breaker open=1 closed=0"})
	})
}

// UpdateCircuitGauge sets gauge to 1 if open else 0.
func UpdateCircuitGauge(open bool) {
	if CircuitOpenGauge != nil {
		CircuitOpenGauge.Set(boolFloat(open))
	}
}

// SetLive records the current belief.
func SetLive(live bool) {
	if LiveGauge != nil {
		LiveGauge.Set(boolFloat(live))
	}
}

// ObservePoll counts a poll and records its duration.
func ObservePoll(result string, d time.Duration) {
	if PollsTotal == nil {
		return
	}
	PollsTotal.WithLabelValues(result).Inc()
	PollDuration.Observe(d.Seconds())
}

// CountTransition counts a belief change.
func CountTransition(to, reason string) {
	if TransitionsTotal != nil {
		TransitionsTotal.WithLabelValues(to, reason).Inc()
	}
}

// CountConnect counts a session connect attempt.
func CountConnect(result string) {
	if ConnectsTotal != nil {
		ConnectsTotal.WithLabelValues(result).Inc()
	}
}

// CountDisconnect counts a session teardown.
func CountDisconnect(reason string) {
	if DisconnectsTotal != nil {
		DisconnectsTotal.WithLabelValues(reason).Inc()
	}
}

// CountComment counts a received chat comment.
func CountComment() {
	if CommentsTotal != nil {
		CommentsTotal.Inc()
	}
}

// ObserveNotify counts a notifier call and records its duration.
func ObserveNotify(notifier string, err error, d time.Duration) {
	if NotificationsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	NotificationsTotal.WithLabelValues(notifier, result).Inc()
	NotifyDuration.WithLabelValues(notifier).Observe(d.Seconds())
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
