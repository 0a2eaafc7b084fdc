package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := PollsTotal
	Init()
	if PollsTotal != first {
		t.Fatal("Init re-registered metrics")
	}
}

func TestObservePollCountsByResult(t *testing.T) {
	Init()
	before := testutil.ToFloat64(PollsTotal.WithLabelValues("error"))
	ObservePoll("error", 20*time.Millisecond)
	if got := testutil.ToFloat64(PollsTotal.WithLabelValues("error")); got != before+1 {
		t.Errorf("polls error = %v, want %v", got, before+1)
	}
}

func TestObservePollRecordsDuration(t *testing.T) {
	Init()
	h, ok := PollDuration.(prometheus.Histogram)
	if !ok {
		t.Fatalf("PollDuration is %T, want a histogram", PollDuration)
	}
	sample := func() (uint64, float64) {
		m := &dto.Metric{}
		if err := h.Write(m); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
	}
	countBefore, sumBefore := sample()
	ObservePoll("live", 250*time.Millisecond)
	count, sum := sample()
	if count != countBefore+1 {
		t.Errorf("sample count = %d, want %d", count, countBefore+1)
	}
	if d := sum - sumBefore; d < 0.249 || d > 0.251 {
		t.Errorf("sample sum grew by %v, want 0.25", d)
	}
}

func TestObserveNotifyResult(t *testing.T) {
	Init()
	okBefore := testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics_test", "ok"))
	errBefore := testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics_test", "error"))
	ObserveNotify("metrics_test", nil, time.Millisecond)
	ObserveNotify("metrics_test", errors.New("boom"), time.Millisecond)
	if got := testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics_test", "ok")); got != okBefore+1 {
		t.Errorf("ok = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(NotificationsTotal.WithLabelValues("metrics_test", "error")); got != errBefore+1 {
		t.Errorf("error = %v, want %v", got, errBefore+1)
	}
}

func TestGauges(t *testing.T) {
	Init()
	SetLive(true)
	if got := testutil.ToFloat64(LiveGauge); got != 1 {
		t.Errorf("live gauge = %v, want 1", got)
	}
	SetLive(false)
	if got := testutil.ToFloat64(LiveGauge); got != 0 {
		t.Errorf("live gauge = %v, want 0", got)
	}
	UpdateCircuitGauge(true)
	if got := testutil.ToFloat64(CircuitOpenGauge); got != 1 {
		t.Errorf("circuit gauge = %v, want 1", got)
	}
	UpdateCircuitGauge(false)
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("expected empty correlation")
	}
	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("GetCorrelation = %q, want abc", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("nil logger")
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "livewatch"})
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
	_, span := StartSpan(WithCorrelation(context.Background(), "x"), "test", "span")
	RecordError(span, errors.New("boom"))
	SetSpanHTTPStatus(span, 503)
	span.End()
}
