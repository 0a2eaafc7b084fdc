package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/livewatch/db"
	"github.com/onnwee/livewatch/watchdog"
)

type fakeStatus struct{ snap watchdog.Snapshot }

func (f *fakeStatus) Snapshot() watchdog.Snapshot { return f.snap }

type fakeBreaker string

func (f fakeBreaker) State() string { return string(f) }

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeJournal struct {
	rows  []db.TransitionRow
	err   error
	limit int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]db.TransitionRow, error) {
	f.limit = limit
	return f.rows, f.err
}

func serve(t *testing.T, opts Options, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	mux := NewMux(context.Background(), opts)
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestHealthzOK(t *testing.T) {
	rr := serve(t, Options{}, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing generated X-Correlation-ID")
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	rr := serve(t, Options{}, http.MethodGet, "/healthz", map[string]string{"X-Correlation-ID": "abc-123"})
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestReadyz(t *testing.T) {
	polled := &fakeStatus{snap: watchdog.Snapshot{Polls: 1}}
	tests := []struct {
		name       string
		opts       Options
		wantStatus int
		wantFailed string
	}{
		{name: "before first poll", opts: Options{Status: &fakeStatus{}}, wantStatus: 503, wantFailed: "first_poll"},
		{name: "ready", opts: Options{Status: polled, Breaker: fakeBreaker("closed"), DB: fakePinger{}}, wantStatus: 200},
		{name: "circuit open", opts: Options{Status: polled, Breaker: fakeBreaker("open")}, wantStatus: 503, wantFailed: "circuit_breaker"},
		{name: "half-open is ready", opts: Options{Status: polled, Breaker: fakeBreaker("half-open")}, wantStatus: 200},
		{name: "database down", opts: Options{Status: polled, DB: fakePinger{err: errors.New("conn refused")}}, wantStatus: 503, wantFailed: "database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, tt.opts, http.MethodGet, "/readyz", nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("readyz = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["failed_check"] != tt.wantFailed {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.wantFailed)
			}
		})
	}
}

func TestStatusReturnsSnapshot(t *testing.T) {
	at := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	st := &fakeStatus{snap: watchdog.Snapshot{
		Platform: "tiktok", Account: "hofzeitprojekt", Belief: watchdog.Live,
		Connected: true, Polls: 7, Transitions: 1, LastPoll: at, LiveSince: at,
	}}
	rr := serve(t, Options{Status: st}, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["belief"] != "live" || body["account"] != "hofzeitprojekt" || body["polls"] != float64(7) {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
	if _, ok := body["last_error"]; ok {
		t.Error("last_error should be omitted when empty")
	}
}

func TestStatusRequiresToken(t *testing.T) {
	opts := Options{Status: &fakeStatus{}, AuthToken: "s3cret"}
	tests := []struct {
		name string
		hdr  map[string]string
		url  string
		want int
	}{
		{name: "missing", url: "/status", want: http.StatusUnauthorized},
		{name: "wrong", url: "/status", hdr: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "bearer", url: "/status", hdr: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusOK},
		{name: "header", url: "/status", hdr: map[string]string{"X-Auth-Token": "s3cret"}, want: http.StatusOK},
		{name: "query", url: "/status?token=s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := serve(t, opts, http.MethodGet, tt.url, tt.hdr); rr.Code != tt.want {
				t.Errorf("code = %d, want %d", rr.Code, tt.want)
			}
		})
	}
	// Probes stay open.
	if rr := serve(t, opts, http.MethodGet, "/healthz", nil); rr.Code != http.StatusOK {
		t.Errorf("healthz behind auth: %d", rr.Code)
	}
}

func TestTransitions(t *testing.T) {
	if rr := serve(t, Options{}, http.MethodGet, "/transitions", nil); rr.Code != http.StatusNotFound {
		t.Errorf("without journal: %d, want 404", rr.Code)
	}

	j := &fakeJournal{rows: []db.TransitionRow{{ID: "t1", Kind: "live", Reason: "poll", Comments: 3}}}
	rr := serve(t, Options{Journal: j}, http.MethodGet, "/transitions?limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if j.limit != 5 {
		t.Errorf("limit = %d, want 5", j.limit)
	}
	if !strings.Contains(rr.Body.String(), `"comments":3`) {
		t.Errorf("body = %s", rr.Body.String())
	}

	if rr := serve(t, Options{Journal: j}, http.MethodGet, "/transitions?limit=x", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d, want 400", rr.Code)
	}
	j.err = errors.New("db down")
	if rr := serve(t, Options{Journal: j}, http.MethodGet, "/transitions", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("journal error: %d, want 500", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := serve(t, Options{}, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, addr, NewMux(ctx, Options{})) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
