package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	status  StatusSource
	journal TransitionLister
	db      Pinger
	breaker BreakerState
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", slog.Any("err", err))
	}
}

// HandleHealthz is the liveness probe: the process is serving.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the first poll completed, the status circuit
// is not open and the journal database (if any) answers.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"first_poll", func(context.Context) error {
			if h.status == nil || h.status.Snapshot().Polls == 0 {
				return errors.New("no poll completed yet")
			}
			return nil
		}},
		{"circuit_breaker", func(context.Context) error {
			if h.breaker != nil && h.breaker.State() == "open" {
				return fmt.Errorf("circuit breaker open")
			}
			return nil
		}},
		{"database", func(ctx context.Context) error {
			if h.db == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return h.db.PingContext(ctx)
		}},
	}

	for _, check := range checks {
		if err := check.fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns the watchdog snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// HandleTransitions lists recent journal rows (?limit=, default 50).
func (h *Handlers) HandleTransitions(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		http.Error(w, "journal not configured", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("list transitions", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": rows})
}
