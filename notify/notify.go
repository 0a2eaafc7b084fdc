// Package notify delivers watchdog transitions to external collaborators.
//
// A Dispatcher turns each watchdog.Transition into an Event and hands it to
// every configured Notifier exactly once. Failures are wrapped in NotifyError,
// logged and counted; they are never retried and never reach the watchdog.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livewatch/telemetry"
	"github.com/onnwee/livewatch/watchdog"
)

// Event kinds.
const (
	KindLive    = "live"
	KindOffline = "offline"
)

// Event is what notifiers receive for one transition.
type Event struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Action   string    `json:"action,omitempty"`
	Platform string    `json:"platform"`
	Account  string    `json:"account"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Notifier delivers an Event somewhere.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// NotifyError is a failed delivery to one notifier.
type NotifyError struct {
	Notifier string
	Action   string
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s (%s): %v", e.Notifier, e.Action, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Dispatcher fans transitions out to Notifiers.
type Dispatcher struct {
	LiveAction    string
	OfflineAction string
	Notifiers     []Notifier
	// Timeout bounds each notifier call. Defaults to 15s.
	Timeout time.Duration
}

// OnLive is a watchdog.TransitionFunc for Offline→Live edges.
func (d *Dispatcher) OnLive(ctx context.Context, t watchdog.Transition) {
	d.Dispatch(ctx, KindLive, d.LiveAction, t)
}

// OnOffline is a watchdog.TransitionFunc for Live→Offline edges.
func (d *Dispatcher) OnOffline(ctx context.Context, t watchdog.Transition) {
	d.Dispatch(ctx, KindOffline, d.OfflineAction, t)
}

// Dispatch calls every notifier once and returns the failures, already logged.
func (d *Dispatcher) Dispatch(ctx context.Context, kind, action string, t watchdog.Transition) []error {
	ev := Event{
		ID:       t.ID,
		Kind:     kind,
		Action:   action,
		Platform: t.Platform,
		Account:  t.Account,
		Reason:   t.Reason,
		At:       t.At,
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "notify"))

	var errs []error
	for _, n := range d.Notifiers {
		if err := d.deliver(ctx, n, ev, timeout); err != nil {
			nerr := &NotifyError{Notifier: n.Name(), Action: action, Err: err}
			log.Error("notify failed", slog.String("notifier", n.Name()), slog.String("kind", kind), slog.Any("err", nerr))
			errs = append(errs, nerr)
			continue
		}
		log.Info("notify sent", slog.String("notifier", n.Name()), slog.String("kind", kind), slog.String("action", action))
	}
	return errs
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, ev Event, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "notify", "notify."+n.Name(),
		attribute.String("kind", ev.Kind),
		attribute.String("action", ev.Action),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		telemetry.ObserveNotify(n.Name(), err, time.Since(start))
		telemetry.RecordError(span, err)
	}()
	return n.Notify(ctx, ev)
}
