package watchdog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/telemetry"
)

// TransitionFunc is invoked once per belief edge. It must not block for long;
// the next poll waits for it.
type TransitionFunc func(ctx context.Context, t Transition)

// EventFunc observes every event pushed by the open session.
type EventFunc func(ctx context.Context, ev platform.Event)

// Config wires a Watchdog to its collaborators.
type Config struct {
	Platform string
	Account  string
	Interval time.Duration

	Checker   platform.StatusChecker
	Connector platform.Connector // nil runs status-only

	OnLive    []TransitionFunc
	OnOffline []TransitionFunc
	OnEvent   []EventFunc

	// IsStreamEnd selects control codes that end the live run. Defaults to
	// platform.DefaultStreamEnd.
	IsStreamEnd platform.ControlPredicate
	// IgnoreDisconnect keeps belief Live when the session drops; the session
	// is reopened on the next poll instead.
	IgnoreDisconnect bool

	Clock clockwork.Clock
}

// Watchdog is the edge-triggered live-status poller. Create with New.
type Watchdog struct {
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger

	belief  Belief
	session platform.Session

	mu   sync.RWMutex
	snap Snapshot
}

// New returns a Watchdog with defaults applied. The initial belief is Offline.
func New(cfg Config) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.IsStreamEnd == nil {
		cfg.IsStreamEnd = platform.DefaultStreamEnd
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	w := &Watchdog{
		cfg:    cfg,
		clock:  clock,
		log:    slog.Default().With(slog.String("component", "watchdog"), slog.String("platform", cfg.Platform), slog.String("account", cfg.Account)),
		belief: Offline,
	}
	w.snap = Snapshot{Platform: cfg.Platform, Account: cfg.Account, Belief: Offline}
	return w
}

// Snapshot returns a copy of the current state. Safe for concurrent use.
func (w *Watchdog) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

// Run polls until ctx is cancelled, then closes any open session and returns nil.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.cfg.Checker == nil {
		return errors.New("watchdog: nil status checker")
	}
	w.log.Info("watchdog: started", slog.Duration("interval", w.cfg.Interval), slog.Bool("session", w.cfg.Connector != nil))
	defer func() {
		w.closeSession("shutdown")
		w.log.Info("watchdog: stopped")
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		w.poll(ctx)
		if !w.wait(ctx) {
			return nil
		}
	}
}

// poll performs one status query and applies at most one transition.
func (w *Watchdog) poll(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "watchdog", "watchdog.poll",
		attribute.String("platform", w.cfg.Platform),
		attribute.String("account", w.cfg.Account),
	)
	defer span.End()

	start := w.clock.Now()
	live, err := w.cfg.Checker.IsLive(ctx)
	elapsed := w.clock.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		qerr := &TransientQueryError{Err: err}
		telemetry.ObservePoll("error", elapsed)
		telemetry.RecordError(span, qerr)
		w.log.Warn("watchdog: status query failed; belief unchanged", slog.Any("err", qerr), slog.String("belief", w.belief.String()))
		w.update(func(s *Snapshot) {
			s.Polls++
			s.LastPoll = start
			s.LastError = qerr.Error()
		})
		return
	}
	telemetry.ObservePoll(map[bool]string{true: "live", false: "offline"}[live], elapsed)
	w.update(func(s *Snapshot) {
		s.Polls++
		s.LastPoll = start
		s.LastError = ""
	})
	span.SetAttributes(attribute.Bool("live", live))

	switch {
	case live && w.belief != Live:
		w.transition(ctx, Live, ReasonPoll)
	case !live && w.belief == Live:
		w.transition(ctx, Offline, ReasonPoll)
	default:
		w.log.Debug("watchdog: no change", slog.String("belief", w.belief.String()))
	}
	if w.belief == Live {
		w.ensureSession(ctx)
	}
	telemetry.SetSpanSuccess(span)
}

// wait blocks for one interval while draining session events. It returns false
// when ctx is cancelled.
func (w *Watchdog) wait(ctx context.Context) bool {
	timer := w.clock.NewTimer(w.cfg.Interval)
	defer timer.Stop()
	for {
		var events <-chan platform.Event
		if w.session != nil {
			events = w.session.Events()
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
			return true
		case ev := <-events:
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *Watchdog) handleEvent(ctx context.Context, ev platform.Event) {
	for _, fn := range w.cfg.OnEvent {
		fn(ctx, ev)
	}
	switch ev.Kind {
	case platform.EventConnected:
		w.log.Info("watchdog: session connected")
	case platform.EventStreamEnded:
		w.log.Info("watchdog: stream ended signal")
		w.endEarly(ctx, ReasonStreamEnded)
	case platform.EventDisconnected:
		w.log.Info("watchdog: session disconnected", slog.Any("err", ev.Err))
		if w.cfg.IgnoreDisconnect {
			w.closeSession("disconnected")
			return
		}
		w.endEarly(ctx, ReasonDisconnected)
	case platform.EventControl:
		ends := w.cfg.IsStreamEnd(ev.Code)
		w.log.Info("watchdog: control signal", slog.String("code", ev.Code.String()), slog.Int("value", int(ev.Code)), slog.Bool("ends_stream", ends))
		if ends {
			w.endEarly(ctx, reasonControl+ev.Code.String())
		}
	case platform.EventComment:
		w.log.Debug("watchdog: comment", slog.String("user", ev.User))
	}
}

// endEarly handles an out-of-band end signal: belief drops to Offline without
// waiting for the next poll.
func (w *Watchdog) endEarly(ctx context.Context, reason string) {
	if w.belief != Live {
		w.closeSession(reason)
		return
	}
	w.transition(ctx, Offline, reason)
}

func (w *Watchdog) transition(ctx context.Context, to Belief, reason string) {
	t := Transition{
		ID:       uuid.NewString(),
		Platform: w.cfg.Platform,
		Account:  w.cfg.Account,
		From:     w.belief,
		To:       to,
		Reason:   reason,
		At:       w.clock.Now().UTC(),
	}
	w.belief = to
	telemetry.CountTransition(to.String(), reason)
	telemetry.SetLive(to == Live)

	ctx = telemetry.WithCorrelation(ctx, t.ID)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "watchdog"), slog.String("account", w.cfg.Account))
	callbacks := w.cfg.OnLive
	if to == Live {
		log.Info("watchdog: went live", slog.String("reason", reason))
	} else {
		callbacks = w.cfg.OnOffline
		w.closeSession(reason)
		log.Info("watchdog: went offline", slog.String("reason", reason))
	}
	w.update(func(s *Snapshot) {
		s.Belief = to
		s.Transitions++
		s.TransitionID = t.ID
		if to == Live {
			s.LiveSince = t.At
		} else {
			s.LiveSince = time.Time{}
		}
	})
	for _, fn := range callbacks {
		fn(ctx, t)
	}
}

func (w *Watchdog) ensureSession(ctx context.Context) {
	if w.session != nil || w.cfg.Connector == nil {
		return
	}
	s, err := w.cfg.Connector.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		cerr := &ConnectError{Err: err}
		telemetry.CountConnect("error")
		w.log.Warn("watchdog: connect failed; retrying next poll", slog.Any("err", cerr))
		return
	}
	w.session = s
	telemetry.CountConnect("ok")
	w.update(func(s *Snapshot) { s.Connected = true })
}

func (w *Watchdog) closeSession(reason string) {
	if w.session == nil {
		return
	}
	s := w.session
	w.session = nil
	if err := s.Close(); err != nil {
		w.log.Warn("watchdog: session close", slog.Any("err", err), slog.String("reason", reason))
	}
	telemetry.CountDisconnect(reason)
	w.update(func(s *Snapshot) { s.Connected = false })
}

func (w *Watchdog) update(fn func(*Snapshot)) {
	w.mu.Lock()
	fn(&w.snap)
	w.mu.Unlock()
}
