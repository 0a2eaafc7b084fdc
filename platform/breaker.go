package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned by BreakerChecker while the circuit is open.
var ErrCircuitOpen = errors.New("status check circuit open")

// BreakerSettings configures a BreakerChecker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Zero disables the breaker.
	ConsecutiveFailures uint32
	// OpenFor is how long the circuit stays open before a trial query.
	OpenFor time.Duration
	// OnStateChange is called with open=true when the circuit opens and
	// open=false when it closes again.
	OnStateChange func(open bool)
}

// BreakerChecker fails fast after repeated status-check failures so a blocked
// or rate-limited endpoint is not hammered every cycle.
type BreakerChecker struct {
	inner StatusChecker
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerChecker wraps inner. With ConsecutiveFailures == 0 it returns inner unchanged.
func NewBreakerChecker(name string, inner StatusChecker, s BreakerSettings) StatusChecker {
	if s.ConsecutiveFailures == 0 {
		return inner
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 5 * time.Minute
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("status circuit state changed", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
			if s.OnStateChange != nil {
				s.OnStateChange(to == gobreaker.StateOpen)
			}
		},
	})
	return &BreakerChecker{inner: inner, cb: cb}
}

// IsLive delegates to the wrapped checker unless the circuit is open.
func (b *BreakerChecker) IsLive(ctx context.Context) (bool, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.IsLive(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// State reports the breaker state name (closed, half-open, open).
func (b *BreakerChecker) State() string { return b.cb.State().String() }
