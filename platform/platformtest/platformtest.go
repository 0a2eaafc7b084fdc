// Package platformtest provides scripted platform collaborators for tests.
package platformtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/onnwee/livewatch/platform"
)

// Result is one scripted IsLive answer.
type Result struct {
	Live bool
	Err  error
}

// Live, Offline and Fail build scripted results.
func Live() Result          { return Result{Live: true} }
func Offline() Result       { return Result{} }
func Fail(err error) Result { return Result{Err: err} }

// Bools scripts a plain sequence of live/offline answers.
func Bools(bs ...bool) []Result {
	out := make([]Result, len(bs))
	for i, b := range bs {
		out[i] = Result{Live: b}
	}
	return out
}

// Checker answers IsLive from a script. Once the script is exhausted the last
// result repeats. Every call is announced on Polled with its 1-based index.
type Checker struct {
	Polled chan int

	mu      sync.Mutex
	results []Result
	calls   int
}

// NewChecker returns a Checker over results.
func NewChecker(results ...Result) *Checker {
	return &Checker{Polled: make(chan int, 1024), results: results}
}

func (c *Checker) IsLive(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	var r Result
	switch {
	case len(c.results) == 0:
	case n <= len(c.results):
		r = c.results[n-1]
	default:
		r = c.results[len(c.results)-1]
	}
	c.mu.Unlock()
	select {
	case c.Polled <- n:
	default:
	}
	return r.Live, r.Err
}

// Calls reports how many queries were made.
func (c *Checker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Connector hands out Sessions. Errs[i] is returned by attempt i+1; attempts
// past the end of Errs succeed.
type Connector struct {
	Errs []error

	mu       sync.Mutex
	attempts int
	sessions []*Session
}

func (c *Connector) Connect(ctx context.Context) (platform.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if i := c.attempts - 1; i < len(c.Errs) && c.Errs[i] != nil {
		return nil, c.Errs[i]
	}
	s := NewSession()
	c.sessions = append(c.sessions, s)
	return s, nil
}

// Attempts reports how many times Connect was called.
func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Sessions returns the sessions opened so far.
func (c *Connector) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Last returns the most recent session or nil.
func (c *Connector) Last() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

// TotalCloses sums Close calls over every session handed out.
func (c *Connector) TotalCloses() int {
	n := 0
	for _, s := range c.Sessions() {
		n += s.Closes()
	}
	return n
}

// ErrClosed is returned by Session.Close after the first call.
var ErrClosed = errors.New("platformtest: session already closed")

// Session is an in-memory platform.Session fed through Push.
type Session struct {
	events chan platform.Event
	closes atomic.Int32
}

// NewSession returns an open Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan platform.Event, 64)}
}

func (s *Session) Events() <-chan platform.Event { return s.events }

// Push queues an event for the reader.
func (s *Session) Push(ev platform.Event) { s.events <- ev }

func (s *Session) Close() error {
	if s.closes.Add(1) > 1 {
		return ErrClosed
	}
	return nil
}

// Closes reports how many times Close was called.
func (s *Session) Closes() int { return int(s.closes.Load()) }
