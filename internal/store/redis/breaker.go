package redis

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // Redis healthy, calls pass through
	StateOpen                  // Redis down, calls rejected until cooldown
	StateHalfOpen              // cooldown elapsed, one probe call in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without touching Redis while the breaker is open.
var ErrBreakerOpen = errors.New("redis breaker open")

// Breaker gates Redis calls so a dead server degrades the pipeline to its
// SQLite fallback instead of stalling it. After threshold consecutive counted
// failures the breaker opens and rejects calls for the cooldown; then a
// single probe call is let through — success closes the breaker, failure
// re-opens it. Errors matched by Ignore pass through uncounted: a cache miss
// or a cancelled caller context says nothing about Redis health.
type Breaker struct {
	mu          sync.Mutex
	state       State
	fails       int
	trips       uint64
	lastFailure time.Time
	probing     bool

	threshold int
	cooldown  time.Duration

	// Ignore classifies errors that should not count toward tripping.
	// Nil counts every error.
	Ignore func(error) bool

	// OnStateChange observes transitions, for logs and gauges. It runs with
	// the breaker lock held, so it must not call back into the breaker.
	OnStateChange func(from, to State)
}

// NewBreaker creates a closed breaker. threshold is the consecutive counted
// failures before opening; cooldown is the rejection window before a probe.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs fn through the breaker. While open (and within the cooldown, or
// with a probe already in flight) it returns ErrBreakerOpen without calling
// fn; otherwise fn's error is returned as-is.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) <= b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && (b.Ignore == nil || !b.Ignore(err)) {
		b.fails++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.fails >= b.threshold {
			b.transition(StateOpen)
		}
		return err
	}
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.fails = 0
	return err
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a point-in-time snapshot for the health endpoint.
type BreakerStats struct {
	State   State
	Fails   int           // consecutive counted failures
	Trips   uint64        // total closed-or-half-open -> open transitions
	RetryIn time.Duration // time until the next probe, 0 unless open
}

// Stats snapshots the breaker.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerStats{State: b.state, Fails: b.fails, Trips: b.trips}
	if b.state == StateOpen {
		if wait := b.cooldown - time.Since(b.lastFailure); wait > 0 {
			st.RetryIn = wait
		}
	}
	return st
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	switch to {
	case StateOpen:
		b.trips++
	case StateClosed:
		b.fails = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}
