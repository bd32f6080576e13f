// Package circuitbreaker implements the shared 3-state breaker used by
// both the Index Store and Blob Store backends (spec.md §2, §5):
// closed -> open at N consecutive failures, open -> half-open after a
// timeout, half-open -> closed on success or back to open on failure.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call when the breaker refuses the call (Allow
// reports the same refusal as false).
var ErrOpen = errors.New("circuit breaker open")

// Breaker is a process-wide, goroutine-safe circuit breaker.
type Breaker struct {
	mu sync.Mutex

	threshold   int
	openTimeout time.Duration

	state       State
	failures    int
	openedAt    time.Time
	halfOpenTry bool
}

// New creates a Breaker that opens after threshold consecutive failures
// and attempts a half-open trial after openTimeout.
func New(threshold int, openTimeout time.Duration) *Breaker {
	return &Breaker{threshold: threshold, openTimeout: openTimeout, state: Closed}
}

// Allow reports whether a call may proceed, transitioning open->half-open
// when the timeout has elapsed. Only one half-open trial is admitted at
// a time; concurrent callers during half-open are refused until the
// trial resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.openTimeout {
			b.state = HalfOpen
			b.halfOpenTry = true
			return true
		}
		return false
	case HalfOpen:
		if b.halfOpenTry {
			return false
		}
		b.halfOpenTry = true
		return true
	default:
		return true
	}
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
	b.halfOpenTry = false
}

// Failure records a failed call, opening the breaker once the
// consecutive-failure threshold is reached (or immediately, from
// half-open).
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		b.halfOpenTry = false
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current state, for observability.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn if the breaker allows it, recording success/failure, and
// returns ErrOpen without calling fn when the breaker is open.
func (b *Breaker) Call(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}
