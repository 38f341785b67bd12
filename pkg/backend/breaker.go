// Package backend provides the pharmacy backend connector and the
// availability circuit breaker that guards it. The breaker here is a
// classic closed/open/half-open failure counter for an unreliable
// dependency; it is unrelated to the clinical safety interrupts in
// pkg/workflow.
package backend

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is open and calls are
// being shed.
var ErrBreakerOpen = errors.New("pharmacy backend circuit open")

// BreakerState is the availability breaker's state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that
	// opens the breaker.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long the breaker stays open before
	// allowing a probe call.
	DefaultRecoveryTimeout = 30 * time.Second
)

// Breaker sheds calls to the backend after repeated failures. After the
// recovery timeout one probe call is let through; its result decides
// whether the breaker closes again or re-opens.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	threshold int
	recovery  time.Duration
	now       func() time.Time
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithThreshold overrides the consecutive-failure threshold.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithRecoveryTimeout overrides the open-state recovery timeout.
func WithRecoveryTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.recovery = d }
}

// WithBreakerClock overrides the clock, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker.
func NewBreaker(opts ...BreakerOption) *Breaker {
	b := &Breaker{
		state:     BreakerClosed,
		threshold: DefaultFailureThreshold,
		recovery:  DefaultRecoveryTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed, transitioning OPEN to
// HALF_OPEN once the recovery timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.recovery {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
	}
	return nil
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure counts a failure. A failed half-open probe re-opens the
// breaker immediately; in closed state the breaker opens once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.open()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.openedAt = b.now()
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
