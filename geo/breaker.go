package geo

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of the geocoder circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned while the geocoder is being skipped
var ErrBreakerOpen = errors.New("geocoder circuit breaker is open")

// BreakerConfig holds configuration for the circuit breaker
type BreakerConfig struct {
	// Failures is the number of consecutive service errors before the breaker opens
	Failures int
	// Cooldown is how long the breaker stays open before one trial request is let through
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the breaker defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Failures: 5, Cooldown: time.Minute}
}

// Breaker stops calling a failing geocoder until a cooldown has passed
type Breaker struct {
	config   BreakerConfig
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
	now      func() time.Time
}

// NewBreaker creates a closed breaker. A non-positive Failures disables it.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config, state: BreakerClosed, now: time.Now}
}

// Allow reports whether a request may be sent
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return nil
	case BreakerHalfOpen:
		if b.trial {
			return ErrBreakerOpen
		}
		b.trial = true
		return nil
	}
	return nil
}

// Success records a request the service answered
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.trial = false
}

// Failure records a service error
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if b.config.Failures <= 0 {
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.config.Failures {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
