package chainreader

import (
	"errors"
	"sync"
	"time"
)

// breakerState is the circuit breaker's current state.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig configures the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	ResetTimeout     time.Duration // how long to stay open before probing
}

// DefaultCircuitBreakerConfig returns sane defaults for a read-only
// external HTTP dependency the executor must not get stuck on.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
	}
}

// CircuitBreakerStats reports the breaker's current counters, mirroring
// the stats surface the teacher's IDR client exposes for its (missing
// from the retrieval pack) circuit breaker.
type CircuitBreakerStats struct {
	State            string
	ConsecutiveFails int
}

// CircuitBreaker protects a call to an external, possibly-flaky read
// dependency (the indexer) so a single hanging/failing backend cannot
// stall every executor tick. Closed -> Open after FailureThreshold
// consecutive failures; Open -> HalfOpen after ResetTimeout; a single
// HalfOpen probe success closes it again, a failure reopens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       *CircuitBreakerConfig
	state     breakerState
	fails     int
	openSince time.Time
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker allows it, updating state from the result.
func (b *CircuitBreaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.fails++
		if b.state == breakerHalfOpen || b.fails >= b.cfg.FailureThreshold {
			b.state = breakerOpen
			b.openSince = time.Now()
		}
		return err
	}

	b.fails = 0
	b.state = breakerClosed
	return nil
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.openSince) >= b.cfg.ResetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Stats returns the breaker's current counters.
func (b *CircuitBreaker) Stats() CircuitBreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var s string
	switch b.state {
	case breakerOpen:
		s = "open"
	case breakerHalfOpen:
		s = "half_open"
	default:
		s = "closed"
	}
	return CircuitBreakerStats{State: s, ConsecutiveFails: b.fails}
}

// Reset forces the breaker back to closed.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.fails = 0
}
