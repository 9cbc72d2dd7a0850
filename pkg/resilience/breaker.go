// Package resilience guards calls to optional remote dependencies: a circuit
// breaker for the result cache and a backoff retry for index reloads.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling through while the breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// BreakerConfig controls when a breaker trips and how it recovers.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	// IsFailure classifies call errors. Nil counts every non-nil error.
	IsFailure func(error) bool
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// CircuitBreaker trips open after FailureThreshold consecutive failures,
// rejects calls for ResetTimeout, then lets a single probe through.
type CircuitBreaker struct {
	name     string
	cfg      BreakerConfig
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	logger   *slog.Logger
}

func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the circuit is open and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(cb.cfg.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.cfg.Now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait)
		}
		cb.state = StateHalfOpen
		cb.probing = false
		cb.logger.Info("circuit half-open")
		fallthrough
	case StateHalfOpen:
		if cb.probing {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !failed {
		if cb.state != StateClosed {
			cb.logger.Info("circuit closed")
		}
		cb.state = StateClosed
		cb.failures = 0
		cb.probing = false
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		if cb.state != StateOpen {
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures)
		}
		cb.state = StateOpen
		cb.openedAt = cb.cfg.Now()
		cb.probing = false
	}
}
