// Package resilience keeps the speech pipeline serving when a vendor
// misbehaves. A [CircuitBreaker] stops hammering an endpoint that keeps
// failing, and a [FallbackGroup] chains alternatives of the same provider
// type (a remote relay stage over the local one, Azure speech over a
// self-hosted whisper server) so one bad vendor does not silence a session.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls after tripping.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through to decide
	// whether the dependency has recovered.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields get defaults.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output, usually the provider name.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker waits before probing again.
	// Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax caps the probe calls allowed while half-open. That many
	// consecutive successes close the breaker; one failure re-opens it.
	// Default 3.
	HalfOpenMax int
}

// CircuitBreaker is a three-state breaker (closed, open, half-open) guarding
// one provider endpoint.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	trippedAt  time.Time
	probes     int
	probeFails int
}

// NewCircuitBreaker creates a breaker from cfg, filling in defaults for any
// zero fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
		state:        StateClosed,
	}
}

// Execute runs fn when the breaker permits it and feeds the outcome back into
// the state machine. While open it returns [ErrCircuitOpen] without calling
// fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()
	cb.settle(probing, err)
	return err
}

// admit decides whether a call may go through, performing the open→half-open
// transition when the reset timeout has elapsed. The returned bool reports
// whether the call counts as a half-open probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.trippedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker probing after reset timeout", "name", cb.name)

	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle records a call outcome. probing marks the call as a half-open probe.
func (cb *CircuitBreaker) settle(probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.trippedAt = cb.now()
		if probing {
			// One failed probe re-opens immediately.
			cb.probeFails++
			cb.state = StateOpen
			cb.failures = cb.maxFailures
			slog.Warn("circuit breaker re-opened, probe failed", "name", cb.name)
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.failures)
		}
		return
	}

	if probing {
		if cb.probes-cb.probeFails >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
			slog.Info("circuit breaker closed, dependency recovered", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the stored state changes on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.trippedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
