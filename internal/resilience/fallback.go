package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] either
// failed or had an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker created for each member of a
// [FallbackGroup]. The member's name overrides the breaker name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// member pairs one provider instance with its own breaker, so a tripped
// primary does not block probes of its fallbacks.
type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary and any number of fallbacks of one provider
// type. Calls go to the first member whose breaker admits them and that
// succeeds; later members are only consulted when earlier ones fail.
//
// Members are fixed after setup; Execute may be called concurrently.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first member. Register
// alternatives with [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends another member. Members are tried in insertion order.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names lists the member names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.members))
	for i, m := range fg.members {
		names[i] = m.name
	}
	return names
}

// Execute runs fn against each member in order until one succeeds. Members
// with open breakers are skipped. When everyone fails the returned error
// wraps [ErrAllFailed] plus each member's failure, keyed by name.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for functions that produce a
// value. It is a package-level function because methods cannot introduce type
// parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var fails []error
	for i := range fg.members {
		m := &fg.members[i]
		var result R
		err := m.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(m.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		fails = append(fails, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.name)
		} else {
			slog.Warn("provider failed, failing over",
				"provider", m.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(fails...))
}
