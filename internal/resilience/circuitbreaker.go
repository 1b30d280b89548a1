// Package resilience keeps the assistant answering when a provider backend
// misbehaves.
//
// [CircuitBreaker] stops calling a backend after a run of consecutive
// failures and lets a single probe through once its cooldown has passed.
// [Chain] orders several backends of one kind behind their own breakers;
// [TranscriberFallback] and [SpeechFallback] are the chains the assistant
// actually wires for recognition and synthesis.
//
// A failure that happens because the caller's context ended is never held
// against a backend. All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cooldown has passed.
	StateOpen
	// StateHalfOpen lets probe calls through to decide between closed and
	// open.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// defaults.
type CircuitBreakerConfig struct {
	// Name labels log records.
	Name string

	// MaxFailures is the run of consecutive failures that opens the breaker.
	// Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close again.
	// Probes run one at a time. Default: 1.
	HalfOpenMax int

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker around one backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	log          *slog.Logger
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		log:          cfg.Logger,
		now:          cfg.Now,
	}
}

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// fn's error is returned unchanged. When fn fails after ctx has ended, the
// outcome is not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}
	switch {
	case err == nil:
		cb.succeeded(probe)
	case ctx.Err() != nil:
		// Caller gave up; says nothing about the backend.
	default:
		cb.failed(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.log.Info("resilience: circuit half-open", "name", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probing {
			return false, ErrCircuitOpen
		}
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) succeeded(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	cb.successes++
	if cb.successes >= cb.halfOpenMax {
		cb.state = StateClosed
		cb.failures = 0
		cb.log.Info("resilience: circuit closed", "name", cb.name)
	}
}

func (cb *CircuitBreaker) failed(probe bool) {
	if probe {
		cb.trip()
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.log.Warn("resilience: circuit open",
		"name", cb.name,
		"failures", cb.failures,
		"reset_timeout", cb.resetTimeout,
	)
}

// State reports the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and forgets all failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.probing = false
}
