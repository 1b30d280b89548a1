package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAllFailed is returned when no backend of a [Chain] produced a result.
var ErrAllFailed = errors.New("resilience: all backends failed")

// FallbackConfig is applied to the breaker of every backend in a [Chain].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type link[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Chain tries backends in registration order, skipping those whose breaker
// is open. Backends must be added before the chain is shared.
type Chain[T any] struct {
	links []link[T]
	cfg   FallbackConfig
	log   *slog.Logger
}

// NewChain returns a chain with primary as its first backend.
func NewChain[T any](primary T, primaryName string, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg, log: cfg.CircuitBreaker.Logger}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback backend.
func (c *Chain[T]) Add(name string, backend T) {
	bc := c.cfg.CircuitBreaker
	bc.Name = name
	c.links = append(c.links, link[T]{name: name, value: backend, breaker: NewCircuitBreaker(bc)})
}

// Names returns the backend names in order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.links))
	for i, l := range c.links {
		out[i] = l.name
	}
	return out
}

// States returns the breaker state of every backend by name.
func (c *Chain[T]) States() map[string]State {
	out := make(map[string]State, len(c.links))
	for _, l := range c.links {
		out[l.name] = l.breaker.State()
	}
	return out
}

// Healthy returns nil while at least one backend accepts calls.
func (c *Chain[T]) Healthy(context.Context) error {
	var open []string
	for _, l := range c.links {
		if l.breaker.State() != StateOpen {
			return nil
		}
		open = append(open, l.name)
	}
	return fmt.Errorf("resilience: every circuit open: %s", strings.Join(open, ", "))
}

// Call runs fn against each backend of c until one succeeds. It stops early
// when ctx ends. The error wraps [ErrAllFailed] together with every
// backend's failure.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range c.links {
		l := &c.links[i]
		var res R
		err := l.breaker.Execute(ctx, func() error {
			var err error
			res, err = fn(l.value)
			return err
		})
		if err == nil {
			if i > 0 {
				c.log.Debug("resilience: served by fallback", "backend", l.name)
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			c.log.Debug("resilience: skipping backend", "backend", l.name)
		} else {
			c.log.Warn("resilience: backend failed", "backend", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
