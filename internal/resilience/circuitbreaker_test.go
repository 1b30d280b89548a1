package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fail() error    { return errTest }
func succeed() error { return nil }

func newBreaker(clk *fakeClock, maxFailures, probes int) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		MaxFailures:  maxFailures,
		ResetTimeout: time.Minute,
		HalfOpenMax:  probes,
		Now:          clk.Now,
	})
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.maxFailures != 3 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 1 {
		t.Errorf("defaults = %d/%v/%d, want 3/30s/1", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cb := newBreaker(newFakeClock(), 3, 1)

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed) // breaks the run
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateClosed {
		t.Fatal("opened before three consecutive failures")
	}
	if err := cb.Execute(ctx, fail); !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the call's own error", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		probes []func() error
		want   State
	}{
		{name: "success closes", probes: []func() error{succeed}, want: StateClosed},
		{name: "failure reopens", probes: []func() error{fail}, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := newFakeClock()
			cb := newBreaker(clk, 1, 1)
			_ = cb.Execute(ctx, fail)

			clk.Advance(59 * time.Second)
			if cb.State() != StateOpen {
				t.Fatal("cooldown ended early")
			}
			clk.Advance(time.Second)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half_open", cb.State())
			}
			for _, p := range tt.probes {
				_ = cb.Execute(ctx, p)
			}
			if cb.State() != tt.want {
				t.Errorf("state = %v, want %v", cb.State(), tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OneProbeAtATime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := newFakeClock()
	cb := newBreaker(clk, 1, 2)
	_ = cb.Execute(ctx, fail)
	clk.Advance(time.Minute)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe
	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("concurrent probe: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open after one of two probes", cb.State())
	}
	_ = cb.Execute(ctx, succeed)
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancelledCallsDoNotCount(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cb := newBreaker(newFakeClock(), 1, 1)

	err := cb.Execute(ctx, func() error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cb := newBreaker(newFakeClock(), 1, 1)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
