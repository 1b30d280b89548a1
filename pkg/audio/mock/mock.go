// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// Both mocks are safe for concurrent use. They record every call so tests can
// assert on call counts and arguments, and expose exported fields that
// control their behaviour.
//
// Typical usage:
//
//	src := &mock.Source{Frames: frames}
//	player := &mock.Player{}
//	err := src.Run(ctx, func(f audio.Frame) { queue.Push(f) })
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Run delivers Frames to
// the sink in order, then either returns RunError, or, when HoldOpen is set,
// blocks until the context is cancelled.
type Source struct {
	mu sync.Mutex

	// Frames are delivered to the sink, in order, on every Run call.
	Frames []audio.Frame

	// Interval is slept between frames. Zero delivers frames back-to-back.
	Interval time.Duration

	// HoldOpen keeps Run blocked after the last frame until ctx is done,
	// mimicking a live microphone.
	HoldOpen bool

	// RunError is returned by Run after all frames have been delivered.
	RunError error

	// CallCountRun records how many times Run was called.
	CallCountRun int

	// Delivered counts frames handed to the sink across all calls.
	Delivered int
}

// Run implements [audio.Source].
func (s *Source) Run(ctx context.Context, sink func(audio.Frame)) error {
	s.mu.Lock()
	s.CallCountRun++
	frames := make([]audio.Frame, len(s.Frames))
	copy(frames, s.Frames)
	interval, hold, runErr := s.Interval, s.HoldOpen, s.RunError
	s.mu.Unlock()

	for _, f := range frames {
		if ctx.Err() != nil {
			return nil
		}
		sink(f)
		s.mu.Lock()
		s.Delivered++
		s.mu.Unlock()
		if interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	if hold {
		<-ctx.Done()
	}
	return nil
}

// DeliveredCount returns how many frames have reached the sink.
func (s *Source) DeliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Delivered
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Player.Play] invocation.
type PlayCall struct {
	// Samples is the PCM buffer passed to Play.
	Samples []int16
	// SampleRate is the sample rate passed to Play.
	SampleRate int
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// Delay is how long Play blocks, simulating playback time. The wait is
	// cut short when ctx is cancelled.
	Delay time.Duration

	// PlayError is returned by Play.
	PlayError error

	// OnPlay, when set, is called synchronously at the start of each Play.
	OnPlay func(samples []int16, sampleRate int)

	// PlayCalls records all Play invocations.
	PlayCalls []PlayCall
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	p.mu.Lock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{Samples: samples, SampleRate: sampleRate})
	delay, err, hook := p.Delay, p.PlayError, p.OnPlay
	p.mu.Unlock()

	if hook != nil {
		hook(samples, sampleRate)
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// Calls returns a snapshot of all recorded Play invocations.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Player = (*Player)(nil)
)
