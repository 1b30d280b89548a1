// Package voice implements the speaking half of the presentation layer.
//
// A [Speaker] synthesises a reply with a [tts.Provider] and plays it on an
// [audio.Player], blocking until playback has drained. An optional [Gate]
// is closed for the duration of playback so that capture frames recorded
// while the assistant talks never reach the turn machine.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/iva/internal/observe"
	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

// ── Gate ─────────────────────────────────────────────────────────────────────

// Gate drops capture frames while muted. Mutes nest: the gate stays closed
// until every Mute has been released. The zero value is an open gate.
type Gate struct {
	muted   atomic.Int32
	dropped atomic.Uint64
	metrics *observe.Metrics
}

// NewGate returns an open gate that reports drops to m (which may be nil).
func NewGate(m *observe.Metrics) *Gate {
	return &Gate{metrics: m}
}

// Mute closes the gate and returns the function that reopens it. The
// returned function is idempotent.
func (g *Gate) Mute() (unmute func()) {
	g.muted.Add(1)
	return sync.OnceFunc(func() { g.muted.Add(-1) })
}

// Muted reports whether the gate is closed.
func (g *Gate) Muted() bool { return g.muted.Load() > 0 }

// Admit reports whether f may pass. Rejected frames are counted.
func (g *Gate) Admit(audio.Frame) bool {
	if !g.Muted() {
		return true
	}
	g.dropped.Add(1)
	if g.metrics != nil {
		g.metrics.RecordDropped(context.Background(), observe.DropAttention, 1)
	}
	return false
}

// Dropped returns the number of frames rejected so far.
func (g *Gate) Dropped() uint64 { return g.dropped.Load() }

// Wrap returns a capture sink that forwards admitted frames to sink.
func (g *Gate) Wrap(sink func(audio.Frame)) func(audio.Frame) {
	return func(f audio.Frame) {
		if g.Admit(f) {
			sink(f)
		}
	}
}

// ── Speaker ──────────────────────────────────────────────────────────────────

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice sets the voice passed to the provider.
func WithVoice(v tts.VoiceProfile) Option {
	return func(s *Speaker) {
		s.voice = v
	}
}

// WithGate mutes g while speech plays.
func WithGate(g *Gate) Option {
	return func(s *Speaker) {
		s.gate = g
	}
}

// WithMetrics records synthesis and speak latency to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) {
		s.metrics = m
	}
}

// WithProviderName labels provider metrics. Default: "tts".
func WithProviderName(name string) Option {
	return func(s *Speaker) {
		s.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		s.log = l
	}
}

// Speaker turns reply text into sound.
type Speaker struct {
	provider tts.Provider
	player   audio.Player
	voice    tts.VoiceProfile
	gate     *Gate
	metrics  *observe.Metrics
	name     string
	log      *slog.Logger
}

// NewSpeaker returns a Speaker synthesising with p and playing on player.
func NewSpeaker(p tts.Provider, player audio.Player, opts ...Option) *Speaker {
	s := &Speaker{
		provider: p,
		player:   player,
		name:     "tts",
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises text and blocks until it has been played or ctx is
// cancelled. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	start := time.Now()

	speech, err := s.provider.Synthesize(ctx, text, s.voice)
	if s.metrics != nil {
		s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordProviderRequest(ctx, s.name, "tts", "error")
			s.metrics.RecordProviderError(ctx, s.name, "tts")
		}
		return fmt.Errorf("voice: synthesize: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordProviderRequest(ctx, s.name, "tts", "ok")
	}
	if speech.Empty() {
		s.log.Debug("voice: provider returned no audio", "text", text)
		return nil
	}

	if s.gate != nil {
		unmute := s.gate.Mute()
		defer unmute()
	}
	if err := s.player.Play(ctx, speech.Samples, speech.SampleRate); err != nil {
		return fmt.Errorf("voice: play: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	}
	s.log.Debug("voice: spoke", "text", text, "audio", speech.Duration(), "took", time.Since(start))
	return nil
}

// LogSpeaker is a speaker for headless runs: it logs the reply and returns.
type LogSpeaker struct {
	Log *slog.Logger
}

// Speak logs text at info level.
func (l LogSpeaker) Speak(_ context.Context, text string) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("reply", "text", text)
	return nil
}
