// Package app wires the assistant's subsystems into a running application.
//
// New builds every subsystem from the config and the providers main
// created through the registry. Run drives them under one errgroup: the
// capture source feeding the queue, the turn machine consuming it, the face
// animator and the status server. Shutdown releases what New opened.
//
// For tests, inject display outputs, metrics and a clock through the
// functional options; a mock audio.Source replaces the microphone.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/iva/internal/config"
	"github.com/MrWong99/iva/internal/dispatch"
	"github.com/MrWong99/iva/internal/display"
	"github.com/MrWong99/iva/internal/display/oled"
	"github.com/MrWong99/iva/internal/display/web"
	"github.com/MrWong99/iva/internal/health"
	"github.com/MrWong99/iva/internal/observe"
	"github.com/MrWong99/iva/internal/turn"
	"github.com/MrWong99/iva/internal/voice"
	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/tts"
	"github.com/MrWong99/iva/pkg/provider/vad/energy"
)

// Providers holds the backends main built from the config. Recognizer and
// Source are required; the rest may be nil.
type Providers struct {
	// Recognizer transcribes utterances. It may be a resilience fallback
	// chain, in which case its health feeds /readyz.
	Recognizer     stt.Transcriber
	RecognizerName string

	// Wake spots the wake token. When nil under the wake_word policy, the
	// recognizer is wrapped in a pause-based segmenter.
	Wake stt.StreamRecognizer

	// TTS synthesises replies. Nil logs replies instead of speaking them.
	TTS     tts.Provider
	TTSName string

	Source audio.Source
	Player audio.Player
}

// Option configures an [App].
type Option func(*App)

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithOutputs replaces the display backend selected by the config.
func WithOutputs(outputs ...display.Output) Option {
	return func(a *App) { a.outputs = outputs }
}

// WithClock sets the time source of response templates.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithLogLevel lets hot reload change the level of the logger main built.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler sets the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	outputs        []display.Output
	now            func() time.Time
	level          *slog.LevelVar
	metricsHandler http.Handler

	queue      *audio.Queue
	vad        *energy.Detector
	dispatcher *dispatch.Dispatcher
	gate       *voice.Gate
	machine    *turn.Machine
	animator   *display.Animator
	mirror     *web.Mirror
	health     *health.Handler

	capturing atomic.Bool

	closers  []func() error
	stopOnce sync.Once
}

// New builds an App from cfg, which must have passed [config.Validate].
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Recognizer == nil || providers.Source == nil {
		return nil, errors.New("app: a recognizer and an audio source are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Queue and detector ─────────────────────────────────────────────
	// An unpaced file is delivered faster than it is consumed and would
	// overrun a bounded queue; it is finite, so hold all of it.
	capacity := cfg.Audio.QueueCapacity
	if capacity < 0 || (cfg.Audio.Source == config.SourceFile && !cfg.Audio.Realtime) {
		capacity = 0
	}
	a.queue = audio.NewQueue(capacity)

	det, err := energy.New(cfg.VAD.Threshold)
	if err != nil {
		return nil, fmt.Errorf("app: vad: %w", err)
	}
	a.vad = det

	// ── 2. Dispatcher ─────────────────────────────────────────────────────
	a.dispatcher, err = dispatch.New(rules(cfg.Responses), cfg.Responses.Fallback, dispatch.WithClock(a.now))
	if err != nil {
		return nil, fmt.Errorf("app: responses: %w", err)
	}

	// ── 3. Voice ──────────────────────────────────────────────────────────
	if cfg.Turn.Attention == config.AttentionDiscard {
		a.gate = voice.NewGate(a.metrics)
	}
	speaker := a.buildSpeaker()

	// ── 4. Display ────────────────────────────────────────────────────────
	if err := a.initDisplay(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: display: %w", err)
	}

	// ── 5. Turn machine ───────────────────────────────────────────────────
	if err := a.initMachine(speaker); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: turn: %w", err)
	}

	// ── 6. Readiness ──────────────────────────────────────────────────────
	a.health = health.New(a.checkers()...)

	return a, nil
}

func rules(rc config.ResponsesConfig) []dispatch.Rule {
	out := make([]dispatch.Rule, len(rc.Rules))
	for i, r := range rc.Rules {
		out[i] = dispatch.Rule{Trigger: r.Trigger, Response: r.Response}
	}
	return out
}

func (a *App) buildSpeaker() turn.Speaker {
	p := a.providers
	if p.TTS == nil || p.Player == nil || a.cfg.Audio.Output == config.OutputNone {
		return voice.LogSpeaker{Log: slog.Default()}
	}
	opts := []voice.Option{
		voice.WithVoice(tts.VoiceProfile{ID: a.cfg.Voice.VoiceID, SpeedFactor: a.cfg.Voice.SpeedFactor}),
		voice.WithMetrics(a.metrics),
	}
	if p.TTSName != "" {
		opts = append(opts, voice.WithProviderName(p.TTSName))
	}
	if a.gate != nil {
		opts = append(opts, voice.WithGate(a.gate))
	}
	return voice.NewSpeaker(p.TTS, p.Player, opts...)
}

func (a *App) initDisplay() error {
	d := a.cfg.Display
	if a.outputs == nil {
		switch d.Kind {
		case config.DisplayOLED:
			eyes, err := oled.Open(oled.Config{
				Bus:       d.I2CBus,
				LeftAddr:  d.LeftAddr,
				RightAddr: d.RightAddr,
				Width:     d.Width,
				Height:    d.Height,
			})
			if err != nil {
				return err
			}
			a.closers = append(a.closers, eyes.Close)
			a.outputs = []display.Output{eyes}
		case config.DisplayWeb:
			a.mirror = web.New(web.WithMetrics(a.metrics))
			a.outputs = []display.Output{a.mirror}
		}
	}
	if len(a.outputs) == 0 {
		return nil
	}
	a.animator = display.NewAnimator(
		display.NewRenderer(d.Width, d.Height),
		a.outputs,
		display.WithFrameInterval(d.FrameInterval),
		display.WithBlinkInterval(d.BlinkInterval),
	)
	return nil
}

// turnConfig converts durations to frame counts at the capture rate.
func turnConfig(cfg *config.Config) turn.Config {
	rate, size := cfg.Audio.SampleRate, cfg.Audio.FrameSize
	tc := cfg.Turn

	mode := turn.SilenceTimeout
	if tc.Mode == config.ModeFixedDuration {
		mode = turn.FixedDuration
	}
	var start turn.StartPolicy
	switch tc.Start {
	case config.StartImmediate:
		start = turn.StartImmediate
	case config.StartSpeech:
		start = turn.StartSpeech
	case config.StartTrigger:
		start = turn.StartTrigger
	default:
		start = turn.StartWakeWord
	}
	var maxFrames int
	if tc.MaxRecording > 0 {
		maxFrames = audio.FramesFor(tc.MaxRecording, rate, size)
	}
	return turn.Config{
		Recorder: turn.RecorderConfig{
			Mode:               mode,
			FixedFrames:        audio.FramesFor(tc.FixedDuration, rate, size),
			MaxSilenceFrames:   audio.FramesFor(tc.MaxSilence, rate, size),
			MaxFrames:          maxFrames,
			KeepLeadingSilence: tc.KeepLeadingSilence,
		},
		Start:             start,
		ProcessingTimeout: tc.ProcessingTimeout,
		Captions:          cfg.Display.Kind != config.DisplayNone,
	}
}

func (a *App) initMachine(speaker turn.Speaker) error {
	tc := turnConfig(a.cfg)
	opts := []turn.Option{
		turn.WithConfig(tc),
		turn.WithSpeaker(speaker),
		turn.WithMetrics(a.metrics),
		turn.WithCycleHook(a.logCycle),
	}
	if name := a.providers.RecognizerName; name != "" {
		opts = append(opts, turn.WithRecognizerName(name))
	}
	if a.animator != nil {
		opts = append(opts, turn.WithDisplay(a.animator))
	}
	if dir := a.cfg.Debug.RecordDir; dir != "" {
		rec, err := wavfile.NewRecorder(dir)
		if err != nil {
			return fmt.Errorf("debug recorder: %w", err)
		}
		opts = append(opts, turn.WithUtteranceSink(rec))
	}
	if tc.Start == turn.StartWakeWord {
		matcher, err := turn.NewWakeMatcher(a.cfg.Turn.WakeToken,
			turn.WithPhonetic(a.cfg.Turn.WakePhonetic),
			turn.WithPartials(a.cfg.Turn.WakeMatchPartials),
		)
		if err != nil {
			return err
		}
		wake := a.providers.Wake
		if wake == nil {
			wake = stt.NewSegmenter(a.providers.Recognizer, a.vad)
		}
		opts = append(opts, turn.WithWake(wake, matcher))
	}

	m, err := turn.New(a.queue, a.vad, a.providers.Recognizer, a.dispatcher, opts...)
	if err != nil {
		return err
	}
	a.machine = m
	return nil
}

func (a *App) logCycle(c turn.Cycle) {
	slog.Debug("app: cycle complete",
		"cycle", c.ID,
		"took", c.Took,
		"queued", a.queue.Len(),
		"dropped", a.queue.Dropped(),
	)
}

// healthy is implemented by resilience chains.
type healthy interface {
	Healthy(ctx context.Context) error
}

func (a *App) checkers() []health.Checker {
	cs := []health.Checker{
		health.CheckFunc("capture", func() error {
			if !a.capturing.Load() {
				return errors.New("capture not running")
			}
			if a.queue.Closed() {
				return errors.New("capture queue closed")
			}
			return nil
		}),
	}
	if h, ok := a.providers.Recognizer.(healthy); ok {
		cs = append(cs, health.Checker{Name: "recognizer", Check: h.Healthy})
	}
	if h, ok := a.providers.TTS.(healthy); ok {
		cs = append(cs, health.Checker{Name: "tts", Check: h.Healthy})
	}
	return cs
}

// Machine returns the turn machine.
func (a *App) Machine() *turn.Machine { return a.machine }

// Trigger asks the turn machine to start recording; see [turn.Machine.Trigger].
func (a *App) Trigger() bool { return a.machine.Trigger() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts every subsystem and blocks until ctx is cancelled, a subsystem
// fails, or a finite source has been played out and processed. It returns
// nil on a clean stop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer a.queue.Close()
		a.capturing.Store(true)
		defer a.capturing.Store(false)

		sink := a.enqueue
		if a.gate != nil {
			sink = a.gate.Wrap(sink)
		}
		if err := a.providers.Source.Run(gctx, sink); err != nil {
			return fmt.Errorf("app: capture: %w", err)
		}
		slog.Info("app: capture finished")
		return nil
	})

	g.Go(func() error {
		// The machine only returns on its own once the source is exhausted;
		// take everything else down with it.
		defer cancel()
		return a.machine.Run(gctx)
	})

	if a.animator != nil {
		g.Go(func() error { return a.animator.Run(gctx) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: status server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("app running",
		"start", a.cfg.Turn.Start,
		"mode", a.cfg.Turn.Mode,
		"display", a.cfg.Display.Kind,
		"attention", a.cfg.Turn.Attention,
	)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// enqueue is the capture sink behind the attention gate.
func (a *App) enqueue(f audio.Frame) {
	before := a.queue.Dropped()
	if !a.queue.Push(f) {
		return
	}
	if n := a.queue.Dropped() - before; n > 0 {
		a.metrics.RecordDropped(context.Background(), observe.DropQueueFull, int(n))
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable part of a config change. It is the
// callback for [config.NewWatcher].
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.ThresholdChanged {
		if err := a.vad.SetThreshold(d.NewThreshold); err != nil {
			slog.Warn("app: vad threshold not applied", "err", err)
		} else {
			slog.Info("app: vad threshold changed", "threshold", d.NewThreshold)
		}
	}
	if d.ResponsesChanged {
		if err := a.dispatcher.Reload(rules(new.Responses), new.Responses.Fallback); err != nil {
			slog.Warn("app: responses not reloaded", "err", err)
		} else {
			slog.Info("app: responses reloaded", "rules", len(a.dispatcher.Rules()))
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.RestartRequired)
	}
}

// LogLevel maps a config level to its slog level.
func LogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases what New opened. It stops early when ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		for i, c := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				err = ctx.Err()
				return
			}
			if cerr := c(); cerr != nil {
				slog.Warn("app: close", "err", cerr)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return err
}

func (a *App) closeAll() {
	_ = a.Shutdown(context.Background())
}
