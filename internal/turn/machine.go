package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/iva/internal/dispatch"
	"github.com/MrWong99/iva/internal/display"
	"github.com/MrWong99/iva/internal/observe"
	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/vad"
)

// ErrRunning is returned by [Machine.Run] when the machine is already
// running.
var ErrRunning = errors.New("turn: machine already running")

// Speaker speaks a reply and blocks until it has been heard.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Display shows a scene. Show must not block.
type Display interface {
	Show(s display.Scene)
}

// UtteranceSink persists recorded utterances for debugging.
type UtteranceSink interface {
	Save(name string, frames []audio.Frame) (string, error)
}

// Config parameterises a [Machine].
type Config struct {
	Recorder RecorderConfig
	Start    StartPolicy

	// ProcessingTimeout bounds transcription. Expiry is handled like any
	// other recogniser failure. Zero disables the bound.
	ProcessingTimeout time.Duration

	// Captions shows partial wake recogniser results on the display.
	Captions bool
}

// Cycle reports one completed turn.
type Cycle struct {
	ID      string
	Started time.Time
	Took    time.Duration

	// Stop is why recording ended.
	Stop StopReason
	// Frames is the number of frames handed to the recogniser.
	Frames int
	// Text is the transcript; empty when recognition failed.
	Text  string
	Reply dispatch.Reply

	RecognizerErr error
	SpeakErr      error
}

// Option configures a [Machine].
type Option func(*Machine)

// WithConfig sets the recording and start parameters.
func WithConfig(cfg Config) Option {
	return func(m *Machine) {
		m.cfg = cfg
	}
}

// WithWake sets the streaming recogniser and matcher used by
// [StartWakeWord]. The machine owns rec from then on and closes it when Run
// returns.
func WithWake(rec stt.StreamRecognizer, matcher *WakeMatcher) Option {
	return func(m *Machine) {
		m.wake = rec
		m.matcher = matcher
	}
}

// WithSpeaker sets the reply speaker. Without one, replies are only logged.
func WithSpeaker(s Speaker) Option {
	return func(m *Machine) {
		m.speaker = s
	}
}

// WithDisplay sets the face display.
func WithDisplay(d Display) Option {
	return func(m *Machine) {
		m.display = d
	}
}

// WithMetrics records turn metrics to mt.
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

// WithUtteranceSink saves every utterance under its cycle ID.
func WithUtteranceSink(s UtteranceSink) Option {
	return func(m *Machine) {
		m.sink = s
	}
}

// WithCycleHook is called synchronously at the end of every cycle.
func WithCycleHook(fn func(Cycle)) Option {
	return func(m *Machine) {
		m.onCycle = fn
	}
}

// WithRecognizerName labels recogniser metrics. Default: "recognizer".
func WithRecognizerName(name string) Option {
	return func(m *Machine) {
		m.recognizerName = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// Machine is the turn-taking state machine. It is the only consumer of its
// queue and the only writer of its state.
type Machine struct {
	queue       *audio.Queue
	vad         vad.Detector
	transcriber stt.Transcriber
	dispatcher  *dispatch.Dispatcher

	cfg            Config
	wake           stt.StreamRecognizer
	matcher        *WakeMatcher
	speaker        Speaker
	display        Display
	metrics        *observe.Metrics
	sink           UtteranceSink
	onCycle        func(Cycle)
	recognizerName string
	log            *slog.Logger

	state    atomic.Int32
	running  atomic.Bool
	triggers chan struct{}
	last     atomic.Pointer[Cycle]
	cycles   atomic.Uint64
}

// New returns a Machine reading q. det classifies frames, t transcribes
// utterances and d turns transcripts into replies.
func New(q *audio.Queue, det vad.Detector, t stt.Transcriber, d *dispatch.Dispatcher, opts ...Option) (*Machine, error) {
	m := &Machine{
		queue:       q,
		vad:         det,
		transcriber: t,
		dispatcher:  d,
		cfg: Config{
			Recorder: RecorderConfig{Mode: SilenceTimeout, MaxSilenceFrames: 46, FixedFrames: 78},
			Start:    StartSpeech,
		},
		recognizerName: "recognizer",
		log:            slog.Default(),
		triggers:       make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(m)
	}

	var errs []error
	if q == nil {
		errs = append(errs, errors.New("turn: nil queue"))
	}
	if det == nil {
		errs = append(errs, errors.New("turn: nil voice activity detector"))
	}
	if t == nil {
		errs = append(errs, errors.New("turn: nil transcriber"))
	}
	if d == nil {
		errs = append(errs, errors.New("turn: nil dispatcher"))
	}
	if m.cfg.Start == StartWakeWord && (m.wake == nil || m.matcher == nil) {
		errs = append(errs, errors.New("turn: wake_word start requires a wake recogniser and matcher"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// State returns the current state. Safe to call from any goroutine.
func (m *Machine) State() State { return State(m.state.Load()) }

// LastCycle returns the most recent completed cycle, if any.
func (m *Machine) LastCycle() (Cycle, bool) {
	c := m.last.Load()
	if c == nil {
		return Cycle{}, false
	}
	return *c, true
}

// Cycles returns the number of completed cycles.
func (m *Machine) Cycles() uint64 { return m.cycles.Load() }

// Trigger asks an idle machine to start recording. It never blocks and
// reports whether the request was accepted; requests made outside IDLE are
// rejected.
func (m *Machine) Trigger() bool {
	if m.State() != Idle {
		return false
	}
	select {
	case m.triggers <- struct{}{}:
	default:
	}
	return true
}

// Run consumes frames until ctx is cancelled or the queue is closed and
// drained. A recording interrupted by the end of the queue is still
// processed; one interrupted by cancellation is dropped. Run returns nil in
// both cases.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.running.Store(false)
	if m.wake != nil {
		defer m.wake.Close()
	}

	m.log.Info("turn: machine started",
		"mode", m.cfg.Recorder.Mode,
		"start", m.cfg.Start,
		"fixed_frames", m.cfg.Recorder.FixedFrames,
		"max_silence_frames", m.cfg.Recorder.MaxSilenceFrames,
	)
	rec := NewRecorder(m.cfg.Recorder)
	for {
		seed, err := m.awaitStart(ctx)
		if err != nil {
			return m.exit(ctx, err)
		}

		utterance, stop, err := m.record(ctx, rec, seed)
		if stop != StopNone {
			m.process(ctx, utterance, stop)
		}
		if err != nil || ctx.Err() != nil {
			return m.exit(ctx, err)
		}
	}
}

func (m *Machine) exit(ctx context.Context, err error) error {
	m.setState(ctx, Idle)
	if ctx.Err() != nil || errors.Is(err, audio.ErrQueueClosed) {
		m.log.Info("turn: machine stopped", "cycles", m.Cycles())
		return nil
	}
	return fmt.Errorf("turn: %w", err)
}

// awaitStart blocks in IDLE until the start policy fires. It returns the
// frames that belong to the new utterance already (the first speech frame
// under [StartSpeech]).
func (m *Machine) awaitStart(ctx context.Context) ([]audio.Frame, error) {
	m.setState(ctx, Idle)
	m.show(display.Scene{Expression: display.Neutral})

	if m.cfg.Start == StartImmediate {
		select {
		case <-m.triggers:
		default:
		}
		return nil, ctx.Err()
	}

	waitCtx, cancel := context.WithCancel(ctx)
	var triggered atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-m.triggers:
			triggered.Store(true)
			cancel()
		case <-waitCtx.Done():
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	for {
		f, err := m.queue.Pop(waitCtx)
		if err != nil {
			if triggered.Load() && ctx.Err() == nil {
				m.log.Info("turn: start signal received")
				if m.wake != nil {
					m.wake.Reset()
				}
				return nil, nil
			}
			return nil, err
		}

		switch m.cfg.Start {
		case StartSpeech:
			if m.vad.IsSpeech(f) {
				return []audio.Frame{f}, nil
			}
		case StartWakeWord:
			if m.heardWake(waitCtx, f) {
				return nil, nil
			}
		}
	}
}

// heardWake feeds f to the wake recogniser and reports a detection. A
// trigger or shutdown cancels ctx and abandons a pending wake transcription.
func (m *Machine) heardWake(ctx context.Context, f audio.Frame) bool {
	res, err := m.wake.Feed(ctx, f)
	if err != nil {
		if ctx.Err() != nil {
			m.wake.Reset()
			return false
		}
		m.log.Warn("turn: wake recogniser failed", "err", err)
		if m.metrics != nil {
			m.metrics.RecordProviderError(ctx, "wake", "stt")
		}
		m.wake.Reset()
		return false
	}

	switch res.Kind {
	case stt.ResultPartial:
		if m.cfg.Captions {
			m.show(display.Scene{Expression: display.Neutral, Caption: res.Text})
		}
		if !m.matcher.Partials() || !m.matcher.Match(res.Text) {
			return false
		}
	case stt.ResultFinal:
		if !m.matcher.Match(res.Text) {
			if m.cfg.Captions {
				m.show(display.Scene{Expression: display.Neutral})
			}
			return false
		}
	default:
		return false
	}

	m.log.Info("turn: wake token heard", "text", res.Text, "final", res.IsFinal())
	if m.metrics != nil {
		m.metrics.WakeDetections.Add(ctx, 1)
	}
	m.wake.Reset()
	return true
}

// record runs RECORDING until the recorder stops. When the queue closes
// mid-recording the partial utterance is returned with [StopSourceClosed]
// along with the error; a recording that saw no frame at all, or one cut
// short by cancellation, returns [StopNone].
func (m *Machine) record(ctx context.Context, rec *Recorder, seed []audio.Frame) ([]audio.Frame, StopReason, error) {
	m.setState(ctx, Recording)
	m.show(display.Scene{Expression: display.Listening})
	rec.Reset()

	for _, f := range seed {
		if done, reason := rec.Push(f, true); done {
			return rec.Take(), reason, nil
		}
	}
	silenceMode := m.cfg.Recorder.Mode == SilenceTimeout
	for {
		f, err := m.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, audio.ErrQueueClosed) && rec.Elapsed() > 0 {
				return rec.Take(), StopSourceClosed, err
			}
			m.log.Debug("turn: recording abandoned", "frames", rec.Len(), "err", err)
			rec.Reset()
			return nil, StopNone, err
		}
		speech := silenceMode && m.vad.IsSpeech(f)
		if done, reason := rec.Push(f, speech); done {
			return rec.Take(), reason, nil
		}
	}
}

// process runs PROCESSING for one utterance. It always leaves the machine
// ready for IDLE; nothing that fails in here is returned.
func (m *Machine) process(ctx context.Context, utterance []audio.Frame, stop StopReason) {
	m.setState(ctx, Processing)
	m.show(display.Scene{Expression: display.Thinking})

	c := Cycle{ID: uuid.NewString(), Started: time.Now(), Stop: stop, Frames: len(utterance)}
	ctx, span := observe.StartSpan(ctx, "turn.cycle", trace.WithAttributes(
		attribute.String("cycle.id", c.ID),
		attribute.String("cycle.stop", stop.String()),
		attribute.Int("cycle.frames", len(utterance)),
	))
	defer span.End()
	log := observe.WithTrace(ctx, m.log).With("cycle", c.ID)

	if m.metrics != nil {
		var d time.Duration
		for _, f := range utterance {
			d += f.Duration()
		}
		m.metrics.UtteranceDuration.Record(ctx, d.Seconds())
	}
	if m.sink != nil {
		if path, err := m.sink.Save(c.ID, utterance); err != nil {
			log.Warn("turn: save utterance", "err", err)
		} else {
			log.Debug("turn: utterance saved", "path", path)
		}
	}

	text, err := m.transcribe(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug("turn: cycle cancelled during transcription")
			return
		}
		log.Warn("turn: recognizer failed, continuing with empty text", "err", err)
		observe.Fail(span, err)
		c.RecognizerErr = err
		text = ""
	}
	c.Text = text

	c.Reply = m.dispatcher.Reply(text)
	log.Info("turn: reply",
		"stop", stop,
		"frames", len(utterance),
		"text", text,
		"trigger", c.Reply.Trigger,
		"reply", c.Reply.Text,
	)

	m.show(display.Scene{Expression: display.Speaking, Caption: c.Reply.Text})
	if m.speaker != nil {
		if err := m.speaker.Speak(ctx, c.Reply.Text); err != nil {
			if ctx.Err() != nil {
				log.Debug("turn: cycle cancelled while speaking")
				return
			}
			log.Warn("turn: speak failed", "err", err)
			observe.Fail(span, err)
			c.SpeakErr = err
		}
	}

	c.Took = time.Since(c.Started)
	if m.metrics != nil {
		m.metrics.CycleDuration.Record(ctx, c.Took.Seconds())
		m.metrics.RecordCycle(ctx, c.Reply.Trigger, stop.String())
	}
	m.cycles.Add(1)
	m.last.Store(&c)
	if m.onCycle != nil {
		m.onCycle(c)
	}
}

func (m *Machine) transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	if m.cfg.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ProcessingTimeout)
		defer cancel()
	}
	start := time.Now()
	text, err := m.transcriber.Transcribe(ctx, utterance)
	if m.metrics != nil {
		m.metrics.RecognizerDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			m.metrics.RecordProviderError(ctx, m.recognizerName, "stt")
		}
		m.metrics.RecordProviderRequest(ctx, m.recognizerName, "stt", status)
	}
	return text, err
}

func (m *Machine) setState(ctx context.Context, s State) {
	if prev := State(m.state.Swap(int32(s))); prev != s {
		m.log.Debug("turn: state", "from", prev, "to", s)
	}
	if m.metrics != nil {
		m.metrics.RecordState(ctx, int64(s))
	}
}

func (m *Machine) show(s display.Scene) {
	if m.display != nil {
		m.display.Show(s)
	}
}
