package display

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Animator defaults.
const (
	DefaultFrameInterval = 100 * time.Millisecond
	DefaultBlinkInterval = 4 * time.Second
	blinkLength          = 150 * time.Millisecond
	speakToggle          = 200 * time.Millisecond
	glanceToggle         = time.Second
)

// AnimatorOption configures an [Animator].
type AnimatorOption func(*Animator)

// WithFrameInterval sets the redraw period.
func WithFrameInterval(d time.Duration) AnimatorOption {
	return func(a *Animator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithBlinkInterval sets the blink period. Zero or negative disables blinking.
func WithBlinkInterval(d time.Duration) AnimatorOption {
	return func(a *Animator) {
		a.blinkEvery = d
	}
}

// WithLogger sets the logger used for output failures.
func WithLogger(l *slog.Logger) AnimatorOption {
	return func(a *Animator) {
		a.log = l
	}
}

// Animator periodically renders the current [Scene] to a set of outputs.
// Show may be called from any goroutine; Run owns everything else.
type Animator struct {
	scene    atomic.Pointer[Scene]
	renderer *Renderer
	outputs  []Output

	interval   time.Duration
	blinkEvery time.Duration
	log        *slog.Logger

	start time.Time
	seq   uint64
	last  *frameKey
}

type frameKey struct {
	scene Scene
	pose  Pose
}

// NewAnimator returns an Animator drawing with r into outputs. The initial
// scene is [Neutral].
func NewAnimator(r *Renderer, outputs []Output, opts ...AnimatorOption) *Animator {
	a := &Animator{
		renderer:   r,
		outputs:    outputs,
		interval:   DefaultFrameInterval,
		blinkEvery: DefaultBlinkInterval,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.scene.Store(&Scene{Expression: Neutral})
	return a
}

// Show replaces the current scene. It never blocks; the change becomes
// visible on the next tick.
func (a *Animator) Show(s Scene) {
	a.scene.Store(&s)
}

// Scene returns the current scene.
func (a *Animator) Scene() Scene {
	return *a.scene.Load()
}

// Run redraws until ctx is cancelled. Output errors are logged and do not
// stop the loop. Run returns nil on cancellation.
func (a *Animator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.start = time.Now()
	a.step(ctx, a.start)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.step(ctx, now)
		}
	}
}

// step renders the frame for now and sends it to the outputs if it differs
// from the previous one. It reports whether a frame was drawn.
func (a *Animator) step(ctx context.Context, now time.Time) bool {
	s := a.Scene()
	key := frameKey{scene: s, pose: a.pose(s, now.Sub(a.start))}
	if a.last != nil && *a.last == key {
		return false
	}
	a.last = &key
	a.seq++

	left, right := a.renderer.Render(key.scene, key.pose)
	f := Frame{Seq: a.seq, Scene: key.scene, Pose: key.pose, Left: left, Right: right}
	for _, out := range a.outputs {
		if err := out.Draw(ctx, f); err != nil {
			a.log.Warn("display: draw frame", "seq", f.Seq, "err", err)
		}
	}
	return true
}

func (a *Animator) pose(s Scene, elapsed time.Duration) Pose {
	var p Pose
	if a.blinkEvery > 0 && s.Expression != Sleeping && s.Expression != Listening {
		p.Blink = elapsed%a.blinkEvery >= a.blinkEvery-blinkLength
	}
	switch s.Expression {
	case Speaking:
		p.Alt = (elapsed/speakToggle)%2 == 1
	case Thinking:
		p.Alt = (elapsed/glanceToggle)%2 == 1
	}
	return p
}
