package turn

import "github.com/MrWong99/iva/pkg/audio"

// RecorderConfig parameterises a [Recorder]. Frame counts are derived from
// durations with [audio.FramesFor].
type RecorderConfig struct {
	Mode Mode

	// FixedFrames is the utterance length in FixedDuration mode.
	FixedFrames int

	// MaxSilenceFrames is the silence run that ends a SilenceTimeout
	// recording.
	MaxSilenceFrames int

	// MaxFrames caps a SilenceTimeout recording. Zero disables the cap.
	MaxFrames int

	// KeepLeadingSilence buffers silent frames observed before the first
	// speech frame. They count toward the silence run either way.
	KeepLeadingSilence bool
}

// Recorder accumulates one utterance. It is owned by the machine's
// goroutine and is not safe for concurrent use.
type Recorder struct {
	cfg RecorderConfig

	frames  []audio.Frame
	seen    int
	silence int
	heard   bool
}

// NewRecorder returns an empty Recorder. Non-positive frame limits are
// raised to one frame.
func NewRecorder(cfg RecorderConfig) *Recorder {
	cfg.FixedFrames = max(cfg.FixedFrames, 1)
	cfg.MaxSilenceFrames = max(cfg.MaxSilenceFrames, 1)
	cfg.MaxFrames = max(cfg.MaxFrames, 0)
	return &Recorder{cfg: cfg}
}

// Push adds the next frame. speech is the VAD decision for f and is ignored
// in FixedDuration mode. Push reports whether the recording is complete and
// why.
//
// In SilenceTimeout mode every silent frame extends the silence run and
// every speech frame resets it; silent frames after the first speech frame
// are kept so that natural pauses survive into the utterance.
func (r *Recorder) Push(f audio.Frame, speech bool) (done bool, reason StopReason) {
	r.seen++

	if r.cfg.Mode == FixedDuration {
		r.frames = append(r.frames, f)
		if r.seen >= r.cfg.FixedFrames {
			return true, StopFixed
		}
		return false, StopNone
	}

	if speech {
		r.heard = true
		r.silence = 0
		r.frames = append(r.frames, f)
	} else {
		r.silence++
		if r.heard || r.cfg.KeepLeadingSilence {
			r.frames = append(r.frames, f)
		}
	}

	switch {
	case r.silence >= r.cfg.MaxSilenceFrames:
		return true, StopSilence
	case r.cfg.MaxFrames > 0 && r.seen >= r.cfg.MaxFrames:
		return true, StopMaxRecording
	}
	return false, StopNone
}

// Take hands the buffered utterance to the caller and resets the recorder.
func (r *Recorder) Take() []audio.Frame {
	out := r.frames
	r.Reset()
	return out
}

// Reset discards the buffer and counters.
func (r *Recorder) Reset() {
	r.frames = nil
	r.seen = 0
	r.silence = 0
	r.heard = false
}

// Len returns the number of buffered frames.
func (r *Recorder) Len() int { return len(r.frames) }

// Elapsed returns the number of frames pushed since the last reset.
func (r *Recorder) Elapsed() int { return r.seen }

// SilenceRun returns the current run of consecutive silent frames.
func (r *Recorder) SilenceRun() int { return r.silence }

// HeardSpeech reports whether any speech frame has been pushed.
func (r *Recorder) HeardSpeech() bool { return r.heard }
