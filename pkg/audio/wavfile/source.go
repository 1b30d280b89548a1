package wavfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
)

var _ audio.Source = (*Source)(nil)

// Source replays a WAV file as if it were a microphone. The file is
// converted to mono at the configured sample rate and sliced into fixed
// frames; the last partial frame is padded with silence.
type Source struct {
	path       string
	sampleRate int
	frameSize  int
	realtime   bool
}

// SourceOption is a functional option for configuring a Source.
type SourceOption func(*Source)

// WithSampleRate sets the output sample rate. Defaults to 16000.
func WithSampleRate(rate int) SourceOption {
	return func(s *Source) { s.sampleRate = rate }
}

// WithFrameSize sets the samples per frame. Defaults to 1024.
func WithFrameSize(n int) SourceOption {
	return func(s *Source) { s.frameSize = n }
}

// WithRealtime paces delivery at one frame per frame duration instead of
// delivering the whole file at once.
func WithRealtime(on bool) SourceOption {
	return func(s *Source) { s.realtime = on }
}

// NewSource returns a Source replaying path.
func NewSource(path string, opts ...SourceOption) *Source {
	s := &Source{path: path, sampleRate: 16000, frameSize: 1024}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run implements [audio.Source]. It returns nil once the file is exhausted.
func (s *Source) Run(ctx context.Context, sink func(audio.Frame)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("wavfile: open %q: %w", s.path, err)
	}
	defer f.Close()

	samples, rate, err := Decode(f)
	if err != nil {
		return fmt.Errorf("wavfile: %q: %w", s.path, err)
	}
	samples = audio.Resample(samples, rate, s.sampleRate)

	var frames []audio.Frame
	framer := audio.NewFramer(s.frameSize, s.sampleRate)
	collect := func(fr audio.Frame) { frames = append(frames, fr) }
	framer.Write(samples, collect)
	framer.Flush(collect)

	slog.Info("replaying wav file",
		"path", s.path,
		"source_rate", rate,
		"frames", len(frames),
		"realtime", s.realtime,
	)

	var tick <-chan time.Time
	if s.realtime && len(frames) > 0 {
		t := time.NewTicker(frames[0].Duration())
		defer t.Stop()
		tick = t.C
	}
	for _, fr := range frames {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		sink(fr)
	}
	return nil
}
