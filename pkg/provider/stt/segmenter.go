package stt

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/vad"
)

const (
	defaultSegmentSilence = 500 * time.Millisecond
	defaultSegmentMax     = 10 * time.Second
	defaultSegmentTimeout = 30 * time.Second
)

var _ StreamRecognizer = (*Segmenter)(nil)

// Segmenter turns a batch [Transcriber] into a [StreamRecognizer]. Frames
// are buffered from the first speech frame on; once a pause of the
// configured length follows speech, or the buffer reaches its maximum
// length, the buffered audio is transcribed and a final result is returned.
//
// Leading silence is never buffered, so a quiet room never reaches the
// Transcriber.
type Segmenter struct {
	t       Transcriber
	det     vad.Detector
	silence time.Duration
	max     time.Duration
	timeout time.Duration

	buf         []audio.Frame
	hadSpeech   bool
	silentFor   time.Duration
	bufferedFor time.Duration
}

// SegmenterOption is a functional option for configuring a Segmenter.
type SegmenterOption func(*Segmenter)

// WithSegmentSilence sets the pause that closes a segment. Defaults to
// 500 ms.
func WithSegmentSilence(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.silence = d }
}

// WithSegmentMax sets the longest segment before a forced flush. Defaults
// to 10 s.
func WithSegmentMax(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.max = d }
}

// WithSegmentTimeout bounds each Transcribe call within the context given to
// Feed. Defaults to 30 s.
func WithSegmentTimeout(d time.Duration) SegmenterOption {
	return func(s *Segmenter) { s.timeout = d }
}

// NewSegmenter wraps t, using det to find pauses.
func NewSegmenter(t Transcriber, det vad.Detector, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		t:       t,
		det:     det,
		silence: defaultSegmentSilence,
		max:     defaultSegmentMax,
		timeout: defaultSegmentTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Feed implements [StreamRecognizer].
func (s *Segmenter) Feed(ctx context.Context, f audio.Frame) (Result, error) {
	speech := s.det.IsSpeech(f)
	if !speech && !s.hadSpeech {
		return Result{}, nil
	}

	s.buf = append(s.buf, f)
	s.bufferedFor += f.Duration()
	if speech {
		s.hadSpeech = true
		s.silentFor = 0
	} else {
		s.silentFor += f.Duration()
	}

	if s.silentFor < s.silence && (s.max <= 0 || s.bufferedFor < s.max) {
		return Result{}, nil
	}
	return s.flush(ctx)
}

// flush transcribes the buffered segment. The segment is dropped even when
// ctx ends the transcription early.
func (s *Segmenter) flush(ctx context.Context) (Result, error) {
	utterance := s.buf
	s.Reset()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.t.Transcribe(ctx, utterance)
	if err != nil {
		return Result{}, err
	}
	if text == "" {
		return Result{}, nil
	}
	slog.Debug("segment transcribed", "frames", len(utterance), "text", text)
	return Final(text), nil
}

// Reset implements [StreamRecognizer].
func (s *Segmenter) Reset() {
	s.buf = nil
	s.hadSpeech = false
	s.silentFor = 0
	s.bufferedFor = 0
}

// Close implements [StreamRecognizer]. The wrapped Transcriber is not
// closed; it is owned by whoever created it.
func (s *Segmenter) Close() error {
	s.Reset()
	return nil
}
