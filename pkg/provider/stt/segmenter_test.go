package stt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/stt/mock"
	"github.com/MrWong99/iva/pkg/provider/vad"
)

// 1600 samples at 16 kHz = 100 ms per frame.
func speechFrame() audio.Frame {
	s := make([]int16, 1600)
	for i := range s {
		s[i] = 1000
	}
	return audio.Frame{Samples: s, SampleRate: 16000}
}

func silentFrame() audio.Frame {
	return audio.Frame{Samples: make([]int16, 1600), SampleRate: 16000}
}

var loud = vad.DetectorFunc(func(f audio.Frame) bool { return f.RMS() > 0 })

func TestSegmenter_IgnoresLeadingSilence(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Text: "ignored"}
	s := stt.NewSegmenter(tr, loud)
	for range 50 {
		r, err := s.Feed(context.Background(), silentFrame())
		if err != nil || r.Kind != stt.ResultNone {
			t.Fatalf("Feed(silence) = (%v, %v)", r, err)
		}
	}
	if n := len(tr.Calls()); n != 0 {
		t.Fatalf("Transcribe called %d times on pure silence", n)
	}
}

func TestSegmenter_FlushesAfterPause(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Text: "ei iva"}
	s := stt.NewSegmenter(tr, loud)

	for range 3 {
		if r, _ := s.Feed(context.Background(), speechFrame()); r.Kind != stt.ResultNone {
			t.Fatalf("result during speech: %v", r)
		}
	}
	// 500 ms pause = 5 silent frames; the fifth closes the segment.
	for i := range 4 {
		if r, _ := s.Feed(context.Background(), silentFrame()); r.Kind != stt.ResultNone {
			t.Fatalf("early flush at silent frame %d", i)
		}
	}
	r, err := s.Feed(context.Background(), silentFrame())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !r.IsFinal() || r.Text != "ei iva" {
		t.Fatalf("result = %+v, want final %q", r, "ei iva")
	}
	calls := tr.Calls()
	if len(calls) != 1 || len(calls[0].Utterance) != 8 {
		t.Fatalf("calls = %d, frames = %d, want 1 call with 8 frames", len(calls), len(calls[0].Utterance))
	}
}

func TestSegmenter_MaxLengthForcesFlush(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Text: "long"}
	s := stt.NewSegmenter(tr, loud, stt.WithSegmentMax(300*time.Millisecond))
	var got stt.Result
	for range 3 {
		got, _ = s.Feed(context.Background(), speechFrame())
	}
	if !got.IsFinal() {
		t.Fatalf("expected forced final after 300 ms, got %+v", got)
	}
}

func TestSegmenter_EmptyTextIsNone(t *testing.T) {
	t.Parallel()

	s := stt.NewSegmenter(&mock.Transcriber{}, loud, stt.WithSegmentSilence(100*time.Millisecond))
	s.Feed(context.Background(), speechFrame())
	r, err := s.Feed(context.Background(), silentFrame())
	if err != nil || r.Kind != stt.ResultNone {
		t.Fatalf("Feed = (%+v, %v), want none", r, err)
	}
}

func TestSegmenter_PropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := stt.NewSegmenter(&mock.Transcriber{Err: boom}, loud, stt.WithSegmentSilence(100*time.Millisecond))
	s.Feed(context.Background(), speechFrame())
	if _, err := s.Feed(context.Background(), silentFrame()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	// State is reset even after a failure.
	if r, err := s.Feed(context.Background(), silentFrame()); err != nil || r.Kind != stt.ResultNone {
		t.Fatalf("after error Feed = (%+v, %v)", r, err)
	}
}

func TestSegmenter_Reset(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Text: "x"}
	s := stt.NewSegmenter(tr, loud, stt.WithSegmentSilence(100*time.Millisecond))
	s.Feed(context.Background(), speechFrame())
	s.Reset()
	if r, _ := s.Feed(context.Background(), silentFrame()); r.Kind != stt.ResultNone {
		t.Fatalf("Reset did not clear buffered speech: %+v", r)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTranscriberFunc(t *testing.T) {
	t.Parallel()

	var fn stt.Transcriber = stt.TranscriberFunc(func(_ context.Context, u []audio.Frame) (string, error) {
		if len(u) == 0 {
			return "", nil
		}
		return "ok", nil
	})
	if got, _ := fn.Transcribe(context.Background(), nil); got != "" {
		t.Errorf("empty utterance = %q", got)
	}
}

func TestResultKindString(t *testing.T) {
	t.Parallel()

	for k, want := range map[stt.ResultKind]string{
		stt.ResultNone:    "none",
		stt.ResultPartial: "partial",
		stt.ResultFinal:   "final",
		stt.ResultKind(9): "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}

func TestSegmenter_TranscriptionFollowsFeedContext(t *testing.T) {
	t.Parallel()

	tr := &mock.Transcriber{Delay: time.Minute}
	s := stt.NewSegmenter(tr, loud,
		stt.WithSegmentSilence(100*time.Millisecond),
		stt.WithSegmentTimeout(time.Hour),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.Feed(ctx, speechFrame())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := s.Feed(ctx, silentFrame())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Errorf("Feed returned %v after cancellation", took)
	}
}
