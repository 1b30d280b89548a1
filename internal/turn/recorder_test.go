package turn_test

import (
	"testing"

	"github.com/MrWong99/iva/internal/turn"
	"github.com/MrWong99/iva/pkg/audio"
)

// pushAll feeds a speech pattern and returns the index of the frame that
// completed the recording, or -1.
func pushAll(r *turn.Recorder, pattern []bool) (int, turn.StopReason) {
	for i, speech := range pattern {
		if done, reason := r.Push(audio.Frame{Seq: uint64(i)}, speech); done {
			return i, reason
		}
	}
	return -1, turn.StopNone
}

func pattern(parts ...any) []bool {
	var out []bool
	for i := 0; i < len(parts); i += 2 {
		n := parts[i].(int)
		speech := parts[i+1].(bool)
		for range n {
			out = append(out, speech)
		}
	}
	return out
}

func TestRecorder_FixedDurationIgnoresVAD(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pattern []bool
	}{
		{name: "all silence", pattern: pattern(100, false)},
		{name: "all speech", pattern: pattern(100, true)},
		{name: "mixed", pattern: pattern(10, true, 50, false, 40, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.FixedDuration, FixedFrames: 78})
			idx, reason := pushAll(r, tt.pattern)
			if idx != 77 || reason != turn.StopFixed {
				t.Fatalf("stopped at %d (%v), want 77 (fixed)", idx, reason)
			}
			if r.Len() != 78 {
				t.Errorf("Len() = %d, want 78", r.Len())
			}
		})
	}
}

func TestRecorder_SilenceStopsAtExactlyMax(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		pattern   []bool
		wantIdx   int
		wantLen   int
		wantFirst uint64
	}{
		{
			name:      "long speech then silence",
			pattern:   pattern(200, true, 60, false),
			wantIdx:   200 + 46 - 1,
			wantLen:   200 + 46,
			wantFirst: 0,
		},
		{
			name:      "pause one frame short of the limit",
			pattern:   pattern(5, true, 45, false, 1, true, 60, false),
			wantIdx:   5 + 45 + 1 + 46 - 1,
			wantLen:   5 + 45 + 1 + 46,
			wantFirst: 0,
		},
		{
			name:      "leading silence counts but is not kept",
			pattern:   pattern(40, false, 40, true, 60, false),
			wantIdx:   40 + 40 + 46 - 1,
			wantLen:   40 + 46,
			wantFirst: 40,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.SilenceTimeout, MaxSilenceFrames: 46})
			idx, reason := pushAll(r, tt.pattern)
			if idx != tt.wantIdx || reason != turn.StopSilence {
				t.Fatalf("stopped at %d (%v), want %d (silence)", idx, reason, tt.wantIdx)
			}
			if r.SilenceRun() != 46 {
				t.Errorf("SilenceRun() = %d, want 46", r.SilenceRun())
			}
			got := r.Take()
			if len(got) != tt.wantLen {
				t.Fatalf("utterance = %d frames, want %d", len(got), tt.wantLen)
			}
			if got[0].Seq != tt.wantFirst {
				t.Errorf("first frame seq = %d, want %d", got[0].Seq, tt.wantFirst)
			}
		})
	}
}

func TestRecorder_HesitationYieldsEmptyUtterance(t *testing.T) {
	t.Parallel()
	r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.SilenceTimeout, MaxSilenceFrames: 46})
	idx, reason := pushAll(r, pattern(46, false))
	if idx != 45 || reason != turn.StopSilence {
		t.Fatalf("stopped at %d (%v), want 45 (silence)", idx, reason)
	}
	if r.HeardSpeech() {
		t.Error("HeardSpeech() = true for a silent recording")
	}
	if got := r.Take(); len(got) != 0 {
		t.Errorf("utterance = %d frames, want 0", len(got))
	}
}

func TestRecorder_KeepLeadingSilence(t *testing.T) {
	t.Parallel()
	r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.SilenceTimeout, MaxSilenceFrames: 10, KeepLeadingSilence: true})
	pushAll(r, pattern(3, false, 2, true, 10, false))
	if got := r.Take(); len(got) != 15 {
		t.Errorf("utterance = %d frames, want 15", len(got))
	}
}

func TestRecorder_MaxFramesCap(t *testing.T) {
	t.Parallel()
	r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.SilenceTimeout, MaxSilenceFrames: 46, MaxFrames: 100})
	idx, reason := pushAll(r, pattern(500, true))
	if idx != 99 || reason != turn.StopMaxRecording {
		t.Fatalf("stopped at %d (%v), want 99 (max recording)", idx, reason)
	}
}

func TestRecorder_TakeResets(t *testing.T) {
	t.Parallel()
	r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.SilenceTimeout, MaxSilenceFrames: 3})
	pushAll(r, pattern(2, true, 1, false))
	if r.Len() != 3 || r.Elapsed() != 3 {
		t.Fatalf("Len=%d Elapsed=%d, want 3 3", r.Len(), r.Elapsed())
	}
	r.Take()
	if r.Len() != 0 || r.Elapsed() != 0 || r.SilenceRun() != 0 || r.HeardSpeech() {
		t.Errorf("recorder not reset: Len=%d Elapsed=%d SilenceRun=%d", r.Len(), r.Elapsed(), r.SilenceRun())
	}
}

func TestRecorder_NonPositiveLimits(t *testing.T) {
	t.Parallel()
	r := turn.NewRecorder(turn.RecorderConfig{Mode: turn.FixedDuration})
	if done, _ := r.Push(audio.Frame{}, false); !done {
		t.Error("a zero fixed length should record a single frame")
	}
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()
	checks := map[string]string{
		turn.Idle.String():             "idle",
		turn.Processing.String():       "processing",
		turn.FixedDuration.String():    "fixed_duration",
		turn.StartTrigger.String():     "trigger",
		turn.StopSilence.String():      "silence",
		turn.StopSourceClosed.String(): "source_closed",
	}
	for got, want := range checks {
		if got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
