package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/iva/pkg/audio"
	sttmock "github.com/MrWong99/iva/pkg/provider/stt/mock"
)

func TestTranscriberFallback(t *testing.T) {
	t.Parallel()
	utterance := []audio.Frame{{Seq: 1}, {Seq: 2}}

	tests := []struct {
		name      string
		primary   *sttmock.Transcriber
		secondary *sttmock.Transcriber
		want      string
		wantErr   bool
		wantCalls [2]int
	}{
		{
			name:      "primary answers",
			primary:   &sttmock.Transcriber{Text: "que horas são"},
			secondary: &sttmock.Transcriber{Text: "unused"},
			want:      "que horas são",
			wantCalls: [2]int{1, 0},
		},
		{
			name:      "secondary takes over",
			primary:   &sttmock.Transcriber{Err: errors.New("model missing")},
			secondary: &sttmock.Transcriber{Text: "qual a data"},
			want:      "qual a data",
			wantCalls: [2]int{1, 1},
		},
		{
			name:      "both fail",
			primary:   &sttmock.Transcriber{Err: errors.New("model missing")},
			secondary: &sttmock.Transcriber{Err: errors.New("quota exceeded")},
			wantErr:   true,
			wantCalls: [2]int{1, 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fb := NewTranscriberFallback(tt.primary, "whisper", FallbackConfig{})
			fb.Add("openai", tt.secondary)

			got, err := fb.Transcribe(context.Background(), utterance)
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Fatalf("err = %v, want ErrAllFailed", err)
				}
			} else if err != nil || got != tt.want {
				t.Fatalf("Transcribe = %q, %v; want %q", got, err, tt.want)
			}
			calls := [2]int{len(tt.primary.Calls()), len(tt.secondary.Calls())}
			if calls != tt.wantCalls {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
			for _, c := range tt.secondary.Calls() {
				if len(c.Utterance) != 2 {
					t.Errorf("fallback saw %d frames, want 2", len(c.Utterance))
				}
			}
		})
	}
}
