package tts_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/iva/pkg/provider/tts"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "whitespace", in: "  \n ", want: nil},
		{name: "single without punctuation", in: "Agora são 10:42", want: []string{"Agora são 10:42"}},
		{name: "two sentences", in: "Sim, estou aqui! Como posso ajudar?", want: []string{"Sim, estou aqui!", "Como posso ajudar?"}},
		{name: "decimal stays intact", in: "Pi é 3.14 aproximadamente.", want: []string{"Pi é 3.14 aproximadamente."}},
		{name: "trailing fragment", in: "Olá. tudo bem", want: []string{"Olá.", "tudo bem"}},
		{name: "repeated punctuation", in: "Oi! ! Tchau.", want: []string{"Oi!", "!", "Tchau."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tts.SplitSentences(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSpeechDuration(t *testing.T) {
	t.Parallel()
	sp := tts.Speech{Samples: make([]int16, 8000), SampleRate: 16000}
	if got := sp.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", got)
	}
	if (tts.Speech{}).Duration() != 0 || !(tts.Speech{}).Empty() {
		t.Error("zero Speech should be empty with zero duration")
	}
}
