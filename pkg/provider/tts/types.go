package tts

import (
	"strings"
	"time"
	"unicode"
)

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means
	// default.
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Speech is one synthesised reply.
type Speech struct {
	// Samples is 16-bit mono PCM.
	Samples []int16

	// SampleRate is the rate of Samples in Hz.
	SampleRate int
}

// Empty reports whether s carries no audio.
func (s Speech) Empty() bool { return len(s.Samples) == 0 }

// Duration returns the playback length of s.
func (s Speech) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// SplitSentences cuts text at sentence-ending punctuation ('.', '!', '?')
// that is followed by whitespace or the end of the text. Abbreviations such
// as "Dr." or decimals such as "3.14" stay intact when no space follows.
// Empty sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	rest := text
	for {
		idx := sentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
