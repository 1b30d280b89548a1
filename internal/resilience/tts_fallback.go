package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/iva/pkg/provider/tts"
)

// SpeechFallback is a [tts.Provider] that fails over across several
// synthesisers. The voice profile is passed to each unchanged, so a
// fallback must understand the primary's voice IDs or ignore them.
type SpeechFallback struct {
	*Chain[tts.Provider]
}

var (
	_ tts.Provider    = (*SpeechFallback)(nil)
	_ tts.VoiceLister = (*SpeechFallback)(nil)
)

// NewSpeechFallback returns a fallback whose preferred synthesiser is
// primary.
func NewSpeechFallback(primary tts.Provider, name string, cfg FallbackConfig) *SpeechFallback {
	return &SpeechFallback{Chain: NewChain(primary, name, cfg)}
}

// Synthesize implements [tts.Provider].
func (f *SpeechFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Speech, error) {
	return Call(ctx, f.Chain, func(p tts.Provider) (tts.Speech, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the catalogue of the first backend that has one and
// answers. Backends without a catalogue are skipped.
func (f *SpeechFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	var errs []error
	for _, l := range f.links {
		vl, ok := l.value.(tts.VoiceLister)
		if !ok {
			continue
		}
		var voices []tts.VoiceProfile
		err := l.breaker.Execute(ctx, func() error {
			var err error
			voices, err = vl.ListVoices(ctx)
			return err
		})
		if err == nil {
			return voices, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	if len(errs) == 0 {
		return nil, errors.New("resilience: no backend can list voices")
	}
	return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
