package resilience

import (
	"context"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
)

// TranscriberFallback is an [stt.Transcriber] that fails over across
// several recognisers.
type TranscriberFallback struct {
	*Chain[stt.Transcriber]
}

var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback returns a fallback whose preferred recogniser is
// primary.
func NewTranscriberFallback(primary stt.Transcriber, name string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{Chain: NewChain(primary, name, cfg)}
}

// Transcribe implements [stt.Transcriber]. Every backend sees the same
// frames.
func (f *TranscriberFallback) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	return Call(ctx, f.Chain, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, utterance)
	})
}
