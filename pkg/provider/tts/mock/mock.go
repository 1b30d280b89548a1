// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Speech: tts.Speech{Samples: make([]int16, 160), SampleRate: 16000}}
//	sp, _ := p.Synthesize(ctx, "olá", voice)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/iva/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// Speech is returned by every successful Synthesize call.
	Speech tts.Speech

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// Delay, if positive, blocks Synthesize for this long or until ctx is
	// done.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Speech or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Speech, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	delay, sp, err := p.Delay, p.Speech, p.SynthesizeErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return tts.Speech{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Speech{}, err
	}
	return sp, nil
}

// ListVoices returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a snapshot of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
