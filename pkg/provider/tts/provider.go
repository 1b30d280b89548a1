// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis engine (a Coqui server, the
// ElevenLabs API or a local espeak-ng binary) and turns one reply into a
// block of 16-bit mono PCM that the caller plays back. Playback itself is
// not the provider's concern; see the voice package for the blocking speak
// operation built on top of a Provider and an audio.Player.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns the complete
	// waveform. An empty or whitespace-only text yields an empty [Speech]
	// and a nil error.
	//
	// voice.ID may be empty, in which case the backend's default voice is
	// used. Providers that cannot work without a voice return an error.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Speech, error)
}

// VoiceLister is implemented by providers that can enumerate their voice
// catalogue. It is optional and only used for diagnostics.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
