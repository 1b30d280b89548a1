// Package stt defines the two recogniser contracts used by the assistant.
//
// A [Transcriber] is a batch recogniser: it receives a whole utterance and
// returns its text. It must accept an empty or near-empty utterance and
// return an empty string rather than fail.
//
// A [StreamRecognizer] is fed one frame at a time. Each call may yield
// nothing, an unstable partial hypothesis, or a final transcript for an
// utterance boundary the recogniser detected on its own. Only finals are
// authoritative; partials are suitable for live captions.
//
// Backends live in sub-packages (whisper, vosk, openai, deepgram). The
// [Segmenter] adapter turns any Transcriber into a StreamRecognizer by
// cutting the stream at pauses.
package stt

import (
	"context"

	"github.com/MrWong99/iva/pkg/audio"
)

// Transcriber converts one utterance into text.
//
// Implementations must be safe for concurrent use.
type Transcriber interface {
	// Transcribe returns the text spoken in utterance. The frames are
	// consumed: callers must not modify them afterwards. An empty utterance
	// yields "" and a nil error.
	Transcribe(ctx context.Context, utterance []audio.Frame) (string, error)
}

// TranscriberFunc adapts an ordinary function to the [Transcriber]
// interface.
type TranscriberFunc func(ctx context.Context, utterance []audio.Frame) (string, error)

// Transcribe calls fn(ctx, utterance).
func (fn TranscriberFunc) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	return fn(ctx, utterance)
}

// StreamRecognizer consumes a frame stream and reports partial and final
// results as they become available.
//
// A StreamRecognizer is owned by one goroutine; it is not safe for
// concurrent use.
type StreamRecognizer interface {
	// Feed delivers the next frame. The returned result is [ResultNone] when
	// the recogniser has nothing new to report. Any work Feed blocks on is
	// abandoned once ctx is done.
	Feed(ctx context.Context, f audio.Frame) (Result, error)

	// Reset discards any buffered audio and hypothesis so the next Feed
	// starts a fresh utterance.
	Reset()

	// Close releases all resources. Calling Close more than once is safe.
	Close() error
}
