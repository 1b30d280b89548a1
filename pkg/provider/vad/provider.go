// Package vad defines frame-level Voice Activity Detection.
//
// A [Detector] classifies a single [audio.Frame] as speech or silence. The
// decision is stateless per frame: any smoothing across frames (silence
// counters, hangover) belongs to the caller, which in this repository is the
// turn-taking state machine.
//
// Implementations must be safe for concurrent use; detectors are read by the
// capture consumer while configuration reloads may retune them.
package vad

import "github.com/MrWong99/iva/pkg/audio"

// Detector decides whether one frame contains speech.
type Detector interface {
	// IsSpeech reports whether f contains speech. It has no side effects and
	// must return quickly.
	IsSpeech(f audio.Frame) bool
}

// DetectorFunc adapts an ordinary function to the [Detector] interface.
type DetectorFunc func(f audio.Frame) bool

// IsSpeech calls fn(f).
func (fn DetectorFunc) IsSpeech(f audio.Frame) bool { return fn(f) }

// Always is a detector that classifies every frame as speech. It is used by
// recording policies that ignore voice activity.
var Always Detector = DetectorFunc(func(audio.Frame) bool { return true })
