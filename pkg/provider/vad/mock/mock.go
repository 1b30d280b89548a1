// Package mock provides a scriptable [vad.Detector] for tests.
//
// Decisions are taken from Script in order; once the script is exhausted
// Default is returned. Func, when set, overrides both.
//
// Example:
//
//	det := &mock.Detector{Script: []bool{false, true, true}, Default: false}
package mock

import (
	"sync"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/vad"
)

// Detector is a mock implementation of [vad.Detector].
type Detector struct {
	mu sync.Mutex

	// Func, if non-nil, decides every frame.
	Func func(audio.Frame) bool

	// Script holds successive decisions consumed one per call.
	Script []bool

	// Default is returned once Script is exhausted.
	Default bool

	// Frames records every frame passed to IsSpeech.
	Frames []audio.Frame
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(f audio.Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, f)
	if d.Func != nil {
		return d.Func(f)
	}
	if len(d.Script) > 0 {
		v := d.Script[0]
		d.Script = d.Script[1:]
		return v
	}
	return d.Default
}

// CallCount returns how many frames have been classified.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Frames)
}

var _ vad.Detector = (*Detector)(nil)
