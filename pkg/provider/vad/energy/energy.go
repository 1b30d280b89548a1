// Package energy implements an RMS-threshold voice activity detector.
//
// A frame is speech iff its root-mean-square amplitude is at or above the
// configured threshold on the 16-bit PCM scale. The boundary is inclusive:
// RMS == threshold is speech. The default of 500 is roughly 1.5% of full
// scale; lower values trigger on background noise, higher values miss quiet
// speakers.
package energy

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/vad"
)

// DefaultThreshold is the RMS level used when none is configured.
const DefaultThreshold = 500.0

var _ vad.Detector = (*Detector)(nil)

// Detector is an RMS energy detector whose threshold can be retuned at
// runtime without locking.
type Detector struct {
	threshold atomic.Uint64 // math.Float64bits
}

// New returns a Detector with the given threshold.
func New(threshold float64) (*Detector, error) {
	d := &Detector{}
	if err := d.SetThreshold(threshold); err != nil {
		return nil, err
	}
	return d, nil
}

// IsSpeech implements [vad.Detector].
func (d *Detector) IsSpeech(f audio.Frame) bool {
	return f.RMS() >= d.Threshold()
}

// Level returns the RMS of f. Exposed so callers can log or chart levels
// against the threshold.
func (d *Detector) Level(f audio.Frame) float64 {
	return f.RMS()
}

// Threshold returns the current threshold.
func (d *Detector) Threshold() float64 {
	return math.Float64frombits(d.threshold.Load())
}

// SetThreshold replaces the threshold. It rejects negative and non-finite
// values.
func (d *Detector) SetThreshold(t float64) error {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("energy: invalid threshold %v", t)
	}
	d.threshold.Store(math.Float64bits(t))
	return nil
}
