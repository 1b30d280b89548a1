package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Frame is one fixed-length buffer of consecutively captured mono 16-bit
// signed PCM samples.
//
// Frames are immutable once captured: producers hand ownership to the
// consumer and must not write to Samples afterwards.
type Frame struct {
	// Samples holds the PCM samples in capture order.
	Samples []int16

	// SampleRate in Hz (16000 for the capture path).
	SampleRate int

	// Seq is the zero-based position of the frame in its capture stream.
	Seq uint64

	// Timestamp marks the start of the frame relative to stream start.
	Timestamp time.Duration
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Samples) }

// Duration returns the playback length of the frame. Returns 0 when the
// sample rate is unknown.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// RMS returns the root-mean-square amplitude of the frame on the 16-bit PCM
// scale (0 to 32768). An empty frame has an RMS of 0.
func (f Frame) RMS() float64 {
	return RMS(f.Samples)
}

// Float32 returns the samples normalised to [-1, 1) by dividing by 32768.
func (f Frame) Float32() []float32 {
	return ToFloat32(f.Samples)
}

// Bytes encodes the frame as little-endian 16-bit PCM.
func (f Frame) Bytes() []byte {
	return EncodePCM(f.Samples)
}

// RMS returns the root-mean-square amplitude of samples. Returns 0 for an
// empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ToFloat32 converts 16-bit PCM samples to float32 values in [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// EncodePCM serialises samples as little-endian 16-bit PCM.
func EncodePCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// DecodePCM parses little-endian 16-bit PCM. It returns an error when pcm has
// an odd length, since a trailing half sample cannot be represented.
func DecodePCM(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: decode pcm: odd byte count %d", len(pcm))
	}
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out, nil
}

// Concat flattens frames into one contiguous sample slice, preserving order.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

// FramesFor returns how many whole frames of frameSize samples fit in d at
// sampleRate, i.e. floor(d × sampleRate / frameSize). Five seconds at 16 kHz
// with 1024-sample frames yields 78. Non-positive inputs yield 0.
func FramesFor(d time.Duration, sampleRate, frameSize int) int {
	if d <= 0 || sampleRate <= 0 || frameSize <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / (int64(time.Second) * int64(frameSize)))
}
