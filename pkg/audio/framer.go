package audio

import "time"

// Framer slices an arbitrary-length sample stream into fixed-size frames.
// Capture drivers deliver periods whose length depends on the backend; the
// framer guarantees every emitted frame has exactly FrameSize samples and a
// monotonically increasing Seq.
//
// A Framer is not safe for concurrent use; each capture goroutine owns one.
type Framer struct {
	frameSize  int
	sampleRate int
	pending    []int16
	seq        uint64
}

// NewFramer returns a framer emitting frames of frameSize samples at
// sampleRate.
func NewFramer(frameSize, sampleRate int) *Framer {
	return &Framer{
		frameSize:  frameSize,
		sampleRate: sampleRate,
		pending:    make([]int16, 0, frameSize),
	}
}

// Write appends samples and calls emit once for every completed frame.
// Each emitted frame owns a fresh sample slice.
func (f *Framer) Write(samples []int16, emit func(Frame)) {
	for len(samples) > 0 {
		n := min(f.frameSize-len(f.pending), len(samples))
		f.pending = append(f.pending, samples[:n]...)
		samples = samples[n:]
		if len(f.pending) == f.frameSize {
			f.emit(emit)
		}
	}
}

// Flush emits the buffered remainder as a final frame padded with silence.
// It does nothing when no samples are pending.
func (f *Framer) Flush(emit func(Frame)) {
	if len(f.pending) == 0 {
		return
	}
	for len(f.pending) < f.frameSize {
		f.pending = append(f.pending, 0)
	}
	f.emit(emit)
}

func (f *Framer) emit(emit func(Frame)) {
	samples := make([]int16, f.frameSize)
	copy(samples, f.pending)
	f.pending = f.pending[:0]
	fr := Frame{
		Samples:    samples,
		SampleRate: f.sampleRate,
		Seq:        f.seq,
	}
	if f.sampleRate > 0 {
		fr.Timestamp = time.Duration(int64(f.seq)*int64(f.frameSize)) * time.Second / time.Duration(f.sampleRate)
	}
	f.seq++
	emit(fr)
}
