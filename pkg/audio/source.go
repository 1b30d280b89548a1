package audio

import "context"

// Source is a capture device delivering fixed-size frames.
//
// Run opens the device and calls sink for every frame, in capture order,
// until ctx is cancelled or the device stops. sink runs on the capture
// goroutine and must return quickly; it must never block.
//
// Run returns nil when ctx is cancelled or a finite source (such as a file)
// is exhausted, and a non-nil error when the device fails. A device failure
// is unrecoverable for the caller.
type Source interface {
	Run(ctx context.Context, sink func(Frame)) error
}

// Player renders PCM audio on an output device.
//
// Play blocks until all samples have been rendered or ctx is cancelled.
// samples are mono 16-bit PCM at sampleRate; implementations resample when
// the device runs at a different rate.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}
