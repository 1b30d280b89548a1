// Package audio defines the frame type and the capture/playback abstractions
// shared by every stage of the assistant.
//
// The data path is deliberately simple:
//
//   - A [Source] runs the capture device and hands each fixed-size [Frame] to
//     a sink callback. The callback runs on the capture goroutine and must
//     never block.
//   - The sink pushes frames into a [Queue], a FIFO that drops its oldest
//     frame instead of blocking when a bound is configured.
//   - A single consumer pops frames in capture order.
//
// Playback is the reverse direction: a [Player] blocks until a PCM buffer has
// been rendered by the output device.
//
// Concrete backends live in sub-packages (audio/miniaudio for real devices,
// audio/wavfile for file replay and debug recordings, audio/mock for tests).
package audio
