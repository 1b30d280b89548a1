package miniaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/gen2brain/malgo"
)

// drainTail is how long Play keeps the device open after the last sample
// was handed to the driver, so the device buffer can empty.
const drainTail = 120 * time.Millisecond

var _ audio.Player = (*Player)(nil)

// Player renders mono PCM on the default output device. Calls to Play are
// serialised; a device is opened per call and closed once playback ends.
type Player struct {
	mu         sync.Mutex
	mctx       *malgo.AllocatedContext
	sampleRate int
	channels   int
}

// PlayerOption is a functional option for configuring a Player.
type PlayerOption func(*Player)

// WithPlaybackRate sets the device sample rate. Input at other rates is
// resampled. Defaults to 22050, the native rate of most TTS voices.
func WithPlaybackRate(rate int) PlayerOption {
	return func(p *Player) { p.sampleRate = rate }
}

// WithPlaybackChannels sets the device channel count. Mono input is
// duplicated across channels. Defaults to 1.
func WithPlaybackChannels(n int) PlayerOption {
	return func(p *Player) { p.channels = n }
}

// NewPlayer initialises the audio backend. Call Close to release it.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	p := &Player{sampleRate: 22050, channels: 1}
	for _, o := range opts {
		o(p)
	}
	mctx, err := initContext()
	if err != nil {
		return nil, err
	}
	p.mctx = mctx
	return p, nil
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pcm := audio.EncodePCM(audio.Upmix(audio.Resample(samples, sampleRate, p.sampleRate), p.channels))

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(p.channels)
	cfg.SampleRate = uint32(p.sampleRate)
	cfg.Alsa.NoMMap = 1

	var off int
	done := make(chan struct{})
	var doneOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			n := copy(out, pcm[off:])
			off += n
			clear(out[n:])
			if off >= len(pcm) {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	dev, err := malgo.InitDevice(p.mctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("miniaudio: init playback device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("miniaudio: start playback device: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = dev.Stop()
		return ctx.Err()
	case <-done:
	}

	select {
	case <-ctx.Done():
	case <-time.After(drainTail):
	}
	_ = dev.Stop()
	return nil
}

// Close releases the audio backend.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mctx != nil {
		freeContext(p.mctx)
		p.mctx = nil
	}
	return nil
}
