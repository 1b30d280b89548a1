// Package miniaudio implements [audio.Source] and [audio.Player] on top of
// the miniaudio C library via github.com/gen2brain/malgo.
//
// The capture device is opened in mono 16-bit signed mode at the configured
// sample rate, so no conversion happens on the capture path. Driver periods
// are re-sliced into fixed-size frames by an [audio.Framer].
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/gen2brain/malgo"
)

const (
	defaultSampleRate = 16000
	defaultFrameSize  = 1024
)

// ErrDeviceStopped is returned by [Capture.Run] when the driver stops the
// device without the context being cancelled (unplugged microphone, server
// restart, ...).
var ErrDeviceStopped = errors.New("miniaudio: capture device stopped unexpectedly")

var _ audio.Source = (*Capture)(nil)

// Capture records from the default input device.
type Capture struct {
	sampleRate int
	frameSize  int
}

// CaptureOption is a functional option for configuring a Capture.
type CaptureOption func(*Capture)

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) CaptureOption {
	return func(c *Capture) { c.sampleRate = rate }
}

// WithFrameSize sets the number of samples per emitted frame. Defaults to
// 1024.
func WithFrameSize(n int) CaptureOption {
	return func(c *Capture) { c.frameSize = n }
}

// NewCapture returns a Capture for the default input device. The device is
// not opened until Run is called.
func NewCapture(opts ...CaptureOption) *Capture {
	c := &Capture{
		sampleRate: defaultSampleRate,
		frameSize:  defaultFrameSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run implements [audio.Source]. It owns the device for its whole duration
// and releases it before returning.
func (c *Capture) Run(ctx context.Context, sink func(audio.Frame)) error {
	mctx, err := initContext()
	if err != nil {
		return err
	}
	defer freeContext(mctx)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.sampleRate)
	cfg.Alsa.NoMMap = 1

	framer := audio.NewFramer(c.frameSize, c.sampleRate)
	stopped := make(chan struct{})
	var stopOnce sync.Once

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, framecount uint32) {
			n := min(int(framecount)*2, len(in))
			samples, err := audio.DecodePCM(in[:n])
			if err != nil {
				return
			}
			framer.Write(samples, sink)
		},
		Stop: func() {
			stopOnce.Do(func() { close(stopped) })
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("miniaudio: start capture device: %w", err)
	}
	slog.Info("capture started",
		"sample_rate", c.sampleRate,
		"frame_size", c.frameSize,
	)

	select {
	case <-ctx.Done():
		_ = dev.Stop()
		slog.Info("capture stopped")
		return nil
	case <-stopped:
		return ErrDeviceStopped
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	return mctx, nil
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}
