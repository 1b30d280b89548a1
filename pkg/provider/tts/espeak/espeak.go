// Package espeak provides a tts.Provider that shells out to a local
// espeak-ng (or espeak) binary and reads its WAV output from stdout. It is
// the offline default: no model files and no network.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// ErrBinaryNotFound is returned when the espeak binary is not on PATH.
var ErrBinaryNotFound = errors.New("espeak: binary not found")

const (
	defaultBinary  = "espeak-ng"
	defaultVoice   = "pt-br"
	defaultWPM     = 160
	defaultTimeout = 20 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary sets the executable to run. Defaults to "espeak-ng".
func WithBinary(path string) Option {
	return func(p *Provider) {
		p.binary = path
	}
}

// WithVoice sets the default espeak voice used when the profile has no ID.
// Defaults to "pt-br".
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithWordsPerMinute sets the base speaking rate. Defaults to 160.
func WithWordsPerMinute(wpm int) Option {
	return func(p *Provider) {
		p.wpm = wpm
	}
}

// WithTimeout bounds one synthesis run. Defaults to 20 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider runs espeak once per reply.
type Provider struct {
	binary  string
	voice   string
	wpm     int
	timeout time.Duration
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary:  defaultBinary,
		voice:   defaultVoice,
		wpm:     defaultWPM,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize runs the binary with --stdout and decodes the WAV it prints.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Speech{}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	//nolint:gosec // G204: the binary path comes from operator configuration.
	cmd := exec.CommandContext(runCtx, p.binary, p.args(text, voice)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return tts.Speech{}, fmt.Errorf("%w: %s", ErrBinaryNotFound, p.binary)
		}
		if runCtx.Err() != nil {
			return tts.Speech{}, fmt.Errorf("espeak: %w", runCtx.Err())
		}
		return tts.Speech{}, fmt.Errorf("espeak: run: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples, rate, err := wavfile.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return tts.Speech{}, fmt.Errorf("espeak: decode output: %w", err)
	}
	return tts.Speech{Samples: samples, SampleRate: rate}, nil
}

func (p *Provider) args(text string, voice tts.VoiceProfile) []string {
	v := voice.ID
	if v == "" {
		v = p.voice
	}
	wpm := p.wpm
	if voice.SpeedFactor > 0 {
		wpm = int(math.Round(float64(wpm) * voice.SpeedFactor))
	}
	return []string{"-v", v, "-s", strconv.Itoa(wpm), "--stdout", "--", text}
}
