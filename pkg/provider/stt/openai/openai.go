// Package openai provides a batch transcriber backed by the OpenAI audio
// transcription API (whisper-1 and compatible servers).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Transcriber implements the stt.Transcriber interface.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL    string
	language   string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// self-hosted OpenAI-compatible speech server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint. Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often a failed request is retried. Defaults to 1.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs an OpenAI Transcriber. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{language: "pt", maxRetries: 1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Transcriber{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements stt.Transcriber. The utterance is uploaded as a
// 16-bit mono WAV file.
func (t *Transcriber) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	pcm := audio.Concat(utterance)
	if len(pcm) == 0 {
		return "", nil
	}
	rate := utterance[0].SampleRate
	if rate <= 0 {
		rate = 16000
	}

	wav, err := wavfile.EncodeBytes(pcm, rate)
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
