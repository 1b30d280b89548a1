// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber in-process with whisper.cpp. The model
// (for example ggml-tiny.bin) is loaded once and shared; every call creates
// its own inference context.
type Native struct {
	mu       sync.RWMutex
	model    whisperlib.Model
	language string
	threads  uint
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription (e.g., "pt",
// "en"). "auto" lets whisper detect it. Defaults to "pt".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// WithNativeThreads sets the number of CPU threads used per inference. Zero
// keeps the whisper.cpp default.
func WithNativeThreads(threads uint) NativeOption {
	return func(n *Native) { n.threads = threads }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.model == nil {
		return nil
	}
	err := n.model.Close()
	n.model = nil
	return err
}

// Transcribe implements stt.Transcriber. Inference runs on the calling
// goroutine; cancellation is checked before inference starts, since
// whisper.cpp cannot be interrupted mid-run.
func (n *Native) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	samples := utteranceSamples(utterance)
	if len(samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.model == nil {
		return "", errors.New("whisper: transcriber is closed")
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}
	if n.threads > 0 {
		wctx.SetThreads(n.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
