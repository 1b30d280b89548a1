package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/iva/internal/app"
	"github.com/MrWong99/iva/internal/config"
	"github.com/MrWong99/iva/internal/resilience"
	"github.com/MrWong99/iva/pkg/audio/miniaudio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/iva/pkg/provider/stt/openai"
	"github.com/MrWong99/iva/pkg/provider/stt/whisper"
	"github.com/MrWong99/iva/pkg/provider/tts"
	"github.com/MrWong99/iva/pkg/provider/tts/coqui"
	"github.com/MrWong99/iva/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/iva/pkg/provider/tts/espeak"
)

// providerEnv carries what factories need beyond their config entry and
// collects the resources main must release on the way out.
type providerEnv struct {
	ctx     context.Context
	cfg     *config.Config
	closers []func() error
}

func (e *providerEnv) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

func (e *providerEnv) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("provider close", "err", err)
		}
	}
}

// optionalProviders holds registrations compiled in by build tags.
var optionalProviders []func(*config.Registry, *providerEnv)

// registerBuiltinProviders wires every provider factory into reg.
func registerBuiltinProviders(reg *config.Registry, env *providerEnv) {
	// ── Recognizer ────────────────────────────────────────────────────────────

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		n, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		env.onClose(n.Close)
		return n, nil
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Wake ──────────────────────────────────────────────────────────────────

	reg.RegisterStream("deepgram", func(entry config.ProviderEntry) (stt.StreamRecognizer, error) {
		opts := []deepgram.Option{deepgram.WithSampleRate(env.cfg.Audio.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if token := env.cfg.Turn.WakeToken; token != "" {
			opts = append(opts, deepgram.WithKeywords(token))
		}
		return deepgram.New(env.ctx, entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []espeak.Option
		if entry.Model != "" {
			opts = append(opts, espeak.WithBinary(entry.Model))
		}
		if v := optString(entry.Options, "voice"); v != "" {
			opts = append(opts, espeak.WithVoice(v))
		}
		if wpm := optInt(entry.Options, "wpm"); wpm > 0 {
			opts = append(opts, espeak.WithWordsPerMinute(wpm))
		}
		return espeak.New(opts...), nil
	})

	for _, register := range optionalProviders {
		register(reg, env)
	}

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates everything named in cfg and returns it in an
// [app.Providers] for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry, env *providerEnv) (*app.Providers, error) {
	ps := &app.Providers{
		RecognizerName: cfg.Providers.Recognizer.Name,
		TTSName:        cfg.Providers.TTS.Name,
	}

	rec, err := buildRecognizer(cfg, reg)
	if err != nil {
		return nil, err
	}
	ps.Recognizer = rec

	switch name := cfg.Providers.Wake.Name; name {
	case "", "segmenter":
		// app wraps the recognizer in a segmenter when the policy needs one.
	default:
		w, err := reg.CreateStream(cfg.Providers.Wake)
		if err != nil {
			return nil, fmt.Errorf("create wake provider %q: %w", name, err)
		}
		ps.Wake = w
		slog.Info("provider created", "kind", "wake", "name", name)
	}

	ps.TTS, err = buildTTS(cfg, reg)
	if err != nil {
		return nil, err
	}

	switch cfg.Audio.Source {
	case config.SourceFile:
		ps.Source = wavfile.NewSource(cfg.Audio.File,
			wavfile.WithSampleRate(cfg.Audio.SampleRate),
			wavfile.WithFrameSize(cfg.Audio.FrameSize),
			wavfile.WithRealtime(cfg.Audio.Realtime),
		)
	default:
		ps.Source = miniaudio.NewCapture(
			miniaudio.WithSampleRate(cfg.Audio.SampleRate),
			miniaudio.WithFrameSize(cfg.Audio.FrameSize),
		)
	}

	if ps.TTS != nil && cfg.Audio.Output != config.OutputNone {
		player, err := miniaudio.NewPlayer()
		if err != nil {
			return nil, fmt.Errorf("open playback device: %w", err)
		}
		env.onClose(player.Close)
		ps.Player = player
	}
	return ps, nil
}

// breakerConfig is shared by both fallback chains.
func breakerConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: slog.Default()},
	}
}

func buildRecognizer(cfg *config.Config, reg *config.Registry) (stt.Transcriber, error) {
	entry := cfg.Providers.Recognizer
	primary, err := reg.CreateTranscriber(entry)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "recognizer", "name", entry.Name)
	if len(cfg.RecognizerFallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewTranscriberFallback(primary, entry.Name, breakerConfig())
	for _, fb := range cfg.RecognizerFallbacks {
		t, err := reg.CreateTranscriber(fb)
		if err != nil {
			return nil, fmt.Errorf("create recognizer fallback %q: %w", fb.Name, err)
		}
		chain.Add(fb.Name, t)
	}
	slog.Info("recognizer fallback chain", "backends", chain.Names())
	return chain, nil
}

// buildTTS returns nil when speech is disabled.
func buildTTS(cfg *config.Config, reg *config.Registry) (tts.Provider, error) {
	entry := cfg.Providers.TTS
	if entry.Name == "" || entry.Name == "none" {
		return nil, nil
	}
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, fmt.Errorf("tts provider %q is not compiled in: %w", entry.Name, err)
		}
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name)
	if len(cfg.TTSFallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSpeechFallback(primary, entry.Name, breakerConfig())
	for _, fb := range cfg.TTSFallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	slog.Info("tts fallback chain", "backends", chain.Names())
	return chain, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt accepts the integer shapes a YAML decoder produces.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optStrings accepts a YAML sequence of strings.
func optStrings(opts map[string]any, key string) []string {
	raw, _ := opts[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
