package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/iva/pkg/audio"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate        = 16000
	DefaultFrameSize         = 1024
	DefaultQueueCapacity     = 256
	DefaultThreshold         = 500.0
	DefaultFixedDuration     = 5 * time.Second
	DefaultMaxSilence        = 3 * time.Second
	DefaultProcessingTimeout = 30 * time.Second
	DefaultWakeToken         = "iva"
	DefaultFrameInterval     = 100 * time.Millisecond
	DefaultBlinkInterval     = 4 * time.Second
	DefaultLeftAddr          = 0x3C
	DefaultRightAddr         = 0x3D
	DefaultDisplayWidth      = 128
	DefaultDisplayHeight     = 64
)

// ValidProviderNames lists known provider names per provider slot.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"whisper", "whisper-native", "openai", "vosk"},
	"wake":       {"vosk", "deepgram", "segmenter"},
	"tts":        {"coqui", "elevenlabs", "espeak", "none"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the all-defaults config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := unset()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := unset()
	ApplyDefaults(cfg)
	return cfg
}

// unset returns the config a decode starts from. Fields whose zero value is
// meaningful are preset here, so only an absent key yields the default.
func unset() *Config {
	return &Config{VAD: VADConfig{Threshold: DefaultThreshold}}
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// vad.threshold is not among them: 0 is a valid threshold.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.QueueCapacity == 0 {
		a.QueueCapacity = DefaultQueueCapacity
	}
	if a.Source == "" {
		a.Source = SourceMic
	}
	if a.Output == "" {
		a.Output = OutputSpeaker
	}

	t := &cfg.Turn
	if t.Mode == "" {
		t.Mode = ModeSilenceTimeout
	}
	if t.FixedDuration == 0 {
		t.FixedDuration = DefaultFixedDuration
	}
	if t.MaxSilence == 0 {
		t.MaxSilence = DefaultMaxSilence
	}
	if t.Start == "" {
		t.Start = StartWakeWord
	}
	if t.WakeToken == "" {
		t.WakeToken = DefaultWakeToken
	}
	if t.ProcessingTimeout == 0 {
		t.ProcessingTimeout = DefaultProcessingTimeout
	}
	if t.Attention == "" {
		t.Attention = AttentionDiscard
	}

	d := &cfg.Display
	if d.Kind == "" {
		d.Kind = DisplayNone
	}
	if d.LeftAddr == 0 {
		d.LeftAddr = DefaultLeftAddr
	}
	if d.RightAddr == 0 {
		d.RightAddr = DefaultRightAddr
	}
	if d.Width == 0 {
		d.Width = DefaultDisplayWidth
	}
	if d.Height == 0 {
		d.Height = DefaultDisplayHeight
	}
	if d.FrameInterval == 0 {
		d.FrameInterval = DefaultFrameInterval
	}
	if d.BlinkInterval == 0 {
		d.BlinkInterval = DefaultBlinkInterval
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Validate does not apply defaults; zero values are checked as given.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be within [0, 1]", r))
	}
	if ep := cfg.Server.TraceEndpoint; ep != "" {
		if u, err := url.Parse(ep); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.trace_endpoint %q must be an http(s) URL", ep))
		}
	}

	// Audio
	a := cfg.Audio
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", a.FrameSize))
	}
	if a.QueueCapacity < -1 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d is invalid; use -1 for unbounded", a.QueueCapacity))
	}
	switch a.Source {
	case SourceMic:
	case SourceFile:
		if a.File == "" {
			errs = append(errs, errors.New("audio.file is required when audio.source is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: mic, file", a.Source))
	}
	if a.Output != OutputSpeaker && a.Output != OutputNone {
		errs = append(errs, fmt.Errorf("audio.output %q is invalid; valid values: speaker, none", a.Output))
	}

	// VAD
	if cfg.VAD.Threshold < 0 {
		errs = append(errs, fmt.Errorf("vad.threshold %.1f must not be negative", cfg.VAD.Threshold))
	}

	// Turn
	t := cfg.Turn
	if !t.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("turn.mode %q is invalid; valid values: fixed_duration, silence_timeout", t.Mode))
	}
	if a.SampleRate > 0 && a.FrameSize > 0 {
		switch t.Mode {
		case ModeFixedDuration:
			if audio.FramesFor(t.FixedDuration, a.SampleRate, a.FrameSize) < 1 {
				errs = append(errs, fmt.Errorf("turn.fixed_duration %s is shorter than one frame", t.FixedDuration))
			}
		case ModeSilenceTimeout:
			if audio.FramesFor(t.MaxSilence, a.SampleRate, a.FrameSize) < 1 {
				errs = append(errs, fmt.Errorf("turn.max_silence %s is shorter than one frame", t.MaxSilence))
			}
		}
	}
	if t.MaxRecording < 0 {
		errs = append(errs, fmt.Errorf("turn.max_recording %s must not be negative", t.MaxRecording))
	}
	if t.ProcessingTimeout < 0 {
		errs = append(errs, fmt.Errorf("turn.processing_timeout %s must not be negative", t.ProcessingTimeout))
	}
	if !t.Start.IsValid() {
		errs = append(errs, fmt.Errorf("turn.start %q is invalid; valid values: immediate, speech, wake_word, trigger", t.Start))
	}
	if t.Start == StartWakeWord && t.WakeToken == "" {
		errs = append(errs, errors.New("turn.wake_token is required when turn.start is wake_word"))
	}
	if !t.Attention.IsValid() {
		errs = append(errs, fmt.Errorf("turn.attention %q is invalid; valid values: discard, replay", t.Attention))
	}
	if t.Start == StartTrigger && cfg.Server.ListenAddr == "" {
		slog.Warn("turn.start is trigger but server.listen_addr is empty; only the -manual prompt can start a recording")
	}

	// Providers
	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("wake", cfg.Providers.Wake.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.RecognizerFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("recognizer_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("recognizer", fb.Name)
	}
	for i, fb := range cfg.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}

	// Voice
	if s := cfg.Voice.SpeedFactor; s != 0 && (s < 0.5 || s > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", s))
	}

	// Display
	d := cfg.Display
	if !d.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("display.kind %q is invalid; valid values: none, oled, web", d.Kind))
	}
	if d.Kind == DisplayOLED && d.LeftAddr == d.RightAddr {
		errs = append(errs, fmt.Errorf("display.left_addr and display.right_addr must differ (both %#x)", d.LeftAddr))
	}
	if d.Kind == DisplayWeb && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("display.kind web requires server.listen_addr"))
	}
	if d.Kind != DisplayNone && (d.Width <= 0 || d.Height <= 0) {
		errs = append(errs, fmt.Errorf("display size %dx%d must be positive", d.Width, d.Height))
	}
	if d.FrameInterval < 0 || d.BlinkInterval < 0 {
		errs = append(errs, errors.New("display intervals must not be negative"))
	}

	// Responses
	triggersSeen := make(map[string]int, len(cfg.Responses.Rules))
	for i, rule := range cfg.Responses.Rules {
		prefix := fmt.Sprintf("responses.rules[%d]", i)
		if rule.Trigger == "" {
			errs = append(errs, fmt.Errorf("%s.trigger is required", prefix))
		} else if prev, ok := triggersSeen[strings.ToLower(rule.Trigger)]; ok {
			slog.Warn("response rule can never match; an earlier rule has the same trigger",
				"rule", i,
				"shadowed_by", prev,
				"trigger", rule.Trigger,
			)
		} else {
			triggersSeen[strings.ToLower(rule.Trigger)] = i
		}
		if _, err := template.New(prefix).Parse(rule.Response); err != nil {
			errs = append(errs, fmt.Errorf("%s.response: %w", prefix, err))
		}
	}
	if _, err := template.New("fallback").Parse(cfg.Responses.Fallback); err != nil {
		errs = append(errs, fmt.Errorf("responses.fallback: %w", err))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given slot.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a build without that backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
