// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for the iva assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// RecordMode selects how a recording ends.
type RecordMode string

const (
	// ModeFixedDuration records a fixed number of frames regardless of VAD.
	ModeFixedDuration RecordMode = "fixed_duration"

	// ModeSilenceTimeout records until a run of silent frames is seen.
	ModeSilenceTimeout RecordMode = "silence_timeout"
)

// IsValid reports whether m is a recognised record mode.
func (m RecordMode) IsValid() bool {
	return m == ModeFixedDuration || m == ModeSilenceTimeout
}

// StartPolicy selects what opens a recording while idle.
type StartPolicy string

const (
	StartImmediate StartPolicy = "immediate"
	StartSpeech    StartPolicy = "speech"
	StartWakeWord  StartPolicy = "wake_word"
	StartTrigger   StartPolicy = "trigger"
)

// IsValid reports whether p is a recognised start policy.
func (p StartPolicy) IsValid() bool {
	switch p {
	case StartImmediate, StartSpeech, StartWakeWord, StartTrigger:
		return true
	}
	return false
}

// AttentionPolicy selects what happens to frames captured while the
// assistant is speaking.
type AttentionPolicy string

const (
	AttentionDiscard AttentionPolicy = "discard"
	AttentionReplay  AttentionPolicy = "replay"
)

// IsValid reports whether p is a recognised attention policy.
func (p AttentionPolicy) IsValid() bool {
	return p == AttentionDiscard || p == AttentionReplay
}

// SourceKind selects the frame source.
type SourceKind string

const (
	SourceMic  SourceKind = "mic"
	SourceFile SourceKind = "file"
)

// OutputKind selects where synthesised speech goes.
type OutputKind string

const (
	OutputSpeaker OutputKind = "speaker"
	OutputNone    OutputKind = "none"
)

// DisplayKind selects the display backend.
type DisplayKind string

const (
	DisplayNone DisplayKind = "none"
	DisplayOLED DisplayKind = "oled"
	DisplayWeb  DisplayKind = "web"
)

// IsValid reports whether k is a recognised display kind.
func (k DisplayKind) IsValid() bool {
	switch k {
	case DisplayNone, DisplayOLED, DisplayWeb:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server              ServerConfig    `yaml:"server"`
	Audio               AudioConfig     `yaml:"audio"`
	VAD                 VADConfig       `yaml:"vad"`
	Turn                TurnConfig      `yaml:"turn"`
	Providers           ProvidersConfig `yaml:"providers"`
	RecognizerFallbacks []ProviderEntry `yaml:"recognizer_fallbacks"`
	TTSFallbacks        []ProviderEntry `yaml:"tts_fallbacks"`
	Voice               VoiceConfig     `yaml:"voice"`
	Display             DisplayConfig   `yaml:"display"`
	Responses           ResponsesConfig `yaml:"responses"`
	Debug               DebugConfig     `yaml:"debug"`
}

// ServerConfig holds logging and status-server settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status server (e.g., ":8080").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TraceEndpoint is an OTLP/HTTP collector URL
	// (e.g., "http://localhost:4318/v1/traces"). Empty keeps spans local.
	TraceEndpoint string `yaml:"trace_endpoint"`

	// TraceSampleRatio is the fraction of new traces kept, in [0, 1].
	// Zero keeps all of them.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// AudioConfig describes the capture stream and playback sink.
type AudioConfig struct {
	// SampleRate of captured frames in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per frame. Defaults to 1024.
	FrameSize int `yaml:"frame_size"`

	// QueueCapacity bounds the capture queue in frames; the oldest frame is
	// dropped when full. 0 means the default (256); -1 means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`

	// Source selects the frame source: mic (default) or file.
	Source SourceKind `yaml:"source"`

	// File is the WAV file replayed when Source is file.
	File string `yaml:"file"`

	// Realtime paces file replay at the capture rate.
	Realtime bool `yaml:"realtime"`

	// Output selects where speech goes: speaker (default) or none.
	Output OutputKind `yaml:"output"`
}

// VADConfig holds voice-activity-detection settings.
type VADConfig struct {
	// Threshold is the RMS level at or above which a frame counts as speech.
	// Hot-reloadable. Defaults to 500 when the key is absent; 0 marks every
	// frame as speech.
	Threshold float64 `yaml:"threshold"`
}

// TurnConfig drives the turn-taking state machine.
type TurnConfig struct {
	Mode               RecordMode      `yaml:"mode"`
	FixedDuration      time.Duration   `yaml:"fixed_duration"`
	MaxSilence         time.Duration   `yaml:"max_silence"`
	MaxRecording       time.Duration   `yaml:"max_recording"`
	KeepLeadingSilence bool            `yaml:"keep_leading_silence"`
	Start              StartPolicy     `yaml:"start"`
	WakeToken          string          `yaml:"wake_token"`
	WakePhonetic       bool            `yaml:"wake_phonetic"`
	WakeMatchPartials  bool            `yaml:"wake_match_partials"`
	ProcessingTimeout  time.Duration   `yaml:"processing_timeout"`
	Attention          AttentionPolicy `yaml:"attention"`
}

// ProvidersConfig declares which provider implementation backs each slot.
// Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// Recognizer is the batch transcriber used for commands.
	Recognizer ProviderEntry `yaml:"recognizer"`

	// Wake is the streaming recogniser used for wake-word spotting. When
	// empty, the recognizer is wrapped in a pause-based segmenter.
	Wake ProviderEntry `yaml:"wake"`

	// TTS synthesises replies. "none" or empty disables speech.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "vosk").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (a file path for local engines).
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig specifies the TTS voice.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// DisplayConfig selects and sizes the eye displays.
type DisplayConfig struct {
	Kind DisplayKind `yaml:"kind"`

	// I2CBus names the bus for the OLED panels; empty opens the first one.
	I2CBus string `yaml:"i2c_bus"`

	// LeftAddr and RightAddr are the I2C addresses of the two panels.
	LeftAddr  uint16 `yaml:"left_addr"`
	RightAddr uint16 `yaml:"right_addr"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FrameInterval is the animator tick. Defaults to 100ms.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// BlinkInterval is the time between idle blinks. 0 disables blinking.
	BlinkInterval time.Duration `yaml:"blink_interval"`
}

// ResponsesConfig is the dispatcher rule table. Empty rules select the
// built-in defaults.
type ResponsesConfig struct {
	Rules    []ResponseRule `yaml:"rules"`
	Fallback string         `yaml:"fallback"`
}

// ResponseRule maps a trigger substring to a response template.
type ResponseRule struct {
	Trigger  string `yaml:"trigger"`
	Response string `yaml:"response"`
}

// DebugConfig holds diagnostics settings.
type DebugConfig struct {
	// RecordDir, when set, receives one WAV file per utterance.
	RecordDir string `yaml:"record_dir"`
}
