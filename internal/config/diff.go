package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; changes elsewhere
// are listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ThresholdChanged bool
	NewThreshold     float64

	ResponsesChanged bool

	// RestartRequired names top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether d carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ThresholdChanged && !d.ResponsesChanged && len(d.RestartRequired) == 0
}

// Sections names every changed part of the config, hot-reloadable ones
// first.
func (d ConfigDiff) Sections() []string {
	var out []string
	if d.LogLevelChanged {
		out = append(out, "server.log_level")
	}
	if d.ThresholdChanged {
		out = append(out, "vad.threshold")
	}
	if d.ResponsesChanged {
		out = append(out, "responses")
	}
	return append(out, d.RestartRequired...)
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD.Threshold != new.VAD.Threshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.VAD.Threshold
	}

	if !reflect.DeepEqual(old.Responses, new.Responses) {
		d.ResponsesChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.TraceEndpoint != new.Server.TraceEndpoint || old.Server.TraceSampleRatio != new.Server.TraceSampleRatio {
		d.RestartRequired = append(d.RestartRequired, "server.tracing")
	}
	sections := []struct {
		name     string
		old, new any
	}{
		{"audio", old.Audio, new.Audio},
		{"turn", old.Turn, new.Turn},
		{"providers", old.Providers, new.Providers},
		{"recognizer_fallbacks", old.RecognizerFallbacks, new.RecognizerFallbacks},
		{"tts_fallbacks", old.TTSFallbacks, new.TTSFallbacks},
		{"voice", old.Voice, new.Voice},
		{"display", old.Display, new.Display},
		{"debug", old.Debug, new.Debug},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}

	return d
}
