package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/iva/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Providers.Recognizer = config.ProviderEntry{Name: "whisper", Options: map[string]any{"threads": 4}}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is reloadable, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_ThresholdChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.VAD.Threshold = 750

	d := config.Diff(old, new)
	if !d.ThresholdChanged || d.NewThreshold != 750 {
		t.Errorf("ThresholdChanged=%v NewThreshold=%v, want true 750", d.ThresholdChanged, d.NewThreshold)
	}
}

func TestDiff_ResponsesChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Responses.Rules = []config.ResponseRule{{Trigger: "tempo", Response: "Está ensolarado"}}

	d := config.Diff(old, new)
	if !d.ResponsesChanged {
		t.Error("expected ResponsesChanged=true")
	}
	if d.LogLevelChanged || d.ThresholdChanged {
		t.Errorf("unexpected reloadable changes: %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Turn.MaxSilence = 2 * time.Second
	new.Display.Kind = config.DisplayOLED
	new.Server.ListenAddr = ":9000"
	new.Server.TraceEndpoint = "http://collector:4318/v1/traces"

	d := config.Diff(old, new)
	for _, want := range []string{"turn", "display", "server.listen_addr", "server.tracing"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired=%v, missing %q", d.RestartRequired, want)
		}
	}
	if slices.Contains(d.RestartRequired, "audio") {
		t.Errorf("audio did not change, RestartRequired=%v", d.RestartRequired)
	}
}
