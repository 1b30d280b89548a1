// Command iva runs the voice assistant: it listens on the microphone (or
// replays a WAV file), waits for the configured start condition, records an
// utterance, transcribes it, and speaks a templated reply.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/iva/internal/app"
	"github.com/MrWong99/iva/internal/config"
	"github.com/MrWong99/iva/internal/observe"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	manual := flag.Bool("manual", false, "start a recording each time Enter is pressed on stdin (q quits)")
	listVoices := flag.Bool("list-voices", false, "print the voices offered by the configured TTS provider and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "iva: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "iva: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.LogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("iva starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "iva",
		ServiceVersion: version,
		TraceEndpoint:  cfg.Server.TraceEndpoint,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	env := &providerEnv{ctx: ctx, cfg: cfg}
	defer env.close()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, env)

	if *listVoices {
		return printVoices(ctx, cfg, reg)
	}

	providers, err := buildProviders(cfg, reg, env)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg, *manual)

	application, err := app.New(cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	if *manual {
		go manualTrigger(ctx, stop, application)
	}

	slog.Info("assistant ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// manualTrigger starts a recording for every line read from stdin. A line
// reading "q" stops the assistant.
func manualTrigger(ctx context.Context, stop context.CancelFunc, a *app.App) {
	fmt.Println("press Enter to talk, q to quit")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.EqualFold(strings.TrimSpace(sc.Text()), "q") {
			stop()
			return
		}
		if !a.Trigger() {
			fmt.Printf("busy (%s)\n", a.Machine().State())
		}
	}
}

func printVoices(ctx context.Context, cfg *config.Config, reg *config.Registry) int {
	p, err := buildTTS(cfg, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iva: %v\n", err)
		return 1
	}
	lister, ok := p.(tts.VoiceLister)
	if p == nil || !ok {
		fmt.Fprintf(os.Stderr, "iva: tts provider %q cannot list voices\n", cfg.Providers.TTS.Name)
		return 1
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "iva: list voices: %v\n", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%-28s %-24s %s\n", v.ID, v.Name, v.Metadata["language"])
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, manual bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           iva, startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Recognizer", providerLabel(cfg.Providers.Recognizer))
	printRow("Wake", providerLabel(cfg.Providers.Wake))
	printRow("TTS", providerLabel(cfg.Providers.TTS))
	printRow("Fallbacks", fmt.Sprintf("%d stt / %d tts", len(cfg.RecognizerFallbacks), len(cfg.TTSFallbacks)))
	source := string(cfg.Audio.Source)
	if cfg.Audio.Source == config.SourceFile {
		source = "file " + cfg.Audio.File
	}
	printRow("Source", source)
	start := string(cfg.Turn.Start)
	if manual {
		start += " + manual"
	}
	printRow("Start", start)
	printRow("Mode", string(cfg.Turn.Mode))
	printRow("Display", string(cfg.Display.Kind))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	if e.Name == "" {
		return "(not configured)"
	}
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	return e.Name
}

func printRow(kind, value string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, clip(value, 19))
}

// clip shortens s to at most width runes, marking the cut with an ellipsis.
// fmt pads by runes too, so the box stays aligned.
func clip(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
