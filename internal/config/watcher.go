package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the file.
const DefaultWatchInterval = 5 * time.Second

// stamp identifies one version of the file on disk.
type stamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher polls a config file and hands every valid change to a callback.
// A version that fails to parse or validate is logged once and skipped; the
// previous config stays current until the file is fixed.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    stamp

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload and rejection messages.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and starts polling it. onChange runs on the polling
// goroutine with the previous and the new config; it is not called for the
// initial load.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, st

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight callback. It is idempotent.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config: watch: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	seen := w.seen
	w.mu.Unlock()
	if info.ModTime().Equal(seen.mtime) && info.Size() == seen.size {
		return
	}

	cfg, st, err := w.read()
	if st.sum == seen.sum {
		// Touched, or rejected before: remember the new mtime only.
		w.mu.Lock()
		w.seen.mtime, w.seen.size = st.mtime, st.size
		w.mu.Unlock()
		return
	}
	if err != nil {
		w.log.Warn("config: watch: change rejected, keeping the running config", "path", w.path, "err", err)
		w.mu.Lock()
		w.seen = st
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path, "changed", Diff(old, cfg).Sections())
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read returns the parsed file and its stamp. The stamp is filled even when
// parsing fails, so a broken version is only reported once.
func (w *Watcher) read() (*Config, stamp, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	st := stamp{size: int64(len(data)), sum: sha256.Sum256(data)}
	if info, err := os.Stat(w.path); err == nil {
		st.mtime, st.size = info.ModTime(), info.Size()
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	return cfg, st, err
}
