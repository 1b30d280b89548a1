package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider slot. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	transcriber map[string]func(ProviderEntry) (stt.Transcriber, error)
	stream      map[string]func(ProviderEntry) (stt.StreamRecognizer, error)
	tts         map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcriber: make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		stream:      make(map[string]func(ProviderEntry) (stt.StreamRecognizer, error)),
		tts:         make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterTranscriber registers a batch recogniser factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscriber(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriber[name] = factory
}

// RegisterStream registers a streaming recogniser factory under name.
func (r *Registry) RegisterStream(name string, factory func(ProviderEntry) (stt.StreamRecognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateTranscriber instantiates a batch recogniser using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.transcriber[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateStream instantiates a streaming recogniser using the factory
// registered under entry.Name.
func (r *Registry) CreateStream(entry ProviderEntry) (stt.StreamRecognizer, error) {
	r.mu.RLock()
	factory, ok := r.stream[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wake/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names per slot, for diagnostics.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string][]string{
		"recognizer": keys(r.transcriber),
		"wake":       keys(r.stream),
		"tts":        keys(r.tts),
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
