//go:build vosk

package vosk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
	voskapi "github.com/alphacep/vosk-api/go"
)

var (
	_ stt.StreamRecognizer = (*Recognizer)(nil)
	_ stt.Transcriber      = (*Transcriber)(nil)
)

// Model is a loaded Vosk acoustic model, shared by any number of
// recognisers.
type Model struct {
	once  sync.Once
	model *voskapi.VoskModel
}

// LoadModel loads the model directory at path.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return nil, errors.New("vosk: model path must not be empty")
	}
	voskapi.SetLogLevel(-1)
	m, err := voskapi.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", path, err)
	}
	return &Model{model: m}, nil
}

// Close frees the model. Recognisers created from it must be closed first.
func (m *Model) Close() error {
	m.once.Do(func() { m.model.Free() })
	return nil
}

// Option is a functional option for configuring a Recognizer.
type Option func(*options)

type options struct {
	grammar []string
}

// WithGrammar restricts decoding to the given phrases plus a catch-all.
func WithGrammar(phrases ...string) Option {
	return func(o *options) { o.grammar = phrases }
}

// Recognizer implements stt.StreamRecognizer with a Vosk recogniser.
type Recognizer struct {
	rec         *voskapi.VoskRecognizer
	lastPartial string
	closeOnce   sync.Once
}

// NewRecognizer creates a recogniser for mono 16-bit audio at sampleRate.
func NewRecognizer(m *Model, sampleRate int, opts ...Option) (*Recognizer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	rec, err := newVoskRecognizer(m, sampleRate, o.grammar)
	if err != nil {
		return nil, err
	}
	return &Recognizer{rec: rec}, nil
}

func newVoskRecognizer(m *Model, sampleRate int, grammar []string) (*voskapi.VoskRecognizer, error) {
	if len(grammar) == 0 {
		rec, err := voskapi.NewRecognizer(m.model, float64(sampleRate))
		if err != nil {
			return nil, fmt.Errorf("vosk: create recognizer: %w", err)
		}
		return rec, nil
	}
	grm, err := grammarJSON(grammar)
	if err != nil {
		return nil, err
	}
	rec, err := voskapi.NewRecognizerGrm(m.model, float64(sampleRate), grm)
	if err != nil {
		return nil, fmt.Errorf("vosk: create grammar recognizer: %w", err)
	}
	return rec, nil
}

// Feed implements stt.StreamRecognizer. Vosk reports an utterance boundary
// from its own endpointer; partials are only reported when they change.
func (r *Recognizer) Feed(_ context.Context, f audio.Frame) (stt.Result, error) {
	switch r.rec.AcceptWaveform(f.Bytes()) {
	case 1:
		r.lastPartial = ""
		text, err := parseFinal(r.rec.Result())
		if err != nil || text == "" {
			return stt.Result{}, err
		}
		return stt.Final(text), nil
	case 0:
		text, err := parsePartial(r.rec.PartialResult())
		if err != nil {
			return stt.Result{}, err
		}
		if text == "" || text == r.lastPartial {
			return stt.Result{}, nil
		}
		r.lastPartial = text
		return stt.Partial(text), nil
	default:
		return stt.Result{}, errors.New("vosk: accept waveform failed")
	}
}

// Reset implements stt.StreamRecognizer.
func (r *Recognizer) Reset() {
	r.rec.Reset()
	r.lastPartial = ""
}

// Close implements stt.StreamRecognizer.
func (r *Recognizer) Close() error {
	r.closeOnce.Do(func() { r.rec.Free() })
	return nil
}

// Transcriber implements stt.Transcriber by running a fresh Vosk recogniser
// over the whole utterance.
type Transcriber struct {
	model      *Model
	sampleRate int
}

// NewTranscriber returns a batch transcriber backed by m.
func NewTranscriber(m *Model, sampleRate int) *Transcriber {
	return &Transcriber{model: m, sampleRate: sampleRate}
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	if len(audio.Concat(utterance)) == 0 {
		return "", nil
	}
	rec, err := newVoskRecognizer(t.model, t.sampleRate, nil)
	if err != nil {
		return "", err
	}
	defer rec.Free()

	for _, f := range utterance {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("vosk: %w", err)
		}
		if rec.AcceptWaveform(f.Bytes()) < 0 {
			return "", errors.New("vosk: accept waveform failed")
		}
	}
	return parseFinal(rec.FinalResult())
}
