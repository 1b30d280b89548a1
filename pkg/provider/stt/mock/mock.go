// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to stub a batch recogniser with a fixed text or error and
// inspect the utterances it received. Use StreamRecognizer to script the
// sequence of results a streaming recogniser returns.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "que horas são"}
//	rec := &mock.StreamRecognizer{Results: []stt.Result{{}, stt.Final("ei iva")}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Utterance is the frame slice passed to Transcribe.
	Utterance []audio.Frame
}

// Transcriber is a mock implementation of [stt.Transcriber].
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Delay blocks each call for the given duration or until ctx is done,
	// in which case ctx.Err() is returned.
	Delay time.Duration

	// Func, if set, overrides Text and Err.
	Func func(ctx context.Context, utterance []audio.Frame) (string, error)

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Utterance: utterance})
	text, err, delay, fn := t.Text, t.Err, t.Delay, t.Func
	t.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if fn != nil {
		return fn(ctx, utterance)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns a snapshot of the recorded calls.
func (t *Transcriber) Calls() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscribeCall, len(t.TranscribeCalls))
	copy(out, t.TranscribeCalls)
	return out
}

// StreamRecognizer is a mock implementation of [stt.StreamRecognizer].
// Results are consumed one per Feed; afterwards Default is returned.
type StreamRecognizer struct {
	mu sync.Mutex

	// Results are returned by successive Feed calls.
	Results []stt.Result

	// Default is returned once Results is exhausted.
	Default stt.Result

	// FeedErr, if non-nil, is returned by every Feed call.
	FeedErr error

	// Func, if set, decides every Feed result.
	Func func(ctx context.Context, f audio.Frame) (stt.Result, error)

	// Fed records every frame passed to Feed.
	Fed []audio.Frame

	// ResetCount counts Reset calls.
	ResetCount int

	// CloseCount counts Close calls.
	CloseCount int
}

// Feed implements [stt.StreamRecognizer].
func (r *StreamRecognizer) Feed(ctx context.Context, f audio.Frame) (stt.Result, error) {
	r.mu.Lock()
	r.Fed = append(r.Fed, f)
	fn := r.Func
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, f)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FeedErr != nil {
		return stt.Result{}, r.FeedErr
	}
	if len(r.Results) > 0 {
		res := r.Results[0]
		r.Results = r.Results[1:]
		return res, nil
	}
	return r.Default, nil
}

// Reset implements [stt.StreamRecognizer].
func (r *StreamRecognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResetCount++
}

// Close implements [stt.StreamRecognizer].
func (r *StreamRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCount++
	return nil
}

// FedCount returns how many frames have been fed.
func (r *StreamRecognizer) FedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Fed)
}

var (
	_ stt.Transcriber      = (*Transcriber)(nil)
	_ stt.StreamRecognizer = (*StreamRecognizer)(nil)
)
