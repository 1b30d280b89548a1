// Package coqui provides a Coqui TTS-backed tts.Provider that talks to either
// a Coqui XTTS v2 server or a standard Coqui TTS server via its REST API.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; the voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; the voice catalogue is retrieved
//     from GET /studio_speakers.
//
// Both servers are batch services, so Synthesize cuts the reply into
// sentences and issues up to sentenceLookahead requests concurrently, then
// stitches the decoded PCM back together in sentence order.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("pt"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	speech, err := p.Synthesize(ctx, "Agora são 10:42", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage        = "pt"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// sentenceLookahead bounds the number of synthesis requests in flight.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "pt",
// "en"). Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate resamples synthesised PCM to rate. When 0 (default)
// the rate of the first sentence is kept and later sentences are resampled
// to match it.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// studioSpeakersResponse is the map returned by GET /studio_speakers. Only
// the keys (voice names) matter.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text sentence by sentence and returns the joined PCM.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Speech, error) {
	// XTTS always needs a reference speaker; standard single-speaker models
	// work without one.
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return tts.Speech{}, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}

	sentences := tts.SplitSentences(text)
	if len(sentences) == 0 {
		return tts.Speech{}, nil
	}

	parts := make([]tts.Speech, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sentenceLookahead)
	for i, s := range sentences {
		g.Go(func() error {
			sp, err := p.synthesize(gctx, s, voice)
			if err != nil {
				return err
			}
			parts[i] = sp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tts.Speech{}, err
	}

	rate := p.outputRate
	if rate == 0 {
		rate = parts[0].SampleRate
	}
	out := tts.Speech{SampleRate: rate}
	for _, part := range parts {
		out.Samples = append(out.Samples, audio.Resample(part.Samples, part.SampleRate, rate)...)
	}
	return out, nil
}

// synthesize dispatches one sentence to the configured API mode.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice tts.VoiceProfile) (tts.Speech, error) {
	var req *http.Request
	var err error
	if p.apiMode == APIModeStandard {
		req, err = p.standardRequest(ctx, sentence, voice)
	} else {
		req, err = p.xttsRequest(ctx, sentence, voice)
	}
	if err != nil {
		return tts.Speech{}, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Speech{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	samples, rate, err := wavfile.Decode(bytes.NewReader(wav))
	if err != nil {
		return tts.Speech{}, fmt.Errorf("coqui: decode WAV response: %w", err)
	}
	return tts.Speech{Samples: samples, SampleRate: rate}, nil
}

// xttsRequest builds a POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) xttsRequest(ctx context.Context, sentence string, voice tts.VoiceProfile) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       sentence,
		SpeakerWav: voice.ID,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// standardRequest builds a GET /api/tts call (standard server mode).
func (p *Provider) standardRequest(ctx context.Context, sentence string, voice tts.VoiceProfile) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ListVoices retrieves the voice catalogue from the Coqui server.
//
// In APIModeXTTS it calls GET /studio_speakers. In APIModeStandard it calls
// GET /details and returns one profile per speaker for multi-speaker models,
// or a single profile named after the model otherwise.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	var raw studioSpeakersResponse
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return profiles, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{{
		ID:       name,
		Name:     name,
		Provider: "coqui",
		Metadata: map[string]string{
			"type":       "single-speaker",
			"model_name": name,
		},
	}}, nil
}
