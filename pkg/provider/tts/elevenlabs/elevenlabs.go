// Package elevenlabs provides an ElevenLabs-backed tts.Provider using the
// ElevenLabs streaming WebSocket API. Audio is requested as raw 16-bit PCM
// and collected until the server marks the stream final.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultHTTPBase  = "https://api.elevenlabs.io"
	streamPathFmt    = "/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesPath       = "/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format ("pcm_16000", "pcm_22050",
// "pcm_24000", "pcm_44100"). Non-PCM formats are rejected by New.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURLs overrides the WebSocket and REST endpoints. Used for tests
// and self-hosted proxies.
func WithBaseURLs(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.httpBase = strings.TrimRight(httpBase, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	sampleRate   int
	wsBase       string
	httpBase     string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		httpBase:     defaultHTTPBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// pcmRate extracts the sample rate from a "pcm_<rate>" output format.
func pcmRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q has no valid sample rate", format)
	}
	return rate, nil
}

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is one message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize opens one WebSocket session per reply: it sends the opening
// message with credentials, the text, and an empty flush message, then
// collects audio until the server reports isFinal or closes the socket.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Speech, error) {
	if voice.ID == "" {
		return tts.Speech{}, errors.New("elevenlabs: voice.ID must not be empty")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Speech{}, nil
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: voice.SpeedFactor}
	msgs := []textMessage{
		{Text: " ", VoiceSettings: vs, XiAPIKey: p.apiKey}, // the first message must be non-empty
		{Text: text + " "},
		{Text: ""}, // flush
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return tts.Speech{}, fmt.Errorf("elevenlabs: marshal message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return tts.Speech{}, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Speech{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return tts.Speech{}, fmt.Errorf("elevenlabs: server error: %s", resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return tts.Speech{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}

	// A dangling odd byte can only come from a truncated stream.
	samples, err := audio.DecodePCM(pcm[:len(pcm)&^1])
	if err != nil {
		return tts.Speech{}, fmt.Errorf("elevenlabs: %w", err)
	}
	return tts.Speech{Samples: samples, SampleRate: p.sampleRate}, nil
}

func (p *Provider) streamURL(voiceID string) string {
	return p.wsBase + fmt.Sprintf(streamPathFmt, voiceID, p.model, p.outputFormat)
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

func toProfiles(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}
