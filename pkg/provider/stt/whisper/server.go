// Package whisper provides whisper-based batch transcribers.
//
// [Native] runs whisper.cpp in-process through its CGO bindings. [Server]
// talks to a running whisper-server binary, which exposes POST /inference,
// and needs no CGO in this process.
//
// Both normalise 16-bit PCM to float32 in [-1, 1) at 16 kHz before
// inference, and both return an empty transcript for an empty utterance
// without contacting the model.
//
// Usage:
//
//	tr, err := whisper.NewServer("http://localhost:8080", whisper.WithLanguage("pt"))
//	text, err := tr.Transcribe(ctx, frames)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/stt"
)

const (
	defaultLanguage = "pt"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Server implements stt.Transcriber.
var _ stt.Transcriber = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "tiny", "base"). When empty the server uses whichever model it was
// started with; this is the default.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithLanguage sets the language code sent to the server. Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(s *Server) { s.language = lang }
}

// WithHTTPClient replaces the HTTP client. The default client has a 30 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// Server implements stt.Transcriber against a whisper.cpp HTTP server.
type Server struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// NewServer creates a Server for the whisper.cpp HTTP server at serverURL
// (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Transcribe implements stt.Transcriber. The utterance is uploaded as a
// 16 kHz mono WAV file in a multipart/form-data request.
func (s *Server) Transcribe(ctx context.Context, utterance []audio.Frame) (string, error) {
	pcm := utterancePCM(utterance)
	if len(pcm) == 0 {
		return "", nil
	}
	wav, err := wavfile.EncodeBytes(pcm, modelSampleRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}
