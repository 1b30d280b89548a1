// Package deepgram provides a streaming recogniser backed by the Deepgram
// live transcription WebSocket API. It implements stt.StreamRecognizer.
//
// Audio is written from Feed to a background writer goroutine and results
// arrive asynchronously on a reader goroutine; Feed never blocks on the
// network. Each Feed call reports the finals that arrived since the previous
// call, joined in arrival order, otherwise the newest partial. Once the
// connection drops, Feed reports the failure.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "pt-BR"
	defaultSampleRate = 16000
)

// ErrClosed is returned by Feed after the session has ended, either through
// Close or because the connection was lost.
var ErrClosed = errors.New("deepgram: session is closed")

// Option is a functional option for configuring the Recognizer.
type Option func(*config)

type config struct {
	endpoint   string
	model      string
	language   string
	sampleRate int
	keywords   []string
}

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition. Defaults to
// "pt-BR".
func WithLanguage(language string) Option {
	return func(c *config) { c.language = language }
}

// WithSampleRate sets the audio sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithKeywords boosts recognition of the given terms, typically the wake
// word. Entries may carry a boost suffix ("iva:5").
func WithKeywords(words ...string) Option {
	return func(c *config) { c.keywords = append(c.keywords, words...) }
}

// WithEndpoint overrides the WebSocket endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *config) { c.endpoint = endpoint }
}

var _ stt.StreamRecognizer = (*Recognizer)(nil)

// Recognizer is a live Deepgram streaming session.
type Recognizer struct {
	conn    *websocket.Conn
	results chan stt.Result
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// ended is closed when either loop stops; endErr says why.
	ended   chan struct{}
	endOnce sync.Once
	endErr  error
}

// New dials Deepgram and starts a session. ctx bounds the lifetime of the
// session; cancel it or call Close to end it.
func New(ctx context.Context, apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	cfg := config{
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(&cfg)
	}

	wsURL, err := buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	r := &Recognizer{
		conn:    conn,
		results: make(chan stt.Result, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}
	r.wg.Add(2)
	go r.readLoop(ctx)
	go r.writeLoop(ctx)
	return r, nil
}

// buildURL constructs the streaming endpoint URL for cfg.
func buildURL(cfg config) (string, error) {
	u, err := url.Parse(cfg.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", cfg.model)
	q.Set("language", cfg.language)
	q.Set("encoding", "linear16")
	q.Set("channels", "1")
	q.Set("sample_rate", strconv.Itoa(cfg.sampleRate))
	q.Set("punctuate", "false")
	q.Set("interim_results", "true")
	for _, kw := range cfg.keywords {
		q.Add("keywords", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Feed implements stt.StreamRecognizer. It never blocks, so ctx is unused.
// Results that arrived before the connection dropped are still reported;
// after that Feed returns an error wrapping [ErrClosed].
func (r *Recognizer) Feed(_ context.Context, f audio.Frame) (stt.Result, error) {
	select {
	case <-r.done:
		return stt.Result{}, ErrClosed
	default:
	}
	select {
	case <-r.ended:
		if res := r.poll(); res.Kind != stt.ResultNone {
			return res, nil
		}
		return stt.Result{}, r.endErr
	default:
	}
	select {
	case r.audio <- f.Bytes():
	case <-r.done:
		return stt.Result{}, ErrClosed
	default:
		slog.Warn("deepgram: send buffer full, dropping frame", "seq", f.Seq)
	}
	return r.poll(), nil
}

// end records why the session stopped. Only the first cause is kept.
func (r *Recognizer) end(err error) {
	r.endOnce.Do(func() {
		if err == nil {
			r.endErr = ErrClosed
		} else {
			r.endErr = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		close(r.ended)
	})
}

// poll drains pending results without blocking.
func (r *Recognizer) poll() stt.Result {
	var finals []string
	var partial stt.Result
	for {
		select {
		case res, ok := <-r.results:
			if !ok {
				return pick(finals, partial)
			}
			if res.IsFinal() {
				finals = append(finals, res.Text)
				partial = stt.Result{}
			} else {
				partial = res
			}
		default:
			return pick(finals, partial)
		}
	}
}

func pick(finals []string, partial stt.Result) stt.Result {
	if len(finals) > 0 {
		return stt.Final(strings.Join(finals, " "))
	}
	return partial
}

// Reset implements stt.StreamRecognizer by discarding undelivered results.
func (r *Recognizer) Reset() {
	for {
		select {
		case _, ok := <-r.results:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close terminates the session cleanly.
func (r *Recognizer) Close() error {
	r.once.Do(func() {
		close(r.done)
		// CloseStream asks Deepgram to flush pending audio.
		_ = r.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		r.conn.Close(websocket.StatusNormalClosure, "session closed")
		r.wg.Wait()
	})
	return nil
}

// writeLoop sends queued audio as binary messages.
func (r *Recognizer) writeLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case chunk := <-r.audio:
			if err := r.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				r.end(err)
				return
			}
		case <-r.done:
			r.end(nil)
			return
		case <-ctx.Done():
			r.end(ctx.Err())
			return
		}
	}
}

// readLoop receives JSON messages and forwards recognised text.
func (r *Recognizer) readLoop(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.results)

	for {
		_, msg, err := r.conn.Read(ctx)
		if err != nil {
			r.end(err)
			return
		}
		res, ok := parseResponse(msg)
		if !ok {
			continue
		}
		select {
		case r.results <- res:
		case <-r.done:
			return
		default:
			// Consumer is not polling; keep the newest results flowing.
			select {
			case <-r.results:
			default:
			}
			r.results <- res
		}
	}
}

// response is the JSON structure Deepgram sends for a Results event.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResponse turns a raw message into a Result. It reports false for
// messages that carry no text.
func parseResponse(data []byte) (stt.Result, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Result{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Result{}, false
	}
	text := resp.Channel.Alternatives[0].Transcript
	if text == "" {
		return stt.Result{}, false
	}
	if resp.IsFinal {
		return stt.Final(text), true
	}
	return stt.Partial(text), true
}
