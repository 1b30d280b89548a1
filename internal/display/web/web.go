// Package web mirrors the assistant's face to browsers over WebSocket.
//
// Every rendered frame is encoded as a JSON message carrying both eye
// bitmaps as PNG data URLs and broadcast to all connected viewers. A viewer
// that connects late receives the most recent frame immediately. Slow
// viewers lose old frames rather than delaying the animator.
package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/iva/internal/display"
	"github.com/MrWong99/iva/internal/observe"
)

const (
	clientBuffer = 4
	writeTimeout = 5 * time.Second
)

// Message is the JSON document sent for every frame.
type Message struct {
	Seq        uint64 `json:"seq"`
	Expression string `json:"expression"`
	Caption    string `json:"caption,omitempty"`
	Blink      bool   `json:"blink,omitempty"`
	Left       string `json:"left"`
	Right      string `json:"right"`
}

// Option configures a [Mirror].
type Option func(*Mirror)

// WithMetrics reports the number of connected viewers.
func WithMetrics(m *observe.Metrics) Option {
	return func(mi *Mirror) {
		mi.metrics = m
	}
}

// WithOriginPatterns sets the host patterns allowed to connect from another
// origin. See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(mi *Mirror) {
		mi.origins = patterns
	}
}

// Mirror is a [display.Output] that is also an [http.Handler] accepting
// viewer connections.
type Mirror struct {
	metrics *observe.Metrics
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

type client struct {
	send chan []byte
}

var _ display.Output = (*Mirror)(nil)
var _ http.Handler = (*Mirror)(nil)

// New returns an empty Mirror.
func New(opts ...Option) *Mirror {
	m := &Mirror{clients: make(map[*client]struct{})}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Draw encodes f and queues it for every connected viewer.
func (m *Mirror) Draw(_ context.Context, f display.Frame) error {
	left, err := dataURL(f.Left)
	if err != nil {
		return fmt.Errorf("web: encode left eye: %w", err)
	}
	right, err := dataURL(f.Right)
	if err != nil {
		return fmt.Errorf("web: encode right eye: %w", err)
	}
	data, err := json.Marshal(Message{
		Seq:        f.Seq,
		Expression: f.Scene.Expression.String(),
		Caption:    f.Scene.Caption,
		Blink:      f.Pose.Blink,
		Left:       left,
		Right:      right,
	})
	if err != nil {
		return fmt.Errorf("web: marshal frame: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = data
	for c := range m.clients {
		c.offer(data)
	}
	return nil
}

// Clients returns the number of connected viewers.
func (m *Mirror) Clients() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// ServeHTTP upgrades the request and streams frames until the viewer goes
// away or the request context ends.
func (m *Mirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: m.origins})
	if err != nil {
		slog.Debug("web: accept viewer", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	// Viewers never send anything; CloseRead handles control frames and
	// cancels ctx when the viewer disconnects.
	ctx := conn.CloseRead(r.Context())

	c := &client{send: make(chan []byte, clientBuffer)}
	m.add(ctx, c)
	defer m.remove(c)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("web: write frame", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func (m *Mirror) add(ctx context.Context, c *client) {
	m.mu.Lock()
	m.clients[c] = struct{}{}
	if m.last != nil {
		c.offer(m.last)
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.DisplayClients.Add(ctx, 1)
	}
}

func (m *Mirror) remove(c *client) {
	m.mu.Lock()
	delete(m.clients, c)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.DisplayClients.Add(context.Background(), -1)
	}
}

// offer queues data, dropping the oldest queued frame when the viewer is
// behind. Callers hold the mirror lock, so offer has a single writer.
func (c *client) offer(data []byte) {
	select {
	case c.send <- data:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- data:
	default:
	}
}

func dataURL(img image.Image) (string, error) {
	if img == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
