package web_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/iva/internal/display"
	"github.com/MrWong99/iva/internal/display/web"
)

func frame(seq uint64, e display.Expression, caption string) display.Frame {
	left, right := display.NewRenderer(32, 16).Render(display.Scene{Expression: e, Caption: caption}, display.Pose{})
	return display.Frame{
		Seq:   seq,
		Scene: display.Scene{Expression: e, Caption: caption},
		Left:  left,
		Right: right,
	}
}

func read(t *testing.T, ctx context.Context, c *websocket.Conn) web.Message {
	t.Helper()
	typ, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var msg web.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return msg
}

func TestMirror_LateViewerGetsLastFrame(t *testing.T) {
	t.Parallel()
	m := web.New()
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Draw(ctx, frame(1, display.Listening, "")); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	msg := read(t, ctx, conn)
	if msg.Seq != 1 || msg.Expression != "listening" {
		t.Errorf("first message = seq %d %q", msg.Seq, msg.Expression)
	}
	if !strings.HasPrefix(msg.Left, "data:image/png;base64,") || !strings.HasPrefix(msg.Right, "data:image/png;base64,") {
		t.Error("eyes should be PNG data URLs")
	}

	// The viewer is registered once it has received the first frame.
	if err := m.Draw(ctx, frame(2, display.Speaking, "Agora são 09:05")); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	msg = read(t, ctx, conn)
	if msg.Seq != 2 || msg.Expression != "speaking" || msg.Caption != "Agora são 09:05" {
		t.Errorf("second message = %+v", msg)
	}
	if m.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", m.Clients())
	}
}

func TestMirror_ViewerDisconnect(t *testing.T) {
	t.Parallel()
	m := web.New()
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = m.Draw(ctx, frame(1, display.Neutral, ""))
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	read(t, ctx, conn)
	conn.Close(websocket.StatusNormalClosure, "bye")

	for m.Clients() != 0 {
		select {
		case <-ctx.Done():
			t.Fatal("viewer never removed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMirror_DrawWithoutViewers(t *testing.T) {
	t.Parallel()
	m := web.New()
	for i := range 10 {
		if err := m.Draw(context.Background(), frame(uint64(i), display.Thinking, "")); err != nil {
			t.Fatalf("Draw: %v", err)
		}
	}
	if m.Clients() != 0 {
		t.Errorf("Clients() = %d", m.Clients())
	}
}
