package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.outputFormat != defaultOutputFmt || p.sampleRate != 16000 {
		t.Errorf("outputFormat = %q, sampleRate = %d", p.outputFormat, p.sampleRate)
	}
	if !strings.HasPrefix(p.streamURL("v1"), "wss://") {
		t.Errorf("stream URL = %q, want wss scheme", p.streamURL("v1"))
	}
}

func TestNew_OutputFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format   string
		wantRate int
		wantErr  bool
	}{
		{format: "pcm_24000", wantRate: 24000},
		{format: "pcm_44100", wantRate: 44100},
		{format: "mp3_44100_128", wantErr: true},
		{format: "pcm_", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", WithOutputFormat(tt.format), WithModel("eleven_multilingual_v2"))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.sampleRate != tt.wantRate {
				t.Errorf("sampleRate = %d, want %d", p.sampleRate, tt.wantRate)
			}
			if !strings.Contains(p.streamURL("voice-abc"), "model_id=eleven_multilingual_v2") {
				t.Errorf("stream URL = %q", p.streamURL("voice-abc"))
			}
		})
	}
}

func TestSynthesize_RequiresVoice(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), "Olá", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}

func TestSynthesize_CollectsAudioUntilFinal(t *testing.T) {
	t.Parallel()

	chunk1 := audio.EncodePCM([]int16{100, 200})
	chunk2 := audio.EncodePCM([]int16{300})

	received := make(chan []textMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/voice-abc/stream-input") {
			http.NotFound(w, r)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		var msgs []textMessage
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var m textMessage
			if err := json.Unmarshal(data, &m); err != nil {
				return
			}
			msgs = append(msgs, m)
			if m.Text == "" {
				break
			}
		}
		received <- msgs

		for _, resp := range []audioResponse{
			{Audio: base64.StdEncoding.EncodeToString(chunk1)},
			{Audio: base64.StdEncoding.EncodeToString(chunk2)},
			{IsFinal: true},
		} {
			data, _ := json.Marshal(resp)
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
		_, _, _ = c.Read(ctx)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	p, err := New("test-key", WithBaseURLs(base, srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sp, err := p.Synthesize(context.Background(), "Agora são 10:42", tts.VoiceProfile{ID: "voice-abc"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := []int16{100, 200, 300}
	if len(sp.Samples) != len(want) {
		t.Fatalf("samples = %v, want %v", sp.Samples, want)
	}
	for i := range want {
		if sp.Samples[i] != want[i] {
			t.Fatalf("samples = %v, want %v", sp.Samples, want)
		}
	}
	if sp.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", sp.SampleRate)
	}

	msgs := <-received
	if len(msgs) != 3 {
		t.Fatalf("server received %d messages, want 3", len(msgs))
	}
	if msgs[0].XiAPIKey != "test-key" || msgs[0].VoiceSettings == nil {
		t.Errorf("opening message = %+v, want credentials and voice settings", msgs[0])
	}
	if strings.TrimSpace(msgs[1].Text) != "Agora são 10:42" || msgs[1].XiAPIKey != "" {
		t.Errorf("text message = %+v", msgs[1])
	}
}

func TestSynthesize_ServerErrorMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		_, _, _ = c.Read(ctx)
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"error":"quota_exceeded"}`))
		_, _, _ = c.Read(ctx)
	}))
	t.Cleanup(srv.Close)

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	p, _ := New("k", WithBaseURLs(base, srv.URL))
	_, err := p.Synthesize(context.Background(), "Olá", tts.VoiceProfile{ID: "v"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("err = %v, want quota_exceeded", err)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != voicesPath || r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{
			"voices": [
				{"voice_id": "abc123", "name": "Rachel", "category": "premade", "labels": {"gender": "female"}},
				{"voice_id": "x1", "name": "Ghost", "category": "", "labels": null}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", WithBaseURLs("ws://unused", srv.URL))
	profiles, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0].ID != "abc123" || profiles[0].Provider != "elevenlabs" {
		t.Errorf("profiles[0] = %+v", profiles[0])
	}
	if profiles[0].Metadata["gender"] != "female" || profiles[0].Metadata["category"] != "premade" {
		t.Errorf("profiles[0].Metadata = %v", profiles[0].Metadata)
	}
	if _, ok := profiles[1].Metadata["category"]; ok {
		t.Error("empty category should not appear in metadata")
	}
}

func TestListVoices_BadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, _ := New("key", WithBaseURLs("ws://unused", srv.URL))
	if _, err := p.ListVoices(context.Background()); err == nil {
		t.Fatal("expected error for 401")
	}
}
