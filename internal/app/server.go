package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/iva/internal/observe"
)

// StateResponse is the body of GET /state.
type StateResponse struct {
	State   string     `json:"state"`
	Cycles  uint64     `json:"cycles"`
	Queued  int        `json:"queued"`
	Dropped uint64     `json:"dropped"`
	Muted   bool       `json:"muted"`
	Last    *LastCycle `json:"last,omitempty"`
}

// LastCycle summarises the most recent turn.
type LastCycle struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	TookMS  int64     `json:"took_ms"`
	Stop    string    `json:"stop"`
	Frames  int       `json:"frames"`
	Text    string    `json:"text"`
	Reply   string    `json:"reply"`
	Trigger string    `json:"trigger,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Handler returns the status server's routes wrapped in the observability
// middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)

	mh := a.metricsHandler
	if mh == nil {
		mh = promhttp.Handler()
	}
	mux.Handle("GET /metrics", mh)
	mux.HandleFunc("POST /trigger", a.handleTrigger)
	mux.HandleFunc("GET /state", a.handleState)
	if a.mirror != nil {
		mux.Handle("GET /ws", a.mirror)
	}
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	if !a.machine.Trigger() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": "busy",
			"state":  a.machine.State().String(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	res := StateResponse{
		State:   a.machine.State().String(),
		Cycles:  a.machine.Cycles(),
		Queued:  a.queue.Len(),
		Dropped: a.queue.Dropped(),
		Muted:   a.gate != nil && a.gate.Muted(),
	}
	if c, ok := a.machine.LastCycle(); ok {
		lc := &LastCycle{
			ID:      c.ID,
			Started: c.Started,
			TookMS:  c.Took.Milliseconds(),
			Stop:    c.Stop.String(),
			Frames:  c.Frames,
			Text:    c.Text,
			Reply:   c.Reply.Text,
			Trigger: c.Reply.Trigger,
		}
		if c.RecognizerErr != nil {
			lc.Error = c.RecognizerErr.Error()
		}
		res.Last = lc
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
