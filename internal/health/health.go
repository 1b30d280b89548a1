// Package health serves the liveness and readiness probes of the status
// server.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers 200 only when all of them
// pass; the JSON body names each check and its outcome, so an operator can
// see at a glance whether capture stopped or every recogniser circuit is
// open.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 3 * time.Second

// Checker is one named readiness condition. Check returns nil when the
// condition holds and must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckFunc builds a [Checker] from a plain condition.
func CheckFunc(name string, ok func() error) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return ok() }}
}

type result struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. Its checkers are fixed at
// construction.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
}

// Healthz always answers 200 with the process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		failed bool
	)
	g, ctx := errgroup.WithContext(r.Context())
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failed = true
			} else {
				checks[c.Name] = "ok"
			}
			// Report every check; one failure must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds both probes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
