// Package health provides the /healthz and /readyz handlers of the reply
// service.
//
// /healthz is a liveness probe and always answers 200. /readyz answers 200
// once the service has been marked started and every [Checker] passes; until
// then it answers 503 with status "starting". Responses are JSON objects with
// a "status" field and a "checks" map.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	started  atomic.Bool
}

// New returns a Handler that is already marked started. Use [NewStarting]
// when readiness must wait for startup to finish.
func New(checkers ...Checker) *Handler {
	h := NewStarting(checkers...)
	h.MarkStarted()
	return h
}

// NewStarting returns a Handler whose /readyz reports "starting" until
// [Handler.MarkStarted] is called.
func NewStarting(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// MarkStarted lets /readyz evaluate its checkers.
func (h *Handler) MarkStarted() { h.started.Store(true) }

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker concurrently, each with a [checkTimeout]
// deadline derived from the request context, and returns 200 only when all
// of them pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.started.Load() {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: "starting"})
		return
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return
			}
			checks[c.Name] = "ok"
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ModelsLoaded fails while count reports zero models.
func ModelsLoaded(count func() int) Checker {
	return Checker{
		Name: "models",
		Check: func(context.Context) error {
			if n := count(); n == 0 {
				return errors.New("no character models loaded")
			}
			return nil
		},
	}
}

// Pinger is implemented by model stores that can probe their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreReachable fails when p cannot reach its backend.
func StoreReachable(p Pinger) Checker {
	return Checker{
		Name: "store",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("model store: %w", err)
			}
			return nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
