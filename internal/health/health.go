// Package health serves liveness and readiness probes for the relay process.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// runs every registered [Checker] (speech providers, artifact storage, the
// voice transport) and answers 200 only when all of them pass, so a load
// balancer keeps traffic away until the pipeline can actually do work.
//
// The response body is JSON: {"status": "ok"|"fail", "checks": {name: verdict}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe. A provider that cannot answer
// within this window is reported as failed rather than stalling the endpoint.
const probeTimeout = 3 * time.Second

// Checker probes one dependency of the relay. Check returns nil when the
// dependency can serve and an error describing what is wrong otherwise.
type Checker struct {
	// Name keys the probe's verdict in the /readyz response, e.g. "providers"
	// or "artifacts".
	Name string

	// Check must honor ctx; it is called with a [probeTimeout] deadline.
	Check func(ctx context.Context) error
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Checkers may be added after
// construction, which lets the application register probes as subsystems come
// up. Safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
}

// New creates a Handler with an initial set of checkers.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	h.checkers = append(h.checkers, checkers...)
	return h
}

// Add registers another readiness probe. Probes run in registration order.
func (h *Handler) Add(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, c)
}

// Healthz is the liveness probe. If this code runs, the process is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every registered probe and reports per-probe verdicts. Any
// failing probe turns the overall status to "fail" with a 503.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(checkers)),
	}
	status := http.StatusOK

	for _, c := range checkers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	respond(w, status, rep)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
