package handlers

import (
	"net/http"

	"github.com/octopus-bim/octopus/internal/logger"
)

// ReadinessCheck probes a dependency. A nil error means ready.
type ReadinessCheck func(r *http.Request) error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks map[string]ReadinessCheck
}

// NewHealthHandler creates a health handler with named readiness checks.
func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live answers 200 whenever the process serves requests.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, map[string]string{"status": "ok"})
}

// Ready runs the dependency checks and answers 503 when any fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(r); err != nil {
			logger.Warn("readiness check failed", "check", name, "error", err)
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSONOK(w, status)
}
