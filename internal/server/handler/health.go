package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	started time.Time
}

// NewHealthHandler creates a HealthHandler anchored at the current time.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now().UTC()}
}

// HealthCheck responds with a simple JSON status indicating the process is
// alive. Registered outside the auth middleware so probes need no key.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
