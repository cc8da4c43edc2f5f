package api

import (
	"net/http"

	"github.com/hyperengineering/strata"
)

type StatusHandler struct {
	engine *strata.Engine
}

func NewStatusHandler(engine *strata.Engine) *StatusHandler {
	return &StatusHandler{engine: engine}
}

// Health handles GET /healthz
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health(r.Context())

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Stats handles GET /v1/stats
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
