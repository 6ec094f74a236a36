package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/common"
	"github.com/ternarybob/disperse/internal/interfaces"
)

// StatusHandler handles health and metrics requests
type StatusHandler struct {
	collector interfaces.Collector
	storage   interfaces.KnownErrorStorage
	logger    arbor.ILogger
	started   time.Time
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(collector interfaces.Collector, storage interfaces.KnownErrorStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		collector: collector,
		storage:   storage,
		logger:    logger,
		started:   time.Now(),
	}
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// MetricsHandler handles GET /api/metrics
func (h *StatusHandler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	payload := map[string]interface{}{
		"counters": h.collector.Snapshot(),
	}
	if count, err := h.storage.CountKnownErrors(r.Context()); err == nil {
		payload["known_errors_total"] = count
	}

	WriteJSON(w, http.StatusOK, payload)
}
