package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/services/scheduler"
)

// MaintenanceHandler exposes the background maintenance operations
type MaintenanceHandler struct {
	scheduler *scheduler.Service
	logger    arbor.ILogger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(schedulerSvc *scheduler.Service, logger arbor.ILogger) *MaintenanceHandler {
	return &MaintenanceHandler{
		scheduler: schedulerSvc,
		logger:    logger,
	}
}

// SweepHandler handles POST /api/maintenance/sweep, running the
// stale-running sweep outside its schedule.
func (h *MaintenanceHandler) SweepHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	swept, err := h.scheduler.RunSweepNow(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"swept":  swept,
	})
}
