package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/models"
	"github.com/ternarybob/disperse/internal/sequencer"
)

// SequenceHandler handles HTTP requests for distribution sequences
type SequenceHandler struct {
	sequencer *sequencer.Service
	logger    arbor.ILogger
}

// NewSequenceHandler creates a new SequenceHandler
func NewSequenceHandler(sequencerSvc *sequencer.Service, logger arbor.ILogger) *SequenceHandler {
	return &SequenceHandler{
		sequencer: sequencerSvc,
		logger:    logger,
	}
}

// InitializeHandler handles POST /api/sequences
func (h *SequenceHandler) InitializeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.InitializeSequenceRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sequencer.ResumeOrStart(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("campaign_id", req.CampaignID).Msg("Sequence initialization failed")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, session)
}

// AdvanceHandler handles POST /api/sequences/advance
func (h *SequenceHandler) AdvanceHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.AdvanceSequenceRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.sequencer.Advance(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Advance failed")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// StatusHandler handles GET /api/sequences/{id}
func (h *SequenceHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sequences/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		WriteError(w, http.StatusBadRequest, "session id is required")
		return
	}

	view, err := h.sequencer.Status(r.Context(), sessionID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}
