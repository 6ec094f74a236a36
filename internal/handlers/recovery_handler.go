package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
	"github.com/ternarybob/disperse/internal/recovery"
)

// RecoveryHandler handles HTTP requests for result recovery
type RecoveryHandler struct {
	chain   *recovery.Chain
	storage interfaces.SessionStorage
	logger  arbor.ILogger
}

// NewRecoveryHandler creates a new RecoveryHandler
func NewRecoveryHandler(chain *recovery.Chain, storage interfaces.SessionStorage, logger arbor.ILogger) *RecoveryHandler {
	return &RecoveryHandler{
		chain:   chain,
		storage: storage,
		logger:  logger,
	}
}

// RecoverHandler handles POST /api/recovery. The job handle is mandatory;
// when the owning session and source are omitted they are resolved from the
// stored source states so the terminal status still lands on the right row.
func (h *RecoveryHandler) RecoverHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.RecoverResultsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.SessionID == "" || req.SourceID == "" {
		if state, err := h.storage.GetSourceStateByHandle(r.Context(), req.JobHandle); err == nil && state != nil {
			req.SessionID = state.SessionID
			req.SourceID = state.SourceID
		}
	}

	result, err := h.chain.Recover(r.Context(), req.JobHandle, req.SessionID, req.SourceID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_handle", req.JobHandle).Msg("Recovery failed")
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
