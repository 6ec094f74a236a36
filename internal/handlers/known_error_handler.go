package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/disperse/internal/classifier"
	"github.com/ternarybob/disperse/internal/interfaces"
	"github.com/ternarybob/disperse/internal/models"
)

// KnownErrorHandler handles HTTP requests for the known-error taxonomy
type KnownErrorHandler struct {
	storage    interfaces.KnownErrorStorage
	classifier *classifier.Service
	logger     arbor.ILogger
}

// NewKnownErrorHandler creates a new KnownErrorHandler
func NewKnownErrorHandler(storage interfaces.KnownErrorStorage, classifierSvc *classifier.Service, logger arbor.ILogger) *KnownErrorHandler {
	return &KnownErrorHandler{
		storage:    storage,
		classifier: classifierSvc,
		logger:     logger,
	}
}

// ListHandler handles GET /api/known-errors?category=<category>
func (h *KnownErrorHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	category := models.ErrorCategory(r.URL.Query().Get("category"))
	rows, err := h.storage.ListKnownErrors(r.Context(), category)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(rows),
		"known_errors": rows,
	})
}

// CategoriesHandler handles GET /api/known-errors/categories. The order of
// the returned list is the classifier's evaluation order.
func (h *KnownErrorHandler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": classifier.Categories(),
	})
}

// ResolveHandler handles POST /api/known-errors/resolve
func (h *KnownErrorHandler) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.ResolveKnownErrorRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.classifier.Resolve(r.Context(), req.JobHandle, req.Notes); err != nil {
		h.logger.Warn().Err(err).Str("job_handle", req.JobHandle).Msg("Known-error resolution failed")
		WriteDomainError(w, err)
		return
	}

	WriteSuccess(w, "known error resolved")
}
