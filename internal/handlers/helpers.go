package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/disperse/internal/models"
	"github.com/ternarybob/disperse/internal/sequencer"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// DecodeJSON decodes a request body into the target, rejecting unknown
// fields.
func DecodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// WriteDomainError maps the engine's error taxonomy onto HTTP status codes
func WriteDomainError(w http.ResponseWriter, err error) error {
	var cfgErr *models.ConfigurationError
	var launchErr *models.LaunchError
	var exhausted *models.RecoveryExhausted
	var storeErr *models.StoreError

	switch {
	case errors.As(err, &cfgErr):
		return WriteError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.Is(err, sequencer.ErrSessionNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &exhausted):
		return WriteError(w, http.StatusNotFound, exhausted.Error())
	case errors.As(err, &launchErr):
		return WriteError(w, http.StatusBadGateway, launchErr.Error())
	case errors.As(err, &storeErr):
		return WriteError(w, http.StatusInternalServerError, storeErr.Error())
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
