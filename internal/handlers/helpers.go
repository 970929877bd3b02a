package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/netrun/internal/models"
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

// WriteStarted writes a standard "started" JSON response for async operations.
func WriteStarted(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": message,
	})
}

// WriteServiceError maps service errors onto HTTP status codes: validation
// and transition errors are client mistakes, missing resources are 404s,
// and single-active/run-in-progress conflicts are 409s.
func WriteServiceError(w http.ResponseWriter, err error) error {
	var validationErr *models.ValidationError
	var transitionErr *models.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		return WriteError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &transitionErr):
		return WriteError(w, http.StatusBadRequest, transitionErr.Error())
	case errors.Is(err, models.ErrJobNotFound), errors.Is(err, models.ErrDeviceNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrActiveJobConflict), errors.Is(err, models.ErrRunInProgress), errors.Is(err, models.ErrNoRunControl):
		return WriteError(w, http.StatusConflict, err.Error())
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
