package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/common"
)

type APIHandler struct {
	logger   arbor.ILogger
	shutdown func()
}

// NewAPIHandler creates the handler for health, version, and shutdown
// endpoints. The shutdown callback triggers a graceful server stop and may
// be nil when shutdown-over-HTTP is not wired.
func NewAPIHandler(shutdown func()) *APIHandler {
	return &APIHandler{
		logger:   common.GetLogger(),
		shutdown: shutdown,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ShutdownHandler requests a graceful server stop. The response is written
// before the stop is triggered so the client sees the acknowledgement.
func (h *APIHandler) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.shutdown == nil {
		WriteError(w, http.StatusServiceUnavailable, "Shutdown is not available")
		return
	}

	h.logger.Info().Msg("Shutdown requested via API")
	WriteSuccess(w, "Shutting down")
	h.shutdown()
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
