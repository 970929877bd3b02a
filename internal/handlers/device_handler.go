package handlers

import (
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/services/inventory"
)

// DeviceHandler handles device inventory API requests
type DeviceHandler struct {
	importer  *inventory.Importer
	inventory interfaces.DeviceInventory
	logger    arbor.ILogger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(importer *inventory.Importer, store interfaces.DeviceInventory, logger arbor.ILogger) *DeviceHandler {
	return &DeviceHandler{
		importer:  importer,
		inventory: store,
		logger:    logger,
	}
}

// ImportHandler imports a device CSV, replacing the inventory.
// POST /api/devices/import with the CSV as the request body.
func (h *DeviceHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "Request body is empty; expected CSV content")
		return
	}

	report, err := h.importer.ImportCSV(string(body))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Int("imported", report.Imported).
		Int("validated", report.Validated).
		Int("failed", report.Failed).
		Msg("Device import completed")

	WriteJSON(w, http.StatusOK, report)
}

// ListHandler returns all imported device profiles.
// GET /api/devices
func (h *DeviceHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	profiles := h.inventory.List()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"devices": profiles,
		"count":   len(profiles),
	})
}
