package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
)

var validate = validator.New()

// ExecRequest is the payload for ad-hoc status commands.
type ExecRequest struct {
	Host     string `json:"host" validate:"required,min=1,max=255"`
	Port     int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Commands string `json:"commands" validate:"required"`
}

// CommandHandler handles ad-hoc exec-mode command requests
type CommandHandler struct {
	runner    interfaces.StatusRunner
	inventory interfaces.DeviceInventory
	logger    arbor.ILogger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(runner interfaces.StatusRunner, store interfaces.DeviceInventory, logger arbor.ILogger) *CommandHandler {
	return &CommandHandler{
		runner:    runner,
		inventory: store,
		logger:    logger,
	}
}

// ExecHandler runs read-only status commands against a managed device.
// POST /api/commands/exec with {host, port, commands}.
func (h *CommandHandler) ExecHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.Port == 0 {
		req.Port = 22
	}

	key := fmt.Sprintf("%s:%d", req.Host, req.Port)
	profile, ok := h.inventory.GetByKey(key)
	if !ok {
		WriteServiceError(w, fmt.Errorf("%w: %s is not a managed device", models.ErrDeviceNotFound, key))
		return
	}

	params := models.DeviceParams{
		Host:       profile.Host,
		Port:       profile.Port,
		DeviceType: profile.DeviceType,
		Username:   profile.Username,
		Password:   profile.Password,
		VerifyCmds: append([]string{}, profile.VerifyCmds...),
	}

	output, err := h.runner.RunStatusCommands(r.Context(), params, req.Commands)
	if err != nil {
		h.logger.Warn().
			Str("device", key).
			Err(err).
			Msg("Status command execution failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"output": output,
	})
}
