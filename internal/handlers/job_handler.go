package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netrun/internal/interfaces"
	"github.com/ternarybob/netrun/internal/models"
	"github.com/ternarybob/netrun/internal/services/control"
	"github.com/ternarybob/netrun/internal/services/engine"
)

// JobHandler handles job lifecycle and run API requests
type JobHandler struct {
	registry    interfaces.JobRegistry
	bus         interfaces.EventBus
	engine      *engine.Engine
	coordinator *engine.Coordinator
	controls    *control.Store
	logger      arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(registry interfaces.JobRegistry, bus interfaces.EventBus, eng *engine.Engine, coordinator *engine.Coordinator, controls *control.Store, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		registry:    registry,
		bus:         bus,
		engine:      eng,
		coordinator: coordinator,
		controls:    controls,
		logger:      logger,
	}
}

// CreateJobHandler creates a new job in the queued state.
// POST /api/jobs
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var create models.JobCreate
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return
	}
	if err := validate.Struct(&create); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	record, err := h.registry.Create(&create)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Str("job_id", record.JobID).
		Int("devices", len(record.DeviceResults)).
		Str("canary", record.Canary.Key()).
		Msg("Job created")

	WriteJSON(w, http.StatusOK, record)
}

// ListJobsHandler returns all retained jobs, newest first.
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.registry.List()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// ActiveJobHandler reports the current non-terminal job, if any.
// GET /api/jobs/active
func (h *JobHandler) ActiveJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job := h.registry.Active()
	if job == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"active": false,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"active": true,
		"job":    job,
	})
}

// GetJobHandler returns the full job record.
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	record, err := h.registry.Get(jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ListEventsHandler returns buffered events for a job from a cursor.
// GET /api/jobs/{id}/events?start=N
func (h *JobHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.registry.Get(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	start := 0
	if startStr := r.URL.Query().Get("start"); startStr != "" {
		if parsed, err := strconv.Atoi(startStr); err == nil && parsed >= 0 {
			start = parsed
		}
	}

	events := h.bus.List(jobID, start)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"total":  h.bus.Count(jobID),
	})
}

// ApplyEventHandler applies a lifecycle event to a job.
// POST /api/jobs/{id}/events/{event}
func (h *JobHandler) ApplyEventHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 5 || pathParts[2] == "" || pathParts[4] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID and event name are required")
		return
	}
	jobID := pathParts[2]

	event, ok := models.ParseJobEvent(pathParts[4])
	if !ok {
		WriteError(w, http.StatusBadRequest, "Unknown lifecycle event: "+pathParts[4])
		return
	}

	record, err := h.registry.ApplyEvent(jobID, event)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// RunJobHandler runs a job synchronously and returns the run summary.
// POST /api/jobs/{id}/run
func (h *JobHandler) RunJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	if _, err := h.registry.ApplyEvent(jobID, models.JobEventStart); err != nil {
		WriteServiceError(w, err)
		return
	}

	// A synchronous run can outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctl := h.controls.GetOrCreate(jobID)
	ctl.Reset()

	summary, err := h.engine.RunJob(r.Context(), jobID, req, ctl)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// RunJobAsyncHandler starts a background run and returns immediately.
// POST /api/jobs/{id}/run/async
func (h *JobHandler) RunJobAsyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	if _, err := h.registry.ApplyEvent(jobID, models.JobEventStart); err != nil {
		WriteServiceError(w, err)
		return
	}

	ctl := h.controls.GetOrCreate(jobID)
	ctl.Reset()

	started := h.coordinator.Start(jobID, func() {
		// The request context dies with this handler; the background run
		// gets its own.
		if _, err := h.engine.RunJob(context.Background(), jobID, req, ctl); err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Async run failed")
		}
	})
	if !started {
		WriteServiceError(w, models.ErrRunInProgress)
		return
	}

	h.bus.Publish(models.NewJobStatusEvent(jobID, models.JobStatusRunning, "Async run started"))
	WriteStarted(w, "Job run started")
}

// PauseJobHandler pauses a running job.
// POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, models.JobEventPause)
}

// ResumeJobHandler resumes a paused job.
// POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, models.JobEventResume)
}

// CancelJobHandler cancels a queued, running, or paused job.
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	h.controlAction(w, r, models.JobEventCancel)
}

// ResultHandler returns the latest run summary for a job.
// GET /api/jobs/{id}/result
func (h *JobHandler) ResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.registry.Get(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	summary, ok := h.engine.Result(jobID)
	if !ok {
		WriteError(w, http.StatusNotFound, "Run result not found")
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// controlAction runs the shared pause/resume/cancel flow: the job must
// exist, a run control must be registered, and the state machine must accept
// the event before the control is flipped and the status event published.
func (h *JobHandler) controlAction(w http.ResponseWriter, r *http.Request, event models.JobEvent) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID, ok := h.jobIDFromPath(w, r)
	if !ok {
		return
	}

	if _, err := h.registry.Get(jobID); err != nil {
		WriteServiceError(w, err)
		return
	}

	ctl := h.controls.Get(jobID)
	if ctl == nil {
		WriteServiceError(w, models.ErrNoRunControl)
		return
	}

	record, err := h.registry.ApplyEvent(jobID, event)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	var message string
	switch event {
	case models.JobEventPause:
		ctl.Pause()
		message = "Pause requested"
	case models.JobEventResume:
		ctl.Resume()
		message = "Resume requested"
	case models.JobEventCancel:
		ctl.Cancel()
		message = "Cancel requested"
	}

	h.logger.Info().
		Str("job_id", jobID).
		Str("event", string(event)).
		Msg("Job control applied")

	h.bus.Publish(models.NewJobStatusEvent(jobID, record.Status, message))
	WriteSuccess(w, message)
}

// jobIDFromPath extracts the job ID from /api/jobs/{id}[/...] paths.
func (h *JobHandler) jobIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return "", false
	}
	return pathParts[2], true
}

// decodeRunRequest parses the optional run payload. An empty body yields an
// all-defaults request.
func (h *JobHandler) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*models.RunRequest, bool) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload: "+err.Error())
		return nil, false
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return nil, false
	}
	return &req, true
}
