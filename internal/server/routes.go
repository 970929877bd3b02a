package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - per-job event stream
	mux.HandleFunc("/ws/jobs/", s.app.WSHandler.HandleJobStream)

	// API routes - Device inventory
	mux.HandleFunc("/api/devices", s.app.DeviceHandler.ListHandler)          // GET - list validated devices
	mux.HandleFunc("/api/devices/import", s.app.DeviceHandler.ImportHandler) // POST - CSV import with connection validation

	// API routes - Ad-hoc status commands
	mux.HandleFunc("/api/commands/exec", s.app.CommandHandler.ExecHandler) // POST - read-only command batch against one device

	// API routes - Jobs (configuration run management)
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.app.APIHandler.ShutdownHandler) // Graceful shutdown endpoint

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes job-related requests to the appropriate handler
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	// GET /api/jobs/active
	if r.URL.Path == "/api/jobs/active" {
		RouteByMethod(w, r, MethodRouter{"GET": s.app.JobHandler.ActiveJobHandler})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch len(parts) {
	case 3:
		// GET /api/jobs/{id}
		RouteResourceItem(w, r, s.app.JobHandler.GetJobHandler, nil, nil)
	case 4:
		// /api/jobs/{id}/{action}
		switch parts[3] {
		case "events":
			RouteByMethod(w, r, MethodRouter{"GET": s.app.JobHandler.ListEventsHandler})
		case "run":
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.RunJobHandler})
		case "pause":
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.PauseJobHandler})
		case "resume":
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.ResumeJobHandler})
		case "cancel":
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.CancelJobHandler})
		case "result":
			RouteByMethod(w, r, MethodRouter{"GET": s.app.JobHandler.ResultHandler})
		default:
			s.app.APIHandler.NotFoundHandler(w, r)
		}
	case 5:
		// POST /api/jobs/{id}/events/{event}
		if parts[3] == "events" {
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.ApplyEventHandler})
			return
		}
		// POST /api/jobs/{id}/run/async
		if parts[3] == "run" && parts[4] == "async" {
			RouteByMethod(w, r, MethodRouter{"POST": s.app.JobHandler.RunJobAsyncHandler})
			return
		}
		s.app.APIHandler.NotFoundHandler(w, r)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
