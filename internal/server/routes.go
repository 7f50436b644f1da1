package server

import "net/http"

const jobsPrefix = "/api/jobs/"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket feed
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jobs (reconciled views and operator commands)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/trend", s.app.JobHandler.TrendHandler)
	mux.HandleFunc("/api/jobs/alerts", s.app.JobHandler.AlertsHandler)
	mux.HandleFunc("/api/jobs/kpi", s.app.JobHandler.KPIHandler)
	mux.HandleFunc("/api/jobs/refresh", s.app.JobHandler.RefreshHandler)
	mux.HandleFunc(jobsPrefix, s.handleJobRoutes) // Handles /api/jobs/{id} and subpaths

	// API routes - Connection status and live stream control
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/live/connect", s.app.StatusHandler.ConnectHandler)
	mux.HandleFunc("/api/live/disconnect", s.app.StatusHandler.DisconnectHandler)

	// API routes - Logs
	mux.HandleFunc("/api/logs/recent", s.app.WSHandler.GetRecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes /api/jobs/{id} and /api/jobs/{id}/{action}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobs := s.app.JobHandler

	handled := RouteResource(w, r, jobsPrefix,
		MethodRouter{
			http.MethodGet: jobs.GetJobHandler,
			http.MethodPut: jobs.UpdateJobHandler,
		},
		ActionRouter{
			"pause":          jobs.PauseJobHandler,
			"resume":         jobs.ResumeJobHandler,
			"apply-settings": jobs.ApplySettingsHandler,
		},
	)
	if !handled {
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
