package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/dashboard"
	"github.com/ternarybob/corrudash/internal/services/snapshot"
)

// JobHandler serves the reconciled job views and operator commands
type JobHandler struct {
	jobs   JobsService
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobsService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// ListJobsHandler returns one summary row per job
// GET /api/jobs
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	rows := h.jobs.SummaryRows()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  rows,
		"count": len(rows),
	})
}

// GetJobHandler returns the detail record for one job
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	record, err := h.jobs.Detail(jobID)
	if err != nil {
		h.writeJobError(w, jobID, "get", err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// TrendHandler returns predicted vs generated waste per time bucket
// GET /api/jobs/trend
func (h *JobHandler) TrendHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	series := h.jobs.TrendSeries()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"points": series,
		"count":  len(series),
	})
}

// AlertsHandler returns jobs at medium or high waste risk
// GET /api/jobs/alerts
func (h *JobHandler) AlertsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	alerts := h.jobs.Alerts()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// KPIHandler returns dashboard-wide totals
// GET /api/jobs/kpi
func (h *JobHandler) KPIHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.jobs.KPI())
}

// RefreshHandler refetches the snapshot
// POST /api/jobs/refresh
func (h *JobHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.jobs.RequestRefresh(r.Context()); err != nil {
		h.writeJobError(w, "", "refresh", err)
		return
	}

	WriteSuccess(w, "Snapshot refreshed")
}

// PauseJobHandler asks the backend to pause a job
// POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	record, err := h.jobs.Pause(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, "pause", err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ResumeJobHandler asks the backend to resume a paused job
// POST /api/jobs/{id}/resume
func (h *JobHandler) ResumeJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	record, err := h.jobs.Resume(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, "resume", err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ApplySettingsHandler records that the operator applied a job's recommendation
// POST /api/jobs/{id}/apply-settings
func (h *JobHandler) ApplySettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	applied, err := h.jobs.ApplySettings(jobID)
	if err != nil {
		h.writeJobError(w, jobID, "apply settings", err)
		return
	}

	WriteJSON(w, http.StatusOK, applied)
}

// UpdateJobHandler edits a job's static fields
// PUT /api/jobs/{id}
func (h *JobHandler) UpdateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	var update models.JobFieldUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.jobs.UpdateJob(r.Context(), jobID, update)
	if err != nil {
		h.writeJobError(w, jobID, "update", err)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// jobIDFromPath extracts the job id from /api/jobs/{id}[/action]
func jobIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	parts := pathSegments(r)
	if len(parts) < 3 || parts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return "", false
	}
	return parts[2], true
}

// writeJobError maps session errors to HTTP status codes
func (h *JobHandler) writeJobError(w http.ResponseWriter, jobID, op string, err error) {
	var validationErrs validator.ValidationErrors
	var fetchErr *snapshot.FetchError

	switch {
	case errors.Is(err, dashboard.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, dashboard.ErrRefreshThrottled):
		w.Header().Set("Retry-After", "1")
		WriteError(w, http.StatusTooManyRequests, "Refresh requested too soon, try again shortly")
	case errors.As(err, &validationErrs):
		WriteError(w, http.StatusBadRequest, validationErrs.Error())
	case errors.As(err, &fetchErr):
		h.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Str("op", op).
			Str("kind", string(fetchErr.Kind)).
			Msg("Job backend request failed")
		WriteError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Str("op", op).
			Msg("Job request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
