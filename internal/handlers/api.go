package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/interfaces"
)

const backendProbeTimeout = 5 * time.Second

type APIHandler struct {
	probe  interfaces.BackendProbe
	logger arbor.ILogger
}

// NewAPIHandler creates the version/health handler. probe may be nil, in
// which case health only reports on this process.
func NewAPIHandler(probe interfaces.BackendProbe, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		probe:  probe,
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler returns health check status, including the job backend's
// own /health when a probe is configured
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{
		"status": "ok",
	}

	if h.probe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), backendProbeTimeout)
		defer cancel()

		health, err := h.probe.Health(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Job backend health check failed")
			response["status"] = "degraded"
			response["backend_error"] = err.Error()
		} else {
			response["backend"] = health
		}
	}

	WriteJSON(w, http.StatusOK, response)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
