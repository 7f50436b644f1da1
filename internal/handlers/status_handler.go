package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/services/status"
)

// LiveController starts and stops the live stream
type LiveController interface {
	Connect()
	Disconnect()
}

// StatusHandler handles HTTP requests for connection status and the live
// stream's lifecycle
type StatusHandler struct {
	statusService StatusProvider
	schedule      ScheduleProvider
	live          LiveController
	logger        arbor.ILogger
}

type statusResponse struct {
	status.Status
	Schedule *interfaces.ScheduleStatus `json:"schedule,omitempty"`
}

// NewStatusHandler creates a new StatusHandler. schedule may be nil when
// automatic refresh is disabled.
func NewStatusHandler(statusService StatusProvider, schedule ScheduleProvider, live LiveController, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		schedule:      schedule,
		live:          live,
		logger:        logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := statusResponse{Status: h.statusService.GetStatus()}
	if h.schedule != nil {
		schedule := h.schedule.Status()
		response.Schedule = &schedule
	}

	WriteJSON(w, http.StatusOK, response)
}

// ConnectHandler handles POST /api/live/connect
func (h *StatusHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.logger.Info().Msg("Live stream connect requested")
	h.live.Connect()
	WriteSuccess(w, "Live stream connecting")
}

// DisconnectHandler handles POST /api/live/disconnect
func (h *StatusHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.logger.Info().Msg("Live stream disconnect requested")
	h.live.Disconnect()
	WriteSuccess(w, "Live stream disconnected")
}
