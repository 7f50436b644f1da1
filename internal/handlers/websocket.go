package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/logs"
	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/projections"
	"github.com/ternarybob/corrudash/internal/services/status"
)

// Feed message types
const (
	MessageJobs    = "jobs"
	MessageStatus  = "status"
	MessageLog     = "log"
	MessageCommand = "command"
)

const (
	writeWait      = 10 * time.Second
	logBacklogSize = 100
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from a different port during development
	},
}

// WSMessage is the envelope for every feed message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is the payload of a status message
type StatusUpdate struct {
	status.Status
	ServerInstanceID string `json:"server_instance_id"` // clients reset their state when this changes
}

// WebSocketHandler is the browser feed hub
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	jobs             JobsService
	statusService    StatusProvider
	logSource        LogSource
	serverInstanceID string
}

// NewWebSocketHandler creates the feed hub. Any source may be nil; new clients
// then simply do not get that part of the initial state.
func NewWebSocketHandler(jobs JobsService, statusService StatusProvider, logSource LogSource, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		jobs:             jobs,
		statusService:    statusService,
		logSource:        logSource,
		serverInstanceID: common.NewInstanceID(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	return h
}

// ServerInstanceID identifies this process to clients
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams feed messages until the
// client goes away
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendInitialState(conn, mutex)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendInitialState brings a new client up to date: status, then jobs, then
// the recent log backlog
func (h *WebSocketHandler) sendInitialState(conn *websocket.Conn, mutex *sync.Mutex) {
	if h.statusService != nil {
		h.send(conn, mutex, WSMessage{Type: MessageStatus, Payload: h.statusUpdate(h.statusService.GetStatus())})
	}
	if h.jobs != nil {
		h.send(conn, mutex, WSMessage{Type: MessageJobs, Payload: h.jobs.SummaryRows()})
	}
	if h.logSource != nil {
		for _, line := range h.logSource.Recent(logBacklogSize, "") {
			h.send(conn, mutex, WSMessage{Type: MessageLog, Payload: line})
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	defer mutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send initial state to client")
	}
}

func (h *WebSocketHandler) statusUpdate(st status.Status) StatusUpdate {
	return StatusUpdate{Status: st, ServerInstanceID: h.serverInstanceID}
}

// BroadcastJobs sends the current summary rows to every client
func (h *WebSocketHandler) BroadcastJobs(rows []projections.SummaryRow) {
	if rows == nil {
		rows = []projections.SummaryRow{}
	}
	h.broadcast(WSMessage{Type: MessageJobs, Payload: rows})
}

// BroadcastStatus sends a connection status change to every client
func (h *WebSocketHandler) BroadcastStatus(st status.Status) {
	h.broadcast(WSMessage{Type: MessageStatus, Payload: h.statusUpdate(st)})
}

// BroadcastCommand tells every client about an issued command
func (h *WebSocketHandler) BroadcastCommand(record models.CommandRecord) {
	h.broadcast(WSMessage{Type: MessageCommand, Payload: record})
}

// BroadcastLog sends one log line to every client
func (h *WebSocketHandler) BroadcastLog(line logs.Line) {
	h.broadcast(WSMessage{Type: MessageLog, Payload: line})
}

func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		// NOTE: log write failures on log messages would feed back into the log feed
		if err != nil && msg.Type != MessageLog {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// GetRecentLogsHandler returns the most recent log lines
// GET /api/logs/recent?limit=100&level=warn
func (h *WebSocketHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	lines := []logs.Line{}
	if h.logSource != nil {
		lines = h.logSource.Recent(queryInt(r, "limit", logBacklogSize), r.URL.Query().Get("level"))
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  lines,
		"count": len(lines),
	})
}
