package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/logs"
	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/events"
	"github.com/ternarybob/corrudash/internal/services/live"
	"github.com/ternarybob/corrudash/internal/services/projections"
	"github.com/ternarybob/corrudash/internal/services/reconcile"
	"github.com/ternarybob/corrudash/internal/services/status"
)

type fixedStatus struct {
	status status.Status
}

func (f fixedStatus) GetStatus() status.Status {
	return f.status
}

type rowsOnly struct {
	mockJobs
	rows []projections.SummaryRow
}

func (r *rowsOnly) SummaryRows() []projections.SummaryRow {
	return r.rows
}

func startFeed(t *testing.T, h *WebSocketHandler) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, h *WebSocketHandler, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ClientCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_InitialState(t *testing.T) {
	buffer := logs.NewBuffer(10)
	buffer.Append(
		logs.Line{Level: "INF", Message: "Snapshot refreshed"},
		logs.Line{Level: "WRN", Message: "Live stream state changed"},
	)

	jobs := &rowsOnly{rows: []projections.SummaryRow{{ID: "J1"}, {ID: "J2"}}}
	st := fixedStatus{status: status.Status{Indicator: status.IndicatorOnline}}
	h := NewWebSocketHandler(jobs, st, buffer, arbor.NewLogger())

	conn := dial(t, startFeed(t, h))

	msg := readMessage(t, conn)
	require.Equal(t, MessageStatus, msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "online", payload["indicator"])
	assert.Equal(t, h.ServerInstanceID(), payload["server_instance_id"])

	msg = readMessage(t, conn)
	require.Equal(t, MessageJobs, msg.Type)
	assert.Len(t, msg.Payload.([]interface{}), 2)

	msg = readMessage(t, conn)
	require.Equal(t, MessageLog, msg.Type)
	assert.Equal(t, "Snapshot refreshed", msg.Payload.(map[string]interface{})["message"])

	msg = readMessage(t, conn)
	require.Equal(t, MessageLog, msg.Type)
	assert.Equal(t, "Live stream state changed", msg.Payload.(map[string]interface{})["message"])
}

// Every broadcast reaches every client, and disconnected clients are cleaned up
func TestWebSocket_BroadcastFanOut(t *testing.T) {
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	wsURL := startFeed(t, h)

	const numClients = 5
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dial(t, wsURL)
	}
	waitForClients(t, h, numClients)

	const numLines = 10
	var sendWg sync.WaitGroup
	for i := 0; i < numLines; i++ {
		sendWg.Add(1)
		go func(i int) {
			defer sendWg.Done()
			h.BroadcastLog(logs.Line{Level: "INF", Message: fmt.Sprintf("line %d", i)})
		}(i)
	}
	sendWg.Wait()

	for i, conn := range conns {
		received := map[string]bool{}
		for len(received) < numLines {
			msg := readMessage(t, conn)
			if msg.Type == MessageLog {
				received[msg.Payload.(map[string]interface{})["message"].(string)] = true
			}
		}
		assert.Len(t, received, numLines, "client %d", i)
	}

	for _, conn := range conns {
		conn.Close()
	}
	waitForClients(t, h, 0)

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Empty(t, h.clientMutex)
}

// A client that never reads does not hold up the others
func TestWebSocket_SlowClientDoesNotBlock(t *testing.T) {
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	wsURL := startFeed(t, h)

	fast := dial(t, wsURL)
	_ = dial(t, wsURL)
	waitForClients(t, h, 2)

	const numCommands = 20
	for i := 0; i < numCommands; i++ {
		h.BroadcastCommand(models.CommandRecord{ID: fmt.Sprintf("cmd_%d", i), Kind: models.CommandPause, JobID: "J1"})
	}

	for i := 0; i < numCommands; i++ {
		msg := readMessage(t, fast)
		require.Equal(t, MessageCommand, msg.Type)
		assert.Equal(t, fmt.Sprintf("cmd_%d", i), msg.Payload.(map[string]interface{})["id"])
	}
}

func TestGetRecentLogsHandler(t *testing.T) {
	buffer := logs.NewBuffer(10)
	buffer.Append(
		logs.Line{Level: "DBG", Message: "d"},
		logs.Line{Level: "INF", Message: "i"},
		logs.Line{Level: "ERR", Message: "e"},
	)
	h := NewWebSocketHandler(nil, nil, buffer, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.GetRecentLogsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/logs/recent?level=info&limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs  []logs.Line `json:"logs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "e", body.Logs[0].Message)
}

func TestEventSubscriber_CoalescesJobViews(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	sub := NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{JobsThrottle: "1h"})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	for version := uint64(1); version <= 5; version++ {
		jobs := make([]models.ReconciledJob, version)
		for i := range jobs {
			jobs[i] = models.ReconciledJob{Profile: models.JobStaticProfile{ID: fmt.Sprintf("J%d", i)}}
		}
		require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
			Type:    interfaces.EventJobsReconciled,
			Payload: reconcile.View{Jobs: jobs, Version: version},
		}))
	}

	sub.FlushJobs(ctx)

	msg := readMessage(t, conn)
	require.Equal(t, MessageJobs, msg.Type)
	assert.Len(t, msg.Payload.([]interface{}), 5)

	// Nothing else was queued behind it
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

// A fresh snapshot skips the throttle; live ticks on top of it wait for a flush
func TestEventSubscriber_SnapshotViewsSkipThrottle(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{JobsThrottle: "1h"})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	snapshotAt := time.Now()
	jobs := []models.ReconciledJob{{Profile: models.JobStaticProfile{ID: "J1"}}}

	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobsReconciled,
		Payload: reconcile.View{Jobs: jobs, Version: 1, SnapshotAt: snapshotAt},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, MessageJobs, msg.Type)
	assert.Len(t, msg.Payload.([]interface{}), 1)

	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobsReconciled,
		Payload: reconcile.View{Jobs: jobs, Version: 2, SnapshotAt: snapshotAt, LiveAt: time.Now()},
	}))

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

// Views delivered out of order never replace a newer one
func TestEventSubscriber_DropsStaleViews(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	sub := NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{JobsThrottle: "1h"})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	newer := []models.ReconciledJob{{Profile: models.JobStaticProfile{ID: "J1"}}, {Profile: models.JobStaticProfile{ID: "J2"}}}
	older := []models.ReconciledJob{{Profile: models.JobStaticProfile{ID: "J1"}}}

	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{Type: interfaces.EventJobsReconciled, Payload: reconcile.View{Jobs: newer, Version: 7}}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{Type: interfaces.EventJobsReconciled, Payload: reconcile.View{Jobs: older, Version: 6}}))

	sub.FlushJobs(ctx)

	msg := readMessage(t, conn)
	require.Equal(t, MessageJobs, msg.Type)
	assert.Len(t, msg.Payload.([]interface{}), 2)
}

func TestEventSubscriber_BridgesStatusAndCommands(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: status.Status{Indicator: status.IndicatorReconnecting},
	}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventCommandIssued,
		Payload: models.CommandRecord{ID: "cmd_1", Kind: models.CommandResume, JobID: "J1"},
	}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventLogLine,
		Payload: logs.Line{Level: "WRN", Message: "Snapshot refresh failed"},
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageStatus, msg.Type)
	assert.Equal(t, "reconnecting", msg.Payload.(map[string]interface{})["indicator"])

	msg = readMessage(t, conn)
	assert.Equal(t, MessageCommand, msg.Type)

	msg = readMessage(t, conn)
	assert.Equal(t, MessageLog, msg.Type)
}

func TestEventSubscriber_Whitelist(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{AllowedEvents: []string{MessageCommand}})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: status.Status{Indicator: status.IndicatorOffline},
	}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventCommandIssued,
		Payload: models.CommandRecord{ID: "cmd_1", Kind: models.CommandPause, JobID: "J1"},
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageCommand, msg.Type)
}

// drainIndicators reads status messages until the feed goes quiet
func drainIndicators(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	var indicators []string
	for {
		conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return indicators
		}
		if msg.Type == MessageStatus {
			indicators = append(indicators, msg.Payload.(map[string]interface{})["indicator"].(string))
		}
	}
}

func TestEventSubscriber_StatusFeedEndsOnLatest(t *testing.T) {
	for round := 0; round < 20; round++ {
		bus := events.NewService(arbor.NewLogger())
		svc := status.NewService(bus, 10, arbor.NewLogger())
		h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
		NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{})

		conn := dial(t, startFeed(t, h))
		waitForClients(t, h, 1)

		svc.RecordTransition(live.Transition{From: live.StateDisconnected, To: live.StateConnecting}, false)
		svc.RecordTransition(live.Transition{From: live.StateConnecting, To: live.StateConnected}, false)

		indicators := drainIndicators(t, conn)
		require.NotEmpty(t, indicators, "round %d", round)
		assert.Equal(t, string(svc.GetStatus().Indicator), indicators[len(indicators)-1], "round %d", round)
	}
}

func TestEventSubscriber_DropsStaleStatus(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: status.Status{Indicator: status.IndicatorReconnecting, Seq: 2},
	}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: status.Status{Indicator: status.IndicatorConnecting, Seq: 1},
	}))

	assert.Equal(t, []string{"reconnecting"}, drainIndicators(t, conn))
}

// A snapshot view replaces an older pending live view, and an older view
// reaching the flush after a newer one is not sent
func TestEventSubscriber_FlushesNewestView(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	h := NewWebSocketHandler(nil, nil, nil, arbor.NewLogger())
	sub := NewEventSubscriber(h, bus, arbor.NewLogger(), &common.WebSocketConfig{JobsThrottle: "1h"})

	conn := dial(t, startFeed(t, h))
	waitForClients(t, h, 1)

	ctx := context.Background()
	one := []models.ReconciledJob{{Profile: models.JobStaticProfile{ID: "J1"}}}
	two := []models.ReconciledJob{{Profile: models.JobStaticProfile{ID: "J1"}}, {Profile: models.JobStaticProfile{ID: "J2"}}}

	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobsReconciled,
		Payload: reconcile.View{Jobs: one, Version: 2, LiveAt: time.Now()},
	}))
	require.NoError(t, bus.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventJobsReconciled,
		Payload: reconcile.View{Jobs: two, Version: 3, SnapshotAt: time.Now()},
	}))

	msg := readMessage(t, conn)
	require.Equal(t, MessageJobs, msg.Type)
	assert.Len(t, msg.Payload.([]interface{}), 2)

	sub.FlushJobs(ctx)
	sub.flushJobs(ctx, MessageJobs, reconcile.View{Jobs: one, Version: 2})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
