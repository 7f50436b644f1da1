package logs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/corrudash/internal/interfaces"
)

// MockEventService is a mock implementation of EventService
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return m.Called(eventType, handler).Error(0)
}

func (m *MockEventService) Unsubscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return m.Called(eventType, handler).Error(0)
}

func (m *MockEventService) Publish(ctx context.Context, event interfaces.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventService) PublishSync(ctx context.Context, event interfaces.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventService) Close() error {
	return m.Called().Error(0)
}

func line(level, msg string) Line {
	return Line{Level: level, Message: msg}
}

func TestBuffer_RecentOrderAndWrap(t *testing.T) {
	b := NewBuffer(3)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Recent(0, ""))

	b.Append(line("INF", "one"), line("INF", "two"))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []Line{line("INF", "one"), line("INF", "two")}, b.Recent(0, ""))

	b.Append(line("INF", "three"), line("INF", "four"))
	assert.Equal(t, 3, b.Len())

	recent := b.Recent(0, "")
	require.Len(t, recent, 3)
	assert.Equal(t, "two", recent[0].Message)
	assert.Equal(t, "four", recent[2].Message)

	limited := b.Recent(2, "")
	require.Len(t, limited, 2)
	assert.Equal(t, "three", limited[0].Message)
}

func TestBuffer_LevelFilter(t *testing.T) {
	b := NewBuffer(10)
	b.Append(line("DBG", "d"), line("INF", "i"), line("WRN", "w"), line("ERR", "e"))

	assert.Len(t, b.Recent(0, ""), 4)
	assert.Len(t, b.Recent(0, "info"), 3)
	assert.Len(t, b.Recent(0, "warn"), 2)
	assert.Len(t, b.Recent(0, "ERR"), 1)
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	b := NewBuffer(0)
	for i := 0; i < DefaultBufferSize+5; i++ {
		b.Append(line("INF", fmt.Sprintf("%d", i)))
	}
	assert.Equal(t, DefaultBufferSize, b.Len())
}

func TestConvertTo3Letter(t *testing.T) {
	tests := map[string]string{
		"info":    "INF",
		"WARNING": "WRN",
		"error":   "ERR",
		"fatal":   "ERR",
		"debug":   "DBG",
		"trace":   "DBG",
		"wrn":     "WRN",
		"bogus":   "INF",
	}
	for in, want := range tests {
		assert.Equal(t, want, convertTo3Letter(in), in)
	}
}

func TestTransformEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)
	got := transformEvent(arbormodels.LogEvent{
		Level:         log.WarnLevel,
		Timestamp:     at,
		Message:       "Snapshot refresh failed",
		CorrelationID: "req-1",
	})

	assert.Equal(t, "10:15:30", got.Timestamp)
	assert.Equal(t, "2024-03-01T10:15:30Z", got.FullTimestamp)
	assert.Equal(t, "WRN", got.Level)
	assert.Equal(t, "Snapshot refresh failed", got.Message)
	assert.Equal(t, "req-1", got.CorrelationID)
}

func TestConsumer_BuffersAndPublishes(t *testing.T) {
	events := &MockEventService{}
	events.On("Publish", mock.Anything, mock.MatchedBy(func(e interfaces.Event) bool {
		l, ok := e.Payload.(Line)
		return e.Type == interfaces.EventLogLine && ok && l.Message == "Live stream state changed"
	})).Return(nil).Once()

	buffer := NewBuffer(10)
	c := NewConsumer(buffer, events, arbor.NewLogger(), "warn", []string{"HTTP request"})
	require.NoError(t, c.Start())
	defer c.Stop()

	now := time.Now()
	c.GetChannel() <- []arbormodels.LogEvent{
		{Level: log.InfoLevel, Timestamp: now, Message: "Snapshot refreshed"},
		{Level: log.WarnLevel, Timestamp: now, Message: "Live stream state changed"},
		{Level: log.ErrorLevel, Timestamp: now, Message: "HTTP request - server error"},
	}

	require.Eventually(t, func() bool {
		return buffer.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)

	lines := buffer.Recent(0, "")
	assert.Equal(t, "Snapshot refreshed", lines[0].Message)
	assert.Equal(t, "Live stream state changed", lines[1].Message)

	events.AssertExpectations(t)
	assert.Same(t, buffer, c.Buffer())
}

func TestConsumer_StopIsClean(t *testing.T) {
	c := NewConsumer(NewBuffer(1), nil, arbor.NewLogger(), "info", nil)
	require.NoError(t, c.Start())
	assert.NoError(t, c.Stop())
}

func TestLineMatches(t *testing.T) {
	l := line("INF", "WebSocket client connected")
	assert.True(t, l.Matches([]string{"WebSocket client"}))
	assert.False(t, l.Matches([]string{"", "other"}))
	assert.False(t, l.Matches(nil))
}
