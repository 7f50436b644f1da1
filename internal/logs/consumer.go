package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/corrudash/internal/interfaces"
)

// Consumer consumes log batches from arbor's context channel, keeps them in
// the buffer and publishes them to the event bus for the websocket feed
type Consumer struct {
	buffer          *Buffer
	eventService    interfaces.EventService
	logger          arbor.ILogger
	channel         chan []arbormodels.LogEvent
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	minEventLevel   arbor.LogLevel // Minimum log level to publish as events
	excludePatterns []string
}

// NewConsumer creates a new log consumer
func NewConsumer(buffer *Buffer, eventService interfaces.EventService, logger arbor.ILogger, minEventLevel string, excludePatterns []string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		buffer:          buffer,
		eventService:    eventService,
		logger:          logger,
		channel:         make(chan []arbormodels.LogEvent, 10),
		ctx:             ctx,
		cancel:          cancel,
		minEventLevel:   parseLogLevel(minEventLevel),
		excludePatterns: excludePatterns,
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR", "FATAL", "PANIC":
		return "ERR"
	case "DEBUG", "TRACE":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Buffer returns the ring of recent lines
func (c *Consumer) Buffer() *Buffer {
	return c.buffer
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("LogConsumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	lines := make([]Line, 0, len(batch))
	for _, event := range batch {
		line := transformEvent(event)
		if line.Matches(c.excludePatterns) {
			continue
		}
		lines = append(lines, line)

		if c.eventService != nil && c.shouldPublishEvent(event.Level) {
			c.publishLine(line)
		}
	}

	if c.buffer != nil && len(lines) > 0 {
		c.buffer.Append(lines...)
	}
}

// shouldPublishEvent checks if a log event should be published based on level threshold
func (c *Consumer) shouldPublishEvent(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minEventLevel
}

func (c *Consumer) publishLine(line Line) {
	err := c.eventService.Publish(c.ctx, interfaces.Event{
		Type:    interfaces.EventLogLine,
		Payload: line,
	})
	if err != nil {
		c.logger.Warn().
			Err(err).
			Msg("Failed to publish log line")
	}
}

// transformEvent converts an arbor LogEvent into a feed line
func transformEvent(event arbormodels.LogEvent) Line {
	line := Line{
		Timestamp:     event.Timestamp.Format("15:04:05"),
		FullTimestamp: event.Timestamp.Format(time.RFC3339),
		Level:         convertTo3Letter(event.Level.String()),
		Message:       event.Message,
		CorrelationID: event.CorrelationID,
	}

	if len(event.Fields) > 0 {
		line.Fields = make(map[string]string, len(event.Fields))
		for key, value := range event.Fields {
			line.Fields[key] = fmt.Sprintf("%v", value)
		}
	}

	return line
}
