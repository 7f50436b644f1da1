package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case models.CommandRecord:
			logEvent = logEvent.
				Str("command_id", payload.ID).
				Str("kind", string(payload.Kind)).
				Str("job_id", payload.JobID)
		case map[string]interface{}:
			if trigger, ok := payload["trigger"].(string); ok {
				logEvent = logEvent.Str("trigger", trigger)
			}
			if count, ok := payload["job_count"].(int); ok {
				logEvent = logEvent.Int("job_count", count)
			}
			if reason, ok := payload["error"].(string); ok {
				logEvent = logEvent.Str("error", reason)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every event type except
// log lines, which would feed back into the log channel
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	count := 0
	for _, eventType := range interfaces.AllEventTypes {
		if eventType == interfaces.EventLogLine {
			continue
		}
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
		count++
	}

	logger.Info().
		Int("event_type_count", count).
		Msg("Logger subscribed to all event types")

	return nil
}
