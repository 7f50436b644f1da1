package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/logs"
	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/events"
	"github.com/ternarybob/corrudash/internal/services/projections"
	"github.com/ternarybob/corrudash/internal/services/reconcile"
	"github.com/ternarybob/corrudash/internal/services/status"
)

const (
	// log lines beyond this rate are dropped from the feed; they stay in the
	// buffer behind /api/logs/recent
	logLinesPerSecond = 50
	logBurst          = 100
)

// EventSubscriber bridges event bus events to the websocket feed, with
// config-driven filtering and throttling
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool // Whitelist of message types to broadcast (empty = allow all)
	jobs          *events.Coalescer
	logThrottler  *rate.Limiter

	viewMu         sync.Mutex
	lastVersion    uint64
	lastSnapshotAt time.Time

	flushMu        sync.Mutex
	flushedVersion uint64

	statusMu      sync.Mutex
	lastStatusSeq uint64
}

// NewEventSubscriber creates an event subscriber and subscribes it to the bus
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
		logThrottler: rate.NewLimiter(rate.Limit(logLinesPerSecond), logBurst),
	}

	s.allowedEvents = make(map[string]bool)
	var throttle string
	if config != nil {
		for _, msgType := range config.AllowedEvents {
			s.allowedEvents[msgType] = true
		}
		throttle = config.JobsThrottle
	}

	s.jobs = events.NewCoalescer(common.ParseDurationOr(throttle, 0), s.flushJobs, logger)

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers the feed's subscriptions
func (s *EventSubscriber) SubscribeAll() {
	if s.eventService == nil {
		s.logger.Warn().Msg("Cannot subscribe to events - eventService is nil")
		return
	}

	subscriptions := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventJobsReconciled: s.handleJobsReconciled,
		interfaces.EventStatusChanged:  s.handleStatusChanged,
		interfaces.EventCommandIssued:  s.handleCommandIssued,
		interfaces.EventLogLine:        s.handleLogLine,
	}
	for eventType, handler := range subscriptions {
		if err := s.eventService.Subscribe(eventType, handler); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_type", string(eventType)).
				Msg("Failed to subscribe websocket feed")
		}
	}

	s.logger.Info().
		Dur("jobs_throttle", s.jobs.Interval()).
		Msg("EventSubscriber registered for jobs, status, command and log events")
}

// Start begins periodic job broadcasts. They stop when ctx is cancelled.
func (s *EventSubscriber) Start(ctx context.Context) {
	s.jobs.StartPeriodicFlush(ctx)
}

// FlushJobs broadcasts any pending job view immediately
func (s *EventSubscriber) FlushJobs(ctx context.Context) {
	s.jobs.FlushAll(ctx)
}

func (s *EventSubscriber) handleJobsReconciled(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcast(MessageJobs) {
		return nil
	}

	view, ok := event.Payload.(reconcile.View)
	if !ok {
		s.logger.Warn().Msg("Invalid jobs reconciled event payload type")
		return nil
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	current, newSnapshot := s.admitViewLocked(view)
	if !current {
		return nil
	}

	// A new snapshot goes out at once; live ticks only need the newest view
	// and are overwritten until the next flush
	if newSnapshot {
		s.jobs.TriggerImmediately(ctx, MessageJobs, view)
		return nil
	}
	s.jobs.Record(MessageJobs, view)
	return nil
}

// admitViewLocked rejects views older than one already seen (the bus delivers
// asynchronously) and reports whether view carries a newer snapshot.
// Callers hold viewMu.
func (s *EventSubscriber) admitViewLocked(view reconcile.View) (current, newSnapshot bool) {
	if view.Version != 0 && view.Version <= s.lastVersion {
		return false, false
	}
	s.lastVersion = view.Version

	if view.SnapshotAt.After(s.lastSnapshotAt) {
		s.lastSnapshotAt = view.SnapshotAt
		return true, true
	}
	return true, false
}

// flushJobs broadcasts a view unless a newer one already went out
func (s *EventSubscriber) flushJobs(ctx context.Context, key string, payload interface{}) {
	view, ok := payload.(reconcile.View)
	if !ok {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if view.Version != 0 && view.Version <= s.flushedVersion {
		return
	}
	s.flushedVersion = view.Version
	s.handler.BroadcastJobs(projections.ToSummaryRows(view.Jobs))
}

func (s *EventSubscriber) handleStatusChanged(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcast(MessageStatus) {
		return nil
	}

	st, ok := event.Payload.(status.Status)
	if !ok {
		s.logger.Warn().Msg("Invalid status changed event payload type")
		return nil
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	// Statuses recorded back to back can be delivered in either order
	if st.Seq != 0 && st.Seq <= s.lastStatusSeq {
		return nil
	}
	s.lastStatusSeq = st.Seq
	s.handler.BroadcastStatus(st)
	return nil
}

func (s *EventSubscriber) handleCommandIssued(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcast(MessageCommand) {
		return nil
	}

	record, ok := event.Payload.(models.CommandRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid command issued event payload type")
		return nil
	}

	s.handler.BroadcastCommand(record)
	return nil
}

func (s *EventSubscriber) handleLogLine(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcast(MessageLog) || !s.logThrottler.Allow() {
		return nil
	}

	// No logging on a bad payload here; it would come straight back as a log line
	line, ok := event.Payload.(logs.Line)
	if !ok {
		return nil
	}

	s.handler.BroadcastLog(line)
	return nil
}

// shouldBroadcast checks the whitelist (empty = allow all)
func (s *EventSubscriber) shouldBroadcast(msgType string) bool {
	return len(s.allowedEvents) == 0 || s.allowedEvents[msgType]
}
