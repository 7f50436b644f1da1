package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/services/live"
	"github.com/ternarybob/corrudash/internal/services/snapshot"
)

// Indicator is the single connection light shown to operators
type Indicator string

const (
	IndicatorOnline       Indicator = "online"       // live stream connected
	IndicatorConnecting   Indicator = "connecting"   // first connection in progress
	IndicatorReconnecting Indicator = "reconnecting" // lost the stream, retrying
	IndicatorOffline      Indicator = "offline"      // disconnected on request
	IndicatorFailed       Indicator = "failed"       // reconnect attempts exhausted
)

// LiveStatus describes the live stream subscriber
type LiveStatus struct {
	State        string    `json:"state"`
	Failures     int       `json:"failures"`
	MaxAttempts  int       `json:"max_attempts"`
	RetryPending bool      `json:"retry_pending"`
	LastError    string    `json:"last_error,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

// SnapshotStatus describes the most recent REST fetches
type SnapshotStatus struct {
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastAttempt   *time.Time `json:"last_attempt,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	JobCount      int        `json:"job_count"`
	Stale         bool       `json:"stale"` // last attempt failed; an older snapshot is being served
}

// Status is the full connection status
type Status struct {
	Indicator Indicator      `json:"indicator"`
	Live      LiveStatus     `json:"live"`
	Snapshot  SnapshotStatus `json:"snapshot"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       uint64         `json:"seq"` // increases with every recorded change
}

// Service tracks connection status and broadcasts changes
type Service struct {
	mu           sync.RWMutex
	live         LiveStatus
	snapshot     SnapshotStatus
	seq          uint64
	eventService interfaces.EventService
	logger       arbor.ILogger
	now          func() time.Time
}

// NewService creates a status service for a subscriber with the given
// reconnect budget
func NewService(eventService interfaces.EventService, maxAttempts int, logger arbor.ILogger) *Service {
	return &Service{
		live: LiveStatus{
			State:       live.StateDisconnected.String(),
			MaxAttempts: maxAttempts,
		},
		eventService: eventService,
		logger:       logger,
		now:          time.Now,
	}
}

// RecordTransition updates the live stream status from a subscriber transition
func (s *Service) RecordTransition(t live.Transition, retryPending bool) {
	s.mu.Lock()
	s.live.State = t.To.String()
	s.live.Failures = t.Failures
	s.live.RetryPending = retryPending
	s.live.ChangedAt = s.now()
	switch {
	case t.Err != nil:
		s.live.LastError = t.Err.Error()
	case t.Event.Err != nil:
		s.live.LastError = t.Event.Err.Error()
	case t.To == live.StateConnected:
		s.live.LastError = ""
	}
	st := s.changedLocked()
	s.mu.Unlock()

	if t.To == live.StateFailed {
		s.logger.Warn().
			Int("failures", t.Failures).
			Msg("Live stream failed; operator action required to reconnect")
	}

	s.publish(st)
}

// RecordSnapshotSuccess marks a successful fetch of count jobs
func (s *Service) RecordSnapshotSuccess(count int) {
	now := s.now()

	s.mu.Lock()
	s.snapshot.LastAttempt = &now
	s.snapshot.LastSuccess = &now
	s.snapshot.LastError = ""
	s.snapshot.LastErrorKind = ""
	s.snapshot.JobCount = count
	s.snapshot.Stale = false
	st := s.changedLocked()
	s.mu.Unlock()

	s.publish(st)
}

// RecordSnapshotFailure marks a failed fetch. The previous snapshot, if any,
// stays in service and is flagged stale.
func (s *Service) RecordSnapshotFailure(err error) {
	now := s.now()

	kind := ""
	var fetchErr *snapshot.FetchError
	if errors.As(err, &fetchErr) {
		kind = string(fetchErr.Kind)
	}

	s.mu.Lock()
	s.snapshot.LastAttempt = &now
	s.snapshot.LastError = err.Error()
	s.snapshot.LastErrorKind = kind
	s.snapshot.Stale = s.snapshot.LastSuccess != nil
	st := s.changedLocked()
	s.mu.Unlock()

	s.publish(st)
}

// GetStatus returns a copy of the current status
func (s *Service) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

// changedLocked bumps the sequence and returns the status to publish.
// Callers hold s.mu for writing.
func (s *Service) changedLocked() Status {
	s.seq++
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	return Status{
		Indicator: indicatorFor(s.live.State),
		Live:      s.live,
		Snapshot:  copySnapshot(s.snapshot),
		Timestamp: s.now(),
		Seq:       s.seq,
	}
}

func (s *Service) publish(st Status) {
	if s.eventService == nil {
		return
	}
	event := interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: st,
	}
	if err := s.eventService.Publish(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish status change")
	}
}

func indicatorFor(state string) Indicator {
	switch state {
	case live.StateConnected.String():
		return IndicatorOnline
	case live.StateConnecting.String():
		return IndicatorConnecting
	case live.StateReconnecting.String():
		return IndicatorReconnecting
	case live.StateFailed.String():
		return IndicatorFailed
	}
	return IndicatorOffline
}

func copySnapshot(s SnapshotStatus) SnapshotStatus {
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		s.LastSuccess = &t
	}
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		s.LastAttempt = &t
	}
	return s
}
