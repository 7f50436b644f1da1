// Package dashboard owns one dashboard session: the reconciliation store and
// the wiring that feeds it from the snapshot fetcher and the live stream.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/live"
	"github.com/ternarybob/corrudash/internal/services/projections"
	"github.com/ternarybob/corrudash/internal/services/reconcile"
	"github.com/ternarybob/corrudash/internal/services/status"
	"github.com/ternarybob/corrudash/internal/services/snapshot"
)

var (
	// ErrJobNotFound is returned for ids absent from the current snapshot
	ErrJobNotFound = errors.New("job not found")

	// ErrRefreshThrottled is returned when manual refreshes come too fast
	ErrRefreshThrottled = errors.New("refresh throttled")
)

// Trigger names what started a snapshot refresh
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerCommand  Trigger = "command"
)

// Options tunes a Service
type Options struct {
	MinRefreshInterval time.Duration // gap enforced between manual refreshes
	TrendBucket        time.Duration
}

// Service is a dashboard session
type Service struct {
	fetcher   interfaces.SnapshotFetcher
	commander interfaces.JobCommander
	live      interfaces.LiveConnector
	store     *reconcile.Store
	status    *status.Service
	events    interfaces.EventService
	limiter   *rate.Limiter
	bucket    time.Duration
	logger    arbor.ILogger
	now       func() time.Time

	appliedMu sync.RWMutex
	applied   map[string]models.AppliedSettings
}

// NewService creates a session with an empty store. liveConn may be nil when
// the live stream is not wired (tests, snapshot-only deployments).
func NewService(
	fetcher interfaces.SnapshotFetcher,
	commander interfaces.JobCommander,
	liveConn interfaces.LiveConnector,
	statusService *status.Service,
	eventService interfaces.EventService,
	opts Options,
	logger arbor.ILogger,
) *Service {
	limit := rate.Inf
	if opts.MinRefreshInterval > 0 {
		limit = rate.Every(opts.MinRefreshInterval)
	}

	s := &Service{
		fetcher:   fetcher,
		commander: commander,
		live:      liveConn,
		store:     reconcile.NewStore(),
		status:    statusService,
		events:    eventService,
		limiter:   rate.NewLimiter(limit, 1),
		bucket:    opts.TrendBucket,
		logger:    logger,
		now:       time.Now,
		applied:   make(map[string]models.AppliedSettings),
	}
	s.store.OnChange(s.publishView)
	return s
}

// Store exposes the session's store
func (s *Service) Store() *reconcile.Store {
	return s.store
}

// Refresh fetches the snapshot and replaces the cached one. On failure the
// previous snapshot stays in place and the error is returned.
func (s *Service) Refresh(ctx context.Context, trigger Trigger) error {
	profiles, err := s.fetcher.FetchAllJobs(ctx)
	if err != nil {
		kind := ""
		var fetchErr *snapshot.FetchError
		if errors.As(err, &fetchErr) {
			kind = string(fetchErr.Kind)
		}

		s.logger.Warn().
			Err(err).
			Str("trigger", string(trigger)).
			Str("kind", kind).
			Msg("Snapshot refresh failed, keeping previous snapshot")

		if s.status != nil {
			s.status.RecordSnapshotFailure(err)
		}
		s.publish(interfaces.EventSnapshotFailed, map[string]interface{}{
			"error":   err.Error(),
			"kind":    kind,
			"trigger": string(trigger),
		})
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	view := s.store.SetSnapshot(profiles)
	s.pruneApplied(view.Jobs)

	if s.status != nil {
		s.status.RecordSnapshotSuccess(len(view.Jobs))
	}
	s.publish(interfaces.EventSnapshotRefreshed, map[string]interface{}{
		"job_count": len(view.Jobs),
		"trigger":   string(trigger),
	})

	s.logger.Info().
		Str("trigger", string(trigger)).
		Int("jobs", len(view.Jobs)).
		Msg("Snapshot refreshed")

	return nil
}

// RequestRefresh is an operator-triggered refresh, limited to one per
// MinRefreshInterval
func (s *Service) RequestRefresh(ctx context.Context) error {
	if !s.limiter.Allow() {
		return ErrRefreshThrottled
	}
	return s.Refresh(ctx, TriggerManual)
}

// HandleLiveUpdate replaces the live set. A nil set clears it.
func (s *Service) HandleLiveUpdate(states []models.JobLiveState) {
	s.store.SetLiveSet(states)
}

// HandleLiveTransition records a subscriber state change
func (s *Service) HandleLiveTransition(t live.Transition) {
	if s.status != nil {
		s.status.RecordTransition(t, t.Has(live.ActionScheduleRetry))
	}
}

// Connect starts (or restarts) the live stream
func (s *Service) Connect() {
	if s.live != nil {
		s.live.Connect()
	}
}

// Disconnect stops the live stream and clears live data
func (s *Service) Disconnect() {
	if s.live != nil {
		s.live.Disconnect()
	}
}

// Jobs returns the current reconciled jobs
func (s *Service) Jobs() []models.ReconciledJob {
	return s.store.Current()
}

// SummaryRows projects the current jobs into table rows
func (s *Service) SummaryRows() []projections.SummaryRow {
	return projections.ToSummaryRows(s.store.Current())
}

// Detail returns the detail record for id
func (s *Service) Detail(id string) (projections.DetailRecord, error) {
	record, ok := projections.ToDetailRecord(s.store.Current(), id)
	if !ok {
		return projections.DetailRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	record.TimeRemaining = projections.FormatRemaining(s.Remaining(id))

	s.appliedMu.RLock()
	if applied, ok := s.applied[id]; ok {
		record.AppliedSettings = &applied
	}
	s.appliedMu.RUnlock()

	return record, nil
}

// TrendSeries projects waste per time bucket
func (s *Service) TrendSeries() []projections.TrendPoint {
	return projections.ToTrendSeriesWithBucket(s.store.Current(), s.bucket)
}

// Alerts lists jobs at medium or high waste risk
func (s *Service) Alerts() []projections.Alert {
	return projections.ToAlerts(s.store.Current())
}

// KPI summarises all current jobs
func (s *Service) KPI() projections.KPI {
	return projections.ToKPI(s.store.Current())
}

// Remaining estimates time left for id
func (s *Service) Remaining(id string) (time.Duration, bool) {
	for _, job := range s.store.Current() {
		if job.ID() == id {
			return projections.EstimateRemaining(job, s.now())
		}
	}
	return 0, false
}

func (s *Service) publishView(view reconcile.View) {
	s.publish(interfaces.EventJobsReconciled, view)
}

func (s *Service) publish(eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event_type", string(eventType)).
			Msg("Failed to publish event")
	}
}

func (s *Service) pruneApplied(jobs []models.ReconciledJob) {
	present := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		present[job.ID()] = struct{}{}
	}

	s.appliedMu.Lock()
	defer s.appliedMu.Unlock()
	for id := range s.applied {
		if _, ok := present[id]; !ok {
			delete(s.applied, id)
		}
	}
}
