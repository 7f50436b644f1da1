package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/interfaces"
)

// DefaultSchedule refreshes every five minutes
const DefaultSchedule = "0 */5 * * * *"

// RefreshFunc performs one snapshot refresh
type RefreshFunc func(ctx context.Context) error

// Service implements SchedulerService by running a refresh on a cron schedule
type Service struct {
	refresh RefreshFunc
	timeout time.Duration
	cron    *cron.Cron
	logger  arbor.ILogger

	mu        sync.Mutex // protects the fields below
	running   bool
	schedule  string
	entryID   cron.EntryID
	isRunning bool
	lastRun   *time.Time
	lastError string
	runs      int

	globalMu sync.Mutex // prevents overlapping refreshes
}

// NewService creates a scheduler. timeout bounds each run; zero means one minute.
func NewService(refresh RefreshFunc, timeout time.Duration, logger arbor.ILogger) interfaces.SchedulerService {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Service{
		refresh: refresh,
		timeout: timeout,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}
}

// Start begins the scheduler with the given cron expression
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if err := common.ValidateRefreshSchedule(schedule); err != nil {
		return err
	}

	id, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = id
	s.schedule = schedule
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Msg("Snapshot refresh scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running refresh
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Snapshot refresh scheduler stopped")
	return nil
}

// RunNow triggers an immediate refresh
func (s *Service) RunNow() {
	s.logger.Info().Msg("Triggering immediate snapshot refresh")
	common.SafeGo(s.logger, "scheduler:run-now", s.runScheduled)
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the schedule and the outcome of the last run
func (s *Service) Status() interfaces.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := interfaces.ScheduleStatus{
		Enabled:   s.running,
		Schedule:  s.schedule,
		IsRunning: s.isRunning,
		LastError: s.lastError,
		Runs:      s.runs,
	}
	if s.lastRun != nil {
		t := *s.lastRun
		status.LastRun = &t
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

func (s *Service) runScheduled() {
	if !s.globalMu.TryLock() {
		s.logger.Debug().Msg("Snapshot refresh already in progress, skipping")
		return
	}
	defer s.globalMu.Unlock()

	started := time.Now()
	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.refresh(ctx)

	s.mu.Lock()
	s.isRunning = false
	s.lastRun = &started
	s.runs++
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().
			Err(err).
			Msg("Scheduled snapshot refresh failed")
		return
	}

	s.logger.Debug().
		Dur("duration", time.Since(started)).
		Msg("Scheduled snapshot refresh completed")
}
