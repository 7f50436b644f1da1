package interfaces

import "time"

// ScheduleStatus describes the periodic snapshot refresh
type ScheduleStatus struct {
	Enabled   bool       `json:"enabled"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int        `json:"runs"`
}

// SchedulerService runs snapshot refreshes on a cron schedule
type SchedulerService interface {
	// Start the scheduler with a six-field cron expression
	Start(schedule string) error

	// Stop the scheduler and wait for a running refresh to finish
	Stop() error

	// RunNow triggers an immediate refresh outside the schedule
	RunNow()

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// Status returns the schedule and the outcome of the last run
	Status() ScheduleStatus
}
