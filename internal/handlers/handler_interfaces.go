package handlers

import (
	"context"

	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/logs"
	"github.com/ternarybob/corrudash/internal/models"
	"github.com/ternarybob/corrudash/internal/services/projections"
	"github.com/ternarybob/corrudash/internal/services/status"
)

// JobsService is the dashboard session as seen by the HTTP layer
type JobsService interface {
	SummaryRows() []projections.SummaryRow
	Detail(id string) (projections.DetailRecord, error)
	TrendSeries() []projections.TrendPoint
	Alerts() []projections.Alert
	KPI() projections.KPI
	RequestRefresh(ctx context.Context) error

	Pause(ctx context.Context, id string) (models.CommandRecord, error)
	Resume(ctx context.Context, id string) (models.CommandRecord, error)
	UpdateJob(ctx context.Context, id string, update models.JobFieldUpdate) (models.CommandRecord, error)
	ApplySettings(id string) (models.AppliedSettings, error)
}

// StatusProvider reports the current connection status
type StatusProvider interface {
	GetStatus() status.Status
}

// ScheduleProvider reports the refresh scheduler's state
type ScheduleProvider interface {
	Status() interfaces.ScheduleStatus
}

// LogSource returns recent log lines, oldest first
type LogSource interface {
	Recent(limit int, minLevel string) []logs.Line
}
