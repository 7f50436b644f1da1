package interfaces

import (
	"context"

	"github.com/ternarybob/corrudash/internal/models"
)

// SnapshotFetcher loads the full job list from the REST backend
type SnapshotFetcher interface {
	FetchAllJobs(ctx context.Context) ([]models.JobStaticProfile, error)
}

// JobCommander sends job commands to the REST backend
type JobCommander interface {
	UpdateJob(ctx context.Context, id string, req models.UpdateJobRequest) error
}

// BackendProbe reports the REST backend's health
type BackendProbe interface {
	Health(ctx context.Context) (models.BackendHealth, error)
}

// LiveConnector controls the live stream connection. Both calls return
// immediately; progress is reported through state change callbacks.
type LiveConnector interface {
	Connect()
	Disconnect()
}
