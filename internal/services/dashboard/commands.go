package dashboard

import (
	"context"
	"fmt"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/interfaces"
	"github.com/ternarybob/corrudash/internal/models"
)

// Pause asks the backend to set the job's status to paused
func (s *Service) Pause(ctx context.Context, id string) (models.CommandRecord, error) {
	return s.setStatus(ctx, models.CommandPause, id, models.JobStatusPaused)
}

// Resume asks the backend to set the job's status back to in-progress
func (s *Service) Resume(ctx context.Context, id string) (models.CommandRecord, error) {
	return s.setStatus(ctx, models.CommandResume, id, models.JobStatusInProgress)
}

// UpdateJob applies a partial field edit on top of the cached profile and
// sends the full record. The status defaults to the job's live status, or
// pending when the stream has not reported one.
func (s *Service) UpdateJob(ctx context.Context, id string, update models.JobFieldUpdate) (models.CommandRecord, error) {
	profile, ok := s.store.Profile(id)
	if !ok {
		return models.CommandRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	req := profile.UpdateRequest(s.currentStatus(profile))
	req = update.Apply(req)
	return s.issue(ctx, models.CommandUpdate, id, req)
}

// ApplySettings records that the operator applied the job's current
// recommendation. Nothing is sent to the backend.
func (s *Service) ApplySettings(id string) (models.AppliedSettings, error) {
	profile, ok := s.store.Profile(id)
	if !ok {
		return models.AppliedSettings{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	applied := models.AppliedSettings{
		JobID:     id,
		Settings:  profile.Recommendation,
		AppliedAt: s.now(),
	}

	s.appliedMu.Lock()
	s.applied[id] = applied
	s.appliedMu.Unlock()

	record := models.CommandRecord{
		ID:       common.NewCommandID(),
		Kind:     models.CommandApplySettings,
		JobID:    id,
		IssuedAt: applied.AppliedAt,
	}
	s.publish(interfaces.EventCommandIssued, record)

	s.logger.Info().
		Str("job_id", id).
		Bool("fallback", profile.Recommendation.Fallback).
		Msg("Recommended settings applied")

	return applied, nil
}

func (s *Service) setStatus(ctx context.Context, kind models.CommandKind, id string, status models.JobStatus) (models.CommandRecord, error) {
	profile, ok := s.store.Profile(id)
	if !ok {
		return models.CommandRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return s.issue(ctx, kind, id, profile.UpdateRequest(status))
}

func (s *Service) issue(ctx context.Context, kind models.CommandKind, id string, req models.UpdateJobRequest) (models.CommandRecord, error) {
	if err := s.commander.UpdateJob(ctx, id, req); err != nil {
		s.logger.Warn().
			Err(err).
			Str("job_id", id).
			Str("command", string(kind)).
			Msg("Job command rejected")
		return models.CommandRecord{}, fmt.Errorf("%s job %s: %w", kind, id, err)
	}

	record := models.CommandRecord{
		ID:       common.NewCommandID(),
		Kind:     kind,
		JobID:    id,
		Status:   req.Status,
		IssuedAt: s.now(),
	}
	s.publish(interfaces.EventCommandIssued, record)

	s.logger.Info().
		Str("command_id", record.ID).
		Str("job_id", id).
		Str("command", string(kind)).
		Str("status", req.Status).
		Msg("Job command issued")

	// The backend is the source of truth; pick up its view of the change.
	// A failed refresh does not fail the command.
	_ = s.Refresh(ctx, TriggerCommand)

	return record, nil
}

func (s *Service) currentStatus(profile models.JobStaticProfile) models.JobStatus {
	for _, job := range s.store.Current() {
		if job.ID() == profile.ID && job.HasLiveData && job.Live.Status != models.JobStatusUnknown {
			return job.Live.Status
		}
	}
	if profile.ReportedStatus != "" && profile.ReportedStatus != models.JobStatusUnknown {
		return profile.ReportedStatus
	}
	return models.JobStatusPending
}
