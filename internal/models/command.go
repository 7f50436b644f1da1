package models

import "time"

// UpdateJobRequest is the body of the backend's PUT /update-job command.
// Pause and resume are expressed as an update carrying the new status.
type UpdateJobRequest struct {
	Length     float64 `json:"length" validate:"gte=0"`
	Width      float64 `json:"width" validate:"gte=0"`
	GSM        float64 `json:"gsm" validate:"gte=0"`
	Printing   int     `json:"printing" validate:"gte=0"`
	Quantity   int     `json:"quantity" validate:"gte=0"`
	Flute      string  `json:"flute" validate:"max=16"`
	Shift      string  `json:"shift" validate:"max=32"`
	Experience string  `json:"experience" validate:"max=32"`
	Status     string  `json:"status" validate:"required,oneof=pending in-progress paused completed"`
}

// UpdateRequest builds an update that keeps the profile's fields and sets status
func (p JobStaticProfile) UpdateRequest(status JobStatus) UpdateJobRequest {
	return UpdateJobRequest{
		Length:     p.Length,
		Width:      p.Width,
		GSM:        p.GSM,
		Printing:   p.Printing,
		Quantity:   p.Quantity,
		Flute:      p.Flute,
		Shift:      p.Shift,
		Experience: p.Experience,
		Status:     string(status),
	}
}

// JobFieldUpdate is a partial edit of a job's static fields. Nil fields keep
// the cached profile's value.
type JobFieldUpdate struct {
	Length     *float64 `json:"length,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	GSM        *float64 `json:"gsm,omitempty"`
	Printing   *int     `json:"printing,omitempty"`
	Quantity   *int     `json:"quantity,omitempty"`
	Flute      *string  `json:"flute,omitempty"`
	Shift      *string  `json:"shift,omitempty"`
	Experience *string  `json:"experience,omitempty"`
	Status     *string  `json:"status,omitempty"`
}

// Apply merges the edit onto a full request
func (u JobFieldUpdate) Apply(req UpdateJobRequest) UpdateJobRequest {
	if u.Length != nil {
		req.Length = *u.Length
	}
	if u.Width != nil {
		req.Width = *u.Width
	}
	if u.GSM != nil {
		req.GSM = *u.GSM
	}
	if u.Printing != nil {
		req.Printing = *u.Printing
	}
	if u.Quantity != nil {
		req.Quantity = *u.Quantity
	}
	if u.Flute != nil {
		req.Flute = *u.Flute
	}
	if u.Shift != nil {
		req.Shift = *u.Shift
	}
	if u.Experience != nil {
		req.Experience = *u.Experience
	}
	if u.Status != nil {
		req.Status = *u.Status
	}
	return req
}

// CommandKind names an operator command
type CommandKind string

const (
	CommandPause         CommandKind = "pause"
	CommandResume        CommandKind = "resume"
	CommandUpdate        CommandKind = "update"
	CommandApplySettings CommandKind = "apply_settings"
)

// CommandRecord describes a command the dashboard issued
type CommandRecord struct {
	ID       string      `json:"id"`
	Kind     CommandKind `json:"kind"`
	JobID    string      `json:"job_id"`
	Status   string      `json:"status,omitempty"`
	IssuedAt time.Time   `json:"issued_at"`
}

// AppliedSettings records that an operator acknowledged a recommendation.
// It is local to the dashboard; the backend is not told.
type AppliedSettings struct {
	JobID     string         `json:"job_id"`
	Settings  Recommendation `json:"settings"`
	AppliedAt time.Time      `json:"applied_at"`
}

// BackendHealth is the job backend's /health response
type BackendHealth struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
