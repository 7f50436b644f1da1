package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JobStatus is the lifecycle status of a production job
type JobStatus string

const (
	JobStatusUnknown    JobStatus = "unknown" // No live data yet, or an unrecognised status
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
)

// ParseJobStatus maps a wire status onto a JobStatus.
// Returns JobStatusUnknown and false for anything unrecognised.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(strings.ToLower(strings.TrimSpace(s))) {
	case JobStatusPending:
		return JobStatusPending, true
	case JobStatusInProgress:
		return JobStatusInProgress, true
	case JobStatusPaused:
		return JobStatusPaused, true
	case JobStatusCompleted:
		return JobStatusCompleted, true
	}
	return JobStatusUnknown, false
}

// Confidence scores assumed when the recommendation engine does not report one
const (
	DefaultConfidence  = 0.85
	FallbackConfidence = 0.6
)

// Recommendation holds the machine settings suggested by the upstream model
type Recommendation struct {
	Speed       float64 `json:"speed"`       // m/min
	Temperature float64 `json:"temperature"` // steam temperature, °C
	GlueGap     float64 `json:"glue_gap"`    // µm
	Pressure    float64 `json:"pressure"`
	Steam       float64 `json:"steam"`
	Confidence  float64 `json:"confidence"`
	Fallback    bool    `json:"fallback"` // model could not produce a high-confidence answer
}

// JobStaticProfile is the part of a job that only the snapshot knows about.
// Profiles are replaced wholesale on every fetch, never patched.
type JobStaticProfile struct {
	ID             string         `json:"job_id"`
	Flute          string         `json:"flute"`
	GSM            float64        `json:"gsm"`
	Length         float64        `json:"length"`
	Width          float64        `json:"width"`
	Printing       int            `json:"printing"`
	Shift          string         `json:"shift"`
	Experience     string         `json:"experience"`
	Quantity       int            `json:"quantity"`
	PredictedWaste float64        `json:"predicted_waste"` // kg
	Recommendation Recommendation `json:"recommendation"`

	// Status as reported by the snapshot at fetch time. Informational only;
	// reconciliation takes status from the live stream.
	ReportedStatus JobStatus  `json:"reported_status"`
	ReportedStart  *time.Time `json:"reported_start,omitempty"`
}

// PaperGrade renders the material grade shown to operators, e.g. "BC - 150gsm"
func (p JobStaticProfile) PaperGrade() string {
	return fmt.Sprintf("%s - %sgsm", p.Flute, formatNumber(p.GSM))
}

// Thickness renders the board dimension used as thickness in the UI
func (p JobStaticProfile) Thickness() string {
	return formatNumber(p.Length) + "mm"
}

// JobLiveState is the mutable part of a job delivered by the live stream.
// Each stream payload supersedes the previous one wholesale.
type JobLiveState struct {
	ID             string     `json:"job_id"`
	Status         JobStatus  `json:"status"`
	Progress       float64    `json:"progress"`        // 0.0 - 1.0
	GeneratedWaste float64    `json:"generated_waste"` // kg
	TimeTaken      float64    `json:"time_taken"`      // seconds
	StartTime      *time.Time `json:"start_time,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// DefaultLiveState is the state of a job the stream has not mentioned yet
func DefaultLiveState(id string) JobLiveState {
	return JobLiveState{
		ID:     id,
		Status: JobStatusUnknown,
	}
}

// ReconciledJob joins a static profile with the live state sharing its identity.
// It is recomputed from scratch whenever either input changes.
type ReconciledJob struct {
	Profile     JobStaticProfile `json:"profile"`
	Live        JobLiveState     `json:"live"`
	HasLiveData bool             `json:"has_live_data"`
	WasteRisk   float64          `json:"waste_risk"` // 0 - 100
	DisplayName string           `json:"display_name"`
}

// ID returns the job identity
func (j ReconciledJob) ID() string {
	return j.Profile.ID
}

// CompletionPercent converts fractional progress into a percentage with two decimals
func (j ReconciledJob) CompletionPercent() float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(j.Live.Progress*100, 'f', 2, 64), 64)
	return v
}

// StartTime prefers the live start time and falls back to the snapshot's
func (j ReconciledJob) StartTime() *time.Time {
	if j.Live.StartTime != nil {
		return j.Live.StartTime
	}
	return j.Profile.ReportedStart
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
