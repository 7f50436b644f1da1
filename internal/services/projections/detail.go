package projections

import (
	"fmt"
	"time"

	"github.com/ternarybob/corrudash/internal/models"
)

// DryEndWasteShare is the share of predicted waste expected at the dry end
const DryEndWasteShare = 0.3

// Action plan titles
const (
	TitleFallback  = "Using Fallback Recommendations"
	TitleOptimized = "AI-Optimized Settings Active"
)

// ActionStep is one operator instruction. Delta fields carry the target value
// the step refers to, when there is one.
type ActionStep struct {
	Step     string   `json:"step"`
	DeltaMPM *float64 `json:"delta_mpm,omitempty"`
	DeltaC   *float64 `json:"delta_c,omitempty"`
}

// ActionPlan is the recommendation panel of the detail view
type ActionPlan struct {
	Title      string       `json:"title"`
	Confidence float64      `json:"confidence"`
	Fallback   bool         `json:"fallback"`
	Steps      []ActionStep `json:"steps"`
}

// DetailRecord is the current-job panel for a single job
type DetailRecord struct {
	ID                   string                  `json:"job_id"`
	JobName              string                  `json:"job_name"`
	Quantity             int                     `json:"quantity"`
	Completion           float64                 `json:"completion"`
	WasteRisk            float64                 `json:"waste_risk"`
	RiskTier             RiskTier                `json:"risk_tier"`
	PaperGrade           string                  `json:"paper_grade"`
	Flute                string                  `json:"flute"`
	Thickness            string                  `json:"thickness"`
	PredictedSetupWaste  float64                 `json:"predicted_setup_waste"`
	PredictedDryEndWaste float64                 `json:"predicted_dry_end_waste"`
	GeneratedWaste       float64                 `json:"generated_waste"`
	Speed                float64                 `json:"speed"`
	Steam                float64                 `json:"steam"`
	GlueGap              float64                 `json:"glue_gap"`
	Status               models.JobStatus        `json:"event_type"`
	HasLiveData          bool                    `json:"has_live_data"`
	Action               ActionPlan              `json:"action"`
	StartTime            *time.Time              `json:"start_time,omitempty"`
	EndTime              *time.Time              `json:"end_time,omitempty"`
	TimeTaken            float64                 `json:"time_taken"`
	TimeRemaining        string                  `json:"time_remaining,omitempty"`
	AppliedSettings      *models.AppliedSettings `json:"applied_settings,omitempty"`
}

// ToDetailRecord returns the record for id, or false if id is not in jobs
// (for example a job that dropped out of the latest snapshot).
func ToDetailRecord(jobs []models.ReconciledJob, id string) (DetailRecord, bool) {
	for _, job := range jobs {
		if job.ID() == id {
			return detailFor(job), true
		}
	}
	return DetailRecord{}, false
}

func detailFor(job models.ReconciledJob) DetailRecord {
	p := job.Profile
	rec := p.Recommendation

	return DetailRecord{
		ID:                   job.ID(),
		JobName:              job.DisplayName,
		Quantity:             p.Quantity,
		Completion:           job.CompletionPercent(),
		WasteRisk:            job.WasteRisk,
		RiskTier:             RiskTierFor(job.WasteRisk),
		PaperGrade:           p.PaperGrade(),
		Flute:                p.Flute,
		Thickness:            p.Thickness(),
		PredictedSetupWaste:  p.PredictedWaste,
		PredictedDryEndWaste: p.PredictedWaste * DryEndWasteShare,
		GeneratedWaste:       job.Live.GeneratedWaste,
		Speed:                rec.Speed,
		Steam:                rec.Temperature,
		GlueGap:              rec.GlueGap,
		Status:               job.Live.Status,
		HasLiveData:          job.HasLiveData,
		Action:               actionPlan(p),
		StartTime:            job.StartTime(),
		EndTime:              job.Live.EndTime,
		TimeTaken:            job.Live.TimeTaken,
	}
}

func actionPlan(p models.JobStaticProfile) ActionPlan {
	rec := p.Recommendation
	speed := rec.Speed
	steam := rec.Temperature

	title := TitleOptimized
	if rec.Fallback {
		title = TitleFallback
	}

	return ActionPlan{
		Title:      title,
		Confidence: rec.Confidence,
		Fallback:   rec.Fallback,
		Steps: []ActionStep{
			{Step: fmt.Sprintf("Set machine speed to %.1f m/min", speed), DeltaMPM: &speed},
			{Step: fmt.Sprintf("Adjust steam temperature to %.1f°C", steam), DeltaC: &steam},
			{Step: fmt.Sprintf("Monitor %s flute handling carefully", p.Flute)},
		},
	}
}

// EstimateRemaining extrapolates time left from elapsed time and progress:
// elapsed/progress - elapsed. Returns false when there is nothing to
// extrapolate from (no start time, no progress, or already complete).
func EstimateRemaining(job models.ReconciledJob, now time.Time) (time.Duration, bool) {
	start := job.StartTime()
	progress := job.Live.Progress
	if start == nil || progress <= 0 || progress >= 1 || job.Live.Status == models.JobStatusCompleted {
		return 0, false
	}

	elapsed := now.Sub(*start)
	if elapsed <= 0 {
		return 0, false
	}

	total := time.Duration(float64(elapsed) / progress)
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Round(time.Second), true
}

// FormatRemaining renders an EstimateRemaining result for operators
func FormatRemaining(remaining time.Duration, ok bool) string {
	if !ok {
		return "Calculating..."
	}
	if remaining <= 0 {
		return "Finishing soon"
	}

	hours := int(remaining / time.Hour)
	minutes := int((remaining % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
