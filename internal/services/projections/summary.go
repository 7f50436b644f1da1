// Package projections derives the dashboard's view models from reconciled jobs.
// Every function here is pure: it reads the slice it is given and returns new
// values.
package projections

import (
	"github.com/ternarybob/corrudash/internal/models"
)

// RiskTier buckets a waste-risk score
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Tier thresholds on the 0-100 waste-risk scale
const (
	MediumRiskThreshold = 30.0
	HighRiskThreshold   = 60.0
)

// RiskTierFor maps a risk score onto its tier: low below 30, high from 60
func RiskTierFor(risk float64) RiskTier {
	switch {
	case risk < MediumRiskThreshold:
		return RiskLow
	case risk < HighRiskThreshold:
		return RiskMedium
	}
	return RiskHigh
}

// SummaryRow is one line of the in-progress jobs table
type SummaryRow struct {
	ID               string           `json:"job_id"`
	DisplayName      string           `json:"display_name"`
	PaperGrade       string           `json:"paper_grade"`
	Flute            string           `json:"flute"`
	Status           models.JobStatus `json:"status"`
	Completion       float64          `json:"completion"` // percent, two decimals
	WasteRisk        float64          `json:"waste_risk"`
	RiskTier         RiskTier         `json:"risk_tier"`
	PredictedWaste   float64          `json:"predicted_setup_waste"`
	GeneratedWaste   float64          `json:"generated_waste"`
	Quantity         int              `json:"production_requirement"`
	Speed            float64          `json:"speed"`
	Steam            float64          `json:"steam"` // recommended steam temperature
	GlueGap          float64          `json:"glue_gap"`
	ActionConfidence float64          `json:"action_confidence"`
	Fallback         bool             `json:"fallback"`
	HasLiveData      bool             `json:"has_live_data"`
}

// ToSummaryRows builds one row per job, in input order
func ToSummaryRows(jobs []models.ReconciledJob) []SummaryRow {
	rows := make([]SummaryRow, 0, len(jobs))
	for _, job := range jobs {
		rec := job.Profile.Recommendation
		rows = append(rows, SummaryRow{
			ID:               job.ID(),
			DisplayName:      job.DisplayName,
			PaperGrade:       job.Profile.PaperGrade(),
			Flute:            job.Profile.Flute,
			Status:           job.Live.Status,
			Completion:       job.CompletionPercent(),
			WasteRisk:        job.WasteRisk,
			RiskTier:         RiskTierFor(job.WasteRisk),
			PredictedWaste:   job.Profile.PredictedWaste,
			GeneratedWaste:   job.Live.GeneratedWaste,
			Quantity:         job.Profile.Quantity,
			Speed:            rec.Speed,
			Steam:            rec.Temperature,
			GlueGap:          rec.GlueGap,
			ActionConfidence: rec.Confidence,
			Fallback:         rec.Fallback,
			HasLiveData:      job.HasLiveData,
		})
	}
	return rows
}
