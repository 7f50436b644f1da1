package projections

import (
	"fmt"
	"sort"

	"github.com/ternarybob/corrudash/internal/models"
)

// Alert flags a job whose waste is running above a comfortable level
type Alert struct {
	ID             string   `json:"job_id"`
	DisplayName    string   `json:"display_name"`
	RiskTier       RiskTier `json:"risk_tier"`
	WasteRisk      float64  `json:"waste_risk"`
	GeneratedWaste float64  `json:"generated_waste"`
	PredictedWaste float64  `json:"predicted_waste"`
	Message        string   `json:"message"`
}

// ToAlerts lists medium and high risk jobs that have live data, highest risk
// first. Jobs without live data are never alerts, whatever their score.
func ToAlerts(jobs []models.ReconciledJob) []Alert {
	alerts := []Alert{}
	for _, job := range jobs {
		if !job.HasLiveData {
			continue
		}
		tier := RiskTierFor(job.WasteRisk)
		if tier == RiskLow {
			continue
		}
		alerts = append(alerts, Alert{
			ID:             job.ID(),
			DisplayName:    job.DisplayName,
			RiskTier:       tier,
			WasteRisk:      job.WasteRisk,
			GeneratedWaste: job.Live.GeneratedWaste,
			PredictedWaste: job.Profile.PredictedWaste,
			Message:        alertMessage(job, tier),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].WasteRisk > alerts[j].WasteRisk
	})
	return alerts
}

func alertMessage(job models.ReconciledJob, tier RiskTier) string {
	if job.Profile.PredictedWaste <= 0 {
		return fmt.Sprintf("%s has no waste prediction; %.1f kg generated so far", job.DisplayName, job.Live.GeneratedWaste)
	}
	pct := job.Live.GeneratedWaste / job.Profile.PredictedWaste * 100
	return fmt.Sprintf("%s is at %s risk: %.1f kg generated, %.0f%% of the %.1f kg predicted",
		job.DisplayName, tier, job.Live.GeneratedWaste, pct, job.Profile.PredictedWaste)
}
