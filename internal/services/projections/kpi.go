package projections

import (
	"math"

	"github.com/ternarybob/corrudash/internal/models"
)

// KPI is the headline summary across all reconciled jobs
type KPI struct {
	TotalJobs           int                      `json:"total_jobs"`
	JobsWithLiveData    int                      `json:"jobs_with_live_data"`
	ByStatus            map[models.JobStatus]int `json:"by_status"`
	ByRiskTier          map[RiskTier]int         `json:"by_risk_tier"`
	TotalPredictedWaste float64                  `json:"total_predicted_waste"`
	TotalGeneratedWaste float64                  `json:"total_generated_waste"`
	AverageWasteRisk    float64                  `json:"average_waste_risk"`
	AverageConfidence   float64                  `json:"average_confidence"`
	AverageCompletion   float64                  `json:"average_completion"`
	FallbackJobs        int                      `json:"fallback_jobs"`
}

// ToKPI aggregates jobs. Averages are zero for an empty set.
func ToKPI(jobs []models.ReconciledJob) KPI {
	kpi := KPI{
		TotalJobs:  len(jobs),
		ByStatus:   make(map[models.JobStatus]int),
		ByRiskTier: map[RiskTier]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0},
	}
	if len(jobs) == 0 {
		return kpi
	}

	var riskSum, confidenceSum, completionSum float64
	for _, job := range jobs {
		if job.HasLiveData {
			kpi.JobsWithLiveData++
		}
		kpi.ByStatus[job.Live.Status]++
		kpi.ByRiskTier[RiskTierFor(job.WasteRisk)]++
		kpi.TotalPredictedWaste += job.Profile.PredictedWaste
		kpi.TotalGeneratedWaste += job.Live.GeneratedWaste
		if job.Profile.Recommendation.Fallback {
			kpi.FallbackJobs++
		}

		riskSum += job.WasteRisk
		confidenceSum += job.Profile.Recommendation.Confidence
		completionSum += job.CompletionPercent()
	}

	n := float64(len(jobs))
	kpi.AverageWasteRisk = round2(riskSum / n)
	kpi.AverageConfidence = round2(confidenceSum / n)
	kpi.AverageCompletion = round2(completionSum / n)
	kpi.TotalPredictedWaste = round2(kpi.TotalPredictedWaste)
	kpi.TotalGeneratedWaste = round2(kpi.TotalGeneratedWaste)
	return kpi
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
