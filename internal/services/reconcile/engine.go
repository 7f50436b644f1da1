// Package reconcile joins the job snapshot with the live job stream.
package reconcile

import (
	"math"
	"strings"

	"github.com/ternarybob/corrudash/internal/models"
)

// NeutralWasteRisk is reported when there is no usable waste prediction
const NeutralWasteRisk = 50.0

// Reconcile joins snapshot profiles with live states by job identity.
//
// The output has exactly one record per distinct identity in snapshot, in
// snapshot order. Live states without a matching profile are ignored. Profiles
// without a live state get models.DefaultLiveState. When an identity repeats,
// the first snapshot entry and the last live entry win.
//
// Reconcile is pure: it never mutates its inputs and the same inputs always
// produce the same output.
func Reconcile(snapshot []models.JobStaticProfile, live []models.JobLiveState) []models.ReconciledJob {
	liveByID := make(map[string]models.JobLiveState, len(live))
	for _, state := range live {
		if state.ID == "" {
			continue
		}
		liveByID[state.ID] = state
	}

	seen := make(map[string]struct{}, len(snapshot))
	jobs := make([]models.ReconciledJob, 0, len(snapshot))

	for _, profile := range snapshot {
		if _, dup := seen[profile.ID]; dup {
			continue
		}
		seen[profile.ID] = struct{}{}

		state, ok := liveByID[profile.ID]
		if !ok {
			state = models.DefaultLiveState(profile.ID)
		}
		state = sanitizeLive(state)

		jobs = append(jobs, models.ReconciledJob{
			Profile:     profile,
			Live:        state,
			HasLiveData: ok,
			WasteRisk:   WasteRisk(state.GeneratedWaste, profile.PredictedWaste),
			DisplayName: DisplayName(profile.ID),
		})
	}

	return jobs
}

// WasteRisk scores generated waste against predicted waste on a 0-100 scale:
//
//	risk = clamp((generated/predicted*100 - 50) * 2 + 50, 0, 100)
//
// A missing, zero, negative or non-finite prediction yields NeutralWasteRisk.
func WasteRisk(generated, predicted float64) float64 {
	if !finite(predicted) || predicted <= 0 {
		return NeutralWasteRisk
	}
	if !finite(generated) || generated < 0 {
		generated = 0
	}

	ratio := generated / predicted * 100
	risk := (ratio-50)*2 + 50

	return math.Max(0, math.Min(100, risk))
}

// DisplayName builds the operator-facing job name, e.g. "Job 3F2A91BC"
func DisplayName(id string) string {
	short := []rune(id)
	if len(short) > 8 {
		short = short[:8]
	}
	if len(short) == 0 {
		return "Job UNKNOWN"
	}
	return "Job " + strings.ToUpper(string(short))
}

// sanitizeLive replaces values that would leak NaN or out-of-range numbers
// into the view model.
func sanitizeLive(state models.JobLiveState) models.JobLiveState {
	if !finite(state.Progress) || state.Progress < 0 {
		state.Progress = 0
	}
	if state.Progress > 1 {
		state.Progress = 1
	}
	if !finite(state.GeneratedWaste) || state.GeneratedWaste < 0 {
		state.GeneratedWaste = 0
	}
	if !finite(state.TimeTaken) || state.TimeTaken < 0 {
		state.TimeTaken = 0
	}
	if state.Status == "" {
		state.Status = models.JobStatusUnknown
	}
	return state
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
