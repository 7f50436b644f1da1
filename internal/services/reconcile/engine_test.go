package reconcile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/corrudash/internal/models"
)

func profile(id string, predicted float64) models.JobStaticProfile {
	return models.JobStaticProfile{ID: id, Flute: "BC", GSM: 150, Quantity: 50, PredictedWaste: predicted}
}

func TestReconcile_OneRecordPerSnapshotIdentity(t *testing.T) {
	snapshot := []models.JobStaticProfile{profile("J1", 100), profile("J2", 80), profile("J3", 0)}
	live := []models.JobLiveState{
		{ID: "J2", Status: models.JobStatusInProgress, Progress: 0.5, GeneratedWaste: 10},
		{ID: "J1", Status: models.JobStatusPaused, Progress: 0.1},
	}

	jobs := Reconcile(snapshot, live)

	require.Len(t, jobs, len(snapshot))
	for i, job := range jobs {
		assert.Equal(t, snapshot[i].ID, job.ID(), "output must preserve snapshot order")
	}
}

func TestReconcile_LiveOnlyIdentitiesIgnored(t *testing.T) {
	snapshot := []models.JobStaticProfile{profile("J1", 100)}
	live := []models.JobLiveState{
		{ID: "GHOST", Status: models.JobStatusInProgress, Progress: 0.9},
		{ID: "J1", Status: models.JobStatusInProgress, Progress: 0.2},
	}

	jobs := Reconcile(snapshot, live)

	require.Len(t, jobs, 1)
	assert.Equal(t, "J1", jobs[0].ID())
}

func TestReconcile_DefaultLiveStateWhenMissing(t *testing.T) {
	jobs := Reconcile([]models.JobStaticProfile{profile("J1", 100)}, nil)

	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].HasLiveData)
	assert.Equal(t, 0.0, jobs[0].Live.Progress)
	assert.Equal(t, 0.0, jobs[0].Live.GeneratedWaste)
	assert.Equal(t, models.JobStatusUnknown, jobs[0].Live.Status)
}

// Without live data nothing has been generated yet, so a job with a
// prediction scores the bottom of the scale
func TestReconcile_SnapshotOnlyJobRisk(t *testing.T) {
	jobs := Reconcile([]models.JobStaticProfile{profile("J1", 100), profile("J2", 0)}, nil)

	require.Len(t, jobs, 2)
	assert.False(t, jobs[0].HasLiveData)
	assert.Equal(t, 0.0, jobs[0].WasteRisk)
	assert.Equal(t, NeutralWasteRisk, jobs[1].WasteRisk)
}

func TestReconcile_LiveStatusWinsOverReportedStatus(t *testing.T) {
	p := profile("J1", 100)
	p.ReportedStatus = models.JobStatusPending

	jobs := Reconcile([]models.JobStaticProfile{p}, []models.JobLiveState{
		{ID: "J1", Status: models.JobStatusInProgress},
	})

	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusInProgress, jobs[0].Live.Status)
	assert.Equal(t, models.JobStatusPending, jobs[0].Profile.ReportedStatus)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	snapshot := []models.JobStaticProfile{profile("J1", 100), profile("J2", 40)}
	live := []models.JobLiveState{{ID: "J1", Status: models.JobStatusInProgress, Progress: 0.3, GeneratedWaste: 12}}

	first := Reconcile(snapshot, live)
	second := Reconcile(snapshot, live)

	assert.Equal(t, first, second)
}

func TestReconcile_DuplicateIdentities(t *testing.T) {
	first := profile("J1", 100)
	second := profile("J1", 999)

	jobs := Reconcile(
		[]models.JobStaticProfile{first, second},
		[]models.JobLiveState{
			{ID: "J1", Progress: 0.1, Status: models.JobStatusInProgress},
			{ID: "J1", Progress: 0.7, Status: models.JobStatusInProgress},
		},
	)

	require.Len(t, jobs, 1)
	assert.Equal(t, 100.0, jobs[0].Profile.PredictedWaste, "first snapshot entry wins")
	assert.Equal(t, 0.7, jobs[0].Live.Progress, "last live entry wins")
}

func TestReconcile_SanitizesLiveNumbers(t *testing.T) {
	jobs := Reconcile([]models.JobStaticProfile{profile("J1", 100)}, []models.JobLiveState{
		{ID: "J1", Progress: math.NaN(), GeneratedWaste: math.Inf(1), TimeTaken: -3},
	})

	require.Len(t, jobs, 1)
	assert.Equal(t, 0.0, jobs[0].Live.Progress)
	assert.Equal(t, 0.0, jobs[0].Live.GeneratedWaste)
	assert.Equal(t, 0.0, jobs[0].Live.TimeTaken)
	assert.Equal(t, models.JobStatusUnknown, jobs[0].Live.Status)
	assert.Equal(t, 0.0, jobs[0].WasteRisk)
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	live := []models.JobLiveState{{ID: "J1", Progress: 3}}
	Reconcile([]models.JobStaticProfile{profile("J1", 100)}, live)

	assert.Equal(t, 3.0, live[0].Progress)
}

func TestReconcile_ScenarioPartialProgress(t *testing.T) {
	jobs := Reconcile(
		[]models.JobStaticProfile{{ID: "J1", PredictedWaste: 100, Quantity: 50}},
		[]models.JobLiveState{{ID: "J1", Progress: 0.42, GeneratedWaste: 40, Status: models.JobStatusInProgress}},
	)

	require.Len(t, jobs, 1)
	assert.Equal(t, 42.0, jobs[0].CompletionPercent())
	assert.InDelta(t, 30.0, jobs[0].WasteRisk, 1e-9)
}

func TestReconcile_ScenarioNoPrediction(t *testing.T) {
	jobs := Reconcile([]models.JobStaticProfile{{ID: "J2", PredictedWaste: 0}}, []models.JobLiveState{})

	require.Len(t, jobs, 1)
	assert.Equal(t, 0.0, jobs[0].CompletionPercent())
	assert.Equal(t, NeutralWasteRisk, jobs[0].WasteRisk)
}

func TestWasteRisk(t *testing.T) {
	tests := []struct {
		name      string
		generated float64
		predicted float64
		want      float64
	}{
		{"half of prediction", 50, 100, 50},
		{"equal to prediction", 100, 100, 100},
		{"quarter of prediction", 25, 100, 0},
		{"far above prediction", 1000, 100, 100},
		{"forty percent", 40, 100, 30},
		{"zero prediction", 40, 0, NeutralWasteRisk},
		{"negative prediction", 40, -5, NeutralWasteRisk},
		{"NaN prediction", 40, math.NaN(), NeutralWasteRisk},
		{"NaN generated", math.NaN(), 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WasteRisk(tt.generated, tt.predicted), 1e-9)
		})
	}
}

func TestWasteRisk_AlwaysBounded(t *testing.T) {
	for g := 0.0; g <= 500; g += 7.5 {
		for p := 0.0; p <= 300; p += 12.5 {
			risk := WasteRisk(g, p)
			assert.GreaterOrEqual(t, risk, 0.0)
			assert.LessOrEqual(t, risk, 100.0)
		}
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Job 3F2A91BC", DisplayName("3f2a91bc-77aa-4c1e"))
	assert.Equal(t, "Job J1", DisplayName("j1"))
	assert.Equal(t, "Job UNKNOWN", DisplayName(""))
}
