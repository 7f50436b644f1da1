package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   JobStatus
		wantOK bool
	}{
		{"pending", JobStatusPending, true},
		{" In-Progress ", JobStatusInProgress, true},
		{"PAUSED", JobStatusPaused, true},
		{"completed", JobStatusCompleted, true},
		{"in_progress", JobStatusUnknown, false},
		{"", JobStatusUnknown, false},
	}

	for _, tt := range tests {
		got, ok := ParseJobStatus(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
	}
}

func TestJobStaticProfile_DisplayFields(t *testing.T) {
	p := JobStaticProfile{Flute: "BC", GSM: 150, Length: 1200.5}
	assert.Equal(t, "BC - 150gsm", p.PaperGrade())
	assert.Equal(t, "1200.5mm", p.Thickness())
}

func TestReconciledJob_CompletionPercent(t *testing.T) {
	job := ReconciledJob{Live: JobLiveState{Progress: 0.12345}}
	assert.Equal(t, 12.35, job.CompletionPercent())

	job.Live.Progress = 1
	assert.Equal(t, float64(100), job.CompletionPercent())
}

func TestReconciledJob_StartTime(t *testing.T) {
	reported := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	live := reported.Add(10 * time.Minute)

	job := ReconciledJob{Profile: JobStaticProfile{ReportedStart: &reported}}
	assert.Equal(t, &reported, job.StartTime())

	job.Live.StartTime = &live
	assert.Equal(t, &live, job.StartTime())

	assert.Nil(t, ReconciledJob{}.StartTime())
}

func TestUpdateRequestAndApply(t *testing.T) {
	p := JobStaticProfile{
		ID: "J1", Flute: "BC", GSM: 150, Length: 1200, Width: 800,
		Printing: 2, Quantity: 50, Shift: "A", Experience: "senior",
	}

	req := p.UpdateRequest(JobStatusPaused)
	assert.Equal(t, UpdateJobRequest{
		Length: 1200, Width: 800, GSM: 150, Printing: 2, Quantity: 50,
		Flute: "BC", Shift: "A", Experience: "senior", Status: "paused",
	}, req)

	quantity := 75
	shift := "B"
	edited := JobFieldUpdate{Quantity: &quantity, Shift: &shift}.Apply(req)
	assert.Equal(t, 75, edited.Quantity)
	assert.Equal(t, "B", edited.Shift)
	assert.Equal(t, float64(1200), edited.Length)
	assert.Equal(t, "paused", edited.Status)

	assert.Equal(t, req, JobFieldUpdate{}.Apply(req))
}
