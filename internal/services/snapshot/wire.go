package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/models"
)

// envelope is the backend's response wrapper
type envelope struct {
	Success *bool           `json:"success"`
	Count   *int            `json:"count"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// failed reports an explicit success:false
func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

func (e envelope) reason() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	}
	return "backend reported success:false"
}

// dataEntries returns data as a list. A single object (the ?job_id= shape)
// is a list of one; null or absent data is an empty list.
func (e envelope) dataEntries() ([]json.RawMessage, error) {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	case '{':
		return []json.RawMessage{data}, nil
	}
	return nil, fmt.Errorf("data is neither an object nor an array")
}

// toProfile maps one {job, status} entry onto a profile.
// Returns false when the entry has no job_id; wrong-typed fields default.
func toProfile(raw json.RawMessage) (models.JobStaticProfile, bool) {
	entry, ok := common.LenientObject(raw)
	if !ok {
		return models.JobStaticProfile{}, false
	}

	// Some deployments return the job fields at the top level
	job, ok := common.LenientObject(entry["job"])
	if !ok {
		job = entry
	}

	id := common.LenientString(job["job_id"])
	if id == "" {
		return models.JobStaticProfile{}, false
	}

	profile := models.JobStaticProfile{
		ID:             id,
		Flute:          common.LenientString(job["flute"]),
		GSM:            common.LenientNumber(job["gsm"]),
		Length:         common.LenientNumber(job["length"]),
		Width:          common.LenientNumber(job["width"]),
		Printing:       common.LenientInt(job["printing"]),
		Shift:          common.LenientString(job["shift"]),
		Experience:     common.LenientString(job["experience"]),
		Quantity:       common.LenientInt(job["quantity"]),
		PredictedWaste: common.LenientNumber(job["predicted_waste"]),
		Recommendation: toRecommendation(job["recommendations"]),
		ReportedStatus: models.JobStatusUnknown,
	}

	if status, ok := common.LenientObject(entry["status"]); ok {
		profile.ReportedStatus, _ = models.ParseJobStatus(common.LenientString(status["current_status"]))
		profile.ReportedStart = common.LenientTime(status["start_time"])
	}

	return profile, true
}

func toRecommendation(raw json.RawMessage) models.Recommendation {
	fields, ok := common.LenientObject(raw)
	if !ok {
		return models.Recommendation{Confidence: models.DefaultConfidence}
	}

	rec := models.Recommendation{
		Speed:       common.LenientNumber(fields["speed"]),
		Temperature: common.LenientNumber(common.FirstPresent(fields, "temperature", "temp")),
		GlueGap:     common.LenientNumber(common.FirstPresent(fields, "glue", "glue_gap")),
		Pressure:    common.LenientNumber(fields["pressure"]),
		Steam:       common.LenientNumber(fields["steam"]),
		Fallback:    common.LenientBool(fields["fallback"]),
	}

	if confidence := common.FirstPresent(fields, "confidence"); confidence != nil {
		rec.Confidence = clampUnit(common.LenientNumber(confidence))
	} else if rec.Fallback {
		rec.Confidence = models.FallbackConfidence
	} else {
		rec.Confidence = models.DefaultConfidence
	}

	return rec
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// updateResponse is the backend's answer to PUT /update-job
type updateResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
