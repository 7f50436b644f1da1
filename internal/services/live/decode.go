package live

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/corrudash/internal/common"
	"github.com/ternarybob/corrudash/internal/models"
)

// ErrMalformedEnvelope is returned when a message body is not a JSON array
var ErrMalformedEnvelope = errors.New("live stream: message body is not a job array")

// DecodeLiveSet maps one message body onto live states.
//
// The body must be a JSON array; anything else is ErrMalformedEnvelope. Entries
// that are not objects or carry no jobId are dropped and counted. Fields of the
// wrong type fall back to zero values instead of dropping the entry.
func DecodeLiveSet(body []byte) (states []models.JobLiveState, dropped int, err error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, 0, ErrMalformedEnvelope
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	states = make([]models.JobLiveState, 0, len(entries))
	for _, raw := range entries {
		state, ok := decodeEntry(raw)
		if !ok {
			dropped++
			continue
		}
		states = append(states, state)
	}
	return states, dropped, nil
}

func decodeEntry(raw json.RawMessage) (models.JobLiveState, bool) {
	fields, ok := common.LenientObject(raw)
	if !ok {
		return models.JobLiveState{}, false
	}

	id := common.LenientString(fields["jobId"])
	if id == "" {
		return models.JobLiveState{}, false
	}

	status, _ := models.ParseJobStatus(common.LenientString(fields["currentStatus"]))

	return models.JobLiveState{
		ID:             id,
		Status:         status,
		Progress:       common.LenientNumber(fields["progress"]),
		GeneratedWaste: common.LenientNumber(fields["generatedWaste"]),
		TimeTaken:      common.LenientNumber(fields["timeTaken"]),
		StartTime:      common.LenientTime(fields["startTime"]),
		EndTime:        common.LenientTime(fields["endTime"]),
	}, true
}
