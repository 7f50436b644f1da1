package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/corrudash/internal/models"
)

func TestDecodeLiveSet(t *testing.T) {
	body := []byte(`[
		{"id":"x","jobId":"J1","currentStatus":"in-progress","generatedWaste":40,"timeTaken":null,
		 "startTime":"2024-05-01T08:30:00","endTime":null,"progress":0.42},
		{"jobId":"J2","currentStatus":"completed","generatedWaste":"12.5","progress":1,
		 "startTime":"2024-05-01T07:00:00Z","endTime":"2024-05-01T07:45:00Z","timeTaken":2700}
	]`)

	states, dropped, err := DecodeLiveSet(body)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, states, 2)

	j1 := states[0]
	assert.Equal(t, "J1", j1.ID)
	assert.Equal(t, models.JobStatusInProgress, j1.Status)
	assert.Equal(t, 0.42, j1.Progress)
	assert.Equal(t, 40.0, j1.GeneratedWaste)
	assert.Zero(t, j1.TimeTaken)
	require.NotNil(t, j1.StartTime)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), *j1.StartTime)
	assert.Nil(t, j1.EndTime)

	j2 := states[1]
	assert.Equal(t, models.JobStatusCompleted, j2.Status)
	assert.Equal(t, 12.5, j2.GeneratedWaste)
	assert.Equal(t, 2700.0, j2.TimeTaken)
	require.NotNil(t, j2.EndTime)
}

func TestDecodeLiveSet_DropsMalformedEntries(t *testing.T) {
	body := []byte(`[
		{"jobId":"J1","progress":0.5},
		"not an object",
		{"currentStatus":"in-progress"},
		{"jobId":""},
		null,
		{"jobId":"J2"}
	]`)

	states, dropped, err := DecodeLiveSet(body)
	require.NoError(t, err)
	assert.Equal(t, 4, dropped)
	require.Len(t, states, 2)
	assert.Equal(t, "J1", states[0].ID)
	assert.Equal(t, "J2", states[1].ID)
}

func TestDecodeLiveSet_WrongTypesFallBack(t *testing.T) {
	body := []byte(`[{"jobId":42,"currentStatus":7,"progress":"abc","generatedWaste":{"kg":3},
		"startTime":"yesterday","endTime":false}]`)

	states, dropped, err := DecodeLiveSet(body)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.Len(t, states, 1)

	s := states[0]
	assert.Equal(t, "42", s.ID)
	assert.Equal(t, models.JobStatusUnknown, s.Status)
	assert.Zero(t, s.Progress)
	assert.Zero(t, s.GeneratedWaste)
	assert.Nil(t, s.StartTime)
	assert.Nil(t, s.EndTime)
}

func TestDecodeLiveSet_UnknownStatus(t *testing.T) {
	states, _, err := DecodeLiveSet([]byte(`[{"jobId":"J1","currentStatus":"exploded"}]`))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusUnknown, states[0].Status)
}

func TestDecodeLiveSet_EpochMillis(t *testing.T) {
	states, _, err := DecodeLiveSet([]byte(`[{"jobId":"J1","startTime":1714552200000}]`))
	require.NoError(t, err)
	require.NotNil(t, states[0].StartTime)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), *states[0].StartTime)
}

func TestDecodeLiveSet_MalformedEnvelope(t *testing.T) {
	for _, body := range []string{``, `{"jobId":"J1"}`, `"hello"`, `[{"jobId":"J1"}`} {
		_, _, err := DecodeLiveSet([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, body)
	}
}

func TestDecodeLiveSet_EmptyArray(t *testing.T) {
	states, dropped, err := DecodeLiveSet([]byte(` [] `))
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.NotNil(t, states)
	assert.Empty(t, states)
}
