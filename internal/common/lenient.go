package common

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Lenient decoders for upstream JSON whose field types are not guaranteed.
// Each returns a safe zero value instead of an error.

// timestampLayouts are tried in order. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LenientString accepts JSON strings and numbers; anything else is ""
func LenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// LenientNumber accepts JSON numbers and numeric strings. Anything else,
// including NaN and infinities, is 0.
func LenientNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// LenientInt is LenientNumber truncated towards zero
func LenientInt(raw json.RawMessage) int {
	return int(LenientNumber(raw))
}

// LenientBool accepts JSON booleans and "true"/"false" strings
func LenientBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	parsed, err := strconv.ParseBool(LenientString(raw))
	return err == nil && parsed
}

// LenientTime accepts timestamp strings and epoch milliseconds
func LenientTime(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
			return nil
		}
		t := time.UnixMilli(int64(ms)).UTC()
		return &t
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return ParseTimestamp(s)
}

// ParseTimestamp parses the timestamp formats the job backend emits.
// Returns nil for empty or unparseable input.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// LenientObject decodes raw into a field map; false if raw is not an object
func LenientObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// FirstPresent returns the first key present in fields
func FirstPresent(fields map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := fields[k]; ok && !bytes.Equal(v, []byte("null")) {
			return v
		}
	}
	return nil
}
