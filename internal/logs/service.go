package logs

import (
	"strings"
	"sync"
)

// DefaultBufferSize is the number of recent lines kept for new feed clients
const DefaultBufferSize = 500

// Line is one log entry as shown in the dashboard's log feed
type Line struct {
	Timestamp     string            `json:"timestamp"`      // "15:04:05" for display
	FullTimestamp string            `json:"full_timestamp"` // RFC3339 for sorting
	Level         string            `json:"level"`          // three-letter code
	Message       string            `json:"message"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

var levelRank = map[string]int{"DBG": 0, "INF": 1, "WRN": 2, "ERR": 3}

// Buffer is a fixed-size ring of the most recent log lines
type Buffer struct {
	mu    sync.RWMutex
	lines []Line
	next  int
	full  bool
}

// NewBuffer creates a ring holding up to capacity lines
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{lines: make([]Line, capacity)}
}

// Append adds lines, overwriting the oldest once full
func (b *Buffer) Append(lines ...Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, line := range lines {
		b.lines[b.next] = line
		b.next = (b.next + 1) % len(b.lines)
		if b.next == 0 {
			b.full = true
		}
	}
}

// Len returns the number of lines held
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.lines)
	}
	return b.next
}

// Recent returns up to limit of the newest lines at or above minLevel,
// oldest first. An empty minLevel returns every level; limit <= 0 means all.
func (b *Buffer) Recent(limit int, minLevel string) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	min := levelRank[convertTo3Letter(minLevel)]
	if minLevel == "" {
		min = 0
	}

	ordered := make([]Line, 0, len(b.lines))
	if b.full {
		ordered = append(ordered, b.lines[b.next:]...)
	}
	ordered = append(ordered, b.lines[:b.next]...)

	result := make([]Line, 0, len(ordered))
	for _, line := range ordered {
		if levelRank[line.Level] >= min {
			result = append(result, line)
		}
	}

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

// Matches reports whether the line contains any of the patterns
func (l Line) Matches(patterns []string) bool {
	for _, pattern := range patterns {
		if pattern != "" && strings.Contains(l.Message, pattern) {
			return true
		}
	}
	return false
}
