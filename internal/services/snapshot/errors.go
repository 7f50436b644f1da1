package snapshot

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a snapshot failure
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"  // transport failure or timeout
	KindProtocol ErrorKind = "protocol" // non-2xx status or success:false
	KindDecode   ErrorKind = "decode"   // body is not the expected JSON
)

// FetchError is returned by every Client call that reaches the backend
type FetchError struct {
	Kind       ErrorKind
	Op         string // e.g. "GET /job-details"
	StatusCode int    // HTTP status, 0 for network errors
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FetchError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
