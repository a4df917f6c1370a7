package syncer

import (
	"errors"
	"fmt"
)

// RunErrorCode categorizes sync run failures.
type RunErrorCode string

const (
	// CodeOffline - connectivity is known to be down; no network I/O was
	// attempted.
	CodeOffline RunErrorCode = "OFFLINE"

	// CodeBusy - another sync run is already in flight.
	CodeBusy RunErrorCode = "SYNC_IN_FLIGHT"

	// CodeTransport - network failure, timeout, non-success status, or an
	// unparseable response body. The queue was left untouched.
	CodeTransport RunErrorCode = "TRANSPORT_FAILED"

	// CodeNoProgress - the server returned a well-formed response that
	// acknowledged none of the queued events. Likely a contract mismatch
	// (server not echoing event_ids).
	CodeNoProgress RunErrorCode = "NO_PROGRESS"

	// CodeNotConverged - the pass bound was exceeded before the queue
	// drained.
	CodeNotConverged RunErrorCode = "NOT_CONVERGED"
)

// RunError is a failed sync run. Status and Excerpt carry enough of the
// server's response to diagnose the failure from the status line alone.
type RunError struct {
	Code    RunErrorCode
	Message string
	Status  int    // HTTP status, 0 when no response was received
	Excerpt string // truncated response body or transport error text
}

// Error implements the error interface.
func (e *RunError) Error() string {
	switch {
	case e.Status != 0 && e.Excerpt != "":
		return fmt.Sprintf("%s: %s (HTTP %d: %s)", e.Code, e.Message, e.Status, e.Excerpt)
	case e.Excerpt != "":
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Excerpt)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsCode reports whether err is a RunError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// excerpt truncates a response body for diagnostics.
func excerpt(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}
