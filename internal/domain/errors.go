package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched by every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError reports bad input shape. It maps to a 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// NotFoundError reports a missing credential, court configuration or other
// referenced resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MalformedPageResponse is returned when a page payload lacks a well-formed
// items array. It is fatal to the attempt and never retried.
type MalformedPageResponse struct {
	PageIndex  int
	RawPayload []byte
}

func (e *MalformedPageResponse) Error() string {
	return fmt.Sprintf("malformed page response: page %d (%d bytes)", e.PageIndex, len(e.RawPayload))
}

// TransientNetworkError wraps transport failures and unexpected HTTP statuses.
// SessionLost is set for 401/403, which usually means another login with the
// same identity invalidated the session.
type TransientNetworkError struct {
	Op          string
	StatusCode  int
	SessionLost bool
	Err         error
}

func (e *TransientNetworkError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": unexpected status %d", e.StatusCode)
	}
	if e.SessionLost {
		b.WriteString(" (session lost)")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// AttemptError attributes a failure to the court, instance, credential and
// sub-filter it happened under. Its message has the form
// "TRT2 first (cred-1): within-deadline: cause".
type AttemptError struct {
	CourtCode     string
	InstanceLevel InstanceLevel
	CredentialID  string
	Filter        string
	Err           error
}

func (e *AttemptError) Error() string {
	var b strings.Builder
	court := e.CourtCode
	if court == "" {
		court = "unknown-court"
	}
	b.WriteString(court)
	if e.InstanceLevel != "" {
		b.WriteString(" ")
		b.WriteString(string(e.InstanceLevel))
	}
	fmt.Fprintf(&b, " (%s): ", e.CredentialID)
	if e.Filter != "" {
		b.WriteString(e.Filter)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AttemptError) Unwrap() error { return e.Err }
