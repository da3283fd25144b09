package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrJobNotFound    = errors.New("capture job not found")
	ErrJobNotRunning  = errors.New("capture job is not in progress")
	ErrInvalidStatus  = errors.New("invalid status filter")
	ErrInvalidCursor  = errors.New("invalid cursor")
	ErrUnknownCapture = errors.New("unknown capture type")
	ErrNoCredentials  = errors.New("at least one credential is required")
)

type CaptureType string

const (
	CaptureGeneralDocket  CaptureType = "general_docket"
	CaptureArchived       CaptureType = "archived"
	CaptureHearings       CaptureType = "hearings"
	CapturePendingFilings CaptureType = "pending_filings"
	CaptureParties        CaptureType = "parties"
	CaptureTimeline       CaptureType = "timeline"
)

// CaptureTypes lists every supported kind in a stable order.
var CaptureTypes = []CaptureType{
	CaptureGeneralDocket,
	CaptureArchived,
	CaptureHearings,
	CapturePendingFilings,
	CaptureParties,
	CaptureTimeline,
}

// ParseCaptureType accepts both the canonical snake_case value and the
// dashed form used in URLs ("pending-filings").
func ParseCaptureType(s string) (CaptureType, error) {
	normalized := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			normalized[i] = '_'
			continue
		}
		normalized[i] = s[i]
	}
	t := CaptureType(normalized)
	for _, known := range CaptureTypes {
		if t == known {
			return t, nil
		}
	}
	return "", ErrUnknownCapture
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CaptureJob is the trackable unit for one capture request. Rows are written
// only by the executor that owns them; once terminal they never change.
type CaptureJob struct {
	ID            string
	CaptureType   CaptureType
	OwnerID       string
	CredentialIDs []string
	Params        CaptureParams
	ScheduleID    *string

	Status        Status
	StartedAt     time.Time
	ClaimedAt     *time.Time
	FinishedAt    *time.Time
	HeartbeatAt   *time.Time
	ResultSummary *JobSummary
	ErrorMessage  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// CaptureAttempt is one credential x sub-filter execution. Append-only.
type CaptureAttempt struct {
	ID              string
	JobID           *string
	CaptureType     CaptureType
	OwnerID         string
	CredentialID    string
	FilterContext   FilterContext
	Outcome         Outcome
	RawPayload      []byte
	ProcessedResult *PersistSummary
	Logs            []string
	ErrorMessage    *string
	CreatedAt       time.Time
}

// FilterContext identifies what an attempt was scoped to.
type FilterContext struct {
	CourtCode     string          `json:"court_code"`
	InstanceLevel InstanceLevel   `json:"instance_level"`
	Filter        string          `json:"filter,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
}

// PersistSummary is what the persist collaborator reports for one batch.
// Upserted counts new or changed records, Unchanged records seen again with
// an identical payload, Skipped items without an id.
type PersistSummary struct {
	Received  int `json:"received"`
	Upserted  int `json:"upserted"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// AttemptSummary is one line of a job's result summary.
type AttemptSummary struct {
	CredentialID  string        `json:"credential_id"`
	CourtCode     string        `json:"court_code,omitempty"`
	InstanceLevel InstanceLevel `json:"instance_level,omitempty"`
	Filter        string        `json:"filter,omitempty"`
	Outcome       Outcome       `json:"outcome"`
	Items         int           `json:"items"`
	Upserted      int           `json:"upserted"`
	Unchanged     int           `json:"unchanged"`
	Error         string        `json:"error,omitempty"`
}

type JobSummary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Attempts  []AttemptSummary `json:"attempts"`
}

// CapturedRecord is one item retrieved from a court, keyed by
// (OwnerID, CaptureType, ExternalID).
type CapturedRecord struct {
	OwnerID      string
	CaptureType  CaptureType
	ExternalID   string
	CredentialID string
	Payload      json.RawMessage
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}
