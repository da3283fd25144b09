package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

// Date is a civil date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	d.Time = t
	return nil
}

// CaptureParams is the per-kind parameter variant. Each capture type has
// exactly one implementation; DecodeParams is the only place raw JSON turns
// into a variant.
type CaptureParams interface {
	CaptureType() CaptureType
}

type GeneralDocketParams struct {
	Search string `json:"search,omitempty" validate:"omitempty,max=200"`
}

type ArchivedParams struct {
	Since *Date `json:"since,omitempty"`
}

type HearingsParams struct {
	Start  *Date  `json:"start,omitempty"`
	End    *Date  `json:"end,omitempty"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=scheduled held cancelled postponed"`
	// WindowDays makes the date window relative to the run day; schedules use
	// it because absolute dates go stale. Exclusive with Start and End.
	WindowDays int `json:"window_days,omitempty" validate:"omitempty,min=1,max=730"`
}

type PendingFilter string

const (
	FilterNoDeadline     PendingFilter = "no-deadline"
	FilterWithinDeadline PendingFilter = "within-deadline"
)

type PendingFilingsParams struct {
	Filters []PendingFilter `json:"filters,omitempty" validate:"omitempty,unique,dive,oneof=no-deadline within-deadline"`
}

type PartiesParams struct {
	Role string `json:"role,omitempty" validate:"omitempty,oneof=active passive"`
}

type TimelineParams struct {
	ProcessID string `json:"process_id" validate:"required,max=64"`
}

func (GeneralDocketParams) CaptureType() CaptureType  { return CaptureGeneralDocket }
func (ArchivedParams) CaptureType() CaptureType       { return CaptureArchived }
func (HearingsParams) CaptureType() CaptureType       { return CaptureHearings }
func (PendingFilingsParams) CaptureType() CaptureType { return CapturePendingFilings }
func (PartiesParams) CaptureType() CaptureType        { return CaptureParties }
func (TimelineParams) CaptureType() CaptureType       { return CaptureTimeline }

var paramsValidator = newParamsValidator()

func newParamsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeParams turns raw JSON into the variant for t. Empty input yields the
// zero variant. Unknown fields are rejected.
func DecodeParams(t CaptureType, raw json.RawMessage) (CaptureParams, error) {
	var target CaptureParams
	switch t {
	case CaptureGeneralDocket:
		target = &GeneralDocketParams{}
	case CaptureArchived:
		target = &ArchivedParams{}
	case CaptureHearings:
		target = &HearingsParams{}
	case CapturePendingFilings:
		target = &PendingFilingsParams{}
	case CaptureParties:
		target = &PartiesParams{}
	case CaptureTimeline:
		target = &TimelineParams{}
	default:
		return nil, ErrUnknownCapture
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return nil, &ValidationError{Field: "params", Reason: err.Error()}
		}
	}

	if err := validateParams(target); err != nil {
		return nil, err
	}

	// Handlers receive values, not pointers.
	return reflect.ValueOf(target).Elem().Interface().(CaptureParams), nil
}

// EncodeParams serializes a variant for storage. Nil encodes as "{}".
func EncodeParams(p CaptureParams) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return b, nil
}

func validateParams(p CaptureParams) error {
	if err := paramsValidator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: "params." + fe.Field(), Reason: "failed '" + fe.Tag() + "' check"}
		}
		return &ValidationError{Field: "params", Reason: err.Error()}
	}
	if h, ok := p.(*HearingsParams); ok {
		if h.WindowDays > 0 && (h.Start != nil || h.End != nil) {
			return &ValidationError{Field: "params.window_days", Reason: "cannot be combined with start or end"}
		}
		if h.Start != nil && h.End != nil && h.End.Before(h.Start.Time) {
			return &ValidationError{Field: "params.end", Reason: "must not be before start"}
		}
	}
	return nil
}

// NormalizeScheduleParams applies the extra requirements recurring captures
// have over on-demand ones.
func NormalizeScheduleParams(p CaptureParams) (CaptureParams, error) {
	switch v := p.(type) {
	case HearingsParams:
		if v.WindowDays == 0 && (v.Start == nil || v.End == nil) {
			return nil, &ValidationError{Field: "params.window_days", Reason: "hearings schedules require a date window"}
		}
		return v, nil
	case PendingFilingsParams:
		if len(v.Filters) == 0 {
			v.Filters = []PendingFilter{FilterNoDeadline}
		}
		return v, nil
	default:
		return p, nil
	}
}
