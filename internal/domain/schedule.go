package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrScheduleNotFound      = errors.New("schedule not found")
	ErrInvalidCronExpr       = errors.New("invalid cron expression")
	ErrScheduleAlreadyPaused = errors.New("schedule is already paused")
	ErrScheduleNotPaused     = errors.New("schedule is not paused")
	ErrScheduleNameConflict  = errors.New("schedule with this name already exists")
)

type Periodicity string

const (
	PeriodicityDaily     Periodicity = "daily"
	PeriodicityEveryNDay Periodicity = "every_n_days"
	PeriodicityCron      Periodicity = "cron"
)

// TimeOfDay is a wall-clock time in HH:mm.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts exactly two-digit hours and minutes ("07:00", not
// "7:00").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != len("15:04") {
		return TimeOfDay{}, &ValidationError{Field: "time_of_day", Reason: "must be HH:mm"}
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, &ValidationError{Field: "time_of_day", Reason: "must be HH:mm"}
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Schedule is a recurring capture definition. NextRunAt and LastRunAt are
// advanced only by the executor after a run.
type Schedule struct {
	ID            string
	OwnerID       string
	Name          string
	CaptureType   CaptureType
	CredentialIDs []string
	Periodicity   Periodicity
	IntervalDays  *int
	CronExpr      *string
	TimeOfDay     TimeOfDay
	ExtraParams   CaptureParams
	Paused        bool
	NextRunAt     time.Time
	LastRunAt     *time.Time
	DispatchedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
