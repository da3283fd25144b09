// Package recurrence computes the next run instant of a capture schedule.
package recurrence

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/robfig/cron/v3"
)

// Rule is everything the calculator needs from a schedule.
type Rule struct {
	Periodicity  domain.Periodicity
	IntervalDays *int
	CronExpr     *string
	TimeOfDay    domain.TimeOfDay
}

// RuleOf extracts the recurrence rule from a schedule.
func RuleOf(s *domain.Schedule) Rule {
	return Rule{
		Periodicity:  s.Periodicity,
		IntervalDays: s.IntervalDays,
		CronExpr:     s.CronExpr,
		TimeOfDay:    s.TimeOfDay,
	}
}

// Validate rejects rules that can never produce a next run.
func (r Rule) Validate() error {
	switch r.Periodicity {
	case domain.PeriodicityDaily:
		return nil
	case domain.PeriodicityEveryNDay:
		if r.IntervalDays == nil {
			return &domain.ValidationError{Field: "interval_days", Reason: "required for every_n_days"}
		}
		if *r.IntervalDays < 1 {
			return &domain.ValidationError{Field: "interval_days", Reason: "must be a positive integer"}
		}
		return nil
	case domain.PeriodicityCron:
		if r.CronExpr == nil || *r.CronExpr == "" {
			return &domain.ValidationError{Field: "cron_expr", Reason: "required for cron"}
		}
		if _, err := cron.ParseStandard(*r.CronExpr); err != nil {
			return domain.ErrInvalidCronExpr
		}
		return nil
	default:
		return &domain.ValidationError{Field: "periodicity", Reason: fmt.Sprintf("unsupported periodicity %q", r.Periodicity)}
	}
}

// Calculator evaluates rules in a fixed location.
type Calculator struct {
	loc *time.Location
	now func() time.Time
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc, now: time.Now}
}

// WithClock replaces the time source used when a schedule has never run.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Location returns the zone rules are evaluated in.
func (c *Calculator) Location() *time.Location { return c.loc }

// NextRun returns the next run instant for r. lastRunAt is nil for a schedule
// that has never run, in which case the current time is the reference.
//
//   - daily: the next calendar day after the reference, at TimeOfDay
//   - every_n_days: reference date + IntervalDays, at TimeOfDay
//   - cron: first fire time strictly after the reference
//
// The result is always strictly after the reference.
func (c *Calculator) NextRun(r Rule, lastRunAt *time.Time) (time.Time, error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, err
	}

	ref := c.now()
	if lastRunAt != nil {
		ref = *lastRunAt
	}
	ref = ref.In(c.loc)

	var next time.Time
	switch r.Periodicity {
	case domain.PeriodicityDaily:
		sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", r.TimeOfDay.Minute, r.TimeOfDay.Hour))
		if err != nil {
			return time.Time{}, fmt.Errorf("daily spec: %w", err)
		}
		// cron.Next is exclusive, so step back one nanosecond from the next
		// midnight to allow a 00:00 time of day.
		midnight := startOfDay(ref).AddDate(0, 0, 1)
		next = sched.Next(midnight.Add(-time.Nanosecond))
	case domain.PeriodicityEveryNDay:
		day := startOfDay(ref).AddDate(0, 0, *r.IntervalDays)
		next = atTimeOfDay(day, r.TimeOfDay)
		for !next.After(ref) {
			day = day.AddDate(0, 0, *r.IntervalDays)
			next = atTimeOfDay(day, r.TimeOfDay)
		}
	case domain.PeriodicityCron:
		sched, err := cron.ParseStandard(*r.CronExpr)
		if err != nil {
			return time.Time{}, domain.ErrInvalidCronExpr
		}
		next = sched.Next(ref)
		if next.IsZero() {
			return time.Time{}, domain.ErrInvalidCronExpr
		}
	}
	return next, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func atTimeOfDay(day time.Time, tod domain.TimeOfDay) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, day.Location())
}
