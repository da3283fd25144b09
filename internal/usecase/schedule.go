package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

type ScheduleUsecase struct {
	repo        repository.ScheduleRepository
	jobRepo     repository.JobRepository
	credentials repository.CredentialRepository
	calculator  *recurrence.Calculator
}

func NewScheduleUsecase(
	repo repository.ScheduleRepository,
	jobRepo repository.JobRepository,
	credentials repository.CredentialRepository,
	calculator *recurrence.Calculator,
) *ScheduleUsecase {
	return &ScheduleUsecase{repo: repo, jobRepo: jobRepo, credentials: credentials, calculator: calculator}
}

// ScheduleInput carries the owner-editable fields of a schedule.
type ScheduleInput struct {
	Name          string
	CredentialIDs []string
	Periodicity   string
	IntervalDays  *int
	CronExpr      *string
	TimeOfDay     string
	ExtraParams   json.RawMessage
}

type CreateScheduleInput struct {
	OwnerID     string
	CaptureType string
	ScheduleInput
}

func (u *ScheduleUsecase) CreateSchedule(ctx context.Context, input CreateScheduleInput) (*domain.Schedule, error) {
	captureType, err := domain.ParseCaptureType(input.CaptureType)
	if err != nil {
		return nil, err
	}
	s := &domain.Schedule{OwnerID: input.OwnerID, CaptureType: captureType}
	if err := u.apply(ctx, s, input.ScheduleInput); err != nil {
		return nil, err
	}

	created, err := u.repo.Create(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return created, nil
}

type UpdateScheduleInput struct {
	ID      string
	OwnerID string
	ScheduleInput
}

// UpdateSchedule replaces the editable fields and recomputes next_run_at
// from now. The capture type of a schedule never changes.
func (u *ScheduleUsecase) UpdateSchedule(ctx context.Context, input UpdateScheduleInput) (*domain.Schedule, error) {
	s, err := u.repo.GetByID(ctx, input.ID, input.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if err := u.apply(ctx, s, input.ScheduleInput); err != nil {
		return nil, err
	}

	updated, err := u.repo.Update(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	return updated, nil
}

// apply validates in and copies it onto s, including a fresh NextRunAt.
func (u *ScheduleUsecase) apply(ctx context.Context, s *domain.Schedule, in ScheduleInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return &domain.ValidationError{Field: "name", Reason: "required"}
	}
	ids := dedupe(in.CredentialIDs)
	if len(ids) == 0 {
		return &domain.ValidationError{Field: "credential_ids", Reason: domain.ErrNoCredentials.Error()}
	}
	tod, err := domain.ParseTimeOfDay(in.TimeOfDay)
	if err != nil {
		return err
	}

	rule := recurrence.Rule{
		Periodicity:  domain.Periodicity(in.Periodicity),
		IntervalDays: in.IntervalDays,
		CronExpr:     in.CronExpr,
		TimeOfDay:    tod,
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	params, err := domain.DecodeParams(s.CaptureType, in.ExtraParams)
	if err != nil {
		return err
	}
	if params, err = domain.NormalizeScheduleParams(params); err != nil {
		return err
	}

	if err := checkOwnedCredentials(ctx, u.credentials, s.OwnerID, ids); err != nil {
		return err
	}

	next, err := u.calculator.NextRun(rule, nil)
	if err != nil {
		return err
	}

	s.Name = name
	s.CredentialIDs = ids
	s.Periodicity = rule.Periodicity
	s.IntervalDays = rule.IntervalDays
	s.CronExpr = rule.CronExpr
	s.TimeOfDay = tod
	s.ExtraParams = params
	s.NextRunAt = next
	// Only the fields of the chosen periodicity are kept.
	if rule.Periodicity != domain.PeriodicityEveryNDay {
		s.IntervalDays = nil
	}
	if rule.Periodicity != domain.PeriodicityCron {
		s.CronExpr = nil
	}
	return nil
}

func (u *ScheduleUsecase) GetSchedule(ctx context.Context, id, ownerID string) (*domain.Schedule, error) {
	s, err := u.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

type ListSchedulesInput struct {
	OwnerID string
	Cursor  string
	Limit   int
}

type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	NextCursor *string
}

func (u *ScheduleUsecase) ListSchedules(ctx context.Context, input ListSchedulesInput) (ListSchedulesResult, error) {
	limit := clampLimit(input.Limit)
	cursorTime, cursorID, err := parseCursor(input.Cursor)
	if err != nil {
		return ListSchedulesResult{}, err
	}

	schedules, err := u.repo.List(ctx, repository.ListSchedulesInput{
		OwnerID:    input.OwnerID,
		CursorTime: cursorTime,
		CursorID:   cursorID,
		Limit:      limit + 1,
	})
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}

	var nextCursor *string
	if len(schedules) == limit+1 {
		last := schedules[limit-1]
		s := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		schedules = schedules[:limit]
	}
	return ListSchedulesResult{Schedules: schedules, NextCursor: nextCursor}, nil
}

func (u *ScheduleUsecase) PauseSchedule(ctx context.Context, id, ownerID string) error {
	if err := u.repo.SetPaused(ctx, id, ownerID, true); err != nil {
		return fmt.Errorf("pause schedule: %w", err)
	}
	return nil
}

func (u *ScheduleUsecase) ResumeSchedule(ctx context.Context, id, ownerID string) error {
	if err := u.repo.SetPaused(ctx, id, ownerID, false); err != nil {
		return fmt.Errorf("resume schedule: %w", err)
	}
	return nil
}

func (u *ScheduleUsecase) DeleteSchedule(ctx context.Context, id, ownerID string) error {
	if err := u.repo.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

type ListScheduleJobsInput struct {
	ScheduleID string
	OwnerID    string
	Cursor     string
	Limit      int
}

func (u *ScheduleUsecase) ListScheduleJobs(ctx context.Context, input ListScheduleJobsInput) (ListJobsResult, error) {
	// Verify ownership
	if _, err := u.repo.GetByID(ctx, input.ScheduleID, input.OwnerID); err != nil {
		return ListJobsResult{}, fmt.Errorf("get schedule: %w", err)
	}
	return listJobs(ctx, u.jobRepo, repository.ListJobsInput{
		OwnerID:    input.OwnerID,
		ScheduleID: input.ScheduleID,
	}, input.Cursor, input.Limit)
}
