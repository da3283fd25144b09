package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

type ListSchedulesInput struct {
	OwnerID    string
	CursorTime *time.Time // cursor on (created_at DESC, id DESC)
	CursorID   string
	Limit      int
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	GetByID(ctx context.Context, id, ownerID string) (*domain.Schedule, error)
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.Schedule, error)
	// Update rewrites the owner-editable fields and next_run_at.
	Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	SetPaused(ctx context.Context, id, ownerID string, paused bool) error
	Delete(ctx context.Context, id, ownerID string) error

	// ClaimDue marks due, unpaused schedules as dispatched and returns them.
	// A schedule dispatched before staleBefore that never recorded its run is
	// claimable again.
	ClaimDue(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Schedule, error)
	// MarkRun records a finished run and clears the dispatch claim.
	MarkRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error
}
