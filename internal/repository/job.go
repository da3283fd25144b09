package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

type ListJobsInput struct {
	OwnerID    string
	Status     domain.Status // empty = all statuses
	ScheduleID string        // empty = any origin
	CursorTime *time.Time    // nil = first page
	CursorID   string        // used only when CursorTime is non-nil
	Limit      int
}

// JobRepository stores capture jobs. Usecases and the scheduler depend on
// this interface so tests can pass in-memory fakes.
type JobRepository interface {
	// Create inserts a job in in_progress status, not yet claimed by a worker.
	Create(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error)
	GetByID(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error)
	ListJobs(ctx context.Context, input ListJobsInput) ([]*domain.CaptureJob, error)

	// Executor-owned transitions. Claim, Complete and Fail only touch
	// in_progress rows and return domain.ErrJobNotRunning otherwise; Claim
	// also refuses a job another worker already holds.
	Claim(ctx context.Context, jobID string) (*domain.CaptureJob, error)
	UpdateHeartbeat(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string, summary *domain.JobSummary) error
	Fail(ctx context.Context, jobID string, summary *domain.JobSummary, message string) error

	// Reaper: fail claimed jobs whose executor stopped beating, and jobs
	// that sat unclaimed past the queue deadline.
	FailStale(ctx context.Context, staleCutoff time.Time, message string, limit int) (int, error)
	FailUnclaimed(ctx context.Context, createdBefore time.Time, message string, limit int) (int, error)
}
