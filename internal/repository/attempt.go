package repository

import (
	"context"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

type AttemptRepository interface {
	// Append inserts a new attempt row. Identical content twice yields two
	// rows; there is no update path.
	Append(ctx context.Context, attempt *domain.CaptureAttempt) (*domain.CaptureAttempt, error)

	// ListByJobID returns a job's attempts in recording order.
	// Ownership is assumed to have been verified by the caller.
	ListByJobID(ctx context.Context, jobID string) ([]*domain.CaptureAttempt, error)
}
