package postgres_test

import (
	"context"
	"testing"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/stretchr/testify/assert"
)

// A malformed id can never match a row, so it must be reported as not found
// without a round trip (the nil pool would panic otherwise).

func TestJobRepository_MalformedIDIsNotFound(t *testing.T) {
	repo := postgres.NewJobRepository(nil)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "not-a-uuid", "owner-1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = repo.Claim(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	jobs, err := repo.ListJobs(ctx, repository.ListJobsInput{OwnerID: "owner-1", ScheduleID: "daily", Limit: 10})
	assert.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestScheduleRepository_MalformedIDIsNotFound(t *testing.T) {
	repo := postgres.NewScheduleRepository(nil)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "not-a-uuid", "owner-1")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	_, err = repo.Update(ctx, &domain.Schedule{ID: "x", OwnerID: "owner-1"})
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	assert.ErrorIs(t, repo.SetPaused(ctx, "x", "owner-1", true), domain.ErrScheduleNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "x", "owner-1"), domain.ErrScheduleNotFound)
}
