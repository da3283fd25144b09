package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/ErlanBelekov/court-capture/internal/requestid"
	"github.com/google/uuid"
)

// JobTracker is satisfied by *scheduler.Tracker.
type JobTracker interface {
	Create(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error)
	FinalizeError(ctx context.Context, job *domain.CaptureJob, summary *domain.JobSummary, message string) error
}

type CaptureUsecase struct {
	jobs        repository.JobRepository
	attempts    repository.AttemptRepository
	credentials repository.CredentialRepository
	tracker     JobTracker
	queue       queue.Queue
	logger      *slog.Logger
}

func NewCaptureUsecase(
	jobs repository.JobRepository,
	attempts repository.AttemptRepository,
	credentials repository.CredentialRepository,
	tracker JobTracker,
	q queue.Queue,
	logger *slog.Logger,
) *CaptureUsecase {
	return &CaptureUsecase{
		jobs:        jobs,
		attempts:    attempts,
		credentials: credentials,
		tracker:     tracker,
		queue:       q,
		logger:      logger.With("component", "capture_usecase"),
	}
}

type TriggerInput struct {
	OwnerID       string
	CaptureType   string
	CredentialIDs []string
	Params        json.RawMessage
}

type TriggerResult struct {
	// JobID is empty when the job row could not be created; the capture
	// still runs untracked.
	JobID           string
	Status          domain.Status
	CredentialCount int
}

// Trigger validates an on-demand capture, creates its job and hands it to the
// queue. It returns as soon as the task is enqueued.
func (u *CaptureUsecase) Trigger(ctx context.Context, input TriggerInput) (TriggerResult, error) {
	captureType, err := domain.ParseCaptureType(input.CaptureType)
	if err != nil {
		return TriggerResult{}, err
	}
	ids := dedupe(input.CredentialIDs)
	if len(ids) == 0 {
		return TriggerResult{}, &domain.ValidationError{Field: "credential_ids", Reason: domain.ErrNoCredentials.Error()}
	}
	params, err := domain.DecodeParams(captureType, input.Params)
	if err != nil {
		return TriggerResult{}, err
	}
	if err := checkOwnedCredentials(ctx, u.credentials, input.OwnerID, ids); err != nil {
		return TriggerResult{}, err
	}

	rawParams, err := domain.EncodeParams(params)
	if err != nil {
		return TriggerResult{}, err
	}

	job, err := u.tracker.Create(ctx, &domain.CaptureJob{
		CaptureType:   captureType,
		OwnerID:       input.OwnerID,
		CredentialIDs: ids,
		Params:        params,
	})
	if err != nil {
		u.logger.ErrorContext(ctx, "create capture job failed, running untracked",
			"capture_type", captureType, "error", err)
		job = nil
	}

	task := queue.Task{
		ID:            uuid.NewString(),
		CaptureType:   captureType,
		OwnerID:       input.OwnerID,
		CredentialIDs: ids,
		Params:        rawParams,
		EnqueuedAt:    time.Now().UTC(),
		RequestID:     requestid.FromContext(ctx),
	}
	if job != nil {
		task.JobID = job.ID
	}

	if err := u.queue.Enqueue(ctx, task); err != nil {
		if job != nil {
			if ferr := u.tracker.FinalizeError(ctx, job, &domain.JobSummary{}, "enqueue failed: "+err.Error()); ferr != nil {
				u.logger.ErrorContext(ctx, "finalize unqueued job", "job_id", job.ID, "error", ferr)
			}
		}
		return TriggerResult{}, fmt.Errorf("enqueue capture: %w", err)
	}

	u.logger.InfoContext(ctx, "capture enqueued",
		"job_id", task.JobID, "task_id", task.ID, "capture_type", captureType, "credentials", len(ids))

	return TriggerResult{
		JobID:           task.JobID,
		Status:          domain.StatusInProgress,
		CredentialCount: len(ids),
	}, nil
}

func (u *CaptureUsecase) GetJob(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error) {
	job, err := u.jobs.GetByID(ctx, jobID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

type ListJobsInput struct {
	OwnerID string
	Status  string
	Cursor  string
	Limit   int
}

type ListJobsResult struct {
	Jobs       []*domain.CaptureJob
	NextCursor *string
}

func (u *CaptureUsecase) ListJobs(ctx context.Context, input ListJobsInput) (ListJobsResult, error) {
	status := domain.Status(input.Status)
	if status != "" && !status.Valid() {
		return ListJobsResult{}, domain.ErrInvalidStatus
	}
	return listJobs(ctx, u.jobs, repository.ListJobsInput{OwnerID: input.OwnerID, Status: status}, input.Cursor, input.Limit)
}

// ListAttempts returns a job's attempt rows after verifying ownership.
func (u *CaptureUsecase) ListAttempts(ctx context.Context, jobID, ownerID string) ([]*domain.CaptureAttempt, error) {
	if _, err := u.jobs.GetByID(ctx, jobID, ownerID); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	attempts, err := u.attempts.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func listJobs(ctx context.Context, repo repository.JobRepository, in repository.ListJobsInput, rawCursor string, limit int) (ListJobsResult, error) {
	limit = clampLimit(limit)
	cursorTime, cursorID, err := parseCursor(rawCursor)
	if err != nil {
		return ListJobsResult{}, err
	}
	in.CursorTime = cursorTime
	in.CursorID = cursorID
	in.Limit = limit + 1

	jobs, err := repo.ListJobs(ctx, in)
	if err != nil {
		return ListJobsResult{}, fmt.Errorf("list jobs: %w", err)
	}

	var nextCursor *string
	if len(jobs) == limit+1 {
		last := jobs[limit-1]
		s := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		jobs = jobs[:limit]
	}
	return ListJobsResult{Jobs: jobs, NextCursor: nextCursor}, nil
}

// checkOwnedCredentials requires every id to resolve to one of the owner's
// credentials; foreign and unknown ids are indistinguishable to the caller.
func checkOwnedCredentials(ctx context.Context, repo repository.CredentialRepository, ownerID string, ids []string) error {
	found, err := repo.ListByIDs(ctx, ownerID, ids)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	owned := make(map[string]bool, len(found))
	for _, c := range found {
		if c.OwnerID == ownerID {
			owned[c.ID] = true
		}
	}
	for _, id := range ids {
		if !owned[id] {
			return &domain.NotFoundError{Resource: "credential", ID: id}
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
