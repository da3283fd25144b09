package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

const DefaultHeartbeatInterval = 10 * time.Second

// Tracker owns the job state machine:
// in_progress (queued) -> in_progress (claimed) -> completed | failed.
// An empty job id means the job could not be created; every call on it is a
// logged no-op so the capture itself still runs.
type Tracker struct {
	jobs              repository.JobRepository
	logger            *slog.Logger
	heartbeatInterval time.Duration
}

func NewTracker(jobs repository.JobRepository, logger *slog.Logger, heartbeatInterval time.Duration) *Tracker {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &Tracker{
		jobs:              jobs,
		logger:            logger.With("component", "tracker"),
		heartbeatInterval: heartbeatInterval,
	}
}

// Create inserts the job already in_progress. It stays unclaimed until a
// worker picks up its task.
func (t *Tracker) Create(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error) {
	created, err := t.jobs.Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return created, nil
}

// Claim marks the job as held by this worker. domain.ErrJobNotRunning means
// the job was finalized (or claimed) elsewhere while queued and the task
// must not run.
func (t *Tracker) Claim(ctx context.Context, job *domain.CaptureJob) error {
	if job == nil || job.ID == "" {
		return nil
	}
	claimed, err := t.jobs.Claim(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	job.ClaimedAt = claimed.ClaimedAt
	job.HeartbeatAt = claimed.HeartbeatAt
	return nil
}

// HasLiveJob reports whether a job of the schedule is still in progress.
func (t *Tracker) HasLiveJob(ctx context.Context, ownerID, scheduleID string) (bool, error) {
	jobs, err := t.jobs.ListJobs(ctx, repository.ListJobsInput{
		OwnerID:    ownerID,
		Status:     domain.StatusInProgress,
		ScheduleID: scheduleID,
		Limit:      1,
	})
	if err != nil {
		return false, fmt.Errorf("list running jobs: %w", err)
	}
	return len(jobs) > 0, nil
}

// StartHeartbeat beats until the returned stop func is called.
func (t *Tracker) StartHeartbeat(ctx context.Context, jobID string) (stop func()) {
	if jobID == "" {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(t.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := t.jobs.UpdateHeartbeat(hbCtx, jobID); err != nil && hbCtx.Err() == nil {
					t.logger.WarnContext(hbCtx, "heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (t *Tracker) FinalizeSuccess(ctx context.Context, job *domain.CaptureJob, summary *domain.JobSummary) error {
	if job == nil || job.ID == "" {
		t.logger.WarnContext(ctx, "job untracked, completion not stored")
		return nil
	}
	if err := t.jobs.Complete(ctx, job.ID, summary); err != nil {
		return t.finalizeErr(ctx, job.ID, domain.StatusCompleted, err)
	}
	t.observe(job, domain.StatusCompleted)
	return nil
}

// FinalizeError marks the job failed. summary is stored alongside the message.
func (t *Tracker) FinalizeError(ctx context.Context, job *domain.CaptureJob, summary *domain.JobSummary, message string) error {
	if job == nil || job.ID == "" {
		t.logger.WarnContext(ctx, "job untracked, failure not stored", "error", message)
		return nil
	}
	if err := t.jobs.Fail(ctx, job.ID, summary, message); err != nil {
		return t.finalizeErr(ctx, job.ID, domain.StatusFailed, err)
	}
	t.observe(job, domain.StatusFailed)
	return nil
}

func (t *Tracker) finalizeErr(ctx context.Context, jobID string, to domain.Status, err error) error {
	if errors.Is(err, domain.ErrJobNotRunning) {
		// Already terminal: the reaper got there first.
		t.logger.WarnContext(ctx, "job no longer in progress, finalize skipped", "job_id", jobID, "status", to)
	}
	return fmt.Errorf("finalize job %s as %s: %w", jobID, to, err)
}

func (t *Tracker) observe(job *domain.CaptureJob, status domain.Status) {
	metrics.JobsFinalizedTotal.WithLabelValues(string(job.CaptureType), string(status)).Inc()
	if !job.StartedAt.IsZero() {
		metrics.JobExecutionDuration.WithLabelValues(string(job.CaptureType), string(status)).Observe(time.Since(job.StartedAt).Seconds())
	}
}
