package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

// ---- fakes ----

type fakeJobRepo struct {
	getByID  func(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error)
	listJobs func(ctx context.Context, input repository.ListJobsInput) ([]*domain.CaptureJob, error)
}

func (r *fakeJobRepo) Create(context.Context, *domain.CaptureJob) (*domain.CaptureJob, error) {
	return nil, errors.New("not used")
}

func (r *fakeJobRepo) GetByID(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error) {
	return r.getByID(ctx, jobID, ownerID)
}

func (r *fakeJobRepo) ListJobs(ctx context.Context, input repository.ListJobsInput) ([]*domain.CaptureJob, error) {
	return r.listJobs(ctx, input)
}

func (r *fakeJobRepo) Claim(context.Context, string) (*domain.CaptureJob, error) {
	return nil, errors.New("not used")
}
func (r *fakeJobRepo) UpdateHeartbeat(context.Context, string) error { return nil }
func (r *fakeJobRepo) Complete(context.Context, string, *domain.JobSummary) error {
	return nil
}
func (r *fakeJobRepo) Fail(context.Context, string, *domain.JobSummary, string) error {
	return nil
}
func (r *fakeJobRepo) FailStale(context.Context, time.Time, string, int) (int, error) {
	return 0, nil
}
func (r *fakeJobRepo) FailUnclaimed(context.Context, time.Time, string, int) (int, error) {
	return 0, nil
}

type fakeAttemptRepo struct {
	listByJobID func(ctx context.Context, jobID string) ([]*domain.CaptureAttempt, error)
}

func (r *fakeAttemptRepo) Append(_ context.Context, a *domain.CaptureAttempt) (*domain.CaptureAttempt, error) {
	return a, nil
}

func (r *fakeAttemptRepo) ListByJobID(ctx context.Context, jobID string) ([]*domain.CaptureAttempt, error) {
	return r.listByJobID(ctx, jobID)
}

// fakeCredentialRepo owns a fixed set of credentials keyed by id.
type fakeCredentialRepo struct {
	creds map[string]*domain.CredentialDescriptor
	err   error
}

func (r *fakeCredentialRepo) ListByIDs(_ context.Context, ownerID string, ids []string) ([]*domain.CredentialDescriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.CredentialDescriptor
	for _, id := range ids {
		if c, ok := r.creds[id]; ok && c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func credentials(ownerID string, ids ...string) *fakeCredentialRepo {
	r := &fakeCredentialRepo{creds: map[string]*domain.CredentialDescriptor{}}
	for _, id := range ids {
		r.creds[id] = &domain.CredentialDescriptor{ID: id, OwnerID: ownerID, CourtCode: "TRT2", InstanceLevel: domain.InstanceFirst}
	}
	return r
}

type fakeScheduleRepo struct {
	create    func(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	getByID   func(ctx context.Context, id, ownerID string) (*domain.Schedule, error)
	list      func(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error)
	update    func(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	setPaused func(ctx context.Context, id, ownerID string, paused bool) error
	delete    func(ctx context.Context, id, ownerID string) error
}

func (r *fakeScheduleRepo) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return r.create(ctx, s)
}

func (r *fakeScheduleRepo) GetByID(ctx context.Context, id, ownerID string) (*domain.Schedule, error) {
	return r.getByID(ctx, id, ownerID)
}

func (r *fakeScheduleRepo) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	return r.list(ctx, input)
}

func (r *fakeScheduleRepo) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	return r.update(ctx, s)
}

func (r *fakeScheduleRepo) SetPaused(ctx context.Context, id, ownerID string, paused bool) error {
	return r.setPaused(ctx, id, ownerID, paused)
}

func (r *fakeScheduleRepo) Delete(ctx context.Context, id, ownerID string) error {
	return r.delete(ctx, id, ownerID)
}

func (r *fakeScheduleRepo) ClaimDue(context.Context, time.Time, int) ([]*domain.Schedule, error) {
	return nil, nil
}

func (r *fakeScheduleRepo) MarkRun(context.Context, string, time.Time, time.Time) error {
	return nil
}

type fakeTracker struct {
	create    func(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error)
	finalized []string
}

func (t *fakeTracker) Create(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error) {
	return t.create(ctx, job)
}

func (t *fakeTracker) FinalizeError(_ context.Context, job *domain.CaptureJob, _ *domain.JobSummary, message string) error {
	t.finalized = append(t.finalized, job.ID+": "+message)
	return nil
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, queue.Task) error { return queue.ErrQueueFull }
func (failingQueue) Dequeue(ctx context.Context) (queue.Task, error) {
	<-ctx.Done()
	return queue.Task{}, ctx.Err()
}

// ---- helpers ----

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func jobsAt(n int, start time.Time) []*domain.CaptureJob {
	out := make([]*domain.CaptureJob, n)
	for i := range out {
		out[i] = &domain.CaptureJob{
			ID:        "job-" + string(rune('a'+i)),
			CreatedAt: start.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}
