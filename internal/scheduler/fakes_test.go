package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- jobs ---

type fakeJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*domain.CaptureJob
	seq        int
	createErr  error
	claimErr   error
	heartbeats int
	staleCalls []string
	staleN     int
	lostCalls  []string
	lostN      int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.CaptureJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.seq++
	cp := *job
	cp.ID = fmt.Sprintf("job-%d", r.seq)
	cp.Status = domain.StatusInProgress
	cp.CreatedAt = time.Now()
	r.jobs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id, ownerID string) (*domain.CaptureJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.OwnerID != ownerID {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) ListJobs(_ context.Context, in repository.ListJobsInput) ([]*domain.CaptureJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CaptureJob
	for _, j := range r.jobs {
		if j.OwnerID != in.OwnerID || (in.Status != "" && j.Status != in.Status) {
			continue
		}
		if in.ScheduleID != "" && (j.ScheduleID == nil || *j.ScheduleID != in.ScheduleID) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	if in.Limit > 0 && len(out) > in.Limit {
		out = out[:in.Limit]
	}
	return out, nil
}

func (r *fakeJobRepo) Claim(_ context.Context, id string) (*domain.CaptureJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.Status != domain.StatusInProgress || j.ClaimedAt != nil {
		return nil, domain.ErrJobNotRunning
	}
	now := time.Now()
	j.ClaimedAt = &now
	j.HeartbeatAt = &now
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) UpdateHeartbeat(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
	return nil
}

func (r *fakeJobRepo) finish(id string, status domain.Status, summary *domain.JobSummary, msg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != domain.StatusInProgress {
		return domain.ErrJobNotRunning
	}
	now := time.Now()
	j.Status = status
	j.FinishedAt = &now
	j.ResultSummary = summary
	j.ErrorMessage = msg
	return nil
}

func (r *fakeJobRepo) Complete(_ context.Context, id string, summary *domain.JobSummary) error {
	return r.finish(id, domain.StatusCompleted, summary, nil)
}

func (r *fakeJobRepo) Fail(_ context.Context, id string, summary *domain.JobSummary, message string) error {
	return r.finish(id, domain.StatusFailed, summary, &message)
}

func (r *fakeJobRepo) FailStale(_ context.Context, _ time.Time, message string, _ int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleCalls = append(r.staleCalls, message)
	return r.staleN, nil
}

func (r *fakeJobRepo) FailUnclaimed(_ context.Context, _ time.Time, message string, _ int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lostCalls = append(r.lostCalls, message)
	return r.lostN, nil
}

// put stores a job as-is, e.g. one left running by an earlier dispatch.
func (r *fakeJobRepo) put(j *domain.CaptureJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[cp.ID] = &cp
}

func (r *fakeJobRepo) get(id string) *domain.CaptureJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[id]
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

// --- attempts ---

type fakeAttemptRepo struct {
	mu        sync.Mutex
	rows      []*domain.CaptureAttempt
	appendErr error
}

func (r *fakeAttemptRepo) Append(_ context.Context, a *domain.CaptureAttempt) (*domain.CaptureAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return nil, r.appendErr
	}
	cp := *a
	cp.ID = fmt.Sprintf("att-%d", len(r.rows)+1)
	cp.CreatedAt = time.Now()
	r.rows = append(r.rows, &cp)
	return &cp, nil
}

func (r *fakeAttemptRepo) ListByJobID(_ context.Context, jobID string) ([]*domain.CaptureAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CaptureAttempt
	for _, a := range r.rows {
		if a.JobID != nil && *a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- schedules ---

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]*domain.Schedule
	claimDue  func(staleBefore time.Time, limit int) ([]*domain.Schedule, error)
	markRuns  []markRun
}

type markRun struct {
	id        string
	lastRunAt time.Time
	nextRunAt time.Time
}

func newFakeScheduleRepo(ss ...*domain.Schedule) *fakeScheduleRepo {
	r := &fakeScheduleRepo{schedules: make(map[string]*domain.Schedule)}
	for _, s := range ss {
		r.schedules[s.ID] = s
	}
	return r
}

func (r *fakeScheduleRepo) Create(context.Context, *domain.Schedule) (*domain.Schedule, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeScheduleRepo) GetByID(_ context.Context, id, ownerID string) (*domain.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok || s.OwnerID != ownerID {
		return nil, domain.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScheduleRepo) List(context.Context, repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeScheduleRepo) Update(context.Context, *domain.Schedule) (*domain.Schedule, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeScheduleRepo) SetPaused(context.Context, string, string, bool) error {
	return errors.New("not implemented")
}

func (r *fakeScheduleRepo) Delete(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (r *fakeScheduleRepo) ClaimDue(_ context.Context, staleBefore time.Time, limit int) ([]*domain.Schedule, error) {
	if r.claimDue == nil {
		return nil, nil
	}
	return r.claimDue(staleBefore, limit)
}

func (r *fakeScheduleRepo) MarkRun(_ context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.LastRunAt = &lastRunAt
	s.NextRunAt = nextRunAt
	s.DispatchedAt = nil
	r.markRuns = append(r.markRuns, markRun{id: id, lastRunAt: lastRunAt, nextRunAt: nextRunAt})
	return nil
}

// --- credentials ---

type fakeCredentialRepo struct {
	creds []*domain.CredentialDescriptor
	err   error
}

func (r *fakeCredentialRepo) ListByIDs(_ context.Context, ownerID string, ids []string) ([]*domain.CredentialDescriptor, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.CredentialDescriptor
	for _, c := range r.creds {
		if c.OwnerID == ownerID && slices.Contains(ids, c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- courts & sessions ---

type fakeResolver struct {
	fail map[string]error
}

func (r fakeResolver) Resolve(cred domain.CredentialDescriptor) (domain.CourtConfig, error) {
	if err, ok := r.fail[cred.CourtCode]; ok {
		return domain.CourtConfig{}, err
	}
	n, _ := domain.CourtNumber(cred.CourtCode)
	return domain.CourtConfig{
		Code:          cred.CourtCode,
		Number:        n,
		InstanceLevel: cred.InstanceLevel,
		BaseURL:       "https://" + cred.CourtCode + ".example.test",
	}, nil
}

type nopSession struct{}

func (nopSession) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("no network in tests")
}

type fakeAuth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (a *fakeAuth) Authenticate(_ context.Context, _ domain.CourtConfig, cred domain.CredentialDescriptor) (courtapi.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, cred.ID)
	if err, ok := a.fail[cred.ID]; ok {
		return nil, err
	}
	return nopSession{}, nil
}

// --- runner ---

type runCall struct {
	Target capture.Target
	Unit   capture.Unit
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	run   func(target capture.Target, unit capture.Unit) (*capture.Result, error)
}

func (r *fakeRunner) Run(_ context.Context, target capture.Target, unit capture.Unit) (*capture.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{Target: target, Unit: unit})
	r.mu.Unlock()
	if r.run != nil {
		return r.run(target, unit)
	}
	return okResult(1), nil
}

func okResult(n int) *capture.Result {
	res := &capture.Result{RawPayload: []byte("[]"), Summary: domain.PersistSummary{Received: n, Upserted: n}}
	for i := 0; i < n; i++ {
		res.Items = append(res.Items, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i+1)))
	}
	return res
}

// --- notifier ---

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	nextRuns []time.Time
}

func (n *fakeNotifier) NotifyScheduleFailed(_ context.Context, s *domain.Schedule, _ *domain.CaptureJob, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.nextRuns = append(n.nextRuns, s.NextRunAt)
	return nil
}

func cred(id, court string, level domain.InstanceLevel) *domain.CredentialDescriptor {
	return &domain.CredentialDescriptor{ID: id, OwnerID: "owner-1", CourtCode: court, InstanceLevel: level, AuthMaterial: "token-" + id}
}
