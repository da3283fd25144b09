package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/domain"
	ctxlog "github.com/ErlanBelekov/court-capture/internal/log"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

// UnitRunner is satisfied by *capture.Runner.
type UnitRunner interface {
	Run(ctx context.Context, target capture.Target, unit capture.Unit) (*capture.Result, error)
}

// FailureNotifier tells a schedule's owner that a run failed.
type FailureNotifier interface {
	NotifyScheduleFailed(ctx context.Context, s *domain.Schedule, job *domain.CaptureJob, message string) error
}

// Executor runs one capture task end to end: resolve credentials, track the
// job, run every credential and sub-filter in order, record attempts,
// finalize, and for scheduled runs advance the schedule.
type Executor struct {
	credentials repository.CredentialRepository
	schedules   repository.ScheduleRepository
	tracker     *Tracker
	recorder    *Recorder
	sequencer   *Sequencer
	registry    *capture.Registry
	runner      UnitRunner
	calculator  *recurrence.Calculator
	notifier    FailureNotifier
	logger      *slog.Logger
	now         func() time.Time
}

type ExecutorDeps struct {
	Credentials repository.CredentialRepository
	Schedules   repository.ScheduleRepository
	Tracker     *Tracker
	Recorder    *Recorder
	Sequencer   *Sequencer
	Registry    *capture.Registry
	Runner      UnitRunner
	Calculator  *recurrence.Calculator
	// Notifier is optional.
	Notifier FailureNotifier
}

func NewExecutor(deps ExecutorDeps, logger *slog.Logger) *Executor {
	return &Executor{
		credentials: deps.Credentials,
		schedules:   deps.Schedules,
		tracker:     deps.Tracker,
		recorder:    deps.Recorder,
		sequencer:   deps.Sequencer,
		registry:    deps.Registry,
		runner:      deps.Runner,
		calculator:  deps.Calculator,
		notifier:    deps.Notifier,
		logger:      logger.With("component", "executor"),
		now:         time.Now,
	}
}

// WithClock replaces the time source; tests use it to pin "today".
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute runs task to a terminal state and returns the job it tracked
// (nil when the job could not be created). The summary is nil when the task
// was dropped without running: its job was already finalized, or its
// schedule still has a run in progress.
func (e *Executor) Execute(ctx context.Context, task queue.Task) (*domain.CaptureJob, *domain.JobSummary) {
	startedAt := e.now()
	logger := e.logger.With("capture_type", task.CaptureType, "owner_id", task.OwnerID)
	if task.Scheduled() {
		logger = logger.With("schedule_id", task.ScheduleID)
	}

	params, paramsErr := domain.DecodeParams(task.CaptureType, task.Params)

	job := &domain.CaptureJob{
		ID:            task.JobID,
		CaptureType:   task.CaptureType,
		OwnerID:       task.OwnerID,
		CredentialIDs: task.CredentialIDs,
		Params:        params,
		StartedAt:     startedAt,
	}
	if task.Scheduled() && task.JobID == "" {
		live, err := e.tracker.HasLiveJob(ctx, task.OwnerID, task.ScheduleID)
		if err != nil {
			logger.WarnContext(ctx, "check running jobs for schedule", "error", err)
		}
		if live {
			// that run's MarkRun clears dispatched_at and advances the schedule
			logger.WarnContext(ctx, "previous run of schedule still in progress, task dropped")
			return nil, nil
		}
		sid := task.ScheduleID
		job.ScheduleID = &sid
		created, err := e.tracker.Create(ctx, job)
		if err != nil {
			logger.ErrorContext(ctx, "create job failed, running untracked", "error", err)
		} else {
			job = created
		}
	}
	if job.ID == "" {
		logger.WarnContext(ctx, "capture running without a job id")
	}
	ctx = ctxlog.WithJobID(ctx, job.ID)

	if err := e.tracker.Claim(ctx, job); err != nil {
		if errors.Is(err, domain.ErrJobNotRunning) || errors.Is(err, domain.ErrJobNotFound) {
			logger.WarnContext(ctx, "job no longer claimable, task dropped", "job_id", job.ID, "error", err)
			return job, nil
		}
		logger.ErrorContext(ctx, "claim job failed, running anyway", "job_id", job.ID, "error", err)
	}

	stopHeartbeat := e.tracker.StartHeartbeat(ctx, job.ID)
	summary, failure := e.run(ctx, logger, job, task, params, paramsErr)
	stopHeartbeat()

	if failure != "" {
		if err := e.tracker.FinalizeError(ctx, job, summary, failure); err != nil {
			logger.ErrorContext(ctx, "finalize failed job", "error", err)
		}
		logger.WarnContext(ctx, "capture failed", "failed", summary.Failed, "total", summary.Total, "error", failure)
	} else {
		if err := e.tracker.FinalizeSuccess(ctx, job, summary); err != nil {
			logger.ErrorContext(ctx, "finalize completed job", "error", err)
		}
		logger.InfoContext(ctx, "capture completed", "total", summary.Total, "duration", e.now().Sub(startedAt))
	}

	if task.Scheduled() {
		e.advanceSchedule(ctx, logger, task, job, failure)
	}
	return job, summary
}

// run returns the job summary and, when at least one attempt failed or the
// task could not start, the failure message.
func (e *Executor) run(
	ctx context.Context,
	logger *slog.Logger,
	job *domain.CaptureJob,
	task queue.Task,
	params domain.CaptureParams,
	paramsErr error,
) (*domain.JobSummary, string) {
	empty := &domain.JobSummary{Attempts: []domain.AttemptSummary{}}

	if paramsErr != nil {
		return empty, fmt.Sprintf("invalid params: %v", paramsErr)
	}
	units, err := e.registry.Plan(task.CaptureType, params, capture.Today(e.now(), e.calculator.Location()))
	if err != nil {
		return empty, fmt.Sprintf("plan capture: %v", err)
	}
	if len(task.CredentialIDs) == 0 {
		return empty, domain.ErrNoCredentials.Error()
	}

	creds, err := e.credentials.ListByIDs(ctx, task.OwnerID, task.CredentialIDs)
	if err != nil {
		return empty, fmt.Sprintf("resolve credentials: %v", err)
	}

	rawParams, _ := domain.EncodeParams(params)
	filters := capture.Filters(units)

	var outcomes []Outcome
	observe := func(o Outcome) {
		outcomes = append(outcomes, o)
		e.recorder.Record(ctx, attemptFrom(job.ID, task.CaptureType, task.OwnerID, rawParams, o))
	}

	// Credentials deleted since the request was made come first.
	for _, id := range missingIDs(task.CredentialIDs, creds) {
		cred := domain.CredentialDescriptor{ID: id, OwnerID: task.OwnerID}
		for _, f := range filters {
			observe(Outcome{
				Credential: cred,
				Filter:     f,
				Err:        annotate(cred, f, &domain.NotFoundError{Resource: "credential", ID: id}),
			})
		}
	}

	resolved := make([]domain.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		resolved = append(resolved, *c)
	}

	e.sequencer.RunSequential(ctx, resolved, filters, func(ctx context.Context, u Unit) (*capture.Result, error) {
		return e.runner.Run(ctx, capture.Target{
			OwnerID:     task.OwnerID,
			CaptureType: task.CaptureType,
			Credential:  u.Credential,
			Court:       u.Court,
			Session:     u.Session,
		}, units[u.FilterIndex])
	}, observe)

	summary, message := Aggregate(outcomes)
	logger.DebugContext(ctx, "capture units finished", "units", len(outcomes))
	return summary, message
}

// Aggregate builds the job summary. message is empty when every outcome
// succeeded; otherwise it joins each failure as
// "court instance (credentialId): reason" with "; ".
func Aggregate(outcomes []Outcome) (*domain.JobSummary, string) {
	summary := &domain.JobSummary{Total: len(outcomes), Attempts: make([]domain.AttemptSummary, 0, len(outcomes))}
	var failures []string
	for _, o := range outcomes {
		line := domain.AttemptSummary{
			CredentialID:  o.Credential.ID,
			CourtCode:     o.Credential.CourtCode,
			InstanceLevel: o.Credential.InstanceLevel,
			Filter:        o.Filter,
			Outcome:       domain.OutcomeSuccess,
		}
		if o.Result != nil {
			line.Items = len(o.Result.Items)
			line.Upserted = o.Result.Summary.Upserted
			line.Unchanged = o.Result.Summary.Unchanged
		}
		if o.Err != nil {
			line.Outcome = domain.OutcomeError
			line.Error = o.Err.Error()
			summary.Failed++
			failures = append(failures, o.Err.Error())
		} else {
			summary.Succeeded++
		}
		summary.Attempts = append(summary.Attempts, line)
	}
	return summary, strings.Join(failures, "; ")
}

// advanceSchedule runs whatever the job outcome: a failed run still moves
// the schedule forward so the next tick is the retry.
func (e *Executor) advanceSchedule(ctx context.Context, logger *slog.Logger, task queue.Task, job *domain.CaptureJob, failure string) {
	s, err := e.schedules.GetByID(ctx, task.ScheduleID, task.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			logger.WarnContext(ctx, "schedule deleted during run")
			return
		}
		logger.ErrorContext(ctx, "load schedule", "error", err)
		return
	}

	ranAt := e.now()
	next, err := e.calculator.NextRun(recurrence.RuleOf(s), &ranAt)
	if err != nil {
		logger.ErrorContext(ctx, "compute next run", "error", err)
		return
	}
	if err := e.schedules.MarkRun(ctx, s.ID, ranAt, next); err != nil {
		logger.ErrorContext(ctx, "mark schedule run", "error", err)
		return
	}
	logger.InfoContext(ctx, "schedule advanced", "next_run_at", next)
	s.LastRunAt, s.NextRunAt = &ranAt, next

	if failure != "" && e.notifier != nil {
		if err := e.notifier.NotifyScheduleFailed(ctx, s, job, failure); err != nil {
			logger.WarnContext(ctx, "notify schedule failure", "error", err)
		}
	}
}

func missingIDs(requested []string, found []*domain.CredentialDescriptor) []string {
	have := make(map[string]struct{}, len(found))
	for _, c := range found {
		have[c.ID] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
