package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/google/uuid"
)

const dispatchBatch = 100

// Dispatcher turns due schedules into queued capture tasks. The claim sets
// dispatched_at so a schedule slot is fired once even with several
// dispatchers; the executor clears it when it records the run.
type Dispatcher struct {
	scheduleRepo repository.ScheduleRepository
	queue        queue.Queue
	logger       *slog.Logger
	interval     time.Duration
	staleAfter   time.Duration
	now          func() time.Time
}

func NewDispatcher(repo repository.ScheduleRepository, q queue.Queue, logger *slog.Logger, interval, staleAfter time.Duration) *Dispatcher {
	return &Dispatcher{
		scheduleRepo: repo,
		queue:        q,
		logger:       logger.With("component", "dispatcher"),
		interval:     interval,
		staleAfter:   staleAfter,
		now:          time.Now,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval, "stale_after", d.staleAfter)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher shut down")
			return
		case <-ticker.C:
			d.Dispatch(ctx)
		}
	}
}

// Dispatch runs one claim-and-enqueue cycle and returns how many tasks were
// enqueued.
func (d *Dispatcher) Dispatch(ctx context.Context) int {
	schedules, err := d.scheduleRepo.ClaimDue(ctx, d.now().Add(-d.staleAfter), dispatchBatch)
	if err != nil {
		d.logger.Error("claim due schedules", "error", err)
		return 0
	}

	enqueued := 0
	for _, s := range schedules {
		task, err := taskFor(s, d.now())
		if err != nil {
			d.logger.Error("build task for schedule", "schedule_id", s.ID, "error", err)
			continue
		}
		// A failed enqueue leaves the claim in place; the schedule becomes
		// claimable again once the claim goes stale.
		if err := d.queue.Enqueue(ctx, task); err != nil {
			d.logger.Error("enqueue schedule run", "schedule_id", s.ID, "error", err)
			continue
		}
		enqueued++
		metrics.SchedulesDispatchedTotal.Inc()
	}

	if enqueued > 0 {
		d.logger.Info("dispatcher enqueued schedule runs", "count", enqueued)
	}
	return enqueued
}

func taskFor(s *domain.Schedule, now time.Time) (queue.Task, error) {
	params, err := domain.EncodeParams(s.ExtraParams)
	if err != nil {
		return queue.Task{}, err
	}
	return queue.Task{
		ID:            uuid.NewString(),
		ScheduleID:    s.ID,
		CaptureType:   s.CaptureType,
		OwnerID:       s.OwnerID,
		CredentialIDs: s.CredentialIDs,
		Params:        params,
		EnqueuedAt:    now,
	}, nil
}
