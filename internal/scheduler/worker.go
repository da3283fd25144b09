package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/requestid"
)

// TaskExecutor is satisfied by *Executor.
type TaskExecutor interface {
	Execute(ctx context.Context, task queue.Task) (*domain.CaptureJob, *domain.JobSummary)
}

// Worker pulls capture tasks off the queue and runs up to concurrency of
// them at once. Units inside one task are still sequential.
type Worker struct {
	id          string
	queue       queue.Queue
	executor    TaskExecutor
	logger      *slog.Logger
	concurrency int
	sem         chan struct{}
	wg          sync.WaitGroup
	retryDelay  time.Duration
}

func NewWorker(q queue.Queue, executor TaskExecutor, logger *slog.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	hostname, _ := os.Hostname()
	id := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &Worker{
		id:          id,
		queue:       q,
		executor:    executor,
		logger:      logger.With("component", "worker", "worker_id", id),
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
		retryDelay:  time.Second,
	}
}

// Start blocks until ctx is done. Tasks already running keep going on a
// context detached from ctx so they reach a terminal state; use Wait to
// drain them.
func (w *Worker) Start(ctx context.Context) {
	metrics.WorkerStartTime.SetToCurrentTime()
	w.logger.Info("worker started", "concurrency", w.concurrency)

	for {
		// Take a slot before dequeuing so a task is never held without one.
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case w.sem <- struct{}{}:
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			<-w.sem
			if ctx.Err() != nil {
				w.shutdown()
				return
			}
			w.logger.Error("dequeue task", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}

		if !task.EnqueuedAt.IsZero() {
			metrics.TaskPickupLatency.Observe(time.Since(task.EnqueuedAt).Seconds())
		}

		w.wg.Add(1)
		go func(t queue.Task) {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			metrics.JobsInFlight.Inc()
			defer metrics.JobsInFlight.Dec()
			w.runTask(context.WithoutCancel(ctx), t)
		}(task)
	}
}

// Wait blocks until every started task has finished.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) runTask(ctx context.Context, task queue.Task) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked", "task_id", task.ID, "job_id", task.JobID, "panic", r)
		}
	}()

	if task.RequestID != "" {
		ctx = requestid.WithRequestID(ctx, task.RequestID)
	}
	w.logger.InfoContext(ctx, "executing task",
		"task_id", task.ID,
		"job_id", task.JobID,
		"schedule_id", task.ScheduleID,
		"capture_type", task.CaptureType,
		"credentials", len(task.CredentialIDs),
	)
	job, summary := w.executor.Execute(ctx, task)

	jobID := task.JobID
	if job != nil {
		jobID = job.ID
	}
	if summary != nil {
		w.logger.InfoContext(ctx, "task finished", "task_id", task.ID, "job_id", jobID, "succeeded", summary.Succeeded, "failed", summary.Failed)
	}
}

func (w *Worker) shutdown() {
	metrics.WorkerShutdownsTotal.Inc()
	w.logger.Info("worker shut down", "in_flight", len(w.sem))
}
