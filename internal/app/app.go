// Package app builds the pieces shared by the server and scheduler binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/court-capture/config"
	"github.com/ErlanBelekov/court-capture/internal/capture"
	"github.com/ErlanBelekov/court-capture/internal/courtapi"
	"github.com/ErlanBelekov/court-capture/internal/courts"
	"github.com/ErlanBelekov/court-capture/internal/email"
	"github.com/ErlanBelekov/court-capture/internal/health"
	"github.com/ErlanBelekov/court-capture/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/court-capture/internal/infrastructure/redis"
	ctxlog "github.com/ErlanBelekov/court-capture/internal/log"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	"github.com/ErlanBelekov/court-capture/internal/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
)

const memoryQueueCapacity = 1024

func NewLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

// Queue is the task queue plus what the process needs to check and release it.
type Queue struct {
	queue.Queue
	// Pinger is nil for the in-memory backend.
	Pinger health.Pinger
	close  func() error
}

func (q *Queue) Close() error {
	if q.close == nil {
		return nil
	}
	return q.close()
}

// InProcess reports whether tasks only reach workers in this process.
func (q *Queue) InProcess() bool { return q.Pinger == nil }

func OpenQueue(ctx context.Context, cfg *config.Config) (*Queue, error) {
	if cfg.QueueBackend != "redis" {
		return &Queue{Queue: queue.NewMemoryQueue(memoryQueueCapacity)}, nil
	}
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rq := redis.NewQueue(client, redis.DefaultKey)
	return &Queue{Queue: rq, Pinger: rq, close: client.Close}, nil
}

// Repositories groups the postgres adapters every binary uses.
type Repositories struct {
	Users       *postgres.UserRepository
	Credentials *postgres.CredentialRepository
	Schedules   *postgres.ScheduleRepository
	Jobs        *postgres.JobRepository
	Attempts    *postgres.AttemptRepository
	Records     *postgres.RecordRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:       postgres.NewUserRepository(pool),
		Credentials: postgres.NewCredentialRepository(pool),
		Schedules:   postgres.NewScheduleRepository(pool),
		Jobs:        postgres.NewJobRepository(pool),
		Attempts:    postgres.NewAttemptRepository(pool),
		Records:     postgres.NewRecordRepository(pool),
	}
}

// NewTracker uses a heartbeat a quarter of the reaper timeout, so a job has
// to miss several beats before it is failed.
func NewTracker(cfg *config.Config, repos *Repositories, logger *slog.Logger) *scheduler.Tracker {
	interval := time.Duration(cfg.HeartbeatTimeoutSec) * time.Second / 4
	return scheduler.NewTracker(repos.Jobs, logger, interval)
}

// Engine is the worker side of the system: it consumes tasks and, when
// enabled, dispatches due schedules and reaps stale jobs.
type Engine struct {
	Worker     *scheduler.Worker
	Dispatcher *scheduler.Dispatcher
	Reaper     *scheduler.Reaper
	logger     *slog.Logger
}

func NewEngine(cfg *config.Config, repos *Repositories, tracker *scheduler.Tracker, q queue.Queue, logger *slog.Logger) (*Engine, error) {
	catalog, err := courts.Load(cfg.CourtsFile, cfg.InterPageDelay())
	if err != nil {
		return nil, err
	}
	logger.Info("courts loaded", "count", catalog.Len(), "file", cfg.CourtsFile)

	calculator := recurrence.NewCalculator(cfg.Location())
	runner := capture.NewRunner(repos.Records, courtapi.NewLimiterPool(), courtapi.FetcherConfig{
		PageSize:       cfg.PageSize,
		InterPageDelay: cfg.InterPageDelay(),
	})
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	executor := scheduler.NewExecutor(scheduler.ExecutorDeps{
		Credentials: repos.Credentials,
		Schedules:   repos.Schedules,
		Tracker:     tracker,
		Recorder:    scheduler.NewRecorder(repos.Attempts, logger),
		Sequencer:   scheduler.NewSequencer(catalog, courtapi.NewTokenAuthenticator(cfg.HTTPTimeout()), logger),
		Registry:    capture.NewRegistry(),
		Runner:      runner,
		Calculator:  calculator,
		Notifier:    email.NewNotifier(repos.Users, sender, logger),
	}, logger)

	return &Engine{
		Worker: scheduler.NewWorker(q, executor, logger, cfg.WorkerCount),
		Dispatcher: scheduler.NewDispatcher(repos.Schedules, q, logger,
			time.Duration(cfg.DispatchIntervalSec)*time.Second,
			time.Duration(cfg.DispatchStaleAfterMin)*time.Minute,
		),
		Reaper: scheduler.NewReaper(repos.Jobs, logger,
			time.Duration(cfg.ReaperIntervalSec)*time.Second,
			time.Duration(cfg.HeartbeatTimeoutSec)*time.Second,
			time.Duration(cfg.QueueTimeoutMin)*time.Minute,
		),
		logger: logger,
	}, nil
}

// Start runs the loops in the background until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	go e.Worker.Start(ctx)
	go e.Dispatcher.Start(ctx)
	go e.Reaper.Start(ctx)
}

// Wait blocks until tasks that were running at shutdown have finished, or
// until ctx expires.
func (e *Engine) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		e.Worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline hit with tasks still running; the reaper will fail them")
	}
}
