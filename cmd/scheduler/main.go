package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/court-capture/config"
	"github.com/ErlanBelekov/court-capture/internal/app"
	"github.com/ErlanBelekov/court-capture/internal/health"
	"github.com/ErlanBelekov/court-capture/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := app.NewLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns: int32(cfg.WorkerCount) * 2,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	q, err := app.OpenQueue(ctx, cfg)
	if err != nil {
		stop()
		log.Fatalf("queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	if q.InProcess() {
		logger.Warn("memory queue: only scheduled captures will run here; on-demand captures need QUEUE_BACKEND=redis")
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)
	if q.Pinger != nil {
		checker.With("redis", q.Pinger)
	}

	repos := app.NewRepositories(pool)
	engine, err := app.NewEngine(cfg, repos, app.NewTracker(cfg, repos, logger), q, logger)
	if err != nil {
		stop()
		log.Fatalf("engine: %v", err)
	}
	engine.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("draining running captures")

	// Captures can take minutes; give them longer than the API server gets.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	engine.Wait(shutdownCtx)
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
