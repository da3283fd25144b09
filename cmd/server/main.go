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
	"github.com/ErlanBelekov/court-capture/internal/recurrence"
	httptransport "github.com/ErlanBelekov/court-capture/internal/transport/http"
	"github.com/ErlanBelekov/court-capture/internal/transport/http/handler"
	"github.com/ErlanBelekov/court-capture/internal/transport/http/middleware"
	"github.com/ErlanBelekov/court-capture/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := app.NewLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	q, err := app.OpenQueue(ctx, cfg)
	if err != nil {
		stop()
		log.Fatalf("queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	repos := app.NewRepositories(pool)
	tracker := app.NewTracker(cfg, repos, logger)

	// Captures
	captureUsecase := usecase.NewCaptureUsecase(repos.Jobs, repos.Attempts, repos.Credentials, tracker, q, logger)
	captureHandler := handler.NewCaptureHandler(captureUsecase, logger)

	// Schedules
	calculator := recurrence.NewCalculator(cfg.Location())
	scheduleUsecase := usecase.NewScheduleUsecase(repos.Schedules, repos.Jobs, repos.Credentials, calculator)
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, logger)

	auth, err := middleware.Auth(ctx, middleware.AuthConfig{
		JWKSURL:        cfg.ClerkJWKSURL,
		HMACKey:        []byte(cfg.JWTSecret),
		AcceptableSkew: 30 * time.Second,
	})
	if err != nil {
		stop()
		log.Fatalf("auth: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)
	if q.Pinger != nil {
		checker.With("redis", q.Pinger)
	}

	// With the in-memory queue nothing outside this process can see the
	// tasks, so the engine runs here too.
	var engine *app.Engine
	if q.InProcess() {
		engine, err = app.NewEngine(cfg, repos, tracker, q, logger)
		if err != nil {
			stop()
			log.Fatalf("engine: %v", err)
		}
		engine.Start(ctx)
		logger.Info("in-process engine started", "workers", cfg.WorkerCount)
	}

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(httptransport.RouterDeps{
			Logger:    logger,
			Captures:  captureHandler,
			Schedules: scheduleHandler,
			Users:     repos.Users,
			Auth:      auth,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if engine != nil {
		engine.Wait(shutdownCtx)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
