// Package httptransport wires the gin engine for the capture API.
package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/ErlanBelekov/court-capture/internal/transport/http/handler"
	"github.com/ErlanBelekov/court-capture/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

type RouterDeps struct {
	Logger    *slog.Logger
	Captures  *handler.CaptureHandler
	Schedules *handler.ScheduleHandler
	Users     repository.UserRepository
	Auth      gin.HandlerFunc
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(deps.Logger))
	r.Use(middleware.Metrics())

	ensureUser := middleware.EnsureUser(deps.Users, deps.Logger)

	captures := r.Group("/captures", deps.Auth, ensureUser)
	captures.POST("/:type", deps.Captures.Trigger)
	captures.GET("/jobs", deps.Captures.ListJobs)
	captures.GET("/jobs/:id", deps.Captures.GetJob)
	captures.GET("/jobs/:id/attempts", deps.Captures.ListAttempts)

	schedules := r.Group("/schedules", deps.Auth, ensureUser)
	schedules.POST("", deps.Schedules.Create)
	schedules.GET("", deps.Schedules.List)
	schedules.GET("/:id", deps.Schedules.GetByID)
	schedules.PUT("/:id", deps.Schedules.Update)
	schedules.POST("/:id/pause", deps.Schedules.Pause)
	schedules.POST("/:id/resume", deps.Schedules.Resume)
	schedules.DELETE("/:id", deps.Schedules.Delete)
	schedules.GET("/:id/jobs", deps.Schedules.ListJobs)

	return r
}
