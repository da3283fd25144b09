package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/transport/http/middleware"
	"github.com/ErlanBelekov/court-capture/internal/usecase"
	"github.com/gin-gonic/gin"
)

type scheduleUsecaser interface {
	CreateSchedule(ctx context.Context, input usecase.CreateScheduleInput) (*domain.Schedule, error)
	UpdateSchedule(ctx context.Context, input usecase.UpdateScheduleInput) (*domain.Schedule, error)
	GetSchedule(ctx context.Context, id, ownerID string) (*domain.Schedule, error)
	ListSchedules(ctx context.Context, input usecase.ListSchedulesInput) (usecase.ListSchedulesResult, error)
	PauseSchedule(ctx context.Context, id, ownerID string) error
	ResumeSchedule(ctx context.Context, id, ownerID string) error
	DeleteSchedule(ctx context.Context, id, ownerID string) error
	ListScheduleJobs(ctx context.Context, input usecase.ListScheduleJobsInput) (usecase.ListJobsResult, error)
}

type ScheduleHandler struct {
	uc     scheduleUsecaser
	logger *slog.Logger
}

func NewScheduleHandler(uc scheduleUsecaser, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

type scheduleRequest struct {
	Name          string          `json:"name"           binding:"required,max=256"`
	CredentialIDs []string        `json:"credential_ids" binding:"required,min=1,max=50,dive,required"`
	Periodicity   string          `json:"periodicity"    binding:"required"`
	IntervalDays  *int            `json:"interval_days"`
	CronExpr      *string         `json:"cron_expr"`
	TimeOfDay     string          `json:"time_of_day"    binding:"required"`
	ExtraParams   json.RawMessage `json:"extra_params"`
}

func (r scheduleRequest) input() usecase.ScheduleInput {
	return usecase.ScheduleInput{
		Name:          r.Name,
		CredentialIDs: r.CredentialIDs,
		Periodicity:   r.Periodicity,
		IntervalDays:  r.IntervalDays,
		CronExpr:      r.CronExpr,
		TimeOfDay:     r.TimeOfDay,
		ExtraParams:   r.ExtraParams,
	}
}

type createScheduleRequest struct {
	CaptureType string `json:"capture_type" binding:"required"`
	scheduleRequest
}

type scheduleResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	CaptureType   domain.CaptureType   `json:"capture_type"`
	CredentialIDs []string             `json:"credential_ids"`
	Periodicity   domain.Periodicity   `json:"periodicity"`
	IntervalDays  *int                 `json:"interval_days,omitempty"`
	CronExpr      *string              `json:"cron_expr,omitempty"`
	TimeOfDay     string               `json:"time_of_day"`
	ExtraParams   domain.CaptureParams `json:"extra_params"`
	Paused        bool                 `json:"paused"`
	NextRunAt     time.Time            `json:"next_run_at"`
	LastRunAt     *time.Time           `json:"last_run_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:            s.ID,
		Name:          s.Name,
		CaptureType:   s.CaptureType,
		CredentialIDs: s.CredentialIDs,
		Periodicity:   s.Periodicity,
		IntervalDays:  s.IntervalDays,
		CronExpr:      s.CronExpr,
		TimeOfDay:     s.TimeOfDay.String(),
		ExtraParams:   s.ExtraParams,
		Paused:        s.Paused,
		NextRunAt:     s.NextRunAt,
		LastRunAt:     s.LastRunAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req createScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	s, err := h.uc.CreateSchedule(ctx.Request.Context(), usecase.CreateScheduleInput{
		OwnerID:       ctx.GetString(middleware.UserIDKey),
		CaptureType:   req.CaptureType,
		ScheduleInput: req.input(),
	})
	if err != nil {
		respondError(ctx, h.logger, "create schedule", err)
		return
	}
	ctx.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) Update(ctx *gin.Context) {
	var req scheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	s, err := h.uc.UpdateSchedule(ctx.Request.Context(), usecase.UpdateScheduleInput{
		ID:            ctx.Param("id"),
		OwnerID:       ctx.GetString(middleware.UserIDKey),
		ScheduleInput: req.input(),
	})
	if err != nil {
		respondError(ctx, h.logger, "update schedule", err)
		return
	}
	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListSchedules(ctx.Request.Context(), usecase.ListSchedulesInput{
		OwnerID: ctx.GetString(middleware.UserIDKey),
		Cursor:  ctx.Query("cursor"),
		Limit:   limit,
	})
	if err != nil {
		respondError(ctx, h.logger, "list schedules", err)
		return
	}

	items := make([]scheduleResponse, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = toScheduleResponse(s)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"schedules":   items,
		"next_cursor": result.NextCursor,
	})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	s, err := h.uc.GetSchedule(ctx.Request.Context(), ctx.Param("id"), ctx.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(ctx, h.logger, "get schedule", err)
		return
	}
	ctx.JSON(http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) Pause(ctx *gin.Context) {
	if err := h.uc.PauseSchedule(ctx.Request.Context(), ctx.Param("id"), ctx.GetString(middleware.UserIDKey)); err != nil {
		respondError(ctx, h.logger, "pause schedule", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Resume(ctx *gin.Context) {
	if err := h.uc.ResumeSchedule(ctx.Request.Context(), ctx.Param("id"), ctx.GetString(middleware.UserIDKey)); err != nil {
		respondError(ctx, h.logger, "resume schedule", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	if err := h.uc.DeleteSchedule(ctx.Request.Context(), ctx.Param("id"), ctx.GetString(middleware.UserIDKey)); err != nil {
		respondError(ctx, h.logger, "delete schedule", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) ListJobs(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListScheduleJobs(ctx.Request.Context(), usecase.ListScheduleJobsInput{
		ScheduleID: ctx.Param("id"),
		OwnerID:    ctx.GetString(middleware.UserIDKey),
		Cursor:     ctx.Query("cursor"),
		Limit:      limit,
	})
	if err != nil {
		respondError(ctx, h.logger, "list schedule jobs", err)
		return
	}
	ctx.JSON(http.StatusOK, toListJobsResponse(result))
}
