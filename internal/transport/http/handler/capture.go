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

type captureUsecaser interface {
	Trigger(ctx context.Context, input usecase.TriggerInput) (usecase.TriggerResult, error)
	GetJob(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error)
	ListJobs(ctx context.Context, input usecase.ListJobsInput) (usecase.ListJobsResult, error)
	ListAttempts(ctx context.Context, jobID, ownerID string) ([]*domain.CaptureAttempt, error)
}

type CaptureHandler struct {
	uc     captureUsecaser
	logger *slog.Logger
}

func NewCaptureHandler(uc captureUsecaser, logger *slog.Logger) *CaptureHandler {
	return &CaptureHandler{uc: uc, logger: logger.With("component", "capture_handler")}
}

type triggerRequest struct {
	CredentialIDs []string        `json:"credential_ids" binding:"required,min=1,max=50,dive,required"`
	Params        json.RawMessage `json:"params"`
}

type triggerResponse struct {
	JobID           *string       `json:"job_id"`
	Status          domain.Status `json:"status"`
	CredentialCount int           `json:"credential_count"`
}

type jobResponse struct {
	ID            string               `json:"id"`
	CaptureType   domain.CaptureType   `json:"capture_type"`
	Status        domain.Status        `json:"status"`
	CredentialIDs []string             `json:"credential_ids"`
	Params        domain.CaptureParams `json:"params"`
	ScheduleID    *string              `json:"schedule_id,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	ClaimedAt     *time.Time           `json:"claimed_at,omitempty"`
	FinishedAt    *time.Time           `json:"finished_at,omitempty"`
	HeartbeatAt   *time.Time           `json:"heartbeat_at,omitempty"`
	ResultSummary *domain.JobSummary   `json:"result_summary,omitempty"`
	ErrorMessage  *string              `json:"error_message,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toJobResponse(j *domain.CaptureJob) jobResponse {
	return jobResponse{
		ID:            j.ID,
		CaptureType:   j.CaptureType,
		Status:        j.Status,
		CredentialIDs: j.CredentialIDs,
		Params:        j.Params,
		ScheduleID:    j.ScheduleID,
		StartedAt:     j.StartedAt,
		ClaimedAt:     j.ClaimedAt,
		FinishedAt:    j.FinishedAt,
		HeartbeatAt:   j.HeartbeatAt,
		ResultSummary: j.ResultSummary,
		ErrorMessage:  j.ErrorMessage,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

type listJobsResponse struct {
	Jobs       []jobResponse `json:"jobs"`
	NextCursor *string       `json:"next_cursor"`
}

func toListJobsResponse(result usecase.ListJobsResult) listJobsResponse {
	items := make([]jobResponse, len(result.Jobs))
	for i, j := range result.Jobs {
		items[i] = toJobResponse(j)
	}
	return listJobsResponse{Jobs: items, NextCursor: result.NextCursor}
}

type attemptResponse struct {
	ID              string                 `json:"id"`
	JobID           *string                `json:"job_id"`
	CredentialID    string                 `json:"credential_id"`
	FilterContext   domain.FilterContext   `json:"filter_context"`
	Outcome         domain.Outcome         `json:"outcome"`
	ProcessedResult *domain.PersistSummary `json:"processed_result,omitempty"`
	RawPayload      json.RawMessage        `json:"raw_payload,omitempty"`
	Logs            []string               `json:"logs"`
	ErrorMessage    *string                `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Trigger starts an on-demand capture and answers 202 before any court is
// contacted.
func (h *CaptureHandler) Trigger(ctx *gin.Context) {
	var req triggerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	res, err := h.uc.Trigger(ctx.Request.Context(), usecase.TriggerInput{
		OwnerID:       ctx.GetString(middleware.UserIDKey),
		CaptureType:   ctx.Param("type"),
		CredentialIDs: req.CredentialIDs,
		Params:        req.Params,
	})
	if err != nil {
		respondError(ctx, h.logger, "trigger capture", err)
		return
	}

	resp := triggerResponse{Status: res.Status, CredentialCount: res.CredentialCount}
	if res.JobID != "" {
		resp.JobID = &res.JobID
	}
	ctx.JSON(http.StatusAccepted, resp)
}

func (h *CaptureHandler) GetJob(ctx *gin.Context) {
	job, err := h.uc.GetJob(ctx.Request.Context(), ctx.Param("id"), ctx.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(ctx, h.logger, "get capture job", err)
		return
	}
	ctx.JSON(http.StatusOK, toJobResponse(job))
}

func (h *CaptureHandler) ListJobs(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListJobs(ctx.Request.Context(), usecase.ListJobsInput{
		OwnerID: ctx.GetString(middleware.UserIDKey),
		Status:  ctx.Query("status"),
		Cursor:  ctx.Query("cursor"),
		Limit:   limit,
	})
	if err != nil {
		respondError(ctx, h.logger, "list capture jobs", err)
		return
	}
	ctx.JSON(http.StatusOK, toListJobsResponse(result))
}

// ListAttempts omits raw payloads unless include_payload=true.
func (h *CaptureHandler) ListAttempts(ctx *gin.Context) {
	jobID := ctx.Param("id")
	attempts, err := h.uc.ListAttempts(ctx.Request.Context(), jobID, ctx.GetString(middleware.UserIDKey))
	if err != nil {
		respondError(ctx, h.logger, "list attempts", err)
		return
	}

	withPayload := ctx.Query("include_payload") == "true"
	resp := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		resp[i] = attemptResponse{
			ID:              a.ID,
			JobID:           a.JobID,
			CredentialID:    a.CredentialID,
			FilterContext:   a.FilterContext,
			Outcome:         a.Outcome,
			ProcessedResult: a.ProcessedResult,
			Logs:            a.Logs,
			ErrorMessage:    a.ErrorMessage,
			CreatedAt:       a.CreatedAt,
		}
		if withPayload && json.Valid(a.RawPayload) {
			resp[i].RawPayload = a.RawPayload
		}
	}
	ctx.JSON(http.StatusOK, resp)
}
