package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer   = "Internal server error"
	errJobNotFound      = "Capture job not found"
	errInvalidStatus    = "Invalid status value"
	errInvalidCursor    = "Invalid cursor"
	errUnknownCapture   = "Unknown capture type"
	errQueueUnavailable = "Capture queue is full, retry later"

	errScheduleNotFound      = "Schedule not found"
	errInvalidCronExpr       = "Invalid cron expression"
	errScheduleNameConflict  = "Schedule with this name already exists"
	errScheduleAlreadyPaused = "Schedule is already paused"
	errScheduleNotPaused     = "Schedule is not paused"
)

// respondError maps a usecase error to a status and a client-safe body.
// Only validation and not-found messages are echoed; the rest are logged.
func respondError(ctx *gin.Context, logger *slog.Logger, op string, err error) {
	var (
		verr *domain.ValidationError
		nf   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Error()}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		ctx.JSON(http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrUnknownCapture):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errUnknownCapture})
	case errors.Is(err, domain.ErrInvalidStatus):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidStatus})
	case errors.Is(err, domain.ErrInvalidCursor):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCursor})
	case errors.Is(err, domain.ErrInvalidCronExpr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCronExpr, "field": "cron_expr"})
	case errors.As(err, &nf):
		ctx.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
	case errors.Is(err, domain.ErrScheduleNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
	case errors.Is(err, domain.ErrScheduleNameConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleNameConflict})
	case errors.Is(err, domain.ErrScheduleAlreadyPaused):
		ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleAlreadyPaused})
	case errors.Is(err, domain.ErrScheduleNotPaused):
		ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleNotPaused})
	case errors.Is(err, queue.ErrQueueFull):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": errQueueUnavailable})
	default:
		logger.ErrorContext(ctx.Request.Context(), op, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

// bindError reports a malformed request body.
func bindError(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
