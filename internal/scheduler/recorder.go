package scheduler

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/repository"
)

// Recorder appends attempt rows. Recording is best effort: a store failure
// is logged and never aborts the job.
type Recorder struct {
	attempts repository.AttemptRepository
	logger   *slog.Logger
}

func NewRecorder(attempts repository.AttemptRepository, logger *slog.Logger) *Recorder {
	return &Recorder{attempts: attempts, logger: logger.With("component", "recorder")}
}

func (r *Recorder) Record(ctx context.Context, a *domain.CaptureAttempt) {
	metrics.AttemptsTotal.WithLabelValues(string(a.CaptureType), string(a.Outcome)).Inc()
	if _, err := r.attempts.Append(ctx, a); err != nil {
		r.logger.ErrorContext(ctx, "record attempt",
			"credential_id", a.CredentialID,
			"filter", a.FilterContext.Filter,
			"outcome", a.Outcome,
			"error", err,
		)
	}
}

// attemptFrom converts an outcome into the row recorded for it.
func attemptFrom(jobID string, captureType domain.CaptureType, ownerID string, params []byte, o Outcome) *domain.CaptureAttempt {
	a := &domain.CaptureAttempt{
		CaptureType:  captureType,
		OwnerID:      ownerID,
		CredentialID: o.Credential.ID,
		FilterContext: domain.FilterContext{
			CourtCode:     o.Credential.CourtCode,
			InstanceLevel: o.Credential.InstanceLevel,
			Filter:        o.Filter,
			Params:        params,
		},
		Outcome: domain.OutcomeSuccess,
		Logs:    []string{},
	}
	if jobID != "" {
		id := jobID
		a.JobID = &id
	}
	if o.Result != nil {
		a.RawPayload = o.Result.RawPayload
		a.Logs = append(a.Logs, o.Result.Logs...)
		if o.Err == nil {
			summary := o.Result.Summary
			a.ProcessedResult = &summary
		}
	}
	if o.Err != nil {
		msg := o.Err.Error()
		a.Outcome = domain.OutcomeError
		a.ErrorMessage = &msg
		a.Logs = append(a.Logs, "error: "+msg)
	}
	return a
}
