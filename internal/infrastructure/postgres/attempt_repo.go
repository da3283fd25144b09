package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptColumns = `id, job_id, capture_type, owner_id, credential_id, filter_context,
		       outcome, raw_payload, processed_result, logs, error_message, created_at`

type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Append(ctx context.Context, a *domain.CaptureAttempt) (*domain.CaptureAttempt, error) {
	filter, err := json.Marshal(a.FilterContext)
	if err != nil {
		return nil, fmt.Errorf("encode filter context: %w", err)
	}
	var processed []byte
	if a.ProcessedResult != nil {
		if processed, err = json.Marshal(a.ProcessedResult); err != nil {
			return nil, fmt.Errorf("encode processed result: %w", err)
		}
	}
	logs := a.Logs
	if logs == nil {
		logs = []string{}
	}

	query := `
		INSERT INTO capture_attempts (
			job_id, capture_type, owner_id, credential_id, filter_context,
			outcome, raw_payload, processed_result, logs, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + attemptColumns

	row := r.pool.QueryRow(ctx, query,
		a.JobID, a.CaptureType, a.OwnerID, a.CredentialID, filter,
		a.Outcome, rawJSON(a.RawPayload), processed, logs, a.ErrorMessage,
	)
	created, err := scanAttempt(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			// raw payload that is not valid JSON; keep the attempt without it
			retry := *a
			retry.RawPayload = nil
			return r.Append(ctx, &retry)
		}
		return nil, fmt.Errorf("append attempt: %w", err)
	}
	return created, nil
}

func (r *AttemptRepository) ListByJobID(ctx context.Context, jobID string) ([]*domain.CaptureAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM capture_attempts
		WHERE job_id = $1
		ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.CaptureAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// rawJSON maps an empty payload to SQL NULL.
func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanAttempt(row rowScanner) (*domain.CaptureAttempt, error) {
	var (
		a         domain.CaptureAttempt
		filter    []byte
		processed []byte
	)
	err := row.Scan(
		&a.ID, &a.JobID, &a.CaptureType, &a.OwnerID, &a.CredentialID, &filter,
		&a.Outcome, &a.RawPayload, &processed, &a.Logs, &a.ErrorMessage, &a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	if err := json.Unmarshal(filter, &a.FilterContext); err != nil {
		return nil, fmt.Errorf("decode filter context: %w", err)
	}
	if len(processed) > 0 {
		a.ProcessedResult = &domain.PersistSummary{}
		if err := json.Unmarshal(processed, a.ProcessedResult); err != nil {
			return nil, fmt.Errorf("decode processed result: %w", err)
		}
	}
	return &a, nil
}
