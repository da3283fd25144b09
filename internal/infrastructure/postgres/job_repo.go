package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, capture_type, owner_id, credential_ids, params, schedule_id,
		       status, started_at, claimed_at, finished_at, heartbeat_at, result_summary,
		       error_message, created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts the job as in_progress and unclaimed in one statement.
func (r *JobRepository) Create(ctx context.Context, job *domain.CaptureJob) (*domain.CaptureJob, error) {
	params, err := domain.EncodeParams(job.Params)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO capture_jobs (capture_type, owner_id, credential_ids, params, schedule_id, status)
		VALUES ($1, $2, $3, $4, $5, 'in_progress')
		RETURNING ` + jobColumns

	row := r.pool.QueryRow(ctx, query,
		job.CaptureType,
		job.OwnerID,
		job.CredentialIDs,
		params,
		job.ScheduleID,
	)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, &domain.NotFoundError{Resource: "owner", ID: job.OwnerID}
		}
		return nil, err
	}
	return created, nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID, ownerID string) (*domain.CaptureJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}

	query := `SELECT ` + jobColumns + `
		FROM capture_jobs
		WHERE id = $1 AND owner_id = $2`

	return scanJob(r.pool.QueryRow(ctx, query, jobID, ownerID))
}

// Claim hands an in_progress job to the calling worker and starts its
// heartbeat clock. A job that is terminal or already claimed yields
// domain.ErrJobNotRunning.
func (r *JobRepository) Claim(ctx context.Context, jobID string) (*domain.CaptureJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrJobNotFound
	}

	query := `
		UPDATE capture_jobs
		SET    claimed_at   = NOW(),
		       heartbeat_at = NOW(),
		       updated_at   = NOW()
		WHERE id = $1 AND status = 'in_progress' AND claimed_at IS NULL
		RETURNING ` + jobColumns

	claimed, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, domain.ErrJobNotRunning
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return claimed, nil
}

func (r *JobRepository) UpdateHeartbeat(ctx context.Context, jobID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE capture_jobs SET heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'`, jobID)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, jobID string, summary *domain.JobSummary) error {
	return r.finish(ctx, jobID, domain.StatusCompleted, summary, nil)
}

func (r *JobRepository) Fail(ctx context.Context, jobID string, summary *domain.JobSummary, message string) error {
	return r.finish(ctx, jobID, domain.StatusFailed, summary, &message)
}

// finish is the only terminal transition. The status guard makes a second
// finalization a no-op reported as ErrJobNotRunning.
func (r *JobRepository) finish(ctx context.Context, jobID string, status domain.Status, summary *domain.JobSummary, message *string) error {
	var raw []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		raw = b
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE capture_jobs
		SET    status         = $2,
		       result_summary = $3,
		       error_message  = $4,
		       finished_at    = NOW(),
		       updated_at     = NOW()
		WHERE id = $1 AND status = 'in_progress'`,
		jobID, status, raw, message)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotRunning
	}
	return nil
}

// FailStale fails claimed jobs whose heartbeat is older than staleCutoff.
// Jobs still waiting in the queue are never touched here.
func (r *JobRepository) FailStale(ctx context.Context, staleCutoff time.Time, message string, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE capture_jobs
		SET    status        = 'failed',
		       error_message = $2,
		       finished_at   = NOW(),
		       updated_at    = NOW()
		WHERE id IN (
			SELECT id FROM capture_jobs
			WHERE  status = 'in_progress'
			  AND  claimed_at IS NOT NULL
			  AND  COALESCE(heartbeat_at, claimed_at) < $1
			ORDER BY heartbeat_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`, staleCutoff, message, limit)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// FailUnclaimed fails jobs no worker picked up since createdBefore, such as
// tasks lost with an in-memory queue on restart.
func (r *JobRepository) FailUnclaimed(ctx context.Context, createdBefore time.Time, message string, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE capture_jobs
		SET    status        = 'failed',
		       error_message = $2,
		       finished_at   = NOW(),
		       updated_at    = NOW()
		WHERE id IN (
			SELECT id FROM capture_jobs
			WHERE  status = 'in_progress'
			  AND  claimed_at IS NULL
			  AND  created_at < $1
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)`, createdBefore, message, limit)
	if err != nil {
		return 0, fmt.Errorf("fail unclaimed jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *JobRepository) ListJobs(ctx context.Context, input repository.ListJobsInput) ([]*domain.CaptureJob, error) {
	args := []any{input.OwnerID}
	where := []string{"owner_id = $1"}

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.ScheduleID != "" {
		if _, err := uuid.Parse(input.ScheduleID); err != nil {
			return nil, nil
		}
		args = append(args, input.ScheduleID)
		where = append(where, fmt.Sprintf("schedule_id = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM capture_jobs
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		jobColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.CaptureJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.CaptureJob, error) {
	var (
		j       domain.CaptureJob
		params  []byte
		summary []byte
	)
	err := row.Scan(
		&j.ID, &j.CaptureType, &j.OwnerID, &j.CredentialIDs, &params, &j.ScheduleID,
		&j.Status, &j.StartedAt, &j.ClaimedAt, &j.FinishedAt, &j.HeartbeatAt, &summary,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if j.Params, err = decodeStoredParams(j.CaptureType, params); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	if len(summary) > 0 {
		j.ResultSummary = &domain.JobSummary{}
		if err := json.Unmarshal(summary, j.ResultSummary); err != nil {
			return nil, fmt.Errorf("job %s: decode summary: %w", j.ID, err)
		}
	}
	return &j, nil
}

func decodeStoredParams(t domain.CaptureType, raw []byte) (domain.CaptureParams, error) {
	p, err := domain.DecodeParams(t, raw)
	if err != nil {
		return nil, fmt.Errorf("decode stored params: %w", err)
	}
	return p, nil
}
