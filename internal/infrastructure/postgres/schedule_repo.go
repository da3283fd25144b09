package postgres

import (
	"context"
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

const scheduleColumns = `id, owner_id, name, capture_type, credential_ids, periodicity,
		       interval_days, cron_expr, time_of_day, extra_params, paused,
		       next_run_at, last_run_at, dispatched_at, created_at, updated_at`

type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	params, err := domain.EncodeParams(s.ExtraParams)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO schedules (
			owner_id, name, capture_type, credential_ids, periodicity,
			interval_days, cron_expr, time_of_day, extra_params, paused, next_run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.OwnerID, s.Name, s.CaptureType, s.CredentialIDs, s.Periodicity,
		s.IntervalDays, s.CronExpr, s.TimeOfDay.String(), params, s.Paused, s.NextRunAt,
	)

	created, err := scanSchedule(row)
	if err != nil {
		return nil, mapScheduleWriteErr(err)
	}
	return created, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id, ownerID string) (*domain.Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrScheduleNotFound
	}

	query := `SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE id = $1 AND owner_id = $2`

	return scanSchedule(r.pool.QueryRow(ctx, query, id, ownerID))
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	args := []any{input.OwnerID}
	where := []string{"owner_id = $1"}

	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM schedules
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		scheduleColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *ScheduleRepository) Update(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	if _, err := uuid.Parse(s.ID); err != nil {
		return nil, domain.ErrScheduleNotFound
	}

	params, err := domain.EncodeParams(s.ExtraParams)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE schedules
		SET    name           = $3,
		       credential_ids = $4,
		       periodicity    = $5,
		       interval_days  = $6,
		       cron_expr      = $7,
		       time_of_day    = $8,
		       extra_params   = $9,
		       next_run_at    = $10,
		       updated_at     = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + scheduleColumns

	row := r.pool.QueryRow(ctx, query,
		s.ID, s.OwnerID, s.Name, s.CredentialIDs, s.Periodicity,
		s.IntervalDays, s.CronExpr, s.TimeOfDay.String(), params, s.NextRunAt,
	)
	updated, err := scanSchedule(row)
	if err != nil {
		return nil, mapScheduleWriteErr(err)
	}
	return updated, nil
}

func (r *ScheduleRepository) SetPaused(ctx context.Context, id, ownerID string, paused bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrScheduleNotFound
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE schedules SET paused = $3, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND paused = $4`,
		id, ownerID, paused, !paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// not found vs already in the requested state
		if _, err := r.GetByID(ctx, id, ownerID); err != nil {
			return err
		}
		if paused {
			return domain.ErrScheduleAlreadyPaused
		}
		return domain.ErrScheduleNotPaused
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrScheduleNotFound
	}

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM schedules WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ClaimDue stamps dispatched_at on due schedules in one statement.
// FOR UPDATE SKIP LOCKED keeps two dispatchers from claiming the same row.
// A stale dispatch is only re-claimed once the schedule has no job in
// progress, so a long run never gets a concurrent twin.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE schedules
		SET    dispatched_at = NOW(),
		       updated_at    = NOW()
		WHERE id IN (
			SELECT id FROM schedules
			WHERE  next_run_at <= NOW()
			  AND  NOT paused
			  AND  (dispatched_at IS NULL OR dispatched_at < $1)
			  AND  NOT EXISTS (
				SELECT 1 FROM capture_jobs j
				WHERE  j.schedule_id = schedules.id
				  AND  j.status = 'in_progress'
			  )
			ORDER BY next_run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+scheduleColumns, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *ScheduleRepository) MarkRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET    last_run_at   = $2,
		       next_run_at   = $3,
		       dispatched_at = NULL,
		       updated_at    = NOW()
		WHERE id = $1`, id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func mapScheduleWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return domain.ErrScheduleNameConflict
		case "23503":
			return &domain.NotFoundError{Resource: "owner", ID: pgErr.Detail}
		}
	}
	return err
}

func collectSchedules(rows pgx.Rows) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var (
		s      domain.Schedule
		tod    string
		params []byte
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Name, &s.CaptureType, &s.CredentialIDs, &s.Periodicity,
		&s.IntervalDays, &s.CronExpr, &tod, &params, &s.Paused,
		&s.NextRunAt, &s.LastRunAt, &s.DispatchedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if s.TimeOfDay, err = domain.ParseTimeOfDay(tod); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	if s.ExtraParams, err = decodeStoredParams(s.CaptureType, params); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	return &s, nil
}
