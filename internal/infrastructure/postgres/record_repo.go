package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// Persist upserts a batch in one round trip. Records whose payload is
// unchanged only bump last_seen_at and count as unchanged.
func (r *RecordRepository) Persist(ctx context.Context, records []domain.CapturedRecord) (domain.PersistSummary, error) {
	summary := domain.PersistSummary{Received: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			WITH prev AS (
				SELECT payload FROM captured_records
				WHERE owner_id = $1 AND capture_type = $2 AND external_id = $3
			)
			INSERT INTO captured_records (owner_id, capture_type, external_id, credential_id, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id, capture_type, external_id) DO UPDATE
			SET last_seen_at  = NOW(),
			    credential_id = EXCLUDED.credential_id,
			    payload       = EXCLUDED.payload
			RETURNING (SELECT payload FROM prev) IS DISTINCT FROM $5::jsonb`,
			rec.OwnerID, rec.CaptureType, rec.ExternalID, rec.CredentialID, []byte(rec.Payload))
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range records {
		var changed bool
		if err := results.QueryRow().Scan(&changed); err != nil {
			return summary, fmt.Errorf("upsert record: %w", err)
		}
		if changed {
			summary.Upserted++
		} else {
			summary.Unchanged++
		}
	}
	return summary, nil
}
