package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// ListByIDs silently drops ids that are not UUIDs; they cannot match a row.
func (r *CredentialRepository) ListByIDs(ctx context.Context, ownerID string, ids []string) ([]*domain.CredentialDescriptor, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, court_code, instance_level, auth_material, created_at
		FROM credentials
		WHERE owner_id = $1 AND id = ANY($2::uuid[])`, ownerID, valid)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*domain.CredentialDescriptor
	for rows.Next() {
		var c domain.CredentialDescriptor
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.CourtCode, &c.InstanceLevel, &c.AuthMaterial, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// Create is used by seeding tools; the API never writes credentials.
func (r *CredentialRepository) Create(ctx context.Context, c *domain.CredentialDescriptor) (*domain.CredentialDescriptor, error) {
	var out domain.CredentialDescriptor
	err := r.pool.QueryRow(ctx, `
		INSERT INTO credentials (owner_id, court_code, instance_level, auth_material)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, court_code, instance_level, auth_material, created_at`,
		c.OwnerID, c.CourtCode, c.InstanceLevel, c.AuthMaterial,
	).Scan(&out.ID, &out.OwnerID, &out.CourtCode, &out.InstanceLevel, &out.AuthMaterial, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return &out, nil
}
