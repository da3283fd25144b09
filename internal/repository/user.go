package repository

import (
	"context"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

type UserRepository interface {
	// Upsert records an authenticated subject; email is stored when known.
	Upsert(ctx context.Context, id string, email *string) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
}
