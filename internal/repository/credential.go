package repository

import (
	"context"

	"github.com/ErlanBelekov/court-capture/internal/domain"
)

type CredentialRepository interface {
	// ListByIDs returns the owner's credentials among ids. Unknown ids and
	// ids of other owners are simply absent from the result.
	ListByIDs(ctx context.Context, ownerID string, ids []string) ([]*domain.CredentialDescriptor, error)
}
