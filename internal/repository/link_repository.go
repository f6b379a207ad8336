package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// LinkRepository handles job to resolver batch associations.
type LinkRepository interface {
	// Create stores a link. ID and CreatedAt are filled in when zero.
	// Creating a link that already exists is not an error.
	Create(ctx context.Context, link *domain.AsyncLicenceLink) error

	// ByBatchID returns every link for a resolver batch, oldest first.
	ByBatchID(ctx context.Context, batchID string) ([]*domain.AsyncLicenceLink, error)

	// ByUploadID returns the job's first link.
	// Returns domain.ErrNotFound if the job never submitted a batch.
	ByUploadID(ctx context.Context, uploadID uuid.UUID) (*domain.AsyncLicenceLink, error)
}
