package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// JobRepository handles spreadsheet job persistence.
type JobRepository interface {
	// Create inserts a new job.
	// Returns domain.ErrAlreadyExists if a job with the same ID already exists.
	Create(ctx context.Context, job *domain.SpreadsheetJob) error

	// Get retrieves a job by ID.
	// Returns domain.ErrNotFound if no matching job exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.SpreadsheetJob, error)

	// Update persists the job's mutable fields and refreshes UpdatedAt.
	// Returns domain.ErrNotFound if no matching job exists.
	Update(ctx context.Context, job *domain.SpreadsheetJob) error

	// ListByStatus returns every job in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.SpreadsheetJob, error)

	// QueueLength counts the submitted jobs created before the given job,
	// stopping at max.
	QueueLength(ctx context.Context, id uuid.UUID, max int) (int, error)
}
