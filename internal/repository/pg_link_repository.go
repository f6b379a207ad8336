package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Compile-time interface verification.
var _ LinkRepository = (*PgLinkRepository)(nil)

// PgLinkRepository is a PostgreSQL implementation of LinkRepository.
type PgLinkRepository struct {
	db DBTX
}

// NewPgLinkRepository creates a new PostgreSQL link repository.
func NewPgLinkRepository(db DBTX) *PgLinkRepository {
	return &PgLinkRepository{db: db}
}

// Create stores a link. Linking a batch to a job it is already linked to
// is a no-op.
func (r *PgLinkRepository) Create(ctx context.Context, link *domain.AsyncLicenceLink) error {
	if link == nil {
		return domain.NewValidationError("link", "link cannot be nil")
	}
	if link.BatchID == "" {
		return domain.NewValidationError("batch_id", "batch ID is required")
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO async_licence_links (id, spreadsheet_id, batch_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (spreadsheet_id, batch_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, link.ID, link.SpreadsheetID, link.BatchID, link.CreatedAt); err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return domain.NewNotFoundError("job", link.SpreadsheetID.String())
		}
		return fmt.Errorf("failed to create licence link: %w", err)
	}
	return nil
}

// ByBatchID returns every link for a resolver batch, oldest first.
func (r *PgLinkRepository) ByBatchID(ctx context.Context, batchID string) ([]*domain.AsyncLicenceLink, error) {
	query := `
		SELECT id, spreadsheet_id, batch_id, created_at
		FROM async_licence_links
		WHERE batch_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list licence links: %w", err)
	}
	defer rows.Close()

	var links []*domain.AsyncLicenceLink
	for rows.Next() {
		var l domain.AsyncLicenceLink
		if err := rows.Scan(&l.ID, &l.SpreadsheetID, &l.BatchID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan licence link: %w", err)
		}
		links = append(links, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licence links: %w", err)
	}
	return links, nil
}

// ByUploadID returns the job's first link.
func (r *PgLinkRepository) ByUploadID(ctx context.Context, uploadID uuid.UUID) (*domain.AsyncLicenceLink, error) {
	query := `
		SELECT id, spreadsheet_id, batch_id, created_at
		FROM async_licence_links
		WHERE spreadsheet_id = $1
		ORDER BY created_at ASC
		LIMIT 1`

	var l domain.AsyncLicenceLink
	err := r.db.QueryRow(ctx, query, uploadID).Scan(&l.ID, &l.SpreadsheetID, &l.BatchID, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("licence link", uploadID.String())
		}
		return nil, fmt.Errorf("failed to get licence link: %w", err)
	}
	return &l, nil
}
