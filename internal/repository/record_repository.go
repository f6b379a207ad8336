package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Completeness is the per-upload progress aggregate.
type Completeness struct {
	Total        int
	EPMCComplete int
	OAGComplete  int
}

// PcComplete is the mean of the EPMC and licence phase completion ratios,
// as a percentage. It is 0 for an upload with no records.
func (c *Completeness) PcComplete() float64 {
	if c == nil || c.Total == 0 {
		return 0
	}
	total := float64(c.Total)
	return (float64(c.EPMCComplete)/total + float64(c.OAGComplete)/total) / 2 * 100
}

// Duplicates maps each identifier kind to the values that occur more than
// once within an upload, most frequent first.
type Duplicates map[domain.IdentifierKind][]string

// RecordRepository handles per-row record persistence.
type RecordRepository interface {
	// Create inserts a single record.
	Create(ctx context.Context, rec *domain.Record) error

	// BulkCreate inserts records in one transaction. Either all are stored or none.
	BulkCreate(ctx context.Context, recs []*domain.Record) error

	// Get retrieves a record by ID.
	// Returns domain.ErrNotFound if no matching record exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Record, error)

	// Save overwrites every mutable field of an existing record.
	Save(ctx context.Context, rec *domain.Record) error

	// ListByUpload returns the upload's records in spreadsheet order.
	ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]*domain.Record, error)

	// CountByUpload returns the number of records in an upload.
	CountByUpload(ctx context.Context, uploadID uuid.UUID) (int, error)

	// GetByIdentifier finds the upload's records carrying the identifier.
	// An empty kind matches the value against pmcid, pmid and doi.
	GetByIdentifier(ctx context.Context, identifier string, uploadID uuid.UUID, kind domain.IdentifierKind) ([]*domain.Record, error)

	// UploadCompleteness counts records and their finished phases.
	UploadCompleteness(ctx context.Context, uploadID uuid.UUID) (*Completeness, error)

	// ListDuplicateIdentifiers reports identifier values shared by several records.
	ListDuplicateIdentifiers(ctx context.Context, uploadID uuid.UUID) (Duplicates, error)
}
