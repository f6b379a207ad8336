// Package dedup flags records that share an identifier with another record
// in the same spreadsheet.
package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/repository"
)

// noteFormat is filled with the identifier label and value.
const noteFormat = "The %s %s appears more than once in this spreadsheet; results for duplicated records should be reviewed carefully"

// Store is the subset of the record repository the checker needs.
type Store interface {
	ListDuplicateIdentifiers(ctx context.Context, uploadID uuid.UUID) (repository.Duplicates, error)
	GetByIdentifier(ctx context.Context, identifier string, uploadID uuid.UUID, kind domain.IdentifierKind) ([]*domain.Record, error)
	Save(ctx context.Context, rec *domain.Record) error
}

// Checker annotates duplicated records. Compliance fields are never touched.
type Checker struct {
	store  Store
	logger zerolog.Logger
}

// NewChecker creates a Checker.
func NewChecker(store Store, logger zerolog.Logger) *Checker {
	return &Checker{
		store:  store,
		logger: logger.With().Str("component", "dedup").Logger(),
	}
}

// Check appends a dedup note to every record whose pmcid, pmid or doi is
// shared with another record of the job, one note per duplicated kind.
// Each affected record is saved once. It returns the number of records
// annotated.
func (c *Checker) Check(ctx context.Context, jobID uuid.UUID) (int, error) {
	dups, err := c.store.ListDuplicateIdentifiers(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("list duplicate identifiers: %w", err)
	}

	var (
		touched = make(map[uuid.UUID]*domain.Record)
		order   []uuid.UUID
	)

	for _, kind := range domain.IdentifierKinds {
		for _, value := range dups[kind] {
			recs, err := c.store.GetByIdentifier(ctx, value, jobID, kind)
			if err != nil {
				return 0, fmt.Errorf("find records with %s %s: %w", kind, value, err)
			}
			for _, rec := range recs {
				// Reuse the instance already annotated so notes accumulate.
				if prev, ok := touched[rec.ID]; ok {
					rec = prev
				} else {
					touched[rec.ID] = rec
					order = append(order, rec.ID)
				}
				rec.AddProvenance(domain.ActorDedup, fmt.Sprintf(noteFormat, kind.Label(), value))
			}
		}
	}

	for _, id := range order {
		if err := c.store.Save(ctx, touched[id]); err != nil {
			return 0, fmt.Errorf("save record %s: %w", id, err)
		}
	}

	if len(order) > 0 {
		c.logger.Info().
			Str("job_id", jobID.String()).
			Int("records", len(order)).
			Msg("duplicate identifiers flagged")
	}
	return len(order), nil
}
