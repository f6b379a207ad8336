// Package repository provides data access interfaces and implementations
// for the OA compliance service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL implementations
// following the repository pattern to abstract data persistence from business logic.
//
// # Repository Interfaces
//
//   - JobRepository: spreadsheet job lifecycle and queue position
//   - RecordRepository: per-row records, completeness aggregation and duplicate detection
//   - LinkRepository: associations between jobs and licence resolver batches
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Visibility
//
// PostgreSQL gives read-after-commit visibility, so there is no refresh step
// between a write and a following read. Callers that fan work out across
// goroutines join them before reading aggregate state.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// Any other database error is wrapped and returned; nothing is swallowed.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	jobs := repository.NewPgJobRepository(db)
//	records := repository.NewPgRecordRepository(db)
//	links := repository.NewPgLinkRepository(db)
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/oa-compliance-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
//
// Repositories accept DBTX so a pgx.Tx can be passed in place of the pool:
//
//	err := database.WithTransaction(ctx, db, func(tx pgx.Tx) error {
//	    return repository.NewPgJobRepository(tx).Update(ctx, job)
//	})
type DBTX = database.DBTX

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// isPgError reports whether err is a PostgreSQL error with the given code.
func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString maps SQL NULL back to the empty string.
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
