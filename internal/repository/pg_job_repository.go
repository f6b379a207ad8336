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
var _ JobRepository = (*PgJobRepository)(nil)

const jobColumns = `id, filename, contact_email, webhook_callback, status_code, status_message, created_at, updated_at`

// PgJobRepository is a PostgreSQL implementation of JobRepository.
type PgJobRepository struct {
	db DBTX
}

// NewPgJobRepository creates a new PostgreSQL job repository.
func NewPgJobRepository(db DBTX) *PgJobRepository {
	return &PgJobRepository{db: db}
}

// Create inserts a new job.
func (r *PgJobRepository) Create(ctx context.Context, job *domain.SpreadsheetJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.ID == uuid.Nil {
		return domain.NewValidationError("id", "job ID is required")
	}
	if job.Status == "" {
		job.Status = domain.JobStatusSubmitted
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	query := `
		INSERT INTO spreadsheet_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.Filename, job.ContactEmail, nullString(job.WebhookCallback),
		string(job.Status), nullString(job.StatusMessage),
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return domain.NewAlreadyExistsError("job", job.ID.String())
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *PgJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SpreadsheetJob, error) {
	query := `SELECT ` + jobColumns + ` FROM spreadsheet_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", id.String())
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Update persists the job's status and contact fields.
func (r *PgJobRepository) Update(ctx context.Context, job *domain.SpreadsheetJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}

	job.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE spreadsheet_jobs SET
			filename = $1,
			contact_email = $2,
			webhook_callback = $3,
			status_code = $4,
			status_message = $5,
			updated_at = $6
		WHERE id = $7`

	result, err := r.db.Exec(ctx, query,
		job.Filename, job.ContactEmail, nullString(job.WebhookCallback),
		string(job.Status), nullString(job.StatusMessage),
		job.UpdatedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("job", job.ID.String())
	}
	return nil
}

// ListByStatus returns every job in the given status, oldest first.
func (r *PgJobRepository) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.SpreadsheetJob, error) {
	query := `SELECT ` + jobColumns + ` FROM spreadsheet_jobs WHERE status_code = $1 ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.SpreadsheetJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// QueueLength counts the submitted jobs created before the given job, capped at max.
func (r *PgJobRepository) QueueLength(ctx context.Context, id uuid.UUID, max int) (int, error) {
	if max <= 0 {
		return 0, domain.NewValidationError("max", "max must be positive")
	}

	query := `
		SELECT count(*) FROM (
			SELECT 1 FROM spreadsheet_jobs
			WHERE status_code = 'submitted'
			  AND created_at < (SELECT created_at FROM spreadsheet_jobs WHERE id = $1)
			LIMIT $2
		) ahead`

	var n int
	if err := r.db.QueryRow(ctx, query, id, max).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}
	return n, nil
}

// scanJob scans a single spreadsheet_jobs row; pgx.Row and pgx.Rows both satisfy it.
func scanJob(row pgx.Row) (*domain.SpreadsheetJob, error) {
	var (
		job           domain.SpreadsheetJob
		webhook       *string
		status        string
		statusMessage *string
	)
	if err := row.Scan(
		&job.ID, &job.Filename, &job.ContactEmail, &webhook,
		&status, &statusMessage,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.WebhookCallback = derefString(webhook)
	job.Status = domain.JobStatus(status)
	job.StatusMessage = derefString(statusMessage)
	return &job, nil
}
