package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sheets"
)

// UploadRequest is the validated form of a spreadsheet submission.
type UploadRequest struct {
	Filename        string `validate:"required,max=255"`
	ContactEmail    string `validate:"required,email"`
	WebhookCallback string `validate:"omitempty,http_url"`
}

// CSVUpload stores a submitted spreadsheet and queues it as a new job. The
// job is only created once its upload is safely stored.
func (o *Orchestrator) CSVUpload(ctx context.Context, content io.Reader, filename, contactEmail, webhook string) (*domain.SpreadsheetJob, error) {
	req := UploadRequest{
		Filename:        strings.TrimSpace(filename),
		ContactEmail:    strings.TrimSpace(contactEmail),
		WebhookCallback: strings.TrimSpace(webhook),
	}
	if err := o.validateUpload(req); err != nil {
		return nil, err
	}

	job := &domain.SpreadsheetJob{
		ID:              uuid.New(),
		Filename:        req.Filename,
		ContactEmail:    req.ContactEmail,
		WebhookCallback: req.WebhookCallback,
		Status:          domain.JobStatusSubmitted,
	}

	if err := o.uploads.Save(ctx, job.ID, content); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		if rmErr := o.uploads.Remove(job.ID); rmErr != nil {
			o.logger.Warn().Err(rmErr).Str("job_id", job.ID.String()).Msg("failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	o.metrics.RecordJobStatus(string(domain.JobStatusSubmitted))

	logger := o.logger.With().Str("job_id", job.ID.String()).Str("filename", job.Filename).Logger()
	logger.Info().Msg("spreadsheet uploaded")

	if err := o.notifier.Notify(ctx, domain.EventTypeJobSubmitted, job); err != nil {
		logger.Warn().Err(err).Msg("upload notification failed")
	}
	return job, nil
}

// validateUpload maps the first validation failure to a domain.ValidationError.
func (o *Orchestrator) validateUpload(req UploadRequest) error {
	err := o.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("upload", err.Error())
	}

	fe := verrs[0]
	field := map[string]string{
		"Filename":        "filename",
		"ContactEmail":    "contact_email",
		"WebhookCallback": "webhook_callback",
	}[fe.Field()]

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "http_url":
		msg = "must be an http or https URL"
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	default:
		msg = "is invalid"
	}
	return domain.NewValidationError(field, msg)
}

// OutputCSV writes the job's records as CSV.
func (o *Orchestrator) OutputCSV(ctx context.Context, jobID uuid.UUID, w io.Writer) error {
	recs, err := o.exportRecords(ctx, jobID)
	if err != nil {
		return err
	}
	return sheets.WriteRecords(w, recs)
}

// OutputXLSX writes the job's records as an Excel workbook.
func (o *Orchestrator) OutputXLSX(ctx context.Context, jobID uuid.UUID, w io.Writer) error {
	recs, err := o.exportRecords(ctx, jobID)
	if err != nil {
		return err
	}
	return sheets.WriteXLSX(w, recs)
}

func (o *Orchestrator) exportRecords(ctx context.Context, jobID uuid.UUID) ([]*domain.Record, error) {
	if _, err := o.jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	recs, err := o.records.ListByUpload(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}
