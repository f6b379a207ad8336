package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/notify"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/repository"
)

// CompleteMessage is the status message of a finished job.
const CompleteMessage = "Processing complete"

// Finisher marks a job complete once every record has finished both phases.
type Finisher struct {
	jobs     repository.JobRepository
	records  repository.RecordRepository
	notifier notify.Notifier
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewFinisher creates a Finisher. A nil notifier is replaced by notify.Nop.
func NewFinisher(jobs repository.JobRepository, records repository.RecordRepository, notifier notify.Notifier, metrics *observability.Metrics, logger zerolog.Logger) *Finisher {
	if notifier == nil {
		notifier = notify.Nop
	}
	return &Finisher{
		jobs:     jobs,
		records:  records,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With().Str("component", "finisher").Logger(),
	}
}

// Check completes the job when its truncated completion percentage reaches
// 100, or when the upload holds no records at all, and sends the completion
// notification. It reports whether the job was completed by this call. A
// notification failure is logged, not returned.
func (f *Finisher) Check(ctx context.Context, job *domain.SpreadsheetJob) (bool, error) {
	if job.Status == domain.JobStatusComplete {
		return false, nil
	}

	comp, err := f.records.UploadCompleteness(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("completeness of job %s: %w", job.ID, err)
	}
	if comp.Total > 0 && int(comp.PcComplete()) != 100 {
		return false, nil
	}

	job.SetStatus(domain.JobStatusComplete, CompleteMessage)
	if err := f.jobs.Update(ctx, job); err != nil {
		return false, fmt.Errorf("mark job %s complete: %w", job.ID, err)
	}
	f.metrics.RecordJobStatus(string(domain.JobStatusComplete))

	logger := observability.WithJobContext(f.logger, job.ID.String(), job.Filename)
	logger.Info().Int("records", comp.Total).Msg("job complete")

	if err := f.notifier.Notify(ctx, domain.EventTypeJobCompleted, job); err != nil {
		logger.Warn().Err(err).Msg("completion notification failed")
	}
	return true, nil
}
