// Package orchestrator drives spreadsheet jobs from upload through
// synchronous enrichment to asynchronous licence resolution.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/oa-compliance-service/internal/coordinator"
	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/notify"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/sheets"
	"github.com/helixir/oa-compliance-service/internal/temporal"
)

// Status messages.
const (
	MessageProcessing = "Processing records"
	MessageParseError = "Unable to parse spreadsheet: "
)

// DefaultRecordConcurrency bounds how many records of one job are enriched at once.
const DefaultRecordConcurrency = 4

// RecordProcessor enriches one record.
type RecordProcessor interface {
	ProcessRecord(ctx context.Context, job *domain.SpreadsheetJob, rec *domain.Record, register *coordinator.Register) error
}

// DuplicateChecker annotates records that share identifiers.
type DuplicateChecker interface {
	Check(ctx context.Context, jobID uuid.UUID) (int, error)
}

// Dispatcher hands identifiers to the licence resolver.
type Dispatcher interface {
	Dispatch(ctx context.Context, items []domain.LookupItem, job *domain.SpreadsheetJob) (string, error)
}

// CompletionChecker completes a job whose records have all finished.
type CompletionChecker interface {
	Check(ctx context.Context, job *domain.SpreadsheetJob) (bool, error)
}

// BatchProgressReader asks the licence resolver how far a batch has got.
type BatchProgressReader interface {
	BatchProgress(ctx context.Context, batchID string) (*temporal.BatchProgress, error)
}

// UploadStore keeps the raw spreadsheets.
type UploadStore interface {
	Save(ctx context.Context, jobID uuid.UUID, content io.Reader) error
	Open(jobID uuid.UUID) (io.ReadCloser, error)
	Remove(jobID uuid.UUID) error
}

// Config configures the Orchestrator.
type Config struct {
	// RecordConcurrency bounds the per-job pipeline fan-out. Defaults to DefaultRecordConcurrency.
	RecordConcurrency int
}

// Deps holds the Orchestrator's collaborators.
type Deps struct {
	Jobs       repository.JobRepository
	Records    repository.RecordRepository
	Uploads    UploadStore
	Pipeline   RecordProcessor
	Dedup      DuplicateChecker
	Dispatcher Dispatcher
	Finisher   CompletionChecker
	Notifier   notify.Notifier
	Metrics    *observability.Metrics
	Logger     zerolog.Logger

	// Locker serialises the completion check with licence callbacks. Optional.
	Locker coordinator.JobLocker
	// Links and Batches add licence batch progress to Progress. Optional.
	Links   repository.LinkRepository
	Batches BatchProgressReader
}

// Orchestrator implements the job lifecycle.
type Orchestrator struct {
	jobs        repository.JobRepository
	records     repository.RecordRepository
	uploads     UploadStore
	pipeline    RecordProcessor
	dedup       DuplicateChecker
	dispatcher  Dispatcher
	finisher    CompletionChecker
	notifier    notify.Notifier
	metrics     *observability.Metrics
	logger      zerolog.Logger
	locker      coordinator.JobLocker
	links       repository.LinkRepository
	batches     BatchProgressReader
	validate    *validator.Validate
	concurrency int
}

// New creates an Orchestrator. A nil notifier is replaced by notify.Nop.
func New(cfg Config, deps Deps) *Orchestrator {
	concurrency := cfg.RecordConcurrency
	if concurrency <= 0 {
		concurrency = DefaultRecordConcurrency
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}
	return &Orchestrator{
		jobs:        deps.Jobs,
		records:     deps.Records,
		uploads:     deps.Uploads,
		pipeline:    deps.Pipeline,
		dedup:       deps.Dedup,
		dispatcher:  deps.Dispatcher,
		finisher:    deps.Finisher,
		notifier:    notifier,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With().Str("component", "orchestrator").Logger(),
		locker:      deps.Locker,
		links:       deps.Links,
		batches:     deps.Batches,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		concurrency: concurrency,
	}
}

// ProcessJobs processes every submitted job, oldest first. A failing job is
// logged and the loop moves on.
func (o *Orchestrator) ProcessJobs(ctx context.Context) error {
	jobs, err := o.jobs.ListByStatus(ctx, domain.JobStatusSubmitted)
	if err != nil {
		return fmt.Errorf("list submitted jobs: %w", err)
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.ProcessJob(ctx, job); err != nil {
			jobLogger := observability.WithJobContext(o.logger, job.ID.String(), job.Filename)
			jobLogger.Error().Err(err).Msg("job processing failed")
		}
	}
	return nil
}

// ProcessJob imports the job's spreadsheet, enriches every record, flags
// duplicates and dispatches the remaining licence lookups. A spreadsheet that
// cannot be imported puts the job in the error state and is not returned as
// an error; store failures are.
func (o *Orchestrator) ProcessJob(ctx context.Context, job *domain.SpreadsheetJob) error {
	logger := observability.WithJobContext(o.logger, job.ID.String(), job.Filename)
	start := time.Now()

	job.SetStatus(domain.JobStatusProcessing, MessageProcessing)
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	o.metrics.RecordJobStatus(string(domain.JobStatusProcessing))
	logger.Info().Msg("processing spreadsheet job")

	if err := o.importRecords(ctx, job); err != nil {
		logger.Warn().Err(err).Msg("spreadsheet import failed")
		return o.fail(ctx, job, MessageParseError+err.Error())
	}

	recs, err := o.records.ListByUpload(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	register := coordinator.NewRegister()
	failed := o.runPipeline(ctx, job, recs, register)
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := o.dedup.Check(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("duplicate detection failed")
	}

	if _, err := o.dispatcher.Dispatch(ctx, register.Items(), job); err != nil {
		logger.Error().Err(err).Int("items", register.Len()).Msg("licence dispatch failed; job stays processing")
	}

	if err := o.checkComplete(ctx, job); err != nil {
		return err
	}

	o.metrics.RecordJobProcessed(time.Since(start).Seconds())
	logger.Info().
		Int("records", len(recs)).
		Int64("failed", failed).
		Int("licence_lookups", register.Len()).
		Dur("duration", time.Since(start)).
		Msg("spreadsheet processed")
	return nil
}

// checkComplete runs the completion check under the job lock, so it cannot
// interleave with a licence callback completing the same job. The job's
// status is re-read once the lock is held.
func (o *Orchestrator) checkComplete(ctx context.Context, job *domain.SpreadsheetJob) error {
	if o.locker != nil {
		unlock, err := o.locker.LockJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		defer unlock()

		current, err := o.jobs.Get(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("reload job: %w", err)
		}
		job.Status, job.StatusMessage = current.Status, current.StatusMessage
	}

	_, err := o.finisher.Check(ctx, job)
	return err
}

func (o *Orchestrator) importRecords(ctx context.Context, job *domain.SpreadsheetJob) error {
	rc, err := o.uploads.Open(job.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	recs, err := sheets.ParseRecords(rc, job.ID)
	if err != nil {
		return err
	}
	return o.records.BulkCreate(ctx, recs)
}

// runPipeline enriches records concurrently and returns how many failed.
// Record failures never cancel their siblings.
func (o *Orchestrator) runPipeline(ctx context.Context, job *domain.SpreadsheetJob, recs []*domain.Record, register *coordinator.Register) int64 {
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, rec := range recs {
		g.Go(func() error {
			err := o.pipeline.ProcessRecord(gctx, job, rec, register)
			o.metrics.RecordRecordProcessed(err != nil)
			if err != nil {
				failed.Add(1)
				recLogger := observability.WithRecordContext(o.logger, rec.ID.String(), rec.UploadPos)
				recLogger.Error().Err(err).Str("job_id", job.ID.String()).Msg("record processing failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed.Load()
}

// fail moves the job to the error state and announces it.
func (o *Orchestrator) fail(ctx context.Context, job *domain.SpreadsheetJob, message string) error {
	job.SetStatus(domain.JobStatusError, message)
	if err := o.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	o.metrics.RecordJobStatus(string(domain.JobStatusError))

	if err := o.notifier.Notify(ctx, domain.EventTypeJobFailed, job); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failure notification failed")
	}
	return nil
}
