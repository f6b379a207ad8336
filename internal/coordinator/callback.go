package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/temporal/activities"
)

// JobLocker serializes work on one job across processes.
type JobLocker interface {
	// LockJob blocks until the job's lock is held and returns its release function.
	LockJob(ctx context.Context, jobID uuid.UUID) (func(), error)
}

// CallbackHandler applies licence batch callbacks to the owning job.
type CallbackHandler struct {
	coord    *Coordinator
	jobs     repository.JobRepository
	locker   JobLocker
	finisher *Finisher
	logger   zerolog.Logger
}

var _ activities.CallbackSink = (*CallbackHandler)(nil)

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(coord *Coordinator, jobs repository.JobRepository, locker JobLocker, finisher *Finisher, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		coord:    coord,
		jobs:     jobs,
		locker:   locker,
		finisher: finisher,
		logger:   logger.With().Str("component", "callback").Logger(),
	}
}

// Handle processes one callback event. Callbacks for the same job are
// serialized by the job lock. Results that cannot be related to a record are
// logged and skipped; store failures are returned so the activity is retried.
// A retried event skips the results it already applied and resubmits the
// same rerun batch.
func (h *CallbackHandler) Handle(ctx context.Context, event activities.CallbackEvent) error {
	ctx = observability.WithBatchID(ctx, event.BatchID)
	logger := observability.LoggerFromContext(ctx, h.logger).With().Str("event", event.Type).Logger()

	links, err := h.coord.links.ByBatchID(ctx, event.BatchID)
	if err != nil {
		return fmt.Errorf("find links for batch %s: %w", event.BatchID, err)
	}
	if len(links) == 0 {
		logger.Warn().Msg("no job linked to licence batch; skipping callback")
		return nil
	}
	jobID := links[0].SpreadsheetID

	unlock, err := h.locker.LockJob(ctx, jobID)
	if err != nil {
		return err
	}
	defer unlock()

	job, err := h.jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn().Str("job_id", jobID.String()).Msg("job for licence batch not found; skipping callback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger = observability.WithJobContext(logger, job.ID.String(), job.Filename)

	rerun := NewRegister()
	var errs []error

	for _, result := range event.Successes {
		if err := h.coord.HandleResult(ctx, result, job, rerun); err != nil {
			errs = append(errs, err)
		}
	}
	for _, result := range event.Errors {
		if err := h.coord.HandleResult(ctx, result, job, rerun); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.handleMaxed(ctx, event.Maxed, job, rerun); err != nil {
		errs = append(errs, err)
	}

	logger.Debug().
		Int("successes", len(event.Successes)).
		Int("errors", len(event.Errors)).
		Int("maxed", len(event.Maxed)).
		Int("rerun", rerun.Len()).
		Msg("licence callback applied")

	if rerun.Len() > 0 {
		if _, err := h.coord.Rerun(ctx, event.BatchID, rerun.Items(), job); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := h.finisher.Check(ctx, job); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error().Err(err).Msg("licence callback finished with errors")
		return err
	}
	return nil
}

// handleMaxed closes out identifiers the resolver gave up on.
func (h *CallbackHandler) handleMaxed(ctx context.Context, maxed map[string]activities.MaxedItem, job *domain.SpreadsheetJob, rerun *Register) error {
	if len(maxed) == 0 {
		return nil
	}

	ids := make([]string, 0, len(maxed))
	for id := range maxed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		item := maxed[id]

		recs, err := h.coord.records.GetByIdentifier(ctx, id, job.ID, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("find records for %s: %w", id, err))
			continue
		}

		for _, rec := range recs {
			kind, ok := rec.KindOf(id)
			if !ok {
				continue
			}

			if !awaitingResult(rec, kind) {
				resumeEscalation(rec, rerun)
				h.coord.metrics.RecordCallbackResult(outcomeReplayed)
				continue
			}

			rec.InOAG = false
			rec.SetOAGStatus(kind, domain.OAGError)
			rec.AddProvenance(domain.ActorOAG, fmt.Sprintf(
				"Attempted to retrieve %s %d times from the licence service (first requested %s); giving up",
				id, item.Requested, item.Init.UTC().Format(time.RFC3339)))
			rerunOrComplete(rec, kind, rerun)
			domain.RecomputeCompliance(rec)

			if err := h.coord.records.Save(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("save record %s: %w", rec.ID, err))
				continue
			}
			h.coord.metrics.RecordCallbackResult(outcomeMaxed)
		}
	}
	return errors.Join(errs...)
}
