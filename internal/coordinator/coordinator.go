package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/licences"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
)

// rerunInfix separates a rerun batch ID from its parent's.
const rerunInfix = "-rerun-"

// DefaultStartDelay is how long the resolver waits before the first lookup
// of a batch.
const DefaultStartDelay = 10 * time.Second

// Callback result outcomes, used as metric labels.
const (
	outcomeSuccess   = "success"
	outcomeFTO       = "fto"
	outcomeError     = "error"
	outcomeMaxed     = "maxed"
	outcomeUnmatched = "unmatched"
	outcomeLicensed  = "already_licensed"
	outcomeReplayed  = "replayed"
)

// Resolver starts an asynchronous licence lookup for a batch of identifiers.
type Resolver interface {
	// Submit schedules the batch to start at startAt and returns its batch ID
	// without waiting for any result. An empty batchID asks for a fresh one;
	// submitting a batchID that already exists succeeds without a new batch.
	Submit(ctx context.Context, batchID string, items []domain.LookupItem, startAt time.Time) (string, error)
}

// Config configures a Coordinator.
type Config struct {
	// StartDelay postpones the first lookup of each batch. Defaults to DefaultStartDelay.
	StartDelay time.Duration
}

// Coordinator dispatches identifiers to the licence resolver and applies
// individual results to records.
type Coordinator struct {
	resolver   Resolver
	records    repository.RecordRepository
	links      repository.LinkRepository
	metrics    *observability.Metrics
	logger     zerolog.Logger
	startDelay time.Duration
	now        func() time.Time
}

// New creates a Coordinator.
func New(cfg Config, resolver Resolver, records repository.RecordRepository, links repository.LinkRepository, metrics *observability.Metrics, logger zerolog.Logger) *Coordinator {
	delay := cfg.StartDelay
	if delay <= 0 {
		delay = DefaultStartDelay
	}
	return &Coordinator{
		resolver:   resolver,
		records:    records,
		links:      links,
		metrics:    metrics,
		logger:     logger.With().Str("component", "coordinator").Logger(),
		startDelay: delay,
		now:        time.Now,
	}
}

// Dispatch submits items as one batch and links the batch to the job. It
// returns as soon as the batch is scheduled. An empty list is a no-op.
func (c *Coordinator) Dispatch(ctx context.Context, items []domain.LookupItem, job *domain.SpreadsheetJob) (string, error) {
	return c.submit(ctx, "", items, job)
}

// Rerun dispatches the escalations produced by one callback of the parent
// batch. The batch ID is derived from parent and the items, so replaying the
// same callback after a failure finds the batch it already started.
func (c *Coordinator) Rerun(ctx context.Context, parent string, items []domain.LookupItem, job *domain.SpreadsheetJob) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	return c.submit(ctx, RerunBatchID(parent, items), items, job)
}

func (c *Coordinator) submit(ctx context.Context, batchID string, items []domain.LookupItem, job *domain.SpreadsheetJob) (string, error) {
	if len(items) == 0 {
		return "", nil
	}

	batchID, err := c.resolver.Submit(ctx, batchID, items, c.now().Add(c.startDelay))
	if err != nil {
		return "", fmt.Errorf("submit licence batch for job %s: %w", job.ID, err)
	}

	link := &domain.AsyncLicenceLink{SpreadsheetID: job.ID, BatchID: batchID}
	if err := c.links.Create(ctx, link); err != nil {
		return "", fmt.Errorf("link batch %s to job %s: %w", batchID, job.ID, err)
	}

	c.metrics.RecordBatchDispatched(len(items))
	c.logger.Info().
		Str("job_id", job.ID.String()).
		Str("batch_id", batchID).
		Int("items", len(items)).
		Msg("licence batch dispatched")

	return batchID, nil
}

// RerunBatchID names the rerun batch for items escalated out of parent. The
// result does not depend on the order of items.
func RerunBatchID(parent string, items []domain.LookupItem) string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = string(item.Type) + ":" + item.ID
	}
	sort.Strings(keys)
	return parent + rerunInfix + uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(keys, "\n"))).String()
}

// HandleResult applies one resolver result to every record of the job that
// carries the result's identifier. Escalations are added to rerun. A failure
// on one record is logged and does not stop the others; the failures are
// returned joined.
func (c *Coordinator) HandleResult(ctx context.Context, result oag.Result, job *domain.SpreadsheetJob, rerun *Register) error {
	logger := observability.WithJobContext(c.logger, job.ID.String(), job.Filename)

	ident, ok := result.Identifier.First()
	if !ok || ident.ID == "" {
		logger.Info().Msg("insufficient data to relate licence result to record: no ID")
		c.metrics.RecordCallbackResult(outcomeUnmatched)
		return nil
	}

	kind, typed := domain.ParseIdentifierKind(ident.Type)
	if !typed {
		kind = ""
	}

	recs, err := c.records.GetByIdentifier(ctx, ident.ID, job.ID, kind)
	if err != nil {
		return fmt.Errorf("find records for %s: %w", ident.ID, err)
	}
	if len(recs) == 0 {
		logger.Info().Str("identifier", ident.ID).Msg("unable to relate licence result to a record")
		c.metrics.RecordCallbackResult(outcomeUnmatched)
		return nil
	}

	var errs []error
	for _, rec := range recs {
		recKind := kind
		if !typed {
			var found bool
			if recKind, found = rec.KindOf(ident.ID); !found {
				logger.Info().Str("identifier", ident.ID).Msg("unable to determine the identifier type")
				continue
			}
		}

		if !awaitingResult(rec, recKind) {
			logger.Debug().Str("identifier", ident.ID).Str("record_id", rec.ID.String()).
				Msg("licence result already applied")
			resumeEscalation(rec, rerun)
			c.metrics.RecordCallbackResult(outcomeReplayed)
			continue
		}

		rec.InOAG = false
		outcome := c.apply(rec, ident.ID, recKind, result, rerun)
		domain.RecomputeCompliance(rec)

		if err := c.records.Save(ctx, rec); err != nil {
			recLogger := observability.WithRecordContext(logger, rec.ID.String(), rec.UploadPos)
			recLogger.Error().Err(err).
				Str("identifier", ident.ID).
				Msg("failed to save licence result")
			errs = append(errs, fmt.Errorf("save record %s: %w", rec.ID, err))
			continue
		}
		c.metrics.RecordCallbackResult(outcome)
	}
	return errors.Join(errs...)
}

// apply mutates rec according to the result and returns the outcome label.
func (c *Coordinator) apply(rec *domain.Record, id string, kind domain.IdentifierKind, result oag.Result, rerun *Register) string {
	if result.IsError() {
		rec.AddProvenance(domain.ActorOAG, fmt.Sprintf("%s - %s", id, result.Error))
		rec.SetOAGStatus(kind, domain.OAGError)
		rerunOrComplete(rec, kind, rerun)
		return outcomeError
	}

	lic := result.Licence()
	if kind == domain.KindPMCID && !rec.AAMFromXML && lic.Provenance.AcceptedAuthorManuscript != nil {
		rec.AAM = domain.BoolPtr(*lic.Provenance.AcceptedAuthorManuscript)
		rec.AAMFromEPMC = true
		rec.AddProvenance(domain.ActorOAG, "Detected AAM status from EPMC web page")
	}

	if rec.HasLicence() {
		rec.OAGComplete = true
		return outcomeLicensed
	}

	rec.AddProvenance(domain.ActorOAG, fmt.Sprintf("%s - %s", id, lic.Provenance.Description))

	if lic.Type == oag.LicenceFailedToObtain {
		rec.SetOAGStatus(kind, domain.OAGFTO)
		rerunOrComplete(rec, kind, rerun)
		return outcomeFTO
	}

	rec.SetOAGStatus(kind, domain.OAGSuccess)
	if kind == domain.KindPMCID {
		rec.LicenceSource = domain.LicenceSourceEPMC
	} else {
		rec.LicenceSource = domain.LicenceSourcePublisher
	}
	rec.LicenceType = licences.Translate(lic.Type)
	rec.OAGComplete = true
	return outcomeSuccess
}

// rerunOrComplete escalates rec to its next identifier, or closes the
// licence phase when there is none.
func rerunOrComplete(rec *domain.Record, kind domain.IdentifierKind, rerun *Register) {
	if !AddToRerun(rec, kind, rerun) {
		rec.OAGComplete = true
	}
}
