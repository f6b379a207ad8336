// Package pipeline enriches a single spreadsheet record with metadata,
// fulltext licence information and journal classification, then hands it to
// the licence resolution coordinator.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/coordinator"
	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/identifiers"
	"github.com/helixir/oa-compliance-service/internal/licences"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/sources/doaj"
	"github.com/helixir/oa-compliance-service/internal/sources/epmc"
)

// NoMetadataNote is recorded when no lookup identifies the record.
const NoMetadataNote = "unable to locate any metadata record in EPMC for the combination of identifiers/title; giving up"

// NoISSNNote is recorded when the metadata carries no ISSN to check against DOAJ.
const NoISSNNote = "No ISSN available for the journal; assuming Hybrid"

// Metadata lookup methods, used in notes and as metric labels.
const (
	MethodPMCID      = "pmcid"
	MethodPMID       = "pmid"
	MethodDOI        = "doi"
	MethodTitleExact = "title_exact"
	MethodTitleFuzzy = "title_approximate"
)

// Metadata lookup outcomes.
const (
	outcomeFound     = "found"
	outcomeAmbiguous = "ambiguous"
	outcomeError     = "error"
	outcomeMissed    = "not_found"
)

// MetadataSource finds bibliographic metadata by identifier or title.
type MetadataSource interface {
	GetByPMCID(ctx context.Context, pmcid string) ([]epmc.Metadata, error)
	GetByPMID(ctx context.Context, pmid string) ([]epmc.Metadata, error)
	GetByDOI(ctx context.Context, doi string) ([]epmc.Metadata, error)
	TitleExact(ctx context.Context, title string) ([]epmc.Metadata, error)
	TitleApproximate(ctx context.Context, title string) ([]epmc.Metadata, error)
}

// FulltextSource retrieves an article's fulltext XML.
type FulltextSource interface {
	Fulltext(ctx context.Context, pmcid string) (*epmc.Fulltext, error)
}

// JournalSource looks journals up in the OA journal registry.
type JournalSource interface {
	JournalsByISSNs(ctx context.Context, issns []string) ([]doaj.Journal, error)
}

// RecordStore persists record state between steps.
type RecordStore interface {
	Save(ctx context.Context, rec *domain.Record) error
}

// Pipeline runs the synchronous enrichment steps for one record at a time.
// It holds no per-record state and is safe for concurrent use.
type Pipeline struct {
	metadata MetadataSource
	fulltext FulltextSource
	journals JournalSource
	store    RecordStore
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New creates a Pipeline.
func New(metadata MetadataSource, fulltext FulltextSource, journals JournalSource, store RecordStore, metrics *observability.Metrics, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		metadata: metadata,
		fulltext: fulltext,
		journals: journals,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}
}

// ProcessRecord enriches rec and registers it for asynchronous licence
// resolution when needed. External lookup failures are absorbed and noted;
// only store failures are returned.
func (p *Pipeline) ProcessRecord(ctx context.Context, job *domain.SpreadsheetJob, rec *domain.Record, register *coordinator.Register) error {
	logger := observability.WithRecordContext(
		observability.WithJobContext(p.logger, job.ID.String(), job.Filename),
		rec.ID.String(), rec.UploadPos)

	logger.Debug().Msg("processing record")

	md, confidence, ok := p.resolveMetadata(ctx, rec, logger)
	if !ok {
		rec.AddProvenance(domain.ActorProcessor, NoMetadataNote)
		rec.EPMCComplete = true
		rec.OAGComplete = true
		return p.save(ctx, rec)
	}

	rec.Confidence = domain.Float64Ptr(confidence)
	backfillIdentifiers(rec, md)
	extractMetadata(rec, md)
	domain.RecomputeCompliance(rec)
	if err := p.save(ctx, rec); err != nil {
		return err
	}

	if ft := p.fetchFulltext(ctx, rec, logger); ft != nil {
		extractFulltextInfo(rec, ft)
		domain.RecomputeCompliance(rec)
		extractFulltextLicence(rec, ft)
		domain.RecomputeCompliance(rec)
		if err := p.save(ctx, rec); err != nil {
			return err
		}
	} else {
		rec.HasFTXML = false
	}

	p.classifyJournal(ctx, rec)

	rec.EPMCComplete = true

	coordinator.RegisterWithOAG(rec, register)

	logger.Debug().
		Bool("in_oag", rec.InOAG).
		Bool("oag_complete", rec.OAGComplete).
		Msg("record processed")

	return p.save(ctx, rec)
}

type metadataLookup struct {
	method     string
	value      string
	confidence float64
	fn         func(context.Context, string) ([]epmc.Metadata, error)
}

// resolveMetadata tries each lookup in turn and accepts the first that
// returns exactly one hit.
func (p *Pipeline) resolveMetadata(ctx context.Context, rec *domain.Record, logger zerolog.Logger) (epmc.Metadata, float64, bool) {
	lookups := []metadataLookup{
		{MethodPMCID, rec.PMCID, 1.0, p.metadata.GetByPMCID},
		{MethodPMID, rec.PMID, 1.0, p.metadata.GetByPMID},
		{MethodDOI, rec.DOI, 1.0, p.metadata.GetByDOI},
		{MethodTitleExact, rec.Title, 0.9, p.metadata.TitleExact},
		{MethodTitleFuzzy, rec.Title, 0.7, p.metadata.TitleApproximate},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}

		results, err := l.fn(ctx, l.value)
		if err != nil {
			p.metrics.RecordMetadataLookup(l.method, outcomeError)
			logger.Warn().Err(err).Str("method", l.method).Msg("metadata lookup failed")
			continue
		}
		if len(results) == 1 {
			p.metrics.RecordMetadataLookup(l.method, outcomeFound)
			return results[0], l.confidence, true
		}

		if len(results) == 0 {
			p.metrics.RecordMetadataLookup(l.method, outcomeMissed)
		} else {
			p.metrics.RecordMetadataLookup(l.method, outcomeAmbiguous)
		}
		rec.AddProvenance(domain.ActorProcessor,
			fmt.Sprintf("%s lookup for %s returned %d results", l.method, l.value, len(results)))
	}

	return epmc.Metadata{}, 0, false
}

// backfillIdentifiers copies identifiers the record lacks from the metadata.
// Existing values are never overwritten; invalid metadata values are ignored.
func backfillIdentifiers(rec *domain.Record, md epmc.Metadata) {
	found := map[domain.IdentifierKind]string{
		domain.KindPMCID: md.PMCID,
		domain.KindPMID:  md.PMID,
		domain.KindDOI:   md.DOI,
	}
	for _, kind := range domain.IdentifierKinds {
		if rec.Identifier(kind) != "" || found[kind] == "" {
			continue
		}
		if norm, err := identifiers.Normalize(kind, found[kind]); err == nil {
			rec.SetIdentifier(kind, norm)
		}
	}
}

func extractMetadata(rec *domain.Record, md epmc.Metadata) {
	if md.InEPMC != "" {
		rec.InEPMC = domain.BoolPtr(md.InEPMC == "Y")
	}
	if md.IsOA != "" {
		rec.IsOA = domain.BoolPtr(md.IsOA == "Y")
	}
	for _, issn := range []string{md.ISSN, md.EISSN} {
		if issn != "" {
			rec.ISSN = append(rec.ISSN, issn)
		}
	}
	if md.Publisher != "" {
		rec.Publisher = md.Publisher
	}
	if md.JournalTitle != "" {
		rec.JournalTitle = md.JournalTitle
	}
}

// fetchFulltext returns nil when the record has no pmcid or the fulltext is
// unavailable for any reason.
func (p *Pipeline) fetchFulltext(ctx context.Context, rec *domain.Record, logger zerolog.Logger) *epmc.Fulltext {
	if rec.PMCID == "" {
		return nil
	}
	ft, err := p.fulltext.Fulltext(ctx, rec.PMCID)
	if err != nil {
		logger.Debug().Err(err).Str("pmcid", rec.PMCID).Msg("fulltext not available")
		return nil
	}
	return ft
}

func extractFulltextInfo(rec *domain.Record, ft *epmc.Fulltext) {
	rec.HasFTXML = true
	rec.AddProvenance(domain.ActorProcessor, "Found fulltext XML in EPMC")
	rec.AAM = domain.BoolPtr(ft.IsAAM())
	rec.AAMFromXML = true
}

func extractFulltextLicence(rec *domain.Record, ft *epmc.Fulltext) {
	code, url, para := ft.LicenceDetails()
	res := licences.Classify(code, url, para)
	if res.Tag == "" {
		return
	}

	rec.LicenceType = res.Tag
	rec.LicenceSource = domain.LicenceSourceEPMCXML

	var note string
	switch res.Signal {
	case licences.SignalURL:
		note = fmt.Sprintf("Fulltext XML specifies licence url as %s which gives us licence type %s", res.Matched, res.Tag)
	case licences.SignalText:
		note = fmt.Sprintf("Fulltext XML licence description contains the licence text %s which gives us licence type %s", res.Matched, res.Tag)
	default:
		note = fmt.Sprintf("Fulltext XML specifies licence type as %s", res.Tag)
	}
	rec.AddProvenance(domain.ActorProcessor, note)
}

// classifyJournal marks the journal oa when any of its ISSNs is in DOAJ
// and hybrid otherwise, including when there is no ISSN to look up. A failed
// lookup leaves journal_type unset.
func (p *Pipeline) classifyJournal(ctx context.Context, rec *domain.Record) {
	if len(rec.ISSN) == 0 {
		rec.JournalType = domain.JournalTypeHybrid
		rec.AddProvenance(domain.ActorProcessor, NoISSNNote)
		return
	}
	issns := strings.Join(rec.ISSN, ",")

	journals, err := p.journals.JournalsByISSNs(ctx, rec.ISSN)
	if err != nil {
		rec.AddProvenance(domain.ActorProcessor, fmt.Sprintf("Unable to check DOAJ for journal with ISSN %s: %s", issns, err))
		return
	}

	if len(journals) > 0 {
		rec.JournalType = domain.JournalTypeOA
		rec.AddProvenance(domain.ActorProcessor, fmt.Sprintf("Journal with ISSN %s was found in DOAJ; assuming OA", issns))
		return
	}
	rec.JournalType = domain.JournalTypeHybrid
	rec.AddProvenance(domain.ActorProcessor, fmt.Sprintf("Journal with ISSN %s was not found in DOAJ; assuming Hybrid", issns))
}

// save recomputes compliance and writes the record.
func (p *Pipeline) save(ctx context.Context, rec *domain.Record) error {
	domain.RecomputeCompliance(rec)
	if err := p.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return nil
}
