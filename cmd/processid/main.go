// Package main runs a single identifier through the enrichment pipeline and
// the licence resolver, then prints the resulting spreadsheet row as CSV.
//
// The licence batch is executed by cmd/worker, which must be running against
// the same database and Temporal namespace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/config"
	"github.com/helixir/oa-compliance-service/internal/coordinator"
	"github.com/helixir/oa-compliance-service/internal/database"
	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/identifiers"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/pipeline"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/sheets"
	"github.com/helixir/oa-compliance-service/internal/sources"
	"github.com/helixir/oa-compliance-service/internal/sources/doaj"
	"github.com/helixir/oa-compliance-service/internal/sources/epmc"
	"github.com/helixir/oa-compliance-service/internal/temporal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	idType := flag.String("type", "", "Identifier type: pmcid, pmid or doi")
	identifier := flag.String("identifier", "", "Identifier to run through the system")
	email := flag.String("email", "test@example.com", "Contact email recorded on the job")
	interval := flag.Duration("interval", 2*time.Second, "Progress polling interval")
	timeout := flag.Duration("timeout", 30*time.Minute, "Give up waiting for the licence resolver after this long")
	flag.Parse()

	if *identifier == "" || *idType == "" {
		flag.Usage()
		return fmt.Errorf("both -type and -identifier are required")
	}
	kind, ok := domain.ParseIdentifierKind(strings.ToLower(*idType))
	if !ok {
		flag.Usage()
		return fmt.Errorf("type must be one of pmcid, pmid or doi")
	}
	value, err := identifiers.Normalize(kind, *identifier)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: "stderr",
	})
	logger = logger.With().Str("component", "processid").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	jobRepo := repository.NewPgJobRepository(db)
	recordRepo := repository.NewPgRecordRepository(db)
	linkRepo := repository.NewPgLinkRepository(db)

	epmcClient := epmc.NewWithHTTPClient(epmc.Config{BaseURL: cfg.Sources.EPMC.BaseURL},
		sourceHTTPClient("epmc", cfg.Sources.EPMC))
	doajClient := doaj.NewWithHTTPClient(doaj.Config{BaseURL: cfg.Sources.DOAJ.BaseURL},
		sourceHTTPClient("doaj", cfg.Sources.DOAJ))

	// A job with a single record is required for the resolver callbacks to
	// find their way back.
	job := &domain.SpreadsheetJob{
		ID:           uuid.New(),
		Filename:     fmt.Sprintf("processid-%s.csv", kind),
		ContactEmail: *email,
		Status:       domain.JobStatusProcessing,
	}
	job.StatusMessage = "Processing records"
	if err := jobRepo.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	rec := domain.NewRecord(job.ID, 1)
	rec.SetIdentifier(kind, value)
	if err := recordRepo.Create(ctx, rec); err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	register := coordinator.NewRegister()
	p := pipeline.New(epmcClient, epmcClient, doajClient, recordRepo, nil, logger)
	if err := p.ProcessRecord(ctx, job, rec, register); err != nil {
		return fmt.Errorf("process record: %w", err)
	}

	if register.Len() > 0 {
		if err := dispatch(ctx, cfg, job, register, recordRepo, linkRepo, logger); err != nil {
			return err
		}
	}

	if err := waitForCompletion(ctx, recordRepo, job.ID, *interval); err != nil {
		return err
	}

	recs, err := recordRepo.ListByUpload(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	return sheets.WriteRecords(os.Stdout, recs)
}

// dispatch submits the registered identifiers to the licence resolver.
func dispatch(
	ctx context.Context,
	cfg *config.Config,
	job *domain.SpreadsheetJob,
	register *coordinator.Register,
	records repository.RecordRepository,
	links repository.LinkRepository,
	logger zerolog.Logger,
) error {
	temporalCfg := temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
		Logger:    observability.NewTemporalLogger(logger),
	}
	temporalClient, err := temporal.NewClient(temporalCfg)
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	resolver := temporal.NewLicenceResolverClient(temporalClient, temporalCfg, temporal.BatchSettings{
		BatchSize:      cfg.Resolver.BatchSize,
		MaxRetries:     cfg.Resolver.MaxRetries,
		InitialBackoff: cfg.Resolver.InitialBackoff,
		MaxBackoff:     cfg.Resolver.MaxBackoff,
	})
	defer resolver.Close()

	coord := coordinator.New(coordinator.Config{StartDelay: cfg.Resolver.StartDelay}, resolver, records, links, nil, logger)
	batchID, err := coord.Dispatch(ctx, register.Items(), job)
	if err != nil {
		return fmt.Errorf("dispatch licence batch: %w", err)
	}
	fmt.Fprintf(os.Stderr, "licence batch %s submitted with %d identifiers\n", batchID, register.Len())
	return nil
}

// waitForCompletion polls the upload until both phases of every record are done.
func waitForCompletion(ctx context.Context, records repository.RecordRepository, jobID uuid.UUID, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; ; i++ {
		completeness, err := records.UploadCompleteness(ctx, jobID)
		if err != nil {
			return fmt.Errorf("read progress: %w", err)
		}
		pc := completeness.PcComplete()
		fmt.Fprintf(os.Stderr, "%d %.2f %%\n", i, pc)
		if int(pc) == 100 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for licence resolution: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func sourceHTTPClient(name string, sc config.SourceConfig) *sources.HTTPClient {
	return sources.NewHTTPClient(sources.HTTPClientConfig{
		Name:         name,
		Timeout:      sc.Timeout,
		RateLimit:    sc.RateLimit,
		MaxRetries:   sc.MaxRetries,
		APIKey:       sc.APIKey,
		APIKeyHeader: "X-API-Key",
	})
}
