// Package main provides the entry point for the OA compliance worker. It runs
// the job orchestrator and the Temporal worker for licence batches.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/oa-compliance-service/internal/cache"
	"github.com/helixir/oa-compliance-service/internal/config"
	"github.com/helixir/oa-compliance-service/internal/coordinator"
	"github.com/helixir/oa-compliance-service/internal/database"
	"github.com/helixir/oa-compliance-service/internal/dedup"
	"github.com/helixir/oa-compliance-service/internal/notify"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/orchestrator"
	"github.com/helixir/oa-compliance-service/internal/pipeline"
	"github.com/helixir/oa-compliance-service/internal/repository"
	"github.com/helixir/oa-compliance-service/internal/sources"
	"github.com/helixir/oa-compliance-service/internal/sources/doaj"
	"github.com/helixir/oa-compliance-service/internal/sources/epmc"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
	"github.com/helixir/oa-compliance-service/internal/storage"
	"github.com/helixir/oa-compliance-service/internal/temporal"
	"github.com/helixir/oa-compliance-service/internal/temporal/activities"
	"github.com/helixir/oa-compliance-service/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("oa-compliance-service worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	jobRepo := repository.NewPgJobRepository(db)
	recordRepo := repository.NewPgRecordRepository(db)
	linkRepo := repository.NewPgLinkRepository(db)

	uploads, err := storage.NewUploadStore(cfg.Storage.UploadDir)
	if err != nil {
		return fmt.Errorf("open upload store: %w", err)
	}

	metrics := observability.NewMetrics("oa_compliance")

	// External sources.
	epmcClient := epmc.NewWithHTTPClient(epmc.Config{
		BaseURL: cfg.Sources.EPMC.BaseURL,
	}, sourceHTTPClient("epmc", cfg.Sources.EPMC, metrics))

	doajClient := doaj.NewWithHTTPClient(doaj.Config{
		BaseURL:  cfg.Sources.DOAJ.BaseURL,
		CacheTTL: cfg.Sources.DOAJ.CacheTTL,
	}, sourceHTTPClient("doaj", cfg.Sources.DOAJ, metrics))

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis, "doaj:")
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			if closeErr := redisCache.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close redis cache")
			}
		}()
		doajClient = doajClient.WithCache(redisCache, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("journal lookup cache enabled")
	}

	oagClient := oag.NewWithHTTPClient(oag.Config{
		BaseURL: cfg.Sources.OAG.BaseURL,
	}, sourceHTTPClient("oag", cfg.Sources.OAG, metrics))

	notifier, closeNotifier, err := notify.Build(cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeNotifier(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	// Temporal.
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
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Licence coordination.
	coord := coordinator.New(coordinator.Config{StartDelay: cfg.Resolver.StartDelay},
		resolver, recordRepo, linkRepo, metrics, logger)
	finisher := coordinator.NewFinisher(jobRepo, recordRepo, notifier, metrics, logger)
	callbacks := coordinator.NewCallbackHandler(coord, jobRepo, db, finisher, logger)

	orch := orchestrator.New(orchestrator.Config{
		RecordConcurrency: cfg.Worker.RecordConcurrency,
	}, orchestrator.Deps{
		Jobs:       jobRepo,
		Records:    recordRepo,
		Uploads:    uploads,
		Pipeline:   pipeline.New(epmcClient, epmcClient, doajClient, recordRepo, metrics, logger),
		Dedup:      dedup.NewChecker(recordRepo, logger),
		Dispatcher: coord,
		Finisher:   finisher,
		Notifier:   notifier,
		Metrics:    metrics,
		Logger:     logger,
		Locker:     db,
	})

	runner := orchestrator.NewRunner(orch, cfg.Worker.PollInterval, logger)
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("job runner stopped")
		}
	}()

	if cfg.Events.Enabled && cfg.Events.Driver == config.EventsDriverKafka {
		listener := orchestrator.NewSubmissionListener(orchestrator.ListenerConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			GroupID: cfg.Events.GroupID,
		}, runner, logger)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close submission listener")
			}
		}()

		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("submission listener error")
			}
		}()

		logger.Info().
			Str("topic", cfg.Events.Topic).
			Str("group_id", cfg.Events.GroupID).
			Msg("submission listener started")
	}

	manager, err := temporal.NewWorkerManager(temporalClient, temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue))
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}
	manager.RegisterLicenceBatchWorkflow(workflows.LicenceBatchWorkflow)
	manager.RegisterActivity(activities.NewLicenceActivities(oagClient, callbacks))

	logger.Info().
		Str("task_queue", manager.TaskQueue()).
		Msg("starting temporal worker")

	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}

// sourceHTTPClient builds the rate-limited client for one external source.
func sourceHTTPClient(name string, sc config.SourceConfig, metrics *observability.Metrics) *sources.HTTPClient {
	return sources.NewHTTPClient(sources.HTTPClientConfig{
		Name:         name,
		Timeout:      sc.Timeout,
		RateLimit:    sc.RateLimit,
		MaxRetries:   sc.MaxRetries,
		APIKey:       sc.APIKey,
		APIKeyHeader: "X-API-Key",
		Metrics:      metrics,
	})
}
