// Package observability provides logging and metrics support for the OA
// compliance service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for jobs, records, sources, licence resolution and notifications
//   - Context helpers for propagating request, batch and workflow identifiers
//   - An adapter that routes Temporal SDK logs through zerolog
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger = observability.WithJobContext(logger, job.ID.String(), job.Filename)
//
// # Metrics
//
//	metrics := observability.NewMetrics("oa_compliance")
//	metrics.RecordJobStatus("processing")
//	metrics.RecordMetadataLookup("pmcid", "found")
//
// # Context Helpers
//
//	ctx = observability.WithBatchID(ctx, event.BatchID)
//	logger := observability.LoggerFromContext(ctx, baseLogger)
//
// # Standard Fields
//
//   - job_id: Spreadsheet job identifier
//   - record_id: Record identifier
//   - upload_pos: Row position of the record in the spreadsheet
//   - batch_id: Licence resolver batch identifier
//   - source: External source (epmc, doaj, oag)
//   - request_id: HTTP request identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
