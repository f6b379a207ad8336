package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the OA compliance service.
// Metrics are organized by subsystem: jobs, records, sources, licence resolution
// and notifications. All counters and histograms are registered via promauto
// with the default Prometheus registry.
//
// The Record* helpers are safe to call on a nil *Metrics, which lets tests and
// the processid command run without a registry.
type Metrics struct {
	// JobsByStatus counts job status transitions, labeled by the new status.
	JobsByStatus *prometheus.CounterVec

	// JobDuration observes the synchronous part of job processing in seconds.
	JobDuration prometheus.Histogram

	// RecordsProcessed counts records that went through the enrichment pipeline.
	RecordsProcessed prometheus.Counter

	// RecordsFailed counts records whose pipeline run returned an error.
	RecordsFailed prometheus.Counter

	// MetadataLookups counts metadata lookups, labeled by method (pmcid, pmid, doi,
	// title_exact, title_fuzzy) and outcome (found, ambiguous, error).
	MetadataLookups *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to external sources, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to external sources in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from external sources, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// LicenceBatchesDispatched counts batches handed to the licence resolver.
	LicenceBatchesDispatched prometheus.Counter

	// LicenceItemsDispatched counts identifiers handed to the licence resolver.
	LicenceItemsDispatched prometheus.Counter

	// CallbackResults counts per-result callback outcomes (success, fto, error, maxed, unmatched, already_licensed, replayed).
	CallbackResults *prometheus.CounterVec

	// NotificationsSent counts delivered notifications, labeled by channel.
	NotificationsSent *prometheus.CounterVec

	// NotificationsFailed counts failed notifications, labeled by channel.
	NotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Jobs
		JobsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of spreadsheet job status transitions",
		}, []string{"status"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of synchronous spreadsheet processing in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		// Records
		RecordsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Total number of records run through the enrichment pipeline",
		}),
		RecordsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Total number of records whose enrichment failed",
		}),
		MetadataLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Total number of metadata lookups by method and outcome",
		}, []string{"method", "outcome"}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to external sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to external sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to external sources in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate-limited responses from external sources",
		}, []string{"source"}),

		// Licence resolution
		LicenceBatchesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licence_batches_dispatched_total",
			Help:      "Total number of batches dispatched to the licence resolver",
		}),
		LicenceItemsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licence_items_dispatched_total",
			Help:      "Total number of identifiers dispatched to the licence resolver",
		}),
		CallbackResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licence_callback_results_total",
			Help:      "Total number of licence resolver results handled, by outcome",
		}, []string{"outcome"}),

		// Notifications
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notifications delivered",
		}, []string{"channel"}),
		NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of notifications that failed",
		}, []string{"channel"}),
	}
}

// RecordJobStatus records a job status transition.
func (m *Metrics) RecordJobStatus(status string) {
	if m == nil {
		return
	}
	m.JobsByStatus.WithLabelValues(status).Inc()
}

// RecordJobProcessed records the synchronous processing time of a job.
func (m *Metrics) RecordJobProcessed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.Observe(durationSeconds)
}

// RecordRecordProcessed records one pipeline run.
func (m *Metrics) RecordRecordProcessed(failed bool) {
	if m == nil {
		return
	}
	m.RecordsProcessed.Inc()
	if failed {
		m.RecordsFailed.Inc()
	}
}

// RecordMetadataLookup records a metadata lookup outcome.
func (m *Metrics) RecordMetadataLookup(method, outcome string) {
	if m == nil {
		return
	}
	m.MetadataLookups.WithLabelValues(method, outcome).Inc()
}

// RecordSourceRequest records a successful source API request.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed source API request.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate-limited response from a source API.
func (m *Metrics) RecordSourceRateLimited(source string) {
	if m == nil {
		return
	}
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordBatchDispatched records a batch handed to the licence resolver.
func (m *Metrics) RecordBatchDispatched(items int) {
	if m == nil {
		return
	}
	m.LicenceBatchesDispatched.Inc()
	m.LicenceItemsDispatched.Add(float64(items))
}

// RecordCallbackResult records one licence resolver result outcome.
func (m *Metrics) RecordCallbackResult(outcome string) {
	if m == nil {
		return
	}
	m.CallbackResults.WithLabelValues(outcome).Inc()
}

// RecordNotification records a notification attempt on the given channel.
func (m *Metrics) RecordNotification(channel string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.NotificationsFailed.WithLabelValues(channel).Inc()
		return
	}
	m.NotificationsSent.WithLabelValues(channel).Inc()
}
