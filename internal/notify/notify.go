// Package notify delivers job lifecycle notifications: submitter email,
// webhook callbacks and broker events.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/observability"
)

// Notifier announces a job lifecycle event. eventType is one of the
// domain.EventTypeJob* constants.
type Notifier interface {
	Notify(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error {
	return f(ctx, eventType, job)
}

// Nop discards every notification.
var Nop Notifier = NotifierFunc(func(context.Context, string, *domain.SpreadsheetJob) error { return nil })

type channel struct {
	name     string
	notifier Notifier
}

// Multi fans a notification out to every registered channel. A failing
// channel does not stop the others; all failures are joined in the result.
type Multi struct {
	channels []channel
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewMulti creates an empty fan-out notifier.
func NewMulti(metrics *observability.Metrics, logger zerolog.Logger) *Multi {
	return &Multi{
		metrics: metrics,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Add registers a channel under a metrics label.
func (m *Multi) Add(name string, n Notifier) *Multi {
	m.channels = append(m.channels, channel{name: name, notifier: n})
	return m
}

// Len returns the number of registered channels.
func (m *Multi) Len() int {
	return len(m.channels)
}

// Notify delivers to every channel in registration order.
func (m *Multi) Notify(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error {
	logger := observability.LoggerFromContext(ctx, m.logger)
	var errs []error
	for _, ch := range m.channels {
		err := ch.notifier.Notify(ctx, eventType, job)
		m.metrics.RecordNotification(ch.name, err)
		if err != nil {
			logger.Error().Err(err).
				Str("channel", ch.name).
				Str("event_type", eventType).
				Str("job_id", job.ID.String()).
				Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		logger.Debug().
			Str("channel", ch.name).
			Str("event_type", eventType).
			Str("job_id", job.ID.String()).
			Msg("notification sent")
	}
	return errors.Join(errs...)
}

// ProgressURL returns the public progress page of a job.
func ProgressURL(baseURL string, jobID uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/jobs/" + jobID.String() + "/progress"
}
