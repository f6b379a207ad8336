package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// messageReader is the subset of *kafka.Reader the listener uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Waker is woken when a new job is submitted.
type Waker interface {
	Wake()
}

// ListenerConfig holds configuration for the submission listener.
type ListenerConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the job events topic.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// SubmissionListener consumes job events from Kafka and wakes the runner
// whenever a job is submitted, so uploads do not wait for the next poll.
type SubmissionListener struct {
	reader messageReader
	waker  Waker
	logger zerolog.Logger
}

// NewSubmissionListener creates a new submission listener.
func NewSubmissionListener(cfg ListenerConfig, waker Waker, logger zerolog.Logger) *SubmissionListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})

	return &SubmissionListener{
		reader: reader,
		waker:  waker,
		logger: logger.With().Str("component", "submission_listener").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *SubmissionListener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting submission listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("submission listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		var event domain.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to unmarshal job event")
			continue
		}

		if event.EventType != domain.EventTypeJobSubmitted {
			continue
		}

		l.logger.Debug().
			Str("job_id", event.AggregateID).
			Int64("offset", msg.Offset).
			Msg("job submitted; waking runner")
		l.waker.Wake()
	}
}

// Close closes the Kafka reader.
func (l *SubmissionListener) Close() error {
	l.logger.Info().Msg("closing submission listener")
	return l.reader.Close()
}
