package notify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/oa-compliance-service/internal/config"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/sources"
)

// Channel names, used as metric labels.
const (
	ChannelMail    = "mail"
	ChannelWebhook = "webhook"
	ChannelEvents  = "events"
)

// webhookTimeout bounds one callback delivery attempt.
const webhookTimeout = 10 * time.Second

// Build assembles the channels enabled in cfg. The returned close function
// releases the event publisher, if one was created.
func Build(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*Multi, func() error, error) {
	multi := NewMulti(metrics, logger)
	closer := func() error { return nil }

	if cfg.Mail.Enabled {
		multi.Add(ChannelMail, NewMailer(cfg.Mail))
	}

	webhookClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Name:       ChannelWebhook,
		Timeout:    webhookTimeout,
		RateLimit:  10,
		BurstSize:  10,
		MaxRetries: 2,
		RetryDelay: time.Second,
		Metrics:    metrics,
	})
	multi.Add(ChannelWebhook, NewWebhook(webhookClient, false))

	if cfg.Events.Enabled {
		publisher, err := NewPublisher(cfg.Events)
		if err != nil {
			return nil, nil, fmt.Errorf("create event publisher: %w", err)
		}
		multi.Add(ChannelEvents, NewEventNotifier(publisher))
		closer = publisher.Close
	}

	return multi, closer, nil
}
