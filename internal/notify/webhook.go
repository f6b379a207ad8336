package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sources"
)

// Webhook posts job events as JSON to the job's callback URL.
type Webhook struct {
	client       *sources.HTTPClient
	resolver     resolver
	allowPrivate bool
}

// NewWebhook creates a webhook notifier on top of the shared HTTP client.
// Callback URLs resolving to private networks are refused unless
// allowPrivate is set.
func NewWebhook(client *sources.HTTPClient, allowPrivate bool) *Webhook {
	return &Webhook{client: client, resolver: net.DefaultResolver, allowPrivate: allowPrivate}
}

// Notify posts the event. Jobs without a callback URL are skipped. Any
// non-2xx reply is an error.
func (w *Webhook) Notify(ctx context.Context, eventType string, job *domain.SpreadsheetJob) error {
	if job.WebhookCallback == "" {
		return nil
	}

	if !w.allowPrivate {
		if err := checkPublicURL(ctx, w.resolver, job.WebhookCallback); err != nil {
			return err
		}
	}

	event, err := domain.NewJobEvent(eventType, job)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.WebhookCallback, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)

	resp, err := w.client.Do(req, "webhook")
	if err != nil {
		return fmt.Errorf("webhook %s: %w", job.WebhookCallback, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", job.WebhookCallback, resp.StatusCode)
	}
	return nil
}
