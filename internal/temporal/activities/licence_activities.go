package activities

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/observability"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
)

// ErrTypeLookupRejected is the application error type for lookup requests
// the API refused outright. Retrying them cannot succeed.
const ErrTypeLookupRejected = "lookup_rejected"

// LicenceLookup submits one batch of identifiers to the lookup API.
type LicenceLookup interface {
	Lookup(ctx context.Context, items []domain.LookupItem) (*oag.Response, error)
}

// LicenceActivities provides the Temporal activities of the licence batch
// workflow. Methods on this struct are registered as Temporal activities via
// the worker.
type LicenceActivities struct {
	lookup LicenceLookup
	sink   CallbackSink
}

// NewLicenceActivities creates a new LicenceActivities instance.
func NewLicenceActivities(lookup LicenceLookup, sink CallbackSink) *LicenceActivities {
	return &LicenceActivities{lookup: lookup, sink: sink}
}

// Lookup sends one chunk of identifiers to the lookup API. Identifiers the
// API is still processing, or did not mention at all, come back as Pending.
func (a *LicenceActivities) Lookup(ctx context.Context, input LookupInput) (*LookupOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("looking up licences",
		"batchID", input.BatchID,
		"items", len(input.Items),
	)

	resp, err := a.lookup.Lookup(ctx, input.Items)
	if err != nil {
		logger.Error("licence lookup failed",
			"batchID", input.BatchID,
			"error", err,
		)
		return nil, classifyLookupError(err)
	}

	out := &LookupOutput{
		Successes: resp.Results,
		Errors:    resp.Errors,
		Pending:   pendingItems(input.Items, resp),
	}

	logger.Info("licence lookup complete",
		"batchID", input.BatchID,
		"successes", len(out.Successes),
		"errors", len(out.Errors),
		"pending", len(out.Pending),
	)
	return out, nil
}

// DeliverCallback hands one callback event to the sink, which applies it to
// the owning job's records.
func (a *LicenceActivities) DeliverCallback(ctx context.Context, event CallbackEvent) error {
	logger := activity.GetLogger(ctx)
	logger.Info("delivering licence callback",
		"batchID", event.BatchID,
		"type", event.Type,
		"successes", len(event.Successes),
		"errors", len(event.Errors),
		"maxed", len(event.Maxed),
	)

	info := activity.GetInfo(ctx)
	ctx = observability.WithWorkflow(ctx, info.WorkflowExecution.ID, info.WorkflowExecution.RunID)
	if err := a.sink.Handle(ctx, event); err != nil {
		logger.Error("licence callback failed",
			"batchID", event.BatchID,
			"type", event.Type,
			"error", err,
		)
		return fmt.Errorf("deliver %s callback for batch %s: %w", event.Type, event.BatchID, err)
	}
	return nil
}

// pendingItems returns the requested items that appear in neither the
// results nor the errors list, in request order.
func pendingItems(items []domain.LookupItem, resp *oag.Response) []domain.LookupItem {
	answered := make(map[string]bool, len(resp.Results)+len(resp.Errors))
	for _, list := range [][]oag.Result{resp.Results, resp.Errors} {
		for _, r := range list {
			for _, id := range r.Identifier.Items {
				answered[id.ID] = true
			}
		}
	}

	var pending []domain.LookupItem
	for _, item := range items {
		if !answered[item.ID] {
			pending = append(pending, item)
		}
	}
	return pending
}

// classifyLookupError marks client errors other than 429 as non-retryable.
// Everything else is left for the activity retry policy.
func classifyLookupError(err error) error {
	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= http.StatusBadRequest &&
		apiErr.StatusCode < http.StatusInternalServerError &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return temporal.NewNonRetryableApplicationError(apiErr.Error(), ErrTypeLookupRejected, err)
	}
	return err
}
