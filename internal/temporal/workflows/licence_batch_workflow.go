// Package workflows defines the Temporal workflow that resolves licences for
// a batch of identifiers.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
	octemporal "github.com/helixir/oa-compliance-service/internal/temporal"
	"github.com/helixir/oa-compliance-service/internal/temporal/activities"
)

// QueryProgress is re-exported from the parent temporal package for convenience.
const QueryProgress = octemporal.QueryProgress

// Defaults applied to zero-valued batch settings.
const (
	DefaultBatchSize      = 1000
	DefaultMaxRetries     = 10
	DefaultInitialBackoff = 30 * time.Second
	DefaultMaxBackoff     = time.Hour
)

// Activity timeout constants.
const (
	lookupActivityTimeout   = 2 * time.Minute
	callbackActivityTimeout = 5 * time.Minute
)

// LicenceBatchResult summarises a finished batch.
type LicenceBatchResult struct {
	// BatchID is the workflow ID.
	BatchID string `json:"batch_id"`
	// Cycles is the number of lookup cycles run.
	Cycles int `json:"cycles"`
	// Resolved counts result and error entries delivered to the callback.
	Resolved int `json:"resolved"`
	// Maxed counts identifiers given up on after the last cycle.
	Maxed int `json:"maxed"`
}

// LicenceBatchWorkflow looks up every item of the batch, cycle by cycle.
//
// Each cycle splits the pending items into chunks of at most BatchSize and
// runs one Lookup activity per chunk in parallel. Results and errors from the
// cycle go to the DeliverCallback activity as one "cycle" event. Items the
// API is still processing, plus the items of any chunk whose lookup failed
// outright, stay pending for the next cycle. Cycles are separated by an
// exponential back-off starting at InitialBackoff and capped at MaxBackoff.
//
// After MaxRetries cycles any pending items are delivered once more in a
// "finished" event, with how often each was requested and when it was first
// sent. A failing callback fails the workflow.
func LicenceBatchWorkflow(ctx workflow.Context, input octemporal.LicenceBatchInput) (*LicenceBatchResult, error) {
	logger := workflow.GetLogger(ctx)
	batchID := workflow.GetInfo(ctx).WorkflowExecution.ID
	settings := withDefaults(input.Settings)

	logger.Info("starting licence batch workflow",
		"batchID", batchID,
		"items", len(input.Items),
		"maxRetries", settings.MaxRetries,
	)

	result := &LicenceBatchResult{BatchID: batchID}
	pending := input.Items
	requested := make(map[string]int, len(pending))
	firstSent := make(map[string]time.Time, len(pending))

	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*octemporal.BatchProgress, error) {
		return &octemporal.BatchProgress{Cycle: result.Cycles, Pending: len(pending), Resolved: result.Resolved}, nil
	}); err != nil {
		return nil, fmt.Errorf("register progress query: %w", err)
	}

	var licenceAct *activities.LicenceActivities

	lookupCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: lookupActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activities.ErrTypeLookupRejected},
		},
	})

	callbackCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: callbackActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	backoff := settings.InitialBackoff
	for len(pending) > 0 && result.Cycles < settings.MaxRetries {
		if result.Cycles > 0 {
			logger.Info("waiting before next lookup cycle", "batchID", batchID, "backoff", backoff, "pending", len(pending))
			if err := workflow.Sleep(ctx, backoff); err != nil {
				return result, err
			}
			backoff = nextBackoff(backoff, settings.MaxBackoff)
		}
		result.Cycles++

		now := workflow.Now(ctx)
		for _, item := range pending {
			requested[item.ID]++
			if _, ok := firstSent[item.ID]; !ok {
				firstSent[item.ID] = now
			}
		}

		chunks := chunk(pending, settings.BatchSize)
		futures := make([]workflow.Future, len(chunks))
		for i, c := range chunks {
			futures[i] = workflow.ExecuteActivity(lookupCtx, licenceAct.Lookup, activities.LookupInput{
				BatchID: batchID,
				Items:   c,
			})
		}

		var successes, errs []oag.Result
		var next []domain.LookupItem
		for i, f := range futures {
			var out activities.LookupOutput
			if err := f.Get(ctx, &out); err != nil {
				logger.Warn("lookup chunk failed; items stay pending",
					"batchID", batchID,
					"cycle", result.Cycles,
					"items", len(chunks[i]),
					"error", err,
				)
				next = append(next, chunks[i]...)
				continue
			}
			successes = append(successes, out.Successes...)
			errs = append(errs, out.Errors...)
			next = append(next, out.Pending...)
		}
		pending = next

		if len(successes)+len(errs) == 0 {
			continue
		}
		event := activities.CallbackEvent{
			BatchID:   batchID,
			Type:      activities.CallbackCycle,
			Successes: successes,
			Errors:    errs,
		}
		if err := workflow.ExecuteActivity(callbackCtx, licenceAct.DeliverCallback, event).Get(ctx, nil); err != nil {
			logger.Error("cycle callback failed", "batchID", batchID, "cycle", result.Cycles, "error", err)
			return result, fmt.Errorf("deliver cycle %d callback: %w", result.Cycles, err)
		}
		result.Resolved += len(successes) + len(errs)
	}

	if len(pending) > 0 {
		maxed := make(map[string]activities.MaxedItem, len(pending))
		for _, item := range pending {
			maxed[item.ID] = activities.MaxedItem{Requested: requested[item.ID], Init: firstSent[item.ID]}
		}
		event := activities.CallbackEvent{
			BatchID: batchID,
			Type:    activities.CallbackFinished,
			Maxed:   maxed,
		}
		if err := workflow.ExecuteActivity(callbackCtx, licenceAct.DeliverCallback, event).Get(ctx, nil); err != nil {
			logger.Error("finished callback failed", "batchID", batchID, "error", err)
			return result, fmt.Errorf("deliver finished callback: %w", err)
		}
		result.Maxed = len(maxed)
		pending = nil
	}

	logger.Info("licence batch workflow complete",
		"batchID", batchID,
		"cycles", result.Cycles,
		"resolved", result.Resolved,
		"maxed", result.Maxed,
	)
	return result, nil
}

func withDefaults(s octemporal.BatchSettings) octemporal.BatchSettings {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.InitialBackoff <= 0 {
		s.InitialBackoff = DefaultInitialBackoff
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = DefaultMaxBackoff
	}
	if s.MaxBackoff < s.InitialBackoff {
		s.MaxBackoff = s.InitialBackoff
	}
	return s
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// chunk splits items into consecutive slices of at most size elements.
func chunk(items []domain.LookupItem, size int) [][]domain.LookupItem {
	var out [][]domain.LookupItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
