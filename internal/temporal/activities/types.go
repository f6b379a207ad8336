// Package activities provides the Temporal activities behind licence batch
// resolution.
//
// Activity inputs and outputs are serializable structs that cross the
// Temporal serialization boundary. All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"context"
	"time"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/sources/oag"
)

// Callback event types.
const (
	// CallbackCycle carries the results of one lookup cycle.
	CallbackCycle = "cycle"

	// CallbackFinished carries the identifiers the workflow gave up on.
	CallbackFinished = "finished"
)

// MaxedItem describes an identifier that was still unresolved after the
// final lookup cycle.
type MaxedItem struct {
	// Requested is how many times the identifier was sent to the lookup API.
	Requested int

	// Init is when the identifier was first sent.
	Init time.Time
}

// CallbackEvent is delivered to the CallbackSink after every lookup cycle
// that produced results, and once more when the batch finishes with
// identifiers still pending.
type CallbackEvent struct {
	// BatchID is the workflow ID of the batch.
	BatchID string

	// Type is CallbackCycle or CallbackFinished.
	Type string

	// Successes are the entries of the lookup API's results list.
	Successes []oag.Result

	// Errors are the entries of the lookup API's errors list.
	Errors []oag.Result

	// Maxed maps each abandoned identifier to its request history.
	Maxed map[string]MaxedItem
}

// CallbackSink applies licence results to the records of the owning job.
type CallbackSink interface {
	Handle(ctx context.Context, event CallbackEvent) error
}

// LookupInput contains the parameters for the Lookup activity.
type LookupInput struct {
	// BatchID is the workflow ID of the batch, used for logging.
	BatchID string

	// Items are the identifiers to look up in one request.
	Items []domain.LookupItem
}

// LookupOutput contains the results of the Lookup activity.
type LookupOutput struct {
	// Successes are the entries of the results list.
	Successes []oag.Result

	// Errors are the entries of the errors list.
	Errors []oag.Result

	// Pending are the requested items the API is still processing or did
	// not mention at all.
	Pending []domain.LookupItem
}
