package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Workflow and query names shared by the client and the workflow
// implementation, so the client never imports the workflows package.
const (
	// LicenceBatchWorkflowName is the registered name of the licence batch workflow.
	LicenceBatchWorkflowName = "LicenceBatchWorkflow"

	// QueryProgress is the query answered with a BatchProgress.
	QueryProgress = "progress"

	// BatchIDPrefix prefixes every licence batch workflow ID.
	BatchIDPrefix = "licence-batch-"
)

const (
	// DefaultWorkflowExecutionTimeout is the maximum time a licence batch is allowed to run,
	// including its start delay and every back-off.
	DefaultWorkflowExecutionTimeout = 72 * time.Hour

	// DefaultConnectionTimeout bounds the initial dial to the Temporal server.
	DefaultConnectionTimeout = 10 * time.Second
)

var (
	// ErrWorkflowNotFound indicates the batch workflow does not exist, or its
	// history has passed the namespace retention period.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a batch with the same ID was started before.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrQueryFailed indicates the workflow rejected or could not answer a query.
	ErrQueryFailed = errors.New("query failed")

	// ErrClientClosed indicates the client was closed or the call was cancelled.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed covers every other failure to reach the server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDeadlineExceeded indicates the call ran out of time.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// TemporalError records which resolver call failed, on which batch, and why.
type TemporalError struct {
	Op      string
	Kind    error
	BatchID string
	Err     error
}

func (e *TemporalError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.BatchID != "" {
		msg += " [batch " + e.BatchID + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TemporalError) Unwrap() error { return e.Err }

// Is matches the error's Kind, so errors.Is works against the sentinels.
func (e *TemporalError) Is(target error) bool { return e.Kind == target }

func matches[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// classify maps an SDK or context error onto one of the sentinels.
func classify(err error) error {
	switch {
	case matches[*serviceerror.NotFound](err):
		return ErrWorkflowNotFound
	case matches[*serviceerror.WorkflowExecutionAlreadyStarted](err):
		return ErrWorkflowAlreadyStarted
	case matches[*serviceerror.QueryFailed](err):
		return ErrQueryFailed
	case matches[*serviceerror.DeadlineExceeded](err), errors.Is(err, context.DeadlineExceeded):
		return ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ErrClientClosed
	default:
		return ErrConnectionFailed
	}
}

func wrapTemporalError(op string, err error, batchID string) error {
	if err == nil {
		return nil
	}
	return &TemporalError{Op: op, Kind: classify(err), BatchID: batchID, Err: err}
}

// IsWorkflowNotFound reports whether err means the batch workflow is unknown.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted reports whether err means the batch ID was used before.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// IsQueryFailed reports whether err means the workflow could not answer a query.
func IsQueryFailed(err error) bool {
	return errors.Is(err, ErrQueryFailed)
}

// IsConnectionFailed reports whether err means the server could not be reached.
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the task queue licence batches are started on.
	TaskQueue string

	// ConnectionTimeout bounds the initial dial. Defaults to 10 seconds.
	ConnectionTimeout time.Duration

	// Logger receives the SDK's own log output. Nil keeps the SDK default.
	Logger log.Logger
}

// NewClient dials the Temporal server.
func NewClient(cfg ClientConfig) (client.Client, error) {
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = DefaultConnectionTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := client.DialContext(ctx, client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// BatchSettings controls how a licence batch cycles through the lookup API.
type BatchSettings struct {
	// BatchSize is the maximum number of identifiers per lookup request.
	BatchSize int

	// MaxRetries is the number of lookup cycles before pending identifiers
	// are reported as maxed.
	MaxRetries int

	// InitialBackoff is the wait between the first and second cycle. Each
	// later wait doubles, up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between cycles.
	MaxBackoff time.Duration
}

// LicenceBatchInput is the licence batch workflow argument. It lives here
// rather than in workflows so the coordinator side can build it.
type LicenceBatchInput struct {
	Items    []domain.LookupItem
	Settings BatchSettings
}

// BatchProgress is the answer to QueryProgress.
type BatchProgress struct {
	// Cycle is the number of lookup cycles started so far.
	Cycle int `json:"cycle"`
	// Pending counts identifiers the lookup API has not answered yet.
	Pending int `json:"pending"`
	// Resolved counts results and errors delivered to the callback.
	Resolved int `json:"resolved"`
}

// LicenceResolverClient starts and inspects licence batch workflows. It
// implements the coordinator's Resolver contract.
type LicenceResolverClient struct {
	mu        sync.RWMutex
	client    client.Client
	taskQueue string
	settings  BatchSettings
	closed    bool
	now       func() time.Time
}

// NewLicenceResolverClient creates a new LicenceResolverClient.
func NewLicenceResolverClient(c client.Client, cfg ClientConfig, settings BatchSettings) *LicenceResolverClient {
	return &LicenceResolverClient{
		client:    c,
		taskQueue: cfg.TaskQueue,
		settings:  settings,
		now:       time.Now,
	}
}

// Close closes the underlying Temporal client connection.
func (c *LicenceResolverClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *LicenceResolverClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Submit starts a licence batch workflow for items, delayed until startAt,
// and returns its batch ID. An empty batchID gets a fresh one.
//
// Starting the same batchID twice is not an error: the workflow ID is never
// reused, so the second call reports the batch that already exists. Callers
// retrying a failed dispatch pass the same ID to avoid duplicate lookups.
func (c *LicenceResolverClient) Submit(ctx context.Context, batchID string, items []domain.LookupItem, startAt time.Time) (string, error) {
	if c.isClosed() {
		return "", &TemporalError{Op: "Submit", Kind: ErrClientClosed, BatchID: batchID}
	}
	if batchID == "" {
		batchID = NewBatchID()
	}

	delay := startAt.Sub(c.now())
	if delay < 0 {
		delay = 0
	}

	options := client.StartWorkflowOptions{
		ID:                                       batchID,
		TaskQueue:                                c.taskQueue,
		WorkflowExecutionTimeout:                 DefaultWorkflowExecutionTimeout,
		StartDelay:                               delay,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	input := LicenceBatchInput{Items: items, Settings: c.settings}
	if _, err := c.client.ExecuteWorkflow(ctx, options, LicenceBatchWorkflowName, input); err != nil {
		werr := wrapTemporalError("Submit", err, batchID)
		if IsWorkflowAlreadyStarted(werr) {
			return batchID, nil
		}
		return "", werr
	}
	return batchID, nil
}

// BatchProgress asks a running or recently closed batch how far it got.
func (c *LicenceResolverClient) BatchProgress(ctx context.Context, batchID string) (*BatchProgress, error) {
	if c.isClosed() {
		return nil, &TemporalError{Op: "BatchProgress", Kind: ErrClientClosed, BatchID: batchID}
	}

	value, err := c.client.QueryWorkflow(ctx, batchID, "", QueryProgress)
	if err != nil {
		return nil, wrapTemporalError("BatchProgress", err, batchID)
	}

	var progress BatchProgress
	if err := value.Get(&progress); err != nil {
		return nil, &TemporalError{Op: "BatchProgress", Kind: ErrQueryFailed, BatchID: batchID, Err: err}
	}
	return &progress, nil
}

// NewBatchID returns a new, time-ordered licence batch ID.
func NewBatchID() string {
	return BatchIDPrefix + ulid.Make().String()
}
