package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/temporal"
)

// MaxQueueLength is the queue position above which progress reports
// "11 or more" instead of an exact count.
const MaxQueueLength = 10

// Progress is the public view of a job's state.
type Progress struct {
	ID              uuid.UUID        `json:"id"`
	Filename        string           `json:"filename"`
	Status          domain.JobStatus `json:"status"`
	Message         string           `json:"message,omitempty"`
	WebhookCallback string           `json:"webhook_callback,omitempty"`
	PC              float64          `json:"pc"`
	Queue           string           `json:"queue"`
	LicenceBatch    *LicenceBatch    `json:"licence_batch,omitempty"`
}

// LicenceBatch is the resolver's view of the job's first licence batch.
type LicenceBatch struct {
	BatchID  string `json:"batch_id"`
	Cycle    int    `json:"cycle"`
	Pending  int    `json:"pending"`
	Resolved int    `json:"resolved"`
}

// Equal reports whether p and q describe the same state.
func (p Progress) Equal(q Progress) bool {
	pb, qb := p.LicenceBatch, q.LicenceBatch
	p.LicenceBatch, q.LicenceBatch = nil, nil
	if p != q || (pb == nil) != (qb == nil) {
		return false
	}
	return pb == nil || *pb == *qb
}

// Progress reports how far the job has got. Submitted jobs report their
// queue position, processing jobs their completion percentage to two
// decimals, and complete jobs 100. Processing jobs also carry their licence
// batch progress when the resolver can be asked.
func (o *Orchestrator) Progress(ctx context.Context, jobID uuid.UUID) (*Progress, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		ID:              job.ID,
		Filename:        job.Filename,
		Status:          job.Status,
		Message:         job.StatusMessage,
		WebhookCallback: job.WebhookCallback,
		Queue:           "0",
	}

	switch job.Status {
	case domain.JobStatusSubmitted:
		n, err := o.jobs.QueueLength(ctx, job.ID, MaxQueueLength)
		if err != nil {
			return nil, fmt.Errorf("queue length: %w", err)
		}
		if n < MaxQueueLength {
			p.Queue = strconv.Itoa(n)
		} else {
			p.Queue = strconv.Itoa(MaxQueueLength+1) + " or more"
		}
	case domain.JobStatusProcessing:
		pc, err := o.PcComplete(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		p.PC = math.Round(pc*100) / 100
		p.LicenceBatch = o.licenceBatch(ctx, job.ID)
	case domain.JobStatusComplete:
		p.PC = 100
	}
	return p, nil
}

// PcComplete is the mean of the EPMC and licence phase completion
// percentages across the job's records.
func (o *Orchestrator) PcComplete(ctx context.Context, jobID uuid.UUID) (float64, error) {
	comp, err := o.records.UploadCompleteness(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("completeness: %w", err)
	}
	return comp.PcComplete(), nil
}

// licenceBatch returns nil when the job has no batch, or the resolver does
// not know it any more, or cannot be asked.
func (o *Orchestrator) licenceBatch(ctx context.Context, jobID uuid.UUID) *LicenceBatch {
	if o.links == nil || o.batches == nil {
		return nil
	}

	link, err := o.links.ByUploadID(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn().Err(err).Str("job_id", jobID.String()).Msg("failed to find licence batch")
		}
		return nil
	}

	bp, err := o.batches.BatchProgress(ctx, link.BatchID)
	switch {
	case temporal.IsWorkflowNotFound(err), temporal.IsQueryFailed(err):
		o.logger.Debug().Err(err).Str("batch_id", link.BatchID).Msg("licence batch progress unavailable")
		return nil
	case err != nil:
		o.logger.Warn().Err(err).Str("batch_id", link.BatchID).Msg("failed to query licence batch progress")
		return nil
	}
	return &LicenceBatch{BatchID: link.BatchID, Cycle: bp.Cycle, Pending: bp.Pending, Resolved: bp.Resolved}
}
