package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/temporal"
)

func TestProgress_Queue(t *testing.T) {
	tests := []struct {
		name     string
		queueLen int
		want     string
	}{
		{"front of queue", 0, "0"},
		{"short queue", 3, "3"},
		{"just under limit", MaxQueueLength - 1, "9"},
		{"at limit", MaxQueueLength, "11 or more"},
		{"long queue", 42, "11 or more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := submittedJob("grants.csv")
			h := newHarness(job)
			h.jobs.queueLen = tt.queueLen

			p, err := h.orch.Progress(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Queue)
			assert.Zero(t, p.PC)
			assert.Equal(t, domain.JobStatusSubmitted, p.Status)
		})
	}
}

func TestProgress_ProcessingRoundsPercentage(t *testing.T) {
	job := submittedJob("grants.csv")
	job.SetStatus(domain.JobStatusProcessing, MessageProcessing)
	h := newHarness(job)

	for i := 1; i <= 3; i++ {
		rec := domain.NewRecord(job.ID, i)
		rec.EPMCComplete = true
		rec.OAGComplete = i == 1
		require.NoError(t, h.records.Create(context.Background(), rec))
	}

	p, err := h.orch.Progress(context.Background(), job.ID)
	require.NoError(t, err)

	// (3/3 + 1/3) / 2 = 66.666...
	assert.Equal(t, 66.67, p.PC)
	assert.Equal(t, "0", p.Queue)
	assert.Equal(t, MessageProcessing, p.Message)
}

func TestProgress_LicenceBatch(t *testing.T) {
	processing := func(h *harness) *domain.SpreadsheetJob {
		job := submittedJob("grants.csv")
		job.SetStatus(domain.JobStatusProcessing, MessageProcessing)
		require.NoError(t, h.jobs.Create(context.Background(), job))
		return job
	}

	t.Run("reports the resolver's progress", func(t *testing.T) {
		h := newHarness()
		job := processing(h)
		h.links.links[job.ID] = "licence-batch-01"
		h.batches.progress["licence-batch-01"] = &temporal.BatchProgress{Cycle: 2, Pending: 4, Resolved: 6}

		p, err := h.orch.Progress(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, &LicenceBatch{BatchID: "licence-batch-01", Cycle: 2, Pending: 4, Resolved: 6}, p.LicenceBatch)
	})

	t.Run("no batch yet", func(t *testing.T) {
		h := newHarness()
		job := processing(h)

		p, err := h.orch.Progress(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Nil(t, p.LicenceBatch)
	})

	t.Run("batch unknown to the resolver", func(t *testing.T) {
		h := newHarness()
		job := processing(h)
		h.links.links[job.ID] = "licence-batch-01"

		p, err := h.orch.Progress(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Nil(t, p.LicenceBatch)
	})

	t.Run("resolver unreachable does not fail progress", func(t *testing.T) {
		h := newHarness()
		job := processing(h)
		h.links.links[job.ID] = "licence-batch-01"
		h.batches.err = errors.New("connection refused")

		p, err := h.orch.Progress(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Nil(t, p.LicenceBatch)
	})
}

func TestProgress_Equal(t *testing.T) {
	base := Progress{ID: uuid.New(), Status: domain.JobStatusProcessing, PC: 50}
	withBatch := base
	withBatch.LicenceBatch = &LicenceBatch{BatchID: "b", Cycle: 1}
	sameBatch := base
	sameBatch.LicenceBatch = &LicenceBatch{BatchID: "b", Cycle: 1}
	nextCycle := base
	nextCycle.LicenceBatch = &LicenceBatch{BatchID: "b", Cycle: 2}

	assert.True(t, base.Equal(base))
	assert.True(t, withBatch.Equal(sameBatch))
	assert.False(t, base.Equal(withBatch))
	assert.False(t, withBatch.Equal(nextCycle))
}

func TestProgress_Complete(t *testing.T) {
	job := submittedJob("grants.csv")
	job.SetStatus(domain.JobStatusComplete, "Processing complete")
	h := newHarness(job)

	p, err := h.orch.Progress(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(100), p.PC)
	assert.Equal(t, "0", p.Queue)
}

func TestProgress_UnknownJob(t *testing.T) {
	h := newHarness()

	_, err := h.orch.Progress(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPcComplete_EmptyUpload(t *testing.T) {
	h := newHarness()

	pc, err := h.orch.PcComplete(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, pc)
}
