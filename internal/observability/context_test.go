package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestBatchIDContext(t *testing.T) {
	ctx := WithBatchID(context.Background(), "licence-batch-01J")
	assert.Equal(t, "licence-batch-01J", BatchIDFromContext(ctx))
}

func TestWorkflowContext(t *testing.T) {
	t.Run("stores and retrieves workflow and run IDs", func(t *testing.T) {
		ctx := WithWorkflow(context.Background(), "wf-123", "run-456")

		workflowID, runID := WorkflowFromContext(ctx)
		assert.Equal(t, "wf-123", workflowID)
		assert.Equal(t, "run-456", runID)
	})

	t.Run("returns empty strings when not set", func(t *testing.T) {
		workflowID, runID := WorkflowFromContext(context.Background())
		assert.Equal(t, "", workflowID)
		assert.Equal(t, "", runID)
	})
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithBatchID(context.Background(), "first")
	ctx = WithBatchID(ctx, "second")
	assert.Equal(t, "second", BatchIDFromContext(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	t.Run("attaches present values only", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithBatchID(ctx, "batch-1")

		logger := LoggerFromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "batch-1", entry["batch_id"])
		assert.NotContains(t, entry, "workflow_id")
	})

	t.Run("includes workflow fields", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithWorkflow(context.Background(), "wf", "run")

		logger := LoggerFromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "wf", entry["workflow_id"])
		assert.Equal(t, "run", entry["workflow_run_id"])
	})
}
