package httpserver

import (
	"time"

	"github.com/helixir/oa-compliance-service/internal/orchestrator"
)

// uploadResponse is returned when a spreadsheet is accepted.
type uploadResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ProgressURL string `json:"progress_url"`
}

// sseEvent is one server-sent progress event.
type sseEvent struct {
	EventType string                 `json:"event_type"`
	JobID     string                 `json:"job_id"`
	Progress  *orchestrator.Progress `json:"progress,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
