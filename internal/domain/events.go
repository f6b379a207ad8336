package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for job lifecycle events.
const (
	EventTypeJobSubmitted = "job.submitted"
	EventTypeJobCompleted = "job.completed"
	EventTypeJobFailed    = "job.failed"
)

// AggregateTypeSpreadsheetJob is the aggregate type carried by every job event.
const AggregateTypeSpreadsheetJob = "spreadsheet_job"

// Event is a job lifecycle event published to the message broker.
type Event struct {
	EventID       string          `json:"event_id"`
	EventVersion  int             `json:"event_version"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType, aggregateID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: AggregateTypeSpreadsheetJob,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NewJobEvent builds the event for a job, choosing the payload by event type.
func NewJobEvent(eventType string, job *SpreadsheetJob) (*Event, error) {
	var payload interface{}
	switch eventType {
	case EventTypeJobSubmitted:
		payload = JobSubmittedPayload{
			JobID:        job.ID,
			Filename:     job.Filename,
			ContactEmail: job.ContactEmail,
		}
	case EventTypeJobFailed:
		payload = JobFailedPayload{
			JobID:    job.ID,
			Filename: job.Filename,
			Error:    job.StatusMessage,
		}
	default:
		payload = JobCompletedPayload{
			JobID:           job.ID,
			Filename:        job.Filename,
			Status:          job.Status,
			WebhookCallback: job.WebhookCallback,
		}
	}
	return NewEvent(eventType, job.ID.String(), payload)
}

// JobSubmittedPayload is the payload for job.submitted events.
type JobSubmittedPayload struct {
	JobID        uuid.UUID `json:"job_id"`
	Filename     string    `json:"filename"`
	ContactEmail string    `json:"contact_email"`
}

// JobCompletedPayload is the payload for job.completed events.
type JobCompletedPayload struct {
	JobID           uuid.UUID `json:"job_id"`
	Filename        string    `json:"filename"`
	Status          JobStatus `json:"status"`
	WebhookCallback string    `json:"webhook_callback,omitempty"`
}

// JobFailedPayload is the payload for job.failed events.
type JobFailedPayload struct {
	JobID    uuid.UUID `json:"job_id"`
	Filename string    `json:"filename"`
	Error    string    `json:"error"`
}
