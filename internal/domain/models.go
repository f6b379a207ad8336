// Package domain provides the domain models and business rules for the OA compliance service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle states of a spreadsheet job.
// These values must match the database check constraint on spreadsheet_jobs.status_code.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// SpreadsheetJob is one uploaded spreadsheet and the unit of work for the orchestrator.
type SpreadsheetJob struct {
	ID              uuid.UUID `json:"id"`
	Filename        string    `json:"filename"`
	ContactEmail    string    `json:"contact_email"`
	WebhookCallback string    `json:"webhook_callback,omitempty"`
	Status          JobStatus `json:"status_code"`
	StatusMessage   string    `json:"status_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SetStatus updates the status code and message together.
func (j *SpreadsheetJob) SetStatus(status JobStatus, message string) {
	j.Status = status
	j.StatusMessage = message
}

// AsyncLicenceLink associates a spreadsheet job with one batch submitted to
// the licence resolver. A job gets a new link for every batch, including reruns.
type AsyncLicenceLink struct {
	ID            uuid.UUID `json:"id"`
	SpreadsheetID uuid.UUID `json:"spreadsheet_id"`
	BatchID       string    `json:"batch_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// IdentifierKind names the identifier types a record can be looked up by.
type IdentifierKind string

const (
	KindPMCID IdentifierKind = "pmcid"
	KindPMID  IdentifierKind = "pmid"
	KindDOI   IdentifierKind = "doi"
)

// IdentifierKinds lists the identifier kinds in lookup precedence order.
var IdentifierKinds = []IdentifierKind{KindPMCID, KindPMID, KindDOI}

// ParseIdentifierKind maps a resolver-supplied type to an IdentifierKind.
// The resolver's "epmc" alias maps to pmcid. The second return value is false
// for anything unrecognised.
func ParseIdentifierKind(s string) (IdentifierKind, bool) {
	switch s {
	case "pmcid", "epmc":
		return KindPMCID, true
	case "pmid":
		return KindPMID, true
	case "doi":
		return KindDOI, true
	default:
		return "", false
	}
}

// Label returns the upper-case form used in user-facing notes.
func (k IdentifierKind) Label() string {
	switch k {
	case KindPMCID:
		return "PMCID"
	case KindPMID:
		return "PMID"
	case KindDOI:
		return "DOI"
	default:
		return string(k)
	}
}

// LookupItem is one identifier queued for the licence resolver.
type LookupItem struct {
	ID   string         `json:"id"`
	Type IdentifierKind `json:"type"`
}
