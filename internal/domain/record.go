package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProvenanceTimeFormat is the timestamp layout used when rendering provenance.
const ProvenanceTimeFormat = "2006-01-02T15:04:05Z"

// Provenance actors.
const (
	ActorImporter  = "importer"
	ActorProcessor = "processor"
	ActorOAG       = "oag"
	ActorDedup     = "dedup"
)

// OAGStatus tracks what happened to one identifier type at the licence resolver.
type OAGStatus string

const (
	OAGNotSent OAGStatus = "not_sent"
	OAGSent    OAGStatus = "sent"
	OAGSuccess OAGStatus = "success"
	OAGFTO     OAGStatus = "fto"
	OAGError   OAGStatus = "error"
)

// LicenceSource records where a licence determination came from.
type LicenceSource string

const (
	LicenceSourceEPMCXML   LicenceSource = "epmc_xml"
	LicenceSourceEPMC      LicenceSource = "epmc"
	LicenceSourcePublisher LicenceSource = "publisher"
)

// JournalType classifies the journal a record was published in.
type JournalType string

const (
	JournalTypeOA     JournalType = "oa"
	JournalTypeHybrid JournalType = "hybrid"
)

// ProvenanceEntry is one append-only audit note on a record.
type ProvenanceEntry struct {
	By   string    `json:"by"`
	When time.Time `json:"when"`
	What string    `json:"what"`
}

// String renders the entry as "[when by] what".
func (p ProvenanceEntry) String() string {
	return fmt.Sprintf("[%s %s] %s", p.When.UTC().Format(ProvenanceTimeFormat), p.By, p.What)
}

// Record is one bibliographic item within a spreadsheet job.
//
// Empty strings mean "absent" for the identifier and licence fields; nil
// pointers mean "unknown" for the tri-state flags.
type Record struct {
	ID        uuid.UUID `json:"id"`
	UploadID  uuid.UUID `json:"upload_id"`
	UploadPos int       `json:"upload_pos"`

	// Source holds the original spreadsheet columns, keyed by field name.
	Source map[string]string `json:"source,omitempty"`

	PMCID string `json:"pmcid,omitempty"`
	PMID  string `json:"pmid,omitempty"`
	DOI   string `json:"doi,omitempty"`
	Title string `json:"title,omitempty"`

	HasFTXML     bool      `json:"has_ft_xml"`
	AAMFromXML   bool      `json:"aam_from_xml"`
	AAMFromEPMC  bool      `json:"aam_from_epmc"`
	ISSN         []string  `json:"issn,omitempty"`
	InOAG        bool      `json:"in_oag"`
	OAGPMCID     OAGStatus `json:"oag_pmcid"`
	OAGPMID      OAGStatus `json:"oag_pmid"`
	OAGDOI       OAGStatus `json:"oag_doi"`
	EPMCComplete bool      `json:"epmc_complete"`
	OAGComplete  bool      `json:"oag_complete"`

	InEPMC             *bool         `json:"in_epmc,omitempty"`
	IsOA               *bool         `json:"is_oa,omitempty"`
	AAM                *bool         `json:"aam,omitempty"`
	LicenceType        string        `json:"licence_type,omitempty"`
	LicenceSource      LicenceSource `json:"licence_source,omitempty"`
	JournalType        JournalType   `json:"journal_type,omitempty"`
	Confidence         *float64      `json:"confidence,omitempty"`
	StandardCompliance *bool         `json:"standard_compliance,omitempty"`
	DeluxeCompliance   *bool         `json:"deluxe_compliance,omitempty"`

	Publisher    string `json:"publisher,omitempty"`
	JournalTitle string `json:"journal_title,omitempty"`

	Provenance []ProvenanceEntry `json:"provenance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord returns a record for the given upload with every resolver status set to not_sent.
func NewRecord(uploadID uuid.UUID, pos int) *Record {
	return &Record{
		ID:        uuid.New(),
		UploadID:  uploadID,
		UploadPos: pos,
		Source:    make(map[string]string),
		OAGPMCID:  OAGNotSent,
		OAGPMID:   OAGNotSent,
		OAGDOI:    OAGNotSent,
	}
}

// Now is the clock used for provenance timestamps.
var Now = func() time.Time { return time.Now().UTC() }

// AddProvenance appends an audit note. Entries are never reordered or removed.
func (r *Record) AddProvenance(by, what string) {
	r.Provenance = append(r.Provenance, ProvenanceEntry{By: by, When: Now(), What: what})
}

// Identifier returns the record's value for the given identifier kind.
func (r *Record) Identifier(kind IdentifierKind) string {
	switch kind {
	case KindPMCID:
		return r.PMCID
	case KindPMID:
		return r.PMID
	case KindDOI:
		return r.DOI
	default:
		return ""
	}
}

// SetIdentifier sets the record's value for the given identifier kind.
func (r *Record) SetIdentifier(kind IdentifierKind, value string) {
	switch kind {
	case KindPMCID:
		r.PMCID = value
	case KindPMID:
		r.PMID = value
	case KindDOI:
		r.DOI = value
	}
}

// OAGStatusFor returns the resolver status of the given identifier kind.
func (r *Record) OAGStatusFor(kind IdentifierKind) OAGStatus {
	switch kind {
	case KindPMCID:
		return r.OAGPMCID
	case KindPMID:
		return r.OAGPMID
	case KindDOI:
		return r.OAGDOI
	default:
		return ""
	}
}

// SetOAGStatus sets the resolver status of the given identifier kind.
func (r *Record) SetOAGStatus(kind IdentifierKind, status OAGStatus) {
	switch kind {
	case KindPMCID:
		r.OAGPMCID = status
	case KindPMID:
		r.OAGPMID = status
	case KindDOI:
		r.OAGDOI = status
	}
}

// KindOf reports which identifier field holds id, checking pmcid, pmid and doi in turn.
func (r *Record) KindOf(id string) (IdentifierKind, bool) {
	for _, kind := range IdentifierKinds {
		if v := r.Identifier(kind); v != "" && v == id {
			return kind, true
		}
	}
	return "", false
}

// HasLicence reports whether a licence type has been determined.
func (r *Record) HasLicence() bool {
	return r.LicenceType != ""
}

// IsFinished reports whether both the EPMC and licence phases are done.
func (r *Record) IsFinished() bool {
	return r.EPMCComplete && r.OAGComplete
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}

// IsTrue reports whether a tri-state flag is set and true.
func IsTrue(b *bool) bool {
	return b != nil && *b
}
