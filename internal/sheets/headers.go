// Package sheets maps spreadsheet rows to records and back.
//
// Input columns are matched case-insensitively against a fixed header table;
// anything else is ignored. Output columns follow OutputOrder and are limited
// to the fields the first exported record carries.
package sheets

import "strings"

// Field names for spreadsheet columns.
const (
	FieldUniversity      = "university"
	FieldPMCID           = "pmcid"
	FieldPMID            = "pmid"
	FieldDOI             = "doi"
	FieldPublisher       = "publisher"
	FieldJournalTitle    = "journal_title"
	FieldArticleTitle    = "article_title"
	FieldPublicationDate = "publication_date"
	FieldTitleShort      = "title_short"
	FieldAuthors         = "authors"
	FieldGrantReferences = "grant_references"
	FieldAPCCost         = "apc_cost"
	FieldWellcomeAPC     = "wellcome_apc"
	FieldVAT             = "vat"
	FieldCost            = "cost"
	FieldWellcomeGrant   = "wellcome_grant"
	FieldLicenceInfo     = "licence_info"
	FieldNotes           = "notes"

	// Output only.
	FieldInEPMC             = "in_epmc"
	FieldXMLFulltext        = "xml_ft_in_epmc"
	FieldAAM                = "aam"
	FieldOpenAccess         = "open_access"
	FieldLicence            = "licence"
	FieldLicenceSource      = "licence_source"
	FieldJournalType        = "journal_type"
	FieldConfidence         = "confidence"
	FieldStandardCompliance = "standard_compliance"
	FieldDeluxeCompliance   = "deluxe_compliance"
	FieldISSN               = "issn"
	FieldProvenance         = "provenance"
)

// inputHeaders maps the accepted input headers to field names.
var inputHeaders = []struct {
	header string
	field  string
}{
	{"University", FieldUniversity},
	{"PMCID", FieldPMCID},
	{"PMID", FieldPMID},
	{"DOI", FieldDOI},
	{"Publisher", FieldPublisher},
	{"Journal title", FieldJournalTitle},
	{"Article title", FieldArticleTitle},
	{"Publication Date", FieldPublicationDate},
	{"Title of paper (shortened)", FieldTitleShort},
	{"Author(s)", FieldAuthors},
	{"Grant References", FieldGrantReferences},
	{"Total cost of Article Processing Charge (APC), in £", FieldAPCCost},
	{"Amount of APC charged to Wellcome OA grant, in £ (include VAT if charged)", FieldWellcomeAPC},
	{"VAT charged", FieldVAT},
	{"COST (£)", FieldCost},
	{"Wellcome grant", FieldWellcomeGrant},
	{"Licence info", FieldLicenceInfo},
	{"Notes", FieldNotes},
}

// outputHeaders maps result fields to their column headers.
var outputHeaders = map[string]string{
	FieldInEPMC:             "Fulltext in EPMC?",
	FieldXMLFulltext:        "XML Fulltext?",
	FieldAAM:                "AAM?",
	FieldOpenAccess:         "Open Access?",
	FieldLicence:            "Licence",
	FieldLicenceSource:      "Licence Source",
	FieldJournalType:        "Journal Type",
	FieldConfidence:         "Correct Article Confidence",
	FieldStandardCompliance: "Standard Compliance?",
	FieldDeluxeCompliance:   "Deluxe Compliance?",
	FieldISSN:               "ISSN",
	FieldProvenance:         "Compliance Processing Ouptut",
}

// OutputOrder is the column order of exported spreadsheets.
var OutputOrder = []string{
	FieldUniversity, FieldPMCID, FieldPMID, FieldDOI, FieldPublisher, FieldJournalTitle,
	FieldArticleTitle, FieldPublicationDate, FieldTitleShort, FieldAuthors, FieldGrantReferences,
	FieldAPCCost, FieldWellcomeAPC, FieldVAT, FieldCost, FieldWellcomeGrant, FieldLicenceInfo,
	FieldNotes, FieldInEPMC, FieldXMLFulltext, FieldAAM, FieldOpenAccess, FieldLicence,
	FieldLicenceSource, FieldJournalType, FieldConfidence, FieldStandardCompliance,
	FieldDeluxeCompliance, FieldISSN, FieldProvenance,
}

// defaultValues fill empty cells of these fields on export.
var defaultValues = map[string]string{
	FieldAAM:     "unknown",
	FieldLicence: "unknown",
}

var headerLookup = func() map[string]string {
	m := make(map[string]string, len(inputHeaders))
	for _, h := range inputHeaders {
		m[strings.ToLower(h.header)] = h.field
	}
	return m
}()

// FieldForHeader returns the field an input header maps to.
func FieldForHeader(header string) (string, bool) {
	header = strings.TrimPrefix(header, "\ufeff")
	f, ok := headerLookup[strings.ToLower(strings.TrimSpace(header))]
	return f, ok
}

// HeaderForField returns the column header for a field. Unknown fields are
// returned unchanged.
func HeaderForField(field string) string {
	for _, h := range inputHeaders {
		if h.field == field {
			return h.header
		}
	}
	if h, ok := outputHeaders[field]; ok {
		return h
	}
	return field
}
