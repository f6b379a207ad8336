package sheets

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// canonicalFields are taken from the record, never from its source columns.
var canonicalFields = map[string]bool{
	FieldPMCID:        true,
	FieldPMID:         true,
	FieldDOI:          true,
	FieldArticleTitle: true,
}

// Objectify flattens a record into field/value pairs. Source columns are
// merged in last, except the identifiers and title, which come from the
// record's canonical fields.
func Objectify(rec *domain.Record) map[string]string {
	obj := map[string]string{
		FieldPMCID:              rec.PMCID,
		FieldPMID:               rec.PMID,
		FieldDOI:                rec.DOI,
		FieldArticleTitle:       rec.Title,
		FieldPublisher:          rec.Publisher,
		FieldJournalTitle:       rec.JournalTitle,
		FieldInEPMC:             formatBoolPtr(rec.InEPMC),
		FieldXMLFulltext:        formatBool(rec.HasFTXML),
		FieldAAM:                formatBoolPtr(rec.AAM),
		FieldOpenAccess:         formatBoolPtr(rec.IsOA),
		FieldLicence:            rec.LicenceType,
		FieldLicenceSource:      string(rec.LicenceSource),
		FieldJournalType:        string(rec.JournalType),
		FieldConfidence:         formatFloatPtr(rec.Confidence),
		FieldStandardCompliance: formatBoolPtr(rec.StandardCompliance),
		FieldDeluxeCompliance:   formatBoolPtr(rec.DeluxeCompliance),
		FieldISSN:               strings.Join(rec.ISSN, ", "),
		FieldProvenance:         FormatProvenance(rec.Provenance),
	}

	for k, v := range rec.Source {
		if canonicalFields[k] {
			continue
		}
		if (k == FieldPublisher || k == FieldJournalTitle) && v == "" {
			continue
		}
		obj[k] = v
	}
	return obj
}

// FormatProvenance renders entries as "[when by] what" blocks separated by a blank line.
func FormatProvenance(entries []domain.ProvenanceEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "\n\n")
}

// Table renders records as a header row plus one row per record. The
// columns are every field present on any record, in OutputOrder; with no
// records every output column is used.
func Table(records []*domain.Record) (header []string, rows [][]string) {
	objs := make([]map[string]string, len(records))
	for i, rec := range records {
		objs[i] = Objectify(rec)
	}

	fields := OutputOrder
	if len(objs) > 0 {
		fields = make([]string, 0, len(OutputOrder))
		for _, f := range OutputOrder {
			for _, obj := range objs {
				if _, ok := obj[f]; ok {
					fields = append(fields, f)
					break
				}
			}
		}
	}

	header = make([]string, len(fields))
	for i, f := range fields {
		header[i] = HeaderForField(f)
	}

	rows = make([][]string, 0, len(records))
	for _, obj := range objs {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = cellValue(f, obj[f])
		}
		rows = append(rows, row)
	}
	return header, rows
}

// WriteRecords writes records as CSV.
func WriteRecords(w io.Writer, records []*domain.Record) error {
	header, rows := Table(records)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// XLSXSheetName is the worksheet name used for workbook exports.
const XLSXSheetName = "Compliance"

// WriteXLSX writes records as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, records []*domain.Record) error {
	header, rows := Table(records)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeXLSXRow(f, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeXLSXRow(f, i+2, row); err != nil {
			return err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDDDDD"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(XLSXSheetName, "A1", lastCol, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeXLSXRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("row %d: %w", row, err)
	}
	if err := f.SetSheetRow(XLSXSheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func cellValue(field, value string) string {
	if value == "" {
		if d, ok := defaultValues[field]; ok {
			return d
		}
	}
	return value
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func formatBoolPtr(b *bool) string {
	if b == nil {
		return ""
	}
	return formatBool(*b)
}

// formatFloatPtr renders whole numbers with one decimal place, so a
// confidence of 1 reads "1.0".
func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	if *f == math.Trunc(*f) {
		return strconv.FormatFloat(*f, 'f', 1, 64)
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
