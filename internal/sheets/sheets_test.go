package sheets

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

const sampleCSV = "University,PMCID,PMID,DOI,Article title,Journal title,Notes,Unmapped column\n" +
	"Cambridge, pmc4219345 ,25398264,https://doi.org/10.1186/s13059-014-0487-2,Genome-wide analysis,Genome Biology,check APC,ignored\n" +
	",,,,,,,\n" +
	"Oxford,PMCabc,,doi:10.1000/XYZ,,,,\n"

func fixedNow(t *testing.T) {
	t.Helper()
	orig := domain.Now
	domain.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { domain.Now = orig })
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func column(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func TestFieldForHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"PMCID", FieldPMCID, true},
		{"  pmcid ", FieldPMCID, true},
		{"\ufeffUniversity", FieldUniversity, true},
		{"total cost of article processing charge (apc), in £", FieldAPCCost, true},
		{"Something else", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := FieldForHeader(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecords(t *testing.T) {
	fixedNow(t)
	uploadID := uuid.New()

	records, err := ParseRecords(strings.NewReader(sampleCSV), uploadID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	t.Run("valid identifiers are normalised", func(t *testing.T) {
		rec := records[0]
		assert.Equal(t, uploadID, rec.UploadID)
		assert.Equal(t, 1, rec.UploadPos)
		assert.Equal(t, "PMC4219345", rec.PMCID)
		assert.Equal(t, "25398264", rec.PMID)
		assert.Equal(t, "10.1186/s13059-014-0487-2", rec.DOI)
		assert.Equal(t, "Genome-wide analysis", rec.Title)
		assert.Equal(t, domain.OAGNotSent, rec.OAGPMCID)

		assert.Equal(t, "Cambridge", rec.Source[FieldUniversity])
		assert.Equal(t, " pmc4219345 ", rec.Source[FieldPMCID])
		assert.Equal(t, "check APC", rec.Source[FieldNotes])
		assert.NotContains(t, rec.Source, "Unmapped column")

		require.Len(t, rec.Provenance, 3)
		assert.Equal(t, domain.ActorImporter, rec.Provenance[0].By)
		assert.Equal(t, "normalised PMCID  pmc4219345  to PMC4219345", rec.Provenance[0].What)
		assert.Equal(t, "normalised PMID 25398264 to 25398264", rec.Provenance[1].What)
		assert.Equal(t, "normalised DOI https://doi.org/10.1186/s13059-014-0487-2 to 10.1186/s13059-014-0487-2", rec.Provenance[2].What)
	})

	t.Run("blank rows are skipped and invalid identifiers noted", func(t *testing.T) {
		rec := records[1]
		assert.Equal(t, 2, rec.UploadPos)
		assert.Empty(t, rec.PMCID)
		assert.Empty(t, rec.PMID)
		assert.Equal(t, "10.1000/XYZ", rec.DOI)
		assert.Empty(t, rec.Title)

		require.Len(t, rec.Provenance, 2)
		assert.Equal(t, "PMCID PMCabc was syntactically invalid, so ignoring", rec.Provenance[0].What)
		assert.Equal(t, "normalised DOI doi:10.1000/XYZ to 10.1000/XYZ", rec.Provenance[1].What)
	})
}

func TestParseRecords_Errors(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		records, err := ParseRecords(strings.NewReader(""), uuid.New())
		assert.ErrorIs(t, err, ErrNoHeader)
		assert.Nil(t, records)
	})

	t.Run("malformed quoting returns no records", func(t *testing.T) {
		data := "PMCID,DOI\nPMC1,10.1/a\nPMC2,\"10.1/b\nPMC3,10.1/c\"x\n"
		records, err := ParseRecords(strings.NewReader(data), uuid.New())
		require.Error(t, err)
		assert.Nil(t, records)
	})

	t.Run("header only", func(t *testing.T) {
		records, err := ParseRecords(strings.NewReader("PMCID,DOI\n"), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestWriteRecords(t *testing.T) {
	fixedNow(t)

	t.Run("header only for zero records", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteRecords(&buf, nil))

		rows := readCSV(t, buf.String())
		require.Len(t, rows, 1)
		assert.Len(t, rows[0], len(OutputOrder))
		assert.Equal(t, "University", rows[0][0])
		assert.Equal(t, "Compliance Processing Ouptut", rows[0][len(rows[0])-1])
	})

	t.Run("renders result values", func(t *testing.T) {
		rec := domain.NewRecord(uuid.New(), 1)
		rec.Source = map[string]string{FieldUniversity: "Cambridge", FieldPMCID: "pmc1", FieldNotes: "original note"}
		rec.PMCID = "PMC1"
		rec.InEPMC = domain.BoolPtr(true)
		rec.IsOA = domain.BoolPtr(false)
		rec.HasFTXML = true
		rec.Confidence = domain.Float64Ptr(1)
		rec.ISSN = []string{"1465-6906", "1474-760X"}
		rec.AddProvenance(domain.ActorImporter, "first")
		rec.AddProvenance(domain.ActorProcessor, "second")

		var buf bytes.Buffer
		require.NoError(t, WriteRecords(&buf, []*domain.Record{rec}))

		rows := readCSV(t, buf.String())
		require.Len(t, rows, 2)
		header, row := rows[0], rows[1]

		assert.Equal(t, "Cambridge", row[column(header, "University")])
		assert.Equal(t, "PMC1", row[column(header, "PMCID")])
		assert.Equal(t, "original note", row[column(header, "Notes")])
		assert.Equal(t, "True", row[column(header, "Fulltext in EPMC?")])
		assert.Equal(t, "True", row[column(header, "XML Fulltext?")])
		assert.Equal(t, "False", row[column(header, "Open Access?")])
		assert.Equal(t, "unknown", row[column(header, "AAM?")])
		assert.Equal(t, "unknown", row[column(header, "Licence")])
		assert.Equal(t, "", row[column(header, "Standard Compliance?")])
		assert.Equal(t, "1.0", row[column(header, "Correct Article Confidence")])
		assert.Equal(t, "1465-6906, 1474-760X", row[column(header, "ISSN")])
		assert.Equal(t,
			"[2024-03-01T09:30:00Z importer] first\n\n[2024-03-01T09:30:00Z processor] second",
			row[column(header, "Compliance Processing Ouptut")])
		assert.Equal(t, -1, column(header, "VAT charged"))
	})

	t.Run("columns follow output order", func(t *testing.T) {
		rec := domain.NewRecord(uuid.New(), 1)
		rec.Source = map[string]string{FieldNotes: "n", FieldUniversity: "u"}

		header, _ := Table([]*domain.Record{rec})
		last := -1
		for _, h := range header {
			pos := -1
			for i, f := range OutputOrder {
				if HeaderForField(f) == h {
					pos = i
				}
			}
			require.NotEqual(t, -1, pos, h)
			assert.Greater(t, pos, last, h)
			last = pos
		}
	})

	t.Run("columns from later records are kept", func(t *testing.T) {
		first := domain.NewRecord(uuid.New(), 1)
		first.Source = map[string]string{FieldUniversity: "u"}
		second := domain.NewRecord(first.UploadID, 2)
		second.Source = map[string]string{FieldUniversity: "v", FieldNotes: "late note"}

		var buf bytes.Buffer
		require.NoError(t, WriteRecords(&buf, []*domain.Record{first, second}))

		rows := readCSV(t, buf.String())
		require.Len(t, rows, 3)
		notes := column(rows[0], "Notes")
		require.NotEqual(t, -1, notes)
		assert.Equal(t, "", rows[1][notes])
		assert.Equal(t, "late note", rows[2][notes])
		assert.Len(t, rows[1], len(rows[0]))
	})

	t.Run("metadata publisher used when the sheet has none", func(t *testing.T) {
		rec := domain.NewRecord(uuid.New(), 1)
		rec.Source = map[string]string{FieldPublisher: "", FieldJournalTitle: "From Sheet"}
		rec.Publisher = "BioMed Central"
		rec.JournalTitle = "Genome Biology"

		obj := Objectify(rec)
		assert.Equal(t, "BioMed Central", obj[FieldPublisher])
		assert.Equal(t, "From Sheet", obj[FieldJournalTitle])
	})
}

func TestRoundTrip(t *testing.T) {
	fixedNow(t)
	uploadID := uuid.New()

	records, err := ParseRecords(strings.NewReader(sampleCSV), uploadID)
	require.NoError(t, err)
	records[0].ISSN = []string{"1465-6906", "1474-760X"}
	records[0].AddProvenance(domain.ActorProcessor, "Found fulltext XML in EPMC")

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, records))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	header, first := rows[0], rows[1]

	assert.Equal(t, "Cambridge", first[column(header, "University")])
	assert.Equal(t, "PMC4219345", first[column(header, "PMCID")])
	assert.Equal(t, "25398264", first[column(header, "PMID")])
	assert.Equal(t, "10.1186/s13059-014-0487-2", first[column(header, "DOI")])
	assert.Equal(t, "Genome-wide analysis", first[column(header, "Article title")])
	assert.Equal(t, "Genome Biology", first[column(header, "Journal title")])
	assert.Equal(t, "check APC", first[column(header, "Notes")])
	assert.Equal(t, "1465-6906, 1474-760X", first[column(header, "ISSN")])
	assert.Equal(t, strings.Join([]string{
		"[2024-03-01T09:30:00Z importer] normalised PMCID  pmc4219345  to PMC4219345",
		"[2024-03-01T09:30:00Z importer] normalised PMID 25398264 to 25398264",
		"[2024-03-01T09:30:00Z importer] normalised DOI https://doi.org/10.1186/s13059-014-0487-2 to 10.1186/s13059-014-0487-2",
		"[2024-03-01T09:30:00Z processor] Found fulltext XML in EPMC",
	}, "\n\n"), first[column(header, "Compliance Processing Ouptut")])

	reparsed, err := ParseRecords(strings.NewReader(buf.String()), uploadID)
	require.NoError(t, err)
	require.Len(t, reparsed, 2)
	assert.Equal(t, records[0].PMCID, reparsed[0].PMCID)
	assert.Equal(t, records[0].DOI, reparsed[0].DOI)
	assert.Equal(t, records[1].DOI, reparsed[1].DOI)
	assert.Equal(t, "Oxford", reparsed[1].Source[FieldUniversity])
}

func TestWriteXLSX(t *testing.T) {
	rec := domain.NewRecord(uuid.New(), 1)
	rec.PMCID = "PMC1"
	rec.InEPMC = domain.BoolPtr(true)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []*domain.Record{rec}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(XLSXSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header, _ := Table([]*domain.Record{rec})
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "PMC1", rows[1][column(rows[0], "PMCID")])
	assert.Equal(t, "True", rows[1][column(rows[0], "Fulltext in EPMC?")])
}
