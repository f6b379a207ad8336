package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/helixir/oa-compliance-service/internal/domain"
	"github.com/helixir/oa-compliance-service/internal/identifiers"
)

// ErrNoHeader is returned for a spreadsheet without a header row.
var ErrNoHeader = errors.New("spreadsheet has no header row")

// ParseRecords reads a CSV spreadsheet and returns one record per non-empty
// row, numbered from 1 in file order. Identifiers are normalised and every
// normalisation outcome is noted in the record's provenance. A malformed file
// returns an error and no records.
func ParseRecords(r io.Reader, uploadID uuid.UUID) ([]*domain.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		if f, ok := FieldForHeader(h); ok {
			columns[i] = f
		}
	}

	var records []*domain.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(row) {
			continue
		}

		source := make(map[string]string)
		for i, value := range row {
			if i < len(columns) && columns[i] != "" {
				source[columns[i]] = value
			}
		}

		rec := domain.NewRecord(uploadID, len(records)+1)
		rec.Source = source
		populate(rec)
		records = append(records, rec)
	}

	return records, nil
}

// populate copies identifiers and the title out of the source columns.
func populate(rec *domain.Record) {
	for _, kind := range domain.IdentifierKinds {
		raw := rec.Source[string(kind)]
		if raw == "" {
			continue
		}
		normalised, err := identifiers.Normalize(kind, raw)
		if err != nil {
			rec.AddProvenance(domain.ActorImporter, fmt.Sprintf("%s %s was syntactically invalid, so ignoring", kind.Label(), raw))
			continue
		}
		rec.SetIdentifier(kind, normalised)
		rec.AddProvenance(domain.ActorImporter, fmt.Sprintf("normalised %s %s to %s", kind.Label(), raw, normalised))
	}

	if title := rec.Source[FieldArticleTitle]; title != "" {
		rec.Title = title
	}
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
